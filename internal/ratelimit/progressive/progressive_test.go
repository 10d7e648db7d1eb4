package progressive

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"gatekeeper/internal/audit"
	"gatekeeper/internal/audit/mocks"
	"gatekeeper/internal/ratelimit/config"
	"gatekeeper/internal/ratelimit/limiter"
	"gatekeeper/internal/ratelimit/models"
	"gatekeeper/internal/ratelimit/store/memory"
	"gatekeeper/pkg/requestcontext"
)

const ip = "192.0.2.10"

type ProgressiveSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	emitter    *mocks.MockEmitter
	underlying *limiter.Limiter
	states     *MemoryStore
	limiter    *Limiter
	start      time.Time
}

func TestProgressiveSuite(t *testing.T) {
	suite.Run(t, new(ProgressiveSuite))
}

func (s *ProgressiveSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.emitter = mocks.NewMockEmitter(s.ctrl)
	s.start = time.Date(2026, 8, 3, 14, 0, 0, 0, time.UTC)

	var err error
	s.underlying, err = limiter.New(models.Policy{Name: "general-api", MaxRequests: 2, Window: time.Minute}, memory.New())
	s.Require().NoError(err)
	s.states = NewMemoryStore()
	s.limiter, err = New(s.underlying, s.states, config.ProgressiveConfig{
		Policy:              "general-api",
		EscalationThreshold: 3,
		BasePenalty:         time.Minute,
		PenaltyFactor:       2,
		MaxPenalty:          24 * time.Hour,
		QuietPeriod:         time.Hour,
	},
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithEmitter(s.emitter),
	)
	s.Require().NoError(err)
}

func (s *ProgressiveSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ProgressiveSuite) check(offset time.Duration) models.Result {
	ctx := requestcontext.WithTime(context.Background(), s.start.Add(offset))
	res, err := s.limiter.CheckAndLimit(ctx, ip)
	s.Require().NoError(err)
	return res
}

func (s *ProgressiveSuite) state() models.ProgressiveState {
	st, err := s.limiter.State(context.Background(), ip)
	s.Require().NoError(err)
	return st
}

func (s *ProgressiveSuite) TestNew() {
	_, err := New(nil, s.states, config.ProgressiveConfig{})
	s.Error(err)
	_, err = New(s.underlying, nil, config.ProgressiveConfig{})
	s.Error(err)
}

func (s *ProgressiveSuite) TestBreachesBelowThresholdOnlyCount() {
	s.True(s.check(0).Allowed)
	s.True(s.check(0).Allowed)

	for i := 1; i <= 3; i++ {
		res := s.check(time.Second)
		s.False(res.Allowed)
		s.Equal(limiter.ExceededMessage, res.Message)
		s.Equal(i, s.state().ViolationCount)
	}
	s.True(s.state().BannedUntil.IsZero())
}

func (s *ProgressiveSuite) TestBanIssuedOnceThresholdExceeded() {
	s.emitter.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e audit.Event) error {
		s.Equal(audit.ActionProgressiveBan, e.Action)
		s.Equal(ip, e.Identity)
		return nil
	})

	s.check(0)
	s.check(0)
	for range 3 {
		s.check(time.Second)
	}

	res := s.check(2 * time.Second)
	s.False(res.Allowed)
	s.Equal(BannedMessage, res.Message)
	s.Equal(time.Minute, res.RetryAfter)
	s.Equal(s.start.Add(2*time.Second+time.Minute), s.state().BannedUntil)
}

func (s *ProgressiveSuite) TestBanHoldsRegardlessOfUnderlyingCounter() {
	s.emitter.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)
	s.check(0)
	s.check(0)
	for range 4 {
		s.check(time.Second)
	}
	bannedUntil := s.state().BannedUntil

	// Clearing the window alone does not lift the ban.
	s.Require().NoError(s.underlying.Reset(context.Background(), ip))

	for _, offset := range []time.Duration{2 * time.Second, 30 * time.Second, 60 * time.Second} {
		res := s.check(offset)
		s.False(res.Allowed, "offset %s", offset)
		s.Equal(BannedMessage, res.Message)
		s.Equal(bannedUntil.Sub(s.start.Add(offset)), res.RetryAfter)
	}

	s.True(s.check(62 * time.Second).Allowed)
}

func (s *ProgressiveSuite) TestRepeatOffendersGetLongerBans() {
	s.emitter.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil).Times(2)
	s.check(0)
	s.check(0)
	for range 4 {
		s.check(time.Second)
	}
	s.Equal(s.start.Add(time.Second+time.Minute), s.state().BannedUntil)

	// After the first ban: a fresh window admits two, the third breaches.
	s.True(s.check(2 * time.Minute).Allowed)
	s.True(s.check(2 * time.Minute).Allowed)
	res := s.check(2 * time.Minute)
	s.False(res.Allowed)
	s.Equal(2*time.Minute, res.RetryAfter)
	s.Equal(5, s.state().ViolationCount)
}

func (s *ProgressiveSuite) TestSuccessDoesNotDecrementViolations() {
	s.check(0)
	s.check(0)
	s.check(time.Second)
	s.check(time.Second)
	s.Equal(2, s.state().ViolationCount)

	s.True(s.check(5 * time.Minute).Allowed)
	s.Equal(2, s.state().ViolationCount)
}

func (s *ProgressiveSuite) TestRecordDecaysAfterQuietPeriod() {
	s.check(0)
	s.check(0)
	s.check(time.Second)
	s.check(time.Second)
	s.Require().Equal(2, s.state().ViolationCount)

	s.True(s.check(time.Hour + time.Second).Allowed)
	s.True(s.state().IsZero())
	s.Equal(0, s.states.Len())
}

func (s *ProgressiveSuite) TestReset() {
	s.check(0)
	s.check(0)
	s.check(time.Second)
	s.Require().NoError(s.limiter.Reset(context.Background(), ip))

	s.True(s.state().IsZero())
	s.True(s.check(2 * time.Second).Allowed)
}

func (s *ProgressiveSuite) TestSweep() {
	s.check(0)
	s.check(0)
	s.check(time.Second)
	s.Equal(1, s.states.Len())

	s.Equal(0, s.states.Sweep(s.start.Add(time.Minute), time.Hour))
	s.Equal(1, s.states.Sweep(s.start.Add(2*time.Hour), time.Hour))
}

func (s *ProgressiveSuite) TestConcurrentChecksAdmitAtMostLimit() {
	s.emitter.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	var allowed atomic.Int32
	var wg sync.WaitGroup
	ctx := requestcontext.WithTime(context.Background(), s.start)
	for range 50 {
		wg.Go(func() {
			res, err := s.limiter.CheckAndLimit(ctx, ip)
			s.NoError(err)
			if res.Allowed {
				allowed.Add(1)
			}
		})
	}
	wg.Wait()

	s.Equal(int32(2), allowed.Load())
	// The fourth breach bans; later checks short-circuit on the ban.
	s.Equal(4, s.state().ViolationCount)
}
