package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"gatekeeper/internal/ratelimit/models"
	"gatekeeper/pkg/requestcontext"
)

type MiddlewareSuite struct {
	suite.Suite
	mw      *Middleware
	resetAt time.Time
}

func TestMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(MiddlewareSuite))
}

func (s *MiddlewareSuite) SetupTest() {
	s.mw = New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.resetAt = time.Unix(1_780_000_000, 0)
}

func (s *MiddlewareSuite) serve(checker Checker) (*httptest.ResponseRecorder, bool) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	})
	req := httptest.NewRequest(http.MethodPost, "/api/contact", nil)
	req = req.WithContext(requestcontext.WithClientMetadata(req.Context(), "203.0.113.8", "Mozilla/5.0"))
	rec := httptest.NewRecorder()
	s.mw.RateLimit(checker)(next).ServeHTTP(rec, req)
	return rec, called
}

func (s *MiddlewareSuite) TestAllowedRequestCarriesHeaders() {
	rec, called := s.serve(CheckerFunc(func(_ context.Context, id string) (models.Result, error) {
		s.Equal("203.0.113.8", id)
		return models.Result{Allowed: true, Limit: 20, Remaining: 19, ResetAt: s.resetAt}, nil
	}))

	s.True(called)
	s.Equal(http.StatusNoContent, rec.Code)
	s.Equal("20", rec.Header().Get(HeaderLimit))
	s.Equal("19", rec.Header().Get(HeaderRemaining))
	s.Equal("1780000000", rec.Header().Get(HeaderReset))
	s.Empty(rec.Header().Get(HeaderRetryAfter))
}

func (s *MiddlewareSuite) TestRejectedRequestGets429() {
	rec, called := s.serve(CheckerFunc(func(context.Context, string) (models.Result, error) {
		return models.Result{
			Allowed:    false,
			Message:    "Too many requests. Please try again later.",
			Limit:      20,
			ResetAt:    s.resetAt,
			RetryAfter: 1500 * time.Millisecond,
		}, nil
	}))

	s.False(called)
	s.Equal(http.StatusTooManyRequests, rec.Code)
	s.Equal("2", rec.Header().Get(HeaderRetryAfter))
	s.Equal("0", rec.Header().Get(HeaderRemaining))

	var body models.ExceededResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal("Too many requests. Please try again later.", body.Error)
	s.Equal(2, body.RetryAfter)
}

func (s *MiddlewareSuite) TestLimiterErrorsFailOpen() {
	rec, called := s.serve(CheckerFunc(func(context.Context, string) (models.Result, error) {
		return models.Result{}, errors.New("redis: connection refused")
	}))

	s.True(called)
	s.Equal(http.StatusNoContent, rec.Code)
	s.Empty(rec.Header().Get(HeaderLimit))
}

func (s *MiddlewareSuite) TestWriteOverloaded() {
	rec := httptest.NewRecorder()
	WriteOverloaded(rec, 1)

	s.Equal(http.StatusServiceUnavailable, rec.Code)
	s.Equal("1", rec.Header().Get(HeaderRetryAfter))
	s.JSONEq(`{"error":"service_unavailable","retryAfter":1}`, rec.Body.String())
}
