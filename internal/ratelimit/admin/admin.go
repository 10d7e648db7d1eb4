// Package admin lets staff lift rate limits and bans for one client identity.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gatekeeper/internal/audit"
	"gatekeeper/internal/compose"
	"gatekeeper/internal/ratelimit/limiter"
	"gatekeeper/internal/ratelimit/models"
	"gatekeeper/internal/ratelimit/progressive"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/requestcontext"
)

// ResetRequest names the identity to clear. An empty Policy clears every
// policy and the escalation record.
type ResetRequest struct {
	Identity string `json:"identity" validate:"required,ip"`
	Policy   string `json:"policy" validate:"omitempty,max=64"`
}

// StateQuery selects the identity whose escalation record is shown.
type StateQuery struct {
	Identity string `query:"identity" validate:"required,ip"`
}

// ResetResult lists what was cleared.
type ResetResult struct {
	Identity string   `json:"identity"`
	Cleared  []string `json:"cleared"`
}

// StateView is the escalation record as shown to staff.
type StateView struct {
	Identity       string     `json:"identity"`
	ViolationCount int        `json:"violationCount"`
	LastViolation  *time.Time `json:"lastViolationAt,omitempty"`
	BannedUntil    *time.Time `json:"bannedUntil,omitempty"`
	Banned         bool       `json:"banned"`
}

type Service struct {
	registry    *limiter.Registry
	progressive *progressive.Limiter
	emitter     audit.Emitter
	logger      *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithEmitter(e audit.Emitter) Option {
	return func(s *Service) {
		s.emitter = e
	}
}

func New(registry *limiter.Registry, prog *progressive.Limiter, opts ...Option) (*Service, error) {
	if registry == nil {
		return nil, errors.New("limiter registry is required")
	}
	if prog == nil {
		return nil, errors.New("progressive limiter is required")
	}
	s := &Service{registry: registry, progressive: prog, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Reset clears the windows of one identity. actor is the subject of the
// staff session performing it.
func (s *Service) Reset(ctx context.Context, req *ResetRequest, actor string) (*ResetResult, error) {
	res := &ResetResult{Identity: req.Identity, Cleared: []string{}}

	if req.Policy != "" {
		l, ok := s.registry.Get(req.Policy)
		if !ok {
			return nil, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unknown policy %q", req.Policy))
		}
		if err := l.Reset(ctx, req.Identity); err != nil {
			return nil, fmt.Errorf("reset %s: %w", req.Policy, err)
		}
		res.Cleared = append(res.Cleared, req.Policy)
	} else {
		for _, name := range s.registry.Policies() {
			l, _ := s.registry.Get(name)
			if err := l.Reset(ctx, req.Identity); err != nil {
				return nil, fmt.Errorf("reset %s: %w", name, err)
			}
			res.Cleared = append(res.Cleared, name)
		}
		if err := s.progressive.Reset(ctx, req.Identity); err != nil {
			return nil, fmt.Errorf("reset escalation: %w", err)
		}
		res.Cleared = append(res.Cleared, "progressive")
	}

	audit.Record(ctx, s.logger, s.emitter, audit.Event{
		Action:   audit.ActionRateLimitReset,
		Identity: req.Identity,
		Subject:  actor,
		Reason:   req.Policy,
	})
	return res, nil
}

func (s *Service) State(ctx context.Context, identity string) (*StateView, error) {
	st, err := s.progressive.State(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("load escalation state: %w", err)
	}
	return view(identity, st, requestcontext.Now(ctx)), nil
}

func view(identity string, st models.ProgressiveState, now time.Time) *StateView {
	v := &StateView{Identity: identity, ViolationCount: st.ViolationCount, Banned: st.Banned(now)}
	if !st.LastViolationAt.IsZero() {
		t := st.LastViolationAt
		v.LastViolation = &t
	}
	if !st.BannedUntil.IsZero() {
		t := st.BannedUntil
		v.BannedUntil = &t
	}
	return v
}

// Handler exposes the service under /api/admin/ratelimit.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Register(r chi.Router, c *compose.Composer) {
	opts := compose.Options{RequireAuth: true, RequireAdmin: true}
	r.Method(http.MethodPost, "/api/admin/ratelimit/reset", compose.Wrap(c, h.reset, opts))
	r.Method(http.MethodGet, "/api/admin/ratelimit/state", compose.Wrap(c, h.state, opts))
}

func (h *Handler) reset(ctx context.Context, req *compose.Request[ResetRequest, compose.None]) (compose.Response, error) {
	res, err := h.svc.Reset(ctx, req.Body, req.Session.Subject)
	if err != nil {
		return compose.Response{}, err
	}
	return compose.OK(res), nil
}

func (h *Handler) state(ctx context.Context, req *compose.Request[compose.None, StateQuery]) (compose.Response, error) {
	v, err := h.svc.State(ctx, req.Query.Identity)
	if err != nil {
		return compose.Response{}, err
	}
	return compose.OK(v), nil
}
