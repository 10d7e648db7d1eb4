package inquiry

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gatekeeper/internal/compose"
	rlconfig "gatekeeper/internal/ratelimit/config"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the public submit endpoint and the admin listing.
func (h *Handler) Register(r chi.Router, c *compose.Composer) {
	admin := compose.Options{RequireAuth: true, RequireAdmin: true}

	r.Method(http.MethodPost, "/api/inquiries",
		compose.Wrap(c, h.submit, compose.Options{RateLimitPolicy: rlconfig.PolicyContact}))
	r.Method(http.MethodGet, "/api/admin/inquiries", compose.Wrap(c, h.list, admin))
	r.Method(http.MethodGet, "/api/admin/inquiries/{id}", compose.Wrap(c, h.get, admin))
}

func (h *Handler) submit(ctx context.Context, req *compose.Request[SubmitRequest, compose.None]) (compose.Response, error) {
	inq, err := h.svc.Submit(ctx, req.Body)
	if err != nil {
		return compose.Response{}, err
	}
	return compose.Created(map[string]any{"id": inq.ID, "status": inq.Status}), nil
}

func (h *Handler) list(ctx context.Context, req *compose.Request[compose.None, ListQuery]) (compose.Response, error) {
	page, err := h.svc.List(ctx, req.Query.Filter())
	if err != nil {
		return compose.Response{}, err
	}
	return compose.OK(page), nil
}

func (h *Handler) get(ctx context.Context, req *compose.Request[compose.None, compose.None]) (compose.Response, error) {
	inq, err := h.svc.Get(ctx, req.PathParams["id"])
	if err != nil {
		return compose.Response{}, err
	}
	return compose.OK(inq), nil
}
