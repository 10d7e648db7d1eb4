package httptransport

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"gatekeeper/internal/audit"
	"gatekeeper/internal/compose"
	"gatekeeper/internal/inquiry"
	inquirystore "gatekeeper/internal/inquiry/store"
	"gatekeeper/internal/pipeline"
	"gatekeeper/internal/platform/health"
	"gatekeeper/internal/platform/metrics"
	rlconfig "gatekeeper/internal/ratelimit/config"
	"gatekeeper/internal/ratelimit/globalthrottle"
	"gatekeeper/internal/ratelimit/limiter"
	"gatekeeper/internal/ratelimit/progressive"
	"gatekeeper/internal/ratelimit/store/memory"
	"gatekeeper/internal/security/headers"
	"gatekeeper/internal/session"
	"gatekeeper/internal/session/token"
	"gatekeeper/pkg/platform/middleware/metadata"
	"gatekeeper/pkg/platform/middleware/request"
)

const browserUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_5) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15"

type RouterSuite struct {
	suite.Suite
	codec   *token.Codec
	sink    *audit.MemorySink
	handler http.Handler
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	s.handler = s.build(rlconfig.GlobalLimit{PerInstancePerSecond: 1000, Burst: 2000})
}

func (s *RouterSuite) build(global rlconfig.GlobalLimit) http.Handler {
	return s.buildWithSite(global, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "<html>fleet</html>")
	}))
}

func (s *RouterSuite) buildWithSite(global rlconfig.GlobalLimit, site http.Handler) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := metrics.NewRegistry("test", "test")

	codec, err := token.NewCodec("router-test-key", "gatekeeper", "", time.Hour)
	s.Require().NoError(err)
	s.codec = codec
	gate, err := session.NewGate(session.NewCookieResolver(codec, ""), session.NewTokenDecoder(codec))
	s.Require().NoError(err)

	cfg := rlconfig.DefaultConfig()
	registry, err := limiter.NewRegistry(cfg, memory.New())
	s.Require().NoError(err)
	general, _ := registry.Get(cfg.Progressive.Policy)
	prog, err := progressive.New(general, progressive.NewMemoryStore(), cfg.Progressive)
	s.Require().NoError(err)

	s.sink = audit.NewMemorySink()
	publisher := audit.NewPublisher(s.sink)
	composer := headers.New(nil)

	p, err := pipeline.New(pipeline.Config{Environment: headers.Development, Composer: composer, Gate: gate},
		pipeline.WithPolicies(registry),
		pipeline.WithProgressive(prog),
		pipeline.WithEmitter(publisher),
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(pipeline.NewMetricsWith(reg)),
	)
	s.Require().NoError(err)
	c, err := compose.New(compose.Config{Environment: headers.Development, Composer: composer, Gate: gate},
		compose.WithPolicies(registry),
		compose.WithEmitter(publisher),
		compose.WithLogger(logger),
	)
	s.Require().NoError(err)

	svc, err := inquiry.NewService(inquirystore.NewMemory(), logger)
	s.Require().NoError(err)

	h, err := NewRouter(Deps{
		Logger:         logger,
		Metadata:       metadata.NewMiddleware(nil),
		Throttle:       globalthrottle.New(global),
		Pipeline:       p,
		Composer:       c,
		Health:         health.New("test"),
		Metrics:        metrics.Handler(reg),
		RequestMetrics: request.NewMetricsWith(reg),
		Inquiries:      inquiry.NewHandler(svc),
		Site:           site,
	})
	s.Require().NoError(err)
	return h
}

func (s *RouterSuite) do(method, target, body string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	r := httptest.NewRequest(method, target, rdr)
	r.RemoteAddr = "198.51.100.77:51234"
	r.Header.Set("User-Agent", browserUA)
	for _, m := range mutate {
		m(r)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, r)
	return rec
}

func (s *RouterSuite) asRole(role session.Role) func(*http.Request) {
	return func(r *http.Request) {
		raw, err := s.codec.Encode(context.Background(), "staff-7", string(role))
		s.Require().NoError(err)
		r.AddCookie(&http.Cookie{Name: session.DefaultCookieName, Value: raw})
	}
}

func (s *RouterSuite) TestPublicPageCarriesSecurityHeaders() {
	rec := s.do(http.MethodGet, "/trucks/heavy-duty", "")
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("<html>fleet</html>", rec.Body.String())
	s.Equal("DENY", rec.Header().Get("X-Frame-Options"))
	s.Equal("nosniff", rec.Header().Get("X-Content-Type-Options"))
	s.NotEmpty(rec.Header().Get(request.HeaderRequestID))
}

func (s *RouterSuite) TestAdminPageRedirectsToLogin() {
	rec := s.do(http.MethodGet, "/admin/inventory", "")
	s.Equal(http.StatusFound, rec.Code)
	s.Equal(pipeline.LoginRedirect("/admin/inventory"), rec.Header().Get("Location"))

	rec = s.do(http.MethodGet, "/admin/inventory", "", s.asRole(session.RoleAdmin))
	s.Equal(http.StatusOK, rec.Code)
}

func (s *RouterSuite) TestInquiryFlowThroughTheFullStack() {
	rec := s.do(http.MethodPost, "/api/inquiries",
		`{"name":"Kim Haulage","email":"kim@example.com","message":"Two flatbeds please"}`)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	s.Equal("20", rec.Header().Get("X-RateLimit-Limit"))

	rec = s.do(http.MethodGet, "/api/admin/inquiries", "")
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.JSONEq(`{"success":false,"error":"Authentication required","code":"unauthorized"}`, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/admin/inquiries", "", s.asRole(session.RoleUser))
	s.Equal(http.StatusForbidden, rec.Code)
	s.JSONEq(`{"success":false,"error":"Insufficient permissions","code":"forbidden"}`, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/admin/inquiries?status=new", "", s.asRole(session.RoleManager))
	s.Require().Equal(http.StatusOK, rec.Code)
	var body struct {
		Success bool         `json:"success"`
		Data    inquiry.Page `json:"data"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.True(body.Success)
	s.Equal(1, body.Data.Total)
	s.Equal("Kim Haulage", body.Data.Items[0].Name)
}

func (s *RouterSuite) TestContactPolicyCountsEachSubmissionOnce() {
	payload := `{"name":"Lee","email":"lee@example.com","message":"Van pricing"}`
	for i := range 20 {
		rec := s.do(http.MethodPost, "/api/inquiries", payload)
		s.Require().Equal(http.StatusCreated, rec.Code, "submission %d", i+1)
	}
	rec := s.do(http.MethodPost, "/api/inquiries", payload)
	s.Equal(http.StatusTooManyRequests, rec.Code)
	s.NotEmpty(rec.Header().Get("Retry-After"))
	s.Len(s.sink.ByAction(audit.ActionRateLimitExceeded), 1)
}

func (s *RouterSuite) TestProbePathsAreBlocked() {
	rec := s.do(http.MethodGet, "/.env", "")
	s.Equal(http.StatusTooManyRequests, rec.Code)
	s.Len(s.sink.ByAction(audit.ActionDDoSBlocked), 1)
}

func (s *RouterSuite) TestOperationalEndpointsBypassTheGatekeeper() {
	noUA := func(r *http.Request) { r.Header.Del("User-Agent") }

	rec := s.do(http.MethodGet, "/health/live", "", noUA)
	s.Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/metrics", "", noUA)
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "gatekeeper_build_info")
}

func (s *RouterSuite) TestOversizedBodyIsRejected() {
	big := `{"name":"x","email":"x@example.com","message":"` + strings.Repeat("a", 70*1024) + `"}`
	rec := s.do(http.MethodPost, "/api/inquiries", big)
	s.Equal(http.StatusRequestEntityTooLarge, rec.Code)
}

func TestGlobalThrottleShedsLoad(t *testing.T) {
	s := new(RouterSuite)
	s.SetT(t)
	h := s.build(rlconfig.GlobalLimit{PerInstancePerSecond: 1, Burst: 1})

	serve := func() *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/api/vehicles", nil)
		r.Header.Set("User-Agent", browserUA)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec
	}
	first := serve()
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "DENY", first.Header().Get("X-Frame-Options"))

	shed := serve()
	assert.Equal(t, http.StatusServiceUnavailable, shed.Code)
	assert.Equal(t, "DENY", shed.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", shed.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "index, follow", shed.Header().Get("X-Robots-Tag"))
	assert.NotEmpty(t, shed.Header().Get(request.HeaderRequestID))

	r := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code, "probes are not throttled")
}

func TestRecoveredPanicCarriesSecurityHeaders(t *testing.T) {
	s := new(RouterSuite)
	s.SetT(t)
	h := s.buildWithSite(rlconfig.GlobalLimit{PerInstancePerSecond: 1000, Burst: 2000},
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("template missing") }))

	r := httptest.NewRequest(http.MethodGet, "/trucks", nil)
	r.Header.Set("User-Agent", browserUA)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestNewRouterRequiresCollaborators(t *testing.T) {
	_, err := NewRouter(Deps{})
	require.Error(t, err)

	_, err = NewRouter(Deps{Logger: slog.Default()})
	assert.ErrorContains(t, err, "pipeline")
}

