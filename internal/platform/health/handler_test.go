package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, h *Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	r := chi.NewRouter()
	h.Register(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestLiveness(t *testing.T) {
	rec, body := serve(t, New("test"), "/health/live")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alive", body["status"])
}

func TestReadiness(t *testing.T) {
	t.Run("all checks up", func(t *testing.T) {
		h := New("test")
		h.RegisterCheck("redis", func(context.Context) error { return nil })
		h.RegisterCheck("postgres", func(context.Context) error { return nil })

		rec, body := serve(t, h, "/health/ready")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ready", body["status"])
		assert.Equal(t, map[string]any{"redis": "up", "postgres": "up"}, body["checks"])
	})

	t.Run("one failing check makes the instance not ready", func(t *testing.T) {
		h := New("test")
		h.RegisterCheck("redis", func(context.Context) error { return errors.New("connection refused") })
		h.RegisterCheck("postgres", func(context.Context) error { return nil })

		rec, body := serve(t, h, "/health/ready")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "not_ready", body["status"])
		assert.Equal(t, "down: connection refused", body["checks"].(map[string]any)["redis"])
	})

	t.Run("slow checks are cut off", func(t *testing.T) {
		h := New("test")
		h.checkTimeout = 20 * time.Millisecond
		h.RegisterCheck("kafka", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})

		rec, _ := serve(t, h, "/health/ready")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestStatus(t *testing.T) {
	h := New("production")
	h.now = func() time.Time { return h.startTime.Add(90 * time.Second) }

	rec, body := serve(t, h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "production", body["environment"])
	assert.Equal(t, 90.0, body["uptime_seconds"])
}
