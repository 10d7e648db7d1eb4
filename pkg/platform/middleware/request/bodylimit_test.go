package request

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBodyLimit(t *testing.T) {
	t.Run("body at exact limit passes through", func(t *testing.T) {
		handler := BodyLimit(100)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			data, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			assert.Len(t, data, 100)
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodPost, "/api/inquiries", strings.NewReader(strings.Repeat("x", 100)))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("declared length over limit is rejected before the handler", func(t *testing.T) {
		called := false
		handler := BodyLimit(100)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))

		req := httptest.NewRequest(http.MethodPost, "/api/inquiries", strings.NewReader(strings.Repeat("x", 200)))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.False(t, called)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.JSONEq(t, `{"error":"Request body too large"}`, w.Body.String())
	})

	t.Run("undeclared length over limit fails on read", func(t *testing.T) {
		var readErr error
		handler := BodyLimit(100)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, readErr = io.ReadAll(r.Body)
		}))

		req := httptest.NewRequest(http.MethodPost, "/api/inquiries", strings.NewReader(strings.Repeat("x", 200)))
		req.ContentLength = -1
		handler.ServeHTTP(httptest.NewRecorder(), req)

		require.Error(t, readErr)
		assert.Contains(t, readErr.Error(), "request body too large")
	})

	t.Run("GET request with no body passes through", func(t *testing.T) {
		handler := BodyLimit(1024)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/vehicles", nil))

		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}
