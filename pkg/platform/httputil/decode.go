package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	dErrors "gatekeeper/pkg/domain-errors"
)

// DecodeJSON decodes a JSON request body into a new T.
// An empty body, malformed JSON, or trailing data yields a CodeBadRequest error;
// an oversized body (see request.BodyLimit) yields a CodeBadRequest with a size message.
func DecodeJSON[T any](r *http.Request) (*T, error) {
	var req T
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "request body too large")
		case errors.Is(err, io.EOF):
			return nil, dErrors.New(dErrors.CodeBadRequest, "request body is required")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body")
		}
	}
	if dec.More() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid request body")
	}
	return &req, nil
}

// Normalizable is implemented by request types that trim or canonicalize fields
// before validation.
type Normalizable interface {
	Normalize()
}

// Normalize calls Normalize on req when it implements Normalizable.
func Normalize(req any) {
	if n, ok := req.(Normalizable); ok {
		n.Normalize()
	}
}
