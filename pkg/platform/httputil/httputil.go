package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "gatekeeper/pkg/domain-errors"
)

// ErrorResponse is the plain {error, code} body written before the request
// reaches a composed handler, such as the DDoS rejection.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Errors after WriteHeader cannot change the status code, so encoding errors are ignored.
	_ = json.NewEncoder(w).Encode(response)
}

// DomainCodeToHTTPStatus translates domain error codes to HTTP status codes.
func DomainCodeToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeBadRequest, dErrors.CodeValidation:
		return http.StatusBadRequest
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeRateLimited, dErrors.CodeSuspicious:
		return http.StatusTooManyRequests
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// DomainCodeToHTTPCode translates domain error codes to the upper-case wire
// code of the plain error body.
func DomainCodeToHTTPCode(code dErrors.Code) string {
	switch code {
	case dErrors.CodeNotFound:
		return "NOT_FOUND"
	case dErrors.CodeBadRequest:
		return "BAD_REQUEST"
	case dErrors.CodeValidation:
		return "VALIDATION_ERROR"
	case dErrors.CodeConflict:
		return "CONFLICT"
	case dErrors.CodeUnauthorized:
		return "UNAUTHORIZED"
	case dErrors.CodeForbidden:
		return "FORBIDDEN"
	case dErrors.CodeRateLimited:
		return "RATE_LIMITED"
	case dErrors.CodeSuspicious:
		return "SUSPICIOUS_ACTIVITY"
	case dErrors.CodeUnavailable:
		return "SERVICE_UNAVAILABLE"
	case dErrors.CodeTimeout:
		return "TIMEOUT"
	default:
		return "INTERNAL_ERROR"
	}
}

// DefaultMessage is the client-facing text used when a domain error has none.
func DefaultMessage(code dErrors.Code) string {
	switch code {
	case dErrors.CodeNotFound:
		return "Not found"
	case dErrors.CodeBadRequest:
		return "Bad request"
	case dErrors.CodeValidation:
		return "Validation failed"
	case dErrors.CodeUnauthorized:
		return "Authentication required"
	case dErrors.CodeForbidden:
		return "Insufficient permissions"
	case dErrors.CodeRateLimited:
		return "Too many requests"
	case dErrors.CodeSuspicious:
		return "Request blocked"
	case dErrors.CodeUnavailable:
		return "Service temporarily unavailable"
	default:
		return "Internal server error"
	}
}
