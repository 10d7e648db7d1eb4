package compose

import (
	"errors"
	"net/http"

	"gatekeeper/internal/datagateway"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/httputil"
	"gatekeeper/pkg/validation"
)

// SuccessEnvelope wraps every successful handler result.
type SuccessEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

// ErrorEnvelope wraps every failure written by a composed handler.
type ErrorEnvelope struct {
	Success    bool                    `json:"success"`
	Error      string                  `json:"error"`
	Code       string                  `json:"code"`
	Details    []validation.FieldError `json:"details,omitempty"`
	RetryAfter int                     `json:"retryAfter,omitempty"`
}

func writeSuccess(w http.ResponseWriter, res Response) {
	for k, v := range res.Headers {
		w.Header()[k] = v
	}
	status := res.Status
	if status == 0 {
		status = http.StatusOK
	}
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}
	httputil.WriteJSON(w, status, SuccessEnvelope{Success: true, Data: res.Data})
}

// WriteError writes err as an ErrorEnvelope with detail suppressed. Layers
// in front of composed handlers use it so every API failure has one shape.
func WriteError(w http.ResponseWriter, err error) {
	status, env := errorResponse(err, false)
	httputil.WriteJSON(w, status, env)
}

func writeFailure(w http.ResponseWriter, status int, code dErrors.Code, msg string) {
	httputil.WriteJSON(w, status, ErrorEnvelope{Error: msg, Code: string(code)})
}

// errorResponse classifies err into status and envelope. Unclassified
// errors keep their text only when verbose is set.
func errorResponse(err error, verbose bool) (int, ErrorEnvelope) {
	if fields := validation.FieldErrors(err); len(fields) > 0 {
		return http.StatusBadRequest, ErrorEnvelope{
			Error:   httputil.DefaultMessage(dErrors.CodeValidation),
			Code:    string(dErrors.CodeValidation),
			Details: fields,
		}
	}

	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		msg := domainErr.Message
		if msg == "" {
			msg = httputil.DefaultMessage(domainErr.Code)
		}
		return httputil.DomainCodeToHTTPStatus(domainErr.Code), ErrorEnvelope{Error: msg, Code: string(domainErr.Code)}
	}

	var dbErr *datagateway.DatabaseError
	if errors.As(err, &dbErr) && dbErr.Transient {
		env := ErrorEnvelope{Error: httputil.DefaultMessage(dErrors.CodeUnavailable), Code: string(dErrors.CodeUnavailable)}
		if verbose {
			env.Error = err.Error()
		}
		return http.StatusServiceUnavailable, env
	}

	env := ErrorEnvelope{Error: httputil.DefaultMessage(dErrors.CodeInternal), Code: string(dErrors.CodeInternal)}
	if verbose {
		env.Error = err.Error()
	}
	return http.StatusInternalServerError, env
}
