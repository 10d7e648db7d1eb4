package models

// ExceededResponse is the 429 body for every limiter rejection.
type ExceededResponse struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter,omitempty"` // seconds
}

// OverloadedResponse is the 503 body of the per-instance throttle.
type OverloadedResponse struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter"`
}
