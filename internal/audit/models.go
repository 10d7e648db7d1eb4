package audit

import "time"

// Event records one security-relevant gatekeeper decision. Identity is always
// anonymized before an event leaves the publisher.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Action    Action    `json:"action"`
	Identity  string    `json:"identity"`
	Subject   string    `json:"subject,omitempty"`
	Path      string    `json:"path,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Client    string    `json:"client,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

type Action string

const (
	ActionDDoSBlocked       Action = "ddos_blocked"
	ActionRateLimitExceeded Action = "rate_limit_exceeded"
	ActionProgressiveBan    Action = "progressive_ban"
	ActionAccessDenied      Action = "access_denied"
	ActionRateLimitReset    Action = "rate_limit_reset"
)
