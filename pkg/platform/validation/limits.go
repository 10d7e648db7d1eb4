package validation

import (
	"fmt"

	dErrors "gatekeeper/pkg/domain-errors"
)

// HTTP body limits
const (
	// MaxBodySize is the maximum allowed request body size (64 KB).
	MaxBodySize = 64 * 1024
)

// Request metadata limits. Requests beyond these are treated as header anomalies.
const (
	// MaxHeaderCount is the maximum number of distinct request headers.
	MaxHeaderCount = 100

	// MaxForwardedHops is the maximum number of entries in an X-Forwarded-For chain.
	MaxForwardedHops = 10

	// MaxRequestURILength is the maximum length of the raw request URI.
	MaxRequestURILength = 4096

	// MaxUserAgentLength is the maximum length of a User-Agent header.
	MaxUserAgentLength = 1024

	// MaxXFFHeaderLength bounds the X-Forwarded-For header before it is parsed.
	MaxXFFHeaderLength = 500
)

// String element length limits for inquiry payloads.
const (
	MaxNameLength    = 120
	MaxEmailLength   = 255
	MaxMessageLength = 4000
)

// CheckStringLength validates that a string does not exceed the maximum length.
func CheckStringLength(fieldName, value string, max int) error {
	if len(value) > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
	}
	return nil
}
