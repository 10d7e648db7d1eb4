// Package ddos is a stateless first-pass filter for abusive requests.
//
// Evaluate looks only at request metadata: the user agent, the request target
// and header shape. It never touches shared state, so it runs before any
// limiter and costs no I/O. False positives are accepted.
package ddos

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/mssola/useragent"

	"gatekeeper/pkg/platform/validation"
)

// Reasons reported in a Verdict.
const (
	ReasonMissingUserAgent   = "missing_user_agent"
	ReasonUserAgentTooLong   = "user_agent_too_long"
	ReasonAttackTool         = "attack_tool"
	ReasonProbePattern       = "probe_pattern"
	ReasonTooManyHeaders     = "too_many_headers"
	ReasonForwardedChainLong = "forwarded_chain_too_long"
	ReasonRequestURITooLong  = "request_uri_too_long"
)

// Verdict is the outcome of one evaluation.
type Verdict struct {
	Suspicious bool
	Reason     string
}

var attackTools = []string{
	"sqlmap", "nikto", "nmap", "masscan", "zgrab", "wpscan", "gobuster",
	"dirbuster", "dirb", "nuclei", "acunetix", "havij", "hydra", "netsparker",
	"w3af", "openvas", "fimap", "commix", "whatweb", "feroxbuster", "ffuf",
}

var probePatterns = []string{
	"/.env", "/.git", "/.aws", "/.ssh", "/wp-admin", "/wp-login.php", "/xmlrpc.php",
	"/phpmyadmin", "/cgi-bin/", "/etc/passwd", "/proc/self", "../", "..\\",
	"<script", "javascript:", "union select", "union all select", "' or '1'='1",
	"sleep(", "benchmark(", "${jndi:", "%00",
}

// Evaluate returns the first matching abuse signal for r.
func Evaluate(r *http.Request) Verdict {
	ua := strings.TrimSpace(r.Header.Get("User-Agent"))
	if ua == "" {
		return flagged(ReasonMissingUserAgent)
	}
	if len(ua) > validation.MaxUserAgentLength {
		return flagged(ReasonUserAgentTooLong)
	}
	if isAttackTool(ua) {
		return flagged(ReasonAttackTool)
	}

	if len(r.RequestURI) > validation.MaxRequestURILength {
		return flagged(ReasonRequestURITooLong)
	}
	if len(r.Header) > validation.MaxHeaderCount {
		return flagged(ReasonTooManyHeaders)
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if len(xff) > validation.MaxXFFHeaderLength || strings.Count(xff, ",")+1 > validation.MaxForwardedHops {
			return flagged(ReasonForwardedChainLong)
		}
	}

	if hasProbePattern(r.URL) {
		return flagged(ReasonProbePattern)
	}
	return Verdict{}
}

func flagged(reason string) Verdict {
	return Verdict{Suspicious: true, Reason: reason}
}

func isAttackTool(ua string) bool {
	lower := strings.ToLower(ua)
	browser, _ := useragent.New(ua).Browser()
	browser = strings.ToLower(browser)
	for _, tool := range attackTools {
		if strings.Contains(lower, tool) || browser == tool {
			return true
		}
	}
	return false
}

// hasProbePattern checks both the raw and the percent-decoded request target.
func hasProbePattern(u *url.URL) bool {
	if u == nil {
		return false
	}
	raw := u.EscapedPath()
	if u.RawQuery != "" {
		raw += "?" + u.RawQuery
	}
	candidates := []string{strings.ToLower(raw)}
	if decoded, err := url.QueryUnescape(raw); err == nil {
		candidates = append(candidates, strings.ToLower(decoded))
	}

	for _, c := range candidates {
		for _, p := range probePatterns {
			if strings.Contains(c, p) {
				return true
			}
		}
	}
	return false
}

// ClientLabel renders a user agent as "Browser on OS" for log lines.
func ClientLabel(ua string) string {
	if ua == "" {
		return "unknown"
	}
	parsed := useragent.New(ua)
	if parsed.Bot() {
		name, _ := parsed.Browser()
		return "bot " + name
	}
	browser, _ := parsed.Browser()
	os := parsed.OS()
	if browser == "" {
		browser = "unknown browser"
	}
	if os == "" {
		os = "unknown os"
	}
	return browser + " on " + os
}
