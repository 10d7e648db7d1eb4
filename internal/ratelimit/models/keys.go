package models

import (
	"fmt"
	"strings"
)

const keyNamespace = "rl"

// WindowKey builds the storage key for one identity under one policy.
// Policies never share keys.
func WindowKey(policy, identity string) string {
	return fmt.Sprintf("%s:%s:%s", keyNamespace, sanitizeKeySegment(policy), sanitizeKeySegment(identity))
}

// ProgressiveKey builds the storage key for an identity's escalation state.
func ProgressiveKey(identity string) string {
	return fmt.Sprintf("%s:progressive:%s", keyNamespace, sanitizeKeySegment(identity))
}

// sanitizeKeySegment escapes delimiter characters so that identities containing
// ':' (IPv6 addresses, forged headers) cannot address another bucket.
//
//  1. '_' becomes '__' (escape the escape character first)
//  2. ':' becomes '_c'
func sanitizeKeySegment(s string) string {
	s = strings.ReplaceAll(s, "_", "__")
	s = strings.ReplaceAll(s, ":", "_c")
	return s
}
