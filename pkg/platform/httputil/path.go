package httputil

import "strings"

// HasPathPrefix reports whether path equals prefix or continues it with a new
// segment. "/api/auth" matches "/api/auth" and "/api/auth/login", not "/api/authors".
func HasPathPrefix(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || strings.HasSuffix(prefix, "/") || path[len(prefix)] == '/'
}
