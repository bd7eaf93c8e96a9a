// Package userutil derives per-user names for the control endpoint and the
// single-instance lock.
package userutil

import (
	"os"
	"os/user"
	"regexp"
	"strings"
)

var invalidUsernameRune = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// SanitizeUsername normalizes username-like values used in pipe, socket and
// lock names.
func SanitizeUsername(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return invalidUsernameRune.ReplaceAllString(value, "_")
}

// lookupUser is replaced in tests.
var lookupUser = user.Current

// CurrentUsername returns the sanitized login name. USERNAME (Windows) and
// USER (unix) take precedence over the account database.
func CurrentUsername() string {
	for _, key := range []string{"USERNAME", "USER"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return SanitizeUsername(v)
		}
	}
	if current, err := lookupUser(); err == nil {
		return SanitizeUsername(current.Username)
	}
	return SanitizeUsername("")
}
