package config

import (
	"net/url"
	"strings"
)

// RedactURL replaces the password in a database URL with "***" so it can be
// printed or logged. SQLite paths carry no credentials and pass through, as
// does anything unparseable or without a password.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}

	if _, hasPassword := u.User.Password(); !hasPassword {
		return raw
	}

	// Splice the raw string rather than re-encoding u, so the rest of the
	// URL prints exactly as configured. Like url.Parse, the userinfo ends at
	// the last "@" of the authority.
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return raw
	}

	authority := rest
	if end := strings.IndexAny(rest, "/?#"); end >= 0 {
		authority = rest[:end]
	}

	at := strings.LastIndex(authority, "@")
	if at < 0 {
		return raw
	}

	user, _, _ := strings.Cut(authority[:at], ":")

	return scheme + "://" + user + ":***" + rest[at:]
}
