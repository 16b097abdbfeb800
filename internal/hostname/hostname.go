// Package hostname normalizes domain strings at the process boundary, before
// they reach the exact-match trusted domain store.
package hostname

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/text/unicode/norm"
)

// Normalize returns the canonical ASCII form of a hostname:
// NFC-normalized, IDNA-encoded, lowercase, without a trailing dot or port.
//
// A full URL is accepted and reduced to its host.
func Normalize(s string) (string, error) {
	h := strings.TrimSpace(s)
	if h == "" {
		return "", fmt.Errorf("empty hostname")
	}

	if strings.Contains(h, "://") {
		u, err := url.Parse(h)
		if err != nil {
			return "", fmt.Errorf("parse %q: %w", s, err)
		}
		h = u.Hostname()
	} else if i := strings.LastIndexByte(h, ':'); i > 0 && !strings.Contains(h[i+1:], ".") {
		h = h[:i]
	}

	h = strings.TrimSuffix(h, ".")
	if h == "" {
		return "", fmt.Errorf("empty hostname in %q", s)
	}

	h = norm.NFC.String(h)

	ascii, err := idna.Lookup.ToASCII(h)
	if err != nil {
		return "", fmt.Errorf("idna %q: %w", s, err)
	}

	return strings.ToLower(ascii), nil
}
