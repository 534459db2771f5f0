// Package security provides shared URL validation for the award site.
package security

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidateAPIURL checks the base URL of the award API. Only http and https
// are allowed, credentials may not be embedded, and link-local or
// unspecified addresses (cloud metadata endpoints) are rejected. Loopback
// and private addresses are fine: the API usually runs next to the site.
func ValidateAPIURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("URL must have a host")
	}
	if parsed.User != nil {
		return fmt.Errorf("URL must not contain credentials")
	}
	if parsed.RawQuery != "" || parsed.Fragment != "" {
		return fmt.Errorf("URL must not contain a query or fragment")
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return nil
	}

	// Block link-local addresses (169.254.0.0/16, fe80::/10)
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return fmt.Errorf("link-local addresses are not allowed")
	}

	// Block unspecified addresses (0.0.0.0, ::)
	if ip.IsUnspecified() {
		return fmt.Errorf("unspecified addresses are not allowed")
	}

	return nil
}

// LocalRedirect returns next when it is a path on this site and "" for
// anything that could leave it (absolute URLs, scheme-relative "//host",
// and the "/\host" form browsers treat the same way).
func LocalRedirect(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return ""
	}
	u, err := url.Parse(next)
	if err != nil || u.Host != "" || u.Scheme != "" {
		return ""
	}
	return next
}
