package oauth

import (
	"net/url"
	"strings"
)

// redirectAllowed reports whether rawURL is a safe post-login redirect
// target. Only absolute https URLs are accepted, with a plain-http
// exception for local development hosts. The URL's hostname must equal,
// or be a subdomain of, an allow-listed host or the frontend's host.
func redirectAllowed(rawURL, frontendURL string, allowedHosts []string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}

	switch u.Scheme {
	case "https":
	case "http":
		if host != "localhost" && host != "127.0.0.1" {
			return false
		}
	default:
		return false
	}

	candidates := allowedHosts
	if fu, err := url.Parse(frontendURL); err == nil && fu.Hostname() != "" {
		candidates = append(append([]string{}, allowedHosts...), fu.Hostname())
	}

	for _, allowed := range candidates {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if allowed == "" {
			continue
		}
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}
