// Package security validates endpoints the agent talks to.
package security

import (
	"net/netip"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// ErrDisallowedURL is returned for endpoints rejected by ValidateOutboundURL.
var ErrDisallowedURL = errors.New("disallowed outbound URL")

// OutboundURLOptions configures outbound request URL validation.
type OutboundURLOptions struct {
	// AllowHTTP permits plain HTTP URLs. HTTPS is always allowed.
	AllowHTTP bool
	// AllowLocalNetworks permits loopback/private/link-local IP targets and localhost hostnames.
	AllowLocalNetworks bool
}

// ValidateOutboundURL checks a provider or channel base URL before any
// request carrying credentials is sent to it. IP literals are checked
// without DNS lookups.
func ValidateOutboundURL(rawURL string, opts OutboundURLOptions) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.Wrapf(ErrDisallowedURL, "invalid URL: %v", err)
	}

	switch parsed.Scheme {
	case "https":
	case "http":
		if !opts.AllowHTTP {
			return errors.Wrap(ErrDisallowedURL, "http scheme is not allowed")
		}
	default:
		return errors.Wrapf(ErrDisallowedURL, "unsupported URL scheme %q", parsed.Scheme)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return errors.Wrap(ErrDisallowedURL, "URL host is required")
	}

	if !opts.AllowLocalNetworks && isLocalHostname(host) {
		return errors.Wrapf(ErrDisallowedURL, "local hostname %q is not allowed", host)
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		return nil
	}
	if addr.Zone() != "" && !opts.AllowLocalNetworks {
		return errors.Wrapf(ErrDisallowedURL, "zoned IP address %q is not allowed", host)
	}
	addr = addr.Unmap()
	if addr.IsUnspecified() || addr.IsMulticast() {
		return errors.Wrapf(ErrDisallowedURL, "IP address %q is not allowed", host)
	}
	if !opts.AllowLocalNetworks && (addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast()) {
		return errors.Wrapf(ErrDisallowedURL, "local network IP %q is not allowed", host)
	}
	return nil
}

func isLocalHostname(host string) bool {
	return host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local")
}
