package safety

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// MaxURLLength caps accepted seed URLs.
const MaxURLLength = 2048

// Blocked host errors are surfaced to the client once at stream start, so the
// messages stay user-readable rather than carrying addresses back verbatim.
var (
	ErrInvalidURL  = errors.New("URL is empty or invalid")
	ErrBlockedHost = errors.New("Blocked host (localhost/private)")
)

// blockedHosts are rejected before any DNS lookup happens.
var blockedHosts = map[string]struct{}{
	"localhost":                            {},
	"169.254.169.254":                      {},
	"metadata.google.internal":             {},
	"kubernetes.default.svc.cluster.local": {},
}

var blockedSuffixes = []string{".local", ".internal", ".test"}

// LookupFunc resolves a hostname to IPs. Overridable in tests.
type LookupFunc func(host string) ([]net.IP, error)

// Policy validates URLs against the SSRF rules before any network request is
// made to them.
type Policy struct {
	Lookup LookupFunc
}

// NewPolicy returns a Policy backed by the system resolver.
func NewPolicy() *Policy {
	return &Policy{Lookup: net.LookupIP}
}

// ValidateURL checks scheme, length, hostname blocklist, and resolved
// addresses. It returns ErrInvalidURL or ErrBlockedHost (possibly wrapped)
// when the URL must not be fetched.
func (p *Policy) ValidateURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > MaxURLLength {
		return ErrInvalidURL
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}

	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "" {
		return ErrInvalidURL
	}

	if _, ok := blockedHosts[host]; ok {
		return ErrBlockedHost
	}
	for _, suffix := range blockedSuffixes {
		if strings.HasSuffix(host, suffix) {
			return ErrBlockedHost
		}
	}

	// Literal IPs skip DNS.
	if ip := net.ParseIP(host); ip != nil {
		if isDisallowedIP(ip) {
			return ErrBlockedHost
		}
		return nil
	}

	lookup := p.Lookup
	if lookup == nil {
		lookup = net.LookupIP
	}
	ips, err := lookup(host)
	if err != nil || len(ips) == 0 {
		return fmt.Errorf("%w: hostname did not resolve", ErrInvalidURL)
	}
	for _, ip := range ips {
		if isDisallowedIP(ip) {
			return ErrBlockedHost
		}
	}

	return nil
}

// isDisallowedIP rejects loopback, private, link-local, unspecified, and
// multicast addresses for both IPv4 and IPv6.
func isDisallowedIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified() ||
		ip.IsMulticast()
}
