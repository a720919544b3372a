package safety

import (
	"fmt"
	"net/http"
	"time"
)

// checkedTransport validates every outgoing request URL against the policy,
// including redirect hops, before handing it to the underlying transport.
type checkedTransport struct {
	policy *Policy
	next   http.RoundTripper
}

func (t *checkedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.policy.ValidateURL(req.URL.String()); err != nil {
		return nil, fmt.Errorf("request blocked: %w", err)
	}
	return t.next.RoundTrip(req)
}

// HTTPClient returns a client whose requests are validated by the policy.
// Used for sitemap and robots.txt fetches, which follow server-controlled
// URLs.
func (p *Policy) HTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: &checkedTransport{policy: p, next: http.DefaultTransport},
	}
}
