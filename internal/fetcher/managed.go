package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ManagedScraper calls an external rendering service: JS rendering on,
// anti-bot measures enabled, auto-scroll, residential proxy, configurable
// country. The service can capture a full-page screenshot in the same call
// and returns a URL to download it from.
type ManagedScraper struct {
	baseURL string
	apiKey  string
	country string
	timeout time.Duration
	http    *http.Client
}

func NewManagedScraper(baseURL, apiKey, country string, timeout time.Duration) *ManagedScraper {
	return &ManagedScraper{
		baseURL: baseURL,
		apiKey:  apiKey,
		country: country,
		timeout: timeout,
		http:    &http.Client{Timeout: timeout},
	}
}

// scrapeRequest is the service's job payload. Anchor selectors are awaited so
// JS-heavy pages settle before the DOM snapshot is taken.
type scrapeRequest struct {
	URL            string   `json:"url"`
	RenderJS       bool     `json:"render_js"`
	AntiBot        bool     `json:"anti_bot"`
	AutoScroll     bool     `json:"auto_scroll"`
	WaitForCSS     []string `json:"wait_for_css,omitempty"`
	PremiumProxy   bool     `json:"premium_proxy"`
	CountryCode    string   `json:"country_code,omitempty"`
	FullPageShot   bool     `json:"screenshot_full_page,omitempty"`
	ScreenshotOnly bool     `json:"screenshot_only,omitempty"`
}

type scrapeResponse struct {
	HTML          string `json:"html"`
	ScreenshotURL string `json:"screenshot_url,omitempty"`
	Status        int    `json:"status"`
	Error         string `json:"error,omitempty"`
}

func (m *ManagedScraper) Fetch(ctx context.Context, url string, opts Options) (*Result, error) {
	ctx, cancel := withTimeout(ctx, m.timeout)
	defer cancel()

	body := scrapeRequest{
		URL:          url,
		RenderJS:     true,
		AntiBot:      true,
		AutoScroll:   true,
		WaitForCSS:   []string{"main", "article", "body"},
		PremiumProxy: true,
		CountryCode:  m.country,
		FullPageShot: opts.Screenshot,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/v1/scrape", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("managed scraper returned status %d", resp.StatusCode)
	}

	var parsed scrapeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	if parsed.Error != "" {
		return nil, errors.New("managed scraper: " + parsed.Error)
	}
	if !looksLikeHTML(parsed.HTML) {
		return nil, errNonHTML
	}

	res := &Result{URL: url, HTML: parsed.HTML, Engine: "scraper"}

	if opts.Screenshot && parsed.ScreenshotURL != "" {
		shot, mime, err := m.download(ctx, parsed.ScreenshotURL)
		if err == nil {
			res.Screenshot = shot
			res.ScreenshotMIME = mime
		}
		// A missing screenshot degrades the scan, it does not fail the fetch.
	}

	return res, nil
}

// download retrieves the captured screenshot bytes from the service.
func (m *ManagedScraper) download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("screenshot download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}

	mime := resp.Header.Get("Content-Type")
	if mime != "image/png" && mime != "image/jpeg" {
		mime = sniffImageMIME(data)
	}

	return data, mime, nil
}

// sniffImageMIME distinguishes the two supported screenshot formats.
func sniffImageMIME(data []byte) string {
	if len(data) >= 8 && bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")) {
		return "image/png"
	}
	return "image/jpeg"
}
