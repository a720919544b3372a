package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"brandlens/internal/metrics"
)

// Options control a single fetch.
type Options struct {
	// Screenshot requests a full-page capture alongside the HTML.
	Screenshot bool
}

// Result is the core fetch output independent of the acquiring engine.
type Result struct {
	URL    string
	HTML   string
	Engine string

	// Screenshot bytes plus MIME, present only when requested and captured.
	Screenshot     []byte
	ScreenshotMIME string
}

// Engine acquires rendered HTML (and optionally a screenshot) for a URL.
type Engine interface {
	Fetch(ctx context.Context, url string, opts Options) (*Result, error)
}

// ErrUnavailable is returned when every strategy failed for a URL. Callers
// treat per-URL unavailability as a warning, not a fatal error.
var ErrUnavailable = errors.New("fetcher: content unavailable")

// errNonHTML marks a transport success whose body is not an HTML document.
var errNonHTML = errors.New("fetcher: response body is not HTML")

// looksLikeHTML reports whether the body plausibly starts an HTML document.
// Partial or non-HTML bodies must never be claimed as complete pages.
func looksLikeHTML(body string) bool {
	trimmed := strings.TrimLeft(body, " \t\r\n\uFEFF")
	return strings.HasPrefix(trimmed, "<")
}

// Cascade tries the managed scraper first and falls back to the headless
// browser engine. A browser crash is retried once.
type Cascade struct {
	Scraper Engine
	Browser Engine
}

// NewCascade wires the two-stage fallback. Either stage may be nil when the
// corresponding engine is not configured.
func NewCascade(scraper, browser Engine) *Cascade {
	return &Cascade{Scraper: scraper, Browser: browser}
}

func (c *Cascade) Fetch(ctx context.Context, url string, opts Options) (*Result, error) {
	var firstErr error

	if c.Scraper != nil {
		res, err := c.Scraper.Fetch(ctx, url, opts)
		if err == nil {
			metrics.RecordFetch("scraper", true)
			return res, nil
		}
		metrics.RecordFetch("scraper", false)
		firstErr = err
	}

	if c.Browser != nil {
		res, err := c.Browser.Fetch(ctx, url, opts)
		if err != nil {
			// One retry on browser crash; other failures are final.
			if isBrowserCrash(err) {
				res, err = c.Browser.Fetch(ctx, url, opts)
			}
		}
		if err == nil {
			metrics.RecordFetch("browser", true)
			return res, nil
		}
		metrics.RecordFetch("browser", false)
		if firstErr == nil {
			firstErr = err
		}
	}

	if firstErr == nil {
		firstErr = errors.New("no fetch engine configured")
	}
	return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, url, firstErr)
}

func isBrowserCrash(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "crash") || strings.Contains(msg, "target closed") ||
		strings.Contains(msg, "websocket: close")
}

// withTimeout applies a per-call wall-clock bound on top of the caller's
// context.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
