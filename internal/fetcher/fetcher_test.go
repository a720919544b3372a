package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeEngine struct {
	res   *Result
	err   error
	calls int
}

func (f *fakeEngine) Fetch(_ context.Context, url string, _ Options) (*Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := *f.res
	out.URL = url
	return &out, nil
}

func TestCascade_PrefersScraper(t *testing.T) {
	scraper := &fakeEngine{res: &Result{HTML: "<html></html>", Engine: "scraper"}}
	browser := &fakeEngine{res: &Result{HTML: "<html></html>", Engine: "browser"}}
	c := NewCascade(scraper, browser)

	res, err := c.Fetch(context.Background(), "https://example.com", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Engine != "scraper" {
		t.Fatalf("expected scraper engine, got %s", res.Engine)
	}
	if browser.calls != 0 {
		t.Fatalf("browser should not have been called")
	}
}

func TestCascade_FallsBackToBrowser(t *testing.T) {
	scraper := &fakeEngine{err: errNonHTML}
	browser := &fakeEngine{res: &Result{HTML: "<html></html>", Engine: "browser"}}
	c := NewCascade(scraper, browser)

	res, err := c.Fetch(context.Background(), "https://example.com", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Engine != "browser" {
		t.Fatalf("expected browser engine, got %s", res.Engine)
	}
}

func TestCascade_RetriesOnceOnBrowserCrash(t *testing.T) {
	scraper := &fakeEngine{err: errors.New("timeout")}
	browser := &fakeEngine{err: errors.New("browser crash: target closed")}
	c := NewCascade(scraper, browser)

	_, err := c.Fetch(context.Background(), "https://example.com", Options{})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if browser.calls != 2 {
		t.Fatalf("expected one retry after crash, got %d calls", browser.calls)
	}
}

func TestCascade_BothFailReturnsUnavailable(t *testing.T) {
	c := NewCascade(&fakeEngine{err: errNonHTML}, &fakeEngine{err: errors.New("connect refused")})
	_, err := c.Fetch(context.Background(), "https://example.com", Options{})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestLooksLikeHTML(t *testing.T) {
	if !looksLikeHTML("  \n<!DOCTYPE html><html>") {
		t.Fatalf("doctype body should look like HTML")
	}
	if looksLikeHTML(`{"error": "blocked"}`) {
		t.Fatalf("JSON body must not be treated as HTML")
	}
}

func TestManagedScraper_RejectsNonHTMLBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"html": "Access denied", "status": 200}`))
	}))
	defer srv.Close()

	m := NewManagedScraper(srv.URL, "key", "us", 2*time.Second)
	_, err := m.Fetch(context.Background(), "https://example.com", Options{})
	if !errors.Is(err, errNonHTML) {
		t.Fatalf("expected errNonHTML, got %v", err)
	}
}

func TestManagedScraper_DownloadsScreenshot(t *testing.T) {
	png := append([]byte("\x89PNG\r\n\x1a\n"), []byte("imagedata")...)

	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/v1/scrape", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"html": "<html><body>hi</body></html>", "screenshot_url": "` + srv.URL + `/shot.png", "status": 200}`))
	})
	mux.HandleFunc("/shot.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	m := NewManagedScraper(srv.URL, "key", "", 2*time.Second)
	res, err := m.Fetch(context.Background(), "https://example.com", Options{Screenshot: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ScreenshotMIME != "image/png" {
		t.Fatalf("expected png mime, got %q", res.ScreenshotMIME)
	}
	if len(res.Screenshot) != len(png) {
		t.Fatalf("screenshot bytes truncated: %d != %d", len(res.Screenshot), len(png))
	}
}
