package fetcher

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// RodFetcher drives a real browser (via rod) to render JS-heavy pages that
// the managed scraper could not handle.
type RodFetcher struct {
	BrowserURL string
	Timeout    time.Duration
}

func NewRodFetcher(browserURL string, timeout time.Duration) *RodFetcher {
	return &RodFetcher{BrowserURL: browserURL, Timeout: timeout}
}

// userAgents is a small rotation of common desktop agents.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
}

// consentLabels is a small localized label set used by the consent dismissal
// pass. Matching is case-insensitive on trimmed button text.
var consentLabels = []string{
	"accept", "accept all", "agree", "i agree", "allow all", "got it", "ok",
	"akzeptieren", "alle akzeptieren", "zustimmen",
	"accepter", "tout accepter",
	"aceptar", "aceptar todo",
	"accetta", "accetta tutto",
}

const (
	scrollStepPx     = 800
	maxScrollSteps   = 10
	readinessChecks  = 10
	readinessBackoff = 500 * time.Millisecond
	idleFallbackCap  = 5 * time.Second
)

func (r *RodFetcher) Fetch(ctx context.Context, url string, opts Options) (*Result, error) {
	ctx, cancel := withTimeout(ctx, r.Timeout)
	defer cancel()

	browser := rod.New().Context(ctx).Timeout(r.Timeout)
	if r.BrowserURL != "" {
		browser = browser.ControlURL(r.BrowserURL)
	}
	if err := browser.Connect(); err != nil {
		return nil, err
	}
	defer browser.MustClose()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, err
	}
	defer page.MustClose()

	ua := userAgents[rand.Intn(len(userAgents))]
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua}); err != nil {
		return nil, err
	}

	if err := page.Navigate(url); err != nil {
		return nil, err
	}
	if err := page.WaitLoad(); err != nil {
		return nil, err
	}

	r.dismissConsent(page)
	r.scrollThrough(page)

	if !r.waitReady(ctx, page) {
		// Strict readiness timed out; settle for a short network-idle window.
		idleCtx, idleCancel := context.WithTimeout(ctx, idleFallbackCap)
		wait := page.Context(idleCtx).WaitRequestIdle(300*time.Millisecond, nil, nil, nil)
		wait()
		idleCancel()
	}

	htmlStr, err := page.HTML()
	if err != nil {
		return nil, err
	}
	if !looksLikeHTML(htmlStr) {
		return nil, errNonHTML
	}

	res := &Result{URL: url, HTML: htmlStr, Engine: "browser"}

	if opts.Screenshot {
		quality := 70
		shot, err := page.Screenshot(true, &proto.PageCaptureScreenshot{
			Format:  proto.PageCaptureScreenshotFormatJpeg,
			Quality: &quality,
		})
		if err == nil && len(shot) > 0 {
			res.Screenshot = shot
			res.ScreenshotMIME = "image/jpeg"
		}
	}

	return res, nil
}

// dismissConsent clicks the first visible button whose label matches the
// localized consent set. Cookie banners otherwise occlude screenshots and
// pollute the distillate.
func (r *RodFetcher) dismissConsent(page *rod.Page) {
	labels := jsStringArray(consentLabels)
	js := fmt.Sprintf(`() => {
		const labels = %s;
		const candidates = document.querySelectorAll('button, [role="button"], input[type="button"], a');
		for (const el of candidates) {
			const text = (el.innerText || el.value || '').trim().toLowerCase();
			if (text && labels.includes(text)) {
				el.click();
				return true;
			}
		}
		return false;
	}`, labels)
	_, _ = page.Eval(js)
}

// scrollThrough walks down the page in fixed steps so lazy-loaded sections
// render before the snapshot.
func (r *RodFetcher) scrollThrough(page *rod.Page) {
	for i := 0; i < maxScrollSteps; i++ {
		if err := page.Mouse.Scroll(0, scrollStepPx, 1); err != nil {
			return
		}
		time.Sleep(150 * time.Millisecond)

		res, err := page.Eval(`() => window.innerHeight + window.scrollY >= document.body.scrollHeight`)
		if err == nil && res.Value.Bool() {
			break
		}
	}
	_, _ = page.Eval(`() => window.scrollTo(0, 0)`)
}

// waitReady polls the strict readiness predicate: every image decoded with a
// real width, fonts loaded, and no skeleton placeholders left in the DOM.
func (r *RodFetcher) waitReady(ctx context.Context, page *rod.Page) bool {
	const js = `() => {
		const images = Array.from(document.images);
		const imagesDone = images.every(img => img.complete && img.naturalWidth > 0);
		const fontsDone = document.fonts ? document.fonts.status === 'loaded' : true;
		const skeletons = document.querySelectorAll('[class*="skeleton"], [data-skeleton], [aria-busy="true"]');
		return imagesDone && fontsDone && skeletons.length === 0;
	}`

	for i := 0; i < readinessChecks; i++ {
		select {
		case <-ctx.Done():
			return false
		default:
		}

		res, err := page.Eval(js)
		if err == nil && res.Value.Bool() {
			return true
		}
		time.Sleep(readinessBackoff)
	}
	return false
}

// jsStringArray renders a Go string slice as a JS array literal.
func jsStringArray(items []string) string {
	out := "["
	for i, s := range items {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%q", s)
	}
	return out + "]"
}
