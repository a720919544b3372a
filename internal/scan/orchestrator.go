package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"brandlens/internal/analyzer"
	"brandlens/internal/cache"
	"brandlens/internal/config"
	"brandlens/internal/discovery"
	"brandlens/internal/distill"
	"brandlens/internal/fetcher"
	"brandlens/internal/llm"
	"brandlens/internal/metrics"
	"brandlens/internal/model"
	"brandlens/internal/oplog"
	"brandlens/internal/social"
	"brandlens/internal/summary"
	"brandlens/internal/vision"
)

// fetchWorkers bounds the bulk page-fetch pool.
const fetchWorkers = 3

// Services bundles the shared handles a scan runs against. One Services value
// serves all scans; per-scan state lives on the stack of Run.
type Services struct {
	Fetcher     fetcher.Engine
	Analyzer    *analyzer.Analyzer
	Vision      *vision.Runner
	Summarizer  analyzer.Caller
	Screenshots *cache.ScreenshotStore
	Distiller   *distill.Distiller
	Social      *social.Harvester
	HTTP        *http.Client
	Ops         *oplog.Logger
	Cfg         *config.Config
	Log         *slog.Logger
}

// Run executes one scan and writes its event stream to out, closing it when
// the scan reaches a terminal event. It never panics the caller's goroutine;
// every failure path ends in a terminal error event.
func Run(ctx context.Context, svc *Services, req model.ScanRequest, out chan<- model.ScanEvent) {
	defer close(out)

	s := &scanRun{svc: svc, req: req, out: out, log: svc.Log.With("scan_id", req.ScanID)}

	outcome := "complete"
	if !s.run(ctx) {
		outcome = "error"
	}
	metrics.RecordScan(string(req.Mode), outcome)
}

type scanRun struct {
	svc *Services
	req model.ScanRequest
	out chan<- model.ScanEvent
	log *slog.Logger
}

func (s *scanRun) run(ctx context.Context) bool {
	// Phase 1: Discovery.
	s.status(ctx, "discovery", 10, "Starting page discovery")

	homepage, seedURL, ok := s.fetchHomepage(ctx)
	if !ok {
		return s.fail(ctx, "Page discovery failed - no content found")
	}

	sel := s.discoverPages(ctx, homepage, seedURL)

	// Phase 2: Content Extraction.
	s.status(ctx, "content_extraction", 35, "Extracting content from discovered pages")
	pages := s.fetchAndDistill(ctx, homepage, sel)

	socialText := s.harvestSocial(ctx, homepage.HTML)

	// Phase 3: Brand Synthesis.
	s.status(ctx, "analysis", 65, "Synthesizing brand corpus")
	corpus := distill.BuildCorpus(pages, socialText, s.svc.Cfg.Corpus.MaxChars)

	sanitized, err := analyzer.Sanitize(corpus.Text)
	if err != nil {
		return s.fail(ctx, "Not enough content found to analyze this site")
	}
	s.activity(ctx, "Corpus assembled from %d pages", corpus.PageCount)

	// Phase 4: Analysis.
	s.status(ctx, "ai_analysis", 75, "Running brand analysis")

	var results summary.Results
	if s.req.Mode == model.ModeDiagnosis {
		results = s.runKeys(ctx, model.DiagnosisKeys(), sanitized, s.emitKeyResult)
	} else {
		results = s.runKeys(ctx, model.DiscoveryTextKeys(), sanitized, s.emitDiscoveryResult)
		s.runVisionKeys(ctx, pages, sanitized, results)
	}
	if ctx.Err() != nil {
		return s.fail(ctx, "cancelled")
	}

	// Phase 5: Summary.
	s.status(ctx, "summary", 90, "Preparing summary")

	var text string
	if s.req.Mode == model.ModeDiagnosis {
		text = summary.Diagnosis(ctx, s.svc.Summarizer, results)
		s.emit(ctx, model.ScanEvent{Type: model.EventQuantSummary, Quant: ptr(summary.Quantify(results))})
	} else {
		text = summary.Discovery(results)
	}
	s.emit(ctx, model.ScanEvent{Type: model.EventSummary, Text: text})

	s.emit(ctx, model.ScanEvent{
		Type:      model.EventComplete,
		Message:   "Scan complete",
		Progress:  100,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return true
}

// fetchHomepage acquires the seed page with a screenshot and publishes the
// screenshot to the gateway store.
func (s *scanRun) fetchHomepage(ctx context.Context) (model.Page, *url.URL, bool) {
	s.activity(ctx, "Fetching homepage %s", s.req.SeedURL)

	seedURL, err := url.Parse(s.req.SeedURL)
	if err != nil {
		return model.Page{}, nil, false
	}

	res, err := s.svc.Fetcher.Fetch(ctx, s.req.SeedURL, fetcher.Options{Screenshot: true})
	if err != nil {
		s.log.Warn("homepage fetch failed", "error", err)
		return model.Page{}, nil, false
	}

	page := model.Page{URL: res.URL, HTML: res.HTML}

	if len(res.Screenshot) > 0 {
		id := uuid.NewString()
		s.svc.Screenshots.Put(id, res.Screenshot, res.ScreenshotMIME)
		page.Screenshot = &model.Screenshot{Bytes: res.Screenshot, MIME: res.ScreenshotMIME, CacheID: id}
		s.emit(ctx, model.ScanEvent{Type: model.EventScreenshotReady, ID: id, URL: "/screenshot/" + id})
	}

	return page, seedURL, true
}

// discoverPages harvests, scores, and selects the page set to crawl beyond
// the homepage.
func (s *scanRun) discoverPages(ctx context.Context, homepage model.Page, seedURL *url.URL) discovery.Selection {
	cfg := s.svc.Cfg.Discovery

	htmlLinks := discovery.HarvestFromHTML(homepage.HTML, seedURL)
	s.activity(ctx, "Found %d candidate links on homepage", len(htmlLinks))

	sitemapLinks, err := discovery.HarvestFromSitemap(ctx, s.svc.HTTP, seedURL, discovery.SitemapOptions{
		MaxURLs:       cfg.MaxSitemapURLs,
		RespectRobots: cfg.RespectRobots,
		UserAgent:     s.svc.Cfg.Fetcher.UserAgent,
	})
	if err != nil {
		s.log.Debug("sitemap harvest failed", "error", err)
	}

	scored := discovery.ScoreAll(discovery.MergeLinks(htmlLinks, sitemapLinks))

	// A strong link on another subdomain usually marks a brand portal; pull
	// its links in too before selecting.
	if pivot, ok := discovery.PortalPivot(scored, seedURL); ok {
		if res, err := s.svc.Fetcher.Fetch(ctx, pivot, fetcher.Options{}); err == nil {
			if pivotURL, perr := url.Parse(pivot); perr == nil {
				more := discovery.HarvestFromHTML(res.HTML, pivotURL)
				scored = discovery.ScoreAll(discovery.MergeLinks(htmlLinks, sitemapLinks, more))
			}
		}
	}

	sel := discovery.SelectSeeds(discovery.NormalizeURL(seedURL), scored, discovery.SelectOptions{
		MaxPages:        cfg.MaxPages,
		HighSignalSeeds: cfg.SeedHighSignalPages,
	})
	s.activity(ctx, "Selected %d pages for analysis", len(sel.Seeds))
	return sel
}

// fetchAndDistill crawls the seed pages with a small worker pool and admits
// distillates in selection order through the novelty gate, then walks the
// ranked expansion candidates one at a time until the page cap or diminishing
// returns.
func (s *scanRun) fetchAndDistill(ctx context.Context, homepage model.Page, sel discovery.Selection) []model.Page {
	maxPages := s.svc.Cfg.Discovery.MaxPages
	if maxPages <= 0 {
		maxPages = 18
	}

	type fetched struct {
		index int
		page  model.Page
		ok    bool
	}

	seeds := sel.Seeds
	results := make([]fetched, len(seeds))
	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < fetchWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				target := seeds[i]
				if target == homepage.URL || target == s.req.SeedURL {
					results[i] = fetched{index: i, page: homepage, ok: true}
					continue
				}
				res, err := s.svc.Fetcher.Fetch(ctx, target, fetcher.Options{})
				if err != nil {
					s.log.Warn("page fetch failed", "url", target, "error", err)
					results[i] = fetched{index: i}
					continue
				}
				results[i] = fetched{index: i, page: model.Page{URL: res.URL, HTML: res.HTML}, ok: true}
			}
		}()
	}

	for i := range seeds {
		select {
		case jobs <- i:
		case <-ctx.Done():
		}
	}
	close(jobs)
	wg.Wait()

	novelty := discovery.NewNoveltyTracker(s.svc.Cfg.Discovery.NoveltyThreshold)
	var pages []model.Page
	stopped := false

	for _, f := range results {
		if !f.ok {
			continue
		}
		f.page.Distilled = s.svc.Distiller.Page(f.page.URL, f.page.HTML)
		if f.page.Distilled == "" {
			continue
		}

		// The homepage always makes the corpus; every later page must add
		// enough new text to earn its slot.
		if len(pages) == 0 && f.page.URL == homepage.URL {
			_, _ = novelty.Admit(f.page.Distilled)
			pages = append(pages, f.page)
			continue
		}
		accepted, stop := novelty.Admit(f.page.Distilled)
		if accepted {
			pages = append(pages, f.page)
			s.activity(ctx, "Extracted %s", f.page.URL)
		}
		if stop {
			stopped = true
			break
		}
	}

	for _, target := range sel.Expansion {
		if stopped || len(pages) >= maxPages || ctx.Err() != nil {
			break
		}
		res, err := s.svc.Fetcher.Fetch(ctx, target, fetcher.Options{})
		if err != nil {
			s.log.Warn("expansion fetch failed", "url", target, "error", err)
			continue
		}
		page := model.Page{URL: res.URL, HTML: res.HTML}
		page.Distilled = s.svc.Distiller.Page(page.URL, page.HTML)
		if page.Distilled == "" {
			continue
		}
		accepted, stop := novelty.Admit(page.Distilled)
		if accepted {
			pages = append(pages, page)
			s.activity(ctx, "Extracted %s", page.URL)
		}
		if stop {
			stopped = true
		}
	}
	if stopped {
		s.activity(ctx, "Stopping expansion, content is repeating")
	}
	return pages
}

func (s *scanRun) harvestSocial(ctx context.Context, homepageHTML string) string {
	if s.svc.Social == nil {
		return ""
	}
	links := social.ProfileLinks(homepageHTML)
	if len(links) == 0 {
		return ""
	}
	s.activity(ctx, "Harvesting %d social profiles", len(links))
	return s.svc.Social.Harvest(ctx, links)
}

// runKeys executes a set of analysis keys concurrently and emits each result
// the moment it completes. Failed keys emit non-terminal error events.
func (s *scanRun) runKeys(ctx context.Context, keys []model.AnalysisKey, text string, emit func(context.Context, model.AnalysisResult)) summary.Results {
	type keyed struct {
		res model.AnalysisResult
		key model.AnalysisKey
		err error
	}

	done := make(chan keyed, len(keys))
	for _, key := range keys {
		go func(key model.AnalysisKey) {
			res, err := s.svc.Analyzer.Run(ctx, s.req.ScanID, key, text, s.req.PreferredLang, nil)
			done <- keyed{res: res, key: key, err: err}
		}(key)
	}

	results := make(summary.Results, len(keys))
	for range keys {
		k := <-done
		if k.err != nil {
			s.emit(ctx, model.ScanEvent{
				Type:    model.EventError,
				Key:     k.key,
				Message: friendlyError(k.err),
			})
			continue
		}
		results[k.key] = k.res
		emit(ctx, k.res)
	}
	return results
}

// runVisionKeys drives brand_elements and visual_text_alignment after the
// textual discovery keys, reusing their payloads as context.
func (s *scanRun) runVisionKeys(ctx context.Context, pages []model.Page, text string, results summary.Results) {
	var shots []*model.Screenshot
	for _, p := range pages {
		if p.Screenshot != nil {
			shots = append(shots, p.Screenshot)
		}
	}

	elements, err := s.svc.Vision.BrandElements(ctx, s.req.ScanID, shots, text, s.req.PreferredLang)
	if err != nil {
		if err != vision.ErrNoUsableScreenshot {
			s.emit(ctx, model.ScanEvent{Type: model.EventError, Key: model.KeyBrandElements, Message: friendlyError(err)})
		}
		return
	}
	results[model.KeyBrandElements] = elements
	s.emitDiscoveryResult(ctx, elements)

	themes, ok := results[model.KeyPositioningThemes]
	if !ok {
		return
	}
	alignment, err := s.svc.Vision.Alignment(ctx, s.req.ScanID, themes.Payload, elements.Payload, s.req.PreferredLang)
	if err != nil {
		s.emit(ctx, model.ScanEvent{Type: model.EventError, Key: model.KeyVisualTextAlignment, Message: friendlyError(err)})
		return
	}
	results[model.KeyVisualTextAlignment] = alignment
	s.emitDiscoveryResult(ctx, alignment)
}

func (s *scanRun) emitDiscoveryResult(ctx context.Context, res model.AnalysisResult) {
	s.emit(ctx, model.ScanEvent{
		Type:     model.EventDiscoveryResult,
		Key:      res.Key,
		Analysis: res.Payload,
		Metrics: &model.ResultMetrics{
			LatencyMs:  res.Metrics.LatencyMs,
			TokenUsage: res.Metrics.TokenUsage,
			Model:      res.Metrics.Model,
			CacheHit:   res.Metrics.CacheHit,
		},
	})
}

func (s *scanRun) emitKeyResult(ctx context.Context, res model.AnalysisResult) {
	var parsed struct {
		Score          int    `json:"score"`
		Analysis       string `json:"analysis"`
		Evidence       string `json:"evidence"`
		Confidence     int    `json:"confidence"`
		Recommendation string `json:"recommendation"`
	}
	if err := json.Unmarshal(res.Payload, &parsed); err != nil {
		s.emit(ctx, model.ScanEvent{Type: model.EventError, Key: res.Key, Message: "Result could not be decoded"})
		return
	}
	// The analysis field carries the narrative text, not the whole payload.
	analysis, _ := json.Marshal(parsed.Analysis)
	s.emit(ctx, model.ScanEvent{
		Type:           model.EventKeyResult,
		Key:            res.Key,
		Score:          &parsed.Score,
		Analysis:       analysis,
		Evidence:       parsed.Evidence,
		Confidence:     &parsed.Confidence,
		Recommendation: parsed.Recommendation,
	})
}

func (s *scanRun) status(ctx context.Context, phase string, progress int, message string) {
	s.emit(ctx, model.ScanEvent{Type: model.EventStatus, Phase: phase, Progress: progress, Message: message})
}

func (s *scanRun) activity(ctx context.Context, format string, args ...any) {
	s.emit(ctx, model.ScanEvent{
		Type:      model.EventActivity,
		Message:   fmt.Sprintf(format, args...),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// fail emits the terminal error event and reports scan failure.
func (s *scanRun) fail(ctx context.Context, message string) bool {
	if ctx.Err() != nil {
		message = "cancelled"
	}
	s.emit(context.WithoutCancel(ctx), model.ScanEvent{Type: model.EventError, Message: message})
	return false
}

// emit writes one event to the stream unless the scan is cancelled. The
// channel is owned by the gateway and assumed buffered; terminal events must
// always get through, so they use a detached context upstream.
func (s *scanRun) emit(ctx context.Context, ev model.ScanEvent) {
	select {
	case s.out <- ev:
	case <-ctx.Done():
	}
}

// friendlyError maps internal failures to the categories shown to clients.
func friendlyError(err error) string {
	switch {
	case err == nil:
		return ""
	case err == analyzer.ErrSchedulerExhausted:
		return "Analysis is rate limited right now, please retry shortly"
	case err == llm.ErrAllModelsFailed:
		return "The analysis model is unavailable"
	default:
		return "Analysis failed: " + err.Error()
	}
}

func ptr[T any](v T) *T { return &v }
