package discovery

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"brandlens/internal/model"
)

func TestRootWord(t *testing.T) {
	cases := map[string]string{
		"www.omv.com":       "omv",
		"reports.omv.at":    "omv",
		"example.co.uk":     "example",
		"www.example.co.uk": "example",
		"blog.example.com":  "example",
		"localhost":         "localhost",
	}
	for host, want := range cases {
		if got := RootWord(host); got != want {
			t.Fatalf("RootWord(%q) = %q, want %q", host, got, want)
		}
	}

	if !SameRootWord("www.omv.com", "reports.omv.at") {
		t.Fatalf("omv.com and omv.at should share a root word")
	}
	if SameRootWord("omv.com", "evil.com") {
		t.Fatalf("different root words must not match")
	}
}

func TestScore_TiersDoNotStack(t *testing.T) {
	// "brand" (critical) and "about" (high) in the same URL: only the top
	// tier counts, plus the shallow-path bonus.
	got := Score("https://x.com/about/brand", "")
	if got != 35 {
		t.Fatalf("expected 35 (critical + shallow), got %d", got)
	}
}

func TestScore_ResearchIsNotSearch(t *testing.T) {
	if Score("https://x.com/research", "") < 0 {
		t.Fatalf("'research' must not trip the search penalty")
	}
	if Score("https://x.com/search?q=brand", "") > 0 {
		t.Fatalf("search result pages must score negatively")
	}
}

func TestScore_LanguageSwitcherPenalty(t *testing.T) {
	plain := Score("https://x.com/fr", "")
	switcher := Score("https://x.com/fr", "Français")
	if switcher != plain-20 {
		t.Fatalf("generic language anchor should cost 20, got %d vs %d", switcher, plain)
	}
}

func TestScoreAll_Ordering(t *testing.T) {
	links := []model.DiscoveredLink{
		{URL: "https://x.com/legal/terms"},
		{URL: "https://x.com/about"},
		{URL: "https://x.com/search?q=hi"},
		{URL: "https://x.com/company/about/team/deep"},
	}
	scored := ScoreAll(links)

	for _, l := range scored {
		if strings.Contains(l.URL, "search?") {
			t.Fatalf("vetoed link survived ranking: %s", l.URL)
		}
	}
	if scored[0].URL != "https://x.com/about" {
		t.Fatalf("expected /about first, got %s", scored[0].URL)
	}
}

func TestHarvestFromHTML(t *testing.T) {
	base, _ := url.Parse("https://www.acme.com/")
	html := `<html><body>
		<a href="/about/">About us</a>
		<a href="/about#team">About anchor dupe</a>
		<a href="https://shop.acme.com/products">Shop</a>
		<a href="https://other.com/page">External</a>
		<a href="mailto:hi@acme.com">Mail</a>
		<a href='\"/products\"'>Escaped</a>
	</body></html>`

	links := HarvestFromHTML(html, base)

	urls := make(map[string]bool)
	for _, l := range links {
		urls[l.URL] = true
	}
	if !urls["https://www.acme.com/about"] {
		t.Fatalf("relative link missing or not normalized: %v", urls)
	}
	if !urls["https://shop.acme.com/products"] {
		t.Fatalf("same-root-word subdomain should be kept")
	}
	if urls["https://other.com/page"] {
		t.Fatalf("foreign domain must be dropped")
	}
	if !urls["https://www.acme.com/products"] {
		t.Fatalf("escaped-quote href should be sanitized")
	}
	if len(links) != 3 {
		t.Fatalf("expected 3 links after dedupe, got %d", len(links))
	}
}

func TestHarvestFromSitemap_IndexPriority(t *testing.T) {
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<?xml version="1.0"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>` + srv.URL + `/product-sitemap.xml</loc></sitemap>
  <sitemap><loc>` + srv.URL + `/page-sitemap.xml</loc></sitemap>
</sitemapindex>`))
	})
	mux.HandleFunc("/page-sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<?xml version="1.0"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>` + srv.URL + `/about</loc></url>
  <url><loc>https://other.com/x</loc></url>
</urlset>`))
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	base, _ := url.Parse(srv.URL + "/")
	links, err := HarvestFromSitemap(context.Background(), srv.Client(), base, SitemapOptions{MaxURLs: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("expected 1 same-host link from the page sitemap, got %d", len(links))
	}
	if !strings.HasSuffix(links[0].URL, "/about") {
		t.Fatalf("expected /about from page-sitemap, got %s", links[0].URL)
	}
	if links[0].Origin != model.OriginSitemap {
		t.Fatalf("origin should be sitemap")
	}
}

func TestSelectSeeds(t *testing.T) {
	scored := []model.ScoredLink{
		{DiscoveredLink: model.DiscoveredLink{URL: "https://x.com/about"}, Score: 35},
		{DiscoveredLink: model.DiscoveredLink{URL: "https://x.com/fr/about"}, Score: 30},
		{DiscoveredLink: model.DiscoveredLink{URL: "https://x.com/brand-overview.pdf"}, Score: -70},
		{DiscoveredLink: model.DiscoveredLink{URL: "https://x.com/products"}, Score: 35},
		{DiscoveredLink: model.DiscoveredLink{URL: "https://x.com/random"}, Score: 5},
	}

	sel := SelectSeeds("https://x.com", scored, SelectOptions{MaxPages: 18, HighSignalSeeds: 12})

	if sel.Seeds[0] != "https://x.com" {
		t.Fatalf("homepage must come first")
	}
	joined := strings.Join(sel.Seeds, " ")
	if strings.Contains(joined, "/fr/about") {
		t.Fatalf("locale variants must be excluded: %v", sel.Seeds)
	}
	if !strings.Contains(joined, "brand-overview.pdf") {
		t.Fatalf("one qualifying PDF should be admitted: %v", sel.Seeds)
	}
	if strings.Contains(joined, "/random") {
		t.Fatalf("non-high-signal paths must be excluded: %v", sel.Seeds)
	}
	if len(sel.Expansion) != 1 || sel.Expansion[0] != "https://x.com/random" {
		t.Fatalf("ranked non-seed candidates must queue for expansion: %v", sel.Expansion)
	}
}

func TestSelectSeeds_ExpansionKeepsRankOrder(t *testing.T) {
	scored := []model.ScoredLink{
		{DiscoveredLink: model.DiscoveredLink{URL: "https://x.com/about"}, Score: 35},
		{DiscoveredLink: model.DiscoveredLink{URL: "https://x.com/research"}, Score: 15},
		{DiscoveredLink: model.DiscoveredLink{URL: "https://x.com/blog"}, Score: 5},
		{DiscoveredLink: model.DiscoveredLink{URL: "https://x.com/de/blog"}, Score: 5},
		{DiscoveredLink: model.DiscoveredLink{URL: "https://x.com/junk.pdf"}, Score: 3},
	}

	sel := SelectSeeds("https://x.com", scored, SelectOptions{MaxPages: 18, HighSignalSeeds: 12})

	want := []string{"https://x.com/research", "https://x.com/blog"}
	if strings.Join(sel.Expansion, " ") != strings.Join(want, " ") {
		t.Fatalf("expansion order %v, want %v", sel.Expansion, want)
	}
}

func TestNoveltyTracker(t *testing.T) {
	n := NewNoveltyTracker(0.12)

	first := strings.Repeat("the quick brown fox jumps over the lazy dog ", 20)
	if accepted, _ := n.Admit(first); !accepted {
		t.Fatalf("first page is always novel")
	}
	if accepted, _ := n.Admit(first); accepted {
		t.Fatalf("an identical page must be rejected as duplicate")
	}

	other := strings.Repeat("completely different corporate strategy text block ", 20)
	if accepted, _ := n.Admit(other); !accepted {
		t.Fatalf("genuinely new text should be admitted")
	}
}

func TestNoveltyTracker_StopRule(t *testing.T) {
	// Candidates all above the threshold must never trip the stop rule, no
	// matter how close to it they sit.
	n := NewNoveltyTracker(0.12)
	page := strings.Repeat("shared corporate boilerplate repeated on every page here ", 30)
	if _, stop := n.Admit(page); stop {
		t.Fatalf("first candidate cannot stop expansion")
	}
	for i := 0; i < 4; i++ {
		fresh := strings.Repeat(fmt.Sprintf("distinct section number %d with its own wording entirely ", i), 30)
		novelty := n.Novelty(fresh)
		if novelty < 0.12 {
			t.Fatalf("fixture page %d not novel enough to exercise the rule: %f", i, novelty)
		}
		if _, stop := n.Admit(fresh); stop {
			t.Fatalf("candidates above the threshold stopped expansion at page %d", i)
		}
	}

	// Three consecutive near-duplicates push the trailing mean under the
	// threshold even though none of them is accepted.
	var stopped bool
	for i := 0; i < 3; i++ {
		accepted, stop := n.Admit(page)
		if i > 0 && accepted {
			t.Fatalf("duplicate page accepted on pass %d", i)
		}
		stopped = stop
	}
	if !stopped {
		t.Fatal("repeating candidates must trigger the diminishing-returns stop")
	}
}

func TestPortalPivot(t *testing.T) {
	seed, _ := url.Parse("https://www.acme.com")
	scored := []model.ScoredLink{
		{DiscoveredLink: model.DiscoveredLink{URL: "https://www.acme.com/about"}, Score: 35},
		{DiscoveredLink: model.DiscoveredLink{URL: "https://global.acme.com/company"}, Score: 30},
	}
	pivot, ok := PortalPivot(scored, seed)
	if !ok || pivot != "https://global.acme.com/company" {
		t.Fatalf("expected subdomain pivot, got %q %v", pivot, ok)
	}
}
