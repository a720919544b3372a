package discovery

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	robotstxt "github.com/temoto/robotstxt"

	"brandlens/internal/model"
)

// secondLevelLabels lists registry labels that sit between a hostname's root
// word and a two-letter country TLD (e.g. omv.co.uk).
var secondLevelLabels = map[string]struct{}{
	"co": {}, "com": {}, "org": {}, "net": {}, "ac": {}, "gov": {}, "edu": {},
}

// RootWord extracts the central label of a host: for www.omv.co.uk it is
// "omv". Two URLs belong to the same brand iff their root words match, which
// deliberately treats omv.at and omv.com as one site.
func RootWord(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	host = strings.TrimPrefix(host, "www.")

	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return host
	}

	idx := len(labels) - 2
	if idx > 0 && len(labels[len(labels)-1]) == 2 {
		if _, ok := secondLevelLabels[labels[idx]]; ok {
			idx--
		}
	}
	return labels[idx]
}

// SameRootWord reports whether two hosts share a root word.
func SameRootWord(a, b string) bool {
	return RootWord(a) != "" && RootWord(a) == RootWord(b)
}

// NormalizeURL collapses duplicate candidates: fragment dropped, trailing
// slash noise trimmed from non-root paths.
func NormalizeURL(u *url.URL) string {
	c := *u
	c.Fragment = ""
	if c.Path != "/" {
		c.Path = strings.TrimRight(c.Path, "/")
	}
	return c.String()
}

// sanitizeHref undoes common templating damage seen in scraped markup.
func sanitizeHref(href string) string {
	href = strings.TrimSpace(href)
	href = strings.ReplaceAll(href, `\"`, "")
	href = strings.ReplaceAll(href, `\'`, "")
	href = strings.ReplaceAll(href, `\`, "")
	href = strings.Trim(href, `"'`)
	return href
}

// HarvestFromHTML extracts same-root-word anchor candidates from page HTML,
// resolved against base and deduplicated by normalized URL.
func HarvestFromHTML(htmlStr string, base *url.URL) []model.DiscoveredLink {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{})
	links := make([]model.DiscoveredLink, 0)

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href := sanitizeHref(sel.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") ||
			strings.HasPrefix(href, "javascript:") {
			return
		}

		linkURL, err := url.Parse(href)
		if err != nil {
			return
		}
		if !linkURL.IsAbs() {
			linkURL = base.ResolveReference(linkURL)
		}
		if linkURL.Scheme != "http" && linkURL.Scheme != "https" {
			return
		}
		if !SameRootWord(base.Hostname(), linkURL.Hostname()) {
			return
		}

		normalized := NormalizeURL(linkURL)
		if _, exists := seen[normalized]; exists {
			return
		}
		seen[normalized] = struct{}{}

		links = append(links, model.DiscoveredLink{
			URL:        normalized,
			AnchorText: strings.TrimSpace(sel.Text()),
			Origin:     model.OriginHTML,
		})
	})

	return links
}

// SitemapOptions controls sitemap harvesting.
type SitemapOptions struct {
	MaxURLs       int
	RespectRobots bool
	UserAgent     string
}

// subSitemapPriority orders keywords used to choose one sub-sitemap from a
// sitemap index.
var subSitemapPriority = []string{"page", "post", "company", "about", "article"}

type sitemapIndex struct {
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

type urlSet struct {
	URLs []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

// HarvestFromSitemap fetches /sitemap.xml for the seed's host and returns
// same-root-word entries. On a sitemap index, one sub-sitemap is selected by
// keyword priority, else the first.
func HarvestFromSitemap(ctx context.Context, client *http.Client, base *url.URL, opts SitemapOptions) ([]model.DiscoveredLink, error) {
	var robotsGroup *robotstxt.Group
	if opts.RespectRobots {
		if data, err := fetchRobots(ctx, client, base, opts.UserAgent); err == nil {
			robotsGroup = data.FindGroup(opts.UserAgent)
		}
	}

	sitemapURL := &url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/sitemap.xml"}
	body, err := fetchBody(ctx, client, sitemapURL.String(), opts.UserAgent)
	if err != nil {
		return nil, err
	}

	// A sitemap index defers to exactly one sub-sitemap.
	var index sitemapIndex
	if err := xml.Unmarshal(body, &index); err == nil && len(index.Sitemaps) > 0 {
		chosen := chooseSubSitemap(index)
		body, err = fetchBody(ctx, client, chosen, opts.UserAgent)
		if err != nil {
			return nil, err
		}
	}

	var us urlSet
	if err := xml.Unmarshal(body, &us); err != nil {
		return nil, err
	}

	maxURLs := opts.MaxURLs
	if maxURLs <= 0 {
		maxURLs = 3000
	}

	seen := make(map[string]struct{})
	links := make([]model.DiscoveredLink, 0)
	for _, entry := range us.URLs {
		if len(links) >= maxURLs {
			break
		}
		u, err := url.Parse(strings.TrimSpace(entry.Loc))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		if !SameRootWord(base.Hostname(), u.Hostname()) {
			continue
		}
		if robotsGroup != nil && !robotsGroup.Test(u.Path) {
			continue
		}
		normalized := NormalizeURL(u)
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		links = append(links, model.DiscoveredLink{URL: normalized, Origin: model.OriginSitemap})
	}

	return links, nil
}

func chooseSubSitemap(index sitemapIndex) string {
	for _, keyword := range subSitemapPriority {
		for _, sm := range index.Sitemaps {
			if strings.Contains(strings.ToLower(sm.Loc), keyword) {
				return strings.TrimSpace(sm.Loc)
			}
		}
	}
	return strings.TrimSpace(index.Sitemaps[0].Loc)
}

func fetchRobots(ctx context.Context, client *http.Client, base *url.URL, userAgent string) (*robotstxt.RobotsData, error) {
	robotsURL := &url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/robots.txt"}
	body, err := fetchBody(ctx, client, robotsURL.String(), userAgent)
	if err != nil {
		return nil, err
	}
	return robotstxt.FromBytes(body)
}

func fetchBody(ctx context.Context, client *http.Client, rawURL, userAgent string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("non-200 response for " + rawURL)
	}

	return io.ReadAll(resp.Body)
}

// MergeLinks combines HTML and sitemap candidates, first occurrence wins.
func MergeLinks(groups ...[]model.DiscoveredLink) []model.DiscoveredLink {
	seen := make(map[string]struct{})
	out := make([]model.DiscoveredLink, 0)
	for _, group := range groups {
		for _, l := range group {
			if _, ok := seen[l.URL]; ok {
				continue
			}
			seen[l.URL] = struct{}{}
			out = append(out, l)
		}
	}
	return out
}

// PortalPivot returns the first scored link above the pivot threshold hosted
// on a different subdomain of the same root word, if any. Harvesting from
// that portal augments discovery; it never replaces the seed.
func PortalPivot(scored []model.ScoredLink, seed *url.URL) (string, bool) {
	const pivotScore = 25
	for _, l := range scored {
		if l.Score <= pivotScore {
			continue
		}
		u, err := url.Parse(l.URL)
		if err != nil {
			continue
		}
		if !strings.EqualFold(u.Hostname(), seed.Hostname()) && SameRootWord(u.Hostname(), seed.Hostname()) {
			return l.URL, true
		}
	}
	return "", false
}
