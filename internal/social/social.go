package social

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"brandlens/internal/fetcher"
)

// Platform identifies one supported social network.
type Platform string

const (
	PlatformTwitter   Platform = "twitter"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
	PlatformYouTube   Platform = "youtube"
)

type platformRule struct {
	name     Platform
	hrefRe   *regexp.Regexp
	keyword  *regexp.Regexp
	sharerRe *regexp.Regexp
}

var platformRules = []platformRule{
	{
		name:     PlatformTwitter,
		hrefRe:   regexp.MustCompile(`(?i)(twitter\.com|//x\.com|\.x\.com)`),
		keyword:  regexp.MustCompile(`(?i)\b(twitter|x)\b`),
		sharerRe: regexp.MustCompile(`(?i)(intent/|/share)`),
	},
	{
		name:     PlatformLinkedIn,
		hrefRe:   regexp.MustCompile(`(?i)linkedin\.com`),
		keyword:  regexp.MustCompile(`(?i)linked\s?in`),
		sharerRe: regexp.MustCompile(`(?i)(shareArticle|/sharing/)`),
	},
	{
		name:     PlatformFacebook,
		hrefRe:   regexp.MustCompile(`(?i)(facebook\.com|fb\.com)`),
		keyword:  regexp.MustCompile(`(?i)facebook`),
		sharerRe: regexp.MustCompile(`(?i)(sharer|/share)`),
	},
	{
		name:     PlatformInstagram,
		hrefRe:   regexp.MustCompile(`(?i)instagram\.com`),
		keyword:  regexp.MustCompile(`(?i)instagram`),
		sharerRe: regexp.MustCompile(`(?i)/share`),
	},
	{
		name:     PlatformYouTube,
		hrefRe:   regexp.MustCompile(`(?i)(youtube\.com|youtu\.be)`),
		keyword:  regexp.MustCompile(`(?i)you\s?tube`),
		sharerRe: regexp.MustCompile(`(?i)/share`),
	},
}

// socialContainerRe matches class names of DOM containers where profile links
// usually live. Links inside such containers win over loose body links.
var socialContainerRe = regexp.MustCompile(`(?i)(social|footer|header|contact|follow|icons|menu)`)

const maxTextPerPlatform = 2048

type candidate struct {
	url         string
	inContainer bool
}

// ProfileLinks inspects homepage HTML and returns the single best profile URL
// per detected platform. Best means: inside a social-looking container first,
// then shortest URL; sharer and intent links never qualify.
func ProfileLinks(htmlStr string) map[Platform]string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return nil
	}

	found := make(map[Platform][]candidate)

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href := strings.TrimSpace(sel.AttrOr("href", ""))
		if href == "" || !strings.Contains(href, "http") {
			return
		}

		hints := strings.Join([]string{
			sel.AttrOr("aria-label", ""),
			sel.AttrOr("title", ""),
			sel.AttrOr("class", ""),
			sel.Text(),
			childIconHints(sel),
		}, " ")

		for _, rule := range platformRules {
			if rule.sharerRe.MatchString(href) {
				continue
			}
			if !rule.hrefRe.MatchString(href) && !rule.keyword.MatchString(hints) {
				continue
			}
			// Keyword-only matches still need the href to go off-site.
			if !rule.hrefRe.MatchString(href) {
				continue
			}
			found[rule.name] = append(found[rule.name], candidate{
				url:         href,
				inContainer: inSocialContainer(sel),
			})
			break
		}
	})

	out := make(map[Platform]string, len(found))
	for platform, cands := range found {
		sort.Slice(cands, func(i, j int) bool {
			if cands[i].inContainer != cands[j].inContainer {
				return cands[i].inContainer
			}
			if len(cands[i].url) != len(cands[j].url) {
				return len(cands[i].url) < len(cands[j].url)
			}
			return cands[i].url < cands[j].url
		})
		out[platform] = cands[0].url
	}
	return out
}

func childIconHints(sel *goquery.Selection) string {
	var parts []string
	sel.Find("i, svg, img, span").Each(func(_ int, child *goquery.Selection) {
		parts = append(parts, child.AttrOr("class", ""), child.AttrOr("alt", ""), child.AttrOr("aria-label", ""))
	})
	return strings.Join(parts, " ")
}

func inSocialContainer(sel *goquery.Selection) bool {
	for p := sel; p.Length() > 0; p = p.Parent() {
		if socialContainerRe.MatchString(p.AttrOr("class", "")) {
			return true
		}
		if node := goquery.NodeName(p); node == "footer" || node == "header" || node == "nav" {
			return true
		}
		if node := goquery.NodeName(p); node == "body" || node == "html" {
			break
		}
	}
	return false
}

// Harvester fetches detected profile pages and distills a short labeled text
// block per platform.
type Harvester struct {
	engine  fetcher.Engine
	timeout time.Duration
}

func NewHarvester(engine fetcher.Engine, timeout time.Duration) *Harvester {
	return &Harvester{engine: engine, timeout: timeout}
}

// Harvest visits each profile link and returns the combined social distillate.
// Per-platform failures are skipped silently; social text is garnish, never a
// reason to fail a scan.
func (h *Harvester) Harvest(ctx context.Context, links map[Platform]string) string {
	platforms := make([]Platform, 0, len(links))
	for p := range links {
		platforms = append(platforms, p)
	}
	sort.Slice(platforms, func(i, j int) bool { return platforms[i] < platforms[j] })

	var b strings.Builder
	for _, platform := range platforms {
		fetchCtx, cancel := context.WithTimeout(ctx, h.timeout)
		res, err := h.engine.Fetch(fetchCtx, links[platform], fetcher.Options{})
		cancel()
		if err != nil {
			continue
		}
		text := VisibleText(res.HTML, maxTextPerPlatform)
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "=== social:%s (%s) ===\n%s\n\n", platform, links[platform], text)
	}
	return strings.TrimSpace(b.String())
}

// VisibleText strips boilerplate elements and collapses whitespace, capped at
// maxChars on a word boundary where possible.
func VisibleText(htmlStr string, maxChars int) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return ""
	}
	doc.Find("script, style, nav, noscript, iframe, svg").Remove()

	text := strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	if len(text) <= maxChars {
		return text
	}
	cut := text[:maxChars]
	if idx := strings.LastIndexByte(cut, ' '); idx > maxChars/2 {
		cut = cut[:idx]
	}
	return cut
}
