package discovery

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"brandlens/internal/model"
)

// Keyword tiers, highest first. The first tier that matches wins; tiers do
// not stack, while the bonus/penalty rules below do.
var (
	criticalRe = regexp.MustCompile(`(?i)(brand|purpose|values|strategy|products|services|operations)`)
	highRe     = regexp.MustCompile(`(?i)(company|about|story|mission|vision|culture|who-we-are|investors)`)
	mediumRe   = regexp.MustCompile(`(?i)(solutions|pipeline|research|innovation|capabilities|industries|technology)`)
	lowRe      = regexp.MustCompile(`(?i)(leadership|team|management|history|sustainability|responsibility|esg)`)

	langBonusRe = regexp.MustCompile(`(?i)(/en/|/en$|[?&]lang=en)`)

	// One closed negative set, applied uniformly at every call site.
	negativeRe = regexp.MustCompile(`(?i)(login|signin|sign-in|register|legal|privacy|terms|cookie|newsletter|subscribe|cart|checkout|/search|[?&]search=|404|/jobs|press-release|financial|annual-report|quarterly|sitemap|rss|/feed)`)

	// Bare language names as anchor text mark generic locale switchers.
	languageNames = map[string]struct{}{
		"english": {}, "deutsch": {}, "français": {}, "francais": {}, "español": {},
		"espanol": {}, "italiano": {}, "português": {}, "portugues": {}, "日本語": {},
		"中文": {}, "nederlands": {}, "polski": {}, "svenska": {}, "norsk": {},
	}

	nonHTMLExtRe = regexp.MustCompile(`(?i)\.(zip|rar|7z|tar|gz|png|jpe?g|gif|svg|webp|ico|docx?|xlsx?|pptx?|mp[34]|avi|mov|wmv|css|js|json|xml)$`)
	pdfRe        = regexp.MustCompile(`(?i)\.pdf$`)

	localeVariantRe = regexp.MustCompile(`(?i)/(en|fr|de|es|it|pt|ja|zh)(?:[-_][A-Za-z]{2})?(/|$)`)

	highSignalRe = regexp.MustCompile(`(?i)/(about|company|our-story|strategy|vision|mission|products|solutions|platform|services|industries|segments|careers|culture|investors|esg|press|news|sustainability)`)

	pdfAllowRe = regexp.MustCompile(`(?i)(overview|brand|corporate)`)

	// Vetoed categories removed before ranking: search/paginated URLs and
	// other boilerplate that never carries brand signal.
	vetoRe = regexp.MustCompile(`(?i)([?&](s|q|query|search|page|p)=|/page/\d+|/tag/|/category/|/wp-admin|/wp-login|/#)`)
)

const (
	weightCritical = 30
	weightHigh     = 20
	weightMedium   = 10
	weightLow      = 5

	bonusLanguage    = 10
	bonusShallowPath = 5

	penaltyNegative    = -50
	penaltyGenericLang = -20
	penaltyNonHTML     = -100
)

// Score computes the keyword-tier score for one candidate link. The combined
// haystack is URL plus anchor text, matching how editors label navigation.
func Score(rawURL, anchorText string) int {
	haystack := rawURL + " " + anchorText

	score := 0
	switch {
	case criticalRe.MatchString(haystack):
		score = weightCritical
	case highRe.MatchString(haystack):
		score = weightHigh
	case mediumRe.MatchString(haystack):
		score = weightMedium
	case lowRe.MatchString(haystack):
		score = weightLow
	}

	if langBonusRe.MatchString(rawURL) {
		score += bonusLanguage
	}
	if negativeRe.MatchString(haystack) {
		score += penaltyNegative
	}
	if _, ok := languageNames[strings.ToLower(strings.TrimSpace(anchorText))]; ok {
		score += penaltyGenericLang
	}
	if PathDepth(rawURL) <= 2 {
		score += bonusShallowPath
	}
	if nonHTMLExtRe.MatchString(rawURL) || pdfRe.MatchString(rawURL) {
		score += penaltyNonHTML
	}

	return score
}

// PathDepth counts non-empty path segments.
func PathDepth(rawURL string) int {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}
	depth := 0
	for _, seg := range strings.Split(u.Path, "/") {
		if seg != "" {
			depth++
		}
	}
	return depth
}

// IsVetoed reports whether the link belongs to a category removed before
// ranking regardless of score.
func IsVetoed(rawURL string) bool {
	return vetoRe.MatchString(rawURL)
}

// IsLocaleVariant reports whether the path is a locale-specific mirror.
func IsLocaleVariant(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return localeVariantRe.MatchString(u.Path)
}

// IsHighSignal reports whether the URL path names a brand-relevant section.
func IsHighSignal(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return highSignalRe.MatchString(u.Path)
}

// IsPDF reports whether the URL points at a PDF document.
func IsPDF(rawURL string) bool {
	return pdfRe.MatchString(strings.SplitN(rawURL, "?", 2)[0])
}

// IsAllowedPDF reports whether a PDF qualifies for the single-PDF exception.
func IsAllowedPDF(rawURL string) bool {
	return IsPDF(rawURL) && pdfAllowRe.MatchString(rawURL)
}

// ScoreAll scores and ranks candidates, dropping vetoed links first.
// Ordering: higher score, then shallower path, then alphabetical URL.
func ScoreAll(links []model.DiscoveredLink) []model.ScoredLink {
	scored := make([]model.ScoredLink, 0, len(links))
	for _, l := range links {
		if IsVetoed(l.URL) {
			continue
		}
		scored = append(scored, model.ScoredLink{
			DiscoveredLink: l,
			Score:          Score(l.URL, l.AnchorText),
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		di, dj := PathDepth(scored[i].URL), PathDepth(scored[j].URL)
		if di != dj {
			return di < dj
		}
		return scored[i].URL < scored[j].URL
	})

	return scored
}
