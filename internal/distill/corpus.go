package distill

import (
	"strings"
	"unicode/utf8"

	"brandlens/internal/model"
)

// BuildCorpus joins per-page distillates in crawl order, appends the social
// distillate, and enforces a hard size cap. The first block that overflows is
// truncated into the remaining budget; everything after it is cut whole.
func BuildCorpus(pages []model.Page, social string, maxChars int) model.Corpus {
	if maxChars <= 0 {
		maxChars = 40000
	}

	var parts []string
	var urls []string
	used := 0

	for _, p := range pages {
		if p.Distilled == "" {
			continue
		}
		sep := 0
		if len(parts) > 0 {
			sep = 2
		}
		if used+sep+len(p.Distilled) <= maxChars {
			parts = append(parts, p.Distilled)
			urls = append(urls, p.URL)
			used += sep + len(p.Distilled)
			continue
		}
		if remaining := maxChars - used - sep; remaining > 0 {
			parts = append(parts, cutAtRune(p.Distilled, remaining))
			urls = append(urls, p.URL)
			used = maxChars
		}
		break
	}

	if social != "" {
		sep := 0
		if len(parts) > 0 {
			sep = 2
		}
		if remaining := maxChars - used - sep; remaining > 0 {
			if len(social) > remaining {
				social = cutAtRune(social, remaining)
			}
			if social != "" {
				parts = append(parts, social)
			}
		}
	}

	return model.Corpus{
		Text:      strings.Join(parts, "\n\n"),
		PageURLs:  urls,
		PageCount: len(urls),
	}
}

// cutAtRune truncates s to at most max bytes without splitting a rune.
func cutAtRune(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
