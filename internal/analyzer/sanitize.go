package analyzer

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInsufficientContent marks input too thin to analyze. Surfaced to the
// client as an input error at stream start.
var ErrInsufficientContent = errors.New("insufficient content for analysis")

const minInputChars = 100

var (
	scriptBlockRe = regexp.MustCompile(`(?is)<script.*?</script>`)
	styleBlockRe  = regexp.MustCompile(`(?is)<style.*?</style>`)
	tagRe         = regexp.MustCompile(`<[^>]+>`)

	// Lines carrying these words survive truncation first; they are where
	// brands talk about themselves.
	brandSignalRe = regexp.MustCompile(`(?i)(mission|vision|values|about|brand|company|we are|our)`)
)

// Sanitize strips markup remnants from corpus text and enforces the minimum
// input length. Whitespace runs collapse so equivalent inputs fingerprint
// identically.
func Sanitize(text string) (string, error) {
	text = scriptBlockRe.ReplaceAllString(text, " ")
	text = styleBlockRe.ReplaceAllString(text, " ")
	text = tagRe.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line != "" {
			out = append(out, line)
		}
	}
	text = strings.Join(out, "\n")

	if len(text) < minInputChars {
		return "", ErrInsufficientContent
	}
	return text, nil
}

// TruncateSmart cuts sanitized text to maxChars, keeping brand-signal lines
// in preference to everything else while preserving original line order.
func TruncateSmart(text string, maxChars int) string {
	if len(text) <= maxChars {
		return text
	}

	lines := strings.Split(text, "\n")
	keep := make([]bool, len(lines))
	used := 0

	// First pass: brand-signal lines in order.
	for i, line := range lines {
		if !brandSignalRe.MatchString(line) {
			continue
		}
		cost := len(line) + 1
		if used+cost > maxChars {
			continue
		}
		keep[i] = true
		used += cost
	}
	// Second pass: fill remaining budget with the rest, still in order.
	for i, line := range lines {
		if keep[i] {
			continue
		}
		cost := len(line) + 1
		if used+cost > maxChars {
			continue
		}
		keep[i] = true
		used += cost
	}

	var b strings.Builder
	for i, line := range lines {
		if keep[i] {
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(line)
		}
	}
	return b.String()
}
