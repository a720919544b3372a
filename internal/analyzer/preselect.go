package analyzer

import (
	"regexp"
	"sort"
	"strings"

	"brandlens/internal/model"
)

// Chunking granularity in characters, derived from the 4-chars-per-token
// estimate: chunks of roughly 500 tokens with 120 tokens of overlap.
const (
	chunkChars   = 2000
	overlapChars = 480
)

// keyKeywords scores chunks for relevance to a specific analysis.
var keyKeywords = map[model.AnalysisKey]*regexp.Regexp{
	model.KeyPositioningThemes:   regexp.MustCompile(`(?i)(position|leader|unique|differenti|market|industry|purpose|mission|vision|strategy)`),
	model.KeyKeyMessages:         regexp.MustCompile(`(?i)(we (are|build|deliver|help|offer|provide)|our (promise|commitment|goal)|tagline|slogan)`),
	model.KeyToneOfVoice:         regexp.MustCompile(`(?i)(we|our|you|your|together|passion|believe|commit)`),
	model.KeyEmotion:             regexp.MustCompile(`(?i)(feel|passion|love|care|inspire|proud|excite|trust)`),
	model.KeyAttention:           regexp.MustCompile(`(?i)(new|first|only|discover|introduc|launch|award|breakthrough)`),
	model.KeyStory:               regexp.MustCompile(`(?i)(founded|history|journey|story|began|since|grew|origin)`),
	model.KeyInvolvement:         regexp.MustCompile(`(?i)(you|your|join|community|together|customer|partner|contact)`),
	model.KeyRepetition:          regexp.MustCompile(`(?i)(mission|vision|values|tagline|slogan|promise)`),
	model.KeyConsistency:         regexp.MustCompile(`(?i)(brand|identity|always|every|consistent|across)`),
	model.KeyBrandElements:       regexp.MustCompile(`(?i)(design|logo|color|visual|identity|style)`),
	model.KeyVisualTextAlignment: regexp.MustCompile(`(?i)(design|visual|image|message|communicat)`),
}

// PreselectStats reports what pre-selection did, for the ops log.
type PreselectStats struct {
	TotalChunks    int
	SelectedChunks int
	InputChars     int
	OutputChars    int
}

// Preselect reduces sanitized text to the per-key input budget by chunking
// with overlap, scoring each chunk against the key's keyword set, and keeping
// the best chunks in original order.
func Preselect(key model.AnalysisKey, text string, budgetChars int) (string, PreselectStats) {
	stats := PreselectStats{InputChars: len(text)}
	if len(text) <= budgetChars {
		stats.TotalChunks = 1
		stats.SelectedChunks = 1
		stats.OutputChars = len(text)
		return text, stats
	}

	chunks := chunk(text)
	stats.TotalChunks = len(chunks)

	re := keyKeywords[key]
	type scored struct {
		index int
		score int
	}
	ranked := make([]scored, len(chunks))
	for i, c := range chunks {
		s := 0
		if re != nil {
			s = len(re.FindAllStringIndex(c, -1))
		}
		ranked[i] = scored{index: i, score: s}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	picked := make([]bool, len(chunks))
	used := 0
	for _, r := range ranked {
		cost := len(chunks[r.index]) + 2
		if used+cost > budgetChars {
			continue
		}
		picked[r.index] = true
		used += cost
		stats.SelectedChunks++
	}

	var parts []string
	for i, c := range chunks {
		if picked[i] {
			parts = append(parts, c)
		}
	}
	out := strings.Join(parts, "\n\n")
	stats.OutputChars = len(out)
	return out, stats
}

// chunk splits on character windows with overlap, snapping forward to the
// next line break where one is near so sentences stay whole.
func chunk(text string) []string {
	var chunks []string
	step := chunkChars - overlapChars

	for start := 0; start < len(text); start += step {
		end := start + chunkChars
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			break
		}
		if idx := strings.IndexByte(text[end:min(end+200, len(text))], '\n'); idx != -1 {
			end += idx
		}
		chunks = append(chunks, text[start:end])
	}
	return chunks
}
