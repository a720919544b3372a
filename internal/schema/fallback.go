package schema

import (
	"encoding/json"
	"strings"

	"brandlens/internal/model"
)

// degradedConfidence is deliberately low: synthesized payloads must never be
// mistaken for model-backed findings.
const degradedConfidence = 30

// Degraded synthesizes a schema-valid payload for a key after every LLM
// attempt failed, using a short excerpt of the analyzed text as evidence.
func Degraded(key model.AnalysisKey, excerpt string) json.RawMessage {
	quote := excerptQuote(excerpt, 200)

	var payload any
	switch key {
	case model.KeyPositioningThemes:
		payload = map[string]any{
			"themes": []any{map[string]any{
				"theme":           "Core brand presence",
				"description":     "The analysis could not be completed reliably. The brand's website presents its core positioning in the sampled content.",
				"evidence_quotes": []any{quote},
				"confidence":      degradedConfidence,
			}},
		}
	case model.KeyKeyMessages:
		payload = map[string]any{
			"key_messages": []any{map[string]any{
				"message":    quote,
				"context":    "Extracted directly from site content after automated analysis failed.",
				"type":       "Value Proposition",
				"confidence": degradedConfidence,
			}},
		}
	case model.KeyToneOfVoice:
		tone := map[string]any{
			"tone":           "Informational",
			"justification":  "Automated tone analysis was unavailable; the sampled content reads as factual site copy.",
			"evidence_quote": quote,
		}
		payload = map[string]any{
			"primary_tone":   tone,
			"secondary_tone": tone,
			"contradictions": []any{},
			"confidence":     degradedConfidence,
		}
	case model.KeyBrandElements:
		aspect := map[string]any{
			"description":       "Not assessed; visual analysis was unavailable.",
			"consistency_notes": "Not assessed.",
		}
		payload = map[string]any{
			"overall_impression": map[string]any{
				"summary":  "Visual brand analysis could not be completed for this scan.",
				"keywords": []any{"unassessed"},
			},
			"coherence_score": 3,
			"visual_identity": map[string]any{
				"color_palette": aspect,
				"typography":    aspect,
				"imagery_style": aspect,
			},
			"strategic_alignment": map[string]any{
				"harmony":    "Not assessed.",
				"dissonance": "Not assessed.",
			},
			"confidence": degradedConfidence,
		}
	case model.KeyVisualTextAlignment:
		payload = map[string]any{
			"alignment":     "No",
			"justification": "Alignment could not be evaluated; visual analysis was unavailable for this scan.",
		}
	default:
		// Memorability keys share one shape.
		payload = map[string]any{
			"score":                2,
			"analysis":             "This dimension could not be analyzed reliably; the score reflects a neutral default, not an assessment.",
			"evidence":             quote,
			"confidence":           degradedConfidence,
			"confidence_rationale": "Automated analysis failed; the payload was synthesized from site content.",
			"recommendation":       "Re-run the scan; if the problem persists the site content may be too thin to analyze.",
		}
	}

	out, _ := json.Marshal(payload)
	return out
}

func excerptQuote(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return "No content available."
	}
	if len(text) <= max {
		return text
	}
	cut := text[:max]
	if idx := strings.LastIndexByte(cut, ' '); idx > max/2 {
		cut = cut[:idx]
	}
	return cut
}
