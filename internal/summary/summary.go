package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"brandlens/internal/llm"
	"brandlens/internal/model"
)

// Results indexes completed analyses by key for summary assembly.
type Results map[model.AnalysisKey]model.AnalysisResult

// Discovery assembles the discovery-mode executive summary deterministically
// from the per-key payloads; no extra LLM call is made.
func Discovery(results Results) string {
	var b strings.Builder
	b.WriteString("🔍 Discovery Mode Summary\n")

	if res, ok := results[model.KeyPositioningThemes]; ok {
		var parsed struct {
			Themes []struct {
				Theme      string `json:"theme"`
				Confidence int    `json:"confidence"`
			} `json:"themes"`
		}
		if json.Unmarshal(res.Payload, &parsed) == nil && len(parsed.Themes) > 0 {
			b.WriteString("\nPositioning:\n")
			for i, th := range parsed.Themes {
				if i == 3 {
					break
				}
				fmt.Fprintf(&b, "• %s (%d%% confidence)\n", th.Theme, th.Confidence)
			}
		}
	}

	if res, ok := results[model.KeyKeyMessages]; ok {
		var parsed struct {
			KeyMessages []struct {
				Message string `json:"message"`
				Type    string `json:"type"`
			} `json:"key_messages"`
		}
		if json.Unmarshal(res.Payload, &parsed) == nil && len(parsed.KeyMessages) > 0 {
			b.WriteString("\nKey messages:\n")
			for i, msg := range parsed.KeyMessages {
				if i == 4 {
					break
				}
				fmt.Fprintf(&b, "• [%s] %s\n", msg.Type, msg.Message)
			}
		}
	}

	if res, ok := results[model.KeyToneOfVoice]; ok {
		var parsed struct {
			PrimaryTone   toneBlock `json:"primary_tone"`
			SecondaryTone toneBlock `json:"secondary_tone"`
		}
		if json.Unmarshal(res.Payload, &parsed) == nil && parsed.PrimaryTone.Tone != "" {
			b.WriteString("\nTone of voice:\n")
			fmt.Fprintf(&b, "• Primary: %s - \"%s\"\n", parsed.PrimaryTone.Tone, shortQuote(parsed.PrimaryTone.EvidenceQuote))
			if parsed.SecondaryTone.Tone != "" {
				fmt.Fprintf(&b, "• Secondary: %s - \"%s\"\n", parsed.SecondaryTone.Tone, shortQuote(parsed.SecondaryTone.EvidenceQuote))
			}
		}
	}

	if res, ok := results[model.KeyBrandElements]; ok {
		var parsed struct {
			OverallImpression struct {
				Summary  string   `json:"summary"`
				Keywords []string `json:"keywords"`
			} `json:"overall_impression"`
			CoherenceScore int `json:"coherence_score"`
		}
		if json.Unmarshal(res.Payload, &parsed) == nil && parsed.OverallImpression.Summary != "" {
			b.WriteString("\nBrand elements:\n")
			fmt.Fprintf(&b, "• %s\n", parsed.OverallImpression.Summary)
			if len(parsed.OverallImpression.Keywords) > 0 {
				fmt.Fprintf(&b, "• Keywords: %s\n", strings.Join(parsed.OverallImpression.Keywords, ", "))
			}
			fmt.Fprintf(&b, "• Visual coherence: %d/5\n", parsed.CoherenceScore)
		}
	}

	if res, ok := results[model.KeyVisualTextAlignment]; ok {
		var parsed struct {
			Alignment     string `json:"alignment"`
			Justification string `json:"justification"`
		}
		if json.Unmarshal(res.Payload, &parsed) == nil && parsed.Alignment != "" {
			b.WriteString("\nVisual-text alignment:\n")
			fmt.Fprintf(&b, "• %s. %s\n", parsed.Alignment, firstSentence(parsed.Justification))
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

type toneBlock struct {
	Tone          string `json:"tone"`
	EvidenceQuote string `json:"evidence_quote"`
}

// memorabilityPayload mirrors the diagnosis key schema.
type memorabilityPayload struct {
	Score          int    `json:"score"`
	Analysis       string `json:"analysis"`
	Evidence       string `json:"evidence"`
	Confidence     int    `json:"confidence"`
	Recommendation string `json:"recommendation"`
}

// Quantify computes the diagnosis scoreboard: strong keys score 4 or above,
// weak keys 2 or below.
func Quantify(results Results) model.QuantSummary {
	q := model.QuantSummary{}
	for _, key := range model.DiagnosisKeys() {
		res, ok := results[key]
		if !ok {
			continue
		}
		var parsed memorabilityPayload
		if json.Unmarshal(res.Payload, &parsed) != nil {
			continue
		}
		q.KeysAnalyzed++
		if parsed.Score >= 4 {
			q.StrongKeys++
		}
		if parsed.Score <= 2 {
			q.WeakKeys++
		}
	}
	return q
}

// Diagnosis produces the diagnosis-mode narrative with one LLM call over the
// six key outputs. On any failure it falls back to a deterministic digest so
// the summary event is never missing.
func Diagnosis(ctx context.Context, caller interface {
	ChooseAndCall(ctx context.Context, req llm.Request) (string, llm.Meta, error)
}, results Results) string {
	digest := diagnosisDigest(results)

	prompt := fmt.Sprintf(`You are a brand strategist. Based on the six memorability scores below, write a short executive summary as JSON: {"summary": "...", "strengths": "...", "weaknesses": "...", "strategic_focus": "..."}. Be specific and concise.

Scores:
%s`, digest)

	raw, _, err := caller.ChooseAndCall(ctx, llm.Request{Key: "summary", System: "You respond with a single JSON object.", Prompt: prompt})
	if err != nil {
		return digest
	}

	var parsed struct {
		Summary        string `json:"summary"`
		Strengths      string `json:"strengths"`
		Weaknesses     string `json:"weaknesses"`
		StrategicFocus string `json:"strategic_focus"`
	}
	obj, perr := llm.ParseJSONObject(raw)
	if perr != nil || json.Unmarshal(obj, &parsed) != nil || parsed.Summary == "" {
		return digest
	}

	var b strings.Builder
	b.WriteString(parsed.Summary)
	if parsed.Strengths != "" {
		b.WriteString("\n\nStrengths: " + parsed.Strengths)
	}
	if parsed.Weaknesses != "" {
		b.WriteString("\nWeaknesses: " + parsed.Weaknesses)
	}
	if parsed.StrategicFocus != "" {
		b.WriteString("\nStrategic focus: " + parsed.StrategicFocus)
	}
	return b.String()
}

func diagnosisDigest(results Results) string {
	var b strings.Builder
	for _, key := range model.DiagnosisKeys() {
		res, ok := results[key]
		if !ok {
			continue
		}
		var parsed memorabilityPayload
		if json.Unmarshal(res.Payload, &parsed) != nil {
			continue
		}
		fmt.Fprintf(&b, "- %s: %d/5 (%d%% confidence). %s\n", key, parsed.Score, parsed.Confidence, firstSentence(parsed.Analysis))
	}
	return strings.TrimRight(b.String(), "\n")
}

func shortQuote(q string) string {
	q = strings.TrimSpace(q)
	if len(q) > 80 {
		if idx := strings.LastIndexByte(q[:80], ' '); idx > 40 {
			return q[:idx] + "..."
		}
		return q[:80] + "..."
	}
	return q
}

func firstSentence(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexAny(s, ".!?"); idx != -1 && idx < len(s)-1 {
		return s[:idx+1]
	}
	return s
}
