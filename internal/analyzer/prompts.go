package analyzer

import (
	"fmt"
	"strings"

	"brandlens/internal/model"
)

// Prompt templates are versioned through the configured prompt version, which
// participates in cache fingerprints. Editing a template without bumping the
// version serves stale cached results.

const systemPrompt = "You are a senior brand strategist. You respond with a single JSON object matching the requested schema exactly, and nothing else."

type template struct {
	role    string
	task    string
	example string
}

var templates = map[model.AnalysisKey]template{
	model.KeyPositioningThemes: {
		role: "Identify the brand's positioning themes from its website content.",
		task: `Work step by step:
1. Read the content and list recurring strategic claims the brand makes about itself.
2. Group them into 1-5 distinct positioning themes.
3. For each theme, quote 1-3 short verbatim passages as evidence.
4. Rate your confidence per theme from 0 to 100.`,
		example: `{"themes": [{"theme": "...", "description": "...", "evidence_quotes": ["..."], "confidence": 90}]}`,
	},
	model.KeyKeyMessages: {
		role: "Extract the brand's key messages from its website content.",
		task: `Work step by step:
1. Find taglines and value propositions stated by the brand itself.
2. Keep 1-5 messages; for each, note where on the site it appears and what it claims.
3. Classify each message as "Tagline" or "Value Proposition".
4. Rate your confidence per message from 0 to 100.`,
		example: `{"key_messages": [{"message": "...", "context": "...", "type": "Tagline", "confidence": 85}]}`,
	},
	model.KeyToneOfVoice: {
		role: "Characterize the brand's tone of voice from its website content.",
		task: `Work step by step:
1. Determine the dominant (primary) tone and a secondary tone.
2. Justify each with a verbatim quote of 5 to 25 words copied exactly from the snippets below. Do not paraphrase quotes.
3. List up to 3 tone contradictions, each with its own verbatim quote.
4. Rate your overall confidence from 0 to 100.`,
		example: `{"primary_tone": {"tone": "...", "justification": "...", "evidence_quote": "..."}, "secondary_tone": {"tone": "...", "justification": "...", "evidence_quote": "..."}, "contradictions": [], "confidence": 80}`,
	},
	model.KeyBrandElements: {
		role: "Analyze the brand's visual identity from the attached screenshots and the text context.",
		task: `Work step by step:
1. Describe the overall visual impression in one summary plus 1-5 keywords.
2. Assess color palette, typography, and imagery style, noting consistency.
3. Judge how the visuals align or clash with the brand's messaging (harmony and dissonance).
4. Score visual coherence from 1 to 5 and rate your confidence from 0 to 100.`,
		example: `{"overall_impression": {"summary": "...", "keywords": ["..."]}, "coherence_score": 4, "visual_identity": {"color_palette": {"description": "...", "consistency_notes": "..."}, "typography": {"description": "...", "consistency_notes": "..."}, "imagery_style": {"description": "...", "consistency_notes": "..."}}, "strategic_alignment": {"harmony": "...", "dissonance": "..."}, "confidence": 75}`,
	},
	model.KeyVisualTextAlignment: {
		role: "Judge whether the brand's visual identity supports its stated positioning.",
		task: `Compare the positioning themes with the visual brand elements summary below. Answer "Yes" if the visuals reinforce the positioning, "No" if they undercut or ignore it, and justify your answer in a few sentences.`,
		example: `{"alignment": "Yes", "justification": "..."}`,
	},

	model.KeyEmotion: {
		role:    "Score how strongly the brand's website content evokes emotion (memorability key: Emotion).",
		task:    memorabilityTask("emotional language, storytelling warmth, human faces or moments, aspirational framing"),
		example: memorabilityExample,
	},
	model.KeyAttention: {
		role:    "Score how well the brand's website content captures attention (memorability key: Attention).",
		task:    memorabilityTask("distinctive claims, surprising facts, bold openings, concrete specifics over generic filler"),
		example: memorabilityExample,
	},
	model.KeyStory: {
		role:    "Score the strength of the brand's narrative (memorability key: Story).",
		task:    memorabilityTask("origin story, protagonists, conflict and resolution, a clear arc from past to future"),
		example: memorabilityExample,
	},
	model.KeyInvolvement: {
		role:    "Score how actively the brand involves its audience (memorability key: Involvement).",
		task:    memorabilityTask("direct address, invitations to participate, community signals, second-person framing"),
		example: memorabilityExample,
	},
	model.KeyRepetition: {
		role:    "Score how consistently the brand repeats its core messages (memorability key: Repetition).",
		task:    memorabilityTask("recurring taglines, repeated value claims across pages, consistent naming of products and ideas"),
		example: memorabilityExample,
	},
	model.KeyConsistency: {
		role:    "Score the coherence of the brand's voice and claims across pages (memorability key: Consistency).",
		task:    memorabilityTask("uniform tone, non-contradictory claims, stable terminology between sections"),
		example: memorabilityExample,
	},
}

const memorabilityExample = `{"score": 3, "analysis": "...", "evidence": "...", "confidence": 70, "confidence_rationale": "...", "recommendation": "..."}`

func memorabilityTask(signals string) string {
	return fmt.Sprintf(`Work step by step:
1. Look for these signals in the content: %s.
2. Score the dimension from 0 (absent) to 5 (exceptional), citing concrete evidence from the text.
3. Rate your confidence from 0 to 100 and explain what drives it.
4. Give one actionable recommendation to improve this dimension.`, signals)
}

// BuildPrompt renders the full user prompt for a key: role, task steps,
// output example, language directive, and the input block. lang is a BCP-47
// tag; empty means the model follows the source language. The directive is
// part of the prompt text, so it participates in cache fingerprints.
func BuildPrompt(key model.AnalysisKey, input, lang string) string {
	tpl, ok := templates[key]
	if !ok {
		tpl = template{role: "Analyze the brand content.", task: "Respond with a JSON object.", example: "{}"}
	}

	var b strings.Builder
	b.WriteString(tpl.role)
	b.WriteString("\n\n")
	b.WriteString(tpl.task)
	b.WriteString("\n\nRespond with a single JSON object shaped like:\n")
	b.WriteString(tpl.example)
	if lang != "" {
		b.WriteString("\n\nWrite every string value in the language tagged ")
		b.WriteString(lang)
		b.WriteString(", except verbatim evidence quotes, which stay in the source language.")
	}
	b.WriteString("\n\nWebsite content:\n\"\"\"\n")
	b.WriteString(input)
	b.WriteString("\n\"\"\"")
	return b.String()
}

// BuildRepairPrompt asks a model to reshape broken output into the schema.
func BuildRepairPrompt(raw string, schema []byte) string {
	return fmt.Sprintf(`The following output was supposed to match a JSON schema but does not. Rewrite it into a single JSON object that validates against the schema. Preserve the content; fix only the structure.

Schema:
%s

Broken output:
%s`, schema, raw)
}
