package schema

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"brandlens/internal/model"
)

func validTone() string {
	return `{
		"primary_tone": {"tone": "Confident", "justification": "Assertive claims throughout.", "evidence_quote": "We lead the industry in autonomous robotics."},
		"secondary_tone": {"tone": "Technical", "justification": "Engineering detail dominates.", "evidence_quote": "Sub-millimeter repeatability across all six axes."},
		"contradictions": [],
		"confidence": 85
	}`
}

func TestProcess_ValidPassesThrough(t *testing.T) {
	v := NewValidator(nil)
	res := v.Process(context.Background(), model.KeyToneOfVoice, validTone(), "", nil)

	if res.Status != model.ValidationSuccess {
		t.Fatalf("expected success, got %s (%v)", res.Status, res.Repairs)
	}
	var parsed map[string]any
	if err := json.Unmarshal(res.Payload, &parsed); err != nil {
		t.Fatalf("payload does not parse: %v", err)
	}
	if parsed["confidence"].(float64) != 85 {
		t.Fatalf("confidence altered: %v", parsed["confidence"])
	}
}

func TestProcess_Idempotent(t *testing.T) {
	v := NewValidator(nil)
	first := v.Process(context.Background(), model.KeyToneOfVoice, validTone(), "", nil)
	second := v.Process(context.Background(), model.KeyToneOfVoice, string(first.Payload), "", nil)

	if !bytes.Equal(first.Payload, second.Payload) {
		t.Fatalf("validator is not idempotent:\n%s\n%s", first.Payload, second.Payload)
	}
	if len(second.Repairs) != 0 {
		t.Fatalf("re-validating clean output must need no repairs: %v", second.Repairs)
	}
}

func TestProcess_CoercesStringConfidence(t *testing.T) {
	raw := strings.Replace(validTone(), `"confidence": 85`, `"confidence": "85"`, 1)
	v := NewValidator(nil)
	res := v.Process(context.Background(), model.KeyToneOfVoice, raw, "", nil)

	if res.Status != model.ValidationSuccess {
		t.Fatalf("expected success, got %s", res.Status)
	}
	if !hasRepair(res.Repairs, RepairCoercedInt) {
		t.Fatalf("coercion not recorded: %v", res.Repairs)
	}
	var parsed map[string]any
	_ = json.Unmarshal(res.Payload, &parsed)
	if parsed["confidence"].(float64) != 85 {
		t.Fatalf("string confidence not coerced: %v", parsed["confidence"])
	}
}

func TestProcess_MissingContradictionsDefaulted(t *testing.T) {
	raw := strings.Replace(validTone(), `"contradictions": [],`, "", 1)
	v := NewValidator(nil)
	res := v.Process(context.Background(), model.KeyToneOfVoice, raw, "", nil)

	if res.Status != model.ValidationSuccess {
		t.Fatalf("expected success with defaulted contradictions, got %s", res.Status)
	}
	if !hasRepair(res.Repairs, RepairDefaulted) {
		t.Fatalf("defaulting not recorded: %v", res.Repairs)
	}
	var parsed struct {
		Contradictions []any `json:"contradictions"`
	}
	if err := json.Unmarshal(res.Payload, &parsed); err != nil || parsed.Contradictions == nil {
		t.Fatalf("payload must carry an empty contradictions array:\n%s", res.Payload)
	}
}

func TestProcess_TruncationKeepsValidUTF8(t *testing.T) {
	// The justification limit is 1000 bytes; the leading ASCII byte puts the
	// cut point in the middle of a two-byte rune.
	raw := `{"alignment": "Yes", "justification": "a` + strings.Repeat("é", 600) + `"}`
	v := NewValidator(nil)
	res := v.Process(context.Background(), model.KeyVisualTextAlignment, raw, "", nil)

	if res.Status != model.ValidationSuccess {
		t.Fatalf("expected success, got %s", res.Status)
	}
	if !hasRepair(res.Repairs, RepairTruncated) {
		t.Fatalf("truncation not recorded: %v", res.Repairs)
	}
	var parsed struct {
		Justification string `json:"justification"`
	}
	_ = json.Unmarshal(res.Payload, &parsed)
	if !utf8.ValidString(parsed.Justification) {
		t.Fatalf("truncation split a rune: %q", parsed.Justification)
	}
	if strings.ContainsRune(parsed.Justification, utf8.RuneError) {
		t.Fatalf("replacement character leaked into the payload")
	}
}

func TestProcess_SyntaxRepair(t *testing.T) {
	raw := `{'alignment': 'Yes', 'justification': 'Both channels emphasize precision engineering.',}`
	v := NewValidator(nil)
	res := v.Process(context.Background(), model.KeyVisualTextAlignment, raw, "", nil)

	if res.Status != model.ValidationSuccess {
		t.Fatalf("expected success after syntax repair, got %s", res.Status)
	}
	if !hasRepair(res.Repairs, RepairSyntax) {
		t.Fatalf("syntax repair not recorded: %v", res.Repairs)
	}
}

func TestProcess_PrunesInvalidItems(t *testing.T) {
	raw := `{"themes": [
		{"theme": "Precision", "description": "Engineering precision is everywhere.", "evidence_quotes": ["Sub-millimeter accuracy"], "confidence": 90},
		{"theme": "Broken one"},
		{"theme": "Scale", "description": "Global operations.", "evidence_quotes": ["Across three continents"], "confidence": 80}
	]}`
	v := NewValidator(nil)
	res := v.Process(context.Background(), model.KeyPositioningThemes, raw, "", nil)

	if res.Status != model.ValidationSuccess {
		t.Fatalf("expected success with pruning, got %s", res.Status)
	}
	if !hasRepair(res.Repairs, RepairDroppedItem) {
		t.Fatalf("pruning not recorded: %v", res.Repairs)
	}
	var parsed struct {
		Themes []any `json:"themes"`
	}
	_ = json.Unmarshal(res.Payload, &parsed)
	if len(parsed.Themes) != 2 {
		t.Fatalf("expected 2 surviving themes, got %d", len(parsed.Themes))
	}
}

func TestProcess_EmptyAfterPruningTriggersFallback(t *testing.T) {
	raw := `{"themes": [{"theme": "Only broken"}]}`
	v := NewValidator(nil)
	res := v.Process(context.Background(), model.KeyPositioningThemes, raw, "Acme builds robots.", nil)

	if res.Status != model.ValidationDegraded {
		t.Fatalf("expected degraded fallback, got %s", res.Status)
	}
	if _, err := v.Validate(model.KeyPositioningThemes, res.Payload); err != nil {
		t.Fatalf("degraded payload must itself validate: %v", err)
	}
}

func TestProcess_SchemaRepairRound(t *testing.T) {
	calls := 0
	repair := func(_ context.Context, key model.AnalysisKey, raw string, schema json.RawMessage) (string, error) {
		calls++
		if key != model.KeyToneOfVoice || len(schema) == 0 {
			return "", errors.New("bad repair request")
		}
		return validTone(), nil
	}

	v := NewValidator(nil)
	res := v.Process(context.Background(), model.KeyToneOfVoice, `{"primary_tone": "not an object"}`, "", repair)

	if res.Status != model.ValidationSuccess {
		t.Fatalf("expected repaired success, got %s", res.Status)
	}
	if calls != 1 {
		t.Fatalf("schema repair should be called exactly once, got %d", calls)
	}
	if !hasRepair(res.Repairs, RepairSchemaRepair) {
		t.Fatalf("schema repair not recorded: %v", res.Repairs)
	}
}

func TestCoherenceScoreClamped(t *testing.T) {
	v := NewValidator(nil)
	for _, bad := range []string{"0", "6"} {
		raw := `{
			"overall_impression": {"summary": "Clean and modern.", "keywords": ["modern"]},
			"coherence_score": ` + bad + `,
			"visual_identity": {
				"color_palette": {"description": "Blue and white.", "consistency_notes": "Consistent."},
				"typography": {"description": "Sans-serif.", "consistency_notes": "Consistent."},
				"imagery_style": {"description": "Product shots.", "consistency_notes": "Consistent."}
			},
			"strategic_alignment": {"harmony": "Visuals match messaging.", "dissonance": "None observed."},
			"confidence": 75
		}`
		res := v.Process(context.Background(), model.KeyBrandElements, raw, "", nil)
		if res.Status != model.ValidationSuccess {
			t.Fatalf("clamping should recover score %s, got %s", bad, res.Status)
		}
		var parsed map[string]any
		_ = json.Unmarshal(res.Payload, &parsed)
		score := parsed["coherence_score"].(float64)
		if score < 1 || score > 5 {
			t.Fatalf("score %s not clamped into range: %v", bad, score)
		}
		if !hasRepair(res.Repairs, RepairClamped) {
			t.Fatalf("clamp not recorded for %s: %v", bad, res.Repairs)
		}
	}
}

func TestDegraded_AllKeysValidate(t *testing.T) {
	v := NewValidator(nil)
	keys := append(model.DiagnosisKeys(),
		model.KeyPositioningThemes, model.KeyKeyMessages, model.KeyToneOfVoice,
		model.KeyBrandElements, model.KeyVisualTextAlignment)

	for _, key := range keys {
		payload := Degraded(key, "Acme builds autonomous assembly systems for manufacturers worldwide.")
		if _, err := v.Validate(key, payload); err != nil {
			t.Fatalf("degraded payload for %s invalid: %v", key, err)
		}
		if !strings.Contains(string(payload), `"confidence"`) && key != model.KeyVisualTextAlignment {
			t.Fatalf("degraded payload for %s missing confidence", key)
		}
	}
}

func TestJSONSchema_Renders(t *testing.T) {
	doc, ok := JSONSchema(model.KeyKeyMessages)
	if !ok {
		t.Fatalf("schema missing for key_messages")
	}
	var parsed map[string]any
	if err := json.Unmarshal(doc, &parsed); err != nil {
		t.Fatalf("schema is not valid JSON: %v", err)
	}
	if parsed["type"] != "object" {
		t.Fatalf("top-level schema should be an object")
	}
}

func hasRepair(repairs []string, name string) bool {
	for _, r := range repairs {
		if r == name {
			return true
		}
	}
	return false
}
