package schema

import (
	"encoding/json"

	"brandlens/internal/model"
)

// kind enumerates the value shapes the validator understands.
type kind int

const (
	kindObject kind = iota
	kindArray
	kindString
	kindInt
	kindEnum
)

// field is one node of a per-key payload spec. The same tree drives
// validation, repair, and JSON Schema generation so the three can never
// drift apart.
type field struct {
	name     string
	kind     kind
	optional bool

	// kindString
	maxLen int
	minLen int

	// kindInt
	min int
	max int

	// kindEnum
	values []string

	// kindObject
	fields []field

	// kindArray
	items    *field
	minItems int
	maxItems int
}

func str(name string, maxLen int) field {
	return field{name: name, kind: kindString, maxLen: maxLen}
}

func reqStr(name string, maxLen int) field {
	f := str(name, maxLen)
	f.minLen = 1
	return f
}

func intRange(name string, min, max int) field {
	return field{name: name, kind: kindInt, min: min, max: max}
}

func enum(name string, values ...string) field {
	return field{name: name, kind: kindEnum, values: values}
}

func obj(name string, fields ...field) field {
	return field{name: name, kind: kindObject, fields: fields}
}

func arr(name string, minItems, maxItems int, items field) field {
	return field{name: name, kind: kindArray, minItems: minItems, maxItems: maxItems, items: &items}
}

func confidence() field { return intRange("confidence", 0, 100) }

var visualAspect = []field{
	reqStr("description", 300),
	reqStr("consistency_notes", 300),
}

// specs holds the payload contract per analysis key.
var specs = map[model.AnalysisKey]field{
	model.KeyPositioningThemes: obj("",
		arr("themes", 1, 5, obj("",
			reqStr("theme", 50),
			reqStr("description", 200),
			arr("evidence_quotes", 1, 3, reqStr("", 300)),
			confidence(),
		)),
	),
	model.KeyKeyMessages: obj("",
		arr("key_messages", 1, 5, obj("",
			reqStr("message", 200),
			reqStr("context", 300),
			enum("type", "Tagline", "Value Proposition"),
			confidence(),
		)),
	),
	model.KeyToneOfVoice: obj("",
		obj("primary_tone",
			reqStr("tone", 30),
			reqStr("justification", 200),
			reqStr("evidence_quote", 400),
		),
		obj("secondary_tone",
			reqStr("tone", 30),
			reqStr("justification", 200),
			reqStr("evidence_quote", 400),
		),
		arr("contradictions", 0, 3, obj("",
			reqStr("contradiction", 200),
			reqStr("evidence_quote", 400),
		)),
		confidence(),
	),
	model.KeyBrandElements: obj("",
		obj("overall_impression",
			reqStr("summary", 300),
			arr("keywords", 1, 5, reqStr("", 50)),
		),
		intRange("coherence_score", 1, 5),
		obj("visual_identity",
			obj("color_palette", visualAspect...),
			obj("typography", visualAspect...),
			obj("imagery_style", visualAspect...),
		),
		obj("strategic_alignment",
			reqStr("harmony", 400),
			reqStr("dissonance", 400),
		),
		confidence(),
	),
	model.KeyVisualTextAlignment: obj("",
		enum("alignment", "Yes", "No"),
		reqStr("justification", 1000),
	),
}

// memorabilitySpec is shared by the six diagnosis keys.
var memorabilitySpec = obj("",
	intRange("score", 0, 5),
	reqStr("analysis", 2000),
	reqStr("evidence", 1000),
	confidence(),
	reqStr("confidence_rationale", 500),
	reqStr("recommendation", 1000),
)

// specFor resolves the contract for a key; diagnosis keys share one shape.
func specFor(key model.AnalysisKey) (field, bool) {
	if s, ok := specs[key]; ok {
		return s, true
	}
	for _, k := range model.DiagnosisKeys() {
		if k == key {
			return memorabilitySpec, true
		}
	}
	return field{}, false
}

// JSONSchema renders the key's contract as a JSON Schema document for strict
// response formats and repair prompts.
func JSONSchema(key model.AnalysisKey) (json.RawMessage, bool) {
	spec, ok := specFor(key)
	if !ok {
		return nil, false
	}
	doc, err := json.Marshal(schemaNode(spec))
	if err != nil {
		return nil, false
	}
	return doc, true
}

func schemaNode(f field) map[string]any {
	switch f.kind {
	case kindObject:
		props := make(map[string]any, len(f.fields))
		var required []string
		for _, child := range f.fields {
			props[child.name] = schemaNode(child)
			if !child.optional {
				required = append(required, child.name)
			}
		}
		node := map[string]any{
			"type":                 "object",
			"properties":           props,
			"additionalProperties": false,
		}
		if len(required) > 0 {
			node["required"] = required
		}
		return node
	case kindArray:
		node := map[string]any{
			"type":  "array",
			"items": schemaNode(*f.items),
		}
		if f.minItems > 0 {
			node["minItems"] = f.minItems
		}
		if f.maxItems > 0 {
			node["maxItems"] = f.maxItems
		}
		return node
	case kindInt:
		return map[string]any{"type": "integer", "minimum": f.min, "maximum": f.max}
	case kindEnum:
		return map[string]any{"type": "string", "enum": f.values}
	default:
		node := map[string]any{"type": "string"}
		if f.maxLen > 0 {
			node["maxLength"] = f.maxLen
		}
		if f.minLen > 0 {
			node["minLength"] = f.minLen
		}
		return node
	}
}
