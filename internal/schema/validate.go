package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"brandlens/internal/model"
)

// Repair names recorded on a result's metrics.
const (
	RepairSyntax       = "syntax_repair_applied"
	RepairCoercedInt   = "coerced_string_to_int"
	RepairClamped      = "clamped_to_range"
	RepairTruncated    = "truncated_string"
	RepairDroppedItem  = "dropped_invalid_item"
	RepairEnumCase     = "normalized_enum_case"
	RepairDefaulted    = "defaulted_missing_field"
	RepairSchemaRepair = "schema_repair_applied"
)

// Result is the outcome of the validation pipeline. Payload is always
// schema-valid; Status tells how hard that was.
type Result struct {
	Payload json.RawMessage
	Status  string
	Repairs []string
}

// RepairFunc asks a model to reshape raw output into the given schema. It is
// the validator's only way back into the LLM layer.
type RepairFunc func(ctx context.Context, key model.AnalysisKey, raw string, schema json.RawMessage) (string, error)

type Validator struct {
	log *slog.Logger
}

func NewValidator(log *slog.Logger) *Validator {
	if log == nil {
		log = slog.Default()
	}
	return &Validator{log: log}
}

// Process runs the full pipeline on raw model output: parse, syntax repair,
// coerce and clamp, prune bad array items, one LLM schema-repair round, and
// finally a degraded-but-valid synthesized payload. It never returns an
// invalid payload.
func (v *Validator) Process(ctx context.Context, key model.AnalysisKey, raw, excerpt string, repair RepairFunc) Result {
	spec, ok := specFor(key)
	if !ok {
		return Result{Payload: Degraded(key, excerpt), Status: model.ValidationDegraded}
	}

	var repairs []string

	payload, err := v.validateRaw(spec, raw, &repairs)
	if err == nil {
		return Result{Payload: payload, Status: model.ValidationSuccess, Repairs: repairs}
	}
	v.log.Warn("validation failed, attempting schema repair", "key", key, "error", err)

	if repair != nil {
		if doc, ok := JSONSchema(key); ok {
			repaired, rerr := repair(ctx, key, raw, doc)
			if rerr == nil {
				repairs = append(repairs, RepairSchemaRepair)
				payload, err = v.validateRaw(spec, repaired, &repairs)
				if err == nil {
					return Result{Payload: payload, Status: model.ValidationSuccess, Repairs: repairs}
				}
			}
			v.log.Warn("schema repair did not produce a valid payload", "key", key, "error", err)
		}
	}

	repairs = append(repairs, "degraded_fallback")
	return Result{Payload: Degraded(key, excerpt), Status: model.ValidationDegraded, Repairs: repairs}
}

// Validate runs coercion and structural checks without the repair or
// fallback stages. Exposed for pre-validated payloads such as cache reads.
func (v *Validator) Validate(key model.AnalysisKey, payload json.RawMessage) (json.RawMessage, error) {
	spec, ok := specFor(key)
	if !ok {
		return nil, fmt.Errorf("no schema for key %s", key)
	}
	var repairs []string
	return v.validateRaw(spec, string(payload), &repairs)
}

func (v *Validator) validateRaw(spec field, raw string, repairs *[]string) (json.RawMessage, error) {
	value, err := parseLenient(raw, repairs)
	if err != nil {
		return nil, err
	}

	cleaned, err := validateNode(spec, value, spec.name, repairs)
	if err != nil {
		return nil, err
	}

	out, err := json.Marshal(cleaned)
	if err != nil {
		return nil, err
	}
	return out, nil
}

var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

// parseLenient parses JSON, falling back to cheap syntax repairs and then to
// extracting the outermost object from prose-wrapped output.
func parseLenient(raw string, repairs *[]string) (any, error) {
	raw = strings.TrimSpace(raw)

	var value any
	if err := json.Unmarshal([]byte(raw), &value); err == nil {
		return value, nil
	}

	fixed := trailingCommaRe.ReplaceAllString(strings.ReplaceAll(raw, "'", `"`), "$1")
	if err := json.Unmarshal([]byte(fixed), &value); err == nil {
		*repairs = append(*repairs, RepairSyntax)
		return value, nil
	}

	start := strings.Index(fixed, "{")
	end := strings.LastIndex(fixed, "}")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("no JSON object in model output")
	}
	if err := json.Unmarshal([]byte(fixed[start:end+1]), &value); err != nil {
		return nil, fmt.Errorf("model output does not parse as JSON: %w", err)
	}
	*repairs = append(*repairs, RepairSyntax)
	return value, nil
}

func validateNode(f field, value any, path string, repairs *[]string) (any, error) {
	switch f.kind {
	case kindObject:
		return validateObject(f, value, path, repairs)
	case kindArray:
		return validateArray(f, value, path, repairs)
	case kindString:
		return validateString(f, value, path, repairs)
	case kindInt:
		return validateInt(f, value, path, repairs)
	case kindEnum:
		return validateEnum(f, value, path, repairs)
	}
	return nil, fmt.Errorf("%s: unknown field kind", path)
}

func validateObject(f field, value any, path string, repairs *[]string) (any, error) {
	m, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected object, got %T", path, value)
	}

	// Unknown keys are dropped silently; only declared fields survive.
	out := make(map[string]any, len(f.fields))
	for _, child := range f.fields {
		childPath := child.name
		if path != "" {
			childPath = path + "." + child.name
		}
		raw, present := m[child.name]
		if !present || raw == nil {
			if child.optional {
				continue
			}
			// A required array that may be empty is synthesized rather than
			// failing the payload.
			if child.kind == kindArray && child.minItems == 0 {
				out[child.name] = []any{}
				*repairs = append(*repairs, RepairDefaulted)
				continue
			}
			return nil, fmt.Errorf("%s: required field missing", childPath)
		}
		cleaned, err := validateNode(child, raw, childPath, repairs)
		if err != nil {
			return nil, err
		}
		out[child.name] = cleaned
	}
	return out, nil
}

func validateArray(f field, value any, path string, repairs *[]string) (any, error) {
	list, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected array, got %T", path, value)
	}

	// Items are validated individually; invalid ones are pruned rather than
	// failing the whole payload.
	out := make([]any, 0, len(list))
	for i, item := range list {
		cleaned, err := validateNode(*f.items, item, fmt.Sprintf("%s[%d]", path, i), repairs)
		if err != nil {
			*repairs = append(*repairs, RepairDroppedItem)
			continue
		}
		out = append(out, cleaned)
	}

	if f.maxItems > 0 && len(out) > f.maxItems {
		out = out[:f.maxItems]
		*repairs = append(*repairs, RepairTruncated)
	}
	if len(out) < f.minItems {
		return nil, fmt.Errorf("%s: %d valid items, need at least %d", path, len(out), f.minItems)
	}
	return out, nil
}

func validateString(f field, value any, path string, repairs *[]string) (any, error) {
	s, ok := value.(string)
	if !ok {
		switch typed := value.(type) {
		case float64:
			s = strconv.FormatFloat(typed, 'f', -1, 64)
		case bool:
			s = strconv.FormatBool(typed)
		default:
			return nil, fmt.Errorf("%s: expected string, got %T", path, value)
		}
	}
	s = strings.TrimSpace(s)

	if len(s) < f.minLen {
		return nil, fmt.Errorf("%s: string below minimum length %d", path, f.minLen)
	}
	if f.maxLen > 0 && len(s) > f.maxLen {
		s = truncate(s, f.maxLen)
		*repairs = append(*repairs, RepairTruncated)
	}
	return s, nil
}

func validateInt(f field, value any, path string, repairs *[]string) (any, error) {
	var n int
	switch typed := value.(type) {
	case float64:
		n = int(math.Round(typed))
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(typed))
		if err != nil {
			return nil, fmt.Errorf("%s: %q is not an integer", path, typed)
		}
		n = parsed
		*repairs = append(*repairs, RepairCoercedInt)
	default:
		return nil, fmt.Errorf("%s: expected integer, got %T", path, value)
	}

	if n < f.min {
		n = f.min
		*repairs = append(*repairs, RepairClamped)
	}
	if n > f.max {
		n = f.max
		*repairs = append(*repairs, RepairClamped)
	}
	return n, nil
}

func validateEnum(f field, value any, path string, repairs *[]string) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("%s: expected string enum, got %T", path, value)
	}
	s = strings.TrimSpace(s)

	for _, allowed := range f.values {
		if s == allowed {
			return s, nil
		}
	}
	for _, allowed := range f.values {
		if strings.EqualFold(s, allowed) {
			*repairs = append(*repairs, RepairEnumCase)
			return allowed, nil
		}
	}
	return nil, fmt.Errorf("%s: %q not in %v", path, s, f.values)
}

// truncate cuts on a word boundary when one is close enough to the limit,
// and never mid-rune.
func truncate(s string, max int) string {
	for max > 0 && max < len(s) && !utf8.RuneStart(s[max]) {
		max--
	}
	cut := s[:max]
	if idx := strings.LastIndexByte(cut, ' '); idx > max*3/4 {
		return cut[:idx]
	}
	return cut
}
