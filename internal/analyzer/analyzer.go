package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"brandlens/internal/cache"
	"brandlens/internal/llm"
	"brandlens/internal/model"
	"brandlens/internal/oplog"
	"brandlens/internal/schema"
)

// Per-key input budget in characters, roughly 6000 tokens of content.
const inputBudgetChars = 24000

const acquireWait = 120 * time.Second

// ErrSchedulerExhausted marks a call that could not obtain LLM budget in time.
var ErrSchedulerExhausted = errors.New("llm scheduler budget exhausted")

// Caller is the slice of the LLM client the analyzer needs.
type Caller interface {
	ChooseAndCall(ctx context.Context, req llm.Request) (string, llm.Meta, error)
}

// Budget is the slice of the scheduler the analyzer needs.
type Budget interface {
	Acquire(ctx context.Context, tokens int, maxWait time.Duration) bool
	Release()
}

// Analyzer runs one analysis key end to end: pre-selection, prompt, cache,
// scheduling, LLM call, validation, logging.
type Analyzer struct {
	llm           Caller
	sched         Budget
	cache         *cache.ResultCache
	validator     *schema.Validator
	ops           *oplog.Logger
	promptVersion string
	log           *slog.Logger
}

func New(caller Caller, budget Budget, results *cache.ResultCache, validator *schema.Validator, ops *oplog.Logger, promptVersion string, log *slog.Logger) *Analyzer {
	if log == nil {
		log = slog.Default()
	}
	if validator == nil {
		validator = schema.NewValidator(log)
	}
	return &Analyzer{
		llm:           caller,
		sched:         budget,
		cache:         results,
		validator:     validator,
		ops:           ops,
		promptVersion: promptVersion,
		log:           log,
	}
}

// Run analyzes one key against sanitized corpus text. Images, when present,
// are attached to the call for the vision keys. lang, when set, directs the
// response language and thereby the cache identity. The returned result
// always carries a schema-valid payload.
func (a *Analyzer) Run(ctx context.Context, scanID string, key model.AnalysisKey, text, lang string, images []llm.Image) (model.AnalysisResult, error) {
	traceID := uuid.NewString()
	started := time.Now()

	input, stats := Preselect(key, text, inputBudgetChars)
	prompt := BuildPrompt(key, input, lang)
	schemaDoc, _ := schema.JSONSchema(key)

	fingerprint := cache.Fingerprint(input, prompt, schemaDoc, a.promptVersion)

	if a.cache != nil && len(images) == 0 {
		if payload, ok := a.cache.Get(ctx, string(key), fingerprint); ok {
			metrics := model.CallMetrics{
				LatencyMs:        0,
				Model:            "cache",
				ValidationStatus: model.ValidationSuccess,
				TraceID:          traceID,
				CacheHit:         true,
			}
			a.logAnalysis(scanID, key, metrics, "")
			return model.AnalysisResult{Key: key, Payload: payload, Metrics: metrics}, nil
		}
	}

	tokens := llm.EstimateTokens(prompt)
	if a.sched != nil {
		if !a.sched.Acquire(ctx, tokens, acquireWait) {
			a.logError(scanID, traceID, key, "scheduler", ErrSchedulerExhausted)
			return model.AnalysisResult{}, ErrSchedulerExhausted
		}
		defer a.sched.Release()
	}

	raw, meta, err := a.llm.ChooseAndCall(ctx, llm.Request{
		Key:           string(key),
		System:        systemPrompt,
		Prompt:        prompt,
		Schema:        schemaDoc,
		SchemaName:    string(key),
		EnforceSchema: true,
		Images:        images,
	})
	if err != nil {
		a.logError(scanID, traceID, key, "llm", err)
		// No raw output to repair; synthesize the degraded payload directly.
		payload := schema.Degraded(key, input)
		m := model.CallMetrics{
			LatencyMs:        time.Since(started).Milliseconds(),
			TokenUsage:       tokens,
			Model:            meta.Model,
			ValidationStatus: model.ValidationDegraded,
			Repairs:          []string{"degraded_fallback"},
			TraceID:          traceID,
		}
		a.logAnalysis(scanID, key, m, "")
		return model.AnalysisResult{Key: key, Payload: payload, Metrics: m}, nil
	}

	res := a.validator.Process(ctx, key, raw, input, a.repairFunc())

	m := model.CallMetrics{
		LatencyMs:        time.Since(started).Milliseconds(),
		TokenUsage:       meta.Tokens,
		Model:            meta.Model,
		APIUsed:          string(meta.API),
		ValidationStatus: res.Status,
		Repairs:          res.Repairs,
		TraceID:          traceID,
	}

	if res.Status == model.ValidationSuccess && a.cache != nil && len(images) == 0 {
		a.cache.Put(ctx, string(key), fingerprint, res.Payload)
	}

	a.logAnalysis(scanID, key, m, raw)
	a.ops.Debug(map[string]any{
		"trace_id":        traceID,
		"key":             string(key),
		"chunks_total":    stats.TotalChunks,
		"chunks_selected": stats.SelectedChunks,
		"input_chars":     stats.OutputChars,
	})

	return model.AnalysisResult{Key: key, Payload: res.Payload, Metrics: m}, nil
}

// repairFunc routes schema-repair rounds back through the LLM client with the
// strict response format.
func (a *Analyzer) repairFunc() schema.RepairFunc {
	return func(ctx context.Context, key model.AnalysisKey, raw string, schemaDoc json.RawMessage) (string, error) {
		text, _, err := a.llm.ChooseAndCall(ctx, llm.Request{
			Key:           string(key),
			System:        systemPrompt,
			Prompt:        BuildRepairPrompt(raw, schemaDoc),
			Schema:        schemaDoc,
			SchemaName:    string(key),
			EnforceSchema: true,
		})
		return text, err
	}
}

func (a *Analyzer) logAnalysis(scanID string, key model.AnalysisKey, m model.CallMetrics, raw string) {
	if a.ops == nil {
		return
	}
	a.ops.Analysis(oplog.AnalysisRecord{
		TraceID:          m.TraceID,
		ScanID:           scanID,
		Key:              string(key),
		Model:            m.Model,
		APIUsed:          m.APIUsed,
		LatencyMs:        m.LatencyMs,
		TokenUsage:       m.TokenUsage,
		ValidationStatus: m.ValidationStatus,
		Repairs:          m.Repairs,
		CacheHit:         m.CacheHit,
		RawTruncated:     raw,
	})
}

func (a *Analyzer) logError(scanID, traceID string, key model.AnalysisKey, stage string, err error) {
	a.log.Warn("analysis stage failed", "scan_id", scanID, "key", key, "stage", stage, "error", err)
	if a.ops != nil {
		a.ops.Error(oplog.ErrorRecord{
			TraceID: traceID,
			ScanID:  scanID,
			Key:     string(key),
			Stage:   stage,
			Error:   fmt.Sprintf("%v", err),
		})
	}
}
