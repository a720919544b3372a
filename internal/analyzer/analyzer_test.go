package analyzer

import (
	"context"
	"strings"
	"testing"
	"time"

	"brandlens/internal/cache"
	"brandlens/internal/llm"
	"brandlens/internal/model"
)

func TestSanitize(t *testing.T) {
	in := `<script>evil()</script>Our mission is to build <b>robots</b> that assemble products faster than any human line, across three continents and many industries.`
	out, err := Sanitize(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(out, "evil") || strings.Contains(out, "<b>") {
		t.Fatalf("markup survived sanitation: %q", out)
	}

	if _, err := Sanitize(strings.Repeat("a", 99)); err == nil {
		t.Fatalf("99 chars must be rejected")
	}
	if _, err := Sanitize(strings.Repeat("a", 100)); err != nil {
		t.Fatalf("100 chars must be accepted: %v", err)
	}
}

func TestTruncateSmart_PrefersBrandLines(t *testing.T) {
	filler := strings.Repeat("generic filler text without signal words here. ", 3)
	text := strings.Join([]string{
		filler, filler, filler,
		"Our mission is to automate every assembly line on the planet.",
		filler, filler,
	}, "\n")

	out := TruncateSmart(text, 120)
	if !strings.Contains(out, "Our mission") {
		t.Fatalf("brand-signal line dropped under truncation:\n%s", out)
	}
	if len(out) > 120 {
		t.Fatalf("budget exceeded: %d", len(out))
	}
}

func TestPreselect_UnderBudgetPassesThrough(t *testing.T) {
	text := "short corpus"
	out, stats := Preselect(model.KeyEmotion, text, 1000)
	if out != text || stats.SelectedChunks != 1 {
		t.Fatalf("under-budget input should pass through untouched")
	}
}

func TestPreselect_KeepsRelevantChunks(t *testing.T) {
	noise := strings.Repeat("quarterly logistics throughput metrics table row data. ", 50)
	signal := strings.Repeat("Founded in 1994, our story began in a garage; the journey since then shaped everything. ", 25)
	text := noise + "\n" + signal + "\n" + noise

	out, stats := Preselect(model.KeyStory, text, len(signal)+500)
	if !strings.Contains(out, "our story began") {
		t.Fatalf("story chunks should win pre-selection")
	}
	if stats.SelectedChunks == 0 || stats.SelectedChunks >= stats.TotalChunks {
		t.Fatalf("pre-selection should pick a strict subset: %+v", stats)
	}
}

func TestBuildPrompt_ToneRequiresVerbatimQuotes(t *testing.T) {
	p := BuildPrompt(model.KeyToneOfVoice, "content", "")
	if !strings.Contains(p, "verbatim quote of 5 to 25 words") {
		t.Fatalf("tone prompt must demand verbatim quotes")
	}
	if !strings.Contains(p, "content") {
		t.Fatalf("input block missing")
	}
}

func TestBuildPrompt_PreferredLanguage(t *testing.T) {
	plain := BuildPrompt(model.KeyEmotion, "content", "")
	if strings.Contains(plain, "language tagged") {
		t.Fatalf("no language directive without a preference:\n%s", plain)
	}

	tagged := BuildPrompt(model.KeyEmotion, "content", "de-AT")
	if !strings.Contains(tagged, "language tagged de-AT") {
		t.Fatalf("language directive missing:\n%s", tagged)
	}
	// Different prompt text means a different cache fingerprint, so cached
	// results never leak across languages.
	if tagged == plain {
		t.Fatal("language preference must change the prompt")
	}
}

type scriptedLLM struct {
	responses []string
	calls     int
}

func (s *scriptedLLM) ChooseAndCall(_ context.Context, req llm.Request) (string, llm.Meta, error) {
	if s.calls >= len(s.responses) {
		return "", llm.Meta{}, llm.ErrAllModelsFailed
	}
	out := s.responses[s.calls]
	s.calls++
	return out, llm.Meta{Model: "model-strong", API: llm.APIChatCompletions, Tokens: 100}, nil
}

const corpusText = `Acme builds autonomous assembly systems for manufacturers across three continents.
Our mission is to automate the repetitive and elevate the human.
We are proud of our journey from a garage workshop to a global operation.`

func TestRun_SuccessAndCacheReplay(t *testing.T) {
	resultCache := cache.NewResultCache(t.TempDir(), time.Hour, "", nil)
	valid := `{"alignment": "Yes", "justification": "Visual identity reinforces the automation-first positioning."}`

	first := New(&scriptedLLM{responses: []string{valid}}, nil, resultCache, nil, nil, "v1", nil)
	res, err := first.Run(context.Background(), "scan-1", model.KeyVisualTextAlignment, corpusText, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Metrics.ValidationStatus != model.ValidationSuccess || res.Metrics.CacheHit {
		t.Fatalf("first run should be a fresh success: %+v", res.Metrics)
	}

	// Second analyzer, same cache, scripted LLM that would fail if called.
	second := New(&scriptedLLM{}, nil, resultCache, nil, nil, "v1", nil)
	replay, err := second.Run(context.Background(), "scan-2", model.KeyVisualTextAlignment, corpusText, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !replay.Metrics.CacheHit || replay.Metrics.LatencyMs != 0 {
		t.Fatalf("expected zero-latency cache hit: %+v", replay.Metrics)
	}
	if string(replay.Payload) != string(res.Payload) {
		t.Fatalf("cached payload must be byte-identical")
	}
}

func TestRun_LLMFailureDegrades(t *testing.T) {
	a := New(&scriptedLLM{}, nil, nil, nil, nil, "v1", nil)
	res, err := a.Run(context.Background(), "scan-3", model.KeyEmotion, corpusText, "", nil)
	if err != nil {
		t.Fatalf("llm failure must degrade, not error: %v", err)
	}
	if res.Metrics.ValidationStatus != model.ValidationDegraded {
		t.Fatalf("expected degraded status, got %s", res.Metrics.ValidationStatus)
	}
	if len(res.Payload) == 0 {
		t.Fatalf("degraded result must still carry a payload")
	}
}

func TestRun_RepairRoundIsCached(t *testing.T) {
	resultCache := cache.NewResultCache(t.TempDir(), time.Hour, "", nil)
	broken := `{"alignment": "maybe"}`
	repaired := `{"alignment": "No", "justification": "The visuals do not reflect the stated positioning."}`

	scripted := &scriptedLLM{responses: []string{broken, repaired}}
	a := New(scripted, nil, resultCache, nil, nil, "v1", nil)

	res, err := a.Run(context.Background(), "scan-4", model.KeyVisualTextAlignment, corpusText, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Metrics.ValidationStatus != model.ValidationSuccess {
		t.Fatalf("repair round should recover: %+v", res.Metrics)
	}
	if scripted.calls != 2 {
		t.Fatalf("expected exactly one repair call, got %d total calls", scripted.calls)
	}
}

type blockedBudget struct{}

func (blockedBudget) Acquire(context.Context, int, time.Duration) bool { return false }
func (blockedBudget) Release()                                         {}

func TestRun_SchedulerExhaustion(t *testing.T) {
	a := New(&scriptedLLM{responses: []string{"{}"}}, blockedBudget{}, nil, nil, nil, "v1", nil)
	_, err := a.Run(context.Background(), "scan-5", model.KeyEmotion, corpusText, "", nil)
	if err != ErrSchedulerExhausted {
		t.Fatalf("expected ErrSchedulerExhausted, got %v", err)
	}
}
