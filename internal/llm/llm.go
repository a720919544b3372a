package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// API names the upstream surface a call went through.
type API string

const (
	APIResponses       API = "responses"
	APIChatCompletions API = "chat_completions"
)

// Request is a single analysis call. Schema is a JSON Schema document used
// both for strict response formats and for repair prompts.
type Request struct {
	Key           string
	System        string
	Prompt        string
	Schema        json.RawMessage
	SchemaName    string
	EnforceSchema bool
	Images        []Image
	TimeoutCap    time.Duration
}

// Image is a screenshot attached to a multimodal call, already base64-encoded.
type Image struct {
	B64  string
	MIME string
}

// Meta describes how a call was actually served.
type Meta struct {
	Model     string
	API       API
	LatencyMs int64
	Tokens    int
}

// TimeoutError marks a wall-clock timeout distinct from upstream failures so
// callers can decide to retry.
type TimeoutError struct {
	Model string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("llm call to %s timed out after %s", e.Model, e.After)
}

// ErrAllModelsFailed is returned when the full cascade is exhausted.
var ErrAllModelsFailed = errors.New("all models in the cascade failed")

const tokenEstimateFloor = 200

// EstimateTokens approximates prompt size at 1 token per 4 characters with a
// floor so tiny prompts still reserve a sane budget.
func EstimateTokens(text string) int {
	n := len(text) / 4
	if n < tokenEstimateFloor {
		return tokenEstimateFloor
	}
	return n
}

// AdaptiveTimeout scales the per-call deadline with prompt size:
// 20 s base plus 2 ms per token, bounded by cap.
func AdaptiveTimeout(tokens int, cap time.Duration) time.Duration {
	d := 20*time.Second + time.Duration(tokens)*2*time.Millisecond
	if d > cap {
		return cap
	}
	return d
}

// ParseJSONObject parses a JSON object out of raw model output. It first
// tries the whole string, then the outermost {...} block, so prose-wrapped
// responses still yield a payload.
func ParseJSONObject(content string) (json.RawMessage, error) {
	content = strings.TrimSpace(content)

	if json.Valid([]byte(content)) && strings.HasPrefix(content, "{") {
		return json.RawMessage(content), nil
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end <= start {
		return nil, errors.New("no JSON object found in content")
	}

	snippet := content[start : end+1]
	if !json.Valid([]byte(snippet)) {
		return nil, errors.New("embedded JSON object does not parse")
	}
	return json.RawMessage(snippet), nil
}

// callWithWallClock runs fn on its own goroutine and enforces a hard
// wall-clock deadline regardless of how the transport honors context
// cancellation.
func callWithWallClock(ctx context.Context, model string, timeout time.Duration, fn func(context.Context) (string, error)) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		text string
		err  error
	}
	done := make(chan outcome, 1)

	go func() {
		text, err := fn(callCtx)
		done <- outcome{text: text, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && errors.Is(out.err, context.DeadlineExceeded) {
			return "", &TimeoutError{Model: model, After: timeout}
		}
		return out.text, out.err
	case <-time.After(timeout + 2*time.Second):
		// The transport ignored cancellation; abandon the worker.
		return "", &TimeoutError{Model: model, After: timeout}
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
