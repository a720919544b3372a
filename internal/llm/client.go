package llm

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"brandlens/internal/config"
	"brandlens/internal/metrics"
)

// Breaker gates access to the primary model per analysis key.
type Breaker interface {
	Allow(key string) bool
	RecordFailure(key string)
	RecordSuccess(key string)
}

// nopBreaker is used when no breaker is wired (tests, one-shot tools).
type nopBreaker struct{}

func (nopBreaker) Allow(string) bool { return true }
func (nopBreaker) RecordFailure(string) {}
func (nopBreaker) RecordSuccess(string) {}

const (
	probeTimeout = 7 * time.Second
	retryBackoff = 2 * time.Second
)

// Client is the unified call surface over the model cascade.
type Client struct {
	cfg       config.LLMConfig
	transport *transport
	breaker   Breaker
	log       *slog.Logger

	probeOnce sync.Once
	primaryOK bool
}

func NewClient(cfg config.LLMConfig, breaker Breaker, log *slog.Logger) *Client {
	if breaker == nil {
		breaker = nopBreaker{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		cfg:       cfg,
		transport: newTransport(cfg.BaseURL, cfg.APIKey),
		breaker:   breaker,
		log:       log,
	}
}

// PrimaryAvailable probes the structured-output endpoint once per process
// with a short deadline and caches the verdict. The force flag skips the
// probe entirely.
func (c *Client) PrimaryAvailable(ctx context.Context) bool {
	if c.cfg.ForceChatCompletions || c.cfg.PrimaryModel == "" {
		return false
	}
	c.probeOnce.Do(func() {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()
		_, _, err := c.transport.responses(probeCtx, c.cfg.PrimaryModel, "", "Reply with the word ok.")
		c.primaryOK = err == nil
		c.log.Info("primary model probe", "model", c.cfg.PrimaryModel, "available", c.primaryOK)
	})
	return c.primaryOK
}

type strategy struct {
	model string
	api   API
	call  func(ctx context.Context) (string, int, error)
}

// ChooseAndCall walks the model cascade for one analysis call: structured
// primary (breaker permitting), then a strong chat model with an enforced
// schema, then the fast model with plain JSON mode. The first strategy that
// yields parseable text wins.
func (c *Client) ChooseAndCall(ctx context.Context, req Request) (string, Meta, error) {
	timeout := AdaptiveTimeout(EstimateTokens(req.Prompt), c.timeoutCap(req))

	var strategies []strategy

	if len(req.Images) == 0 && c.PrimaryAvailable(ctx) && c.breaker.Allow(req.Key) {
		strategies = append(strategies, strategy{
			model: c.cfg.PrimaryModel,
			api:   APIResponses,
			call: func(ctx context.Context) (string, int, error) {
				return c.transport.responses(ctx, c.cfg.PrimaryModel, req.System, req.Prompt)
			},
		})
	}

	fallbackFormat := &responseFormat{Type: "json_object"}
	if req.EnforceSchema && len(req.Schema) > 0 {
		fallbackFormat = &responseFormat{
			Type: "json_schema",
			JSONSchema: &jsonSchemaSpec{
				Name:   req.SchemaName,
				Strict: true,
				Schema: req.Schema,
			},
		}
	}
	strategies = append(strategies,
		strategy{
			model: c.cfg.FallbackModel,
			api:   APIChatCompletions,
			call: func(ctx context.Context) (string, int, error) {
				return c.transport.chat(ctx, c.cfg.FallbackModel, req.System, req.Prompt, fallbackFormat, req.Images)
			},
		},
		strategy{
			model: c.cfg.FastModel,
			api:   APIChatCompletions,
			call: func(ctx context.Context) (string, int, error) {
				return c.transport.chat(ctx, c.cfg.FastModel, req.System, req.Prompt, &responseFormat{Type: "json_object"}, req.Images)
			},
		},
	)

	var lastErr error
	for _, s := range strategies {
		if s.model == "" {
			continue
		}

		text, tokens, err := c.callOnce(ctx, s, timeout)
		metrics.RecordLLMCall(s.model, string(s.api), err == nil)

		if err != nil {
			lastErr = err
			c.breaker.RecordFailure(req.Key)
			c.log.Warn("llm call failed", "key", req.Key, "model", s.model, "api", s.api, "error", err)
			if ctx.Err() != nil {
				return "", Meta{}, ctx.Err()
			}
			continue
		}

		c.breaker.RecordSuccess(req.Key)
		if tokens == 0 {
			tokens = EstimateTokens(req.Prompt + text)
		}
		return text, Meta{Model: s.model, API: s.api, Tokens: tokens}, nil
	}

	if lastErr == nil {
		lastErr = ErrAllModelsFailed
	}
	return "", Meta{}, lastErr
}

// callOnce wraps one strategy in the wall-clock guard. Chat calls retry once
// with backoff on timeout only; other failures are final for that strategy.
func (c *Client) callOnce(ctx context.Context, s strategy, timeout time.Duration) (string, int, error) {
	var tokens int
	run := func(ctx context.Context) (string, error) {
		text, used, err := s.call(ctx)
		tokens = used
		return text, err
	}

	text, err := callWithWallClock(ctx, s.model, timeout, run)

	var te *TimeoutError
	if errors.As(err, &te) && s.api == APIChatCompletions {
		select {
		case <-time.After(retryBackoff):
		case <-ctx.Done():
			return "", 0, ctx.Err()
		}
		text, err = callWithWallClock(ctx, s.model, timeout, run)
	}

	return text, tokens, err
}

func (c *Client) timeoutCap(req Request) time.Duration {
	if req.TimeoutCap > 0 {
		return req.TimeoutCap
	}
	return 90 * time.Second
}
