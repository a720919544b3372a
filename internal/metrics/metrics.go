package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Simple Prometheus-style metrics for the analysis pipeline.
// This is intentionally minimal and in-memory only.

var (
	mu sync.RWMutex

	requestsTotal = make(map[requestKey]int64)
	scansTotal    = make(map[scanKey]int64)
	llmCallsTotal = make(map[llmKey]int64)
	fetchesTotal  = make(map[fetchKey]int64)
	cacheTotal    = make(map[cacheKey]int64)

	breakerOpenedTotal = make(map[string]int64)
	eventsDroppedTotal = make(map[string]int64)
)

type requestKey struct {
	Method string
	Path   string
	Status int
}

type scanKey struct {
	Mode    string
	Outcome string
}

type llmKey struct {
	Model   string
	API     string
	Success string
}

type fetchKey struct {
	Engine  string
	Success string
}

type cacheKey struct {
	Key string
	Hit string
}

func boolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

// RecordRequest increments the HTTP request counter by route and status.
func RecordRequest(method, path string, status int) {
	mu.Lock()
	defer mu.Unlock()
	requestsTotal[requestKey{Method: method, Path: path, Status: status}]++
}

// RecordScan increments the per-mode scan counter with its terminal outcome.
func RecordScan(mode, outcome string) {
	mu.Lock()
	defer mu.Unlock()
	scansTotal[scanKey{Mode: mode, Outcome: outcome}]++
}

// RecordLLMCall increments LLM call counters by model and API surface.
func RecordLLMCall(model, api string, success bool) {
	mu.Lock()
	defer mu.Unlock()
	llmCallsTotal[llmKey{Model: model, API: api, Success: boolLabel(success)}]++
}

// RecordFetch increments page fetch counters by engine.
func RecordFetch(engine string, success bool) {
	mu.Lock()
	defer mu.Unlock()
	fetchesTotal[fetchKey{Engine: engine, Success: boolLabel(success)}]++
}

// RecordCacheLookup increments the per-analysis-key cache hit/miss counter.
func RecordCacheLookup(key string, hit bool) {
	mu.Lock()
	defer mu.Unlock()
	cacheTotal[cacheKey{Key: key, Hit: boolLabel(hit)}]++
}

// RecordBreakerOpen counts circuit breaker open transitions per analysis key.
func RecordBreakerOpen(key string) {
	mu.Lock()
	defer mu.Unlock()
	breakerOpenedTotal[key]++
}

// RecordEventDropped counts stream events shed under backpressure, by type.
func RecordEventDropped(eventType string) {
	mu.Lock()
	defer mu.Unlock()
	eventsDroppedTotal[eventType]++
}

// Export returns Prometheus-style metrics text.
func Export() string {
	mu.RLock()
	defer mu.RUnlock()

	var b strings.Builder

	b.WriteString("# HELP brandlens_requests_total Total HTTP requests by route and status\n")
	b.WriteString("# TYPE brandlens_requests_total counter\n")
	var rKeys []requestKey
	for k := range requestsTotal {
		rKeys = append(rKeys, k)
	}
	sort.Slice(rKeys, func(i, j int) bool {
		if rKeys[i].Path != rKeys[j].Path {
			return rKeys[i].Path < rKeys[j].Path
		}
		if rKeys[i].Method != rKeys[j].Method {
			return rKeys[i].Method < rKeys[j].Method
		}
		return rKeys[i].Status < rKeys[j].Status
	})
	for _, k := range rKeys {
		fmt.Fprintf(&b, "brandlens_requests_total{method=%q,path=%q,status=\"%d\"} %d\n", k.Method, k.Path, k.Status, requestsTotal[k])
	}

	b.WriteString("# HELP brandlens_scans_total Total scans by mode and outcome\n")
	b.WriteString("# TYPE brandlens_scans_total counter\n")
	var sKeys []scanKey
	for k := range scansTotal {
		sKeys = append(sKeys, k)
	}
	sort.Slice(sKeys, func(i, j int) bool {
		if sKeys[i].Mode != sKeys[j].Mode {
			return sKeys[i].Mode < sKeys[j].Mode
		}
		return sKeys[i].Outcome < sKeys[j].Outcome
	})
	for _, k := range sKeys {
		fmt.Fprintf(&b, "brandlens_scans_total{mode=%q,outcome=%q} %d\n", k.Mode, k.Outcome, scansTotal[k])
	}

	b.WriteString("# HELP brandlens_llm_calls_total Total LLM calls by model and API surface\n")
	b.WriteString("# TYPE brandlens_llm_calls_total counter\n")
	var lKeys []llmKey
	for k := range llmCallsTotal {
		lKeys = append(lKeys, k)
	}
	sort.Slice(lKeys, func(i, j int) bool {
		if lKeys[i].Model != lKeys[j].Model {
			return lKeys[i].Model < lKeys[j].Model
		}
		if lKeys[i].API != lKeys[j].API {
			return lKeys[i].API < lKeys[j].API
		}
		return lKeys[i].Success < lKeys[j].Success
	})
	for _, k := range lKeys {
		fmt.Fprintf(&b, "brandlens_llm_calls_total{model=%q,api=%q,success=%q} %d\n", k.Model, k.API, k.Success, llmCallsTotal[k])
	}

	b.WriteString("# HELP brandlens_fetches_total Total page fetches by engine\n")
	b.WriteString("# TYPE brandlens_fetches_total counter\n")
	var fKeys []fetchKey
	for k := range fetchesTotal {
		fKeys = append(fKeys, k)
	}
	sort.Slice(fKeys, func(i, j int) bool {
		if fKeys[i].Engine != fKeys[j].Engine {
			return fKeys[i].Engine < fKeys[j].Engine
		}
		return fKeys[i].Success < fKeys[j].Success
	})
	for _, k := range fKeys {
		fmt.Fprintf(&b, "brandlens_fetches_total{engine=%q,success=%q} %d\n", k.Engine, k.Success, fetchesTotal[k])
	}

	b.WriteString("# HELP brandlens_result_cache_lookups_total Result cache lookups by analysis key\n")
	b.WriteString("# TYPE brandlens_result_cache_lookups_total counter\n")
	var cKeys []cacheKey
	for k := range cacheTotal {
		cKeys = append(cKeys, k)
	}
	sort.Slice(cKeys, func(i, j int) bool {
		if cKeys[i].Key != cKeys[j].Key {
			return cKeys[i].Key < cKeys[j].Key
		}
		return cKeys[i].Hit < cKeys[j].Hit
	})
	for _, k := range cKeys {
		fmt.Fprintf(&b, "brandlens_result_cache_lookups_total{key=%q,hit=%q} %d\n", k.Key, k.Hit, cacheTotal[k])
	}

	b.WriteString("# HELP brandlens_breaker_opened_total Circuit breaker open transitions per analysis key\n")
	b.WriteString("# TYPE brandlens_breaker_opened_total counter\n")
	var bKeys []string
	for k := range breakerOpenedTotal {
		bKeys = append(bKeys, k)
	}
	sort.Strings(bKeys)
	for _, k := range bKeys {
		fmt.Fprintf(&b, "brandlens_breaker_opened_total{key=%q} %d\n", k, breakerOpenedTotal[k])
	}

	b.WriteString("# HELP brandlens_stream_events_dropped_total Events shed under backpressure by type\n")
	b.WriteString("# TYPE brandlens_stream_events_dropped_total counter\n")
	var eKeys []string
	for k := range eventsDroppedTotal {
		eKeys = append(eKeys, k)
	}
	sort.Strings(eKeys)
	for _, k := range eKeys {
		fmt.Fprintf(&b, "brandlens_stream_events_dropped_total{type=%q} %d\n", k, eventsDroppedTotal[k])
	}

	return b.String()
}
