package oplog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger appends structured JSONL records to the operational log files under
// the data directory. Writes are best-effort: a failed append never disturbs
// the scan that produced the record.
type Logger struct {
	mu  sync.Mutex
	dir string
}

// New creates the data directory if needed and returns a Logger over it.
func New(dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Logger{dir: dir}, nil
}

// AnalysisRecord is one line of discovery_analysis.jsonl.
type AnalysisRecord struct {
	Timestamp        string   `json:"timestamp"`
	TraceID          string   `json:"trace_id"`
	ScanID           string   `json:"scan_id,omitempty"`
	Key              string   `json:"key"`
	Model            string   `json:"model"`
	APIUsed          string   `json:"api_used,omitempty"`
	LatencyMs        int64    `json:"latency_ms"`
	TokenUsage       int      `json:"token_usage"`
	ValidationStatus string   `json:"validation_status"`
	Repairs          []string `json:"repairs,omitempty"`
	CacheHit         bool     `json:"cache_hit,omitempty"`
	RawTruncated     string   `json:"raw_truncated,omitempty"`
}

// ErrorRecord is one line of discovery_errors.jsonl.
type ErrorRecord struct {
	Timestamp string `json:"timestamp"`
	TraceID   string `json:"trace_id,omitempty"`
	ScanID    string `json:"scan_id,omitempty"`
	Key       string `json:"key,omitempty"`
	Stage     string `json:"stage,omitempty"`
	Error     string `json:"error"`
}

// Analysis appends a per-result record to the analysis log. Raw model output
// is truncated so a single verbose response cannot bloat the log.
func (l *Logger) Analysis(rec AnalysisRecord) {
	if rec.Timestamp == "" {
		rec.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	if len(rec.RawTruncated) > 2000 {
		rec.RawTruncated = rec.RawTruncated[:2000]
	}
	l.append("discovery_analysis.jsonl", rec)
}

// Error appends an error record to the error log.
func (l *Logger) Error(rec ErrorRecord) {
	if rec.Timestamp == "" {
		rec.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	l.append("discovery_errors.jsonl", rec)
}

// Debug appends an arbitrary record to the debug log.
func (l *Logger) Debug(rec map[string]any) {
	if l == nil {
		return
	}
	if _, ok := rec["timestamp"]; !ok {
		rec["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	}
	l.append("discovery_debug.jsonl", rec)
}

func (l *Logger) append(name string, v any) {
	if l == nil {
		return
	}
	line, err := json.Marshal(v)
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(filepath.Join(l.dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer f.Close()

	_, _ = f.Write(append(line, '\n'))
}
