package model

import "encoding/json"

// Mode selects which set of analysis keys a scan runs.
type Mode string

const (
	ModeDiagnosis Mode = "diagnosis"
	ModeDiscovery Mode = "discovery"
)

// AnalysisKey names a single analysis a scan can produce.
type AnalysisKey string

const (
	KeyPositioningThemes   AnalysisKey = "positioning_themes"
	KeyKeyMessages         AnalysisKey = "key_messages"
	KeyToneOfVoice         AnalysisKey = "tone_of_voice"
	KeyBrandElements       AnalysisKey = "brand_elements"
	KeyVisualTextAlignment AnalysisKey = "visual_text_alignment"

	KeyEmotion     AnalysisKey = "emotion"
	KeyAttention   AnalysisKey = "attention"
	KeyStory       AnalysisKey = "story"
	KeyInvolvement AnalysisKey = "involvement"
	KeyRepetition  AnalysisKey = "repetition"
	KeyConsistency AnalysisKey = "consistency"
)

// DiscoveryTextKeys returns the three textual discovery analyses that run
// concurrently against the corpus. The two visual keys are driven separately
// by the vision analyzer.
func DiscoveryTextKeys() []AnalysisKey {
	return []AnalysisKey{KeyPositioningThemes, KeyKeyMessages, KeyToneOfVoice}
}

// DiagnosisKeys returns the six memorability keys scored in diagnosis mode.
func DiagnosisKeys() []AnalysisKey {
	return []AnalysisKey{KeyEmotion, KeyAttention, KeyStory, KeyInvolvement, KeyRepetition, KeyConsistency}
}

// ScanRequest is the immutable input that starts a scan.
type ScanRequest struct {
	ScanID        string `json:"scanId"`
	SeedURL       string `json:"url"`
	Mode          Mode   `json:"mode"`
	PreferredLang string `json:"preferredLang,omitempty"`
}

// LinkOrigin records where a candidate link was discovered.
type LinkOrigin string

const (
	OriginHTML    LinkOrigin = "html"
	OriginSitemap LinkOrigin = "sitemap"
)

// DiscoveredLink is a same-root-domain candidate extracted from the homepage
// or a sitemap, keyed by its normalized URL.
type DiscoveredLink struct {
	URL        string     `json:"url"`
	AnchorText string     `json:"anchorText,omitempty"`
	Origin     LinkOrigin `json:"origin"`
}

// ScoredLink is a DiscoveredLink with its keyword-tier score attached.
type ScoredLink struct {
	DiscoveredLink
	Score int `json:"score"`
}

// Screenshot holds raw image bytes plus the MIME type reported by the
// capturing engine. CacheID is the opaque handle shared with the gateway.
type Screenshot struct {
	Bytes   []byte `json:"-"`
	MIME    string `json:"mime"`
	CacheID string `json:"cacheId"`
}

// Page is a fetched (and optionally distilled) page.
type Page struct {
	URL        string      `json:"url"`
	HTML       string      `json:"-"`
	Distilled  string      `json:"distilled,omitempty"`
	Screenshot *Screenshot `json:"screenshot,omitempty"`
}

// Corpus is the bounded, ordered concatenation of page distillates plus the
// optional social distillate that feeds the analyzers.
type Corpus struct {
	Text      string   `json:"text"`
	PageURLs  []string `json:"pageUrls"`
	PageCount int      `json:"pageCount"`
}

// Validation status values carried on every emitted result. A "failed" state
// exists internally but is never surfaced to clients.
const (
	ValidationSuccess  = "success"
	ValidationDegraded = "degraded_fallback"
	ValidationFailed   = "failed"
)

// CallMetrics captures per-analysis operational metadata.
type CallMetrics struct {
	LatencyMs        int64    `json:"latency_ms"`
	TokenUsage       int      `json:"token_usage"`
	Model            string   `json:"model"`
	APIUsed          string   `json:"api_used,omitempty"`
	ValidationStatus string   `json:"validation_status"`
	Repairs          []string `json:"repairs,omitempty"`
	TraceID          string   `json:"trace_id"`
	CacheHit         bool     `json:"cache_hit,omitempty"`
}

// AnalysisResult pairs a validated payload with its metrics. Payload always
// validates against the per-key schema; degraded fallbacks are still valid.
type AnalysisResult struct {
	Key     AnalysisKey     `json:"key"`
	Payload json.RawMessage `json:"payload"`
	Metrics CallMetrics     `json:"metrics"`
}

// EventType tags a ScanEvent on the outbound stream.
type EventType string

const (
	EventStatus          EventType = "status"
	EventActivity        EventType = "activity"
	EventScreenshotReady EventType = "screenshot_ready"
	EventDiscoveryResult EventType = "discovery_result"
	EventKeyResult       EventType = "key_result"
	EventSummary         EventType = "summary"
	EventQuantSummary    EventType = "quantitative_summary"
	EventComplete        EventType = "complete"
	EventError           EventType = "error"
)

// ResultMetrics is the trimmed metrics block attached to discovery_result
// events on the wire.
type ResultMetrics struct {
	LatencyMs  int64  `json:"latency_ms"`
	TokenUsage int    `json:"token_usage"`
	Model      string `json:"model"`
	CacheHit   bool   `json:"cache_hit,omitempty"`
}

// QuantSummary is the diagnosis-mode scoreboard.
type QuantSummary struct {
	KeysAnalyzed int `json:"keys_analyzed"`
	StrongKeys   int `json:"strong_keys"`
	WeakKeys     int `json:"weak_keys"`
}

// ScanEvent is one message on the event stream. Every message carries Type;
// the remaining fields are populated per event kind and omitted otherwise.
type ScanEvent struct {
	Type EventType `json:"type"`

	// status / activity / complete / error
	Message   string `json:"message,omitempty"`
	Phase     string `json:"phase,omitempty"`
	Progress  int    `json:"progress,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`

	// screenshot_ready
	ID  string `json:"id,omitempty"`
	URL string `json:"url,omitempty"`

	// discovery_result / key_result
	Key      AnalysisKey     `json:"key,omitempty"`
	Analysis json.RawMessage `json:"analysis,omitempty"`
	Metrics  *ResultMetrics  `json:"metrics,omitempty"`

	// key_result (diagnosis)
	Score          *int   `json:"score,omitempty"`
	Evidence       string `json:"evidence,omitempty"`
	Confidence     *int   `json:"confidence,omitempty"`
	Recommendation string `json:"recommendation,omitempty"`

	// summary
	Text string `json:"text,omitempty"`

	// quantitative_summary
	Quant *QuantSummary `json:"quantitative_summary,omitempty"`
}

// Terminal reports whether the event ends the stream for its scan. Per-key
// error events carry the key and are not terminal.
func (e ScanEvent) Terminal() bool {
	return e.Type == EventComplete || (e.Type == EventError && e.Key == "")
}
