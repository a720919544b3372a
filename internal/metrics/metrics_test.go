package metrics

import (
	"strings"
	"testing"
)

func TestExport_IncludesRecordedCounters(t *testing.T) {
	RecordRequest("POST", "/v1/scan", 202)
	RecordScan("discovery", "complete")
	RecordLLMCall("model-r1", "responses", true)
	RecordFetch("browser", false)
	RecordCacheLookup("tone_of_voice", true)
	RecordBreakerOpen("key_messages")
	RecordEventDropped("activity")

	out := Export()

	for _, want := range []string{
		`brandlens_requests_total{method="POST",path="/v1/scan",status="202"}`,
		`brandlens_scans_total{mode="discovery",outcome="complete"}`,
		`brandlens_llm_calls_total{model="model-r1",api="responses",success="true"}`,
		`brandlens_fetches_total{engine="browser",success="false"}`,
		`brandlens_result_cache_lookups_total{key="tone_of_voice",hit="true"}`,
		`brandlens_breaker_opened_total{key="key_messages"}`,
		`brandlens_stream_events_dropped_total{type="activity"}`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("export missing %q\n%s", want, out)
		}
	}
}
