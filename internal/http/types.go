package http

// ErrorResponse is the envelope for every non-2xx JSON response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Error   string `json:"error"`
}

// ScanStartedResponse acknowledges an accepted scan request.
type ScanStartedResponse struct {
	Success bool   `json:"success"`
	ScanID  string `json:"scan_id"`
	Mode    string `json:"mode"`
	URL     string `json:"url"`
}

// ScanRequestBody is the POST /v1/scan payload. PreferredLang is an optional
// BCP-47 tag steering the language of the analysis output.
type ScanRequestBody struct {
	URL           string `json:"url"`
	Mode          string `json:"mode"`
	PreferredLang string `json:"preferred_lang"`
}
