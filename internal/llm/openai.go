package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// transport issues raw OpenAI-compatible HTTP calls. It knows nothing about
// the cascade; the Client above it decides models and response formats.
type transport struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func newTransport(baseURL, apiKey string) *transport {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	// No client-level timeout: deadlines come from the per-call context so
	// the adaptive timeout stays in one place.
	return &transport{baseURL: baseURL, apiKey: apiKey, http: &http.Client{}}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *imageURLPart `json:"image_url,omitempty"`
}

type imageURLPart struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type responseFormat struct {
	Type       string          `json:"type"`
	JSONSchema *jsonSchemaSpec `json:"json_schema,omitempty"`
}

type jsonSchemaSpec struct {
	Name   string          `json:"name"`
	Strict bool            `json:"strict"`
	Schema json.RawMessage `json:"schema"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// responsesRequest targets the structured-output "responses" endpoint of
// reasoning models.
type responsesRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type responsesResponse struct {
	Output []struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (t *transport) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &upstreamError{Status: resp.StatusCode, Path: path}
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// upstreamError carries the HTTP status so callers can classify rate limits
// and quota failures for user-facing messages.
type upstreamError struct {
	Status int
	Path   string
}

func (e *upstreamError) Error() string {
	return fmt.Sprintf("upstream %s returned status %d", e.Path, e.Status)
}

// chat performs one chat-completions call. When images are present the user
// message becomes a multimodal content array with high-detail image parts.
func (t *transport) chat(ctx context.Context, model, system, prompt string, format *responseFormat, images []Image) (string, int, error) {
	var userContent any = prompt
	if len(images) > 0 {
		parts := []contentPart{{Type: "text", Text: prompt}}
		for _, img := range images {
			parts = append(parts, contentPart{
				Type: "image_url",
				ImageURL: &imageURLPart{
					URL:    fmt.Sprintf("data:%s;base64,%s", img.MIME, img.B64),
					Detail: "high",
				},
			})
		}
		userContent = parts
	}

	body := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: userContent},
		},
		Temperature:    0.0,
		ResponseFormat: format,
	}

	var parsed chatResponse
	if err := t.post(ctx, "/chat/completions", body, &parsed); err != nil {
		return "", 0, err
	}
	if parsed.Error != nil {
		return "", 0, errors.New("chat completion error: " + parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", 0, errors.New("chat completion returned no choices")
	}
	return parsed.Choices[0].Message.Content, parsed.Usage.TotalTokens, nil
}

// responses performs one structured-output call against the reasoning
// endpoint.
func (t *transport) responses(ctx context.Context, model, system, prompt string) (string, int, error) {
	input := prompt
	if system != "" {
		input = system + "\n\n" + prompt
	}

	var parsed responsesResponse
	if err := t.post(ctx, "/responses", responsesRequest{Model: model, Input: input}, &parsed); err != nil {
		return "", 0, err
	}
	if parsed.Error != nil {
		return "", 0, errors.New("responses error: " + parsed.Error.Message)
	}

	for _, block := range parsed.Output {
		for _, c := range block.Content {
			if c.Type == "output_text" && c.Text != "" {
				return c.Text, parsed.Usage.TotalTokens, nil
			}
		}
	}
	return "", 0, errors.New("responses returned no output text")
}
