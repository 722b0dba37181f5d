package gemini

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/upb/maternal-assistant/services/providers"
)

const (
	// DefaultBaseURL is the public Generative Language API root
	DefaultBaseURL = "https://generativelanguage.googleapis.com"

	// DefaultModel is used when no model is configured
	DefaultModel = "gemini-1.5-flash"
)

// Adapter encodes requests for the Gemini generateContent API. The system
// instruction and the prompt travel together as a single text part.
type Adapter struct{}

// NewAdapter creates a new Gemini adapter
func NewAdapter() *Adapter {
	return &Adapter{}
}

// Family returns the provider family name
func (a *Adapter) Family() string {
	return "gemini"
}

// Encode builds a generateContent request
func (a *Adapter) Encode(system, prompt string, d providers.Descriptor) (*providers.WireRequest, error) {
	text := prompt
	if strings.TrimSpace(system) != "" {
		text = system + "\n\n" + prompt
	}

	req := GenerateRequest{
		Contents: []Content{{
			Role:  "user",
			Parts: []Part{{Text: text}},
		}},
		GenerationConfig: &GenerationConfig{Temperature: &d.Temperature},
	}
	if d.MaxOutputTokens > 0 {
		req.GenerationConfig.MaxOutputTokens = d.MaxOutputTokens
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", providers.ErrEncodeRequest, err)
	}

	header := providers.JSONHeader()
	header.Set("x-goog-api-key", d.APIKey)

	path := "/v1beta/models/" + url.PathEscape(d.Model) + ":generateContent"
	return &providers.WireRequest{
		Method: http.MethodPost,
		URL:    d.Endpoint(path),
		Header: header,
		Body:   body,
	}, nil
}

// Decode concatenates the text parts of the first candidate
func (a *Adapter) Decode(body []byte, d providers.Descriptor) (*providers.Result, error) {
	var resp GenerateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", providers.ErrMalformedResponse, err)
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates in response", providers.ErrMalformedResponse)
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: candidate has no parts (finish reason %q)", providers.ErrMalformedResponse, candidate.FinishReason)
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		sb.WriteString(part.Text)
	}
	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty candidate text", providers.ErrMalformedResponse)
	}

	model := resp.ModelVersion
	if model == "" {
		model = d.Model
	}

	result := &providers.Result{
		Text:     text,
		Provider: d.Name,
		Model:    model,
	}
	if m := resp.UsageMetadata; m != nil {
		result.Usage = providers.NewUsage(m.PromptTokenCount, m.CandidatesTokenCount, m.TotalTokenCount)
	}
	return result, nil
}

// Gemini-specific request/response types

type GenerateRequest struct {
	Contents         []Content         `json:"contents"`
	GenerationConfig *GenerationConfig `json:"generationConfig,omitempty"`
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

type Part struct {
	Text string `json:"text"`
}

type GenerationConfig struct {
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
}

type GenerateResponse struct {
	Candidates    []Candidate    `json:"candidates"`
	UsageMetadata *UsageMetadata `json:"usageMetadata,omitempty"`
	ModelVersion  string         `json:"modelVersion,omitempty"`
}

type Candidate struct {
	Content      *Content `json:"content"`
	FinishReason string   `json:"finishReason"`
}

type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}
