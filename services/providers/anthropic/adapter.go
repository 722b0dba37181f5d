package anthropic

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/upb/maternal-assistant/services/providers"
)

const (
	// DefaultBaseURL is the public Anthropic API root
	DefaultBaseURL = "https://api.anthropic.com"

	// DefaultModel is used when no model is configured
	DefaultModel = "claude-3-5-haiku-latest"

	// APIVersion is sent in the anthropic-version header
	APIVersion = "2023-06-01"

	// defaultMaxTokens is required by the messages API
	defaultMaxTokens = 1024
)

// Adapter encodes requests for the Anthropic messages API
type Adapter struct{}

// NewAdapter creates a new Anthropic adapter
func NewAdapter() *Adapter {
	return &Adapter{}
}

// Family returns the provider family name
func (a *Adapter) Family() string {
	return "anthropic"
}

// Encode places the system instruction in the top-level system field and the
// prompt in a single user turn.
func (a *Adapter) Encode(system, prompt string, d providers.Descriptor) (*providers.WireRequest, error) {
	maxTokens := d.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	req := MessagesRequest{
		Model:       d.Model,
		System:      system,
		MaxTokens:   maxTokens,
		Messages:    []Message{{Role: "user", Content: prompt}},
		Temperature: &d.Temperature,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", providers.ErrEncodeRequest, err)
	}

	header := providers.JSONHeader()
	header.Set("x-api-key", d.APIKey)
	header.Set("anthropic-version", APIVersion)

	return &providers.WireRequest{
		Method: http.MethodPost,
		URL:    d.Endpoint("/v1/messages"),
		Header: header,
		Body:   body,
	}, nil
}

// Decode concatenates the text blocks of the reply
func (a *Adapter) Decode(body []byte, d providers.Descriptor) (*providers.Result, error) {
	var resp MessagesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", providers.ErrMalformedResponse, err)
	}
	if len(resp.Content) == 0 {
		return nil, fmt.Errorf("%w: no content blocks in response", providers.ErrMalformedResponse)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: no text content", providers.ErrMalformedResponse)
	}

	model := resp.Model
	if model == "" {
		model = d.Model
	}

	result := &providers.Result{
		Text:     text,
		Provider: d.Name,
		Model:    model,
	}
	if resp.Usage != nil {
		result.Usage = providers.NewUsage(resp.Usage.InputTokens, resp.Usage.OutputTokens, 0)
	}
	return result, nil
}

// Anthropic-specific request/response types

type MessagesRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature *float64  `json:"temperature,omitempty"`
	Messages    []Message `json:"messages"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type MessagesResponse struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      *Usage         `json:"usage,omitempty"`
}

type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
