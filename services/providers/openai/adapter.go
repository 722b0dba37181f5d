package openai

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/upb/maternal-assistant/services/providers"
)

const (
	// DefaultBaseURL is the public OpenAI API root
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is used when no model is configured
	DefaultModel = "gpt-4o-mini"
)

// Adapter encodes requests for the OpenAI chat completions API
type Adapter struct{}

// NewAdapter creates a new OpenAI adapter
func NewAdapter() *Adapter {
	return &Adapter{}
}

// Family returns the provider family name
func (a *Adapter) Family() string {
	return "openai"
}

// Encode builds a chat completions request with a system and a user message
func (a *Adapter) Encode(system, prompt string, d providers.Descriptor) (*providers.WireRequest, error) {
	return EncodeChat(system, prompt, d)
}

// Decode extracts choices[0].message.content and usage
func (a *Adapter) Decode(body []byte, d providers.Descriptor) (*providers.Result, error) {
	var resp ChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", providers.ErrMalformedResponse, err)
	}
	return resp.ToResult(d)
}

// EncodeChat builds a chat completions request. It is shared by every
// vendor speaking the OpenAI-compatible wire format.
func EncodeChat(system, prompt string, d providers.Descriptor) (*providers.WireRequest, error) {
	req := ChatRequest{
		Model:    d.Model,
		Messages: make([]Message, 0, 2),
	}
	if strings.TrimSpace(system) != "" {
		req.Messages = append(req.Messages, Message{Role: "system", Content: system})
	}
	req.Messages = append(req.Messages, Message{Role: "user", Content: prompt})

	if d.MaxOutputTokens > 0 {
		req.MaxTokens = &d.MaxOutputTokens
	}
	// sent even when zero
	req.Temperature = &d.Temperature

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", providers.ErrEncodeRequest, err)
	}

	header := providers.JSONHeader()
	header.Set("Authorization", "Bearer "+d.APIKey)

	return &providers.WireRequest{
		Method: http.MethodPost,
		URL:    d.Endpoint("/chat/completions"),
		Header: header,
		Body:   body,
	}, nil
}

// ToResult converts a decoded response into the vendor-independent result
func (r *ChatResponse) ToResult(d providers.Descriptor) (*providers.Result, error) {
	if len(r.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in response", providers.ErrMalformedResponse)
	}
	text := r.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty message content", providers.ErrMalformedResponse)
	}

	model := r.Model
	if model == "" {
		model = d.Model
	}

	result := &providers.Result{
		Text:     text,
		Provider: d.Name,
		Model:    model,
	}
	if r.Usage != nil {
		result.Usage = providers.NewUsage(r.Usage.PromptTokens, r.Usage.CompletionTokens, r.Usage.TotalTokens)
	}
	return result, nil
}

// OpenAI-specific request/response types

type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
