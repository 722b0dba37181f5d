package perplexity

import (
	"encoding/json"
	"fmt"

	"github.com/upb/maternal-assistant/services/providers"
	"github.com/upb/maternal-assistant/services/providers/openai"
)

const (
	// DefaultBaseURL is the public Perplexity API root
	DefaultBaseURL = "https://api.perplexity.ai"

	// DefaultModel is an online (browsing) model
	DefaultModel = "sonar"
)

// Adapter speaks the OpenAI-compatible chat format exposed by Perplexity and
// additionally surfaces the source links of browsing answers.
type Adapter struct{}

// NewAdapter creates a new Perplexity adapter
func NewAdapter() *Adapter {
	return &Adapter{}
}

// Family returns the provider family name
func (a *Adapter) Family() string {
	return "perplexity"
}

// Encode builds a chat completions request
func (a *Adapter) Encode(system, prompt string, d providers.Descriptor) (*providers.WireRequest, error) {
	return openai.EncodeChat(system, prompt, d)
}

// Decode extracts the answer, usage and citations
func (a *Adapter) Decode(body []byte, d providers.Descriptor) (*providers.Result, error) {
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", providers.ErrMalformedResponse, err)
	}

	result, err := resp.ToResult(d)
	if err != nil {
		return nil, err
	}
	if len(resp.Citations) > 0 {
		result.Citations = append([]string(nil), resp.Citations...)
	}
	return result, nil
}

type chatResponse struct {
	openai.ChatResponse
	Citations []string `json:"citations,omitempty"`
}
