package perplexity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upb/maternal-assistant/services/providers"
	"github.com/upb/maternal-assistant/services/providers/openai"
)

func descriptor() providers.Descriptor {
	return providers.Descriptor{
		Name:            "perplexity",
		APIKey:          "pplx-test",
		BaseURL:         DefaultBaseURL,
		Model:           DefaultModel,
		MaxOutputTokens: 800,
	}
}

func TestAdapter_Encode(t *testing.T) {
	wire, err := NewAdapter().Encode("Answer with sources.", "postpartum depression signs", descriptor())
	require.NoError(t, err)

	assert.Equal(t, "https://api.perplexity.ai/chat/completions", wire.URL)
	assert.Equal(t, "Bearer pplx-test", wire.Header.Get("Authorization"))

	var req openai.ChatRequest
	require.NoError(t, json.Unmarshal(wire.Body, &req))
	assert.Equal(t, "sonar", req.Model)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "postpartum depression signs", req.Messages[1].Content)
}

func TestAdapter_Encode_ZeroTemperatureIsSent(t *testing.T) {
	wire, err := NewAdapter().Encode("", "folic acid dose", descriptor())
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(wire.Body, &raw))
	temp, ok := raw["temperature"]
	require.True(t, ok, "temperature missing: %s", wire.Body)
	assert.Equal(t, 0.0, temp)
}

func TestAdapter_Decode(t *testing.T) {
	body := []byte(`{
		"model": "sonar",
		"choices": [{"message": {"role": "assistant", "content": "Common signs include..."}}],
		"usage": {"prompt_tokens": 20, "completion_tokens": 40, "total_tokens": 60},
		"citations": ["https://www.who.int/", "https://www.nhs.uk/"]
	}`)

	result, err := NewAdapter().Decode(body, descriptor())
	require.NoError(t, err)

	assert.Equal(t, "Common signs include...", result.Text)
	assert.Equal(t, "perplexity", result.Provider)
	assert.Equal(t, []string{"https://www.who.int/", "https://www.nhs.uk/"}, result.Citations)
	require.NotNil(t, result.Usage)
	assert.Equal(t, 60, result.Usage.TotalTokens)
}

func TestAdapter_Decode_Malformed(t *testing.T) {
	_, err := NewAdapter().Decode([]byte(`{"citations": ["https://a"]}`), descriptor())
	assert.ErrorIs(t, err, providers.ErrMalformedResponse)

	_, err = NewAdapter().Decode([]byte(`nope`), descriptor())
	assert.ErrorIs(t, err, providers.ErrMalformedResponse)
}
