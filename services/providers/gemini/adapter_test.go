package gemini

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upb/maternal-assistant/services/providers"
)

func descriptor() providers.Descriptor {
	return providers.Descriptor{
		Name:            "gemini",
		APIKey:          "AIza-test",
		BaseURL:         DefaultBaseURL,
		Model:           DefaultModel,
		MaxOutputTokens: 256,
	}
}

func TestAdapter_Encode(t *testing.T) {
	wire, err := NewAdapter().Encode("You help new parents.", "How long should a newborn sleep?", descriptor())
	require.NoError(t, err)

	assert.Equal(t, "https://generativelanguage.googleapis.com/v1beta/models/gemini-1.5-flash:generateContent", wire.URL)
	assert.Equal(t, "AIza-test", wire.Header.Get("x-goog-api-key"))

	var req GenerateRequest
	require.NoError(t, json.Unmarshal(wire.Body, &req))
	require.Len(t, req.Contents, 1)
	require.Len(t, req.Contents[0].Parts, 1)
	assert.Equal(t, "You help new parents.\n\nHow long should a newborn sleep?", req.Contents[0].Parts[0].Text)
	require.NotNil(t, req.GenerationConfig)
	assert.Equal(t, 256, req.GenerationConfig.MaxOutputTokens)
	require.NotNil(t, req.GenerationConfig.Temperature)
	assert.Equal(t, 0.0, *req.GenerationConfig.Temperature)
}

func TestAdapter_Encode_ZeroTemperatureIsSent(t *testing.T) {
	d := descriptor()
	d.Temperature = 0

	wire, err := NewAdapter().Encode("", "hi", d)
	require.NoError(t, err)

	raw := decodeRaw(t, wire.Body)
	cfg, ok := raw["generationConfig"].(map[string]interface{})
	require.True(t, ok, "generationConfig missing: %s", wire.Body)
	assert.Equal(t, 0.0, cfg["temperature"])
}

func decodeRaw(t *testing.T, body []byte) map[string]interface{} {
	t.Helper()
	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &raw))
	return raw
}

func TestAdapter_Encode_PromptOnly(t *testing.T) {
	d := descriptor()
	d.MaxOutputTokens = 0

	wire, err := NewAdapter().Encode("", "hello", d)
	require.NoError(t, err)

	var req GenerateRequest
	require.NoError(t, json.Unmarshal(wire.Body, &req))
	assert.Equal(t, "hello", req.Contents[0].Parts[0].Text)
	require.NotNil(t, req.GenerationConfig)
	assert.Zero(t, req.GenerationConfig.MaxOutputTokens)
}

func TestAdapter_Decode(t *testing.T) {
	body := []byte(`{
		"candidates": [{
			"content": {"role": "model", "parts": [{"text": "Newborns sleep "}, {"text": "14 to 17 hours."}]},
			"finishReason": "STOP"
		}],
		"usageMetadata": {"promptTokenCount": 15, "candidatesTokenCount": 9, "totalTokenCount": 24},
		"modelVersion": "gemini-1.5-flash-002"
	}`)

	result, err := NewAdapter().Decode(body, descriptor())
	require.NoError(t, err)

	assert.Equal(t, "Newborns sleep 14 to 17 hours.", result.Text)
	assert.Equal(t, "gemini", result.Provider)
	assert.Equal(t, "gemini-1.5-flash-002", result.Model)
	assert.Equal(t, &providers.Usage{PromptTokens: 15, CompletionTokens: 9, TotalTokens: 24}, result.Usage)
}

func TestAdapter_Decode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `[`},
		{"no candidates", `{"candidates": []}`},
		{"blocked by safety", `{"candidates": [{"finishReason": "SAFETY"}]}`},
		{"empty parts", `{"candidates": [{"content": {"parts": []}}]}`},
		{"blank text", `{"candidates": [{"content": {"parts": [{"text": ""}]}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAdapter().Decode([]byte(tt.body), descriptor())
			assert.ErrorIs(t, err, providers.ErrMalformedResponse)
		})
	}
}
