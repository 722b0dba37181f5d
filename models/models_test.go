package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAssistantInteraction(t *testing.T) {
	ai := NewAssistantInteraction("user-123", "req-abc", "sleep_advice", 42)

	assert.NotEqual(t, uuid.Nil, ai.ID)
	assert.Equal(t, "user-123", ai.UserID)
	assert.Equal(t, "req-abc", ai.RequestID)
	assert.Equal(t, "sleep_advice", ai.Operation)
	assert.Equal(t, 42, ai.InputLength)
	assert.False(t, ai.CreatedAt.IsZero())
	assert.Equal(t, time.UTC, ai.CreatedAt.Location())
}

func TestNewAssistantInteraction_GeneratesRequestID(t *testing.T) {
	ai := NewAssistantInteraction("user-123", "", "nutrition", 10)

	_, err := uuid.Parse(ai.RequestID)
	assert.NoError(t, err)
}

func TestAssistantInteraction_MarkCompleted(t *testing.T) {
	ai := NewAssistantInteraction("user-123", "req-abc", "web_lookup", 20)

	ai.MarkCompleted("perplexity", "sonar", 512, 100, 50, 1500*time.Millisecond)

	assert.True(t, ai.Succeeded())
	assert.Equal(t, InteractionStatusCompleted, ai.Status)
	assert.Equal(t, "perplexity", ai.Provider)
	assert.Equal(t, "sonar", ai.Model)
	assert.Equal(t, 512, ai.OutputLength)
	assert.Equal(t, 150, ai.TotalTokens)
	assert.Equal(t, 1500, ai.LatencyMs)
	assert.Nil(t, ai.ErrorMessage)
}

func TestAssistantInteraction_MarkFailed(t *testing.T) {
	tests := []struct {
		name       string
		errorType  string
		wantStatus InteractionStatus
	}{
		{"provider exhaustion", "external", InteractionStatusFailed},
		{"client went away", "cancelled", InteractionStatusCancelled},
		{"internal", "internal", InteractionStatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ai := NewAssistantInteraction("user-123", "req-abc", "emotional_support", 5)

			ai.MarkFailed(tt.errorType, "could not get a response", 2*time.Second)

			assert.False(t, ai.Succeeded())
			assert.Equal(t, tt.wantStatus, ai.Status)
			require.NotNil(t, ai.ErrorType)
			assert.Equal(t, tt.errorType, *ai.ErrorType)
			require.NotNil(t, ai.ErrorMessage)
			assert.Equal(t, 2000, ai.LatencyMs)
			assert.Empty(t, ai.Provider)
		})
	}
}

func TestAssistantInteraction_TableName(t *testing.T) {
	assert.Equal(t, "assistant_interactions", AssistantInteraction{}.TableName())
}

func TestAssistantInteraction_JSONOmitsEmptyProvider(t *testing.T) {
	ai := NewAssistantInteraction("user-123", "req-abc", "exercise", 5)
	ai.MarkFailed("external", "unavailable", time.Second)

	data, err := json.Marshal(ai)
	require.NoError(t, err)

	assert.NotContains(t, string(data), `"provider"`)
	assert.Contains(t, string(data), `"error_type":"external"`)
}
