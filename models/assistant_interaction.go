package models

import (
	"time"

	"github.com/google/uuid"
)

// InteractionStatus represents the outcome of an assistant call
type InteractionStatus string

const (
	InteractionStatusCompleted InteractionStatus = "completed"
	InteractionStatusFailed    InteractionStatus = "failed"
	InteractionStatusCancelled InteractionStatus = "cancelled"
)

// AssistantInteraction records one assistant operation for a user.
// The user's text and the reply are not stored, only their sizes.
type AssistantInteraction struct {
	ID        uuid.UUID         `json:"id" db:"id"`
	UserID    string            `json:"user_id" db:"user_id"`
	RequestID string            `json:"request_id" db:"request_id"`
	Operation string            `json:"operation" db:"operation"`
	Status    InteractionStatus `json:"status" db:"status"`

	// Provider that answered, empty when every provider failed
	Provider string `json:"provider,omitempty" db:"provider"`
	Model    string `json:"model,omitempty" db:"model"`

	// Metrics
	InputLength      int  `json:"input_length" db:"input_length"`
	OutputLength     int  `json:"output_length" db:"output_length"`
	PromptTokens     int  `json:"prompt_tokens" db:"prompt_tokens"`
	CompletionTokens int  `json:"completion_tokens" db:"completion_tokens"`
	TotalTokens      int  `json:"total_tokens" db:"total_tokens"`
	LatencyMs        int  `json:"latency_ms" db:"latency_ms"`
	Degraded         bool `json:"degraded" db:"degraded"`

	// Error handling
	ErrorType    *string `json:"error_type,omitempty" db:"error_type"`
	ErrorMessage *string `json:"error_message,omitempty" db:"error_message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the AssistantInteraction model
func (AssistantInteraction) TableName() string {
	return "assistant_interactions"
}

// NewAssistantInteraction creates a new interaction for a user and operation
func NewAssistantInteraction(userID, requestID, operation string, inputLength int) *AssistantInteraction {
	if requestID == "" {
		requestID = uuid.New().String()
	}
	return &AssistantInteraction{
		ID:          uuid.New(),
		UserID:      userID,
		RequestID:   requestID,
		Operation:   operation,
		InputLength: inputLength,
		CreatedAt:   time.Now().UTC(),
	}
}

// MarkCompleted records a successful reply
func (ai *AssistantInteraction) MarkCompleted(provider, model string, outputLength, promptTokens, completionTokens int, latency time.Duration) {
	ai.Status = InteractionStatusCompleted
	ai.Provider = provider
	ai.Model = model
	ai.OutputLength = outputLength
	ai.PromptTokens = promptTokens
	ai.CompletionTokens = completionTokens
	ai.TotalTokens = promptTokens + completionTokens
	ai.LatencyMs = int(latency.Milliseconds())
	ai.ErrorType = nil
	ai.ErrorMessage = nil
}

// MarkFailed records a failed call
func (ai *AssistantInteraction) MarkFailed(errorType, errorMessage string, latency time.Duration) {
	ai.Status = InteractionStatusFailed
	if errorType == "cancelled" {
		ai.Status = InteractionStatusCancelled
	}
	ai.ErrorType = &errorType
	ai.ErrorMessage = &errorMessage
	ai.LatencyMs = int(latency.Milliseconds())
}

// Succeeded reports whether the interaction completed
func (ai *AssistantInteraction) Succeeded() bool {
	return ai.Status == InteractionStatusCompleted
}
