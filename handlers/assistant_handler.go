package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/upb/maternal-assistant/internal/observability"
	"github.com/upb/maternal-assistant/middleware"
	"github.com/upb/maternal-assistant/models"
	"github.com/upb/maternal-assistant/services"
	"github.com/upb/maternal-assistant/services/assistant"
	"github.com/upb/maternal-assistant/services/prompt"
	"github.com/upb/maternal-assistant/services/providers"
	"github.com/upb/maternal-assistant/utils"
)

// AssistantRequest is the body of POST /api/v1/assistant/{operation}
type AssistantRequest struct {
	Text            string                `json:"text" validate:"required_without=Messages"`
	GestationalWeek *int                  `json:"gestational_week,omitempty" validate:"omitempty,gte=0,lte=45"`
	BabyAgeMonths   *int                  `json:"baby_age_months,omitempty" validate:"omitempty,gte=0,lte=60"`
	Topic           string                `json:"topic,omitempty" validate:"omitempty,max=100"`
	Messages        []ConversationMessage `json:"messages,omitempty" validate:"omitempty,max=200,dive"`
}

// ConversationMessage is one turn of a conversation to summarize
type ConversationMessage struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required"`
}

// AssistantResponse is the reply of an assistant operation
type AssistantResponse struct {
	RequestID string                  `json:"request_id"`
	Operation prompt.Operation        `json:"operation"`
	Text      string                  `json:"text"`
	Provider  string                  `json:"provider"`
	Model     string                  `json:"model"`
	Usage     *providers.Usage        `json:"usage,omitempty"`
	Citations []string                `json:"citations,omitempty"`
	LatencyMs int64                   `json:"latency_ms"`
	Mood      *assistant.MoodAnalysis `json:"mood,omitempty"`
}

// OperationInfo describes one available operation
type OperationInfo struct {
	Name              prompt.Operation `json:"name"`
	PreferredProvider string           `json:"preferred_provider,omitempty"`
}

// AssistantRunner runs named assistant operations
type AssistantRunner interface {
	Run(ctx context.Context, op prompt.Operation, text string, cc *prompt.CallContext) (*assistant.Response, error)
	Operations() []prompt.Operation
	PreferredProvider(op prompt.Operation) string
}

// InteractionRecorder persists interaction history in the background
type InteractionRecorder interface {
	Record(ai *models.AssistantInteraction) error
}

// AssistantHandler handles assistant HTTP requests
type AssistantHandler struct {
	assistant AssistantRunner
	recorder  InteractionRecorder
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewAssistantHandler creates a new AssistantHandler. recorder and metrics may be nil.
func NewAssistantHandler(runner AssistantRunner, recorder InteractionRecorder, metrics *observability.Metrics, logger *zap.Logger) *AssistantHandler {
	return &AssistantHandler{
		assistant: runner,
		recorder:  recorder,
		metrics:   metrics,
		logger:    logger,
	}
}

// HandleOperations handles GET /api/v1/assistant/operations
func (h *AssistantHandler) HandleOperations(w http.ResponseWriter, r *http.Request) {
	ops := h.assistant.Operations()
	infos := make([]OperationInfo, 0, len(ops))
	for _, op := range ops {
		infos = append(infos, OperationInfo{Name: op, PreferredProvider: h.assistant.PreferredProvider(op)})
	}
	_ = utils.WriteOK(w, infos)
}

// HandleRun handles POST /api/v1/assistant/{operation}
func (h *AssistantHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.LoggerFromContext(ctx, h.logger)
	op := prompt.Operation(chi.URLParam(r, "operation"))

	var req AssistantRequest
	if err := utils.DecodeJSON(r, w, &req); err != nil {
		logger.Warn("failed to parse request body", zap.Error(err))
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		logger.Warn("request validation failed", zap.Error(err))
		HandleValidationError(w, err, logger)
		return
	}

	text := req.Text
	if op == prompt.OpSummary && len(req.Messages) > 0 {
		text = transcript(req.Messages)
	}
	cc := &prompt.CallContext{
		GestationalWeek: req.GestationalWeek,
		BabyAgeMonths:   req.BabyAgeMonths,
		TopicHint:       req.Topic,
	}

	interaction := models.NewAssistantInteraction(
		middleware.GetUserIDFromContext(ctx),
		middleware.GetRequestIDFromContext(ctx),
		string(op),
		utf8.RuneCountInString(text),
	)

	start := time.Now()
	resp, err := h.assistant.Run(ctx, op, text, cc)
	latency := time.Since(start)

	if err != nil {
		errType := services.GetErrorType(err)
		if errType == "" {
			errType = services.ErrorTypeInternal
		}
		h.metrics.RecordOperation(string(op), string(errType))

		// rejected input never reached a provider and is not part of the history
		if errType != services.ErrorTypeValidation {
			interaction.MarkFailed(string(errType), err.Error(), latency)
			h.record(logger, interaction)
		}
		HandleServiceError(w, err, logger)
		return
	}

	result := resp.Result
	var promptTokens, completionTokens int
	if result.Usage != nil {
		promptTokens = result.Usage.PromptTokens
		completionTokens = result.Usage.CompletionTokens
	}
	interaction.MarkCompleted(result.Provider, result.Model, utf8.RuneCountInString(result.Text), promptTokens, completionTokens, latency)
	interaction.Degraded = resp.Mood != nil && resp.Mood.Degraded
	h.record(logger, interaction)
	h.metrics.RecordOperation(string(op), string(interaction.Status))

	logger.Info("assistant operation completed",
		zap.String("operation", string(op)),
		zap.String("provider", result.Provider),
		zap.Duration("latency", latency))

	_ = utils.WriteOK(w, AssistantResponse{
		RequestID: interaction.RequestID,
		Operation: resp.Operation,
		Text:      result.Text,
		Provider:  result.Provider,
		Model:     result.Model,
		Usage:     result.Usage,
		Citations: result.Citations,
		LatencyMs: latency.Milliseconds(),
		Mood:      resp.Mood,
	})
}

func (h *AssistantHandler) record(logger *zap.Logger, interaction *models.AssistantInteraction) {
	if h.recorder == nil {
		return
	}
	if err := h.recorder.Record(interaction); err != nil {
		logger.Warn("interaction not recorded", zap.Error(err))
	}
}

// transcript renders conversation turns as "role: content" lines
func transcript(messages []ConversationMessage) string {
	var sb strings.Builder
	for _, m := range messages {
		sb.WriteString(m.Role)
		sb.WriteString(": ")
		sb.WriteString(strings.TrimSpace(m.Content))
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}
