package assistant

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/upb/maternal-assistant/services"
	"github.com/upb/maternal-assistant/services/prompt"
	"github.com/upb/maternal-assistant/services/providers"
	"github.com/upb/maternal-assistant/services/routing"
)

// DefaultMaxTextLength bounds user text, in characters
const DefaultMaxTextLength = 8000

// Completer sends one system instruction and prompt through the provider chain
type Completer interface {
	Complete(ctx context.Context, system, prompt, preferred string) (*providers.Result, error)
}

// Config holds facade settings
type Config struct {
	// Preferences maps an operation to the provider tried first
	Preferences map[prompt.Operation]string

	// MaxTextLength bounds user text, in characters
	MaxTextLength int
}

// DefaultPreferences returns the provider preference of each operation.
// Operations not listed use the default order.
func DefaultPreferences() map[prompt.Operation]string {
	return map[prompt.Operation]string{
		prompt.OpWebLookup:        "perplexity",
		prompt.OpEmotionalSupport: "anthropic",
		prompt.OpMoodAnalysis:     "openai",
		prompt.OpSummary:          "anthropic",
	}
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() Config {
	return Config{
		Preferences:   DefaultPreferences(),
		MaxTextLength: DefaultMaxTextLength,
	}
}

// Response is the generic answer of Run
type Response struct {
	Operation prompt.Operation  `json:"operation"`
	Result    *providers.Result `json:"result"`
	Mood      *MoodAnalysis     `json:"mood,omitempty"`
}

// Service exposes the named assistant operations. It keeps no per-call state.
type Service struct {
	completer Completer
	config    Config
	logger    *zap.Logger
}

// NewService creates a new assistant service
func NewService(completer Completer, config Config, logger *zap.Logger) *Service {
	if config.MaxTextLength <= 0 {
		config.MaxTextLength = DefaultMaxTextLength
	}
	prefs := make(map[prompt.Operation]string, len(config.Preferences))
	for op, name := range config.Preferences {
		prefs[op] = name
	}
	config.Preferences = prefs

	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{completer: completer, config: config, logger: logger}
}

// Operations lists the supported operation names
func (s *Service) Operations() []prompt.Operation {
	return prompt.Operations()
}

// PreferredProvider returns the provider tried first for op, if any
func (s *Service) PreferredProvider(op prompt.Operation) string {
	return s.config.Preferences[op]
}

// PregnancyAdvice answers pregnancy questions
func (s *Service) PregnancyAdvice(ctx context.Context, text string, cc *prompt.CallContext) (*providers.Result, error) {
	return s.complete(ctx, prompt.OpPregnancyAdvice, text, cc)
}

// PostpartumSupport answers questions about recovery and newborn care
func (s *Service) PostpartumSupport(ctx context.Context, text string, cc *prompt.CallContext) (*providers.Result, error) {
	return s.complete(ctx, prompt.OpPostpartumSupport, text, cc)
}

// WebLookup answers with current information, preferring a browsing provider
func (s *Service) WebLookup(ctx context.Context, text string, cc *prompt.CallContext) (*providers.Result, error) {
	return s.complete(ctx, prompt.OpWebLookup, text, cc)
}

// EmotionalSupport replies with empathetic support
func (s *Service) EmotionalSupport(ctx context.Context, text string, cc *prompt.CallContext) (*providers.Result, error) {
	return s.complete(ctx, prompt.OpEmotionalSupport, text, cc)
}

// NutritionAdvice suggests meals and flags foods to avoid
func (s *Service) NutritionAdvice(ctx context.Context, text string, cc *prompt.CallContext) (*providers.Result, error) {
	return s.complete(ctx, prompt.OpNutrition, text, cc)
}

// ExerciseAdvice suggests safe activity
func (s *Service) ExerciseAdvice(ctx context.Context, text string, cc *prompt.CallContext) (*providers.Result, error) {
	return s.complete(ctx, prompt.OpExercise, text, cc)
}

// SleepAdvice gives sleep tips for mother and baby
func (s *Service) SleepAdvice(ctx context.Context, text string, cc *prompt.CallContext) (*providers.Result, error) {
	return s.complete(ctx, prompt.OpSleepAdvice, text, cc)
}

// SummarizeConversation condenses a conversation transcript
func (s *Service) SummarizeConversation(ctx context.Context, transcript string, cc *prompt.CallContext) (*providers.Result, error) {
	return s.complete(ctx, prompt.OpSummary, transcript, cc)
}

// AnalyzeMood classifies the mood of a journal entry. A reply that is not
// valid JSON degrades to a neutral analysis instead of failing; provider
// exhaustion is still returned as an error.
func (s *Service) AnalyzeMood(ctx context.Context, text string, cc *prompt.CallContext) (*MoodAnalysis, error) {
	result, err := s.complete(ctx, prompt.OpMoodAnalysis, text, cc)
	if err != nil {
		return nil, err
	}

	analysis, ok := ParseMoodAnalysis(result.Text)
	if !ok {
		s.logger.Warn("mood reply was not valid JSON, using neutral analysis",
			zap.String("provider", result.Provider),
			zap.Int("reply_length", len(result.Text)),
		)
		analysis = DefaultMoodAnalysis()
	}
	analysis.Result = result
	return analysis, nil
}

// Run dispatches an operation by name
func (s *Service) Run(ctx context.Context, op prompt.Operation, text string, cc *prompt.CallContext) (*Response, error) {
	switch op {
	case prompt.OpMoodAnalysis:
		analysis, err := s.AnalyzeMood(ctx, text, cc)
		if err != nil {
			return nil, err
		}
		return &Response{Operation: op, Result: analysis.Result, Mood: analysis}, nil
	default:
		result, err := s.complete(ctx, op, text, cc)
		if err != nil {
			return nil, err
		}
		return &Response{Operation: op, Result: result}, nil
	}
}

func (s *Service) complete(ctx context.Context, op prompt.Operation, text string, cc *prompt.CallContext) (*providers.Result, error) {
	tmpl, err := prompt.Lookup(op)
	if err != nil {
		return nil, services.ErrUnknownOperation.WithDetail("operation", string(op))
	}
	if err := s.validate(text); err != nil {
		return nil, err
	}

	system, userPrompt := tmpl.Render(strings.TrimSpace(text), cc)
	preferred := s.config.Preferences[op]

	s.logger.Debug("dispatching assistant operation",
		zap.String("operation", string(op)),
		zap.String("preferred_provider", preferred),
		zap.Bool("has_context", !cc.IsEmpty()),
	)

	result, err := s.completer.Complete(ctx, system, userPrompt, preferred)
	if err != nil {
		return nil, s.mapError(op, err)
	}
	return result, nil
}

func (s *Service) validate(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return services.ErrEmptyText
	}
	if utf8.RuneCountInString(trimmed) > s.config.MaxTextLength {
		return services.ErrTextTooLong.WithDetail("max_length", s.config.MaxTextLength)
	}
	return nil
}

func (s *Service) mapError(op prompt.Operation, err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return services.ErrRequestCancelled.WithCause(err)
	case errors.Is(err, routing.ErrAllProvidersExhausted):
		s.logger.Error("assistant operation failed on every provider",
			zap.String("operation", string(op)),
			zap.Error(err),
		)
		return services.ErrAssistantUnavailable.WithCause(err)
	default:
		return services.WrapInternal("assistant operation failed", err)
	}
}
