package routing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/upb/maternal-assistant/services/providers"
)

var (
	// ErrAllProvidersExhausted is matched by every ExhaustedError
	ErrAllProvidersExhausted = errors.New("all providers exhausted")
)

const tracerName = "github.com/upb/maternal-assistant/services/routing"

// RoutingConfig holds the process-wide dispatch settings. It is fixed at
// construction and never changes while the service runs
type RoutingConfig struct {
	// DefaultOrder lists providers in the order they are tried
	DefaultOrder []string

	// MaxAttempts per provider, including the first one
	MaxAttempts int

	// AttemptTimeout bounds every single HTTP attempt
	AttemptTimeout time.Duration

	// BaseDelay is multiplied by the attempt index between retries
	BaseDelay time.Duration
}

// DefaultRoutingConfig returns a sensible default configuration
func DefaultRoutingConfig() RoutingConfig {
	return RoutingConfig{
		DefaultOrder:   []string{"openai", "anthropic", "gemini", "perplexity"},
		MaxAttempts:    DefaultMaxAttempts,
		AttemptTimeout: 30 * time.Second,
		BaseDelay:      1 * time.Second,
	}
}

// CallFunc performs one attempt against one provider
type CallFunc func(ctx context.Context, d providers.Descriptor) providers.Outcome

// Observer receives attempt outcomes, typically to export metrics
type Observer interface {
	ObserveAttempt(provider string, outcome providers.Outcome, elapsed time.Duration)
	ObserveSkip(provider, reason string)
	ObserveExhausted()
}

// ExhaustedError is returned when every provider in the order failed.
// It describes the last failure seen
type ExhaustedError struct {
	Provider   string
	Reason     string
	StatusCode int
	Attempts   int
	Err        error
}

// Error implements the error interface
func (e *ExhaustedError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("%s: %s", ErrAllProvidersExhausted, e.Reason)
	}
	return fmt.Sprintf("%s: last failure from %s: %s", ErrAllProvidersExhausted, e.Provider, e.Reason)
}

// Is makes errors.Is(err, ErrAllProvidersExhausted) hold
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrAllProvidersExhausted
}

// Unwrap returns the cause of the last failure, if any
func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// RoutingService walks an ordered list of providers, retrying each one, and
// returns the first successful result
type RoutingService struct {
	config   RoutingConfig
	registry *providers.Registry
	executor *Executor
	retrier  Retrier
	logger   *zap.Logger
	observer Observer
	tracer   trace.Tracer
}

// Option customizes a RoutingService
type Option func(*RoutingService)

// WithObserver attaches an attempt observer
func WithObserver(o Observer) Option {
	return func(s *RoutingService) {
		s.observer = o
	}
}

// WithTracer overrides the global tracer
func WithTracer(t trace.Tracer) Option {
	return func(s *RoutingService) {
		s.tracer = t
	}
}

// NewRoutingService creates a new routing service
func NewRoutingService(config RoutingConfig, registry *providers.Registry, executor *Executor, logger *zap.Logger, opts ...Option) *RoutingService {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}
	config.DefaultOrder = append([]string(nil), config.DefaultOrder...)

	if executor == nil {
		executor = NewExecutor(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &RoutingService{
		config:   config,
		registry: registry,
		executor: executor,
		retrier:  Retrier{MaxAttempts: config.MaxAttempts, BaseDelay: config.BaseDelay},
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns a copy of the routing configuration
func (s *RoutingService) Config() RoutingConfig {
	c := s.config
	c.DefaultOrder = append([]string(nil), s.config.DefaultOrder...)
	return c
}

// Complete sends one system instruction and prompt through the fallback chain.
// preferred may be empty
func (s *RoutingService) Complete(ctx context.Context, system, prompt, preferred string) (*providers.Result, error) {
	names := ResolveOrder(s.config.DefaultOrder, preferred)

	order := make([]providers.Descriptor, 0, len(names))
	for _, name := range names {
		d, ok := s.registry.Descriptor(name)
		if !ok {
			s.logger.Warn("provider in fallback order is not registered", zap.String("provider", name))
			continue
		}
		order = append(order, d)
	}

	call := func(ctx context.Context, d providers.Descriptor) providers.Outcome {
		_, adapter, err := s.registry.Lookup(d.Name)
		if err != nil {
			return providers.FatalFailure(err.Error(), 0, err)
		}
		wire, err := adapter.Encode(system, prompt, d)
		if err != nil {
			return providers.FatalFailure(err.Error(), 0, err)
		}
		return s.executor.Execute(ctx, d, adapter, wire, s.config.AttemptTimeout)
	}

	return s.Dispatch(ctx, order, call)
}

// Dispatch tries each descriptor in order. Providers without a usable
// credential are skipped without spending an attempt. A cancelled context
// stops the walk and returns the context error
func (s *RoutingService) Dispatch(ctx context.Context, order []providers.Descriptor, call CallFunc) (*providers.Result, error) {
	if len(order) == 0 {
		s.observeExhausted()
		return nil, &ExhaustedError{Reason: "no providers configured"}
	}

	exhausted := &ExhaustedError{}
	for _, d := range order {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("dispatch cancelled: %w", err)
		}

		if !d.HasCredential() {
			s.logger.Debug("skipping provider without credential", zap.String("provider", d.Name))
			if s.observer != nil {
				s.observer.ObserveSkip(d.Name, "missing_credential")
			}
			exhausted.Provider = d.Name
			exhausted.Reason = "missing credential"
			exhausted.StatusCode = 0
			exhausted.Err = nil
			continue
		}

		outcome := s.tryProvider(ctx, d, call, exhausted)
		if outcome.OK() {
			return outcome.Result, nil
		}

		exhausted.Provider = d.Name
		exhausted.Reason = outcome.Reason
		exhausted.StatusCode = outcome.StatusCode
		exhausted.Err = outcome.Err

		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("dispatch cancelled: %w", err)
		}

		s.logger.Warn("provider failed, falling back",
			zap.String("provider", d.Name),
			zap.String("outcome", outcome.Kind.String()),
			zap.String("reason", outcome.Reason),
		)
	}

	s.observeExhausted()
	s.logger.Error("all providers exhausted",
		zap.String("last_provider", exhausted.Provider),
		zap.String("reason", exhausted.Reason),
		zap.Int("attempts", exhausted.Attempts),
	)
	return nil, exhausted
}

func (s *RoutingService) tryProvider(ctx context.Context, d providers.Descriptor, call CallFunc, exhausted *ExhaustedError) providers.Outcome {
	ctx, span := s.tracer.Start(ctx, "routing.provider",
		trace.WithAttributes(
			attribute.String("llm.provider", d.Name),
			attribute.String("llm.model", d.Model),
		),
	)
	defer span.End()

	outcome := s.retrier.Do(ctx, func(ctx context.Context, n int) providers.Outcome {
		exhausted.Attempts++
		start := time.Now()
		o := call(ctx, d)
		elapsed := time.Since(start)

		if s.observer != nil {
			s.observer.ObserveAttempt(d.Name, o, elapsed)
		}
		s.logger.Debug("provider attempt finished",
			zap.String("provider", d.Name),
			zap.Int("attempt", n),
			zap.String("outcome", o.Kind.String()),
			zap.String("reason", o.Reason),
			zap.Duration("elapsed", elapsed),
		)
		return o
	})

	if outcome.OK() {
		span.SetStatus(codes.Ok, "")
		s.logger.Info("provider call succeeded",
			zap.String("provider", d.Name),
			zap.String("model", outcome.Result.Model),
			zap.Duration("latency", outcome.Result.Latency),
		)
	} else {
		span.SetStatus(codes.Error, outcome.Reason)
	}
	return outcome
}

func (s *RoutingService) observeExhausted() {
	if s.observer != nil {
		s.observer.ObserveExhausted()
	}
}
