package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/upb/maternal-assistant/auth"
	"github.com/upb/maternal-assistant/config"
	"github.com/upb/maternal-assistant/internal/observability"
	"github.com/upb/maternal-assistant/middleware"
	"github.com/upb/maternal-assistant/repositories"
	"github.com/upb/maternal-assistant/repositories/postgres"
	"github.com/upb/maternal-assistant/services/assistant"
	"github.com/upb/maternal-assistant/services/audit"
	"github.com/upb/maternal-assistant/services/prompt"
	"github.com/upb/maternal-assistant/services/providers"
	"github.com/upb/maternal-assistant/services/providers/anthropic"
	"github.com/upb/maternal-assistant/services/providers/gemini"
	"github.com/upb/maternal-assistant/services/providers/openai"
	"github.com/upb/maternal-assistant/services/providers/perplexity"
	"github.com/upb/maternal-assistant/services/routing"
)

const metricsNamespace = "maternal_assistant"

// recorderStopTimeout bounds how long queued history records may take to flush
const recorderStopTimeout = 5 * time.Second

// openRepositoryFactory is replaced in tests
var openRepositoryFactory = postgres.NewRepositoryFactory

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics

	// History store, nil when no database is configured
	RepoFactory  *postgres.RepositoryFactory
	DB           *postgres.DB
	Interactions repositories.InteractionRepository
	TxManager    repositories.TransactionManager
	Recorder     *audit.Service

	// Assistant core
	Registry  *providers.Registry
	Routing   *routing.RoutingService
	Assistant *assistant.Service

	// HTTP concerns
	AuthMiddleware *middleware.AuthMiddleware
	RateLimiter    *middleware.RateLimiter
}

// NewDependencies creates and wires up all application dependencies.
// Background goroutines live until ctx is cancelled.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if cfg.Observability.MetricsEnabled {
		deps.Metrics = observability.NewMetrics(metricsNamespace)
	}

	if err := deps.initProviders(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	deps.initAssistant(cfg)

	if err := deps.initAuth(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	if cfg.RateLimit.Enabled {
		deps.RateLimiter = middleware.NewRateLimiter(ctx, cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, logger)
	}

	if cfg.Database.Enabled() {
		if err := deps.initDatabase(ctx, cfg); err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		if err := deps.initRecorder(); err != nil {
			_ = deps.RepoFactory.Close()
			return nil, fmt.Errorf("failed to start interaction recorder: %w", err)
		}
	} else {
		logger.Warn("no database configured, interaction history disabled")
	}

	logger.Info("all dependencies initialized successfully",
		zap.Strings("configured_providers", deps.Registry.Configured()),
		zap.Bool("history_enabled", deps.Interactions != nil),
		zap.Bool("metrics_enabled", deps.Metrics != nil))
	return deps, nil
}

// BuildRegistry creates the provider registry from vendor configuration.
// Every known vendor is registered; those without a usable key are skipped
// at dispatch time.
func BuildRegistry(cfg config.ProvidersConfig) (*providers.Registry, error) {
	builder := providers.NewRegistryBuilder()
	for _, adapter := range []providers.Adapter{
		openai.NewAdapter(),
		anthropic.NewAdapter(),
		gemini.NewAdapter(),
		perplexity.NewAdapter(),
	} {
		builder.WithAdapter(adapter.Family(), adapter)
	}

	for _, p := range cfg.All() {
		builder.WithProvider(providers.Descriptor{
			Name:            p.Name,
			APIKey:          p.APIKey,
			BaseURL:         p.BaseURL,
			Model:           p.Model,
			MaxOutputTokens: p.MaxTokens,
			Temperature:     p.Temperature,
		})
	}

	return builder.Build()
}

// AssistantPreferences merges configured overrides over the default preferences
func AssistantPreferences(overrides map[string]string) map[prompt.Operation]string {
	prefs := assistant.DefaultPreferences()
	for op, name := range overrides {
		prefs[prompt.Operation(op)] = name
	}
	return prefs
}

func (d *Dependencies) initProviders(cfg *config.Config) error {
	registry, err := BuildRegistry(cfg.Providers)
	if err != nil {
		return err
	}

	configured := registry.Configured()
	if len(configured) == 0 {
		d.Logger.Warn("no AI provider has a usable API key")
	}
	for _, name := range configured {
		d.Logger.Info("registered provider", zap.String("provider", name))
	}

	d.Registry = registry
	return nil
}

func (d *Dependencies) initAssistant(cfg *config.Config) {
	executor := routing.NewExecutor(&http.Client{Transport: http.DefaultTransport})

	opts := []routing.Option{}
	if d.Metrics != nil {
		opts = append(opts, routing.WithObserver(d.Metrics))
	}

	d.Routing = routing.NewRoutingService(routing.RoutingConfig{
		DefaultOrder:   cfg.Assistant.ProviderOrder,
		MaxAttempts:    cfg.Assistant.MaxAttempts,
		AttemptTimeout: cfg.Assistant.AttemptTimeout,
		BaseDelay:      cfg.Assistant.RetryBaseDelay,
	}, d.Registry, executor, d.Logger, opts...)

	d.Assistant = assistant.NewService(d.Routing, assistant.Config{
		Preferences:   AssistantPreferences(cfg.Assistant.Preferences),
		MaxTextLength: cfg.Assistant.MaxTextLength,
	}, d.Logger)
}

func (d *Dependencies) initAuth(cfg *config.Config) error {
	if cfg.Auth.JWTSecret == "" {
		d.Logger.Warn("JWT secret not configured, authenticated endpoints reject every request")
		d.AuthMiddleware = middleware.NewAuthMiddleware(rejectAllValidator{}, d.Logger)
		return nil
	}

	validator, err := auth.NewValidator(auth.Config{
		Secret:   cfg.Auth.JWTSecret,
		Issuer:   cfg.Auth.JWTIssuer,
		Audience: cfg.Auth.JWTAudience,
	})
	if err != nil {
		return err
	}
	d.AuthMiddleware = middleware.NewAuthMiddleware(validator, d.Logger)
	return nil
}

// initDatabase initializes the PostgreSQL connection and the history schema
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := openRepositoryFactory(cfg.Database, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	if err := factory.GetDB().HealthCheck(ctx); err != nil {
		_ = factory.Close()
		return err
	}

	if err := factory.InitSchema(ctx); err != nil {
		_ = factory.Close()
		return err
	}

	repos := factory.NewRepositories()
	d.RepoFactory = factory
	d.DB = factory.GetDB()
	d.Interactions = repos.Interactions
	d.TxManager = factory.GetTransactionManager()

	d.Logger.Info("database connection established",
		zap.String("connection", cfg.Database.LogString()))
	return nil
}

func (d *Dependencies) initRecorder() error {
	d.Recorder = audit.NewService(d.Interactions, d.TxManager, d.Logger, audit.DefaultConfig(),
		audit.WithDropHandler(d.Metrics.RecordHistoryDropped))
	return d.Recorder.Start()
}

// rejectAllValidator rejects all tokens (used when no JWT secret is configured)
type rejectAllValidator struct{}

func (rejectAllValidator) ValidateToken(context.Context, string) (*middleware.Claims, error) {
	return nil, errors.New("authentication not configured")
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	// Flush queued history before the pool goes away
	if d.Recorder != nil {
		timeout := recorderStopTimeout
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := d.Recorder.Stop(timeout); err != nil && !errors.Is(err, audit.ErrNotStarted) {
			errs = append(errs, fmt.Errorf("failed to stop interaction recorder: %w", err))
		}
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	_ = d.Logger.Sync()

	return errors.Join(errs...)
}
