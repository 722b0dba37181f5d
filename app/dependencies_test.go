package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/upb/maternal-assistant/config"
	"github.com/upb/maternal-assistant/repositories/postgres"
	"github.com/upb/maternal-assistant/services/prompt"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Auth: config.AuthConfig{
			JWTSecret:   "super-secret-test-key",
			JWTAudience: "authenticated",
		},
		Providers: config.ProvidersConfig{
			OpenAI:     config.ProviderConfig{Name: "openai", APIKey: "sk-test", BaseURL: "https://api.openai.com/v1", Model: "gpt-4o-mini", MaxTokens: 512},
			Anthropic:  config.ProviderConfig{Name: "anthropic", BaseURL: "https://api.anthropic.com", Model: "claude-3-5-haiku-latest"},
			Gemini:     config.ProviderConfig{Name: "gemini", APIKey: "demo-gemini-key", BaseURL: "https://generativelanguage.googleapis.com", Model: "gemini-1.5-flash"},
			Perplexity: config.ProviderConfig{Name: "perplexity", APIKey: "pplx-test", BaseURL: "https://api.perplexity.ai", Model: "sonar"},
		},
		Assistant: config.AssistantConfig{
			ProviderOrder:  []string{"openai", "anthropic", "gemini", "perplexity"},
			MaxAttempts:    2,
			AttemptTimeout: 5 * time.Second,
			RetryBaseDelay: 10 * time.Millisecond,
			MaxTextLength:  1000,
			Preferences:    map[string]string{"sleep_advice": "gemini"},
		},
		RateLimit: config.RateLimitConfig{Enabled: true, RequestsPerSecond: 1, Burst: 5},
		Observability: config.ObservabilityConfig{
			MetricsEnabled: true,
		},
	}
}

func TestBuildRegistry(t *testing.T) {
	registry, err := BuildRegistry(testConfig().Providers)
	require.NoError(t, err)

	assert.Equal(t, []string{"anthropic", "gemini", "openai", "perplexity"}, registry.Names())
	assert.Equal(t, []string{"openai", "perplexity"}, registry.Configured(), "blank and demo keys are not usable")

	d, ok := registry.Descriptor("openai")
	require.True(t, ok)
	assert.Equal(t, 512, d.MaxOutputTokens)
}

func TestAssistantPreferences(t *testing.T) {
	prefs := AssistantPreferences(map[string]string{"sleep_advice": "gemini", "web_lookup": "openai"})

	assert.Equal(t, "gemini", prefs[prompt.OpSleepAdvice])
	assert.Equal(t, "openai", prefs[prompt.OpWebLookup])
	assert.Equal(t, "anthropic", prefs[prompt.OpEmotionalSupport])
}

func TestNewDependencies(t *testing.T) {
	t.Run("without database", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		deps, err := NewDependencies(ctx, testConfig(), zaptest.NewLogger(t))
		require.NoError(t, err)

		assert.NotNil(t, deps.Metrics)
		assert.NotNil(t, deps.Registry)
		assert.NotNil(t, deps.Routing)
		assert.NotNil(t, deps.Assistant)
		assert.NotNil(t, deps.AuthMiddleware)
		assert.NotNil(t, deps.RateLimiter)
		assert.Nil(t, deps.Interactions)
		assert.Nil(t, deps.Recorder)

		assert.Equal(t, "gemini", deps.Assistant.PreferredProvider(prompt.OpSleepAdvice))
		assert.Equal(t, 2, deps.Routing.Config().MaxAttempts)

		assert.NoError(t, deps.Close(ctx))
	})

	t.Run("metrics and rate limiting disabled", func(t *testing.T) {
		cfg := testConfig()
		cfg.Observability.MetricsEnabled = false
		cfg.RateLimit.Enabled = false
		cfg.Auth.JWTSecret = ""

		deps, err := NewDependencies(context.Background(), cfg, zap.NewNop())
		require.NoError(t, err)

		assert.Nil(t, deps.Metrics)
		assert.Nil(t, deps.RateLimiter)
		assert.NotNil(t, deps.AuthMiddleware)
	})

	t.Run("with database", func(t *testing.T) {
		sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)

		mock.ExpectPing()
		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS assistant_interactions").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectClose()

		withFactory(t, func(config.DatabaseConfig, *zap.Logger) (*postgres.RepositoryFactory, error) {
			return postgres.NewRepositoryFactoryFromDB(postgres.WrapDB(sqlDB, nil), nil), nil
		})

		cfg := testConfig()
		cfg.Database.ConnectionString = "postgres://assistant@localhost/assistant"

		deps, err := NewDependencies(context.Background(), cfg, zap.NewNop())
		require.NoError(t, err)

		assert.NotNil(t, deps.DB)
		assert.NotNil(t, deps.Interactions)
		assert.NotNil(t, deps.TxManager)
		require.NotNil(t, deps.Recorder)
		assert.True(t, deps.Recorder.GetStats().Started)

		require.NoError(t, deps.Close(context.Background()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database connection failure", func(t *testing.T) {
		withFactory(t, func(config.DatabaseConfig, *zap.Logger) (*postgres.RepositoryFactory, error) {
			return nil, errors.New("dial tcp: connection refused")
		})

		cfg := testConfig()
		cfg.Database.Host = "db.internal"

		deps, err := NewDependencies(context.Background(), cfg, zap.NewNop())
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize database")
	})

	t.Run("schema failure closes the pool", func(t *testing.T) {
		sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)

		mock.ExpectPing()
		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
		mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))
		mock.ExpectClose()

		withFactory(t, func(config.DatabaseConfig, *zap.Logger) (*postgres.RepositoryFactory, error) {
			return postgres.NewRepositoryFactoryFromDB(postgres.WrapDB(sqlDB, nil), nil), nil
		})

		cfg := testConfig()
		cfg.Database.ConnectionString = "postgres://assistant@localhost/assistant"

		_, err = NewDependencies(context.Background(), cfg, zap.NewNop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "permission denied")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRejectAllValidator(t *testing.T) {
	claims, err := rejectAllValidator{}.ValidateToken(context.Background(), "anything")
	assert.Nil(t, claims)
	assert.Error(t, err)
}

func withFactory(t *testing.T, fn func(config.DatabaseConfig, *zap.Logger) (*postgres.RepositoryFactory, error)) {
	t.Helper()
	original := openRepositoryFactory
	openRepositoryFactory = fn
	t.Cleanup(func() { openRepositoryFactory = original })
}
