package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Auth          AuthConfig
	Providers     ProvidersConfig
	Assistant     AssistantConfig
	RateLimit     RateLimitConfig
	Observability ObservabilityConfig
	CORS          CORSConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// DatabaseConfig holds PostgreSQL configuration for the interaction history.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over
// individual fields. With neither set the history is disabled.
type DatabaseConfig struct {
	ConnectionString string
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// AuthConfig holds the hosted backend's JWT settings
type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
}

// ProviderConfig holds the settings of one AI vendor
type ProviderConfig struct {
	Name        string
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
}

// ProvidersConfig holds AI vendor configurations
type ProvidersConfig struct {
	OpenAI     ProviderConfig
	Anthropic  ProviderConfig
	Gemini     ProviderConfig
	Perplexity ProviderConfig
}

// All returns every vendor configuration in a stable order
func (p ProvidersConfig) All() []ProviderConfig {
	return []ProviderConfig{p.OpenAI, p.Anthropic, p.Gemini, p.Perplexity}
}

// AssistantConfig holds the dispatch and facade settings
type AssistantConfig struct {
	ProviderOrder  []string
	MaxAttempts    int
	AttemptTimeout time.Duration
	RetryBaseDelay time.Duration
	MaxTextLength  int
	// Preferences maps an operation name to its preferred provider and
	// overrides the built-in defaults (ASSISTANT_PREFER_<OPERATION>)
	Preferences map[string]string
}

// RateLimitConfig holds the per-user request limits
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond float64
	Burst             int
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel          string
	LogFormat         string // json or text
	MetricsEnabled    bool
	TracingEnabled    bool
	TracingEndpoint   string
	TracingSampleRate float64
	ServiceName       string
}

// CORSConfig holds allowed browser origins
type CORSConfig struct {
	AllowedOrigins []string
}

// operations that accept a preference override
var preferenceOperations = []string{
	"pregnancy_advice",
	"postpartum_support",
	"web_lookup",
	"emotional_support",
	"nutrition",
	"exercise",
	"sleep_advice",
	"mood_analysis",
	"conversation_summary",
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 150*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			TLS: struct {
				Enabled  bool
				CertFile string
				KeyFile  string
			}{
				Enabled:  getEnvAsBool("TLS_ENABLED", false),
				CertFile: getEnv("TLS_CERT_FILE", "certs/cert.pem"),
				KeyFile:  getEnv("TLS_KEY_FILE", "certs/key.pem"),
			},
		},
		Database: loadDatabaseConfig(),
		Auth: AuthConfig{
			JWTSecret:   getEnv("SUPABASE_JWT_SECRET", ""),
			JWTIssuer:   getEnv("SUPABASE_JWT_ISSUER", ""),
			JWTAudience: getEnv("SUPABASE_JWT_AUDIENCE", "authenticated"),
		},
		Providers: ProvidersConfig{
			OpenAI:     loadProviderConfig("openai", "OPENAI", "https://api.openai.com/v1", "gpt-4o-mini"),
			Anthropic:  loadProviderConfig("anthropic", "ANTHROPIC", "https://api.anthropic.com", "claude-3-5-haiku-latest"),
			Gemini:     loadProviderConfig("gemini", "GEMINI", "https://generativelanguage.googleapis.com", "gemini-1.5-flash"),
			Perplexity: loadProviderConfig("perplexity", "PERPLEXITY", "https://api.perplexity.ai", "sonar"),
		},
		Assistant: AssistantConfig{
			ProviderOrder:  getEnvAsList("ASSISTANT_PROVIDER_ORDER", []string{"openai", "anthropic", "gemini", "perplexity"}),
			MaxAttempts:    getEnvAsInt("ASSISTANT_MAX_ATTEMPTS", 2),
			AttemptTimeout: getEnvAsDuration("ASSISTANT_ATTEMPT_TIMEOUT", 30*time.Second),
			RetryBaseDelay: getEnvAsDuration("ASSISTANT_RETRY_BASE_DELAY", 1*time.Second),
			MaxTextLength:  getEnvAsInt("ASSISTANT_MAX_TEXT_LENGTH", 8000),
			Preferences:    loadPreferences(),
		},
		RateLimit: RateLimitConfig{
			Enabled:           getEnvAsBool("RATE_LIMIT_ENABLED", true),
			RequestsPerSecond: getEnvAsFloat("RATE_LIMIT_RPS", 1),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 5),
		},
		Observability: ObservabilityConfig{
			LogLevel:          getEnv("LOG_LEVEL", "info"),
			LogFormat:         getEnv("LOG_FORMAT", "json"),
			MetricsEnabled:    getEnvAsBool("METRICS_ENABLED", true),
			TracingEnabled:    getEnvAsBool("TRACING_ENABLED", false),
			TracingEndpoint:   getEnv("TRACING_ENDPOINT", "localhost:4317"),
			TracingSampleRate: getEnvAsFloat("TRACING_SAMPLE_RATE", 0.1),
			ServiceName:       getEnv("SERVICE_NAME", "maternal-assistant"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:8081", "http://localhost:19006"}),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Database.Enabled() && c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	if len(c.Assistant.ProviderOrder) == 0 {
		return fmt.Errorf("assistant provider order cannot be empty")
	}
	known := make(map[string]bool)
	for _, p := range c.Providers.All() {
		known[p.Name] = true
	}
	for _, name := range c.Assistant.ProviderOrder {
		if !known[name] {
			return fmt.Errorf("unknown provider %q in ASSISTANT_PROVIDER_ORDER", name)
		}
	}
	for op, name := range c.Assistant.Preferences {
		if !known[name] {
			return fmt.Errorf("unknown provider %q preferred for %s", name, op)
		}
	}
	if c.Assistant.MaxAttempts < 1 {
		return fmt.Errorf("assistant max attempts must be at least 1")
	}
	if c.Assistant.AttemptTimeout <= 0 {
		return fmt.Errorf("assistant attempt timeout must be positive")
	}

	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst < 1) {
		return fmt.Errorf("rate limit requires a positive rate and burst")
	}

	if c.IsProduction() {
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("jwt secret is required in production")
		}
		if len(c.ConfiguredProviders()) == 0 {
			return fmt.Errorf("at least one AI provider must be configured in production")
		}
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// ConfiguredProviders returns the names of providers with an API key
func (c *Config) ConfiguredProviders() []string {
	var names []string
	for _, p := range c.Providers.All() {
		if strings.TrimSpace(p.APIKey) != "" {
			names = append(names, p.Name)
		}
	}
	return names
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// Enabled reports whether a database is configured
func (c *DatabaseConfig) Enabled() bool {
	return c.ConnectionString != "" || c.Host != ""
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password)
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			return fmt.Sprintf("host=%s port=%s database=%s", u.Hostname(), port, strings.TrimPrefix(u.Path, "/"))
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func loadDatabaseConfig() DatabaseConfig {
	pool := DatabaseConfig{
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
	if dbURL := getEnv("DATABASE_URL", ""); dbURL != "" {
		pool.ConnectionString = dbURL
		return pool
	}
	pool.Host = getEnv("DB_HOST", "")
	pool.Port = getEnvAsInt("DB_PORT", 5432)
	pool.User = getEnv("DB_USER", "")
	pool.Password = getEnv("DB_PASSWORD", "")
	pool.Database = getEnv("DB_NAME", "")
	pool.SSLMode = getEnv("DB_SSLMODE", "disable")
	return pool
}

func loadProviderConfig(name, prefix, baseURL, model string) ProviderConfig {
	return ProviderConfig{
		Name:        name,
		APIKey:      getEnv(prefix+"_API_KEY", ""),
		BaseURL:     getEnv(prefix+"_BASE_URL", baseURL),
		Model:       getEnv(prefix+"_MODEL", model),
		MaxTokens:   getEnvAsInt(prefix+"_MAX_TOKENS", 1024),
		Temperature: getEnvAsFloat(prefix+"_TEMPERATURE", 0.7),
	}
}

func loadPreferences() map[string]string {
	prefs := make(map[string]string)
	for _, op := range preferenceOperations {
		if v := getEnv("ASSISTANT_PREFER_"+strings.ToUpper(op), ""); v != "" {
			prefs[op] = strings.ToLower(strings.TrimSpace(v))
		}
	}
	return prefs
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated value, lower-casing and dropping blanks
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToLower(part))
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
