package config

import "time"

// Config is the complete concierge configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" env:"SERVER"`
	LLM       LLMConfig       `yaml:"llm" env:"LLM"`
	Classify  ClassifyConfig  `yaml:"classify" env:"CLASSIFY"`
	Crews     CrewsConfig     `yaml:"crews" env:"CREWS"`
	Tools     ToolsConfig     `yaml:"tools" env:"TOOLS"`
	Output    OutputConfig    `yaml:"output" env:"OUTPUT"`
	Redis     RedisConfig     `yaml:"redis" env:"REDIS"`
	Database  DatabaseConfig  `yaml:"database" env:"DATABASE"`
	Archive   ArchiveConfig   `yaml:"archive" env:"ARCHIVE"`
	Mail      MailConfig      `yaml:"mail" env:"MAIL"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// APIKeys lists accepted X-API-Key values; empty disables key auth.
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
	// JWTSecret enables bearer-token auth when non-empty.
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	// RateLimit is requests per second per client; 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit" env:"RATE_LIMIT"`
	RateBurst int     `yaml:"rate_burst" env:"RATE_BURST"`
}

// LLMConfig configures providers. Per-provider keys fall back to APIKey.
type LLMConfig struct {
	DefaultProvider string        `yaml:"default_provider" env:"DEFAULT_PROVIDER"`
	DefaultModel    string        `yaml:"default_model" env:"DEFAULT_MODEL"`
	APIKey          string        `yaml:"api_key" env:"API_KEY"`
	AnthropicKey    string        `yaml:"anthropic_key" env:"ANTHROPIC_KEY"`
	DeepSeekKey     string        `yaml:"deepseek_key" env:"DEEPSEEK_KEY"`
	GeminiKey       string        `yaml:"gemini_key" env:"GEMINI_KEY"`
	BaseURL         string        `yaml:"base_url" env:"BASE_URL"`
	Timeout         time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxRetries      int           `yaml:"max_retries" env:"MAX_RETRIES"`
}

// ClassifyConfig configures the request classifier.
type ClassifyConfig struct {
	Model string `yaml:"model" env:"MODEL"`
	// MinConfidence below which the keyword fallback decides.
	MinConfidence float64 `yaml:"min_confidence" env:"MIN_CONFIDENCE"`
	// MaxPromptTokens bounds the classification prompt; longer requests
	// are truncated from the middle before the call.
	MaxPromptTokens int           `yaml:"max_prompt_tokens" env:"MAX_PROMPT_TOKENS"`
	CacheTTL        time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
}

// CrewsConfig configures the crew engine.
type CrewsConfig struct {
	// Dir holds additional crew definition YAML files merged over the
	// embedded catalog; watched for hot reload when non-empty.
	Dir           string        `yaml:"dir" env:"DIR"`
	MaxIterations int           `yaml:"max_iterations" env:"MAX_ITERATIONS"`
	TaskTimeout   time.Duration `yaml:"task_timeout" env:"TASK_TIMEOUT"`
	Verbose       bool          `yaml:"verbose" env:"VERBOSE"`
}

// ToolsConfig carries per-tool endpoints and API keys.
type ToolsConfig struct {
	SearchAPIKey   string        `yaml:"search_api_key" env:"SEARCH_API_KEY"`
	SearchBaseURL  string        `yaml:"search_base_url" env:"SEARCH_BASE_URL"`
	FinanceAPIKey  string        `yaml:"finance_api_key" env:"FINANCE_API_KEY"`
	FinanceBaseURL string        `yaml:"finance_base_url" env:"FINANCE_BASE_URL"`
	GeocodeBaseURL string        `yaml:"geocode_base_url" env:"GEOCODE_BASE_URL"`
	WeatherBaseURL string        `yaml:"weather_base_url" env:"WEATHER_BASE_URL"`
	Timeout        time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// RatePerSecond caps outbound tool calls per tool; 0 disables.
	RatePerSecond float64 `yaml:"rate_per_second" env:"RATE_PER_SECOND"`
	RateBurst     int     `yaml:"rate_burst" env:"RATE_BURST"`
	UserAgent     string  `yaml:"user_agent" env:"USER_AGENT"`
}

// OutputConfig configures rendered report output.
type OutputConfig struct {
	Dir string `yaml:"dir" env:"DIR"`
}

// RedisConfig configures the cache.
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled" env:"ENABLED"`
	Addr         string        `yaml:"addr" env:"ADDR"`
	Password     string        `yaml:"password" env:"PASSWORD"`
	DB           int           `yaml:"db" env:"DB"`
	PoolSize     int           `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int           `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	DefaultTTL   time.Duration `yaml:"default_ttl" env:"DEFAULT_TTL"`
}

// DatabaseConfig configures the relational store.
type DatabaseConfig struct {
	// Driver: postgres, mysql, sqlite
	Driver          string        `yaml:"driver" env:"DRIVER"`
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	Name            string        `yaml:"name" env:"NAME"`
	SSLMode         string        `yaml:"ssl_mode" env:"SSL_MODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// ArchiveConfig configures the optional Mongo archive of raw crew output.
type ArchiveConfig struct {
	Enabled    bool   `yaml:"enabled" env:"ENABLED"`
	URI        string `yaml:"uri" env:"URI"`
	Database   string `yaml:"database" env:"DATABASE"`
	Collection string `yaml:"collection" env:"COLLECTION"`
}

// MailConfig configures report delivery over a JSON mail API.
type MailConfig struct {
	Enabled  bool   `yaml:"enabled" env:"ENABLED"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL"`
	APIKey   string `yaml:"api_key" env:"API_KEY"`
	From     string `yaml:"from" env:"FROM"`
	ReplyTo  string `yaml:"reply_to" env:"REPLY_TO"`
	MaxRetry int    `yaml:"max_retry" env:"MAX_RETRY"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level            string   `yaml:"level" env:"LEVEL"`
	Format           string   `yaml:"format" env:"FORMAT"` // json, console
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig configures OTel export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			MetricsPort:     9090,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    10 * time.Minute, // crews can run for a while
			ShutdownTimeout: 15 * time.Second,
			RateLimit:       5,
			RateBurst:       10,
		},
		LLM: LLMConfig{
			DefaultProvider: "anthropic",
			DefaultModel:    "claude-3-5-sonnet-20241022",
			Timeout:         120 * time.Second,
			MaxRetries:      3,
		},
		Classify: ClassifyConfig{
			MinConfidence:   0.5,
			MaxPromptTokens: 2048,
			CacheTTL:        time.Hour,
		},
		Crews: CrewsConfig{
			MaxIterations: 8,
			TaskTimeout:   5 * time.Minute,
		},
		Tools: ToolsConfig{
			Timeout:       20 * time.Second,
			RatePerSecond: 2,
			RateBurst:     4,
			UserAgent:     "concierge/1.0 (+https://github.com/conciergehq/concierge)",
		},
		Output: OutputConfig{Dir: "output"},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     10,
			MinIdleConns: 2,
			DefaultTTL:   time.Hour,
		},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			Name:            "concierge.db",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: time.Hour,
		},
		Archive: ArchiveConfig{
			Database:   "concierge",
			Collection: "crew_outputs",
		},
		Mail: MailConfig{MaxRetry: 3},
		Log: LogConfig{
			Level:       "info",
			Format:      "json",
			OutputPaths: []string{"stdout"},
		},
		Telemetry: TelemetryConfig{
			ServiceName: "concierge",
			SampleRate:  1.0,
		},
	}
}
