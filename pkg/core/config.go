package core

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config contains the complete configuration for a memoryglass Client.
type Config struct {
	// Model configures the external reasoning capability.
	Model ModelConfig `json:"model"`

	// Durable configures the optional durable store backing the long
	// cache tier and historical recall.
	Durable DurableConfig `json:"durable"`

	// Voice configures the optional text-to-speech collaborator.
	Voice VoiceConfig `json:"voice"`

	// Session bounds the per-user memory window and session lifecycle.
	Session SessionConfig `json:"session"`

	// Rate bounds per-user request throughput.
	Rate RateConfig `json:"rate"`

	// Cache sets the two answer-cache TTLs.
	Cache CacheConfig `json:"cache"`

	// Gateway paces and retries external model calls.
	Gateway GatewayConfig `json:"gateway"`

	// Media bounds accepted media payloads.
	Media MediaConfig `json:"media"`
}

// ModelConfig configures the external reasoning model provider.
//
// Supported providers: openai (and OpenAI-compatible gateways via BaseURL).
type ModelConfig struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model,omitempty"`
	BaseURL  string `json:"base_url,omitempty"`
}

// DurableConfig configures the durable store provider.
//
// Supported providers: sqlite, postgres, mysql, none.
type DurableConfig struct {
	// Provider selects the backend; "none" disables durable storage.
	Provider string `json:"provider"`

	// Config contains provider-specific configuration.
	// For SQLite: db_path
	// For PostgreSQL: host, port, user, password, db_name, ssl_mode
	// For MySQL: host, port, user, password, db_name
	Config map[string]interface{} `json:"config,omitempty"`
}

// VoiceConfig configures the optional voice synthesizer. An empty APIKey
// disables synthesis; the pipeline works identically without it.
type VoiceConfig struct {
	APIKey  string `json:"api_key,omitempty"`
	VoiceID string `json:"voice_id,omitempty"`
}

// SessionConfig bounds per-user sessions and the memory window.
type SessionConfig struct {
	// RetentionHorizon is the memory window length.
	RetentionHorizon time.Duration `json:"retention_horizon"`

	// IdleThreshold is how long a session may go untouched before the
	// sweep removes it.
	IdleThreshold time.Duration `json:"idle_threshold"`

	// SweepPeriod is how often the background sweep runs.
	SweepPeriod time.Duration `json:"sweep_period"`

	// MaxObjects, MaxActivities, MaxChunks cap window entry counts.
	MaxObjects    int `json:"max_objects"`
	MaxActivities int `json:"max_activities"`
	MaxChunks     int `json:"max_chunks"`

	// SummaryCap is the number of most recent entries kept per kind in an
	// end-of-session summary.
	SummaryCap int `json:"summary_cap"`

	// IngestQueueSize bounds the per-session chunk analysis queue.
	IngestQueueSize int `json:"ingest_queue_size"`
}

// RateConfig configures the fixed-window rate limiter.
type RateConfig struct {
	Window       time.Duration `json:"window"`
	MaxPerWindow int           `json:"max_per_window"`
}

// CacheConfig sets the two answer-cache TTLs.
type CacheConfig struct {
	// ShortTTL covers accidental double-submission within seconds.
	ShortTTL time.Duration `json:"short_ttl"`

	// LongTTL covers genuine repeat questions.
	LongTTL time.Duration `json:"long_ttl"`
}

// GatewayConfig paces and retries external model calls.
type GatewayConfig struct {
	MinInterval    time.Duration `json:"min_interval"`
	MaxRetries     int           `json:"max_retries"`
	InitialBackoff time.Duration `json:"initial_backoff"`
	CallTimeout    time.Duration `json:"call_timeout"`
}

// MediaConfig bounds accepted media payloads.
type MediaConfig struct {
	MinBytes int `json:"min_bytes"`
	MaxBytes int `json:"max_bytes"`
}

// DefaultConfig returns the documented default constants.
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Provider: "openai",
		},
		Durable: DurableConfig{
			Provider: "none",
		},
		Session: SessionConfig{
			RetentionHorizon: 20 * time.Minute,
			IdleThreshold:    time.Hour,
			SweepPeriod:      5 * time.Minute,
			MaxObjects:       200,
			MaxActivities:    200,
			MaxChunks:        50,
			SummaryCap:       50,
			IngestQueueSize:  8,
		},
		Rate: RateConfig{
			Window:       5 * time.Second,
			MaxPerWindow: 3,
		},
		Cache: CacheConfig{
			ShortTTL: 10 * time.Second,
			LongTTL:  30 * time.Minute,
		},
		Gateway: GatewayConfig{
			MinInterval:    time.Second,
			MaxRetries:     3,
			InitialBackoff: 2 * time.Second,
			CallTimeout:    30 * time.Second,
		},
		Media: MediaConfig{
			MinBytes: 100,
			MaxBytes: 25 << 20,
		},
	}
}

// LoadConfigFromEnv loads configuration from environment variables.
//
// The function searches for a .env file (up to 5 directory levels up), loads
// it if found, and overlays environment variables on DefaultConfig.
//
// Recognized variables:
//   - LLM_PROVIDER, LLM_API_KEY, LLM_MODEL, LLM_BASE_URL
//   - DURABLE_PROVIDER (sqlite, postgres, mysql, none)
//   - SQLITE_PATH
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_USER, POSTGRES_PASSWORD,
//     POSTGRES_DATABASE, POSTGRES_SSLMODE
//   - MYSQL_HOST, MYSQL_PORT, MYSQL_USER, MYSQL_PASSWORD, MYSQL_DATABASE
//   - ELEVENLABS_API_KEY, ELEVENLABS_VOICE_ID
//   - RETENTION_HORIZON_SECONDS, SESSION_IDLE_SECONDS, SWEEP_PERIOD_SECONDS
//   - RATE_WINDOW_SECONDS, RATE_MAX_PER_WINDOW
//   - CACHE_SHORT_TTL_SECONDS, CACHE_LONG_TTL_SECONDS
func LoadConfigFromEnv() (*Config, error) {
	if envPath, found := FindEnvFile(); found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg := DefaultConfig()

	cfg.Model.Provider = getEnvOrDefault("LLM_PROVIDER", "openai")
	cfg.Model.APIKey = os.Getenv("LLM_API_KEY")
	cfg.Model.Model = os.Getenv("LLM_MODEL")
	cfg.Model.BaseURL = os.Getenv("LLM_BASE_URL")

	provider := getEnvOrDefault("DURABLE_PROVIDER", "none")
	cfg.Durable.Provider = provider
	switch provider {
	case "sqlite":
		cfg.Durable.Config = map[string]interface{}{
			"db_path": getEnvOrDefault("SQLITE_PATH", "./memoryglass.db"),
		}
	case "postgres":
		port, _ := strconv.Atoi(getEnvOrDefault("POSTGRES_PORT", "5432"))
		cfg.Durable.Config = map[string]interface{}{
			"host":     getEnvOrDefault("POSTGRES_HOST", "localhost"),
			"port":     port,
			"user":     getEnvOrDefault("POSTGRES_USER", "postgres"),
			"password": os.Getenv("POSTGRES_PASSWORD"),
			"db_name":  getEnvOrDefault("POSTGRES_DATABASE", "memoryglass"),
			"ssl_mode": getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
		}
	case "mysql":
		port, _ := strconv.Atoi(getEnvOrDefault("MYSQL_PORT", "3306"))
		cfg.Durable.Config = map[string]interface{}{
			"host":     getEnvOrDefault("MYSQL_HOST", "127.0.0.1"),
			"port":     port,
			"user":     getEnvOrDefault("MYSQL_USER", "root"),
			"password": os.Getenv("MYSQL_PASSWORD"),
			"db_name":  getEnvOrDefault("MYSQL_DATABASE", "memoryglass"),
		}
	}

	cfg.Voice.APIKey = os.Getenv("ELEVENLABS_API_KEY")
	cfg.Voice.VoiceID = os.Getenv("ELEVENLABS_VOICE_ID")

	overlaySeconds(&cfg.Session.RetentionHorizon, "RETENTION_HORIZON_SECONDS")
	overlaySeconds(&cfg.Session.IdleThreshold, "SESSION_IDLE_SECONDS")
	overlaySeconds(&cfg.Session.SweepPeriod, "SWEEP_PERIOD_SECONDS")
	overlaySeconds(&cfg.Rate.Window, "RATE_WINDOW_SECONDS")
	overlayInt(&cfg.Rate.MaxPerWindow, "RATE_MAX_PER_WINDOW")
	overlaySeconds(&cfg.Cache.ShortTTL, "CACHE_SHORT_TTL_SECONDS")
	overlaySeconds(&cfg.Cache.LongTTL, "CACHE_LONG_TTL_SECONDS")

	return cfg, nil
}

// LoadConfigFromJSON loads configuration from a JSON file.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewPipelineError("LoadConfigFromJSON", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, NewPipelineError("LoadConfigFromJSON", err)
	}
	return cfg, nil
}

// Validate checks that required fields are set.
func (c *Config) Validate() error {
	if c.Model.Provider == "" {
		return NewPipelineError("Validate", ErrInvalidConfig)
	}
	if c.Durable.Provider == "" {
		return NewPipelineError("Validate", ErrInvalidConfig)
	}
	if c.Rate.Window <= 0 || c.Rate.MaxPerWindow <= 0 {
		return NewPipelineError("Validate", ErrInvalidConfig)
	}
	if c.Session.RetentionHorizon <= 0 {
		return NewPipelineError("Validate", ErrInvalidConfig)
	}
	return nil
}

// FindEnvFile searches for a .env or .env.example file, checking the current
// directory and then up to 5 directory levels up.
func FindEnvFile() (string, bool) {
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}

// getEnvOrDefault gets an environment variable or returns the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// overlaySeconds overwrites d with the env value (in seconds) when set.
func overlaySeconds(d *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			*d = time.Duration(secs) * time.Second
		}
	}
}

// overlayInt overwrites n with the env value when set.
func overlayInt(n *int, key string) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			*n = i
		}
	}
}
