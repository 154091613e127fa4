package config

import "time"

// Config represents the main configuration structure
type Config struct {
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Anonymization AnonymizationConfig `yaml:"anonymization" mapstructure:"anonymization"`
	Suppliers     SuppliersConfig     `yaml:"suppliers" mapstructure:"suppliers"`
	Redis         RedisConfig         `yaml:"redis" mapstructure:"redis"`
	Cache         CacheConfig         `yaml:"cache" mapstructure:"cache"`
	LLM           LLMConfig           `yaml:"llm" mapstructure:"llm"`
	Extraction    ExtractionConfig    `yaml:"extraction" mapstructure:"extraction"`
	History       HistoryConfig       `yaml:"history" mapstructure:"history"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit" mapstructure:"rate_limit"`
	Logging       LoggingConfig       `yaml:"logging" mapstructure:"logging"`
	WebSocket     WebSocketConfig     `yaml:"websocket" mapstructure:"websocket"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port          int           `yaml:"port" mapstructure:"port"`
	ReadTimeout   time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout   time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	MaxUploadSize int64         `yaml:"max_upload_size" mapstructure:"max_upload_size"` // bytes
}

// AnonymizationConfig controls the redaction engine defaults
type AnonymizationConfig struct {
	ApplyHeuristics bool `yaml:"apply_heuristics" mapstructure:"apply_heuristics"`

	// Detectors lists the enabled detector groups, or "all"
	Detectors []string `yaml:"detectors" mapstructure:"detectors"`

	// ReservedPrefix marks supplier ids skipped when no supplier is given
	ReservedPrefix string `yaml:"reserved_prefix" mapstructure:"reserved_prefix"`
}

// SuppliersConfig contains the supplier rule store configuration
type SuppliersConfig struct {
	Backend string `yaml:"backend" mapstructure:"backend"` // file or redis
	Path    string `yaml:"path" mapstructure:"path"`
	Watch   bool   `yaml:"watch" mapstructure:"watch"`
}

// RedisConfig contains the shared redis connection settings
type RedisConfig struct {
	URL            string `yaml:"url" mapstructure:"url"`
	MaxConnections int    `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int    `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	KeyPrefix      string `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// CacheConfig controls caching of LLM extraction results
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	TTL     time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// LLMConfig contains the completion service configuration
type LLMConfig struct {
	BaseURL           string        `yaml:"base_url" mapstructure:"base_url"`
	APIKey            string        `yaml:"api_key" mapstructure:"api_key"`
	Model             string        `yaml:"model" mapstructure:"model"`
	Temperature       float32       `yaml:"temperature" mapstructure:"temperature"`
	MaxTotalTokens    int           `yaml:"max_total_tokens" mapstructure:"max_total_tokens"`
	MaxOutputTokens   int           `yaml:"max_output_tokens" mapstructure:"max_output_tokens"`
	TokenSafetyMargin int           `yaml:"token_safety_margin" mapstructure:"token_safety_margin"`
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// ExtractionConfig contains the external tools used to turn documents into text
type ExtractionConfig struct {
	Pdftotext     string `yaml:"pdftotext" mapstructure:"pdftotext"`
	Pdftoppm      string `yaml:"pdftoppm" mapstructure:"pdftoppm"`
	Tesseract     string `yaml:"tesseract" mapstructure:"tesseract"`
	DPI           int    `yaml:"dpi" mapstructure:"dpi"`
	MaxPages      int    `yaml:"max_pages" mapstructure:"max_pages"`
	PDFLanguage   string `yaml:"pdf_language" mapstructure:"pdf_language"`
	ImageLanguage string `yaml:"image_language" mapstructure:"image_language"`
}

// HistoryConfig contains the run history database configuration
type HistoryConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// RateLimitConfig contains per-client limits for the extraction routes
type RateLimitConfig struct {
	Enabled        bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMin int  `yaml:"requests_per_min" mapstructure:"requests_per_min"`
	Burst          int  `yaml:"burst" mapstructure:"burst"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
		Path    string `yaml:"path" mapstructure:"path"`
	} `yaml:"file" mapstructure:"file"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Path     string `yaml:"path" mapstructure:"path"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	Events   struct {
		BroadcastRequests       bool `yaml:"broadcast_requests" mapstructure:"broadcast_requests"`
		BroadcastAnonymizations bool `yaml:"broadcast_anonymizations" mapstructure:"broadcast_anonymizations"`
		BroadcastSuppliers      bool `yaml:"broadcast_suppliers" mapstructure:"broadcast_suppliers"`
		BroadcastConnections    bool `yaml:"broadcast_connections" mapstructure:"broadcast_connections"`
	} `yaml:"events" mapstructure:"events"`
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:          8000,
			ReadTimeout:   60 * time.Second,
			WriteTimeout:  180 * time.Second,
			IdleTimeout:   120 * time.Second,
			MaxUploadSize: 50 << 20,
		},
		Anonymization: AnonymizationConfig{
			ApplyHeuristics: true,
			Detectors:       []string{"all"},
			ReservedPrefix:  "_",
		},
		Suppliers: SuppliersConfig{
			Backend: "file",
			Path:    "config/anonymization_config.json",
			Watch:   true,
		},
		Redis: RedisConfig{
			URL:            "redis://localhost:6379/0",
			MaxConnections: 10,
			MinIdleConns:   2,
			KeyPrefix:      "docsentinel",
		},
		Cache: CacheConfig{
			Enabled: false,
			TTL:     24 * time.Hour,
		},
		LLM: LLMConfig{
			BaseURL:           "https://api.openai.com/v1",
			Model:             "gpt-4o",
			Temperature:       0,
			MaxTotalTokens:    128000,
			MaxOutputTokens:   4096,
			TokenSafetyMargin: 1000,
			Timeout:           120 * time.Second,
		},
		Extraction: ExtractionConfig{
			Pdftotext:     "pdftotext",
			Pdftoppm:      "pdftoppm",
			Tesseract:     "tesseract",
			DPI:           300,
			PDFLanguage:   "spa",
			ImageLanguage: "spa+eng+deu+cat",
		},
		History: HistoryConfig{
			Enabled:         false,
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			RequestsPerMin: 60,
			Burst:          10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		WebSocket: WebSocketConfig{
			Enabled: true,
			Path:    "/ws",
		},
	}
	cfg.Logging.File.Path = "logs/docsentinel.log"
	cfg.WebSocket.Events.BroadcastRequests = true
	cfg.WebSocket.Events.BroadcastAnonymizations = true
	cfg.WebSocket.Events.BroadcastSuppliers = true
	cfg.WebSocket.Events.BroadcastConnections = true
	return cfg
}
