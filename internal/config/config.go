package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
	GinMode   string `mapstructure:"gin_mode" yaml:"gin_mode"`

	MaxMessageBytes int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	SendQueueSize   int           `mapstructure:"send_queue_size" yaml:"send_queue_size"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	StatusMessage   string        `mapstructure:"status_message" yaml:"status_message"`
	LegacyPlainText bool          `mapstructure:"legacy_plain_text" yaml:"legacy_plain_text"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	MetricsPath     string        `mapstructure:"metrics_path" yaml:"metrics_path"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",
		GinMode:           "release",
		MaxMessageBytes:   64 << 10,
		SendQueueSize:     64,
		WriteTimeout:      10 * time.Second,
		StatusMessage:     "Connected to WebSocket server",
		LegacyPlainText:   true,
		AllowedOrigins:    []string{"*"},
		MetricsPath:       "/metrics",
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// Booleans and the metrics path are not merged: their zero value is meaningful.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
	if other.GinMode != "" {
		c.GinMode = other.GinMode
	}
	if other.MaxMessageBytes != 0 {
		c.MaxMessageBytes = other.MaxMessageBytes
	}
	if other.SendQueueSize != 0 {
		c.SendQueueSize = other.SendQueueSize
	}
	if other.WriteTimeout != 0 {
		c.WriteTimeout = other.WriteTimeout
	}
	if other.StatusMessage != "" {
		c.StatusMessage = other.StatusMessage
	}
	if len(other.AllowedOrigins) > 0 {
		c.AllowedOrigins = append([]string(nil), other.AllowedOrigins...)
	}
}

// Sanitize replaces invalid values with defaults.
func (c *Config) Sanitize() {
	def := Default()
	if c.Addr == "" {
		c.Addr = def.Addr
	}
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = def.ReadHeaderTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = def.MaxMessageBytes
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = def.SendQueueSize
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = def.AllowedOrigins
	}
}

// AllowAnyOrigin reports whether the WebSocket origin check is disabled.
func (c Config) AllowAnyOrigin() bool {
	for _, origin := range c.AllowedOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}
