// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Engine() EngineConfig
	CrossFrame() CrossFrameConfig

	// Engine Setters
	SetEngineAutoRoot(bool)
	SetEngineDeloserRestoreDelay(d time.Duration)

	// CrossFrame Setters
	SetCrossFrameTransactionTimeout(d time.Duration)
	SetCrossFramePeerTimeout(d time.Duration)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	EngineCfg     EngineConfig     `mapstructure:"engine" yaml:"engine"`
	CrossFrameCfg CrossFrameConfig `mapstructure:"crossframe" yaml:"crossframe"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig         { return c.LoggerCfg }
func (c *Config) Engine() EngineConfig         { return c.EngineCfg }
func (c *Config) CrossFrame() CrossFrameConfig { return c.CrossFrameCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetEngineAutoRoot(b bool) { c.EngineCfg.AutoRoot = b }
func (c *Config) SetEngineDeloserRestoreDelay(d time.Duration) {
	c.EngineCfg.DeloserRestoreDelay = d
}
func (c *Config) SetCrossFrameTransactionTimeout(d time.Duration) {
	c.CrossFrameCfg.TransactionTimeout = d
}
func (c *Config) SetCrossFramePeerTimeout(d time.Duration) { c.CrossFrameCfg.PeerTimeout = d }

// --- Configuration Structs ---

type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// EngineConfig tunes the focus engine running inside a single frame.
type EngineConfig struct {
	// AutoRoot creates a root on <body> for elements that have none.
	AutoRoot bool `mapstructure:"auto_root" yaml:"auto_root"`
	// DeloserRestoreDelay is how long the deloser waits after focus is lost
	// before it restores focus. Bursts of blur events inside the window collapse.
	DeloserRestoreDelay time.Duration `mapstructure:"deloser_restore_delay" yaml:"deloser_restore_delay"`
	// DeloserHistorySize bounds every level of the deloser history.
	DeloserHistorySize int `mapstructure:"deloser_history_size" yaml:"deloser_history_size"`
	// GroupperVisibilityDelay debounces visibility recomputation after scrolls.
	GroupperVisibilityDelay time.Duration `mapstructure:"groupper_visibility_delay" yaml:"groupper_visibility_delay"`
	// BlurConfirmDelay is how long a blur to nothing waits before it is published.
	BlurConfirmDelay time.Duration `mapstructure:"blur_confirm_delay" yaml:"blur_confirm_delay"`
	// ObservedWaitTimeout is the default wait for named observed elements.
	ObservedWaitTimeout time.Duration `mapstructure:"observed_wait_timeout" yaml:"observed_wait_timeout"`
}

// CrossFrameConfig holds settings for the transaction protocol between frames.
type CrossFrameConfig struct {
	Enabled            bool            `mapstructure:"enabled" yaml:"enabled"`
	TransactionTimeout time.Duration   `mapstructure:"transaction_timeout" yaml:"transaction_timeout"`
	PingInterval       time.Duration   `mapstructure:"ping_interval" yaml:"ping_interval"`
	PingTimeout        time.Duration   `mapstructure:"ping_timeout" yaml:"ping_timeout"`
	PeerTimeout        time.Duration   `mapstructure:"peer_timeout" yaml:"peer_timeout"`
	WebSocket          WebSocketConfig `mapstructure:"websocket" yaml:"websocket"`
}

// WebSocketConfig configures the websocket transport used between frames
// living in separate processes.
type WebSocketConfig struct {
	WriteWait      time.Duration `mapstructure:"write_wait" yaml:"write_wait"`
	PongWait       time.Duration `mapstructure:"pong_wait" yaml:"pong_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size" yaml:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer" yaml:"send_buffer"`
	// DialMaxElapsed caps the exponential backoff used when dialing a peer.
	DialMaxElapsed time.Duration `mapstructure:"dial_max_elapsed" yaml:"dial_max_elapsed"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "keynav")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Engine --
	v.SetDefault("engine.auto_root", true)
	v.SetDefault("engine.deloser_restore_delay", "100ms")
	v.SetDefault("engine.deloser_history_size", 10)
	v.SetDefault("engine.groupper_visibility_delay", "0s")
	v.SetDefault("engine.blur_confirm_delay", "0s")
	v.SetDefault("engine.observed_wait_timeout", "5s")

	// -- CrossFrame --
	v.SetDefault("crossframe.enabled", true)
	v.SetDefault("crossframe.transaction_timeout", "5s")
	v.SetDefault("crossframe.ping_interval", "2s")
	v.SetDefault("crossframe.ping_timeout", "1s")
	v.SetDefault("crossframe.peer_timeout", "6s")
	v.SetDefault("crossframe.websocket.write_wait", "10s")
	v.SetDefault("crossframe.websocket.pong_wait", "60s")
	v.SetDefault("crossframe.websocket.max_message_size", 64*1024)
	v.SetDefault("crossframe.websocket.send_buffer", 256)
	v.SetDefault("crossframe.websocket.dial_max_elapsed", "30s")
}

// NewConfigFromViper unmarshals and validates configuration held by v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if err := c.EngineCfg.Validate(); err != nil {
		return fmt.Errorf("engine configuration invalid: %w", err)
	}
	if err := c.CrossFrameCfg.Validate(); err != nil {
		return fmt.Errorf("crossframe configuration invalid: %w", err)
	}
	return nil
}

func (e EngineConfig) Validate() error {
	if e.DeloserHistorySize <= 0 {
		return fmt.Errorf("engine.deloser_history_size must be a positive integer")
	}
	if e.DeloserRestoreDelay < 0 {
		return fmt.Errorf("engine.deloser_restore_delay must not be negative")
	}
	if e.GroupperVisibilityDelay < 0 || e.BlurConfirmDelay < 0 {
		return fmt.Errorf("engine delays must not be negative")
	}
	return nil
}

func (cf CrossFrameConfig) Validate() error {
	if !cf.Enabled {
		return nil
	}
	if cf.TransactionTimeout <= 0 {
		return fmt.Errorf("crossframe.transaction_timeout must be positive")
	}
	if cf.PingInterval <= 0 {
		return fmt.Errorf("crossframe.ping_interval must be positive")
	}
	if cf.PeerTimeout < cf.PingInterval {
		return fmt.Errorf("crossframe.peer_timeout (%s) must not be shorter than crossframe.ping_interval (%s)", cf.PeerTimeout, cf.PingInterval)
	}
	if cf.WebSocket.MaxMessageSize <= 0 {
		return fmt.Errorf("crossframe.websocket.max_message_size must be positive")
	}
	return nil
}
