// Package config provides application configuration management.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Configuration bounds to keep timers and limits in sane ranges.
const (
	minNavPollInterval = 100 * time.Millisecond
	maxSettleDelay     = 30 * time.Second
	maxFindInterval    = time.Minute
	maxModalTimeout    = 5 * time.Minute
	maxBridgeQueueSize = 256
	maxTipAmount       = 10000
	defaultDiagPort    = 8787
)

// Config holds all application configuration.
// Configuration is loaded from environment variables at startup.
type Config struct {
	// Browser settings
	ControlURL  string // DevTools endpoint of a running browser; empty = launch our own
	BrowserPath string
	Headless    bool
	StartURL    string // Page to open when launching a fresh browser

	// Backend API
	APIBase        string
	BackendTimeout time.Duration

	// Runtime timing
	NavPollInterval    time.Duration // URL change detection interval
	SettleDelay        time.Duration // Wait after a navigation before re-acquisition
	FindRetryInterval  time.Duration // Target finder retry interval
	ClickModalDelay    time.Duration // Delay between like click and modal open
	ModalSafetyTimeout time.Duration // Force-close an abandoned modal
	SuccessAutoClose   time.Duration // Auto-close after a successful tip

	// Bridge
	BridgeReadyTimeout   time.Duration
	BridgeRequestTimeout time.Duration
	BridgeQueueSize      int // Pre-ready request buffer capacity

	// Payment defaults
	DefaultTipAmount float64 // Fallback when the creator record carries none

	// Logging
	LogLevel      string
	LogFile       string // Rotating log file; empty = console only
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int

	// Diagnostics
	DiagEnabled bool
	DiagHost    string
	DiagPort    int

	// Terminal UI
	TUIEnabled bool

	// Selectors
	SelectorsPath      string // Path to external selectors.yaml override file
	SelectorsHotReload bool   // Enable file watching for hot-reload of selectors
}

// Load loads configuration from environment variables.
// Returns a Config with values from environment or sensible defaults.
func Load() *Config {
	return &Config{
		// Browser
		ControlURL:  getEnvString("CONTROL_URL", ""),
		BrowserPath: getEnvString("BROWSER_PATH", ""),
		Headless:    getEnvBool("HEADLESS", false),
		StartURL:    getEnvString("START_URL", "https://www.youtube.com"),

		// Backend
		APIBase:        getEnvString("API_BASE", "http://127.0.0.1:8001/api"),
		BackendTimeout: getEnvDuration("BACKEND_TIMEOUT", 15*time.Second),

		// Timing - defaults mirror the interception flow's event cadence
		NavPollInterval:    getEnvDuration("NAV_POLL_INTERVAL", 500*time.Millisecond),
		SettleDelay:        getEnvDuration("SETTLE_DELAY", time.Second),
		FindRetryInterval:  getEnvDuration("FIND_RETRY_INTERVAL", time.Second),
		ClickModalDelay:    getEnvDuration("CLICK_MODAL_DELAY", 300*time.Millisecond),
		ModalSafetyTimeout: getEnvDuration("MODAL_SAFETY_TIMEOUT", 10*time.Second),
		SuccessAutoClose:   getEnvDuration("SUCCESS_AUTO_CLOSE", 3*time.Second),

		// Bridge
		BridgeReadyTimeout:   getEnvDuration("BRIDGE_READY_TIMEOUT", 5*time.Second),
		BridgeRequestTimeout: getEnvDuration("BRIDGE_REQUEST_TIMEOUT", 30*time.Second),
		BridgeQueueSize:      getEnvInt("BRIDGE_QUEUE_SIZE", 16),

		// Payment
		DefaultTipAmount: getEnvFloat("DEFAULT_TIP_AMOUNT", 0.5),

		// Logging
		LogLevel:      getEnvString("LOG_LEVEL", "info"),
		LogFile:       getEnvString("LOG_FILE", ""),
		LogMaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 50),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
		LogMaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 14),

		// Diagnostics - localhost only by default
		DiagEnabled: getEnvBool("DIAG_ENABLED", true),
		DiagHost:    getEnvString("DIAG_HOST", "127.0.0.1"),
		DiagPort:    getEnvInt("DIAG_PORT", defaultDiagPort),

		// Terminal UI
		TUIEnabled: getEnvBool("TUI", false),

		// Selectors
		SelectorsPath:      getEnvString("SELECTORS_PATH", ""),
		SelectorsHotReload: getEnvBool("SELECTORS_HOT_RELOAD", false),
	}
}

// Validate checks configuration values and logs warnings for invalid values.
// Invalid values are corrected to sensible defaults.
func (c *Config) Validate() {
	if c.NavPollInterval < minNavPollInterval {
		log.Warn().Dur("interval", c.NavPollInterval).Msg("Nav poll interval too short, using 500ms")
		c.NavPollInterval = 500 * time.Millisecond
	}

	if c.SettleDelay < 0 || c.SettleDelay > maxSettleDelay {
		log.Warn().Dur("delay", c.SettleDelay).Msg("Invalid settle delay, using 1s")
		c.SettleDelay = time.Second
	}

	if c.FindRetryInterval <= 0 || c.FindRetryInterval > maxFindInterval {
		log.Warn().Dur("interval", c.FindRetryInterval).Msg("Invalid find retry interval, using 1s")
		c.FindRetryInterval = time.Second
	}

	if c.ModalSafetyTimeout <= 0 || c.ModalSafetyTimeout > maxModalTimeout {
		log.Warn().Dur("timeout", c.ModalSafetyTimeout).Msg("Invalid modal safety timeout, using 10s")
		c.ModalSafetyTimeout = 10 * time.Second
	}

	if c.SuccessAutoClose <= 0 || c.SuccessAutoClose > maxModalTimeout {
		log.Warn().Dur("delay", c.SuccessAutoClose).Msg("Invalid success auto-close delay, using 3s")
		c.SuccessAutoClose = 3 * time.Second
	}

	if c.BridgeQueueSize < 1 {
		log.Warn().Int("size", c.BridgeQueueSize).Msg("Invalid bridge queue size, using 16")
		c.BridgeQueueSize = 16
	} else if c.BridgeQueueSize > maxBridgeQueueSize {
		log.Warn().
			Int("size", c.BridgeQueueSize).
			Int("max", maxBridgeQueueSize).
			Msg("Bridge queue size too large, capping to maximum")
		c.BridgeQueueSize = maxBridgeQueueSize
	}

	if c.DefaultTipAmount <= 0 || c.DefaultTipAmount > maxTipAmount {
		log.Warn().Float64("amount", c.DefaultTipAmount).Msg("Invalid default tip amount, using 0.5")
		c.DefaultTipAmount = 0.5
	}

	if c.DiagPort < 0 || c.DiagPort > 65535 {
		log.Warn().Int("port", c.DiagPort).Msg("Invalid diagnostics port, using default")
		c.DiagPort = defaultDiagPort
	}

	// BrowserPath validation - prevent path traversal
	if c.BrowserPath != "" && strings.Contains(c.BrowserPath, "..") {
		log.Error().
			Str("path", c.BrowserPath).
			Msg("BrowserPath contains path traversal sequence (..), ignoring")
		c.BrowserPath = ""
	}

	if c.APIBase == "" {
		log.Warn().Msg("API_BASE is empty, eligibility checks will fail closed")
	}
	c.APIBase = strings.TrimRight(c.APIBase, "/")
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		log.Warn().Str("key", key).Str("value", val).Msg("Invalid integer in environment, using default")
		return defaultVal
	}
	return i
}

// getEnvBool returns the environment variable as bool or a default.
func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		log.Warn().Str("key", key).Str("value", val).Msg("Invalid boolean in environment, using default")
		return defaultVal
	}
	return b
}

// getEnvFloat returns the environment variable as float64 or a default.
func getEnvFloat(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		log.Warn().Str("key", key).Str("value", val).Msg("Invalid float in environment, using default")
		return defaultVal
	}
	return f
}

// getEnvDuration returns the environment variable as a duration or a default.
// Accepts Go duration strings ("500ms", "10s") or bare integers as seconds.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	log.Warn().Str("key", key).Str("value", val).Msg("Invalid duration in environment, using default")
	return defaultVal
}
