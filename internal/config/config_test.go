package config

import (
	"os"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"CONTROL_URL", "BROWSER_PATH", "HEADLESS", "START_URL",
		"API_BASE", "BACKEND_TIMEOUT",
		"NAV_POLL_INTERVAL", "SETTLE_DELAY", "FIND_RETRY_INTERVAL",
		"CLICK_MODAL_DELAY", "MODAL_SAFETY_TIMEOUT", "SUCCESS_AUTO_CLOSE",
		"BRIDGE_READY_TIMEOUT", "BRIDGE_REQUEST_TIMEOUT", "BRIDGE_QUEUE_SIZE",
		"DEFAULT_TIP_AMOUNT",
		"LOG_LEVEL", "LOG_FILE", "LOG_MAX_SIZE_MB", "LOG_MAX_BACKUPS", "LOG_MAX_AGE_DAYS",
		"DIAG_ENABLED", "DIAG_HOST", "DIAG_PORT", "TUI",
		"SELECTORS_PATH", "SELECTORS_HOT_RELOAD",
	}
	for _, env := range envVars {
		os.Unsetenv(env)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.ControlURL != "" {
		t.Errorf("Expected empty ControlURL by default, got %q", cfg.ControlURL)
	}
	if cfg.Headless {
		t.Error("Expected Headless to be false by default")
	}
	if cfg.StartURL != "https://www.youtube.com" {
		t.Errorf("Unexpected default StartURL %q", cfg.StartURL)
	}
	if cfg.APIBase != "http://127.0.0.1:8001/api" {
		t.Errorf("Unexpected default APIBase %q", cfg.APIBase)
	}
	if cfg.NavPollInterval != 500*time.Millisecond {
		t.Errorf("Expected default nav poll interval 500ms, got %v", cfg.NavPollInterval)
	}
	if cfg.SettleDelay != time.Second {
		t.Errorf("Expected default settle delay 1s, got %v", cfg.SettleDelay)
	}
	if cfg.FindRetryInterval != time.Second {
		t.Errorf("Expected default find retry interval 1s, got %v", cfg.FindRetryInterval)
	}
	if cfg.ClickModalDelay != 300*time.Millisecond {
		t.Errorf("Expected default click-modal delay 300ms, got %v", cfg.ClickModalDelay)
	}
	if cfg.ModalSafetyTimeout != 10*time.Second {
		t.Errorf("Expected default safety timeout 10s, got %v", cfg.ModalSafetyTimeout)
	}
	if cfg.SuccessAutoClose != 3*time.Second {
		t.Errorf("Expected default success auto-close 3s, got %v", cfg.SuccessAutoClose)
	}
	if cfg.BridgeQueueSize != 16 {
		t.Errorf("Expected default bridge queue size 16, got %d", cfg.BridgeQueueSize)
	}
	if cfg.DefaultTipAmount != 0.5 {
		t.Errorf("Expected default tip amount 0.5, got %v", cfg.DefaultTipAmount)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level 'info', got %q", cfg.LogLevel)
	}
	if !cfg.DiagEnabled {
		t.Error("Expected DiagEnabled to be true by default")
	}
	if cfg.DiagPort != 8787 {
		t.Errorf("Expected default diag port 8787, got %d", cfg.DiagPort)
	}
	if cfg.TUIEnabled {
		t.Error("Expected TUIEnabled to be false by default")
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_BASE", "https://api.example.com/api")
	t.Setenv("NAV_POLL_INTERVAL", "250ms")
	t.Setenv("MODAL_SAFETY_TIMEOUT", "20s")
	t.Setenv("DEFAULT_TIP_AMOUNT", "1.25")
	t.Setenv("BRIDGE_QUEUE_SIZE", "4")
	t.Setenv("HEADLESS", "true")

	cfg := Load()

	if cfg.APIBase != "https://api.example.com/api" {
		t.Errorf("APIBase not read from env, got %q", cfg.APIBase)
	}
	if cfg.NavPollInterval != 250*time.Millisecond {
		t.Errorf("NavPollInterval not read from env, got %v", cfg.NavPollInterval)
	}
	if cfg.ModalSafetyTimeout != 20*time.Second {
		t.Errorf("ModalSafetyTimeout not read from env, got %v", cfg.ModalSafetyTimeout)
	}
	if cfg.DefaultTipAmount != 1.25 {
		t.Errorf("DefaultTipAmount not read from env, got %v", cfg.DefaultTipAmount)
	}
	if cfg.BridgeQueueSize != 4 {
		t.Errorf("BridgeQueueSize not read from env, got %d", cfg.BridgeQueueSize)
	}
	if !cfg.Headless {
		t.Error("Headless not read from env")
	}
}

func TestDurationAcceptsBareSeconds(t *testing.T) {
	clearEnv(t)
	t.Setenv("SETTLE_DELAY", "2")

	cfg := Load()
	if cfg.SettleDelay != 2*time.Second {
		t.Errorf("Expected bare integer to parse as seconds, got %v", cfg.SettleDelay)
	}
}

func TestValidateCorrectsOutOfRange(t *testing.T) {
	cfg := &Config{
		NavPollInterval:    10 * time.Millisecond,
		SettleDelay:        -time.Second,
		FindRetryInterval:  0,
		ModalSafetyTimeout: 0,
		SuccessAutoClose:   time.Hour,
		BridgeQueueSize:    0,
		DefaultTipAmount:   -1,
		DiagPort:           99999,
		BrowserPath:        "../../etc/chrome",
		APIBase:            "http://api.local/api/",
	}

	cfg.Validate()

	if cfg.NavPollInterval != 500*time.Millisecond {
		t.Errorf("Expected nav poll interval corrected to 500ms, got %v", cfg.NavPollInterval)
	}
	if cfg.SettleDelay != time.Second {
		t.Errorf("Expected settle delay corrected to 1s, got %v", cfg.SettleDelay)
	}
	if cfg.FindRetryInterval != time.Second {
		t.Errorf("Expected find retry interval corrected to 1s, got %v", cfg.FindRetryInterval)
	}
	if cfg.ModalSafetyTimeout != 10*time.Second {
		t.Errorf("Expected safety timeout corrected to 10s, got %v", cfg.ModalSafetyTimeout)
	}
	if cfg.SuccessAutoClose != 3*time.Second {
		t.Errorf("Expected success auto-close corrected to 3s, got %v", cfg.SuccessAutoClose)
	}
	if cfg.BridgeQueueSize != 16 {
		t.Errorf("Expected bridge queue size corrected to 16, got %d", cfg.BridgeQueueSize)
	}
	if cfg.DefaultTipAmount != 0.5 {
		t.Errorf("Expected tip amount corrected to 0.5, got %v", cfg.DefaultTipAmount)
	}
	if cfg.DiagPort != 8787 {
		t.Errorf("Expected diag port corrected to 8787, got %d", cfg.DiagPort)
	}
	if cfg.BrowserPath != "" {
		t.Errorf("Expected traversal BrowserPath cleared, got %q", cfg.BrowserPath)
	}
	if cfg.APIBase != "http://api.local/api" {
		t.Errorf("Expected trailing slash trimmed from APIBase, got %q", cfg.APIBase)
	}
}

func TestValidateCapsQueueSize(t *testing.T) {
	cfg := Load()
	cfg.BridgeQueueSize = 10000
	cfg.Validate()
	if cfg.BridgeQueueSize != maxBridgeQueueSize {
		t.Errorf("Expected queue size capped to %d, got %d", maxBridgeQueueSize, cfg.BridgeQueueSize)
	}
}
