package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Setenv("DB_PASSWORD", "test")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	tests := []struct {
		name     string
		actual   interface{}
		expected interface{}
	}{
		{"Lockout.Enabled", cfg.Lockout.Enabled, true},
		{"Lockout.MaxFailedAttempts", cfg.Lockout.MaxFailedAttempts, 5},
		{"Lockout.Window", cfg.Lockout.Window, 15 * time.Minute},
		{"Lockout.Duration", cfg.Lockout.Duration, 15 * time.Minute},
		{"RateLimit.EmailMax", cfg.RateLimit.EmailMax, 3},
		{"RateLimit.IPMax", cfg.RateLimit.IPMax, 5},
		{"RateLimit.Window", cfg.RateLimit.Window, time.Hour},
		{"RateLimit.Backend", cfg.RateLimit.Backend, "postgres"},
		{"Reset.TTL", cfg.Reset.TTL, 60 * time.Minute},
		{"Device.InactivityDays", cfg.Device.InactivityDays, 90},
		{"Risk.ResolverTimeout", cfg.Risk.ResolverTimeout, 3 * time.Second},
		{"Risk.UnusualHourStart", cfg.Risk.UnusualHourStart, 2},
		{"Risk.UnusualHourEnd", cfg.Risk.UnusualHourEnd, 6},
		{"Audit.RuleCap", cfg.Audit.RuleCap, 100},
		{"Audit.TotalCap", cfg.Audit.TotalCap, 500},
		{"Cleanup.Interval", cfg.Cleanup.Interval, time.Hour},
		{"Timing.Base", cfg.Timing.Base, 250 * time.Millisecond},
	}

	for _, tt := range tests {
		if tt.actual != tt.expected {
			t.Errorf("%s: got %v, want %v", tt.name, tt.actual, tt.expected)
		}
	}
}

func TestLoad_CustomSecurityOptions(t *testing.T) {
	os.Setenv("DB_PASSWORD", "test")
	os.Setenv("LOCKOUT_ENABLED", "false")
	os.Setenv("LOCKOUT_MAX_FAILED_ATTEMPTS", "10")
	os.Setenv("LOCKOUT_WINDOW", "30m")
	os.Setenv("RESET_RATE_LIMIT_EMAIL_MAX", "2")
	os.Setenv("RATE_LIMIT_BACKEND", "Redis")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.Lockout.Enabled {
		t.Error("Lockout.Enabled: got true, want false")
	}
	if cfg.Lockout.MaxFailedAttempts != 10 {
		t.Errorf("Lockout.MaxFailedAttempts: got %d, want 10", cfg.Lockout.MaxFailedAttempts)
	}
	if cfg.Lockout.Window != 30*time.Minute {
		t.Errorf("Lockout.Window: got %v, want 30m", cfg.Lockout.Window)
	}
	if cfg.RateLimit.EmailMax != 2 {
		t.Errorf("RateLimit.EmailMax: got %d, want 2", cfg.RateLimit.EmailMax)
	}
	if cfg.RateLimit.Backend != "redis" {
		t.Errorf("RateLimit.Backend: got %q, want redis", cfg.RateLimit.Backend)
	}
}

func TestLoad_InvalidValuesFallBackToDefaults(t *testing.T) {
	os.Setenv("DB_PASSWORD", "test")
	os.Setenv("LOCKOUT_WINDOW", "not-a-duration")
	os.Setenv("LOCKOUT_MAX_FAILED_ATTEMPTS", "five")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.Lockout.Window != 15*time.Minute {
		t.Errorf("Lockout.Window: got %v, want 15m", cfg.Lockout.Window)
	}
	if cfg.Lockout.MaxFailedAttempts != 5 {
		t.Errorf("Lockout.MaxFailedAttempts: got %d, want 5", cfg.Lockout.MaxFailedAttempts)
	}
}

func TestLoad_MissingDatabasePassword(t *testing.T) {
	defer os.Clearenv()

	if _, err := Load(); err == nil {
		t.Fatal("Load() = nil, want error for missing DB_PASSWORD")
	}
}

func TestLoad_RejectsOutOfRangeValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"zero max attempts", "LOCKOUT_MAX_FAILED_ATTEMPTS", "0"},
		{"unknown backend", "RATE_LIMIT_BACKEND", "memcached"},
		{"hour out of range", "RISK_UNUSUAL_HOUR_START", "30"},
		{"inverted hour band", "RISK_UNUSUAL_HOUR_START", "7"},
		{"unknown env", "ENV", "qa"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Setenv("DB_PASSWORD", "test")
			os.Setenv(tt.key, tt.value)
			defer os.Clearenv()

			if _, err := Load(); err == nil {
				t.Errorf("Load() with %s=%s = nil, want error", tt.key, tt.value)
			}
		})
	}
}

func TestLoad_ProductionRequiresAdminKey(t *testing.T) {
	os.Setenv("DB_PASSWORD", "test")
	os.Setenv("ENV", "production")
	os.Setenv("ADMIN_API_KEY", "short")
	defer os.Clearenv()

	if _, err := Load(); err == nil {
		t.Fatal("Load() = nil, want error for weak admin key in production")
	}
}

func TestServerConfig_Timeouts_ZeroValues(t *testing.T) {
	os.Setenv("DB_PASSWORD", "test")
	os.Setenv("SERVER_READ_TIMEOUT", "0s")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	// Explicitly setting 0s should be honored (no timeout)
	if cfg.Server.ReadTimeout != 0 {
		t.Errorf("ReadTimeout with 0s: got %v, want 0", cfg.Server.ReadTimeout)
	}
}

func TestParseList(t *testing.T) {
	got := parseList(" 10.0.0.0/8, ,192.168.0.0/16 ")
	if len(got) != 2 || got[0] != "10.0.0.0/8" || got[1] != "192.168.0.0/16" {
		t.Errorf("parseList: got %v", got)
	}
}
