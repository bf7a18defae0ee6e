package config

import (
	"testing"
	"time"

	"course-admin-service/internal/lockout"
)

func validConfig() *Config {
	return &Config{
		Environment: "development",
		Auth: AuthConfig{
			JWTSecret:        "unit-test-secret",
			Issuer:           "course-admin-service",
			TokenLifetime:    24 * time.Hour,
			RefreshThreshold: time.Hour,
			BcryptCost:       12,
			MaxLoginAttempts: 5,
			LockDuration:     time.Hour,
		},
	}
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate error: %v", err)
	}
}

func TestValidateRejectsMissingSecret(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.JWTSecret = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty JWT secret")
	}
}

func TestValidateRejectsBadThreshold(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.RefreshThreshold = cfg.Auth.TokenLifetime
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for threshold >= lifetime")
	}

	cfg = validConfig()
	cfg.Auth.RefreshThreshold = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero threshold")
	}
}

func TestValidateRejectsKMSWithoutKey(t *testing.T) {
	cfg := validConfig()
	cfg.KMS.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for KMS without key id")
	}
}

func TestLoadConfigRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected LoadConfig to fail without JWT_SECRET")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "unit-test-secret")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Auth.TokenLifetime != 24*time.Hour {
		t.Fatalf("TokenLifetime = %v, want 24h", cfg.Auth.TokenLifetime)
	}
	if cfg.Auth.RefreshThreshold != time.Hour {
		t.Fatalf("RefreshThreshold = %v, want 1h", cfg.Auth.RefreshThreshold)
	}
	if cfg.Auth.MaxLoginAttempts != 5 {
		t.Fatalf("MaxLoginAttempts = %d, want 5", cfg.Auth.MaxLoginAttempts)
	}
}

func TestLockoutPolicyFromConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.MaxLoginAttempts = 3
	cfg.Auth.LockDuration = 30 * time.Minute

	policy := cfg.LockoutPolicy()
	if policy.MaxAttempts != 3 || policy.LockDuration != 30*time.Minute {
		t.Fatalf("policy = %+v", policy)
	}

	// Zero values fall back to the defaults.
	cfg.Auth.MaxLoginAttempts = 0
	cfg.Auth.LockDuration = 0
	policy = cfg.LockoutPolicy()
	if policy != lockout.DefaultPolicy {
		t.Fatalf("policy = %+v, want default", policy)
	}
}
