package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PATIENT_API_BASE", "")
	t.Setenv("PATIENT_PAYMENT_DELAY_MS", "")
	t.Setenv("PATIENT_RESEND_COOLDOWN_SECONDS", "")
	t.Setenv("PATIENT_SESSION_BACKEND", "")
	t.Setenv("PATIENT_SESSION_DIR", "/tmp/qms-test")

	cfg := Load()
	if cfg.APIBase != "http://localhost:8090" {
		t.Fatalf("unexpected api base: %s", cfg.APIBase)
	}
	if cfg.PaymentDelay != 1500*time.Millisecond {
		t.Fatalf("unexpected payment delay: %v", cfg.PaymentDelay)
	}
	if cfg.ResendCooldown != time.Minute {
		t.Fatalf("unexpected cooldown: %v", cfg.ResendCooldown)
	}
	if cfg.SessionBackend != "file" || cfg.SessionDir != "/tmp/qms-test" {
		t.Fatalf("unexpected session settings: %s %s", cfg.SessionBackend, cfg.SessionDir)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PATIENT_API_BASE", "https://hospital.example.com")
	t.Setenv("PATIENT_PAYMENT_DELAY_MS", "0")
	t.Setenv("PATIENT_HTTP_TIMEOUT_SECONDS", "not-a-number")
	t.Setenv("SANDBOX_RATE_LIMIT_BURST", "7")

	cfg := Load()
	if cfg.APIBase != "https://hospital.example.com" {
		t.Fatalf("unexpected api base: %s", cfg.APIBase)
	}
	if cfg.PaymentDelay != 0 {
		t.Fatalf("expected zero delay, got %v", cfg.PaymentDelay)
	}
	if cfg.HTTPTimeout != 15*time.Second {
		t.Fatalf("expected fallback timeout, got %v", cfg.HTTPTimeout)
	}
	if cfg.RateLimitBurst != 7 {
		t.Fatalf("expected burst 7, got %d", cfg.RateLimitBurst)
	}
}
