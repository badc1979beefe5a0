package config

import (
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{"HTTP_PORT", "CART_TTL", "FREE_SHIPPING_THRESHOLD", "SHIPPING_FEE", "CURRENCY"} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()
	if cfg.HTTPPort != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.HTTPPort)
	}
	if cfg.CartTTL != 30*24*time.Hour {
		t.Errorf("unexpected ttl %s", cfg.CartTTL)
	}
	if cfg.FreeShippingThreshold.StringFixed(2) != "50.00" || cfg.ShippingFee.StringFixed(2) != "4.99" {
		t.Errorf("unexpected shipping config %s / %s", cfg.FreeShippingThreshold, cfg.ShippingFee)
	}
	if cfg.Currency != "usd" {
		t.Errorf("unexpected currency %q", cfg.Currency)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("CART_TTL", "2h")
	t.Setenv("FREE_SHIPPING_THRESHOLD", "75.5")
	t.Setenv("SHIPPING_FEE", "0")
	t.Setenv("APP_ENV", "prod")

	cfg := FromEnv()
	if cfg.HTTPPort != 9090 || cfg.CartTTL != 2*time.Hour {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.FreeShippingThreshold.StringFixed(2) != "75.50" || !cfg.ShippingFee.IsZero() {
		t.Errorf("unexpected shipping config %s / %s", cfg.FreeShippingThreshold, cfg.ShippingFee)
	}
	if !cfg.IsProduction() {
		t.Error("expected production")
	}
}

func TestFromEnv_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("HTTP_PORT", "abc")
	t.Setenv("CART_TTL", "-1h")
	t.Setenv("SHIPPING_FEE", "-3")
	t.Setenv("WORKER_COUNT", "0")
	t.Setenv("QUEUE_SIZE", "-5")

	cfg := FromEnv()
	if cfg.WorkerCount != 4 || cfg.QueueSize != 1000 {
		t.Errorf("expected default worker pool, got %d workers, queue %d", cfg.WorkerCount, cfg.QueueSize)
	}
	if cfg.HTTPPort != 8080 || cfg.CartTTL != 30*24*time.Hour || cfg.ShippingFee.StringFixed(2) != "4.99" {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}
