package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_defaults(t *testing.T) {
	os.Clearenv()
	c := Load()
	if c.Addr != ":8080" {
		t.Errorf("Addr = %q", c.Addr)
	}
	if c.StoreKind != "file" || c.DataDir != "./data" {
		t.Errorf("store: kind=%q dir=%q", c.StoreKind, c.DataDir)
	}
	if c.Timeout != 20*time.Second {
		t.Errorf("Timeout = %v", c.Timeout)
	}
	if c.Retries != 2 || c.RetryBackoff != 500*time.Millisecond {
		t.Errorf("retry policy: %d / %v", c.Retries, c.RetryBackoff)
	}
	if c.SessionMaxAge != 24*time.Hour || c.ProfileMaxAge != 30*time.Minute {
		t.Errorf("ages: session=%v profile=%v", c.SessionMaxAge, c.ProfileMaxAge)
	}
	if c.RegenHits != 5 || c.RegenWindow != time.Minute {
		t.Errorf("regen: hits=%d window=%v", c.RegenHits, c.RegenWindow)
	}
}

func TestLoad_overrides(t *testing.T) {
	os.Clearenv()
	os.Setenv("STALKER_TUNER_PORTAL_URL", " http://portal.test/stalker_portal/ ")
	os.Setenv("STALKER_TUNER_BASE_URL", "http://192.168.1.10:8080/")
	os.Setenv("STALKER_TUNER_STORE", "SQLite3")
	os.Setenv("STALKER_TUNER_REGEN_HITS", "3")
	os.Setenv("STALKER_TUNER_REGEN_WINDOW", "30s")
	os.Setenv("STALKER_TUNER_RATE_LIMIT", "2.5")
	os.Setenv("STALKER_TUNER_TRUSTED_PROXIES", " 10.0.0.0/8, ,127.0.0.1 ")
	c := Load()
	if c.PortalBase() != "http://portal.test/stalker_portal" {
		t.Errorf("PortalBase() = %q", c.PortalBase())
	}
	if c.BaseURL != "http://192.168.1.10:8080" {
		t.Errorf("BaseURL = %q", c.BaseURL)
	}
	if c.StoreKind != "sqlite" {
		t.Errorf("StoreKind = %q", c.StoreKind)
	}
	if c.RegenHits != 3 || c.RegenWindow != 30*time.Second {
		t.Errorf("regen: hits=%d window=%v", c.RegenHits, c.RegenWindow)
	}
	if c.RateLimit != 2.5 {
		t.Errorf("RateLimit = %v", c.RateLimit)
	}
	if len(c.TrustedProxies) != 2 || c.TrustedProxies[0] != "10.0.0.0/8" || c.TrustedProxies[1] != "127.0.0.1" {
		t.Errorf("TrustedProxies = %q", c.TrustedProxies)
	}
}

func TestLoad_invalidFallsBack(t *testing.T) {
	os.Clearenv()
	os.Setenv("STALKER_TUNER_STORE", "etcd")
	os.Setenv("STALKER_TUNER_REGEN_HITS", "0")
	os.Setenv("STALKER_TUNER_TIMEOUT", "soon")
	os.Setenv("STALKER_TUNER_RETRIES", "-3")
	c := Load()
	if c.StoreKind != "file" {
		t.Errorf("unknown store kind should fall back to file; got %q", c.StoreKind)
	}
	if c.RegenHits != 5 {
		t.Errorf("RegenHits = %d, want 5", c.RegenHits)
	}
	if c.Timeout != 20*time.Second {
		t.Errorf("Timeout = %v", c.Timeout)
	}
	if c.Retries != 0 {
		t.Errorf("Retries = %d, want 0", c.Retries)
	}
}

func TestPortalBase_rejectsNonHTTP(t *testing.T) {
	for _, raw := range []string{"", "portal.test", "file:///etc/passwd", "ftp://portal.test/"} {
		c := &Config{PortalURL: raw}
		if got := c.PortalBase(); got != "" {
			t.Errorf("PortalBase(%q) = %q, want empty", raw, got)
		}
	}
}
