package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/snapetech/stalkertuner/internal/safeurl"
)

// Config holds portal, device, persistence and server settings.
// Load from env; call LoadEnvFile(".env") and/or LoadYAMLFile first to seed the environment.
type Config struct {
	// Portal + virtual device
	PortalURL string // e.g. http://portal.example/stalker_portal
	MAC       string // device MAC sent to the portal (e.g. 00:1A:79:12:34:56)

	// Server
	Addr    string // listen address
	BaseURL string // public base for playlist links; empty = derive from request Host

	TrustedProxies []string // IPs/CIDRs whose X-Forwarded-* headers are honoured

	// Persistence
	StoreKind   string // "file" | "sqlite" | "redis"
	DataDir     string // file store directory
	SQLitePath  string
	RedisAddr   string
	RedisDB     int
	RedisPrefix string

	// Portal calls
	Timeout      time.Duration // per-request timeout (15–20s is typical for portals)
	Retries      int           // transport-failure retries for genre/channel discovery
	RetryBackoff time.Duration
	RateLimit    float64 // portal requests per second; 0 = unlimited

	// Session lifecycle
	SessionMaxAge time.Duration
	ProfileMaxAge time.Duration

	// Playlist regeneration: RegenHits fetches inside RegenWindow force a rebuild.
	RegenHits   int
	RegenWindow time.Duration

	LogLevel  string
	LogFormat string // "text" | "json"
}

// Load reads config from environment.
func Load() *Config {
	c := &Config{
		PortalURL:      strings.TrimSpace(os.Getenv("STALKER_TUNER_PORTAL_URL")),
		MAC:            getEnv("STALKER_TUNER_MAC", "00:1A:79:00:00:00"),
		Addr:           getEnv("STALKER_TUNER_ADDR", ":8080"),
		BaseURL:        strings.TrimSuffix(os.Getenv("STALKER_TUNER_BASE_URL"), "/"),
		TrustedProxies: getEnvList("STALKER_TUNER_TRUSTED_PROXIES"),
		StoreKind:      getEnvStoreKind("STALKER_TUNER_STORE", "file"),
		DataDir:        getEnv("STALKER_TUNER_DATA_DIR", "./data"),
		SQLitePath:     getEnv("STALKER_TUNER_SQLITE_PATH", "./stalker-tuner.db"),
		RedisAddr:      getEnv("STALKER_TUNER_REDIS_ADDR", "localhost:6379"),
		RedisDB:        getEnvInt("STALKER_TUNER_REDIS_DB", 0),
		RedisPrefix:    getEnv("STALKER_TUNER_REDIS_PREFIX", "stalker:"),
		Timeout:        getEnvDuration("STALKER_TUNER_TIMEOUT", 20*time.Second),
		Retries:        getEnvInt("STALKER_TUNER_RETRIES", 2),
		RetryBackoff:   getEnvDuration("STALKER_TUNER_RETRY_BACKOFF", 500*time.Millisecond),
		RateLimit:      getEnvFloat("STALKER_TUNER_RATE_LIMIT", 10),
		SessionMaxAge:  getEnvDuration("STALKER_TUNER_SESSION_MAX_AGE", 24*time.Hour),
		ProfileMaxAge:  getEnvDuration("STALKER_TUNER_PROFILE_MAX_AGE", 30*time.Minute),
		RegenHits:      getEnvInt("STALKER_TUNER_REGEN_HITS", 5),
		RegenWindow:    getEnvDuration("STALKER_TUNER_REGEN_WINDOW", 60*time.Second),
		LogLevel:       getEnv("STALKER_TUNER_LOG_LEVEL", "info"),
		LogFormat:      strings.ToLower(getEnv("STALKER_TUNER_LOG_FORMAT", "text")),
	}
	if c.Timeout <= 0 {
		c.Timeout = 20 * time.Second
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.RegenHits <= 0 {
		c.RegenHits = 5
	}
	if c.RegenWindow <= 0 {
		c.RegenWindow = 60 * time.Second
	}
	if c.SessionMaxAge <= 0 {
		c.SessionMaxAge = 24 * time.Hour
	}
	if c.ProfileMaxAge <= 0 {
		c.ProfileMaxAge = 30 * time.Minute
	}
	return c
}

// PortalBase returns PortalURL without trailing slash, or "" when it is not an absolute http(s) URL.
func (c *Config) PortalBase() string {
	base := strings.TrimSuffix(c.PortalURL, "/")
	if !safeurl.IsHTTPOrHTTPS(base) {
		return ""
	}
	return base
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// getEnvList splits a comma-separated value into trimmed, non-empty items.
func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, _ := strconv.Atoi(v)
		return n
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil && f >= 0 {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

// getEnvStoreKind returns "file", "sqlite" or "redis"; anything else falls back to defaultVal.
func getEnvStoreKind(key, defaultVal string) string {
	switch v := strings.TrimSpace(strings.ToLower(os.Getenv(key))); v {
	case "file", "sqlite", "redis":
		return v
	case "sqlite3", "db":
		return "sqlite"
	}
	return defaultVal
}
