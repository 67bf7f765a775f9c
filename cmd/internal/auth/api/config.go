package authapi

import (
	"net/http"
	"os"
	"strconv"
	"strings"
)

// Config controls auth API behavior and cookie transport defaults.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	RefreshCookieName string
	CookiePath        string
	CookieDomain      string
	CookieSecure      bool
	CookieSameSite    http.SameSite
}

// LoadConfigFromEnv loads auth API config from environment variables with
// safe defaults. CookieSecure should only be disabled for local development.
func LoadConfigFromEnv() Config {
	cfg := Config{
		TrustProxy:        envBool("INKWELL_AUTH_TRUST_PROXY", false),
		MaxBodyBytes:      envInt64("INKWELL_AUTH_MAX_BODY_BYTES", 1<<20), // 1 MiB
		RefreshCookieName: envString("INKWELL_AUTH_REFRESH_COOKIE", "inkwell_refresh"),
		CookiePath:        "/",
		CookieDomain:      envString("INKWELL_AUTH_COOKIE_DOMAIN", ""),
		CookieSecure:      envBool("INKWELL_AUTH_COOKIE_SECURE", true),
		CookieSameSite:    sameSiteFromEnv("INKWELL_AUTH_COOKIE_SAMESITE", http.SameSiteLaxMode),
	}

	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	return cfg
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func sameSiteFromEnv(key string, def http.SameSite) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "strict":
		return http.SameSiteStrictMode
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return def
	}
}
