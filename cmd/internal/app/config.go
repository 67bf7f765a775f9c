package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string
	LogLevel string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// If true, /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// Security policy:
	// If true, INKWELL_TOKEN_HMAC_KEY MUST be set (>= 32 bytes) and
	// rotation-id hashing must be HMAC-based.
	RequireTokenHMAC bool

	// When both are set, an admin account with these credentials is seeded at
	// startup unless the username already exists. This is the only way to get
	// the first admin; further admins are promoted through the users API.
	BootstrapAdminUsername string
	BootstrapAdminPassword string

	CORSOrigins []string
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr: EnvString("INKWELL_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel: EnvString("INKWELL_LOG_LEVEL", "info"),

		ReadHeaderTimeout: EnvDuration("INKWELL_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("INKWELL_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("INKWELL_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("INKWELL_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("INKWELL_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("INKWELL_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("INKWELL_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("INKWELL_DB_MIN_CONNS", 0),

		ReadinessRequireDB: EnvBool("INKWELL_READINESS_REQUIRE_DB", false),

		RequireTokenHMAC: EnvBool("INKWELL_REQUIRE_TOKEN_HMAC", false),

		BootstrapAdminUsername: EnvString("INKWELL_BOOTSTRAP_ADMIN_USERNAME", ""),
		BootstrapAdminPassword: EnvString("INKWELL_BOOTSTRAP_ADMIN_PASSWORD", ""),

		CORSOrigins: EnvCSV("INKWELL_CORS_ORIGINS", "http://localhost:5173"),
	}
}
