package flags

import "github.com/KiloProjects/arena/internal/config"

var (
	ListenHost = config.GenFlag[string]("server.listen.host", "localhost", "Host to listen to")
	ListenPort = config.GenFlag[int]("server.listen.port", 8070, "Port to listen on")

	AllowedOrigins = config.GenFlag("server.cors.allowed_origins", []string{"*"}, "Origins allowed to call the API from a browser")
)

// DB
var (
	MigrateOnStart = config.GenFlag("behavior.db.run_migrations", true, "Run PostgreSQL migrations on platform start")
	MaxDBConns     = config.GenFlag[int32]("behavior.db.max_conns", 20, "Maximum number of pooled PostgreSQL connections")
)

// sessions
var (
	SessionLifetimeDays = config.GenFlag("behavior.sessions.lifetime_days", 30, "Number of days a login session stays valid")
	LoginRateLimit      = config.GenFlag("feature.login.rate_limit", 10, "Maximum login attempts per IP address per minute")
)

// testing
var (
	StreamDebounceMs      = config.GenFlag("feature.testing.stream_debounce_ms", 100, "Milliseconds to coalesce streamed test results before sending them")
	StreamConnectWaitSecs = config.GenFlag("feature.testing.stream_connect_wait_secs", 5, "Seconds to wait for a socket before dropping streamed test results")
)
