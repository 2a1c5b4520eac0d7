// Package settings exposes process-wide configuration sourced from the
// environment. Commands layer kong flags on top of these for anything
// operator-facing; libraries read through Get so that absent or malformed
// values always fall back to a sane default.
package settings

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// Get reads an environment variable and converts it to T. Absence or a
// conversion failure returns the default; failures are logged once at the
// call site's level of interest, never fatal.
func Get[T string | int | bool | time.Duration](name string, def T) T {
	raw, ok := os.LookupEnv(name)
	if !ok || raw == "" {
		return def
	}

	var out any
	var err error
	switch any(def).(type) {
	case string:
		out = raw
	case int:
		out, err = strconv.Atoi(raw)
	case bool:
		out, err = strconv.ParseBool(raw)
	case time.Duration:
		out, err = time.ParseDuration(raw)
	}
	if err != nil {
		log.Warn().Str("setting", name).Str("value", raw).Err(err).Msg("Invalid setting value, using default")
		return def
	}
	return out.(T)
}

// Settings carries every tunable the core reads. Load resolves it once at
// process start; handlers receive it by value and never re-read the
// environment mid-request.
type Settings struct {
	StorageRoot string

	ObjectStoreEndpoint  string
	ObjectStoreRegion    string
	ObjectStoreBucket    string
	ObjectStoreAccessKey string
	ObjectStoreSecretKey string

	RedisAddr     string
	RedisPassword string

	DatabaseURL string

	UIBaseURL string

	DefaultRunnerImage       string
	DefaultRunnerCredentials string
	DefaultTimezone          string

	SMTPServer string
	SMTPFrom   string
	SMTPPass   string

	// Grace window before hard removal of soft-deleted objects.
	RemovalGrace time.Duration
	// TTL on the per-run log flush lock.
	LogFlushLockTTL time.Duration
	// Grace before a missed schedule fire raises SCHEDULE_MISSED.
	ScheduleMissGrace time.Duration

	// Upper bound on one bulk invitation resend request.
	MaxInvitationResend int

	// Secret for signing invitation tokens.
	TokenSigningSecret string
}

// Load resolves all settings from the environment.
func Load() Settings {
	return Settings{
		StorageRoot: Get("ASKANNA_STORAGE_ROOT", "/var/lib/askanna/storage"),

		ObjectStoreEndpoint:  Get("ASKANNA_OBJECTSTORE_ENDPOINT", ""),
		ObjectStoreRegion:    Get("ASKANNA_OBJECTSTORE_REGION", "us-east-1"),
		ObjectStoreBucket:    Get("ASKANNA_OBJECTSTORE_BUCKET", "askanna"),
		ObjectStoreAccessKey: Get("ASKANNA_OBJECTSTORE_ACCESS_KEY", ""),
		ObjectStoreSecretKey: Get("ASKANNA_OBJECTSTORE_SECRET_KEY", ""),

		RedisAddr:     Get("ASKANNA_REDIS_ADDR", "localhost:6379"),
		RedisPassword: Get("ASKANNA_REDIS_PASSWORD", ""),

		DatabaseURL: Get("ASKANNA_DATABASE_URL", "postgres://localhost:5432/askanna"),

		UIBaseURL: Get("ASKANNA_UI_BASE_URL", "https://askanna.eu"),

		DefaultRunnerImage:       Get("ASKANNA_RUNNER_IMAGE", "askanna/runner:latest"),
		DefaultRunnerCredentials: Get("ASKANNA_RUNNER_CREDENTIALS", ""),
		DefaultTimezone:          Get("ASKANNA_DEFAULT_TIMEZONE", "UTC"),

		SMTPServer: Get("ASKANNA_SMTP_SERVER", "localhost:587"),
		SMTPFrom:   Get("ASKANNA_SMTP_FROM", "robot@askanna.io"),
		SMTPPass:   Get("ASKANNA_SMTP_PASSWORD", ""),

		RemovalGrace:      Get("ASKANNA_REMOVAL_GRACE", 720*time.Hour),
		LogFlushLockTTL:   Get("ASKANNA_LOG_FLUSH_LOCK_TTL", 10*time.Second),
		ScheduleMissGrace: Get("ASKANNA_SCHEDULE_MISS_GRACE", time.Duration(0)),

		MaxInvitationResend: Get("ASKANNA_MAX_INVITATION_RESEND", 10),

		TokenSigningSecret: Get("ASKANNA_TOKEN_SIGNING_SECRET", ""),
	}
}
