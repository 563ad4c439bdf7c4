// Package params collects the module's runtime configuration: the
// bootstrap catch-up threshold, expected schema version, and SQLite
// DSN, loadable from environment variables the way the teacher's node
// config was.
package params

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/rainorder/obcore/pkg/localstore"
)

// Bootstrap configures the bootstrap/watermark state machine (C10).
type Bootstrap struct {
	// BlockThreshold is the gap beyond which Run forces a full reset
	// instead of leaving catch-up to the caller. Overridable in tests
	// so threshold-boundary behavior doesn't require real block ranges.
	BlockThreshold uint64
	SchemaVersion  int
}

// Store configures the localstore SQLite pools.
type Store struct {
	DSN string
}

type Config struct {
	Bootstrap Bootstrap
	Store     Store
}

func Default() Config {
	return Config{
		Bootstrap: Bootstrap{
			BlockThreshold: 10_000,
			SchemaVersion:  localstore.SchemaVersion,
		},
		Store: Store{
			DSN: "file:obcore.sqlite?cache=shared",
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("OBCORE_BOOTSTRAP_BLOCK_THRESHOLD"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Bootstrap.BlockThreshold = n
		}
	}
	if v := os.Getenv("OBCORE_SCHEMA_VERSION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Bootstrap.SchemaVersion = n
		}
	}
	if v := os.Getenv("OBCORE_SQLITE_DSN"); v != "" {
		cfg.Store.DSN = v
	}

	return cfg
}
