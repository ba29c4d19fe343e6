package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/saviobatista/worldflightpedia/internal/objects"
	"github.com/saviobatista/worldflightpedia/internal/session"
	"github.com/saviobatista/worldflightpedia/internal/types"
)

// Config holds the application configuration
type Config struct {
	NATSURL     string
	RedisAddr   string
	DBConnStr   string
	MetricsAddr string

	LogLevel string
	LogDir   string

	ClientName   string
	SpawnReqBase types.RequestID
	MarkerTitle  string
	CubeTitle    string
	IndexedBatch bool

	POIUpdatePolicy    session.POIUpdatePolicy
	ConfirmationPolicy objects.ConfirmationPolicy
}

// Load loads the configuration from environment variables and .env file
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		NATSURL:     getenv("NATS_URL", "nats://nats:4222"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		DBConnStr:   os.Getenv("DB_CONN_STR"),
		MetricsAddr: os.Getenv("METRICS_ADDR"),
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogDir:      getenv("LOG_DIR", "./logs"),
		ClientName:  getenv("CLIENT_NAME", "FlightpediaConnect"),
		MarkerTitle: getenv("MARKER_OBJECT_TITLE", objects.DefaultMarkerTitle),
		CubeTitle:   getenv("CUBE_OBJECT_TITLE", objects.DefaultCubeTitle),
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid LOG_LEVEL %q", cfg.LogLevel)
	}

	base, err := strconv.ParseUint(getenv("SPAWN_REQ_BASE", "3000"), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid SPAWN_REQ_BASE: %w", err)
	}
	// The multi-spawn range must sit above every fixed request identifier
	if types.RequestID(base) <= types.RequestAddCube {
		return nil, fmt.Errorf("SPAWN_REQ_BASE must be greater than %d, got %d", types.RequestAddCube, base)
	}
	cfg.SpawnReqBase = types.RequestID(base)

	if v := os.Getenv("INDEXED_BATCH"); v != "" {
		if cfg.IndexedBatch, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("invalid INDEXED_BATCH: %w", err)
		}
	}

	if cfg.POIUpdatePolicy, err = session.ParsePOIUpdatePolicy(os.Getenv("POI_UPDATE_POLICY")); err != nil {
		return nil, err
	}
	if cfg.ConfirmationPolicy, err = objects.ParseConfirmationPolicy(os.Getenv("CONFIRMATION_POLICY")); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
