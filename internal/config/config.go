// Package config loads drivetrain's environment-variable configuration,
// bootstrapping a local .env file the way the teacher's cmd/main.go reads
// its TileDB config path before anything else runs.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds every environment-variable setting spec.md section 6 names.
type Config struct {
	DataBucket      string
	TileBucket      string
	CDNDistribution string
	SecretRef       string
	LogLevel        string
	TilerBinary     string
	TilerExtraArgs  []string
	TileDBConfigURI string
	ConcurrencyCap  int
}

const defaultConcurrencyCap = 5

// Load reads .env (if present; its absence is not an error, mirroring
// godotenv's own documented behavior) and then the process environment,
// returning a populated Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: .env present but unreadable (continuing with process environment): %v", err)
	}

	cap := defaultConcurrencyCap
	if raw := os.Getenv("CONCURRENCY_CAP"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("config: CONCURRENCY_CAP %q is not an integer: %w", raw, err)
		}
		cap = n
	}

	c := &Config{
		DataBucket:      os.Getenv("DATA_BUCKET"),
		TileBucket:      os.Getenv("TILE_BUCKET"),
		CDNDistribution: os.Getenv("CDN_DISTRIBUTION"),
		SecretRef:       os.Getenv("SECRET_REF"),
		LogLevel:        defaultString(os.Getenv("LOG_LEVEL"), "info"),
		TilerBinary:     os.Getenv("TILER_BINARY"),
		TilerExtraArgs:  splitArgs(os.Getenv("TILER_EXTRA_ARGS")),
		TileDBConfigURI: os.Getenv("TILEDB_CONFIG_URI"),
		ConcurrencyCap:  cap,
	}

	if c.DataBucket == "" {
		return nil, fmt.Errorf("config: DATA_BUCKET is required")
	}
	if c.TileBucket == "" {
		return nil, fmt.Errorf("config: TILE_BUCKET is required")
	}
	if c.TilerBinary == "" {
		return nil, fmt.Errorf("config: TILER_BINARY is required")
	}

	return c, nil
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func splitArgs(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return strings.Fields(raw)
}

// SecretResolver retrieves a credential from an external secret store given
// the SecretRef configured above. drivetrain treats the store as an
// external collaborator (spec.md sections 1 and 6); production wiring
// supplies a concrete implementation backed by whatever vault the deploying
// environment uses, which is why only the interface lives in this module.
type SecretResolver interface {
	Resolve(ref string) (string, error)
}
