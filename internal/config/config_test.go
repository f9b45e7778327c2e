package config

import "testing"

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATA_BUCKET", "TILE_BUCKET", "CDN_DISTRIBUTION", "SECRET_REF",
		"LOG_LEVEL", "TILER_BINARY", "TILER_EXTRA_ARGS", "TILEDB_CONFIG_URI",
		"CONCURRENCY_CAP",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadRequiresDataBucket(t *testing.T) {
	clearEnv(t)
	t.Setenv("TILE_BUCKET", "tiles://x")
	t.Setenv("TILER_BINARY", "/bin/tiler")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error when DATA_BUCKET is unset")
	}
}

func TestLoadDefaultsAndParsing(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATA_BUCKET", "s3://activities")
	t.Setenv("TILE_BUCKET", "s3://tiles")
	t.Setenv("TILER_BINARY", "/usr/local/bin/tiler")
	t.Setenv("TILER_EXTRA_ARGS", "--simplify 2  --quiet")
	t.Setenv("CONCURRENCY_CAP", "8")

	c, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.LogLevel != "info" {
		t.Fatalf("expected default log level info, got %q", c.LogLevel)
	}
	if c.ConcurrencyCap != 8 {
		t.Fatalf("expected concurrency cap 8, got %d", c.ConcurrencyCap)
	}
	if len(c.TilerExtraArgs) != 3 || c.TilerExtraArgs[0] != "--simplify" {
		t.Fatalf("unexpected extra args split: %v", c.TilerExtraArgs)
	}
}

func TestLoadRejectsNonIntegerConcurrencyCap(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATA_BUCKET", "s3://activities")
	t.Setenv("TILE_BUCKET", "s3://tiles")
	t.Setenv("TILER_BINARY", "/bin/tiler")
	t.Setenv("CONCURRENCY_CAP", "not-a-number")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for non-integer CONCURRENCY_CAP")
	}
}
