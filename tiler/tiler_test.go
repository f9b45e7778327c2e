package tiler

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ridelines/drivetrain"
)

func writeFakeBinary(t *testing.T, script string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-tiler.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write fake binary: %v", err)
	}
	return path
}

func TestBuildSucceeds(t *testing.T) {
	bin := writeFakeBinary(t, "exit 0\n")
	d := New(bin, nil)

	err := d.Build(context.Background(), "archive.zst", "out.tiles")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBuildSurfacesNonZeroExit(t *testing.T) {
	bin := writeFakeBinary(t, "echo 'boom: bad archive' 1>&2\nexit 2\n")
	d := New(bin, nil)

	err := d.Build(context.Background(), "archive.zst", "out.tiles")
	if err == nil {
		t.Fatalf("expected error for non-zero exit")
	}

	var tilerErr *drivetrain.TilerError
	if te, ok := err.(*drivetrain.TilerError); ok {
		tilerErr = te
	} else {
		t.Fatalf("expected *drivetrain.TilerError, got %T", err)
	}
	if tilerErr.ExitCode != 2 {
		t.Fatalf("expected exit code 2, got %d", tilerErr.ExitCode)
	}
	if tilerErr.Trailer == "" {
		t.Fatalf("expected trailer to capture stderr")
	}
}
