// Package tiler implements TilerDriver (spec.md section 4.6): invoking the
// external vector-tile builder binary over the finalized feature archive.
package tiler

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/ridelines/drivetrain"
)

// layerName is the single named output layer every invocation configures,
// fixed per spec.md section 4.6.
const layerName = "activities"

// trailerLines bounds how many trailing stderr lines TilerError attaches.
const trailerLines = 20

// Driver invokes the external tiler binary and captures its output.
type Driver struct {
	BinaryPath string
	ExtraArgs  []string
}

// New constructs a Driver. extraArgs is the tiler_extra_args passthrough
// configuration option from spec.md section 6.
func New(binaryPath string, extraArgs []string) *Driver {
	return &Driver{BinaryPath: binaryPath, ExtraArgs: extraArgs}
}

// Build runs the tiler over archivePath, writing the portable tile bundle
// to outputPath. It configures: preserved input order, a single named
// layer ("activities"), and a portable web-map-client-consumable output
// format — each as an "effect → option" flag on the underlying binary.
func (d *Driver) Build(ctx context.Context, archivePath, outputPath string) error {
	args := []string{
		"--preserve-input-order",
		"--layer", layerName,
		"--output", outputPath,
		archivePath,
	}
	args = append(args, d.ExtraArgs...)

	cmd := exec.CommandContext(ctx, d.BinaryPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}

	exitCode := -1
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	}

	return &drivetrain.TilerError{
		ExitCode: exitCode,
		Trailer:  lastLines(stderr.String(), trailerLines),
	}
}

// lastLines returns at most n trailing lines of s, after trimming trailing
// newlines; blank lines before the end are kept and counted.
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
