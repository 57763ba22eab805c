package tui

import (
	"os"

	"golang.org/x/term"
)

// OutputMode represents the output mode.
type OutputMode int

const (
	// ModePlain prints human readable progress.
	ModePlain OutputMode = iota

	// ModeJSON prints one JSON object per progress event.
	ModeJSON

	// ModeQuiet prints only the final result.
	ModeQuiet
)

// String returns the string representation of the output mode.
func (m OutputMode) String() string {
	switch m {
	case ModePlain:
		return "plain"
	case ModeJSON:
		return "json"
	case ModeQuiet:
		return "quiet"
	default:
		return "unknown"
	}
}

// ParseOutputMode parses an output mode from string.
func ParseOutputMode(s string) OutputMode {
	switch s {
	case "json":
		return ModeJSON
	case "quiet":
		return ModeQuiet
	default:
		return ModePlain
	}
}

// Detector determines the output mode and whether to use color.
type Detector struct {
	forceMode *OutputMode
	noColor   bool
	fd        int
}

// NewDetector creates a detector for the given file descriptor.
func NewDetector(fd int) *Detector {
	return &Detector{fd: fd}
}

// ForceMode forces a specific output mode.
func (d *Detector) ForceMode(mode OutputMode) *Detector {
	d.forceMode = &mode
	return d
}

// NoColor disables color output.
func (d *Detector) NoColor(disable bool) *Detector {
	d.noColor = disable
	return d
}

// Detect determines the output mode.
func (d *Detector) Detect() OutputMode {
	if d.forceMode != nil {
		return *d.forceMode
	}
	if os.Getenv("SITEGEN_OUTPUT") == "json" {
		return ModeJSON
	}
	if os.Getenv("SITEGEN_QUIET") == "1" {
		return ModeQuiet
	}
	return ModePlain
}

// ShouldUseColor determines if color should be used.
func (d *Detector) ShouldUseColor() bool {
	if d.noColor {
		return false
	}
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return false
	}
	if os.Getenv("CI") != "" {
		return false
	}
	return term.IsTerminal(d.fd)
}
