package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

const (
	ansiReset = "\x1b[0m"
	ansiRed   = "\x1b[31m"
	ansiGreen = "\x1b[32m"
	ansiYell  = "\x1b[33m"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// isTerminal reports whether w is an interactive terminal. Buffers used by
// tests and pipes are not.
func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func shouldColorize(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isTerminal(w)
}

// colorPhase wraps a run phase in the color matching its outcome.
func colorPhase(w io.Writer, phase string) string {
	if !shouldColorize(w) {
		return phase
	}
	switch phase {
	case "completed":
		return ansiGreen + phase + ansiReset
	case "failed":
		return ansiRed + phase + ansiReset
	case "running", "paused", "stopped":
		return ansiYell + phase + ansiReset
	default:
		return phase
	}
}
