package main

import (
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

var statusCaser = cases.Title(language.Und)

// statusLabel renders a snake_case status as a readable label, for example
// "partial_failure" becomes "Partial Failure".
func statusLabel(status string) string {
	return statusCaser.String(strings.ReplaceAll(status, "_", " "))
}

func colorizeStatus(status string, colorize bool) string {
	label := statusLabel(status)
	if !colorize {
		return label
	}
	switch status {
	case "succeeded", "all_succeeded":
		return ansiGreen + label + ansiReset
	case "failed", "all_failed":
		return ansiRed + label + ansiReset
	case "skipped", "partial_failure", "cancelled":
		return ansiYellow + label + ansiReset
	default:
		return label
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
