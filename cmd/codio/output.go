package main

import (
	"fmt"
	"os"
)

// ANSI codes for the marker helpers below. All human-facing chrome goes to
// stderr so stdout stays clean for piped command output.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

// printMarked renders a colored marker-prefixed line, the shared shape of
// the success/error/warning/step helpers.
func printMarked(color, marker, format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(color, marker+" "+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) {
	printMarked(colorGreen, "✓", format, args...)
}

func printError(format string, args ...any) {
	printMarked(colorRed, "✗", format, args...)
}

func printWarning(format string, args ...any) {
	printMarked(colorYellow, "⚠", format, args...)
}

func printStep(format string, args ...any) {
	printMarked(colorCyan, "→", format, args...)
}

// printStatus renders an indented "label: value" detail line under a marker
// line, with the label bolded.
func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s %s\n",
		colorize(colorBold, label+":"), fmt.Sprintf(format, args...))
}
