package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const ansiReset = "\x1b[0m"

var statusKindLabels = map[statusKind]string{
	statusInfo:  "INFO",
	statusOK:    "OK",
	statusWarn:  "WARN",
	statusError: "ERROR",
}

var statusKindColors = map[statusKind]string{
	statusInfo:  "\x1b[34m",
	statusOK:    "\x1b[32m",
	statusWarn:  "\x1b[33m",
	statusError: "\x1b[31m",
}

// statusLine pairs a label with a classified message for aligned rendering.
type statusLine struct {
	label   string
	kind    statusKind
	message string
}

// writeStatusLines renders a block of status lines with labels padded to the
// widest label in the block.
func writeStatusLines(w io.Writer, lines []statusLine, colorize bool) {
	width := 0
	for _, line := range lines {
		if n := len(line.label) + 1; n > width {
			width = n
		}
	}
	for _, line := range lines {
		text := fmt.Sprintf("[%s]", statusKindLabels[line.kind])
		if line.message != "" {
			text += " " + line.message
		}
		rendered := fmt.Sprintf("  %-*s %s", width, line.label+":", text)
		if colorize {
			rendered = statusKindColors[line.kind] + rendered + ansiReset
		}
		fmt.Fprintln(w, rendered)
	}
}

// writeSectionHeader prints a titled section divider.
func writeSectionHeader(w io.Writer, title string, colorize bool) {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = statusKindColors[statusInfo] + line + ansiReset
		rule = statusKindColors[statusInfo] + rule + ansiReset
	}
	fmt.Fprintln(w, line)
	fmt.Fprintln(w, rule)
}

// sessionStateKind classifies a session state for display: ready is healthy,
// error is a fault, everything in between is transitional.
func sessionStateKind(state string) statusKind {
	switch state {
	case "ready":
		return statusOK
	case "error":
		return statusError
	default:
		return statusInfo
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
