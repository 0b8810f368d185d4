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

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const statusLabelWidth = 12

func (k statusKind) label() string {
	switch k {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	}
	return "INFO"
}

func (k statusKind) color() string {
	switch k {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	}
	return ansiBlue
}

// renderStatusLine formats one indented "Label: [KIND] message" line. Only
// the kind tag is colored so the message stays readable on odd terminals.
func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	tag := "[" + kind.label() + "]"
	if colorize {
		tag = kind.color() + tag + ansiReset
	}
	line := fmt.Sprintf("  %-*s %s", statusLabelWidth, label+":", tag)
	if message != "" {
		line += " " + message
	}
	return line
}

func renderSectionHeader(title string, colorize bool) []string {
	line := "== " + strings.TrimSpace(title) + " =="
	rule := strings.Repeat("-", len(line))
	if !colorize {
		return []string{line, rule}
	}
	return []string{ansiBlue + line + ansiReset, ansiBlue + rule + ansiReset}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
}
