// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

// Package logging builds the slog logger shared by every hero-scout command.
// When a log directory is configured each run also gets its own log file.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/confighub/hero-scout/internal/config"
)

// Logger is a slog.Logger that may own a per-run log file.
type Logger struct {
	*slog.Logger
	file      *os.File
	startTime time.Time
	command   string
}

// ParseLevel maps a config level name to a slog level. Unknown names read as info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewHandler returns a text or JSON handler writing to w.
func NewHandler(w io.Writer, level, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Open builds the logger for command. Records go to out and, when cfg.Dir is set, to
// <dir>/<command>-<timestamp>.log as well.
func Open(cfg config.LogConfig, command string, out io.Writer) (*Logger, error) {
	l := &Logger{startTime: time.Now(), command: command}
	if cfg.Dir == "" {
		l.Logger = slog.New(NewHandler(out, cfg.Level, cfg.Format))
		return l, nil
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	timestamp := l.startTime.Format("2006-01-02-150405")
	logPath := filepath.Join(cfg.Dir, fmt.Sprintf("%s-%s.log", command, timestamp))
	file, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("create log file: %w", err)
	}
	l.file = file
	l.writeHeader()
	l.Logger = slog.New(NewHandler(io.MultiWriter(out, file), cfg.Level, cfg.Format))
	return l, nil
}

func (l *Logger) writeHeader() {
	rule := strings.Repeat("=", 80) + "\n"
	fmt.Fprint(l.file, rule)
	fmt.Fprintf(l.file, "hero-scout: %s\n", l.command)
	fmt.Fprintf(l.file, "Started: %s\n", l.startTime.Format(time.RFC3339))
	fmt.Fprint(l.file, rule+"\n")
}

// Path returns the log file path, or "" when logging only to the stream.
func (l *Logger) Path() string {
	if l == nil || l.file == nil {
		return ""
	}
	return l.file.Name()
}

// Close writes the footer, closes the file and returns its path.
func (l *Logger) Close() string {
	if l == nil || l.file == nil {
		return ""
	}

	fmt.Fprintf(l.file, "\n\nCompleted: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(l.file, "Duration: %s\n", time.Since(l.startTime).Round(time.Millisecond))

	path := l.file.Name()
	l.file.Close()
	l.file = nil
	return path
}
