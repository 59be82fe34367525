// Package debug provides category-based debug logging for ember.
//
// Two orthogonal controls:
//   - Categories (WHAT to debug): EMBER_DEBUG or logging.debug in the config
//   - Levels (HOW MUCH detail): EMBER_LOG_LEVEL or logging.level
//
// Usage:
//
//	debug.Log("wire", "request line", "line", line)
//	if debug.TraceIsEnabled("wire") { debug.Dump("wire", "body", body) }
//
// Categories: wire, routing, relay, websocket, server, config, auth, static, all.
// Levels: ERROR, WARN, INFO, DEBUG, TRACE.
package debug

import (
	"context"
	"encoding/hex"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"sync/atomic"
	"unicode/utf8"
)

// LevelTrace is below slog.LevelDebug for maximum verbosity.
// At TRACE, raw request lines, body dumps and relay backpressure are logged.
const LevelTrace = slog.LevelDebug - 4

// dumpLimit caps the bytes Dump renders.
const dumpLimit = 512

// enabled is replaced wholesale by Init, which may run again on config
// reload while connections are logging.
var enabled atomic.Pointer[map[string]bool]

func init() {
	setCategories(os.Getenv("EMBER_DEBUG"))
}

// Init configures categories and installs the default slog logger.
// EMBER_DEBUG and EMBER_LOG_LEVEL win over the config values. format is
// "text" (default) or "json".
func Init(configCategories, configLevel, format string) {
	cats := configCategories
	if env := os.Getenv("EMBER_DEBUG"); env != "" {
		cats = env
	}
	setCategories(cats)

	level := configLevel
	if env := os.Getenv("EMBER_LOG_LEVEL"); env != "" {
		level = env
	}
	slog.SetDefault(slog.New(NewHandler(os.Stderr, format, ParseLevel(level))))
}

// NewHandler builds the slog handler for the given output format.
func NewHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func setCategories(s string) {
	m := parseCategories(s)
	enabled.Store(&m)
}

// Enabled reports whether debug output is active for the given category.
func Enabled(category string) bool {
	m := *enabled.Load()
	return m["all"] || m[category]
}

// Log emits a debug message tagged with category. It is a no-op unless
// the category is enabled.
func Log(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Debug(msg, append([]any{"debug", category}, args...)...)
}

// Trace emits a trace-level message for the given category.
// Only visible when EMBER_LOG_LEVEL=TRACE.
func Trace(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Log(context.Background(), LevelTrace, msg, append([]any{"debug", category}, args...)...)
}

// TraceIsEnabled reports whether TRACE level is active for the given category.
func TraceIsEnabled(category string) bool {
	return Enabled(category) && slog.Default().Enabled(context.Background(), LevelTrace)
}

// Dump logs a hex dump of at most 512 bytes of p at TRACE level.
func Dump(category, label string, p []byte) {
	if !TraceIsEnabled(category) {
		return
	}
	shown := p[:min(len(p), dumpLimit)]
	slog.Log(context.Background(), LevelTrace, label,
		"debug", category,
		"bytes", len(p),
		"dump", hex.Dump(shown),
	)
}

// ParseLevel converts a level string to a slog.Level. Unknown values
// mean INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Categories returns the enabled categories in sorted order.
func Categories() []string {
	return slices.Sorted(maps.Keys(*enabled.Load()))
}

// Truncate shortens s to at most maxLen bytes without splitting a UTF-8
// sequence, appending "..." when it cut something.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// parseCategories accepts comma- or space-separated names.
func parseCategories(s string) map[string]bool {
	m := make(map[string]bool)
	for _, cat := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	}) {
		m[cat] = true
	}
	return m
}
