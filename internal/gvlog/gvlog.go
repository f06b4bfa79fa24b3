// Package gvlog provides GroveDB's structured logging convention: a
// slog.Logger configured from a level name, installed as the process
// default, with small helpers for the couple of call sites (batch
// application, proof generation) that want to log without carrying a
// *slog.Logger of their own.
package gvlog

import (
	"fmt"
	"log/slog"
	"os"
)

// ParseLevel maps the debug/info/warn/error names used by the -log-level
// flag convention to a slog.Level, defaulting to Info for anything else.
func ParseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a text-handler logger writing to w at the given level. Passing
// a nil w defaults to os.Stdout.
func New(level slog.Level, w *os.File) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// SetDefault builds a logger via New and installs it as slog's package
// default, so every package that calls slog's top-level Info/Warn/Error
// functions (rather than threading a *slog.Logger through) picks it up.
func SetDefault(level slog.Level, w *os.File) *slog.Logger {
	logger := New(level, w)
	slog.SetDefault(logger)
	return logger
}

// Adapter adapts a *slog.Logger to the Debugf/Infof/Warnf/Errorf shape a
// few third-party components (the P2P gossip layer, badger's logger
// option) expect instead of slog's structured call signature.
type Adapter struct {
	Logger *slog.Logger
}

func (a Adapter) Debugf(format string, v ...any) { a.Logger.Debug(fmt.Sprintf(format, v...)) }
func (a Adapter) Infof(format string, v ...any)  { a.Logger.Info(fmt.Sprintf(format, v...)) }
func (a Adapter) Warnf(format string, v ...any)  { a.Logger.Warn(fmt.Sprintf(format, v...)) }
func (a Adapter) Errorf(format string, v ...any) { a.Logger.Error(fmt.Sprintf(format, v...)) }
