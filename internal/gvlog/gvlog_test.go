package gvlog

import (
	"context"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"bogus": slog.LevelInfo,
		"":      slog.LevelInfo,
	}
	for name, want := range cases {
		if got := ParseLevel(name); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestNewDefaultsToStdout(t *testing.T) {
	logger := New(slog.LevelDebug, nil)
	if logger == nil {
		t.Fatal("New returned nil")
	}
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("logger built at LevelDebug does not report Debug enabled")
	}
}

func TestAdapterFormats(t *testing.T) {
	logger := New(slog.LevelDebug, nil)
	a := Adapter{Logger: logger}
	a.Debugf("x=%d", 1)
	a.Infof("x=%d", 1)
	a.Warnf("x=%d", 1)
	a.Errorf("x=%d", 1)
}
