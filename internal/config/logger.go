package config

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger はLOG_FORMATに合わせたslogを返す。
func NewLogger(cfg Config) *slog.Logger {
	return newLogger(cfg, os.Stdout)
}

func newLogger(cfg Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true}
	if !cfg.IsProd() {
		opts.Level = slog.LevelDebug
	}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
