package logging

import (
	"io"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	once sync.Once
	base *slog.Logger
)

// Init configures the shared handler exactly once and returns a logger
// tagged with the given component. filePath may be empty, in which case
// output goes to stderr only. The stored base logger carries no component;
// New attaches it, so the key appears once per line.
func Init(component, filePath string, level slog.Level) *slog.Logger {
	once.Do(func() {
		var w io.Writer = os.Stderr
		if filePath != "" {
			rot := &lumberjack.Logger{
				Filename:   filePath,
				MaxSize:    50, // MB
				MaxBackups: 3,
				MaxAge:     7, // days
			}
			w = io.MultiWriter(os.Stderr, rot)
		}
		base = build(w, level)
	})
	return base.With("component", component)
}

func build(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// Base returns the component-free global logger, initializing a stderr-only
// default if Init was never called.
func Base() *slog.Logger {
	if base == nil {
		Init("bloomsoko", "", slog.LevelInfo)
	}
	return base
}

// New returns a component-tagged child of the global logger. It reuses the
// global handler rather than creating a new writer.
func New(component string) *slog.Logger {
	return Base().With("component", component)
}
