package observability

import (
	"log/slog"
	"os"
)

// NewLogger returns a JSON logger with a component field attached.
func NewLogger(component string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	logger := slog.New(handler)
	if component != "" {
		logger = logger.With("component", component)
	}
	return logger
}

func WithJob(logger *slog.Logger, jobName string) *slog.Logger {
	if logger == nil || jobName == "" {
		return logger
	}
	return logger.With("job", jobName)
}

func WithBuild(logger *slog.Logger, namespace, name string) *slog.Logger {
	if logger == nil || (namespace == "" && name == "") {
		return logger
	}
	return logger.With("build", namespace+"/"+name)
}
