package eden

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with graph-index-specific helpers so log
// records use consistent field names across the package.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler. If handler is
// nil, a text handler to stderr at Info level is used.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NopLogger creates a Logger that discards all output.
func NopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// LogBuild logs the outcome of a build.
func (l *Logger) LogBuild(ctx context.Context, stableHeads, volatileHeads int, assigned uint64, rebuilt bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "build failed",
			"stable_heads", stableHeads,
			"volatile_heads", volatileHeads,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "build completed",
		"stable_heads", stableHeads,
		"volatile_heads", volatileHeads,
		"assigned_ids", assigned,
		"volatile_rebuilt", rebuilt,
	)
}

// LogCommit logs a successful manifest commit.
func (l *Logger) LogCommit(ctx context.Context, manifestID uint64) {
	l.DebugContext(ctx, "state committed", "manifest_id", manifestID)
}

// LogReload logs a reload of the committed state.
func (l *Logger) LogReload(ctx context.Context, manifestID uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "reload failed", "error", err)
		return
	}
	l.DebugContext(ctx, "reload completed", "manifest_id", manifestID)
}
