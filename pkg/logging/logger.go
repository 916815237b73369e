package logging

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
	"golang.org/x/time/rate"
)

// NewLogger creates a new slog logger with JSON formatting
func NewLogger(level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler)
}

// NewTextLogger creates a text-formatted logger (for CLI tools like migration)
func NewTextLogger(level slog.Level) *slog.Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler)
}

// NewLoggerWithFormat creates a logger with specified format (json or text)
func NewLoggerWithFormat(level slog.Level, format string) *slog.Logger {
	format = strings.ToLower(strings.TrimSpace(format))

	var handler slog.Handler
	switch format {
	case "text":
		// Use colorized tint handler for text format
		// Auto-detect TTY for color support (disables colors when piped)
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: "[15:04:05]", // Bracketed 24-hour format with seconds
			NoColor:    !isTerminal(os.Stderr),
		})
	case "json", "": // default to JSON if empty or unrecognized
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})
	default:
		// Unknown format, default to JSON
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// isTerminal checks if the file descriptor is a terminal (for color detection)
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// RateLimited wraps a slog.Logger behind a token bucket shared by every
// call made through it: the first burst messages are emitted at once, after
// which at most one message per refill interval gets through and the rest
// are dropped. This is the "log first N then suppress" discipline
// spec.md §7 requires for error volumes that can otherwise amplify
// themselves (e.g. one StoreFull per dropped observation under sustained
// overload).
type RateLimited struct {
	logger  *slog.Logger
	limiter *rate.Limiter
}

// NewRateLimited builds a RateLimited logger that allows burst messages
// immediately and then refills at one message per `every`.
func NewRateLimited(logger *slog.Logger, every time.Duration, burst int) *RateLimited {
	return &RateLimited{
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(every), burst),
	}
}

// Warn emits a warning if the rate limiter still has budget, else drops it.
func (r *RateLimited) Warn(msg string, args ...any) {
	if r.limiter.Allow() {
		r.logger.Warn(msg, args...)
	}
}

// Error emits an error log if the rate limiter still has budget, else drops it.
func (r *RateLimited) Error(msg string, args ...any) {
	if r.limiter.Allow() {
		r.logger.Error(msg, args...)
	}
}

// ParseLevel converts string log level to slog.Level
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
