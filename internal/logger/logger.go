// Package logger configures the global zerolog logger and carries request ids.
package logger

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type contextKey string

const requestIDKey contextKey = "request_id"

const milliTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Options controls the logger output.
type Options struct {
	Level string // zerolog level name; defaults to info
	File  string // optional file that receives a copy of every line
	JSON  bool   // plain JSON lines instead of the console writer
	Out   io.Writer
}

// OptionsFromEnv reads LOG_LEVEL, LOG_FILE and LOG_FORMAT.
func OptionsFromEnv() Options {
	return Options{
		Level: os.Getenv("LOG_LEVEL"),
		File:  os.Getenv("LOG_FILE"),
		JSON:  strings.EqualFold(os.Getenv("LOG_FORMAT"), "json"),
	}
}

// Init initializes the global logger from the environment.
func Init() {
	InitWith(OptionsFromEnv())
}

// InitWith initializes the global logger.
func InitWith(opts Options) {
	zerolog.TimeFieldFormat = milliTimeFormat
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }

	const callerWidth = 30
	zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
		path := fmt.Sprintf("%s:%d", filepath.Base(file), line)
		if len(path) >= callerWidth {
			return path[len(path)-callerWidth:]
		}
		return path + strings.Repeat(" ", callerWidth-len(path))
	}

	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	output := out
	if !opts.JSON {
		output = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: milliTimeFormat,
			NoColor:    !isDevelopmentMode(),
		}
	}

	if opts.File != "" {
		f, ferr := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if ferr == nil {
			output = io.MultiWriter(output, f)
		}
	}

	log.Logger = zerolog.New(output).With().Timestamp().Caller().Logger()

	log.Info().
		Str("level", level.String()).
		Bool("json", opts.JSON).
		Bool("dev", isDevelopmentMode()).
		Msg("Logger initialized")
}

func isDevelopmentMode() bool {
	return os.Getenv("DEV") == "true" ||
		os.Getenv("DEV_MODE") == "true" ||
		os.Getenv("DEVELOPMENT") == "true"
}

// Get returns the global logger instance.
func Get() zerolog.Logger {
	return log.Logger
}

// NewRequestID generates a cryptographically secure random 8-character alphanumeric string.
func NewRequestID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 8

	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req%06d", time.Now().UnixNano()%1000000)
	}
	for i := range b {
		b[i] = charset[b[i]%byte(len(charset))]
	}
	return string(b)
}

// WithRequestID returns a new context with the given request ID stored.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the request ID from context, or empty string.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// ForRequest returns a logger enriched with the request ID from context.
func ForRequest(ctx context.Context) zerolog.Logger {
	id := RequestIDFromContext(ctx)
	if id == "" {
		return log.Logger
	}
	return log.Logger.With().Str("requestId", id).Logger()
}

const maxLoggedBody = 1000

// LogRequest logs the request body at debug level, truncating if too long.
func LogRequest(logger zerolog.Logger, body []byte) {
	logBody(logger, "request_body", "Request body", body)
}

// LogResponse logs the response body at debug level, truncating if too long.
func LogResponse(logger zerolog.Logger, body []byte) {
	logBody(logger, "response", "Response body", body)
}

func logBody(logger zerolog.Logger, field, msg string, body []byte) {
	if len(body) == 0 {
		return
	}
	ev := logger.Debug()
	if len(body) > maxLoggedBody {
		body = body[:maxLoggedBody]
		ev = ev.Bool("truncated", true)
	}
	ev.Str(field, string(body)).Msg(msg)
}
