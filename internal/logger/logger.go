// Package logger provides structured logging for sectionquery
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog with engine and service helpers
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration
type Config struct {
	Level      string // debug, info, warn, error
	Pretty     bool   // pretty-print for development
	Output     io.Writer
	WithCaller bool
}

// ParseLevel maps a config level name to a zerolog level, defaulting to info
func ParseLevel(name string) zerolog.Level {
	switch name {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new structured logger
func NewLogger(cfg Config) *Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	// Pretty printing for development
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	zlog := zerolog.New(output).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("service", "sectionquery").
		Logger()

	if cfg.WithCaller {
		zlog = zlog.With().Caller().Logger()
	}

	return &Logger{zlog: zlog}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// GetZerolog returns the underlying zerolog logger
func (l *Logger) GetZerolog() *zerolog.Logger {
	return &l.zlog
}

// Info logs an info message
func (l *Logger) Info(msg string) *zerolog.Event {
	return l.zlog.Info().Str("msg", msg)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) *zerolog.Event {
	return l.zlog.Debug().Str("msg", msg)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) *zerolog.Event {
	return l.zlog.Warn().Str("msg", msg)
}

// Error logs an error message
func (l *Logger) Error(msg string) *zerolog.Event {
	return l.zlog.Error().Str("msg", msg)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(msg string) *zerolog.Event {
	return l.zlog.Fatal().Str("msg", msg)
}

// WithFields returns a logger with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.zlog.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{zlog: ctx.Logger()}
}

// GrpcLogger returns a logger for gRPC operations
func (l *Logger) GrpcLogger(method string) *Logger {
	return &Logger{
		zlog: l.zlog.With().
			Str("component", "grpc").
			Str("method", method).
			Logger(),
	}
}

// EngineLogger returns a logger for query engine operations
func (l *Logger) EngineLogger(operation string) *Logger {
	return &Logger{
		zlog: l.zlog.With().
			Str("component", "engine").
			Str("operation", operation).
			Logger(),
	}
}

// LogGrpcRequest logs gRPC request with structured fields
func (l *Logger) LogGrpcRequest(method, requestID string, duration time.Duration, err error) {
	event := l.zlog.Info().
		Str("component", "grpc").
		Str("method", method).
		Str("request_id", requestID).
		Dur("duration_ms", duration)

	if err != nil {
		event = l.zlog.Error().
			Str("component", "grpc").
			Str("method", method).
			Str("request_id", requestID).
			Dur("duration_ms", duration).
			Err(err)
	}

	event.Msg("gRPC request completed")
}

// LogQuery logs one resolved expression. Failures are logged at warn since
// they are returned to the caller as data.
func (l *Logger) LogQuery(docID, expression, route string, nodes int, cacheHit bool, duration time.Duration, err error) {
	event := l.zlog.Debug().
		Str("component", "engine").
		Str("document", docID).
		Str("expression", expression).
		Str("route", route).
		Int("node_count", nodes).
		Bool("cache_hit", cacheHit).
		Dur("duration_ms", duration)

	if err != nil {
		event = l.zlog.Warn().
			Str("component", "engine").
			Str("document", docID).
			Str("expression", expression).
			Str("route", route).
			Dur("duration_ms", duration).
			Err(err)
	}

	event.Msg("Query completed")
}

// LogSectionScan logs one boundary scan or probe
func (l *Logger) LogSectionScan(docID, kind string, scanned, read int64, found bool, duration time.Duration, err error) {
	event := l.zlog.Debug().
		Str("component", "locator").
		Str("document", docID).
		Str("section", kind).
		Int64("scanned_bytes", scanned).
		Int64("read_bytes", read).
		Bool("found", found).
		Dur("duration_ms", duration)

	if err != nil {
		event = l.zlog.Warn().
			Str("component", "locator").
			Str("document", docID).
			Str("section", kind).
			Dur("duration_ms", duration).
			Err(err)
	}

	event.Msg("Section scan completed")
}

// LogServerStart logs server startup
func (l *Logger) LogServerStart(addr, root string) {
	l.zlog.Info().
		Str("event", "server_start").
		Str("addr", addr).
		Str("root", root).
		Msg("sectionquery server starting")
}

// LogServerReady logs when server is ready
func (l *Logger) LogServerReady(addr string) {
	l.zlog.Info().
		Str("event", "server_ready").
		Str("addr", addr).
		Msg("sectionquery server ready to accept connections")
}

// LogServerShutdown logs server shutdown
func (l *Logger) LogServerShutdown() {
	l.zlog.Info().
		Str("event", "server_shutdown").
		Msg("sectionquery server shutting down")
}

// Global logger instance
var globalLogger *Logger

// InitGlobalLogger initializes the global logger
func InitGlobalLogger(cfg Config) {
	globalLogger = NewLogger(cfg)
	log.Logger = *globalLogger.GetZerolog()
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	if globalLogger == nil {
		InitGlobalLogger(Config{
			Level:  "info",
			Pretty: true,
		})
	}
	return globalLogger
}
