package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a zap logger whose level can be changed at runtime. Loggers
// derived with the With* helpers share that level.
type Logger struct {
	*zap.Logger
	level zap.AtomicLevel
}

// Config selects level, encoding and outputs
type Config struct {
	Level  string
	Format string // json or console
	Stderr bool   // write to stderr instead of stdout
	File   *FileConfig
}

// FileConfig adds a JSON log file next to the primary output
type FileConfig struct {
	Enabled bool
	Path    string
}

// New builds a logger from config
func New(config Config) (*Logger, error) {
	parsed, err := zapcore.ParseLevel(config.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}
	level := zap.NewAtomicLevelAt(parsed)

	var out io.Writer = os.Stdout
	if config.Stderr {
		out = os.Stderr
	}
	cores := []zapcore.Core{
		zapcore.NewCore(encoderFor(config.Format), zapcore.Lock(zapcore.AddSync(out)), level),
	}

	if config.File != nil && config.File.Enabled {
		// owner-only: entries name visits
		file, err := os.OpenFile(config.File.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(encoderFor("json"), zapcore.AddSync(file), level))
	}

	base := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return &Logger{Logger: base, level: level}, nil
}

func encoderFor(format string) zapcore.Encoder {
	if format == "console" {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		return zapcore.NewConsoleEncoder(cfg)
	}
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewJSONEncoder(cfg)
}

// NewNop returns a logger that discards everything
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop(), level: zap.NewAtomicLevel()}
}

// SetLevel changes the level of this logger and every logger derived from it
func (l *Logger) SetLevel(level string) error {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return err
	}
	l.level.SetLevel(parsed)
	return nil
}

// Level returns the current level name
func (l *Logger) Level() string {
	return l.level.Level().String()
}

func (l *Logger) derive(key, value string) *Logger {
	return &Logger{Logger: l.Logger.With(zap.String(key, value)), level: l.level}
}

// WithRequestID tags entries with the request ID
func (l *Logger) WithRequestID(requestID string) *Logger {
	return l.derive("request_id", requestID)
}

// WithComponent tags entries with the emitting package
func (l *Logger) WithComponent(component string) *Logger {
	return l.derive("component", component)
}

// WithVisitID tags entries with the visit being drafted
func (l *Logger) WithVisitID(visitID string) *Logger {
	return l.derive("visit_id", visitID)
}

// LogRequest logs an HTTP request line. Bodies are never logged: they
// carry raw transcripts.
func (l *Logger) LogRequest(method, path string, headers map[string][]string) {
	l.Info("HTTP request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Any("headers", SafeHeaders(headers)),
	)
}

// credentialHeaders are matched as substrings of the lowercased name
var credentialHeaders = []string{"authorization", "api-key", "cookie", "token", "bearer"}

// SafeHeaders keeps the first value of each header and blanks credentials
func SafeHeaders(headers map[string][]string) map[string]string {
	safe := make(map[string]string, len(headers))
	for name, values := range headers {
		switch {
		case carriesCredential(name):
			safe[name] = "[REDACTED]"
		case len(values) > 0:
			safe[name] = values[0]
		}
	}
	return safe
}

func carriesCredential(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range credentialHeaders {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
