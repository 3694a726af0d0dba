// Package logging provides structured logging with trace ID support.
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys.
type ContextKey string

const (
	TraceIDKey ContextKey = "trace_id"
	JobIDKey ContextKey = "job_id"
	PhaseKey ContextKey = "phase"
)

// Logger wraps logrus.Logger with pipeline-specific structured fields.
type Logger struct {
	*logrus.Logger
	component string
}

// New creates a new Logger instance.
func New(component, level, format string) *Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg: "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp: true,
		})
	}

	logger.SetOutput(os.Stdout)

	return &Logger{Logger: logger, component: component}
}

// NewFromEnv constructs a logger using LOG_LEVEL and LOG_FORMAT, defaulting
// to "info" and "json" when unset.
func NewFromEnv(component string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(component, level, format)
}

// WithContext creates a logger entry carrying trace/job/phase context values.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("component", l.component)
	if traceID := ctx.Value(TraceIDKey); traceID != nil {
		entry = entry.WithField("trace_id", traceID)
	}
	if jobID := ctx.Value(JobIDKey); jobID != nil {
		entry = entry.WithField("job_id", jobID)
	}
	if phase := ctx.Value(PhaseKey); phase != nil {
		entry = entry.WithField("phase", phase)
	}
	return entry
}

// WithFields creates a logger entry with custom fields.
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["component"] = l.component
	return l.Logger.WithFields(fields)
}

// NewTraceID() generates a new trace ID.
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithJobID adds the pipeline job ID to the context.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, JobIDKey, jobID)
}

// WithPhase adds the current phase name to the context.
func WithPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, PhaseKey, phase)
}

// LogPhaseTransition records a phase transition at INFO, the mandatory
// log line the orchestrator must emit on every successful checkpoint.
func (l *Logger) LogPhaseTransition(ctx context.Context, from, to string, recordCounts map[string]int) {
	fields := logrus.Fields{"from_phase": from, "to_phase": to}
	for bucket, n := range recordCounts {
		fields["count_"+bucket] = n
	}
	l.WithContext(ctx).WithFields(fields).Info("phase transition")
}

// LogUnitError records a per-unit failure using the mandatory
// {error_kind, agent, task_key} structured fields required by the error
// handling design: every error must be classified and logged, never
// silently swallowed.
func (l *Logger) LogUnitError(ctx context.Context, errKind, agent, taskKey string, err error) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"error_kind": errKind,
		"agent": agent,
		"task_key": taskKey,
		"error": err.Error(),
	}).Warn("unit error")
}

// LogAgentInvocation records an agent execution outcome.
func (l *Logger) LogAgentInvocation(ctx context.Context, agent string, duration time.Duration, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"agent": agent,
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		entry.WithField("error", err.Error()).Error("agent invocation failed")
		return
	}
	entry.Debug("agent invocation succeeded")
}

// Fatal logs a fatal error and exits, used only on unrecoverable startup faults.
func (l *Logger) Fatal(ctx context.Context, message string, err error) {
	l.WithContext(ctx).WithField("error", err.Error()).Fatal(message)
}
