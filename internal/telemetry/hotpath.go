package telemetry

import (
	"time"

	"go.uber.org/zap"
)

// HotPathLogger wraps zap for the per-request / per-agent-invocation log
// volume that would be disproportionately expensive to route through the
// logrus-based structured phase logger: every HTTP Core retry attempt and
// every Executor spawn gets one of these lines, while phase-level and
// orchestrator-level events stay on logrus (internal/logging).
type HotPathLogger struct {
	z *zap.Logger
}

// NewHotPathLogger builds a production zap logger (JSON, sampled).
func NewHotPathLogger() (*HotPathLogger, error) {
	z, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return &HotPathLogger{z: z}, nil
}

// Sync flushes any buffered log entries; call on shutdown.
func (h *HotPathLogger) Sync() error {
	return h.z.Sync()
}

// HTTPAttempt logs one outbound HTTP attempt (including retries), cheap
// enough to call on every attempt without the logrus context overhead.
func (h *HotPathLogger) HTTPAttempt(host, method string, attempt int, status int, dur time.Duration, err error) {
	fields := []zap.Field{
		zap.String("host", host),
		zap.String("method", method),
		zap.Int("attempt", attempt),
		zap.Int("status", status),
		zap.Duration("duration", dur),
	}
	if err != nil {
		h.z.Warn("http attempt failed", append(fields, zap.Error(err))...)
		return
	}
	h.z.Debug("http attempt", fields...)
}

// AgentSpawn logs one agent spawn outcome.
func (h *HotPathLogger) AgentSpawn(agent, taskKey string, attempt int, dur time.Duration, err error) {
	fields := []zap.Field{
		zap.String("agent", agent),
		zap.String("task_key", taskKey),
		zap.Int("attempt", attempt),
		zap.Duration("duration", dur),
	}
	if err != nil {
		h.z.Warn("agent spawn failed", append(fields, zap.Error(err))...)
		return
	}
	h.z.Debug("agent spawn", fields...)
}
