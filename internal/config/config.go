// Package config loads pipeline configuration from the environment (and an
// optional .env file), expressed as a single decoded struct instead of
// ad hoc getters.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config is the process-wide configuration, decoded once at startup from
// environment variables (ASSOC_PIPELINE_* prefix).
type Config struct {
	LogLevel string `env:"ASSOC_PIPELINE_LOG_LEVEL,default=info"`
	LogFormat string `env:"ASSOC_PIPELINE_LOG_FORMAT,default=json"`

	DataRoot string `env:"ASSOC_PIPELINE_DATA_ROOT,default=./data"`
	StateRoot string `env:"ASSOC_PIPELINE_STATE_ROOT,default=./.state"`

	SchemaRoot string `env:"ASSOC_PIPELINE_SCHEMA_ROOT,default=./schemas"`

	// HTTP Core (C1)
	HTTPDefaultRatePerSec float64 `env:"ASSOC_PIPELINE_HTTP_DEFAULT_RATE,default=2"`
	HTTPMaxRetries int `env:"ASSOC_PIPELINE_HTTP_MAX_RETRIES,default=3"`
	HTTPBaseBackoff time.Duration `env:"ASSOC_PIPELINE_HTTP_BASE_BACKOFF,default=500ms"`
	HTTPMaxBackoff time.Duration `env:"ASSOC_PIPELINE_HTTP_MAX_BACKOFF,default=30s"`
	HTTPRequestTimeout time.Duration `env:"ASSOC_PIPELINE_HTTP_REQUEST_TIMEOUT,default=15s"`
	BreakerFailureThresh int `env:"ASSOC_PIPELINE_BREAKER_FAILURE_THRESHOLD,default=5"`
	BreakerResetTimeout time.Duration `env:"ASSOC_PIPELINE_BREAKER_RESET_TIMEOUT,default=60s"`

	// Executor (C6)
	AgentTaskTimeout time.Duration `env:"ASSOC_PIPELINE_AGENT_TASK_TIMEOUT,default=30s"`
	MaxConcurrentDef int `env:"ASSOC_PIPELINE_MAX_CONCURRENT,default=5"`
	AgentMaxRetries int `env:"ASSOC_PIPELINE_AGENT_MAX_RETRIES,default=3"`

	// Checkpoint (C7)
	CheckpointInterval int `env:"ASSOC_PIPELINE_CHECKPOINT_INTERVAL,default=50"`

	// Secret Provider (C4)
	SecretCacheTTL time.Duration `env:"ASSOC_PIPELINE_SECRET_CACHE_TTL,default=300s"`
	RedisAddr string `env:"ASSOC_PIPELINE_REDIS_ADDR"`
	AzureVaultURL string `env:"ASSOC_PIPELINE_AZURE_VAULT_URL"`

	// Policy (C3)
	StrictSchemaMode bool `env:"ASSOC_PIPELINE_STRICT_SCHEMA,default=false"`

	// Startup health (C8)
	MinFreeDiskBytes int64 `env:"ASSOC_PIPELINE_MIN_FREE_DISK_BYTES,default=1073741824"`

	// Discovery (C8 phase bound)
	MaxPagesPerDomain int `env:"ASSOC_PIPELINE_MAX_PAGES_PER_DOMAIN,default=500"`

	// DLQ
	DeadLetterPath string `env:"ASSOC_PIPELINE_DLQ_PATH,default=./data/dead_letter/dlq.jsonl"`

	// Persistence mirror
	PersistDBDSN string `env:"ASSOC_PIPELINE_PERSIST_DB_DSN"`

	// Policy (C3) domain allow/deny overrides, loaded from YAML if set
	DomainPolicyPath string `env:"ASSOC_PIPELINE_DOMAIN_POLICY_PATH"`
}

// Load reads an optional .env file (ignored if absent) then decodes the
// environment into a Config, following an "env with fallback" layering
// philosophy.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load.env: %w", err)
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	return &cfg, nil
}

// SplitAndTrimCSV splits a CSV string and trims each part, filtering out
// empties. Used to parse the repeatable `-a` association flag's env mirror.
func SplitAndTrimCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
