package orchestrator

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/R3E-Network/assoc-pipeline/internal/secrets"
)

// HealthSummary is the startup health document computed at Init and
// persisted to health_check.json: timestamp, job_id,
// associations, per-secret present/absent booleans (values never
// logged), and free disk under the data root.
type HealthSummary struct {
	Timestamp string `json:"timestamp"`
	JobID string `json:"job_id"`
	Associations []string `json:"associations"`
	SecretsPresent map[string]bool `json:"secrets_present"`
	FreeDiskBytes uint64 `json:"free_disk_bytes"`
	FreeDiskOK bool `json:"free_disk_ok"`
}

// requiredSecretsForMode enumerates the secrets a run of the given
// enrichment selection actually needs, so that missing keys for agents
// not scheduled in this run are warnings, not fatal.
func requiredSecretsForMode(enrichmentSelection []string) []string {
	all := map[string]string{
		"firmographic": "FIRMOGRAPHIC_API_KEY",
		"techstack": "TECH_STACK_API_KEY",
		"contacts": "CONTACT_FINDER_API_KEY",
	}
	var out []string
	for _, sel := range enrichmentSelection {
		if sel == "all" {
			return []string{all["firmographic"], all["techstack"], all["contacts"]}
		}
		if key, ok := all[sel]; ok {
			out = append(out, key)
		}
	}
	return out
}

// RunHealthCheck computes the HealthSummary for jobID/associations, using
// secretProvider.RequireAll to check every secret key that might be
// needed (mandatory keys are distinguished by the caller's fatal/warning
// decision, not by this function). It checks free disk under dataRoot
// via shirou/gopsutil/v3, used here as a startup disk-space gate.
func RunHealthCheck(ctx context.Context, jobID string, associations []string, secretKeys []string,
secretProvider *secrets.Provider, dataRoot string, minFreeDiskBytes int64) (*HealthSummary, error) {

	present, err := secretProvider.RequireAll(ctx, secretKeys)
	if err != nil {
		return nil, err
	}

	usage, err := disk.UsageWithContext(ctx, dataRoot)
	var free uint64
	if err == nil {
		free = usage.Free
	}

	summary := &HealthSummary{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		JobID: jobID,
		Associations: associations,
		SecretsPresent: present,
		FreeDiskBytes: free,
		FreeDiskOK: int64(free) >= minFreeDiskBytes,
	}
	return summary, nil
}
