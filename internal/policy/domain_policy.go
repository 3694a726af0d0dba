package policy

import (
	"context"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	pipelineerrors "github.com/R3E-Network/assoc-pipeline/internal/errors"
)

// DomainPolicyConfig is an operator-supplied allow/deny list for the
// hostnames Discovery and the enrichment agents are permitted to reach,
// using a "version + default_effect + rules" YAML layering narrowed
// here to the one axis this pipeline needs gated outside of robots.txt:
// operator-declared domain scope.
type DomainPolicyConfig struct {
	Version string `yaml:"version"`
	DefaultEffect string `yaml:"default_effect"`
	AllowedDomains []string `yaml:"allowed_domains"`
	DeniedDomains []string `yaml:"denied_domains"`
}

// LoadDomainPolicy reads and parses a DomainPolicyConfig from a YAML
// file. A missing path is not itself an error at the call site: callers
// skip loading entirely when no path is configured.
func LoadDomainPolicy(path string) (*DomainPolicyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pipelineerrors.ConfigErr("read domain policy file", err)
	}
	var cfg DomainPolicyConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, pipelineerrors.ConfigErr("parse domain policy file", err)
	}
	if cfg.DefaultEffect == "" {
		cfg.DefaultEffect = "allow"
	}
	return &cfg, nil
}

// DomainAllowedCheck enforces cfg at the pre-invocation gate: a task
// payload carrying a "url" or "domain" field is checked against the
// denied list (always rejected) and, when DefaultEffect is "deny",
// against the allowed list (rejected unless explicitly present).
func DomainAllowedCheck(cfg *DomainPolicyConfig) PolicyCheck {
	denied := stringSet(cfg.DeniedDomains)
	allowed := stringSet(cfg.AllowedDomains)

	return func(_ context.Context, pc Context) error {
		if pc.Stage != StagePre {
			return nil
		}
		domain := domainFromPayload(pc.Task.Payload)
		if domain == "" {
			return nil
		}
		if denied[domain] {
			return pipelineerrors.ForbiddenErr("domain denied by policy").
				WithDetails("agent", pc.Agent.Name()).
				WithDetails("domain", domain)
		}
		if cfg.DefaultEffect == "deny" && !allowed[domain] {
			return pipelineerrors.ForbiddenErr("domain not on allow list").
				WithDetails("agent", pc.Agent.Name()).
				WithDetails("domain", domain)
		}
		return nil
	}
}

func domainFromPayload(payload map[string]interface{}) string {
	if d, ok := payload["domain"].(string); ok && d != "" {
		return d
	}
	raw, ok := payload["url"].(string)
	if !ok || raw == "" {
		return ""
	}
	host := raw
	if idx := strings.Index(host, "://"); idx >= 0 {
		host = host[idx+3:]
	}
	if idx := strings.IndexAny(host, "/?#"); idx >= 0 {
		host = host[:idx]
	}
	return host
}

func stringSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, v := range items {
		out[v] = true
	}
	return out
}
