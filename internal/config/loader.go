package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"agentd/internal/profile"
	"agentd/pkg/types"
)

// ResourceConfig describes one loadable resource in a profile.
type ResourceConfig struct {
	ID           string   `json:"id" yaml:"id" toml:"id"`
	Name         string   `json:"name" yaml:"name" toml:"name"`
	SizeMB       int      `json:"size_mb" yaml:"size_mb" toml:"size_mb"`
	Priority     string   `json:"priority" yaml:"priority" toml:"priority"`
	Capabilities []string `json:"capabilities" yaml:"capabilities" toml:"capabilities"`
}

// ProfileConfig describes a named resource profile.
type ProfileConfig struct {
	Name      string            `json:"name" yaml:"name" toml:"name"`
	Resources []ResourceConfig  `json:"resources" yaml:"resources" toml:"resources"`
	Roles     map[string]string `json:"roles" yaml:"roles" toml:"roles"`
}

// BreakerConfig holds circuit-breaker tunables.
type BreakerConfig struct {
	FailureThreshold     int     `json:"failure_threshold" yaml:"failure_threshold" toml:"failure_threshold"`
	FailureRateThreshold float64 `json:"failure_rate_threshold" yaml:"failure_rate_threshold" toml:"failure_rate_threshold"`
	WindowSeconds        int     `json:"window_seconds" yaml:"window_seconds" toml:"window_seconds"`
	SuccessThreshold     int     `json:"success_threshold" yaml:"success_threshold" toml:"success_threshold"`
	OpenTimeoutSeconds   int     `json:"open_timeout_seconds" yaml:"open_timeout_seconds" toml:"open_timeout_seconds"`
	HalfOpenMaxRequests  int     `json:"half_open_max_requests" yaml:"half_open_max_requests" toml:"half_open_max_requests"`
}

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and will be replaced by defaults in the
// component constructors.
type Config struct {
	Addr       string `json:"addr" yaml:"addr" toml:"addr"`
	BackendURL string `json:"backend_url" yaml:"backend_url" toml:"backend_url"`

	Workers       int `json:"workers" yaml:"workers" toml:"workers"`
	MaxQueueDepth int `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth"`

	ReserveFraction            float64 `json:"reserve_fraction" yaml:"reserve_fraction" toml:"reserve_fraction"`
	MemoryLimitMB              int     `json:"memory_limit_mb" yaml:"memory_limit_mb" toml:"memory_limit_mb"`
	KeepAliveMinutes           int     `json:"keep_alive_minutes" yaml:"keep_alive_minutes" toml:"keep_alive_minutes"`
	CapacityRetries            int     `json:"capacity_retries" yaml:"capacity_retries" toml:"capacity_retries"`
	CapacityRetryDelaySeconds  int     `json:"capacity_retry_delay_seconds" yaml:"capacity_retry_delay_seconds" toml:"capacity_retry_delay_seconds"`

	FallbackThreshold        int `json:"fallback_threshold" yaml:"fallback_threshold" toml:"fallback_threshold"`
	RecoverySuccessThreshold int `json:"recovery_success_threshold" yaml:"recovery_success_threshold" toml:"recovery_success_threshold"`
	ProbeIntervalSeconds     int `json:"probe_interval_seconds" yaml:"probe_interval_seconds" toml:"probe_interval_seconds"`

	VisibilityIntervalSeconds int `json:"visibility_interval_seconds" yaml:"visibility_interval_seconds" toml:"visibility_interval_seconds"`
	MaxRetries                int `json:"max_retries" yaml:"max_retries" toml:"max_retries"`

	Breaker BreakerConfig `json:"breaker" yaml:"breaker" toml:"breaker"`

	Profile         ProfileConfig `json:"profile" yaml:"profile" toml:"profile"`
	FallbackProfile ProfileConfig `json:"fallback_profile" yaml:"fallback_profile" toml:"fallback_profile"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// ToProfile validates and converts a ProfileConfig.
func (p ProfileConfig) ToProfile() (profile.Profile, error) {
	if p.Name == "" {
		return profile.Profile{}, fmt.Errorf("profile name is required")
	}
	out := profile.Profile{Name: p.Name, Roles: p.Roles}
	for _, rc := range p.Resources {
		if rc.ID == "" {
			return profile.Profile{}, fmt.Errorf("profile %s: resource id is required", p.Name)
		}
		if rc.SizeMB <= 0 {
			return profile.Profile{}, fmt.Errorf("profile %s: resource %s needs a positive size_mb", p.Name, rc.ID)
		}
		prio := types.Priority(rc.Priority)
		if rc.Priority == "" {
			prio = types.PriorityNormal
		}
		if !prio.Valid() {
			return profile.Profile{}, fmt.Errorf("profile %s: resource %s has unknown priority %q", p.Name, rc.ID, rc.Priority)
		}
		out.Resources = append(out.Resources, types.ResourceSpec{
			ID:           rc.ID,
			Name:         rc.Name,
			SizeMB:       rc.SizeMB,
			Priority:     prio,
			Capabilities: rc.Capabilities,
		})
	}
	for role, id := range p.Roles {
		if _, ok := out.Resource(id); !ok {
			return profile.Profile{}, fmt.Errorf("profile %s: role %q points at unknown resource %q", p.Name, role, id)
		}
	}
	return out, nil
}
