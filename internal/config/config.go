// Package config loads gbos's configuration from a project file plus
// environment overrides. The viper/mapstructure decoding, applyDefaults/
// Validate/ValidateForRun trio, and plain fmt.Errorf error style are
// carried over from the teacher's own internal/config package.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the full gbos configuration.
type Config struct {
	Agent        AgentConfig        `mapstructure:"agent"`
	Run          RunConfig          `mapstructure:"run"`
	ControlPlane ControlPlaneConfig `mapstructure:"control_plane"`
	GitLab       GitLabConfig       `mapstructure:"gitlab"`
	Workspace    WorkspaceConfig    `mapstructure:"workspace"`
	Heartbeat    HeartbeatConfig    `mapstructure:"heartbeat"`
	Timeouts     TimeoutsConfig     `mapstructure:"timeouts"`
	Fallback     FallbackConfig     `mapstructure:"fallback"`
}

// AgentConfig selects and configures the coding-agent adapter.
type AgentConfig struct {
	Vendor      string `mapstructure:"vendor"`
	AutoApprove bool   `mapstructure:"auto_approve"`
	Model       string `mapstructure:"model"`
}

// RunConfig controls the task cycle.
type RunConfig struct {
	Continuous         bool `mapstructure:"continuous"`
	MaxTasks           int  `mapstructure:"max_tasks"`
	SkipVerification   bool `mapstructure:"skip_verification"`
	SkipGit            bool `mapstructure:"skip_git"`
	CreateMergeRequest bool `mapstructure:"create_merge_request"`
}

// ControlPlaneConfig addresses the control-plane API.
type ControlPlaneConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	TokenSecretRef string `mapstructure:"token_secret_ref"`
}

// GitLabConfig addresses the GitLab REST API.
type GitLabConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	ProjectID      string `mapstructure:"project_id"`
	TokenSecretRef string `mapstructure:"token_secret_ref"`
}

// WorkspaceConfig controls where working trees are rooted.
type WorkspaceConfig struct {
	Dir string `mapstructure:"dir"`
}

// HeartbeatConfig controls the driver's liveness ping.
type HeartbeatConfig struct {
	Interval string `mapstructure:"interval"`
}

// TimeoutsConfig holds stage timeout settings. They are defaulted,
// validated and listed here, but the driver and verification stages do not
// read them: those use their built-in timeouts.
type TimeoutsConfig struct {
	AgentRun   string `mapstructure:"agent_run"`
	QuickStage string `mapstructure:"quick_stage"`
	TestStage  string `mapstructure:"test_stage"`
}

// FallbackConfig controls whether the driver retries a failed agent run
// with a different adapter instead of failing the task outright.
type FallbackConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	DefaultAdapter string `mapstructure:"default_adapter"`
}

// Load loads configuration from any file viper has already been pointed at
// plus GBOS_-prefixed environment overrides, and applies defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Agent.Vendor == "" {
		cfg.Agent.Vendor = "claude-code"
	}
	if cfg.Run.MaxTasks == 0 {
		cfg.Run.MaxTasks = 1
	}
	if cfg.ControlPlane.BaseURL == "" {
		cfg.ControlPlane.BaseURL = "https://api.gbos.dev"
	}
	if cfg.GitLab.BaseURL == "" {
		cfg.GitLab.BaseURL = "https://gitlab.com/api/v4"
	}
	if cfg.Workspace.Dir == "" {
		cfg.Workspace.Dir = "~/.gbos/workspaces"
	}
	if cfg.Heartbeat.Interval == "" {
		cfg.Heartbeat.Interval = "30s"
	}
	if cfg.Timeouts.AgentRun == "" {
		cfg.Timeouts.AgentRun = "30m"
	}
	if cfg.Timeouts.QuickStage == "" {
		cfg.Timeouts.QuickStage = "60s"
	}
	if cfg.Timeouts.TestStage == "" {
		cfg.Timeouts.TestStage = "10m"
	}
}

// Validate checks invariants that must hold regardless of how the
// configuration will be used.
func (c *Config) Validate() error {
	validAgents := map[string]bool{"claude-code": true, "codex": true, "gemini": true}
	if c.Agent.Vendor != "" && !validAgents[c.Agent.Vendor] {
		return fmt.Errorf("invalid agent vendor: %s (must be claude-code, codex, or gemini)", c.Agent.Vendor)
	}
	if c.Fallback.Enabled {
		if c.Fallback.DefaultAdapter == "" {
			return fmt.Errorf("fallback.default_adapter is required when fallback.enabled is true")
		}
		if !validAgents[c.Fallback.DefaultAdapter] {
			return fmt.Errorf("invalid fallback.default_adapter: %s (must be claude-code, codex, or gemini)", c.Fallback.DefaultAdapter)
		}
	}

	for name, value := range map[string]string{
		"heartbeat.interval":   c.Heartbeat.Interval,
		"timeouts.agent_run":   c.Timeouts.AgentRun,
		"timeouts.quick_stage": c.Timeouts.QuickStage,
		"timeouts.test_stage":  c.Timeouts.TestStage,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	return nil
}

// ValidateForRun performs the additional validation required before a run
// can start: the control plane and, if merge requests are enabled,
// GitLab must both be reachable in principle (their secret refs set).
func (c *Config) ValidateForRun() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.ControlPlane.BaseURL == "" {
		return fmt.Errorf("control_plane.base_url is required")
	}
	if c.ControlPlane.TokenSecretRef == "" {
		return fmt.Errorf("control_plane.token_secret_ref is required")
	}
	if c.Run.CreateMergeRequest {
		if c.GitLab.ProjectID == "" {
			return fmt.Errorf("gitlab.project_id is required when create_merge_request is enabled")
		}
		if c.GitLab.TokenSecretRef == "" {
			return fmt.Errorf("gitlab.token_secret_ref is required when create_merge_request is enabled")
		}
	}

	return nil
}
