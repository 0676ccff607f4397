package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gbos-io/gbos/internal/config"
	"github.com/gbos-io/gbos/internal/controlplane"
	"github.com/gbos-io/gbos/internal/gitlab"
	"github.com/gbos-io/gbos/internal/orchestrator"
	"github.com/gbos-io/gbos/internal/secretref"
)

// stateDir returns the directory gbos keeps run files and session logs
// under: $GBOS_STATE_DIR if set, else ~/.gbos.
func stateDir() (string, error) {
	if dir := os.Getenv("GBOS_STATE_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".gbos"), nil
}

// resolveSecret resolves a secret:// reference via GCP Secret Manager, or
// returns the value unchanged if it isn't one (spec's secret reference
// resolution is an ambient concern, not gated behind create_merge_request).
func resolveSecret(ctx context.Context, ref string) (string, error) {
	if ref == "" || !secretref.IsRef(ref) {
		return ref, nil
	}
	client, err := secretref.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("creating secret resolver: %w", err)
	}
	defer client.Close()
	return client.Resolve(ctx, ref)
}

// newDriver loads configuration, resolves secret references, and wires an
// orchestrator.Driver, the one place every control command constructs it
// (spec §4.8: "thin wrappers that construct or load a driver").
func newDriver(ctx context.Context) (*orchestrator.Driver, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ValidateForRun(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cpToken, err := resolveSecret(ctx, cfg.ControlPlane.TokenSecretRef)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving control plane token: %w", err)
	}
	cp := controlplane.NewClient(cpToken, controlplane.WithBaseURL(cfg.ControlPlane.BaseURL))

	var gl *gitlab.Client
	if cfg.Run.CreateMergeRequest {
		glToken, err := resolveSecret(ctx, cfg.GitLab.TokenSecretRef)
		if err != nil {
			return nil, nil, fmt.Errorf("resolving gitlab token: %w", err)
		}
		gl = gitlab.NewClient(glToken, gitlab.WithBaseURL(cfg.GitLab.BaseURL))
	}

	dir, err := stateDir()
	if err != nil {
		return nil, nil, err
	}

	drv, err := orchestrator.New(cfg, cp, gl, dir)
	if err != nil {
		return nil, nil, fmt.Errorf("creating driver: %w", err)
	}
	return drv, cfg, nil
}

// optionsFromConfig builds orchestrator.Options from the loaded config.
// Flags bound to config keys are already reflected in cfg; callers set any
// command-specific fields on the returned Options themselves.
func optionsFromConfig(cfg *config.Config) orchestrator.Options {
	return orchestrator.Options{
		AgentVendor:        cfg.Agent.Vendor,
		AutoApprove:        cfg.Agent.AutoApprove,
		CreateMergeRequest: cfg.Run.CreateMergeRequest,
		Continuous:         cfg.Run.Continuous,
		MaxTasks:           cfg.Run.MaxTasks,
		SkipVerification:   cfg.Run.SkipVerification,
		SkipGit:            cfg.Run.SkipGit,
	}
}

func exitWithCode(code int, err error) error {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(code)
	return nil
}

func pidFilePath() (string, error) {
	dir, err := stateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "run.pid"), nil
}

// writePID records this process's PID so a separate `gbos stop` invocation
// can find and signal it, since orchestrator.Driver.Stop only stops a run
// owned by the calling process (spec §5: "the run file is owned by its
// driver instance").
func writePID() func() {
	path, err := pidFilePath()
	if err != nil {
		return func() {}
	}
	_ = os.MkdirAll(filepath.Dir(path), 0o755)
	_ = os.WriteFile(path, []byte(fmt.Sprintf("%d", os.Getpid())), 0o644)
	return func() { _ = os.Remove(path) }
}
