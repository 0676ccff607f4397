// Package orchestrator owns the lifecycle described in spec §4.7: it
// drives a run through the canonical auth_config → workspace_ready →
// task-cycle → completed path, dispatching resumed runs into the middle
// of that path rather than replaying it, and cooperatively stopping on
// SIGINT. It is the one place every other component (runstate, session,
// agent, workspace, gitops, verify, controlplane, gitlab, logging,
// events) is wired together, mirroring how the teacher's
// internal/controller.Controller composes its own subsystems.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gbos-io/gbos/internal/agent"
	"github.com/gbos-io/gbos/internal/config"
	"github.com/gbos-io/gbos/internal/controlplane"
	"github.com/gbos-io/gbos/internal/events"
	"github.com/gbos-io/gbos/internal/gitlab"
	"github.com/gbos-io/gbos/internal/gitops"
	"github.com/gbos-io/gbos/internal/logging"
	"github.com/gbos-io/gbos/internal/runstate"
	"github.com/gbos-io/gbos/internal/session"
	"github.com/gbos-io/gbos/internal/workspace"
)

// Exit codes per spec §6's CLI surface.
const (
	ExitOK     = 0
	ExitFailed = 1
	ExitPaused = 130
)

// Sentinel errors per spec §7's Invariant/Configuration taxonomy.
var (
	ErrAlreadyRunning  = errors.New("orchestrator: a run is already active")
	ErrCannotResume    = errors.New("orchestrator: run cannot be resumed from its current state")
	ErrNoActiveRun     = errors.New("orchestrator: no active run to resume")
	ErrAdapterMissing  = errors.New("orchestrator: selected adapter is not available on this host")
	ErrNoGitLabToken   = errors.New("orchestrator: merge requests are enabled but no GitLab client is configured")
)

// Options configures one Start or Resume call. The CLI layer (internal/cli)
// is responsible for resolving flags against the loaded config.Config
// before constructing Options, so every field here is already final.
type Options struct {
	AgentVendor        string
	AutoApprove        bool
	CreateMergeRequest bool
	Continuous         bool
	MaxTasks           int
	Dir                string
	TaskID             string
	SkipVerification   bool
	SkipGit            bool
	ShowPrompt         bool
}

// Driver owns one run at a time within this process.
type Driver struct {
	cfg           *config.Config
	store         *runstate.Store
	cp            *controlplane.Client
	gl            *gitlab.Client
	wsManager     *workspace.Manager
	sessionRunner *session.Runner
	logsDir       string

	events chan events.Event

	mu              sync.Mutex
	run             *runstate.Run
	ws              *workspace.Workspace
	gitMgr          *gitops.Manager
	application     workspace.Application
	nodeID          string
	currentAgent    agent.Agent
	taskIDConsumed  bool
	paused          bool
	cancelRun       context.CancelFunc
	logger          logging.Logger
}

// New creates a Driver. gl may be nil when merge request creation is never
// used (spec §7: GitLab settings are only required when create_merge_request
// is enabled).
func New(cfg *config.Config, cp *controlplane.Client, gl *gitlab.Client, stateDir string) (*Driver, error) {
	store, err := runstate.NewStore(filepath.Join(stateDir, "runs"))
	if err != nil {
		return nil, fmt.Errorf("orchestrator: creating run store: %w", err)
	}
	return &Driver{
		cfg:           cfg,
		store:         store,
		cp:            cp,
		gl:            gl,
		wsManager:     workspace.NewManager(expandHome(cfg.Workspace.Dir)),
		sessionRunner: session.New(),
		logsDir:       filepath.Join(stateDir, "logs"),
		events:        make(chan events.Event, 256),
	}, nil
}

// Events returns the channel of driver-lifecycle events, per spec §9's
// typed event channel. It is never closed; callers stop reading when
// Start/Resume returns.
func (d *Driver) Events() <-chan events.Event {
	return d.events
}

// Store exposes the driver's run store.
func (d *Driver) Store() *runstate.Store {
	return d.store
}

func (d *Driver) emit(e events.Event) {
	e.RunID = d.runID()
	select {
	case d.events <- e:
	default:
		// A slow or absent consumer never blocks the workflow loop; the
		// run file and session log still carry everything.
	}
	if d.logger != nil {
		d.logger.Info(fmt.Sprintf("%s: %s", e.Kind, summarize(e)))
	}
}

func summarize(e events.Event) string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Stage != "":
		return e.Stage
	case e.Error != "":
		return e.Error
	default:
		return ""
	}
}

func (d *Driver) runID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.run == nil {
		return ""
	}
	return d.run.RunID
}

// Start creates a fresh run and drives it from auth_config to completion,
// pause, or failure.
func (d *Driver) Start(ctx context.Context, opts Options) (int, error) {
	d.mu.Lock()
	if d.run != nil && !runstate.IsTerminal(d.run.State) {
		d.mu.Unlock()
		return ExitFailed, ErrAlreadyRunning
	}
	d.mu.Unlock()

	if active, err := d.store.ActiveRun(); err == nil && active != nil {
		return ExitFailed, fmt.Errorf("%w: run %s; resume or stop it first", ErrAlreadyRunning, active.RunID)
	}

	run, err := d.store.New(time.Now())
	if err != nil {
		return ExitFailed, fmt.Errorf("orchestrator: creating run: %w", err)
	}

	d.mu.Lock()
	d.run = run
	d.paused = false
	d.mu.Unlock()

	d.logger = logging.New(ctx, run.RunID, map[string]string{"agent": opts.AgentVendor})
	d.emit(events.Started(run.RunID))

	runCtx, cancel := signal.NotifyContext(ctx, interruptSignals...)
	d.mu.Lock()
	d.cancelRun = cancel
	d.mu.Unlock()
	defer cancel()

	return d.runWorkflow(runCtx, run, opts, phaseAuth)
}

// Resume loads runID (or the store's active_run() if empty) and continues
// it from wherever it left off, per spec §4.7's resume dispatch.
func (d *Driver) Resume(ctx context.Context, runID string, opts Options) (int, error) {
	var (
		run *runstate.Run
		err error
	)
	if runID != "" {
		run, err = d.store.Load(runID)
	} else {
		run, err = d.store.ActiveRun()
		if err == nil && run == nil {
			err = ErrNoActiveRun
		}
	}
	if err != nil {
		return ExitFailed, err
	}

	phase, ok := startPhaseFor(run.State)
	if !ok || run.State == runstate.StateIdle {
		return ExitFailed, fmt.Errorf("%w: run %s is in state %s", ErrCannotResume, run.RunID, run.State)
	}
	if run.State == runstate.StatePaused {
		// paused -> post_process is not a legal transition, so the resume is
		// recorded as paused -> run_agent before post-processing continues.
		if err := d.store.Transition(run, runstate.StateRunAgent, nil, time.Now()); err != nil {
			return ExitFailed, fmt.Errorf("orchestrator: resuming paused run: %w", err)
		}
	}

	d.mu.Lock()
	d.run = run
	d.paused = false
	if phase != phaseAuth && phase != phaseWorkspace {
		d.ws = &workspace.Workspace{
			Dir:         run.Context.WorkingDir,
			Branch:      run.Context.Branch,
			RepoURL:     run.Context.RepoURL,
			CloudRunURL: run.Context.CloudRunURL,
			LocalOnly:   run.Context.RepoURL == "",
		}
		d.gitMgr = gitops.NewManager(d.ws.Dir, d.mrCreator())
	}
	d.mu.Unlock()

	d.logger = logging.New(ctx, run.RunID, map[string]string{"agent": opts.AgentVendor})
	d.emit(events.Log(fmt.Sprintf("resuming run %s from %s", run.RunID, run.State)))

	runCtx, cancel := signal.NotifyContext(ctx, interruptSignals...)
	d.mu.Lock()
	d.cancelRun = cancel
	d.mu.Unlock()
	defer cancel()

	return d.runWorkflow(runCtx, run, opts, phase)
}

// Stop cooperatively stops the run this Driver instance currently owns:
// it cancels the run's context (which signals the session runner's child
// process, if one is active) and marks the run paused so the workflow
// loop exits at the next stage boundary. It is a no-op if no run is
// active in this process.
func (d *Driver) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paused = true
	if d.cancelRun != nil {
		d.cancelRun()
	}
}

func (d *Driver) isPaused() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.paused
}

// mrCreator returns the configured gitops.MergeRequestCreator, or nil if
// merge request creation was never configured (gl is nil). Returning the
// typed nil through the interface would make a non-nil interface wrapping
// a nil *gitlab.Client, so this checks explicitly.
func (d *Driver) mrCreator() gitops.MergeRequestCreator {
	if d.gl == nil {
		return nil
	}
	return d.gl
}

func (d *Driver) maxTasks(opts Options) int {
	if opts.MaxTasks > 0 {
		return opts.MaxTasks
	}
	return d.cfg.Run.MaxTasks
}

func (d *Driver) continuous(opts Options) bool {
	return opts.Continuous || d.cfg.Run.Continuous
}

// fail records the error against the run, transitions to failed if that is
// a legal move, emits failed, and returns the process's failure exit.
func (d *Driver) fail(run *runstate.Run, stage string, cause error) (int, error) {
	now := time.Now()
	_ = d.store.RecordError(run, stage, cause.Error(), "", now)
	if runstate.CanTransition(run.State, runstate.StateFailed) {
		_ = d.store.Transition(run, runstate.StateFailed, nil, now)
	}
	d.emit(events.Failed(cause))
	if d.logger != nil {
		d.logger.Error(fmt.Sprintf("%s: %v", stage, cause))
		_ = d.logger.Close()
	}
	return ExitFailed, fmt.Errorf("%s: %w", stage, cause)
}

func (d *Driver) complete(run *runstate.Run, tasksCompleted int) (int, error) {
	now := time.Now()
	if runstate.CanTransition(run.State, runstate.StateCompleted) {
		_ = d.store.Transition(run, runstate.StateCompleted, nil, now)
	}
	d.emit(events.Completed(tasksCompleted))
	if d.logger != nil {
		_ = d.logger.Close()
	}
	return ExitOK, nil
}

func (d *Driver) pause(run *runstate.Run) (int, error) {
	now := time.Now()
	if !runstate.IsTerminal(run.State) && runstate.CanTransition(run.State, runstate.StatePaused) {
		_ = d.store.Transition(run, runstate.StatePaused, nil, now)
	}
	d.emit(events.Log("run paused by user request"))
	if d.logger != nil {
		_ = d.logger.Close()
	}
	return ExitPaused, nil
}

// expandHome resolves a leading "~" to the current user's home directory,
// matching the shorthand gbos's own default config values use.
func expandHome(dir string) string {
	if !strings.HasPrefix(dir, "~") {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return dir
	}
	return filepath.Join(home, strings.TrimPrefix(dir, "~"))
}
