package orchestrator

import (
	"context"

	"github.com/gbos-io/gbos/internal/controlplane"
	"github.com/gbos-io/gbos/internal/runstate"
)

// runWorkflow drives run through the canonical path (spec §4.7) starting
// at startPhase, which is phaseAuth for a fresh Start and whatever
// startPhaseFor resolved for a Resume.
func (d *Driver) runWorkflow(ctx context.Context, run *runstate.Run, opts Options, startPhase phase) (int, error) {
	stopHeartbeat := d.startHeartbeat(ctx, run)
	defer stopHeartbeat()

	cur := startPhase

	if cur == phaseAuth {
		if err := d.stageAuthConfig(ctx, run, opts); err != nil {
			return d.fail(run, "auth_config", err)
		}
		cur = phaseWorkspace
	}
	if cur == phaseWorkspace {
		if err := d.stageWorkspaceReady(ctx, run, opts); err != nil {
			return d.fail(run, "workspace_ready", err)
		}
		cur = phaseCycle
	}

	tasksCompleted := 0
	firstIteration := true

	for {
		if ctxDone(ctx) || d.isPaused() {
			return d.pause(run)
		}
		if !d.continuous(opts) && tasksCompleted >= d.maxTasks(opts) {
			break
		}

		resumePhase := phaseCycle
		if firstIteration {
			resumePhase = cur
		}
		firstIteration = false

		task, done, err := d.dispatchTask(ctx, run, opts, resumePhase)
		if err != nil {
			return d.fail(run, "fetch_task", err)
		}
		if done {
			return d.complete(run, tasksCompleted)
		}

		var prompt string
		if resumePhase <= phaseGeneratePrompt {
			prompt, err = d.stageGeneratePrompt(ctx, run, opts, task)
			if err != nil {
				return d.fail(run, "generate_prompt", err)
			}
		}

		if resumePhase <= phaseRunAgent {
			if _, err := d.stageRunAgent(ctx, run, opts, task, prompt); err != nil {
				return d.fail(run, "run_agent", err)
			}
		}

		if ctxDone(ctx) || d.isPaused() {
			return d.pause(run)
		}

		var testsPassed *bool
		if !opts.SkipVerification {
			if resumePhase <= phasePostProcess {
				if err := d.stagePostProcess(ctx, run); err != nil {
					return d.fail(run, "post_process", err)
				}
			}
			if resumePhase <= phaseRunTests {
				passed, err := d.stageRunTests(ctx, run)
				if err != nil {
					return d.fail(run, "run_tests", err)
				}
				testsPassed = &passed
			}
		}

		var commitHash, mrURL string
		if !opts.SkipGit && resumePhase <= phaseCommitPush {
			commitHash, mrURL, err = d.stageCommitPush(ctx, run, opts, task)
			if err != nil {
				return d.fail(run, "commit_push", err)
			}
		}

		if err := d.stageReportStatus(ctx, run, task, commitHash, mrURL, testsPassed); err != nil {
			return d.fail(run, "report_status", err)
		}

		tasksCompleted++
	}

	return d.complete(run, tasksCompleted)
}

// dispatchTask either fetches a new task (resumePhase <= phaseCycle, the
// normal case for every loop iteration after the first) or reconstructs the
// in-flight task from the persisted run context (resuming mid-cycle).
func (d *Driver) dispatchTask(ctx context.Context, run *runstate.Run, opts Options, resumePhase phase) (*controlplane.Task, bool, error) {
	if resumePhase <= phaseCycle {
		return d.stageFetchTask(ctx, run, opts)
	}
	return taskFromContext(run), false, nil
}

func taskFromContext(run *runstate.Run) *controlplane.Task {
	return &controlplane.Task{ID: run.Context.TaskID, TaskKey: run.Context.TaskKey}
}

func ctxDone(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
