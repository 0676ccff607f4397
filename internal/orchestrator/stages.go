package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gbos-io/gbos/internal/agent"
	"github.com/gbos-io/gbos/internal/controlplane"
	"github.com/gbos-io/gbos/internal/events"
	"github.com/gbos-io/gbos/internal/gitlab"
	"github.com/gbos-io/gbos/internal/gitops"
	"github.com/gbos-io/gbos/internal/runstate"
	"github.com/gbos-io/gbos/internal/session"
	"github.com/gbos-io/gbos/internal/verify"
	"github.com/gbos-io/gbos/internal/workspace"
)

// applicationPayload decodes the control plane's opaque application JSON
// into the fields the workspace manager needs.
type applicationPayload struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	GitLabRepoURL string `json:"gitlab_repo_url"`
	RepoURL       string `json:"repo_url"`
	RepositoryURL string `json:"repository_url"`
	CloudRunURL   string `json:"cloud_run_url"`
	DeployURL     string `json:"deploy_url"`
	URL           string `json:"url"`
}

type nodePayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (d *Driver) stageAuthConfig(ctx context.Context, run *runstate.Run, opts Options) error {
	d.emit(events.Stage(string(runstate.StateAuthConfig)))

	if _, err := d.cp.AuthSession(ctx); err != nil {
		return fmt.Errorf("verifying control plane session: %w", err)
	}

	conn, err := d.cp.Connection(ctx)
	if err != nil {
		return fmt.Errorf("fetching connection: %w", err)
	}

	var app applicationPayload
	if len(conn.Application) > 0 {
		if err := json.Unmarshal(conn.Application, &app); err != nil {
			return fmt.Errorf("parsing application: %w", err)
		}
	}
	var node nodePayload
	if len(conn.Node) > 0 {
		if err := json.Unmarshal(conn.Node, &node); err != nil {
			return fmt.Errorf("parsing node: %w", err)
		}
	}

	vendor := opts.AgentVendor
	if vendor == "" {
		vendor = d.cfg.Agent.Vendor
	}
	ad, err := agent.Get(vendor)
	if err != nil {
		var unknown *agent.UnknownAdapterError
		if errors.As(err, &unknown) {
			return fmt.Errorf("%w: %s", ErrAdapterMissing, vendor)
		}
		return err
	}
	if !ad.IsAvailable() {
		return fmt.Errorf("%w: %s", ErrAdapterMissing, ad.Name())
	}

	d.mu.Lock()
	d.application = workspace.Application{
		ID:            app.ID,
		Name:          app.Name,
		GitLabRepoURL: app.GitLabRepoURL,
		RepoURL:       app.RepoURL,
		RepositoryURL: app.RepositoryURL,
		CloudRunURL:   app.CloudRunURL,
		DeployURL:     app.DeployURL,
		URL:           app.URL,
	}
	d.nodeID = node.ID
	d.currentAgent = ad
	d.mu.Unlock()

	return d.store.Transition(run, runstate.StateAuthConfig, map[string]interface{}{
		"app_id":       app.ID,
		"node_id":      node.ID,
		"agent_vendor": ad.Name(),
	}, time.Now())
}

func (d *Driver) stageWorkspaceReady(ctx context.Context, run *runstate.Run, opts Options) error {
	d.emit(events.Stage(string(runstate.StateWorkspaceReady)))

	currentDir, _ := os.Getwd()
	resolvedDir, err := d.wsManager.ResolveDir(ctx, d.application, opts.Dir, currentDir)
	if err != nil {
		return fmt.Errorf("resolving working directory: %w", err)
	}

	placeholderBranch := workspace.BranchName("init", "workspace init")
	ws, err := d.wsManager.Prepare(ctx, d.application, resolvedDir, placeholderBranch)
	if err != nil {
		return fmt.Errorf("preparing workspace: %w", err)
	}

	d.mu.Lock()
	d.ws = ws
	d.gitMgr = gitops.NewManager(ws.Dir, d.mrCreator())
	d.mu.Unlock()

	return d.store.Transition(run, runstate.StateWorkspaceReady, map[string]interface{}{
		"working_dir":   ws.Dir,
		"repo_url":      ws.RepoURL,
		"cloud_run_url": ws.CloudRunURL,
	}, time.Now())
}

func (d *Driver) stageFetchTask(ctx context.Context, run *runstate.Run, opts Options) (*controlplane.Task, bool, error) {
	d.emit(events.Stage(string(runstate.StateFetchTask)))

	var task *controlplane.Task
	if opts.TaskID != "" && !d.taskIDConsumed {
		d.taskIDConsumed = true
		task = &controlplane.Task{ID: opts.TaskID}
	} else {
		t, err := d.cp.NextTask(ctx)
		if errors.Is(err, controlplane.ErrNoTask) {
			return nil, true, nil
		}
		if err != nil {
			return nil, false, fmt.Errorf("requesting next task: %w", err)
		}
		task = t
	}

	branch := workspace.BranchName(taskRefOrID(task), task.Title)
	ws, err := d.wsManager.Prepare(ctx, d.application, d.ws.Dir, branch)
	if err != nil {
		return nil, false, fmt.Errorf("preparing workspace for task %s: %w", task.ID, err)
	}

	d.mu.Lock()
	d.ws = ws
	d.gitMgr = gitops.NewManager(ws.Dir, d.mrCreator())
	d.mu.Unlock()

	if err := d.cp.StartTask(ctx, task.ID); err != nil {
		return nil, false, fmt.Errorf("marking task %s started: %w", task.ID, err)
	}

	err = d.store.Transition(run, runstate.StateFetchTask, map[string]interface{}{
		"task_id":     task.ID,
		"task_key":    task.TaskKey,
		"branch":      branch,
		"working_dir": ws.Dir,
	}, time.Now())
	return task, false, err
}

func taskRefOrID(task *controlplane.Task) string {
	if task.TaskKey != "" {
		return task.TaskKey
	}
	return task.ID
}

func (d *Driver) stageGeneratePrompt(ctx context.Context, run *runstate.Run, opts Options, task *controlplane.Task) (string, error) {
	d.emit(events.Stage(string(runstate.StateGeneratePrompt)))

	t := agent.Task{ID: task.ID, TaskKey: task.TaskKey, Title: task.Title}
	pc := agent.PromptContext{
		AppName:     d.application.Name,
		RepoURL:     d.ws.RepoURL,
		CloudRunURL: d.ws.CloudRunURL,
		Branch:      d.ws.Branch,
		WorkingDir:  d.ws.Dir,
	}

	prompt := d.currentAgent.FormatPrompt(t, pc)

	now := time.Now()
	_ = d.store.RecordOutput(run, "generate_prompt", prompt, now)
	d.emit(events.Prompt(prompt))

	if err := d.store.Transition(run, runstate.StateGeneratePrompt, nil, now); err != nil {
		return "", err
	}
	return prompt, nil
}

func (d *Driver) stageRunAgent(ctx context.Context, run *runstate.Run, opts Options, task *controlplane.Task, prompt string) (session.Result, error) {
	d.emit(events.Stage(string(runstate.StateRunAgent)))

	ad := d.currentAgent
	cmdOpts := agent.CommandOptions{AutoApprove: opts.AutoApprove, Model: d.cfg.Agent.Model}
	spec := ad.Command(cmdOpts)

	extraEnv := map[string]string{
		"GBOS_WORKSPACE": d.ws.Dir,
		"GBOS_BRANCH":    d.ws.Branch,
		"GBOS_REPO":      d.ws.RepoURL,
		"CI":             "1",
	}
	for k, v := range spec.Env {
		extraEnv[k] = v
	}

	sess, err := d.sessionRunner.Start(ctx, session.Spec{
		Command: spec.Command,
		Args:    spec.Args,
		Input:   prompt,
	}, session.Options{
		TimeoutMS:         int(session.DefaultTimeout / time.Millisecond),
		Cwd:               d.ws.Dir,
		Env:               extraEnv,
		LogToFile:         true,
		LogDir:            d.logsDir,
		CloseStdinOnWrite: spec.CloseStdinOnWrite,
	})
	if err != nil {
		return session.Result{}, fmt.Errorf("starting agent session: %w", err)
	}

	d.emit(events.AgentStart(ad.Name()))
	for ev := range sess.Events() {
		switch ev.Kind {
		case session.EventStdout:
			d.emit(events.AgentOutput(string(ev.Chunk), "stdout"))
		case session.EventStderr:
			d.emit(events.AgentOutput(string(ev.Chunk), "stderr"))
		case session.EventTimeout:
			d.emit(events.Log("agent run timed out"))
		case session.EventRetry:
			d.emit(events.Log(fmt.Sprintf("retrying agent run (attempt %d)", ev.Attempt)))
		case session.EventError:
			d.emit(events.Log(fmt.Sprintf("session error: %v", ev.Err)))
		}
	}

	result, waitErr := sess.Wait()
	d.emit(events.AgentDone(result.ExitCode))
	_ = d.store.RecordOutput(run, "run_agent", map[string]interface{}{
		"exit_code":     result.ExitCode,
		"output_length": len(result.Output),
	}, time.Now())

	if waitErr != nil {
		if fallback, ok := d.tryFallbackAdapter(ad); ok {
			d.emit(events.Log(fmt.Sprintf("run_agent failed (%v); retrying once with fallback adapter %s", waitErr, fallback.Name())))
			d.mu.Lock()
			d.currentAgent = fallback
			d.mu.Unlock()
			return d.stageRunAgent(ctx, run, opts, task, prompt)
		}
		return result, fmt.Errorf("agent session failed: %w", waitErr)
	}

	if err := d.store.Transition(run, runstate.StateRunAgent, nil, time.Now()); err != nil {
		return result, err
	}
	return result, nil
}

// tryFallbackAdapter implements SPEC_FULL.md's fallback-on-repeated-failure
// supplement: when configured and the failing adapter isn't already the
// fallback, it resolves the fallback adapter once so stageRunAgent can
// retry exactly one time.
func (d *Driver) tryFallbackAdapter(failed agent.Agent) (agent.Agent, bool) {
	if !d.cfg.Fallback.Enabled || d.cfg.Fallback.DefaultAdapter == "" {
		return nil, false
	}
	if failed.Name() == d.cfg.Fallback.DefaultAdapter {
		return nil, false
	}
	fallback, err := agent.Get(d.cfg.Fallback.DefaultAdapter)
	if err != nil || !fallback.IsAvailable() {
		return nil, false
	}
	return fallback, true
}

func (d *Driver) stagePostProcess(ctx context.Context, run *runstate.Run) error {
	d.emit(events.Stage(string(runstate.StatePostProcess)))

	output := verify.PostProcess(ctx, verify.Options{
		Dir:         d.ws.Dir,
		CloudRunURL: d.ws.CloudRunURL,
	})

	now := time.Now()
	_ = d.store.RecordOutput(run, "post_process", output, now)
	return d.store.Transition(run, runstate.StatePostProcess, nil, now)
}

func (d *Driver) stageRunTests(ctx context.Context, run *runstate.Run) (bool, error) {
	d.emit(events.Stage(string(runstate.StateRunTests)))

	report := verify.Run(ctx, verify.Options{
		Dir:         d.ws.Dir,
		CloudRunURL: d.ws.CloudRunURL,
	})
	if !report.Passed {
		// Non-fatal per spec §7/§9: a failing verification is logged but
		// does not abort the task.
		d.emit(events.Log("verification failed: " + report.Summary))
	}

	now := time.Now()
	_ = d.store.RecordOutput(run, "run_tests", report, now)
	err := d.store.Transition(run, runstate.StateRunTests, map[string]interface{}{
		"tests_passed": report.Passed,
	}, now)
	return report.Passed, err
}

func (d *Driver) stageCommitPush(ctx context.Context, run *runstate.Run, opts Options, task *controlplane.Task) (string, string, error) {
	d.emit(events.Stage(string(runstate.StateCommitPush)))

	message := task.Title
	if message == "" {
		message = "Automated changes via gbos"
	}
	taskRef := taskRefOrID(task)

	var (
		committed bool
		err       error
	)
	if d.ws.RepoURL == "" {
		committed, err = d.gitMgr.CommitAll(ctx, message, taskRef)
	} else {
		committed, err = d.gitMgr.CommitAndPush(ctx, d.ws.Branch, message, taskRef, false)
	}
	if err != nil {
		return "", "", fmt.Errorf("committing changes: %w", err)
	}

	commitHash, _ := d.ws.CurrentCommit(ctx)

	var mrURL string
	if d.ws.RepoURL != "" && opts.CreateMergeRequest {
		if d.gl == nil {
			d.emit(events.Log("merge requests enabled but no GitLab client is configured; skipping"))
		} else {
			req := gitlab.MergeRequestRequest{
				ProjectID:          d.cfg.GitLab.ProjectID,
				SourceBranch:       d.ws.Branch,
				TargetBranch:       "main",
				Title:              message,
				Description:        fmt.Sprintf("Automated by gbos for task %s", taskRef),
				RemoveSourceBranch: true,
			}
			url, mrErr := d.gitMgr.CreateMergeRequest(ctx, req)
			if mrErr != nil {
				// Non-fatal per spec §7/§8 scenario 6.
				d.emit(events.Log("merge request creation failed: " + mrErr.Error()))
				_ = d.store.RecordError(run, "commit_push", mrErr.Error(), "", time.Now())
			} else {
				mrURL = url
			}
		}
	}

	now := time.Now()
	_ = d.store.RecordOutput(run, "commit_push", map[string]interface{}{
		"committed":         committed,
		"commit_hash":       commitHash,
		"merge_request_url": mrURL,
	}, now)
	d.emit(events.Committed(commitHash, mrURL))

	if err := d.store.Transition(run, runstate.StateCommitPush, nil, now); err != nil {
		return commitHash, mrURL, err
	}
	return commitHash, mrURL, nil
}

func (d *Driver) stageReportStatus(ctx context.Context, run *runstate.Run, task *controlplane.Task, commitHash, mrURL string, testsPassed *bool) error {
	d.emit(events.Stage(string(runstate.StateReportStatus)))

	req := controlplane.CompleteTaskRequest{
		CompletionNotes: "Completed via gbos",
		CommitHash:      commitHash,
		MergeRequestURL: mrURL,
		TestsPassed:     testsPassed,
	}
	if err := d.cp.CompleteTask(ctx, task.ID, req); err != nil {
		// Non-fatal per spec §7: the task is locally done even if the
		// control plane is unreachable.
		d.emit(events.Log("reporting task completion failed: " + err.Error()))
		_ = d.store.RecordError(run, "report_status", err.Error(), "", time.Now())
	}

	return d.store.Transition(run, runstate.StateReportStatus, map[string]interface{}{
		"task_id":  "",
		"task_key": "",
		"branch":   "",
	}, time.Now())
}
