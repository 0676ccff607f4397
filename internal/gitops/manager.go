// Package gitops wraps the git operations a session needs once an agent
// has finished a stage: staging, committing, pushing, and opening a merge
// request. The shell-out style and error wrapping are grounded on
// mauza-ai-flow's internal/git/git.go Manager; merge request creation
// replaces that package's gh-CLI-based CreatePR with a direct GitLab REST
// call via internal/gitlab, since the target forge here is GitLab rather
// than GitHub.
package gitops

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/gbos-io/gbos/internal/gitlab"
)

// MergeRequestCreator creates a merge request and returns its URL.
type MergeRequestCreator interface {
	CreateMergeRequest(ctx context.Context, req gitlab.MergeRequestRequest) (string, error)
}

// Manager performs git operations against a prepared workspace directory.
type Manager struct {
	Dir string
	MR  MergeRequestCreator
}

// NewManager creates a Manager rooted at dir. mr may be nil if merge
// request creation will never be invoked (e.g. local-only workspaces).
func NewManager(dir string, mr MergeRequestCreator) *Manager {
	return &Manager{Dir: dir, MR: mr}
}

func (m *Manager) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", m.Dir}, args...)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return string(out), nil
}

// StageAll stages every change in the working tree.
func (m *Manager) StageAll(ctx context.Context) error {
	_, err := m.git(ctx, "add", "-A")
	return err
}

// HasStagedChanges reports whether there is anything to commit.
func (m *Manager) HasStagedChanges(ctx context.Context) (bool, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", m.Dir, "diff", "--cached", "--quiet")
	err := cmd.Run()
	if err == nil {
		return false, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
		return true, nil
	}
	return false, fmt.Errorf("git diff --cached --quiet: %w", err)
}

// Commit records the staged changes with message. A non-empty taskRef is
// appended as a trailer so the commit can be traced back to its task.
func (m *Manager) Commit(ctx context.Context, message, taskRef string) error {
	full := message
	if taskRef != "" {
		full = message + "\n\nTask: " + taskRef
	}
	_, err := m.git(ctx, "commit", "-m", full)
	return err
}

// CommitAll stages everything and commits in one step, returning false if
// there was nothing to commit.
func (m *Manager) CommitAll(ctx context.Context, message, taskRef string) (bool, error) {
	if err := m.StageAll(ctx); err != nil {
		return false, err
	}
	staged, err := m.HasStagedChanges(ctx)
	if err != nil {
		return false, err
	}
	if !staged {
		return false, nil
	}
	if err := m.Commit(ctx, message, taskRef); err != nil {
		return false, err
	}
	return true, nil
}

// Push pushes branch to origin with upstream tracking. If force is true,
// it pushes with --force-with-lease instead of erroring on a non-fast-
// forward update.
func (m *Manager) Push(ctx context.Context, branch string, force bool) error {
	args := []string{"push", "-u", "origin", branch}
	if force {
		args = append(args, "--force-with-lease")
	}
	_, err := m.git(ctx, args...)
	return err
}

// HasUnpushedCommits reports whether branch has commits not yet on its
// upstream.
func (m *Manager) HasUnpushedCommits(ctx context.Context, branch string) (bool, error) {
	out, err := m.git(ctx, "rev-list", "--count", "origin/"+branch+"..HEAD")
	if err != nil {
		// No upstream yet means everything local is unpushed.
		return true, nil
	}
	return strings.TrimSpace(out) != "0", nil
}

// CreateMergeRequest opens a merge request for branch against base via the
// configured MergeRequestCreator and returns its URL.
func (m *Manager) CreateMergeRequest(ctx context.Context, req gitlab.MergeRequestRequest) (string, error) {
	if m.MR == nil {
		return "", fmt.Errorf("gitops: no merge request creator configured")
	}
	return m.MR.CreateMergeRequest(ctx, req)
}

// CommitAndPush commits staged changes (if any) and pushes the branch.
// Returns whether a commit was created.
func (m *Manager) CommitAndPush(ctx context.Context, branch, message, taskRef string, force bool) (bool, error) {
	committed, err := m.CommitAll(ctx, message, taskRef)
	if err != nil {
		return false, err
	}
	if err := m.Push(ctx, branch, force); err != nil {
		return committed, err
	}
	return committed, nil
}

// CommitPushAndMR commits, pushes, and opens a merge request in sequence,
// returning the MR URL (empty if nothing was committed and the branch had
// no other unpushed commits).
func (m *Manager) CommitPushAndMR(ctx context.Context, branch, message, taskRef string, req gitlab.MergeRequestRequest) (string, error) {
	committed, err := m.CommitAll(ctx, message, taskRef)
	if err != nil {
		return "", err
	}
	unpushed, err := m.HasUnpushedCommits(ctx, branch)
	if err != nil {
		return "", err
	}
	if !committed && !unpushed {
		return "", nil
	}
	if err := m.Push(ctx, branch, false); err != nil {
		return "", err
	}
	return m.CreateMergeRequest(ctx, req)
}
