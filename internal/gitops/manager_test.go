package gitops

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/gbos-io/gbos/internal/gitlab"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com")
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %s: %v", args, out, err)
		}
	}
	run("init")
	run("commit", "--allow-empty", "-m", "initial")
	return dir
}

type fakeMR struct {
	url string
	err error
	req gitlab.MergeRequestRequest
}

func (f *fakeMR) CreateMergeRequest(ctx context.Context, req gitlab.MergeRequestRequest) (string, error) {
	f.req = req
	return f.url, f.err
}

func TestCommitAllCommitsStagedChanges(t *testing.T) {
	dir := initRepo(t)
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	m := NewManager(dir, nil)
	committed, err := m.CommitAll(context.Background(), "add a", "T1")
	if err != nil {
		t.Fatalf("CommitAll: %v", err)
	}
	if !committed {
		t.Fatal("expected a commit to be created")
	}
}

func TestCommitAllNoopWhenNothingToCommit(t *testing.T) {
	dir := initRepo(t)
	m := NewManager(dir, nil)
	committed, err := m.CommitAll(context.Background(), "nothing", "")
	if err != nil {
		t.Fatalf("CommitAll: %v", err)
	}
	if committed {
		t.Fatal("expected no commit when nothing changed")
	}
}

func TestCreateMergeRequestRequiresConfiguredCreator(t *testing.T) {
	dir := initRepo(t)
	m := NewManager(dir, nil)
	if _, err := m.CreateMergeRequest(context.Background(), gitlab.MergeRequestRequest{}); err == nil {
		t.Fatal("expected an error when no MergeRequestCreator is configured")
	}
}

func TestCreateMergeRequestDelegatesToCreator(t *testing.T) {
	dir := initRepo(t)
	fake := &fakeMR{url: "https://gitlab.example.com/org/repo/-/merge_requests/9"}
	m := NewManager(dir, fake)
	url, err := m.CreateMergeRequest(context.Background(), gitlab.MergeRequestRequest{ProjectID: "org/repo"})
	if err != nil {
		t.Fatalf("CreateMergeRequest: %v", err)
	}
	if url != fake.url {
		t.Fatalf("got %q", url)
	}
	if fake.req.ProjectID != "org/repo" {
		t.Fatalf("expected request to be forwarded, got %+v", fake.req)
	}
}
