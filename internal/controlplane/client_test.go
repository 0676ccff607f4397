package controlplane

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAuthSessionSendsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			t.Errorf("got Authorization %q", r.Header.Get("Authorization"))
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]interface{}{}})
	}))
	defer srv.Close()

	c := NewClient("tok-1", WithBaseURL(srv.URL))
	if _, err := c.AuthSession(context.Background()); err != nil {
		t.Fatalf("AuthSession: %v", err)
	}
}

func TestNextTaskReturnsErrNoTaskOn404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient("tok-1", WithBaseURL(srv.URL))
	_, err := c.NextTask(context.Background())
	if err != ErrNoTask {
		t.Fatalf("got %v, want ErrNoTask", err)
	}
}

func TestNextTaskReturnsTaskOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"task": map[string]interface{}{"id": "T1", "task_key": "ABC-1", "title": "Fix it"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient("tok-1", WithBaseURL(srv.URL))
	task, err := c.NextTask(context.Background())
	if err != nil {
		t.Fatalf("NextTask: %v", err)
	}
	if task.ID != "T1" || task.TaskKey != "ABC-1" {
		t.Fatalf("got %+v", task)
	}
}

func TestCompleteTaskPostsExpectedBody(t *testing.T) {
	var received CompleteTaskRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/cli/tasks/T1/complete" {
			t.Errorf("got path %q", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&received)
	}))
	defer srv.Close()

	c := NewClient("tok-1", WithBaseURL(srv.URL))
	passed := true
	err := c.CompleteTask(context.Background(), "T1", CompleteTaskRequest{
		CompletionNotes: "done",
		CommitHash:      "abc123",
		TestsPassed:     &passed,
	})
	if err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	if received.CommitHash != "abc123" || received.TestsPassed == nil || !*received.TestsPassed {
		t.Fatalf("got %+v", received)
	}
}

func TestUnauthorizedReturnsDescriptiveError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(apiError{Message: "invalid token"})
	}))
	defer srv.Close()

	c := NewClient("bad-token", WithBaseURL(srv.URL))
	_, err := c.AuthSession(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
}
