package workspace

import "testing"

func TestBranchNameSlugifiesTitle(t *testing.T) {
	got := BranchName("PROJ-123", "Fix the Login Button!!")
	want := "task/PROJ-123-fix-the-login-button"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBranchNameTruncatesLongTitle(t *testing.T) {
	got := BranchName("T1", "this title is extremely long and should be truncated at the limit")
	if len(got) > len("task/T1-")+maxSlugLen {
		t.Fatalf("branch name too long: %q (%d chars)", got, len(got))
	}
}

func TestBranchNameFallsBackToKeyWhenTitleEmpty(t *testing.T) {
	got := BranchName("T1", "")
	if got != "task/T1" {
		t.Fatalf("got %q, want task/T1", got)
	}
}

func TestSlugifyCollapsesNonAlphanumeric(t *testing.T) {
	got := slugify("Hello---World!!  Foo")
	want := "hello-world-foo"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
