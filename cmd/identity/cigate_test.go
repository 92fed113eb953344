package main

import "testing"

func TestResolveGitBase(t *testing.T) {
	t.Setenv("PR_BASE_SHA", "")
	t.Setenv("GITHUB_BASE_SHA", "")
	t.Setenv("PUSH_BEFORE_SHA", "")
	t.Setenv("GITHUB_EVENT_BEFORE", "")

	if got := resolveGitBase("explicit"); got != "explicit" {
		t.Errorf("flag value must win, got %q", got)
	}
	if got := resolveGitBase(""); got != "" {
		t.Errorf("expected empty fallback with no env set, got %q", got)
	}

	t.Setenv("GITHUB_EVENT_BEFORE", "deadbeef")
	if got := resolveGitBase(""); got != "deadbeef" {
		t.Errorf("expected env fallback, got %q", got)
	}

	t.Setenv("PR_BASE_SHA", "pr-base")
	if got := resolveGitBase(""); got != "pr-base" {
		t.Errorf("PR_BASE_SHA must take precedence over GITHUB_EVENT_BEFORE, got %q", got)
	}
}

func TestResolveGitHead(t *testing.T) {
	t.Setenv("PR_HEAD_SHA", "")
	t.Setenv("GITHUB_SHA", "")

	if got := resolveGitHead("explicit"); got != "explicit" {
		t.Errorf("flag value must win, got %q", got)
	}
	if got := resolveGitHead(""); got != "HEAD" {
		t.Errorf("expected HEAD default with no env set, got %q", got)
	}

	t.Setenv("GITHUB_SHA", "sha-from-ci")
	if got := resolveGitHead(""); got != "sha-from-ci" {
		t.Errorf("expected GITHUB_SHA fallback, got %q", got)
	}

	t.Setenv("PR_HEAD_SHA", "pr-head")
	if got := resolveGitHead(""); got != "pr-head" {
		t.Errorf("PR_HEAD_SHA must take precedence over GITHUB_SHA, got %q", got)
	}
}

func TestIsTruthyEnv(t *testing.T) {
	truthy := []string{"1", "true", "True", "YES", "on"}
	for _, v := range truthy {
		if !isTruthyEnv(v) {
			t.Errorf("expected %q to be truthy", v)
		}
	}
	falsy := []string{"", "0", "false", "no", "off"}
	for _, v := range falsy {
		if isTruthyEnv(v) {
			t.Errorf("expected %q to be falsy", v)
		}
	}
}
