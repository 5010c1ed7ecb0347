package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/aristath/gitbridge/internal/config"
)

// TestCloseKillsProcessesAfterInterrupt verifies that closing an interrupted app
// kills the subprocesses it still tracks.
func TestCloseKillsProcessesAfterInterrupt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a := newApp(ctx, config.DefaultConfig(), log.New(io.Discard, "", 0), false)

	cmd := exec.Command("sleep", "60")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		t.Fatalf("Failed to start subprocess: %v", err)
	}
	a.procs.Track(cmd)

	cancel()
	a.close()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Expected process to be killed (non-zero exit), got nil error")
		}
	case <-time.After(2 * time.Second):
		_ = cmd.Process.Kill()
		t.Fatal("Process did not terminate after close()")
	}
}

// TestCloseLeavesProcessesWithoutInterrupt verifies a normal exit does not kill
// tracked processes.
func TestCloseLeavesProcessesWithoutInterrupt(t *testing.T) {
	a := newApp(context.Background(), config.DefaultConfig(), log.New(io.Discard, "", 0), false)

	cmd := exec.Command("sleep", "60")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		t.Fatalf("Failed to start subprocess: %v", err)
	}
	defer func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}()
	a.procs.Track(cmd)

	a.close()

	if err := cmd.Process.Signal(syscall.Signal(0)); err != nil {
		t.Errorf("Expected process to survive close(), got %v", err)
	}
}

func TestResolveRepo(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.Repositories["app"] = dir

	got, err := resolveRepo(cfg, "app")
	if err != nil || got != dir {
		t.Errorf("resolveRepo(app) = %q, %v; want %q", got, err, dir)
	}

	got, err = resolveRepo(cfg, dir)
	if err != nil || got != dir {
		t.Errorf("resolveRepo(path) = %q, %v; want %q", got, err, dir)
	}

	if _, err := resolveRepo(cfg, filepath.Join(dir, "missing")); err == nil {
		t.Error("Expected an error for a missing directory")
	}
	if _, err := resolveRepo(cfg, file); err == nil {
		t.Error("Expected an error for a file")
	}
}

// writeConfig writes a global config that records history under dir and keeps git
// away from the user's settings.
func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.History.Path = filepath.Join(dir, "history.db")
	cfg.Git.Env = []string{"GIT_CONFIG_NOSYSTEM=1", "HOME=" + dir}
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestStatusIsRecordedInHistory(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	repo := filepath.Join(dir, "repo")
	if out, err := exec.Command("git", "init", "--quiet", repo).CombinedOutput(); err != nil {
		t.Fatalf("git init: %v: %s", err, out)
	}
	if err := os.WriteFile(filepath.Join(repo, "new.txt"), []byte("x\n"), 0644); err != nil {
		t.Fatal(err)
	}
	global := writeConfig(t, dir)
	project := filepath.Join(dir, "none.json")

	out, err := run(t, "--config", global, "--project-config", project, "--repo", repo, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "?? new.txt") {
		t.Errorf("status output missing untracked file:\n%s", out)
	}

	out, err = run(t, "--config", global, "--project-config", project, "history", "list")
	if err != nil {
		t.Fatalf("history list: %v", err)
	}
	if !strings.Contains(out, "git status") || !strings.Contains(out, "completed") {
		t.Errorf("history list missing the status run:\n%s", out)
	}
}

func TestFailedCommandIsReported(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	notRepo := filepath.Join(dir, "plain")
	if err := os.Mkdir(notRepo, 0755); err != nil {
		t.Fatal(err)
	}
	global := writeConfig(t, dir)
	project := filepath.Join(dir, "none.json")

	_, err := run(t, "--config", global, "--project-config", project, "--repo", notRepo, "status")
	if err == nil || !strings.Contains(err.Error(), "not a git repository") {
		t.Fatalf("Expected a not-a-repository error, got %v", err)
	}

	out, err := run(t, "--config", global, "--project-config", project, "history", "list", "--state", "faulted")
	if err != nil {
		t.Fatalf("history list: %v", err)
	}
	if !strings.Contains(out, "git status") {
		t.Errorf("history list missing the faulted run:\n%s", out)
	}
}

func TestHistoryPruneRejectsNonPositiveAge(t *testing.T) {
	dir := t.TempDir()
	global := writeConfig(t, dir)

	_, err := run(t, "--config", global, "--project-config", filepath.Join(dir, "none.json"),
		"history", "prune", "--older-than", "0s")
	if err == nil {
		t.Fatal("Expected an error for --older-than 0s")
	}
}
