package main

import (
	"testing"
	"time"
)

func TestRefusesPID1(t *testing.T) {
	if !refusesPID1(1) {
		t.Fatalf("expected pid 1 to be refused")
	}
	if refusesPID1(2) {
		t.Fatalf("expected pid 2 to be accepted")
	}
}

func TestSplitOnDashDash(t *testing.T) {
	segs := splitOnDashDash([]string{"-a", "1", "--", "-name", "web", "-run", "serve", "--", "-name", "db"})
	if len(segs) != 3 {
		t.Fatalf("expected 3 segments, got %d: %#v", len(segs), segs)
	}
	if len(segs[0]) != 2 || len(segs[1]) != 4 || len(segs[2]) != 2 {
		t.Fatalf("unexpected segment shapes: %#v", segs)
	}
}

func TestParseArgsBuildsFullSpec(t *testing.T) {
	args := []string{
		"-check-delay", "1.5",
		"-max-restart-tokens", "3",
		"-status-file", "/tmp/orderly.status",
		"--",
		"-name", "web",
		"-run", "serve --port 8080",
		"-wait-started", "curl -f localhost:8080/health",
		"-terminate-timeout", "2",
		"--",
		"-name", "db",
		"-run", "postgres",
	}
	spec, err := parseArgs(args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spec.CheckDelay != 1500*time.Millisecond {
		t.Fatalf("expected check delay 1.5s, got %v", spec.CheckDelay)
	}
	if spec.MaxRestartTokens != 3 {
		t.Fatalf("expected max restart tokens 3, got %v", spec.MaxRestartTokens)
	}
	if spec.StatusFile != "/tmp/orderly.status" {
		t.Fatalf("unexpected status file: %q", spec.StatusFile)
	}
	if len(spec.Procs) != 2 {
		t.Fatalf("expected 2 procs, got %d", len(spec.Procs))
	}
	if spec.Procs[0].Name != "web" || spec.Procs[0].Run != "serve --port 8080" {
		t.Fatalf("unexpected first proc: %+v", spec.Procs[0])
	}
	if spec.Procs[0].TerminateTimeout != 2*time.Second {
		t.Fatalf("expected terminate timeout 2s, got %v", spec.Procs[0].TerminateTimeout)
	}
	if spec.Procs[1].Name != "db" || spec.Procs[1].Run != "postgres" {
		t.Fatalf("unexpected second proc: %+v", spec.Procs[1])
	}
}

func TestParseArgsRequiresAtLeastOneProc(t *testing.T) {
	if _, err := parseArgs([]string{"-check-delay", "1"}); err == nil {
		t.Fatalf("expected error when no `--`-separated proc spec is present")
	}
}

func TestParseArgsRejectsUnknownFlag(t *testing.T) {
	args := []string{"--", "-name", "web", "-run", "serve", "-bogus", "1"}
	if _, err := parseArgs(args); err == nil {
		t.Fatalf("expected error for unrecognized proc flag")
	}
}

func TestParseArgsMissingFlagValue(t *testing.T) {
	args := []string{"--", "-name", "web", "-run"}
	if _, err := parseArgs(args); err == nil {
		t.Fatalf("expected error when a flag is missing its value")
	}
}

func TestRunPrintsVersionAndExitsZero(t *testing.T) {
	if code := run([]string{"-version"}, 2); code != 0 {
		t.Fatalf("expected exit 0 for -version, got %d", code)
	}
}

func TestRunRefusesPID1BeforeParsing(t *testing.T) {
	if code := run([]string{"-bogus"}, 1); code != 1 {
		t.Fatalf("expected exit 1 when running as pid 1, got %d", code)
	}
}
