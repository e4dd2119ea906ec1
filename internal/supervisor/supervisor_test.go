package supervisor

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"pkt.systems/orderly/internal/orderlyerr"
	"pkt.systems/orderly/internal/sigrouter"
	"pkt.systems/orderly/internal/specs"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func buildSpec(t *testing.T, procs ...specs.ProcSpec) specs.SupervisorSpec {
	t.Helper()
	sb := specs.NewSupervisorSpecBuilder()
	sb.SetCheckDelaySeconds(0.02)
	for _, p := range procs {
		sb.AddProcSpec(p)
	}
	s, err := sb.Build()
	if err != nil {
		t.Fatalf("building supervisor spec: %v", err)
	}
	return s
}

func sleepyProc(t *testing.T, name string) specs.ProcSpec {
	t.Helper()
	b := specs.NewProcSpecBuilder()
	b.SetName(name)
	b.SetRun("sleep 30")
	b.SetTerminateTimeoutSeconds(2)
	p, err := b.Build()
	if err != nil {
		t.Fatalf("building proc spec: %v", err)
	}
	return p
}

func TestStartCheckKillLifecycle(t *testing.T) {
	spec := buildSpec(t, sleepyProc(t, "web"))
	s := New(spec, testLogger(), sigrouter.New())

	if err := s.startProc(0); err != nil {
		t.Fatalf("startProc: %v", err)
	}
	if !s.children[0].present() {
		t.Fatalf("expected child slot to be populated after start")
	}
	if err := s.checkProc(0); err != nil {
		t.Fatalf("checkProc on a healthy child: %v", err)
	}
	if err := s.killProc(0); err != nil {
		t.Fatalf("killProc: %v", err)
	}
	if s.children[0].present() {
		t.Fatalf("expected child slot to be cleared after kill")
	}
}

func TestCheckProcDetectsExit(t *testing.T) {
	b := specs.NewProcSpecBuilder()
	b.SetName("quick")
	b.SetRun("true")
	p, err := b.Build()
	if err != nil {
		t.Fatalf("building proc spec: %v", err)
	}
	spec := buildSpec(t, p)
	s := New(spec, testLogger(), sigrouter.New())

	if err := s.startProc(0); err != nil {
		t.Fatalf("startProc: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		exited, _ := s.tryWaitChild(0)
		if exited {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("child never exited")
		}
		time.Sleep(5 * time.Millisecond)
	}

	err = s.checkProc(0)
	if !orderlyerr.Is(err, orderlyerr.KindProcFailed) {
		t.Fatalf("expected ProcFailed once the child has exited, got %v", err)
	}
	if s.children[0].present() {
		t.Fatalf("expected checkProc to clear the slot on exit")
	}
}

func TestShutdownProcWithoutHookKills(t *testing.T) {
	spec := buildSpec(t, sleepyProc(t, "web"))
	s := New(spec, testLogger(), sigrouter.New())

	if err := s.startProc(0); err != nil {
		t.Fatalf("startProc: %v", err)
	}
	if err := s.shutdownProc(0); err != nil {
		t.Fatalf("shutdownProc: %v", err)
	}
	if s.children[0].present() {
		t.Fatalf("expected child slot cleared after shutdown")
	}
}

func TestRunGracefulShutdownExitsZero(t *testing.T) {
	dir := t.TempDir()
	statusPath := filepath.Join(dir, "status")

	sb := specs.NewSupervisorSpecBuilder()
	sb.SetCheckDelaySeconds(0.02)
	sb.SetStatusFile(statusPath)
	sb.AddProcSpec(sleepyProc(t, "web"))
	spec, err := sb.Build()
	if err != nil {
		t.Fatalf("building supervisor spec: %v", err)
	}

	events := sigrouter.New()
	s := New(spec, testLogger(), events)

	done := make(chan int, 1)
	go func() { done <- s.Run() }()

	// Give the supervisor a moment to start the child and reach RUNNING.
	deadline := time.Now().Add(2 * time.Second)
	for {
		b, err := os.ReadFile(statusPath)
		if err == nil && strings.TrimSpace(string(b)) == "RUNNING" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("supervisor never reached RUNNING")
		}
		time.Sleep(5 * time.Millisecond)
	}

	events.Inject(sigrouter.EventShutdown)

	select {
	case code := <-done:
		if code != 0 {
			t.Fatalf("expected exit code 0 on graceful shutdown, got %d", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("supervisor did not exit after shutdown signal")
	}

	if _, err := os.Stat(statusPath); !os.IsNotExist(err) {
		t.Fatalf("expected status file to be removed on exit, stat err = %v", err)
	}
}
