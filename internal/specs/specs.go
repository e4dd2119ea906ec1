// Package specs is the immutable declarative configuration consumed by the
// supervisor, a direct idiomatic-Go port of original_source/src/specs.rs's
// builder pattern (constructor + setters + Build() (T, error)).
package specs

import (
	"fmt"
	"time"
)

const (
	defaultHookTimeout      = 60 * time.Second
	defaultTerminateTimeout = 10 * time.Second
	defaultCheckDelay       = 5 * time.Second
	defaultRestartRate      = 0.1
	defaultMaxRestartTokens = 5.0
)

// ProcSpec is one managed process's immutable declaration.
type ProcSpec struct {
	Name    string
	Run     string
	Check   string
	Cleanup string

	WaitStarted string
	Shutdown    string

	WaitStartedTimeout time.Duration
	CheckTimeout       time.Duration
	ShutdownTimeout    time.Duration
	CleanupTimeout     time.Duration
	TerminateTimeout   time.Duration
}

// ProcSpecBuilder accumulates fields for one ProcSpec before Build.
type ProcSpecBuilder struct {
	name, run                             string
	check, cleanup, waitStarted, shutdown string
	waitStartedTimeout, checkTimeout      time.Duration
	shutdownTimeout, cleanupTimeout       time.Duration
	terminateTimeout                      time.Duration
}

// NewProcSpecBuilder returns a builder seeded with spec.md §3's defaults:
// all hook timeouts 60s, terminate_timeout 10s.
func NewProcSpecBuilder() *ProcSpecBuilder {
	return &ProcSpecBuilder{
		waitStartedTimeout: defaultHookTimeout,
		checkTimeout:       defaultHookTimeout,
		shutdownTimeout:    defaultHookTimeout,
		cleanupTimeout:     defaultHookTimeout,
		terminateTimeout:   defaultTerminateTimeout,
	}
}

func (b *ProcSpecBuilder) SetName(v string) { b.name = v }
func (b *ProcSpecBuilder) SetRun(v string)  { b.run = v }

func (b *ProcSpecBuilder) SetCheck(v string)       { b.check = v }
func (b *ProcSpecBuilder) SetCleanup(v string)     { b.cleanup = v }
func (b *ProcSpecBuilder) SetWaitStarted(v string) { b.waitStarted = v }
func (b *ProcSpecBuilder) SetShutdown(v string)    { b.shutdown = v }

// SetAllCommands sets run, check, wait_started, shutdown, and cleanup to
// the same command string, per the -all-commands per-proc flag.
func (b *ProcSpecBuilder) SetAllCommands(v string) {
	b.SetRun(v)
	b.SetCheck(v)
	b.SetWaitStarted(v)
	b.SetShutdown(v)
	b.SetCleanup(v)
}

// durationFromSeconds applies spec.md's "non-positive means no timeout"
// rule for a value supplied in seconds (as the CLI flags are).
func durationFromSeconds(secs float64) time.Duration {
	if secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

func (b *ProcSpecBuilder) SetWaitStartedTimeoutSeconds(secs float64) {
	b.waitStartedTimeout = durationFromSeconds(secs)
}
func (b *ProcSpecBuilder) SetCheckTimeoutSeconds(secs float64) {
	b.checkTimeout = durationFromSeconds(secs)
}
func (b *ProcSpecBuilder) SetShutdownTimeoutSeconds(secs float64) {
	b.shutdownTimeout = durationFromSeconds(secs)
}
func (b *ProcSpecBuilder) SetCleanupTimeoutSeconds(secs float64) {
	b.cleanupTimeout = durationFromSeconds(secs)
}
func (b *ProcSpecBuilder) SetTerminateTimeoutSeconds(secs float64) {
	b.terminateTimeout = durationFromSeconds(secs)
}

// Build validates required fields (name, run) and returns the immutable
// ProcSpec.
func (b *ProcSpecBuilder) Build() (ProcSpec, error) {
	if b.name == "" {
		return ProcSpec{}, fmt.Errorf("proc spec missing field %q", "name")
	}
	if b.run == "" {
		return ProcSpec{}, fmt.Errorf("proc spec missing field %q", "run")
	}
	return ProcSpec{
		Name:               b.name,
		Run:                b.run,
		Check:              b.check,
		Cleanup:            b.cleanup,
		WaitStarted:        b.waitStarted,
		Shutdown:           b.shutdown,
		WaitStartedTimeout: b.waitStartedTimeout,
		CheckTimeout:       b.checkTimeout,
		ShutdownTimeout:    b.shutdownTimeout,
		CleanupTimeout:     b.cleanupTimeout,
		TerminateTimeout:   b.terminateTimeout,
	}, nil
}

// SupervisorSpec is the whole supervisor's immutable declaration.
type SupervisorSpec struct {
	Procs      []ProcSpec
	StatusFile string

	CheckDelay             time.Duration
	RestartTokensPerSecond float64
	MaxRestartTokens       float64

	StartComplete        string
	StartCompleteTimeout time.Duration
	Restart              string
	RestartTimeout       time.Duration
	Failure              string
	FailureTimeout       time.Duration
}

// SupervisorSpecBuilder accumulates fields for the SupervisorSpec.
type SupervisorSpecBuilder struct {
	statusFile             string
	restartTokensPerSecond float64
	maxRestartTokens       float64
	checkDelay             time.Duration

	startComplete, restart, failure             string
	startCompleteTimeout, restartTimeout, failureTimeout time.Duration

	procs []ProcSpec
}

// NewSupervisorSpecBuilder returns a builder seeded with spec.md §3's
// defaults: check_delay 5s, restart_tokens_per_second 0.1, max_restart_tokens 5.0.
func NewSupervisorSpecBuilder() *SupervisorSpecBuilder {
	return &SupervisorSpecBuilder{
		restartTokensPerSecond: defaultRestartRate,
		maxRestartTokens:       defaultMaxRestartTokens,
		checkDelay:             defaultCheckDelay,
	}
}

func (b *SupervisorSpecBuilder) SetRestartTokensPerSecond(v float64) { b.restartTokensPerSecond = v }
func (b *SupervisorSpecBuilder) SetMaxRestartTokens(v float64)       { b.maxRestartTokens = v }
func (b *SupervisorSpecBuilder) SetCheckDelaySeconds(secs float64) {
	b.checkDelay = time.Duration(secs * float64(time.Second))
}
func (b *SupervisorSpecBuilder) SetStatusFile(v string) { b.statusFile = v }

func (b *SupervisorSpecBuilder) SetStartComplete(v string) { b.startComplete = v }
func (b *SupervisorSpecBuilder) SetStartCompleteTimeoutSeconds(secs float64) {
	b.startCompleteTimeout = durationFromSeconds(secs)
}
func (b *SupervisorSpecBuilder) SetRestart(v string) { b.restart = v }
func (b *SupervisorSpecBuilder) SetRestartTimeoutSeconds(secs float64) {
	b.restartTimeout = durationFromSeconds(secs)
}
func (b *SupervisorSpecBuilder) SetFailure(v string) { b.failure = v }
func (b *SupervisorSpecBuilder) SetFailureTimeoutSeconds(secs float64) {
	b.failureTimeout = durationFromSeconds(secs)
}

// SetAllCommands sets start_complete, restart, and failure to the same
// command string, per the -all-commands supervisor-level flag.
func (b *SupervisorSpecBuilder) SetAllCommands(v string) {
	b.SetStartComplete(v)
	b.SetRestart(v)
	b.SetFailure(v)
}

func (b *SupervisorSpecBuilder) AddProcSpec(p ProcSpec) { b.procs = append(b.procs, p) }

// Build validates that at least one proc spec was added and returns the
// immutable SupervisorSpec.
func (b *SupervisorSpecBuilder) Build() (SupervisorSpec, error) {
	if len(b.procs) == 0 {
		return SupervisorSpec{}, fmt.Errorf("supervisor spec missing field %q", "procs")
	}
	return SupervisorSpec{
		Procs:                  b.procs,
		StatusFile:             b.statusFile,
		CheckDelay:             b.checkDelay,
		RestartTokensPerSecond: b.restartTokensPerSecond,
		MaxRestartTokens:       b.maxRestartTokens,
		StartComplete:          b.startComplete,
		StartCompleteTimeout:   b.startCompleteTimeout,
		Restart:                b.restart,
		RestartTimeout:         b.restartTimeout,
		Failure:                b.failure,
		FailureTimeout:         b.failureTimeout,
	}, nil
}
