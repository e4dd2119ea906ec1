// Package supervisor implements spec.md §4.6 and §4.7: the per-proc
// lifecycle and the top-level supervisor loop, one-to-one with
// original_source/src/main.rs's Supervisor/supervise/supervise_forever,
// restructured into idiomatic Go typed errors instead of Rust enum
// matching.
package supervisor

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"pkt.systems/orderly/internal/killtree"
	"pkt.systems/orderly/internal/orderlyerr"
	"pkt.systems/orderly/internal/procgroup"
	"pkt.systems/orderly/internal/runner"
	"pkt.systems/orderly/internal/sigrouter"
	"pkt.systems/orderly/internal/specs"
	"pkt.systems/orderly/internal/statusfile"
	"pkt.systems/orderly/internal/tokenbucket"
)

// child is RunState's per-index slot: either empty (no child) or a spawned
// OS process with known PID. A once-observed exit is cached because the
// underlying wait4(2) can only reap a given PID once.
type child struct {
	pid      int
	exited   bool
	exitCode int
	haveExit bool // true once exited has been observed and cached
}

func (c *child) clear() { *c = child{} }
func (c *child) present() bool { return c.pid != 0 }

// Supervisor owns RunState and drives one ordered list of ProcSpec through
// its full lifecycle.
type Supervisor struct {
	spec   specs.SupervisorSpec
	log    zerolog.Logger
	events *sigrouter.Router

	children   []child
	firstStart bool
	limiter    *tokenbucket.Bucket
}

// New constructs a Supervisor ready to run spec.
func New(spec specs.SupervisorSpec, log zerolog.Logger, events *sigrouter.Router) *Supervisor {
	return &Supervisor{
		spec:       spec,
		log:        log,
		events:     events,
		children:   make([]child, len(spec.Procs)),
		firstStart: true,
		limiter:    tokenbucket.New(spec.MaxRestartTokens, spec.RestartTokensPerSecond),
	}
}

func (s *Supervisor) writeStatus(status string) error {
	if err := statusfile.Write(s.spec.StatusFile, status); err != nil {
		return orderlyerr.IOError(err)
	}
	return nil
}

// checkSignals consults the signal channel non-blockingly; Shutdown and
// Terminate abort immediately.
func (s *Supervisor) checkSignals() error {
	if ev, ok := s.events.TryRecv(); ok {
		return classifyEvent(ev)
	}
	return nil
}

func classifyEvent(ev sigrouter.Event) error {
	if ev == sigrouter.EventShutdown {
		return orderlyerr.Shutdown()
	}
	return orderlyerr.Terminated()
}

// sleep waits for d, interruptible by a signal event.
func (s *Supervisor) sleep(d time.Duration) error {
	select {
	case ev := <-s.events.Events():
		return classifyEvent(ev)
	case <-time.After(d):
		return nil
	}
}

func deadlineFrom(start time.Time, d time.Duration) time.Time {
	return killtree.DeadlineFrom(start, d)
}

// tryWaitChild performs the once-only non-blocking reap of children[idx],
// caching the result since wait4(2) cannot be repeated after a successful
// reap.
func (s *Supervisor) tryWaitChild(idx int) (exited bool, code int) {
	c := &s.children[idx]
	if !c.present() {
		return true, 0
	}
	if c.haveExit {
		return c.exited, c.exitCode
	}
	exited, code, err := procgroup.TryWait(c.pid)
	if err != nil {
		return false, 0
	}
	if exited {
		c.exited = true
		c.exitCode = code
		c.haveExit = true
	}
	return exited, code
}

func supervisorScriptEnv(action string) []string {
	return []string{"ORDERLY_ACTION=" + action}
}

func (s *Supervisor) procScriptEnv(action string, idx int) []string {
	env := supervisorScriptEnv(action)
	env = append(env, "ORDERLY_SERVICE_NAME="+s.spec.Procs[idx].Name)
	if c := &s.children[idx]; c.present() {
		env = append(env, fmt.Sprintf("ORDERLY_RUN_PID=%d", c.pid))
	}
	return env
}

// runCommand spawns and waits for command via the child runner, translating
// the empty-command case ("hook not configured") to success.
func (s *Supervisor) runCommand(command string, env []string, deadline time.Time, dependsOn runner.DependsOn) error {
	if command == "" {
		return nil
	}
	return runner.Run(s.log, s.events, command, env, deadline, dependsOn)
}

func (s *Supervisor) runCommandTimeout(command string, env []string, timeout time.Duration, dependsOn runner.DependsOn) error {
	return s.runCommand(command, env, deadlineFrom(time.Now(), timeout), dependsOn)
}

// startProc implements spec.md §4.6 start_proc(i).
func (s *Supervisor) startProc(idx int) error {
	if err := s.checkSignals(); err != nil {
		return err
	}
	p := s.spec.Procs[idx]
	s.log.Info().Str("proc", p.Name).Msg("starting")

	env := s.procScriptEnv("RUN", idx)
	cmd, err := procgroup.Spawn(p.Run, env)
	if err != nil {
		return orderlyerr.IOError(err)
	}
	s.children[idx] = child{pid: cmd.Process.Pid}

	if p.WaitStarted != "" {
		env := s.procScriptEnv("WAIT_STARTED", idx)
		dep := s.dependsOnAlive(idx)
		if err := s.runCommandTimeout(p.WaitStarted, env, p.WaitStartedTimeout, dep); err != nil {
			return err
		}
	}
	return nil
}

// dependsOnAlive returns a DependsOn predicate reporting whether
// children[idx] is still an unexited running process, per spec.md §4.4
// step 3.
func (s *Supervisor) dependsOnAlive(idx int) runner.DependsOn {
	return func() bool {
		c := &s.children[idx]
		if !c.present() {
			return false
		}
		exited, _ := s.tryWaitChild(idx)
		return !exited
	}
}

// checkProc implements spec.md §4.6 check_proc(i).
func (s *Supervisor) checkProc(idx int) error {
	if err := s.checkSignals(); err != nil {
		return err
	}
	p := s.spec.Procs[idx]
	s.log.Debug().Str("proc", p.Name).Msg("checking")

	c := &s.children[idx]
	if !c.present() {
		return orderlyerr.ProcFailed()
	}
	exited, _ := s.tryWaitChild(idx)
	if exited {
		c.clear()
		return orderlyerr.ProcFailed()
	}
	if p.Check == "" {
		return nil
	}
	env := s.procScriptEnv("CHECK", idx)
	return s.runCommandTimeout(p.Check, env, p.CheckTimeout, nil)
}

// cleanProc implements spec.md §4.6 clean_proc(i). Precondition: the slot
// must already be empty.
func (s *Supervisor) cleanProc(idx int) error {
	if err := s.checkSignals(); err != nil {
		return err
	}
	p := s.spec.Procs[idx]
	s.log.Info().Str("proc", p.Name).Msg("running cleanup")

	if s.children[idx].present() {
		panic("orderly: bug, clean_proc called with a non-empty slot")
	}
	if p.Cleanup == "" {
		return nil
	}
	env := s.procScriptEnv("CLEANUP", idx)
	return s.runCommandTimeout(p.Cleanup, env, p.CleanupTimeout, nil)
}

// killProc implements spec.md §4.6 kill_proc(i): escalating kill_tree, then
// clear the slot, then always run cleanup.
func (s *Supervisor) killProc(idx int) error {
	c := &s.children[idx]
	if c.present() {
		p := s.spec.Procs[idx]
		s.log.Info().Str("proc", p.Name).Msg("killing")
		if err := killtree.Kill(s.log, c.pid, deadlineFrom(time.Now(), p.TerminateTimeout)); err != nil {
			return err
		}
		c.clear()
	}
	return s.cleanProc(idx)
}

// shutdownProc implements spec.md §4.6 shutdown_proc(i).
func (s *Supervisor) shutdownProc(idx int) error {
	if err := s.checkSignals(); err != nil {
		return err
	}
	p := s.spec.Procs[idx]
	s.log.Info().Str("proc", p.Name).Msg("shutting down")

	if p.Shutdown == "" {
		return s.killProc(idx)
	}

	start := time.Now()
	deadline := deadlineFrom(start, p.ShutdownTimeout)
	env := s.procScriptEnv("SHUTDOWN", idx)
	if err := s.runCommand(p.Shutdown, env, deadline, nil); err != nil {
		s.log.Warn().Err(err).Str("proc", p.Name).Msg("shutdown script error")
		return s.killProc(idx)
	}

	delay := 10 * time.Millisecond
	for {
		if err := s.checkSignals(); err != nil {
			return err
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			s.log.Warn().Str("proc", p.Name).Msg("shutdown script exited, but shutdown timed out, using kill instead")
			return s.killProc(idx)
		}
		c := &s.children[idx]
		if !c.present() {
			break
		}
		exited, _ := s.tryWaitChild(idx)
		if exited {
			c.clear()
			break
		}
		if err := s.sleep(delay); err != nil {
			return err
		}
		delay += 50 * time.Millisecond
		if delay > 500*time.Millisecond {
			delay = 500 * time.Millisecond
		}
	}

	return s.cleanProc(idx)
}

func (s *Supervisor) killAllProcs() error {
	for i := len(s.children) - 1; i >= 0; i-- {
		if err := s.killProc(i); err != nil {
			return err
		}
	}
	return nil
}

func (s *Supervisor) killAllProcsIgnoreErrors() {
	for i := len(s.children) - 1; i >= 0; i-- {
		if err := s.killProc(i); err != nil {
			s.log.Warn().Err(err).Msg("error while killing proc")
		}
	}
}

func (s *Supervisor) shutdownAllProcs() error {
	for i := len(s.children) - 1; i >= 0; i-- {
		if err := s.shutdownProc(i); err != nil {
			return err
		}
	}
	return nil
}

func (s *Supervisor) restartAllProcs() error {
	s.log.Info().Msg("(re)starting all procs")
	if err := s.killAllProcs(); err != nil {
		return err
	}
	for i := range s.children {
		if err := s.startProc(i); err != nil {
			return err
		}
	}
	return nil
}

func (s *Supervisor) checkAllProcs() error {
	for i := range s.children {
		if err := s.checkProc(i); err != nil {
			return err
		}
	}
	return nil
}

// superviseCycle implements spec.md §4.7's supervise(), one full cycle from
// (re)start through either entering the steady-state check loop (which
// only returns on error) or an error return.
func (s *Supervisor) superviseCycle(numRestarts uint64) error {
	if s.firstStart {
		if err := s.writeStatus("STARTING\n"); err != nil {
			return err
		}
	}

	if !s.limiter.Take() {
		return orderlyerr.RestartLimitReached()
	}

	if numRestarts > 0 && s.spec.Restart != "" {
		if err := s.runCommandTimeout(s.spec.Restart, supervisorScriptEnv("RESTART"), s.spec.RestartTimeout, nil); err != nil {
			s.log.Error().Err(err).Msg("error running restart lifecycle hook")
		}
	}

	if err := s.restartAllProcs(); err != nil {
		return err
	}

	if s.firstStart {
		s.firstStart = false
		if err := s.writeStatus("RUNNING\n"); err != nil {
			return err
		}
		if s.spec.StartComplete != "" {
			if err := s.runCommandTimeout(s.spec.StartComplete, supervisorScriptEnv("START_COMPLETE"), s.spec.StartCompleteTimeout, nil); err != nil {
				return err
			}
		}
	}

	for {
		if err := s.checkAllProcs(); err != nil {
			return err
		}
		if err := s.sleep(s.spec.CheckDelay); err != nil {
			return err
		}
	}
}

// Run implements spec.md §4.7's supervise_forever, the outer driver that
// classifies each cycle's termination and decides whether to restart,
// shut down gracefully, or exit fatally. It returns the process exit code.
func (s *Supervisor) Run() int {
	var numRestarts uint64

	for {
		err := s.superviseCycle(numRestarts)
		oe, _ := err.(*orderlyerr.Error)
		if oe == nil {
			// Should not happen: every return path uses *orderlyerr.Error.
			oe = orderlyerr.IOError(err)
		}

		switch oe.Kind {
		case orderlyerr.KindIOError, orderlyerr.KindProcFailed:
			numRestarts++
			s.log.Warn().Err(oe).Uint64("restarts", numRestarts).Msg("supervisor encountered an error")
			continue

		case orderlyerr.KindShutdown:
			s.log.Info().Msg("supervisor shutting down gracefully")
			if err := s.shutdownAllProcs(); err != nil {
				s.log.Error().Err(err).Msg("unable to shut down child procs, killing instead")
				s.killAllProcsIgnoreErrors()
			}
			s.finalize()
			return 0

		default: // Terminated, RestartLimitReached, UnkillableChild
			s.log.Error().Err(oe).Msg("supervisor unable to continue: shutting down brutally")
			s.killAllProcsIgnoreErrors()
			if s.spec.Failure != "" {
				if err := s.runCommandTimeout(s.spec.Failure, supervisorScriptEnv("FAILURE"), s.spec.FailureTimeout, nil); err != nil {
					s.log.Error().Err(err).Msg("error running failure lifecycle hook")
				}
			}
			s.finalize()
			return 1
		}
	}
}

func (s *Supervisor) finalize() {
	if err := statusfile.Remove(s.spec.StatusFile); err != nil {
		s.log.Warn().Err(err).Msg("error removing status file")
	}
}
