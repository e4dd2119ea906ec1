// Package runner spawns a single command as its own process group and
// drives it to completion, honoring a cancellation channel, an optional
// absolute deadline, and an optional dependency predicate. It generalizes
// the teacher's reapUntilChildExit poll loop (pkt.systems/psi) from "wait
// for one known child forever" into spec.md §4.4's bounded, cancellable,
// dependency-aware wait.
package runner

import (
	"time"

	"github.com/rs/zerolog"

	"pkt.systems/orderly/internal/killtree"
	"pkt.systems/orderly/internal/orderlyerr"
	"pkt.systems/orderly/internal/procgroup"
	"pkt.systems/orderly/internal/sigrouter"
)

const (
	initialDelay = 10 * time.Millisecond
	delayStep    = 50 * time.Millisecond
	maxDelay     = 500 * time.Millisecond

	dependencyKillGrace = 10 * time.Second
)

// DependsOn, when non-nil, is polled each loop iteration; it must return
// true iff the depended-upon proc is still an unexited running process.
type DependsOn func() bool

// Run spawns command with env and waits for it to exit, per spec.md §4.4.
// deadline is the zero Time for "no deadline". Returns nil on exit code 0,
// *orderlyerr.Error(ProcFailed) on nonzero exit/timeout/dependency failure,
// or Shutdown/Terminated if a cancellation event arrives.
func Run(log zerolog.Logger, events *sigrouter.Router, command string, env []string, deadline time.Time, dependsOn DependsOn) error {
	cmd, err := procgroup.Spawn(command, env)
	if err != nil {
		return orderlyerr.IOError(err)
	}
	pid := cmd.Process.Pid

	delay := initialDelay
	for {
		if ev, ok := events.TryRecv(); ok {
			killtree.Kill(log, pid, killtree.DeadlineFrom(time.Now(), dependencyKillGrace))
			if ev == sigrouter.EventShutdown {
				return orderlyerr.Shutdown()
			}
			return orderlyerr.Terminated()
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			if err := killtree.Kill(log, pid, killtree.DeadlineFrom(time.Now(), dependencyKillGrace)); err != nil {
				return err
			}
			return orderlyerr.ProcFailed()
		}

		if dependsOn != nil && !dependsOn() {
			if err := killtree.Kill(log, pid, killtree.DeadlineFrom(time.Now(), dependencyKillGrace)); err != nil {
				return err
			}
			return orderlyerr.ProcFailed()
		}

		exited, code, err := procgroup.TryWait(pid)
		if err != nil {
			return orderlyerr.IOError(err)
		}
		if exited {
			if code == 0 {
				return nil
			}
			return orderlyerr.ProcFailed()
		}

		if !sleepInterruptible(events, delay) {
			// Woken by a signal event; loop back around to handle it.
			continue
		}
		delay += delayStep
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

// sleepInterruptible sleeps for d unless a signal event arrives first, in
// which case it returns false immediately so the caller re-checks events.
func sleepInterruptible(events *sigrouter.Router, d time.Duration) bool {
	select {
	case ev := <-events.Events():
		events.Inject(ev)
		return false
	case <-time.After(d):
		return true
	}
}
