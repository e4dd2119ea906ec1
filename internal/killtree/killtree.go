// Package killtree implements escalating SIGTERM->SIGKILL termination of a
// child's whole process group, generalizing the teacher's single-child kill
// timer (pkt.systems/psi's startKillTimer/killTimerC machinery in
// runAsInit) into a blocking, deadline-driven routine usable per managed
// proc rather than once for the whole program.
package killtree

import (
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"pkt.systems/orderly/internal/orderlyerr"
	"pkt.systems/orderly/internal/procgroup"
)

const (
	pollInterval    = 10 * time.Millisecond
	sigkillPollIter = 1000
)

// Kill sends SIGTERM to pid's process group, polls for exit until deadline
// (zero deadline means "no limit": it keeps waiting for the SIGTERM to take
// effect and never escalates on time alone), then SIGKILLs and polls for up
// to 10s. Returns *orderlyerr.Error(UnkillableChild)
// if the child survives SIGKILL.
func Kill(log zerolog.Logger, pid int, deadline time.Time) error {
	if err := procgroup.Signal(pid, syscall.SIGTERM); err != nil {
		log.Warn().Err(err).Int("pid", pid).Msg("sending SIGTERM to process group failed")
	}

	for {
		exited, _, err := procgroup.TryWait(pid)
		if err != nil {
			break // go straight to kill
		}
		if exited {
			return nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			break
		}
		time.Sleep(pollInterval)
	}

	log.Warn().Int("pid", pid).Msg("child did not respond to SIGTERM, trying SIGKILL")
	if err := procgroup.Signal(pid, syscall.SIGKILL); err != nil {
		log.Warn().Err(err).Int("pid", pid).Msg("killing process group failed")
	}

	for i := 0; i < sigkillPollIter; i++ {
		exited, _, err := procgroup.TryWait(pid)
		if err == nil && exited {
			return nil
		}
		time.Sleep(pollInterval)
	}

	return orderlyerr.UnkillableChild()
}

// DeadlineFrom returns the zero Time when d <= 0 (no timeout), or start+d.
func DeadlineFrom(start time.Time, d time.Duration) time.Time {
	if d <= 0 {
		return time.Time{}
	}
	return start.Add(d)
}
