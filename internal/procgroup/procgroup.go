// Package procgroup spawns commands as their own process-group leader and
// provides group-wide signaling and non-blocking reap, the single most
// important correctness property in the whole supervisor (spec.md §9):
// killing only the immediate child leaks grandchildren.
package procgroup

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// Spawn runs the given shell command line as the leader of a new process
// group (it stays in the parent's session). stdin is redirected to an empty source; stdout/stderr are
// inherited from the parent. env is appended to the parent's environment.
func Spawn(command string, env []string) (*exec.Cmd, error) {
	cmd := exec.Command("/bin/sh", "-c", command)
	cmd.Stdin = nil
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), env...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		// Setpgid + Pgid:0 makes the child its own process-group leader,
		// equivalent to setpgid(0,0) in the post-fork/pre-exec window.
		Setpgid: true,
		Pgid:    0,
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}

// Signal sends sig to the entire process group led by pid (the negative-PID
// kill(2) convention).
func Signal(pid int, sig syscall.Signal) error {
	return unix.Kill(-pid, sig)
}

// TryWait performs a non-blocking reap of pid. exited reports whether the
// process has terminated; when exited is true, code is its normalized exit
// status (signal deaths report 128+signal, matching shell convention).
func TryWait(pid int) (exited bool, code int, err error) {
	var ws unix.WaitStatus
	got, err := unix.Wait4(pid, &ws, unix.WNOHANG, nil)
	if err != nil {
		if err == unix.ECHILD {
			// Already reaped elsewhere (or never ours): treat as exited.
			return true, 0, nil
		}
		return false, 0, err
	}
	if got == 0 {
		return false, 0, nil
	}
	switch {
	case ws.Exited():
		return true, ws.ExitStatus(), nil
	case ws.Signaled():
		return true, 128 + int(ws.Signal()), nil
	default:
		return false, 0, nil
	}
}

// Alive reports whether pid still exists, via a signal-0 probe.
func Alive(pid int) bool {
	return unix.Kill(pid, 0) == nil
}
