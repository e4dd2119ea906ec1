// Command orderly is a small init-like process supervisor: it starts,
// health-checks, restarts, and orderly-shuts-down an ordered list of child
// processes declared on its own command line.
package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"pkt.systems/orderly/internal/orderlylog"
	"pkt.systems/orderly/internal/sigrouter"
	"pkt.systems/orderly/internal/specs"
	"pkt.systems/orderly/internal/supervisor"
)

const version = "0.1.0"

func main() {
	os.Exit(run(os.Args[1:], os.Getpid()))
}

// run is the pure(ish) entry point kept separate from main so tests can
// drive it with a synthetic pid and argv.
func run(args []string, pid int) int {
	if refusesPID1(pid) {
		fmt.Fprintln(os.Stderr, "orderly: refusing to run as PID 1 (would subvert child reaping)")
		return 1
	}

	for _, a := range args {
		switch a {
		case "-h", "-help", "--help":
			printUsage(os.Stdout)
			return 0
		case "-version", "--version":
			fmt.Fprintf(os.Stdout, "orderly %s\n", version)
			return 0
		}
	}

	spec, err := parseArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "orderly: %v\n", err)
		return 1
	}

	log := orderlylog.New(os.Stderr)
	events := sigrouter.New()
	sup := supervisor.New(spec, log, events)
	return sup.Run()
}

// refusesPID1 reports whether the supervisor should refuse to start. Being
// PID 1 subverts the wait4 reaping this supervisor relies on: a typical
// container init environment reparents orphans to PID 1 and expects it to
// reap them, which is not this program's job.
func refusesPID1(pid int) bool { return pid == 1 }

// parseArgs implements the two-phase CLI grammar: a supervisor-options
// phase, then one or more proc-spec phases, all separated by bare "--"
// tokens.
func parseArgs(args []string) (specs.SupervisorSpec, error) {
	segments := splitOnDashDash(args)
	if len(segments) < 2 {
		return specs.SupervisorSpec{}, fmt.Errorf("need at least one proc spec, separated from supervisor options by `--`")
	}

	sb := specs.NewSupervisorSpecBuilder()
	if err := parseSupervisorFlags(segments[0], sb); err != nil {
		return specs.SupervisorSpec{}, err
	}

	sawProc := false
	for _, seg := range segments[1:] {
		if len(seg) == 0 {
			continue // tolerate a trailing "--" with nothing after it
		}
		pb := specs.NewProcSpecBuilder()
		if err := parseProcFlags(seg, pb); err != nil {
			return specs.SupervisorSpec{}, err
		}
		p, err := pb.Build()
		if err != nil {
			return specs.SupervisorSpec{}, err
		}
		sb.AddProcSpec(p)
		sawProc = true
	}
	if !sawProc {
		return specs.SupervisorSpec{}, fmt.Errorf("need at least one proc spec, separated from supervisor options by `--`")
	}

	return sb.Build()
}

// splitOnDashDash splits args into segments at each literal "--" token,
// always returning at least one segment (possibly empty).
func splitOnDashDash(args []string) [][]string {
	var segs [][]string
	cur := []string{}
	for _, a := range args {
		if a == "--" {
			segs = append(segs, cur)
			cur = []string{}
			continue
		}
		cur = append(cur, a)
	}
	return append(segs, cur)
}

// nextValue returns the value following the flag at tokens[i] and the
// number of tokens consumed (2: flag + value).
func nextValue(tokens []string, i int) (string, int, error) {
	if i+1 >= len(tokens) {
		return "", 0, fmt.Errorf("flag %q requires a value", tokens[i])
	}
	return tokens[i+1], 2, nil
}

func parseFloatFlag(flag, val string) (float64, error) {
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("flag %q: invalid number %q", flag, val)
	}
	return f, nil
}

func parseSupervisorFlags(tokens []string, sb *specs.SupervisorSpecBuilder) error {
	for i := 0; i < len(tokens); {
		flag := tokens[i]
		val, n, err := nextValue(tokens, i)
		if err != nil {
			return err
		}
		switch flag {
		case "-restart-tokens-per-second":
			f, err := parseFloatFlag(flag, val)
			if err != nil {
				return err
			}
			sb.SetRestartTokensPerSecond(f)
		case "-max-restart-tokens":
			f, err := parseFloatFlag(flag, val)
			if err != nil {
				return err
			}
			sb.SetMaxRestartTokens(f)
		case "-check-delay":
			f, err := parseFloatFlag(flag, val)
			if err != nil {
				return err
			}
			sb.SetCheckDelaySeconds(f)
		case "-status-file":
			sb.SetStatusFile(val)
		case "-start-complete":
			sb.SetStartComplete(val)
		case "-start-complete-timeout":
			f, err := parseFloatFlag(flag, val)
			if err != nil {
				return err
			}
			sb.SetStartCompleteTimeoutSeconds(f)
		case "-on-restart":
			sb.SetRestart(val)
		case "-on-restart-timeout":
			f, err := parseFloatFlag(flag, val)
			if err != nil {
				return err
			}
			sb.SetRestartTimeoutSeconds(f)
		case "-on-failure":
			sb.SetFailure(val)
		case "-on-failure-timeout":
			f, err := parseFloatFlag(flag, val)
			if err != nil {
				return err
			}
			sb.SetFailureTimeoutSeconds(f)
		case "-all-commands":
			sb.SetAllCommands(val)
		default:
			return fmt.Errorf("unrecognized supervisor flag %q", flag)
		}
		i += n
	}
	return nil
}

func parseProcFlags(tokens []string, pb *specs.ProcSpecBuilder) error {
	for i := 0; i < len(tokens); {
		flag := tokens[i]
		val, n, err := nextValue(tokens, i)
		if err != nil {
			return err
		}
		switch flag {
		case "-name":
			pb.SetName(val)
		case "-run":
			pb.SetRun(val)
		case "-check":
			pb.SetCheck(val)
		case "-check-timeout":
			f, err := parseFloatFlag(flag, val)
			if err != nil {
				return err
			}
			pb.SetCheckTimeoutSeconds(f)
		case "-wait-started":
			pb.SetWaitStarted(val)
		case "-wait-started-timeout":
			f, err := parseFloatFlag(flag, val)
			if err != nil {
				return err
			}
			pb.SetWaitStartedTimeoutSeconds(f)
		case "-cleanup":
			pb.SetCleanup(val)
		case "-cleanup-timeout":
			f, err := parseFloatFlag(flag, val)
			if err != nil {
				return err
			}
			pb.SetCleanupTimeoutSeconds(f)
		case "-shutdown":
			pb.SetShutdown(val)
		case "-shutdown-timeout":
			f, err := parseFloatFlag(flag, val)
			if err != nil {
				return err
			}
			pb.SetShutdownTimeoutSeconds(f)
		case "-terminate-timeout":
			f, err := parseFloatFlag(flag, val)
			if err != nil {
				return err
			}
			pb.SetTerminateTimeoutSeconds(f)
		case "-all-commands":
			pb.SetAllCommands(val)
		default:
			return fmt.Errorf("unrecognized proc flag %q", flag)
		}
		i += n
	}
	return nil
}

const usageText = `orderly - a small init-like process supervisor

Usage:
  orderly [supervisor-flags] -- -name <str> -run <cmd> [proc-flags] [-- -name <str> -run <cmd> [proc-flags] ...]

Supervisor flags:
  -restart-tokens-per-second <float>   restart rate limiter refill rate (default 0.1)
  -max-restart-tokens <float>          restart rate limiter capacity (default 5.0)
  -check-delay <seconds>               delay between health-check rounds (default 5)
  -status-file <path>                  write STARTING/RUNNING lifecycle state here
  -start-complete <cmd>                hook run once after the first successful start
  -start-complete-timeout <seconds>
  -on-restart <cmd>                    hook run before every restart cycle after the first
  -on-restart-timeout <seconds>
  -on-failure <cmd>                    hook run once before a fatal exit
  -on-failure-timeout <seconds>
  -all-commands <cmd>                  sets start-complete, on-restart, and on-failure at once

Proc flags (one block per "--"-separated section):
  -name <str>              required, used in logs and ORDERLY_SERVICE_NAME
  -run <cmd>                required
  -check <cmd>
  -check-timeout <seconds>
  -wait-started <cmd>
  -wait-started-timeout <seconds>
  -shutdown <cmd>
  -shutdown-timeout <seconds>
  -cleanup <cmd>
  -cleanup-timeout <seconds>
  -terminate-timeout <seconds>
  -all-commands <cmd>       sets run, check, wait-started, shutdown, and cleanup at once

  -h, -help, --help          print this message and exit 0
  -version, --version        print version and exit 0
`

func printUsage(w io.Writer) {
	width := usageWidth()
	for _, line := range strings.Split(usageText, "\n") {
		if width > 0 && len(line) > width {
			fmt.Fprintln(w, line[:width])
			continue
		}
		fmt.Fprintln(w, line)
	}
}

// usageWidth returns the terminal width when stdout is a terminal, or 0
// (meaning "don't wrap") otherwise.
func usageWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 0
	}
	w, _, err := term.GetSize(fd)
	if err != nil || w <= 0 {
		return 0
	}
	return w
}
