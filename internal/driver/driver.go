// Package driver implements the Subprocess Driver (C5): it spawns a
// child in its own process group, enforces a max-time deadline and an
// inactivity deadline concurrently, and reaps the whole process group
// on any deadline fire or external cancel, generalizing the teacher's
// internal/agent/script Execution (which only killed the single process,
// not its group) to the process-group kill the spec requires.
package driver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/forge-mcp/forge/internal/adapter"
	"github.com/forge-mcp/forge/internal/constants"
)

// Outcome tags how a run concluded.
type Outcome string

const (
	OutcomeExited            Outcome = "exited"
	OutcomeMaxTimeout        Outcome = "max_timeout"
	OutcomeInactivityTimeout Outcome = "inactivity_timeout"
	OutcomeCancelled         Outcome = "cancelled"
	OutcomeSpawnFailed       Outcome = "spawn_failed"
)

// Deadlines bounds a single run.
type Deadlines struct {
	MaxSec        int
	InactivitySec int
}

// RunResult is a Driver.Run's full outcome.
type RunResult struct {
	Stdout        string
	Stderr        string
	ExitCode      int
	Outcome       Outcome
	SpawnErr      error
	DrainTimedOut bool
}

// Driver holds no per-run state: each Run owns its own pipes and
// deadline goroutines, so one Driver value serves every invocation of
// the Orchestrator that holds it.
type Driver struct {
	logger zerolog.Logger
}

// New returns a Driver that logs under the "driver" component.
func New(logger zerolog.Logger) *Driver {
	return &Driver{logger: logger.With().Str("component", "driver").Logger()}
}

// Run spawns command, enforces deadlines, and returns once the child
// has exited (or been killed) and its streams have been drained.
func (d *Driver) Run(ctx context.Context, command adapter.CommandSpec, deadlines Deadlines) RunResult {
	cmd := exec.Command(command.Argv[0], command.Argv[1:]...)
	cmd.Dir = command.Cwd
	if len(command.Env) > 0 {
		cmd.Env = command.Env
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if len(command.StdinBytes) > 0 {
		cmd.Stdin = bytes.NewReader(command.StdinBytes)
	}

	var stdout, stderr synchronizedBuffer
	// Plain os.Pipe pairs rather than cmd.StdoutPipe: cmd.Wait closes the
	// read end of a StdoutPipe as soon as the child exits, which would cut
	// the concurrent drain short and drop output not yet read.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return RunResult{Outcome: OutcomeSpawnFailed, SpawnErr: fmt.Errorf("stdout pipe: %w", err)}
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		_, _ = stdoutR.Close(), stdoutW.Close()
		return RunResult{Outcome: OutcomeSpawnFailed, SpawnErr: fmt.Errorf("stderr pipe: %w", err)}
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	activity := newActivityTracker()

	err = cmd.Start()
	// The child holds its own copies of the write ends; once ours are
	// closed, the read ends reach EOF when every holder has exited.
	_, _ = stdoutW.Close(), stderrW.Close()
	if err != nil {
		_, _ = stdoutR.Close(), stderrR.Close()
		return RunResult{Outcome: OutcomeSpawnFailed, SpawnErr: fmt.Errorf("spawn: %w", err)}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go drainInto(&wg, stdoutR, &stdout, activity)
	go drainInto(&wg, stderrR, &stderr, activity)

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	outcome, waitErr := d.superviseDeadlines(ctx, cmd, deadlines, activity, waitDone)

	drainTimedOut := !waitForDrain(&wg, constants.DrainGrace)
	if drainTimedOut {
		d.logger.Warn().Dur("grace", constants.DrainGrace).Msg("stdout/stderr did not reach EOF within drain grace; returning with buffered output captured so far")
	}
	_, _ = stdoutR.Close(), stderrR.Close()

	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	_ = waitErr

	return RunResult{
		Stdout:        stdout.String(),
		Stderr:        stderr.String(),
		ExitCode:      exitCode,
		Outcome:       outcome,
		DrainTimedOut: drainTimedOut,
	}
}

// waitForDrain waits for both drainInto goroutines to finish (streams
// reaching EOF), bounded by grace, per §4.5 item 5: the post-exit drain
// phase must not hang forever on a child that double-forked a
// background grandchild still holding the inherited stdout/stderr fds
// open. Returns false if grace elapsed first; Run then closes the read
// ends, which ends the goroutines.
func waitForDrain(wg *sync.WaitGroup, grace time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(grace):
		return false
	}
}

// superviseDeadlines races max-time, inactivity, external cancel, and
// natural exit, killing the child's process group on whichever deadline
// fires first.
func (d *Driver) superviseDeadlines(ctx context.Context, cmd *exec.Cmd, deadlines Deadlines, activity *activityTracker, waitDone <-chan error) (Outcome, error) {
	maxSec := deadlines.MaxSec
	if maxSec <= 0 {
		maxSec = int(constants.DefaultMaxTimeout(constants.TaskQuick).Seconds())
	}
	inactivitySec := deadlines.InactivitySec
	if inactivitySec <= 0 {
		inactivitySec = int(constants.DefaultInactivityTimeout(constants.TaskQuick).Seconds())
	}

	maxTimer := time.NewTimer(time.Duration(maxSec) * time.Second)
	defer maxTimer.Stop()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	warned := false

	for {
		select {
		case err := <-waitDone:
			return OutcomeExited, err

		case <-ctx.Done():
			d.killGroup(cmd)
			<-waitDone
			return OutcomeCancelled, ctx.Err()

		case <-maxTimer.C:
			d.killGroup(cmd)
			<-waitDone
			return OutcomeMaxTimeout, nil

		case <-ticker.C:
			idle := time.Since(activity.last())
			if idle >= time.Duration(inactivitySec)*time.Second {
				d.killGroup(cmd)
				<-waitDone
				return OutcomeInactivityTimeout, nil
			}
			if !warned && idle >= constants.SilenceWarning {
				warned = true
				d.logger.Warn().Dur("idle", idle).Msg("child has produced no output recently")
			}
		}
	}
}

// killGroup sends SIGTERM to the child's process group, then SIGKILL
// after constants.KillGrace, so the entire subtree is reaped rather
// than just the immediate child.
func (d *Driver) killGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pgid := cmd.Process.Pid
	if err := syscall.Kill(-pgid, syscall.SIGTERM); err != nil {
		d.logger.Debug().Err(err).Msg("SIGTERM to process group failed")
	}

	done := make(chan struct{})
	go func() {
		for {
			if err := syscall.Kill(-pgid, 0); err != nil {
				close(done)
				return
			}
			time.Sleep(100 * time.Millisecond)
		}
	}()

	select {
	case <-done:
	case <-time.After(constants.KillGrace):
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
	}
}

// synchronizedBuffer is a bytes.Buffer safe for one writer goroutine and
// one reader (String()) after the writer finishes, guarded by a mutex
// since the reader can race the final write during the drain phase.
type synchronizedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *synchronizedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *synchronizedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// activityTracker records the wall-clock time of the most recent byte
// observed on either stream.
type activityTracker struct {
	mu        sync.Mutex
	lastBytes time.Time
}

func newActivityTracker() *activityTracker {
	return &activityTracker{lastBytes: time.Now()}
}

func (a *activityTracker) touch() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastBytes = time.Now()
}

func (a *activityTracker) last() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastBytes
}

// drainInto copies pipe into both the buffer and the activity tracker,
// a byte at a time's worth of chunking via a fixed-size read buffer,
// until the pipe reaches EOF (natural exit or the process group being
// killed out from under it).
func drainInto(wg *sync.WaitGroup, pipe io.ReadCloser, out *synchronizedBuffer, activity *activityTracker) {
	defer wg.Done()
	buf := make([]byte, 32*1024)
	for {
		n, err := pipe.Read(buf)
		if n > 0 {
			out.Write(buf[:n])
			activity.touch()
		}
		if err != nil {
			return
		}
	}
}
