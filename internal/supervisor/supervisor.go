// Package supervisor implements the Daemon Supervisor (C9): per-role
// singleton enforcement backed by a PID file, port-ownership
// verification via gopsutil (the same package the teacher's
// internal/agent/collector reaches for host introspection), and
// detached spawn/health-check/stop for each of the five daemon roles.
package supervisor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	gopsnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/forge-mcp/forge/internal/constants"
	"github.com/forge-mcp/forge/internal/xdgpaths"
)

// Status is status(R)'s return value.
type Status struct {
	Running bool
	PID     int
	Port    int
	URL     string
}

// ErrStartFailed is returned when a spawned daemon fails its health
// check within the window.
var ErrStartFailed = errors.New("supervisor: daemon did not bind its port in time")

// Supervisor manages the five daemon roles' lifecycle.
type Supervisor struct {
	logger zerolog.Logger
}

// New returns a Supervisor.
func New(logger zerolog.Logger) *Supervisor {
	return &Supervisor{logger: logger.With().Str("component", "supervisor").Logger()}
}

// Status reads the PID file, verifies the PID is alive, and verifies
// the role's TCP port is bound by that same PID.
func (s *Supervisor) Status(role constants.Role, port int) (Status, error) {
	pid, ok, err := readPIDFile(role)
	if err != nil {
		return Status{}, err
	}
	if !ok {
		return Status{}, nil
	}

	alive, err := pidAlive(pid)
	if err != nil {
		return Status{}, fmt.Errorf("check pid alive: %w", err)
	}
	if !alive {
		return Status{}, nil
	}

	boundPID, err := pidOwningPort(port)
	if err != nil {
		return Status{}, fmt.Errorf("check port ownership: %w", err)
	}
	if boundPID != pid {
		return Status{}, nil
	}

	return Status{Running: true, PID: pid, Port: port, URL: fmt.Sprintf("http://127.0.0.1:%d", port)}, nil
}

// Start enforces the singleton guarantee, reclaims a stale prior
// incarnation bound to the role's port, spawns the daemon detached, and
// health-checks it within constants.HealthCheckWindow.
func (s *Supervisor) Start(role constants.Role, port int, argv []string) (Status, error) {
	current, err := s.Status(role, port)
	if err != nil {
		return Status{}, err
	}
	if current.Running {
		return current, nil
	}

	if owner, err := pidOwningPort(port); err == nil && owner > 0 {
		if isForgeProcess(owner, role) {
			s.terminate(owner, constants.ForeignProcessGrace)
		} else {
			return Status{}, fmt.Errorf("supervisor: port %d is already bound by unrelated pid %d", port, owner)
		}
	}

	logPath, err := xdgpaths.RoleLogPath(role)
	if err != nil {
		return Status{}, err
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return Status{}, fmt.Errorf("open daemon log: %w", err)
	}
	defer logFile.Close()

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return Status{}, fmt.Errorf("spawn daemon: %w", err)
	}
	pid := cmd.Process.Pid
	// Detach: forge never waits on the daemon's lifetime, only on its
	// own health check below.
	go func() { _ = cmd.Wait() }()

	if err := writePIDFile(role, pid); err != nil {
		s.terminate(pid, constants.StopGrace)
		return Status{}, err
	}

	deadline := time.Now().Add(constants.HealthCheckWindow)
	for time.Now().Before(deadline) {
		if boundPID, err := pidOwningPort(port); err == nil && boundPID == pid {
			return Status{Running: true, PID: pid, Port: port, URL: fmt.Sprintf("http://127.0.0.1:%d", port)}, nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	s.terminate(pid, constants.StopGrace)
	_ = removePIDFile(role)
	return Status{}, ErrStartFailed
}

// Stop SIGTERMs the role's PID, waits up to constants.StopGrace,
// SIGKILLs, and removes the PID file.
func (s *Supervisor) Stop(role constants.Role) error {
	pid, ok, err := readPIDFile(role)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	s.terminate(pid, constants.StopGrace)
	return removePIDFile(role)
}

// Restart stops then starts the role.
func (s *Supervisor) Restart(role constants.Role, port int, argv []string) (Status, error) {
	if err := s.Stop(role); err != nil {
		return Status{}, err
	}
	return s.Start(role, port, argv)
}

// terminate sends SIGTERM, waits up to grace, then SIGKILL.
func (s *Supervisor) terminate(pid int, grace time.Duration) {
	_ = syscall.Kill(pid, syscall.SIGTERM)
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if alive, _ := pidAlive(pid); !alive {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	_ = syscall.Kill(pid, syscall.SIGKILL)
}

func pidAlive(pid int) (bool, error) {
	return process.PidExists(int32(pid))
}

// isForgeProcess reports whether pid's command line names this forge
// daemon role, so Start only ever reclaims a prior incarnation of
// itself and never force-kills an unrelated process squatting on the
// port.
func isForgeProcess(pid int, role constants.Role) bool {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	name, err := p.Name()
	if err != nil {
		return false
	}
	return strings.Contains(name, constants.AppName) || strings.Contains(name, string(role))
}

// pidOwningPort returns the PID bound to port on loopback, or 0 if none
// is found.
func pidOwningPort(port int) (int, error) {
	conns, err := gopsnet.Connections("tcp")
	if err != nil {
		return 0, fmt.Errorf("list tcp connections: %w", err)
	}
	for _, c := range conns {
		if int(c.Laddr.Port) == port && (c.Status == "LISTEN" || c.Status == "LISTENING") {
			return int(c.Pid), nil
		}
	}
	return 0, nil
}

func readPIDFile(role constants.Role) (int, bool, error) {
	path, err := xdgpaths.RolePIDPath(role)
	if err != nil {
		return 0, false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("read pid file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false, fmt.Errorf("parse pid file: %w", err)
	}
	return pid, true, nil
}

// writePIDFile writes pid atomically via write-temp-then-rename, so a
// concurrent reader never observes a partially-written PID.
func writePIDFile(role constants.Role, pid int) error {
	path, err := xdgpaths.RolePIDPath(role)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(fmt.Sprintf("%d\n", pid)), 0o600); err != nil {
		return fmt.Errorf("write temp pid file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename pid file into place: %w", err)
	}
	return nil
}

func removePIDFile(role constants.Role) error {
	path, err := xdgpaths.RolePIDPath(role)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove pid file: %w", err)
	}
	return nil
}

