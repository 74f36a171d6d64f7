// Package proc implements the Child Handle (spec §4.1): ownership of one OS
// process plus the policy for launching it. A Handle is single-owner — it is
// meant to be driven from exactly one goroutine (the replica's controlling
// logic), though Sample/SendSignal are individually safe to call
// concurrently, matching the contract in spec §4.1 and the "no
// multi-owned child handle" design note in spec §9.
package proc

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/taskmaster/taskmaster/internal/config"
	"github.com/taskmaster/taskmaster/internal/errs"
)

// SampleKind is the outcome of a non-blocking exit check.
type SampleKind int

const (
	SampleRunning SampleKind = iota
	SampleExited
	SampleNonExistent
	SampleWaitError
)

// Sample is the result of Sample(): the exit status last observed, per the
// Replica.exit_status field in spec §3.
type Sample struct {
	Kind SampleKind
	Code int // valid when Kind == SampleExited: normal exit code, or signal number if signaled
	Err  error
}

const logDir = "/var/log/taskmaster"

// Handle wraps one spawned OS process.
type Handle struct {
	cmd *exec.Cmd
	pid int32 // atomic; 0 once reaped

	mu      sync.Mutex
	exited  bool
	waitErr error
	log     logrus.FieldLogger
}

// Spawn launches replica index `index` of program cfg. It establishes the
// child's umask for the duration of the spawn only (restored before Spawn
// returns, regardless of outcome), resolves the executable relative to
// working_dir/PATH via exec.LookPath semantics, overlays env on top of the
// supervisor's own environment, opens or creates the stdout/stderr sinks
// (creating parent directories as needed), and launches the child detached
// into its own process group so group-wide signaling is possible later.
func Spawn(cfg *config.Program, index int, log logrus.FieldLogger) (*Handle, error) {
	restore, err := setUmask(cfg.Umask)
	if err != nil {
		return nil, fmt.Errorf("%w: umask: %v", errs.ErrSpawn, err)
	}
	defer restore()

	cmd := exec.Command(cfg.Cmd[0], cfg.Cmd[1:]...)
	cmd.Dir = cfg.WorkingDir
	cmd.Env = mergeEnv(os.Environ(), cfg.Env)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true, Pgid: 0}

	stdout, err := openSink(cfg.Stdout, cfg.Name, index, "stdout")
	if err != nil {
		return nil, fmt.Errorf("%w: stdout: %v", errs.ErrSpawn, err)
	}
	stderr, err := openSink(cfg.Stderr, cfg.Name, index, "stderr")
	if err != nil {
		return nil, fmt.Errorf("%w: stderr: %v", errs.ErrSpawn, err)
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrSpawn, err)
	}

	h := &Handle{cmd: cmd, log: log}
	atomic.StoreInt32(&h.pid, int32(cmd.Process.Pid))

	// Reap in the background the instant the child exits so its wait status
	// is available to Sample() without the handle itself blocking; the
	// replica's controlling logic polls Sample() instead of calling Wait.
	go h.reap()

	return h, nil
}

func (h *Handle) reap() {
	err := h.cmd.Wait()
	h.mu.Lock()
	h.exited = true
	h.waitErr = err
	h.mu.Unlock()
	atomic.StoreInt32(&h.pid, 0)
}

// PID returns the OS process id, or 0 if the child has been reaped.
func (h *Handle) PID() int {
	return int(atomic.LoadInt32(&h.pid))
}

// Sample performs a non-blocking check of the child's liveness. It never
// blocks on the child itself: the actual wait() happens in the background
// goroutine started by Spawn, and Sample only reads the cached result.
func (h *Handle) Sample() Sample {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.exited {
		return Sample{Kind: SampleRunning}
	}

	if h.waitErr == nil {
		return Sample{Kind: SampleExited, Code: 0}
	}
	if exitErr, ok := h.waitErr.(*exec.ExitError); ok {
		ws, ok := exitErr.Sys().(syscall.WaitStatus)
		if ok && ws.Signaled() {
			return Sample{Kind: SampleExited, Code: int(ws.Signal())}
		}
		return Sample{Kind: SampleExited, Code: exitErr.ExitCode()}
	}
	return Sample{Kind: SampleWaitError, Err: fmt.Errorf("%w: %v", errs.ErrWait, h.waitErr)}
}

// SendSignal forwards signo to the child's process group. On an escalation
// to SIGKILL the handle also reaps the zombie inline (bounded wait, since
// the signal has already been delivered) to guarantee no pid leaks even if
// the background reap goroutine is slow to observe it.
func (h *Handle) SendSignal(signo syscall.Signal) error {
	pid := h.PID()
	if pid == 0 {
		return nil
	}
	if err := syscall.Kill(-pid, signo); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrSignal, err)
	}
	if signo == syscall.SIGKILL {
		var ws unix.WaitStatus
		_, _ = unix.Wait4(pid, &ws, 0, nil)
	}
	return nil
}

func setUmask(mask uint32) (restore func(), err error) {
	old := unix.Umask(int(mask))
	return func() { unix.Umask(old) }, nil
}

func mergeEnv(base []string, overlay map[string]string) []string {
	if len(overlay) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(overlay))
	out = append(out, base...)
	for k, v := range overlay {
		out = append(out, k+"="+v)
	}
	return out
}

func openSink(sink config.Stdio, program string, index int, stream string) (*os.File, error) {
	switch sink.Kind {
	case config.StdioInherit:
		if stream == "stdout" {
			return os.Stdout, nil
		}
		return os.Stderr, nil
	case config.StdioPath:
		return createLogFile(sink.Path)
	default: // StdioAuto
		path := filepath.Join(logDir, fmt.Sprintf("%s-%d-%s.log", program, index, stream))
		return createLogFile(path)
	}
}

func createLogFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}
