package proc

import (
	"syscall"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmaster/taskmaster/internal/config"
)

func testLog() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func baseCfg(cmd ...string) *config.Program {
	return &config.Program{
		Name:       "t",
		Cmd:        cmd,
		WorkingDir: "",
		Env:        map[string]string{},
		Stdout:     config.Stdio{Kind: config.StdioInherit},
		Stderr:     config.Stdio{Kind: config.StdioInherit},
	}
}

func waitSample(t *testing.T, h *Handle, want SampleKind, timeout time.Duration) Sample {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		s := h.Sample()
		if s.Kind == want {
			return s
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("sample never reached kind %d", want)
	return Sample{}
}

func TestSpawn_RunningThenExitedWithCode(t *testing.T) {
	h, err := Spawn(baseCfg("/bin/sh", "-c", "exit 7"), 0, testLog())
	require.NoError(t, err)
	require.NotZero(t, h.PID())

	s := waitSample(t, h, SampleExited, 2*time.Second)
	assert.Equal(t, 7, s.Code)
}

func TestSpawn_SignalTermKillsChild(t *testing.T) {
	h, err := Spawn(baseCfg("/bin/sleep", "5"), 0, testLog())
	require.NoError(t, err)

	require.Equal(t, SampleRunning, h.Sample().Kind)

	require.NoError(t, h.SendSignal(syscall.SIGTERM))
	s := waitSample(t, h, SampleExited, 2*time.Second)
	assert.Equal(t, int(syscall.SIGTERM), s.Code)
}

func TestSpawn_SignalKillReapsInline(t *testing.T) {
	h, err := Spawn(baseCfg("/bin/sh", "-c", "trap '' TERM; sleep 5"), 0, testLog())
	require.NoError(t, err)

	require.Equal(t, SampleRunning, h.Sample().Kind)
	require.NoError(t, h.SendSignal(syscall.SIGKILL))

	s := waitSample(t, h, SampleExited, 2*time.Second)
	assert.Equal(t, int(syscall.SIGKILL), s.Code)
}

func TestSendSignal_NoopAfterReap(t *testing.T) {
	h, err := Spawn(baseCfg("/bin/true"), 0, testLog())
	require.NoError(t, err)
	waitSample(t, h, SampleExited, 2*time.Second)

	// The background reap has zeroed the PID, so signaling the reaped
	// process must be a no-op that neither hangs nor panics.
	_ = h.SendSignal(syscall.SIGTERM)
}
