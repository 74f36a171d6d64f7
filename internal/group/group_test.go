package group

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmaster/taskmaster/internal/config"
	"github.com/taskmaster/taskmaster/internal/replica"
)

func testLog() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func baseCfg(name string, numProcs int, autoStart bool) *config.Program {
	return &config.Program{
		Name:         name,
		Cmd:          []string{"/bin/sleep", "5"},
		NumProcs:     numProcs,
		AutoStart:    autoStart,
		AutoRestart:  config.AutoRestartUnexpected,
		ExitCodes:    map[int]struct{}{0: {}},
		StartRetries: 3,
		StartSecs:    1,
		StopSignal:   15,
		StopTime:     5,
		Env:          map[string]string{},
		Stdout:       config.Stdio{Kind: config.StdioInherit},
		Stderr:       config.Stdio{Kind: config.StdioInherit},
	}
}

func TestStart_ConfigOriginHonorsAutoStart(t *testing.T) {
	cfg := baseCfg("web", 2, false)
	g := New(cfg, testLog())
	g.Start(Config, time.Now())
	assert.Empty(t, g.Replicas())
}

func TestStart_CliOriginIgnoresAutoStart(t *testing.T) {
	cfg := baseCfg("web", 2, false)
	g := New(cfg, testLog())
	g.Start(Cli, time.Now())
	require.Len(t, g.Replicas(), 2)
	g.Kill()
}

func TestReconcile_DominantStateWinsAcrossSiblings(t *testing.T) {
	cfg := baseCfg("web", 3, true)
	g := New(cfg, testLog())
	g.Start(Config, time.Now())
	require.Len(t, g.Replicas(), 3)

	// Force one replica into Fatal and one into Killed directly, bypassing
	// real process exits, to test reconcile's priority logic in isolation:
	// Killed outranks Fatal, so every sibling must end up Killed.
	g.Replicas()[0].ForceState(replica.Fatal)
	g.Replicas()[1].ForceState(replica.Killed)
	g.Check(time.Now())

	for _, r := range g.Replicas() {
		assert.Equal(t, replica.Killed, r.State())
	}
	assert.Equal(t, replica.Killed, g.Status().State)
}

func TestReconcile_NoTerminalLeavesStatesAlone(t *testing.T) {
	cfg := baseCfg("web", 2, true)
	g := New(cfg, testLog())
	g.Start(Config, time.Now())
	require.Len(t, g.Replicas(), 2)

	g.Check(time.Now())
	for _, r := range g.Replicas() {
		assert.NotEqual(t, replica.Fatal, r.State())
	}
	g.Kill()
}

func TestShrinkAndGrowTail_PreservesPrefix(t *testing.T) {
	cfg := baseCfg("web", 2, true)
	g := New(cfg, testLog())
	g.Start(Config, time.Now())
	require.Len(t, g.Replicas(), 2)
	originalFirstPID := g.Replicas()[0].PID()

	cfg.NumProcs = 3
	g.GrowTail(time.Now())
	require.Len(t, g.Replicas(), 3)
	assert.Equal(t, originalFirstPID, g.Replicas()[0].PID())

	cfg.NumProcs = 1
	g.Shrink(1)
	require.Len(t, g.Replicas(), 1)
	assert.Equal(t, originalFirstPID, g.Replicas()[0].PID())

	g.Kill()
}
