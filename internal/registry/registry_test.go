package registry

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLog() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "taskmaster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

// S5: reload preserves PIDs — growing num_procs without any other change
// keeps the original replicas' OS identity and only spawns the new tail.
func TestReload_PreservesPIDsOnNumProcsGrowth(t *testing.T) {
	path := writeConfig(t, `
programs:
  p:
    cmd: "/bin/sleep 5"
    num_procs: 2
    auto_start: true
`)
	r := New(path, testLog())
	require.NoError(t, r.LoadFromDisk(true))

	g := r.Get("p")
	require.Len(t, g.Replicas(), 2)
	pid0 := g.Replicas()[0].PID()
	pid1 := g.Replicas()[1].PID()

	require.NoError(t, os.WriteFile(path, []byte(`
programs:
  p:
    cmd: "/bin/sleep 5"
    num_procs: 3
    auto_start: true
`), 0644))

	_, err := r.Reload()
	require.NoError(t, err)

	g = r.Get("p")
	require.Len(t, g.Replicas(), 3)
	assert.Equal(t, pid0, g.Replicas()[0].PID())
	assert.Equal(t, pid1, g.Replicas()[1].PID())
	assert.NotZero(t, g.Replicas()[2].PID())

	r.KillAll()
}

// S6: reload removes program — a program dropped from the new config has
// its group killed and is no longer present in the registry.
func TestReload_RemovesDroppedProgram(t *testing.T) {
	path := writeConfig(t, `
programs:
  p:
    cmd: "/bin/sleep 5"
    auto_start: true
  q:
    cmd: "/bin/sleep 5"
    auto_start: true
`)
	r := New(path, testLog())
	require.NoError(t, r.LoadFromDisk(true))
	require.NotNil(t, r.Get("q"))
	qPID := r.Get("q").Replicas()[0].PID()

	require.NoError(t, os.WriteFile(path, []byte(`
programs:
  p:
    cmd: "/bin/sleep 5"
    auto_start: true
`), 0644))

	_, err := r.Reload()
	require.NoError(t, err)

	assert.Nil(t, r.Get("q"))
	assert.NotNil(t, r.Get("p"))

	// The killed replica's process should no longer be alive.
	assert.Error(t, processAlive(qPID))

	r.KillAll()
}

// Structural change (cmd differs) forces full teardown and fresh spawn.
func TestReload_StructuralChangeRespawns(t *testing.T) {
	path := writeConfig(t, `
programs:
  p:
    cmd: "/bin/sleep 5"
    auto_start: true
`)
	r := New(path, testLog())
	require.NoError(t, r.LoadFromDisk(true))
	oldPID := r.Get("p").Replicas()[0].PID()

	require.NoError(t, os.WriteFile(path, []byte(`
programs:
  p:
    cmd: "/bin/sleep 6"
    auto_start: true
`), 0644))

	_, err := r.Reload()
	require.NoError(t, err)

	newPID := r.Get("p").Replicas()[0].PID()
	assert.NotEqual(t, oldPID, newPID)

	r.KillAll()
}

func TestReload_RefusedOnBadConfigKeepsLiveRegistryUnchanged(t *testing.T) {
	path := writeConfig(t, `
programs:
  p:
    cmd: "/bin/sleep 5"
    auto_start: true
`)
	r := New(path, testLog())
	require.NoError(t, r.LoadFromDisk(true))

	require.NoError(t, os.WriteFile(path, []byte("not: [valid yaml"), 0644))

	_, err := r.Reload()
	assert.Error(t, err)
	assert.NotNil(t, r.Get("p"))

	r.KillAll()
}

// processAlive returns nil if pid still responds to a signal-0 probe.
// Used only to assert a killed replica's process has actually gone away.
func processAlive(pid int) error {
	time.Sleep(50 * time.Millisecond)
	return syscall.Kill(pid, 0)
}
