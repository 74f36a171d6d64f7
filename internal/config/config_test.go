package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_AliasesAndDefaults(t *testing.T) {
	data := []byte(`
programs:
  web:
    cmd: "/bin/sleep 10"
    numprocs: 2
    autostart: true
    autorestart: unexpected
    exit_codes: [0, 2]
    startretries: 3
    startsecs: 5
    stopsignal: "TERM"
    stoptime: 7
    workingdir: /tmp
    umask: "022"
    env:
      FOO: bar
`)
	progs, err := Parse(data)
	require.NoError(t, err)
	require.Contains(t, progs, "web")

	p := progs["web"]
	assert.Equal(t, "web", p.Name)
	assert.Equal(t, []string{"/bin/sleep", "10"}, p.Cmd)
	assert.Equal(t, 2, p.NumProcs)
	assert.True(t, p.AutoStart)
	assert.Equal(t, AutoRestartUnexpected, p.AutoRestart)
	assert.Equal(t, 3, p.StartRetries)
	assert.Equal(t, 5, p.StartSecs)
	assert.Equal(t, 7, p.StopTime)
	assert.Equal(t, "/tmp", p.WorkingDir)
	assert.Equal(t, uint32(022), p.Umask)
	assert.Equal(t, "bar", p.Env["FOO"])
	_, hasZero := p.ExitCodes[0]
	_, hasTwo := p.ExitCodes[2]
	assert.True(t, hasZero)
	assert.True(t, hasTwo)
}

func TestParse_NameKeyAuthoritativeOverNameField(t *testing.T) {
	data := []byte(`
programs:
  real-name:
    name: decoy
    cmd: "/bin/true"
`)
	progs, err := Parse(data)
	require.NoError(t, err)
	require.Contains(t, progs, "real-name")
	assert.Equal(t, "real-name", progs["real-name"].Name)
}

func TestParse_InvalidUmaskFailsDeserialize(t *testing.T) {
	data := []byte(`
programs:
  web:
    cmd: "/bin/true"
    umask: "999"
`)
	_, err := Parse(data)
	assert.Error(t, err)
}

func TestParse_InvalidExitCodeRejected(t *testing.T) {
	data := []byte(`
programs:
  web:
    cmd: "/bin/true"
    exit_codes: [256]
`)
	_, err := Parse(data)
	assert.Error(t, err)
}

func TestParse_EmptyCmdRejected(t *testing.T) {
	data := []byte(`
programs:
  web:
    cmd: ""
`)
	_, err := Parse(data)
	assert.Error(t, err)
}

func TestParse_NumProcsZeroRejected(t *testing.T) {
	data := []byte(`
programs:
  web:
    cmd: "/bin/true"
    num_procs: 0
`)
	_, err := Parse(data)
	assert.Error(t, err)
}

func TestParse_CollectsMultipleValidationErrors(t *testing.T) {
	data := []byte(`
programs:
  web:
    cmd: ""
    num_procs: 0
    umask: "999"
`)
	_, err := Parse(data)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "cmd")
	assert.Contains(t, msg, "num_procs")
}

func TestStructuralEqualAndEqual(t *testing.T) {
	a := mustProgram(t, `
programs:
  web:
    cmd: "/bin/true"
    num_procs: 1
`)
	b := mustProgram(t, `
programs:
  web:
    cmd: "/bin/true"
    num_procs: 2
`)
	assert.True(t, StructuralEqual(a, b))
	assert.False(t, Equal(a, b))

	c := mustProgram(t, `
programs:
  web:
    cmd: "/bin/false"
    num_procs: 1
`)
	assert.False(t, StructuralEqual(a, c))
}

func mustProgram(t *testing.T, yamlSrc string) *Program {
	t.Helper()
	progs, err := Parse([]byte(yamlSrc))
	require.NoError(t, err)
	return progs["web"]
}
