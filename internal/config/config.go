// Package config holds the validated declarative record per program (spec
// §3, §6): the data model the registry is built from. Parsing accepts the
// field-name aliases the classic supervisor config dialect allows
// (numprocs, autostart, ...) and normalizes them onto the canonical fields.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/taskmaster/taskmaster/internal/errs"
)

// AutoRestart is the restart class for a program (spec §3).
type AutoRestart int

const (
	AutoRestartUnexpected AutoRestart = iota // restart only on codes not in ExitCodes
	AutoRestartAlways
	AutoRestartNever
)

func (a AutoRestart) String() string {
	switch a {
	case AutoRestartAlways:
		return "always"
	case AutoRestartNever:
		return "never"
	default:
		return "unexpected"
	}
}

func parseAutoRestart(s string) (AutoRestart, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unexpected":
		return AutoRestartUnexpected, nil
	case "always":
		return AutoRestartAlways, nil
	case "never":
		return AutoRestartNever, nil
	default:
		return 0, fmt.Errorf("unknown auto_restart value %q", s)
	}
}

// StdioKind distinguishes the three forms a stdout/stderr sink may take.
type StdioKind int

const (
	StdioAuto StdioKind = iota
	StdioPath
	StdioInherit
)

// Stdio is the resolved stdout/stderr sink for a program.
type Stdio struct {
	Kind StdioKind
	Path string // meaningful only when Kind == StdioPath
}

func parseStdio(raw string) Stdio {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "auto":
		return Stdio{Kind: StdioAuto}
	case "inherit":
		return Stdio{Kind: StdioInherit}
	default:
		return Stdio{Kind: StdioPath, Path: raw}
	}
}

// Program is one named program's immutable configuration for a given config
// generation (spec §3).
type Program struct {
	Name         string
	Cmd          []string // executable followed by its argument vector
	NumProcs     int
	AutoStart    bool
	AutoRestart  AutoRestart
	ExitCodes    map[int]struct{}
	StartRetries int
	StartSecs    int
	StopSignal   int
	StopTime     int
	Env          map[string]string
	WorkingDir   string
	Umask        uint32
	Stdout       Stdio
	Stderr       Stdio
}

// rawProgram mirrors the YAML shape, including every accepted alias (spec §6).
type rawProgram struct {
	Name string `yaml:"name"`
	Cmd  string `yaml:"cmd"`

	NumProcs  *int `yaml:"num_procs"`
	NumProcs2 *int `yaml:"numprocs"`

	AutoStart  *bool `yaml:"auto_start"`
	AutoStart2 *bool `yaml:"autostart"`

	AutoRestart  string `yaml:"auto_restart"`
	AutoRestart2 string `yaml:"autorestart"`

	ExitCodes []int `yaml:"exit_codes"`

	StartRetries  *int `yaml:"start_retries"`
	StartRetries2 *int `yaml:"startretries"`

	StartSecs  *int `yaml:"start_secs"`
	StartSecs2 *int `yaml:"startsecs"`

	StopSignal  string `yaml:"stop_signal"`
	StopSignal2 string `yaml:"stopsignal"`

	StopTime  *int `yaml:"stop_time"`
	StopTime2 *int `yaml:"stoptime"`

	Env map[string]string `yaml:"env"`

	WorkingDir  string `yaml:"working_dir"`
	WorkingDir2 string `yaml:"workingdir"`

	Umask string `yaml:"umask"`

	Stdout string `yaml:"stdout"`
	Stderr string `yaml:"stderr"`
}

type rawFile struct {
	Programs map[string]rawProgram `yaml:"programs"`
}

func firstInt(primary, alias *int, def int) int {
	if primary != nil {
		return *primary
	}
	if alias != nil {
		return *alias
	}
	return def
}

func firstBool(primary, alias *bool, def bool) bool {
	if primary != nil {
		return *primary
	}
	if alias != nil {
		return *alias
	}
	return def
}

func firstString(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseSignal(raw string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n, nil
	}
	sig, ok := signalsByName[strings.ToUpper(raw)]
	if !ok {
		return 0, fmt.Errorf("unknown signal %q", raw)
	}
	return sig, nil
}

func parseUmask(raw string) (uint32, error) {
	if raw == "" {
		return 022, nil
	}
	v, err := strconv.ParseUint(raw, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid octal umask %q: %w", raw, err)
	}
	if v > 0777 {
		return 0, fmt.Errorf("umask %q out of range", raw)
	}
	return uint32(v), nil
}

// Load reads, parses, and validates the program registry file at path.
// Deserialization failures wrap errs.ErrConfigDeserialize; filesystem
// failures wrap errs.ErrConfigRead via ReadFile's own caller.
func Load(path string) (map[string]*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errs.ErrConfigRead, path, err)
	}
	return Parse(data)
}

// Parse deserializes and validates YAML config bytes into a name->Program map.
func Parse(data []byte) (map[string]*Program, error) {
	var rf rawFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrConfigDeserialize, err)
	}

	out := make(map[string]*Program, len(rf.Programs))
	var errsAll []error
	for name, rp := range rf.Programs {
		p, err := normalize(name, rp)
		if err != nil {
			errsAll = append(errsAll, fmt.Errorf("program %q: %w", name, err))
			continue
		}
		out[p.Name] = p
	}
	if len(errsAll) > 0 {
		return nil, fmt.Errorf("%w: %v", errs.ErrConfigDeserialize, joinErrors(errsAll))
	}
	return out, nil
}

// normalize builds a Program from its raw YAML shape, collecting every
// malformed-field error it finds along the way rather than stopping at the
// first one, so Parse can report the whole picture for a broken program.
func normalize(name string, rp rawProgram) (*Program, error) {
	var errsAll []error

	cmd := strings.Fields(rp.Cmd)

	ar, err := parseAutoRestart(firstString(rp.AutoRestart, rp.AutoRestart2))
	if err != nil {
		errsAll = append(errsAll, err)
	}

	stopSig, err := parseSignal(firstString(rp.StopSignal, rp.StopSignal2), 15 /* SIGTERM */)
	if err != nil {
		errsAll = append(errsAll, err)
	}

	umask, err := parseUmask(rp.Umask)
	if err != nil {
		errsAll = append(errsAll, err)
	}

	exitCodes := make(map[int]struct{}, len(rp.ExitCodes))
	for _, c := range rp.ExitCodes {
		if c < 0 || c > 255 {
			errsAll = append(errsAll, fmt.Errorf("exit code %d does not fit in an unsigned byte", c))
			continue
		}
		exitCodes[c] = struct{}{}
	}
	if len(rp.ExitCodes) == 0 {
		exitCodes[0] = struct{}{}
	}

	env := rp.Env
	if env == nil {
		env = map[string]string{}
	}

	p := &Program{
		Name:         name, // config key is authoritative over any redundant "name" field
		Cmd:          cmd,
		NumProcs:     firstInt(rp.NumProcs, rp.NumProcs2, 1),
		AutoStart:    firstBool(rp.AutoStart, rp.AutoStart2, false),
		AutoRestart:  ar,
		ExitCodes:    exitCodes,
		StartRetries: firstInt(rp.StartRetries, rp.StartRetries2, 3),
		StartSecs:    firstInt(rp.StartSecs, rp.StartSecs2, 1),
		StopSignal:   stopSig,
		StopTime:     firstInt(rp.StopTime, rp.StopTime2, 10),
		Env:          env,
		WorkingDir:   firstString(rp.WorkingDir, rp.WorkingDir2),
		Umask:        umask,
		Stdout:       parseStdio(rp.Stdout),
		Stderr:       parseStdio(rp.Stderr),
	}

	errsAll = append(errsAll, p.Validate()...)
	if len(errsAll) > 0 {
		return nil, joinErrors(errsAll)
	}
	return p, nil
}

// Validate checks every invariant in spec §3 and returns every violation it
// finds, not just the first, so an operator fixing a config sees the whole
// picture in one pass.
func (p *Program) Validate() []error {
	var violations []error
	if p.Name == "" {
		violations = append(violations, fmt.Errorf("name must not be empty"))
	}
	if p.NumProcs < 1 {
		violations = append(violations, fmt.Errorf("num_procs must be >= 1, got %d", p.NumProcs))
	}
	if p.StartRetries < 0 {
		violations = append(violations, fmt.Errorf("start_retries must be >= 0, got %d", p.StartRetries))
	}
	if p.Umask > 0777 {
		violations = append(violations, fmt.Errorf("umask %o is not a valid 3-digit octal mask", p.Umask))
	}
	for c := range p.ExitCodes {
		if c < 0 || c > 255 {
			violations = append(violations, fmt.Errorf("exit code %d does not fit in an unsigned byte", c))
		}
	}
	if len(p.Cmd) == 0 {
		violations = append(violations, fmt.Errorf("cmd must not be empty"))
	}
	return violations
}

// StructuralEqual compares every field that, if changed, forces a full
// teardown-and-respawn of a group (spec §4.4 update()): everything except
// NumProcs.
func StructuralEqual(a, b *Program) bool {
	if len(a.Cmd) != len(b.Cmd) {
		return false
	}
	for i := range a.Cmd {
		if a.Cmd[i] != b.Cmd[i] {
			return false
		}
	}
	if a.AutoRestart != b.AutoRestart || a.AutoStart != b.AutoStart {
		return false
	}
	if a.StartRetries != b.StartRetries || a.StopSignal != b.StopSignal || a.StopTime != b.StopTime {
		return false
	}
	if a.WorkingDir != b.WorkingDir || a.Umask != b.Umask {
		return false
	}
	if a.Stdout != b.Stdout || a.Stderr != b.Stderr {
		return false
	}
	if len(a.ExitCodes) != len(b.ExitCodes) {
		return false
	}
	for c := range a.ExitCodes {
		if _, ok := b.ExitCodes[c]; !ok {
			return false
		}
	}
	if len(a.Env) != len(b.Env) {
		return false
	}
	for k, v := range a.Env {
		if bv, ok := b.Env[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

// Equal reports whether two configs are identical in every field, including
// NumProcs — the registry's update() no-op case.
func Equal(a, b *Program) bool {
	return StructuralEqual(a, b) && a.NumProcs == b.NumProcs
}

func joinErrors(es []error) error {
	return errors.Join(es...)
}
