// Package group implements the Program Group (spec §4.3): the ordered
// vector of replicas for one program, plus group-level start/stop/restart/
// kill/check/status and the reconcile step that forces a single dominant
// state onto every replica once any of them reaches a terminal one.
package group

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/taskmaster/taskmaster/internal/config"
	"github.com/taskmaster/taskmaster/internal/replica"
)

// Origin distinguishes a config-driven start from an operator-issued one
// (spec §4.3 start(origin)): auto_start is only honored for Origin Config.
type Origin int

const (
	Config Origin = iota
	Cli
)

// Group owns the ordered replica vector for one named program. Insertion
// order equals replica index, the stable identity used by status/logging.
type Group struct {
	Cfg      *config.Program
	replicas []*replica.Replica
	log      logrus.FieldLogger
}

// New creates an empty group for cfg; no replicas are spawned yet.
func New(cfg *config.Program, log logrus.FieldLogger) *Group {
	return &Group{
		Cfg: cfg,
		log: log.WithField("program", cfg.Name),
	}
}

// Replicas returns the live replica vector (read-only use expected).
func (g *Group) Replicas() []*replica.Replica { return g.replicas }

// Start spawns replicas until len(replicas) == cfg.NumProcs. If origin is
// Config and auto_start is false, this is a no-op (spec §4.3). Failed
// spawns still get appended as no-child slots in Backoff with
// restart_count=1 so they appear in status and are retried by Check.
func (g *Group) Start(origin Origin, now time.Time) {
	if origin == Config && !g.Cfg.AutoStart {
		return
	}
	for len(g.replicas) < g.Cfg.NumProcs {
		idx := len(g.replicas)
		r := replica.New(g.Cfg, idx, g.log)
		r.Start(now)
		g.replicas = append(g.replicas, r)
	}
}

// Stop issues stop_signal to every replica not already in a terminal state,
// transitioning each of those to Stopping (spec §4.3 stop()). Replicas in a
// terminal state are skipped: they get no signal and keep their state.
func (g *Group) Stop(now time.Time) {
	for _, r := range g.replicas {
		if r.State().Terminal() {
			continue
		}
		r.Stop(now)
	}
}

// Restart issues stop_signal to every replica with transition to Restarting
// (spec §4.3 restart()).
func (g *Group) Restart(now time.Time) {
	for _, r := range g.replicas {
		r.Restart(now)
	}
}

// Kill sends SIGKILL to every replica and drops them from the vector (spec
// §4.3 kill()).
func (g *Group) Kill() {
	for _, r := range g.replicas {
		r.Kill()
	}
	g.replicas = nil
}

// Check runs every replica's Check, then reconciles group-wide state (spec
// §4.3 check()): if any replica is in {Killed, Fatal, Stopped, Pending},
// every replica is promoted to the highest-priority one of those, so the
// group's outward status is always a single dominant state.
func (g *Group) Check(now time.Time) {
	for _, r := range g.replicas {
		r.Check(now)
	}
	g.reconcile()
}

func (g *Group) reconcile() {
	states := make([]replica.State, len(g.replicas))
	for i, r := range g.replicas {
		states[i] = r.State()
	}
	dominant, found := replica.DominantTerminal(states)
	if !found {
		return
	}
	for _, r := range g.replicas {
		if r.State() != dominant {
			r.ForceState(dominant)
		}
	}
}

// Status is the single human-readable record for a group (spec §4.3
// status()): program name and the state of the first replica, representative
// under the reconciled invariant that all replicas share a dominant state
// once any of them is terminal.
type Status struct {
	Name  string
	State replica.State
}

// Status returns the group's representative status line.
func (g *Group) Status() Status {
	if len(g.replicas) == 0 {
		return Status{Name: g.Cfg.Name, State: replica.Stopped}
	}
	return Status{Name: g.Cfg.Name, State: g.replicas[0].State()}
}

// String renders the one-line summary used by the dispatcher's Status
// command (spec §4.5): "name STATE".
func (s Status) String() string {
	return fmt.Sprintf("%-24s %s", s.Name, s.State)
}

// DetailLines renders one indented line per replica (pid, uptime,
// restart_count) supplementing the one-line group summary — an additive
// operator-visibility feature from the original implementation (see
// SPEC_FULL.md "Status per-replica detail"); it does not change Status()'s
// return type.
func (g *Group) DetailLines(now time.Time) []string {
	lines := make([]string, 0, len(g.replicas))
	for _, r := range g.replicas {
		lines = append(lines, fmt.Sprintf(
			"    replica %d: pid=%d state=%s uptime=%s restarts=%d",
			r.Index, r.PID(), r.State(), r.Uptime(now).Round(time.Second), r.RestartCount(),
		))
	}
	return lines
}

// Shrink drops the tail replicas beyond n, killing them first. Used by the
// registry's update() when num_procs decreases without other structural
// changes (spec §4.4).
func (g *Group) Shrink(n int) {
	if n >= len(g.replicas) {
		return
	}
	for _, r := range g.replicas[n:] {
		r.Kill()
	}
	g.replicas = g.replicas[:n]
}

// GrowTail spawns additional replicas to reach cfg.NumProcs, preserving the
// existing prefix untouched (spec §4.4 update(), invariant 7 in spec §8).
func (g *Group) GrowTail(now time.Time) {
	for len(g.replicas) < g.Cfg.NumProcs {
		idx := len(g.replicas)
		r := replica.New(g.Cfg, idx, g.log)
		r.Start(now)
		g.replicas = append(g.replicas, r)
	}
}

// DebugString is a compact multi-line representation used in tests/logging.
func (g *Group) DebugString() string {
	var sb strings.Builder
	sb.WriteString(g.Status().String())
	sb.WriteByte('\n')
	for _, l := range g.DetailLines(time.Now()) {
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
	return sb.String()
}
