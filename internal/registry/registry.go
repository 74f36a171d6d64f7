// Package registry implements the Program Registry (spec §4.4): the
// name->Group mapping for the current configuration generation, plus
// load/reload/diff-and-apply and the per-tick check_all fan-out.
package registry

import (
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/taskmaster/taskmaster/internal/config"
	"github.com/taskmaster/taskmaster/internal/group"
)

// Registry holds the mapping from program name to Group. It is exclusively
// owned and mutated by the supervisor loop's single goroutine (spec §5); no
// internal locking is needed.
type Registry struct {
	path   string
	groups map[string]*group.Group
	log    logrus.FieldLogger
}

// New constructs an empty registry for the config file at path.
func New(path string, log logrus.FieldLogger) *Registry {
	return &Registry{path: path, groups: map[string]*group.Group{}, log: log}
}

// Groups returns the live name->Group mapping (read-only use expected).
func (r *Registry) Groups() map[string]*group.Group { return r.groups }

// Get returns the named group, or nil if absent.
func (r *Registry) Get(name string) *group.Group { return r.groups[name] }

// LoadFromDisk deserializes the config file and, if startNow is set,
// invokes Start(Config) on every resulting group (spec §4.4
// load_from_disk). Read/parse failures wrap errs.ErrConfigRead /
// errs.ErrConfigDeserialize via internal/config.
func (r *Registry) LoadFromDisk(startNow bool) error {
	progs, err := config.Load(r.path)
	if err != nil {
		return fmt.Errorf("%w", err)
	}

	groups := make(map[string]*group.Group, len(progs))
	now := time.Now()
	for name, p := range progs {
		g := group.New(p, r.log)
		if startNow {
			g.Start(group.Config, now)
		}
		groups[name] = g
	}
	r.groups = groups
	return nil
}

// Reload loads a fresh configuration without starting anything
// unconditionally, diffs it against the live registry, and applies the diff
// (spec §4.4 reload()):
//  1. programs new to the config are started (Config origin).
//  2. programs present in both are passed through update().
//  3. programs dropped from the config have their group killed.
// On a read/parse failure the reload is refused and the previous
// configuration stays live (spec §7).
func (r *Registry) Reload() (map[string]*group.Group, error) {
	newProgs, err := config.Load(r.path)
	if err != nil {
		return nil, fmt.Errorf("reload refused: %w", err)
	}

	now := time.Now()
	next := make(map[string]*group.Group, len(newProgs))

	for name, p := range newProgs {
		old, existed := r.groups[name]
		if !existed {
			g := group.New(p, r.log)
			g.Start(group.Config, now)
			next[name] = g
			continue
		}
		next[name] = r.update(old, p, now)
	}

	for name, g := range r.groups {
		if _, stillPresent := newProgs[name]; !stillPresent {
			g.Kill()
		}
	}

	r.groups = next
	return next, nil
}

// update compares the structural fields of old.Cfg against newCfg (spec
// §4.4 update()). Any structural difference triggers full teardown and a
// fresh group; if only num_procs differs, the existing replica vector
// (and its PIDs) is preserved for the overlapping prefix; on an identical
// config the existing group is returned untouched.
func (r *Registry) update(old *group.Group, newCfg *config.Program, now time.Time) *group.Group {
	if config.Equal(old.Cfg, newCfg) {
		return old
	}
	if !config.StructuralEqual(old.Cfg, newCfg) {
		old.Kill()
		g := group.New(newCfg, r.log)
		g.Start(group.Config, now)
		return g
	}

	// Only num_procs differs: preserve the PIDs for the overlapping prefix.
	old.Cfg = newCfg
	if newCfg.NumProcs < len(old.Replicas()) {
		old.Shrink(newCfg.NumProcs)
	} else if newCfg.NumProcs > len(old.Replicas()) {
		old.GrowTail(now)
	}
	return old
}

// CheckAll invokes Check on every group (spec §4.4 check_all()).
func (r *Registry) CheckAll(now time.Time) {
	for _, g := range r.groups {
		g.Check(now)
	}
}

// KillAll sends a kill to every group; used during clean shutdown.
func (r *Registry) KillAll() {
	for _, g := range r.groups {
		g.Kill()
	}
}

// Names returns the registry's program names in a stable (sorted) order,
// used to give Status output deterministic ordering.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.groups))
	for name := range r.groups {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
