package dispatch

import (
	"fmt"
	"strings"
	"time"

	"github.com/taskmaster/taskmaster/internal/errs"
	"github.com/taskmaster/taskmaster/internal/group"
	"github.com/taskmaster/taskmaster/internal/registry"
)

// Dispatcher routes parsed commands (spec §4.5) into registry operations
// and renders a human-readable response string for the control channel.
type Dispatcher struct {
	reg *registry.Registry
}

// New constructs a Dispatcher bound to reg.
func New(reg *registry.Registry) *Dispatcher {
	return &Dispatcher{reg: reg}
}

// Dispatch executes cmd and returns the response text to send back to the
// originating client. A Quit command returns errs.ErrShutdownRequested
// alongside its response so the caller (the supervisor loop) can end the
// loop after writing the reply.
func (d *Dispatcher) Dispatch(cmd Command) (string, error) {
	now := time.Now()
	switch cmd.Kind {
	case Status:
		return d.status(now), nil

	case Start:
		var lines []string
		for _, name := range cmd.Names {
			g := d.reg.Get(name)
			if g == nil {
				lines = append(lines, fmt.Sprintf("%s: no such program", name))
				continue
			}
			g.Start(group.Cli, now)
			lines = append(lines, fmt.Sprintf("%s: started", name))
		}
		return strings.Join(lines, "\n"), nil

	case Stop:
		var lines []string
		for _, name := range cmd.Names {
			g := d.reg.Get(name)
			if g == nil {
				lines = append(lines, fmt.Sprintf("%s: no such program", name))
				continue
			}
			g.Stop(now)
			lines = append(lines, fmt.Sprintf("%s: stopped", name))
		}
		return strings.Join(lines, "\n"), nil

	case Restart:
		var lines []string
		for _, name := range cmd.Names {
			g := d.reg.Get(name)
			if g == nil {
				lines = append(lines, fmt.Sprintf("%s: no such program", name))
				continue
			}
			g.Restart(now)
			lines = append(lines, fmt.Sprintf("%s: restarted", name))
		}
		return strings.Join(lines, "\n"), nil

	case Reload:
		if _, err := d.reg.Reload(); err != nil {
			return fmt.Sprintf("reload failed: %v", err), nil
		}
		return "reload: ok", nil

	case Quit:
		return "quit: shutting down", errs.ErrShutdownRequested

	default:
		return "", fmt.Errorf("%w: unhandled command kind", errs.ErrCommandParse)
	}
}

// status concatenates each group's one-line status summary plus its
// per-replica detail lines (spec §4.3 status(), supplemented per
// SPEC_FULL.md "Status per-replica detail").
func (d *Dispatcher) status(now time.Time) string {
	var lines []string
	for _, name := range d.reg.Names() {
		g := d.reg.Get(name)
		lines = append(lines, g.Status().String())
		lines = append(lines, g.DetailLines(now)...)
	}
	if len(lines) == 0 {
		return "no programs configured"
	}
	return strings.Join(lines, "\n")
}
