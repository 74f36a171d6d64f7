// Package supervisor implements the Supervisor Loop (spec §4.6): the fixed-
// interval reconcile tick that drains signals, accepts and services control
// clients, dispatches parsed commands, and checks every program group.
package supervisor

import (
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/taskmaster/taskmaster/internal/ctlserver"
	"github.com/taskmaster/taskmaster/internal/dispatch"
	"github.com/taskmaster/taskmaster/internal/errs"
	"github.com/taskmaster/taskmaster/internal/registry"
)

const (
	// signalDrainTimeout bounds how long the loop waits on the signal
	// channel each tick (spec §4.6 step 1, spec §5 suspension points).
	signalDrainTimeout = 100 * time.Millisecond
	// tickInterval is the inter-tick sleep (spec §4.6 step 6).
	tickInterval = 300 * time.Millisecond
	// maxClients is the hard cap on concurrent control clients (spec §4.6
	// step 2 design default).
	maxClients = 3
)

// Loop owns the registry exclusively (spec §5) and runs the reconcile tick.
type Loop struct {
	reg  *registry.Registry
	disp *dispatch.Dispatcher
	srv  *ctlserver.Server
	log  logrus.FieldLogger

	sigCh   chan os.Signal
	clients []*ctlserver.Client
}

// New constructs a Loop bound to reg and listening on srv.
func New(reg *registry.Registry, srv *ctlserver.Server, log logrus.FieldLogger) *Loop {
	l := &Loop{
		reg:  reg,
		disp: dispatch.New(reg),
		srv:  srv,
		log:  log,
		sigCh: make(chan os.Signal, 16),
	}
	// SIGCHLD is deliberately excluded from the handler set (spec §6) so
	// Wait4-based reaping in internal/proc is uncontended. SIGHUP is the
	// reload signal; SIGINT/SIGTERM/SIGQUIT terminate (spec §9 decision 2).
	signal.Notify(l.sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	return l
}

// Run executes the reconcile loop until a terminating signal or a Quit
// command is observed, then tears down every group and returns.
func (l *Loop) Run() error {
	for {
		shutdown, err := l.tick()
		if err != nil {
			l.log.WithError(err).Error("tick error")
		}
		if shutdown {
			l.teardown()
			return nil
		}
		time.Sleep(tickInterval)
	}
}

// tick runs exactly one pass of steps 1-5 of spec §4.6 (Run performs the
// step-6 sleep between ticks) and reports whether the loop should now shut
// down.
func (l *Loop) tick() (shutdown bool, err error) {
	if l.drainSignals() {
		return true, nil
	}

	l.acceptOne()
	shutdown, err = l.serviceClients()
	if shutdown {
		return true, err
	}

	l.reg.CheckAll(time.Now())
	return false, nil
}

// drainSignals waits up to signalDrainTimeout for a forwarded signal
// (spec §4.6 step 1). SIGHUP triggers a reload; the others set the
// shutdown flag, returned as true.
func (l *Loop) drainSignals() bool {
	select {
	case sig := <-l.sigCh:
		switch sig {
		case syscall.SIGHUP:
			if _, err := l.reg.Reload(); err != nil {
				l.log.WithError(err).Warn("reload refused")
			} else {
				l.log.Info("configuration reloaded")
			}
			return false
		default:
			l.log.WithField("signal", sig).Info("terminating signal received")
			return true
		}
	case <-time.After(signalDrainTimeout):
		return false
	}
}

// acceptOne accepts at most one new client per tick, subject to maxClients
// (spec §4.6 step 2).
func (l *Loop) acceptOne() {
	if len(l.clients) >= maxClients {
		return
	}
	conn, ok := l.srv.TryAccept()
	if !ok {
		return
	}
	c := ctlserver.NewClient(conn)
	l.clients = append(l.clients, c)
	l.log.WithField("client", c.ID).Info("control client connected")
}

// serviceClients reads at most one complete command line per client per
// tick, dispatches it, and writes the response back (spec §4.6 steps 3-4).
// Disconnected clients are dropped from the vector. Client iteration order
// is insertion order, so same-tick commands from different clients
// dispatch in a stable order (spec §5).
func (l *Loop) serviceClients() (shutdown bool, err error) {
	live := l.clients[:0]
	for _, c := range l.clients {
		line, ok, disconnected := c.TryReadLine()
		if disconnected {
			_ = c.Close()
			l.log.WithField("client", c.ID).Info("control client disconnected")
			continue
		}
		live = append(live, c)
		if !ok {
			continue
		}

		cmd, perr := dispatch.Parse(line)
		if perr != nil {
			_ = c.WriteLine("error: " + perr.Error())
			continue
		}

		resp, derr := l.disp.Dispatch(cmd)
		_ = c.WriteLine(resp)
		if errors.Is(derr, errs.ErrShutdownRequested) {
			shutdown = true
		}
	}
	l.clients = live
	return shutdown, nil
}

// teardown kills every group on the way out of Run.
func (l *Loop) teardown() {
	l.log.Info("shutting down: killing all groups")
	l.reg.KillAll()
	for _, c := range l.clients {
		_ = c.Close()
	}
	_ = l.srv.Close()
}
