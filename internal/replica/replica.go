// Package replica implements the Replica State Machine (spec §4.2): the
// per-instance lifecycle that drives one replica of a program through its
// states based on exit codes and elapsed time against the configured policy.
package replica

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/taskmaster/taskmaster/internal/config"
	"github.com/taskmaster/taskmaster/internal/proc"
)

// State is one of the ten lifecycle states in spec §4.2.
type State int

const (
	Starting State = iota
	Running
	Backoff
	Restarting
	Stopping
	Stopped
	Exited
	Fatal
	Killed
	Pending
)

func (s State) String() string {
	switch s {
	case Starting:
		return "STARTING"
	case Running:
		return "RUNNING"
	case Backoff:
		return "BACKOFF"
	case Restarting:
		return "RESTARTING"
	case Stopping:
		return "STOPPING"
	case Stopped:
		return "STOPPED"
	case Exited:
		return "EXITED"
	case Fatal:
		return "FATAL"
	case Killed:
		return "KILLED"
	case Pending:
		return "PENDING"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether s never transitions spontaneously (spec §4.2
// table); only an operator command or config reload can revive it.
func (s State) Terminal() bool {
	switch s {
	case Stopped, Exited, Fatal, Killed, Pending:
		return true
	default:
		return false
	}
}

// terminalPriority orders the dominant-state promotion in group reconcile
// (spec §4.3): Killed > Fatal > Stopped > Pending. Lower number wins.
func terminalPriority(s State) int {
	switch s {
	case Killed:
		return 0
	case Fatal:
		return 1
	case Stopped:
		return 2
	case Pending:
		return 3
	default:
		return 99
	}
}

// DominantTerminal returns the highest-priority terminal state among a set
// of observed states, and whether any terminal state was present at all.
func DominantTerminal(states []State) (State, bool) {
	best := State(-1)
	bestPrio := 100
	found := false
	for _, s := range states {
		if !s.Terminal() {
			continue
		}
		found = true
		if p := terminalPriority(s); p < bestPrio {
			bestPrio = p
			best = s
		}
	}
	return best, found
}

// Replica is the runtime record for one instance of a program (spec §3).
type Replica struct {
	Index int

	child         *proc.Handle
	state         State
	exitStatus    proc.Sample
	startedAt     time.Time
	stopInitiated time.Time
	restartCount  int

	cfg *config.Program
	log logrus.FieldLogger
}

// New constructs a replica slot that has not yet been spawned.
func New(cfg *config.Program, index int, log logrus.FieldLogger) *Replica {
	return &Replica{
		Index: index,
		cfg:   cfg,
		log:   log.WithField("replica", index),
	}
}

// State returns the replica's current lifecycle state.
func (r *Replica) State() State { return r.state }

// RestartCount returns the number of restart attempts since the last
// successful Running transition.
func (r *Replica) RestartCount() int { return r.restartCount }

// ExitStatus returns the last sampled exit status (spec §3 exit_status).
func (r *Replica) ExitStatus() proc.Sample { return r.exitStatus }

// PID returns the OS pid of the attached child, or 0 if none is attached.
func (r *Replica) PID() int {
	if r.child == nil {
		return 0
	}
	return r.child.PID()
}

// Uptime returns the time elapsed since the most recent spawn, or 0 if
// never spawned. It keeps growing after that child has exited.
func (r *Replica) Uptime(now time.Time) time.Duration {
	if r.startedAt.IsZero() {
		return 0
	}
	return now.Sub(r.startedAt)
}

// spawn launches a new child for this replica, recording started_at on
// success. On SpawnError the slot is left with no attached child; the
// caller (group/replica transition logic) decides the resulting state.
func (r *Replica) spawn(now time.Time) error {
	h, err := proc.Spawn(r.cfg, r.Index, r.log)
	if err != nil {
		r.child = nil
		r.log.WithError(err).Warn("spawn failed")
		return err
	}
	r.child = h
	r.startedAt = now
	r.log.WithField("pid", h.PID()).Info("spawned")
	return nil
}

// sample reads the current child's exit status, or SampleNonExistent if no
// child is attached to this slot.
func (r *Replica) sample() proc.Sample {
	if r.child == nil {
		return proc.Sample{Kind: proc.SampleNonExistent}
	}
	return r.child.Sample()
}

func (r *Replica) isExpected(code int) bool {
	_, ok := r.cfg.ExitCodes[code]
	return ok
}

// killResidue sends SIGKILL to any still-attached child; used when an
// unexpected exit is observed but the OS process table entry might still
// need reaping (spec §4.2 Running/Backoff unexpected-exit branches).
func (r *Replica) killResidue() {
	if r.child == nil {
		return
	}
	_ = r.child.SendSignal(unixSIGKILL)
}

// Start transitions a freshly-created or terminal slot into Starting by
// spawning its child. Used by Group.start() (spec §4.3) for each slot that
// needs a fresh process.
func (r *Replica) Start(now time.Time) {
	if err := r.spawn(now); err != nil {
		// Failed spawns still appear in status, retried by Backoff handling.
		r.state = Backoff
		r.restartCount = 1
		return
	}
	r.state = Starting
}

// Stop issues the configured stop_signal and transitions to Stopping,
// recording stop_initiated_at (spec §4.3 stop()).
func (r *Replica) Stop(now time.Time) {
	r.stopInitiated = now
	if r.child != nil {
		_ = r.child.SendSignal(signalOf(r.cfg.StopSignal))
	}
	r.state = Stopping
}

// Restart issues the stop_signal and transitions to Restarting (spec §4.3
// restart()).
func (r *Replica) Restart(now time.Time) {
	r.stopInitiated = now
	if r.child != nil {
		_ = r.child.SendSignal(signalOf(r.cfg.StopSignal))
	}
	r.state = Restarting
}

// Kill sends SIGKILL unconditionally; the caller (Group.kill()) is
// responsible for dropping the replica from its vector afterward.
func (r *Replica) Kill() {
	r.killResidue()
	r.state = Killed
}

// ForceState overrides the replica's state directly. Used only by the group
// reconcile step (spec §4.3) to promote siblings to a dominant terminal
// state; never called from within the replica's own transition rules.
func (r *Replica) ForceState(s State) { r.state = s }

// Check runs one tick of the transition rules in spec §4.2 for this replica.
func (r *Replica) Check(now time.Time) {
	switch r.state {
	case Starting:
		r.checkStarting(now)
	case Running:
		r.checkRunning(now)
	case Backoff:
		r.checkBackoff(now)
	case Restarting:
		r.checkRestarting(now)
	case Stopping:
		r.checkStopping(now)
	default:
		// Stopped, Exited, Fatal, Killed, Pending: terminal, no-op.
	}
}

func (r *Replica) checkStarting(now time.Time) {
	s := r.sample()
	r.exitStatus = s
	switch s.Kind {
	case proc.SampleExited:
		if r.isExpected(s.Code) {
			r.state = Exited
			return
		}
		r.onUnexpectedExit(now, false)
	case proc.SampleRunning:
		r.restartCount = 0
		r.state = Running
	}
}

func (r *Replica) checkRunning(now time.Time) {
	s := r.sample()
	r.exitStatus = s
	switch s.Kind {
	case proc.SampleExited:
		if r.isExpected(s.Code) {
			r.state = Exited
			return
		}
		r.killResidue()
		r.onUnexpectedExit(now, false)
	case proc.SampleRunning:
		// stay
	}
}

func (r *Replica) checkBackoff(now time.Time) {
	s := r.sample()
	r.exitStatus = s
	switch s.Kind {
	case proc.SampleExited:
		if r.isExpected(s.Code) {
			// Conservative open-question choice: stay in Backoff (spec §9).
			return
		}
		r.killResidue()
		r.onUnexpectedExit(now, true)
	case proc.SampleNonExistent:
		if r.Uptime(now) < time.Duration(r.cfg.StartSecs)*time.Second && !r.startedAt.IsZero() {
			return
		}
		if r.restartCount >= r.cfg.StartRetries {
			r.state = Fatal
			return
		}
		r.restartCount++
		if err := r.spawn(now); err != nil {
			// remains in Backoff; next tick retries again via NonExistent branch
			return
		}
	case proc.SampleRunning:
		r.restartCount = 0
		r.state = Running
	}
}

func (r *Replica) checkRestarting(now time.Time) {
	s := r.sample()
	r.exitStatus = s
	switch s.Kind {
	case proc.SampleExited, proc.SampleNonExistent:
		r.restartCount++
		_ = r.spawn(now)
		r.state = Starting
	case proc.SampleRunning:
		// graceful signal hasn't taken effect yet; stay
	}
}

func (r *Replica) checkStopping(now time.Time) {
	s := r.sample()
	r.exitStatus = s
	switch s.Kind {
	case proc.SampleExited:
		if r.isExpected(s.Code) {
			r.state = Stopped
		} else {
			r.state = Fatal
		}
	case proc.SampleRunning:
		elapsed := now.Sub(r.stopInitiated)
		if elapsed >= time.Duration(r.cfg.StopTime)*time.Second {
			r.killResidue()
			r.state = Killed
		}
	}
}

// onUnexpectedExit applies the shared "exit not in exit_codes" policy from
// spec §4.2 (Starting/Running/Backoff all funnel into this): exhaust
// start_retries -> Fatal; auto_restart=Never -> Pending; otherwise ->
// Backoff with restart_count incremented and a respawn attempted.
func (r *Replica) onUnexpectedExit(now time.Time, alreadyInBackoff bool) {
	if r.restartCount >= r.cfg.StartRetries {
		r.state = Fatal
		return
	}
	if r.cfg.AutoRestart == config.AutoRestartNever {
		r.state = Pending
		return
	}
	r.restartCount++
	r.state = Backoff
	if err := r.spawn(now); err != nil {
		// child stays nil; state remains Backoff, restart_count already
		// incremented, subsequent ticks handle the NonExistent branch.
		return
	}
}
