// Package errs defines the error kinds the supervisor core must distinguish
// (spec §7), so callers can errors.Is/errors.As against a stable sentinel
// instead of matching on message text.
package errs

import "errors"

var (
	// ErrConfigEnvVarMissing: fatal at startup.
	ErrConfigEnvVarMissing = errors.New("required environment variable not set")
	// ErrConfigRead: fatal at startup; recoverable at reload (reload refused, previous config stays live).
	ErrConfigRead = errors.New("failed to read config file")
	// ErrConfigDeserialize: same recoverability as ErrConfigRead.
	ErrConfigDeserialize = errors.New("failed to parse config file")
	// ErrLockAcquisition: fatal at startup.
	ErrLockAcquisition = errors.New("failed to acquire supervisor lock")
	// ErrSpawn: non-fatal; recorded as a failed spawn leading to Backoff.
	ErrSpawn = errors.New("failed to spawn child process")
	// ErrWait: rare; surfaced to the loop which logs and continues.
	ErrWait = errors.New("failed to sample child process state")
	// ErrSignal: logged; loop continues.
	ErrSignal = errors.New("failed to deliver signal to child process")
	// ErrCommandParse: per-client, recoverable.
	ErrCommandParse = errors.New("command parse error")
	// ErrShutdownRequested is not a failure; it is how a Quit command or
	// terminating signal propagates up through the loop to trigger teardown.
	ErrShutdownRequested = errors.New("supervisor shutdown requested")
)
