package engine

import "errors"

var (
	// ErrAlreadyRunning is returned by Start when the engine is not STOPPED.
	ErrAlreadyRunning = errors.New("engine already running")

	// ErrNotFound is returned by manager operations on an unknown symbol.
	ErrNotFound = errors.New("engine not found")

	// ErrManagerNotInitialized is returned by the API layer when no manager
	// has been constructed yet.
	ErrManagerNotInitialized = errors.New("engine manager not initialized")

	// ErrRestartDenied reports a recovery-policy refusal. It is a normal
	// "not yet" outcome, logged but never escalated.
	ErrRestartDenied = errors.New("restart denied by recovery policy")
)
