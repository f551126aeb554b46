package client

import "errors"

var (
	// ErrSessionClosing is returned by Send once Close was called or the session failed
	ErrSessionClosing = errors.New("session is closing")
	// ErrInvalidReactorState is returned by Run if the reactor is not idle
	ErrInvalidReactorState = errors.New("reactor is not idle")
	// ErrReactorStopped is returned if work is submitted to a stopped reactor
	ErrReactorStopped = errors.New("reactor stopped")
)
