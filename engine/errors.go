package engine

import "errors"

// Consensus errors
var (
	ErrInvalidConfig     = errors.New("invalid config")
	ErrInvalidMessage    = errors.New("invalid consensus message")
	ErrUnknownVoter      = errors.New("voter not in validator set")
	ErrAlreadyStarted    = errors.New("consensus already started")
	ErrNotStarted        = errors.New("consensus not started")
	ErrTimerRegistration = errors.New("timer registration failed")
	ErrBusUnavailable    = errors.New("message bus unavailable")
)
