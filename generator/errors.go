package generator

import "errors"

var (
	// ErrEmptyBeat is returned when generation is requested without a beat.
	ErrEmptyBeat = errors.New("generator: beat is empty")
	// ErrBackendNotReady is returned when the text-generation backend cannot serve requests.
	ErrBackendNotReady = errors.New("generator: backend not ready")
	// ErrSessionActive is returned when a generation is already open on the document.
	ErrSessionActive = errors.New("generator: a generation session is already active")
	// ErrNoDecision is returned by Accept, Retry and Discard when nothing awaits a decision.
	ErrNoDecision = errors.New("generator: no generation awaiting a decision")
	// ErrStreamFailure wraps transport and backend errors raised while streaming.
	ErrStreamFailure = errors.New("generator: stream failed")
	// ErrCancelled is returned by a generation that was superseded by Retry or Discard.
	ErrCancelled = errors.New("generator: generation cancelled")
)
