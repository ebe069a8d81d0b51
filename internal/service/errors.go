package service

import "errors"

// Gateway/identity errors
var (
	ErrAuthRequired = errors.New("authentication required")
	ErrUnauthorized = errors.New("unauthorized")
	ErrRateLimited  = errors.New("too many events")
)

// Matchmaking errors
var (
	ErrAlreadyQueued      = errors.New("user already queued")
	ErrAlreadyInSession   = errors.New("user already in an open session")
	ErrPairingPersistence = errors.New("failed to create session for pairing")
	ErrSameUser           = errors.New("cannot pair a user with itself")
)

// Duel session errors
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrInvalidState     = errors.New("operation not valid in current session state")
	ErrEvaluationFailed = errors.New("evaluation failed")
)

// Collaborator lookups
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrProblemNotFound = errors.New("problem not found")
)
