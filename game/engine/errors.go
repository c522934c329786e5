package engine

import "errors"

// Kind groups error codes by how callers should react to them
type Kind string

const (
	KindNotFound             Kind = "not_found"
	KindInvalidState         Kind = "invalid_state"
	KindInsufficientResource Kind = "insufficient_resource"
	KindOutOfRange           Kind = "out_of_range"
	KindInvalidInput         Kind = "invalid_input"
)

// Code is a machine-readable error code
type Code string

const (
	CodeGameNotFound         Code = "GAME_NOT_FOUND"
	CodePlayerNotFound       Code = "PLAYER_NOT_FOUND"
	CodeTargetNotFound       Code = "TARGET_NOT_FOUND"
	CodeWrongPhase           Code = "WRONG_PHASE"
	CodeNotOwner             Code = "NOT_OWNER"
	CodeAlreadyInGame        Code = "ALREADY_IN_GAME"
	CodeRosterMinimum        Code = "ROSTER_MINIMUM"
	CodeLeaveDenied          Code = "LEAVE_DENIED"
	CodePlayerNotAlive       Code = "PLAYER_NOT_ALIVE"
	CodeTargetAlreadyDead    Code = "TARGET_ALREADY_DEAD"
	CodeTargetDead           Code = "TARGET_DEAD"
	CodeInsufficientPoints   Code = "INSUFFICIENT_POINTS"
	CodeNoLivesLeft          Code = "NO_LIVES_LEFT"
	CodeTargetOutOfRange     Code = "TARGET_OUT_OF_RANGE"
	CodeInvalidDirection     Code = "INVALID_DIRECTION"
	CodeGiftBelowMinimum     Code = "GIFT_BELOW_MINIMUM"
	CodeRosterFull           Code = "ROSTER_FULL"
	CodeInvalidMode          Code = "INVALID_MODE"
	CodeInvalidPointInterval Code = "INVALID_POINT_INTERVAL"
	CodeInvalidAmount        Code = "INVALID_AMOUNT"
	CodeCannotTargetSelf     Code = "CANNOT_TARGET_SELF"
	CodeMissingUser          Code = "MISSING_USER"
)

// Error is a typed, recoverable rule violation
type Error struct {
	Kind    Kind
	Code    Code
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Is matches another *Error by code so sentinels work with errors.Is
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

func newError(kind Kind, code Code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	ErrGameNotFound   = newError(KindNotFound, CodeGameNotFound, "game not found")
	ErrPlayerNotFound = newError(KindNotFound, CodePlayerNotFound, "player does not exist in game")
	ErrTargetNotFound = newError(KindNotFound, CodeTargetNotFound, "target player does not exist in game")

	ErrWrongPhase        = newError(KindInvalidState, CodeWrongPhase, "game is not in the required phase")
	ErrNotOwner          = newError(KindInvalidState, CodeNotOwner, "only the game owner can do this")
	ErrAlreadyInGame     = newError(KindInvalidState, CodeAlreadyInGame, "player is already in game")
	ErrRosterMinimum     = newError(KindInvalidState, CodeRosterMinimum, "a game needs a minimum of 2 players")
	ErrLeaveDenied       = newError(KindInvalidState, CodeLeaveDenied, "cannot leave with 4 or fewer players alive")
	ErrPlayerNotAlive    = newError(KindInvalidState, CodePlayerNotAlive, "player is not alive")
	ErrTargetAlreadyDead = newError(KindInvalidState, CodeTargetAlreadyDead, "player to attack is dead")
	ErrTargetDead        = newError(KindInvalidState, CodeTargetDead, "player to gift to is dead")

	ErrInsufficientPoints = newError(KindInsufficientResource, CodeInsufficientPoints, "not enough points")
	ErrNoLivesLeft        = newError(KindInsufficientResource, CodeNoLivesLeft, "no lives left")

	ErrTargetOutOfRange = newError(KindOutOfRange, CodeTargetOutOfRange, "target is out of range")

	ErrInvalidDirection     = newError(KindInvalidInput, CodeInvalidDirection, "invalid direction")
	ErrGiftBelowMinimum     = newError(KindInvalidInput, CodeGiftBelowMinimum, "gift amount under minimum")
	ErrRosterFull           = newError(KindInvalidInput, CodeRosterFull, "game is full")
	ErrInvalidMode          = newError(KindInvalidInput, CodeInvalidMode, "invalid game mode")
	ErrInvalidPointInterval = newError(KindInvalidInput, CodeInvalidPointInterval, "point interval must be positive")
	ErrInvalidAmount        = newError(KindInvalidInput, CodeInvalidAmount, "amount must not be negative")
	ErrCannotTargetSelf     = newError(KindInvalidInput, CodeCannotTargetSelf, "cannot target yourself")
	ErrMissingUser          = newError(KindInvalidInput, CodeMissingUser, "user id is required")
)

// KindOf returns the kind of the first *Error in err's chain, or "" for
// errors that are not rule violations
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf returns the code of the first *Error in err's chain, or ""
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
