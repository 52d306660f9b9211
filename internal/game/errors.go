package game

import "errors"

// Kind classifies errors for callers deciding whether to retry and how to report.
type Kind int

const (
	// KindValidation is a rejected request; never retried automatically.
	KindValidation Kind = iota
	KindForbidden
	KindNotFound
	// KindConflict means compare-and-set retries were exhausted; retry later.
	KindConflict
	// KindUnavailable wraps a failing collaborator (store, catalog).
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Error is returned by every Service operation.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors by code so wrapped instances compare equal to the sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// wrap returns a copy of sentinel carrying cause.
func wrap(sentinel *Error, cause error) *Error {
	e := *sentinel
	e.Err = cause
	return &e
}

var (
	ErrInvalidPlayerCount   = newError(KindValidation, "invalid_player_count", "player count is outside the allowed range")
	ErrSessionFull          = newError(KindValidation, "session_full", "session is full")
	ErrSessionNotJoinable   = newError(KindValidation, "session_not_joinable", "session is not accepting players")
	ErrAlreadyInSession     = newError(KindValidation, "already_in_session", "player already joined this session")
	ErrPlayerInOtherSession = newError(KindValidation, "player_in_other_session", "player is already in another session")
	ErrNotInSession         = newError(KindValidation, "not_in_session", "player is not in this session")
	ErrUnknownAccused       = newError(KindValidation, "unknown_accused", "accused player is not in this session")
	ErrWrongPhase           = newError(KindValidation, "wrong_phase", "operation not allowed in the current phase")
	ErrNotEnoughRoles       = newError(KindValidation, "not_enough_roles", "location has fewer roles than players")
	ErrUnknownCategory      = newError(KindValidation, "unknown_category", "no locations in this category")
	ErrInvalidRequest       = newError(KindValidation, "invalid_request", "invalid request")
	ErrNotHost              = newError(KindForbidden, "not_host", "only the host can do this")
	ErrSessionNotFound      = newError(KindNotFound, "session_not_found", "session not found")
	ErrPlayerNotFound       = newError(KindNotFound, "player_not_found", "player is not in any session")
	ErrDeviceGameNotFound   = newError(KindNotFound, "device_game_not_found", "device game not found")
	ErrUnknownSeat          = newError(KindValidation, "unknown_seat", "seat is not part of this game")

	ErrConcurrentModification = newError(KindConflict, "concurrent_modification", "session was modified concurrently")
	ErrUnavailable            = newError(KindUnavailable, "unavailable", "backing service unavailable")

	// ErrSchedulingUnavailable is logged and counted; it never fails an operation.
	ErrSchedulingUnavailable = newError(KindUnavailable, "scheduling_unavailable", "phase trigger could not be scheduled")
)

// KindOf returns the Kind of err, or KindUnavailable for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnavailable
}

// errNoop aborts a mutation without committing and without failing.
var errNoop = errors.New("no change")
