package coordinator

import "errors"

// Client-visible failures. The message is sent verbatim in error{message}.
var (
	ErrOpponentNotFound  = errors.New("Opponent not found")
	ErrBattleSetupFailed = errors.New("Battle setup failed")
	ErrEntityNotFound    = errors.New("Entity not found")
	ErrNotInLobby        = errors.New("Not in lobby")
	ErrInvalidPayload    = errors.New("Invalid payload")
	ErrUnknown           = errors.New("Internal server error")
)

var known = []error{
	ErrOpponentNotFound,
	ErrBattleSetupFailed,
	ErrEntityNotFound,
	ErrNotInLobby,
	ErrInvalidPayload,
}

// ClientMessage returns the text reported to the requester for err. Anything
// outside the taxonomy is reported as ErrUnknown.
func ClientMessage(err error) string {
	for _, k := range known {
		if errors.Is(err, k) {
			return k.Error()
		}
	}
	return ErrUnknown.Error()
}

// Kind is the metrics label for err.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrOpponentNotFound):
		return "opponent_not_found"
	case errors.Is(err, ErrBattleSetupFailed):
		return "battle_setup_failed"
	case errors.Is(err, ErrEntityNotFound):
		return "entity_not_found"
	case errors.Is(err, ErrNotInLobby):
		return "not_in_lobby"
	case errors.Is(err, ErrInvalidPayload):
		return "invalid_payload"
	default:
		return "unknown"
	}
}
