package arena

import "errors"

// Validation errors.
var (
	ErrInvalidHandle   = errors.New("invalid handle")
	ErrInvalidTeam     = errors.New("invalid team")
	ErrInvalidSettings = errors.New("invalid game settings")
)

// Precondition errors: the request is well formed but the room is in the
// wrong state for it.
var (
	ErrTeamFull          = errors.New("team is full")
	ErrNotLobby          = errors.New("game already started")
	ErrRostersIncomplete = errors.New("both teams must have at least one player")
	ErrNotInProgress     = errors.New("game has not started yet")
	ErrGameOver          = errors.New("game is already finished")
	ErrNotParticipant    = errors.New("not a participant of this game")
)
