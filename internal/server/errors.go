package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tictaccode/arena/internal/arena"
	"github.com/tictaccode/arena/internal/codeforces"
	"github.com/tictaccode/arena/internal/game"
	"github.com/tictaccode/arena/internal/store"
)

// Error codes sent to clients.
const (
	codeInvalid      = "invalid"
	codeNotFound     = "not_found"
	codePrecondition = "precondition"
	codeUnavailable  = "unavailable"
	codeInternal     = "internal"
)

var errInvalidMessage = errors.New("invalid message")

// classify maps an error to its client code and HTTP status.
func classify(err error) (string, int) {
	switch {
	case errors.Is(err, errInvalidMessage),
		errors.Is(err, arena.ErrInvalidHandle),
		errors.Is(err, arena.ErrInvalidTeam),
		errors.Is(err, arena.ErrInvalidSettings):
		return codeInvalid, http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return codeNotFound, http.StatusNotFound
	case errors.Is(err, codeforces.ErrInsufficientProblems),
		errors.Is(err, arena.ErrTeamFull),
		errors.Is(err, arena.ErrNotLobby),
		errors.Is(err, arena.ErrRostersIncomplete),
		errors.Is(err, arena.ErrNotInProgress),
		errors.Is(err, arena.ErrGameOver):
		return codePrecondition, http.StatusConflict
	case errors.Is(err, arena.ErrNotParticipant):
		return codePrecondition, http.StatusForbidden
	case errors.Is(err, game.ErrUnavailable),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, context.DeadlineExceeded):
		return codeUnavailable, http.StatusServiceUnavailable
	}
	return codeInternal, http.StatusInternalServerError
}

// publicMessage hides internal error text from clients.
func publicMessage(err error, code string) string {
	if code == codeInternal {
		return "internal error"
	}
	return err.Error()
}

// writeFailure reports a service error over HTTP.
func writeFailure(w http.ResponseWriter, logger *slog.Logger, err error) {
	code, status := classify(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, ErrorResponse{Error: publicMessage(err, code), Code: code})
}
