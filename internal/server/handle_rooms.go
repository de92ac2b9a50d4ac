package server

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tictaccode/arena/internal/arena"
	"github.com/tictaccode/arena/internal/game"
)

type CreateRoomResponse struct {
	RoomID    string    `json:"roomId"`
	CreatedAt time.Time `json:"createdAt"`
}

type JoinTeamRequest struct {
	Handle string `json:"handle"`
	Team   string `json:"team"`
}

type CheckRequest struct {
	Handle string `json:"handle"`
}

type CheckResponse struct {
	Updated      bool               `json:"updated"`
	NewlyClaimed []game.ClaimedCell `json:"newlyClaimed"`
	Room         arena.Room         `json:"room"`
}

func handleCreateRoom(svc *game.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room, err := svc.CreateRoom(r.Context())
		if err != nil {
			writeFailure(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, CreateRoomResponse{RoomID: room.ID, CreatedAt: room.CreatedAt})
	}
}

func handleGetRoom() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, roomFrom(r))
	}
}

// handleJoinTeam seats a player over HTTP and pushes the new rosters to the
// room's websocket group.
func handleJoinTeam(svc *game.Service, broker *Broker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req JoinTeamRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		handle := strings.TrimSpace(req.Handle)
		if handle == "" {
			writeFailure(w, logger, arena.ErrInvalidHandle)
			return
		}
		team, err := arena.ParseTeam(req.Team)
		if err != nil {
			writeFailure(w, logger, err)
			return
		}

		room, err := svc.JoinTeam(r.Context(), roomFrom(r).ID, handle, team)
		if err != nil {
			writeFailure(w, logger, err)
			return
		}
		broker.publishRoom(room)
		writeJSON(w, http.StatusOK, room)
	}
}

func handleStart(svc *game.Service, broker *Broker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var settings arena.Settings
		if err := readJSON(r, &settings); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		room, err := svc.Start(r.Context(), roomFrom(r).ID, settings)
		if err != nil {
			writeFailure(w, logger, err)
			return
		}
		broker.publishRoom(room)
		writeJSON(w, http.StatusOK, room)
	}
}

// handleCheck resolves a player's solved problems over HTTP. Claims it wins
// are pushed to the room's websocket group like a gateway resolve.
func handleCheck(svc *game.Service, broker *Broker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room := roomFrom(r)

		var req CheckRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		handle := strings.TrimSpace(req.Handle)
		if handle == "" {
			writeFailure(w, logger, arena.ErrInvalidHandle)
			return
		}

		res, err := svc.Resolve(r.Context(), room.ID, handle)
		broker.publishResult(res)
		if err != nil {
			writeFailure(w, logger, err)
			return
		}

		claimed := res.NewlyClaimed
		if claimed == nil {
			claimed = []game.ClaimedCell{}
		}
		writeJSON(w, http.StatusOK, CheckResponse{
			Updated:      len(claimed) > 0,
			NewlyClaimed: claimed,
			Room:         res.Room,
		})
	}
}

func handleHistory(svc *game.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		handle := strings.TrimSpace(chi.URLParam(r, "handle"))
		if handle == "" {
			writeFailure(w, logger, arena.ErrInvalidHandle)
			return
		}
		h, err := svc.History(r.Context(), handle)
		if err != nil {
			writeFailure(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, h)
	}
}
