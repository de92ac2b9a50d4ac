package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tictaccode/arena/internal/arena"
	"github.com/tictaccode/arena/internal/game"
)

type ctxKey int

const (
	ctxKeyRoom ctxKey = iota
)

// roomMiddleware loads the room named by the {roomID} URL parameter.
func roomMiddleware(svc *game.Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "roomID")
			if id == "" {
				writeError(w, http.StatusNotFound, "room not found")
				return
			}

			room, err := svc.Room(r.Context(), id)
			if err != nil {
				writeFailure(w, logger, err)
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyRoom, room)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func roomFrom(r *http.Request) arena.Room {
	return r.Context().Value(ctxKeyRoom).(arena.Room)
}
