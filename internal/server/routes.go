package server

import (
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/swaggest/swgui/v5emb"

	"github.com/tictaccode/arena/internal/handler/health"
)

func addRoutes(r chi.Router, logger *slog.Logger, deps Deps, broker *Broker) {
	svc := deps.Service

	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("Arena API", "/openapi.json", "/docs"))
	r.Mount("/healthz", health.NewHandler(logger, deps.Checks).Routes())
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", handleWS(svc, broker, logger, deps.AllowedOrigins))

	r.Route("/api", func(r chi.Router) {
		r.Post("/rooms", handleCreateRoom(svc, logger))
		r.Route("/rooms/{roomID}", func(r chi.Router) {
			r.Use(roomMiddleware(svc, logger))
			r.Get("/", handleGetRoom())
			r.Post("/join", handleJoinTeam(svc, broker, logger))
			r.Post("/start", handleStart(svc, broker, logger))
			r.Post("/check", handleCheck(svc, broker, logger))
		})
		r.Get("/history/{handle}", handleHistory(svc, logger))
	})

	if deps.SPADir != "" {
		if info, err := os.Stat(deps.SPADir); err == nil && info.IsDir() {
			logger.Info("serving SPA", "dir", deps.SPADir)
			r.NotFound(handleSPA(deps.SPADir))
		}
	}
}
