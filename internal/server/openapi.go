package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/tictaccode/arena/internal/arena"
	"github.com/tictaccode/arena/internal/game"
)

// HealthStatus is one dependency entry of the /healthz response.
type HealthStatus struct {
	Status string `json:"status" enum:"ok,error"`
}

type roomPath struct {
	RoomID string `path:"roomID" description:"Six hex character room id."`
}

type checkRequestDoc struct {
	RoomID string `path:"roomID" description:"Six hex character room id."`
	Handle string `json:"handle" required:"true" description:"Codeforces handle on one of the rosters."`
}

type joinTeamRequestDoc struct {
	RoomID string `path:"roomID" description:"Six hex character room id."`
	Handle string `json:"handle" required:"true" description:"Codeforces handle."`
	Team   string `json:"team" required:"true" enum:"A,B" description:"Team to join."`
}

type startRequestDoc struct {
	RoomID string `path:"roomID" description:"Six hex character room id."`
	arena.Settings
}

type historyPath struct {
	Handle string `path:"handle" description:"Codeforces handle."`
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "Arena API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Two-team tic-tac-toe over Codeforces problems.")

	// GET /healthz
	getHealthz, _ := r.NewOperationContext(http.MethodGet, "/healthz")
	getHealthz.SetSummary("Health check")
	getHealthz.SetDescription("Returns the health status of the room store.")
	getHealthz.AddRespStructure(map[string]HealthStatus{}, openapi.WithHTTPStatus(http.StatusOK))
	getHealthz.AddRespStructure(map[string]HealthStatus{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(getHealthz)

	// GET /ws
	getWS, _ := r.NewOperationContext(http.MethodGet, "/ws")
	getWS.SetSummary("Realtime game channel")
	getWS.SetDescription("Upgrades to a WebSocket carrying JSON text frames. Clients send " +
		"joinRoom, joinTeam, startGame, leaveRoom, checkSolutions, reconnect, chat and ping; " +
		"the server answers with ack, room, roomNotFound, reconnected, gameState, gameOver, chat, pong and error.")
	getWS.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusSwitchingProtocols),
		openapi.WithContentType("text/plain"))
	_ = r.AddOperation(getWS)

	// POST /api/rooms
	createRoom, _ := r.NewOperationContext(http.MethodPost, "/api/rooms")
	createRoom.SetSummary("Create room")
	createRoom.SetDescription("Creates an empty room in the lobby phase.")
	createRoom.AddRespStructure(CreateRoomResponse{}, openapi.WithHTTPStatus(http.StatusCreated))
	createRoom.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusInternalServerError))
	_ = r.AddOperation(createRoom)

	// GET /api/rooms/{roomID}
	getRoom, _ := r.NewOperationContext(http.MethodGet, "/api/rooms/{roomID}")
	getRoom.SetSummary("Get room")
	getRoom.SetDescription("Returns the room snapshot: rosters, board, claims, marks and outcome.")
	getRoom.AddReqStructure(roomPath{})
	getRoom.AddRespStructure(arena.Room{}, openapi.WithHTTPStatus(http.StatusOK))
	getRoom.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getRoom)

	// POST /api/rooms/{roomID}/join
	join, _ := r.NewOperationContext(http.MethodPost, "/api/rooms/{roomID}/join")
	join.SetSummary("Join team")
	join.SetDescription("Seats a player on a team while the room is in the lobby. " +
		"The new rosters are broadcast to the room's websocket connections.")
	join.AddReqStructure(joinTeamRequestDoc{})
	join.AddRespStructure(arena.Room{}, openapi.WithHTTPStatus(http.StatusOK))
	join.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	join.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	join.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(join)

	// POST /api/rooms/{roomID}/start
	start, _ := r.NewOperationContext(http.MethodPost, "/api/rooms/{roomID}/start")
	start.SetSummary("Start game")
	start.SetDescription("Provisions the board and moves the room to in progress. Both teams need a player.")
	start.AddReqStructure(startRequestDoc{})
	start.AddRespStructure(arena.Room{}, openapi.WithHTTPStatus(http.StatusOK))
	start.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	start.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	start.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	start.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(start)

	// POST /api/rooms/{roomID}/check
	check, _ := r.NewOperationContext(http.MethodPost, "/api/rooms/{roomID}/check")
	check.SetSummary("Check solutions")
	check.SetDescription("Claims every unclaimed cell whose problem the player has solved. " +
		"Claims are broadcast to the room's websocket connections.")
	check.AddReqStructure(checkRequestDoc{})
	check.AddRespStructure(CheckResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	check.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	check.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusForbidden))
	check.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	check.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	check.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(check)

	// GET /api/history/{handle}
	history, _ := r.NewOperationContext(http.MethodGet, "/api/history/{handle}")
	history.SetSummary("Game history")
	history.SetDescription("Finished games the handle played, newest first, with win, loss and draw totals.")
	history.AddReqStructure(historyPath{})
	history.AddRespStructure(game.History{}, openapi.WithHTTPStatus(http.StatusOK))
	history.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	_ = r.AddOperation(history)

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
