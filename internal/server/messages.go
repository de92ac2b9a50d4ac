package server

import (
	"encoding/json"
	"time"

	"github.com/tictaccode/arena/internal/arena"
	"github.com/tictaccode/arena/internal/game"
)

// Client → server message types.
const (
	msgJoinRoom       = "joinRoom"
	msgJoinTeam       = "joinTeam"
	msgStartGame      = "startGame"
	msgLeaveRoom      = "leaveRoom"
	msgCheckSolutions = "checkSolutions"
	msgReconnect      = "reconnect"
	msgChat           = "chat"
	msgPing           = "ping"
)

// Server → client message types.
const (
	msgAck          = "ack"
	msgRoom         = "room"
	msgRoomNotFound = "roomNotFound"
	msgReconnected  = "reconnected"
	msgGameState    = "gameState"
	msgGameOver     = "gameOver"
	msgPong         = "pong"
	msgError        = "error"
)

const (
	chatGeneral = "general"
	chatTeam    = "team"

	maxChatLength = 500
)

// clientMessage is the envelope of everything a client sends. Fields not
// used by a type are ignored.
type clientMessage struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	RoomID    string          `json:"roomId,omitempty"`
	Handle    string          `json:"handle,omitempty"`
	Team      string          `json:"team,omitempty"`
	Settings  *arena.Settings `json:"settings,omitempty"`
	Channel   string          `json:"channel,omitempty"`
	Text      string          `json:"text,omitempty"`
}

type ackMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	Code      string `json:"code,omitempty"`
}

type roomMessage struct {
	Type    string     `json:"type"`
	Version int64      `json:"version"`
	Room    arena.Room `json:"room"`
}

type roomNotFoundMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

type reconnectedMessage struct {
	Type    string     `json:"type"`
	Version int64      `json:"version"`
	Handle  string     `json:"handle"`
	Team    arena.Team `json:"team"`
	Room    arena.Room `json:"room"`
}

type gameStateMessage struct {
	Type         string             `json:"type"`
	Version      int64              `json:"version"`
	NewlyClaimed []game.ClaimedCell `json:"newlyClaimed"`
	Room         arena.Room         `json:"room"`
}

type gameOverMessage struct {
	Type    string        `json:"type"`
	Version int64         `json:"version"`
	RoomID  string        `json:"roomId"`
	Outcome arena.Outcome `json:"outcome"`
}

type chatMessage struct {
	Type    string     `json:"type"`
	RoomID  string     `json:"roomId"`
	Channel string     `json:"channel"`
	Team    arena.Team `json:"team,omitempty"`
	Handle  string     `json:"handle"`
	Text    string     `json:"text"`
	SentAt  time.Time  `json:"sentAt"`
}

type pongMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
	Code  string `json:"code"`
}

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

// publishRoom broadcasts a room snapshot to the room's group.
func (b *Broker) publishRoom(room arena.Room) {
	b.PublishVersioned(room.ID, room.Version, mustMarshal(roomMessage{Type: msgRoom, Version: room.Version, Room: room}))
}

// publishResult broadcasts the claims a resolve won and, when it ended the
// game, the outcome. Nothing is sent for a resolve that changed nothing.
func (b *Broker) publishResult(res game.Result) {
	room := res.Room
	if len(res.NewlyClaimed) > 0 {
		b.PublishVersioned(room.ID, room.Version, mustMarshal(gameStateMessage{
			Type: msgGameState, Version: room.Version, NewlyClaimed: res.NewlyClaimed, Room: room,
		}))
	}
	if res.Concluded {
		b.PublishVersioned(room.ID, room.Version, mustMarshal(gameOverMessage{
			Type: msgGameOver, Version: room.Version, RoomID: room.ID, Outcome: room.Outcome,
		}))
	}
}
