package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/tictaccode/arena/internal/arena"
	"github.com/tictaccode/arena/internal/game"
	"github.com/tictaccode/arena/internal/store"
)

const (
	writeTimeout = 10 * time.Second
	readLimit    = 16 << 10
)

// session is the state one websocket connection owns: the room it watches
// and the handle it plays as. Only the connection's read loop mutates it.
type session struct {
	sub    *subscriber
	logger *slog.Logger

	roomID string
	handle string
}

func (s *session) reply(v any) {
	if !s.sub.send(mustMarshal(v)) {
		s.sub.evict()
	}
}

// room returns the room the session has joined, rejecting messages that
// name a different one.
func (s *session) room(m clientMessage) (string, error) {
	if s.roomID == "" {
		return "", fmt.Errorf("%w: join a room first", errInvalidMessage)
	}
	if m.RoomID != "" && m.RoomID != s.roomID {
		return "", fmt.Errorf("%w: connection is in room %s, not %s", errInvalidMessage, s.roomID, m.RoomID)
	}
	return s.roomID, nil
}

// player returns the room and the handle a message acts for. The handle
// defaults to the one the session last joined or reconnected as.
func (s *session) player(m clientMessage) (string, string, error) {
	roomID, err := s.room(m)
	if err != nil {
		return "", "", err
	}
	handle := strings.TrimSpace(m.Handle)
	if handle == "" {
		handle = s.handle
	}
	if handle == "" {
		return "", "", arena.ErrInvalidHandle
	}
	return roomID, handle, nil
}

func (s *session) enter(b *Broker, roomID string) {
	if s.roomID == roomID {
		return
	}
	if s.roomID != "" {
		b.Leave(s.roomID, s.sub)
	}
	b.Join(roomID, s.sub)
	s.roomID = roomID
	// A seat belongs to one room.
	s.playAs("")
}

func (s *session) exit(b *Broker) {
	if s.roomID != "" {
		b.Leave(s.roomID, s.sub)
	}
	s.roomID = ""
}

func (s *session) playAs(handle string) {
	s.handle = handle
	s.sub.setHandle(handle)
}

type gateway struct {
	svc     *game.Service
	broker  *Broker
	logger  *slog.Logger
	origins []string
}

func handleWS(svc *game.Service, broker *Broker, logger *slog.Logger, origins []string) http.HandlerFunc {
	g := &gateway{svc: svc, broker: broker, logger: logger, origins: origins}
	return g.serve
}

func (g *gateway) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: g.origins})
	if err != nil {
		g.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit)

	id := uuid.NewString()
	s := &session{sub: newSubscriber(id), logger: g.logger.With("conn", id)}
	gatewayConnections.Inc()
	defer gatewayConnections.Dec()
	s.logger.Info("websocket connected", "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		g.writeLoop(ctx, conn, s)
	}()

	var inflight sync.WaitGroup
	err = g.readLoop(ctx, conn, s, &inflight)
	inflight.Wait()

	// Roster membership survives a disconnect; only the broadcast group is left.
	s.exit(g.broker)
	cancel()
	<-writerDone
	s.logger.Info("websocket disconnected", "handle", s.handle, "reason", websocket.CloseStatus(err))
}

func (g *gateway) writeLoop(ctx context.Context, conn *websocket.Conn, s *session) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.sub.evicted:
			s.logger.Warn("closing slow websocket connection")
			conn.Close(websocket.StatusPolicyViolation, "client too slow")
			return
		case msg := <-s.sub.out:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				s.logger.Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}

func (g *gateway) readLoop(ctx context.Context, conn *websocket.Conn, s *session, inflight *sync.WaitGroup) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			g.reject(s, fmt.Errorf("%w: expected a text frame", errInvalidMessage))
			continue
		}
		var m clientMessage
		if err := json.Unmarshal(data, &m); err != nil {
			g.reject(s, fmt.Errorf("%w: %v", errInvalidMessage, err))
			continue
		}
		s.logger.Debug("websocket intent", "type", m.Type, "room", m.RoomID, "request_id", m.RequestID)

		switch m.Type {
		case msgPing:
			intentsTotal.WithLabelValues(msgPing, "ok").Inc()
			s.reply(pongMessage{Type: msgPong, RequestID: m.RequestID})
		case msgCheckSolutions:
			roomID, handle, err := s.player(m)
			if err != nil {
				g.finish(s, m, err)
				continue
			}
			// Resolves wait on Codeforces; the connection keeps serving
			// other intents meanwhile.
			inflight.Go(func() {
				g.finish(s, m, g.checkSolutions(ctx, roomID, handle))
			})
		default:
			g.finish(s, m, g.dispatch(ctx, s, m))
		}
	}
}

func (g *gateway) dispatch(ctx context.Context, s *session, m clientMessage) error {
	switch m.Type {
	case msgJoinRoom:
		return g.joinRoom(ctx, s, m)
	case msgJoinTeam:
		return g.joinTeam(ctx, s, m)
	case msgStartGame:
		return g.startGame(ctx, s, m)
	case msgLeaveRoom:
		return g.leaveRoom(ctx, s, m)
	case msgReconnect:
		return g.reconnect(ctx, s, m)
	case msgChat:
		return g.chat(ctx, s, m)
	case "":
		return fmt.Errorf("%w: missing type", errInvalidMessage)
	}
	return fmt.Errorf("%w: unknown type %q", errInvalidMessage, m.Type)
}

// finish acknowledges a request and records its result.
func (g *gateway) finish(s *session, m clientMessage, err error) {
	ack := ackMessage{Type: msgAck, RequestID: m.RequestID, OK: err == nil}
	result := "ok"
	if err != nil {
		code, _ := classify(err)
		ack.Error, ack.Code, result = publicMessage(err, code), code, code
		level := slog.LevelDebug
		if code == codeUnavailable || code == codeInternal {
			level = slog.LevelWarn
		}
		s.logger.Log(context.Background(), level, "websocket intent failed",
			"type", m.Type, "room", m.RoomID, "request_id", m.RequestID, "error", err)
	}
	intentsTotal.WithLabelValues(intentLabel(m.Type), result).Inc()
	s.reply(ack)
}

// reject answers a frame that could not be decoded into a request.
func (g *gateway) reject(s *session, err error) {
	intentsTotal.WithLabelValues("unknown", codeInvalid).Inc()
	s.reply(errorMessage{Type: msgError, Error: err.Error(), Code: codeInvalid})
}

func intentLabel(typ string) string {
	switch typ {
	case msgJoinRoom, msgJoinTeam, msgStartGame, msgLeaveRoom, msgCheckSolutions, msgReconnect, msgChat, msgPing:
		return typ
	}
	return "unknown"
}

func (g *gateway) joinRoom(ctx context.Context, s *session, m clientMessage) error {
	roomID := strings.TrimSpace(m.RoomID)
	if roomID == "" {
		return fmt.Errorf("%w: missing roomId", errInvalidMessage)
	}
	room, err := g.svc.Room(ctx, roomID)
	if errors.Is(err, store.ErrNotFound) {
		s.reply(roomNotFoundMessage{Type: msgRoomNotFound, RoomID: roomID})
		return err
	}
	if err != nil {
		return err
	}
	s.enter(g.broker, roomID)
	s.reply(roomMessage{Type: msgRoom, Version: room.Version, Room: room})
	return nil
}

func (g *gateway) joinTeam(ctx context.Context, s *session, m clientMessage) error {
	roomID, err := s.room(m)
	if err != nil {
		return err
	}
	handle := strings.TrimSpace(m.Handle)
	if handle == "" {
		return arena.ErrInvalidHandle
	}
	team, err := arena.ParseTeam(m.Team)
	if err != nil {
		return err
	}
	room, err := g.svc.JoinTeam(ctx, roomID, handle, team)
	if err != nil {
		return err
	}
	s.playAs(handle)
	g.broker.publishRoom(room)
	return nil
}

func (g *gateway) startGame(ctx context.Context, s *session, m clientMessage) error {
	roomID, err := s.room(m)
	if err != nil {
		return err
	}
	if m.Settings == nil {
		return fmt.Errorf("%w: missing settings", arena.ErrInvalidSettings)
	}
	room, err := g.svc.Start(ctx, roomID, *m.Settings)
	if err != nil {
		return err
	}
	g.broker.publishRoom(room)
	return nil
}

func (g *gateway) leaveRoom(ctx context.Context, s *session, m clientMessage) error {
	roomID, handle, err := s.player(m)
	if err != nil {
		return err
	}
	room, err := g.svc.Leave(ctx, roomID, handle)
	if err != nil {
		return err
	}
	s.exit(g.broker)
	if handle == s.handle {
		s.playAs("")
	}
	g.broker.publishRoom(room)
	return nil
}

func (g *gateway) checkSolutions(ctx context.Context, roomID, handle string) error {
	res, err := g.svc.Resolve(ctx, roomID, handle)
	// Claims won before a failure are already stored and still go out.
	g.broker.publishResult(res)
	return err
}

func (g *gateway) reconnect(ctx context.Context, s *session, m clientMessage) error {
	roomID := strings.TrimSpace(m.RoomID)
	handle := strings.TrimSpace(m.Handle)
	if roomID == "" {
		return fmt.Errorf("%w: missing roomId", errInvalidMessage)
	}
	if handle == "" {
		return arena.ErrInvalidHandle
	}
	room, team, err := g.svc.Reconnect(ctx, roomID, handle)
	if errors.Is(err, store.ErrNotFound) {
		s.reply(roomNotFoundMessage{Type: msgRoomNotFound, RoomID: roomID})
		return err
	}
	if err != nil {
		return err
	}
	s.enter(g.broker, roomID)
	s.playAs(handle)
	s.reply(reconnectedMessage{Type: msgReconnected, Version: room.Version, Handle: handle, Team: team, Room: room})
	g.broker.publishRoom(room)
	s.logger.Info("player reconnected", "room", roomID, "handle", handle, "team", team)
	return nil
}

func (g *gateway) chat(ctx context.Context, s *session, m clientMessage) error {
	roomID, handle, err := s.player(m)
	if err != nil {
		return err
	}
	text := strings.TrimSpace(m.Text)
	if text == "" || len(text) > maxChatLength {
		return fmt.Errorf("%w: chat text must be 1 to %d characters", errInvalidMessage, maxChatLength)
	}
	msg := chatMessage{Type: msgChat, RoomID: roomID, Channel: m.Channel, Handle: handle, Text: text, SentAt: time.Now().UTC()}

	switch m.Channel {
	case chatGeneral, "":
		msg.Channel = chatGeneral
		g.broker.Publish(roomID, mustMarshal(msg), nil)
		return nil
	case chatTeam:
	default:
		return fmt.Errorf("%w: unknown chat channel %q", errInvalidMessage, m.Channel)
	}

	// Team chat speaks only for the connection's own seat.
	if s.handle == "" || (m.Handle != "" && strings.TrimSpace(m.Handle) != s.handle) {
		return fmt.Errorf("%w: team chat needs this connection's seat", arena.ErrNotParticipant)
	}
	room, err := g.svc.Room(ctx, roomID)
	if err != nil {
		return err
	}
	team, ok := room.TeamOf(s.handle)
	if !ok {
		return arena.ErrNotParticipant
	}
	msg.Team = team
	// Team membership is resolved at delivery time.
	roster := room.Roster(team)
	g.broker.Publish(roomID, mustMarshal(msg), func(sub *subscriber) bool {
		h := sub.Handle()
		return h != "" && slices.Contains(roster, h)
	})
	return nil
}
