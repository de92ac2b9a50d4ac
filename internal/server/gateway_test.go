package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/tictaccode/arena/internal/arena"
)

type frame struct {
	Type      string           `json:"type"`
	RequestID string           `json:"requestId"`
	OK        bool             `json:"ok"`
	Code      string           `json:"code"`
	Error     string           `json:"error"`
	Version   int64            `json:"version"`
	Room      arena.Room       `json:"room"`
	Team      arena.Team       `json:"team"`
	Handle    string           `json:"handle"`
	Outcome   arena.Outcome    `json:"outcome"`
	Claimed   []map[string]any `json:"newlyClaimed"`
	Channel   string           `json:"channel"`
	Text      string           `json:"text"`
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
	seq  int
}

func newGatewayServer(t *testing.T) (*testEnv, *httptest.Server) {
	t.Helper()
	env := testDeps(t)
	srv := httptest.NewServer(NewRouter(discardLogger(), env.deps))
	t.Cleanup(srv.Close)
	return env, srv
}

func dial(t *testing.T, srv *httptest.Server) *wsClient {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + srv.URL[len("http"):] + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return &wsClient{t: t, conn: conn}
}

// send writes a request and returns its request id.
func (c *wsClient) send(msg map[string]any) string {
	c.t.Helper()
	c.seq++
	id := fmt.Sprintf("req-%d", c.seq)
	msg["requestId"] = id
	c.sendRaw(msg)
	return id
}

func (c *wsClient) sendRaw(msg any) {
	c.t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		c.t.Fatalf("marshal: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

func (c *wsClient) read(timeout time.Duration) (frame, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return frame{}, err
	}
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		c.t.Fatalf("decoding %s: %v", data, err)
	}
	return f, nil
}

// expect reads until a frame of the given type arrives, skipping others.
func (c *wsClient) expect(typ string) frame {
	c.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		f, err := c.read(time.Until(deadline))
		if err != nil {
			c.t.Fatalf("waiting for %s: %v", typ, err)
		}
		if f.Type == typ {
			return f
		}
	}
	c.t.Fatalf("timed out waiting for %s", typ)
	return frame{}
}

// ack reads until the ack for requestID arrives.
func (c *wsClient) ack(requestID string) frame {
	c.t.Helper()
	for {
		f := c.expect(msgAck)
		if f.RequestID == requestID {
			return f
		}
	}
}

func (c *wsClient) mustAck(requestID string) {
	c.t.Helper()
	if f := c.ack(requestID); !f.OK {
		c.t.Fatalf("request %s failed: %s (%s)", requestID, f.Error, f.Code)
	}
}

func (c *wsClient) joinRoom(roomID string) arena.Room {
	c.t.Helper()
	id := c.send(map[string]any{"type": msgJoinRoom, "roomId": roomID})
	room := c.expect(msgRoom).Room
	c.mustAck(id)
	return room
}

func (c *wsClient) joinTeam(handle, team string) {
	c.t.Helper()
	c.mustAck(c.send(map[string]any{"type": msgJoinTeam, "handle": handle, "team": team}))
}

func TestGatewayJoinUnknownRoom(t *testing.T) {
	_, srv := newGatewayServer(t)
	c := dial(t, srv)

	id := c.send(map[string]any{"type": msgJoinRoom, "roomId": "ffffff"})
	if f := c.expect(msgRoomNotFound); f.Type != msgRoomNotFound {
		t.Fatalf("got %+v", f)
	}
	if f := c.ack(id); f.OK || f.Code != codeNotFound {
		t.Fatalf("ack = %+v, want not_found", f)
	}
}

func TestGatewayJoinRoomSnapshotGoesToRequesterOnly(t *testing.T) {
	env, srv := newGatewayServer(t)
	room, err := env.svc.CreateRoom(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	c1, c2 := dial(t, srv), dial(t, srv)
	c1.joinRoom(room.ID)
	got := c2.joinRoom(room.ID)
	if got.ID != room.ID || got.Phase != arena.PhaseLobby {
		t.Fatalf("snapshot = %+v", got)
	}

	// c2's join produced no broadcast, so c1's next message answers its ping.
	c1.sendRaw(map[string]any{"type": msgPing, "requestId": "p1"})
	if f, err := c1.read(2 * time.Second); err != nil || f.Type != msgPong || f.RequestID != "p1" {
		t.Fatalf("next frame = %+v, %v; want pong", f, err)
	}
}

func TestGatewayFullGame(t *testing.T) {
	env, srv := newGatewayServer(t)
	room, err := env.svc.CreateRoom(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	alice, bob := dial(t, srv), dial(t, srv)
	alice.joinRoom(room.ID)
	bob.joinRoom(room.ID)

	alice.joinTeam("alice", "teamA")
	if r := bob.expect(msgRoom).Room; len(r.TeamA) != 1 || r.TeamA[0] != "alice" {
		t.Fatalf("bob saw rosters %v / %v", r.TeamA, r.TeamB)
	}
	bob.joinTeam("bob", "teamB")

	start := alice.send(map[string]any{"type": msgStartGame, "settings": testSettings})
	for _, c := range []*wsClient{alice, bob} {
		for {
			r := c.expect(msgRoom).Room
			if r.Phase == arena.PhaseInProgress {
				if r.Board == nil {
					t.Fatal("started room has no board")
				}
				break
			}
		}
	}
	alice.mustAck(start)

	env.oracle.solve("alice", arena.Coord{Row: 0, Col: 0}, arena.Coord{Row: 0, Col: 1}, arena.Coord{Row: 0, Col: 2})
	check := alice.send(map[string]any{"type": msgCheckSolutions})

	state := bob.expect(msgGameState)
	if len(state.Claimed) != 3 {
		t.Fatalf("gameState claimed %v", state.Claimed)
	}
	over := bob.expect(msgGameOver)
	if over.Outcome != arena.OutcomeTeamAWins {
		t.Fatalf("outcome = %q", over.Outcome)
	}
	if over.Version < state.Version {
		t.Fatalf("gameOver version %d older than gameState %d", over.Version, state.Version)
	}
	alice.mustAck(check)

	// The game is over: further checks are rejected with no broadcast.
	again := bob.send(map[string]any{"type": msgCheckSolutions})
	if f := bob.ack(again); f.OK || f.Code != codePrecondition {
		t.Fatalf("ack = %+v, want precondition", f)
	}
}

func TestGatewayStartRequiresBothTeams(t *testing.T) {
	env, srv := newGatewayServer(t)
	room, _ := env.svc.CreateRoom(context.Background())
	c := dial(t, srv)
	c.joinRoom(room.ID)
	c.joinTeam("alice", "A")

	id := c.send(map[string]any{"type": msgStartGame, "settings": testSettings})
	if f := c.ack(id); f.OK || f.Code != codePrecondition {
		t.Fatalf("ack = %+v, want precondition", f)
	}
	id = c.send(map[string]any{"type": msgStartGame})
	if f := c.ack(id); f.OK || f.Code != codeInvalid {
		t.Fatalf("ack without settings = %+v, want invalid", f)
	}
}

func TestGatewayTeamChat(t *testing.T) {
	env, srv := newGatewayServer(t)
	room, _ := env.svc.CreateRoom(context.Background())
	alice, amy, bob := dial(t, srv), dial(t, srv), dial(t, srv)
	for _, c := range []*wsClient{alice, amy, bob} {
		c.joinRoom(room.ID)
	}
	alice.joinTeam("alice", "A")
	amy.joinTeam("amy", "A")
	bob.joinTeam("bob", "B")

	alice.mustAck(alice.send(map[string]any{"type": msgChat, "channel": chatTeam, "text": "take the centre"}))
	alice.mustAck(alice.send(map[string]any{"type": msgChat, "channel": chatGeneral, "text": "good luck"}))

	if f := amy.expect(msgChat); f.Text != "take the centre" || f.Team != arena.TeamA {
		t.Fatalf("amy got %+v", f)
	}
	if f := bob.expect(msgChat); f.Text != "good luck" {
		t.Fatalf("bob's first chat = %q, want the general message", f.Text)
	}

	if f := amy.expect(msgChat); f.Text != "good luck" {
		t.Fatalf("amy = %q, want the general message", f.Text)
	}

	// Switching teams moves amy's team chat with her.
	amy.joinTeam("amy", "B")
	bob.mustAck(bob.send(map[string]any{"type": msgChat, "channel": chatTeam, "text": "welcome"}))
	if f := amy.expect(msgChat); f.Text != "welcome" || f.Team != arena.TeamB {
		t.Fatalf("amy got %+v", f)
	}

	id := alice.send(map[string]any{"type": msgChat, "channel": chatGeneral, "text": "   "})
	if f := alice.ack(id); f.OK || f.Code != codeInvalid {
		t.Fatalf("ack for blank chat = %+v", f)
	}
}

func TestGatewayTeamChatSpeaksForOwnSeat(t *testing.T) {
	env, srv := newGatewayServer(t)
	room, _ := env.svc.CreateRoom(context.Background())
	alice, bob, eve := dial(t, srv), dial(t, srv), dial(t, srv)
	for _, c := range []*wsClient{alice, bob, eve} {
		c.joinRoom(room.ID)
	}
	alice.joinTeam("alice", "A")
	bob.joinTeam("bob", "B")

	tests := []struct {
		name string
		c    *wsClient
	}{
		{"seated player naming an opponent", alice},
		{"spectator naming a player", eve},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := tt.c.send(map[string]any{"type": msgChat, "channel": chatTeam, "handle": "bob", "text": "go left"})
			if f := tt.c.ack(id); f.OK || f.Code != codePrecondition {
				t.Fatalf("ack = %+v, want precondition", f)
			}
		})
	}

	bob.mustAck(bob.send(map[string]any{"type": msgChat, "channel": chatTeam, "handle": "bob", "text": "mine"}))
	if f := bob.expect(msgChat); f.Text != "mine" || f.Handle != "bob" {
		t.Fatalf("bob got %+v", f)
	}
}

func TestGatewaySwitchingRoomsDropsSeat(t *testing.T) {
	env, srv := newGatewayServer(t)
	first, _ := env.svc.CreateRoom(context.Background())
	second, _ := env.svc.CreateRoom(context.Background())

	c := dial(t, srv)
	c.joinRoom(first.ID)
	c.joinTeam("alice", "A")
	if got := c.joinRoom(second.ID); got.ID != second.ID {
		t.Fatalf("snapshot for %s, want %s", got.ID, second.ID)
	}

	id := c.send(map[string]any{"type": msgCheckSolutions})
	if f := c.ack(id); f.OK || f.Code != codeInvalid {
		t.Fatalf("check ack = %+v, want invalid", f)
	}
	id = c.send(map[string]any{"type": msgChat, "channel": chatTeam, "text": "hi"})
	if f := c.ack(id); f.OK || f.Code != codePrecondition {
		t.Fatalf("team chat ack = %+v, want precondition", f)
	}
}

func TestGatewayReconnect(t *testing.T) {
	env, srv := newGatewayServer(t)
	room := env.startedRoom(t)

	c := dial(t, srv)
	id := c.send(map[string]any{"type": msgReconnect, "roomId": room.ID, "handle": "alice"})
	f := c.expect(msgReconnected)
	if f.Team != arena.TeamA || f.Handle != "alice" || f.Room.Board == nil {
		t.Fatalf("reconnected = %+v", f)
	}
	c.mustAck(id)

	// The reconnected session plays as alice without repeating the handle.
	env.oracle.solve("alice", arena.Coord{Row: 2, Col: 2})
	c.mustAck(c.send(map[string]any{"type": msgCheckSolutions}))
	got, err := env.svc.Room(context.Background(), room.ID)
	if err != nil {
		t.Fatal(err)
	}
	if cl := got.Claims[arena.Coord{Row: 2, Col: 2}]; cl.Claimant != "alice" {
		t.Fatalf("claim = %+v", cl)
	}

	id = c.send(map[string]any{"type": msgReconnect, "roomId": room.ID, "handle": "mallory"})
	if f := c.ack(id); f.OK || f.Code != codePrecondition {
		t.Fatalf("ack = %+v, want precondition", f)
	}
}

func TestGatewayDisconnectKeepsSeat(t *testing.T) {
	env, srv := newGatewayServer(t)
	room, _ := env.svc.CreateRoom(context.Background())

	c := dial(t, srv)
	c.joinRoom(room.ID)
	c.joinTeam("alice", "A")
	c.conn.Close(websocket.StatusNormalClosure, "bye")

	c2 := dial(t, srv)
	id := c2.send(map[string]any{"type": msgReconnect, "roomId": room.ID, "handle": "alice"})
	if f := c2.expect(msgReconnected); f.Team != arena.TeamA {
		t.Fatalf("reconnected = %+v", f)
	}
	c2.mustAck(id)
}

func TestGatewayLeaveIsPermanent(t *testing.T) {
	env, srv := newGatewayServer(t)
	room, _ := env.svc.CreateRoom(context.Background())
	alice, bob := dial(t, srv), dial(t, srv)
	alice.joinRoom(room.ID)
	bob.joinRoom(room.ID)
	alice.joinTeam("alice", "A")

	alice.mustAck(alice.send(map[string]any{"type": msgLeaveRoom}))
	for {
		r := bob.expect(msgRoom).Room
		if len(r.TeamA) == 0 {
			break
		}
	}

	id := alice.send(map[string]any{"type": msgReconnect, "roomId": room.ID, "handle": "alice"})
	if f := alice.ack(id); f.OK || f.Code != codePrecondition {
		t.Fatalf("ack = %+v, want precondition", f)
	}
	got, _ := env.svc.Room(context.Background(), room.ID)
	if len(got.TeamA) != 0 || len(got.TeamB) != 0 {
		t.Fatalf("rosters = %v / %v", got.TeamA, got.TeamB)
	}
}

func TestGatewayRejectsBadInput(t *testing.T) {
	_, srv := newGatewayServer(t)
	c := dial(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.conn.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	if f := c.expect(msgError); f.Code != codeInvalid {
		t.Fatalf("error frame = %+v", f)
	}

	tests := []struct {
		name string
		msg  map[string]any
	}{
		{"unknown type", map[string]any{"type": "teleport"}},
		{"team before room", map[string]any{"type": msgJoinTeam, "handle": "alice", "team": "A"}},
		{"check before room", map[string]any{"type": msgCheckSolutions, "handle": "alice"}},
		{"join without id", map[string]any{"type": msgJoinRoom}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := c.send(tt.msg)
			if f := c.ack(id); f.OK || f.Code != codeInvalid {
				t.Fatalf("ack = %+v, want invalid", f)
			}
		})
	}
}
