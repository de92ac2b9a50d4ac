package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/tictaccode/arena/internal/arena"
	"github.com/tictaccode/arena/internal/game"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func drain(s *subscriber) []string {
	var out []string
	for {
		select {
		case msg := <-s.out:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestBrokerDropsOlderVersions(t *testing.T) {
	b := NewBroker(discardLogger())
	s := newSubscriber("s1")
	b.Join("r1", s)

	if !b.PublishVersioned("r1", 3, []byte("v3")) {
		t.Fatal("v3 not published")
	}
	if b.PublishVersioned("r1", 2, []byte("v2")) {
		t.Fatal("v2 published after v3")
	}
	if !b.PublishVersioned("r1", 3, []byte("v3 again")) {
		t.Fatal("equal version dropped")
	}
	b.PublishVersioned("r1", 4, []byte("v4"))

	got := drain(s)
	want := []string{"v3", "v3 again", "v4"}
	if len(got) != len(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBrokerRoomsAreIndependent(t *testing.T) {
	b := NewBroker(discardLogger())
	s1, s2 := newSubscriber("s1"), newSubscriber("s2")
	b.Join("r1", s1)
	b.Join("r2", s2)

	b.PublishVersioned("r1", 10, []byte("r1"))
	if !b.PublishVersioned("r2", 1, []byte("r2")) {
		t.Fatal("r2 publish dropped because of r1's version")
	}
	if got := drain(s1); len(got) != 1 || got[0] != "r1" {
		t.Errorf("s1 got %q", got)
	}
	if got := drain(s2); len(got) != 1 || got[0] != "r2" {
		t.Errorf("s2 got %q", got)
	}
}

func TestBrokerEvictsSlowSubscriber(t *testing.T) {
	b := NewBroker(discardLogger())
	slow, fast := newSubscriber("slow"), newSubscriber("fast")
	b.Join("r1", slow)
	b.Join("r1", fast)

	for i := range subscriberBuffer + 1 {
		b.Publish("r1", []byte{byte(i)}, nil)
		drain(fast)
	}

	select {
	case <-slow.evicted:
	default:
		t.Fatal("slow subscriber not evicted")
	}
	if n := b.Members("r1"); n != 1 {
		t.Fatalf("members = %d, want 1", n)
	}
	if slow.send([]byte("late")) {
		t.Fatal("send to evicted subscriber succeeded")
	}
}

func TestBrokerFilter(t *testing.T) {
	b := NewBroker(discardLogger())
	alice, bob := newSubscriber("c1"), newSubscriber("c2")
	alice.setHandle("alice")
	bob.setHandle("bob")
	b.Join("r1", alice)
	b.Join("r1", bob)

	b.Publish("r1", []byte("secret"), func(s *subscriber) bool { return s.Handle() == "alice" })

	if got := drain(alice); len(got) != 1 {
		t.Errorf("alice got %q", got)
	}
	if got := drain(bob); len(got) != 0 {
		t.Errorf("bob got %q", got)
	}
}

func TestBrokerLeaveRemovesEmptyGroup(t *testing.T) {
	b := NewBroker(discardLogger())
	s := newSubscriber("s1")
	b.Join("r1", s)
	b.Leave("r1", s)
	b.Leave("r1", s)

	if n := b.Members("r1"); n != 0 {
		t.Fatalf("members = %d, want 0", n)
	}
	if b.PublishVersioned("r1", 1, []byte("x")) {
		t.Fatal("published to an empty room")
	}
}

func TestPublishResult(t *testing.T) {
	room := arena.Room{ID: "r1", Version: 7, Phase: arena.PhaseFinished, Outcome: arena.OutcomeTeamBWins}
	tests := []struct {
		name  string
		res   game.Result
		types []string
	}{
		{"nothing changed", game.Result{Room: room}, nil},
		{"claims only", game.Result{Room: room, NewlyClaimed: []game.ClaimedCell{{Team: arena.TeamB}}}, []string{msgGameState}},
		{"claims and outcome", game.Result{Room: room, NewlyClaimed: []game.ClaimedCell{{Team: arena.TeamB}}, Concluded: true}, []string{msgGameState, msgGameOver}},
		{"outcome without new claims", game.Result{Room: room, Concluded: true}, []string{msgGameOver}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBroker(discardLogger())
			s := newSubscriber("s1")
			b.Join("r1", s)

			b.publishResult(tt.res)

			got := drain(s)
			if len(got) != len(tt.types) {
				t.Fatalf("got %d messages %q, want types %v", len(got), got, tt.types)
			}
			for i, raw := range got {
				var f struct {
					Type string `json:"type"`
				}
				if err := json.Unmarshal([]byte(raw), &f); err != nil {
					t.Fatal(err)
				}
				if f.Type != tt.types[i] {
					t.Errorf("message %d type = %q, want %q", i, f.Type, tt.types[i])
				}
			}
		})
	}
}
