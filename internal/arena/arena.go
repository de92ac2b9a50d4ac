// Package arena defines the core domain types of a two-team tic-tac-toe
// match played over Codeforces problems, and the rules that mutate them.
// It has no dependencies outside the standard library.
package arena

import (
	"fmt"
	"slices"
	"time"
)

// TeamCapacity is the maximum number of handles on one roster.
const TeamCapacity = 2

type Team string

const (
	TeamA Team = "A"
	TeamB Team = "B"
)

// ParseTeam accepts the short ("A") and long ("teamA") spellings used by clients.
func ParseTeam(s string) (Team, error) {
	switch s {
	case "A", "a", "teamA":
		return TeamA, nil
	case "B", "b", "teamB":
		return TeamB, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTeam, s)
}

func (t Team) Valid() bool { return t == TeamA || t == TeamB }

func (t Team) Mark() Mark {
	if t == TeamA {
		return MarkX
	}
	return MarkO
}

func (t Team) Other() Team {
	if t == TeamA {
		return TeamB
	}
	return TeamA
}

type Mark string

const (
	MarkX Mark = "X"
	MarkO Mark = "O"
)

func (m Mark) Team() Team {
	if m == MarkX {
		return TeamA
	}
	return TeamB
}

type Phase string

const (
	PhaseLobby      Phase = "lobby"
	PhaseInProgress Phase = "in_progress"
	PhaseFinished   Phase = "finished"
)

type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeTeamAWins Outcome = "teamA"
	OutcomeTeamBWins Outcome = "teamB"
	OutcomeDraw      Outcome = "draw"
)

// Winner reports the winning team, if any.
func (o Outcome) Winner() (Team, bool) {
	switch o {
	case OutcomeTeamAWins:
		return TeamA, true
	case OutcomeTeamBWins:
		return TeamB, true
	}
	return "", false
}

func outcomeFor(t Team) Outcome {
	if t == TeamA {
		return OutcomeTeamAWins
	}
	return OutcomeTeamBWins
}

// Claim is a permanent assignment of a board cell to a team.
type Claim struct {
	Team      Team      `json:"team"`
	Claimant  string    `json:"claimant"`
	ClaimedAt time.Time `json:"claimedAt"`
}

// Room is one game session. The zero value is not usable; call New.
type Room struct {
	ID        string          `json:"roomId"`
	TeamA     []string        `json:"teamA"`
	TeamB     []string        `json:"teamB"`
	Phase     Phase           `json:"phase"`
	Board     *Board          `json:"board"`
	Settings  *Settings       `json:"settings"`
	Claims    map[Coord]Claim `json:"claims"`
	Marks     map[Coord]Mark  `json:"marks"`
	Outcome   Outcome         `json:"outcome,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	Version   int64           `json:"version"`
}

func New(id string, now time.Time) Room {
	return Room{
		ID:        id,
		TeamA:     []string{},
		TeamB:     []string{},
		Phase:     PhaseLobby,
		Claims:    map[Coord]Claim{},
		Marks:     map[Coord]Mark{},
		CreatedAt: now.UTC(),
	}
}

// Clone returns a deep copy that shares no mutable state with r.
func (r Room) Clone() Room {
	c := r
	c.TeamA = slices.Clone(r.TeamA)
	c.TeamB = slices.Clone(r.TeamB)
	if c.TeamA == nil {
		c.TeamA = []string{}
	}
	if c.TeamB == nil {
		c.TeamB = []string{}
	}
	if r.Board != nil {
		b := r.Board.clone()
		c.Board = &b
	}
	if r.Settings != nil {
		s := *r.Settings
		s.Tags = slices.Clone(r.Settings.Tags)
		c.Settings = &s
	}
	c.Claims = make(map[Coord]Claim, len(r.Claims))
	for k, v := range r.Claims {
		c.Claims[k] = v
	}
	c.Marks = make(map[Coord]Mark, len(r.Marks))
	for k, v := range r.Marks {
		c.Marks[k] = v
	}
	return c
}

func (r *Room) Roster(t Team) []string {
	if t == TeamA {
		return r.TeamA
	}
	return r.TeamB
}

// TeamOf reports which roster currently holds handle.
func (r *Room) TeamOf(handle string) (Team, bool) {
	switch {
	case slices.Contains(r.TeamA, handle):
		return TeamA, true
	case slices.Contains(r.TeamB, handle):
		return TeamB, true
	}
	return "", false
}

func (r *Room) IsParticipant(handle string) bool {
	_, ok := r.TeamOf(handle)
	return ok
}

// Participants returns both rosters, team A first.
func (r *Room) Participants() []string {
	return slices.Concat(r.TeamA, r.TeamB)
}

// Join moves handle onto team. It reports whether the room changed; joining
// the team the handle is already on is a no-op.
func (r *Room) Join(handle string, team Team) (bool, error) {
	if handle == "" {
		return false, ErrInvalidHandle
	}
	if !team.Valid() {
		return false, ErrInvalidTeam
	}
	if r.Phase != PhaseLobby {
		return false, ErrNotLobby
	}
	if current, ok := r.TeamOf(handle); ok && current == team {
		return false, nil
	}
	if len(r.Roster(team)) >= TeamCapacity {
		return false, ErrTeamFull
	}

	r.TeamA = slices.DeleteFunc(r.TeamA, func(h string) bool { return h == handle })
	r.TeamB = slices.DeleteFunc(r.TeamB, func(h string) bool { return h == handle })
	if team == TeamA {
		r.TeamA = append(r.TeamA, handle)
	} else {
		r.TeamB = append(r.TeamB, handle)
	}
	return true, nil
}

// Leave removes handle from both rosters in any phase.
func (r *Room) Leave(handle string) bool {
	before := len(r.TeamA) + len(r.TeamB)
	r.TeamA = slices.DeleteFunc(r.TeamA, func(h string) bool { return h == handle })
	r.TeamB = slices.DeleteFunc(r.TeamB, func(h string) bool { return h == handle })
	return len(r.TeamA)+len(r.TeamB) != before
}

// CanStart checks the Lobby → InProgress preconditions.
func (r *Room) CanStart() error {
	if r.Phase != PhaseLobby {
		return ErrNotLobby
	}
	if len(r.TeamA) == 0 || len(r.TeamB) == 0 {
		return ErrRostersIncomplete
	}
	return nil
}

// Begin fixes the board and settings and moves the room to InProgress.
func (r *Room) Begin(board Board, settings Settings) error {
	if err := r.CanStart(); err != nil {
		return err
	}
	r.Board = &board
	s := settings
	s.Tags = slices.Clone(settings.Tags)
	r.Settings = &s
	r.Phase = PhaseInProgress
	return nil
}

// RecordClaim inserts claim at c only if c is on the board and unclaimed.
// The marks projection is updated in the same step.
func (r *Room) RecordClaim(c Coord, claim Claim) bool {
	if r.Board == nil || !c.Valid() || !claim.Team.Valid() {
		return false
	}
	if _, taken := r.Claims[c]; taken {
		return false
	}
	if r.Claims == nil {
		r.Claims = map[Coord]Claim{}
	}
	if r.Marks == nil {
		r.Marks = map[Coord]Mark{}
	}
	r.Claims[c] = claim
	r.Marks[c] = claim.Team.Mark()
	return true
}

// Conclude sets the outcome once and finishes the room. Setting the outcome a
// second time is a no-op and reports false.
func (r *Room) Conclude(o Outcome) bool {
	if o == OutcomeNone || r.Outcome != OutcomeNone {
		return false
	}
	r.Outcome = o
	r.Phase = PhaseFinished
	return true
}

// Expired reports whether the room has outlived ttl at now.
func (r *Room) Expired(now time.Time, ttl time.Duration) bool {
	return !r.CreatedAt.Add(ttl).After(now)
}

// DeriveMarks recomputes the marks projection from claims.
func DeriveMarks(claims map[Coord]Claim) map[Coord]Mark {
	marks := make(map[Coord]Mark, len(claims))
	for c, cl := range claims {
		marks[c] = cl.Team.Mark()
	}
	return marks
}

// CheckInvariants returns the first violated room invariant, if any.
func (r *Room) CheckInvariants() error {
	if len(r.TeamA) > TeamCapacity || len(r.TeamB) > TeamCapacity {
		return fmt.Errorf("roster over capacity: A=%d B=%d", len(r.TeamA), len(r.TeamB))
	}
	for _, h := range r.TeamA {
		if slices.Contains(r.TeamB, h) {
			return fmt.Errorf("handle %q on both rosters", h)
		}
	}
	if (r.Board != nil) != (r.Phase != PhaseLobby) {
		return fmt.Errorf("board presence does not match phase %s", r.Phase)
	}
	if r.Outcome != OutcomeNone && r.Phase != PhaseFinished {
		return fmt.Errorf("outcome %s set in phase %s", r.Outcome, r.Phase)
	}
	for c := range r.Claims {
		if !c.Valid() {
			return fmt.Errorf("claim at invalid coordinate %s", c)
		}
	}
	if len(r.Marks) != len(r.Claims) {
		return fmt.Errorf("marks (%d) diverge from claims (%d)", len(r.Marks), len(r.Claims))
	}
	for c, m := range DeriveMarks(r.Claims) {
		if r.Marks[c] != m {
			return fmt.Errorf("mark at %s is %q, want %q", c, r.Marks[c], m)
		}
	}
	return nil
}
