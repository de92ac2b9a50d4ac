package game

import (
	"context"
	"math"
	"time"

	"github.com/tictaccode/arena/internal/arena"
)

type TeamSummary struct {
	Name        string   `json:"name"`
	Players     []string `json:"players"`
	SolvedCount int      `json:"solvedCount"`
}

type GameRecord struct {
	GameID       string        `json:"gameId"`
	Date         time.Time     `json:"date"`
	UserTeam     TeamSummary   `json:"userTeam"`
	OpponentTeam TeamSummary   `json:"opponentTeam"`
	Result       string        `json:"result"` // Win, Loss or Draw
	TotalSolved  int           `json:"totalSolved"`
	Winner       arena.Outcome `json:"winner"`
}

type Stats struct {
	TotalGames int     `json:"totalGames"`
	Wins       int     `json:"wins"`
	Losses     int     `json:"losses"`
	Draws      int     `json:"draws"`
	WinRate    float64 `json:"winRate"` // percent, one decimal
}

type History struct {
	Games []GameRecord `json:"gameHistory"`
	Stats Stats        `json:"stats"`
}

// History summarizes the finished games handle was on a roster for, newest
// first, from that handle's point of view.
func (s *Service) History(ctx context.Context, handle string) (History, error) {
	rooms, err := s.store.FinishedFor(ctx, handle)
	if err != nil {
		return History{}, err
	}

	h := History{Games: make([]GameRecord, 0, len(rooms))}
	for _, r := range rooms {
		team, ok := r.TeamOf(handle)
		if !ok {
			continue
		}
		solved := map[arena.Team]int{}
		for _, c := range r.Claims {
			solved[c.Team]++
		}

		rec := GameRecord{
			GameID:       r.ID,
			Date:         r.CreatedAt,
			UserTeam:     summary(&r, team, solved),
			OpponentTeam: summary(&r, team.Other(), solved),
			TotalSolved:  len(r.Claims),
			Winner:       r.Outcome,
		}
		winner, decided := r.Outcome.Winner()
		switch {
		case !decided:
			rec.Result = "Draw"
			h.Stats.Draws++
		case winner == team:
			rec.Result = "Win"
			h.Stats.Wins++
		default:
			rec.Result = "Loss"
			h.Stats.Losses++
		}
		h.Games = append(h.Games, rec)
	}

	h.Stats.TotalGames = len(h.Games)
	if h.Stats.TotalGames > 0 {
		rate := float64(h.Stats.Wins) / float64(h.Stats.TotalGames) * 100
		h.Stats.WinRate = math.Round(rate*10) / 10
	}
	return h, nil
}

func summary(r *arena.Room, t arena.Team, solved map[arena.Team]int) TeamSummary {
	name := string(arena.OutcomeTeamAWins)
	if t == arena.TeamB {
		name = string(arena.OutcomeTeamBWins)
	}
	return TeamSummary{Name: name, Players: r.Roster(t), SolvedCount: solved[t]}
}
