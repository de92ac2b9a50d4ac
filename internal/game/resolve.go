package game

import (
	"context"
	"fmt"
	"time"

	"github.com/tictaccode/arena/internal/arena"
)

// commitTimeout bounds the store writes of one resolve.
const commitTimeout = 5 * time.Second

// ClaimedCell is one cell won by a resolve call.
type ClaimedCell struct {
	Coord arena.Coord `json:"coord"`
	Team  arena.Team  `json:"team"`
}

type Result struct {
	NewlyClaimed []ClaimedCell `json:"newlyClaimed"`
	// Concluded is set when this call recorded the room outcome.
	Concluded bool       `json:"concluded"`
	Room      arena.Room `json:"room"`
}

// Resolve turns the handle's solved board problems into claims for its team.
// Each cell goes through the store's insert-if-absent, so a cell lost to a
// concurrent resolve is dropped silently. Only cells this call won are
// returned. When some cells were committed before a failure, the result
// carries them next to the error.
//
// The board is evaluated after every resolve of a running game, so a
// finished line whose outcome was never recorded is concluded by the next
// resolve of any participant.
func (s *Service) Resolve(ctx context.Context, id, handle string) (res Result, err error) {
	start := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		} else if len(res.NewlyClaimed) == 0 && !res.Concluded {
			result = "noop"
		}
		resolveDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
	}()

	octx := ctx
	if s.opts.ResolveTimeout > 0 {
		var cancel context.CancelFunc
		octx, cancel = context.WithTimeout(ctx, s.opts.ResolveTimeout)
		defer cancel()
	}

	room, err := s.Room(octx, id)
	if err != nil {
		return Result{}, err
	}
	res.Room = room

	switch room.Phase {
	case arena.PhaseLobby:
		return res, arena.ErrNotInProgress
	case arena.PhaseFinished:
		return res, arena.ErrGameOver
	}
	team, ok := room.TeamOf(handle)
	if !ok {
		return res, arena.ErrNotParticipant
	}

	solved, err := s.oracle.Solved(octx, handle, room.Board.Problems())
	if err != nil {
		return res, fmt.Errorf("%w: checking solves for %s: %w", ErrUnavailable, handle, err)
	}

	// Writes get their own deadline so a slow oracle cannot strand claims
	// without their outcome.
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()

	latest := room
	for _, c := range room.Board.CoordsOf(solved) {
		if _, taken := room.Claims[c]; taken {
			continue
		}
		claim := arena.Claim{Team: team, Claimant: handle, ClaimedAt: s.now().UTC()}
		won, after, err := s.store.Claim(cctx, id, c, claim)
		if err != nil {
			res.Room = latest
			return res, fmt.Errorf("claiming %s: %w", c, err)
		}
		if after.Version >= latest.Version {
			latest = after
		}
		if won {
			res.NewlyClaimed = append(res.NewlyClaimed, ClaimedCell{Coord: c, Team: team})
			claimsTotal.WithLabelValues(string(team)).Inc()
		}
	}
	res.Room = latest
	if len(res.NewlyClaimed) > 0 {
		s.logger.Info("cells claimed", "room", id, "handle", handle, "team", team, "cells", len(res.NewlyClaimed))
	}

	// Evaluated even when nothing was won: an earlier resolve may have
	// committed a finishing claim and then failed to record the outcome.
	if latest.Outcome != arena.OutcomeNone {
		return res, nil
	}
	outcome := arena.Evaluate(latest.Marks)
	if outcome == arena.OutcomeNone {
		return res, nil
	}
	final, err := s.store.Update(cctx, id, func(r *arena.Room) (bool, error) {
		res.Concluded = r.Conclude(outcome)
		return res.Concluded, nil
	})
	if err != nil {
		res.Concluded = false
		return res, fmt.Errorf("recording outcome: %w", err)
	}
	res.Room = final
	if res.Concluded {
		outcomesTotal.WithLabelValues(string(outcome)).Inc()
		s.logger.Info("game over", "room", id, "outcome", outcome)
	}
	return res, nil
}
