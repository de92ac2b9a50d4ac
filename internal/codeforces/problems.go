package codeforces

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/tictaccode/arena/internal/arena"
)

// ErrInsufficientProblems means fewer than nine problems matched the settings.
var ErrInsufficientProblems = errors.New("not enough unsolved problems matching the criteria")

type problemset struct {
	Problems []arena.Problem `json:"problems"`
}

// Provision builds a board of nine problems that match settings and that
// nobody in handles has solved yet.
func (c *Client) Provision(ctx context.Context, handles []string, settings arena.Settings) (arena.Board, error) {
	settings = settings.Normalize()
	if err := settings.Validate(); err != nil {
		return arena.Board{}, err
	}

	problems, err := c.problemsFor(ctx, settings)
	if err != nil {
		return arena.Board{}, err
	}

	solved := make(map[string]bool)
	for _, h := range handles {
		keys, err := c.solvedSet(ctx, h)
		if err != nil {
			return arena.Board{}, fmt.Errorf("fetching solved problems for %s: %w", h, err)
		}
		for k := range keys {
			solved[k] = true
		}
	}

	var candidates []arena.Problem
	for _, p := range problems {
		if p.ContestID == 0 || p.Index == "" || solved[p.Key()] {
			continue
		}
		if p.Rating == 0 || p.Rating < settings.MinRating || p.Rating > settings.MaxRating {
			continue
		}
		candidates = append(candidates, p)
	}

	n := arena.BoardSize * arena.BoardSize
	if len(candidates) < n {
		return arena.Board{}, fmt.Errorf("%w: found %d, try a wider rating range or other tags",
			ErrInsufficientProblems, len(candidates))
	}

	c.mu.Lock()
	perm := c.rng.Perm(len(candidates))
	c.mu.Unlock()

	picked := make([]arena.Problem, 0, n)
	for _, i := range perm[:n] {
		picked = append(picked, candidates[i])
	}
	c.logger.Debug("provisioned board",
		"handles", handles, "tag_mode", settings.TagMode, "candidates", len(candidates))
	return arena.BoardFrom(picked)
}

// problemsFor fetches the problem pool for the tag selection. OR issues one
// request per tag and merges the results.
func (c *Client) problemsFor(ctx context.Context, s arena.Settings) ([]arena.Problem, error) {
	if len(s.Tags) == 0 || s.TagMode == arena.TagModeMixed {
		return c.problems(ctx, "")
	}
	if s.TagMode == arena.TagModeAND {
		return c.problems(ctx, strings.Join(s.Tags, ";"))
	}

	seen := make(map[string]bool)
	var out []arena.Problem
	for _, tag := range s.Tags {
		ps, err := c.problems(ctx, tag)
		if err != nil {
			return nil, err
		}
		for _, p := range ps {
			if !seen[p.Key()] {
				seen[p.Key()] = true
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (c *Client) problems(ctx context.Context, tags string) ([]arena.Problem, error) {
	params := url.Values{}
	if tags != "" {
		params.Set("tags", tags)
	}
	var res problemset
	err := c.call(ctx, "problemset.problems", params, &res)
	if errors.Is(err, errBadRequest) && tags != "" {
		c.logger.Info("codeforces rejected tags", "tags", tags)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching problemset: %w", err)
	}
	return res.Problems, nil
}
