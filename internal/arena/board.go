package arena

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// BoardSize is the side length of the grid.
const BoardSize = 3

// Coord addresses one board cell. It marshals as "row,col" so it can key
// JSON objects.
type Coord struct {
	Row int
	Col int
}

func (c Coord) Valid() bool {
	return c.Row >= 0 && c.Row < BoardSize && c.Col >= 0 && c.Col < BoardSize
}

func (c Coord) String() string { return strconv.Itoa(c.Row) + "," + strconv.Itoa(c.Col) }

func (c Coord) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Coord) UnmarshalText(b []byte) error {
	parsed, err := ParseCoord(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func ParseCoord(s string) (Coord, error) {
	rs, cs, ok := strings.Cut(s, ",")
	if !ok {
		return Coord{}, fmt.Errorf("coordinate %q: want row,col", s)
	}
	row, err := strconv.Atoi(strings.TrimSpace(rs))
	if err != nil {
		return Coord{}, fmt.Errorf("coordinate %q: %w", s, err)
	}
	col, err := strconv.Atoi(strings.TrimSpace(cs))
	if err != nil {
		return Coord{}, fmt.Errorf("coordinate %q: %w", s, err)
	}
	c := Coord{Row: row, Col: col}
	if !c.Valid() {
		return Coord{}, fmt.Errorf("coordinate %q out of bounds", s)
	}
	return c, nil
}

// AllCoords lists the cells in row-major order.
func AllCoords() []Coord {
	out := make([]Coord, 0, BoardSize*BoardSize)
	for r := range BoardSize {
		for c := range BoardSize {
			out = append(out, Coord{Row: r, Col: c})
		}
	}
	return out
}

// Problem references one Codeforces problem.
type Problem struct {
	ContestID int      `json:"contestId"`
	Index     string   `json:"index"`
	Name      string   `json:"name,omitempty"`
	Rating    int      `json:"rating,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

// Key is the problem identity shared with the solved-status oracle.
func (p Problem) Key() string { return strconv.Itoa(p.ContestID) + "-" + p.Index }

type Board [BoardSize][BoardSize]Problem

func (b *Board) At(c Coord) Problem { return b[c.Row][c.Col] }

// Problems lists the board problems in row-major order.
func (b *Board) Problems() []Problem {
	out := make([]Problem, 0, BoardSize*BoardSize)
	for _, c := range AllCoords() {
		out = append(out, b.At(c))
	}
	return out
}

// CoordsOf returns the cells whose problem key is in keys.
func (b *Board) CoordsOf(keys map[string]bool) []Coord {
	var out []Coord
	for _, c := range AllCoords() {
		if keys[b.At(c).Key()] {
			out = append(out, c)
		}
	}
	return out
}

func (b Board) clone() Board {
	for r := range BoardSize {
		for c := range BoardSize {
			b[r][c].Tags = slices.Clone(b[r][c].Tags)
		}
	}
	return b
}

// BoardFrom lays nine problems out row by row.
func BoardFrom(problems []Problem) (Board, error) {
	var b Board
	if len(problems) != BoardSize*BoardSize {
		return b, fmt.Errorf("board needs %d problems, got %d", BoardSize*BoardSize, len(problems))
	}
	for i, p := range problems {
		b[i/BoardSize][i%BoardSize] = p
	}
	return b, nil
}

type TagMode string

const (
	TagModeOR    TagMode = "OR"
	TagModeAND   TagMode = "AND"
	TagModeMixed TagMode = "MIXED"
)

// Settings is the configuration that produced a board.
type Settings struct {
	Tags      []string `json:"tags"`
	TagMode   TagMode  `json:"tagMode"`
	MinRating int      `json:"minDifficulty"`
	MaxRating int      `json:"maxDifficulty"`
}

// Normalize defaults the tag mode and drops blank tags.
func (s Settings) Normalize() Settings {
	if s.TagMode == "" {
		s.TagMode = TagModeOR
	}
	s.TagMode = TagMode(strings.ToUpper(string(s.TagMode)))
	tags := make([]string, 0, len(s.Tags))
	for _, t := range s.Tags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	s.Tags = tags
	return s
}

func (s Settings) Validate() error {
	switch s.TagMode {
	case TagModeOR, TagModeAND, TagModeMixed:
	default:
		return fmt.Errorf("%w: unknown tag mode %q", ErrInvalidSettings, s.TagMode)
	}
	if s.MinRating <= 0 || s.MaxRating <= 0 {
		return fmt.Errorf("%w: both minimum and maximum difficulty must be specified", ErrInvalidSettings)
	}
	if s.MinRating > s.MaxRating {
		return fmt.Errorf("%w: minimum difficulty %d above maximum %d", ErrInvalidSettings, s.MinRating, s.MaxRating)
	}
	return nil
}
