package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tictaccode/arena/internal/arena"
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore keeps rooms in a libSQL database. Room fields live in the rooms
// table; claims live in their own table whose primary key makes a claim an
// insert-if-absent.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore expects a database already migrated by migrations.Run.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *SQLiteStore) Create(ctx context.Context, room arena.Room) error {
	cols, err := encodeRoom(room)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO rooms (id, phase, team_a, team_b, board, settings, outcome, version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, room.ID, cols.phase, cols.teamA, cols.teamB, cols.board, cols.settings, cols.outcome,
		room.Version, room.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("inserting room: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrExists
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (arena.Room, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return arena.Room{}, err
	}
	defer tx.Rollback()
	return loadRoom(ctx, tx, id)
}

func (s *SQLiteStore) Update(ctx context.Context, id string, fn UpdateFunc) (arena.Room, error) {
	for range maxUpdateAttempts {
		room, err := s.Get(ctx, id)
		if err != nil {
			return arena.Room{}, err
		}
		current := room.Clone()

		changed, err := fn(&room)
		if err != nil {
			return current, err
		}
		if !changed {
			return current, nil
		}

		cols, err := encodeRoom(room)
		if err != nil {
			return current, err
		}
		res, err := s.db.ExecContext(ctx, `
			UPDATE rooms
			SET phase = ?, team_a = ?, team_b = ?, board = ?, settings = ?, outcome = ?, version = version + 1
			WHERE id = ? AND version = ?
		`, cols.phase, cols.teamA, cols.teamB, cols.board, cols.settings, cols.outcome, id, current.Version)
		if err != nil {
			return current, fmt.Errorf("updating room: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			// Claims are owned by Claim; keep the ones that were loaded.
			room.Claims, room.Marks = current.Claims, current.Marks
			room.Version = current.Version + 1
			return room, nil
		}
	}
	return arena.Room{}, ErrConflict
}

func (s *SQLiteStore) Claim(ctx context.Context, id string, c arena.Coord, claim arena.Claim) (bool, arena.Room, error) {
	if !c.Valid() || !claim.Team.Valid() {
		return false, arena.Room{}, fmt.Errorf("invalid claim %s for team %q", c, claim.Team)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, arena.Room{}, err
	}
	defer tx.Rollback()

	// The insert only happens for a room that has a board, and the primary
	// key turns a second claim on the same cell into a no-op.
	res, err := tx.ExecContext(ctx, `
		INSERT INTO claims (room_id, cell_row, cell_col, team, mark, claimant, claimed_at)
		SELECT id, ?, ?, ?, ?, ?, ? FROM rooms WHERE id = ? AND board IS NOT NULL
		ON CONFLICT(room_id, cell_row, cell_col) DO NOTHING
	`, c.Row, c.Col, string(claim.Team), string(claim.Team.Mark()), claim.Claimant,
		claim.ClaimedAt.UTC().Format(timeLayout), id)
	if err != nil {
		return false, arena.Room{}, fmt.Errorf("inserting claim: %w", err)
	}
	n, _ := res.RowsAffected()
	won := n == 1
	if won {
		if _, err := tx.ExecContext(ctx, `UPDATE rooms SET version = version + 1 WHERE id = ?`, id); err != nil {
			return false, arena.Room{}, fmt.Errorf("bumping room version: %w", err)
		}
	}

	room, err := loadRoom(ctx, tx, id)
	if err != nil {
		return false, arena.Room{}, err
	}
	if err := tx.Commit(); err != nil {
		return false, arena.Room{}, fmt.Errorf("committing claim: %w", err)
	}
	return won, room, nil
}

func (s *SQLiteStore) FinishedFor(ctx context.Context, handle string) ([]arena.Room, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM rooms
		WHERE outcome != ''
		  AND (EXISTS (SELECT 1 FROM json_each(rooms.team_a) WHERE value = ?)
		    OR EXISTS (SELECT 1 FROM json_each(rooms.team_b) WHERE value = ?))
		ORDER BY created_at DESC
	`, handle, handle)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rooms := make([]arena.Room, 0, len(ids))
	for _, id := range ids {
		room, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

func (s *SQLiteStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rooms WHERE created_at < ?`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

type roomColumns struct {
	phase    string
	teamA    string
	teamB    string
	board    sql.NullString
	settings sql.NullString
	outcome  string
}

func encodeRoom(r arena.Room) (roomColumns, error) {
	cols := roomColumns{phase: string(r.Phase), outcome: string(r.Outcome)}

	teamA, err := json.Marshal(nonNil(r.TeamA))
	if err != nil {
		return cols, err
	}
	teamB, err := json.Marshal(nonNil(r.TeamB))
	if err != nil {
		return cols, err
	}
	cols.teamA, cols.teamB = string(teamA), string(teamB)

	if r.Board != nil {
		data, err := json.Marshal(r.Board)
		if err != nil {
			return cols, err
		}
		cols.board = sql.NullString{String: string(data), Valid: true}
	}
	if r.Settings != nil {
		data, err := json.Marshal(r.Settings)
		if err != nil {
			return cols, err
		}
		cols.settings = sql.NullString{String: string(data), Valid: true}
	}
	return cols, nil
}

func loadRoom(ctx context.Context, q queryer, id string) (arena.Room, error) {
	var (
		room            arena.Room
		phase, outcome  string
		teamA, teamB    string
		board, settings sql.NullString
		createdAt       string
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, phase, team_a, team_b, board, settings, outcome, version, created_at
		FROM rooms WHERE id = ?
	`, id).Scan(&room.ID, &phase, &teamA, &teamB, &board, &settings, &outcome, &room.Version, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return room, ErrNotFound
	}
	if err != nil {
		return room, err
	}

	room.Phase = arena.Phase(phase)
	room.Outcome = arena.Outcome(outcome)
	if room.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return room, fmt.Errorf("parsing created_at: %w", err)
	}
	if err := json.Unmarshal([]byte(teamA), &room.TeamA); err != nil {
		return room, fmt.Errorf("decoding team_a: %w", err)
	}
	if err := json.Unmarshal([]byte(teamB), &room.TeamB); err != nil {
		return room, fmt.Errorf("decoding team_b: %w", err)
	}
	if board.Valid {
		room.Board = new(arena.Board)
		if err := json.Unmarshal([]byte(board.String), room.Board); err != nil {
			return room, fmt.Errorf("decoding board: %w", err)
		}
	}
	if settings.Valid {
		room.Settings = new(arena.Settings)
		if err := json.Unmarshal([]byte(settings.String), room.Settings); err != nil {
			return room, fmt.Errorf("decoding settings: %w", err)
		}
	}

	room.Claims = map[arena.Coord]arena.Claim{}
	room.Marks = map[arena.Coord]arena.Mark{}
	rows, err := q.QueryContext(ctx, `
		SELECT cell_row, cell_col, team, mark, claimant, claimed_at
		FROM claims WHERE room_id = ?
	`, id)
	if err != nil {
		return room, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			c                    arena.Coord
			team, mark, claimant string
			claimedAt            string
		)
		if err := rows.Scan(&c.Row, &c.Col, &team, &mark, &claimant, &claimedAt); err != nil {
			return room, err
		}
		at, err := time.Parse(timeLayout, claimedAt)
		if err != nil {
			return room, fmt.Errorf("parsing claimed_at: %w", err)
		}
		room.Claims[c] = arena.Claim{Team: arena.Team(team), Claimant: claimant, ClaimedAt: at}
		room.Marks[c] = arena.Mark(mark)
	}
	return room, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
