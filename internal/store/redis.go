package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tictaccode/arena/internal/arena"
)

// RedisStore keeps each room in a hash (document and version counter) plus a
// second hash of claims keyed by cell. Keys expire with the room TTL, so
// DeleteExpired has nothing to do.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func roomKey(id string) string { return "arena:room:" + id }

func claimsKey(id string) string { return "arena:room:" + id + ":claims" }

func finishedKey(handle string) string { return "arena:player:" + handle + ":finished" }

var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'doc', ARGV[1], 'version', ARGV[2], 'board', ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return 1
`)

// claimScript is the insert-if-absent. It answers {result, room hash, claims
// hash} where result is 1 (won), 0 (cell taken), -1 (no room) or -2 (no board).
var claimScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return {-1}
end
local won = 0
if redis.call('HGET', KEYS[1], 'board') ~= '1' then
	return {-2}
end
if redis.call('HSETNX', KEYS[2], ARGV[1], ARGV[2]) == 1 then
	won = 1
	redis.call('HINCRBY', KEYS[1], 'version', 1)
	local ttl = redis.call('PTTL', KEYS[1])
	if ttl > 0 then
		redis.call('PEXPIRE', KEYS[2], ttl)
	end
end
return {won, redis.call('HGETALL', KEYS[1]), redis.call('HGETALL', KEYS[2])}
`)

func (s *RedisStore) Create(ctx context.Context, room arena.Room) error {
	doc, err := encodeDoc(room)
	if err != nil {
		return err
	}
	n, err := createScript.Run(ctx, s.rdb, []string{roomKey(room.ID)},
		doc, room.Version, boardFlag(room), s.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("creating room: %w", err)
	}
	if n == 0 {
		return ErrExists
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (arena.Room, error) {
	var roomCmd, claimsCmd *redis.MapStringStringCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		roomCmd = pipe.HGetAll(ctx, roomKey(id))
		claimsCmd = pipe.HGetAll(ctx, claimsKey(id))
		return nil
	})
	if err != nil {
		return arena.Room{}, err
	}
	return decodeRoom(roomCmd.Val(), claimsCmd.Val())
}

func (s *RedisStore) Update(ctx context.Context, id string, fn UpdateFunc) (arena.Room, error) {
	var result arena.Room
	txf := func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, roomKey(id)).Result()
		if err != nil {
			return err
		}
		claims, err := tx.HGetAll(ctx, claimsKey(id)).Result()
		if err != nil {
			return err
		}
		room, err := decodeRoom(fields, claims)
		if err != nil {
			return err
		}
		current := room.Clone()
		result = current

		changed, err := fn(&room)
		if err != nil || !changed {
			return err
		}

		doc, err := encodeDoc(room)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, roomKey(id), "doc", doc, "board", boardFlag(room))
			pipe.HIncrBy(ctx, roomKey(id), "version", 1)
			if current.Outcome == arena.OutcomeNone && room.Outcome != arena.OutcomeNone {
				for _, h := range room.Participants() {
					pipe.ZAdd(ctx, finishedKey(h), redis.Z{Score: float64(room.CreatedAt.UnixNano()), Member: id})
					pipe.Expire(ctx, finishedKey(h), s.ttl)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		room.Claims, room.Marks = current.Claims, current.Marks
		room.Version = current.Version + 1
		result = room
		return nil
	}

	for range maxUpdateAttempts {
		err := s.rdb.Watch(ctx, txf, roomKey(id))
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return result, err
	}
	return arena.Room{}, ErrConflict
}

func (s *RedisStore) Claim(ctx context.Context, id string, c arena.Coord, claim arena.Claim) (bool, arena.Room, error) {
	if !c.Valid() || !claim.Team.Valid() {
		return false, arena.Room{}, fmt.Errorf("invalid claim %s for team %q", c, claim.Team)
	}
	data, err := json.Marshal(claim)
	if err != nil {
		return false, arena.Room{}, err
	}

	res, err := claimScript.Run(ctx, s.rdb, []string{roomKey(id), claimsKey(id)}, c.String(), data).Slice()
	if err != nil {
		return false, arena.Room{}, fmt.Errorf("claiming cell: %w", err)
	}
	switch code, _ := res[0].(int64); code {
	case -1:
		return false, arena.Room{}, ErrNotFound
	case -2:
		room, err := s.Get(ctx, id)
		return false, room, err
	}
	if len(res) != 3 {
		return false, arena.Room{}, fmt.Errorf("claim script returned %d values", len(res))
	}

	won := res[0].(int64) == 1
	room, err := decodeRoom(pairs(res[1]), pairs(res[2]))
	return won, room, err
}

func (s *RedisStore) FinishedFor(ctx context.Context, handle string) ([]arena.Room, error) {
	ids, err := s.rdb.ZRevRange(ctx, finishedKey(handle), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	rooms := make([]arena.Room, 0, len(ids))
	for _, id := range ids {
		room, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			s.rdb.ZRem(ctx, finishedKey(handle), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

func (s *RedisStore) DeleteExpired(context.Context, time.Time) (int, error) { return 0, nil }

func (s *RedisStore) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }

// encodeDoc serializes everything but claims, marks and version, which have
// their own storage.
func encodeDoc(r arena.Room) (string, error) {
	doc := r.Clone()
	doc.Claims, doc.Marks, doc.Version = nil, nil, 0
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encoding room: %w", err)
	}
	return string(data), nil
}

func decodeRoom(fields, claims map[string]string) (arena.Room, error) {
	raw, ok := fields["doc"]
	if !ok {
		return arena.Room{}, ErrNotFound
	}
	var room arena.Room
	if err := json.Unmarshal([]byte(raw), &room); err != nil {
		return room, fmt.Errorf("decoding room: %w", err)
	}
	v, err := strconv.ParseInt(fields["version"], 10, 64)
	if err != nil {
		return room, fmt.Errorf("decoding version: %w", err)
	}
	room.Version = v
	room.TeamA, room.TeamB = nonNil(room.TeamA), nonNil(room.TeamB)

	room.Claims = make(map[arena.Coord]arena.Claim, len(claims))
	for field, value := range claims {
		c, err := arena.ParseCoord(field)
		if err != nil {
			return room, err
		}
		var claim arena.Claim
		if err := json.Unmarshal([]byte(value), &claim); err != nil {
			return room, fmt.Errorf("decoding claim %s: %w", field, err)
		}
		room.Claims[c] = claim
	}
	room.Marks = arena.DeriveMarks(room.Claims)
	return room, nil
}

func boardFlag(r arena.Room) string {
	if r.Board != nil {
		return "1"
	}
	return "0"
}

// pairs turns a flat HGETALL reply from a script into a map.
func pairs(v any) map[string]string {
	items, _ := v.([]any)
	out := make(map[string]string, len(items)/2)
	for i := 0; i+1 < len(items); i += 2 {
		k, _ := items[i].(string)
		val, _ := items[i+1].(string)
		out[k] = val
	}
	return out
}
