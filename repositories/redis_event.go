package repositories

import (
	"context"
	"fmt"
	"live-hub/domain"
	"live-hub/errors"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisEventRepository keeps each room history in a sorted set scored by seq,
// for deployments sharing one store between several gateway processes.
type RedisEventRepository struct {
	client *redis.Client
	prefix string
	log    *slog.Logger
}

func NewRedisEventRepository(client *redis.Client, prefix string, log *slog.Logger) RedisEventRepository {
	return RedisEventRepository{client: client, prefix: prefix, log: log}
}

func (r RedisEventRepository) eventsKey(roomID domain.RoomID) string {
	return r.prefix + "evt:" + string(roomID)
}

func (r RedisEventRepository) incarnationsKey(key domain.RoomKey) string {
	return r.prefix + "inc:" + key.String()
}

// Append adds the record to the room sorted set. Any member already stored
// under the same seq is replaced so that retries never duplicate a record.
func (r RedisEventRepository) Append(ctx context.Context, record domain.PersistedRecord) error {
	bytes, err := encodeRecord(record)
	if err != nil {
		return err
	}
	key := r.eventsKey(record.RoomID)
	score := strconv.FormatUint(record.Seq, 10)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, score, score)
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(record.Seq), Member: bytes})
		return nil
	})
	return err
}

func (r RedisEventRepository) Fetch(ctx context.Context, roomID domain.RoomID, sinceSeq uint64) ([]domain.PersistedRecord, error) {
	members, err := r.client.ZRangeByScore(ctx, r.eventsKey(roomID), &redis.ZRangeBy{
		Min: "(" + strconv.FormatUint(sinceSeq, 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}
	records := make([]domain.PersistedRecord, 0, len(members))
	for _, member := range members {
		record, err := decodeRecord([]byte(member))
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	contiguous, complete := checkChain(records, sinceSeq)
	if !complete {
		return contiguous, fmt.Errorf("%w: room %s since %d", errors.ErrIncompleteHistory, roomID, sinceSeq)
	}
	return contiguous, nil
}

func (r RedisEventRepository) Prune(ctx context.Context, roomID domain.RoomID, keepLast int) error {
	if keepLast <= 0 {
		return nil
	}
	// Ranks are ascending: drop everything but the keepLast highest scores
	return r.client.ZRemRangeByRank(ctx, r.eventsKey(roomID), 0, int64(-keepLast-1)).Err()
}

func (r RedisEventRepository) RecordIncarnation(ctx context.Context, inc domain.RoomIncarnation) error {
	bytes, err := encodeIncarnation(inc)
	if err != nil {
		return err
	}
	return r.client.ZAdd(ctx, r.incarnationsKey(inc.Key), redis.Z{
		Score:  float64(inc.CreatedAt.UnixNano()),
		Member: bytes,
	}).Err()
}

func (r RedisEventRepository) Incarnations(ctx context.Context, key domain.RoomKey) ([]domain.RoomIncarnation, error) {
	members, err := r.client.ZRange(ctx, r.incarnationsKey(key), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	incarnations := make([]domain.RoomIncarnation, 0, len(members))
	for _, member := range members {
		inc, err := decodeIncarnation([]byte(member))
		if err != nil {
			return nil, err
		}
		incarnations = append(incarnations, inc)
	}
	return incarnations, nil
}
