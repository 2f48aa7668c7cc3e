package repositories

import (
	"context"
	"live-hub/domain"
	"live-hub/errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		t.Skip("Redis not available, skipping integration test")
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisEventRepository_Append_Fetch_Prune(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	client := redisClient(t)
	prefix := "test:live-hub:" + time.Now().Format("150405.000000") + ":"
	repository := NewRedisEventRepository(client, prefix, slog.Default())
	roomID := domain.NewRoomID(domain.NewRoomKey("course1", domain.KindChat))
	t.Cleanup(func() { client.Del(context.Background(), repository.eventsKey(roomID)) })

	for seq := uint64(1); seq <= 5; seq++ {
		req.NoError(repository.Append(ctx, messageRecord(roomID, seq, seq-1, "m", time.Now())))
	}
	// A retried append keeps a single member for the seq
	req.NoError(repository.Append(ctx, messageRecord(roomID, 5, 4, "m", time.Now())))

	fetched, err := repository.Fetch(ctx, roomID, 2)
	req.NoError(err)
	req.Len(fetched, 3)
	req.Equal(uint64(3), fetched[0].Seq)

	req.NoError(repository.Prune(ctx, roomID, 2))
	fetched, err = repository.Fetch(ctx, roomID, 0)
	req.ErrorIs(err, errors.ErrIncompleteHistory)
	req.Len(fetched, 2)
	req.Equal(uint64(4), fetched[0].Seq)
}

func TestRedisEventRepository_Incarnations(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	client := redisClient(t)
	prefix := "test:live-hub:" + time.Now().Format("150405.000000") + ":"
	repository := NewRedisEventRepository(client, prefix, slog.Default())
	key := domain.NewRoomKey("group7", domain.KindWhiteboard)
	t.Cleanup(func() { client.Del(context.Background(), repository.incarnationsKey(key)) })

	now := time.Now().UTC()
	first := domain.RoomIncarnation{Key: key, RoomID: domain.NewRoomID(key), CreatedAt: now}
	second := domain.RoomIncarnation{Key: key, RoomID: domain.NewRoomID(key), CreatedAt: now.Add(time.Second)}
	req.NoError(repository.RecordIncarnation(ctx, second))
	req.NoError(repository.RecordIncarnation(ctx, first))

	incarnations, err := repository.Incarnations(ctx, key)
	req.NoError(err)
	req.Len(incarnations, 2)
	req.Equal(first.RoomID, incarnations[0].RoomID)
}
