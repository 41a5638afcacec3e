package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"

	"github.com/loopcard/backend/internal/models"
)

func TestRedisClient_GetStats(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	client := NewRedisClient(rdb)
	ctx := context.Background()

	t.Run("hit", func(t *testing.T) {
		stats := models.StatsSnapshot{MoneyIn: 1000, Available: 1000}
		data, _ := json.Marshal(stats)
		mock.ExpectGet(CardStatsKey("c1")).SetVal(string(data))

		got, ok, err := client.GetStats(ctx, CardStatsKey("c1"))
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, stats, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("miss", func(t *testing.T) {
		mock.ExpectGet(CardStatsKey("c2")).RedisNil()

		_, ok, err := client.GetStats(ctx, CardStatsKey("c2"))
		assert.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestRedisClient_SetAndInvalidate(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	client := NewRedisClient(rdb)
	ctx := context.Background()

	stats := models.StatsSnapshot{MoneyIn: 50}
	data, _ := json.Marshal(stats)

	mock.ExpectSet(CardStatsKey("c1"), data, 5*time.Minute).SetVal("OK")
	assert.NoError(t, client.SetStats(ctx, CardStatsKey("c1"), stats, 5*time.Minute))

	mock.ExpectDel(CardStatsKey("c1"), UserStatsKey("u1")).SetVal(2)
	assert.NoError(t, client.Invalidate(ctx, CardStatsKey("c1"), UserStatsKey("u1")))

	// No keys, no round trip.
	assert.NoError(t, client.Invalidate(ctx))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNoop(t *testing.T) {
	var c Client = Noop{}
	ctx := context.Background()

	_, ok, err := c.GetStats(ctx, "anything")
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, c.SetStats(ctx, "anything", models.StatsSnapshot{}, time.Minute))
	assert.NoError(t, c.Invalidate(ctx, "anything"))
}
