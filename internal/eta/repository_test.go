package eta

import (
	"context"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgredis "github.com/richxcame/taxi-eta/pkg/redis"
)

func newMockRedisRepository(t *testing.T) (*Repository, redismock.ClientMock) {
	t.Helper()
	client, mock := redismock.NewClientMock()
	repo := NewRepository(nil, &pkgredis.Client{Client: client})
	return repo, mock
}

func TestGetHistoricalDurationReturnsCachedValue(t *testing.T) {
	repo, mock := newMockRedisRepository(t)
	key := repo.routeCacheKey(40.758, -73.9855, 40.7614, -73.9776)

	mock.ExpectGet(key).SetVal("12.500000")

	minutes, ok := repo.GetHistoricalDuration(context.Background(), 40.758, -73.9855, 40.7614, -73.9776)
	require.True(t, ok)
	assert.InDelta(t, 12.5, minutes, 0.0001)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetHistoricalDurationFalseOnCacheMissWithNoDB(t *testing.T) {
	repo, mock := newMockRedisRepository(t)
	key := repo.routeCacheKey(40.758, -73.9855, 40.7614, -73.9776)

	mock.ExpectGet(key).RedisNil()

	_, ok := repo.GetHistoricalDuration(context.Background(), 40.758, -73.9855, 40.7614, -73.9776)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStorePredictionNoopWhenDBNil(t *testing.T) {
	repo, _ := newMockRedisRepository(t)
	err := repo.StorePrediction(context.Background(), &PredictionRecord{}, PredictionRequest{})
	assert.NoError(t, err)
}

func TestGetPredictionHistoryEmptyWhenDBNil(t *testing.T) {
	repo, _ := newMockRedisRepository(t)
	page, err := repo.GetPredictionHistory(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Empty(t, page.Records)
}
