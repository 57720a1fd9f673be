package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearRequiredEnv(t *testing.T) {
	t.Helper()
	os.Clearenv()
	os.Setenv("MODEL_REGISTRY_ROOT", "./data/mlruns")
	os.Setenv("BOUNDING_BOX", "40.5,-74.3,40.9,-73.7")
}

func TestLoadDefaultsTimeoutConfig(t *testing.T) {
	clearRequiredEnv(t)

	cfg, err := Load("test-service")
	require.NoError(t, err)

	assert.Equal(t, DefaultDatabaseQueryTimeout, cfg.Timeout.DatabaseQueryTimeout)
	assert.Equal(t, DefaultRedisOperationTimeout, cfg.Timeout.RedisOperationTimeout)
	assert.Equal(t, 2, cfg.Timeout.DefaultRequestTimeout) // DefaultPredictionTimeoutMs rounds up to 2s
}

func TestLoadCustomTimeoutValues(t *testing.T) {
	clearRequiredEnv(t)
	os.Setenv("DB_QUERY_TIMEOUT", "20")
	os.Setenv("REDIS_OPERATION_TIMEOUT", "10")
	os.Setenv("PREDICTION_TIMEOUT_MS", "1500")

	cfg, err := Load("test-service")
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Timeout.DatabaseQueryTimeout)
	assert.Equal(t, 10, cfg.Timeout.RedisOperationTimeout)
	assert.Equal(t, 2, cfg.Timeout.DefaultRequestTimeout) // 1500ms rounds up to 2s
}

func TestLoadRejectsDatabaseTimeoutAboveMaximum(t *testing.T) {
	clearRequiredEnv(t)
	os.Setenv("DB_QUERY_TIMEOUT", "999")

	_, err := Load("test-service")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_QUERY_TIMEOUT")
}

func TestLoadRejectsRedisTimeoutAboveMaximum(t *testing.T) {
	clearRequiredEnv(t)
	os.Setenv("REDIS_OPERATION_TIMEOUT", "999")

	_, err := Load("test-service")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_OPERATION_TIMEOUT")
}

func TestTimeoutForRouteHonorsOverride(t *testing.T) {
	clearRequiredEnv(t)
	os.Setenv("HEALTH_TIMEOUT_MS", "500")

	cfg, err := Load("test-service")
	require.NoError(t, err)

	assert.Equal(t, int64(1)*1000000000, cfg.Timeout.TimeoutForRoute("GET", "/api/v1/health").Nanoseconds())
}

func TestTimeoutForRouteFallsBackToDefault(t *testing.T) {
	clearRequiredEnv(t)

	cfg, err := Load("test-service")
	require.NoError(t, err)

	assert.Equal(t, cfg.Timeout.DefaultRequestTimeoutDuration(), cfg.Timeout.TimeoutForRoute("POST", "/api/v1/predict"))
}
