package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDSN = "root:root@tcp(127.0.0.1:3306)/reelguard_test?parseTime=True"

func TestNewBootstrap_DefaultsWithEnvDSN(t *testing.T) {
	t.Setenv("MYSQL_DSN", testDSN)

	bc, err := NewBootstrap("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", bc.Server.Http.Addr)
	assert.Equal(t, 30*time.Second, bc.Server.Http.Timeout)
	assert.Equal(t, testDSN, bc.Data.Database.Source)
	assert.Equal(t, "127.0.0.1:6379", bc.Data.Redis.Addr)

	assert.Equal(t, 5, bc.Reliability.Breaker.FailureThreshold)
	assert.Equal(t, 30*time.Second, bc.Reliability.Breaker.RecoveryTimeout)
	assert.Equal(t, 3, bc.Reliability.Breaker.SuccessThreshold)
	assert.Equal(t, 10*time.Second, bc.Reliability.Breaker.OperationTimeout)

	assert.Equal(t, 10.0, bc.Reliability.Health.FallbackThreshold)
	assert.Equal(t, 25.0, bc.Reliability.Health.DegradedModeThreshold)
	assert.Equal(t, time.Minute, bc.Reliability.Health.OrchestrationWindow)
	assert.Equal(t, 5*time.Minute, bc.Reliability.Health.AlertingWindow)

	assert.Equal(t, 3, bc.Reliability.Orchestrator.MaxRetries)
	assert.Equal(t, time.Second, bc.Reliability.Orchestrator.RetryDelay)
	assert.Equal(t, 0.8, bc.Reliability.Orchestrator.DegradedConfidenceFactor)
	assert.Equal(t, 0.5, bc.Reliability.Orchestrator.DegradedSizeFactor)

	assert.Equal(t, 5*time.Minute, bc.Reliability.Alerting.DefaultCooldown)

	assert.Equal(t, "info", bc.Log.Level)
	assert.Equal(t, "json", bc.Log.Format)
}

func TestNewBootstrap_MissingDSNFails(t *testing.T) {
	t.Setenv("MYSQL_DSN", "")
	t.Setenv("REELGUARD_DATA_DATABASE_SOURCE", "")

	_, err := NewBootstrap("")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "data.database.source")
}

func TestNewBootstrap_MissingConfigFileFails(t *testing.T) {
	t.Setenv("MYSQL_DSN", testDSN)

	_, err := NewBootstrap("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestNewBootstrap_DefaultStrategiesOrdered(t *testing.T) {
	t.Setenv("MYSQL_DSN", testDSN)

	bc, err := NewBootstrap("")
	require.NoError(t, err)

	strategies := bc.Reliability.Fallback.Strategies
	require.Len(t, strategies, 7)

	assert.Equal(t, "user_history", strategies[0].Method)
	assert.Equal(t, "emergency_static", strategies[6].Method)

	for i := 1; i < len(strategies); i++ {
		assert.GreaterOrEqual(t, strategies[i-1].Weight, strategies[i].Weight,
			"strategies must be ordered by descending weight")
	}

	// Context-dependent strategies sit above the context-free ones
	assert.True(t, strategies[0].RequiresContext)
	assert.False(t, strategies[4].RequiresContext)
}

func TestNewBootstrap_ConfigFileOverrides(t *testing.T) {
	t.Setenv("MYSQL_DSN", testDSN)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  http:
    addr: ":9000"
reliability:
  breaker:
    failure_threshold: 8
  fallback:
    strategies:
      - method: trending
        weight: 0.4
        min_confidence: 0.4
        max_response_time: 2s
      - method: user_history
        weight: 1.0
        min_confidence: 0.8
        requires_context: true
        max_response_time: 2s
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	bc, err := NewBootstrap(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", bc.Server.Http.Addr)
	assert.Equal(t, 8, bc.Reliability.Breaker.FailureThreshold)

	// Custom strategy table replaces the defaults and is re-sorted
	require.Len(t, bc.Reliability.Fallback.Strategies, 2)
	assert.Equal(t, "user_history", bc.Reliability.Fallback.Strategies[0].Method)
	assert.Equal(t, "trending", bc.Reliability.Fallback.Strategies[1].Method)
}

func TestValidate_ThresholdOrdering(t *testing.T) {
	t.Setenv("MYSQL_DSN", testDSN)

	bc, err := NewBootstrap("")
	require.NoError(t, err)

	bc.Reliability.Health.FallbackThreshold = 40
	bc.Reliability.Health.DegradedModeThreshold = 25

	err = Validate(bc)
	assert.Error(t, err)
}

func TestValidate_NonPositiveFailureThreshold(t *testing.T) {
	t.Setenv("MYSQL_DSN", testDSN)

	bc, err := NewBootstrap("")
	require.NoError(t, err)

	bc.Reliability.Breaker.FailureThreshold = 0

	err = Validate(bc)
	assert.Error(t, err)
}
