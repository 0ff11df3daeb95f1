package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	c := NewDefaultConfig()
	require.NoError(t, c.Validate())
	assert.Greater(t, c.TransactionSizeLimitBytes(), int64(0))
	assert.Greater(t, c.MemBytesLimitBytes(), int64(0))
}

func TestValidateRejectsOutOfRangeTransactionSizeLimit(t *testing.T) {
	c := NewDefaultConfig()
	c.TransactionSizeLimit = "1B"
	assert.Error(t, c.Validate())

	c.TransactionSizeLimit = "20000000B"
	assert.Error(t, c.Validate())
}

func TestValidateRejectsInvertedBatchIntervalBounds(t *testing.T) {
	c := NewDefaultConfig()
	c.MinCommitBatchInterval, c.MaxCommitBatchInterval = c.MaxCommitBatchInterval, c.MinCommitBatchInterval
	assert.Error(t, c.Validate())
}

func TestTestConfigValidates(t *testing.T) {
	c := NewTestConfig()
	require.NoError(t, c.Validate())
}
