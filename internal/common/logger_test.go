package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLogger_BecomesGlobal(t *testing.T) {
	config := NewDefaultConfig()
	config.Logging.Output = []string{"console"}
	config.Logging.Level = "warn"

	logger := InitLogger(config)
	require.NotNil(t, logger)
	assert.Same(t, logger, GetLogger())
}

func TestCurrentBuild(t *testing.T) {
	info := CurrentBuild()
	assert.Equal(t, Version, info.Version)
	assert.Contains(t, info.String(), "commit: "+GitCommit)
	assert.GreaterOrEqual(t, Uptime().Nanoseconds(), int64(0))
}
