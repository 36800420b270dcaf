package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesToFile(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(dir, "debug")
	require.NoError(t, err)

	logger.Infof("hello %s", "world")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(filepath.Join(dir, "fleetwatch.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello world")
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(t.TempDir(), "loud")
	assert.Error(t, err)
}

func TestNewDiscard_CloseIsSafe(t *testing.T) {
	logger := NewDiscard()
	logger.Warnf("dropped")
	assert.NoError(t, logger.Close())
}
