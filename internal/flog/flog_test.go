package flog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_InvalidLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Level = "verbose"
	_, err := New(cfg)
	assert.Error(t, err)
}

// TestNew_FileOutput 测试写入文件并使用 JSON 格式
func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "lock.log")
	cfg := DefaultConfig()
	cfg.Format = FormatJSON
	cfg.Output = path
	cfg.Level = "warn"

	logger, err := New(cfg)
	require.NoError(t, err)
	logger.Info("dropped")
	logger.Warn("lease lost", zap.String("key", "ns:job:lock"))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "lease lost", entry["message"])
	assert.Equal(t, "ns:job:lock", entry["key"])
}

func TestNew_Stdout(t *testing.T) {
	for _, out := range []string{"", "stdout", "stderr"} {
		cfg := DefaultConfig()
		cfg.Output = out
		logger, err := New(cfg)
		require.NoError(t, err)
		assert.NotNil(t, logger)
	}
}
