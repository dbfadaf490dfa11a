package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoad_Defaults 测试默认值
func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.True(t, cfg.Validation.AutoValidate)
	assert.Equal(t, "validate", cfg.Validation.TagName)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "katydid", cfg.Metrics.Namespace)
}

// TestLoad_File 测试从 yaml 文件加载
func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "validation.yaml")
	content := `
validation:
  suspend_all: true
  auto_validate: false
  tag_name: check
log:
  level: debug
  file: /tmp/validation.log
metrics:
  enabled: false
idgen:
  worker_id: 7
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Validation.SuspendAll)
	assert.False(t, cfg.Validation.AutoValidate)
	assert.Equal(t, "check", cfg.Validation.TagName)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/tmp/validation.log", cfg.Log.File)
	assert.Equal(t, 100, cfg.Log.MaxSizeMB, "unset keys keep defaults")
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, int64(7), cfg.IDGen.WorkerID)
}

// TestLoad_Env 测试环境变量覆盖
func TestLoad_Env(t *testing.T) {
	t.Setenv("KATYDID_VALIDATION_LOG_LEVEL", "warn")
	t.Setenv("KATYDID_VALIDATION_VALIDATION_LEAN", "true")
	t.Setenv("KATYDID_VALIDATION_METRICS_NAMESPACE", "accounts")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.True(t, cfg.Validation.Lean)
	assert.Equal(t, "accounts", cfg.Metrics.Namespace)
}

// TestLoad_Invalid 测试非法配置
func TestLoad_Invalid(t *testing.T) {
	t.Setenv("KATYDID_VALIDATION_IDGEN_WORKER_ID", "-1")

	_, err := Load("")
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
