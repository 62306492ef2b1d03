package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{"env": "test", "port": 8080}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Pipeline.GroupSize)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.GroupPause())
	assert.Equal(t, 30, cfg.Pipeline.ChunkSize)
	assert.Equal(t, 6*time.Hour, cfg.Pipeline.ReportDelay())
	assert.Equal(t, 30*time.Minute, cfg.Pipeline.CallTimeout())
	assert.Equal(t, 30*time.Minute, cfg.Pipeline.LockTTL())
	assert.Equal(t, "0 3 * * *", cfg.Pipeline.ScanCron)
	assert.Equal(t, "30 3 * * *", cfg.Pipeline.SubtitleCron)
	assert.Equal(t, "en", cfg.Pipeline.DefaultLanguage)
	assert.Equal(t, "pipeline", cfg.RabbitMQ.ExchangeName)
}

func TestLoadConfigKeepsExplicitValues(t *testing.T) {
	path := writeConfig(t, `{
		"pipeline": {
			"group_size": 10,
			"group_pause_sec": 5,
			"chunk_size": 8,
			"report_delay_min": 15
		},
		"rabbitmq": {"exchange_name": "custom"}
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Pipeline.GroupSize)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.GroupPause())
	assert.Equal(t, 8, cfg.Pipeline.ChunkSize)
	assert.Equal(t, 15*time.Minute, cfg.Pipeline.ReportDelay())
	assert.Equal(t, "custom", cfg.RabbitMQ.ExchangeName)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := writeConfig(t, `{not json`)
	_, err = LoadConfig(path)
	assert.Error(t, err)
}

func TestDefaultTranslator(t *testing.T) {
	cfg := &Config{Translators: []TranslatorConfig{
		{Name: "local-nmt"},
		{Name: "cloud-llm", Default: true},
	}}
	assert.Equal(t, "cloud-llm", cfg.DefaultTranslator())

	cfg = &Config{Translators: []TranslatorConfig{{Name: "local-nmt"}}}
	assert.Equal(t, "local-nmt", cfg.DefaultTranslator(), "no explicit default falls back to the first backend")

	assert.Empty(t, (&Config{}).DefaultTranslator())
}
