package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, defaultAddr, cfg.Addr)
	assert.Empty(t, cfg.MetaModelPath)
	assert.Empty(t, cfg.ReplayPath)
	assert.Empty(t, cfg.WatchDir)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, "traceview:updates", cfg.RedisChannel)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "embedded", cfg.WebAssetsMode)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("TRACEVIEW_PORT", "9000")
	t.Setenv("TRACEVIEW_META_MODEL", "/etc/traceview/meta.json")
	t.Setenv("TRACEVIEW_REDIS_ADDR", "localhost:6379")
	t.Setenv("TRACEVIEW_REDIS_CHANNEL", "custom")
	t.Setenv("TRACEVIEW_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Addr)
	assert.Equal(t, "/etc/traceview/meta.json", cfg.MetaModelPath)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, "custom", cfg.RedisChannel)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoadConfig_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("TRACEVIEW_ADDR", "0.0.0.0:1")

	cfg, err := LoadConfig([]string{"-addr", "127.0.0.1:2", "-replay", "trace.jsonl", "-watch-dir", "drop"})
	require.NoError(t, err)

	cwd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:2", cfg.Addr)
	assert.Equal(t, filepath.Join(cwd, "trace.jsonl"), cfg.ReplayPath)
	assert.Equal(t, filepath.Join(cwd, "drop"), cfg.WatchDir)
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		envVars     map[string]string
		errorSubstr string
	}{
		{
			name:        "empty addr",
			args:        []string{"-addr", " "},
			errorSubstr: "addr cannot be empty",
		},
		{
			name:        "bad log level flag",
			args:        []string{"-log-level", "loud"},
			errorSubstr: "invalid log level",
		},
		{
			name:        "bad log level env",
			envVars:     map[string]string{"TRACEVIEW_LOG_LEVEL": "verbose"},
			errorSubstr: "invalid log level",
		},
		{
			name:        "redis without channel",
			args:        []string{"-redis-addr", "localhost:6379", "-redis-channel", ""},
			errorSubstr: "redis-channel cannot be empty",
		},
		{
			name:        "fs assets without dir",
			args:        []string{"-web-assets", "fs"},
			errorSubstr: "web-assets=fs requires web-dir",
		},
		{
			name:        "unknown assets mode",
			args:        []string{"-web-assets", "cdn"},
			errorSubstr: "unsupported web-assets mode",
		},
		{
			name:        "unknown flag",
			args:        []string{"-db", "x.db"},
			errorSubstr: "flag provided but not defined",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			_, err := LoadConfig(tt.args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorSubstr)
		})
	}
}

func TestNormalizeWebAssetsMode(t *testing.T) {
	tests := map[string]string{
		"":          "embedded",
		"Embedded":  "embedded",
		"dir":       "fs",
		"DISABLED":  "off",
		" none ":    "off",
		"something": "something",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeWebAssetsMode(in), in)
	}
}
