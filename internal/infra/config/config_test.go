package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFileDefaults(t *testing.T) {
	cfg, err := LoadFile("")
	require.NoError(t, err)
	require.Equal(t, "prompt.md", cfg.Summary.PromptPath)
	require.Equal(t, 4000, cfg.Summary.MaxTranscriptChars)
	require.Equal(t, "HuggingFaceH4/zephyr-7b-beta", cfg.Runtime.Model)
	require.Equal(t, BackendLlamaCPP, cfg.Runtime.Backend)
	require.Equal(t, 10*time.Minute, cfg.HTTP.WriteTimeout)
	require.False(t, cfg.Runtime.ReuseHandle)
}

func TestLoadFileYAMLAndEnv(t *testing.T) {
	path := writeConfig(t, `
summary:
  promptPath: prompts/system.md
  maxTranscriptChars: 2000
runtime:
  backend: llamacpp
  mode: attach
  baseUrl: http://gpu-box:8081
  reuseHandle: true
  idleTtl: 2m
lease:
  valkey:
    enabled: true
    addr: localhost:6379
`)
	t.Setenv("RUNTIME_DEVICE", "cuda")
	t.Setenv("SUMMARY_MAX_TRANSCRIPT_CHARS", "3000")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "prompts/system.md", cfg.Summary.PromptPath)
	require.Equal(t, 3000, cfg.Summary.MaxTranscriptChars)
	require.Equal(t, ModeAttach, cfg.Runtime.Mode)
	require.Equal(t, "http://gpu-box:8081", cfg.Runtime.BaseURL)
	require.Equal(t, "cuda", cfg.Runtime.Device)
	require.True(t, cfg.Runtime.ReuseHandle)
	require.Equal(t, 2*time.Minute, cfg.Runtime.IdleTTL)
	require.True(t, cfg.Lease.Valkey.Enabled)
	require.Equal(t, "HuggingFaceH4/zephyr-7b-beta", cfg.Runtime.Model)
}

func TestLoadUsesConfigPath(t *testing.T) {
	path := writeConfig(t, "runtime:\n  backend: dryrun\n")
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, BackendDryRun, cfg.Runtime.Backend)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorContains(t, err, "read config file")

	_, err = LoadFile(writeConfig(t, "runtime: [oops"))
	require.ErrorContains(t, err, "parse config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "zero budget", mutate: func(c *Config) { c.Summary.MaxTranscriptChars = 0 }, wantErr: "maxTranscriptChars"},
		{name: "unknown backend", mutate: func(c *Config) { c.Runtime.Backend = "onnx" }, wantErr: "runtime.backend"},
		{name: "unknown mode", mutate: func(c *Config) { c.Runtime.Mode = "remote" }, wantErr: "runtime.mode"},
		{name: "attach without url", mutate: func(c *Config) {
			c.Runtime.Mode = ModeAttach
			c.Runtime.BaseURL = ""
		}, wantErr: "runtime.baseUrl"},
		{name: "unknown device", mutate: func(c *Config) { c.Runtime.Device = "tpu" }, wantErr: "runtime.device"},
		{name: "reuse without ttl", mutate: func(c *Config) {
			c.Runtime.ReuseHandle = true
			c.Runtime.IdleTTL = 0
		}, wantErr: "idleTtl"},
		{name: "store without bucket", mutate: func(c *Config) {
			c.ModelStore.Enabled = true
			c.ModelStore.Endpoint = "https://r2.example.com"
		}, wantErr: "modelStore.bucket"},
		{name: "valkey without addr", mutate: func(c *Config) { c.Lease.Valkey.Enabled = true }, wantErr: "lease.valkey.addr"},
		{name: "dryrun ignores server settings", mutate: func(c *Config) {
			c.Runtime.Backend = BackendDryRun
			c.Runtime.ServerBinary = ""
		}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}
