package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend names accepted by runtime.backend.
const (
	BackendLlamaCPP = "llamacpp"
	BackendDryRun   = "dryrun"
)

// llama.cpp server modes accepted by runtime.mode.
const (
	ModeSpawn  = "spawn"
	ModeAttach = "attach"
)

// Config aggregates runtime configuration used across the service.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Summary    SummaryConfig    `yaml:"summary"`
	Runtime    RuntimeConfig    `yaml:"runtime"`
	ModelStore ModelStoreConfig `yaml:"modelStore"`
	Lease      LeaseConfig      `yaml:"lease"`
}

// HTTPConfig controls server level behavior.
type HTTPConfig struct {
	Address        string        `yaml:"address"`
	ReadTimeout    time.Duration `yaml:"readTimeout"`
	WriteTimeout   time.Duration `yaml:"writeTimeout"`
	MaxUploadBytes int64         `yaml:"maxUploadBytes"`
	AllowedOrigins []string      `yaml:"allowedOrigins"`
}

// SummaryConfig defines the prompt source and transcript budget.
type SummaryConfig struct {
	PromptPath         string `yaml:"promptPath"`
	MaxTranscriptChars int    `yaml:"maxTranscriptChars"`
}

// RuntimeConfig selects the model backend and how handles live.
type RuntimeConfig struct {
	Backend        string        `yaml:"backend"`
	Mode           string        `yaml:"mode"`
	Model          string        `yaml:"model"`
	BaseURL        string        `yaml:"baseUrl"`
	ServerBinary   string        `yaml:"serverBinary"`
	ModelDir       string        `yaml:"modelDir"`
	Device         string        `yaml:"device"`
	ReuseHandle    bool          `yaml:"reuseHandle"`
	IdleTTL        time.Duration `yaml:"idleTtl"`
	StartupTimeout time.Duration `yaml:"startupTimeout"`
	CleanupTimeout time.Duration `yaml:"cleanupTimeout"`
}

// ModelStoreConfig points at the S3 compatible bucket holding GGUF weights.
type ModelStoreConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Prefix    string `yaml:"prefix"`
}

// LeaseConfig controls device exclusivity across requests.
type LeaseConfig struct {
	TTL    time.Duration `yaml:"ttl"`
	Valkey ValkeyConfig  `yaml:"valkey"`
}

// ValkeyConfig contains connection information for the shared lease store.
type ValkeyConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Load reads configuration from a YAML file and environment variables.
func Load() (*Config, error) {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return LoadFile(path)
	}
	if _, err := os.Stat("configs/config.yaml"); err == nil {
		return LoadFile("configs/config.yaml")
	}
	return LoadFile("")
}

// LoadFile reads configuration from path, which may be empty to use defaults only,
// then applies environment overrides.
func LoadFile(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		if err := hydrateFromFile(cfg, path); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func hydrateFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func parseBool(v string) bool {
	return v == "1" || strings.EqualFold(v, "true")
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HTTP_ADDRESS"); v != "" {
		cfg.HTTP.Address = v
	}
	if v := os.Getenv("HTTP_ALLOWED_ORIGINS"); v != "" {
		cfg.HTTP.AllowedOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("SUMMARY_PROMPT_PATH"); v != "" {
		cfg.Summary.PromptPath = v
	}
	if v := os.Getenv("SUMMARY_MAX_TRANSCRIPT_CHARS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Summary.MaxTranscriptChars = parsed
		}
	}
	if v := os.Getenv("RUNTIME_BACKEND"); v != "" {
		cfg.Runtime.Backend = v
	}
	if v := os.Getenv("RUNTIME_MODE"); v != "" {
		cfg.Runtime.Mode = v
	}
	if v := os.Getenv("RUNTIME_MODEL"); v != "" {
		cfg.Runtime.Model = v
	}
	if v := os.Getenv("RUNTIME_BASE_URL"); v != "" {
		cfg.Runtime.BaseURL = v
	}
	if v := os.Getenv("RUNTIME_SERVER_BINARY"); v != "" {
		cfg.Runtime.ServerBinary = v
	}
	if v := os.Getenv("RUNTIME_MODEL_DIR"); v != "" {
		cfg.Runtime.ModelDir = v
	}
	if v := os.Getenv("RUNTIME_DEVICE"); v != "" {
		cfg.Runtime.Device = v
	}
	if v := os.Getenv("RUNTIME_REUSE_HANDLE"); v != "" {
		cfg.Runtime.ReuseHandle = parseBool(v)
	}
	if v := os.Getenv("RUNTIME_IDLE_TTL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Runtime.IdleTTL = parsed
		}
	}
	if v := os.Getenv("MODEL_STORE_ENABLED"); v != "" {
		cfg.ModelStore.Enabled = parseBool(v)
	}
	if v := os.Getenv("MODEL_STORE_ENDPOINT"); v != "" {
		cfg.ModelStore.Endpoint = v
	}
	if v := os.Getenv("MODEL_STORE_ACCESS_KEY"); v != "" {
		cfg.ModelStore.AccessKey = v
	}
	if v := os.Getenv("MODEL_STORE_SECRET_KEY"); v != "" {
		cfg.ModelStore.SecretKey = v
	}
	if v := os.Getenv("MODEL_STORE_BUCKET"); v != "" {
		cfg.ModelStore.Bucket = v
	}
	if v := os.Getenv("MODEL_STORE_REGION"); v != "" {
		cfg.ModelStore.Region = v
	}
	if v := os.Getenv("MODEL_STORE_PREFIX"); v != "" {
		cfg.ModelStore.Prefix = v
	}
	if v := os.Getenv("LEASE_VALKEY_ENABLED"); v != "" {
		cfg.Lease.Valkey.Enabled = parseBool(v)
	}
	if v := os.Getenv("LEASE_VALKEY_ADDR"); v != "" {
		cfg.Lease.Valkey.Addr = v
	}
}

func defaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Address:        ":8080",
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   10 * time.Minute,
			MaxUploadBytes: 5 << 20,
		},
		Summary: SummaryConfig{
			PromptPath:         "prompt.md",
			MaxTranscriptChars: 4000,
		},
		Runtime: RuntimeConfig{
			Backend:        BackendLlamaCPP,
			Mode:           ModeSpawn,
			Model:          "HuggingFaceH4/zephyr-7b-beta",
			BaseURL:        "http://127.0.0.1:8081",
			ServerBinary:   "llama-server",
			ModelDir:       "models",
			Device:         "auto",
			IdleTTL:        10 * time.Minute,
			StartupTimeout: 5 * time.Minute,
			CleanupTimeout: 30 * time.Second,
		},
		Lease: LeaseConfig{
			TTL: 15 * time.Minute,
		},
	}
}

// Validate ensures the configuration is safe to use.
func (c *Config) Validate() error {
	if c.HTTP.Address == "" {
		return errors.New("http.address cannot be empty")
	}
	if c.HTTP.MaxUploadBytes <= 0 {
		return errors.New("http.maxUploadBytes must be positive")
	}
	if c.Summary.MaxTranscriptChars <= 0 {
		return errors.New("summary.maxTranscriptChars must be positive")
	}
	if strings.TrimSpace(c.Runtime.Model) == "" {
		return errors.New("runtime.model cannot be empty")
	}
	switch c.Runtime.Backend {
	case BackendDryRun:
	case BackendLlamaCPP:
		switch c.Runtime.Mode {
		case ModeSpawn:
			if strings.TrimSpace(c.Runtime.ServerBinary) == "" {
				return errors.New("runtime.serverBinary cannot be empty in spawn mode")
			}
			if strings.TrimSpace(c.Runtime.ModelDir) == "" {
				return errors.New("runtime.modelDir cannot be empty in spawn mode")
			}
		case ModeAttach:
			if strings.TrimSpace(c.Runtime.BaseURL) == "" {
				return errors.New("runtime.baseUrl cannot be empty in attach mode")
			}
		default:
			return fmt.Errorf("runtime.mode %q must be %s or %s", c.Runtime.Mode, ModeSpawn, ModeAttach)
		}
	default:
		return fmt.Errorf("runtime.backend %q must be %s or %s", c.Runtime.Backend, BackendLlamaCPP, BackendDryRun)
	}
	switch c.Runtime.Device {
	case "", "auto", "cpu", "cuda", "metal":
	default:
		return fmt.Errorf("runtime.device %q must be auto, cpu, cuda or metal", c.Runtime.Device)
	}
	if c.Runtime.ReuseHandle && c.Runtime.IdleTTL <= 0 {
		return errors.New("runtime.idleTtl must be positive when reuseHandle is enabled")
	}
	if c.Runtime.CleanupTimeout <= 0 {
		return errors.New("runtime.cleanupTimeout must be positive")
	}
	if c.ModelStore.Enabled {
		if strings.TrimSpace(c.ModelStore.Endpoint) == "" {
			return errors.New("modelStore.endpoint cannot be empty when the model store is enabled")
		}
		if strings.TrimSpace(c.ModelStore.Bucket) == "" {
			return errors.New("modelStore.bucket cannot be empty when the model store is enabled")
		}
	}
	if c.Lease.TTL <= 0 {
		return errors.New("lease.ttl must be positive")
	}
	if c.Lease.Valkey.Enabled && strings.TrimSpace(c.Lease.Valkey.Addr) == "" {
		return errors.New("lease.valkey.addr cannot be empty when the valkey lease is enabled")
	}
	return nil
}
