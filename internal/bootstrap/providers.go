package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/wire"
	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/transcript-summarizer/internal/domain/summarizer"
	"github.com/yanqian/transcript-summarizer/internal/infra/config"
	"github.com/yanqian/transcript-summarizer/internal/infra/device"
	"github.com/yanqian/transcript-summarizer/internal/infra/dryrun"
	"github.com/yanqian/transcript-summarizer/internal/infra/lease"
	"github.com/yanqian/transcript-summarizer/internal/infra/llamacpp"
	"github.com/yanqian/transcript-summarizer/internal/infra/modelstore"
	"github.com/yanqian/transcript-summarizer/pkg/executor"
)

// ProviderSet builds the summarization pipeline shared by the HTTP service and the CLI.
// Callers supply *config.Config, *slog.Logger and a summarizer.Observer.
var ProviderSet = wire.NewSet(
	ProvideSummaryConfig,
	ProvideRuntimeConfig,
	ProvidePromptLoader,
	ProvideDeviceProbe,
	ProvideBackend,
	ProvideLease,
	summarizer.NewRuntime,
	summarizer.NewService,
)

// ProvideSummaryConfig maps the summary section onto the domain config.
func ProvideSummaryConfig(cfg *config.Config) summarizer.Config {
	return summarizer.Config{
		PromptPath:         cfg.Summary.PromptPath,
		MaxTranscriptChars: cfg.Summary.MaxTranscriptChars,
	}
}

// ProvideRuntimeConfig maps the runtime section onto the domain config.
func ProvideRuntimeConfig(cfg *config.Config) summarizer.RuntimeConfig {
	return summarizer.RuntimeConfig{
		Model:          cfg.Runtime.Model,
		ReuseHandle:    cfg.Runtime.ReuseHandle,
		IdleTTL:        cfg.Runtime.IdleTTL,
		CleanupTimeout: cfg.Runtime.CleanupTimeout,
	}
}

// ProvidePromptLoader returns the process-wide loader for the configured template.
func ProvidePromptLoader(cfg summarizer.Config) *summarizer.PromptLoader {
	return summarizer.SharedPromptLoader(cfg.PromptPath)
}

// ProvideDeviceProbe honors runtime.device and otherwise probes the host.
func ProvideDeviceProbe(cfg *config.Config, logger *slog.Logger) summarizer.DeviceProbe {
	return device.NewProbe(cfg.Runtime.Device, executor.New(), logger)
}

// ProvideBackend selects the model backend named by runtime.backend.
func ProvideBackend(cfg *config.Config, logger *slog.Logger) (summarizer.Backend, error) {
	switch cfg.Runtime.Backend {
	case config.BackendDryRun:
		logger.Warn("dry-run backend enabled, summaries are extractive placeholders")
		return dryrun.NewBackend(logger), nil
	case config.BackendLlamaCPP:
		if cfg.Runtime.Mode == config.ModeAttach {
			return llamacpp.NewAttachBackend(llamacpp.NewClient(cfg.Runtime.BaseURL, nil), logger), nil
		}
		store, err := ProvideModelStore(cfg, logger)
		if err != nil {
			return nil, err
		}
		launcher := llamacpp.NewLauncher(cfg.Runtime.ServerBinary, cfg.Runtime.StartupTimeout, executor.NewStarter(logger), logger)
		return llamacpp.NewSpawnBackend(launcher, store, logger), nil
	default:
		return nil, fmt.Errorf("unknown runtime backend %q", cfg.Runtime.Backend)
	}
}

// ProvideModelStore resolves weights locally, fetching from the bucket when enabled.
func ProvideModelStore(cfg *config.Config, logger *slog.Logger) (*modelstore.Store, error) {
	ms := cfg.ModelStore
	if !ms.Enabled {
		return modelstore.New(cfg.Runtime.ModelDir, "", nil, logger), nil
	}
	fetcher, err := modelstore.NewR2Fetcher(ms.Endpoint, ms.AccessKey, ms.SecretKey, ms.Bucket, ms.Region, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("model store enabled", "bucket", ms.Bucket, "prefix", ms.Prefix)
	return modelstore.New(cfg.Runtime.ModelDir, ms.Prefix, fetcher, logger), nil
}

// ProvideLease prefers a Valkey lease and falls back to an in-process one.
func ProvideLease(cfg *config.Config, logger *slog.Logger) summarizer.DeviceLease {
	if cfg.Lease.Valkey.Enabled {
		opt, err := buildValkeyOptions(cfg)
		if err != nil {
			logger.Error("invalid valkey configuration, falling back to memory lease", "error", err)
			return lease.NewMemory()
		}
		client, err := valkey.NewClient(opt)
		if err != nil {
			logger.Error("failed to create valkey client, falling back to memory lease", "error", err)
			return lease.NewMemory()
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
			logger.Error("valkey ping failed, falling back to memory lease", "error", err)
			client.Close()
		} else {
			logger.Info("valkey device lease enabled", "addr", cfg.Lease.Valkey.Addr)
			return lease.NewValkeyLease(client, "summarizer:lease", cfg.Lease.TTL, logger)
		}
	}
	return lease.NewMemory()
}

func buildValkeyOptions(cfg *config.Config) (valkey.ClientOption, error) {
	var (
		opt valkey.ClientOption
		err error
	)
	if strings.Contains(cfg.Lease.Valkey.Addr, "://") {
		opt, err = valkey.ParseURL(cfg.Lease.Valkey.Addr)
	} else {
		opt = valkey.ClientOption{InitAddress: []string{cfg.Lease.Valkey.Addr}}
	}
	if err != nil {
		return valkey.ClientOption{}, err
	}
	return opt, nil
}
