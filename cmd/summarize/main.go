// Command summarize runs the summarization pipeline once over a transcript file
// and writes the result as summary_<timestamp>.txt into the -out directory.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"unicode/utf8"

	"github.com/yanqian/transcript-summarizer/internal/bootstrap"
	"github.com/yanqian/transcript-summarizer/internal/domain/summarizer"
	"github.com/yanqian/transcript-summarizer/internal/infra/config"
	apperrors "github.com/yanqian/transcript-summarizer/pkg/errors"
	"github.com/yanqian/transcript-summarizer/pkg/logger"
	"github.com/yanqian/transcript-summarizer/pkg/util"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to the YAML config file")
	in := flag.String("in", "", "transcript .txt file to summarize")
	outDir := flag.String("out", ".", "directory that receives the summary file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path, err := run(ctx, *configPath, *in, *outDir)
	if err != nil {
		if hint := apperrors.HintOf(err); hint != "" {
			log.Fatalf("summarize failed: %v (%s)", err, hint)
		}
		log.Fatalf("summarize failed: %v", err)
	}
	fmt.Println(path)
}

func run(ctx context.Context, configPath, in, outDir string) (string, error) {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return "", err
	}
	transcript, err := readTranscript(in)
	if err != nil {
		return "", err
	}

	lg := logger.New()
	svc, runtime, err := buildService(cfg, lg)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := runtime.Close(context.WithoutCancel(ctx)); err != nil {
			lg.Warn("close runtime failed", "error", err)
		}
	}()

	resp, err := svc.Summarize(ctx, summarizer.Request{Transcript: transcript, Filename: filepath.Base(in)})
	if err != nil {
		return "", err
	}

	out := filepath.Join(outDir, util.SummaryFilename(util.Now()))
	if err := os.WriteFile(out, []byte(resp.Summary), 0o644); err != nil {
		return "", fmt.Errorf("write summary: %w", err)
	}
	lg.Info("summary written", "path", out, "device", resp.Device, "truncated", resp.Truncated, "duration_ms", resp.DurationMs)
	return out, nil
}

// readTranscript accepts an empty path so the service reports the missing input.
func readTranscript(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", apperrors.Wrap(apperrors.CodeInvalidInput, "transcript file not found", err)
		}
		return "", fmt.Errorf("read transcript: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	if !utf8.Valid(data) {
		return "", apperrors.Wrap(apperrors.CodeInvalidInput, "transcript must be UTF-8 text", nil)
	}
	return string(data), nil
}

func buildService(cfg *config.Config, lg *slog.Logger) (summarizer.Service, summarizer.Runtime, error) {
	summaryCfg := bootstrap.ProvideSummaryConfig(cfg)
	backend, err := bootstrap.ProvideBackend(cfg, lg)
	if err != nil {
		return nil, nil, err
	}
	observer := summarizer.NewLogObserver(lg)
	runtime := summarizer.NewRuntime(
		bootstrap.ProvideRuntimeConfig(cfg),
		summaryCfg,
		backend,
		bootstrap.ProvideDeviceProbe(cfg, lg),
		bootstrap.ProvideLease(cfg, lg),
		observer,
		lg,
	)
	svc := summarizer.NewService(summaryCfg, bootstrap.ProvidePromptLoader(summaryCfg), runtime, observer, lg)
	return svc, runtime, nil
}
