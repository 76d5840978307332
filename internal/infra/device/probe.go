// Package device decides which compute device the next generation runs on.
package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/yanqian/transcript-summarizer/internal/domain/summarizer"
	"github.com/yanqian/transcript-summarizer/pkg/executor"
)

// Auto lets the probe pick the best available device.
const Auto = "auto"

// GPU is one CUDA device reported by nvidia-smi.
type GPU struct {
	Name       string
	FreeMemMiB int
}

// Probe prefers CUDA, then Apple Metal, then the CPU, unless a device is forced.
type Probe struct {
	forced    string
	exec      executor.Executor
	goos      string
	goarch    string
	lookupEnv func(string) (string, bool)
	lookPath  func(string) (string, bool)
	logger    *slog.Logger
}

// NewProbe builds a probe. forced is "", auto, cpu, cuda or metal.
func NewProbe(forced string, exec executor.Executor, logger *slog.Logger) *Probe {
	return &Probe{
		forced:    strings.ToLower(strings.TrimSpace(forced)),
		exec:      exec,
		goos:      runtime.GOOS,
		goarch:    runtime.GOARCH,
		lookupEnv: os.LookupEnv,
		lookPath:  executor.LookPath,
		logger:    logger.With("component", "device.probe"),
	}
}

// Probe implements summarizer.DeviceProbe. It runs on every request so a device
// that disappears between requests is noticed.
func (p *Probe) Probe(ctx context.Context) (summarizer.Device, error) {
	switch p.forced {
	case string(summarizer.DeviceCPU):
		return summarizer.DeviceCPU, nil
	case string(summarizer.DeviceCUDA):
		gpus, err := p.cudaDevices(ctx)
		if err != nil {
			return "", fmt.Errorf("%w: cuda forced: %w", summarizer.ErrDeviceUnavailable, err)
		}
		if len(gpus) == 0 {
			return "", fmt.Errorf("%w: cuda forced but no GPU is visible", summarizer.ErrDeviceUnavailable)
		}
		return summarizer.DeviceCUDA, nil
	case string(summarizer.DeviceMetal):
		if !p.hasMetal() {
			return "", fmt.Errorf("%w: metal requires darwin/arm64, running on %s/%s", summarizer.ErrDeviceUnavailable, p.goos, p.goarch)
		}
		return summarizer.DeviceMetal, nil
	case "", Auto:
	default:
		return "", fmt.Errorf("%w: unknown device %q", summarizer.ErrDeviceUnavailable, p.forced)
	}

	gpus, err := p.cudaDevices(ctx)
	if err != nil {
		p.logger.Debug("cuda probe failed, falling back", "error", err)
	}
	if len(gpus) > 0 {
		p.logger.Debug("cuda device selected", "gpu", gpus[0].Name, "free_mib", gpus[0].FreeMemMiB)
		return summarizer.DeviceCUDA, nil
	}
	if p.hasMetal() {
		return summarizer.DeviceMetal, nil
	}
	return summarizer.DeviceCPU, nil
}

func (p *Probe) hasMetal() bool {
	return p.goos == "darwin" && p.goarch == "arm64"
}

var errNoDriver = errors.New("nvidia-smi not found")

func (p *Probe) cudaDevices(ctx context.Context) ([]GPU, error) {
	if v, ok := p.lookupEnv("CUDA_VISIBLE_DEVICES"); ok {
		if v = strings.TrimSpace(v); v == "" || v == "-1" {
			return nil, nil
		}
	}
	if _, ok := p.lookPath("nvidia-smi"); !ok {
		return nil, errNoDriver
	}
	out, err := p.exec.Execute(ctx, "nvidia-smi", "--query-gpu=name,memory.free", "--format=csv,noheader,nounits")
	if err != nil {
		return nil, err
	}
	return parseGPUs(out)
}

// parseGPUs reads "name, free" CSV rows.
func parseGPUs(out string) ([]GPU, error) {
	var gpus []GPU
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		idx := strings.LastIndex(line, ",")
		if idx < 0 {
			return nil, fmt.Errorf("unexpected nvidia-smi row %q", line)
		}
		free, err := strconv.Atoi(strings.TrimSpace(line[idx+1:]))
		if err != nil {
			return nil, fmt.Errorf("parse free memory in %q: %w", line, err)
		}
		gpus = append(gpus, GPU{Name: strings.TrimSpace(line[:idx]), FreeMemMiB: free})
	}
	return gpus, nil
}
