package llamacpp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/yanqian/transcript-summarizer/internal/domain/summarizer"
	"github.com/yanqian/transcript-summarizer/pkg/executor"
)

const healthPollInterval = 500 * time.Millisecond

// Launcher starts a dedicated llama-server process per model handle.
type Launcher struct {
	binary         string
	startupTimeout time.Duration
	starter        executor.Starter
	freePort       func() (int, error)
	logger         *slog.Logger
}

// NewLauncher returns a launcher for the llama-server binary.
func NewLauncher(binary string, startupTimeout time.Duration, starter executor.Starter, logger *slog.Logger) *Launcher {
	return &Launcher{
		binary:         binary,
		startupTimeout: startupTimeout,
		starter:        starter,
		freePort:       freeLocalPort,
		logger:         logger.With("component", "llamacpp.launcher"),
	}
}

// Instance is a running server bound to one model and device.
type Instance struct {
	Client  *Client
	process executor.Process
}

// Stop terminates the server, releasing every allocation it holds on the device.
func (i *Instance) Stop(ctx context.Context) error {
	return i.process.Stop(ctx)
}

// serverArgs maps a load spec onto llama-server flags. Accelerators get every layer
// offloaded and a half precision KV cache; the CPU keeps full precision.
func serverArgs(modelPath string, port int, spec summarizer.LoadSpec) []string {
	gpuLayers := "0"
	if spec.Device.IsAccelerator() {
		gpuLayers = "999"
	}
	cacheType := string(spec.Precision)
	return []string{
		"--model", modelPath,
		"--host", "127.0.0.1",
		"--port", strconv.Itoa(port),
		"--n-gpu-layers", gpuLayers,
		"--cache-type-k", cacheType,
		"--cache-type-v", cacheType,
		"--parallel", "1",
	}
}

// Launch starts the server and blocks until /health reports ready.
func (l *Launcher) Launch(ctx context.Context, modelPath string, spec summarizer.LoadSpec) (*Instance, error) {
	port, err := l.freePort()
	if err != nil {
		return nil, fmt.Errorf("reserve port: %w", err)
	}
	proc, err := l.starter.Start(l.binary, serverArgs(modelPath, port, spec)...)
	if err != nil {
		return nil, err
	}
	inst := &Instance{
		Client:  NewClient("http://127.0.0.1:"+strconv.Itoa(port), nil),
		process: proc,
	}
	l.logger.Info("llama-server started", "pid", proc.Pid(), "port", port, "device", spec.Device)

	if err := l.waitReady(ctx, inst); err != nil {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
		defer cancel()
		if stopErr := inst.Stop(stopCtx); stopErr != nil {
			l.logger.Warn("stop unready llama-server failed", "pid", proc.Pid(), "error", stopErr)
		}
		return nil, err
	}
	return inst, nil
}

func (l *Launcher) waitReady(ctx context.Context, inst *Instance) error {
	ctx, cancel := context.WithTimeout(ctx, l.startupTimeout)
	defer cancel()

	ticker := time.NewTicker(healthPollInterval)
	defer ticker.Stop()
	for {
		err := inst.Client.Health(ctx)
		if err == nil {
			return nil
		}
		select {
		case <-inst.process.Done():
			exitErr := inst.process.Err()
			if exitErr == nil {
				exitErr = errors.New("exit status 0")
			}
			return fmt.Errorf("llama-server exited during startup: %w", exitErr)
		case <-ctx.Done():
			return fmt.Errorf("llama-server not ready: %w", errors.Join(ctx.Err(), err))
		case <-ticker.C:
		}
	}
}

func freeLocalPort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port, nil
}
