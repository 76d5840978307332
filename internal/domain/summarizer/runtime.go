package summarizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/yanqian/transcript-summarizer/pkg/errors"
)

const defaultCleanupTimeout = 30 * time.Second

// Runtime owns device selection, the model handle lifecycle and one blocking generation pass.
type Runtime interface {
	Generate(ctx context.Context, conv Conversation) (Result, error)
	// Close releases any handle kept between requests.
	Close(ctx context.Context) error
}

type modelRuntime struct {
	cfg      RuntimeConfig
	maxChars int
	backend  Backend
	probe    DeviceProbe
	lease    DeviceLease
	observer Observer
	handles  *handlePool
	logger   *slog.Logger
}

// NewRuntime is a wire provider for the model runtime.
func NewRuntime(cfg RuntimeConfig, summaryCfg Config, backend Backend, probe DeviceProbe, lease DeviceLease, observer Observer, logger *slog.Logger) Runtime {
	if cfg.CleanupTimeout <= 0 {
		cfg.CleanupTimeout = defaultCleanupTimeout
	}
	if observer == nil {
		observer = MultiObserver{}
	}
	logger = logger.With("component", "summarizer.runtime")
	rt := &modelRuntime{
		cfg:      cfg,
		maxChars: summaryCfg.MaxTranscriptChars,
		backend:  backend,
		probe:    probe,
		lease:    lease,
		observer: observer,
		logger:   logger,
	}
	if cfg.ReuseHandle {
		rt.handles = newHandlePool(cfg.IdleTTL, cfg.CleanupTimeout, logger)
	}
	return rt
}

func (r *modelRuntime) Generate(ctx context.Context, conv Conversation) (Result, error) {
	if err := conv.Validate(r.maxChars); err != nil {
		return Result{}, apperrors.Wrap(apperrors.CodeInvalidInput, "conversation rejected", err)
	}

	device, err := r.probe.Probe(ctx)
	if err != nil {
		return Result{}, apperrors.Wrap(apperrors.CodeDevice, "select compute device", err)
	}
	spec := LoadSpec{Model: r.cfg.Model, Device: device, Precision: PrecisionFor(device)}

	releaseLease, err := r.lease.Acquire(ctx, "device:"+string(device))
	if err != nil {
		return Result{}, apperrors.Wrap(apperrors.CodeDevice, fmt.Sprintf("acquire %s device", device), err)
	}
	defer func() {
		cleanupCtx, cancel := r.cleanupContext(ctx)
		defer cancel()
		if relErr := releaseLease(cleanupCtx); relErr != nil {
			r.logger.Warn("device lease release failed", "device", device, "error", relErr)
		}
	}()

	var handle *ModelHandle
	err = track(ctx, r.observer, PhaseLoading, func() error {
		var loadErr error
		handle, loadErr = r.checkout(ctx, spec)
		return loadErr
	})
	if err != nil {
		return Result{}, classifyLoadError(spec, err)
	}

	healthy := false
	defer func() { r.checkin(ctx, handle, healthy) }()

	result, err := r.run(ctx, handle, conv)
	if err != nil {
		return Result{}, err
	}
	healthy = true
	result.Device = spec.Device
	result.Precision = spec.Precision
	return result, nil
}

func (r *modelRuntime) run(ctx context.Context, handle *ModelHandle, conv Conversation) (Result, error) {
	prompt, err := handle.Tokenizer.ApplyChatTemplate(ctx, conv)
	if err != nil {
		return Result{}, apperrors.Wrap(apperrors.CodeGeneration, "format conversation", err)
	}
	input, err := handle.Tokenizer.Encode(ctx, prompt)
	if err != nil {
		return Result{}, apperrors.Wrap(apperrors.CodeGeneration, "tokenize conversation", err)
	}

	genCfg := DefaultGenerationConfig(handle.Tokenizer.EOSTokenID())
	var output []int
	err = track(ctx, r.observer, PhaseGenerating, func() error {
		var genErr error
		output, genErr = handle.Model.Generate(ctx, input, genCfg)
		return genErr
	})
	if err != nil {
		return Result{}, apperrors.Wrap(apperrors.CodeGeneration, "generate summary", err)
	}

	var summary string
	err = track(ctx, r.observer, PhaseDecoding, func() error {
		var decErr error
		summary, decErr = Decode(ctx, handle.Tokenizer, output, len(input))
		return decErr
	})
	if err != nil {
		return Result{}, err
	}

	return Result{
		Summary:      summary,
		InputTokens:  len(input),
		OutputTokens: len(output) - len(input),
	}, nil
}

func (r *modelRuntime) checkout(ctx context.Context, spec LoadSpec) (*ModelHandle, error) {
	if r.handles != nil {
		if handle := r.handles.take(spec); handle != nil {
			r.logger.Debug("reusing model handle", "model", spec.Model, "device", spec.Device)
			return handle, nil
		}
	}
	r.logger.Info("loading model", "model", spec.Model, "device", spec.Device, "precision", spec.Precision)
	handle, err := r.backend.Load(ctx, spec)
	if err != nil {
		return nil, err
	}
	if handle == nil {
		return nil, errors.New("backend returned no handle")
	}
	return handle, nil
}

// checkin runs on success and failure alike. Device caches are always reset; the
// handle is released unless it is healthy and kept for reuse.
func (r *modelRuntime) checkin(ctx context.Context, handle *ModelHandle, healthy bool) {
	cleanupCtx, cancel := r.cleanupContext(ctx)
	defer cancel()

	_ = track(cleanupCtx, r.observer, PhaseReleasing, func() error {
		resetErr := handle.Model.ResetCache(cleanupCtx)
		if resetErr != nil {
			r.logger.Warn("device cache reset failed", "device", handle.Spec.Device, "error", resetErr)
		}
		if r.handles != nil && healthy && resetErr == nil {
			r.handles.put(handle)
			return nil
		}
		if err := handle.Release(cleanupCtx); err != nil {
			r.logger.Warn("model handle release failed", "device", handle.Spec.Device, "error", err)
			return errors.Join(resetErr, err)
		}
		return resetErr
	})
}

func (r *modelRuntime) cleanupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), r.cfg.CleanupTimeout)
}

func (r *modelRuntime) Close(ctx context.Context) error {
	if r.handles == nil {
		return nil
	}
	return r.handles.close(ctx)
}

func classifyLoadError(spec LoadSpec, err error) error {
	if errors.Is(err, ErrDeviceUnavailable) || errors.Is(err, ErrOutOfMemory) {
		return apperrors.Wrap(apperrors.CodeDevice, fmt.Sprintf("load %s on %s", spec.Model, spec.Device), err)
	}
	return apperrors.Wrap(apperrors.CodeModelLoad, fmt.Sprintf("load %s", spec.Model), err)
}
