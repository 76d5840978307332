package summarizer

import (
	"context"
	"log/slog"
	"time"

	"github.com/yanqian/transcript-summarizer/pkg/metrics"
)

// Runtime phase markers.
const (
	PhaseLoading    = "loading"
	PhaseGenerating = "generating"
	PhaseDecoding   = "decoding"
	PhaseReleasing  = "releasing"
)

// Observer receives coarse progress markers. Implementations must not block and
// never influence control flow.
type Observer interface {
	PhaseStarted(ctx context.Context, phase string)
	PhaseFinished(ctx context.Context, phase string, elapsed time.Duration, err error)
	Completed(ctx context.Context, outcome, device string, elapsed time.Duration, usage metrics.TokenUsage)
}

// NewLogObserver reports phases through slog.
func NewLogObserver(logger *slog.Logger) Observer {
	return &logObserver{logger: logger.With("component", "summarizer.observer")}
}

type logObserver struct {
	logger *slog.Logger
}

func (o *logObserver) PhaseStarted(ctx context.Context, phase string) {
	o.logger.InfoContext(ctx, "phase started", "phase", phase)
}

func (o *logObserver) PhaseFinished(ctx context.Context, phase string, elapsed time.Duration, err error) {
	if err != nil {
		o.logger.WarnContext(ctx, "phase failed", "phase", phase, "elapsed_ms", elapsed.Milliseconds(), "error", err)
		return
	}
	o.logger.InfoContext(ctx, "phase finished", "phase", phase, "elapsed_ms", elapsed.Milliseconds())
}

func (o *logObserver) Completed(ctx context.Context, outcome, device string, elapsed time.Duration, usage metrics.TokenUsage) {
	o.logger.InfoContext(ctx, "summary request completed",
		"outcome", outcome,
		"device", device,
		"elapsed_ms", elapsed.Milliseconds(),
		"prompt_tokens", usage.PromptTokens,
		"completion_tokens", usage.CompletionTokens,
	)
}

// MultiObserver fans markers out to every observer.
type MultiObserver []Observer

func (m MultiObserver) PhaseStarted(ctx context.Context, phase string) {
	for _, o := range m {
		o.PhaseStarted(ctx, phase)
	}
}

func (m MultiObserver) PhaseFinished(ctx context.Context, phase string, elapsed time.Duration, err error) {
	for _, o := range m {
		o.PhaseFinished(ctx, phase, elapsed, err)
	}
}

func (m MultiObserver) Completed(ctx context.Context, outcome, device string, elapsed time.Duration, usage metrics.TokenUsage) {
	for _, o := range m {
		o.Completed(ctx, outcome, device, elapsed, usage)
	}
}

// track brackets fn with phase markers.
func track(ctx context.Context, obs Observer, phase string, fn func() error) error {
	start := time.Now()
	obs.PhaseStarted(ctx, phase)
	err := fn()
	obs.PhaseFinished(ctx, phase, time.Since(start), err)
	return err
}

var _ Observer = (*metrics.Collector)(nil)
