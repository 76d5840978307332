package summarizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/yanqian/transcript-summarizer/pkg/errors"
	"github.com/yanqian/transcript-summarizer/pkg/metrics"
	"github.com/yanqian/transcript-summarizer/pkg/util"
)

// HintAccelerator is attached to model-side failures.
const HintAccelerator = "Use GPU for faster processing. CPU will be slow."

// Service exposes transcript summarization.
type Service interface {
	Summarize(ctx context.Context, req Request) (Response, error)
	// ExportFilename names the downloadable summary for an export made at now.
	ExportFilename(now time.Time) string
}

type service struct {
	cfg      Config
	prompts  *PromptLoader
	runtime  Runtime
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
}

// NewService is a wire provider for the summarizer domain.
func NewService(cfg Config, prompts *PromptLoader, runtime Runtime, observer Observer, logger *slog.Logger) Service {
	if cfg.MaxTranscriptChars <= 0 {
		cfg.MaxTranscriptChars = DefaultMaxTranscriptChars
	}
	if observer == nil {
		observer = MultiObserver{}
	}
	return &service{
		cfg:      cfg,
		prompts:  prompts,
		runtime:  runtime,
		observer: observer,
		logger:   logger.With("component", "summarizer.service"),
		now:      util.Now,
	}
}

// Summarize runs the pipeline. Missing input or a missing prompt fail before any
// device or model work starts. Failures never yield a partial summary.
func (s *service) Summarize(ctx context.Context, req Request) (resp Response, err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		var usage metrics.TokenUsage
		if err != nil {
			outcome = apperrors.CodeOf(err)
			if outcome == "" {
				outcome = "internal_error"
			}
		} else if resp.TokenUsage != nil {
			usage = *resp.TokenUsage
		}
		s.observer.Completed(ctx, outcome, string(resp.Device), time.Since(start), usage)
	}()

	if strings.TrimSpace(req.Transcript) == "" {
		return Response{}, apperrors.WithHint(
			apperrors.Wrap(apperrors.CodeInvalidInput, "no transcript provided", nil),
			"Upload a non-empty .txt transcript before generating a summary.",
		)
	}

	template, err := s.prompts.Load()
	if err != nil {
		return Response{}, apperrors.WithHint(err,
			fmt.Sprintf("Place the prompt template at %s and restart the service.", s.prompts.Path()))
	}

	chars := utf8.RuneCountInString(req.Transcript)
	truncated := Truncate(req.Transcript, s.cfg.MaxTranscriptChars)
	conv := Compose(template, truncated)

	s.logger.Info("summarizing transcript",
		"filename", req.Filename,
		"transcript_chars", chars,
		"truncated", chars > s.cfg.MaxTranscriptChars,
	)

	result, err := s.runtime.Generate(ctx, conv)
	if err != nil {
		code := apperrors.CodeOf(err)
		s.logger.Error("summary generation failed", "code", code, "error", err)
		switch code {
		case apperrors.CodeModelLoad, apperrors.CodeDevice, apperrors.CodeGeneration:
			return Response{}, apperrors.WithHint(err, HintAccelerator)
		}
		return Response{}, err
	}

	usage := metrics.NewTokenUsage(result.InputTokens, result.OutputTokens)
	return Response{
		Summary:         result.Summary,
		Filename:        s.ExportFilename(s.now()),
		Device:          result.Device,
		TranscriptChars: chars,
		Truncated:       chars > s.cfg.MaxTranscriptChars,
		DurationMs:      time.Since(start).Milliseconds(),
		TokenUsage:      &usage,
	}, nil
}

func (s *service) ExportFilename(now time.Time) string {
	return util.SummaryFilename(now)
}
