package summarizer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	apperrors "github.com/yanqian/transcript-summarizer/pkg/errors"
	"github.com/yanqian/transcript-summarizer/pkg/metrics"
)

type stubRuntime struct {
	result Result
	err    error
	calls  int
	conv   Conversation
}

func (r *stubRuntime) Generate(_ context.Context, conv Conversation) (Result, error) {
	r.calls++
	r.conv = conv
	return r.result, r.err
}

func (r *stubRuntime) Close(context.Context) error { return nil }

type outcomeRecorder struct {
	phaseRecorder
	outcomes []string
	usage    metrics.TokenUsage
}

func (o *outcomeRecorder) Completed(_ context.Context, outcome, _ string, _ time.Duration, usage metrics.TokenUsage) {
	o.outcomes = append(o.outcomes, outcome)
	o.usage = usage
}

func writePrompt(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prompt.md")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestService(promptPath string, rt Runtime, obs Observer) *service {
	svc := NewService(Config{}, NewPromptLoader(promptPath), rt, obs, newTestLogger()).(*service)
	svc.now = func() time.Time { return time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC) }
	return svc
}

func TestSummarizeEndToEnd(t *testing.T) {
	f := newRuntimeFixture(DeviceCPU, false)
	obs := &outcomeRecorder{}
	svc := newTestService(writePrompt(t, "You are a helpful summarizer."), f.runtime, obs)

	resp, err := svc.Summarize(context.Background(), Request{
		Transcript: "Alice and Bob discussed the Q3 budget.",
		Filename:   "meeting.txt",
	})
	require.NoError(t, err)
	require.Equal(t, "budget approved for Q3", resp.Summary)
	require.Equal(t, "summary_20240305_140709.txt", resp.Filename)
	require.Equal(t, DeviceCPU, resp.Device)
	require.False(t, resp.Truncated)
	require.NotNil(t, resp.TokenUsage)
	require.Equal(t, 5, resp.TokenUsage.CompletionTokens)

	tok := f.backend.tok
	require.Contains(t, tok.lastIn, "You are a helpful summarizer.")
	require.Contains(t, tok.lastIn, "Alice and Bob discussed the Q3 budget.")
	require.NotContains(t, resp.Summary, "Alice")

	require.Equal(t, []string{"ok"}, obs.outcomes)
	require.Equal(t, 1, f.lease.released)
	require.Equal(t, 1, f.backend.releases)
}

func TestSummarizeTruncatesLongTranscript(t *testing.T) {
	rt := &stubRuntime{result: Result{Summary: "short", Device: DeviceCPU}}
	svc := newTestService(writePrompt(t, "sys"), rt, nil)
	transcript := strings.Repeat("é", 12000)

	resp, err := svc.Summarize(context.Background(), Request{Transcript: transcript})
	require.NoError(t, err)
	require.True(t, resp.Truncated)
	require.Equal(t, 12000, resp.TranscriptChars)

	embedded := strings.TrimPrefix(rt.conv[1].Content, UserPrefix)
	require.Equal(t, DefaultMaxTranscriptChars, utf8.RuneCountInString(embedded))
	require.True(t, strings.HasPrefix(transcript, embedded))
}

func TestSummarizeFailsFastWithoutModelWork(t *testing.T) {
	tests := []struct {
		name       string
		promptPath func(t *testing.T) string
		transcript string
		wantCode   string
		wantHint   string
	}{
		{
			name:       "missing prompt",
			promptPath: func(t *testing.T) string { return filepath.Join(t.TempDir(), "prompt.md") },
			transcript: "Alice and Bob discussed the Q3 budget.",
			wantCode:   apperrors.CodeConfiguration,
			wantHint:   "Place the prompt template at",
		},
		{
			name:       "empty transcript",
			promptPath: func(t *testing.T) string { return writePrompt(t, "sys") },
			transcript: "",
			wantCode:   apperrors.CodeInvalidInput,
			wantHint:   "non-empty .txt transcript",
		},
		{
			name:       "whitespace transcript",
			promptPath: func(t *testing.T) string { return writePrompt(t, "sys") },
			transcript: " \n\t ",
			wantCode:   apperrors.CodeInvalidInput,
			wantHint:   "non-empty .txt transcript",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newRuntimeFixture(DeviceCPU, false)
			obs := &outcomeRecorder{}
			svc := newTestService(tt.promptPath(t), f.runtime, obs)

			resp, err := svc.Summarize(context.Background(), Request{Transcript: tt.transcript})
			require.Error(t, err)
			require.Empty(t, resp.Summary)
			require.Equal(t, tt.wantCode, apperrors.CodeOf(err))
			require.Contains(t, apperrors.HintOf(err), tt.wantHint)
			require.Zero(t, f.probe.calls)
			require.Zero(t, f.backend.loads)
			require.Equal(t, []string{tt.wantCode}, obs.outcomes)
		})
	}
}

func TestSummarizeAttachesAcceleratorHint(t *testing.T) {
	f := newRuntimeFixture(DeviceCPU, false)
	f.backend.loadErr = ErrOutOfMemory
	svc := newTestService(writePrompt(t, "sys"), f.runtime, nil)

	resp, err := svc.Summarize(context.Background(), Request{Transcript: "hello"})
	require.Error(t, err)
	require.Empty(t, resp.Summary)
	require.Equal(t, apperrors.CodeDevice, apperrors.CodeOf(err))
	require.Equal(t, HintAccelerator, apperrors.HintOf(err))
}

func TestSummarizeHintOnlyForModelFailures(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantHint string
	}{
		{name: "model load", err: apperrors.Wrap(apperrors.CodeModelLoad, "load", nil), wantHint: HintAccelerator},
		{name: "generation", err: apperrors.Wrap(apperrors.CodeGeneration, "generate", nil), wantHint: HintAccelerator},
		{name: "rejected conversation", err: apperrors.Wrap(apperrors.CodeInvalidInput, "conversation rejected", nil)},
		{name: "uncoded", err: context.Canceled},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc := newTestService(writePrompt(t, "sys"), &stubRuntime{err: tt.err}, nil)

			_, err := svc.Summarize(context.Background(), Request{Transcript: "hello"})
			require.Error(t, err)
			require.Equal(t, apperrors.CodeOf(tt.err), apperrors.CodeOf(err))
			require.Equal(t, tt.wantHint, apperrors.HintOf(err))
		})
	}
}
