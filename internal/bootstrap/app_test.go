package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/transcript-summarizer/internal/domain/summarizer"
	"github.com/yanqian/transcript-summarizer/internal/infra/config"
)

type closingRuntime struct {
	closed int
}

func (r *closingRuntime) Generate(context.Context, summarizer.Conversation) (summarizer.Result, error) {
	return summarizer.Result{}, nil
}

func (r *closingRuntime) Close(context.Context) error {
	r.closed++
	return nil
}

func TestRunClosesRuntimeOnShutdown(t *testing.T) {
	cfg := &config.Config{
		HTTP:    config.HTTPConfig{Address: "127.0.0.1:0"},
		Runtime: config.RuntimeConfig{CleanupTimeout: time.Second},
	}
	server := &http.Server{Addr: cfg.HTTP.Address, Handler: http.NotFoundHandler()}
	rt := &closingRuntime{}
	app := NewApp(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), server, rt)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
	require.Equal(t, 1, rt.closed)
}
