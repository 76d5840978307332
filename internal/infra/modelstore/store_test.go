package modelstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	keys []string
	err  error
}

func (f *fakeFetcher) Fetch(_ context.Context, key, dest string) error {
	f.keys = append(f.keys, key)
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(dest, []byte("GGUF"), 0o644)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFileName(t *testing.T) {
	require.Equal(t, "HuggingFaceH4--zephyr-7b-beta.gguf", FileName("HuggingFaceH4/zephyr-7b-beta"))
	require.Equal(t, "zephyr.gguf", FileName("zephyr.gguf"))
	require.Equal(t, "--etc--passwd.gguf", FileName("../etc/passwd"))
}

func TestResolveLocal(t *testing.T) {
	dir := t.TempDir()
	want := filepath.Join(dir, "HuggingFaceH4--zephyr-7b-beta.gguf")
	require.NoError(t, os.WriteFile(want, []byte("GGUF"), 0o644))
	fetcher := &fakeFetcher{}

	got, err := New(dir, "", fetcher, testLogger()).Resolve(context.Background(), "HuggingFaceH4/zephyr-7b-beta")
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.Empty(t, fetcher.keys)
}

func TestResolveExplicitPath(t *testing.T) {
	p := filepath.Join(t.TempDir(), "custom.gguf")
	require.NoError(t, os.WriteFile(p, []byte("GGUF"), 0o644))

	got, err := New(t.TempDir(), "", nil, testLogger()).Resolve(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, p, got)
}

func TestResolveMissingWithoutStore(t *testing.T) {
	_, err := New(t.TempDir(), "", nil, testLogger()).Resolve(context.Background(), "org/model")
	require.ErrorContains(t, err, "org--model.gguf not found")
}

func TestResolveFetchesOnce(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "models")
	fetcher := &fakeFetcher{}
	store := New(dir, "/weights/", fetcher, testLogger())

	for i := 0; i < 2; i++ {
		got, err := store.Resolve(context.Background(), "org/model")
		require.NoError(t, err)
		require.Equal(t, filepath.Join(dir, "org--model.gguf"), got)
	}
	require.Equal(t, []string{"weights/org--model.gguf"}, fetcher.keys)
}

func TestResolveFetchFailure(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("connection refused")}
	_, err := New(t.TempDir(), "", fetcher, testLogger()).Resolve(context.Background(), "org/model")
	require.ErrorContains(t, err, "fetch org--model.gguf from model store: connection refused")
}

func TestSanitizeEndpoint(t *testing.T) {
	require.Equal(t, "acct.r2.cloudflarestorage.com", sanitizeEndpoint("https://acct.r2.cloudflarestorage.com/bucket"))
	require.Equal(t, "localhost:9000", sanitizeEndpoint(" http://localhost:9000 "))
}
