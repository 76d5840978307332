package summarizer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/yanqian/transcript-summarizer/pkg/errors"
)

func TestPromptLoaderTrimsAndMemoizes(t *testing.T) {
	loader := NewPromptLoader("prompt.md")
	reads := 0
	loader.readFile = func(string) ([]byte, error) {
		reads++
		return []byte("\n  You are a helpful summarizer.  \n"), nil
	}

	for i := 0; i < 3; i++ {
		got, err := loader.Load()
		require.NoError(t, err)
		require.Equal(t, "You are a helpful summarizer.", got)
	}
	require.Equal(t, 1, reads)
}

func TestPromptLoaderMissingFile(t *testing.T) {
	loader := NewPromptLoader(filepath.Join(t.TempDir(), "missing.md"))
	_, err := loader.Load()
	require.True(t, apperrors.IsCode(err, apperrors.CodeConfiguration))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestPromptLoaderBlankFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.md")
	require.NoError(t, os.WriteFile(path, []byte("  \n\t"), 0o644))

	_, err := NewPromptLoader(path).Load()
	require.True(t, apperrors.IsCode(err, apperrors.CodeConfiguration))
}

func TestSharedPromptLoaderIsProcessWide(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.md")
	require.NoError(t, os.WriteFile(path, []byte("first"), 0o644))
	require.Same(t, SharedPromptLoader(path), SharedPromptLoader(path))

	got, err := LoadPrompt(path)
	require.NoError(t, err)
	require.Equal(t, "first", got)

	require.NoError(t, os.WriteFile(path, []byte("second"), 0o644))
	got, err = LoadPrompt(path)
	require.NoError(t, err)
	require.Equal(t, "first", got)
}
