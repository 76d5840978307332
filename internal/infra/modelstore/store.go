// Package modelstore resolves model identifiers to local GGUF weight files.
package modelstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
)

// Fetcher downloads an object to a local file.
type Fetcher interface {
	Fetch(ctx context.Context, key, dest string) error
}

// Store maps "org/name" identifiers onto <dir>/<org--name>.gguf, fetching missing
// files when a Fetcher is configured.
type Store struct {
	dir     string
	prefix  string
	fetcher Fetcher
	logger  *slog.Logger

	mu sync.Mutex
}

// New returns a store rooted at dir. fetcher may be nil for local-only resolution.
func New(dir, prefix string, fetcher Fetcher, logger *slog.Logger) *Store {
	return &Store{
		dir:     dir,
		prefix:  strings.Trim(prefix, "/"),
		fetcher: fetcher,
		logger:  logger.With("component", "modelstore"),
	}
}

// FileName turns a model identifier into its GGUF file name.
func FileName(model string) string {
	name := strings.TrimSpace(model)
	name = strings.TrimSuffix(name, ".gguf")
	name = strings.ReplaceAll(name, "/", "--")
	name = strings.ReplaceAll(name, "\\", "--")
	name = strings.ReplaceAll(name, "..", "")
	return name + ".gguf"
}

// Resolve returns the local path of model's weights. An existing path to a .gguf
// file is returned unchanged.
func (s *Store) Resolve(ctx context.Context, model string) (string, error) {
	if strings.HasSuffix(model, ".gguf") && fileExists(model) {
		return model, nil
	}
	name := FileName(model)
	local := filepath.Join(s.dir, name)
	if fileExists(local) {
		return local, nil
	}
	if s.fetcher == nil {
		return "", fmt.Errorf("model file %s not found", local)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if fileExists(local) {
		return local, nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create model dir: %w", err)
	}
	key := name
	if s.prefix != "" {
		key = path.Join(s.prefix, name)
	}
	s.logger.Info("fetching model weights", "key", key, "dest", local)
	if err := s.fetcher.Fetch(ctx, key, local); err != nil {
		return "", fmt.Errorf("fetch %s from model store: %w", key, err)
	}
	return local, nil
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
