package summarizer

import (
	"fmt"
	"os"
	"strings"
	"sync"

	apperrors "github.com/yanqian/transcript-summarizer/pkg/errors"
)

// PromptLoader reads the system prompt template once and memoizes the outcome,
// including a missing-file failure, for the lifetime of the loader.
type PromptLoader struct {
	path     string
	readFile func(string) ([]byte, error)

	once     sync.Once
	template string
	err      error
}

// NewPromptLoader returns a loader for the template at path.
func NewPromptLoader(path string) *PromptLoader {
	return &PromptLoader{path: path, readFile: os.ReadFile}
}

// Path returns the configured template location.
func (l *PromptLoader) Path() string {
	return l.path
}

// Load returns the trimmed template, or a configuration_error when it is absent.
func (l *PromptLoader) Load() (string, error) {
	l.once.Do(func() {
		l.template, l.err = l.read()
	})
	return l.template, l.err
}

func (l *PromptLoader) read() (string, error) {
	if strings.TrimSpace(l.path) == "" {
		return "", apperrors.Wrap(apperrors.CodeConfiguration, "prompt template path is not configured", nil)
	}
	data, err := l.readFile(l.path)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeConfiguration, fmt.Sprintf("prompt template %s not found", l.path), err)
	}
	template := strings.TrimSpace(string(data))
	if template == "" {
		return "", apperrors.Wrap(apperrors.CodeConfiguration, fmt.Sprintf("prompt template %s is empty", l.path), nil)
	}
	return template, nil
}

var (
	promptLoadersMu sync.Mutex
	promptLoaders   = map[string]*PromptLoader{}
)

// LoadPrompt is the process-wide memoized loader. The first call for a path reads the
// file; every later call returns the same template or error. Entries are never evicted.
func LoadPrompt(path string) (string, error) {
	return SharedPromptLoader(path).Load()
}

// SharedPromptLoader returns the process-wide loader for path.
func SharedPromptLoader(path string) *PromptLoader {
	promptLoadersMu.Lock()
	defer promptLoadersMu.Unlock()
	loader, ok := promptLoaders[path]
	if !ok {
		loader = NewPromptLoader(path)
		promptLoaders[path] = loader
	}
	return loader
}
