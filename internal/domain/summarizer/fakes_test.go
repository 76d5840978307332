package summarizer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
)

const fakeEOS = 2

// wordTokenizer assigns ids to whitespace-separated words in order of first use.
type wordTokenizer struct {
	mu     sync.Mutex
	ids    map[string]int
	words  map[int]string
	lastIn string
}

func newWordTokenizer() *wordTokenizer {
	return &wordTokenizer{
		ids:   map[string]int{"</s>": fakeEOS},
		words: map[int]string{fakeEOS: "</s>"},
	}
}

func (t *wordTokenizer) ApplyChatTemplate(_ context.Context, conv Conversation) (string, error) {
	var b strings.Builder
	for _, turn := range conv {
		b.WriteString("<|" + string(turn.Role) + "|> " + turn.Content + " </s> ")
	}
	b.WriteString("<|assistant|>")
	t.lastIn = b.String()
	return b.String(), nil
}

func (t *wordTokenizer) Encode(_ context.Context, text string) ([]int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fields := strings.Fields(text)
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		id, ok := t.ids[f]
		if !ok {
			id = len(t.ids) + 10
			t.ids[f] = id
			t.words[id] = f
		}
		out = append(out, id)
	}
	return out, nil
}

func (t *wordTokenizer) Decode(_ context.Context, ids []int) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	words := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == fakeEOS {
			continue
		}
		w, ok := t.words[id]
		if !ok {
			return "", errors.New("unknown token")
		}
		words = append(words, w)
	}
	return strings.Join(words, " "), nil
}

func (t *wordTokenizer) EOSTokenID() int { return fakeEOS }

// stubModel echoes the input followed by the encoded reply and EOS.
type stubModel struct {
	tok     *wordTokenizer
	reply   string
	err     error
	panics  bool
	resets  int
	lastCfg GenerationConfig
}

func (m *stubModel) Generate(ctx context.Context, input []int, cfg GenerationConfig) ([]int, error) {
	m.lastCfg = cfg
	if m.panics {
		panic("sampler blew up")
	}
	if m.err != nil {
		return nil, m.err
	}
	reply, _ := m.tok.Encode(ctx, m.reply)
	out := append(append([]int{}, input...), reply...)
	return append(out, fakeEOS), nil
}

func (m *stubModel) ResetCache(context.Context) error {
	m.resets++
	return nil
}

// recordingBackend counts handle acquisitions and releases.
type recordingBackend struct {
	mu       sync.Mutex
	tok      *wordTokenizer
	model    *stubModel
	loadErr  error
	loads    int
	releases int
	specs    []LoadSpec
}

func newRecordingBackend(reply string) *recordingBackend {
	tok := newWordTokenizer()
	return &recordingBackend{tok: tok, model: &stubModel{tok: tok, reply: reply}}
}

func (b *recordingBackend) Load(_ context.Context, spec LoadSpec) (*ModelHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.specs = append(b.specs, spec)
	if b.loadErr != nil {
		return nil, b.loadErr
	}
	b.loads++
	return NewModelHandle(spec, b.tok, b.model, func(context.Context) error {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.releases++
		return nil
	}), nil
}

type stubProbe struct {
	device Device
	err    error
	calls  int
}

func (p *stubProbe) Probe(context.Context) (Device, error) {
	p.calls++
	return p.device, p.err
}

type countingLease struct {
	acquired int
	released int
	err      error
}

func (l *countingLease) Acquire(context.Context, string) (func(context.Context) error, error) {
	if l.err != nil {
		return nil, l.err
	}
	l.acquired++
	return func(context.Context) error {
		l.released++
		return nil
	}, nil
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
