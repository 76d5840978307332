// Package dryrun is an offline model backend. It tokenizes with tiktoken-go and
// answers with the leading sentences of the transcript, so the full pipeline can
// run without a model server.
package dryrun

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/yanqian/transcript-summarizer/internal/domain/summarizer"
)

const (
	// Encoding is the tiktoken vocabulary used for token ids.
	Encoding = "cl100k_base"
	// EndOfText terminates turns and generations.
	EndOfText = "<|endoftext|>"

	maxSentences = 3
)

// Encoder is the subset of *tiktoken.Tiktoken the backend needs.
type Encoder interface {
	Encode(text string, allowedSpecial []string, disallowedSpecial []string) []int
	Decode(tokens []int) string
}

// Backend hands out handles sharing one lazily loaded encoder.
type Backend struct {
	load   func() (Encoder, error)
	logger *slog.Logger

	mu  sync.Mutex
	enc Encoder
}

// NewBackend loads the cl100k_base encoding on first use. The BPE ranks are
// downloaded once and cached under TIKTOKEN_CACHE_DIR.
func NewBackend(logger *slog.Logger) *Backend {
	return NewBackendWithEncoder(func() (Encoder, error) {
		return tiktoken.GetEncoding(Encoding)
	}, logger)
}

// NewBackendWithEncoder uses load to obtain the encoder.
func NewBackendWithEncoder(load func() (Encoder, error), logger *slog.Logger) *Backend {
	return &Backend{load: load, logger: logger.With("component", "dryrun.backend")}
}

// Load implements summarizer.Backend. The device in spec is recorded but unused.
func (b *Backend) Load(ctx context.Context, spec summarizer.LoadSpec) (*summarizer.ModelHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	enc, err := b.encoder()
	if err != nil {
		return nil, fmt.Errorf("load %s encoding: %w", Encoding, err)
	}
	ids := enc.Encode(EndOfText, []string{"all"}, nil)
	if len(ids) != 1 {
		return nil, fmt.Errorf("%s maps to %d ids", EndOfText, len(ids))
	}
	tok := &tokenizer{enc: enc, eos: ids[0]}
	b.logger.Debug("dry-run handle loaded", "model", spec.Model, "device", spec.Device)
	return summarizer.NewModelHandle(spec, tok, &model{tok: tok}, nil), nil
}

func (b *Backend) encoder() (Encoder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.enc != nil {
		return b.enc, nil
	}
	enc, err := b.load()
	if err != nil {
		return nil, err
	}
	b.enc = enc
	return enc, nil
}

type tokenizer struct {
	enc Encoder
	eos int
}

// ApplyChatTemplate renders the Zephyr layout with <|endoftext|> as the turn terminator.
func (t *tokenizer) ApplyChatTemplate(_ context.Context, conv summarizer.Conversation) (string, error) {
	var b strings.Builder
	for _, turn := range conv {
		fmt.Fprintf(&b, "<|%s|>\n%s%s\n", turn.Role, turn.Content, EndOfText)
	}
	b.WriteString("<|assistant|>\n")
	return b.String(), nil
}

func (t *tokenizer) Encode(_ context.Context, text string) ([]int, error) {
	return t.enc.Encode(text, []string{"all"}, nil), nil
}

func (t *tokenizer) Decode(_ context.Context, ids []int) (string, error) {
	kept := make([]int, 0, len(ids))
	for _, id := range ids {
		if id != t.eos {
			kept = append(kept, id)
		}
	}
	return strings.TrimSpace(t.enc.Decode(kept)), nil
}

func (t *tokenizer) EOSTokenID() int { return t.eos }

type model struct {
	tok *tokenizer
}

// Generate appends the encoded opening sentences of the user turn, capped at
// cfg.MaxNewTokens, followed by EOS.
func (m *model) Generate(ctx context.Context, input []int, cfg summarizer.GenerationConfig) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prompt := m.tok.enc.Decode(input)
	reply := m.tok.enc.Encode(leadSentences(userTurn(prompt), maxSentences), nil, nil)
	if cfg.MaxNewTokens > 0 && len(reply) >= cfg.MaxNewTokens {
		reply = reply[:cfg.MaxNewTokens-1]
	}
	out := make([]int, 0, len(input)+len(reply)+1)
	out = append(out, input...)
	out = append(out, reply...)
	return append(out, m.tok.eos), nil
}

func (m *model) ResetCache(context.Context) error { return nil }

// userTurn extracts the transcript embedded in the rendered user turn.
func userTurn(prompt string) string {
	_, rest, ok := strings.Cut(prompt, "<|user|>\n")
	if !ok {
		return ""
	}
	body, _, _ := strings.Cut(rest, EndOfText)
	return strings.TrimPrefix(body, summarizer.UserPrefix)
}

func leadSentences(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	count := 0
	for i, r := range text {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(text) && text[i+1] != ' ' {
			continue
		}
		count++
		if count == n {
			return text[:i+1]
		}
	}
	return text
}
