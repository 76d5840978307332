package llamacpp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/yanqian/transcript-summarizer/internal/domain/summarizer"
)

// slotID is the only slot a dedicated server runs with --parallel 1.
const slotID = 0

const stopTimeout = 10 * time.Second

// ModelResolver maps a model identifier to a local GGUF path.
type ModelResolver interface {
	Resolve(ctx context.Context, model string) (string, error)
}

// Backend materializes handles backed by llama-server. In spawn mode every handle
// owns a server process; in attach mode handles share an externally managed server.
type Backend struct {
	launcher *Launcher
	resolver ModelResolver
	attached *Client
	logger   *slog.Logger
}

// NewSpawnBackend launches a server per handle.
func NewSpawnBackend(launcher *Launcher, resolver ModelResolver, logger *slog.Logger) *Backend {
	return &Backend{launcher: launcher, resolver: resolver, logger: logger.With("component", "llamacpp.backend")}
}

// NewAttachBackend uses an already-running server.
func NewAttachBackend(client *Client, logger *slog.Logger) *Backend {
	return &Backend{attached: client, logger: logger.With("component", "llamacpp.backend")}
}

// Load implements summarizer.Backend.
func (b *Backend) Load(ctx context.Context, spec summarizer.LoadSpec) (*summarizer.ModelHandle, error) {
	if b.attached != nil {
		if err := b.attached.Health(ctx); err != nil {
			return nil, classify(fmt.Errorf("attach to %s: %w", b.attached.BaseURL(), err))
		}
		return newHandle(ctx, b.attached, spec, func(ctx context.Context) error {
			return b.attached.EraseSlot(ctx, slotID)
		})
	}

	path, err := b.resolver.Resolve(ctx, spec.Model)
	if err != nil {
		return nil, err
	}
	inst, err := b.launcher.Launch(ctx, path, spec)
	if err != nil {
		return nil, classify(err)
	}
	handle, err := newHandle(ctx, inst.Client, spec, inst.Stop)
	if err != nil {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
		defer cancel()
		_ = inst.Stop(stopCtx)
		return nil, err
	}
	return handle, nil
}

func newHandle(ctx context.Context, client *Client, spec summarizer.LoadSpec, release func(context.Context) error) (*summarizer.ModelHandle, error) {
	props, err := client.Props(ctx)
	if err != nil {
		return nil, classify(fmt.Errorf("read server props: %w", err))
	}
	tok := &tokenizer{client: client, bosText: props.BOSToken, special: map[int]struct{}{}}
	if props.BOSToken != "" {
		ids, err := client.Tokenize(ctx, props.BOSToken, false)
		if err != nil {
			return nil, classify(fmt.Errorf("resolve bos token: %w", err))
		}
		for _, id := range ids {
			tok.special[id] = struct{}{}
		}
	}
	ids, err := client.Tokenize(ctx, props.EOSToken, false)
	if err != nil {
		return nil, classify(fmt.Errorf("resolve eos token: %w", err))
	}
	if len(ids) != 1 {
		return nil, fmt.Errorf("eos token %q maps to %d ids", props.EOSToken, len(ids))
	}
	tok.eos = ids[0]
	tok.special[tok.eos] = struct{}{}

	return summarizer.NewModelHandle(spec, tok, &model{client: client}, release), nil
}

// classify tags allocation failures so the runtime reports them as device errors.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.OutOfMemory() {
		return fmt.Errorf("%w: %w", summarizer.ErrOutOfMemory, err)
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "out of memory") || strings.Contains(msg, "failed to allocate") {
		return fmt.Errorf("%w: %w", summarizer.ErrOutOfMemory, err)
	}
	if strings.Contains(msg, "no cuda-capable device") || strings.Contains(msg, "no usable gpu") {
		return fmt.Errorf("%w: %w", summarizer.ErrDeviceUnavailable, err)
	}
	return err
}

type tokenizer struct {
	client  *Client
	bosText string
	eos     int
	special map[int]struct{}
}

func (t *tokenizer) ApplyChatTemplate(ctx context.Context, conv summarizer.Conversation) (string, error) {
	messages := make([]Message, 0, len(conv))
	for _, turn := range conv {
		messages = append(messages, Message{Role: string(turn.Role), Content: turn.Content})
	}
	return t.client.ApplyTemplate(ctx, messages)
}

// Encode adds BOS unless the rendered template already starts with it.
func (t *tokenizer) Encode(ctx context.Context, text string) ([]int, error) {
	addSpecial := t.bosText == "" || !strings.HasPrefix(text, t.bosText)
	return t.client.Tokenize(ctx, text, addSpecial)
}

func (t *tokenizer) Decode(ctx context.Context, ids []int) (string, error) {
	kept := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := t.special[id]; ok {
			continue
		}
		kept = append(kept, id)
	}
	if len(kept) == 0 {
		return "", nil
	}
	return t.client.Detokenize(ctx, kept)
}

func (t *tokenizer) EOSTokenID() int { return t.eos }

type model struct {
	client *Client
}

// Generate sends the prompt ids and appends the predicted ids. Padding has no
// meaning for a single unbatched sequence, so PadTokenID is not forwarded.
func (m *model) Generate(ctx context.Context, input []int, cfg summarizer.GenerationConfig) ([]int, error) {
	temperature := cfg.Temperature
	if !cfg.DoSample {
		temperature = 0
	}
	resp, err := m.client.Complete(ctx, CompletionRequest{
		Prompt:       input,
		NPredict:     cfg.MaxNewTokens,
		Temperature:  temperature,
		TopP:         cfg.TopP,
		ReturnTokens: true,
		CachePrompt:  false,
		IDSlot:       slotID,
	})
	if err != nil {
		return nil, classify(err)
	}
	out := make([]int, 0, len(input)+len(resp.Tokens))
	out = append(out, input...)
	return append(out, resp.Tokens...), nil
}

func (m *model) ResetCache(ctx context.Context) error {
	return m.client.EraseSlot(ctx, slotID)
}
