package summarizer

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrDeviceUnavailable marks a requested device that is missing or unusable.
	ErrDeviceUnavailable = errors.New("device unavailable")
	// ErrOutOfMemory marks an allocation failure on the compute device.
	ErrOutOfMemory = errors.New("device out of memory")
)

// Tokenizer formats conversations and maps between text and token ids.
type Tokenizer interface {
	Detokenizer
	// ApplyChatTemplate renders conv in the model's chat format, ending with the
	// marker that tells the model to start the assistant turn.
	ApplyChatTemplate(ctx context.Context, conv Conversation) (string, error)
	Encode(ctx context.Context, text string) ([]int, error)
	EOSTokenID() int
}

// Model runs generation on a bound device.
type Model interface {
	// Generate returns the input ids followed by the newly generated ids.
	Generate(ctx context.Context, input []int, cfg GenerationConfig) ([]int, error)
	// ResetCache drops device-resident caches built for the previous request.
	ResetCache(ctx context.Context) error
}

// Backend materializes model handles.
type Backend interface {
	Load(ctx context.Context, spec LoadSpec) (*ModelHandle, error)
}

// DeviceProbe reports the device the next request should run on.
type DeviceProbe interface {
	Probe(ctx context.Context) (Device, error)
}

// DeviceLease grants exclusive use of a device to one request at a time.
type DeviceLease interface {
	Acquire(ctx context.Context, key string) (release func(context.Context) error, err error)
}

// ModelHandle is a loaded tokenizer and model pair bound to a device.
type ModelHandle struct {
	Tokenizer Tokenizer
	Model     Model
	Spec      LoadSpec

	release     func(context.Context) error
	releaseOnce sync.Once
	releaseErr  error
}

// NewModelHandle wraps a backend's tokenizer/model pair. release frees every
// device-resident allocation owned by the handle and may be nil.
func NewModelHandle(spec LoadSpec, tok Tokenizer, model Model, release func(context.Context) error) *ModelHandle {
	return &ModelHandle{Tokenizer: tok, Model: model, Spec: spec, release: release}
}

// Release frees the handle. Only the first call does work.
func (h *ModelHandle) Release(ctx context.Context) error {
	h.releaseOnce.Do(func() {
		if h.release != nil {
			h.releaseErr = h.release(ctx)
		}
	})
	return h.releaseErr
}
