package summarizer

import (
	"time"

	"github.com/yanqian/transcript-summarizer/pkg/metrics"
)

// DefaultMaxTranscriptChars bounds the transcript embedded in the user turn.
const DefaultMaxTranscriptChars = 4000

// Config configures the summarization pipeline.
type Config struct {
	PromptPath         string
	MaxTranscriptChars int
}

// RuntimeConfig configures device selection and handle lifetime for the model runtime.
type RuntimeConfig struct {
	Model string
	// ReuseHandle keeps the loaded handle between requests instead of reloading it per call.
	ReuseHandle bool
	IdleTTL     time.Duration
	// CleanupTimeout bounds reset and release work after a generation, even when the caller has gone away.
	CleanupTimeout time.Duration
}

// Request represents one summarization call.
type Request struct {
	Transcript string `json:"transcript"`
	Filename   string `json:"filename,omitempty"`
}

// Response is returned to the presentation layer.
type Response struct {
	Summary         string              `json:"summary"`
	Filename        string              `json:"filename"`
	Device          Device              `json:"device"`
	TranscriptChars int                 `json:"transcriptChars"`
	Truncated       bool                `json:"truncated"`
	DurationMs      int64               `json:"durationMs"`
	TokenUsage      *metrics.TokenUsage `json:"tokenUsage,omitempty"`
}

// Role tags a conversation turn.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Turn is a single role-tagged message.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Conversation is the ordered system+user exchange handed to the model.
type Conversation []Turn

// GenerationConfig holds the sampling parameters for one generation pass.
type GenerationConfig struct {
	MaxNewTokens int
	Temperature  float32
	TopP         float32
	DoSample     bool
	PadTokenID   int
}

// DefaultGenerationConfig returns the fixed sampling parameters; the pad id is the tokenizer's EOS id.
func DefaultGenerationConfig(eosTokenID int) GenerationConfig {
	return GenerationConfig{
		MaxNewTokens: 1000,
		Temperature:  0.7,
		TopP:         0.9,
		DoSample:     true,
		PadTokenID:   eosTokenID,
	}
}

// Device is the compute device a handle is bound to.
type Device string

const (
	DeviceCPU   Device = "cpu"
	DeviceCUDA  Device = "cuda"
	DeviceMetal Device = "metal"
)

// IsAccelerator reports whether d is a GPU-class device.
func (d Device) IsAccelerator() bool {
	return d == DeviceCUDA || d == DeviceMetal
}

// Precision is the numeric precision weights and caches are loaded at.
type Precision string

const (
	PrecisionHalf Precision = "f16"
	PrecisionFull Precision = "f32"
)

// PrecisionFor picks half precision on accelerators and full precision otherwise.
func PrecisionFor(d Device) Precision {
	if d.IsAccelerator() {
		return PrecisionHalf
	}
	return PrecisionFull
}

// LoadSpec describes the handle a backend should materialize.
type LoadSpec struct {
	Model     string
	Device    Device
	Precision Precision
}

func (s LoadSpec) key() string {
	return s.Model + "|" + string(s.Device) + "|" + string(s.Precision)
}

// Result is the outcome of one runtime invocation.
type Result struct {
	Summary      string
	Device       Device
	Precision    Precision
	InputTokens  int
	OutputTokens int
}
