package summarizer

import (
	"context"
	"fmt"

	apperrors "github.com/yanqian/transcript-summarizer/pkg/errors"
)

// Detokenizer converts token ids back to text, dropping special control tokens.
type Detokenizer interface {
	Decode(ctx context.Context, ids []int) (string, error)
}

// Decode strips the echoed prompt (the first inputCount ids) from output and returns
// the text of the remaining ids. Zero new tokens yields an empty summary.
func Decode(ctx context.Context, detok Detokenizer, output []int, inputCount int) (string, error) {
	if inputCount < 0 || inputCount > len(output) {
		return "", apperrors.Wrap(apperrors.CodeGeneration,
			fmt.Sprintf("output of %d tokens does not contain the %d-token prompt", len(output), inputCount), nil)
	}
	generated := output[inputCount:]
	if len(generated) == 0 {
		return "", nil
	}
	text, err := detok.Decode(ctx, generated)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeGeneration, "decode generated tokens", err)
	}
	return text, nil
}
