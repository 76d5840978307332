package errors

import "errors"

// Error codes shared by the summarization pipeline and its transports.
const (
	CodeConfiguration = "configuration_error"
	CodeInvalidInput  = "invalid_input"
	CodeModelLoad     = "model_load_error"
	CodeDevice        = "device_error"
	CodeGeneration    = "generation_error"
)

// AppError encodes domain specific error details.
type AppError struct {
	Code    string
	Message string
	Hint    string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Wrap produces a new AppError instance.
func Wrap(code, message string, err error) error {
	if err == nil {
		return &AppError{Code: code, Message: message}
	}
	return &AppError{Code: code, Message: message, Err: err}
}

// WithHint attaches an actionable hint to an AppError. Other errors are returned untouched.
func WithHint(err error, hint string) error {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return err
	}
	clone := *appErr
	clone.Hint = hint
	return &clone
}

// IsCode helps handler differentiate failures.
func IsCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// CodeOf returns the code of the outermost AppError, or "" when err carries none.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// HintOf returns the hint of the outermost AppError.
func HintOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Hint
	}
	return ""
}
