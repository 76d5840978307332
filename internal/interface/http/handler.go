package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/transcript-summarizer/internal/domain/summarizer"
	"github.com/yanqian/transcript-summarizer/internal/infra/config"
	apperrors "github.com/yanqian/transcript-summarizer/pkg/errors"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Handler wires the HTTP transport to the summarizer service.
type Handler struct {
	svc            summarizer.Service
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewHandler constructs the root HTTP handler.
func NewHandler(svc summarizer.Service, cfg *config.Config, logger *slog.Logger) *Handler {
	return &Handler{
		svc:            svc,
		maxUploadBytes: cfg.HTTP.MaxUploadBytes,
		logger:         logger.With("component", "http.handler"),
	}
}

// Summarize returns the summary as JSON.
func (h *Handler) Summarize(c *gin.Context) {
	resp, ok := h.summarize(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Export returns the summary as a downloadable text file.
func (h *Handler) Export(c *gin.Context) {
	resp, ok := h.summarize(c)
	if !ok {
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, resp.Filename))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(resp.Summary))
}

// Healthz reports liveness.
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) summarize(c *gin.Context) (summarizer.Response, bool) {
	req, httpErr := h.readRequest(c)
	if httpErr != nil {
		abortWithError(c, httpErr)
		return summarizer.Response{}, false
	}
	resp, err := h.svc.Summarize(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, fromAppError(err))
		return summarizer.Response{}, false
	}
	return resp, true
}

// readRequest accepts a multipart "file" upload or a JSON body.
func (h *Handler) readRequest(c *gin.Context) (summarizer.Request, *HTTPError) {
	mediaType, _, _ := mime.ParseMediaType(c.GetHeader("Content-Type"))
	if mediaType != "multipart/form-data" {
		var req summarizer.Request
		if err := c.ShouldBindJSON(&req); err != nil {
			return req, invalidInput("request body must be JSON with a transcript field or a multipart file upload", err)
		}
		if !utf8.ValidString(req.Transcript) {
			return req, invalidInput("transcript must be UTF-8 text", nil)
		}
		return req, nil
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+(1<<20))
	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return summarizer.Request{}, invalidInput(fmt.Sprintf("upload exceeds %d bytes", h.maxUploadBytes), err)
		}
		return summarizer.Request{}, invalidInput("file is required", err)
	}
	if !strings.EqualFold(filepath.Ext(fileHeader.Filename), ".txt") {
		return summarizer.Request{}, invalidInput("only .txt transcripts are supported", nil)
	}
	if fileHeader.Size > h.maxUploadBytes {
		return summarizer.Request{}, invalidInput(fmt.Sprintf("upload exceeds %d bytes", h.maxUploadBytes), nil)
	}
	file, err := fileHeader.Open()
	if err != nil {
		return summarizer.Request{}, invalidInput("failed to read upload", err)
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return summarizer.Request{}, NewHTTPError(http.StatusInternalServerError, "internal_error", "failed to read file", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return summarizer.Request{}, invalidInput("transcript must be UTF-8 text", nil)
	}
	return summarizer.Request{Transcript: string(data), Filename: fileHeader.Filename}, nil
}

func invalidInput(message string, err error) *HTTPError {
	httpErr := NewHTTPError(http.StatusBadRequest, apperrors.CodeInvalidInput, message, err)
	httpErr.Hint = "Upload a UTF-8 encoded .txt transcript."
	return httpErr
}
