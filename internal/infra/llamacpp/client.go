// Package llamacpp drives a llama.cpp llama-server over its native HTTP API.
package llamacpp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrNotReady is returned by Health while the server is still loading the model.
var ErrNotReady = errors.New("llama-server is not ready")

// Message mirrors the chat message accepted by /apply-template.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Props captures the subset of /props the backend relies on.
type Props struct {
	BOSToken  string `json:"bos_token"`
	EOSToken  string `json:"eos_token"`
	ModelPath string `json:"model_path"`
}

// CompletionRequest is the payload sent to /completion. Prompt holds token ids.
type CompletionRequest struct {
	Prompt       []int   `json:"prompt"`
	NPredict     int     `json:"n_predict"`
	Temperature  float32 `json:"temperature"`
	TopP         float32 `json:"top_p"`
	ReturnTokens bool    `json:"return_tokens"`
	CachePrompt  bool    `json:"cache_prompt"`
	IDSlot       int     `json:"id_slot"`
	Stream       bool    `json:"stream"`
}

// CompletionResponse captures a non streaming /completion result.
type CompletionResponse struct {
	Content         string `json:"content"`
	Tokens          []int  `json:"tokens"`
	TokensEvaluated int    `json:"tokens_evaluated"`
	TokensPredicted int    `json:"tokens_predicted"`
	StopType        string `json:"stop_type"`
}

// StatusError reports a non-2xx reply.
type StatusError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llama-server %s failed: status=%d body=%s", e.Endpoint, e.Status, e.Body)
}

// OutOfMemory reports whether the server blamed a failed allocation.
func (e *StatusError) OutOfMemory() bool {
	body := strings.ToLower(e.Body)
	return strings.Contains(body, "out of memory") || strings.Contains(body, "failed to allocate")
}

// Client performs HTTP requests to a llama-server instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a client. Generation can take minutes, so requests are
// bounded by their context rather than a client timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// BaseURL returns the server root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health returns nil once the model is loaded and the server accepts work.
func (c *Client) Health(ctx context.Context) error {
	err := c.do(ctx, http.MethodGet, "/health", nil, nil)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Status == http.StatusServiceUnavailable {
		return fmt.Errorf("%w: %s", ErrNotReady, statusErr.Body)
	}
	return err
}

// Props fetches server properties.
func (c *Client) Props(ctx context.Context) (Props, error) {
	var out Props
	err := c.do(ctx, http.MethodGet, "/props", nil, &out)
	return out, err
}

// ApplyTemplate renders messages with the model's chat template, ending with the
// assistant generation marker.
func (c *Client) ApplyTemplate(ctx context.Context, messages []Message) (string, error) {
	var out struct {
		Prompt string `json:"prompt"`
	}
	req := struct {
		Messages []Message `json:"messages"`
	}{Messages: messages}
	if err := c.do(ctx, http.MethodPost, "/apply-template", req, &out); err != nil {
		return "", err
	}
	return out.Prompt, nil
}

// Tokenize converts text into token ids. Special token text such as chat markers
// is parsed into its control ids.
func (c *Client) Tokenize(ctx context.Context, content string, addSpecial bool) ([]int, error) {
	var out struct {
		Tokens []int `json:"tokens"`
	}
	req := struct {
		Content      string `json:"content"`
		AddSpecial   bool   `json:"add_special"`
		ParseSpecial bool   `json:"parse_special"`
	}{Content: content, AddSpecial: addSpecial, ParseSpecial: true}
	if err := c.do(ctx, http.MethodPost, "/tokenize", req, &out); err != nil {
		return nil, err
	}
	return out.Tokens, nil
}

// Detokenize converts token ids back into text.
func (c *Client) Detokenize(ctx context.Context, tokens []int) (string, error) {
	var out struct {
		Content string `json:"content"`
	}
	req := struct {
		Tokens []int `json:"tokens"`
	}{Tokens: tokens}
	if err := c.do(ctx, http.MethodPost, "/detokenize", req, &out); err != nil {
		return "", err
	}
	return out.Content, nil
}

// Complete runs one blocking generation pass.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	var out CompletionResponse
	req.Stream = false
	err := c.do(ctx, http.MethodPost, "/completion", req, &out)
	return out, err
}

// EraseSlot drops the KV cache held by slot id.
func (c *Client) EraseSlot(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/slots/%d?action=erase", id), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &StatusError{Endpoint: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
