package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"mailroom/internal/platform/config"
	dErrors "mailroom/pkg/domain-errors"
)

//go:generate mockgen -source=client.go -destination=mocks/client.go -package=mocks Client

// Request is the text handed to the model for one message.
type Request struct {
	Subject string
	Sender  string
	Body    string
}

// Response is the model's raw answer plus its token accounting. RawJSON is
// unvalidated; callers must run it through ParsePayload.
type Response struct {
	RawJSON          []byte
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Client is the AI capability boundary: text in, candidate JSON out. The
// orchestrator owns retries, schema validation, and degradation; a Client
// implementation makes exactly one attempt per call.
type Client interface {
	Extract(ctx context.Context, req Request) (*Response, error)
}

const systemPrompt = `You are an assistant for a construction project management firm.
Extract structured information from the email below. Respond with a single JSON
object using only these keys, omitting any key with nothing to report:
project_name, project_address, decisions, action_items, scope_changes,
budget_mentions, timeline_changes, risks, key_points, people_mentioned,
requires_response.
decisions holds objects of the form
{"decision": "text", "made_by": "person", "timestamp": "when", "affects": ["items"]}.
action_items holds objects of the form
{"task": "text", "owner": "person", "deadline": "date or null", "priority": "high/medium/low"}.
scope_changes, budget_mentions, timeline_changes, risks, key_points and
people_mentioned hold arrays of short strings. requires_response is a boolean.
Do not invent information.`

// HTTPClient talks to an OpenAI-compatible chat-completions endpoint.
type HTTPClient struct {
	cfg  config.AIConfig
	http *http.Client
}

func NewHTTPClient(cfg config.AIConfig) *HTTPClient {
	return &HTTPClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *chatFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (c *HTTPClient) Extract(ctx context.Context, req Request) (*Response, error) {
	user := fmt.Sprintf("From: %s\nSubject: %s\n\n%s", req.Sender, req.Subject, req.Body)
	payload, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: user},
		},
		Temperature:    0,
		ResponseFormat: &chatFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode model request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "build model request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTransient, "model endpoint unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTransient, "read model response")
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, dErrors.Newf(dErrors.CodeTransient, "model endpoint returned %d", resp.StatusCode)
	default:
		return nil, dErrors.Newf(dErrors.CodeInternal, "model endpoint rejected request with %d", resp.StatusCode)
	}

	var chat chatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTransient, "decode model response")
	}
	if len(chat.Choices) == 0 {
		return nil, dErrors.New(dErrors.CodeTransient, "model response has no choices")
	}

	return &Response{
		RawJSON:          []byte(chat.Choices[0].Message.Content),
		Model:            c.cfg.Model,
		PromptTokens:     chat.Usage.PromptTokens,
		CompletionTokens: chat.Usage.CompletionTokens,
	}, nil
}
