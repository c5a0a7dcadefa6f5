package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alfredjeanlab/navgraph/internal/model"
)

// HTTP forwards actions to a device agent over HTTP/JSON.
//
// The agent receives POST {url} with {"action": ..., "context": {...}} and
// answers {"success": bool, "message": string, "time_ms": int}.
type HTTP struct {
	url        string
	token      string
	httpClient *http.Client
}

// NewHTTP creates an HTTP executor for the agent at url. When token is
// non-empty it is sent as a bearer token.
func NewHTTP(url, token string) *HTTP {
	return &HTTP{
		url:        strings.TrimRight(url, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

type agentRequest struct {
	Action  string            `json:"action"`
	Context model.ExecContext `json:"context"`
}

// Execute posts action to the agent. Non-2xx responses and transport errors
// are returned as errors.
func (h *HTTP) Execute(ctx context.Context, action string, ec model.ExecContext) (model.Outcome, error) {
	body, err := json.Marshal(agentRequest{Action: action, Context: ec})
	if err != nil {
		return model.Outcome{}, fmt.Errorf("marshal agent request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return model.Outcome{}, fmt.Errorf("create agent request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	start := time.Now()
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return model.Outcome{TimeMs: time.Since(start).Milliseconds()}, fmt.Errorf("agent request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Outcome{TimeMs: time.Since(start).Milliseconds()}, fmt.Errorf("read agent response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.Outcome{TimeMs: time.Since(start).Milliseconds()},
			fmt.Errorf("agent returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out model.Outcome
	if err := json.Unmarshal(data, &out); err != nil {
		return model.Outcome{TimeMs: time.Since(start).Milliseconds()}, fmt.Errorf("decode agent response: %w", err)
	}
	if out.TimeMs == 0 {
		out.TimeMs = time.Since(start).Milliseconds()
	}
	return out, nil
}
