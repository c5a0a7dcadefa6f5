package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alfredjeanlab/navgraph/internal/cache"
	"github.com/alfredjeanlab/navgraph/internal/model"
	"github.com/alfredjeanlab/navgraph/internal/runs"
	"github.com/alfredjeanlab/navgraph/internal/store"
)

// HTTPClient implements NavClient using the navgraph HTTP/JSON REST API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty, an Authorization
// header is set on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

func treePath(treeID string, parts ...string) string {
	p := "/v1/trees/" + url.PathEscape(treeID)
	for _, s := range parts {
		p += "/" + s
	}
	return p
}

func withQuery(path string, kv ...string) string {
	q := url.Values{}
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			q.Set(kv[i], kv[i+1])
		}
	}
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

// --- Cache ---

func (c *HTTPClient) LoadTree(ctx context.Context, treeID, tenantID string) (*CacheEntry, error) {
	var entry CacheEntry
	if err := c.doJSON(ctx, http.MethodPost, withQuery(treePath(treeID, "cache"), "tenant", tenantID), nil, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (c *HTTPClient) PopulateTree(ctx context.Context, t *model.Tree) (*CacheEntry, error) {
	var entry CacheEntry
	if err := c.doJSON(ctx, http.MethodPut, treePath(t.TreeID, "cache"), t, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (c *HTTPClient) InvalidateTree(ctx context.Context, treeID, tenantID string) (int, error) {
	var resp struct {
		Removed int `json:"removed"`
	}
	path := withQuery("/v1/cache/"+url.PathEscape(treeID), "tenant", tenantID)
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

func (c *HTTPClient) SweepCache(ctx context.Context, maxAge time.Duration) (int, error) {
	var resp struct {
		Removed int `json:"removed"`
	}
	var age string
	if maxAge > 0 {
		age = maxAge.String()
	}
	if err := c.doJSON(ctx, http.MethodPost, withQuery("/v1/cache/sweep", "max_age", age), nil, &resp); err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

func (c *HTTPClient) ClearCache(ctx context.Context) (int, error) {
	var resp struct {
		Removed int `json:"removed"`
	}
	if err := c.doJSON(ctx, http.MethodDelete, "/v1/cache", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

func (c *HTTPClient) CacheStats(ctx context.Context) (*cache.Stats, error) {
	var stats cache.Stats
	if err := c.doJSON(ctx, http.MethodGet, "/v1/cache/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// --- Planning and validation ---

func (c *HTTPClient) Plan(ctx context.Context, treeID, tenantID, entry string) (*PlanResult, error) {
	var p PlanResult
	path := withQuery(treePath(treeID, "plan"), "tenant", tenantID, "entry", entry)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *HTTPClient) Validate(ctx context.Context, treeID, tenantID, entry string) (*ValidateResult, error) {
	body := map[string]string{"tenant_id": tenantID}
	if entry != "" {
		body["entry_node_id"] = entry
	}
	var res ValidateResult
	if err := c.doJSON(ctx, http.MethodPost, treePath(treeID, "validate"), body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// --- Stored trees ---

func (c *HTTPClient) ListTrees(ctx context.Context, tenantID string) ([]store.TreeRef, error) {
	var resp struct {
		Trees []store.TreeRef `json:"trees"`
	}
	if err := c.doJSON(ctx, http.MethodGet, withQuery("/v1/trees", "tenant", tenantID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Trees, nil
}

func (c *HTTPClient) SaveTree(ctx context.Context, t *model.Tree) error {
	return c.doJSON(ctx, http.MethodPut, treePath(t.TreeID), t, nil)
}

func (c *HTTPClient) DeleteTree(ctx context.Context, treeID, tenantID string) error {
	return c.doJSON(ctx, http.MethodDelete, withQuery(treePath(treeID), "tenant", tenantID), nil, nil)
}

// --- Runs ---

func (c *HTTPClient) ListRuns(ctx context.Context) ([]runs.Entry, error) {
	var resp struct {
		Runs []runs.Entry `json:"runs"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/runs", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

func (c *HTTPClient) GetRun(ctx context.Context, runID string) (*runs.Entry, error) {
	var e runs.Entry
	if err := c.doJSON(ctx, http.MethodGet, "/v1/runs/"+url.PathEscape(runID), nil, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// --- Health ---

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// --- internal helpers ---

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// If result is nil, the response body is discarded (for DELETE/204 responses).
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
