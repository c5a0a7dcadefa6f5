package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alfredjeanlab/navgraph/internal/cache"
	"github.com/alfredjeanlab/navgraph/internal/model"
	"github.com/alfredjeanlab/navgraph/internal/plan"
	"github.com/alfredjeanlab/navgraph/internal/runs"
	"github.com/alfredjeanlab/navgraph/internal/store"
)

func doRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body == nil {
		req.ContentLength = 0
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body=%q)", err, rec.Body.String())
	}
	return v
}

func TestHTTPStatus(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want int
	}{
		{inputError("bad"), http.StatusBadRequest},
		{&model.ValidationError{Errors: []model.FieldError{{Field: "tree_id", Message: "is required"}}}, http.StatusBadRequest},
		{cache.ErrInvalidKey, http.StatusBadRequest},
		{store.ErrTreeNotFound, http.StatusNotFound},
		{fmt.Errorf("load: %w", store.ErrTreeNotFound), http.StatusNotFound},
		{cache.ErrNotFound, http.StatusNotFound},
		{cache.ErrEmptyTree, http.StatusUnprocessableEntity},
		{plan.ErrNoEntryPoint, http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: %q", plan.ErrEntryNotFound, "x"), http.StatusUnprocessableEntity},
		{errReadOnly, http.StatusNotImplemented},
		{errors.New("boom"), http.StatusInternalServerError},
	} {
		if got := httpStatus(tc.err); got != tc.want {
			t.Errorf("httpStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(passAll)
	rec := doRequest(t, env.handler, http.MethodGet, "/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	env.store.pingErr = errors.New("connection refused")
	rec = doRequest(t, env.handler, http.MethodGet, "/v1/health", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when store is down, got %d", rec.Code)
	}
}

func TestHandleLoadTree(t *testing.T) {
	env := newTestEnv(passAll)

	rec := doRequest(t, env.handler, http.MethodPost, "/v1/trees/app/cache?tenant=acme", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	entry := decodeBody[CacheEntry](t, rec)
	if entry.TreeID != "app" || entry.NodeCount != 4 {
		t.Fatalf("unexpected entry %+v", entry)
	}

	rec = doRequest(t, env.handler, http.MethodPost, "/v1/trees/nope/cache?tenant=acme", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing tree, got %d", rec.Code)
	}

	rec = doRequest(t, env.handler, http.MethodPost, "/v1/trees/app/cache", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without tenant, got %d", rec.Code)
	}
}

func TestHandleLoadTree_RejectsPathElements(t *testing.T) {
	env := newTestEnv(passAll)
	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodPost, "/v1/trees/secret/cache?tenant=.."},
		{http.MethodPost, "/v1/trees/secret/cache?tenant=."},
		{http.MethodGet, "/v1/trees/secret/plan?tenant=.."},
	} {
		rec := doRequest(t, env.handler, tc.method, tc.path, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s %s: expected 400, got %d", tc.method, tc.path, rec.Code)
		}
	}
	if n := env.store.loads.Load(); n != 0 {
		t.Errorf("store loaded %d times for invalid keys", n)
	}
}

func TestHandlePopulateTree(t *testing.T) {
	env := newTestEnv(passAll)

	tree := appTree()
	tree.TreeID = "" // taken from the path
	rec := doRequest(t, env.handler, http.MethodPut, "/v1/trees/inline/cache", tree)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if entry := decodeBody[CacheEntry](t, rec); entry.TreeID != "inline" || entry.TenantID != "acme" {
		t.Fatalf("unexpected entry %+v", entry)
	}

	rec = doRequest(t, env.handler, http.MethodPut, "/v1/trees/other/cache", appTree())
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for mismatched tree_id, got %d", rec.Code)
	}

	rec = doRequest(t, env.handler, http.MethodPut, "/v1/trees/empty/cache?tenant=acme", model.Tree{})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for empty tree, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPut, "/v1/trees/bad/cache", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid JSON, got %d", rr.Code)
	}
}

func TestHandlePlan(t *testing.T) {
	env := newTestEnv(passAll)

	rec := doRequest(t, env.handler, http.MethodGet, "/v1/trees/app/plan?tenant=acme", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	p := decodeBody[PlanResult](t, rec)
	if p.EntryNodeID != "home" || len(p.Steps) != 3 {
		t.Fatalf("unexpected plan entry=%q steps=%d", p.EntryNodeID, len(p.Steps))
	}

	rec = doRequest(t, env.handler, http.MethodGet, "/v1/trees/app/plan?tenant=acme&entry=nowhere", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unknown entry, got %d", rec.Code)
	}
}

func TestHandlePlan_NoEntryPoint(t *testing.T) {
	env := newTestEnv(passAll)
	tree := appTree()
	tree.TreeID = "flat"
	tree.Nodes[0].IsEntryPoint = false
	if _, err := env.srv.Populate(t.Context(), tree); err != nil {
		t.Fatalf("Populate: %v", err)
	}

	rec := doRequest(t, env.handler, http.MethodGet, "/v1/trees/flat/plan?tenant=acme", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if body := decodeBody[map[string]string](t, rec); !strings.Contains(body["error"], "no entry point") {
		t.Fatalf("unexpected error body %v", body)
	}
}

func TestHandleValidate(t *testing.T) {
	env := newTestEnv(failAction("open-help"))

	rec := doRequest(t, env.handler, http.MethodPost, "/v1/trees/app/validate",
		validateRequest{TenantID: "acme"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	res := decodeBody[ValidateResult](t, rec)
	if res.Summary.Successful != 2 || res.Summary.Failed != 1 {
		t.Fatalf("unexpected summary %+v", res.Summary)
	}
	if res.ReportKey == "" {
		t.Fatal("expected report key")
	}

	// Query parameters work without a body.
	rec = doRequest(t, env.handler, http.MethodPost, "/v1/trees/app/validate?tenant=acme&entry=settings", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if res := decodeBody[ValidateResult](t, rec); res.EntryNodeID != "settings" {
		t.Fatalf("expected entry settings, got %q", res.EntryNodeID)
	}
}

func TestHandleRuns(t *testing.T) {
	env := newTestEnv(passAll)
	res, err := env.srv.Validate(t.Context(), "app", "acme", "")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	rec := doRequest(t, env.handler, http.MethodGet, "/v1/runs", nil)
	list := decodeBody[struct {
		Runs []runs.Entry `json:"runs"`
	}](t, rec)
	if len(list.Runs) != 1 || list.Runs[0].RunID != res.RunID {
		t.Fatalf("unexpected runs %+v", list.Runs)
	}

	rec = doRequest(t, env.handler, http.MethodGet, "/v1/runs/"+res.RunID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if e := decodeBody[runs.Entry](t, rec); e.State != runs.StateFinished || e.Health != model.HealthExcellent {
		t.Fatalf("unexpected run entry %+v", e)
	}

	rec = doRequest(t, env.handler, http.MethodGet, "/v1/runs/run-missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleCacheRoutes(t *testing.T) {
	env := newTestEnv(passAll)
	if _, err := env.srv.Load(t.Context(), "app", "acme"); err != nil {
		t.Fatalf("Load: %v", err)
	}

	rec := doRequest(t, env.handler, http.MethodGet, "/v1/cache/stats", nil)
	stats := decodeBody[cache.Stats](t, rec)
	if stats.Count != 1 || stats.Keys[0] != (cache.Key{TreeID: "app", TenantID: "acme"}) {
		t.Fatalf("unexpected stats %+v", stats)
	}

	rec = doRequest(t, env.handler, http.MethodPost, "/v1/cache/sweep?max_age=-1s", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative max_age, got %d", rec.Code)
	}
	rec = doRequest(t, env.handler, http.MethodPost, "/v1/cache/sweep?max_age=1h", nil)
	if got := decodeBody[map[string]int](t, rec)["removed"]; got != 0 {
		t.Fatalf("fresh entry swept: %d", got)
	}

	rec = doRequest(t, env.handler, http.MethodDelete, "/v1/cache/app?tenant=acme", nil)
	if got := decodeBody[map[string]int](t, rec)["removed"]; got != 1 {
		t.Fatalf("expected 1 removed, got %d", got)
	}

	if _, err := env.srv.Load(t.Context(), "app", "acme"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	rec = doRequest(t, env.handler, http.MethodDelete, "/v1/cache", nil)
	if got := decodeBody[map[string]int](t, rec)["removed"]; got != 1 {
		t.Fatalf("expected 1 cleared, got %d", got)
	}
}

func TestHandleTreeRoutes(t *testing.T) {
	env := newTestEnv(passAll)

	tree := appTree()
	tree.TreeID = "checkout"
	rec := doRequest(t, env.handler, http.MethodPut, "/v1/trees/checkout", tree)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, env.handler, http.MethodGet, "/v1/trees?tenant=acme", nil)
	list := decodeBody[struct {
		Trees []store.TreeRef `json:"trees"`
	}](t, rec)
	if len(list.Trees) != 2 {
		t.Fatalf("expected 2 trees, got %+v", list.Trees)
	}

	rec = doRequest(t, env.handler, http.MethodGet, "/v1/trees?tenant=nobody", nil)
	if !strings.Contains(rec.Body.String(), `"trees":[]`) {
		t.Fatalf("expected empty array, got %s", rec.Body.String())
	}

	rec = doRequest(t, env.handler, http.MethodDelete, "/v1/trees/checkout?tenant=acme", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	rec = doRequest(t, env.handler, http.MethodDelete, "/v1/trees/checkout?tenant=acme", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", rec.Code)
	}
}

func TestNewHTTPHandler_RequiresToken(t *testing.T) {
	env := newTestEnv(passAll)
	h := env.srv.NewHTTPHandler("secret")

	rec := doRequest(t, h, http.MethodGet, "/v1/cache/stats", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	rec = doRequest(t, h, http.MethodGet, "/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected health to be exempt, got %d", rec.Code)
	}
}
