package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/alfredjeanlab/navgraph/internal/cache"
	"github.com/alfredjeanlab/navgraph/internal/model"
	"github.com/alfredjeanlab/navgraph/internal/plan"
	"github.com/alfredjeanlab/navgraph/internal/store"
)

// maxBodyBytes bounds tree uploads.
const maxBodyBytes = 16 << 20

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health) must include
// a valid Authorization: Bearer <token> header.
func (s *NavServer) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)

	mux.HandleFunc("POST /v1/trees/{tree}/cache", s.handleLoadTree)
	mux.HandleFunc("PUT /v1/trees/{tree}/cache", s.handlePopulateTree)
	mux.HandleFunc("GET /v1/trees/{tree}/plan", s.handlePlan)
	mux.HandleFunc("POST /v1/trees/{tree}/validate", s.handleValidate)

	mux.HandleFunc("GET /v1/trees", s.handleListTrees)
	mux.HandleFunc("PUT /v1/trees/{tree}", s.handleSaveTree)
	mux.HandleFunc("DELETE /v1/trees/{tree}", s.handleDeleteTree)

	mux.HandleFunc("GET /v1/cache/stats", s.handleStats)
	mux.HandleFunc("POST /v1/cache/sweep", s.handleSweep)
	mux.HandleFunc("DELETE /v1/cache/{tree}", s.handleInvalidate)
	mux.HandleFunc("DELETE /v1/cache", s.handleClear)

	mux.HandleFunc("GET /v1/runs", s.handleListRuns)
	mux.HandleFunc("GET /v1/runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	return AuthMiddleware(authToken, RequestLogger(s.logger, mux))
}

// handleHealth handles GET /v1/health.
func (s *NavServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "cached_graphs": s.cache.Stats().Count})
}

// handleLoadTree handles POST /v1/trees/{tree}/cache?tenant=.
func (s *NavServer) handleLoadTree(w http.ResponseWriter, r *http.Request) {
	entry, err := s.Load(r.Context(), r.PathValue("tree"), r.URL.Query().Get("tenant"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handlePopulateTree handles PUT /v1/trees/{tree}/cache with an inline tree.
func (s *NavServer) handlePopulateTree(w http.ResponseWriter, r *http.Request) {
	t, ok := s.decodeTree(w, r)
	if !ok {
		return
	}
	entry, err := s.Populate(r.Context(), t)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handlePlan handles GET /v1/trees/{tree}/plan?tenant=&entry=.
func (s *NavServer) handlePlan(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p, err := s.Plan(r.Context(), r.PathValue("tree"), q.Get("tenant"), q.Get("entry"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type validateRequest struct {
	TenantID    string `json:"tenant_id"`
	EntryNodeID string `json:"entry_node_id"`
}

// handleValidate handles POST /v1/trees/{tree}/validate. The body is optional;
// tenant and entry may also be given as query parameters.
func (s *NavServer) handleValidate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := validateRequest{TenantID: q.Get("tenant"), EntryNodeID: q.Get("entry")}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
	}
	res, err := s.Validate(r.Context(), r.PathValue("tree"), req.TenantID, req.EntryNodeID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleListTrees handles GET /v1/trees?tenant=.
func (s *NavServer) handleListTrees(w http.ResponseWriter, r *http.Request) {
	refs, err := s.ListTrees(r.Context(), r.URL.Query().Get("tenant"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if refs == nil {
		refs = []store.TreeRef{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"trees": refs})
}

// handleSaveTree handles PUT /v1/trees/{tree}.
func (s *NavServer) handleSaveTree(w http.ResponseWriter, r *http.Request) {
	t, ok := s.decodeTree(w, r)
	if !ok {
		return
	}
	if err := s.SaveTree(r.Context(), t); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tree_id":    t.TreeID,
		"tenant_id":  t.TenantID,
		"node_count": len(t.Nodes),
		"edge_count": len(t.Edges),
	})
}

// handleDeleteTree handles DELETE /v1/trees/{tree}?tenant=.
func (s *NavServer) handleDeleteTree(w http.ResponseWriter, r *http.Request) {
	if err := s.DeleteTree(r.Context(), r.PathValue("tree"), r.URL.Query().Get("tenant")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStats handles GET /v1/cache/stats.
func (s *NavServer) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Stats())
}

// handleSweep handles POST /v1/cache/sweep?max_age=.
func (s *NavServer) handleSweep(w http.ResponseWriter, r *http.Request) {
	var maxAge time.Duration
	if v := r.URL.Query().Get("max_age"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "max_age must be a positive duration")
			return
		}
		maxAge = d
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": s.Sweep(r.Context(), maxAge)})
}

// handleInvalidate handles DELETE /v1/cache/{tree}?tenant=. Without a tenant
// every tenant's graph for the tree is dropped.
func (s *NavServer) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	removed, err := s.Invalidate(r.Context(), r.PathValue("tree"), r.URL.Query().Get("tenant"), "api")
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// handleClear handles DELETE /v1/cache.
func (s *NavServer) handleClear(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"removed": s.Clear(r.Context())})
}

// handleListRuns handles GET /v1/runs.
func (s *NavServer) handleListRuns(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"runs": s.Runs.List()})
}

// handleGetRun handles GET /v1/runs/{id}.
func (s *NavServer) handleGetRun(w http.ResponseWriter, r *http.Request) {
	e, ok := s.Runs.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// decodeTree reads a tree body. The path names the tree; a body tree_id that
// disagrees is rejected. The tenant may come from the body or ?tenant=.
func (s *NavServer) decodeTree(w http.ResponseWriter, r *http.Request) (*model.Tree, bool) {
	var t model.Tree
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return nil, false
	}
	treeID := r.PathValue("tree")
	if t.TreeID != "" && t.TreeID != treeID {
		writeError(w, http.StatusBadRequest, "tree_id in body does not match path")
		return nil, false
	}
	t.TreeID = treeID
	if t.TenantID == "" {
		t.TenantID = r.URL.Query().Get("tenant")
	}
	return &t, true
}

// httpStatus maps service errors onto response codes.
func httpStatus(err error) int {
	var ie inputError
	var ve *model.ValidationError
	switch {
	case errors.As(err, &ie), errors.As(err, &ve), errors.Is(err, cache.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrTreeNotFound), errors.Is(err, cache.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, cache.ErrEmptyTree), errors.Is(err, plan.ErrNoEntryPoint), errors.Is(err, plan.ErrEntryNotFound):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errReadOnly):
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

func (s *NavServer) writeServiceError(w http.ResponseWriter, err error) {
	code := httpStatus(err)
	if code == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeError(w, code, err.Error())
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
