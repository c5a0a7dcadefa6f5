package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/alfredjeanlab/navgraph/internal/cache"
	"github.com/alfredjeanlab/navgraph/internal/events"
	"github.com/alfredjeanlab/navgraph/internal/executor"
	"github.com/alfredjeanlab/navgraph/internal/graph"
	"github.com/alfredjeanlab/navgraph/internal/idgen"
	"github.com/alfredjeanlab/navgraph/internal/model"
	"github.com/alfredjeanlab/navgraph/internal/plan"
	"github.com/alfredjeanlab/navgraph/internal/report"
	"github.com/alfredjeanlab/navgraph/internal/runs"
	"github.com/alfredjeanlab/navgraph/internal/store"
	"github.com/alfredjeanlab/navgraph/internal/validation"
)

// inputError indicates invalid user input.
// Transport layers map this to 400 / InvalidArgument.
type inputError string

func (e inputError) Error() string { return string(e) }

// errReadOnly is returned by tree writes when the source cannot store trees.
var errReadOnly = errors.New("tree source is read-only")

// Options configures a NavServer. Only Source and Executor are required.
type Options struct {
	Source      store.TreeSource
	Executor    executor.Executor
	Publisher   events.Publisher
	Uploader    *report.Uploader
	StepTimeout time.Duration
	// CacheMaxAge is the sweep age used when a sweep request names none.
	CacheMaxAge time.Duration
	Logger      *slog.Logger
}

// NavServer exposes the graph cache, planner and validation runner to the
// HTTP and gRPC transports.
type NavServer struct {
	cache       *cache.Cache
	source      store.TreeSource
	trees       store.Store // nil when source is read-only
	exec        executor.Executor
	publisher   events.Publisher
	uploader    *report.Uploader
	stepTimeout time.Duration
	maxAge      time.Duration
	logger      *slog.Logger

	// Runs tracks in-flight and recently finished validation runs.
	Runs *runs.Tracker

	loads  singleflight.Group
	sseHub *sseHub
}

// NewNavServer returns a NavServer serving graphs from c.
func NewNavServer(c *cache.Cache, opts Options) *NavServer {
	s := &NavServer{
		cache:       c,
		source:      opts.Source,
		exec:        opts.Executor,
		publisher:   opts.Publisher,
		uploader:    opts.Uploader,
		stepTimeout: opts.StepTimeout,
		maxAge:      opts.CacheMaxAge,
		logger:      opts.Logger,
		Runs:        runs.New(),
		sseHub:      newSSEHub(),
	}
	if st, ok := opts.Source.(store.Store); ok {
		s.trees = st
	}
	if s.publisher == nil {
		s.publisher = &events.NoopPublisher{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.maxAge <= 0 {
		s.maxAge = time.Hour
	}
	return s
}

// publish sends an event to the bus and to SSE clients. Both are best-effort;
// failures are logged but do not block the caller.
func (s *NavServer) publish(ctx context.Context, topic string, event any) {
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		s.logger.Warn("failed to publish event", "topic", topic, "error", err)
	}
	s.broadcastEvent(topic, event)
}

// CacheEntry describes a populated cache entry.
type CacheEntry struct {
	TreeID    string          `json:"tree_id"`
	TenantID  string          `json:"tenant_id"`
	NodeCount int             `json:"node_count"`
	EdgeCount int             `json:"edge_count"`
	Warnings  []model.Warning `json:"warnings,omitempty"`
	CachedAt  time.Time       `json:"cached_at"`
}

func cacheEntry(treeID, tenantID string, g *graph.Graph, cachedAt time.Time) *CacheEntry {
	return &CacheEntry{
		TreeID:    treeID,
		TenantID:  tenantID,
		NodeCount: g.NodeCount(),
		EdgeCount: g.EdgeCount(),
		Warnings:  g.Warnings(),
		CachedAt:  cachedAt,
	}
}

// Populate builds and caches the graph for t.
func (s *NavServer) Populate(ctx context.Context, t *model.Tree) (*CacheEntry, error) {
	if err := model.ValidateTree(t); err != nil {
		return nil, err
	}
	stored, err := s.cache.PopulateEntry(t.TreeID, t.TenantID, t.Nodes, t.Edges)
	if err != nil {
		return nil, err
	}
	entry := cacheEntry(t.TreeID, t.TenantID, stored.Graph, stored.CachedAt)
	for _, w := range entry.Warnings {
		s.logger.Debug("graph build warning", "tree", t.TreeID, "tenant", t.TenantID, "warning", w.String())
	}
	s.logger.Info("cache populated",
		"tree", t.TreeID, "tenant", t.TenantID,
		"nodes", entry.NodeCount, "edges", entry.EdgeCount, "warnings", len(entry.Warnings))
	s.publish(ctx, events.TopicCachePopulated, events.CachePopulated{
		TreeID:    t.TreeID,
		TenantID:  t.TenantID,
		NodeCount: entry.NodeCount,
		EdgeCount: entry.EdgeCount,
		Warnings:  len(entry.Warnings),
		CachedAt:  entry.CachedAt,
	})
	return entry, nil
}

// Load fetches the tree from the source and populates the cache with it.
// Concurrent loads of one key share a single source call.
func (s *NavServer) Load(ctx context.Context, treeID, tenantID string) (*CacheEntry, error) {
	if err := model.ValidateKey(treeID, tenantID); err != nil {
		return nil, err
	}
	if s.source == nil {
		return nil, fmt.Errorf("no tree source configured")
	}
	v, err, _ := s.loads.Do(tenantID+"/"+treeID, func() (any, error) {
		t, err := s.source.LoadTree(ctx, treeID, tenantID)
		if err != nil {
			return nil, err
		}
		t.TreeID, t.TenantID = treeID, tenantID
		return s.Populate(ctx, t)
	})
	if err != nil {
		return nil, err
	}
	return v.(*CacheEntry), nil
}

// graphFor returns the cached graph, loading it from the source on a miss.
func (s *NavServer) graphFor(ctx context.Context, treeID, tenantID string) (*graph.Graph, error) {
	g, err := s.cache.Get(treeID, tenantID)
	if err == nil {
		return g, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		return nil, err
	}
	if _, err := s.Load(ctx, treeID, tenantID); err != nil {
		return nil, err
	}
	return s.cache.Get(treeID, tenantID)
}

// PlanResult is a plan together with the key it was computed for.
type PlanResult struct {
	TreeID   string `json:"tree_id"`
	TenantID string `json:"tenant_id"`
	*plan.Plan
}

// Plan computes the validation plan for a cached tree.
func (s *NavServer) Plan(ctx context.Context, treeID, tenantID, entry string) (*PlanResult, error) {
	g, err := s.graphFor(ctx, treeID, tenantID)
	if err != nil {
		return nil, err
	}
	p, err := plan.Build(g, entry)
	if err != nil {
		return nil, err
	}
	return &PlanResult{TreeID: treeID, TenantID: tenantID, Plan: p}, nil
}

// ValidateResult is a finished run's report and where it was stored.
type ValidateResult struct {
	*model.Report
	ReportKey string `json:"report_key,omitempty"`
}

// Validate plans and runs a validation of a cached tree. Cancelling ctx stops
// the run between steps; the partial report is still returned.
func (s *NavServer) Validate(ctx context.Context, treeID, tenantID, entry string) (*ValidateResult, error) {
	if s.exec == nil {
		return nil, fmt.Errorf("no executor configured")
	}
	pr, err := s.Plan(ctx, treeID, tenantID, entry)
	if err != nil {
		return nil, err
	}
	runID, err := idgen.RunID()
	if err != nil {
		return nil, err
	}

	rc := validation.RunContext{RunID: runID, TreeID: treeID, TenantID: tenantID}
	s.Runs.Begin(runID, treeID, tenantID, pr.EntryNodeID, len(pr.Steps))
	s.logger.Info("validation run started",
		"run", runID, "tree", treeID, "tenant", tenantID, "entry", pr.EntryNodeID, "steps", len(pr.Steps))

	coord := validation.New(validation.Options{
		StepTimeout: s.stepTimeout,
		Logger:      s.logger,
		OnResult: func(step model.ValidationStep, r model.ValidationResult) {
			s.Runs.Record(runID, r)
			s.publish(context.WithoutCancel(ctx), events.TopicStepCompleted, events.StepCompleted{
				RunID:        runID,
				TreeID:       treeID,
				TenantID:     tenantID,
				StepNumber:   step.StepNumber,
				FromNodeID:   step.FromNodeID,
				ToNodeID:     step.ToNodeID,
				State:        r.State,
				SkipReason:   r.SkipReason,
				Retried:      r.Retried,
				ErrorMessage: r.ErrorMessage,
			})
		},
	})
	res := coord.Run(ctx, rc, pr.Steps, s.exec)
	s.Runs.Finish(runID, res.Summary)

	out := &ValidateResult{Report: &model.Report{
		RunID:        runID,
		TreeID:       treeID,
		TenantID:     tenantID,
		EntryNodeID:  pr.EntryNodeID,
		StartedAt:    res.StartedAt,
		FinishedAt:   res.FinishedAt,
		Summary:      res.Summary,
		Results:      res.Results,
		PlanWarnings: pr.Warnings,
	}}

	// The run already happened; neither upload nor publish may fail it.
	bg := context.WithoutCancel(ctx)
	if s.uploader != nil {
		if key, err := s.uploader.Upload(bg, out.Report); err == nil {
			out.ReportKey = key
		}
	}
	s.publish(bg, events.TopicRunCompleted, events.RunCompleted{
		RunID:     runID,
		TreeID:    treeID,
		TenantID:  tenantID,
		Summary:   res.Summary,
		ReportKey: out.ReportKey,
	})
	return out, nil
}

// Invalidate drops cached graphs for treeID; an empty tenantID drops every tenant.
func (s *NavServer) Invalidate(ctx context.Context, treeID, tenantID, reason string) (int, error) {
	removed, err := s.cache.Invalidate(treeID, tenantID)
	if err != nil {
		return 0, err
	}
	s.logger.Info("cache invalidated", "tree", treeID, "tenant", tenantID, "removed", removed, "reason", reason)
	if removed > 0 {
		s.publish(ctx, events.TopicCacheInvalidated, events.CacheInvalidated{
			TreeID:   treeID,
			TenantID: tenantID,
			Removed:  removed,
			Reason:   reason,
		})
	}
	return removed, nil
}

// Sweep evicts entries older than maxAge; zero means the configured default.
func (s *NavServer) Sweep(ctx context.Context, maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = s.maxAge
	}
	removed := s.cache.Sweep(maxAge)
	s.logger.Info("cache swept", "max_age", maxAge, "removed", removed)
	if removed > 0 {
		s.publish(ctx, events.TopicCacheCleared, events.CacheCleared{Removed: removed, Reason: "sweep"})
	}
	return removed
}

// Clear empties the cache.
func (s *NavServer) Clear(ctx context.Context) int {
	removed := s.cache.Clear()
	s.logger.Info("cache cleared", "removed", removed)
	s.publish(ctx, events.TopicCacheCleared, events.CacheCleared{Removed: removed, Reason: "clear"})
	return removed
}

// Stats returns a snapshot of the cache.
func (s *NavServer) Stats() cache.Stats {
	return s.cache.Stats()
}

// SaveTree stores t and drops its cached graph so the next request sees it.
func (s *NavServer) SaveTree(ctx context.Context, t *model.Tree) error {
	if s.trees == nil {
		return errReadOnly
	}
	if err := model.ValidateTree(t); err != nil {
		return err
	}
	if len(t.Nodes) == 0 {
		return inputError("tree must have at least one node")
	}
	if err := s.trees.SaveTree(ctx, t); err != nil {
		return fmt.Errorf("save tree: %w", err)
	}
	if _, err := s.Invalidate(ctx, t.TreeID, t.TenantID, "tree saved"); err != nil {
		return err
	}
	s.publish(ctx, events.TopicTreeUpdated, events.TreeChanged{TreeID: t.TreeID, TenantID: t.TenantID})
	return nil
}

// DeleteTree removes a stored tree and its cached graph.
func (s *NavServer) DeleteTree(ctx context.Context, treeID, tenantID string) error {
	if s.trees == nil {
		return errReadOnly
	}
	if err := model.ValidateKey(treeID, tenantID); err != nil {
		return err
	}
	if err := s.trees.DeleteTree(ctx, treeID, tenantID); err != nil {
		return err
	}
	if _, err := s.Invalidate(ctx, treeID, tenantID, "tree deleted"); err != nil {
		return err
	}
	s.publish(ctx, events.TopicTreeDeleted, events.TreeChanged{TreeID: treeID, TenantID: tenantID})
	return nil
}

// ListTrees lists stored trees, optionally for one tenant.
func (s *NavServer) ListTrees(ctx context.Context, tenantID string) ([]store.TreeRef, error) {
	if s.trees == nil {
		return nil, errReadOnly
	}
	return s.trees.ListTrees(ctx, tenantID)
}

// Ping reports whether the tree store is reachable. Read-only sources are
// always considered healthy.
func (s *NavServer) Ping(ctx context.Context) error {
	if s.trees == nil {
		return nil
	}
	return s.trees.Ping(ctx)
}
