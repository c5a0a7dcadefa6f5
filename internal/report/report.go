// Package report persists validation run reports.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/alfredjeanlab/navgraph/internal/model"
)

// Destination stores a report payload under key.
type Destination interface {
	Write(ctx context.Context, key string, data []byte) error
}

// Uploader writes run reports to a Destination as JSON objects keyed
// <prefix>/<tenant>/<tree>/<runID>.json.
type Uploader struct {
	dest   Destination
	prefix string
	logger *slog.Logger
}

// NewUploader creates an Uploader. Surrounding slashes in prefix are ignored.
func NewUploader(dest Destination, prefix string, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{dest: dest, prefix: strings.Trim(prefix, "/"), logger: logger}
}

// Key returns the object key for r.
func (u *Uploader) Key(r *model.Report) string {
	return path.Join(u.prefix, r.TenantID, r.TreeID, r.RunID+".json")
}

// Upload stores r and returns its key. Failures are logged and returned;
// callers treat them as non-fatal.
func (u *Uploader) Upload(ctx context.Context, r *model.Report) (string, error) {
	if err := model.ValidateKey(r.TreeID, r.TenantID); err != nil {
		return "", fmt.Errorf("report key: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	key := u.Key(r)
	if err := u.dest.Write(ctx, key, data); err != nil {
		u.logger.Warn("report upload failed", "run", r.RunID, "key", key, "err", err)
		return "", fmt.Errorf("write report %s: %w", key, err)
	}
	u.logger.Info("report uploaded", "run", r.RunID, "key", key, "bytes", len(data))
	return key, nil
}

// DirDestination writes reports below a local directory.
type DirDestination struct {
	Root string
}

// Write creates any missing parent directories of key and writes data.
func (d DirDestination) Write(_ context.Context, key string, data []byte) error {
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("report key %q escapes the report directory", key)
	}
	p := filepath.Join(d.Root, clean)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	return os.WriteFile(p, data, 0o644)
}
