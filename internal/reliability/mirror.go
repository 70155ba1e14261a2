// Package reliability copies run documents to object storage and keeps the
// local cache database healthy.
package reliability

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aristath/carmarket/internal/domain"
	"github.com/rs/zerolog"
)

// ManifestFile lists the documents of one mirrored run.
const ManifestFile = "manifest.json"

// RunManifest describes one mirrored run.
type RunManifest struct {
	RunID       string         `json:"run_id"`
	GeneratedAt time.Time      `json:"generated_at"`
	Documents   []DocumentInfo `json:"documents"`
}

// DocumentInfo describes one mirrored document.
type DocumentInfo struct {
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// Mirror uploads run documents under
// <prefix>runs/<date>/<run id>/ and refreshes <prefix>latest/.
// A nil store disables mirroring.
type Mirror struct {
	store  ObjectStore
	prefix string
	log    zerolog.Logger
}

// NewMirror creates a mirror. store may be nil.
func NewMirror(store ObjectStore, prefix string, log zerolog.Logger) *Mirror {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &Mirror{
		store:  store,
		prefix: prefix,
		log:    log.With().Str("service", "mirror").Logger(),
	}
}

// Enabled reports whether a store is configured.
func (m *Mirror) Enabled() bool {
	return m != nil && m.store != nil
}

// RunPrefix returns the key prefix of a run.
func (m *Mirror) RunPrefix(snap domain.Snapshot) string {
	return fmt.Sprintf("%sruns/%s/%s/", m.prefix, snap.GeneratedAt.UTC().Format(domain.DateLayout), snap.RunID)
}

// MirrorRun uploads the files written for snap plus a manifest.
func (m *Mirror) MirrorRun(ctx context.Context, snap domain.Snapshot, files []string) error {
	if !m.Enabled() {
		return nil
	}

	start := time.Now()
	runPrefix := m.RunPrefix(snap)
	manifest := RunManifest{
		RunID:       snap.RunID,
		GeneratedAt: snap.GeneratedAt.UTC(),
		Documents:   make([]DocumentInfo, 0, len(files)),
	}

	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file, err)
		}
		name := filepath.Base(file)

		for _, key := range []string{runPrefix + name, m.prefix + "latest/" + name} {
			if err := m.store.Upload(ctx, key, bytes.NewReader(data), "application/json"); err != nil {
				return err
			}
		}

		manifest.Documents = append(manifest.Documents, DocumentInfo{
			Filename:  name,
			SizeBytes: int64(len(data)),
			Checksum:  checksum(bytes.NewReader(data)),
		})
	}

	body, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := m.store.Upload(ctx, runPrefix+ManifestFile, bytes.NewReader(body), "application/json"); err != nil {
		return err
	}

	m.log.Info().
		Str("run_id", snap.RunID).
		Int("documents", len(files)).
		Dur("duration", time.Since(start)).
		Msg("Mirrored run documents")
	return nil
}

// RotateOldRuns deletes mirrored runs dated more than retentionDays before now.
// The latest/ copies are never deleted.
func (m *Mirror) RotateOldRuns(ctx context.Context, retentionDays int, now time.Time) (int, error) {
	if !m.Enabled() || retentionDays <= 0 {
		return 0, nil
	}

	objects, err := m.store.List(ctx, m.prefix+"runs/")
	if err != nil {
		return 0, err
	}

	cutoff := domain.DateOf(now).AddDays(-retentionDays)
	deleted := 0
	for _, obj := range objects {
		day, ok := runDate(strings.TrimPrefix(obj.Key, m.prefix+"runs/"))
		if !ok || !day.Before(cutoff) {
			continue
		}
		if err := m.store.Delete(ctx, obj.Key); err != nil {
			m.log.Warn().Err(err).Str("key", obj.Key).Msg("Failed to delete old mirrored document")
			continue
		}
		deleted++
	}

	if deleted > 0 {
		m.log.Info().Int("deleted", deleted).Int("retention_days", retentionDays).Msg("Rotated old mirrored runs")
	}
	return deleted, nil
}

// runDate extracts the date segment of "<date>/<run id>/<file>".
func runDate(rel string) (domain.Date, bool) {
	dir, _ := path.Split(rel)
	first := strings.SplitN(strings.Trim(dir, "/"), "/", 2)[0]
	d, err := domain.ParseDate(first)
	if err != nil {
		return domain.Date{}, false
	}
	return d, true
}

func checksum(r io.Reader) string {
	h := sha256.New()
	_, _ = io.Copy(h, r)
	return hex.EncodeToString(h.Sum(nil))
}
