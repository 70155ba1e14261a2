// Package output writes run results as JSON documents on disk.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aristath/carmarket/internal/domain"
	"github.com/rs/zerolog"
)

// SnapshotFile is the name of the run envelope document.
const SnapshotFile = "snapshot.json"

// Writer writes documents into one directory.
type Writer struct {
	dir string
	log zerolog.Logger
}

// NewWriter creates a writer for dir. The directory is created on first write.
func NewWriter(dir string, log zerolog.Logger) *Writer {
	return &Writer{
		dir: dir,
		log: log.With().Str("component", "output_writer").Logger(),
	}
}

// Dir returns the output directory.
func (w *Writer) Dir() string {
	return w.dir
}

// FileName returns the document name for a vehicle result:
// out_<year>_<name>, spaces replaced by "_" and slashes by "-".
func FileName(name string, year int) string {
	safe := strings.NewReplacer(" ", "_", "/", "-", "\\", "-").Replace(name)
	return fmt.Sprintf("out_%d_%s.json", year, safe)
}

// WriteRun writes one document per vehicle and the snapshot, returning
// the paths written in that order. Writing stops at the first failure.
// Vehicles sharing a file name overwrite each other; the later one wins
// and a warning is logged.
func (w *Writer) WriteRun(snap domain.Snapshot) ([]string, error) {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	paths := make([]string, 0, len(snap.Vehicles)+1)
	written := make(map[string]string, len(snap.Vehicles))
	for _, result := range snap.Vehicles {
		name := FileName(result.VehicleName, result.VehicleYear)
		if previous, ok := written[name]; ok {
			w.log.Warn().
				Str("file", name).
				Str("vehicle", result.VehicleName).
				Str("previous_vehicle", previous).
				Int("year", result.VehicleYear).
				Msg("Vehicles share an output file, overwriting earlier document")
		}
		written[name] = result.VehicleName

		path := filepath.Join(w.dir, name)
		if err := writeJSON(path, result); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}

	path := filepath.Join(w.dir, SnapshotFile)
	if err := writeJSON(path, snap); err != nil {
		return paths, err
	}
	paths = append(paths, path)

	w.log.Info().Str("dir", w.dir).Int("documents", len(paths)).Msg("Wrote run documents")
	return paths, nil
}

// writeJSON writes v indented to path via a temp file and rename, so
// readers never see a partial document.
func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", filepath.Base(path), err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", filepath.Base(path), err)
	}

	return nil
}
