// Package results keeps the latest run snapshot in memory and tracks
// whether a collection run is in progress.
package results

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/aristath/carmarket/internal/domain"
)

// ErrRunInProgress is returned when a run is requested while one is active.
var ErrRunInProgress = errors.New("collection run already in progress")

// RunStatus summarizes the current and last collection runs.
type RunStatus struct {
	Running          bool      `json:"running"`
	CurrentStartedAt time.Time `json:"current_started_at,omitempty"`
	LastRunID        string    `json:"last_run_id,omitempty"`
	LastStartedAt    time.Time `json:"last_started_at,omitempty"`
	LastFinishedAt   time.Time `json:"last_finished_at,omitempty"`
	LastError        string    `json:"last_error,omitempty"`
	LastVehicleCount int       `json:"last_vehicle_count"`
	RunsCompleted    int       `json:"runs_completed"`
	RunsFailed       int       `json:"runs_failed"`
}

// Store holds the latest successful snapshot. Nothing is persisted.
type Store struct {
	mu     sync.RWMutex
	latest *domain.Snapshot
	status RunStatus
	now    func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{now: time.Now}
}

// Begin marks a run as started. It returns ErrRunInProgress when another
// run has not finished yet.
func (s *Store) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Running {
		return ErrRunInProgress
	}
	s.status.Running = true
	s.status.CurrentStartedAt = s.now().UTC()
	return nil
}

// Finish records the outcome of the run started by Begin. A failed run
// keeps the previous snapshot.
func (s *Store) Finish(snap domain.Snapshot, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.Running = false
	s.status.LastStartedAt = s.status.CurrentStartedAt
	s.status.CurrentStartedAt = time.Time{}
	s.status.LastFinishedAt = s.now().UTC()

	if err != nil {
		s.status.LastError = err.Error()
		s.status.RunsFailed++
		return
	}

	s.status.LastError = ""
	s.status.LastRunID = snap.RunID
	s.status.LastVehicleCount = snap.VehicleCount
	s.status.RunsCompleted++
	s.latest = &snap
}

// Status returns a copy of the run status.
func (s *Store) Status() RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Latest returns the most recent successful snapshot.
func (s *Store) Latest() (domain.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.latest == nil {
		return domain.Snapshot{}, false
	}
	return *s.latest, true
}

// Find returns the result for a vehicle by year and name. Names match
// case-insensitively, and the output file form ("Porsche_911") also matches.
func (s *Store) Find(year int, name string) (domain.VehicleResult, bool) {
	snap, ok := s.Latest()
	if !ok {
		return domain.VehicleResult{}, false
	}

	want := strings.ReplaceAll(name, "_", " ")
	for _, result := range snap.Vehicles {
		if result.VehicleYear != year {
			continue
		}
		if strings.EqualFold(result.VehicleName, name) || strings.EqualFold(result.VehicleName, want) {
			return result, true
		}
	}
	return domain.VehicleResult{}, false
}
