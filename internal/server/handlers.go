package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/carmarket/internal/database"
	"github.com/aristath/carmarket/internal/modules/results"
)

// SystemStatusResponse is returned by GET /api/system/status.
type SystemStatusResponse struct {
	Status        string            `json:"status"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	CPUPercent    float64           `json:"cpu_percent"`
	MemoryPercent float64           `json:"memory_percent"`
	DiskFreeMB    float64           `json:"disk_free_mb,omitempty"`
	Run           results.RunStatus `json:"run"`
	RateCache     *database.Stats   `json:"rate_cache,omitempty"`
	Errors        map[string]string `json:"errors,omitempty"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"version": Version,
		"service": "carmarket",
	})
}

// handleSystemStatus handles GET /api/system/status
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp := SystemStatusResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Run:           s.store.Status(),
	}
	resp.CPUPercent, resp.MemoryPercent = s.hostStats(ctx)

	if s.dataDir != "" {
		if usage, err := disk.UsageWithContext(ctx, s.dataDir); err == nil {
			resp.DiskFreeMB = float64(usage.Free) / 1024 / 1024
		} else {
			resp.addError("disk", err)
		}
	}

	if s.db != nil {
		stats, err := s.db.GetStats(ctx)
		if err != nil {
			resp.addError("rate_cache", err)
		} else {
			resp.RateCache = stats
		}
	}

	if resp.Run.LastError != "" {
		resp.Status = "degraded"
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (r *SystemStatusResponse) addError(key string, err error) {
	if r.Errors == nil {
		r.Errors = make(map[string]string)
	}
	r.Errors[key] = err.Error()
}

// systemStats samples CPU over 100ms so the endpoint stays responsive.
func (s *Server) systemStats(ctx context.Context) (float64, float64) {
	cpuPercent, err := cpu.PercentWithContext(ctx, 100*time.Millisecond, false)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
