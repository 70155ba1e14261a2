package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
)

// Checkpointer truncates a database WAL file.
type Checkpointer interface {
	WALCheckpoint(ctx context.Context) error
}

// DiskUsageFunc reports free and total bytes for a path.
type DiskUsageFunc func(ctx context.Context, path string) (free, total uint64, err error)

// Disk space thresholds for the data directory.
const (
	criticalFreeBytes = 200 << 20
	lowFreeBytes      = 1 << 30
)

// MaintenanceJob keeps local state healthy: WAL checkpoint of the cache
// database, disk space check of the data directory, and rotation of old
// mirrored runs.
type MaintenanceJob struct {
	db            Checkpointer
	mirror        *Mirror
	dataDir       string
	retentionDays int
	usage         DiskUsageFunc
	log           zerolog.Logger
}

// NewMaintenanceJob creates the job. db and mirror may be nil.
func NewMaintenanceJob(db Checkpointer, mirror *Mirror, dataDir string, retentionDays int, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		db:            db,
		mirror:        mirror,
		dataDir:       dataDir,
		retentionDays: retentionDays,
		usage:         diskUsage,
		log:           log.With().Str("job", "maintenance").Logger(),
	}
}

// Run executes the maintenance steps. Only critically low disk space fails the job.
func (j *MaintenanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if j.db != nil {
		if err := j.db.WALCheckpoint(ctx); err != nil {
			j.log.Warn().Err(err).Msg("WAL checkpoint failed")
		}
	}

	if err := j.checkDiskSpace(ctx); err != nil {
		return err
	}

	if j.mirror.Enabled() {
		if _, err := j.mirror.RotateOldRuns(ctx, j.retentionDays, time.Now()); err != nil {
			j.log.Warn().Err(err).Msg("Mirror rotation failed")
		}
	}

	return nil
}

// Name returns the job name for scheduling and logging.
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}

func (j *MaintenanceJob) checkDiskSpace(ctx context.Context) error {
	free, total, err := j.usage(ctx, j.dataDir)
	if err != nil {
		j.log.Warn().Err(err).Str("path", j.dataDir).Msg("Failed to read disk usage")
		return nil
	}

	freeGB := float64(free) / 1e9
	j.log.Debug().Float64("free_gb", freeGB).Uint64("total_bytes", total).Msg("Disk space check")

	switch {
	case free < criticalFreeBytes:
		j.log.Error().Float64("free_gb", freeGB).Msg("Insufficient disk space for run documents")
		return fmt.Errorf("only %.2f GB free in %s", freeGB, j.dataDir)
	case free < lowFreeBytes:
		j.log.Warn().Float64("free_gb", freeGB).Msg("Disk space running low")
	}

	return nil
}

func diskUsage(ctx context.Context, path string) (uint64, uint64, error) {
	stat, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, 0, err
	}
	return stat.Free, stat.Total, nil
}
