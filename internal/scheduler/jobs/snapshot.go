package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/flof/backend/internal/brain"
	"github.com/wonny/flof/backend/internal/realtime/cache"
	"github.com/wonny/flof/backend/pkg/logger"
	"github.com/wonny/flof/backend/pkg/redis"
)

// SnapshotSource provides the current engine state
type SnapshotSource interface {
	Snapshot() brain.EngineSnapshot
}

// SnapshotPublishJob copies the engine snapshot into the in-memory cache and Redis.
// The status command and other processes read the Redis copy.
type SnapshotPublishJob struct {
	source   SnapshotSource
	local    *cache.SnapshotCache
	remote   *redis.Cache
	schedule string
	logger   *logger.Logger
}

// NewSnapshotPublishJob creates a new snapshot publish job. remote may be nil.
func NewSnapshotPublishJob(source SnapshotSource, local *cache.SnapshotCache, remote *redis.Cache, schedule string, log *logger.Logger) *SnapshotPublishJob {
	return &SnapshotPublishJob{
		source:   source,
		local:    local,
		remote:   remote,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *SnapshotPublishJob) Name() string { return "snapshot_publish" }

// Schedule returns the cron schedule
func (j *SnapshotPublishJob) Schedule() string { return j.schedule }

// Run publishes one snapshot
func (j *SnapshotPublishJob) Run(ctx context.Context) error {
	snap := j.source.Snapshot()

	if j.local != nil {
		j.local.Update(snap)
		j.local.CleanStale()
	}

	if j.remote != nil {
		if err := j.remote.Set(ctx, redis.SnapshotKey(snap.Instrument), snap, redis.TTLSnapshot); err != nil {
			return fmt.Errorf("publish snapshot: %w", err)
		}
	}

	j.logger.WithFields(map[string]interface{}{
		"instrument": snap.Instrument,
		"state":      snap.State,
		"positions":  len(snap.Positions),
	}).Debug("Snapshot published")
	return nil
}
