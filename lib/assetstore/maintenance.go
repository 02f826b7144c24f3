// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package assetstore

import (
	"context"
	"time"
)

// MaintenanceConfig configures RunMaintenance.
type MaintenanceConfig struct {
	// Interval between maintenance passes.
	Interval time.Duration

	// SnapshotPath is where committed assets are persisted. Empty
	// disables snapshots.
	SnapshotPath string
	Compression  CompressionTag
}

// RunMaintenance sweeps expired batches every interval and writes a
// snapshot whenever a commit has happened since the last one. On
// cancellation it writes a final snapshot if one is pending. Blocks
// until ctx is cancelled.
func (s *State) RunMaintenance(ctx context.Context, config MaintenanceConfig) {
	ticker := s.clock.NewTicker(config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
			s.snapshotIfDirty(config)
		case <-ctx.Done():
			s.snapshotIfDirty(config)
			return
		}
	}
}

func (s *State) snapshotIfDirty(config MaintenanceConfig) {
	if config.SnapshotPath == "" || !s.Dirty() {
		return
	}
	if err := s.Snapshot(config.SnapshotPath, config.Compression); err != nil {
		// dirty was cleared by Snapshot; mark it again so the next
		// pass retries.
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
		s.logger.Error("writing snapshot failed", "path", config.SnapshotPath, "error", err)
	}
}
