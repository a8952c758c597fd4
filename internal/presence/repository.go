package presence

import (
	"context"
	"time"
)

// Repository stores current presence and its change history.
//
// Implementations must be safe for concurrent use and store UTC timestamps.
type Repository interface {
	// Upsert applies an availability observation. changed is true when the
	// faculty member is new or their availability flipped; only then is a
	// history row written and the sequence advanced.
	Upsert(ctx context.Context, obs Observation) (p Presence, changed bool, err error)

	// Get returns ErrNotFound for a faculty member never observed.
	Get(ctx context.Context, facultyID int) (Presence, error)

	// List returns every known faculty member ordered by id.
	List(ctx context.Context) ([]Presence, error)

	// History returns changes newest first. limit is clamped to [1, 200]
	// with 50 as the default.
	History(ctx context.Context, facultyID int, limit int) ([]HistoryEntry, error)

	// TouchHeartbeat refreshes last_seen (and the NTP status when given)
	// without touching availability. ErrNotFound for unknown faculty.
	TouchHeartbeat(ctx context.Context, facultyID int, ntpSyncStatus string, at time.Time) error

	// PruneHistory deletes history older than olderThan and returns the
	// number of rows removed.
	PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error)
}
