package presence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	// timeLayout is fixed-width so stored timestamps sort lexically.
	timeLayout = "2006-01-02T15:04:05.000Z"
)

const presenceColumns = `faculty_id, present, status, source, detected_mac, ntp_sync_status, sequence, last_seen, changed_at`

// SQLiteRepository implements Repository on the faculty_presence and
// presence_history tables.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Upsert applies obs inside one transaction.
func (r *SQLiteRepository) Upsert(ctx context.Context, obs Observation) (Presence, bool, error) {
	if obs.FacultyID <= 0 {
		return Presence{}, false, fmt.Errorf("faculty id must be positive, got %d", obs.FacultyID)
	}
	if obs.Kind != KindPresence {
		return Presence{}, false, fmt.Errorf("upsert requires a presence observation, got %s", obs.Kind)
	}

	at := formatTime(obs.ObservedAt)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Presence{}, false, fmt.Errorf("beginning presence upsert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	var prevPresent bool
	var prevSequence uint64
	err = tx.QueryRowContext(ctx,
		"SELECT present, sequence FROM faculty_presence WHERE faculty_id = ?",
		obs.FacultyID,
	).Scan(&prevPresent, &prevSequence)

	var changed bool
	switch {
	case errors.Is(err, sql.ErrNoRows):
		changed = true
		_, err = tx.ExecContext(ctx,
			`INSERT INTO faculty_presence (`+presenceColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`,
			obs.FacultyID, obs.Present, obs.Status, obs.Source,
			nullString(obs.DetectedMAC), nullString(obs.NTPSyncStatus),
			at, at,
		)
		if err != nil {
			return Presence{}, false, fmt.Errorf("inserting presence: %w", err)
		}
	case err != nil:
		return Presence{}, false, fmt.Errorf("reading presence: %w", err)
	default:
		changed = prevPresent != obs.Present
		sequence := prevSequence
		changedAtExpr := "changed_at"
		args := []any{obs.Present, obs.Status, obs.Source,
			nullString(obs.DetectedMAC), nullString(obs.NTPSyncStatus), at}
		if changed {
			sequence++
			changedAtExpr = "?"
			args = append(args, at)
		}
		args = append(args, sequence, obs.FacultyID)

		_, err = tx.ExecContext(ctx,
			`UPDATE faculty_presence SET
			   present = ?,
			   status = ?,
			   source = ?,
			   detected_mac = COALESCE(?, detected_mac),
			   ntp_sync_status = COALESCE(?, ntp_sync_status),
			   last_seen = ?,
			   changed_at = `+changedAtExpr+`,
			   sequence = ?
			 WHERE faculty_id = ?`,
			args...,
		)
		if err != nil {
			return Presence{}, false, fmt.Errorf("updating presence: %w", err)
		}
	}

	if changed {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO presence_history (faculty_id, present, status, source, recorded_at)
			 VALUES (?, ?, ?, ?, ?)`,
			obs.FacultyID, obs.Present, obs.Status, obs.Source, at,
		)
		if err != nil {
			return Presence{}, false, fmt.Errorf("inserting presence history: %w", err)
		}
	}

	p, err := scanPresence(tx.QueryRowContext(ctx,
		"SELECT "+presenceColumns+" FROM faculty_presence WHERE faculty_id = ?",
		obs.FacultyID,
	))
	if err != nil {
		return Presence{}, false, err
	}

	if err := tx.Commit(); err != nil {
		return Presence{}, false, fmt.Errorf("committing presence upsert: %w", err)
	}
	return p, changed, nil
}

// Get returns the current presence of one faculty member.
func (r *SQLiteRepository) Get(ctx context.Context, facultyID int) (Presence, error) {
	p, err := scanPresence(r.db.QueryRowContext(ctx,
		"SELECT "+presenceColumns+" FROM faculty_presence WHERE faculty_id = ?",
		facultyID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return Presence{}, ErrNotFound
	}
	return p, err
}

// List returns every known faculty member ordered by id.
func (r *SQLiteRepository) List(ctx context.Context) ([]Presence, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+presenceColumns+" FROM faculty_presence ORDER BY faculty_id",
	)
	if err != nil {
		return nil, fmt.Errorf("querying presence: %w", err)
	}
	defer rows.Close()

	list := make([]Presence, 0)
	for rows.Next() {
		p, err := scanPresence(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating presence: %w", err)
	}
	return list, nil
}

// History returns presence changes for one faculty member, newest first.
func (r *SQLiteRepository) History(ctx context.Context, facultyID int, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, faculty_id, present, status, source, recorded_at
		 FROM presence_history
		 WHERE faculty_id = ?
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT ?`,
		facultyID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying presence history: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0, limit)
	for rows.Next() {
		var e HistoryEntry
		var recordedAt string
		if err := rows.Scan(&e.ID, &e.FacultyID, &e.Present, &e.Status, &e.Source, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning presence history: %w", err)
		}
		if e.RecordedAt, err = parseTime(recordedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating presence history: %w", err)
	}
	return entries, nil
}

// TouchHeartbeat refreshes last_seen without changing availability.
func (r *SQLiteRepository) TouchHeartbeat(ctx context.Context, facultyID int, ntpSyncStatus string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE faculty_presence
		 SET last_seen = ?, ntp_sync_status = COALESCE(?, ntp_sync_status)
		 WHERE faculty_id = ?`,
		formatTime(at),
		nullString(ntpSyncStatus),
		facultyID,
	)
	if err != nil {
		return fmt.Errorf("updating heartbeat: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// PruneHistory deletes history entries recorded before now-olderThan.
func (r *SQLiteRepository) PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := formatTime(time.Now().Add(-olderThan))
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM presence_history WHERE recorded_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting presence history: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPresence(row rowScanner) (Presence, error) {
	var p Presence
	var mac, ntp sql.NullString
	var lastSeen, changedAt string

	err := row.Scan(&p.FacultyID, &p.Present, &p.Status, &p.Source,
		&mac, &ntp, &p.Sequence, &lastSeen, &changedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Presence{}, err
		}
		return Presence{}, fmt.Errorf("scanning presence: %w", err)
	}

	p.DetectedMAC = mac.String
	p.NTPSyncStatus = ntp.String
	if p.LastSeen, err = parseTime(lastSeen); err != nil {
		return Presence{}, err
	}
	if p.ChangedAt, err = parseTime(changedAt); err != nil {
		return Presence{}, err
	}
	return p, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(timeLayout, value)
	if err == nil {
		return t, nil
	}
	if fallback, fallbackErr := time.Parse(time.RFC3339Nano, value); fallbackErr == nil {
		return fallback.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", value, err)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
