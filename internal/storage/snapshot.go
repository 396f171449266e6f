package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/user/centsalert/internal/availability"
)

// SnapshotStore persists availability snapshots. History is append-only
// and totally ordered by taken_at; the latest snapshot is the one the
// diff engine compares against.
type SnapshotStore struct {
	db *Database
}

// NewSnapshotStore creates a new snapshot store.
func NewSnapshotStore(db *Database) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Append persists a new snapshot. Snapshots are never updated or
// deleted.
func (s *SnapshotStore) Append(snap *availability.Snapshot) error {
	records, err := json.Marshal(snap.Records)
	if err != nil {
		return fmt.Errorf("failed to marshal records: %w", err)
	}

	query := `
		INSERT INTO snapshots (snapshot_id, taken_at, total_count, available_count, records)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err = s.db.Exec(query, snap.ID, snap.TakenAt, snap.TotalCount, snap.AvailableCount, string(records))
	if err != nil {
		return fmt.Errorf("failed to append snapshot: %w", err)
	}
	return nil
}

// GetLatest returns the most recent snapshot, or nil if none has been
// taken yet.
func (s *SnapshotStore) GetLatest() (*availability.Snapshot, error) {
	var row snapshotRow
	query := `SELECT * FROM snapshots ORDER BY taken_at DESC, id DESC LIMIT 1`
	err := s.db.Get(&row, query)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}
	return row.toSnapshot()
}

// History returns the most recent snapshots, newest first.
func (s *SnapshotStore) History(limit int) ([]availability.Snapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []snapshotRow
	query := `SELECT * FROM snapshots ORDER BY taken_at DESC, id DESC LIMIT ?`
	if err := s.db.Select(&rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to get snapshot history: %w", err)
	}

	snaps := make([]availability.Snapshot, 0, len(rows))
	for _, row := range rows {
		snap, err := row.toSnapshot()
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, *snap)
	}
	return snaps, nil
}

func (r *snapshotRow) toSnapshot() (*availability.Snapshot, error) {
	var records []availability.Record
	if err := json.Unmarshal([]byte(r.Records), &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal records: %w", err)
	}
	return &availability.Snapshot{
		ID:             r.SnapshotID,
		TakenAt:        r.TakenAt,
		Records:        records,
		TotalCount:     r.TotalCount,
		AvailableCount: r.AvailableCount,
	}, nil
}
