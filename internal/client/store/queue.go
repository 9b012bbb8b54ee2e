package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/electoral-office/fieldsync/internal/client/models"
	"github.com/electoral-office/fieldsync/internal/dbx"
	"github.com/google/uuid"
)

// enqueue appends one sync-queue entry inside the caller's transaction.
// Every mutation path goes through here exactly once.
func (s *Store) enqueue(ctx context.Context, tx dbx.DBTX, action models.Action, collection string, recordID int64, data map[string]any) error {
	var payload sql.NullString
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return err
		}
		payload = sql.NullString{String: string(b), Valid: true}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO sync_queue (op_id, action, collection, record_id, data, created_at, status, retries)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
	`, uuid.NewString(), string(action), collection, recordID, payload,
		time.Now().UTC().Format(timeFormat), string(models.StatusPending))
	if err != nil {
		return fmt.Errorf("failed to enqueue %s for %s/%d: %w", action, collection, recordID, err)
	}
	return nil
}

// PendingQueue returns every entry not yet confirmed by the server, oldest
// first. Entries in error state are included: they are retried each cycle.
func (s *Store) PendingQueue(ctx context.Context) ([]*models.QueueEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, op_id, action, collection, record_id, data, created_at, status, retries, last_error
		FROM sync_queue
		WHERE status != ?
		ORDER BY id
	`, string(models.StatusSynced))
	if err != nil {
		return nil, fmt.Errorf("failed to select pending queue: %w", err)
	}
	defer rows.Close()

	var result []*models.QueueEntry
	for rows.Next() {
		entry, err := scanQueueEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

// MarkQueueSynced transitions one entry to synced and clears its last error.
func (s *Store) MarkQueueSynced(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sync_queue SET status = ?, last_error = NULL WHERE id = ?`,
		string(models.StatusSynced), id)
	if err != nil {
		return fmt.Errorf("failed to mark queue entry %d synced: %w", id, err)
	}
	return nil
}

// MarkQueueError transitions one entry to error, incrementing its retry
// counter and recording the failure for observability.
func (s *Store) MarkQueueError(ctx context.Context, id int64, cause string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sync_queue SET status = ?, retries = retries + 1, last_error = ? WHERE id = ?`,
		string(models.StatusError), cause, id)
	if err != nil {
		return fmt.Errorf("failed to mark queue entry %d errored: %w", id, err)
	}
	return nil
}

// QueueCounts returns the number of entries per status.
func (s *Store) QueueCounts(ctx context.Context) (map[models.Status]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM sync_queue GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[models.Status]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[models.Status(status)] = n
	}
	return out, rows.Err()
}

func scanQueueEntry(scan func(...any) error) (*models.QueueEntry, error) {
	var (
		entry     models.QueueEntry
		action    string
		status    string
		payload   sql.NullString
		createdAt string
		lastError sql.NullString
	)
	if err := scan(&entry.ID, &entry.OpID, &action, &entry.Collection, &entry.RecordID,
		&payload, &createdAt, &status, &entry.Retries, &lastError); err != nil {
		return nil, err
	}

	entry.Action = models.Action(action)
	entry.Status = models.Status(status)
	entry.LastError = lastError.String

	if payload.Valid {
		if err := json.Unmarshal([]byte(payload.String), &entry.Data); err != nil {
			return nil, fmt.Errorf("corrupt queue payload: %w", err)
		}
	}

	t, err := time.Parse(timeFormat, createdAt)
	if err != nil {
		return nil, err
	}
	entry.CreatedAt = t

	return &entry, nil
}
