// Package store implements the durable local store: per-collection record
// tables with secondary indexes, the sync queue, and the settings table, all
// in one SQLite database. Every mutating operation appends its queue entry
// in the same transaction as the record write, so a committed mutation can
// never lack its corresponding queue entry.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/electoral-office/fieldsync/internal/client/models"
	"github.com/electoral-office/fieldsync/internal/common"
	"github.com/electoral-office/fieldsync/internal/dbx"
	"github.com/electoral-office/fieldsync/internal/logging"
)

const timeFormat = time.RFC3339Nano

type Store struct {
	db  *sql.DB
	log logging.Logger
}

func New(db *sql.DB, log logging.Logger) *Store {
	return &Store{db: db, log: log.With("component", "store")}
}

// DB exposes the underlying handle for collaborators that share the file
// (e.g. closing on shutdown).
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) collection(name string) (models.Collection, error) {
	col, ok := models.CollectionByName(name)
	if !ok {
		return models.Collection{}, fmt.Errorf("unknown collection %q", name)
	}
	return col, nil
}

// Add persists a new record and enqueues a matching create entry. The
// caller's map is not retained. An explicit numeric "id" field is honored
// (used by the server-merge fallback and by import); a collision on it or on
// a unique index fails with common.ErrConstraint.
func (s *Store) Add(ctx context.Context, collection string, fields map[string]any) (int64, error) {
	col, err := s.collection(collection)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	rec := &models.Record{Fields: clonePayload(fields), CreatedAt: now, UpdatedAt: now}
	if v, ok := fields["created_at"]; ok {
		if t, err := parseTime(v); err == nil {
			rec.CreatedAt = t
		}
	}

	explicitID, hasID := numericID(fields["id"])

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		id, err := insertRecord(ctx, tx, col.Name, rec, explicitID, hasID)
		if err != nil {
			return err
		}
		rec.ID = id
		return s.enqueue(ctx, tx, models.ActionCreate, col.Name, id, rec.Snapshot())
	})
	if err != nil {
		return 0, err
	}

	s.log.Debug(ctx, "record added", "collection", col.Name, "id", rec.ID)
	return rec.ID, nil
}

// Update shallow-merges partial over the stored record, bumps updated_at,
// resets synced, and enqueues an update entry carrying the full merged
// record. Fails with common.ErrNotFound if the id is absent.
func (s *Store) Update(ctx context.Context, collection string, id int64, partial map[string]any) (int64, error) {
	col, err := s.collection(collection)
	if err != nil {
		return 0, err
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		rec, err := getRecord(ctx, tx, col.Name, id)
		if err != nil {
			return err
		}

		for k, v := range clonePayload(partial) {
			rec.Fields[k] = v
		}
		rec.UpdatedAt = time.Now().UTC()
		rec.Synced = false

		if err := writeRecord(ctx, tx, col.Name, rec); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, models.ActionUpdate, col.Name, id, rec.Snapshot())
	})
	if err != nil {
		return 0, err
	}

	s.log.Debug(ctx, "record updated", "collection", col.Name, "id", id)
	return id, nil
}

// Delete removes the record and enqueues a delete entry with no snapshot.
// Fails with common.ErrNotFound if the id is absent, so no spurious
// tombstone is queued.
func (s *Store) Delete(ctx context.Context, collection string, id int64) error {
	col, err := s.collection(collection)
	if err != nil {
		return err
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		res, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, col.Name), id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s/%d", common.ErrNotFound, col.Name, id)
		}
		return s.enqueue(ctx, tx, models.ActionDelete, col.Name, id, nil)
	})
	if err != nil {
		return err
	}

	s.log.Debug(ctx, "record deleted", "collection", col.Name, "id", id)
	return nil
}

// Get returns one record by id, or common.ErrNotFound.
func (s *Store) Get(ctx context.Context, collection string, id int64) (*models.Record, error) {
	col, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	return getRecord(ctx, s.db, col.Name, id)
}

// GetAll returns every record of the collection in id order.
func (s *Store) GetAll(ctx context.Context, collection string) ([]*models.Record, error) {
	col, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	return queryRecords(ctx, s.db,
		fmt.Sprintf(`SELECT id, data, created_at, updated_at, synced FROM %s ORDER BY id`, col.Name))
}

// SearchByIndex returns the records whose indexed field equals value.
// The field must be declared as an index on the collection.
func (s *Store) SearchByIndex(ctx context.Context, collection, field string, value any) ([]*models.Record, error) {
	col, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	if !col.HasIndex(field) {
		return nil, fmt.Errorf("collection %s has no index on %q", col.Name, field)
	}
	query := fmt.Sprintf(
		`SELECT id, data, created_at, updated_at, synced FROM %s WHERE json_extract(data, '$.%s') = ? ORDER BY id`,
		col.Name, field)
	return queryRecords(ctx, s.db, query, value)
}

var fieldNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Search performs a case-insensitive substring match of term over the named
// fields (the collection's default search fields when fields is empty).
func (s *Store) Search(ctx context.Context, collection, term string, fields ...string) ([]*models.Record, error) {
	col, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		fields = col.SearchFields
	}

	conds := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields))
	for _, f := range fields {
		if !fieldNameRe.MatchString(f) {
			return nil, fmt.Errorf("invalid search field %q", f)
		}
		conds = append(conds, fmt.Sprintf(`instr(lower(COALESCE(json_extract(data, '$.%s'), '')), ?) > 0`, f))
		args = append(args, strings.ToLower(term))
	}

	query := fmt.Sprintf(
		`SELECT id, data, created_at, updated_at, synced FROM %s WHERE %s ORDER BY id`,
		col.Name, strings.Join(conds, " OR "))
	return queryRecords(ctx, s.db, query, args...)
}

// Count returns the number of records in the collection.
func (s *Store) Count(ctx context.Context, collection string) (int64, error) {
	col, err := s.collection(collection)
	if err != nil {
		return 0, err
	}
	var n int64
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, col.Name)).Scan(&n)
	return n, err
}

// Clear removes every record of the collection without queueing anything.
func (s *Store) Clear(ctx context.Context, collection string) error {
	col, err := s.collection(collection)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, col.Name))
	return err
}

// ApplyServerRecord upserts a downloaded item by its server id, overwriting
// local fields (server wins) and marking the row synced. It never touches
// the sync queue: a server merge is not a local mutation.
func (s *Store) ApplyServerRecord(ctx context.Context, collection string, item map[string]any) error {
	col, err := s.collection(collection)
	if err != nil {
		return err
	}

	id, ok := numericID(item["id"])
	if !ok {
		return fmt.Errorf("server item for %s has no usable id", col.Name)
	}

	now := time.Now().UTC()
	rec := &models.Record{
		ID:        id,
		Fields:    clonePayload(item),
		CreatedAt: now,
		UpdatedAt: now,
		Synced:    true,
	}
	if t, err := parseTime(item["created_at"]); err == nil {
		rec.CreatedAt = t
	}
	if t, err := parseTime(item["updated_at"]); err == nil {
		rec.UpdatedAt = t
	}

	payload, err := json.Marshal(rec.Fields)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, data, created_at, updated_at, synced) VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(id) DO UPDATE SET
			data = excluded.data,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			synced = 1
	`, col.Name)
	_, err = s.db.ExecContext(ctx, query, id, string(payload),
		rec.CreatedAt.Format(timeFormat), rec.UpdatedAt.Format(timeFormat))
	return wrapDBError(err)
}

// Stats reports record counts per collection plus the number of queue
// entries still awaiting confirmation.
func (s *Store) Stats(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64, len(models.Collections)+1)
	for _, col := range models.Collections {
		n, err := s.Count(ctx, col.Name)
		if err != nil {
			return nil, err
		}
		out[col.Name] = n
	}

	var pending int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sync_queue WHERE status != ?`, string(models.StatusSynced)).Scan(&pending)
	if err != nil {
		return nil, err
	}
	out["pending_sync"] = pending

	return out, nil
}

// --- helpers ---

func insertRecord(ctx context.Context, tx dbx.DBTX, table string, rec *models.Record, explicitID int64, hasID bool) (int64, error) {
	payload, err := json.Marshal(rec.Fields)
	if err != nil {
		return 0, err
	}

	var res sql.Result
	if hasID {
		res, err = tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (id, data, created_at, updated_at, synced) VALUES (?, ?, ?, ?, ?)`, table),
			explicitID, string(payload), rec.CreatedAt.Format(timeFormat), rec.UpdatedAt.Format(timeFormat), rec.Synced)
	} else {
		res, err = tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (data, created_at, updated_at, synced) VALUES (?, ?, ?, ?)`, table),
			string(payload), rec.CreatedAt.Format(timeFormat), rec.UpdatedAt.Format(timeFormat), rec.Synced)
	}
	if err != nil {
		return 0, wrapDBError(err)
	}
	return res.LastInsertId()
}

func writeRecord(ctx context.Context, tx dbx.DBTX, table string, rec *models.Record) error {
	payload, err := json.Marshal(rec.Fields)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET data = ?, updated_at = ?, synced = ? WHERE id = ?`, table),
		string(payload), rec.UpdatedAt.Format(timeFormat), rec.Synced, rec.ID)
	return wrapDBError(err)
}

func getRecord(ctx context.Context, db dbx.DBTX, table string, id int64) (*models.Record, error) {
	row := db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id, data, created_at, updated_at, synced FROM %s WHERE id = ?`, table), id)
	rec, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%d", common.ErrNotFound, table, id)
	}
	return rec, err
}

func queryRecords(ctx context.Context, db dbx.DBTX, query string, args ...any) ([]*models.Record, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*models.Record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func scanRecord(scan func(...any) error) (*models.Record, error) {
	var (
		rec       models.Record
		payload   string
		createdAt string
		updatedAt string
	)
	if err := scan(&rec.ID, &payload, &createdAt, &updatedAt, &rec.Synced); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payload), &rec.Fields); err != nil {
		return nil, fmt.Errorf("corrupt record payload: %w", err)
	}

	var err error
	if rec.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = time.Parse(timeFormat, updatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

// clonePayload copies fields, dropping the bookkeeping keys the store owns.
func clonePayload(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch k {
		case "id", "created_at", "updated_at", "synced":
			continue
		}
		out[k] = v
	}
	return out
}

func numericID(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

func parseTime(v any) (time.Time, error) {
	str, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("not a timestamp: %v", v)
	}
	for _, layout := range []string{timeFormat, time.RFC3339, "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, str); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", str)
}

// wrapDBError maps SQLite constraint failures onto the shared sentinel so
// callers can errors.Is them without importing the driver.
func wrapDBError(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "constraint failed") {
		return fmt.Errorf("%w: %v", common.ErrConstraint, err)
	}
	return err
}
