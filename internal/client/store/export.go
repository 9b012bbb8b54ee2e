package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/electoral-office/fieldsync/internal/client/models"
	"github.com/electoral-office/fieldsync/internal/dbx"
)

// ExportVersion is the version stamp written into export files.
const ExportVersion = 1

// ExportToJSON dumps every tracked collection into a single JSON document:
//
//	{ "voters": [...], ..., "parties": [...], "exportDate": ..., "version": 1 }
func (s *Store) ExportToJSON(ctx context.Context) ([]byte, error) {
	doc := make(map[string]any, len(models.Collections)+2)

	for _, col := range models.Collections {
		recs, err := s.GetAll(ctx, col.Name)
		if err != nil {
			return nil, err
		}
		items := make([]map[string]any, 0, len(recs))
		for _, rec := range recs {
			items = append(items, rec.Snapshot())
		}
		doc[col.Name] = items
	}

	doc["exportDate"] = time.Now().UTC().Format(time.RFC3339)
	doc["version"] = ExportVersion

	return json.MarshalIndent(doc, "", "  ")
}

// ImportFromJSON restores collections from an export document. For each
// collection present in the document the local data is cleared first and the
// items are bulk-inserted in one transaction: a destructive replace, not a
// merge. Imported rows bypass the sync queue.
func (s *Store) ImportFromJSON(ctx context.Context, data []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid import document: %w", err)
	}

	for _, col := range models.Collections {
		raw, ok := doc[col.Name]
		if !ok {
			continue
		}

		var items []map[string]any
		if err := json.Unmarshal(raw, &items); err != nil {
			return fmt.Errorf("invalid %s section: %w", col.Name, err)
		}

		if err := s.Clear(ctx, col.Name); err != nil {
			return err
		}

		err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			for _, item := range items {
				if err := importRecord(ctx, tx, col.Name, item); err != nil {
					return fmt.Errorf("importing into %s: %w", col.Name, err)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		s.log.Info(ctx, "collection imported", "collection", col.Name, "count", len(items))
	}

	return nil
}

func importRecord(ctx context.Context, tx dbx.DBTX, table string, item map[string]any) error {
	now := time.Now().UTC()
	rec := &models.Record{Fields: clonePayload(item), CreatedAt: now, UpdatedAt: now}
	if t, err := parseTime(item["created_at"]); err == nil {
		rec.CreatedAt = t
	}
	if t, err := parseTime(item["updated_at"]); err == nil {
		rec.UpdatedAt = t
	}
	if synced, ok := item["synced"].(bool); ok {
		rec.Synced = synced
	}

	id, hasID := numericID(item["id"])
	_, err := insertRecord(ctx, tx, table, rec, id, hasID)
	return err
}
