package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/medbox/dispenser/core/model"
	corestore "github.com/medbox/dispenser/core/store"
)

// HistoryStore appends immutable dispense audit records. Records are stored
// as JSON documents indexed by timestamp, origin and outcome.
type HistoryStore struct {
	db *sql.DB
}

// Append writes one record. History is append-only; existing rows are never
// touched.
func (s *HistoryStore) Append(ctx context.Context, rec model.HistoryRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO history (id, ts, origin, outcome, record) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.Timestamp.UnixNano(), string(rec.Origin), string(rec.Outcome), string(b))
	return err
}

// Query returns records matching q, ordered by timestamp.
func (s *HistoryStore) Query(ctx context.Context, q corestore.HistoryQuery) ([]model.HistoryRecord, error) {
	query := `SELECT record FROM history WHERE 1=1`
	var args []any
	if !q.Start.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, q.Start.UnixNano())
	}
	if !q.End.IsZero() {
		query += ` AND ts <= ?`
		args = append(args, q.End.UnixNano())
	}
	if q.Origin != "" {
		query += ` AND origin = ?`
		args = append(args, string(q.Origin))
	}
	if q.Outcome != "" {
		query += ` AND outcome = ?`
		args = append(args, string(q.Outcome))
	}
	query += ` ORDER BY ts`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.HistoryRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r model.HistoryRecord
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
		res = append(res, r)
	}
	return res, rows.Err()
}
