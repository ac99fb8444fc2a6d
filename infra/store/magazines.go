package store

import (
	"context"
	"database/sql"

	"github.com/medbox/dispenser/core/model"
)

// MagazineStore describes the device's physical magazine slots.
type MagazineStore struct {
	db *sql.DB
}

// Seed inserts the given magazines if the collection is empty; an already
// initialized installation is left untouched.
func (s *MagazineStore) Seed(ctx context.Context, mags []model.Magazine) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM magazines`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, m := range mags {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO magazines (id, name, type, percentage, color) VALUES (?, ?, ?, ?, ?)`,
			m.ID, m.Name, m.Type, m.Percentage, m.Color); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// List returns all magazines ordered by slot id.
func (s *MagazineStore) List(ctx context.Context) ([]model.Magazine, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, type, percentage, color FROM magazines ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var mags []model.Magazine
	for rows.Next() {
		var m model.Magazine
		if err := rows.Scan(&m.ID, &m.Name, &m.Type, &m.Percentage, &m.Color); err != nil {
			return nil, err
		}
		mags = append(mags, m)
	}
	return mags, rows.Err()
}
