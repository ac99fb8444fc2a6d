package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/medbox/dispenser/core/model"
	corestore "github.com/medbox/dispenser/core/store"
)

// PlanStore persists dispense plans in the plans table.
type PlanStore struct {
	db *sql.DB
}

// Put inserts or replaces the plan.
func (s *PlanStore) Put(ctx context.Context, p model.DispensePlan) error {
	if err := p.Validate(); err != nil {
		return err
	}
	items, err := json.Marshal(p.Items)
	if err != nil {
		return err
	}
	days, err := json.Marshal(p.RecurringDays)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO plans
		 (id, kind, status, scheduled_at, time_of_day, recurring_days, items, dispensed_at, last_dispensed_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, string(p.Kind), string(p.Status), p.ScheduledAt.UnixNano(),
		p.TimeOfDay, string(days), string(items),
		nanosOrNull(p.DispensedAt), nanosOrNull(p.LastDispensedAt), p.CreatedAt.UnixNano())
	return err
}

// Get returns one plan by id.
func (s *PlanStore) Get(ctx context.Context, id string) (model.DispensePlan, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, status, scheduled_at, time_of_day, recurring_days, items, dispensed_at, last_dispensed_at, created_at
		 FROM plans WHERE id = ?`, id)
	p, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DispensePlan{}, corestore.ErrNotFound
	}
	return p, err
}

// FindDue returns all pending plans scheduled at or before now, ordered
// ascending by scheduled time.
func (s *PlanStore) FindDue(ctx context.Context, now time.Time) ([]model.DispensePlan, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, status, scheduled_at, time_of_day, recurring_days, items, dispensed_at, last_dispensed_at, created_at
		 FROM plans WHERE status = ? AND scheduled_at <= ? ORDER BY scheduled_at`,
		string(model.StatusPending), now.UnixNano())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var due []model.DispensePlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, p)
	}
	return due, rows.Err()
}

// SetStatus atomically updates one plan's status.
func (s *PlanStore) SetStatus(ctx context.Context, id string, status model.PlanStatus) error {
	return s.update(ctx, id, `UPDATE plans SET status = ? WHERE id = ?`, string(status), id)
}

// MarkDispensed completes a one-shot plan and stamps dispensedAt.
func (s *PlanStore) MarkDispensed(ctx context.Context, id string, at time.Time) error {
	return s.update(ctx, id,
		`UPDATE plans SET status = ?, dispensed_at = ? WHERE id = ?`,
		string(model.StatusCompleted), at.UnixNano(), id)
}

// Reschedule advances a recurring plan to its next occurrence.
func (s *PlanStore) Reschedule(ctx context.Context, id string, next, dispensedAt time.Time) error {
	return s.update(ctx, id,
		`UPDATE plans SET status = ?, scheduled_at = ?, last_dispensed_at = ? WHERE id = ?`,
		string(model.StatusPending), next.UnixNano(), dispensedAt.UnixNano(), id)
}

func (s *PlanStore) update(ctx context.Context, id, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("plan %s: %w", id, corestore.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(r rowScanner) (model.DispensePlan, error) {
	var (
		p                     model.DispensePlan
		kind, status          string
		daysRaw, itemsRaw     string
		scheduled, created    int64
		dispensed, lastDispNS sql.NullInt64
	)
	if err := r.Scan(&p.ID, &kind, &status, &scheduled, &p.TimeOfDay, &daysRaw, &itemsRaw, &dispensed, &lastDispNS, &created); err != nil {
		return model.DispensePlan{}, err
	}
	p.Kind = model.PlanKind(kind)
	p.Status = model.PlanStatus(status)
	p.ScheduledAt = time.Unix(0, scheduled)
	p.CreatedAt = time.Unix(0, created)
	if err := json.Unmarshal([]byte(daysRaw), &p.RecurringDays); err != nil {
		return model.DispensePlan{}, fmt.Errorf("unmarshal days: %w", err)
	}
	if err := json.Unmarshal([]byte(itemsRaw), &p.Items); err != nil {
		return model.DispensePlan{}, fmt.Errorf("unmarshal items: %w", err)
	}
	if dispensed.Valid {
		t := time.Unix(0, dispensed.Int64)
		p.DispensedAt = &t
	}
	if lastDispNS.Valid {
		t := time.Unix(0, lastDispNS.Int64)
		p.LastDispensedAt = &t
	}
	return p, nil
}

func nanosOrNull(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}
