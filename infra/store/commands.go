package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/medbox/dispenser/core/model"
	corestore "github.com/medbox/dispenser/core/store"
)

const (
	watchBuffer = 16
	// watchPollInterval bounds how long a row inserted by another process
	// stays unseen.
	watchPollInterval = time.Second
)

// CommandStore holds ad-hoc dispense commands until the ingestion bridge
// consumes them. Watch mirrors a child-added subscription: every unconsumed
// row is replayed once at watch start, then inserts stream live. There is
// no delivery marker; a record that survives a crash is replayed.
type CommandStore struct {
	db *sql.DB

	mu   sync.Mutex
	subs []chan model.AdHocCommand
}

func newCommandStore(db *sql.DB) *CommandStore {
	return &CommandStore{db: db}
}

// Add inserts the command and notifies live watchers. Notification is best
// effort; a watcher that missed it still sees the row on its next replay.
func (s *CommandStore) Add(ctx context.Context, cmd model.AdHocCommand) error {
	if err := model.ValidateItems(cmd.Items); err != nil {
		return err
	}
	items, err := json.Marshal(cmd.Items)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO commands (id, created_at, requester, items) VALUES (?, ?, ?, ?)`,
		cmd.ID, cmd.CreatedAt.UnixNano(), cmd.Requester, string(items)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- cmd:
		default:
		}
	}
	return nil
}

// Delete removes one consumed command.
func (s *CommandStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM commands WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("command %s: %w", id, corestore.ErrNotFound)
	}
	return nil
}

// Watch returns a channel that first replays every stored command in
// insertion order, then delivers commands as they are added. Same-process
// inserts arrive through the subscriber feed; inserts from other processes
// (the dispense subcommand opens the database file directly) are picked up
// by a periodic re-scan of the table. The channel is closed when ctx is
// done.
func (s *CommandStore) Watch(ctx context.Context) (<-chan model.AdHocCommand, error) {
	sub := make(chan model.AdHocCommand, watchBuffer)
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	existing, err := s.list(ctx)
	if err != nil {
		s.unsubscribe(sub)
		return nil, err
	}

	out := make(chan model.AdHocCommand, watchBuffer)
	go func() {
		defer close(out)
		defer s.unsubscribe(sub)

		// A command can reach the watcher more than once: replay plus live
		// feed, or live feed plus poll. Every path funnels through deliver,
		// which forwards each id at most once.
		delivered := make(map[string]bool, len(existing))
		deliver := func(cmd model.AdHocCommand) bool {
			if delivered[cmd.ID] {
				return true
			}
			select {
			case out <- cmd:
				delivered[cmd.ID] = true
				return true
			case <-ctx.Done():
				return false
			}
		}

		for _, cmd := range existing {
			if !deliver(cmd) {
				return
			}
		}

		ticker := time.NewTicker(watchPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case cmd := <-sub:
				if !deliver(cmd) {
					return
				}
			case <-ticker.C:
				rows, err := s.list(ctx)
				if err != nil {
					continue
				}
				present := make(map[string]bool, len(rows))
				for _, cmd := range rows {
					present[cmd.ID] = true
					if !deliver(cmd) {
						return
					}
				}
				// Consumed rows are deleted from the table; forget their
				// ids so the delivered set does not grow without bound.
				for id := range delivered {
					if !present[id] {
						delete(delivered, id)
					}
				}
			}
		}
	}()
	return out, nil
}

func (s *CommandStore) list(ctx context.Context) ([]model.AdHocCommand, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, requester, items FROM commands ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var cmds []model.AdHocCommand
	for rows.Next() {
		var (
			cmd     model.AdHocCommand
			created int64
			items   string
		)
		if err := rows.Scan(&cmd.ID, &created, &cmd.Requester, &items); err != nil {
			return nil, err
		}
		cmd.CreatedAt = time.Unix(0, created)
		if err := json.Unmarshal([]byte(items), &cmd.Items); err != nil {
			return nil, fmt.Errorf("unmarshal items: %w", err)
		}
		cmds = append(cmds, cmd)
	}
	return cmds, rows.Err()
}

func (s *CommandStore) unsubscribe(sub chan model.AdHocCommand) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, ch := range s.subs {
		if ch == sub {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return
		}
	}
}
