package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/chriserin/ftr/internal/client"
)

// Compile-time check that Client implements client.Client.
var _ client.Client = (*Client)(nil)

var (
	ErrClosed          = errors.New("store client closed")
	ErrNoLaunchStarted = errors.New("no launch started")
)

// op is one queued write. It returns the id its handle resolves with.
type op struct {
	ctx    context.Context
	handle *client.Handle
	run    func(ctx context.Context) (string, error)
}

// Client writes reporting requests into the store. Requests are applied in
// call order by a single writer goroutine; each returned handle resolves once
// its row is written.
type Client struct {
	db     *sql.DB
	logger *log.Logger

	mu     sync.RWMutex
	closed bool
	ops    chan op
	done   chan struct{}

	// owned by the writer goroutine
	seq int

	stateMu  sync.Mutex
	launchID string
	firstErr error
}

func NewClient(sqlDB *sql.DB, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	c := &Client{
		db:     sqlDB,
		logger: logger,
		ops:    make(chan op, 256),
		done:   make(chan struct{}),
	}
	go c.writer()
	return c
}

func (c *Client) writer() {
	defer close(c.done)
	for o := range c.ops {
		id, err := o.run(o.ctx)
		if err != nil {
			c.logger.Error("store write failed", "err", err)
			c.stateMu.Lock()
			if c.firstErr == nil {
				c.firstErr = err
			}
			c.stateMu.Unlock()
		}
		o.handle.Resolve(id, err)
	}
}

func (c *Client) enqueue(ctx context.Context, run func(ctx context.Context) (string, error)) *client.Handle {
	h := client.NewHandle()
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		h.Resolve("", ErrClosed)
		return h
	}
	select {
	case c.ops <- op{ctx: ctx, handle: h, run: run}:
	case <-ctx.Done():
		h.Resolve("", ctx.Err())
	}
	return h
}

// Close stops accepting requests and waits until every queued write is done.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.ops)
	}
	c.mu.Unlock()

	select {
	case <-c.done:
		return c.Err()
	case <-ctx.Done():
		return fmt.Errorf("draining store writes: %w", ctx.Err())
	}
}

// Err returns the first write error, if any.
func (c *Client) Err() error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.firstErr
}

// LaunchID returns the id of the started launch, empty before StartLaunch is
// written.
func (c *Client) LaunchID() string {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.launchID
}

func (c *Client) currentLaunch() (string, error) {
	id := c.LaunchID()
	if id == "" {
		return "", ErrNoLaunchStarted
	}
	return id, nil
}

func (c *Client) StartLaunch(ctx context.Context, rq client.StartLaunchRQ) *client.Handle {
	return c.enqueue(ctx, func(ctx context.Context) (string, error) {
		id := uuid.NewString()
		tx, err := c.db.BeginTx(ctx, nil)
		if err != nil {
			return "", fmt.Errorf("beginning launch: %w", err)
		}
		defer tx.Rollback()

		_, err = tx.ExecContext(ctx,
			`INSERT INTO launches (id, name, description, mode, rerun, rerun_of, start_time) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, rq.Name, rq.Description, rq.Mode, boolInt(rq.Rerun), rq.RerunOf, formatTime(rq.StartTime))
		if err != nil {
			return "", fmt.Errorf("inserting launch: %w", err)
		}
		if err := insertAttributes(ctx, tx, id, rq.Attributes); err != nil {
			return "", err
		}
		if err := tx.Commit(); err != nil {
			return "", fmt.Errorf("committing launch: %w", err)
		}

		c.stateMu.Lock()
		c.launchID = id
		c.stateMu.Unlock()
		c.logger.Debug("launch stored", "id", id, "name", rq.Name)
		return id, nil
	})
}

func (c *Client) StartItem(ctx context.Context, parent *client.Handle, rq client.StartItemRQ) *client.Handle {
	return c.enqueue(ctx, func(ctx context.Context) (string, error) {
		launchID, err := c.currentLaunch()
		if err != nil {
			return "", err
		}
		var parentID sql.NullString
		if parent != nil {
			pid, err := parent.Wait(ctx)
			if err != nil {
				return "", fmt.Errorf("parent of %q: %w", rq.Name, err)
			}
			parentID = sql.NullString{String: pid, Valid: true}
		}

		id := uuid.NewString()
		c.seq++
		tx, err := c.db.BeginTx(ctx, nil)
		if err != nil {
			return "", fmt.Errorf("beginning item: %w", err)
		}
		defer tx.Rollback()

		_, err = tx.ExecContext(ctx, `
			INSERT INTO items (id, launch_id, parent_id, seq, name, description, type, code_ref,
				test_case_id, test_case_hash, has_stats, start_time)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, launchID, parentID, c.seq, rq.Name, rq.Description, string(rq.Type), rq.CodeRef,
			rq.TestCaseID, int64(rq.TestCaseHash), boolInt(rq.HasStats), formatTime(rq.StartTime))
		if err != nil {
			return "", fmt.Errorf("inserting item %q: %w", rq.Name, err)
		}
		if err := insertAttributes(ctx, tx, id, rq.Attributes); err != nil {
			return "", err
		}
		for _, p := range rq.Parameters {
			if _, err := tx.ExecContext(ctx, `INSERT INTO item_parameters (item_id, key, value) VALUES (?, ?, ?)`, id, p.Key, p.Value); err != nil {
				return "", fmt.Errorf("inserting parameter %s: %w", p.Key, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return "", fmt.Errorf("committing item %q: %w", rq.Name, err)
		}
		return id, nil
	})
}

// FinishItem stores the end time and status. An empty status is derived from
// the item's children.
func (c *Client) FinishItem(ctx context.Context, item *client.Handle, rq client.FinishItemRQ) *client.Handle {
	return c.enqueue(ctx, func(ctx context.Context) (string, error) {
		id, err := item.Wait(ctx)
		if err != nil {
			return "", err
		}
		status := rq.Status
		if status == "" {
			status, err = c.deriveStatus(ctx, `SELECT status FROM items WHERE parent_id = ?`, id)
			if err != nil {
				return "", err
			}
		}

		query := `UPDATE items SET end_time = ?, status = ? WHERE id = ?`
		args := []any{formatTime(rq.EndTime), string(status), id}
		if rq.Description != "" {
			query = `UPDATE items SET end_time = ?, status = ?, description = ? WHERE id = ?`
			args = []any{formatTime(rq.EndTime), string(status), rq.Description, id}
		}
		res, err := c.db.ExecContext(ctx, query, args...)
		if err != nil {
			return "", fmt.Errorf("finishing item %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return "", fmt.Errorf("%w: %s", client.ErrUnknownItem, id)
		}
		return id, nil
	})
}

// FinishLaunch closes the launch. An empty status is derived from the
// top-level items.
func (c *Client) FinishLaunch(ctx context.Context, rq client.FinishExecutionRQ) *client.Handle {
	return c.enqueue(ctx, func(ctx context.Context) (string, error) {
		id, err := c.currentLaunch()
		if err != nil {
			return "", err
		}
		status := rq.Status
		if status == "" {
			status, err = c.deriveStatus(ctx, `SELECT status FROM items WHERE launch_id = ? AND parent_id IS NULL`, id)
			if err != nil {
				return "", err
			}
		}
		if _, err := c.db.ExecContext(ctx, `UPDATE launches SET end_time = ?, status = ? WHERE id = ?`,
			formatTime(rq.EndTime), string(status), id); err != nil {
			return "", fmt.Errorf("finishing launch: %w", err)
		}
		c.logger.Debug("launch finished", "id", id, "status", status)
		return id, nil
	})
}

func (c *Client) Log(ctx context.Context, rq client.LogRQ) {
	c.enqueue(ctx, func(ctx context.Context) (string, error) {
		launchID, err := c.currentLaunch()
		if err != nil {
			return "", err
		}
		var itemID sql.NullString
		if rq.Item != nil {
			id, err := rq.Item.Wait(ctx)
			if err != nil {
				return "", fmt.Errorf("log target: %w", err)
			}
			itemID = sql.NullString{String: id, Valid: true}
		}

		var name, mimeType string
		var data []byte
		if a := rq.Attachment; a != nil {
			name, mimeType, data = a.Name, a.MimeType, a.Data
		}
		_, err = c.db.ExecContext(ctx, `
			INSERT INTO logs (launch_id, item_id, time, level, message, attachment_name, attachment_mime, attachment)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			launchID, itemID, formatTime(rq.Time), string(rq.Level), rq.Message, name, mimeType, data)
		if err != nil {
			return "", fmt.Errorf("inserting log: %w", err)
		}
		return "", nil
	})
}

// deriveStatus folds child statuses: any failure fails, any pass passes,
// otherwise skipped. No children counts as passed.
func (c *Client) deriveStatus(ctx context.Context, query string, arg string) (client.Status, error) {
	rows, err := c.db.QueryContext(ctx, query, arg)
	if err != nil {
		return "", fmt.Errorf("reading child statuses: %w", err)
	}
	defer rows.Close()

	var seen, passed, failed bool
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return "", fmt.Errorf("scanning child status: %w", err)
		}
		seen = true
		switch client.Status(s) {
		case client.StatusFailed:
			failed = true
		case client.StatusPassed:
			passed = true
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	switch {
	case failed:
		return client.StatusFailed, nil
	case passed || !seen:
		return client.StatusPassed, nil
	default:
		return client.StatusSkipped, nil
	}
}

func insertAttributes(ctx context.Context, tx *sql.Tx, ownerID string, attrs []client.Attribute) error {
	for _, a := range attrs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO item_attributes (item_id, key, value, system) VALUES (?, ?, ?, ?)`,
			ownerID, a.Key, a.Value, boolInt(a.System)); err != nil {
			return fmt.Errorf("inserting attribute %s: %w", a.Value, err)
		}
	}
	return nil
}
