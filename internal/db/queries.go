package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNoLaunches      = errors.New("no launches recorded")
	ErrLaunchNotFound  = errors.New("launch not found")
	ErrAmbiguousLaunch = errors.New("launch id prefix is ambiguous")
)

type LaunchRow struct {
	ID     string
	Name   string
	Mode   string
	Status string
	Start  time.Time
	End    time.Time
	Items  int
}

type ItemRow struct {
	ID       string
	ParentID string
	Name     string
	Type     string
	Status   string
	CodeRef  string
	HasStats bool
	Depth    int
	Start    time.Time
	End      time.Time
}

type StatusCount struct {
	Type   string
	Status string
	Count  int
}

type LogRow struct {
	ItemID         string
	Time           time.Time
	Level          string
	Message        string
	AttachmentName string
	AttachmentMIME string
}

const launchColumns = `
	SELECT l.id, l.name, l.mode, l.status, l.start_time, l.end_time,
		(SELECT COUNT(*) FROM items i WHERE i.launch_id = l.id)
	FROM launches l`

func scanLaunch(s interface{ Scan(...any) error }) (LaunchRow, error) {
	var r LaunchRow
	var start, end string
	if err := s.Scan(&r.ID, &r.Name, &r.Mode, &r.Status, &start, &end, &r.Items); err != nil {
		return LaunchRow{}, err
	}
	r.Start, r.End = parseTime(start), parseTime(end)
	return r, nil
}

// ListLaunches returns all launches, newest first.
func ListLaunches(ctx context.Context, sqlDB *sql.DB) ([]LaunchRow, error) {
	rows, err := sqlDB.QueryContext(ctx, launchColumns+` ORDER BY l.start_time DESC, l.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying launches: %w", err)
	}
	defer rows.Close()

	var out []LaunchRow
	for rows.Next() {
		r, err := scanLaunch(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning launch: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func LatestLaunch(ctx context.Context, sqlDB *sql.DB) (LaunchRow, error) {
	r, err := scanLaunch(sqlDB.QueryRowContext(ctx, launchColumns+` ORDER BY l.start_time DESC, l.created_at DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return LaunchRow{}, ErrNoLaunches
	}
	if err != nil {
		return LaunchRow{}, fmt.Errorf("querying latest launch: %w", err)
	}
	return r, nil
}

// FindLaunch looks a launch up by its id or a unique id prefix.
func FindLaunch(ctx context.Context, sqlDB *sql.DB, idOrPrefix string) (LaunchRow, error) {
	rows, err := sqlDB.QueryContext(ctx, launchColumns+` WHERE l.id LIKE ? || '%' ORDER BY l.id LIMIT 2`, idOrPrefix)
	if err != nil {
		return LaunchRow{}, fmt.Errorf("querying launch: %w", err)
	}
	defer rows.Close()

	var found []LaunchRow
	for rows.Next() {
		r, err := scanLaunch(rows)
		if err != nil {
			return LaunchRow{}, fmt.Errorf("scanning launch: %w", err)
		}
		if r.ID == idOrPrefix {
			return r, nil
		}
		found = append(found, r)
	}
	if err := rows.Err(); err != nil {
		return LaunchRow{}, err
	}
	switch len(found) {
	case 0:
		return LaunchRow{}, fmt.Errorf("%w: %s", ErrLaunchNotFound, idOrPrefix)
	case 1:
		return found[0], nil
	default:
		return LaunchRow{}, fmt.Errorf("%w: %s", ErrAmbiguousLaunch, idOrPrefix)
	}
}

// LaunchItems returns the launch's items depth-first, siblings in start order.
func LaunchItems(ctx context.Context, sqlDB *sql.DB, launchID string) ([]ItemRow, error) {
	rows, err := sqlDB.QueryContext(ctx, `
		WITH RECURSIVE tree(id, depth, path) AS (
			SELECT id, 0, printf('%010d', seq) FROM items
			WHERE launch_id = ? AND parent_id IS NULL
			UNION ALL
			SELECT i.id, t.depth + 1, t.path || '/' || printf('%010d', i.seq)
			FROM items i JOIN tree t ON i.parent_id = t.id
		)
		SELECT i.id, COALESCE(i.parent_id, ''), i.name, i.type, i.status, i.code_ref,
			i.has_stats, t.depth, i.start_time, i.end_time
		FROM tree t JOIN items i ON i.id = t.id
		ORDER BY t.path
	`, launchID)
	if err != nil {
		return nil, fmt.Errorf("querying items: %w", err)
	}
	defer rows.Close()

	var out []ItemRow
	for rows.Next() {
		var r ItemRow
		var hasStats int
		var start, end string
		if err := rows.Scan(&r.ID, &r.ParentID, &r.Name, &r.Type, &r.Status, &r.CodeRef,
			&hasStats, &r.Depth, &start, &end); err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		r.HasStats = hasStats == 1
		r.Start, r.End = parseTime(start), parseTime(end)
		out = append(out, r)
	}
	return out, rows.Err()
}

// StatusCounts counts the items that carry statistics, by type and status.
// Unfinished items are counted under "in-progress".
func StatusCounts(ctx context.Context, sqlDB *sql.DB, launchID string) ([]StatusCount, error) {
	rows, err := sqlDB.QueryContext(ctx, `
		SELECT type, CASE WHEN status = '' THEN 'in-progress' ELSE status END AS st, COUNT(*) AS cnt
		FROM items
		WHERE launch_id = ? AND has_stats = 1
		GROUP BY type, st
		ORDER BY MIN(seq), cnt DESC
	`, launchID)
	if err != nil {
		return nil, fmt.Errorf("querying status counts: %w", err)
	}
	defer rows.Close()

	var out []StatusCount
	for rows.Next() {
		var c StatusCount
		if err := rows.Scan(&c.Type, &c.Status, &c.Count); err != nil {
			return nil, fmt.Errorf("scanning status row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// LaunchLogs returns the launch's logs in time order, without attachment data.
func LaunchLogs(ctx context.Context, sqlDB *sql.DB, launchID string) ([]LogRow, error) {
	rows, err := sqlDB.QueryContext(ctx, `
		SELECT COALESCE(item_id, ''), time, level, message, attachment_name, attachment_mime
		FROM logs WHERE launch_id = ? ORDER BY id
	`, launchID)
	if err != nil {
		return nil, fmt.Errorf("querying logs: %w", err)
	}
	defer rows.Close()

	var out []LogRow
	for rows.Next() {
		var r LogRow
		var at string
		if err := rows.Scan(&r.ItemID, &at, &r.Level, &r.Message, &r.AttachmentName, &r.AttachmentMIME); err != nil {
			return nil, fmt.Errorf("scanning log: %w", err)
		}
		r.Time = parseTime(at)
		out = append(out, r)
	}
	return out, rows.Err()
}
