// Package journal is the outbox for completed orders. Every completion is
// written here before it is sent to the kitchen, so orders survive an
// unreachable orders API and are resubmitted on the next start.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/vango-go/vai-kiosk/pkg/core"
	"github.com/vango-go/vai-kiosk/pkg/order"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Status is the delivery state of a journal entry.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSubmitted Status = "submitted"
)

// Entry is one journaled completion.
type Entry struct {
	ID         string
	Completion order.Completion
	Status     Status
	OrderID    string
	Attempts   int
	LastError  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Options configures Open.
type Options struct {
	Logger *slog.Logger
	Now    func() time.Time
}

// Journal stores completions in SQLite or Postgres.
type Journal struct {
	db       *sql.DB
	postgres bool
	logger   *slog.Logger
	now      func() time.Time
}

// Open connects to dsn and applies migrations. postgres:// and
// postgresql:// DSNs use pgx; anything else is a SQLite path, optionally
// prefixed with sqlite://.
func Open(ctx context.Context, dsn string, opts Options) (*Journal, error) {
	driver, source, dialect, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, core.NewPersistenceError("open journal", err)
	}
	if driver == "sqlite" {
		// A single connection keeps in-memory databases shared and writes
		// serialized.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
			db.Close()
			return nil, core.NewPersistenceError("configure journal", err)
		}
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, core.NewPersistenceError("connect journal", err)
	}
	if err := migrate(ctx, db, dialect); err != nil {
		db.Close()
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Journal{db: db, postgres: driver == "pgx", logger: logger, now: now}, nil
}

func parseDSN(dsn string) (driver, source string, dialect goose.Dialect, err error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return "", "", "", core.NewInvalidRequestError("journal dsn is empty")
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "pgx", dsn, goose.DialectPostgres, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return "sqlite", strings.TrimPrefix(dsn, "sqlite://"), goose.DialectSQLite3, nil
	default:
		return "sqlite", dsn, goose.DialectSQLite3, nil
	}
}

func migrate(ctx context.Context, db *sql.DB, dialect goose.Dialect) error {
	fsys, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return core.NewPersistenceError("load journal migrations", err)
	}
	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return core.NewPersistenceError("prepare journal migrations", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return core.NewPersistenceError("apply journal migrations", err)
	}
	return nil
}

// Close releases the database.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Append journals c as pending.
func (j *Journal) Append(ctx context.Context, c order.Completion) (Entry, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return Entry{}, core.NewPersistenceError("encode completion", err)
	}
	now := j.now()
	e := Entry{
		ID:         uuid.NewString(),
		Completion: c,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err = j.db.ExecContext(ctx, j.rebind(
		`INSERT INTO kitchen_orders (id, payload, total, language, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		e.ID, string(payload), c.Total, c.Language, string(e.Status), now.UnixNano(), now.UnixNano(),
	)
	if err != nil {
		return Entry{}, core.NewPersistenceError("append journal entry", err)
	}
	j.logger.Debug("completion journaled", "id", e.ID, "lines", len(c.Items))
	return e, nil
}

// Pending returns entries not yet accepted by the kitchen, oldest first.
func (j *Journal) Pending(ctx context.Context) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, j.rebind(
		`SELECT id, payload, status, order_id, attempts, last_error, created_at, updated_at
		 FROM kitchen_orders WHERE status = ? ORDER BY created_at, id`),
		string(StatusPending),
	)
	if err != nil {
		return nil, core.NewPersistenceError("query pending journal entries", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewPersistenceError("read pending journal entries", err)
	}
	return out, nil
}

// Get returns the entry with id.
func (j *Journal) Get(ctx context.Context, id string) (Entry, error) {
	row := j.db.QueryRowContext(ctx, j.rebind(
		`SELECT id, payload, status, order_id, attempts, last_error, created_at, updated_at
		 FROM kitchen_orders WHERE id = ?`), id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, core.NewPersistenceError(fmt.Sprintf("journal entry %s not found", id), err)
	}
	return e, err
}

// MarkSubmitted records that the kitchen accepted id as orderID.
func (j *Journal) MarkSubmitted(ctx context.Context, id, orderID string) error {
	return j.update(ctx, id,
		`UPDATE kitchen_orders SET status = ?, order_id = ?, attempts = attempts + 1, last_error = '', updated_at = ?
		 WHERE id = ?`,
		string(StatusSubmitted), orderID, j.now().UnixNano(), id,
	)
}

// MarkFailed records a failed delivery attempt; the entry stays pending.
func (j *Journal) MarkFailed(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return j.update(ctx, id,
		`UPDATE kitchen_orders SET attempts = attempts + 1, last_error = ?, updated_at = ?
		 WHERE id = ?`,
		msg, j.now().UnixNano(), id,
	)
}

func (j *Journal) update(ctx context.Context, id, query string, args ...any) error {
	res, err := j.db.ExecContext(ctx, j.rebind(query), args...)
	if err != nil {
		return core.NewPersistenceError("update journal entry", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.NewPersistenceError("update journal entry", err)
	}
	if n == 0 {
		return core.NewPersistenceError(fmt.Sprintf("journal entry %s not found", id), nil)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e                Entry
		payload, status  string
		created, updated int64
	)
	if err := s.Scan(&e.ID, &payload, &status, &e.OrderID, &e.Attempts, &e.LastError, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, core.NewPersistenceError("scan journal entry", err)
	}
	if err := json.Unmarshal([]byte(payload), &e.Completion); err != nil {
		return Entry{}, core.NewPersistenceError("decode journal entry "+e.ID, err)
	}
	e.Status = Status(status)
	e.CreatedAt = time.Unix(0, created)
	e.UpdatedAt = time.Unix(0, updated)
	return e, nil
}

// rebind rewrites ? placeholders to $N for Postgres.
func (j *Journal) rebind(query string) string {
	if !j.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
