package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/username/deskchat/internal/domain/ports"
	"github.com/username/deskchat/internal/pkg/constants"
	"github.com/username/deskchat/internal/pkg/dbutil"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const maxWriteRetries = 3

// Journal implements the JournalPort interface using SQLite
type Journal struct {
	db  *sql.DB
	w   *dbutil.Wrapper
	now func() time.Time
}

var _ ports.JournalPort = (*Journal)(nil)

// NewJournal opens (creating if needed) the journal database at dbPath
func NewJournal(dbPath string) (*Journal, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(constants.DatabaseMaxOpenConns)
	db.SetMaxIdleConns(constants.DatabaseMaxIdleConns)
	db.SetConnMaxLifetime(constants.DatabaseConnMaxLifetime)

	return &Journal{
		db:  db,
		w:   dbutil.NewWrapper(db, constants.DatabaseTimeout),
		now: time.Now,
	}, nil
}

// Migrate applies embedded migrations that have not run yet
func (j *Journal) Migrate(ctx context.Context) error {
	_, err := j.w.ExecQuery(ctx, `
		CREATE TABLE IF NOT EXISTS `+constants.MigrationsTableName+` (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied := make(map[string]bool)
	err = j.w.QueryEach(ctx, "SELECT version FROM "+constants.MigrationsTableName, func(rows *sql.Rows) error {
		var version string
		if err := rows.Scan(&version); err != nil {
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to query applied migrations: %w", err)
	}

	files, err := fs.Glob(migrationFiles, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		version := strings.TrimSuffix(path.Base(file), ".sql")
		if applied[version] {
			continue
		}

		content, err := migrationFiles.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}

		err = j.w.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, string(content)); err != nil {
				return fmt.Errorf("failed to execute migration %s: %w", version, err)
			}
			if _, err := tx.ExecContext(ctx, "INSERT INTO "+constants.MigrationsTableName+" (version) VALUES (?)", version); err != nil {
				return fmt.Errorf("failed to record migration %s: %w", version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// Record appends an event
func (j *Journal) Record(ctx context.Context, eventType string, payload map[string]any) error {
	if payload == nil {
		payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	id := uuid.NewString()
	createdAt := j.now().UTC().Format(time.RFC3339Nano)

	err = j.w.SaveWithRetry(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO events (id, event_type, payload, created_at) VALUES (?, ?, ?, ?)`,
			id, eventType, string(payloadJSON), createdAt)
		return err
	}, maxWriteRetries)
	if err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}
	return nil
}

// Events returns up to limit events, newest first
func (j *Journal) Events(ctx context.Context, eventType string, limit int) ([]ports.Event, error) {
	if limit <= 0 || limit > constants.MaxQueryLimit {
		limit = constants.DefaultQueryLimit
	}

	query := `SELECT id, event_type, payload, created_at FROM events`
	args := []any{}
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, eventType)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	events := []ports.Event{}
	err := j.w.QueryEach(ctx, query, func(rows *sql.Rows) error {
		var (
			event       ports.Event
			payloadJSON string
			createdAt   string
		)
		if err := rows.Scan(&event.ID, &event.EventType, &payloadJSON, &createdAt); err != nil {
			return fmt.Errorf("failed to scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(payloadJSON), &event.Payload); err != nil {
			return fmt.Errorf("failed to unmarshal event payload: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return fmt.Errorf("failed to parse event time: %w", err)
		}
		event.CreatedAt = t
		events = append(events, event)
		return nil
	}, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	return events, nil
}

// Ping checks database connectivity
func (j *Journal) Ping(ctx context.Context) error {
	return j.w.PingWithTimeout(ctx)
}

// Close closes the database connection
func (j *Journal) Close() error {
	return j.db.Close()
}
