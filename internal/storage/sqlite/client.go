package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/sortdesk/client/internal/dispatcher"
	"github.com/sortdesk/client/internal/storage/models"
	"github.com/sortdesk/client/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS decisions (
		id TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		accept INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		detail TEXT,
		moved_to TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_decisions_path ON decisions(path);
	CREATE INDEX IF NOT EXISTS idx_decisions_created ON decisions(created_at);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertDecision(ctx context.Context, record *models.DecisionRecord) error {
	query := `
		INSERT INTO decisions (id, path, accept, outcome, detail, moved_to, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	accept := 0
	if record.Accept {
		accept = 1
	}

	_, err := c.db.ExecContext(ctx,
		query,
		record.ID,
		record.Path,
		accept,
		record.Outcome,
		record.Detail,
		record.MovedTo,
		record.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert decision: %w", err)
	}

	logger.Debug("Decision recorded",
		zap.String("decision_id", record.ID),
		zap.String("path", record.Path),
		zap.String("outcome", record.Outcome),
	)
	return nil
}

// RecordDecision journals a dispatcher outcome.
func (c *Client) RecordDecision(ctx context.Context, o dispatcher.Outcome, at time.Time) error {
	return c.InsertDecision(ctx, &models.DecisionRecord{
		ID:        uuid.NewString(),
		Path:      o.Path,
		Accept:    o.Accept,
		Outcome:   o.Status,
		Detail:    o.Detail,
		MovedTo:   o.MovedTo,
		CreatedAt: at,
	})
}

func (c *Client) RecentDecisions(ctx context.Context, limit int) ([]models.DecisionRecord, error) {
	query := `
		SELECT id, path, accept, outcome, COALESCE(detail, ''), COALESCE(moved_to, ''), created_at
		FROM decisions
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := c.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get decisions: %w", err)
	}
	defer rows.Close()

	var records []models.DecisionRecord
	for rows.Next() {
		var r models.DecisionRecord
		var accept int
		var createdAt int64

		err := rows.Scan(&r.ID, &r.Path, &accept, &r.Outcome, &r.Detail, &r.MovedTo, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.Accept = accept == 1
		r.CreatedAt = time.Unix(0, createdAt)
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate decisions: %w", err)
	}

	return records, nil
}

func (c *Client) OutcomeCounts(ctx context.Context) ([]models.OutcomeCount, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM decisions GROUP BY outcome ORDER BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("failed to count outcomes: %w", err)
	}
	defer rows.Close()

	var counts []models.OutcomeCount
	for rows.Next() {
		var oc models.OutcomeCount
		if err := rows.Scan(&oc.Outcome, &oc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		counts = append(counts, oc)
	}
	return counts, rows.Err()
}
