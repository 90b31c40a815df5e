package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/powens/tinyretro/internal/board"
)

const backendSQLite = "sqlite"

// SQLiteGateway stores the board as a JSON row in a SQLite database, one row
// per board id.
type SQLiteGateway struct {
	db      *sql.DB
	boardID string
}

// OpenSQLite opens (creating if needed) the database at path and ensures the
// boards table exists.
func OpenSQLite(ctx context.Context, path, boardID string) (*SQLiteGateway, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// The save loop is the only writer.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS boards (
		id text not null primary key,
		content text not null,
		updated_at text not null
		)`,
	); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create boards table: %w", err)
	}
	return &SQLiteGateway{db: db, boardID: boardID}, nil
}

// Load reads the board row. A missing row yields ErrNoDocument.
func (g *SQLiteGateway) Load(ctx context.Context) (*board.Board, error) {
	var content string
	err := g.db.QueryRowContext(ctx, `SELECT content FROM boards WHERE id = ?`, g.boardID).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoDocument
	}
	if err != nil {
		return nil, &PersistenceError{Op: "load", Backend: backendSQLite, Err: err}
	}

	b, err := decodeBoard([]byte(content))
	if err != nil {
		return nil, &PersistenceError{Op: "load", Backend: backendSQLite, Err: err}
	}
	return b, nil
}

// Save upserts the board row and stamps its update time.
func (g *SQLiteGateway) Save(ctx context.Context, b *board.Board) error {
	data, err := encodeBoard(b)
	if err != nil {
		return &PersistenceError{Op: "save", Backend: backendSQLite, Err: err}
	}
	if _, err := g.db.ExecContext(ctx,
		`INSERT INTO boards (id, content, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
		g.boardID, string(data), time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return &PersistenceError{Op: "save", Backend: backendSQLite, Err: err}
	}
	return nil
}

// Close closes the database.
func (g *SQLiteGateway) Close() error {
	return g.db.Close()
}
