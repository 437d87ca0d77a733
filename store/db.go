package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DB holds match statistics. Nothing in it is used to restore a match.
type DB struct {
	conn *sql.DB
}

// ScoreRow is one finished or running play session on the leaderboard.
type ScoreRow struct {
	Name     string    `json:"name"`
	Score    int       `json:"score"`
	Kills    int       `json:"kills"`
	Deaths   int       `json:"deaths"`
	JoinedAt time.Time `json:"joined_at"`
	Online   bool      `json:"online"`
}

// Open opens (or creates) the SQLite database at path.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// single writer; avoids SQLITE_BUSY between the recorder and queries
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conn_id TEXT NOT NULL UNIQUE,
		tank_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		score INTEGER NOT NULL DEFAULT 0,
		kills INTEGER NOT NULL DEFAULT 0,
		deaths INTEGER NOT NULL DEFAULT 0,
		joined_at TEXT NOT NULL,
		left_at TEXT
	);

	CREATE TABLE IF NOT EXISTS kills (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		shooter_conn TEXT NOT NULL,
		victim_conn TEXT NOT NULL,
		beam INTEGER NOT NULL DEFAULT 0,
		tick INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_score ON sessions(score DESC);
	`
	if _, err := db.conn.Exec(schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Leaderboard returns the best sessions by score, then kills.
func (db *DB) Leaderboard(limit int) ([]ScoreRow, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.conn.Query(`
		SELECT name, score, kills, deaths, joined_at, left_at IS NULL
		FROM sessions
		ORDER BY score DESC, kills DESC, id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	defer rows.Close()

	var out []ScoreRow
	for rows.Next() {
		var r ScoreRow
		var joined string
		if err := rows.Scan(&r.Name, &r.Score, &r.Kills, &r.Deaths, &joined, &r.Online); err != nil {
			return nil, fmt.Errorf("leaderboard scan: %w", err)
		}
		r.JoinedAt, _ = time.Parse(time.RFC3339, joined)
		out = append(out, r)
	}
	return out, rows.Err()
}

// KillCount returns the number of recorded kills.
func (db *DB) KillCount() (int, error) {
	var n int
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM kills`).Scan(&n)
	return n, err
}
