package storage

import (
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	baseStore
}

var sqliteDialect = dialect{
	schema: []string{
		`CREATE TABLE IF NOT EXISTS access_events (
			id TEXT PRIMARY KEY,
			ts DATETIME NOT NULL,
			source TEXT NOT NULL,
			plate TEXT NOT NULL,
			status TEXT NOT NULL,
			granted BOOLEAN NOT NULL,
			opened BOOLEAN NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_access_events_ts ON access_events(ts)`,
		`CREATE TABLE IF NOT EXISTS plates (
			plate TEXT PRIMARY KEY,
			code TEXT NOT NULL
		)`,
	},
	insertEvent: `INSERT INTO access_events (id, ts, source, plate, status, granted, opened)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
	listEvents: `SELECT id, ts, source, plate, status, granted, opened
		FROM access_events ORDER BY ts DESC LIMIT ?`,
	upsertPlate: `INSERT INTO plates (plate, code) VALUES (?, ?)
		ON CONFLICT(plate) DO UPDATE SET code = excluded.code`,
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:qrgate.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db, d: sqliteDialect}}, nil
}
