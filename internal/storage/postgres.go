package storage

import (
	"database/sql"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type postgresStore struct {
	baseStore
}

var postgresDialect = dialect{
	schema: []string{
		`CREATE TABLE IF NOT EXISTS access_events (
			id UUID PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
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
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	listEvents: `SELECT id::text, ts, source, plate, status, granted, opened
		FROM access_events ORDER BY ts DESC LIMIT $1`,
	upsertPlate: `INSERT INTO plates (plate, code) VALUES ($1, $2)
		ON CONFLICT (plate) DO UPDATE SET code = EXCLUDED.code`,
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/qrgate?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db, d: postgresDialect}}, nil
}
