package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"qrgate/internal/config"
	"qrgate/internal/model"
)

// Store persists access events and can serve as the plate registry source.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	SaveEvent(ctx context.Context, ev model.AccessEvent) error
	ListEvents(ctx context.Context, limit int) ([]model.AccessEvent, error)
	LoadPlates(ctx context.Context) (map[string]string, error)
	UpsertPlate(ctx context.Context, plate, code string) error
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, errors.New("unsupported storage driver")
	}
}

// dialect carries the per-driver SQL; the access patterns are shared.
type dialect struct {
	schema      []string
	insertEvent string
	listEvents  string
	upsertPlate string
}

type baseStore struct {
	db *sql.DB
	d  dialect
}

func (b *baseStore) Init(ctx context.Context) error {
	if b.db == nil {
		return nil
	}
	for _, stmt := range b.d.schema {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func (b *baseStore) SaveEvent(ctx context.Context, ev model.AccessEvent) error {
	if b.db == nil {
		return nil
	}
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = nowUTC()
	}
	_, err := b.db.ExecContext(ctx, b.d.insertEvent,
		ev.ID,
		ts.UTC(),
		ev.Source,
		ev.Plate,
		string(ev.Status),
		ev.Granted,
		ev.Opened,
	)
	return err
}

func (b *baseStore) ListEvents(ctx context.Context, limit int) ([]model.AccessEvent, error) {
	if b.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := b.db.QueryContext(ctx, b.d.listEvents, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.AccessEvent, 0)
	for rows.Next() {
		var ev model.AccessEvent
		var status string
		var ts timeValue
		if err := rows.Scan(&ev.ID, &ts, &ev.Source, &ev.Plate, &status, &ev.Granted, &ev.Opened); err != nil {
			return nil, err
		}
		ev.Timestamp = ts.t
		ev.Status = model.Status(status)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (b *baseStore) LoadPlates(ctx context.Context) (map[string]string, error) {
	if b.db == nil {
		return map[string]string{}, nil
	}
	rows, err := b.db.QueryContext(ctx, `SELECT plate, code FROM plates`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var plate, code string
		if err := rows.Scan(&plate, &code); err != nil {
			return nil, err
		}
		out[strings.ToUpper(plate)] = code
	}
	return out, rows.Err()
}

func (b *baseStore) UpsertPlate(ctx context.Context, plate, code string) error {
	if b.db == nil {
		return nil
	}
	plate = strings.ToUpper(strings.TrimSpace(plate))
	if plate == "" {
		return errors.New("empty plate")
	}
	_, err := b.db.ExecContext(ctx, b.d.upsertPlate, plate, code)
	return err
}

// timeValue accepts the timestamp representations the drivers hand back.
type timeValue struct {
	t time.Time
}

func (v *timeValue) Scan(src any) error {
	switch x := src.(type) {
	case time.Time:
		v.t = x.UTC()
	case string:
		return v.parse(x)
	case []byte:
		return v.parse(string(x))
	case nil:
		v.t = time.Time{}
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
	return nil
}

func (v *timeValue) parse(s string) error {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05.999999999 -0700 MST"} {
		if t, err := time.Parse(layout, s); err == nil {
			v.t = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("unsupported timestamp format: %q", s)
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
