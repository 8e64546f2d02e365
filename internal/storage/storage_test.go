package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"qrgate/internal/config"
	"qrgate/internal/model"
)

func newSQLiteForTest(t *testing.T) Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "qrgate.db") + "?_pragma=busy_timeout(5000)"
	s, err := NewSQLite(dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return s
}

func TestNewStoreDisabled(t *testing.T) {
	s, err := NewStore(config.StorageConfig{Enabled: false})
	if err != nil || s != nil {
		t.Fatalf("disabled storage must return nil store, got %v %v", s, err)
	}
	if _, err := NewStore(config.StorageConfig{Enabled: true, Driver: "mysql"}); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
}

func TestSQLiteEvents(t *testing.T) {
	s := newSQLiteForTest(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	events := []model.AccessEvent{
		{ID: "a", Timestamp: base, Source: "camera", Plate: "ABC123", Status: model.StatusValid, Granted: true, Opened: true},
		{ID: "b", Timestamp: base.Add(time.Second), Source: "rest", Plate: "ABC123", Status: model.StatusExpired},
	}
	for _, ev := range events {
		if err := s.SaveEvent(ctx, ev); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	got, err := s.ListEvents(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].ID != "b" || got[0].Status != model.StatusExpired || got[0].Granted {
		t.Fatalf("unexpected newest event %+v", got[0])
	}
	if got[1].ID != "a" || !got[1].Granted || !got[1].Opened || got[1].Source != "camera" {
		t.Fatalf("unexpected oldest event %+v", got[1])
	}
	if !got[1].Timestamp.Equal(base) {
		t.Fatalf("timestamp mismatch: %s", got[1].Timestamp)
	}
}

func TestSQLitePlates(t *testing.T) {
	s := newSQLiteForTest(t)
	ctx := context.Background()
	if err := s.UpsertPlate(ctx, "abc123", "41"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.UpsertPlate(ctx, "ABC123", "42"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.UpsertPlate(ctx, " ", "1"); err == nil {
		t.Fatalf("expected error for empty plate")
	}
	plates, err := s.LoadPlates(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(plates) != 1 || plates["ABC123"] != "42" {
		t.Fatalf("unexpected plates %v", plates)
	}
}
