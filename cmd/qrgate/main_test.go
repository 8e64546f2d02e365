package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"qrgate/internal/config"
	"qrgate/internal/logging"
	"qrgate/internal/registry"
	"qrgate/internal/token"
)

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCheckCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plates.txt")
	if err := os.WriteFile(path, []byte("abc123,42\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	out, err := runRoot(t, "check", "--plates", path, "--now", "1000", "--freshness", "30", "ABC123|42|995")
	if err != nil {
		t.Fatalf("valid token rejected: %v (%s)", err, out)
	}
	if !strings.Contains(out, "valid\tABC123") {
		t.Fatalf("unexpected output %q", out)
	}

	_, err = runRoot(t, "check", "--plates", path, "--now", "1000", "--freshness", "30", "ABC123|42|900")
	if !errors.Is(err, token.ErrExpired) {
		t.Fatalf("expected expired, got %v", err)
	}

	_, err = runRoot(t, "check", "--plates", path, "--now", "1000", "--freshness", "30", "ABC123|42")
	if !errors.Is(err, token.ErrMalformed) {
		t.Fatalf("expected malformed, got %v", err)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runRoot(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if strings.TrimSpace(out) != version {
		t.Fatalf("unexpected version output %q", out)
	}
}

func TestLiveConfigAppliesLevelAndRegistryPath(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "plates-a.txt")
	second := filepath.Join(dir, "plates-b.txt")
	if err := os.WriteFile(first, []byte("ABC123,42\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(second, []byte("XYZ789,7\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.DefaultConfig()
	cfg.Registry.Path = first
	cfg.Registry.WatchInterval = 0
	logger, level := logging.NewLeveledLogger(io.Discard, cfg.LogLevel)
	src := registry.NewSwitchSource(registry.FileSource{Path: first})
	plates, err := registry.Load(ctx, src)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	live := newLiveConfig(ctx, cfg, logger, level, plates, src)

	next := *cfg
	next.LogLevel = "debug"
	next.Registry.Path = second
	next.Barrier.OpenSeconds = 20
	live.apply(&next)

	if level.Level() != slog.LevelDebug {
		t.Fatalf("log level not applied: %v", level.Level())
	}
	if _, ok := plates.Lookup("XYZ789"); !ok {
		t.Fatalf("plates from the new path missing")
	}
	if _, ok := plates.Lookup("ABC123"); ok {
		t.Fatalf("plates from the old path still present")
	}
	if got := restartOnly(cfg, &next); !reflect.DeepEqual(got, []string{"barrier"}) {
		t.Fatalf("unexpected restart-only sections %v", got)
	}

	moved := next
	moved.Registry.Source = config.RegistrySourceStorage
	live.apply(&moved)
	if got := src.Get(); got != (registry.FileSource{Path: second}) {
		t.Fatalf("registry source must not switch at runtime, got %#v", got)
	}
}
