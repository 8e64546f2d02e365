package registry

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Source produces a full plate to code mapping.
type Source interface {
	LoadPlates(ctx context.Context) (map[string]string, error)
}

// Registry is an immutable plate snapshot that can be swapped wholesale.
// Lookups never take a lock.
type Registry struct {
	plates atomic.Pointer[map[string]string]
}

func New(plates map[string]string) *Registry {
	r := &Registry{}
	r.swap(plates)
	return r
}

func (r *Registry) swap(plates map[string]string) {
	snapshot := make(map[string]string, len(plates))
	for plate, code := range plates {
		snapshot[strings.ToUpper(plate)] = code
	}
	r.plates.Store(&snapshot)
}

func (r *Registry) Lookup(plate string) (string, bool) {
	if r == nil {
		return "", false
	}
	m := r.plates.Load()
	if m == nil {
		return "", false
	}
	code, ok := (*m)[plate]
	return code, ok
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	if m := r.plates.Load(); m != nil {
		return len(*m)
	}
	return 0
}

// Plates returns the registered plates in sorted order, without codes.
func (r *Registry) Plates() []string {
	if r == nil {
		return nil
	}
	m := r.plates.Load()
	if m == nil {
		return nil
	}
	out := make([]string, 0, len(*m))
	for plate := range *m {
		out = append(out, plate)
	}
	sort.Strings(out)
	return out
}

// Reload replaces the snapshot from src. On error the previous snapshot is kept.
func (r *Registry) Reload(ctx context.Context, src Source) error {
	plates, err := src.LoadPlates(ctx)
	if err != nil {
		return err
	}
	r.swap(plates)
	return nil
}

// Parse reads PLATE,CODE lines. Lines without a comma are skipped, plates are
// upper-cased and the last occurrence of a plate wins.
func Parse(r io.Reader) (map[string]string, error) {
	out := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.Contains(line, ",") {
			continue
		}
		parts := strings.Split(line, ",")
		out[strings.ToUpper(parts[0])] = parts[1]
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// SwitchSource forwards to a source that can be replaced while the
// registry is in use.
type SwitchSource struct {
	mu  sync.RWMutex
	src Source
}

func NewSwitchSource(src Source) *SwitchSource {
	return &SwitchSource{src: src}
}

func (s *SwitchSource) Set(src Source) {
	s.mu.Lock()
	s.src = src
	s.mu.Unlock()
}

func (s *SwitchSource) Get() Source {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.src
}

func (s *SwitchSource) LoadPlates(ctx context.Context) (map[string]string, error) {
	src := s.Get()
	if src == nil {
		return nil, fmt.Errorf("no plate source")
	}
	return src.LoadPlates(ctx)
}

type FileSource struct {
	Path string
}

func (f FileSource) LoadPlates(_ context.Context) (map[string]string, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	plates, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Path, err)
	}
	return plates, nil
}

// Load builds a registry from src. A failing source yields an empty registry
// together with the error, so the caller keeps running and denies everything.
func Load(ctx context.Context, src Source) (*Registry, error) {
	plates, err := src.LoadPlates(ctx)
	if err != nil {
		return New(nil), fmt.Errorf("load plate registry: %w", err)
	}
	return New(plates), nil
}

func LoadFile(path string) (*Registry, error) {
	return Load(context.Background(), FileSource{Path: path})
}

// Watch reloads the registry whenever the plate file's mtime moves forward.
func (r *Registry) Watch(ctx context.Context, path string, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	var modTime time.Time
	if info, err := os.Stat(path); err == nil {
		modTime = info.ModTime()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil {
				if logger != nil {
					logger.Debug("plate store stat failed", "path", path, "err", err)
				}
				continue
			}
			if !info.ModTime().After(modTime) {
				continue
			}
			modTime = info.ModTime()
			if err := r.Reload(ctx, FileSource{Path: path}); err != nil {
				if logger != nil {
					logger.Warn("plate registry reload failed", "path", path, "err", err)
				}
				continue
			}
			if logger != nil {
				logger.Info("plate registry reloaded", "path", path, "plates", r.Len())
			}
		case <-ctx.Done():
			return
		}
	}
}
