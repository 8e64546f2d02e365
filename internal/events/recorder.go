package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"qrgate/internal/barrier"
	"qrgate/internal/model"
)

// Sink persists or forwards access events. Failures are logged, never fatal.
type Sink interface {
	SaveEvent(ctx context.Context, ev model.AccessEvent) error
}

type Recorder struct {
	store    *Store
	counters *Counters
	sinks    []Sink
	logger   *slog.Logger
}

func NewRecorder(store *Store, counters *Counters, logger *slog.Logger, sinks ...Sink) *Recorder {
	out := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Recorder{store: store, counters: counters, sinks: out, logger: logger}
}

// Record turns a controller decision into an access event. Debounced and
// cleared polls are not events and return false.
func (r *Recorder) Record(ctx context.Context, source string, d barrier.Decision) (model.AccessEvent, bool) {
	if r == nil || !d.Evaluated() {
		return model.AccessEvent{}, false
	}
	ev := model.AccessEvent{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    source,
		Plate:     d.Result.Plate,
		Status:    d.Result.Status,
		Granted:   d.Result.Valid() || d.Forced,
		Opened:    d.Opened,
	}
	if r.store != nil {
		r.store.Add(ev)
	}
	if r.counters != nil {
		r.counters.Observe(ev)
	}
	for _, s := range r.sinks {
		if err := s.SaveEvent(ctx, ev); err != nil && r.logger != nil {
			r.logger.Warn("event sink failed", "event_id", ev.ID, "err", err)
		}
	}
	return ev, true
}
