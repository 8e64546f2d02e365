package ingest

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"qrgate/internal/barrier"
	"qrgate/internal/events"
)

// Gate is what every token source feeds: the controller plus the event recorder.
type Gate struct {
	ctrl   *barrier.Controller
	rec    *events.Recorder
	now    func() time.Time
	logger *slog.Logger
}

func NewGate(ctrl *barrier.Controller, rec *events.Recorder, logger *slog.Logger) *Gate {
	return &Gate{ctrl: ctrl, rec: rec, now: time.Now, logger: logger}
}

// Submit evaluates one payload from source and records the outcome.
func (g *Gate) Submit(ctx context.Context, source, payload string) barrier.Decision {
	d := g.ctrl.OnToken(strings.TrimRight(payload, "\r\n"), g.now())
	if g.rec != nil {
		g.rec.Record(ctx, source, d)
	}
	return d
}

func (g *Gate) ForceOpen(ctx context.Context, source string) barrier.Decision {
	d := g.ctrl.ForceOpen()
	if g.rec != nil {
		g.rec.Record(ctx, source, d)
	}
	return d
}

func (g *Gate) Controller() *barrier.Controller {
	return g.ctrl
}

func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
