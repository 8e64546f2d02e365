// Package barrier holds the open/closed state machine that drives the gate.
//
// All state lives in one Controller guarded by a single mutex. Every decision
// and the mutation that follows it happen under that mutex, so only one
// countdown can ever be running. Actuator commands are queued in state order
// while the lock is held and sent by a dispatcher goroutine outside it. The
// queue is never truncated, so every close reaches the actuator.
package barrier

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"qrgate/internal/actuator"
	"qrgate/internal/model"
	"qrgate/internal/token"
)

// NoSymbol is fed by the control loop when a frame holds no QR symbol.
const NoSymbol = "-"

type Actuator interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type stdTicker struct {
	t *time.Ticker
}

func (s stdTicker) C() <-chan time.Time { return s.t.C }
func (s stdTicker) Stop()               { s.t.Stop() }

func NewStdTicker(d time.Duration) Ticker {
	return stdTicker{t: time.NewTicker(d)}
}

type Options struct {
	OpenSeconds int
	Tick        time.Duration
	Freshness   int64
	NewTicker   func(time.Duration) Ticker
	Logger      *slog.Logger
}

// Decision describes what a single OnToken or ForceOpen call did.
type Decision struct {
	Result    token.Result
	Duplicate bool
	Cleared   bool
	Forced    bool
	Opened    bool
}

// Evaluated reports whether the call ran a validation or an override.
func (d Decision) Evaluated() bool {
	return !d.Duplicate && !d.Cleared
}

type Controller struct {
	mu        sync.Mutex
	allowed   bool
	open      bool
	remaining int
	lastSeen  string
	pending   []actuator.Command

	plates    token.Lookup
	act       Actuator
	notify    chan struct{}
	done      chan struct{}
	openSecs  int
	tick      time.Duration
	freshness int64
	newTicker func(time.Duration) Ticker
	logger    *slog.Logger
	countdown sync.WaitGroup
}

func NewController(plates token.Lookup, act Actuator, opts Options) *Controller {
	if opts.OpenSeconds <= 0 {
		opts.OpenSeconds = 10
	}
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}
	if opts.Freshness <= 0 {
		opts.Freshness = token.DefaultFreshness
	}
	if opts.NewTicker == nil {
		opts.NewTicker = NewStdTicker
	}
	return &Controller{
		plates:    plates,
		act:       act,
		notify:    make(chan struct{}, 1),
		done:      make(chan struct{}),
		openSecs:  opts.OpenSeconds,
		tick:      opts.Tick,
		freshness: opts.Freshness,
		newTicker: opts.NewTicker,
		logger:    opts.Logger,
	}
}

// Start runs the actuator dispatcher until ctx is done. Commands still queued
// at that point are sent before the dispatcher exits. Each send is bounded by
// the actuator timeout, not by ctx.
func (c *Controller) Start(ctx context.Context) {
	sendCtx := context.WithoutCancel(ctx)
	go func() {
		defer close(c.done)
		for {
			select {
			case <-c.notify:
				for _, cmd := range c.takePending() {
					c.dispatch(sendCtx, cmd)
				}
			case <-ctx.Done():
				for _, cmd := range c.takePending() {
					c.dispatch(sendCtx, cmd)
				}
				return
			}
		}
	}()
}

func (c *Controller) takePending() []actuator.Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	cmds := c.pending
	c.pending = nil
	return cmds
}

// Done is closed once the dispatcher started by Start has exited.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

func (c *Controller) dispatch(ctx context.Context, cmd actuator.Command) {
	if c.act == nil {
		return
	}
	var err error
	switch cmd {
	case actuator.CommandOpen:
		err = c.act.Open(ctx)
	case actuator.CommandClose:
		err = c.act.Close(ctx)
	}
	if err != nil && c.logger != nil {
		c.logger.Warn("actuator unreachable", "command", cmd, "err", err)
	}
}

// OnToken feeds one polled payload. Repeats of the last payload are ignored;
// the NoSymbol sentinel (or an empty payload) only clears that cache.
func (c *Controller) OnToken(raw string, now time.Time) Decision {
	if raw == "" || raw == NoSymbol {
		c.mu.Lock()
		c.lastSeen = ""
		c.mu.Unlock()
		return Decision{Cleared: true}
	}

	c.mu.Lock()
	if raw == c.lastSeen {
		c.mu.Unlock()
		if c.logger != nil {
			c.logger.Debug("token already processed")
		}
		return Decision{Duplicate: true}
	}
	res := token.Validate(raw, now, c.plates, c.freshness)
	c.lastSeen = raw
	d := Decision{Result: res}
	if res.Valid() {
		c.allowed = true
		d.Opened = c.requestOpenLocked()
	} else {
		// An open barrier stays open until its countdown ends.
		c.allowed = false
	}
	c.mu.Unlock()

	if c.logger != nil {
		if res.Valid() {
			c.logger.Info("access granted", "plate", res.Plate, "opened", d.Opened)
		} else {
			c.logger.Warn("access denied", "plate", res.Plate, "status", res.Status, "err", res.Err())
		}
	}
	return d
}

// ForceOpen is the manual override. It never extends a running cycle.
func (c *Controller) ForceOpen() Decision {
	c.mu.Lock()
	c.allowed = true
	opened := c.requestOpenLocked()
	c.mu.Unlock()

	if c.logger != nil {
		c.logger.Info("manual override", "opened", opened)
	}
	return Decision{Result: token.Result{Status: model.StatusForced}, Forced: true, Opened: opened}
}

// requestOpenLocked starts a cycle only when no countdown is active.
func (c *Controller) requestOpenLocked() bool {
	if c.remaining != 0 {
		return false
	}
	c.remaining = c.openSecs
	c.open = true
	c.enqueueLocked(actuator.CommandOpen)
	c.countdown.Add(1)
	go c.runCountdown()
	return true
}

func (c *Controller) enqueueLocked(cmd actuator.Command) {
	c.pending = append(c.pending, cmd)
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *Controller) runCountdown() {
	defer c.countdown.Done()
	t := c.newTicker(c.tick)
	defer t.Stop()
	for range t.C() {
		c.mu.Lock()
		c.remaining--
		if c.remaining > 0 {
			c.mu.Unlock()
			continue
		}
		c.remaining = 0
		c.open = false
		c.allowed = false
		c.enqueueLocked(actuator.CommandClose)
		c.mu.Unlock()
		if c.logger != nil {
			c.logger.Info("barrier closed")
		}
		return
	}
}

func (c *Controller) Snapshot() model.BarrierState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return model.BarrierState{
		Allowed:          c.allowed,
		Open:             c.open,
		RemainingSeconds: c.remaining,
		LastSeenToken:    c.lastSeen,
	}
}

// Wait blocks until every started countdown has finished.
func (c *Controller) Wait() {
	c.countdown.Wait()
}
