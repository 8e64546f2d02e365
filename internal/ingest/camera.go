package ingest

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"

	"qrgate/internal/barrier"
	"qrgate/internal/config"
	"qrgate/internal/model"
)

const SourceCamera = "camera"

// FrameSource pulls one still frame from the camera.
type FrameSource interface {
	Frame(ctx context.Context) (image.Image, error)
}

// Decoder returns the first QR payload found in a frame.
type Decoder interface {
	Decode(img image.Image) (string, bool)
}

// Renderer receives the controller state after every poll.
type Renderer interface {
	Render(payload string, st model.BarrierState)
}

type HTTPFrameSource struct {
	url    string
	client *http.Client
}

func NewHTTPFrameSource(url string, timeout time.Duration) *HTTPFrameSource {
	return &HTTPFrameSource{url: url, client: &http.Client{Timeout: timeout}}
}

func (s *HTTPFrameSource) Frame(ctx context.Context) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("frame fetch: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("frame decode: %w", err)
	}
	return img, nil
}

type QRDecoder struct {
	reader gozxing.Reader
}

func NewQRDecoder() *QRDecoder {
	return &QRDecoder{reader: qrcode.NewQRCodeReader()}
}

func (d *QRDecoder) Decode(img image.Image) (string, bool) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", false
	}
	res, err := d.reader.Decode(bmp, nil)
	if err != nil {
		return "", false
	}
	return res.GetText(), true
}

// LogRenderer logs the barrier state whenever it changes.
type LogRenderer struct {
	logger *slog.Logger
	last   model.BarrierState
	seen   bool
}

func NewLogRenderer(logger *slog.Logger) *LogRenderer {
	return &LogRenderer{logger: logger}
}

func (r *LogRenderer) Render(_ string, st model.BarrierState) {
	st.LastSeenToken = ""
	if r.seen && st == r.last {
		return
	}
	r.seen = true
	r.last = st
	if r.logger != nil {
		r.logger.Info("barrier state",
			"open", st.Open,
			"allowed", st.Allowed,
			"remaining_seconds", st.RemainingSeconds,
		)
	}
}

// Poller is the control loop: on every tick it pulls a frame, decodes the
// first symbol and feeds the payload, or NoSymbol, to the gate.
type Poller struct {
	gate     *Gate
	frames   FrameSource
	decoder  Decoder
	renderer Renderer
	interval time.Duration
	logger   *slog.Logger
}

func NewPoller(gate *Gate, frames FrameSource, decoder Decoder, renderer Renderer, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Poller{gate: gate, frames: frames, decoder: decoder, renderer: renderer, interval: interval, logger: logger}
}

func StartCamera(ctx context.Context, cfg config.CameraConfig, gate *Gate, logger *slog.Logger) *Poller {
	if !cfg.Enabled {
		if logger != nil {
			logger.Info("camera control loop disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("camera control loop enabled", "url", cfg.URL, "poll_interval", cfg.PollInterval)
	}
	p := NewPoller(gate, NewHTTPFrameSource(cfg.URL, cfg.Timeout), NewQRDecoder(), NewLogRenderer(logger), cfg.PollInterval, logger)
	go p.Run(ctx)
	return p
}

func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.Poll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Poll runs a single control-loop iteration. A failed frame fetch is not a
// scan: the controller is left untouched for this tick.
func (p *Poller) Poll(ctx context.Context) {
	img, err := p.frames.Frame(ctx)
	if err != nil {
		if p.logger != nil {
			p.logger.Debug("frame acquisition failed", "err", err)
		}
		return
	}
	payload := barrier.NoSymbol
	if text, ok := p.decoder.Decode(img); ok && text != "" {
		payload = text
	}
	p.gate.Submit(ctx, SourceCamera, payload)
	if p.renderer != nil {
		p.renderer.Render(payload, p.gate.ctrl.Snapshot())
	}
}
