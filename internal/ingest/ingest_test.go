package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"qrgate/internal/barrier"
	"qrgate/internal/config"
	"qrgate/internal/events"
	"qrgate/internal/model"
	"qrgate/internal/registry"
)

var fixedNow = time.Unix(1000, 0)

type nopActuator struct{}

func (nopActuator) Open(context.Context) error  { return nil }
func (nopActuator) Close(context.Context) error { return nil }

func newTestGate(t *testing.T) (*Gate, *events.Store) {
	t.Helper()
	ctrl := barrier.NewController(registry.New(map[string]string{"ABC123": "42"}), nopActuator{}, barrier.Options{
		OpenSeconds: 10,
		Tick:        time.Hour,
		Freshness:   30,
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ctrl.Start(ctx)
	store := events.NewStore(100)
	gate := NewGate(ctrl, events.NewRecorder(store, events.NewCounters(), nil), nil)
	gate.now = func() time.Time { return fixedNow }
	return gate, store
}

type scriptedFrames struct {
	frames []error
	i      int
}

func (s *scriptedFrames) Frame(context.Context) (image.Image, error) {
	err := s.frames[s.i%len(s.frames)]
	s.i++
	if err != nil {
		return nil, err
	}
	return image.NewGray(image.Rect(0, 0, 1, 1)), nil
}

type scriptedDecoder struct {
	payloads []string
	i        int
}

func (s *scriptedDecoder) Decode(image.Image) (string, bool) {
	p := s.payloads[s.i%len(s.payloads)]
	s.i++
	return p, p != ""
}

type recordingRenderer struct {
	states []model.BarrierState
}

func (r *recordingRenderer) Render(_ string, st model.BarrierState) {
	r.states = append(r.states, st)
}

func TestPollerFeedsDecodedPayloads(t *testing.T) {
	gate, store := newTestGate(t)
	frames := &scriptedFrames{frames: []error{nil}}
	decoder := &scriptedDecoder{payloads: []string{"ABC123|42|995", "ABC123|42|995", "", "ABC123|41|995"}}
	renderer := &recordingRenderer{}
	p := NewPoller(gate, frames, decoder, renderer, time.Millisecond, nil)

	for i := 0; i < 4; i++ {
		p.Poll(context.Background())
	}

	evs := store.List(0)
	if len(evs) != 2 {
		t.Fatalf("expected 2 events (repeat debounced, empty frame cleared), got %d: %+v", len(evs), evs)
	}
	if evs[0].Status != model.StatusValid || !evs[0].Opened || evs[0].Source != SourceCamera {
		t.Fatalf("unexpected first event %+v", evs[0])
	}
	if evs[1].Status != model.StatusCodeMismatch {
		t.Fatalf("unexpected second event %+v", evs[1])
	}
	if len(renderer.states) != 4 {
		t.Fatalf("expected a render per poll, got %d", len(renderer.states))
	}
	last := renderer.states[3]
	if !last.Open || last.Allowed || last.RemainingSeconds != 10 {
		t.Fatalf("mismatched code must not close the open barrier: %+v", last)
	}
}

func TestPollerSkipsFailedFrames(t *testing.T) {
	gate, store := newTestGate(t)
	frames := &scriptedFrames{frames: []error{errors.New("camera offline")}}
	decoder := &scriptedDecoder{payloads: []string{"ABC123|42|995"}}
	renderer := &recordingRenderer{}
	p := NewPoller(gate, frames, decoder, renderer, time.Millisecond, nil)

	p.Poll(context.Background())
	if len(store.List(0)) != 0 || len(renderer.states) != 0 || decoder.i != 0 {
		t.Fatalf("failed frame must be a no-op")
	}
	if st := gate.Controller().Snapshot(); st.Open {
		t.Fatalf("unexpected state %+v", st)
	}
}

func TestHTTPFrameSourceErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("not an image"))
	}))
	defer srv.Close()

	if _, err := NewHTTPFrameSource(srv.URL+"/missing", time.Second).Frame(context.Background()); err == nil {
		t.Fatalf("expected status error")
	}
	if _, err := NewHTTPFrameSource(srv.URL+"/cam-hi.jpg", time.Second).Frame(context.Background()); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestQRDecoderBlankImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	if _, ok := NewQRDecoder().Decode(img); ok {
		t.Fatalf("blank image must not decode")
	}
}

func postScan(t *testing.T, h http.Handler, contentType, body string) (*httptest.ResponseRecorder, scanResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/scan", strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var resp scanResponse
	if rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return rec, resp
}

func TestRESTScan(t *testing.T) {
	gate, store := newTestGate(t)
	h := NewRESTHandler(gate, nil)

	rec, resp := postScan(t, h, "application/json", `{"payload":"ABC123|42|995"}`)
	if rec.Code != http.StatusOK || !resp.Granted || !resp.Opened || resp.Status != string(model.StatusValid) {
		t.Fatalf("unexpected response %d %+v", rec.Code, resp)
	}
	_, resp = postScan(t, h, "text/plain", "ABC123|42|995\n")
	if !resp.Duplicate || resp.Opened {
		t.Fatalf("expected duplicate, got %+v", resp)
	}
	_, resp = postScan(t, h, "text/plain", "garbage")
	if resp.Status != string(model.StatusMalformed) || resp.Granted {
		t.Fatalf("expected malformed, got %+v", resp)
	}
	if len(store.List(0)) != 2 {
		t.Fatalf("expected 2 recorded events")
	}
}

func TestRESTScanRejectsBadRequests(t *testing.T) {
	gate, _ := newTestGate(t)
	h := NewRESTHandler(gate, nil)

	if rec, _ := postScan(t, h, "application/json", `{"payload":""}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if rec, _ := postScan(t, h, "text/plain", "   "); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	req := httptest.NewRequest(http.MethodGet, "/scan", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestFileTailFeedsLines(t *testing.T) {
	gate, store := newTestGate(t)
	path := filepath.Join(t.TempDir(), "scans.log")
	if err := os.WriteFile(path, []byte("ABC123|42|995\n\nABC123|40|995\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartFileTail(ctx, config.FileTailConfig{Enabled: true, StartAtEnd: false, Files: []string{path}}, gate, nil)

	deadline := time.Now().Add(3 * time.Second)
	for len(store.List(0)) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("expected 2 events, got %d", len(store.List(0)))
		}
		time.Sleep(10 * time.Millisecond)
	}
	evs := store.List(0)
	if evs[0].Status != model.StatusValid || evs[1].Status != model.StatusCodeMismatch || evs[1].Source != SourceFileTail {
		t.Fatalf("unexpected events %+v", evs)
	}
}
