package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"qrgate/internal/config"
	"qrgate/internal/events"
	"qrgate/internal/ingest"
	"qrgate/internal/model"
	"qrgate/internal/registry"
)

const SourceOperator = "operator"

type Server struct {
	cfg      *config.Manager
	gate     *ingest.Gate
	events   *events.Store
	counters *events.Counters
	plates   *registry.Registry
	source   registry.Source
	logger   *slog.Logger
	version  string
}

type Deps struct {
	Config   *config.Manager
	Gate     *ingest.Gate
	Events   *events.Store
	Counters *events.Counters
	Registry *registry.Registry
	Source   registry.Source
	Logger   *slog.Logger
	Version  string
}

type statusResponse struct {
	Status     string             `json:"status"`
	Time       string             `json:"time"`
	Version    string             `json:"version"`
	ConfigPath string             `json:"config_path"`
	Barrier    model.BarrierState `json:"barrier"`
	Plates     int                `json:"plates"`
	Registry   string             `json:"registry_source"`
	Ingest     ingestStatus       `json:"ingest"`
	Timing     timingStatus       `json:"timing"`
}

type ingestStatus struct {
	Camera   bool `json:"camera"`
	REST     bool `json:"rest"`
	Kafka    bool `json:"kafka"`
	FileTail bool `json:"file_tail"`
}

type timingStatus struct {
	OpenSeconds      int    `json:"open_seconds"`
	Tick             string `json:"tick"`
	FreshnessSeconds int64  `json:"freshness_seconds"`
}

func NewServer(d Deps) *Server {
	return &Server{
		cfg:      d.Config,
		gate:     d.Gate,
		events:   d.Events,
		counters: d.Counters,
		plates:   d.Registry,
		source:   d.Source,
		logger:   d.Logger,
		version:  d.Version,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/open", s.handleOpen)
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/counters", s.handleCounters)
	mux.HandleFunc("/registry/reload", s.handleRegistryReload)
	mux.HandleFunc("/admin/clear", s.handleClear)
	return mux
}

func Start(ctx context.Context, d Deps) *http.Server {
	if d.Config == nil {
		return nil
	}
	current := d.Config.Get().API
	if !current.Enabled {
		if d.Logger != nil {
			d.Logger.Info("api disabled")
		}
		return nil
	}
	if d.Logger != nil {
		d.Logger.Info("api enabled", "addr", current.Addr)
	}
	server := NewServer(d)
	httpServer := &http.Server{Addr: current.Addr, Handler: server.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if d.Logger != nil {
				d.Logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	resp := statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Version:    s.version,
		ConfigPath: s.cfg.Path(),
		Barrier:    s.gate.Controller().Snapshot(),
		Plates:     s.plates.Len(),
		Registry:   cfg.Registry.Source,
		Ingest: ingestStatus{
			Camera:   cfg.Camera.Enabled,
			REST:     cfg.Ingest.REST.Enabled,
			Kafka:    cfg.Ingest.Kafka.Enabled,
			FileTail: cfg.Ingest.FileTail.Enabled,
		},
		Timing: timingStatus{
			OpenSeconds:      cfg.Barrier.OpenSeconds,
			Tick:             cfg.Barrier.Tick.String(),
			FreshnessSeconds: cfg.Token.FreshnessSeconds,
		},
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	d := s.gate.ForceOpen(r.Context(), SourceOperator)
	writeJSON(w, http.StatusOK, map[string]any{
		"opened":  d.Opened,
		"barrier": s.gate.Controller().Snapshot(),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	sinceStr := r.URL.Query().Get("since")
	var list []model.AccessEvent
	if sinceStr != "" {
		ts, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		list = s.events.Since(ts)
	} else {
		list = s.events.List(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": list,
		"count":  len(list),
	})
}

func (s *Server) handleCounters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	counters, updated := s.counters.Get()
	resp := map[string]any{"counters": counters}
	if !updated.IsZero() {
		resp["updated_at"] = updated.Format(time.RFC3339Nano)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRegistryReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.source == nil {
		writeJSON(w, http.StatusConflict, map[string]any{"error": "no registry source configured"})
		return
	}
	if err := s.plates.Reload(r.Context(), s.source); err != nil {
		if s.logger != nil {
			s.logger.Warn("plate registry reload failed", "err", err)
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	if s.logger != nil {
		s.logger.Info("plate registry reloaded", "plates", s.plates.Len())
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "plates": s.plates.Len()})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, _ := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	var req struct {
		Target string `json:"target"`
	}
	_ = json.Unmarshal(body, &req)
	target := strings.ToLower(strings.TrimSpace(req.Target))
	if target == "" {
		target = "all"
	}
	switch target {
	case "all":
		s.events.Clear()
		s.counters.Clear()
	case "events":
		s.events.Clear()
	case "counters":
		s.counters.Clear()
	default:
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
