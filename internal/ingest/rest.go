package ingest

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"qrgate/internal/config"
)

const SourceREST = "rest"

type RESTServer struct {
	gate   *Gate
	logger *slog.Logger
}

type scanRequest struct {
	Payload string `json:"payload"`
}

type scanResponse struct {
	Status    string `json:"status,omitempty"`
	Plate     string `json:"plate,omitempty"`
	Granted   bool   `json:"granted"`
	Opened    bool   `json:"opened"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

func NewRESTHandler(gate *Gate, logger *slog.Logger) http.Handler {
	server := &RESTServer{gate: gate, logger: logger}
	mux := http.NewServeMux()
	mux.HandleFunc("/scan", server.handleScan)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

func StartREST(ctx context.Context, cfg config.RESTConfig, gate *Gate, logger *slog.Logger) *http.Server {
	if !cfg.Enabled {
		if logger != nil {
			logger.Info("rest ingest disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("rest ingest enabled", "addr", cfg.Addr)
	}
	httpServer := &http.Server{Addr: cfg.Addr, Handler: NewRESTHandler(gate, logger), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("rest ingest server error", "err", err)
			}
		}
	}()
	return httpServer
}

// handleScan accepts {"payload": "..."} or a text/plain body holding the payload.
func (s *RESTServer) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 4<<10))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	trim := strings.TrimSpace(string(body))
	if trim == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	payload := trim
	if strings.HasPrefix(trim, "{") {
		var req scanRequest
		if err := json.Unmarshal([]byte(trim), &req); err != nil || req.Payload == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		payload = req.Payload
	}
	d := s.gate.Submit(r.Context(), SourceREST, payload)
	resp := scanResponse{
		Plate:     d.Result.Plate,
		Granted:   d.Result.Valid(),
		Opened:    d.Opened,
		Duplicate: d.Duplicate,
	}
	if d.Evaluated() {
		resp.Status = string(d.Result.Status)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
