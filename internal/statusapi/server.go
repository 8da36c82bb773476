package statusapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/adjust481/safe-agent-v4/internal/state"
)

// Server exposes the persisted status document over a read-only HTTP
// endpoint. It never writes state; the loop driver stays the only writer.
type Server struct {
	store *state.Store
	srv   *http.Server
}

func New(addr string, store *state.Store) *Server {
	s := &Server{store: store}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/health", s.handleHealth)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start serves until ctx is cancelled. Serve errors other than a clean
// shutdown are logged, not fatal; the trading loop outranks the API.
func (s *Server) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutCtx)
	}()
	go func() {
		log.Printf("[info] status api listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[warn] status api: %v", err)
		}
	}()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	doc, ok, err := s.store.Load()
	if err != nil {
		http.Error(w, "state unreadable", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "no state yet", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(doc)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeCORS(w)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"ok":true}` + "\n"))
}

func writeCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
}
