package bridge

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/m4xw311/playtest/action"
	"github.com/m4xw311/playtest/errors"
	"go.uber.org/zap"
)

// maxUpload bounds the multipart body accepted by /ask.
const maxUpload = 32 << 20

// Server serves the bridge wire protocol:
//
//	GET  /health  liveness
//	POST /ask     multipart screenshot, context and optional api_key
//	POST /reset   drop conversational memory
type Server struct {
	backend    Backend
	debugFrame string
	logger     *zap.Logger
	mux        *http.ServeMux
}

// NewServer creates a server for backend. When debugFrame is set every
// received screenshot is written to that path.
func NewServer(backend Backend, debugFrame string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		backend:    backend,
		debugFrame: debugFrame,
		logger:     logger.Named("bridge"),
		mux:        http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /ask", s.handleAsk)
	s.mux.HandleFunc("POST /reset", s.handleReset)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "could not listen on %s", addr)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s, ReadHeaderTimeout: 10 * time.Second}
	done := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		done <- srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("Bridge server listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("backend", s.backend.Name()))
	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return <-done
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "backend": s.backend.Name()})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		http.Error(w, "invalid multipart body: "+err.Error(), http.StatusBadRequest)
		return
	}
	file, _, err := r.FormFile("screenshot")
	if err != nil {
		http.Error(w, "missing screenshot", http.StatusBadRequest)
		return
	}
	defer file.Close()
	image, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "could not read screenshot", http.StatusBadRequest)
		return
	}
	if _, ok := r.MultipartForm.Value["context"]; !ok {
		http.Error(w, "missing context", http.StatusBadRequest)
		return
	}
	req := Request{
		Image:   image,
		Context: r.FormValue("context"),
		APIKey:  r.FormValue("api_key"),
	}

	if s.debugFrame != "" {
		if err := os.WriteFile(s.debugFrame, image, 0644); err != nil {
			s.logger.Warn("Failed to save debug frame", zap.Error(err))
		}
	}
	s.logger.Info("Received request",
		zap.Int("image_bytes", len(image)),
		zap.String("context", truncate(req.Context, 50)))

	text, err := s.backend.Ask(r.Context(), req)
	if err != nil {
		s.logger.Error("Backend failed", zap.Error(err))
		http.Error(w, "backend failed: "+err.Error(), http.StatusBadGateway)
		return
	}
	act, err := action.Parse(text)
	if err != nil {
		s.logger.Error("Backend returned no usable action", zap.Error(err), zap.String("text", text))
		http.Error(w, "backend returned no usable action: "+err.Error(), http.StatusBadGateway)
		return
	}

	s.logger.Info("Sending response", zap.String("action", act.String()))
	writeJSON(w, http.StatusOK, act)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.Reset(r.Context()); err != nil {
		s.logger.Error("Reset failed", zap.Error(err))
		http.Error(w, "reset failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	s.logger.Info("Memory reset")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
