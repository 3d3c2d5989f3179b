// Package relaysrv serves the relay surface: the page a connect attempt
// opens in a popup. The page carries only build-time configuration; the
// return origin travels in the popup URL and is read there, never echoed
// through the server.
package relaysrv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/instahelp/waconnect/config"
	"github.com/instahelp/waconnect/internal"
	"github.com/instahelp/waconnect/origin"
	"github.com/instahelp/waconnect/reporting"
)

const shutdownTimeout = 10 * time.Second

// Server hosts the relay page. Its configuration can be swapped at runtime;
// requests always see a complete snapshot.
type Server struct {
	cfg     atomic.Pointer[config.Config]
	cfgPath string
	log     *slog.Logger

	httpSrv *http.Server
	watcher *internal.FileWatcher

	// report forwards handler panics to crash reporting.
	report func(msg string)
}

// New builds a server around cfg. cfgPath, when non-empty, is watched for
// changes and reloaded in place.
func New(cfg *config.Config, cfgPath string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		cfgPath: cfgPath,
		log:     log.With("component", "relaysrv"),
		report:  reporting.PanicListener,
	}
	s.cfg.Store(cfg)
	return s
}

// Router builds the HTTP routes. Exposed separately so tests can drive the
// handlers without a listener.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(s.recoverer)
	r.Get("/connect/whatsapp", s.handleConnect)
	r.Get("/healthz", s.handleHealthz)
	return r
}

// recoverer turns a handler panic into a 500 and reports it instead of
// killing the connection goroutine silently.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("handler panic", "panic", rec, "path", r.URL.Path)
				s.report(fmt.Sprintf("relaysrv panic serving %s: %v", r.URL.Path, rec))
				w.WriteHeader(http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if s.cfgPath != "" {
		s.watcher = internal.NewFileWatcher(s.cfgPath, s.reload)
		if err := s.watcher.Start(); err != nil {
			return fmt.Errorf("watching config: %w", err)
		}
		defer s.watcher.Close()
	}

	cfg := s.cfg.Load()
	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errC := make(chan error, 1)
	go func() {
		s.log.Info("relay server listening", "addr", cfg.ListenAddr)
		errC <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errC:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

// reload re-reads the config file and swaps it in. A file that fails to load
// leaves the previous config serving.
func (s *Server) reload() {
	cfg, err := config.Load(s.cfgPath)
	if err != nil {
		s.log.Error("reloading config, keeping previous", "error", err)
		return
	}
	s.cfg.Store(cfg)
	s.log.Info("config reloaded", "path", s.cfgPath)
}

// handleConnect serves the relay bootstrap page. The return_origin query
// parameter must parse as an origin; a popup opened without one can never
// deliver its result, so the request is rejected up front.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("return_origin")
	if raw == "" {
		writeErr(w, "missing_return_origin", "return_origin query parameter is required", http.StatusBadRequest)
		return
	}
	if _, err := origin.Parse(raw); err != nil {
		writeErr(w, "invalid_return_origin", "return_origin must be a scheme://host origin", http.StatusBadRequest)
		return
	}

	cfg := s.cfg.Load()
	boot, err := json.Marshal(bootstrap{
		AppID:      cfg.AppID,
		ConfigID:   cfg.ConfigID,
		APIVersion: cfg.APIVersion,
	})
	if err != nil {
		writeErr(w, "internal", "failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := pageTmpl.Execute(w, template.JS(boot)); err != nil &&
		!errors.Is(err, http.ErrHandlerTimeout) {
		s.log.Error("rendering relay page", "error", err)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func writeErr(w http.ResponseWriter, code, desc string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": code, "error_description": desc,
	})
}

// bootstrap is the build-time configuration embedded in the page. The return
// origin is deliberately absent: the page reads it from its own URL.
type bootstrap struct {
	AppID      string `json:"app_id"`
	ConfigID   string `json:"config_id"`
	APIVersion string `json:"api_version"`
}

var pageTmpl = template.Must(template.New("relay").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Connecting WhatsApp…</title>
</head>
<body>
<p>Completing WhatsApp connection…</p>
<script>window.__WACONNECT__ = {{.}};</script>
<script src="/static/bridge.js"></script>
</body>
</html>
`))
