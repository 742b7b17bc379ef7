package collector

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/y1024/agi-computer-control/pkg/events"
	"github.com/y1024/agi-computer-control/pkg/logging"
)

// ServerConfig holds collector sink configuration.
type ServerConfig struct {
	ListenAddress string
	MaxBodyBytes  int64
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
	Logger        *slog.Logger
}

// Server accepts worker uploads, validates their shape, logs them and
// discards them.
type Server struct {
	config     ServerConfig
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer creates a collector sink.
func NewServer(cfg ServerConfig) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 20
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Server{config: cfg, logger: logger}
	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler returns the routed collector endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(PathPing, s.handlePing)
	mux.HandleFunc(PathMouse, s.handleMouse)
	mux.HandleFunc(PathKeyboard, s.handleKeyboard)
	mux.HandleFunc(PathScreenshot, s.handleScreenshot)
	return mux
}

// Start listens on the configured address and blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.ListenAddress, err)
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("collector listening", "address", listener.Addr().String())
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("collector shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("collector shutdown: %w", err)
		}
		return nil
	case err := <-errChan:
		return err
	}
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeMessage(w, http.StatusOK, "pong")
}

func (s *Server) handleMouse(w http.ResponseWriter, r *http.Request) {
	fields, ok := s.decode(w, r, "mouse", "client_key")
	if !ok {
		return
	}
	var payload MousePayload
	if err := unmarshalFields(fields, &payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.logEvents(r, "mouse", payload.ClientKey, payload.Mouse)
	writeMessage(w, http.StatusOK, "Mouse data received")
}

func (s *Server) handleKeyboard(w http.ResponseWriter, r *http.Request) {
	fields, ok := s.decode(w, r, "keyboard", "client_key")
	if !ok {
		return
	}
	var payload KeyboardPayload
	if err := unmarshalFields(fields, &payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.logEvents(r, "keyboard", payload.ClientKey, payload.Keyboard)
	writeMessage(w, http.StatusOK, "Keyboard data received")
}

func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	fields, ok := s.decode(w, r, "screenshot_base64", "screenshot_filename", "client_key")
	if !ok {
		return
	}
	var payload ScreenshotPayload
	if err := unmarshalFields(fields, &payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(payload.ScreenshotFilename) == "" {
		http.Error(w, "screenshot_filename must not be empty", http.StatusBadRequest)
		return
	}
	image, err := base64.StdEncoding.DecodeString(payload.ScreenshotBase64)
	if err != nil {
		http.Error(w, "screenshot_base64 is not valid base64", http.StatusBadRequest)
		return
	}
	s.logger.Info("screenshot received",
		"client_key", payload.ClientKey,
		"file", payload.ScreenshotFilename,
		"bytes", len(image),
		"cycle", r.Header.Get(HeaderCycle),
	)
	writeMessage(w, http.StatusOK, "Screenshot received")
}

// decode enforces method, body size and the presence of every required
// top level field.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, required ...string) (map[string]json.RawMessage, bool) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return nil, false
	}
	body := http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	var fields map[string]json.RawMessage
	if err := json.NewDecoder(body).Decode(&fields); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return nil, false
		}
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return nil, false
	}
	for _, name := range required {
		raw, ok := fields[name]
		if !ok {
			http.Error(w, fmt.Sprintf("missing field %q", name), http.StatusBadRequest)
			return nil, false
		}
		if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			http.Error(w, fmt.Sprintf("field %q must not be null", name), http.StatusBadRequest)
			return nil, false
		}
	}
	return fields, true
}

func (s *Server) logEvents(r *http.Request, kind, clientKey, data string) {
	attrs := []any{
		"client_key", clientKey,
		"bytes", len(data),
		"cycle", r.Header.Get(HeaderCycle),
	}
	records, err := events.DecodeLines(data)
	if err != nil {
		s.logger.Warn(kind+" data received with malformed records", append(attrs, "error", err)...)
		return
	}
	s.logger.Info(kind+" data received", append(attrs, "records", len(records))...)
}

func unmarshalFields(fields map[string]json.RawMessage, target any) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("re-encode body: %w", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("invalid field types: %w", err)
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	http.Error(w, allowed+" only", http.StatusMethodNotAllowed)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Message{Message: message})
}
