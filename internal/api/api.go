// Package api provides the HTTP surface for Sokoflow.
//
// It exposes the Twilio inbound webhook, a JSON message injection endpoint
// for testing and non-WhatsApp channels, and a conversation state lookup.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sokoflow/sokoflow/internal/messaging"
	"github.com/sokoflow/sokoflow/internal/store"
)

// DefaultAddr is the listen address when none is configured.
const DefaultAddr = ":8080"

// Timeouts for the HTTP server.
const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr          string
	DefaultTenant string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithDefaultTenant sets the tenant used by webhooks that carry no tenant
// identifier of their own.
func WithDefaultTenant(tenant string) Option {
	return func(o *Opts) { o.DefaultTenant = tenant }
}

// Server ties the HTTP handlers to the inbound processor and state store.
type Server struct {
	processor     *messaging.Processor
	st            store.Store
	defaultTenant string
	httpServer    *http.Server
}

// NewServer creates the API server.
func NewServer(processor *messaging.Processor, st store.Store, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	s := &Server{
		processor:     processor,
		st:            st,
		defaultTenant: cfg.DefaultTenant,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/webhook/twilio", s.twilioWebhookHandler)
	mux.HandleFunc("/messages", s.injectMessageHandler)
	mux.HandleFunc("/conversations/state", s.conversationStateHandler)
	mux.HandleFunc("/health", s.healthHandler)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// Run starts the server and blocks until the context is canceled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: API listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("API server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("API server shutdown failed: %w", err)
	}
	slog.Info("Server.Run: API stopped")
	return nil
}
