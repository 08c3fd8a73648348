// Package server hosts the identity broker's HTTP server lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/slideruleearth/sliderule-auth/internal/oauth"
	"github.com/slideruleearth/sliderule-auth/internal/platform/secrets"
)

// Server hosts the broker service.
type Server struct {
	listener   net.Listener
	httpServer *http.Server
	oauth      *oauth.Server
}

// New creates a configured broker server listening on httpAddr.
func New(httpAddr string) (*Server, error) {
	config, err := oauth.LoadConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("load oauth config: %w", err)
	}

	listener, err := net.Listen("tcp", httpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen on http addr %s: %w", httpAddr, err)
	}

	source := secrets.NewManagerSource(config.HTTPTimeout)
	oauthServer := oauth.NewServer(config, source)

	mux := http.NewServeMux()
	oauthServer.RegisterRoutes(mux)

	return &Server{
		listener:   listener,
		httpServer: &http.Server{Handler: mux},
		oauth:      oauthServer,
	}, nil
}

// Addr returns the listener address for the broker server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves a broker server until the context ends.
func Run(ctx context.Context, httpAddr string) error {
	srv, err := New(httpAddr)
	if err != nil {
		return err
	}
	return srv.Serve(ctx)
}

// Serve starts the broker server and blocks until it stops or the
// context ends.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	log.Printf("auth HTTP server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	handleErr := func(err error) error {
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
		return handleErr(<-serveErr)
	case err := <-serveErr:
		return handleErr(err)
	}
}
