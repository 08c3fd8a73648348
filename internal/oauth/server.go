// Package oauth implements the GitHub identity broker: the redirect and
// device OAuth flows, organization membership resolution, and bearer
// token issuance.
package oauth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/slideruleearth/sliderule-auth/internal/platform/secrets"
)

// Server hosts the broker's HTTP endpoints.
type Server struct {
	config   Config
	provider *providerClient
	secrets  *secrets.Cache
	clock    func() time.Time
}

// NewServer builds a broker server bound to config and a secret source.
func NewServer(config Config, source secrets.Source) *Server {
	httpClient := &http.Client{Timeout: config.HTTPTimeout}
	return &Server{
		config:   config,
		provider: newProviderClient(config.Provider, config.ClientID, httpClient),
		secrets:  secrets.NewCache(source),
		clock:    time.Now,
	}
}

// RegisterRoutes registers broker HTTP endpoints on the provided mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("/auth/login", s.handleLogin)
	mux.HandleFunc("/auth/callback", s.handleCallback)
	mux.HandleFunc("/auth/device", s.handleDevice)
	mux.HandleFunc("/auth/device/poll", s.handleDevicePoll)
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, "not_found", "resource not found")
	})
}

func (s *Server) signingKey(ctx context.Context) ([]byte, error) {
	key, err := s.secrets.GetSecret(ctx, s.config.SigningKeyID)
	if err != nil {
		return nil, err
	}
	return []byte(key), nil
}

func (s *Server) clientSecret(ctx context.Context) (string, error) {
	return s.secrets.GetSecret(ctx, s.config.ClientSecretID)
}

func (s *Server) stateCodec(key []byte) *stateCodec {
	return newStateCodec(key, s.config.StateExpiry, s.clock)
}

func (s *Server) tokenIssuer(key []byte) *tokenIssuer {
	return newTokenIssuer(key, s.config.Org, s.config.TokenExpiry, s.clock)
}

// callbackURL derives this deployment's callback endpoint from the
// request host. Local development hosts get plain http.
func (s *Server) callbackURL(r *http.Request) string {
	scheme := "https"
	host := r.Host
	if hostname := strings.SplitN(host, ":", 2)[0]; hostname == "localhost" || hostname == "127.0.0.1" {
		scheme = "http"
	}
	return scheme + "://" + host + "/auth/callback"
}
