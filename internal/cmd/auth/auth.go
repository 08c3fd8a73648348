// Package auth parses auth command flags and runs the broker HTTP server.
package auth

import (
	"context"
	"flag"
	"log"
	"time"

	server "github.com/slideruleearth/sliderule-auth/internal/app"
	"github.com/slideruleearth/sliderule-auth/internal/platform/config"
	"github.com/slideruleearth/sliderule-auth/internal/platform/otel"
)

// Config holds auth command configuration.
type Config struct {
	HTTPAddr string `env:"SLIDERULE_AUTH_HTTP_ADDR" envDefault:":8080"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "The auth HTTP server address")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the broker server.
func Run(ctx context.Context, cfg Config) error {
	shutdown, err := otel.Setup(ctx, "auth")
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Printf("otel shutdown: %v", err)
		}
	}()

	return server.Run(ctx, cfg.HTTPAddr)
}
