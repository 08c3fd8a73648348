package server

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"
)

func TestServeStopsOnContextCancel(t *testing.T) {
	t.Setenv("GITHUB_CLIENT_ID", "test-client-id")

	srv, err := New("127.0.0.1:0")
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if srv.Addr() == "" {
		t.Fatal("expected a bound listener address")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx)
	}()

	resp, err := http.Get("http://" + srv.Addr() + "/up")
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "OK" {
		t.Errorf("expected OK health check, got %d %q", resp.StatusCode, body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after context cancellation")
	}
}
