package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	appbootstrap "github.com/wolfman30/atacado-crm/internal/app/bootstrap"
	appconfig "github.com/wolfman30/atacado-crm/internal/config"
	"github.com/wolfman30/atacado-crm/pkg/logging"
)

func TestNewServerUsesPortAndHandler(t *testing.T) {
	handler := http.NewServeMux()
	srv := newServer(&appconfig.Config{Port: "9090"}, handler)
	if srv.Addr != ":9090" {
		t.Fatalf("expected :9090, got %s", srv.Addr)
	}
	if srv.Handler != handler {
		t.Fatalf("expected handler to be wired")
	}
	if srv.WriteTimeout != 0 || srv.ReadTimeout != 0 {
		t.Fatalf("body deadlines must stay unset for websockets")
	}
}

func TestInMemoryAppServesHealth(t *testing.T) {
	cfg := &appconfig.Config{Port: "0", ChatSessionTTL: time.Hour, ChatWorkers: 1}
	infra, cleanup, err := appbootstrap.BuildInfra(context.Background(), cfg, logging.Discard())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cleanup()
	app, err := appbootstrap.BuildApp(context.Background(), cfg, infra, logging.Discard())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	srv := httptest.NewServer(newServer(cfg, app.Handler).Handler)
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if err := app.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
