package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"

	appbootstrap "github.com/wolfman30/atacado-crm/internal/app/bootstrap"
	appconfig "github.com/wolfman30/atacado-crm/internal/config"
	"github.com/wolfman30/atacado-crm/pkg/logging"
)

func request(method, path, body string) events.APIGatewayV2HTTPRequest {
	return events.APIGatewayV2HTTPRequest{
		RawPath: path,
		Body:    body,
		Headers: map[string]string{"content-type": "application/json"},
		RequestContext: events.APIGatewayV2HTTPRequestContext{
			DomainName: "api.loja.com",
			HTTP: events.APIGatewayV2HTTPRequestContextHTTPDescription{
				Method:   method,
				Path:     path,
				SourceIP: "203.0.113.9",
			},
		},
	}
}

func TestHandleForwardsToHandler(t *testing.T) {
	var seen *http.Request
	var seenBody string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r
		b, _ := io.ReadAll(r.Body)
		seenBody = string(b)
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "1"})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	evt := request(http.MethodPost, "/leads", `{"nome":"Ana"}`)
	evt.RawQueryString = "origem=site"
	resp, err := handle(context.Background(), handler, evt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if resp.Body != `{"ok":true}` || resp.IsBase64Encoded {
		t.Fatalf("unexpected body %q (base64=%v)", resp.Body, resp.IsBase64Encoded)
	}
	if resp.Headers["content-type"] != "application/json" {
		t.Fatalf("expected content type header, got %v", resp.Headers)
	}
	if len(resp.Cookies) != 1 {
		t.Fatalf("expected cookie to move to Cookies, got %v", resp.Cookies)
	}
	if seen.URL.Query().Get("origem") != "site" || seenBody != `{"nome":"Ana"}` {
		t.Fatalf("request not forwarded intact: %s %q", seen.URL, seenBody)
	}
	if seen.Header.Get("X-Forwarded-For") != "203.0.113.9" || seen.Host != "api.loja.com" {
		t.Fatalf("expected client ip and host, got %q %q", seen.Header.Get("X-Forwarded-For"), seen.Host)
	}
}

func TestHandleDecodesBase64Body(t *testing.T) {
	var got string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got = string(b)
	})
	evt := request(http.MethodPost, "/leads", base64.StdEncoding.EncodeToString([]byte("olá")))
	evt.IsBase64Encoded = true
	resp, err := handle(context.Background(), handler, evt)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected response %d / %v", resp.StatusCode, err)
	}
	if got != "olá" {
		t.Fatalf("expected decoded body, got %q", got)
	}

	evt.Body = "%%%"
	resp, _ = handle(context.Background(), handler, evt)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad base64, got %d", resp.StatusCode)
	}
}

func TestHandleRejectsWebSocket(t *testing.T) {
	resp, err := handle(context.Background(), http.NotFoundHandler(), request(http.MethodGet, "/chat/ws", ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", resp.StatusCode)
	}
}

func TestHandleBinaryBodyIsBase64(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte{0xff, 0xfe, 0x00})
	})
	resp, _ := handle(context.Background(), handler, request(http.MethodGet, "/x", ""))
	if !resp.IsBase64Encoded {
		t.Fatalf("expected binary body to be base64 encoded")
	}
}

func TestHandleServesChatSession(t *testing.T) {
	cfg := &appconfig.Config{ChatSessionTTL: time.Hour, ChatWorkers: 1}
	app, err := appbootstrap.BuildApp(context.Background(), cfg, appbootstrap.Infra{}, logging.Discard())
	if err != nil {
		t.Fatalf("build app: %v", err)
	}
	defer app.Shutdown(context.Background())

	resp, err := handle(context.Background(), app.Handler, request(http.MethodPost, "/chat/sessions", ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, resp.Body)
	}
	var view struct {
		SessionID string `json:"sessionId"`
		Stage     string `json:"stage"`
	}
	if err := json.Unmarshal([]byte(resp.Body), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.SessionID == "" || view.Stage != "collecting_name" {
		t.Fatalf("unexpected session view: %+v", view)
	}
}
