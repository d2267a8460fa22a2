package webchat

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/websocket"

	"github.com/wolfman30/atacado-crm/internal/chatbot"
	"github.com/wolfman30/atacado-crm/pkg/logging"
)

//go:embed widget.js
var defaultWidgetJS []byte

// Sessions is the part of chatbot.Registry the transport needs.
type Sessions interface {
	Create(ctx context.Context) *chatbot.Session
	Get(ctx context.Context, id string) (*chatbot.Session, error)
	Save(ctx context.Context, s *chatbot.Session)
	Reset(ctx context.Context, s *chatbot.Session)
}

// Handler exposes chat sessions over HTTP and WebSocket.
type Handler struct {
	sessions Sessions
	logger   *logging.Logger
	loc      *time.Location
	widgetJS []byte
	// sendBuffer bounds queued frames per WebSocket; typing frames beyond
	// it are dropped, completed turns are not.
	sendBuffer int
}

// InboundMessage is what the widget sends over the socket.
type InboundMessage struct {
	Type string `json:"type"` // "message", "reset", "ping"
	Text string `json:"text"`
}

// OutboundMessage is what the widget receives over the socket.
type OutboundMessage struct {
	Type      string                `json:"type"` // session, reply, error, pong or a chatbot event type
	SessionID string                `json:"sessionId,omitempty"`
	Stage     chatbot.Stage         `json:"stage,omitempty"`
	Status    chatbot.Status        `json:"status,omitempty"`
	Turn      *chatbot.RenderedTurn `json:"turn,omitempty"`
	Session   *SessionView          `json:"session,omitempty"`
	Reply     *ReplyView            `json:"reply,omitempty"`
	Text      string                `json:"text,omitempty"`
}

// NewHandler creates a web chat handler. loc is the time zone turn times are
// rendered in; widgetJS overrides the embedded widget when non-empty.
func NewHandler(sessions Sessions, loc *time.Location, widgetJS []byte, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	if len(widgetJS) == 0 {
		widgetJS = defaultWidgetJS
	}
	return &Handler{
		sessions:   sessions,
		logger:     logger,
		loc:        loc,
		widgetJS:   widgetJS,
		sendBuffer: 64,
	}
}

// work detaches chat processing from the request so a dropped connection
// does not abort a reply halfway through typing.
func work(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

// CreateSession handles POST /chat/sessions: it starts a conversation and
// returns it with the welcome message.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := work(r)
	s := h.sessions.Create(ctx)
	s.Initialize(ctx)
	h.sessions.Save(ctx, s)

	h.logger.Info("webchat: session created", "session_id", s.ID())
	writeJSON(w, http.StatusCreated, viewOf(s, h.loc))
}

// GetSession handles GET /chat/sessions/{id}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(s, h.loc))
}

type sendRequest struct {
	Text string `json:"text"`
}

// SendMessage handles POST /chat/sessions/{id}/messages. The response is
// written once every bot reply for the message has been typed.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	ctx := work(r)
	reply := s.SendMessage(ctx, req.Text)
	if !reply.Ignored {
		h.sessions.Save(ctx, s)
	}
	writeJSON(w, http.StatusOK, replyView(reply, h.loc))
}

// ResetSession handles POST /chat/sessions/{id}/reset. The conversation
// starts over with a fresh welcome message.
func (h *Handler) ResetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	ctx := work(r)
	h.sessions.Reset(ctx, s)
	s.Initialize(ctx)
	h.sessions.Save(ctx, s)

	h.logger.Info("webchat: session reset", "session_id", s.ID())
	writeJSON(w, http.StatusOK, viewOf(s, h.loc))
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*chatbot.Session, bool) {
	id := chi.URLParam(r, "id")
	s, err := h.sessions.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, chatbot.ErrSessionNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return nil, false
		}
		h.logger.Error("webchat: failed to load session", "session_id", id, "error", err)
		http.Error(w, "failed to load session", http.StatusInternalServerError)
		return nil, false
	}
	return s, true
}

// HandleWebSocket handles GET /chat/ws?session=<id>. Without a session id a
// new conversation is started. Every session event, including each typing
// update, is pushed to the socket.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Server{
		// Origin is not checked: the widget is embedded on partner pages.
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
		Handler: func(conn *websocket.Conn) {
			h.serveWS(conn, r)
		},
	}.ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	ctx := work(r)

	var s *chatbot.Session
	if id := r.URL.Query().Get("session"); id != "" {
		existing, err := h.sessions.Get(r.Context(), id)
		if err != nil {
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "error", Text: "session not found"})
			return
		}
		s = existing
	}

	out := make(chan OutboundMessage, h.sendBuffer)
	done := make(chan struct{})
	defer close(done)

	push := func(msg OutboundMessage, lossy bool) {
		if lossy {
			select {
			case out <- msg:
			case <-done:
			default:
			}
			return
		}
		select {
		case out <- msg:
		case <-done:
		}
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case msg := <-out:
				if err := websocket.JSON.Send(conn, msg); err != nil {
					h.logger.Debug("webchat: write failed", "error", err)
					return
				}
			case <-done:
				return
			}
		}
	}()

	fresh := s == nil
	if fresh {
		s = h.sessions.Create(ctx)
	}
	stop := s.Observe(func(evt chatbot.Event) {
		push(eventMessage(evt, h.loc), evt.Type == chatbot.EventTurnUpdated)
	})
	defer stop()

	if fresh {
		go func() {
			s.Initialize(ctx)
			h.sessions.Save(ctx, s)
		}()
	}
	view := viewOf(s, h.loc)
	push(OutboundMessage{Type: "session", SessionID: s.ID(), Session: &view}, false)

	h.logger.Info("webchat: connection opened", "session_id", s.ID())
	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("webchat: connection closed", "session_id", s.ID(), "error", err)
			return
		}
		select {
		case <-writerDone:
			return
		default:
		}

		switch msg.Type {
		case "ping":
			push(OutboundMessage{Type: "pong"}, false)
		case "reset":
			h.sessions.Reset(ctx, s)
			go func() {
				s.Initialize(ctx)
				h.sessions.Save(ctx, s)
			}()
		case "message":
			if strings.TrimSpace(msg.Text) == "" {
				continue
			}
			text := msg.Text
			// Replies are typed asynchronously so a reset can arrive mid-reply.
			go func() {
				reply := s.SendMessage(ctx, text)
				if !reply.Ignored {
					h.sessions.Save(ctx, s)
				}
				view := replyView(reply, h.loc)
				push(OutboundMessage{Type: "reply", SessionID: s.ID(), Reply: &view}, false)
			}()
		}
	}
}

// HandleWidgetJS serves the embeddable widget JavaScript.
func (h *Handler) HandleWidgetJS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	_, _ = w.Write(h.widgetJS)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
