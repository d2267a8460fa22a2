package chatlog

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/wolfman30/atacado-crm/pkg/logging"
)

// Handler serves the admin conversation viewer.
type Handler struct {
	repo   Repository
	logger *logging.Logger
}

func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, logger: logger}
}

type listResponse struct {
	SessionID string  `json:"sessao_id"`
	Entries   []Entry `json:"conversas"`
	Count     int     `json:"count"`
}

// ListBySession handles GET /admin/conversas?sessao_id=.
func (h *Handler) ListBySession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessao_id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.repo.ListBySession(r.Context(), sessionID, limit)
	if err != nil {
		if errors.Is(err, ErrMissingSession) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("failed to list conversations", "error", err, "session_id", sessionID)
		http.Error(w, "failed to list conversations", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(listResponse{SessionID: sessionID, Entries: entries, Count: len(entries)})
}
