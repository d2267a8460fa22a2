package catalog

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/atacado-crm/pkg/logging"
)

const maxImageBytes = 5 << 20

// Handler serves the public product list and the admin product endpoints.
type Handler struct {
	repo   Repository
	images *ImageStore
	logger *logging.Logger
}

func NewHandler(repo Repository, images *ImageStore, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, images: images, logger: logger}
}

// ListPublic handles GET /produtos.
func (h *Handler) ListPublic(w http.ResponseWriter, r *http.Request) {
	filter := parseFilter(r)
	filter.OnlyActive = true
	products, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list products", "error", err)
		http.Error(w, "failed to list products", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"produtos": products, "count": len(products)})
}

// ListAdmin handles GET /admin/produtos, including inactive rows.
func (h *Handler) ListAdmin(w http.ResponseWriter, r *http.Request) {
	filter := parseFilter(r)
	filter.OnlyActive = r.URL.Query().Get("ativo") == "true"
	products, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list products", "error", err)
		http.Error(w, "failed to list products", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"produtos": products, "count": len(products)})
}

// Get handles GET /admin/produtos/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.repo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Create handles POST /admin/produtos.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in ProductInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	p, err := h.repo.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.logger.Info("product created", "id", p.ID, "nome", p.Name)
	writeJSON(w, http.StatusCreated, p)
}

// Update handles PUT /admin/produtos/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var in ProductInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	p, err := h.repo.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Deactivate handles DELETE /admin/produtos/{id}. Products are never removed
// so historic conversations keep their references.
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.SetActive(r.Context(), chi.URLParam(r, "id"), false); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadImage handles POST /admin/produtos/{id}/imagem as multipart form field "imagem".
func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	if !h.images.Enabled() {
		http.Error(w, ErrImagesDisabled.Error(), http.StatusServiceUnavailable)
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := h.repo.Get(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes)
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		http.Error(w, "invalid multipart body", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("imagem")
	if err != nil {
		http.Error(w, "missing imagem field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	url, err := h.images.Upload(r.Context(), id, header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		h.logger.Error("failed to upload product image", "error", err, "product_id", id)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.repo.SetImageURL(r.Context(), id, url); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"imagem_url": url})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrProductNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrInvalidName), errors.Is(err, ErrInvalidPrice):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("catalog request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func parseFilter(r *http.Request) ListFilter {
	q := r.URL.Query()
	filter := ListFilter{
		Category: q.Get("categoria"),
		Search:   q.Get("q"),
		Limit:    100,
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 && limit <= 500 {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil && offset >= 0 {
		filter.Offset = offset
	}
	return filter
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
