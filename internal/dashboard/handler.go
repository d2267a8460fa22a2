package dashboard

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lib/pq"

	"github.com/wolfman30/atacado-crm/internal/leads"
	"github.com/wolfman30/atacado-crm/pkg/logging"
)

// staleAfter is how long a lead may sit in "novo" before it is flagged.
const staleAfter = 24 * time.Hour

// Handler serves the admin dashboard overview.
type Handler struct {
	db     *sql.DB
	logger *logging.Logger
	now    func() time.Time
}

func NewHandler(db *sql.DB, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{db: db, logger: logger, now: time.Now}
}

// Overview contains the dashboard metrics.
type Overview struct {
	Period         string              `json:"periodo"`
	Since          time.Time           `json:"desde"`
	Leads          LeadMetrics         `json:"leads"`
	Conversations  ConversationMetrics `json:"conversas"`
	TopProducts    []ProductMention    `json:"produtos_mais_citados"`
	ActiveProducts int                 `json:"produtos_ativos"`
	PendingActions []PendingAction     `json:"acoes_pendentes"`
}

type LeadMetrics struct {
	Total          int            `json:"total"`
	Open           int            `json:"abertos"`
	ByStatus       map[string]int `json:"por_status"`
	NewInPeriod    int            `json:"novos_no_periodo"`
	ByOrigin       map[string]int `json:"por_origem"`
	ConversionRate float64        `json:"taxa_conversao"`
}

type ConversationMetrics struct {
	Sessions     int     `json:"sessoes"`
	Exchanges    int     `json:"mensagens"`
	Fallbacks    int     `json:"fallbacks"`
	FallbackRate float64 `json:"taxa_fallback"`
}

type ProductMention struct {
	Name  string `json:"nome"`
	Count int    `json:"total"`
}

// PendingAction represents something staff should act on.
type PendingAction struct {
	Type        string `json:"tipo"`
	Description string `json:"descricao"`
	Count       int    `json:"total"`
	Link        string `json:"link,omitempty"`
}

var openStatuses = []string{
	string(leads.StatusNew),
	string(leads.StatusContacted),
	string(leads.StatusQualified),
}

// periodStart maps ?periodo= to the start of the window.
func periodStart(period string, now time.Time) (string, time.Time) {
	switch period {
	case "hoje", "today":
		y, m, d := now.Date()
		return "hoje", time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	case "mes", "month":
		return "mes", now.AddDate(0, -1, 0)
	default:
		return "semana", now.AddDate(0, 0, -7)
	}
}

// GetOverview handles GET /admin/dashboard.
func (h *Handler) GetOverview(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	period, since := periodStart(r.URL.Query().Get("periodo"), now)

	overview, err := h.overview(r.Context(), now, since)
	if err != nil {
		h.logger.Error("failed to build dashboard", "error", err)
		http.Error(w, "failed to build dashboard", http.StatusInternalServerError)
		return
	}
	overview.Period = period
	overview.Since = since

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(overview)
}

func (h *Handler) overview(ctx context.Context, now, since time.Time) (*Overview, error) {
	out := &Overview{
		Leads: LeadMetrics{
			ByStatus: map[string]int{},
			ByOrigin: map[string]int{},
		},
		TopProducts:    []ProductMention{},
		PendingActions: []PendingAction{},
	}

	if err := h.countBy(ctx, out.Leads.ByStatus,
		`SELECT status, COUNT(*) FROM leads GROUP BY status`); err != nil {
		return nil, err
	}
	for _, n := range out.Leads.ByStatus {
		out.Leads.Total += n
	}
	if out.Leads.Total > 0 {
		out.Leads.ConversionRate = float64(out.Leads.ByStatus[string(leads.StatusConverted)]) / float64(out.Leads.Total) * 100
	}

	if err := h.countBy(ctx, out.Leads.ByOrigin,
		`SELECT origem, COUNT(*) FROM leads WHERE criado_em >= $1 GROUP BY origem`, since); err != nil {
		return nil, err
	}
	for _, n := range out.Leads.ByOrigin {
		out.Leads.NewInPeriod += n
	}

	if err := h.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM leads WHERE status = ANY($1)`, pq.Array(openStatuses),
	).Scan(&out.Leads.Open); err != nil {
		return nil, fmt.Errorf("dashboard: open leads: %w", err)
	}

	var stale int
	if err := h.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM leads WHERE status = $1 AND criado_em < $2`, string(leads.StatusNew), now.Add(-staleAfter),
	).Scan(&stale); err != nil {
		return nil, fmt.Errorf("dashboard: stale leads: %w", err)
	}
	if stale > 0 {
		out.PendingActions = append(out.PendingActions, PendingAction{
			Type:        "leads_sem_contato",
			Description: "Leads novos há mais de 24h sem contato",
			Count:       stale,
			Link:        "/admin/leads?status=novo",
		})
	}

	if err := h.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT sessao_id), COUNT(*), COUNT(*) FILTER (WHERE usou_fallback)
		 FROM conversas_ia WHERE criado_em >= $1`, since,
	).Scan(&out.Conversations.Sessions, &out.Conversations.Exchanges, &out.Conversations.Fallbacks); err != nil {
		return nil, fmt.Errorf("dashboard: conversations: %w", err)
	}
	if out.Conversations.Exchanges > 0 {
		out.Conversations.FallbackRate = float64(out.Conversations.Fallbacks) / float64(out.Conversations.Exchanges) * 100
	}

	rows, err := h.db.QueryContext(ctx,
		`SELECT produto, COUNT(*) AS total
		 FROM conversas_ia, unnest(produtos_mencionados) AS produto
		 WHERE criado_em >= $1
		 GROUP BY produto ORDER BY total DESC, produto ASC LIMIT 5`, since)
	if err != nil {
		return nil, fmt.Errorf("dashboard: top products: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var m ProductMention
		if err := rows.Scan(&m.Name, &m.Count); err != nil {
			return nil, fmt.Errorf("dashboard: scan product: %w", err)
		}
		out.TopProducts = append(out.TopProducts, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := h.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM produtos WHERE ativo`,
	).Scan(&out.ActiveProducts); err != nil {
		return nil, fmt.Errorf("dashboard: active products: %w", err)
	}
	if out.ActiveProducts == 0 {
		out.PendingActions = append(out.PendingActions, PendingAction{
			Type:        "catalogo_vazio",
			Description: "Nenhum produto ativo; o chatbot encaminhará perguntas de preço para a equipe",
			Link:        "/admin/produtos",
		})
	}
	return out, nil
}

func (h *Handler) countBy(ctx context.Context, into map[string]int, query string, args ...any) error {
	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("dashboard: query: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("dashboard: scan: %w", err)
		}
		into[key] = n
	}
	return rows.Err()
}
