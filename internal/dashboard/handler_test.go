package dashboard

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/atacado-crm/pkg/logging"
)

func TestGetOverview(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2026, 5, 20, 12, 0, 0, 0, time.UTC)
	weekAgo := now.AddDate(0, 0, -7)
	h := NewHandler(db, logging.Discard())
	h.now = func() time.Time { return now }

	mock.ExpectQuery("SELECT status, COUNT\\(\\*\\) FROM leads GROUP BY status").
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("novo", 5).AddRow("contatado", 3).AddRow("convertido", 2))
	mock.ExpectQuery("SELECT origem, COUNT\\(\\*\\) FROM leads WHERE criado_em").WithArgs(weekAgo).
		WillReturnRows(sqlmock.NewRows([]string{"origem", "count"}).AddRow("chatbot", 4).AddRow("site", 1))
	mock.ExpectQuery("WHERE status = ANY").WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(8))
	mock.ExpectQuery("WHERE status = \\$1 AND criado_em < \\$2").WithArgs("novo", now.Add(-24*time.Hour)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("FROM conversas_ia WHERE criado_em").WithArgs(weekAgo).
		WillReturnRows(sqlmock.NewRows([]string{"sessions", "exchanges", "fallbacks"}).AddRow(6, 40, 4))
	mock.ExpectQuery("unnest\\(produtos_mencionados\\)").WithArgs(weekAgo).
		WillReturnRows(sqlmock.NewRows([]string{"produto", "total"}).AddRow("arroz", 9).AddRow("café", 3))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM produtos WHERE ativo").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	rec := httptest.NewRecorder()
	h.GetOverview(rec, httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp Overview
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "semana", resp.Period)
	assert.Equal(t, 10, resp.Leads.Total)
	assert.Equal(t, 8, resp.Leads.Open)
	assert.Equal(t, 5, resp.Leads.NewInPeriod)
	assert.InDelta(t, 20.0, resp.Leads.ConversionRate, 0.001)
	assert.InDelta(t, 10.0, resp.Conversations.FallbackRate, 0.001)
	require.Len(t, resp.TopProducts, 2)
	assert.Equal(t, "arroz", resp.TopProducts[0].Name)
	assert.Equal(t, 12, resp.ActiveProducts)
	require.Len(t, resp.PendingActions, 1)
	assert.Equal(t, "leads_sem_contato", resp.PendingActions[0].Type)
	assert.Equal(t, 2, resp.PendingActions[0].Count)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOverview_EmptyDatabase(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2026, 5, 20, 12, 0, 0, 0, time.UTC)
	h := NewHandler(db, logging.Discard())
	h.now = func() time.Time { return now }

	mock.ExpectQuery("FROM leads GROUP BY status").WillReturnRows(sqlmock.NewRows([]string{"status", "count"}))
	mock.ExpectQuery("FROM leads WHERE criado_em").WithArgs(time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC)).
		WillReturnRows(sqlmock.NewRows([]string{"origem", "count"}))
	mock.ExpectQuery("WHERE status = ANY").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("criado_em < \\$2").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("FROM conversas_ia WHERE").WillReturnRows(sqlmock.NewRows([]string{"a", "b", "c"}).AddRow(0, 0, 0))
	mock.ExpectQuery("unnest").WillReturnRows(sqlmock.NewRows([]string{"produto", "total"}))
	mock.ExpectQuery("FROM produtos WHERE ativo").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	rec := httptest.NewRecorder()
	h.GetOverview(rec, httptest.NewRequest(http.MethodGet, "/admin/dashboard?periodo=hoje", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp Overview
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "hoje", resp.Period)
	assert.Zero(t, resp.Leads.ConversionRate)
	assert.Zero(t, resp.Conversations.FallbackRate)
	assert.Empty(t, resp.TopProducts)
	require.Len(t, resp.PendingActions, 1)
	assert.Equal(t, "catalogo_vazio", resp.PendingActions[0].Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOverview_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM leads GROUP BY status").WillReturnError(errors.New("connection reset"))

	rec := httptest.NewRecorder()
	NewHandler(db, logging.Discard()).GetOverview(rec, httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
