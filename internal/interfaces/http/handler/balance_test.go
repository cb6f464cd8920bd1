package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/flexidesk/backend/internal/application/balance"
	"github.com/flexidesk/backend/internal/application/exports"
	"github.com/flexidesk/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func saldoServer(t *testing.T, calls *atomic.Int32) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.True(t, strings.HasPrefix(r.URL.Path, "/c/demo/saldo-k-datu/"), r.URL.Path)
		if strings.Contains(r.URL.Path, "modul = 'FAP'") {
			writeWinstrom(w, http.StatusOK, map[string]any{"@rowCount": "0", "saldo-k-datu": []any{}})
			return
		}
		writeWinstrom(w, http.StatusOK, map[string]any{
			"@rowCount": "2",
			"saldo-k-datu": []any{
				map[string]any{"firma": "code:ACME", "nazFirmy": "ACME s.r.o.", "datSplat": "2024-01-15+01:00", "zbyvaUhradit": "500.0"},
				map[string]any{"firma": "code:ACME", "nazFirmy": "ACME s.r.o.", "datSplat": "2024-12-31+01:00", "zbyvaUhradit": "300.0"},
			},
		})
	}
}

func balanceRouter(t *testing.T, handler http.HandlerFunc) *gin.Engine {
	t.Helper()

	client := newFlexiServer(t, handler)
	h := NewBalanceHandler(balance.NewService(client, exports.NewPublisher(nil)))

	router := gin.New()
	router.GET("/api/v1/flexi/customer-balance", h.CustomerBalance)
	router.GET("/api/v1/flexi/export-customer-balance", h.ExportCustomerBalance)
	return router
}

func TestCustomerBalance(t *testing.T) {
	var calls atomic.Int32
	router := balanceRouter(t, saldoServer(t, &calls))

	w := serve(router, http.MethodGet, "/api/v1/flexi/customer-balance?year=2024", nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, int32(2), calls.Load())

	var resp struct {
		Success bool           `json:"success"`
		Data    balance.Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.Len(t, resp.Data.Balances, 1)
	acme := resp.Data.Balances[0]
	assert.Equal(t, "ACME", acme.Code)
	assert.Equal(t, "800", acme.Net.String())
	assert.Equal(t, 2, acme.UnpaidCount)
	assert.Equal(t, 1, resp.Data.Total)
	assert.Equal(t, 1, resp.Data.TotalPages)
	assert.Equal(t, 100, resp.Data.Limit)
	assert.False(t, resp.Data.Truncated)
}

func TestCustomerBalance_MinSaldoFiltersOut(t *testing.T) {
	var calls atomic.Int32
	router := balanceRouter(t, saldoServer(t, &calls))

	w := serve(router, http.MethodGet, "/api/v1/flexi/customer-balance?year=2024&minSaldo=801", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data balance.Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Data.Balances)
	assert.Equal(t, 0, resp.Data.Total)
}

func TestCustomerBalance_InvalidQuery(t *testing.T) {
	var calls atomic.Int32
	router := balanceRouter(t, saldoServer(t, &calls))

	for _, query := range []string{
		"page=abc",
		"page=0",
		"limit=-1",
		"limit=10001",
		"filterType=everything",
		"minSaldo=lots",
		"year=x",
	} {
		t.Run(query, func(t *testing.T) {
			w := serve(router, http.MethodGet, "/api/v1/flexi/customer-balance?"+query, nil)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, dto.ErrCodeValidation, decodeError(t, w).Code)
		})
	}
	assert.Zero(t, calls.Load())
}

func TestCustomerBalance_UpstreamError(t *testing.T) {
	router := balanceRouter(t, func(w http.ResponseWriter, r *http.Request) {
		writeWinstrom(w, http.StatusUnauthorized, map[string]any{"success": "false", "message": "Chybné přihlašovací údaje"})
	})

	w := serve(router, http.MethodGet, "/api/v1/flexi/customer-balance", nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, dto.ErrCodeUpstream, resp.Code)
	assert.Equal(t, "Chybné přihlašovací údaje", resp.Error)
	assert.Equal(t, http.StatusUnauthorized, resp.Status)
}

func TestExportCustomerBalance_CSV(t *testing.T) {
	var calls atomic.Int32
	router := balanceRouter(t, saldoServer(t, &calls))

	w := serve(router, http.MethodGet, "/api/v1/flexi/export-customer-balance?year=2024", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Regexp(t, `attachment; filename=saldo-odberatelu-\d{4}-\d{2}-\d{2}\.csv`, w.Header().Get("Content-Disposition"))
	assert.Empty(t, w.Header().Get(HeaderTruncated))
	assert.Empty(t, w.Header().Get(HeaderArchiveKey))

	body := w.Body.String()
	assert.True(t, strings.HasPrefix(body, "\ufeff"))
	assert.Contains(t, body, "ACME;ACME s.r.o.;800,00;0,00;800,00;2;")
}

func TestExportCustomerBalance_XLSX(t *testing.T) {
	var calls atomic.Int32
	router := balanceRouter(t, saldoServer(t, &calls))

	w := serve(router, http.MethodGet, "/api/v1/flexi/export-customer-balance?year=2024&format=xlsx", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")
	// xlsx is a zip container
	assert.True(t, strings.HasPrefix(w.Body.String(), "PK"))
}

func TestExportCustomerBalance_BadFormat(t *testing.T) {
	var calls atomic.Int32
	router := balanceRouter(t, saldoServer(t, &calls))

	w := serve(router, http.MethodGet, "/api/v1/flexi/export-customer-balance?format=pdf", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, calls.Load())
}

func TestExportCustomerBalance_Truncated(t *testing.T) {
	router := balanceRouter(t, func(w http.ResponseWriter, r *http.Request) {
		writeWinstrom(w, http.StatusOK, map[string]any{
			"@rowCount": "25000",
			"saldo-k-datu": []any{
				map[string]any{"firma": "code:BIG", "nazFirmy": "Big a.s.", "datSplat": "2024-03-01", "zbyvaUhradit": "5000"},
			},
		})
	})

	w := serve(router, http.MethodGet, "/api/v1/flexi/export-customer-balance?year=2024", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "true", w.Header().Get(HeaderTruncated))
}
