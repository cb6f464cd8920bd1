package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/flexidesk/backend/internal/application/evidence"
	"github.com/flexidesk/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evidenceRouter(t *testing.T, handler http.HandlerFunc) *gin.Engine {
	t.Helper()

	h := NewEvidenceHandler(evidence.NewService(newFlexiServer(t, handler)))

	router := gin.New()
	group := router.Group("/api/v1/flexi")
	group.GET("/connection", h.Connection)
	group.GET("/evidences", h.Evidences)
	group.GET("/evidence/:evidence", h.List)
	group.GET("/evidence/:evidence/sum", h.Sum)
	group.GET("/evidence/:evidence/:id", h.Get)
	group.POST("/evidence/:evidence", h.Create)
	group.PUT("/evidence/:evidence", h.Update)
	group.DELETE("/evidence/:evidence", h.Delete)
	return router
}

func noRemote(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected remote call %s %s", r.Method, r.URL.Path)
	}
}

func TestEvidence_List(t *testing.T) {
	router := evidenceRouter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/c/demo/adresar/(nazev like 'ACME').json", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "summary", q.Get("detail"))
		assert.Equal(t, "20", q.Get("limit"))
		assert.Equal(t, "0", q.Get("start"))
		assert.Equal(t, "true", q.Get("add-row-count"))
		writeWinstrom(w, http.StatusOK, map[string]any{
			"@rowCount": "57",
			"adresar":   []any{map[string]any{"id": "1", "kod": "ACME"}},
		})
	})

	w := serve(router, http.MethodGet, "/api/v1/flexi/evidence/adresar?filter=nazev+like+'ACME'", nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Data struct {
			Rows     []map[string]any `json:"rows"`
			RowCount int              `json:"rowCount"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data.Rows, 1)
	assert.Equal(t, 57, resp.Data.RowCount)
}

func TestEvidence_InvalidSlug(t *testing.T) {
	router := evidenceRouter(t, noRemote(t))

	w := serve(router, http.MethodGet, "/api/v1/flexi/evidence/Adresar_1", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, dto.ErrCodeValidation, decodeError(t, w).Code)
}

func TestEvidence_NonNumericLimit(t *testing.T) {
	router := evidenceRouter(t, noRemote(t))

	w := serve(router, http.MethodGet, "/api/v1/flexi/evidence/adresar?limit=ten", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEvidence_GetNotFound(t *testing.T) {
	router := evidenceRouter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/c/demo/adresar/999.json", r.URL.Path)
		writeWinstrom(w, http.StatusOK, map[string]any{"adresar": []any{}})
	})

	w := serve(router, http.MethodGet, "/api/v1/flexi/evidence/adresar/999", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, dto.ErrCodeNotFound, decodeError(t, w).Code)
}

func TestEvidence_Sum(t *testing.T) {
	router := evidenceRouter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/c/demo/faktura-vydana/(stavUhrK = 'stavUhr.neuhrazeno')/$sum.json", r.URL.Path)
		writeWinstrom(w, http.StatusOK, map[string]any{"sum": map[string]any{"sumCelkem": "1234.50"}})
	})

	w := serve(router, http.MethodGet, "/api/v1/flexi/evidence/faktura-vydana/sum?filter=stavUhrK+%3D+'stavUhr.neuhrazeno'", nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "1234.50")
}

func TestEvidence_Create(t *testing.T) {
	router := evidenceRouter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/c/demo/adresar.json", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("dry-run"))
		raw, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"winstrom":{"adresar":[{"kod":"NEW","nazev":"New s.r.o."}]}}`, string(raw))
		writeWinstrom(w, http.StatusCreated, map[string]any{"success": "true", "results": []any{map[string]any{"id": "77"}}})
	})

	w := serve(router, http.MethodPost, "/api/v1/flexi/evidence/adresar?dryRun=true", strings.NewReader(`{"kod":"NEW","nazev":"New s.r.o."}`))

	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestEvidence_CreateEmptyBody(t *testing.T) {
	router := evidenceRouter(t, noRemote(t))

	w := serve(router, http.MethodPost, "/api/v1/flexi/evidence/adresar", strings.NewReader(` `))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEvidence_Update(t *testing.T) {
	router := evidenceRouter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/c/demo/adresar/5.json", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"winstrom":{"adresar":[{"nazev":"Renamed","id":"5"}]}}`, string(raw))
		writeWinstrom(w, http.StatusOK, map[string]any{"success": "true"})
	})

	w := serve(router, http.MethodPut, "/api/v1/flexi/evidence/adresar?id=5", strings.NewReader(`{"nazev":"Renamed"}`))

	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestEvidence_MissingID(t *testing.T) {
	router := evidenceRouter(t, noRemote(t))

	for _, method := range []string{http.MethodPut, http.MethodDelete} {
		t.Run(method, func(t *testing.T) {
			w := serve(router, method, "/api/v1/flexi/evidence/adresar", strings.NewReader(`{"nazev":"x"}`))
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestEvidence_Delete(t *testing.T) {
	router := evidenceRouter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/c/demo/adresar/5.json", r.URL.Path)
		writeWinstrom(w, http.StatusOK, map[string]any{"success": "true"})
	})

	w := serve(router, http.MethodDelete, "/api/v1/flexi/evidence/adresar?id=5", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true}`, w.Body.String())
}

func TestEvidence_ConnectionFailureIsPayload(t *testing.T) {
	router := evidenceRouter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	w := serve(router, http.MethodGet, "/api/v1/flexi/connection", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data struct {
			OK    bool   `json:"ok"`
			Error string `json:"error"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Data.OK)
	assert.NotEmpty(t, resp.Data.Error)
}

func TestEvidence_Registry(t *testing.T) {
	router := evidenceRouter(t, noRemote(t))

	w := serve(router, http.MethodGet, "/api/v1/flexi/evidences", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "faktura-vydana")
	assert.Contains(t, w.Body.String(), "skladova-karta")
}
