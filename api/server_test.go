package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridbot/broker"
	"gridbot/notify"
	"gridbot/risk"
	"gridbot/store"
	"gridbot/strategy"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ledger := risk.NewLedger(risk.Limits{MaxOrder: 10_000, MaxContract: 300_000, MaxGlobal: 600_000}, broker.NewPaper(), notify.Nop{})
	return NewServer(ledger, strategy.NewTracker(), st, 0)
}

func doJSON(s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func validRow() strategy.Params {
	return strategy.Params{
		StrategyID:   "7",
		StrategyType: "grid",
		Active:       "true",
		Mode:         "STOCK",
		Symbol:       "AAPL",
		Exchange:     "SMART",
		Currency:     "USD",
		InitialPrice: "100",
		Step:         "2",
		OrderQty:     "5",
		BuyOrders:    "3",
		SellOrders:   "2",
		MaxLongRisk:  "10000",
		MaxShortRisk: "10000",
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(s, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestPutAndGetParameters(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(s, http.MethodPut, "/api/parameters", validRow())
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(s, http.MethodGet, "/api/parameters", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var rows []strategy.Params
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "7", rows[0].StrategyID)
	assert.Equal(t, "100", rows[0].InitialPrice)
}

func TestPutRejectsInvalidRow(t *testing.T) {
	s := newTestServer(t)

	bad := validRow()
	bad.Step = "junk"
	w := doJSON(s, http.MethodPut, "/api/parameters", bad)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "step")

	// Nothing was stored.
	w = doJSON(s, http.MethodGet, "/api/parameters", nil)
	assert.Equal(t, "[]", w.Body.String())
}

func TestDeleteParameter(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, doJSON(s, http.MethodPut, "/api/parameters", validRow()).Code)

	w := doJSON(s, http.MethodDelete, "/api/parameters/7", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(s, http.MethodGet, "/api/parameters", nil)
	assert.Equal(t, "[]", w.Body.String())
}

func TestConfirmParameterStampsRow(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, doJSON(s, http.MethodPut, "/api/parameters", validRow()).Code)

	w := doJSON(s, http.MethodPost, "/api/parameters/7/confirm", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(s, http.MethodGet, "/api/parameters", nil)
	var rows []strategy.Params
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.NotEmpty(t, rows[0].Confirmed)
}

func TestGetRisksBeforeAnyCheck(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(s, http.MethodGet, "/api/risks", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total"`)
}

func TestGetStrategiesEmptyList(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(s, http.MethodGet, "/api/strategies", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String())
}
