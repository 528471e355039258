package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"FinOpsLedger/api"
	"FinOpsLedger/api/constants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postMutable(t *testing.T, store Store, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/ledger/transactions/mutable", strings.NewReader(body))
	ctx := context.WithValue(req.Context(), api.UserIDKey, "user-1")
	ctx = context.WithValue(ctx, api.CompanyIDKey, "co-1")
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	mutableHandler(store)(rr, req)
	return rr
}

func TestMutableHandlerLockedPeriodForbidden(t *testing.T) {
	store := newFakeStore()
	start, err := time.Parse("2006-01-02", "2024-01-01")
	require.NoError(t, err)
	end, err := time.Parse("2006-01-02", "2024-01-07")
	require.NoError(t, err)
	store.periods = append(store.periods, fakePeriod{start, end, "locked"})

	rr := postMutable(t, store, `{"user_id":"user-1","date":"2024-01-03"}`)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["success"])
	assert.Equal(t, false, resp["mutable"], "refusal carries the mutability flag")
	assert.Equal(t, constants.ErrPeriodLocked, resp["error"])
}

func TestMutableHandlerOpenDate(t *testing.T) {
	rr := postMutable(t, newFakeStore(), `{"user_id":"user-1","date":"2024-01-03"}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, true, resp["mutable"])
	_, hasError := resp["error"]
	assert.False(t, hasError)
}

func TestMutableHandlerRejectsBadDate(t *testing.T) {
	rr := postMutable(t, newFakeStore(), `{"user_id":"user-1","date":"03/01/2024"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = postMutable(t, newFakeStore(), `{"user_id":"user-1"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
