package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"FinOpsLedger/api"
	"FinOpsLedger/api/constants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postPeriodAction(t *testing.T, store PeriodStore, recorder Recorder, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/audit/periods/action", strings.NewReader(body))
	ctx := context.WithValue(req.Context(), api.UserIDKey, userID)
	ctx = context.WithValue(ctx, api.CompanyIDKey, "co-1")
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	periodActionHandler(store, recorder)(rr, req)
	return rr
}

func TestPeriodActionHandlerNonAdminForbidden(t *testing.T) {
	store := &fakePeriodStore{roles: map[string]string{"member-1": "member"}}

	rr := postPeriodAction(t, store, nil, "member-1",
		`{"user_id":"member-1","period_start":"2024-01-01","period_end":"2024-01-31","action":"lock"}`)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["success"])
	assert.Equal(t, constants.ErrNotAuthorized, resp["error"])
	// The role refusal is a plain error body; the mutability flag belongs to
	// the ledger's period-lock guard, not to authorization failures.
	_, hasMutable := resp["mutable"]
	assert.False(t, hasMutable)
	assert.Nil(t, store.period, "no period write on refusal")
}

func TestPeriodActionHandlerLock(t *testing.T) {
	store := &fakePeriodStore{
		roles:      map[string]string{"admin-1": "admin"},
		txnCount:   2,
		classified: 2,
	}
	recorder := &trailRecorder{}

	rr := postPeriodAction(t, store, recorder, "admin-1",
		`{"user_id":"admin-1","period_start":"2024-01-01","period_end":"2024-01-31","action":"lock","notes":"month close"}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, float64(2), resp["transactions_affected"])

	period, ok := resp["period"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, PeriodLocked, period["status"])
	assert.Equal(t, "month close", period["notes"])

	require.Len(t, recorder.entries, 1)
	assert.Equal(t, constants.ActionLock, recorder.entries[0].action)
	assert.Equal(t, "co-1", recorder.entries[0].companyID)
}

func TestPeriodActionHandlerRejectsBadRange(t *testing.T) {
	store := &fakePeriodStore{roles: map[string]string{"admin-1": "admin"}}

	rr := postPeriodAction(t, store, nil, "admin-1",
		`{"user_id":"admin-1","period_start":"2024-02-01","period_end":"2024-01-01","action":"lock"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = postPeriodAction(t, store, nil, "admin-1",
		`{"user_id":"admin-1","period_start":"bad","period_end":"2024-01-31","action":"lock"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPeriodActionHandlerUnknownAction(t *testing.T) {
	store := &fakePeriodStore{roles: map[string]string{"admin-1": "admin"}}

	rr := postPeriodAction(t, store, nil, "admin-1",
		`{"user_id":"admin-1","period_start":"2024-01-01","period_end":"2024-01-31","action":"archive"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
