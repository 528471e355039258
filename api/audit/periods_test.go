package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"FinOpsLedger/api/constants"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return d
}

func TestApplyActionLock(t *testing.T) {
	now := time.Now().UTC()
	p := &AuditPeriod{Status: PeriodOpen}

	require.NoError(t, applyAction(p, constants.ActionLock, "admin-1", now))
	assert.Equal(t, PeriodLocked, p.Status)
	require.NotNil(t, p.LockedBy)
	assert.Equal(t, "admin-1", *p.LockedBy)
	require.NotNil(t, p.LockedAt)
	assert.Nil(t, p.ApprovedBy)
	assert.Nil(t, p.ApprovedAt)
}

func TestApplyActionLockClearsPriorApproval(t *testing.T) {
	now := time.Now().UTC()
	earlier := now.Add(-time.Hour)
	approver := "owner-1"
	p := &AuditPeriod{Status: PeriodApproved, ApprovedBy: &approver, ApprovedAt: &earlier}

	require.NoError(t, applyAction(p, constants.ActionLock, "admin-1", now))
	assert.Equal(t, PeriodLocked, p.Status)
	assert.Nil(t, p.ApprovedBy)
	assert.Nil(t, p.ApprovedAt)
}

func TestApplyActionApprovePreservesLockFields(t *testing.T) {
	now := time.Now().UTC()
	earlier := now.Add(-time.Hour)
	locker := "admin-1"
	p := &AuditPeriod{Status: PeriodLocked, LockedBy: &locker, LockedAt: &earlier}

	require.NoError(t, applyAction(p, constants.ActionApprove, "owner-1", now))
	assert.Equal(t, PeriodApproved, p.Status)
	require.NotNil(t, p.LockedBy)
	assert.Equal(t, "admin-1", *p.LockedBy)
	assert.Equal(t, earlier, *p.LockedAt)
	require.NotNil(t, p.ApprovedBy)
	assert.Equal(t, "owner-1", *p.ApprovedBy)
}

func TestApplyActionUnlockClearsBothFieldSets(t *testing.T) {
	now := time.Now().UTC()
	locker, approver := "admin-1", "owner-1"
	p := &AuditPeriod{
		Status:     PeriodApproved,
		LockedBy:   &locker, LockedAt: &now,
		ApprovedBy: &approver, ApprovedAt: &now,
	}

	require.NoError(t, applyAction(p, constants.ActionUnlock, "admin-2", now))
	assert.Equal(t, PeriodOpen, p.Status)
	assert.Nil(t, p.LockedBy)
	assert.Nil(t, p.LockedAt)
	assert.Nil(t, p.ApprovedBy)
	assert.Nil(t, p.ApprovedAt)
}

func TestApplyActionUnknown(t *testing.T) {
	p := &AuditPeriod{Status: PeriodOpen}
	assert.ErrorIs(t, applyAction(p, "archive", "admin-1", time.Now()), ErrUnknownAction)
}

// fakePeriodStore pins the state machine behavior without a database.
type fakePeriodStore struct {
	roles          map[string]string
	period         *AuditPeriod
	txnCount       int
	debits         decimal.Decimal
	credits        decimal.Decimal
	classified     int64
	audited        int64
	markErr        error
	upsertedStatus []string
}

func (s *fakePeriodStore) MemberRole(_ context.Context, _, userID string) (string, error) {
	return s.roles[userID], nil
}

func (s *fakePeriodStore) Aggregates(_ context.Context, _ string, _, _ time.Time) (int, decimal.Decimal, decimal.Decimal, error) {
	return s.txnCount, s.debits, s.credits, nil
}

func (s *fakePeriodStore) GetPeriod(_ context.Context, _ string, _, _ time.Time) (*AuditPeriod, error) {
	if s.period == nil {
		return nil, nil
	}
	cp := *s.period
	return &cp, nil
}

func (s *fakePeriodStore) UpsertPeriod(_ context.Context, p *AuditPeriod) error {
	if p.PeriodID == 0 {
		p.PeriodID = 1
	}
	p.UpdatedAt = time.Now().UTC()
	cp := *p
	s.period = &cp
	s.upsertedStatus = append(s.upsertedStatus, p.Status)
	return nil
}

func (s *fakePeriodStore) MarkClassified(_ context.Context, _ string, _, _ time.Time) (int64, error) {
	if s.markErr != nil {
		return 0, s.markErr
	}
	return s.classified, nil
}

func (s *fakePeriodStore) MarkAudited(_ context.Context, _ string, _, _ time.Time, _ string, _ time.Time) (int64, error) {
	if s.markErr != nil {
		return 0, s.markErr
	}
	return s.audited, nil
}

type trailEntry struct {
	companyID, table, action, recordID, actorID string
}

type trailRecorder struct {
	entries []trailEntry
}

func (r *trailRecorder) Record(_ context.Context, companyID, tableName, action, recordID, actorID string, _ interface{}) {
	r.entries = append(r.entries, trailEntry{companyID, tableName, action, recordID, actorID})
}

func TestActRequiresAdminOrOwner(t *testing.T) {
	store := &fakePeriodStore{roles: map[string]string{"member-1": "member"}}
	sm := NewStateMachine(store, nil)

	_, _, err := sm.Act(context.Background(), "co-1", "member-1",
		day(t, "2024-01-01"), day(t, "2024-01-07"), constants.ActionLock, "")
	assert.ErrorIs(t, err, ErrNotAuthorized)
	assert.Nil(t, store.period, "no state changes on authorization failure")

	_, _, err = sm.Act(context.Background(), "co-1", "nobody",
		day(t, "2024-01-01"), day(t, "2024-01-07"), constants.ActionLock, "")
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestActLockCreatesPeriodAndClassifies(t *testing.T) {
	store := &fakePeriodStore{
		roles:      map[string]string{"admin-1": "admin"},
		txnCount:   5,
		debits:     decimal.RequireFromString("300.00"),
		credits:    decimal.RequireFromString("200.00"),
		classified: 5,
	}
	recorder := &trailRecorder{}
	sm := NewStateMachine(store, recorder)

	period, affected, err := sm.Act(context.Background(), "co-1", "admin-1",
		day(t, "2024-01-01"), day(t, "2024-01-07"), constants.ActionLock, "month close")
	require.NoError(t, err)
	assert.Equal(t, PeriodLocked, period.Status)
	assert.Equal(t, int64(5), affected)
	assert.Equal(t, 5, period.TxnCount)
	assert.True(t, period.TotalDebits.Equal(decimal.RequireFromString("300.00")))
	assert.True(t, period.TotalCredits.Equal(decimal.RequireFromString("200.00")))
	assert.Equal(t, "month close", period.Notes)

	require.Len(t, recorder.entries, 1)
	assert.Equal(t, "audit_periods", recorder.entries[0].table)
	assert.Equal(t, constants.ActionLock, recorder.entries[0].action)
	assert.Equal(t, "admin-1", recorder.entries[0].actorID)
	assert.Equal(t, "co-1", recorder.entries[0].companyID)
}

func TestActApproveAfterLock(t *testing.T) {
	store := &fakePeriodStore{
		roles:   map[string]string{"admin-1": "admin", "owner-1": "owner"},
		audited: 5,
	}
	sm := NewStateMachine(store, nil)
	ctx := context.Background()
	start, end := day(t, "2024-01-01"), day(t, "2024-01-07")

	_, _, err := sm.Act(ctx, "co-1", "admin-1", start, end, constants.ActionLock, "")
	require.NoError(t, err)

	period, affected, err := sm.Act(ctx, "co-1", "owner-1", start, end, constants.ActionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, PeriodApproved, period.Status)
	assert.Equal(t, int64(5), affected)
	require.NotNil(t, period.LockedBy, "approval preserves lock fields")
	assert.Equal(t, "admin-1", *period.LockedBy)
	require.NotNil(t, period.ApprovedBy)
	assert.Equal(t, "owner-1", *period.ApprovedBy)
}

func TestActUnlockReopens(t *testing.T) {
	store := &fakePeriodStore{roles: map[string]string{"admin-1": "admin"}}
	sm := NewStateMachine(store, nil)
	ctx := context.Background()
	start, end := day(t, "2024-01-01"), day(t, "2024-01-07")

	_, _, err := sm.Act(ctx, "co-1", "admin-1", start, end, constants.ActionLock, "")
	require.NoError(t, err)

	period, affected, err := sm.Act(ctx, "co-1", "admin-1", start, end, constants.ActionUnlock, "")
	require.NoError(t, err)
	assert.Equal(t, PeriodOpen, period.Status)
	assert.Zero(t, affected, "unlock never touches transaction statuses")
	assert.Nil(t, period.LockedBy)
	assert.Nil(t, period.ApprovedBy)
	assert.Equal(t, []string{PeriodLocked, PeriodOpen}, store.upsertedStatus)
}

func TestActStatusUpdateFailureIsBestEffort(t *testing.T) {
	store := &fakePeriodStore{
		roles:   map[string]string{"admin-1": "admin"},
		markErr: errors.New("bulk update timeout"),
	}
	sm := NewStateMachine(store, nil)

	period, affected, err := sm.Act(context.Background(), "co-1", "admin-1",
		day(t, "2024-01-01"), day(t, "2024-01-07"), constants.ActionLock, "")
	require.NoError(t, err, "period write stands even when the status sweep fails")
	assert.Equal(t, PeriodLocked, period.Status)
	assert.Zero(t, affected)
	require.NotNil(t, store.period)
	assert.Equal(t, PeriodLocked, store.period.Status)
}

func TestActUnknownAction(t *testing.T) {
	store := &fakePeriodStore{roles: map[string]string{"admin-1": "admin"}}
	sm := NewStateMachine(store, nil)

	_, _, err := sm.Act(context.Background(), "co-1", "admin-1",
		day(t, "2024-01-01"), day(t, "2024-01-07"), "archive", "")
	assert.ErrorIs(t, err, ErrUnknownAction)
}
