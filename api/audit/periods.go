package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"FinOpsLedger/api"
	"FinOpsLedger/api/constants"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Period lifecycle: open -> locked -> approved, unlock returns to open.
// approved is not terminal; compliance may need to reopen a signed-off range.
const (
	PeriodOpen     = "open"
	PeriodLocked   = "locked"
	PeriodApproved = "approved"
)

var (
	ErrNotAuthorized = errors.New("acting user lacks an admin or owner role for this company")
	ErrUnknownAction = errors.New("unknown period action")
)

type AuditPeriod struct {
	PeriodID     int64           `json:"period_id"`
	CompanyID    string          `json:"company_id"`
	PeriodStart  time.Time       `json:"period_start"`
	PeriodEnd    time.Time       `json:"period_end"`
	Status       string          `json:"status"`
	LockedBy     *string         `json:"locked_by"`
	LockedAt     *time.Time      `json:"locked_at"`
	ApprovedBy   *string         `json:"approved_by"`
	ApprovedAt   *time.Time      `json:"approved_at"`
	Notes        string          `json:"notes"`
	TxnCount     int             `json:"txn_count"`
	TotalDebits  decimal.Decimal `json:"total_debits"`
	TotalCredits decimal.Decimal `json:"total_credits"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// applyAction computes the field set for the target status. lock stamps the
// lock fields and clears any prior approval; approve stamps approval and
// leaves the lock fields untouched; unlock clears both sets and returns the
// period to open. Pure over the period value, no I/O.
func applyAction(p *AuditPeriod, action, actorID string, now time.Time) error {
	switch action {
	case constants.ActionLock:
		p.Status = PeriodLocked
		p.LockedBy = &actorID
		p.LockedAt = &now
		p.ApprovedBy = nil
		p.ApprovedAt = nil
	case constants.ActionApprove:
		p.Status = PeriodApproved
		p.ApprovedBy = &actorID
		p.ApprovedAt = &now
	case constants.ActionUnlock:
		p.Status = PeriodOpen
		p.LockedBy = nil
		p.LockedAt = nil
		p.ApprovedBy = nil
		p.ApprovedAt = nil
	default:
		return ErrUnknownAction
	}
	return nil
}

// PeriodStore is the persistence surface behind the state machine. Tests
// substitute an in-memory fake.
type PeriodStore interface {
	MemberRole(ctx context.Context, companyID, userID string) (string, error)
	Aggregates(ctx context.Context, companyID string, start, end time.Time) (count int, debits, credits decimal.Decimal, err error)
	GetPeriod(ctx context.Context, companyID string, start, end time.Time) (*AuditPeriod, error)
	UpsertPeriod(ctx context.Context, p *AuditPeriod) error
	MarkClassified(ctx context.Context, companyID string, start, end time.Time) (int64, error)
	MarkAudited(ctx context.Context, companyID string, start, end time.Time, auditedBy string, auditedAt time.Time) (int64, error)
}

// Recorder is the audit-trail sink the state machine emits to.
type Recorder interface {
	Record(ctx context.Context, companyID, tableName, action, recordID, actorID string, snapshot interface{})
}

// StateMachine runs period lifecycle actions. Each action recomputes the
// period's aggregates from a live scan of the ledger, upserts the period row
// keyed by (company, start, end), then conditionally flips transaction
// statuses in range.
type StateMachine struct {
	store PeriodStore
	audit Recorder
}

func NewStateMachine(store PeriodStore, audit Recorder) *StateMachine {
	return &StateMachine{store: store, audit: audit}
}

// Act applies one lock, unlock or approve action and returns the persisted
// period plus the count of transactions whose status changed.
//
// The transaction-status bulk update is advisory: its failure is logged and
// does not unwind the period write. unlock never reverts transaction
// statuses; rows stay classified or audited after the period reopens.
func (m *StateMachine) Act(ctx context.Context, companyID, userID string, start, end time.Time, action, notes string) (*AuditPeriod, int64, error) {
	role, err := m.store.MemberRole(ctx, companyID, userID)
	if err != nil {
		return nil, 0, err
	}
	if role != "admin" && role != "owner" {
		return nil, 0, ErrNotAuthorized
	}

	count, debits, credits, err := m.store.Aggregates(ctx, companyID, start, end)
	if err != nil {
		return nil, 0, err
	}

	p, err := m.store.GetPeriod(ctx, companyID, start, end)
	if err != nil {
		return nil, 0, err
	}
	if p == nil {
		p = &AuditPeriod{
			CompanyID:   companyID,
			PeriodStart: start,
			PeriodEnd:   end,
			Status:      PeriodOpen,
		}
	}

	now := time.Now().UTC()
	if err := applyAction(p, action, userID, now); err != nil {
		return nil, 0, err
	}
	if notes != "" {
		p.Notes = notes
	}
	p.TxnCount = count
	p.TotalDebits = debits
	p.TotalCredits = credits

	if err := m.store.UpsertPeriod(ctx, p); err != nil {
		return nil, 0, err
	}

	var affected int64
	switch action {
	case constants.ActionLock:
		affected, err = m.store.MarkClassified(ctx, companyID, start, end)
	case constants.ActionApprove:
		affected, err = m.store.MarkAudited(ctx, companyID, start, end, userID, now)
	}
	if err != nil {
		api.LogError("period %s: transaction status update failed for %s [%s..%s]: %v",
			action, companyID, start.Format(constants.DateFormat), end.Format(constants.DateFormat), err)
		err = nil
	}

	if m.audit != nil {
		m.audit.Record(ctx, companyID, "audit_periods", action, fmt.Sprintf("%d", p.PeriodID), userID, p)
	}
	return p, affected, nil
}

// PgxPeriodStore implements PeriodStore against Postgres.
type PgxPeriodStore struct {
	pool *pgxpool.Pool
}

func NewPgxPeriodStore(pool *pgxpool.Pool) *PgxPeriodStore {
	return &PgxPeriodStore{pool: pool}
}

func (s *PgxPeriodStore) MemberRole(ctx context.Context, companyID, userID string) (string, error) {
	var role string
	err := s.pool.QueryRow(ctx, `
		SELECT role FROM company_members
		WHERE company_id = $1 AND user_id = $2 AND status = 'active'
	`, companyID, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return role, err
}

// Aggregates scans the ledger fresh; the cached columns on the period row are
// never read back as a source of truth. Debits are reported as a positive sum.
func (s *PgxPeriodStore) Aggregates(ctx context.Context, companyID string, start, end time.Time) (int, decimal.Decimal, decimal.Decimal, error) {
	var count int
	var debits, credits decimal.Decimal
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COALESCE(-SUM(CASE WHEN amount < 0 THEN amount END), 0),
		       COALESCE(SUM(CASE WHEN amount > 0 THEN amount END), 0)
		FROM bank_transactions
		WHERE company_id = $1 AND txn_date >= $2 AND txn_date <= $3
	`, companyID, start, end).Scan(&count, &debits, &credits)
	return count, debits, credits, err
}

func (s *PgxPeriodStore) GetPeriod(ctx context.Context, companyID string, start, end time.Time) (*AuditPeriod, error) {
	var p AuditPeriod
	err := s.pool.QueryRow(ctx, `
		SELECT period_id, company_id, period_start, period_end, status,
		       locked_by, locked_at, approved_by, approved_at, notes,
		       txn_count, total_debits, total_credits, updated_at
		FROM audit_periods
		WHERE company_id = $1 AND period_start = $2 AND period_end = $3
	`, companyID, start, end).Scan(
		&p.PeriodID, &p.CompanyID, &p.PeriodStart, &p.PeriodEnd, &p.Status,
		&p.LockedBy, &p.LockedAt, &p.ApprovedBy, &p.ApprovedAt, &p.Notes,
		&p.TxnCount, &p.TotalDebits, &p.TotalCredits, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertPeriod writes the period row keyed by (company, start, end). Two
// concurrent actions on the same range converge last-writer-wins, which is
// acceptable for rare operator-driven events.
func (s *PgxPeriodStore) UpsertPeriod(ctx context.Context, p *AuditPeriod) error {
	return s.pool.QueryRow(ctx, `
		INSERT INTO audit_periods
			(company_id, period_start, period_end, status, locked_by, locked_at,
			 approved_by, approved_at, notes, txn_count, total_debits, total_credits, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
		ON CONFLICT (company_id, period_start, period_end)
		DO UPDATE SET status = EXCLUDED.status,
			locked_by = EXCLUDED.locked_by, locked_at = EXCLUDED.locked_at,
			approved_by = EXCLUDED.approved_by, approved_at = EXCLUDED.approved_at,
			notes = EXCLUDED.notes, txn_count = EXCLUDED.txn_count,
			total_debits = EXCLUDED.total_debits, total_credits = EXCLUDED.total_credits,
			updated_at = now()
		RETURNING period_id, updated_at
	`, p.CompanyID, p.PeriodStart, p.PeriodEnd, p.Status, p.LockedBy, p.LockedAt,
		p.ApprovedBy, p.ApprovedAt, p.Notes, p.TxnCount, p.TotalDebits, p.TotalCredits,
	).Scan(&p.PeriodID, &p.UpdatedAt)
}

func (s *PgxPeriodStore) MarkClassified(ctx context.Context, companyID string, start, end time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE bank_transactions SET status = 'classified'
		WHERE company_id = $1 AND txn_date >= $2 AND txn_date <= $3 AND status = 'pending'
	`, companyID, start, end)
	return tag.RowsAffected(), err
}

func (s *PgxPeriodStore) MarkAudited(ctx context.Context, companyID string, start, end time.Time, auditedBy string, auditedAt time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE bank_transactions
		SET status = 'audited', audited_by = $4, audited_at = $5
		WHERE company_id = $1 AND txn_date >= $2 AND txn_date <= $3 AND status <> 'audited'
	`, companyID, start, end, auditedBy, auditedAt)
	return tag.RowsAffected(), err
}

// PeriodActionHandler handles POST /audit/periods/action
func PeriodActionHandler(pool *pgxpool.Pool, recorder Recorder) http.HandlerFunc {
	return periodActionHandler(NewPgxPeriodStore(pool), recorder)
}

func periodActionHandler(store PeriodStore, recorder Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req struct {
			UserID      string `json:"user_id"`
			PeriodStart string `json:"period_start"`
			PeriodEnd   string `json:"period_end"`
			Action      string `json:"action"`
			Notes       string `json:"notes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrInvalidJSON)
			return
		}
		start, err := time.Parse(constants.DateFormat, req.PeriodStart)
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "period_start must be YYYY-MM-DD")
			return
		}
		end, err := time.Parse(constants.DateFormat, req.PeriodEnd)
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "period_end must be YYYY-MM-DD")
			return
		}
		if end.Before(start) {
			api.RespondWithError(w, http.StatusBadRequest, "period_end precedes period_start")
			return
		}
		companyID := api.GetCompanyIDFromCtx(ctx)
		userID := api.GetUserIDFromCtx(ctx)

		// Action verbs arrive lowercase on the wire; the trail stores them
		// uppercase.
		action := strings.ToUpper(strings.TrimSpace(req.Action))

		sm := NewStateMachine(store, recorder)
		period, affected, err := sm.Act(ctx, companyID, userID, start, end, action, req.Notes)
		switch {
		case errors.Is(err, ErrNotAuthorized):
			api.RespondWithError(w, http.StatusForbidden, constants.ErrNotAuthorized)
			return
		case errors.Is(err, ErrUnknownAction):
			api.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		case err != nil:
			api.RespondWithError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
			return
		}
		api.RespondWithPayload(w, true, "", map[string]interface{}{
			"period":                period,
			"transactions_affected": affected,
		})
	}
}

// ListPeriodsHandler handles GET /audit/periods
func ListPeriodsHandler(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		companyID := api.GetCompanyIDFromCtx(ctx)

		rows, err := pool.Query(ctx, `
			SELECT period_id, company_id, period_start, period_end, status,
			       locked_by, locked_at, approved_by, approved_at, notes,
			       txn_count, total_debits, total_credits, updated_at
			FROM audit_periods
			WHERE company_id = $1
			ORDER BY period_start DESC, period_end DESC
		`, companyID)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
			return
		}
		defer rows.Close()

		periods := make([]AuditPeriod, 0)
		for rows.Next() {
			var p AuditPeriod
			if err := rows.Scan(
				&p.PeriodID, &p.CompanyID, &p.PeriodStart, &p.PeriodEnd, &p.Status,
				&p.LockedBy, &p.LockedAt, &p.ApprovedBy, &p.ApprovedAt, &p.Notes,
				&p.TxnCount, &p.TotalDebits, &p.TotalCredits, &p.UpdatedAt,
			); err != nil {
				api.RespondWithError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
				return
			}
			periods = append(periods, p)
		}
		if rows.Err() != nil {
			api.RespondWithError(w, http.StatusInternalServerError, constants.ErrDB+": "+rows.Err().Error())
			return
		}
		api.RespondWithPayload(w, true, "", map[string]interface{}{"periods": periods})
	}
}
