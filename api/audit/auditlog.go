package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"FinOpsLedger/api"
	"FinOpsLedger/api/constants"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Logger writes the append-only compliance trail. Failures are logged and
// swallowed: an audit write must never fail the business operation it records.
type Logger struct {
	pool *pgxpool.Pool
}

func NewLogger(pool *pgxpool.Pool) *Logger {
	return &Logger{pool: pool}
}

// Record appends one audit entry with a full JSON snapshot of the record
// after the change. recordID is stored as text so heterogeneous key types
// share one trail. companyID scopes the entry for trail reads; system-driven
// entries pass it empty and stay outside every company's view.
func (l *Logger) Record(ctx context.Context, companyID, tableName, action, recordID, actorID string, snapshot interface{}) {
	entryID := uuid.New().String()

	var snapshotJSON []byte
	if snapshot != nil {
		b, err := json.Marshal(snapshot)
		if err != nil {
			api.LogError("audit snapshot marshal failed for %s/%s: %v", tableName, recordID, err)
		} else {
			snapshotJSON = b
		}
	}

	var actor interface{}
	if actorID != "" {
		actor = actorID
	}
	var company interface{}
	if companyID != "" {
		company = companyID
	}

	_, err := l.pool.Exec(ctx, `
		INSERT INTO audit_log (entry_id, company_id, table_name, action, record_id, actor_id, snapshot)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entryID, company, tableName, action, recordID, actor, snapshotJSON)
	if err != nil {
		api.LogError("audit log write failed for %s/%s: %v", tableName, recordID, err)
	}
}

// AuditEntry is the read-side shape for trail queries.
type AuditEntry struct {
	EntryID   string          `json:"entry_id"`
	CompanyID *string         `json:"company_id"`
	TableName string          `json:"table_name"`
	Action    string          `json:"action"`
	RecordID  string          `json:"record_id"`
	ActorID   *string         `json:"actor_id"`
	Snapshot  json.RawMessage `json:"snapshot"`
	CreatedAt time.Time       `json:"created_at"`
}

// ListAuditLogHandler handles GET /audit/log with optional table_name and
// action filters. Entries are scoped to the caller's company.
func ListAuditLogHandler(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		companyID := api.GetCompanyIDFromCtx(ctx)
		if companyID == "" {
			api.RespondWithError(w, http.StatusForbidden, constants.ErrNoCompany)
			return
		}

		limit := 200
		if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 1000 {
			limit = l
		}
		tableName := r.URL.Query().Get("table_name")
		action := r.URL.Query().Get("action")

		rows, err := pool.Query(ctx, `
			SELECT entry_id, company_id, table_name, action, record_id, actor_id, snapshot, created_at
			FROM audit_log
			WHERE company_id = $1
			  AND ($2 = '' OR table_name = $2)
			  AND ($3 = '' OR action = $3)
			ORDER BY created_at DESC
			LIMIT $4
		`, companyID, tableName, action, limit)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
			return
		}
		defer rows.Close()

		entries := make([]AuditEntry, 0)
		for rows.Next() {
			var e AuditEntry
			if err := rows.Scan(&e.EntryID, &e.CompanyID, &e.TableName, &e.Action, &e.RecordID, &e.ActorID, &e.Snapshot, &e.CreatedAt); err != nil {
				api.RespondWithError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
				return
			}
			entries = append(entries, e)
		}
		if rows.Err() != nil {
			api.RespondWithError(w, http.StatusInternalServerError, constants.ErrDB+": "+rows.Err().Error())
			return
		}
		api.RespondWithPayload(w, true, "", map[string]interface{}{"entries": entries})
	}
}
