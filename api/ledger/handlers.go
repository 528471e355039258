package ledger

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"FinOpsLedger/api"
	"FinOpsLedger/api/constants"
	"FinOpsLedger/api/utils"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ImportStatementHandler handles POST /ledger/statements/import. The tagged
// text format is submitted as the full statement text plus a display filename.
func ImportStatementHandler(pool *pgxpool.Pool, audit AuditRecorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req struct {
			UserID        string `json:"user_id"`
			FileName      string `json:"file_name"`
			StatementText string `json:"statement_text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.StatementText == "" {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrInvalidJSON)
			return
		}
		if req.FileName == "" {
			req.FileName = "statement.ofx"
		}
		companyID := api.GetCompanyIDFromCtx(ctx)

		l := NewLedger(NewPgxStore(pool), audit)
		result, err := l.IngestStatement(ctx, companyID, req.UserID, req.FileName, req.StatementText)
		if err != nil {
			respondIngestError(w, err)
			return
		}
		api.RespondWithPayload(w, true, "", map[string]interface{}{
			"import_id": result.ImportID,
			"total":     result.TotalParsed,
			"imported":  result.TotalImported,
		})
	}
}

// ImportFileHandler handles POST /ledger/statements/upload, multipart
// spreadsheet statements (csv, xls, xlsx).
func ImportFileHandler(pool *pgxpool.Pool, audit AuditRecorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Failed to parse multipart form")
			return
		}
		userID := r.FormValue("user_id")
		files := r.MultipartForm.File["file"]
		if len(files) == 0 {
			api.RespondWithError(w, http.StatusBadRequest, "No files uploaded")
			return
		}
		companyID := api.GetCompanyIDFromCtx(ctx)

		l := NewLedger(NewPgxStore(pool), audit)
		results := make([]map[string]interface{}, 0, len(files))
		for _, fileHeader := range files {
			file, err := fileHeader.Open()
			if err != nil {
				api.RespondWithError(w, http.StatusBadRequest, "Failed to open file: "+fileHeader.Filename)
				return
			}
			rows, err := ParseStatementFile(file, getFileExt(fileHeader.Filename))
			file.Close()
			if err != nil {
				api.RespondWithError(w, http.StatusBadRequest, "Invalid file "+fileHeader.Filename+": "+err.Error())
				return
			}
			result, err := l.IngestRows(ctx, companyID, userID, fileHeader.Filename, rows)
			if err != nil {
				respondIngestError(w, err)
				return
			}
			results = append(results, map[string]interface{}{
				"file_name": fileHeader.Filename,
				"import_id": result.ImportID,
				"total":     result.TotalParsed,
				"imported":  result.TotalImported,
			})
		}
		api.RespondWithPayload(w, true, "", map[string]interface{}{"imports": results})
	}
}

func respondIngestError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrMissingCompany):
		api.RespondWithError(w, http.StatusForbidden, constants.ErrNoCompany)
	case errors.Is(err, ErrNoParsableRecords):
		api.RespondWithError(w, http.StatusBadRequest, err.Error())
	default:
		api.RespondWithError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
	}
}

// ListTransactionsHandler handles GET /ledger/transactions
func ListTransactionsHandler(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		companyID := api.GetCompanyIDFromCtx(ctx)

		pagination, err := utils.ExtractPagination(r)
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		total, err := utils.CountTotal(ctx, pool,
			`SELECT COUNT(*) FROM bank_transactions WHERE company_id = $1`, companyID)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
			return
		}
		pagination.SetPaginationStats(total)

		rows, err := pool.Query(ctx, `
			SELECT transaction_id, company_id, COALESCE(import_id::text, ''), txn_date, amount,
			       memo, description, txn_type, fitid, account_id, category, status, audited_by, audited_at
			FROM bank_transactions
			WHERE company_id = $1
			ORDER BY txn_date DESC, transaction_id DESC
			LIMIT $2 OFFSET $3
		`, companyID, pagination.Limit, pagination.Offset)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
			return
		}
		defer rows.Close()

		results := make([]BankTransaction, 0)
		for rows.Next() {
			var t BankTransaction
			var auditedBy *string
			if err := rows.Scan(
				&t.TransactionID, &t.CompanyID, &t.ImportID, &t.Date, &t.Amount,
				&t.Memo, &t.Description, &t.TxnType, &t.FitID, &t.AccountID,
				&t.Category, &t.Status, &auditedBy, &t.AuditedAt,
			); err != nil {
				api.RespondWithError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
				return
			}
			t.AuditedBy = auditedBy
			results = append(results, t)
		}
		if rows.Err() != nil {
			api.RespondWithError(w, http.StatusInternalServerError, constants.ErrDB+": "+rows.Err().Error())
			return
		}
		api.RespondWithPayload(w, true, "", map[string]interface{}{
			"transactions": results,
			"pagination":   pagination,
		})
	}
}

// MutableHandler handles POST /ledger/transactions/mutable, the guard every
// collaborator calls before editing a transaction or attaching a file.
// Responds 403 when a locked or approved period covers the date.
func MutableHandler(pool *pgxpool.Pool) http.HandlerFunc {
	return mutableHandler(NewPgxStore(pool))
}

func mutableHandler(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req struct {
			UserID string `json:"user_id"`
			Date   string `json:"date"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Date == "" {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrInvalidJSON)
			return
		}
		date, err := time.Parse(constants.DateFormat, req.Date)
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		companyID := api.GetCompanyIDFromCtx(ctx)

		l := NewLedger(store, nil)
		mutable, err := l.IsMutable(ctx, companyID, date)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
			return
		}
		if !mutable {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success": false,
				"mutable": false,
				"error":   constants.ErrPeriodLocked,
			})
			return
		}
		api.RespondWithPayload(w, true, "", map[string]interface{}{"mutable": true})
	}
}
