package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"FinOpsLedger/api"
	"FinOpsLedger/api/constants"

	"github.com/jackc/pgx/v5/pgxpool"
)

// MatchCategory evaluates a company's ordered rule list against a candidate
// record and returns the category of the first rule whose pattern is a
// case-insensitive substring of the record's best-available text. Rule order
// as retrieved is the only tie-break, so callers must preserve it.
//
// This is deliberately a plain ordered-list matcher, kept as its own small
// abstraction so it can later be swapped for a prioritized or regex-capable
// engine without touching the ledger contract.
func MatchCategory(rules []TransactionRule, txn CandidateTransaction) (string, bool) {
	text := bestText(txn)
	if text == "" {
		return "", false
	}
	lower := strings.ToLower(text)
	for _, r := range rules {
		pattern := strings.ToLower(strings.TrimSpace(r.Pattern))
		if pattern == "" {
			continue
		}
		if strings.Contains(lower, pattern) {
			return r.Category, true
		}
	}
	return "", false
}

// bestText picks the categorization input: description, then memo, then the
// raw excerpt.
func bestText(txn CandidateTransaction) string {
	if strings.TrimSpace(txn.Description) != "" {
		return txn.Description
	}
	if strings.TrimSpace(txn.Memo) != "" {
		return txn.Memo
	}
	return txn.RawExcerpt
}

// loadRules returns the company's rules ordered by creation time descending.
// Insertion order is operationally significant: it is the order the engine
// iterates.
func loadRules(ctx context.Context, pool *pgxpool.Pool, companyID string) ([]TransactionRule, error) {
	rows, err := pool.Query(ctx, `
		SELECT rule_id, company_id, user_id, pattern, category, created_at
		FROM transaction_rules
		WHERE company_id = $1
		ORDER BY created_at DESC, rule_id DESC
	`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []TransactionRule
	for rows.Next() {
		var r TransactionRule
		if err := rows.Scan(&r.RuleID, &r.CompanyID, &r.UserID, &r.Pattern, &r.Category, &r.CreatedAt); err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// CreateRuleHandler handles POST /ledger/rules/create
func CreateRuleHandler(pool *pgxpool.Pool, audit AuditRecorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req struct {
			UserID   string `json:"user_id"`
			Pattern  string `json:"pattern"`
			Category string `json:"category"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Pattern) == "" || strings.TrimSpace(req.Category) == "" {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrInvalidJSON)
			return
		}
		companyID := api.GetCompanyIDFromCtx(ctx)

		var ruleID int64
		err := pool.QueryRow(ctx, `
			INSERT INTO transaction_rules (company_id, user_id, pattern, category)
			VALUES ($1, $2, $3, $4)
			RETURNING rule_id
		`, companyID, req.UserID, strings.TrimSpace(req.Pattern), strings.TrimSpace(req.Category)).Scan(&ruleID)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
			return
		}
		if audit != nil {
			audit.Record(ctx, companyID, "transaction_rules", constants.ActionCreate, strconv.FormatInt(ruleID, 10), req.UserID, map[string]interface{}{
				"pattern":  req.Pattern,
				"category": req.Category,
			})
		}
		api.RespondWithPayload(w, true, "", map[string]interface{}{"rule_id": ruleID})
	}
}

// DeleteRuleHandler handles POST /ledger/rules/delete
func DeleteRuleHandler(pool *pgxpool.Pool, audit AuditRecorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req struct {
			UserID string `json:"user_id"`
			RuleID int64  `json:"rule_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RuleID == 0 {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrInvalidJSON)
			return
		}
		companyID := api.GetCompanyIDFromCtx(ctx)

		tag, err := pool.Exec(ctx, `
			DELETE FROM transaction_rules WHERE rule_id = $1 AND company_id = $2
		`, req.RuleID, companyID)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
			return
		}
		if audit != nil && tag.RowsAffected() > 0 {
			audit.Record(ctx, companyID, "transaction_rules", constants.ActionDelete, strconv.FormatInt(req.RuleID, 10), req.UserID, nil)
		}
		api.RespondWithPayload(w, true, "", map[string]interface{}{"deleted": tag.RowsAffected()})
	}
}

// ListRulesHandler handles GET /ledger/rules
func ListRulesHandler(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		companyID := api.GetCompanyIDFromCtx(ctx)

		rules, err := loadRules(ctx, pool, companyID)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
			return
		}
		if rules == nil {
			rules = []TransactionRule{}
		}
		api.RespondWithPayload(w, true, "", map[string]interface{}{"rules": rules})
	}
}
