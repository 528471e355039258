package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"FinOpsLedger/api/ledger"
	"FinOpsLedger/internal/config"
	"FinOpsLedger/internal/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
	"github.com/robfig/cron/v3"
)

// CategorizationConfig holds configuration for the nightly recategorization job
type CategorizationConfig struct {
	Schedule  string // Cron schedule (default: "0 18 * * *" for 6 PM daily)
	BatchSize int    // Number of transactions to process per batch
	TimeZone  string // Timezone for scheduling
}

// categorizationUpdate represents a transaction that needs its category set
type categorizationUpdate struct {
	txnID    int64
	category string
}

// txnRow is the slice of a transaction the rule engine needs.
type txnRow struct {
	id          int64
	companyID   string
	description string
	memo        string
	rawExcerpt  string
}

// pendingFetcher returns the next page of uncategorized pending transactions
// with transaction_id greater than afterID, in id order.
type pendingFetcher func(ctx context.Context, afterID int64, limit int) ([]txnRow, error)

// categoryWriter persists one batch of category assignments.
type categoryWriter func(ctx context.Context, updates []categorizationUpdate) error

// NewDefaultCategorizationConfig creates a new CategorizationConfig with default values
func NewDefaultCategorizationConfig() *CategorizationConfig {
	schedule := os.Getenv("CATEGORIZATION_SCHEDULE")
	if schedule == "" {
		schedule = config.DefaultCategorizationSchedule
	}

	batchSize := config.CategorizationBatchSize
	if bs := os.Getenv("CATEGORIZATION_BATCH_SIZE"); bs != "" {
		if parsed, err := parseInt(bs); err == nil && parsed > 0 {
			batchSize = parsed
		}
	}

	return &CategorizationConfig{
		Schedule:  schedule,
		BatchSize: batchSize,
		TimeZone:  config.DefaultTimeZone,
	}
}

// RunCategorizationScheduler starts the cron job that sweeps up transactions
// imported before their matching rule existed.
func RunCategorizationScheduler(cfg *CategorizationConfig, db *pgxpool.Pool) error {
	if cfg.Schedule == "" {
		cfg.Schedule = config.DefaultCategorizationSchedule
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = config.CategorizationBatchSize
	}
	if cfg.TimeZone == "" {
		cfg.TimeZone = config.DefaultTimeZone
	}

	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		loc = time.UTC
		logger.GlobalLogger.LogAudit(fmt.Sprintf("Invalid timezone %s, falling back to UTC: %v", cfg.TimeZone, err))
	}

	c := cron.New(cron.WithLocation(loc))

	_, err = c.AddFunc(cfg.Schedule, func() {
		logger.GlobalLogger.LogAudit(fmt.Sprintf("Starting auto-categorization job at %s", time.Now().In(loc).Format(time.RFC3339)))
		err := ProcessUncategorizedTransactions(db, cfg.BatchSize)
		if err != nil {
			logger.GlobalLogger.LogAudit(fmt.Sprintf("Auto-categorization job failed: %v", err))
			log.Printf("ERROR: Auto-categorization job failed: %v", err)
		} else {
			logger.GlobalLogger.LogAudit("Auto-categorization job completed successfully")
		}
	})

	if err != nil {
		return fmt.Errorf("unable to schedule auto-categorization processor: %v", err)
	}

	c.Start()
	logger.GlobalLogger.LogAudit(fmt.Sprintf("Auto-categorization scheduler started with schedule: %s (timezone: %s)", cfg.Schedule, cfg.TimeZone))
	log.Printf("[AUDIT] Auto-categorization scheduler started: %s (%s)", cfg.Schedule, cfg.TimeZone)

	return nil
}

// ProcessUncategorizedTransactions re-runs the rule engine over every pending
// transaction that has no category yet. Rules created after an import apply to
// already-ingested rows only through this job; the import path categorizes
// against the rule set as of import time.
// batchSize controls how many transactions are fetched and updated per round trip.
func ProcessUncategorizedTransactions(db *pgxpool.Pool, batchSize int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
	defer cancel()

	startTime := time.Now()

	pgDB := db.Config().ConnConfig.Database
	pgUser := db.Config().ConnConfig.User
	pgPass := db.Config().ConnConfig.Password
	pgHost := db.Config().ConnConfig.Host
	pgPort := db.Config().ConnConfig.Port

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", pgUser, pgPass, pgHost, pgPort, pgDB)
	sqlDB, err := sql.Open("postgres", connStr)
	if err != nil {
		return fmt.Errorf("failed to open sql.DB connection: %w", err)
	}
	defer sqlDB.Close()

	var totalCount int
	countQuery := `SELECT COUNT(*) FROM bank_transactions WHERE category IS NULL AND status = 'pending'`
	err = sqlDB.QueryRowContext(ctx, countQuery).Scan(&totalCount)
	if err != nil {
		return fmt.Errorf("failed to count uncategorized transactions: %w", err)
	}

	if totalCount == 0 {
		logger.GlobalLogger.LogAudit("No uncategorized transactions found")
		return nil
	}

	log.Printf("[AUDIT] Total uncategorized transactions: %d", totalCount)
	logger.GlobalLogger.LogAudit(fmt.Sprintf("Found %d total uncategorized transactions to process", totalCount))

	// Load every company's rules once, in the engine's iteration order.
	rulesByCompany, err := loadAllRules(ctx, sqlDB)
	if err != nil {
		return fmt.Errorf("failed to load transaction rules: %w", err)
	}
	log.Printf("[AUDIT] Loaded rules for %d companies", len(rulesByCompany))

	if batchSize <= 0 {
		batchSize = config.CategorizationBatchSize
	}

	fetch := func(ctx context.Context, afterID int64, limit int) ([]txnRow, error) {
		rows, err := sqlDB.QueryContext(ctx, `
			SELECT transaction_id, company_id, description, memo, raw_excerpt
			FROM bank_transactions
			WHERE category IS NULL AND status = 'pending' AND transaction_id > $1
			ORDER BY transaction_id ASC
			LIMIT $2
		`, afterID, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to query uncategorized transactions after id %d: %w", afterID, err)
		}
		defer rows.Close()

		var txns []txnRow
		for rows.Next() {
			var tr txnRow
			if err := rows.Scan(&tr.id, &tr.companyID, &tr.description, &tr.memo, &tr.rawExcerpt); err != nil {
				logger.GlobalLogger.LogAudit(fmt.Sprintf("Failed to scan transaction row: %v", err))
				continue
			}
			txns = append(txns, tr)
		}
		if len(txns) > 0 {
			log.Printf("[AUDIT] Processing batch of %d transactions after id %d (total pending: %d)", len(txns), afterID, totalCount)
		}
		return txns, rows.Err()
	}

	write := func(ctx context.Context, categorized []categorizationUpdate) error {
		err := bulkUpdateCategories(ctx, sqlDB, categorized)
		if err != nil {
			logger.GlobalLogger.LogAudit(fmt.Sprintf("Bulk update failed, falling back to individual updates: %v", err))
			for _, cat := range categorized {
				updateQuery := `UPDATE bank_transactions SET category = $1 WHERE transaction_id = $2`
				_, err := sqlDB.ExecContext(ctx, updateQuery, cat.category, cat.txnID)
				if err != nil {
					logger.GlobalLogger.LogAudit(fmt.Sprintf("Failed to update transaction %d: %v", cat.txnID, err))
				}
			}
		}
		return nil
	}

	totalProcessed, totalCategorized, err := sweepUncategorized(ctx, fetch, write, rulesByCompany, batchSize)
	if err != nil {
		return err
	}

	// One trail entry per run; individual row changes are recoverable from the
	// snapshot counts plus the rule set.
	snapshot, _ := json.Marshal(map[string]interface{}{
		"processed":   totalProcessed,
		"categorized": totalCategorized,
	})
	_, err = sqlDB.ExecContext(ctx, `
		INSERT INTO audit_log (entry_id, table_name, action, record_id, actor_id, snapshot)
		VALUES ($1, 'bank_transactions', 'UPDATE', 'auto-categorization', NULL, $2)
	`, uuid.New().String(), snapshot)
	if err != nil {
		logger.GlobalLogger.LogAudit(fmt.Sprintf("Failed to write audit entry for categorization run: %v", err))
	}

	duration := time.Since(startTime)
	summary := fmt.Sprintf("Auto-categorization completed: %d/%d transactions categorized, %d remain uncategorized (Duration: %v)",
		totalCategorized, totalProcessed, totalProcessed-totalCategorized, duration)
	logger.GlobalLogger.LogAudit(summary)
	log.Println(summary)

	return nil
}

// sweepUncategorized pages through the pending set and applies each company's
// rules. Pagination is keyset on transaction_id: rows categorized by an
// earlier page leave the filter set, so an OFFSET-based walk would slide later
// pages out of view mid-run.
func sweepUncategorized(ctx context.Context, fetch pendingFetcher, write categoryWriter, rulesByCompany map[string][]ledger.TransactionRule, batchSize int) (int, int, error) {
	var afterID int64
	processed := 0
	categorized := 0

	for {
		txns, err := fetch(ctx, afterID, batchSize)
		if err != nil {
			return processed, categorized, err
		}
		if len(txns) == 0 {
			break
		}

		updates := make([]categorizationUpdate, 0, len(txns))
		for _, tr := range txns {
			processed++
			rules := rulesByCompany[tr.companyID]
			if len(rules) == 0 {
				continue
			}
			candidate := ledger.CandidateTransaction{
				Description: tr.description,
				Memo:        tr.memo,
				RawExcerpt:  tr.rawExcerpt,
			}
			if category, ok := ledger.MatchCategory(rules, candidate); ok {
				updates = append(updates, categorizationUpdate{txnID: tr.id, category: category})
				categorized++
			}
		}

		if len(updates) > 0 {
			if err := write(ctx, updates); err != nil {
				return processed, categorized, err
			}
		}

		afterID = txns[len(txns)-1].id
		if len(txns) < batchSize {
			break
		}
	}
	return processed, categorized, nil
}

// loadAllRules loads every company's rules in a single query, grouped by
// company, preserving the engine's retrieval order.
func loadAllRules(ctx context.Context, db *sql.DB) (map[string][]ledger.TransactionRule, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT rule_id, company_id, user_id, pattern, category, created_at
		FROM transaction_rules
		ORDER BY company_id, created_at DESC, rule_id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rulesByCompany := make(map[string][]ledger.TransactionRule)
	for rows.Next() {
		var r ledger.TransactionRule
		if err := rows.Scan(&r.RuleID, &r.CompanyID, &r.UserID, &r.Pattern, &r.Category, &r.CreatedAt); err != nil {
			return nil, err
		}
		rulesByCompany[r.CompanyID] = append(rulesByCompany[r.CompanyID], r)
	}
	return rulesByCompany, rows.Err()
}

// bulkUpdateCategories updates a batch in one statement via unnest().
func bulkUpdateCategories(ctx context.Context, db *sql.DB, updates []categorizationUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	txnIDs := make([]int64, len(updates))
	categories := make([]string, len(updates))
	for i, u := range updates {
		txnIDs[i] = u.txnID
		categories[i] = u.category
	}

	query := `
		UPDATE bank_transactions AS t
		SET category = u.category
		FROM (
			SELECT unnest($1::bigint[]) AS txn_id, unnest($2::text[]) AS category
		) AS u
		WHERE t.transaction_id = u.txn_id
	`
	_, err := db.ExecContext(ctx, query, pq.Array(txnIDs), pq.Array(categories))
	return err
}

// parseInt is a helper to parse int from string
func parseInt(s string) (int, error) {
	var result int
	_, err := fmt.Sscanf(s, "%d", &result)
	return result, err
}
