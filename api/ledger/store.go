package ledger

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the persistence surface the ingestion path runs against. The pgx
// implementation below is the production one; tests substitute an in-memory
// fake to pin the dedup and idempotency contracts without a database.
type Store interface {
	CreateImportBatch(ctx context.Context, b ImportBatch) error
	CompleteImportBatch(ctx context.Context, importID string, totalParsed, totalImported int) error
	UpsertAccount(ctx context.Context, companyID string, tags AccountTags) (*int64, error)
	LoadRules(ctx context.Context, companyID string) ([]TransactionRule, error)
	InsertKeyedTransactions(ctx context.Context, txns []BankTransaction) (int, error)
	InsertUnkeyedTransactions(ctx context.Context, txns []BankTransaction) (int, error)
	PeriodStatusesCovering(ctx context.Context, companyID string, date time.Time) ([]string, error)
}

// PgxStore implements Store against Postgres.
type PgxStore struct {
	pool *pgxpool.Pool
}

func NewPgxStore(pool *pgxpool.Pool) *PgxStore {
	return &PgxStore{pool: pool}
}

func (s *PgxStore) CreateImportBatch(ctx context.Context, b ImportBatch) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO import_batches (import_id, company_id, file_name, file_checksum, status, created_by)
		VALUES ($1, $2, $3, $4, 'processing', $5)
	`, b.ImportID, b.CompanyID, b.FileName, b.FileChecksum, b.CreatedBy)
	return err
}

func (s *PgxStore) CompleteImportBatch(ctx context.Context, importID string, totalParsed, totalImported int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE import_batches
		SET status = 'completed', total_parsed = $2, total_imported = $3
		WHERE import_id = $1
	`, importID, totalParsed, totalImported)
	return err
}

// UpsertAccount resolves the statement's account identity to a registry row.
// Resolution is skipped entirely when the account id is absent; transactions
// then proceed without an account linkage. Re-importing the same statement
// resolves to the same row.
func (s *PgxStore) UpsertAccount(ctx context.Context, companyID string, tags AccountTags) (*int64, error) {
	if tags.AcctID == "" {
		return nil, nil
	}
	var accountID int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO bank_accounts (company_id, acct_id, bank_id, branch_id, account_type, label)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (company_id, acct_id, bank_id, branch_id)
		DO UPDATE SET account_type = EXCLUDED.account_type, label = EXCLUDED.label
		RETURNING account_id
	`, companyID, tags.AcctID, tags.BankID, tags.BranchID, tags.AcctType, DeriveAccountLabel(tags)).Scan(&accountID)
	if err != nil {
		return nil, err
	}
	return &accountID, nil
}

func (s *PgxStore) LoadRules(ctx context.Context, companyID string) ([]TransactionRule, error) {
	return loadRules(ctx, s.pool, companyID)
}

// InsertKeyedTransactions inserts rows that carry a fitid, skipping any whose
// (company_id, fitid) already exists. The skip is delegated to the partial
// unique index so concurrent imports of overlapping statements converge
// without application-side locking. Returns the count actually inserted.
func (s *PgxStore) InsertKeyedTransactions(ctx context.Context, txns []BankTransaction) (int, error) {
	if len(txns) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, t := range txns {
		batch.Queue(`
			INSERT INTO bank_transactions
				(company_id, import_id, txn_date, amount, memo, description, txn_type, fitid, raw_excerpt, account_id, category, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (company_id, fitid) WHERE fitid IS NOT NULL DO NOTHING
		`, t.CompanyID, t.ImportID, t.Date, t.Amount, t.Memo, t.Description, t.TxnType, t.FitID, t.RawExcerpt, t.AccountID, t.Category, t.Status)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range txns {
		tag, err := results.Exec()
		if err != nil {
			return inserted, err
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// InsertUnkeyedTransactions inserts rows without a fitid. These are never
// deduplicated against each other, so a plain bulk copy is used.
func (s *PgxStore) InsertUnkeyedTransactions(ctx context.Context, txns []BankTransaction) (int, error) {
	if len(txns) == 0 {
		return 0, nil
	}
	rows := make([][]interface{}, len(txns))
	for i, t := range txns {
		rows[i] = []interface{}{
			t.CompanyID, t.ImportID, t.Date, t.Amount, t.Memo, t.Description,
			t.TxnType, nil, t.RawExcerpt, t.AccountID, t.Category, t.Status,
		}
	}
	n, err := s.pool.CopyFrom(
		ctx,
		pgx.Identifier{"bank_transactions"},
		[]string{"company_id", "import_id", "txn_date", "amount", "memo", "description", "txn_type", "fitid", "raw_excerpt", "account_id", "category", "status"},
		pgx.CopyFromRows(rows),
	)
	return int(n), err
}

func (s *PgxStore) PeriodStatusesCovering(ctx context.Context, companyID string, date time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT status FROM audit_periods
		WHERE company_id = $1 AND period_start <= $2 AND period_end >= $2
	`, companyID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var statuses []string
	for rows.Next() {
		var st string
		if err := rows.Scan(&st); err != nil {
			return nil, err
		}
		statuses = append(statuses, st)
	}
	return statuses, rows.Err()
}
