package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction lifecycle statuses. Rows are created as pending, move to
// classified when a period lock (or a human) signs off on them, and to audited
// only through period approval. Nothing in this package hard-deletes a row.
const (
	StatusPending    = "pending"
	StatusClassified = "classified"
	StatusAudited    = "audited"
)

// CandidateTransaction is one parsed statement record before persistence.
type CandidateTransaction struct {
	Date        time.Time
	Amount      decimal.Decimal
	FitID       string
	Memo        string
	Description string
	TxnType     string
	RawExcerpt  string
}

// AccountTags holds the document-level account identity extracted from a
// statement. All fields may be empty; resolution is skipped without an AcctID.
type AccountTags struct {
	AcctID   string
	BankID   string
	BranchID string
	AcctType string
}

// BankTransaction is one persisted ledger line.
type BankTransaction struct {
	TransactionID int64           `json:"transaction_id"`
	CompanyID     string          `json:"company_id"`
	ImportID      string          `json:"import_id"`
	Date          time.Time       `json:"txn_date"`
	Amount        decimal.Decimal `json:"amount"`
	Memo          string          `json:"memo"`
	Description   string          `json:"description"`
	TxnType       string          `json:"txn_type"`
	FitID         *string         `json:"fitid,omitempty"`
	RawExcerpt    string          `json:"-"`
	AccountID     *int64          `json:"account_id,omitempty"`
	Category      *string         `json:"category,omitempty"`
	Status        string          `json:"status"`
	AuditedBy     *string         `json:"audited_by,omitempty"`
	AuditedAt     *time.Time      `json:"audited_at,omitempty"`
}

// IsDebit reports whether the row is an outflow (negative amount).
func (t BankTransaction) IsDebit() bool {
	return t.Amount.IsNegative()
}

// TransactionRule is a company-scoped substring-to-category directive.
// Rules are evaluated in the order they are retrieved; first match wins.
type TransactionRule struct {
	RuleID    int64     `json:"rule_id"`
	CompanyID string    `json:"company_id"`
	UserID    string    `json:"user_id"`
	Pattern   string    `json:"pattern"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}

// ImportBatch records one ingestion attempt.
type ImportBatch struct {
	ImportID      string    `json:"import_id"`
	CompanyID     string    `json:"company_id"`
	FileName      string    `json:"file_name"`
	FileChecksum  string    `json:"file_checksum"`
	Status        string    `json:"status"`
	TotalParsed   int       `json:"total_parsed"`
	TotalImported int       `json:"total_imported"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
}

// ImportResult is what an ingestion reports back to the caller.
// TotalParsed counts parser output pre-dedup; TotalImported counts rows
// actually inserted, so a full re-import reports imported = 0.
type ImportResult struct {
	ImportID      string `json:"import_id"`
	TotalParsed   int    `json:"total"`
	TotalImported int    `json:"imported"`
}
