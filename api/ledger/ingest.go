package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"FinOpsLedger/api/constants"
	"FinOpsLedger/internal/checksum"

	"github.com/google/uuid"
)

// Typed ingestion errors. These abort the whole operation before any
// persistence happens; per-record parse failures never surface here, they are
// only visible as the gap between parsed and imported totals.
var (
	ErrMissingCompany    = errors.New("no company associated with the acting identity")
	ErrNoParsableRecords = errors.New("statement contains transaction blocks but none could be parsed")
)

// AuditRecorder is the append-only compliance trail every mutating operation
// writes to. Satisfied by audit.Logger; fire-and-forget by contract.
type AuditRecorder interface {
	Record(ctx context.Context, companyID, tableName, action, recordID, actorID string, snapshot interface{})
}

// Ledger is the deduplicating transaction ledger: it owns statement ingestion
// and the mutation gate collaborators consult before editing a transaction.
type Ledger struct {
	store Store
	audit AuditRecorder
}

func NewLedger(store Store, audit AuditRecorder) *Ledger {
	return &Ledger{store: store, audit: audit}
}

// IngestStatement runs one statement import as a single logical unit:
// parse, resolve the account, categorize, then one batched dedup upsert.
// A second ingestion of the same file imports zero new rows and reports that
// truthfully.
func (l *Ledger) IngestStatement(ctx context.Context, companyID, userID, fileName, raw string) (*ImportResult, error) {
	if companyID == "" {
		return nil, ErrMissingCompany
	}
	candidates := ParseStatement(raw)
	if len(candidates) == 0 && ContainsTransactionBlocks(raw) {
		return nil, ErrNoParsableRecords
	}
	tags := ParseAccountTags(raw)
	return l.ingest(ctx, companyID, userID, fileName, checksum.Sum([]byte(raw)), candidates, tags)
}

// IngestRows runs the spreadsheet import path: header-mapped rows from a
// csv/xls/xlsx upload feed the same dedup and categorization pipeline.
// Spreadsheet statements carry no document-level account tags.
func (l *Ledger) IngestRows(ctx context.Context, companyID, userID, fileName string, rows [][]string) (*ImportResult, error) {
	if companyID == "" {
		return nil, ErrMissingCompany
	}
	candidates := CandidatesFromRows(rows)
	if len(candidates) == 0 && len(rows) > 1 {
		return nil, ErrNoParsableRecords
	}
	var flat []byte
	for _, row := range rows {
		flat = append(flat, []byte(strings.Join(row, ";"))...)
		flat = append(flat, '\n')
	}
	return l.ingest(ctx, companyID, userID, fileName, checksum.Sum(flat), candidates, AccountTags{})
}

func (l *Ledger) ingest(ctx context.Context, companyID, userID, fileName, fileSum string, candidates []CandidateTransaction, tags AccountTags) (*ImportResult, error) {
	importID := uuid.New().String()
	batch := ImportBatch{
		ImportID:     importID,
		CompanyID:    companyID,
		FileName:     fileName,
		FileChecksum: fileSum,
		CreatedBy:    userID,
	}
	if err := l.store.CreateImportBatch(ctx, batch); err != nil {
		return nil, err
	}

	// One account resolution for the whole batch; skipped without an acct id.
	accountID, err := l.store.UpsertAccount(ctx, companyID, tags)
	if err != nil {
		return nil, err
	}

	// Rules are loaded once and applied in retrieval order.
	rules, err := l.store.LoadRules(ctx, companyID)
	if err != nil {
		return nil, err
	}

	txns := make([]BankTransaction, 0, len(candidates))
	for _, c := range candidates {
		t := BankTransaction{
			CompanyID:   companyID,
			ImportID:    importID,
			Date:        c.Date,
			Amount:      c.Amount,
			Memo:        c.Memo,
			Description: c.Description,
			TxnType:     c.TxnType,
			RawExcerpt:  c.RawExcerpt,
			AccountID:   accountID,
			Status:      StatusPending,
		}
		if c.FitID != "" {
			fitid := c.FitID
			t.FitID = &fitid
		}
		if category, ok := MatchCategory(rules, c); ok {
			t.Category = &category
		}
		txns = append(txns, t)
	}

	// Two explicit persistence paths: rows with a fitid are insert-or-skip on
	// the (company, fitid) key; rows without one are always inserted as new.
	keyed, unkeyed := SplitByDedupKey(txns)
	insertedKeyed, err := l.store.InsertKeyedTransactions(ctx, keyed)
	if err != nil {
		return nil, err
	}
	insertedUnkeyed, err := l.store.InsertUnkeyedTransactions(ctx, unkeyed)
	if err != nil {
		return nil, err
	}
	imported := insertedKeyed + insertedUnkeyed

	if err := l.store.CompleteImportBatch(ctx, importID, len(candidates), imported); err != nil {
		return nil, err
	}

	result := &ImportResult{
		ImportID:      importID,
		TotalParsed:   len(candidates),
		TotalImported: imported,
	}
	if l.audit != nil {
		l.audit.Record(ctx, companyID, "import_batches", constants.ActionImport, importID, userID, result)
	}
	return result, nil
}

// SplitByDedupKey partitions transactions into those that participate in
// fitid deduplication and those that are unconditionally inserted.
func SplitByDedupKey(txns []BankTransaction) (keyed, unkeyed []BankTransaction) {
	for _, t := range txns {
		if t.FitID != nil && *t.FitID != "" {
			keyed = append(keyed, t)
		} else {
			unkeyed = append(unkeyed, t)
		}
	}
	return keyed, unkeyed
}

// IsMutable reports whether a transaction dated on the given day may still be
// edited. It is false whenever any audit period covering that date is locked
// or approved. Every collaborator that edits a transaction or attaches a file
// must consult this guard before writing; the gate is advisory, not enforced
// by the store.
func (l *Ledger) IsMutable(ctx context.Context, companyID string, date time.Time) (bool, error) {
	statuses, err := l.store.PeriodStatusesCovering(ctx, companyID, date)
	if err != nil {
		return false, err
	}
	for _, st := range statuses {
		if st == "locked" || st == "approved" {
			return false, nil
		}
	}
	return true, nil
}
