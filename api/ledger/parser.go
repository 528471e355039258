package ledger

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Statement parsing is tag-oriented, not strict-grammar: banks emit OFX-ish
// exports with inconsistent closing tags, stray whitespace and vendor quirks,
// so each transaction block is located by its start marker and known tags are
// extracted independently by regex within the block. Records whose date or
// amount cannot be parsed are dropped; the gap between parsed and imported
// totals is how callers observe those drops.

const (
	stmtTrnMarker = "<STMTTRN>"
	// rawExcerptCap bounds the source excerpt retained per record for
	// audit/debug purposes.
	rawExcerptCap = 5000
)

var (
	reDatePosted = regexp.MustCompile(`<DTPOSTED>\s*([0-9]{8})`)
	reDateUser   = regexp.MustCompile(`<DTUSER>\s*([0-9]{8})`)
	reDateAvail  = regexp.MustCompile(`<DTAVAIL>\s*([0-9]{8})`)
	reAmount     = regexp.MustCompile(`<TRNAMT>\s*([^<\r\n]+)`)
	reFitID      = regexp.MustCompile(`<FITID>\s*([^<\r\n]+)`)
	reName       = regexp.MustCompile(`<NAME>\s*([^<\r\n]+)`)
	reMemo       = regexp.MustCompile(`<MEMO>\s*([^<\r\n]+)`)
	reTrnType    = regexp.MustCompile(`<TRNTYPE>\s*([^<\r\n]+)`)

	reAcctID   = regexp.MustCompile(`<ACCTID>\s*([^<\r\n]+)`)
	reBankID   = regexp.MustCompile(`<BANKID>\s*([^<\r\n]+)`)
	reBranchID = regexp.MustCompile(`<BRANCHID>\s*([^<\r\n]+)`)
	reAcctType = regexp.MustCompile(`<ACCTTYPE>\s*([^<\r\n]+)`)
)

// ParseStatement extracts candidate transaction records from raw statement
// text. Input with zero parseable blocks yields an empty slice, never an
// error; ingestion proceeds and reports zero imported records.
func ParseStatement(raw string) []CandidateTransaction {
	blocks := strings.Split(raw, stmtTrnMarker)
	if len(blocks) < 2 {
		return nil
	}

	records := make([]CandidateTransaction, 0, len(blocks)-1)
	for _, block := range blocks[1:] {
		// Blocks are delimited by the next start marker; a closing
		// </STMTTRN> inside the block is harmless to the per-tag regexes.
		txn, ok := parseBlock(block)
		if !ok {
			continue
		}
		records = append(records, txn)
	}
	return records
}

func parseBlock(block string) (CandidateTransaction, bool) {
	date, ok := extractDate(block)
	if !ok {
		return CandidateTransaction{}, false
	}

	amountStr := extractTag(reAmount, block)
	amount, err := parseAmount(amountStr)
	if err != nil {
		return CandidateTransaction{}, false
	}

	excerpt := capExcerpt(strings.TrimSpace(block))

	return CandidateTransaction{
		Date:        date,
		Amount:      amount,
		FitID:       extractTag(reFitID, block),
		Memo:        extractTag(reMemo, block),
		Description: extractTag(reName, block),
		TxnType:     extractTag(reTrnType, block),
		RawExcerpt:  excerpt,
	}, true
}

// extractDate resolves the record date from DTPOSTED, DTUSER or DTAVAIL, in
// that order. Dates are 8-digit YYYYMMDD concatenations, optionally followed
// by a time/timezone suffix which the regex discards.
func extractDate(block string) (time.Time, bool) {
	for _, re := range []*regexp.Regexp{reDatePosted, reDateUser, reDateAvail} {
		if m := re.FindStringSubmatch(block); m != nil {
			d, err := time.Parse("20060102", m[1])
			if err != nil {
				continue
			}
			return d, true
		}
	}
	return time.Time{}, false
}

// parseAmount normalizes the source's comma decimal separator to a dot before
// parsing. A negative result classifies the row as a debit.
func parseAmount(s string) (decimal.Decimal, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	return decimal.NewFromString(normalized)
}

// capExcerpt bounds the retained excerpt to rawExcerptCap characters, cutting
// on a rune boundary so multibyte statement text stays valid UTF-8.
func capExcerpt(s string) string {
	count := 0
	for i := range s {
		if count == rawExcerptCap {
			return s[:i]
		}
		count++
	}
	return s
}

func extractTag(re *regexp.Regexp, block string) string {
	if m := re.FindStringSubmatch(block); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// ParseAccountTags extracts the document-level account identity from anywhere
// in the raw text. Statement formats place these once per document, not per
// transaction.
func ParseAccountTags(raw string) AccountTags {
	return AccountTags{
		AcctID:   extractTag(reAcctID, raw),
		BankID:   extractTag(reBankID, raw),
		BranchID: extractTag(reBranchID, raw),
		AcctType: extractTag(reAcctType, raw),
	}
}

// ContainsTransactionBlocks reports whether the raw text has at least one
// transaction start marker. Ingestion uses this to distinguish "empty
// statement" (fine, zero imported) from "blocks present but none parseable"
// (a validation error).
func ContainsTransactionBlocks(raw string) bool {
	return strings.Contains(raw, stmtTrnMarker)
}
