package ledger

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleStatement = `
OFXHEADER:100
<OFX>
<BANKACCTFROM>
<BANKID>0341
<BRANCHID>1234
<ACCTID>56789-0
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000[-03:EST]
<TRNAMT>-1234,56
<FITID>TX001
<NAME>Uber Trip
<MEMO>ride downtown
</STMTTRN>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20240116
<TRNAMT>200,00
<NAME>Salary
</STMTTRN>
</BANKTRANLIST>
</OFX>
`

func TestParseStatement(t *testing.T) {
	records := ParseStatement(sampleStatement)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), first.Date)
	assert.True(t, first.Amount.Equal(decimal.RequireFromString("-1234.56")))
	assert.Equal(t, "TX001", first.FitID)
	assert.Equal(t, "Uber Trip", first.Description)
	assert.Equal(t, "ride downtown", first.Memo)
	assert.Equal(t, "DEBIT", first.TxnType)
	assert.True(t, first.Amount.IsNegative(), "negative amount classifies as debit")

	second := records[1]
	assert.Equal(t, time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC), second.Date)
	assert.True(t, second.Amount.Equal(decimal.RequireFromString("200.00")))
	assert.Empty(t, second.FitID)
	assert.Empty(t, second.Memo)
}

func TestParseStatementCommaDecimal(t *testing.T) {
	raw := "<STMTTRN>\n<DTPOSTED>20240101\n<TRNAMT>1234,56\n"
	records := ParseStatement(raw)
	require.Len(t, records, 1)
	assert.True(t, records[0].Amount.Equal(decimal.NewFromFloat(1234.56)))
}

func TestParseStatementDateSuffixDiscarded(t *testing.T) {
	raw := "<STMTTRN>\n<DTPOSTED>20240229235959[-03:BRT]\n<TRNAMT>-1,00\n"
	records := ParseStatement(raw)
	require.Len(t, records, 1)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), records[0].Date)
}

func TestParseStatementDropsUnparsableRecords(t *testing.T) {
	raw := strings.Join([]string{
		"<STMTTRN>", "<DTPOSTED>20240101", "<TRNAMT>-10,00", "<FITID>OK1",
		"<STMTTRN>", "<DTPOSTED>20241399", "<TRNAMT>-10,00", "<FITID>BADDATE",
		"<STMTTRN>", "<DTPOSTED>20240102", "<TRNAMT>not-a-number", "<FITID>BADAMT",
		"<STMTTRN>", "<TRNAMT>-10,00", "<FITID>NODATE",
	}, "\n")
	records := ParseStatement(raw)
	require.Len(t, records, 1)
	assert.Equal(t, "OK1", records[0].FitID)
}

func TestParseStatementFallbackDateTags(t *testing.T) {
	raw := "<STMTTRN>\n<DTUSER>20240310\n<TRNAMT>-5,50\n"
	records := ParseStatement(raw)
	require.Len(t, records, 1)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), records[0].Date)

	raw = "<STMTTRN>\n<DTAVAIL>20240311\n<TRNAMT>-5,50\n"
	records = ParseStatement(raw)
	require.Len(t, records, 1)
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), records[0].Date)
}

func TestParseStatementNoBlocks(t *testing.T) {
	assert.Empty(t, ParseStatement("just some text without markers"))
	assert.False(t, ContainsTransactionBlocks("just some text"))
	assert.True(t, ContainsTransactionBlocks(sampleStatement))
}

func TestParseStatementExcerptCap(t *testing.T) {
	long := strings.Repeat("x", rawExcerptCap*2)
	raw := "<STMTTRN>\n<DTPOSTED>20240101\n<TRNAMT>-1,00\n<MEMO>m\n" + long
	records := ParseStatement(raw)
	require.Len(t, records, 1)
	assert.Len(t, records[0].RawExcerpt, rawExcerptCap)
}

func TestParseStatementExcerptCapMultibyte(t *testing.T) {
	// The cap is counted in characters and must never split a rune.
	long := strings.Repeat("ç", rawExcerptCap+10)
	raw := "<STMTTRN>\n<DTPOSTED>20240101\n<TRNAMT>-1,00\n<MEMO>m\n" + long
	records := ParseStatement(raw)
	require.Len(t, records, 1)
	assert.True(t, utf8.ValidString(records[0].RawExcerpt))
	assert.Equal(t, rawExcerptCap, utf8.RuneCountInString(records[0].RawExcerpt))

	short := "café statement row"
	assert.Equal(t, short, capExcerpt(short))
}

func TestParseAccountTags(t *testing.T) {
	tags := ParseAccountTags(sampleStatement)
	assert.Equal(t, "56789-0", tags.AcctID)
	assert.Equal(t, "0341", tags.BankID)
	assert.Equal(t, "1234", tags.BranchID)
	assert.Equal(t, "CHECKING", tags.AcctType)

	empty := ParseAccountTags("no tags here")
	assert.Equal(t, AccountTags{}, empty)
}
