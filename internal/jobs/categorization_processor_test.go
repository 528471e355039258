package jobs

import (
	"context"
	"testing"

	"FinOpsLedger/api/ledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pendingTable mimics the view the sweep pages over: a row that receives a
// category drops out of the pending set immediately, the same way the live
// query stops returning it once the update lands.
type pendingTable struct {
	rows        []txnRow
	categorized map[int64]string
	fetchCalls  int
}

func (tbl *pendingTable) fetch(_ context.Context, afterID int64, limit int) ([]txnRow, error) {
	tbl.fetchCalls++
	var page []txnRow
	for _, r := range tbl.rows {
		if r.id <= afterID {
			continue
		}
		if _, done := tbl.categorized[r.id]; done {
			continue
		}
		page = append(page, r)
		if len(page) == limit {
			break
		}
	}
	return page, nil
}

func (tbl *pendingTable) write(_ context.Context, updates []categorizationUpdate) error {
	for _, u := range updates {
		tbl.categorized[u.txnID] = u.category
	}
	return nil
}

func TestSweepUncategorizedVisitsEveryRow(t *testing.T) {
	// Odd ids match the rule, so every page shrinks the pending set while the
	// sweep is mid-walk. Keyset paging must still visit every row once.
	tbl := &pendingTable{categorized: map[int64]string{}}
	for i := int64(1); i <= 7; i++ {
		desc := "grocery store"
		if i%2 == 1 {
			desc = "uber trip downtown"
		}
		tbl.rows = append(tbl.rows, txnRow{id: i, companyID: "co-1", description: desc})
	}
	rules := map[string][]ledger.TransactionRule{
		"co-1": {{Pattern: "uber", Category: "Transport"}},
	}

	processed, categorized, err := sweepUncategorized(context.Background(), tbl.fetch, tbl.write, rules, 3)
	require.NoError(t, err)
	assert.Equal(t, 7, processed)
	assert.Equal(t, 4, categorized)
	assert.Equal(t, map[int64]string{
		1: "Transport", 3: "Transport", 5: "Transport", 7: "Transport",
	}, tbl.categorized)
}

func TestSweepUncategorizedSkipsCompaniesWithoutRules(t *testing.T) {
	tbl := &pendingTable{
		categorized: map[int64]string{},
		rows: []txnRow{
			{id: 1, companyID: "co-1", description: "uber trip"},
			{id: 2, companyID: "co-2", description: "uber trip"},
		},
	}
	rules := map[string][]ledger.TransactionRule{
		"co-1": {{Pattern: "uber", Category: "Transport"}},
	}

	processed, categorized, err := sweepUncategorized(context.Background(), tbl.fetch, tbl.write, rules, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, processed)
	assert.Equal(t, 1, categorized)
	assert.NotContains(t, tbl.categorized, int64(2), "rules never cross company boundaries")
}

func TestSweepUncategorizedEmptySet(t *testing.T) {
	tbl := &pendingTable{categorized: map[int64]string{}}

	processed, categorized, err := sweepUncategorized(context.Background(), tbl.fetch, tbl.write, nil, 3)
	require.NoError(t, err)
	assert.Zero(t, processed)
	assert.Zero(t, categorized)
	assert.Equal(t, 1, tbl.fetchCalls)
}
