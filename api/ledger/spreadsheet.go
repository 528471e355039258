package ledger

import (
	"encoding/csv"
	"errors"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"
)

// Spreadsheet statement imports: some banks only offer csv/xls/xlsx exports,
// so header-mapped rows feed the same candidate-record shape as the tagged
// text format. Rows that fail date or amount parsing are dropped the same
// silent way the tag parser drops them.

// getFileExt returns the lowercase file extension.
func getFileExt(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

// ParseStatementFile reads an uploaded spreadsheet into raw rows.
func ParseStatementFile(file multipart.File, ext string) ([][]string, error) {
	switch ext {
	case ".csv":
		r := csv.NewReader(file)
		r.FieldsPerRecord = -1
		return r.ReadAll()
	case ".xlsx":
		return readXLSX(file)
	case ".xls":
		return readXLS(file)
	}
	return nil, errors.New("unsupported file type: " + ext)
}

// Recognized header names, lowercase. The first row of the sheet maps columns
// to candidate fields; unknown columns are ignored.
var headerAliases = map[string]string{
	"date":             "date",
	"transaction date": "date",
	"data":             "date",
	"amount":           "amount",
	"valor":            "amount",
	"description":      "description",
	"descricao":        "description",
	"narration":        "description",
	"memo":             "memo",
	"fitid":            "fitid",
	"reference":        "fitid",
	"type":             "type",
	"tipo":             "type",
}

// CandidatesFromRows maps header-mapped spreadsheet rows to candidate
// transaction records. The first row is the header; rows without a parsable
// date or amount are dropped.
func CandidatesFromRows(rows [][]string) []CandidateTransaction {
	if len(rows) < 2 {
		return nil
	}

	cols := map[string]int{}
	for i, h := range rows[0] {
		name := strings.ToLower(strings.TrimSpace(h))
		if field, ok := headerAliases[name]; ok {
			if _, taken := cols[field]; !taken {
				cols[field] = i
			}
		}
	}
	if _, ok := cols["date"]; !ok {
		return nil
	}
	if _, ok := cols["amount"]; !ok {
		return nil
	}

	cell := func(row []string, field string) string {
		idx, ok := cols[field]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	candidates := make([]CandidateTransaction, 0, len(rows)-1)
	for _, row := range rows[1:] {
		date, ok := parseRowDate(cell(row, "date"))
		if !ok {
			continue
		}
		amount, err := parseAmount(cell(row, "amount"))
		if err != nil {
			continue
		}
		excerpt := capExcerpt(strings.Join(row, ";"))
		candidates = append(candidates, CandidateTransaction{
			Date:        date,
			Amount:      amount,
			FitID:       cell(row, "fitid"),
			Memo:        cell(row, "memo"),
			Description: cell(row, "description"),
			TxnType:     cell(row, "type"),
			RawExcerpt:  excerpt,
		})
	}
	return candidates
}

func parseRowDate(s string) (time.Time, bool) {
	for _, layout := range []string{"2006-01-02", "02-01-2006", "02/01/2006", "20060102"} {
		if d, err := time.Parse(layout, s); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}
