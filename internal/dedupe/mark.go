package dedupe

import (
	"github.com/vnnovate/relations-cli/internal/model"
	"github.com/vnnovate/relations-cli/internal/normalize"
	"github.com/vnnovate/relations-cli/internal/schema"
	"github.com/vnnovate/relations-cli/internal/table"
)

// MarkDuplicates normalizes t's phone/email columns in place and flags every
// row with its duplicate category. Each row lands in at most one category:
// combined masks phone and email. Empty normalized values never match each
// other.
func MarkDuplicates(t *table.Table) ([]model.RowFlags, schema.Columns) {
	cols := schema.Detect(t)
	flags := make([]model.RowFlags, len(t.Rows))
	if cols.Phone == "" && cols.Email == "" {
		return flags, cols
	}

	phones := make([]string, len(t.Rows))
	emails := make([]string, len(t.Rows))
	pi := t.ColumnIndex(cols.Phone)
	ei := t.ColumnIndex(cols.Email)
	for i, row := range t.Rows {
		if pi >= 0 {
			phones[i] = normalize.Phone(row[pi])
			row[pi] = phones[i]
		}
		if ei >= 0 {
			emails[i] = normalize.Email(row[ei])
			row[ei] = emails[i]
		}
	}

	pairCount := make(map[pairKey]int)
	phoneCount := make(map[string]int)
	emailCount := make(map[string]int)
	for i := range t.Rows {
		if phones[i] != "" && emails[i] != "" {
			pairCount[pairKey{phones[i], emails[i]}]++
		}
		if phones[i] != "" {
			phoneCount[phones[i]]++
		}
		if emails[i] != "" {
			emailCount[emails[i]]++
		}
	}

	for i := range t.Rows {
		if phones[i] != "" && emails[i] != "" && pairCount[pairKey{phones[i], emails[i]}] > 1 {
			flags[i].Combined = true
			continue
		}
		if phones[i] != "" && phoneCount[phones[i]] > 1 {
			flags[i].Phone = true
			continue
		}
		if emails[i] != "" && emailCount[emails[i]] > 1 {
			flags[i].Email = true
		}
	}
	return flags, cols
}

// SummarizeFile builds strict-mode duplicate groups within a single table:
// the same classification as BuildGroups but with "repeats within the file"
// instead of "spans two datasets". Used for per-file views.
func SummarizeFile(t *table.Table) (*Groups, schema.Columns) {
	cols := schema.Detect(t)
	g := &Groups{}
	if cols.Phone == "" && cols.Email == "" {
		return g, cols
	}

	rows := make([]model.IndexRow, 0, len(t.Rows))
	for i := range t.Rows {
		var r model.IndexRow
		if cols.Phone != "" {
			r.Phone = normalize.Phone(t.Cell(i, cols.Phone))
		}
		if cols.Email != "" {
			r.Email = normalize.Email(t.Cell(i, cols.Email))
		}
		if r.Phone == "" && r.Email == "" {
			continue
		}
		r.Name = schema.DisplayName(t, cols.Names, i)
		// Distinct pseudo dataset per row so the >=2-rows rule replaces the
		// >=2-datasets rule.
		r.DatasetID = int64(i)
		rows = append(rows, r)
	}

	g = BuildGroups(rows)
	for _, groups := range [][]model.MatchGroup{g.Combined, g.Phone, g.Email} {
		for i := range groups {
			groups[i].DatasetIDs = nil
			groups[i].OwnerIDs = nil
		}
	}
	return g, cols
}
