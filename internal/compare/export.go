package compare

import (
	"encoding/csv"
	"fmt"
	"io"
)

// FixedColumns precede one column per criterion in the CSV export.
var FixedColumns = []string{"Visit Name", "Address", "Visit Date", "Realtor", "Notes"}

// WriteCSV writes the table as CSV: a header row, then one row per visit in
// table order with values formatted as in the comparison view.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)

	header := make([]string, 0, len(FixedColumns)+len(t.Criteria))
	header = append(header, FixedColumns...)
	for _, c := range t.Criteria {
		header = append(header, c.Name)
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}

	for _, row := range t.Rows {
		v := row.Visit
		record := make([]string, 0, len(header))
		record = append(record, v.Name, v.Address, v.VisitDate, v.RealtorName, v.Notes)
		for _, cell := range row.Cells {
			record = append(record, cell.Display)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing csv row for visit %d: %w", v.ID, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}
	return nil
}

// Filename returns the download name for a project's export.
func Filename(projectName string) string {
	safe := make([]rune, 0, len(projectName))
	for _, r := range projectName {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			safe = append(safe, r)
		case r == ' ':
			safe = append(safe, '_')
		}
	}
	if len(safe) == 0 {
		return "comparison.csv"
	}
	return string(safe) + "_comparison.csv"
}
