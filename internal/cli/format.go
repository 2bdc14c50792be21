package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/evcraddock/checklist-casa/internal/assessment"
	"github.com/evcraddock/checklist-casa/internal/client"
	"github.com/evcraddock/checklist-casa/internal/compare"
	"github.com/evcraddock/checklist-casa/internal/criteria"
	"github.com/evcraddock/checklist-casa/internal/project"
	"github.com/evcraddock/checklist-casa/internal/visit"
)

// printJSON marshals v as indented JSON and writes it to w.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// table writes tab-separated rows through a tabwriter.
type table struct {
	tw  *tabwriter.Writer
	err error
}

func newTable(w io.Writer, header ...string) *table {
	t := &table{tw: tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)}
	t.row(header...)
	dashes := make([]string, len(header))
	for i, h := range header {
		dashes[i] = strings.Repeat("-", len([]rune(h)))
	}
	t.row(dashes...)
	return t
}

func (t *table) row(cells ...string) {
	if t.err != nil {
		return
	}
	_, t.err = fmt.Fprintln(t.tw, strings.Join(cells, "\t"))
}

func (t *table) flush() error {
	if t.err != nil {
		return fmt.Errorf("writing table: %w", t.err)
	}
	if err := t.tw.Flush(); err != nil {
		return fmt.Errorf("flushing table: %w", err)
	}
	return nil
}

// printProjectTable prints projects as a formatted table.
func printProjectTable(w io.Writer, list []*project.Project) error {
	if len(list) == 0 {
		fmt.Fprintln(w, "No projects yet. Create one with 'casa projects create <name>'.")
		return nil
	}

	t := newTable(w, "ID", "NAME", "STATUS", "OWNER", "CREATED")
	for _, p := range list {
		t.row(fmt.Sprint(p.ID), truncate(p.Name, 40), p.Status.Label(), p.OwnerEmail, p.CreatedAt.Format("2006-01-02"))
	}
	return t.flush()
}

// printProjectDetail prints a project summary with its members.
func printProjectDetail(w io.Writer, d *client.ProjectDetail) {
	p := d.Project
	fmt.Fprintf(w, "Project #%d\n", p.ID)
	fmt.Fprintf(w, "  Name:     %s\n", p.Name)
	fmt.Fprintf(w, "  Status:   %s\n", p.Status.Label())
	fmt.Fprintf(w, "  Owner:    %s\n", p.OwnerEmail)
	fmt.Fprintf(w, "  Visits:   %d\n", d.VisitCount)
	fmt.Fprintf(w, "  Criteria: %d\n", d.CriteriaCount)
	if p.FinishedAt != nil {
		fmt.Fprintf(w, "  Finished: %s\n", p.FinishedAt.Format("2006-01-02"))
	}

	if len(d.Members) > 0 {
		fmt.Fprintf(w, "\nMembers (%d):\n", len(d.Members))
		for _, m := range d.Members {
			role := "collaborator"
			if m.Owner {
				role = "owner"
			}
			fmt.Fprintf(w, "  %s (%s)\n", m.Email, role)
		}
	}
	if len(d.Realtors) > 0 {
		fmt.Fprintf(w, "\nRealtors (%d):\n", len(d.Realtors))
		for _, r := range d.Realtors {
			fmt.Fprintf(w, "  #%d %s\n", r.ID, r.Name)
		}
	}
}

// printCriteriaTable prints criteria in display order.
func printCriteriaTable(w io.Writer, list []*criteria.Criteria) error {
	if len(list) == 0 {
		fmt.Fprintln(w, "No criteria defined.")
		return nil
	}

	t := newTable(w, "ID", "NAME", "TYPE", "WEIGHT")
	for _, c := range list {
		t.row(fmt.Sprint(c.ID), c.Name, c.Type.Label(), formatWeight(c.Weight))
	}
	return t.flush()
}

// printVisitTable prints visits, newest first as returned by the server.
func printVisitTable(w io.Writer, list []*visit.Visit) error {
	if len(list) == 0 {
		fmt.Fprintln(w, "No visits recorded.")
		return nil
	}

	t := newTable(w, "ID", "DATE", "NAME", "ADDRESS", "REALTOR")
	for _, v := range list {
		t.row(fmt.Sprint(v.ID), v.VisitDate, truncate(v.Name, 30), orDash(truncate(v.Address, 40)), orDash(v.RealtorName))
	}
	if err := t.flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nTotal: %d visits\n", len(list))
	return nil
}

// printVisitDetail prints a visit with its assessments and photo count.
func printVisitDetail(w io.Writer, d *client.VisitDetail) {
	v := d.Visit
	fmt.Fprintf(w, "Visit #%d\n", v.ID)
	fmt.Fprintf(w, "  Name:     %s\n", v.Name)
	if v.Address != "" {
		fmt.Fprintf(w, "  Address:  %s\n", v.Address)
	}
	fmt.Fprintf(w, "  Date:     %s\n", v.VisitDate)
	if v.RealtorName != "" {
		fmt.Fprintf(w, "  Realtor:  %s\n", v.RealtorName)
	}
	if v.CreatorEmail != "" {
		fmt.Fprintf(w, "  Logged by: %s\n", v.CreatorEmail)
	}
	if v.Notes != "" {
		fmt.Fprintf(w, "  Notes:    %s\n", v.Notes)
	}

	if len(d.Assessments) > 0 {
		fmt.Fprintln(w, "\nAssessments:")
		for _, a := range d.Assessments {
			fmt.Fprintf(w, "  %-24s %s\n", a.Name, a.Display)
		}
	}
	fmt.Fprintf(w, "\nPhotos: %d\n", len(d.Photos))
}

// printComparison prints the comparison with one row per visit and one
// column per criterion. Best and worst values are marked with + and -.
func printComparison(w io.Writer, c *client.Comparison) error {
	header := []string{"VISIT", "DATE"}
	for _, cr := range c.Criteria {
		header = append(header, strings.ToUpper(cr.Name))
	}

	t := newTable(w, header...)
	for _, row := range c.Rows {
		cells := []string{truncate(row.Visit.Name, 30), row.Visit.VisitDate}
		for _, cell := range row.Cells {
			cells = append(cells, markHighlight(cell.Display, cell.Highlight))
		}
		t.row(cells...)
	}
	if err := t.flush(); err != nil {
		return err
	}

	var ranges []string
	for _, cr := range c.Criteria {
		if st, ok := c.Stats[cr.ID]; ok {
			ranges = append(ranges, fmt.Sprintf("%s %s to %s", cr.Name, st.MinLabel(), st.MaxLabel()))
		}
	}
	if len(ranges) > 0 {
		fmt.Fprintf(w, "\nRanges: %s\n", strings.Join(ranges, "; "))
	}
	return nil
}

func markHighlight(display string, h compare.Highlight) string {
	switch h {
	case compare.Best:
		return display + " (+)"
	case compare.Worst:
		return display + " (-)"
	}
	return display
}

// formatWeight renders an optional criteria weight.
func formatWeight(weight *float64) string {
	if weight == nil {
		return "-"
	}
	return assessment.FormatDecimal(*weight)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// truncate shortens a string to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
