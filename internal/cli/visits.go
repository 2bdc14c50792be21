package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/evcraddock/checklist-casa/internal/client"
)

func newVisitsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "visits",
		Aliases: []string{"visit"},
		Short:   "List, show and log house visits",
	}

	var listOpts client.VisitListOptions
	list := &cobra.Command{
		Use:   "list <project-id>",
		Short: "List a project's visits, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVisitsList(cmd, args[0], listOpts)
		},
	}
	list.Flags().Int64Var(&listOpts.RealtorID, "realtor", 0, "only visits with this realtor ID")
	list.Flags().StringVarP(&listOpts.Query, "query", "q", "", "match name or address")
	list.Flags().IntVar(&listOpts.Limit, "limit", 0, "maximum number of visits")

	var (
		in        client.NewVisit
		realtorID int64
		sets      []string
	)
	add := &cobra.Command{
		Use:   "add <project-id> <name>",
		Short: "Log a visit with its assessments",
		Long: `Log a visit to a house and assess it against the project's criteria.

Assessments are given as CRITERIA_ID=VALUE using the same values the web form
accepts: yes/no for booleans, 1-5 for ratings, numbers with optional $ and
commas, and free text. Criteria left out stay unset.

Examples:
  casa visits add 1 "Maple house" --address "12 Maple St"
  casa visits add 1 "Oak house" --address "4 Oak Ave" --date 2026-04-12 --set 3=4 --set 5='$350,000'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseAssessments(sets)
			if err != nil {
				return err
			}
			in.Name = args[1]
			in.Assessments = values
			if realtorID > 0 {
				in.RealtorID = &realtorID
			}
			return runVisitsAdd(cmd, args[0], in)
		},
	}
	add.Flags().StringVar(&in.Address, "address", "", "street address (required)")
	add.Flags().StringVar(&in.VisitDate, "date", "", "visit date YYYY-MM-DD (default: today)")
	add.Flags().StringVarP(&in.Notes, "notes", "n", "", "free-form notes")
	add.Flags().Int64Var(&realtorID, "realtor", 0, "realtor ID who showed the house")
	add.Flags().StringArrayVarP(&sets, "set", "s", nil, "assessment as CRITERIA_ID=VALUE (repeatable)")
	_ = add.MarkFlagRequired("address")

	cmd.AddCommand(
		list,
		&cobra.Command{
			Use:   "show <project-id> <visit-id>",
			Short: "Show a visit with its assessments",
			Args:  cobra.ExactArgs(2),
			RunE:  runVisitsShow,
		},
		add,
	)

	return cmd
}

func runVisitsList(cmd *cobra.Command, projectArg string, opts client.VisitListOptions) error {
	id, err := parseID("project", projectArg)
	if err != nil {
		return err
	}

	list, err := newAPIClient().ListVisits(cmd.Context(), id, opts)
	if err != nil {
		return err
	}

	if isJSON() {
		return printJSON(cmd.OutOrStdout(), list)
	}
	return printVisitTable(cmd.OutOrStdout(), list)
}

func runVisitsShow(cmd *cobra.Command, args []string) error {
	projectID, err := parseID("project", args[0])
	if err != nil {
		return err
	}
	visitID, err := parseID("visit", args[1])
	if err != nil {
		return err
	}

	d, err := newAPIClient().GetVisit(cmd.Context(), projectID, visitID)
	if err != nil {
		return err
	}

	if isJSON() {
		return printJSON(cmd.OutOrStdout(), d)
	}
	printVisitDetail(cmd.OutOrStdout(), d)
	return nil
}

func runVisitsAdd(cmd *cobra.Command, projectArg string, in client.NewVisit) error {
	id, err := parseID("project", projectArg)
	if err != nil {
		return err
	}

	d, err := newAPIClient().AddVisit(cmd.Context(), id, in)
	if err != nil {
		return err
	}

	if isJSON() {
		return printJSON(cmd.OutOrStdout(), d)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Visit recorded: %s %s (#%d)\n", d.Visit.VisitDate, d.Visit.Name, d.Visit.ID)
	return nil
}

// parseAssessments turns CRITERIA_ID=VALUE pairs into the API's assessment map.
func parseAssessments(pairs []string) (map[int64]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	values := make(map[int64]string, len(pairs))
	for _, pair := range pairs {
		idStr, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid assessment %q (want CRITERIA_ID=VALUE)", pair)
		}
		id, err := parseID("criteria", strings.TrimSpace(idStr))
		if err != nil {
			return nil, err
		}
		if _, dup := values[id]; dup {
			return nil, fmt.Errorf("criteria %d assessed more than once", id)
		}
		values[id] = raw
	}
	return values, nil
}
