package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/evcraddock/checklist-casa/internal/client"
	"github.com/evcraddock/checklist-casa/internal/criteria"
)

func newCriteriaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "criteria",
		Short: "List and add a project's criteria",
	}

	var (
		typ    string
		weight float64
	)
	add := &cobra.Command{
		Use:   "add <project-id> <name>",
		Short: "Add a criterion to a project",
		Long: `Add a criterion that every visit in the project is assessed against.

Types: boolean, numeric, text, rating

Examples:
  casa criteria add 1 "Kitchen" --type rating
  casa criteria add 1 "Price" --type numeric --weight 2`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := client.CriteriaInput{Name: args[1], Type: strings.ToLower(typ)}
			if cmd.Flags().Changed("weight") {
				in.Weight = &weight
			}
			return runCriteriaAdd(cmd, args[0], in)
		},
	}
	add.Flags().StringVarP(&typ, "type", "t", string(criteria.Rating), "criterion type (boolean|numeric|text|rating)")
	add.Flags().Float64Var(&weight, "weight", 0, fmt.Sprintf("optional weight between %g and %g", criteria.MinWeight, criteria.MaxWeight))

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list <project-id>",
			Short: "List a project's criteria in display order",
			Args:  cobra.ExactArgs(1),
			RunE:  runCriteriaList,
		},
		add,
	)

	return cmd
}

func runCriteriaList(cmd *cobra.Command, args []string) error {
	id, err := parseID("project", args[0])
	if err != nil {
		return err
	}

	list, err := newAPIClient().ListCriteria(cmd.Context(), id)
	if err != nil {
		return err
	}

	if isJSON() {
		return printJSON(cmd.OutOrStdout(), list)
	}
	return printCriteriaTable(cmd.OutOrStdout(), list)
}

func runCriteriaAdd(cmd *cobra.Command, projectArg string, in client.CriteriaInput) error {
	id, err := parseID("project", projectArg)
	if err != nil {
		return err
	}

	c, err := newAPIClient().AddCriteria(cmd.Context(), id, in)
	if err != nil {
		return err
	}

	if isJSON() {
		return printJSON(cmd.OutOrStdout(), c)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Criterion #%d added: %s (%s)\n", c.ID, c.Name, c.Type.Label())
	return nil
}
