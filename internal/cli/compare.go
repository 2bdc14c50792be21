package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/evcraddock/checklist-casa/internal/client"
)

func addCompareFlags(cmd *cobra.Command, opts *client.CompareOptions) {
	cmd.Flags().Int64Var(&opts.SortBy, "sort", 0, "criteria ID to sort by")
	cmd.Flags().BoolVar(&opts.Desc, "desc", false, "sort descending")
	cmd.Flags().Int64Var(&opts.RealtorID, "realtor", 0, "only visits with this realtor ID")
	cmd.Flags().StringVarP(&opts.Query, "query", "q", "", "match visit name or address")
}

func newCompareCmd() *cobra.Command {
	var opts client.CompareOptions

	cmd := &cobra.Command{
		Use:   "compare <project-id>",
		Short: "Compare a project's visits side by side",
		Long:  "Shows every visit against every criterion. The best and worst values of each numeric or rating criterion are marked (+) and (-).",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("project", args[0])
			if err != nil {
				return err
			}

			cmp, err := newAPIClient().Comparison(cmd.Context(), id, opts)
			if err != nil {
				return err
			}

			if isJSON() {
				return printJSON(cmd.OutOrStdout(), cmp)
			}
			return printComparison(cmd.OutOrStdout(), cmp)
		},
	}
	addCompareFlags(cmd, &opts)

	return cmd
}

func newExportCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <project-id>",
		Short: "Export the comparison as CSV",
		Long:  "Writes one row per visit, newest visit date first, with a column per criterion.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, args[0], output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")

	return cmd
}

func runExport(cmd *cobra.Command, projectArg string, output string) (err error) {
	id, err := parseID("project", projectArg)
	if err != nil {
		return err
	}

	if output == "" {
		return newAPIClient().Export(cmd.Context(), id, cmd.OutOrStdout())
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("creating %s: %w", output, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing %s: %w", output, cerr)
		}
	}()

	if err := newAPIClient().Export(cmd.Context(), id, f); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Comparison written to %s\n", output)
	return nil
}
