package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newProjectsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "projects",
		Aliases: []string{"project"},
		Short:   "List and manage projects",
		Long:    "A project is one house hunt: its criteria, visits and collaborators. Without a subcommand, lists your projects.",
		Args:    cobra.NoArgs,
		RunE:    runProjectsList,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List your projects",
			Args:  cobra.NoArgs,
			RunE:  runProjectsList,
		},
		&cobra.Command{
			Use:   "create <name>",
			Short: "Start a new project",
			Args:  cobra.ExactArgs(1),
			RunE:  runProjectsCreate,
		},
		&cobra.Command{
			Use:   "show <project-id>",
			Short: "Show a project with its members",
			Args:  cobra.ExactArgs(1),
			RunE:  runProjectsShow,
		},
		&cobra.Command{
			Use:   "finish <project-id>",
			Short: "Mark a project finished",
			Long:  "Marks a project finished. Finished projects stay readable but no longer accept changes. Only the owner can finish a project.",
			Args:  cobra.ExactArgs(1),
			RunE:  runProjectsFinish,
		},
	)

	return cmd
}

func runProjectsList(cmd *cobra.Command, args []string) error {
	list, err := newAPIClient().ListProjects(cmd.Context())
	if err != nil {
		return err
	}

	if isJSON() {
		return printJSON(cmd.OutOrStdout(), list)
	}
	return printProjectTable(cmd.OutOrStdout(), list)
}

func runProjectsCreate(cmd *cobra.Command, args []string) error {
	p, err := newAPIClient().CreateProject(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if isJSON() {
		return printJSON(cmd.OutOrStdout(), p)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Project #%d created: %s\n", p.ID, p.Name)
	return nil
}

func runProjectsShow(cmd *cobra.Command, args []string) error {
	id, err := parseID("project", args[0])
	if err != nil {
		return err
	}

	d, err := newAPIClient().GetProject(cmd.Context(), id)
	if err != nil {
		return err
	}

	if isJSON() {
		return printJSON(cmd.OutOrStdout(), d)
	}
	printProjectDetail(cmd.OutOrStdout(), d)
	return nil
}

func runProjectsFinish(cmd *cobra.Command, args []string) error {
	id, err := parseID("project", args[0])
	if err != nil {
		return err
	}

	p, err := newAPIClient().FinishProject(cmd.Context(), id)
	if err != nil {
		return err
	}

	if isJSON() {
		return printJSON(cmd.OutOrStdout(), p)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Project #%d marked %s.\n", p.ID, p.Status)
	return nil
}
