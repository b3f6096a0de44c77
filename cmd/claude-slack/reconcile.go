package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/claude-slack/claude-slack/internal/config"
	"github.com/claude-slack/claude-slack/internal/paths"
	"github.com/claude-slack/claude-slack/internal/reconcile"
	"github.com/claude-slack/claude-slack/internal/store"
)

func reconcileCmd() *cobra.Command {
	var projectPath string
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Converge the store to the configured state",
		Long: `Reads config.yaml and agent frontmatter, diffs them against the store,
and applies the missing channels, links, agents, and memberships.
With --dry-run the plan is printed without being applied.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := configDir()
			if err != nil {
				return err
			}
			cfg, err := config.Load(paths.ConfigFile(dir))
			if err != nil {
				return err
			}
			st, err := store.Open(paths.DBPath(dir))
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			desired, warns := reconcile.BuildDesired(cfg, dir, projectPath)
			for _, w := range warns {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", w)
			}

			r := reconcile.New(st)
			if dryRun {
				plan, err := r.BuildPlan(cmd.Context(), desired)
				if err != nil {
					return err
				}
				printPlan(cmd, plan)
				return nil
			}

			plan, result, err := r.Reconcile(cmd.Context(), desired)
			if err != nil {
				return err
			}
			if plan.Empty() {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to do; store matches configuration.")
				return nil
			}
			for _, ar := range result.Actions {
				if ar.Err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", ar.Action.Describe(), ar.Err)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "ok   %s\n", ar.Action.Describe())
				}
			}
			if errs := result.Errs(); len(errs) > 0 {
				return fmt.Errorf("%d of %d actions failed", len(errs), plan.Total())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&projectPath, "project", "", "Project root to reconcile (in addition to global scope)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the plan without applying it")
	return cmd
}

func printPlan(cmd *cobra.Command, plan *reconcile.Plan) {
	out := cmd.OutOrStdout()
	if plan.Empty() {
		fmt.Fprintln(out, "Nothing to do; store matches configuration.")
		return
	}
	for _, phase := range []struct {
		name    string
		actions []reconcile.Action
	}{
		{"infrastructure", plan.Infrastructure},
		{"agents", plan.Agents},
		{"access", plan.Access},
	} {
		if len(phase.actions) == 0 {
			continue
		}
		fmt.Fprintf(out, "%s:\n", phase.name)
		for _, a := range phase.actions {
			fmt.Fprintf(out, "  %s\n", a.Describe())
		}
	}
	fmt.Fprintf(out, "%d actions planned\n", plan.Total())
}
