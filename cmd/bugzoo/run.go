// cmd/bugzoo/run.go
package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/squareslab/bugzood/internal/daemon/types"
	"github.com/squareslab/bugzood/internal/output"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Aliases: []string{"runs"},
		Short:   "Submit and inspect scenario runs",
	}

	cmd.AddCommand(newRunSubmitCmd())
	cmd.AddCommand(newRunListCmd())
	cmd.AddCommand(newRunShowCmd())
	cmd.AddCommand(newRunCancelCmd())

	return cmd
}

func newRunSubmitCmd() *cobra.Command {
	var (
		retain bool
		wait   bool
	)

	cmd := &cobra.Command{
		Use:   "submit <scenario>",
		Short: "Submit a run for a scenario",
		Long: `Submit a run for a registered scenario.

The daemon extracts the scenario source, applies its patches, runs the
build steps, and executes the validation command. With --wait the
command follows the run to its verdict; the validation command's exit
code (the bug manifesting or not) is part of the verdict, not a
client error.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := getClient()
			if err != nil {
				return err
			}

			run, err := c.CreateRun(cmd.Context(), args[0], retain)
			if err != nil {
				return err
			}

			output.Info("Submitted %s for scenario %s", run.Metadata.Name, args[0])
			if !wait {
				output.Info("Follow it with: bugzoo run show %s", run.Metadata.Name)
				return nil
			}

			spinner := output.NewStatusSpinner()
			spinner.Start("Waiting for run to start")
			final, err := c.WaitForRun(cmd.Context(), run.Metadata.Name, func(phase, message string) {
				if message != "" {
					spinner.Update(fmt.Sprintf("%s: %s", phase, message))
				} else {
					spinner.Update(phase)
				}
			})
			spinner.Stop()
			if err != nil {
				return err
			}

			printRunSummary(final)
			return nil
		},
	}

	cmd.Flags().BoolVar(&retain, "retain", false, "Keep the workspace after the run")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the run to finish and print the verdict")
	return cmd
}

func newRunListCmd() *cobra.Command {
	var scenario string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := getClient()
			if err != nil {
				return err
			}

			runs, err := c.ListRuns(cmd.Context(), scenario)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				output.Info("No runs found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSCENARIO\tPHASE\tEXIT\tAGE")
			for _, run := range runs {
				exit := "-"
				if run.Status.Execution != nil {
					exit = fmt.Sprintf("%d", run.Status.Execution.ExitCode)
					if run.Status.Execution.TimedOut {
						exit = "timeout"
					}
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					run.Metadata.Name,
					run.Spec.ScenarioRef,
					run.Status.Phase,
					exit,
					age(run.Metadata.CreatedAt))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&scenario, "scenario", "", "Only show runs for this scenario")
	return cmd
}

func newRunShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run>",
		Short: "Show one run in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := getClient()
			if err != nil {
				return err
			}

			run, err := c.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			data, err := yaml.Marshal(run)
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		},
	}
}

func newRunCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <run>",
		Short: "Cancel an executing run or delete a finished run record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := getClient()
			if err != nil {
				return err
			}

			if err := c.DeleteRun(cmd.Context(), args[0]); err != nil {
				return err
			}

			output.Success("Run %s cancelled", args[0])
			return nil
		},
	}
}

// printRunSummary prints a terminal run's verdict.
func printRunSummary(run *types.Run) {
	switch run.Status.Phase {
	case types.RunPhaseCompleted:
		exec := run.Status.Execution
		switch {
		case exec == nil:
			output.Success("Run %s completed", run.Metadata.Name)
		case exec.TimedOut:
			output.Warn("Run %s completed: validation timed out after %s", run.Metadata.Name, exec.Duration.Round(time.Millisecond))
		case exec.ExitCode == 0:
			output.Success("Run %s completed: validation exited 0 in %s", run.Metadata.Name, exec.Duration.Round(time.Millisecond))
		default:
			output.Warn("Run %s completed: validation exited %d in %s", run.Metadata.Name, exec.ExitCode, exec.Duration.Round(time.Millisecond))
		}
	default:
		output.Error("Run %s failed: %s", run.Metadata.Name, run.Status.Message)
	}

	if build := run.Status.Build; build != nil {
		if !build.Succeeded() {
			output.Info("  build state: %s", build.State)
			if build.State == types.BuildPatchFailed {
				output.Info("  failing patch index: %d", build.FailedPatch)
			}
		}
		if build.Workspace != "" {
			output.Info("  workspace: %s", build.Workspace)
		}
	}
	output.Info("  details: bugzoo run show %s", run.Metadata.Name)
}

// age renders a timestamp as a compact relative duration.
func age(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
