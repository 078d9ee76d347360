// cmd/bugzoo/scenario.go
package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/squareslab/bugzood/internal/client"
	"github.com/squareslab/bugzood/internal/daemon/manifest"
	"github.com/squareslab/bugzood/internal/output"
)

func newScenarioCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "scenario",
		Aliases: []string{"scenarios", "scn"},
		Short:   "Manage bug scenarios",
	}

	cmd.AddCommand(newScenarioListCmd())
	cmd.AddCommand(newScenarioShowCmd())
	cmd.AddCommand(newScenarioAddCmd())
	cmd.AddCommand(newScenarioRemoveCmd())

	return cmd
}

func newScenarioListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := getClient()
			if err != nil {
				return err
			}

			scenarios, err := c.ListScenarios(cmd.Context())
			if err != nil {
				return err
			}
			if len(scenarios) == 0 {
				output.Info("No scenarios registered. Add one with: bugzoo scenario add -f <manifest>")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tPROGRAM\tPATCHES\tBUILD STEPS")
			for _, s := range scenarios {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\n",
					s.Metadata.Name,
					s.Spec.Program,
					len(s.Spec.Patches),
					len(s.Spec.BuildSteps))
			}
			return w.Flush()
		},
	}
}

func newScenarioShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show one scenario in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := getClient()
			if err != nil {
				return err
			}

			scenario, err := c.GetScenario(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			data, err := yaml.Marshal(scenario)
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		},
	}
}

func newScenarioAddCmd() *cobra.Command {
	var filePath string

	cmd := &cobra.Command{
		Use:   "add -f <manifest>",
		Short: "Register a scenario from a YAML manifest",
		Long: `Register a scenario from a YAML manifest.

Relative patch and archive paths in the manifest are resolved against
the manifest's directory before submission.

Example manifest:

  name: libtiff-2005-12-14
  program: libtiff
  source:
    archive: https://archives.example.com/libtiff-3.7.2.tar.gz
    sha256: 0dcda1f4...
    strip_components: 1
  patches:
    - patches/bug.patch
  build:
    - role: configure
      command: ./configure
    - role: compile
      command: make
    - role: install
      command: make
      args: [install]
  validation:
    command: sh
    args: [run-tests.sh]
    timeout: 5m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if filePath == "" {
				return fmt.Errorf("a manifest file is required (-f <manifest>)")
			}

			scenario, err := manifest.Load(filePath)
			if err != nil {
				return err
			}

			c, err := getClient()
			if err != nil {
				return err
			}

			created, err := c.CreateScenario(cmd.Context(), scenario)
			if err != nil {
				if client.IsConflict(err) {
					return fmt.Errorf("scenario %q already exists (scenarios are immutable; remove it first)", scenario.Metadata.Name)
				}
				return err
			}

			output.Success("Registered scenario %s", created.Metadata.Name)
			return nil
		},
	}

	cmd.Flags().StringVarP(&filePath, "file", "f", "", "Path to the scenario manifest")
	return cmd
}

func newScenarioRemoveCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Remove a scenario",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			if !force {
				prompt := promptui.Prompt{
					Label:     fmt.Sprintf("Remove scenario %s", name),
					IsConfirm: true,
				}
				if _, err := prompt.Run(); err != nil {
					output.Info("Cancelled")
					return nil
				}
			}

			c, err := getClient()
			if err != nil {
				return err
			}

			if err := c.DeleteScenario(cmd.Context(), name); err != nil {
				if client.IsConflict(err) {
					return fmt.Errorf("scenario %q has a run in flight; cancel it first", name)
				}
				return err
			}

			output.Success("Removed scenario %s", name)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Skip confirmation prompt")
	return cmd
}
