// cmd/bugzoo/main.go
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/squareslab/bugzood/internal/client"
	"github.com/squareslab/bugzood/internal/output"
	"github.com/squareslab/bugzood/internal/version"
)

var (
	flagServer  string
	flagVerbose bool
	flagNoColor bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "bugzoo",
		Short: "Client for the bugzood bug scenario daemon",
		Long: `bugzoo manages historical bug scenarios on a running bugzood daemon:
registering scenarios, submitting runs, and inspecting their verdicts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			output.DefaultLogger.SetVerbose(flagVerbose)
			if flagNoColor {
				output.DefaultLogger.SetNoColor(true)
			}
			if flagServer != "" {
				os.Setenv(client.EnvServer, flagServer)
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&flagServer, "server", "", "Daemon address (default: 127.0.0.1:6060)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(newScenarioCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newDaemonCmd())
	rootCmd.AddCommand(version.NewCmd("bugzoo", "bugzood"))

	if err := rootCmd.Execute(); err != nil {
		output.Error("%v", err)
		os.Exit(1)
	}
}

// getClient connects to the daemon or fails with a hint.
func getClient() (*client.Client, error) {
	return client.New()
}
