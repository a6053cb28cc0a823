package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/ReturnMyTime/returnmytime-cli/internal/logging"
	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

var (
	verbosity int
	noColor   bool
)

var rootCmd = &cobra.Command{
	Use:   "returnmytime",
	Short: "Install and keep agent skills up to date",
	Long: `returnmytime installs skill bundles for coding agents and keeps them in sync
with where they came from.

Skills can come from GitHub or GitLab repositories, any git URL, local
directories, zip archives, well-known skill indexes, direct SKILL.md URLs and
plugin marketplaces.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if os.Getenv("NO_COLOR") != "" {
			noColor = true
		}
		logging.Setup(logging.Options{Verbosity: verbosity, NoColor: noColor})
		out = newStyles(noColor)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "returnmytime %s (commit: %s, built: %s)\n", Version, Commit, Date)
	},
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase log verbosity (-v info, -vv debug, -vvv trace)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command. Temp directories created by the command are
// removed before it returns.
func Execute(ctx context.Context) error {
	defer Cleanup()
	return rootCmd.ExecuteContext(ctx)
}
