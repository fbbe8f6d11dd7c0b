// Package cli implements the hotify command line.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	cfgFile     string
	cleanOnExit bool
	settleDelay int
	cleanupFlag bool
	dryRun      bool
	flushOnExit bool
	logLevel    string
	noColor     bool

	// Build information - set via ldflags.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "hotify [base-path]",
	Short: "Create hot folder environments that trigger shell commands",
	Long: `Hotify watches hot folders defined in a configuration file
(hotify.yml or hotify.toml) and triggers shell command chains when files
matching an environment's patterns appear.

Drop a file into <base>/<hot_folder>/<environment>/ and the environment's
trigger runs with {in_file}, {in_files}, and {out_file} substituted.
Environments referencing {in_files} batch bursts of files and fire once
the folder has been quiet for the settle delay.

Examples:
  hotify                        # watch hot folders under the current directory
  hotify /srv/scans --clean     # watch /srv/scans, remove hot folders on exit
  hotify validate               # check the configuration and print environments`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		base := "."
		if len(args) > 0 {
			base = args[0]
		}
		return runWatch(cmd, base)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "f", "", "config file (default: hotify.yml in the working directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.Flags().BoolVarP(&cleanOnExit, "clean", "c", false, "remove the hot folder tree on exit")
	rootCmd.Flags().IntVar(&settleDelay, "settle-delay", 0, "batch settle delay in seconds (overrides config)")
	rootCmd.Flags().BoolVar(&cleanupFlag, "cleanup-inputs", false, "delete consumed input files after a successful trigger")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "render triggers and log them without executing")
	rootCmd.Flags().BoolVar(&flushOnExit, "flush-on-exit", false, "flush pending batches on shutdown instead of dropping them")

	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// setupLogging installs a text slog handler at the requested level as the
// process default.
func setupLogging(level string) error {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info", "":
		lvl = slog.LevelInfo
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q", level)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("hotify %s (commit %s, built %s)\n", Version, Commit, Date)
		},
	}
}
