/*
main.go - Application entry point

PURPOSE:
  Command-line entry for the violation sync service. Every command builds
  the same dependency graph (app.go) from configuration and then either
  serves the API or runs one job and exits.

COMMANDS:
  serve             HTTP API + scheduler, graceful shutdown
  sweep             One reconciliation sweep, prints the counters as JSON
  queue             Print the enrichment queue; --drain N dispatches N
  migrate-orphans   Flag narrative-only records as complete

GLOBAL FLAGS:
  --config   Config file (YAML/TOML/JSON)
  --db       SQLite database path (":memory:" for in-memory)

ENVIRONMENT:
  Every config key can be set as VSYNC_<KEY>, e.g. VSYNC_SOURCE_URL,
  VSYNC_ENRICHMENT_URL, VSYNC_REDIS_URL. See config/config.go.

EXAMPLES:
  # Serve with file database
  ./server serve --db ./data/vsync.db --port 8080

  # One-off sweep from cron
  VSYNC_SOURCE_TOKEN=... ./server sweep

  # Dispatch the ten most urgent enrichment jobs
  ./server queue --drain 10

SEE ALSO:
  - app.go: Dependency wiring
  - api/server.go: Router configuration
  - config/config.go: Configuration keys
*/
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/warp/violation-sync/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	Viper      *viper.Viper
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{Viper: config.New()}

	cmd := &cobra.Command{
		Use:           "server",
		Short:         "Violation sync - keep case records in line with the public record",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (yaml|toml|json)")
	cmd.PersistentFlags().String("db", "vsync.db", "SQLite database path")
	_ = opts.Viper.BindPFlag("db", cmd.PersistentFlags().Lookup("db"))

	// Add subcommands
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))
	cmd.AddCommand(NewQueueCommand(opts))
	cmd.AddCommand(NewMigrateOrphansCommand(opts))

	return cmd
}

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
