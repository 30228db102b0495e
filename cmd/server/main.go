package main

import (
	"os"

	"github.com/spf13/cobra"
)

type serverOptions struct {
	Port        string
	DatabaseURL string
}

func newRootCmd() *cobra.Command {
	opts := &serverOptions{}
	root := &cobra.Command{
		Use:          "mydiary",
		Short:        "Personal diary server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.Port, "port", "", "listen port (overrides PORT)")
	root.PersistentFlags().StringVar(&opts.DatabaseURL, "database-url", "", "Postgres DSN (overrides DATABASE_URL)")

	addServe(root, opts)
	addMigrate(root, opts)
	return root
}

func addServe(topLevel *cobra.Command, opts *serverOptions) {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		Example: `
mydiary serve --port 8080
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
	topLevel.AddCommand(cmd)
}

func addMigrate(topLevel *cobra.Command, opts *serverOptions) {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), opts)
		},
	}
	topLevel.AddCommand(cmd)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
