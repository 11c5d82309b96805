// Command identityd serves the identity engine over HTTP and runs its
// maintenance tasks.
//
//	identityd serve            HTTP API, /metrics and the expired-code sweeper
//	identityd migrate up|down  apply the embedded Postgres schema
//	identityd sweep            delete expired one-time codes once
//	identityd account create   add an account to the Postgres credential store
//	identityd account link     link an external login to an account
//
// Configuration comes from .env and IDENTITY_* environment variables.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "identityd",
		Short:         "Password login, step-up codes and password reset",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file read before the environment")

	root.AddCommand(newServeCommand(&envFile))
	root.AddCommand(newMigrateCommand(&envFile))
	root.AddCommand(newSweepCommand(&envFile))
	root.AddCommand(newAccountCommand(&envFile))
	return root
}
