// Command dkvbench is a small CLI harness exercising the async client
// end to end: single-record get/put/delete/exists, a batch read, a
// scan, a range query, and a parallel throughput benchmark against a
// configured cluster. Grounded on cmd/kv/commands.go's per-operation
// subcommand shape and cmd/kv/perfCmd.go's testing.Benchmark-driven
// perf subcommand.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dkv-io/async-client/config"
	"github.com/dkv-io/async-client/log"
)

var (
	cfg *config.ClientConfig

	rootCmd = &cobra.Command{
		Use:               "dkvbench",
		Short:             "Exercise the async key-value client against a cluster",
		PersistentPreRunE: setup,
	}
)

func init() {
	cobra.OnInitialize(config.InitEnv)
	config.SetupFlags(rootCmd)

	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(existsCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(perfCmd)
}

func setup(cmd *cobra.Command, _ []string) error {
	if err := config.BindFlags(cmd); err != nil {
		return err
	}
	cfg = config.FromViper()
	log.SetLevel(log.ParseLevel(cfg.LogLevel))
	return cfg.Validate()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
