// Command grovedb is a CLI over a single embedded grove: put, get,
// delete, create subtrees (including the four non-Merk tree kinds),
// append to a non-Merk tree, and build/print an authenticated proof.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	dataDir  string
	inMemory bool
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "grovedb",
	Short: "Inspect and mutate a GroveDB store from the command line",
	Long: `grovedb drives a single embedded grove: a hierarchy of path-addressed
Merk subtrees, each holding elements, stitched together by Tree and
Reference elements whose value_hash binds a parent key to its child
subtree's root hash.

A path is a "/"-separated list of segments, e.g. "users/alice"; the
root grove itself is addressed by an empty path ("" or "/").`,
}

// init wires rootCmd's flags and subcommands at package load time
// (rather than inside main) so tests can drive rootCmd.Execute directly
// without a real process entry point.
func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "./data", "BadgerDB data directory")
	rootCmd.PersistentFlags().BoolVar(&inMemory, "in-memory", false, "use an in-memory store instead of --data-dir")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")

	rootCmd.AddCommand(
		mktreeCmd(),
		putCmd(),
		getCmd(),
		deleteCmd(),
		appendCmd(),
		proveCmd(),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
