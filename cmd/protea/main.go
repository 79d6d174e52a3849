// Command protea is the Supervisor Kernel's CLI entrypoint: a single
// long-running "run" subcommand that launches the generation state
// machine plus its cooperative sidecars (chat operator, task executor,
// web portal).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "protea",
	Short: "Protea evolutionary supervisor",
	Long: `Protea supervises a mutating worker process: it launches the worker,
watches its heartbeat, records fitness per generation, rolls back on
crash, and asks an LLM to evolve the worker's source between
generations.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
