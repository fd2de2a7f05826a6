// cliffhop-server runs the authoritative platformer simulation server.
//
// Usage:
//
//	cliffhop-server serve              - Run the game server
//	cliffhop-server stages check <f>   - Validate a stage file
//	cliffhop-server scores <stage>     - Show recorded top scores for a stage
//
// Global flags:
//
//	--config <path>  - YAML configuration file (env vars still override)
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var flagConfig string

var rootCmd = &cobra.Command{
	Use:   "cliffhop-server",
	Short: "Authoritative multiplayer platformer server",
	Long: `cliffhop-server simulates a cooperative platformer world at a fixed
tick rate and streams state to websocket clients.

Available commands:
  serve    - Run the game server
  stages   - Validate designer-authored stage files
  scores   - View recorded stage results`,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to YAML configuration file")
	rootCmd.AddCommand(serveCmd, stagesCmd, scoresCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
