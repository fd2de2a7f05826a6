package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cliffhop/server/internal/config"
	"cliffhop/server/internal/persist"
)

var flagScoresLimit int

var scoresCmd = &cobra.Command{
	Use:   "scores <stage>",
	Short: "Show recorded top scores for a stage",
	Long: `Read the history database and print the best recorded results for
one stage, highest score first.

Examples:
  cliffhop-server scores meadow
  cliffhop-server scores summit --limit 25`,
	Args: cobra.ExactArgs(1),
	RunE: runScores,
}

func init() {
	scoresCmd.Flags().IntVar(&flagScoresLimit, "limit", 10, "number of results to show")
}

func runScores(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	store, err := persist.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer store.Close()

	results, err := store.TopScores(cmd.Context(), args[0], flagScoresLimit)
	if err != nil {
		return fmt.Errorf("query scores: %w", err)
	}
	if len(results) == 0 {
		fmt.Printf("no results recorded for stage %q\n", args[0])
		return nil
	}

	fmt.Printf("Top scores - %s\n", args[0])
	for i, r := range results {
		outcome := "lost"
		if r.Won {
			outcome = "won"
		}
		when := time.UnixMilli(r.RecordedAt).Format("2006-01-02 15:04")
		fmt.Printf("%2d. %-24s %6d pts  deaths=%d  ticks=%d  %s  %s\n",
			i+1, r.PlayerID, r.Score, r.Deaths, r.StageTicks, outcome, when)
	}
	return nil
}
