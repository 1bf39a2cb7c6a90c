package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/resume-matcher/internal/report"
	"github.com/spigell/resume-matcher/internal/scoring"
	"github.com/spigell/resume-matcher/internal/store"
)

const defaultTopN = 5

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Score and rank candidates against positions",
}

var matchPositionCmd = &cobra.Command{
	Use:   "position [job_id]",
	Short: "Rank all candidates for one position and replace its approvals",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runMatch(cmd, scoring.ModePosition, args)
	},
}

var matchCandidateCmd = &cobra.Command{
	Use:   "candidate <candidate_id>",
	Short: "Rank all positions for one candidate and add its approvals",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runMatch(cmd, scoring.ModeCandidate, args)
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)
	matchCmd.AddCommand(matchPositionCmd, matchCandidateCmd)

	matchCmd.PersistentFlags().IntP("top", "n", defaultTopN, "number of ranked results to show, 0 for all")
	matchCmd.PersistentFlags().StringP("xlsx", "x", "", "also write the ranking to this spreadsheet")
}

func runMatch(cmd *cobra.Command, mode scoring.Mode, args []string) {
	ctx := context.Background()

	d := mustSetup(ctx)
	defer d.close()

	engine, err := d.newEngine()
	if err != nil {
		d.logger.Fatal("building scoring engine", zap.Error(err))
	}

	top, _ := cmd.Flags().GetInt("top")

	var ranking *scoring.Ranking
	switch mode {
	case scoring.ModePosition:
		jobID := ""
		if len(args) == 1 {
			jobID = args[0]
		} else if jobID, err = selectPosition(ctx, d.store); err != nil {
			d.logger.Fatal("selecting a position", zap.Error(err))
		}
		ranking, err = engine.MatchPosition(ctx, jobID, top)
	case scoring.ModeCandidate:
		ranking, err = engine.MatchCandidate(ctx, args[0], top)
	}
	if err != nil {
		d.logger.Fatal("scoring failed", zap.Error(err))
	}

	printJSON(ranking)

	if path, _ := cmd.Flags().GetString("xlsx"); path != "" {
		written, err := report.WriteXLSX(path, ranking)
		if err != nil {
			d.logger.Fatal("writing spreadsheet", zap.Error(err))
		}
		d.logger.Info("spreadsheet written", zap.String("path", written))
	}
}

// selectPosition lets the user pick a job id from the stored positions.
func selectPosition(ctx context.Context, s store.Store) (string, error) {
	positions, err := store.Collect(s.ListPositions(ctx))
	if err != nil {
		return "", err
	}
	if len(positions) == 0 {
		return "", errors.New("no positions stored, run ingest positions first")
	}

	ids := make([]string, 0, len(positions))
	for _, p := range positions {
		ids = append(ids, p.JobID)
	}

	prompt := promptui.Select{
		Label: "Select a position",
		Items: ids,
		Size:  10,
	}
	_, id, err := prompt.Run()
	if err != nil {
		return "", fmt.Errorf("prompt: %w", err)
	}
	return id, nil
}

func printJSON(v any) {
	// do not bother error since the values are plain structs
	pretty, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(os.Stdout, string(pretty))
}
