// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/retrieval-engine/internal/progress"
	"github.com/pdiddy/retrieval-engine/internal/resultfile"
	"github.com/pdiddy/retrieval-engine/pkg/types"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Run one adaptive search from the terminal",
	Long: `Search runs the adaptive retrieval loop once: it queries the enabled
literature APIs, scores and deduplicates the pool, and relaxes the quality
threshold across iterations until the target count is met or a budget runs
out. Progress is reported per iteration on stderr; Ctrl-C returns whatever
has been found so far.`,
	Args: cobra.ArbitraryArgs,
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().String("query", "", "free-text research question (or pass as positional args)")
	searchCmd.Flags().Int("target", 50, "number of qualifying papers to aim for")
	searchCmd.Flags().Bool("json", false, "output results as JSON")
	searchCmd.Flags().String("save", "", "write the full result set to a YAML file")
	searchCmd.Flags().String("load", "", "print a previously saved result file instead of searching")
	searchCmd.Flags().Bool("verbose", false, "enable debug logging")

	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if loadPath, _ := cmd.Flags().GetString("load"); loadPath != "" {
		jsonOut, _ := cmd.Flags().GetBool("json")
		return printSavedResult(loadPath, jsonOut, os.Stdout)
	}

	query, _ := cmd.Flags().GetString("query")
	if query == "" {
		query = strings.Join(args, " ")
	}
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("query is empty: provide a research question")
	}
	target, _ := cmd.Flags().GetInt("target")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := pipelineConfig()
	if err != nil {
		return err
	}

	logger := zap.NewNop()
	if verbose {
		if logger, err = zap.NewDevelopment(); err != nil {
			return err
		}
	}
	defer logger.Sync()

	orch, err := buildOrchestrator(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	emit := progress.EmitterFunc(func(ev types.ProgressEvent) {
		if err := progress.Validate(ev); err != nil {
			fmt.Fprintf(os.Stderr, "warning: dropping malformed event: %v\n", err)
			return
		}
		switch ev.Kind {
		case types.EventIterationStart:
			fmt.Fprintf(os.Stderr, "iteration %d/%d: threshold %.0f, field %s, carrying %d papers\n",
				ev.Iteration, ev.TotalIterations, ev.Threshold, ev.Field, ev.PapersFoundSoFar)
		case types.EventIterationProgress:
			fmt.Fprintf(os.Stderr, "iteration %d: %d qualifying (%+d new, yield %.2f)\n",
				ev.Iteration, ev.PapersFound, ev.NewPapersThisIteration, ev.YieldRate)
		case types.EventIterationComplete:
			if ev.Reason != "" {
				fmt.Fprintf(os.Stderr, "iteration %d complete: %d/%d papers, stopping (%s)\n",
					ev.Iteration, ev.PapersFound, ev.TargetPapers, ev.Reason)
			}
		}
	})

	result, err := orch.Run(ctx, types.SearchRequest{Query: query, TargetCount: target}, emit)
	if err != nil {
		return err
	}

	if savePath, _ := cmd.Flags().GetString("save"); savePath != "" {
		if err := resultfile.Write(savePath, result); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Saved results to %s\n", savePath)
	}

	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		return formatJSON(result, os.Stdout)
	}
	formatTable(result, os.Stdout)
	return nil
}

// printSavedResult re-displays a result file written by --save, through the
// same formatters a live search uses.
func printSavedResult(path string, jsonOut bool, w io.Writer) error {
	result, err := resultfile.Read(path)
	if err != nil {
		return err
	}
	if jsonOut {
		return formatJSON(result, w)
	}
	formatTable(result, w)
	return nil
}
