package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shoplens/cartdetect/internal/model"
	"github.com/shoplens/cartdetect/internal/pipeline"
)

var (
	analyzeModels      []string
	analyzeArbiter     string
	analyzeNoConsensus bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <store>",
	Short: "Find a store's cart subtotal selector",
	Long:  "Fetches <store>.myshopify.com's cart page, asks every selected model for a querySelector and prints the consensus.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		req := pipeline.Request{
			StoreName:      args[0],
			ModelIDs:       analyzeModels,
			ArbiterModelID: analyzeArbiter,
			WithConsensus:  !analyzeNoConsensus,
		}
		if len(req.ModelIDs) == 0 {
			for _, m := range env.Registry.List() {
				if !m.Disabled {
					req.ModelIDs = append(req.ModelIDs, m.ID)
				}
			}
		}

		// A consensus failure still returns the per-model answers;
		// print whatever arrived before surfacing the error.
		result, runErr := env.Coordinator.AnalyzeStore(ctx, req, printEvent)
		if result == nil {
			return runErr
		}

		fmt.Println()
		for _, a := range result.Answers {
			answer := "no selector parsed"
			if a.Selector != nil {
				answer = *a.Selector
			}
			fmt.Printf("  %-28s %s\n", a.ModelDisplayName, answer)
		}
		if result.Consensus != nil {
			fmt.Println()
			if result.Consensus.Selector != nil {
				fmt.Printf("consensus (%s): %s\n", result.Consensus.ArbiterModelID, *result.Consensus.Selector)
			} else {
				fmt.Printf("consensus (%s) gave no parseable selector:\n%s\n",
					result.Consensus.ArbiterModelID, result.Consensus.Text)
			}
		}

		return runErr
	},
}

func printEvent(ev pipeline.Event) {
	switch ev.Type {
	case "fetch":
		if ev.Fetch.Success {
			fmt.Printf("fetched cart page: %d bytes after %d redirects\n",
				len(ev.Fetch.HTML), ev.Fetch.RedirectCount)
		} else {
			fmt.Printf("fetch failed: %s\n", ev.Fetch.ErrorMessage)
		}
	case "model":
		m := ev.Model
		switch m.State {
		case model.ModelStateProcessing:
			fmt.Printf("  %-24s ...\n", m.ModelID)
		case model.ModelStateSuccess:
			fmt.Printf("  %-24s ok (%d tokens)\n", m.ModelID, m.Usage.TotalTokens)
		case model.ModelStateFailure:
			fmt.Printf("  %-24s failed: %s\n", m.ModelID, m.Message)
		case model.ModelStateSkipped:
			fmt.Printf("  %-24s skipped: %s\n", m.ModelID, m.Reason)
		}
	}
}

func init() {
	analyzeCmd.Flags().StringSliceVar(&analyzeModels, "models", nil, "model ids to fan out over (default: all enabled)")
	analyzeCmd.Flags().StringVar(&analyzeArbiter, "arbiter", "", "arbiter model id for the consensus pass")
	analyzeCmd.Flags().BoolVar(&analyzeNoConsensus, "no-consensus", false, "skip the consensus pass")
	rootCmd.AddCommand(analyzeCmd)
}
