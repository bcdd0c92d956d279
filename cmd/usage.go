package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var usageUserID string

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show aggregated token usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		var userID *string
		if usageUserID != "" {
			userID = &usageUserID
		}

		agg, err := env.Recorder.ForUser(cmd.Context(), userID, env.Registry)
		if err != nil {
			return err
		}

		who := "anonymous"
		if userID != nil {
			who = *userID
		}
		fmt.Printf("usage for %s: %d tokens over %d calls\n\n", who, agg.TotalTokens, agg.TotalCalls)
		for _, mu := range agg.ModelUsage {
			fmt.Printf("  %-28s %8d tokens  %5d calls  avg %d\n",
				mu.ModelName, mu.TotalTokens, mu.Count, mu.AverageTokens)
		}
		return nil
	},
}

func init() {
	usageCmd.Flags().StringVar(&usageUserID, "user", "", "user id (default: anonymous events)")
	rootCmd.AddCommand(usageCmd)
}
