package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shoplens/cartdetect/internal/registry"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the model catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := registry.New()
		for _, m := range reg.List() {
			status := string(m.Provider)
			if m.Disabled {
				status = "disabled: " + m.DisabledReason
			}
			marker := " "
			if m.ID == registry.DefaultModelID {
				marker = "*"
			}
			fmt.Printf("%s %-24s %-28s %s\n", marker, m.ID, m.DisplayName, status)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
