package main

import (
	"encoding/json"
	"fmt"

	"github.com/cuemby/qcc-assembler/pkg/config"
	"github.com/cuemby/qcc-assembler/pkg/types"
	"github.com/spf13/cobra"
)

var assembleCmd = &cobra.Command{
	Use:   "assemble REQUEST",
	Short: "Assemble a solution for a one-off request, print it, then release it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		request := args[0]
		cfgPath, _ := cmd.Flags().GetString("config")
		usePrior, _ := cmd.Flags().GetBool("use-previous-configurations")

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		a, _, store, _, err := buildAssembler(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()
		solution, err := a.AssembleSolution(ctx, request, types.IntentContext{UsePreviousConfigurations: usePrior})
		if err != nil {
			return fmt.Errorf("assemble solution: %w", err)
		}

		encoded, err := json.MarshalIndent(solution, "", "  ")
		if err != nil {
			return fmt.Errorf("encode solution: %w", err)
		}
		fmt.Println(string(encoded))

		if !a.ReleaseSolution(ctx, solution.SolutionID) {
			return fmt.Errorf("release solution %s: not found after assembly", solution.SolutionID)
		}

		return nil
	},
}

func init() {
	assembleCmd.Flags().Bool("use-previous-configurations", false, "Attempt to reuse a prior successful cell configuration")
}
