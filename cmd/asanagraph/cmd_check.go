package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func checkCmd() *cobra.Command {
	var (
		poseName string
		query    string
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check whether a single pose suits a user's request",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			orch, cleanup, err := newOrchestrator(ctx, logger)
			if err != nil {
				return fmt.Errorf("check: %w", err)
			}
			defer cleanup()

			final, replaced, err := orch.CheckPose(ctx, poseName, query)
			if err != nil {
				return fmt.Errorf("check: %w", err)
			}

			switch {
			case final == "":
				fmt.Printf("%s is unsuitable and has no replacement; skip it.\n", poseName)
			case replaced:
				fmt.Printf("%s is unsuitable; practice %s instead.\n", poseName, final)
			default:
				fmt.Printf("%s is fine to practice.\n", final)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&poseName, "pose", "", "pose name to check")
	cmd.Flags().StringVar(&query, "query", "", "the user's request, including any conditions")
	_ = cmd.MarkFlagRequired("pose")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}
