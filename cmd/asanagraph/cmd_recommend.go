package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/asanagraph/asanagraph/internal/orchestrator"
)

func recommendCmd() *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "recommend [request]",
		Short: "Recommend a pose sequence for a free-text request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if provider != "" {
				cfg.Judge.Provider = provider
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			logger := newLogger()
			ctx := cmd.Context()

			orch, cleanup, err := newOrchestrator(ctx, logger)
			if err != nil {
				return fmt.Errorf("recommend: %w", err)
			}
			defer cleanup()

			rec, err := orch.Run(ctx, args[0])
			if err != nil {
				if errors.Is(err, orchestrator.ErrNoViableSequence) {
					fmt.Println("Sorry, no suitable sequence could be found or composed for this request.")
					return nil
				}
				return fmt.Errorf("recommend: %w", err)
			}

			if rec.Composed {
				fmt.Println("Composed a new sequence for you:")
			} else {
				fmt.Printf("Recommended course: %s\n", rec.CourseName)
			}

			for _, slot := range rec.Slots {
				line := fmt.Sprintf("%d. %s (%ds", slot.Order, slot.PoseName, slot.DurationSeconds)
				if slot.RepeatTimes > 1 {
					line += fmt.Sprintf(" x%d", slot.RepeatTimes)
				}
				line += ")"
				fmt.Println(line)
			}

			for _, r := range rec.Replacements {
				fmt.Printf("   replaced %s with %s at position %d\n", r.From, r.To, r.Order)
			}

			fmt.Printf("Total: %dm%ds\n", rec.TotalSeconds/60, rec.TotalSeconds%60)
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "LLM judge provider (anthropic|openai|deepseek)")
	return cmd
}
