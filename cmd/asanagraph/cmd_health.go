package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check connectivity to required services",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()
			allOK := true

			// Check Neo4j
			g, err := newGraphStore(ctx, logger)
			if err != nil {
				fmt.Printf("Neo4j: FAIL (%v)\n", err)
				allOK = false
			} else {
				fmt.Println("Neo4j: OK")
				_ = g.Close(ctx)
			}

			// Check Qdrant
			idx, err := newIndex(logger)
			if err != nil {
				fmt.Printf("Qdrant: FAIL (%v)\n", err)
				allOK = false
			} else {
				if err := idx.Health(ctx); err != nil {
					fmt.Printf("Qdrant: FAIL (%v)\n", err)
					allOK = false
				} else {
					fmt.Println("Qdrant: OK")
				}
				_ = idx.Close()
			}

			// Check Ollama
			emb := newEmbedder(logger)
			if _, err := emb.Embed(ctx, "health check"); err != nil {
				fmt.Printf("Ollama: FAIL (%v)\n", err)
				allOK = false
			} else {
				fmt.Println("Ollama: OK")
			}

			// Check judge API key
			if cfg.Judge.APIKey() == "" {
				fmt.Printf("Judge (%s): FAIL (no API key configured)\n", cfg.Judge.Provider)
				allOK = false
			} else {
				fmt.Printf("Judge (%s): OK\n", cfg.Judge.Provider)
			}

			if !allOK {
				return fmt.Errorf("one or more health checks failed")
			}
			return nil
		},
	}
}
