// Package retrieval runs multi-signal semantic search over the course index
// and merges the hits into a deduplicated candidate set.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/asanagraph/asanagraph/internal/embedder"
	"github.com/asanagraph/asanagraph/internal/models"
	"github.com/asanagraph/asanagraph/internal/store"
)

// Retriever merges course hits from independent retrieval signals.
type Retriever struct {
	index    store.Index
	embedder embedder.Embedder
	topK     uint64
	logger   *slog.Logger
}

// NewRetriever creates a Retriever with the given per-signal top-K.
func NewRetriever(index store.Index, emb embedder.Embedder, topK int, logger *slog.Logger) *Retriever {
	return &Retriever{
		index:    index,
		embedder: emb,
		topK:     uint64(topK),
		logger:   logger,
	}
}

// Retrieve runs one search keyed by the objective terms and one keyed by the
// target body parts, in parallel, and returns the union of hits deduplicated
// by course name. A signal with no terms is skipped. An empty result is
// valid and means no existing course matched either signal.
func (r *Retriever) Retrieve(ctx context.Context, rec models.IntentRecord) (models.CandidateSet, error) {
	signals := [][]string{rec.Objectives, rec.BodyParts}

	candidates := make(models.CandidateSet)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, terms := range signals {
		if len(terms) == 0 {
			continue
		}
		query := strings.Join(terms, ", ")
		g.Go(func() error {
			vec, err := r.embedder.Embed(gctx, query)
			if err != nil {
				return fmt.Errorf("embedding signal %q: %w", query, err)
			}
			hits, err := r.index.SearchCourses(gctx, vec, r.topK)
			if err != nil {
				return fmt.Errorf("searching courses for %q: %w", query, err)
			}
			mu.Lock()
			for _, hit := range hits {
				candidates.Add(hit.Name)
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.logger.Debug("retrieved course candidates", "count", len(candidates))
	return candidates, nil
}
