// Package store provides vector similarity search over the course and
// category collections. The pipeline only reads; collection population is an
// external ingestion job.
package store

import (
	"context"

	"github.com/asanagraph/asanagraph/internal/models"
)

// Index is the read-only interface over the vector similarity index.
type Index interface {
	// SearchCourses finds courses similar to the query vector, best first.
	SearchCourses(ctx context.Context, vector []float32, limit uint64) ([]models.CourseHit, error)

	// SearchCategories finds category names similar to the query vector,
	// best first.
	SearchCategories(ctx context.Context, vector []float32, limit uint64) ([]string, error)

	// Health verifies the index is reachable.
	Health(ctx context.Context) error

	// Close cleans up resources.
	Close() error
}
