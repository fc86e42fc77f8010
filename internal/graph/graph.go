// Package graph provides read-only access to the pose/course property graph.
package graph

import (
	"context"
	"errors"

	"github.com/asanagraph/asanagraph/internal/models"
)

// ErrNotFound is returned when the requested pose or course does not exist.
var ErrNotFound = errors.New("graph entity not found")

// Store is the read-only query interface over the knowledge graph.
// The pipeline never writes to the graph.
type Store interface {
	// GetCourse returns a course and its ordered pose slots.
	GetCourse(ctx context.Context, name string) (models.Course, []models.PoseSlot, error)

	// GetPose returns a pose with its text fields, attributes, and outgoing
	// relations grouped by kind.
	GetPose(ctx context.Context, name string) (models.Pose, error)

	// PosesInCategory returns the poses of a category, excluding the named
	// pose when excluding is non-empty. Relations are not populated.
	PosesInCategory(ctx context.Context, category, excluding string) ([]models.Pose, error)

	// Close releases the underlying connection.
	Close(ctx context.Context) error
}
