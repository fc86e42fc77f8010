package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asanagraph/asanagraph/internal/models"
)

func TestMemoryStoreCourses(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	course := models.Course{Name: "Morning Flow", Description: "gentle start", Challenge: 1}
	slots := []models.PoseSlot{
		{PoseName: "Downward Dog", Order: 2, DurationSeconds: 60, RepeatTimes: 1},
		{PoseName: "Mountain Pose", Order: 1, DurationSeconds: 60, RepeatTimes: 2},
	}
	require.NoError(t, m.AddCourse(course, slots))

	got, gotSlots, err := m.GetCourse(ctx, "Morning Flow")
	require.NoError(t, err)
	assert.Equal(t, course, got)

	// Slots come back ordered regardless of insertion order.
	require.Len(t, gotSlots, 2)
	assert.Equal(t, "Mountain Pose", gotSlots[0].PoseName)
	assert.Equal(t, "Downward Dog", gotSlots[1].PoseName)

	_, _, err = m.GetCourse(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreRejectsBadSlots(t *testing.T) {
	m := NewMemoryStore()
	err := m.AddCourse(models.Course{Name: "Broken"}, []models.PoseSlot{
		{PoseName: "A", Order: 1},
		{PoseName: "B", Order: 3},
	})
	require.Error(t, err)
}

func TestMemoryStorePoses(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	m.AddPose(models.Pose{Name: "Warrior II", Category: "Standing"})
	m.AddPose(models.Pose{Name: "Triangle Pose", Category: "Standing"})
	m.AddPose(models.Pose{Name: "Corpse Pose", Category: "Restorative"})

	p, err := m.GetPose(ctx, "Warrior II")
	require.NoError(t, err)
	assert.Equal(t, "Standing", p.Category)

	_, err = m.GetPose(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStorePosesInCategory(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	m.AddPose(models.Pose{Name: "Warrior II", Category: "Standing"})
	m.AddPose(models.Pose{Name: "Triangle Pose", Category: "Standing"})
	m.AddPose(models.Pose{Name: "Corpse Pose", Category: "Restorative"})

	standing, err := m.PosesInCategory(ctx, "Standing", "")
	require.NoError(t, err)
	require.Len(t, standing, 2)
	// Sorted by name for replayable traversal.
	assert.Equal(t, "Triangle Pose", standing[0].Name)
	assert.Equal(t, "Warrior II", standing[1].Name)

	excluded, err := m.PosesInCategory(ctx, "Standing", "Warrior II")
	require.NoError(t, err)
	require.Len(t, excluded, 1)
	assert.Equal(t, "Triangle Pose", excluded[0].Name)

	empty, err := m.PosesInCategory(ctx, "Backbends", "")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
