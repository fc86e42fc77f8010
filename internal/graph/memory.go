package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/asanagraph/asanagraph/internal/models"
)

// MemoryStore is an in-memory Store backed by an arena of poses indexed by
// name. It backs tests and local fixtures; traversal over it is replayable
// because category listings are returned in sorted order.
type MemoryStore struct {
	poses   map[string]models.Pose
	courses map[string]memoryCourse
}

type memoryCourse struct {
	course models.Course
	slots  []models.PoseSlot
}

// NewMemoryStore creates an empty in-memory graph.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		poses:   make(map[string]models.Pose),
		courses: make(map[string]memoryCourse),
	}
}

// AddPose registers a pose, replacing any existing pose of the same name.
func (m *MemoryStore) AddPose(p models.Pose) {
	m.poses[p.Name] = p
}

// AddCourse registers a course with its slots. Slots must be contiguous.
func (m *MemoryStore) AddCourse(c models.Course, slots []models.PoseSlot) error {
	if err := models.ValidateSlots(slots); err != nil {
		return fmt.Errorf("course %q: %w", c.Name, err)
	}
	ordered := make([]models.PoseSlot, len(slots))
	copy(ordered, slots)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })
	m.courses[c.Name] = memoryCourse{course: c, slots: ordered}
	return nil
}

func (m *MemoryStore) GetCourse(_ context.Context, name string) (models.Course, []models.PoseSlot, error) {
	mc, ok := m.courses[name]
	if !ok {
		return models.Course{}, nil, fmt.Errorf("course %q: %w", name, ErrNotFound)
	}
	slots := make([]models.PoseSlot, len(mc.slots))
	copy(slots, mc.slots)
	return mc.course, slots, nil
}

func (m *MemoryStore) GetPose(_ context.Context, name string) (models.Pose, error) {
	p, ok := m.poses[name]
	if !ok {
		return models.Pose{}, fmt.Errorf("pose %q: %w", name, ErrNotFound)
	}
	return p, nil
}

func (m *MemoryStore) PosesInCategory(_ context.Context, category, excluding string) ([]models.Pose, error) {
	var poses []models.Pose
	for _, p := range m.poses {
		if p.Category == category && p.Name != excluding {
			poses = append(poses, p)
		}
	}
	sort.Slice(poses, func(i, j int) bool { return poses[i].Name < poses[j].Name })
	return poses, nil
}

func (m *MemoryStore) Close(context.Context) error {
	return nil
}
