package orchestrator

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asanagraph/asanagraph/internal/composer"
	"github.com/asanagraph/asanagraph/internal/graph"
	"github.com/asanagraph/asanagraph/internal/intent"
	"github.com/asanagraph/asanagraph/internal/models"
	"github.com/asanagraph/asanagraph/internal/retrieval"
	"github.com/asanagraph/asanagraph/internal/suitability"
	"github.com/asanagraph/asanagraph/internal/validate"
)

// scriptJudge drives the whole pipeline from canned answers. Extraction
// returns a fixed intent; classification answers by prompt fragment.
type scriptJudge struct {
	intent        string
	courseAnswers map[string]string // description fragment -> yes/no/n-a
	yesOn         []string          // pose-check prompt fragments answered yes
}

func (s *scriptJudge) Extract(context.Context, string) (json.RawMessage, error) {
	return json.RawMessage(s.intent), nil
}

func (s *scriptJudge) Classify(_ context.Context, prompt string) (string, error) {
	if strings.Contains(prompt, "yoga course matches") {
		for fragment, answer := range s.courseAnswers {
			if strings.Contains(prompt, fragment) {
				return answer, nil
			}
		}
		return "n/a", nil
	}
	for _, f := range s.yesOn {
		if strings.Contains(prompt, f) {
			return "yes", nil
		}
	}
	return "no", nil
}

// fixedIndex returns the same hits for every vector.
type fixedIndex struct {
	courses    []models.CourseHit
	categories []string
}

func (f *fixedIndex) SearchCourses(context.Context, []float32, uint64) ([]models.CourseHit, error) {
	return f.courses, nil
}

func (f *fixedIndex) SearchCategories(context.Context, []float32, uint64) ([]string, error) {
	return f.categories, nil
}

func (f *fixedIndex) Health(context.Context) error { return nil }
func (f *fixedIndex) Close() error                 { return nil }

type unitEmbedder struct{}

func (unitEmbedder) Embed(context.Context, string) ([]float32, error) { return []float32{1}, nil }
func (unitEmbedder) Dimension() int                                   { return 1 }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestOrchestrator(j *scriptJudge, g graph.Store, idx *fixedIndex) *Orchestrator {
	return newTestOrchestratorOpts(j, g, idx, Options{MaxRemovals: 2, MaxComposeRetries: 2})
}

func newTestOrchestratorOpts(j *scriptJudge, g graph.Store, idx *fixedIndex, opts Options) *Orchestrator {
	logger := testLogger()
	return New(
		intent.NewInterpreter(j, logger),
		retrieval.NewRetriever(idx, unitEmbedder{}, 3, logger),
		validate.NewValidator(j, g, 2, logger),
		suitability.NewChecker(j, 2, logger),
		composer.NewComposer(g, idx, unitEmbedder{}, composer.Options{
			CategoryTopK:       2,
			SlotSeconds:        60,
			DefaultMinSeconds:  120,
			DefaultMaxSeconds:  300,
			ChallengeTolerance: 2,
		}, logger),
		g,
		opts,
		logger,
	)
}

// fixtureGraph holds one course of three poses plus a substitute pool and a
// composable category.
func fixtureGraph(t *testing.T) *graph.MemoryStore {
	t.Helper()
	g := graph.NewMemoryStore()

	g.AddPose(models.Pose{
		Name:         "Cat-Cow",
		Introduction: "A gentle spinal warmup.",
		Steps:        "Alternate arching and rounding the back.",
		Category:     "Warmup",
		Challenge:    1,
	})
	g.AddPose(models.Pose{
		Name:         "Crow Pose",
		Introduction: "An arm balance on bent elbows.",
		Steps:        "Squat, plant the hands, lift the feet.",
		Caution:      "Avoid with wrist injuries.",
		Category:     "Arm Balances",
		Challenge:    3,
	})
	g.AddPose(models.Pose{
		Name:         "Side Plank",
		Introduction: "A lateral balance on one arm.",
		Steps:        "From plank, roll onto one hand.",
		Category:     "Arm Balances",
		Challenge:    2,
	})
	g.AddPose(models.Pose{
		Name:         "Child's Pose",
		Introduction: "A resting fold.",
		Steps:        "Kneel and fold forward.",
		Category:     "Restorative",
		Challenge:    1,
	})

	require.NoError(t, g.AddCourse(
		models.Course{Name: "Back Relief", Description: "relieves back tension"},
		[]models.PoseSlot{
			{PoseName: "Cat-Cow", Order: 1, DurationSeconds: 60, RepeatTimes: 2},
			{PoseName: "Crow Pose", Order: 2, DurationSeconds: 90, RepeatTimes: 1},
			{PoseName: "Child's Pose", Order: 3, DurationSeconds: 120, RepeatTimes: 1},
		},
	))

	// Composable category wired with a closer for the fallback path.
	g.AddPose(models.Pose{
		Name:         "Seated Twist",
		Introduction: "A seated spinal rotation.",
		Steps:        "Sit tall and rotate.",
		Category:     "Seated",
		Challenge:    1,
		Relations: map[models.RelationKind][]string{
			models.RelationUnwind: {"Child's Pose"},
		},
	})

	return g
}

const plainIntent = `{"objective":["back relief"],"body_parts":["back"],"contraindications":[],"poses_to_avoid":[],"min_duration_seconds":0,"max_duration_seconds":0}`

const wristIntent = `{"objective":["back relief"],"body_parts":["back"],"contraindications":["wrist injury"],"poses_to_avoid":[],"min_duration_seconds":0,"max_duration_seconds":0}`

func TestRunAcceptsValidatedCourse(t *testing.T) {
	g := fixtureGraph(t)
	j := &scriptJudge{
		intent:        plainIntent,
		courseAnswers: map[string]string{"relieves back tension": "yes"},
	}
	idx := &fixedIndex{courses: []models.CourseHit{{Name: "Back Relief", Score: 0.9}}}

	orch := newTestOrchestrator(j, g, idx)
	rec, err := orch.Run(context.Background(), "my back is stiff")
	require.NoError(t, err)

	assert.False(t, rec.Composed)
	assert.Equal(t, "Back Relief", rec.CourseName)
	assert.Empty(t, rec.Replacements)
	require.Len(t, rec.Slots, 3)
	assert.Equal(t, "Cat-Cow", rec.Slots[0].PoseName)
	assert.Equal(t, 330, rec.TotalSeconds)
	assert.NotEmpty(t, rec.RunID)
	assert.Equal(t, "my back is stiff", rec.Query)
}

func TestRunRepairsUnsuitablePose(t *testing.T) {
	g := fixtureGraph(t)
	j := &scriptJudge{
		intent:        wristIntent,
		courseAnswers: map[string]string{"relieves back tension": "yes"},
		// The caution check on Crow Pose hits the wrist contraindication.
		yesOn: []string{"Avoid with wrist injuries"},
	}
	idx := &fixedIndex{courses: []models.CourseHit{{Name: "Back Relief", Score: 0.9}}}

	orch := newTestOrchestrator(j, g, idx)
	rec, err := orch.Run(context.Background(), "back is stiff but my wrist is injured")
	require.NoError(t, err)

	assert.Equal(t, "Back Relief", rec.CourseName)
	require.Len(t, rec.Replacements, 1)
	assert.Equal(t, "Crow Pose", rec.Replacements[0].From)
	assert.Equal(t, "Side Plank", rec.Replacements[0].To)

	require.Len(t, rec.Slots, 3)
	assert.Equal(t, "Side Plank", rec.Slots[1].PoseName)
	// The replacement inherits the original slot's duration.
	assert.Equal(t, 90, rec.Slots[1].DurationSeconds)
}

func TestRunComposesWhenNoCourseValid(t *testing.T) {
	g := fixtureGraph(t)
	j := &scriptJudge{
		intent:        plainIntent,
		courseAnswers: map[string]string{"relieves back tension": "no"},
	}
	idx := &fixedIndex{
		courses:    []models.CourseHit{{Name: "Back Relief", Score: 0.9}},
		categories: []string{"Seated"},
	}

	orch := newTestOrchestrator(j, g, idx)
	rec, err := orch.Run(context.Background(), "something for my back")
	require.NoError(t, err)

	assert.True(t, rec.Composed)
	assert.Empty(t, rec.CourseName)
	require.Len(t, rec.Slots, 2)
	assert.Equal(t, "Seated Twist", rec.Slots[0].PoseName)
	assert.Equal(t, "Child's Pose", rec.Slots[1].PoseName)
}

func TestRunNoViableSequence(t *testing.T) {
	g := fixtureGraph(t)
	j := &scriptJudge{intent: plainIntent}
	idx := &fixedIndex{} // no courses, no categories

	orch := newTestOrchestrator(j, g, idx)
	_, err := orch.Run(context.Background(), "anything")
	require.ErrorIs(t, err, ErrNoViableSequence)
}

const avoidIntent = `{"objective":["back relief"],"body_parts":["back"],"contraindications":[],"poses_to_avoid":["arm balances"],"min_duration_seconds":0,"max_duration_seconds":0}`

func TestRunRejectsCourseOverRemovalBudget(t *testing.T) {
	g := fixtureGraph(t)
	j := &scriptJudge{
		intent:        avoidIntent,
		courseAnswers: map[string]string{"relieves back tension": "yes"},
		// Both arm-balance introductions match the avoid list, so Crow Pose
		// has no usable substitute and its slot must be dropped.
		yesOn: []string{"arm balance on bent elbows", "lateral balance"},
	}
	idx := &fixedIndex{courses: []models.CourseHit{{Name: "Back Relief", Score: 0.9}}}

	orch := newTestOrchestratorOpts(j, g, idx, Options{MaxRemovals: 0, MaxComposeRetries: 1})
	_, err := orch.Run(context.Background(), "no arm balances please")
	require.ErrorIs(t, err, ErrNoViableSequence)
}

func TestRunDropsSlotWithinRemovalBudget(t *testing.T) {
	g := fixtureGraph(t)
	j := &scriptJudge{
		intent:        avoidIntent,
		courseAnswers: map[string]string{"relieves back tension": "yes"},
		yesOn:         []string{"arm balance on bent elbows", "lateral balance"},
	}
	idx := &fixedIndex{courses: []models.CourseHit{{Name: "Back Relief", Score: 0.9}}}

	orch := newTestOrchestrator(j, g, idx)
	rec, err := orch.Run(context.Background(), "no arm balances please")
	require.NoError(t, err)

	// Crow Pose is dropped, the rest renumbered contiguously.
	require.Len(t, rec.Slots, 2)
	assert.Equal(t, "Cat-Cow", rec.Slots[0].PoseName)
	assert.Equal(t, 1, rec.Slots[0].Order)
	assert.Equal(t, "Child's Pose", rec.Slots[1].PoseName)
	assert.Equal(t, 2, rec.Slots[1].Order)
	assert.Empty(t, rec.Replacements)
}

const closerAvoidIntent = `{"objective":["back relief"],"body_parts":[],"contraindications":[],"poses_to_avoid":["Child's Pose"],"min_duration_seconds":0,"max_duration_seconds":0}`

func TestRunRejectsComposedSequenceWithBrokenCloser(t *testing.T) {
	g := fixtureGraph(t)
	j := &scriptJudge{
		intent:        closerAvoidIntent,
		courseAnswers: map[string]string{"relieves back tension": "no"},
		// Only Child's Pose matches the avoid list, and it is the sole
		// winding-down exit of the composable category.
		yesOn: []string{"A resting fold"},
	}
	idx := &fixedIndex{
		courses:    []models.CourseHit{{Name: "Back Relief", Score: 0.9}},
		categories: []string{"Seated"},
	}

	orch := newTestOrchestrator(j, g, idx)
	_, err := orch.Run(context.Background(), "wind down, but skip child's pose")
	require.ErrorIs(t, err, ErrNoViableSequence)
}

func TestRecloseComposedTrimsToEarlierCloser(t *testing.T) {
	g := graph.NewMemoryStore()
	g.AddPose(models.Pose{
		Name:         "Seated Twist",
		Introduction: "A seated spinal rotation.",
		Category:     "Seated",
		Relations: map[models.RelationKind][]string{
			models.RelationUnwind: {"Corpse Pose"},
		},
	})
	g.AddPose(models.Pose{
		Name:         "Corpse Pose",
		Introduction: "Full rest on the back.",
		Category:     "Restorative",
	})
	g.AddPose(models.Pose{
		Name:         "Boat Pose",
		Introduction: "A seated core balance.",
		Category:     "Core",
	})
	orch := newTestOrchestrator(&scriptJudge{intent: plainIntent}, g, &fixedIndex{})

	// Boat Pose follows no closing relation from Corpse Pose, so the tail is
	// trimmed back to the Seated Twist -> Corpse Pose unwind pair.
	slots := []models.PoseSlot{
		{PoseName: "Seated Twist", Order: 1, DurationSeconds: 60, RepeatTimes: 1},
		{PoseName: "Corpse Pose", Order: 2, DurationSeconds: 60, RepeatTimes: 1},
		{PoseName: "Boat Pose", Order: 3, DurationSeconds: 60, RepeatTimes: 1},
	}
	out, err := orch.recloseComposed(context.Background(), slots)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "Seated Twist", out[0].PoseName)
	assert.Equal(t, "Corpse Pose", out[1].PoseName)
	assert.Equal(t, 1, out[0].Order)
	assert.Equal(t, 2, out[1].Order)
}

func TestCheckPoseNoRestrictions(t *testing.T) {
	g := fixtureGraph(t)
	j := &scriptJudge{intent: plainIntent}
	orch := newTestOrchestrator(j, g, &fixedIndex{})

	final, replaced, err := orch.CheckPose(context.Background(), "Crow Pose", "just a quick flow")
	require.NoError(t, err)
	assert.Equal(t, "Crow Pose", final)
	assert.False(t, replaced)
}

func TestCheckPoseReplacesUnsuitable(t *testing.T) {
	g := fixtureGraph(t)
	j := &scriptJudge{
		intent: wristIntent,
		yesOn:  []string{"Avoid with wrist injuries"},
	}
	orch := newTestOrchestrator(j, g, &fixedIndex{})

	final, replaced, err := orch.CheckPose(context.Background(), "Crow Pose", "my wrist is injured")
	require.NoError(t, err)
	assert.Equal(t, "Side Plank", final)
	assert.True(t, replaced)
}

func TestCheckPoseRemovedWhenNoSubstitute(t *testing.T) {
	g := graph.NewMemoryStore()
	g.AddPose(models.Pose{
		Name:         "Crow Pose",
		Introduction: "An arm balance.",
		Caution:      "Avoid with wrist injuries.",
		Category:     "Arm Balances",
	})
	j := &scriptJudge{
		intent: wristIntent,
		yesOn:  []string{"Avoid with wrist injuries"},
	}
	orch := newTestOrchestrator(j, g, &fixedIndex{})

	final, replaced, err := orch.CheckPose(context.Background(), "Crow Pose", "my wrist is injured")
	require.NoError(t, err)
	assert.Empty(t, final)
	assert.False(t, replaced)
}

func TestCheckPoseUnknownPose(t *testing.T) {
	g := fixtureGraph(t)
	j := &scriptJudge{intent: wristIntent}
	orch := newTestOrchestrator(j, g, &fixedIndex{})

	_, _, err := orch.CheckPose(context.Background(), "Ghost Pose", "my wrist is injured")
	require.ErrorIs(t, err, graph.ErrNotFound)
}
