package validate

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asanagraph/asanagraph/internal/graph"
	"github.com/asanagraph/asanagraph/internal/models"
)

// scriptJudge answers the match question based on which course description
// appears in the prompt.
type scriptJudge struct {
	answers map[string]string // description fragment -> answer
	err     error
}

func (s *scriptJudge) Extract(context.Context, string) (json.RawMessage, error) {
	return nil, errors.New("not used")
}

func (s *scriptJudge) Classify(_ context.Context, prompt string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	for fragment, answer := range s.answers {
		if strings.Contains(prompt, fragment) {
			return answer, nil
		}
	}
	return "n/a", nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixtureGraph(t *testing.T, descriptions map[string]string) graph.Store {
	t.Helper()
	g := graph.NewMemoryStore()
	for name, desc := range descriptions {
		require.NoError(t, g.AddCourse(
			models.Course{Name: name, Description: desc},
			[]models.PoseSlot{{PoseName: "Mountain Pose", Order: 1, DurationSeconds: 60, RepeatTimes: 1}},
		))
	}
	return g
}

func candidates(names ...string) models.CandidateSet {
	cs := make(models.CandidateSet)
	for _, n := range names {
		cs.Add(n)
	}
	return cs
}

func TestValidateKeepsOnlyYesWhenAnyYes(t *testing.T) {
	g := fixtureGraph(t, map[string]string{
		"Morning Flow": "gentle morning stretch",
		"Deep Stretch": "deep hip stretch",
		"Power Hour":   "intense full body workout",
	})
	j := &scriptJudge{answers: map[string]string{
		"gentle morning stretch":    "yes",
		"deep hip stretch":          "n/a",
		"intense full body workout": "no",
	}}

	v := NewValidator(j, g, 2, testLogger())
	kept, err := v.Validate(context.Background(), candidates("Morning Flow", "Deep Stretch", "Power Hour"), "a calm morning practice")
	require.NoError(t, err)
	assert.Equal(t, []string{"Morning Flow"}, kept)
}

func TestValidateFallsBackToNA(t *testing.T) {
	g := fixtureGraph(t, map[string]string{
		"Deep Stretch": "deep hip stretch",
		"Power Hour":   "intense full body workout",
	})
	j := &scriptJudge{answers: map[string]string{
		"deep hip stretch":          "n/a",
		"intense full body workout": "no",
	}}

	v := NewValidator(j, g, 2, testLogger())
	kept, err := v.Validate(context.Background(), candidates("Deep Stretch", "Power Hour"), "something relaxing")
	require.NoError(t, err)
	assert.Equal(t, []string{"Deep Stretch"}, kept)
}

func TestValidateAllNoKeepsNothing(t *testing.T) {
	g := fixtureGraph(t, map[string]string{
		"Power Hour": "intense full body workout",
	})
	j := &scriptJudge{answers: map[string]string{
		"intense full body workout": "no",
	}}

	v := NewValidator(j, g, 2, testLogger())
	kept, err := v.Validate(context.Background(), candidates("Power Hour"), "something relaxing")
	require.NoError(t, err)
	assert.Empty(t, kept)
}

func TestValidateEmptyCandidates(t *testing.T) {
	v := NewValidator(&scriptJudge{}, graph.NewMemoryStore(), 2, testLogger())
	kept, err := v.Validate(context.Background(), candidates(), "anything")
	require.NoError(t, err)
	assert.Empty(t, kept)
}

func TestValidateJudgeFailureTreatedAsNA(t *testing.T) {
	g := fixtureGraph(t, map[string]string{
		"Morning Flow": "gentle morning stretch",
	})
	j := &scriptJudge{err: errors.New("api down")}

	v := NewValidator(j, g, 2, testLogger())
	kept, err := v.Validate(context.Background(), candidates("Morning Flow"), "calm practice")
	require.NoError(t, err)
	assert.Equal(t, []string{"Morning Flow"}, kept)
}

func TestValidateOffFormatTreatedAsNA(t *testing.T) {
	g := fixtureGraph(t, map[string]string{
		"Morning Flow": "gentle morning stretch",
	})
	j := &scriptJudge{answers: map[string]string{
		"gentle morning stretch": "well, it depends on the weather",
	}}

	v := NewValidator(j, g, 2, testLogger())
	kept, err := v.Validate(context.Background(), candidates("Morning Flow"), "calm practice")
	require.NoError(t, err)
	assert.Equal(t, []string{"Morning Flow"}, kept)
}

func TestValidateDropsMissingCourse(t *testing.T) {
	g := fixtureGraph(t, map[string]string{
		"Morning Flow": "gentle morning stretch",
	})
	j := &scriptJudge{answers: map[string]string{
		"gentle morning stretch": "yes",
	}}

	v := NewValidator(j, g, 2, testLogger())
	kept, err := v.Validate(context.Background(), candidates("Morning Flow", "Ghost Course"), "calm practice")
	require.NoError(t, err)
	assert.Equal(t, []string{"Morning Flow"}, kept)
}
