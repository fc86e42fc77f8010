package intent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asanagraph/asanagraph/internal/models"
)

// stubJudge returns canned extraction output.
type stubJudge struct {
	raw json.RawMessage
	err error
}

func (s *stubJudge) Extract(context.Context, string) (json.RawMessage, error) {
	return s.raw, s.err
}

func (s *stubJudge) Classify(context.Context, string) (string, error) {
	return "", errors.New("not used")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInterpretFullExtraction(t *testing.T) {
	raw := json.RawMessage(`{
		"objective": ["flexibility"],
		"body_parts": ["hips", "hamstrings"],
		"contraindications": ["knee injury"],
		"poses_to_avoid": ["Lotus Pose"],
		"min_duration_seconds": 900,
		"max_duration_seconds": 1800
	}`)
	in := NewInterpreter(&stubJudge{raw: raw}, testLogger())

	rec, err := in.Interpret(context.Background(), "I want to loosen my hips, 15 to 30 minutes, bad knee")
	require.NoError(t, err)
	assert.Equal(t, []string{"flexibility"}, rec.Objectives)
	assert.Equal(t, []string{"hips", "hamstrings"}, rec.BodyParts)
	assert.Equal(t, []string{"knee injury"}, rec.Contraindications)
	assert.Equal(t, []string{"Lotus Pose"}, rec.PosesToAvoid)
	assert.Equal(t, 900, rec.MinDurationSeconds)
	assert.Equal(t, 1800, rec.MaxDurationSeconds)
}

func TestInterpretDegradesOnJudgeFailure(t *testing.T) {
	in := NewInterpreter(&stubJudge{err: errors.New("api down")}, testLogger())

	rec, err := in.Interpret(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, models.IntentRecord{}, rec)
}

func TestInterpretDegradesOnOffSchemaJSON(t *testing.T) {
	in := NewInterpreter(&stubJudge{raw: json.RawMessage(`"just a string"`)}, testLogger())

	rec, err := in.Interpret(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, models.IntentRecord{}, rec)
}

func TestInterpretKeepsWellTypedFieldsOnTypeError(t *testing.T) {
	raw := json.RawMessage(`{
		"objective": ["strength"],
		"body_parts": ["core"],
		"contraindications": ["wrist injury"],
		"poses_to_avoid": ["Headstand"],
		"min_duration_seconds": "thirty minutes",
		"max_duration_seconds": 1800
	}`)
	in := NewInterpreter(&stubJudge{raw: raw}, testLogger())

	rec, err := in.Interpret(context.Background(), "strong core, no headstands, bad wrists")
	require.NoError(t, err)
	assert.Equal(t, []string{"strength"}, rec.Objectives)
	assert.Equal(t, []string{"core"}, rec.BodyParts)
	assert.Equal(t, []string{"wrist injury"}, rec.Contraindications)
	assert.Equal(t, []string{"Headstand"}, rec.PosesToAvoid)
	assert.Equal(t, 0, rec.MinDurationSeconds)
	assert.Equal(t, 1800, rec.MaxDurationSeconds)
}

func TestInterpretDropsMistypedArrayField(t *testing.T) {
	raw := json.RawMessage(`{
		"objective": "relaxation",
		"poses_to_avoid": ["Crow Pose"],
		"min_duration_seconds": 600,
		"max_duration_seconds": 1200
	}`)
	in := NewInterpreter(&stubJudge{raw: raw}, testLogger())

	rec, err := in.Interpret(context.Background(), "relax, no crow pose")
	require.NoError(t, err)
	assert.Empty(t, rec.Objectives)
	assert.Equal(t, []string{"Crow Pose"}, rec.PosesToAvoid)
	assert.Equal(t, 600, rec.MinDurationSeconds)
	assert.Equal(t, 1200, rec.MaxDurationSeconds)
}

func TestInterpretPropagatesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	in := NewInterpreter(&stubJudge{err: context.Canceled}, testLogger())

	_, err := in.Interpret(ctx, "anything")
	require.ErrorIs(t, err, context.Canceled)
}

func TestInterpretNormalizesDurations(t *testing.T) {
	raw := json.RawMessage(`{"objective":[],"body_parts":[],"contraindications":[],"poses_to_avoid":[],"min_duration_seconds":1800,"max_duration_seconds":600}`)
	in := NewInterpreter(&stubJudge{raw: raw}, testLogger())

	rec, err := in.Interpret(context.Background(), "swapped bounds")
	require.NoError(t, err)
	assert.Equal(t, 600, rec.MinDurationSeconds)
	assert.Equal(t, 1800, rec.MaxDurationSeconds)

	raw = json.RawMessage(`{"min_duration_seconds":-5,"max_duration_seconds":-1}`)
	in = NewInterpreter(&stubJudge{raw: raw}, testLogger())
	rec, err = in.Interpret(context.Background(), "negative bounds")
	require.NoError(t, err)
	assert.Equal(t, 0, rec.MinDurationSeconds)
	assert.Equal(t, 0, rec.MaxDurationSeconds)
}
