// Package intent turns a free-text practice request into a structured
// IntentRecord via the LLM judge.
package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/asanagraph/asanagraph/internal/judge"
	"github.com/asanagraph/asanagraph/internal/models"
)

// extractionPromptTemplate is the fixed extraction template. User content is
// injected via an XML tag to prevent prompt injection.
const extractionPromptTemplate = `You are an assistant that extracts structured practice requirements from a yoga training request.

Return a JSON object with exactly these keys:
- "objective": array of strings, the training goals mentioned
- "body_parts": array of strings, the physical body parts to train
- "contraindications": array of strings, health conditions that restrict the practice
- "poses_to_avoid": array of strings, poses the user cannot or will not do
- "min_duration_seconds": integer, minimum session length in seconds (0 if not mentioned)
- "max_duration_seconds": integer, maximum session length in seconds (0 if not mentioned)

Use empty arrays and 0 where the request gives no information. Output only valid JSON.

<request>%s</request>`

// Interpreter extracts an IntentRecord from a raw query.
type Interpreter struct {
	judge  judge.Judge
	logger *slog.Logger
}

// NewInterpreter creates an Interpreter backed by the given judge.
func NewInterpreter(j judge.Judge, logger *slog.Logger) *Interpreter {
	return &Interpreter{judge: j, logger: logger}
}

// Interpret extracts structured intent from the raw query. Extraction is
// best-effort: a failed call or an off-schema response degrades to empty
// fields with a warning rather than aborting the pipeline. Duration bounds
// are soft; a reversed pair is normalized so min <= max holds.
func (i *Interpreter) Interpret(ctx context.Context, query string) (models.IntentRecord, error) {
	prompt := fmt.Sprintf(extractionPromptTemplate, judge.Escape(query))

	raw, err := i.judge.Extract(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return models.IntentRecord{}, ctx.Err()
		}
		i.logger.Warn("intent extraction failed, continuing with empty intent", "error", err)
		return models.IntentRecord{}, nil
	}

	var rec models.IntentRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			i.logger.Warn("intent extraction returned off-schema JSON, continuing with empty intent",
				"error", err, "raw", string(raw))
			return models.IntentRecord{}, nil
		}
		// Unmarshal fills every well-typed field before reporting the type
		// error, so only the mistyped field needs to be dropped.
		clearField(&rec, typeErr.Field)
		i.logger.Warn("intent extraction returned a mistyped field, dropping it",
			"field", typeErr.Field, "error", err)
	}

	if rec.MinDurationSeconds < 0 {
		rec.MinDurationSeconds = 0
	}
	if rec.MaxDurationSeconds < 0 {
		rec.MaxDurationSeconds = 0
	}
	if rec.MaxDurationSeconds > 0 && rec.MinDurationSeconds > rec.MaxDurationSeconds {
		rec.MinDurationSeconds, rec.MaxDurationSeconds = rec.MaxDurationSeconds, rec.MinDurationSeconds
	}

	i.logger.Debug("interpreted query",
		"objectives", rec.Objectives,
		"body_parts", rec.BodyParts,
		"contraindications", rec.Contraindications,
		"poses_to_avoid", rec.PosesToAvoid,
		"min_seconds", rec.MinDurationSeconds,
		"max_seconds", rec.MaxDurationSeconds)

	return rec, nil
}

// clearField resets the named IntentRecord field to its zero value. The field
// name comes from an UnmarshalTypeError, which uses the JSON key and may carry
// a nested path for errors inside array elements.
func clearField(rec *models.IntentRecord, field string) {
	name, _, _ := strings.Cut(field, ".")
	switch name {
	case "objective":
		rec.Objectives = nil
	case "body_parts":
		rec.BodyParts = nil
	case "contraindications":
		rec.Contraindications = nil
	case "poses_to_avoid":
		rec.PosesToAvoid = nil
	case "min_duration_seconds":
		rec.MinDurationSeconds = 0
	case "max_duration_seconds":
		rec.MaxDurationSeconds = 0
	}
}
