// Package orchestrator sequences the recommendation pipeline as an explicit
// state machine: retrieve candidate courses, validate them, check pose
// suitability, and fall back to composing a new sequence when no existing
// course survives.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/asanagraph/asanagraph/internal/composer"
	"github.com/asanagraph/asanagraph/internal/graph"
	"github.com/asanagraph/asanagraph/internal/intent"
	"github.com/asanagraph/asanagraph/internal/metrics"
	"github.com/asanagraph/asanagraph/internal/models"
	"github.com/asanagraph/asanagraph/internal/retrieval"
	"github.com/asanagraph/asanagraph/internal/suitability"
	"github.com/asanagraph/asanagraph/internal/validate"
)

// ErrNoViableSequence is the terminal failure of a run: no course survived
// and composition produced nothing usable.
var ErrNoViableSequence = errors.New("no viable sequence for this request")

// State is a stage of the recommendation run, logged on every transition.
type State string

const (
	StateStart           State = "start"
	StateRetrieveCourses State = "retrieve_courses"
	StateValidateCourses State = "validate_courses"
	StateValidatePoses   State = "validate_poses"
	StateComposeFallback State = "compose_fallback"
	StateRepair          State = "repair"
	StateDone            State = "done"
)

// Options holds orchestration bounds.
type Options struct {
	// MaxRemovals is the most dropped slots a sequence tolerates before the
	// whole course is rejected.
	MaxRemovals int
	// MaxComposeRetries bounds fallback composition attempts.
	MaxComposeRetries int
}

// Recommendation is the final output of a successful run.
type Recommendation struct {
	RunID        string                 `json:"run_id"`
	Query        string                 `json:"query"`
	CourseName   string                 `json:"course_name,omitempty"`
	Composed     bool                   `json:"composed"`
	Slots        []models.PoseSlot      `json:"slots"`
	Replacements []composer.Replacement `json:"replacements,omitempty"`
	TotalSeconds int                    `json:"total_seconds"`
}

// Orchestrator wires the pipeline stages together.
type Orchestrator struct {
	interpreter *intent.Interpreter
	retriever   *retrieval.Retriever
	validator   *validate.Validator
	checker     *suitability.Checker
	composer    *composer.Composer
	graph       graph.Store
	opts        Options
	logger      *slog.Logger
}

// New creates an Orchestrator.
func New(
	interp *intent.Interpreter,
	retr *retrieval.Retriever,
	valid *validate.Validator,
	check *suitability.Checker,
	comp *composer.Composer,
	g graph.Store,
	opts Options,
	logger *slog.Logger,
) *Orchestrator {
	if opts.MaxRemovals < 0 {
		opts.MaxRemovals = 0
	}
	if opts.MaxComposeRetries < 1 {
		opts.MaxComposeRetries = 1
	}
	return &Orchestrator{
		interpreter: interp,
		retriever:   retr,
		validator:   valid,
		checker:     check,
		composer:    comp,
		graph:       g,
		opts:        opts,
		logger:      logger,
	}
}

// Run executes the full pipeline for one query. It returns
// ErrNoViableSequence when every path is exhausted; any other error is an
// infrastructure failure (unreachable store or index).
func (o *Orchestrator) Run(ctx context.Context, query string) (*Recommendation, error) {
	metrics.Inc(metrics.RecommendTotal)

	runID := uuid.New().String()
	log := o.logger.With("run_id", runID)
	o.transition(log, StateStart)

	rec, err := o.interpreter.Interpret(ctx, query)
	if err != nil {
		return nil, err
	}
	checkRun := o.checker.NewRun(rec)

	o.transition(log, StateRetrieveCourses)
	candidates, err := o.retriever.Retrieve(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("retrieving candidates: %w", err)
	}

	o.transition(log, StateValidateCourses)
	kept, err := o.validator.Validate(ctx, candidates, query)
	if err != nil {
		return nil, fmt.Errorf("validating candidates: %w", err)
	}

	for _, name := range kept {
		result, ok, err := o.tryCourse(ctx, log, checkRun, name)
		if err != nil {
			return nil, err
		}
		if ok {
			o.transition(log, StateDone)
			result.RunID = runID
			result.Query = query
			return result, nil
		}
	}

	// No existing course suffices; compose a new sequence.
	o.transition(log, StateComposeFallback)
	metrics.Inc(metrics.ComposeFallbackTotal)

	for attempt := 1; attempt <= o.opts.MaxComposeRetries; attempt++ {
		result, ok, err := o.tryComposed(ctx, log, checkRun, rec, attempt)
		if err != nil {
			return nil, err
		}
		if ok {
			o.transition(log, StateDone)
			result.RunID = runID
			result.Query = query
			return result, nil
		}
	}

	log.Info("run exhausted all paths", "state", StateDone)
	return nil, ErrNoViableSequence
}

// tryCourse checks one validated course and repairs it if needed. ok=false
// means the course was rejected and the next candidate should be tried.
func (o *Orchestrator) tryCourse(ctx context.Context, log *slog.Logger, checkRun *suitability.Run, name string) (*Recommendation, bool, error) {
	_, slots, err := o.graph.GetCourse(ctx, name)
	if err != nil {
		if errors.Is(err, graph.ErrNotFound) {
			log.Warn("validated course vanished from graph, skipping", "course", name)
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("fetching course %q: %w", name, err)
	}
	if len(slots) == 0 {
		log.Warn("validated course has no poses, skipping", "course", name)
		return nil, false, nil
	}

	o.transition(log, StateValidatePoses)
	verdicts, err := o.checkSlots(ctx, checkRun, slots)
	if err != nil {
		return nil, false, err
	}

	o.transition(log, StateRepair)
	repaired, replacements, removed, err := o.composer.Repair(ctx, slots, verdicts, o.usableProbe(checkRun))
	if err != nil {
		return nil, false, err
	}
	if removed > o.opts.MaxRemovals {
		log.Info("course rejected: too many poses removed", "course", name, "removed", removed)
		return nil, false, nil
	}
	if len(repaired) == 0 {
		log.Info("course rejected: repair left no poses", "course", name)
		return nil, false, nil
	}

	log.Info("existing course accepted", "course", name, "replaced", len(replacements), "removed", removed)
	return &Recommendation{
		CourseName:   name,
		Slots:        repaired,
		Replacements: replacements,
		TotalSeconds: models.SequenceSeconds(repaired),
	}, true, nil
}

// tryComposed runs one composition attempt through the same suitability and
// repair path as an existing course.
func (o *Orchestrator) tryComposed(ctx context.Context, log *slog.Logger, checkRun *suitability.Run, rec models.IntentRecord, attempt int) (*Recommendation, bool, error) {
	log.Info("composing fallback sequence", "attempt", attempt)

	slots, err := o.composer.Compose(ctx, rec)
	if err != nil {
		return nil, false, err
	}
	if len(slots) == 0 {
		log.Warn("composition produced no sequence", "attempt", attempt)
		return nil, false, nil
	}

	o.transition(log, StateValidatePoses)
	verdicts, err := o.checkSlots(ctx, checkRun, slots)
	if err != nil {
		return nil, false, err
	}

	o.transition(log, StateRepair)
	repaired, replacements, removed, err := o.composer.Repair(ctx, slots, verdicts, o.usableProbe(checkRun))
	if err != nil {
		return nil, false, err
	}
	if removed > o.opts.MaxRemovals || len(repaired) == 0 {
		log.Info("composed sequence rejected", "attempt", attempt, "removed", removed, "remaining", len(repaired))
		return nil, false, nil
	}

	// A drop or substitution near the tail can leave the sequence without its
	// winding-down closer. Trim until the final pose again follows a closing
	// relation from its predecessor.
	if removed > 0 || len(replacements) > 0 {
		repaired, err = o.recloseComposed(ctx, repaired)
		if err != nil {
			return nil, false, err
		}
		if len(repaired) == 0 {
			log.Info("composed sequence rejected: repair broke the closing pose", "attempt", attempt)
			return nil, false, nil
		}
		replacements = filterReplacements(replacements, repaired)
	}

	return &Recommendation{
		Composed:     true,
		Slots:        repaired,
		Replacements: replacements,
		TotalSeconds: models.SequenceSeconds(repaired),
	}, true, nil
}

// checkSlots resolves each slot's pose from the graph and classifies it.
// A pose missing from the graph is marked unsuitable so repair drops it.
func (o *Orchestrator) checkSlots(ctx context.Context, checkRun *suitability.Run, slots []models.PoseSlot) ([]models.Verdict, error) {
	verdicts := make([]models.Verdict, len(slots))
	missing := make([]bool, len(slots))
	present := make([]models.Pose, 0, len(slots))

	for i, slot := range slots {
		pose, err := o.graph.GetPose(ctx, slot.PoseName)
		if err != nil {
			if errors.Is(err, graph.ErrNotFound) {
				missing[i] = true
				continue
			}
			return nil, fmt.Errorf("fetching pose %q: %w", slot.PoseName, err)
		}
		present = append(present, pose)
	}

	checked, err := checkRun.Check(ctx, present)
	if err != nil {
		return nil, err
	}

	j := 0
	for i := range slots {
		if missing[i] {
			verdicts[i] = models.VerdictUnsuitable
			continue
		}
		verdicts[i] = checked[j]
		j++
	}

	return verdicts, nil
}

// recloseComposed trims a repaired composed sequence so it still ends on a
// pose its predecessor balances out or unwinds into, renumbering the slot
// orders. Returns nil when no closing tail remains.
func (o *Orchestrator) recloseComposed(ctx context.Context, slots []models.PoseSlot) ([]models.PoseSlot, error) {
	for len(slots) >= 2 {
		prevName := slots[len(slots)-2].PoseName
		prev, err := o.graph.GetPose(ctx, prevName)
		if err != nil {
			if errors.Is(err, graph.ErrNotFound) {
				slots = slots[:len(slots)-1]
				continue
			}
			return nil, fmt.Errorf("fetching pose %q: %w", prevName, err)
		}
		if closesInto(prev, slots[len(slots)-1].PoseName) {
			out := make([]models.PoseSlot, len(slots))
			copy(out, slots)
			for i := range out {
				out[i].Order = i + 1
			}
			return out, nil
		}
		slots = slots[:len(slots)-1]
	}
	return nil, nil
}

// closesInto reports whether prev offers a sequence-closing relation to name.
func closesInto(prev models.Pose, name string) bool {
	for _, kind := range models.ValidRelationKinds {
		if !kind.Closes() {
			continue
		}
		for _, target := range prev.Related(kind) {
			if target == name {
				return true
			}
		}
	}
	return false
}

// filterReplacements drops substitution records whose pose was trimmed away.
func filterReplacements(replacements []composer.Replacement, slots []models.PoseSlot) []composer.Replacement {
	kept := make(map[string]bool, len(slots))
	for _, s := range slots {
		kept[s.PoseName] = true
	}
	var out []composer.Replacement
	for _, r := range replacements {
		if kept[r.To] {
			out = append(out, r)
		}
	}
	return out
}

// usableProbe adapts the suitability run into the repair callback: any
// verdict other than unsuitable makes a substitute acceptable.
func (o *Orchestrator) usableProbe(checkRun *suitability.Run) composer.UsableFunc {
	return func(ctx context.Context, pose models.Pose) (bool, error) {
		v, err := checkRun.CheckPose(ctx, pose)
		if err != nil {
			return false, err
		}
		return v != models.VerdictUnsuitable, nil
	}
}

// CheckPose answers the thin service's question for a single pose: keep it,
// replace it with a same-category substitute, or drop it. An empty final
// name with a nil error means the pose is unsuitable and nothing in its
// category can stand in.
func (o *Orchestrator) CheckPose(ctx context.Context, poseName, query string) (string, bool, error) {
	metrics.Inc(metrics.CheckPoseTotal)

	rec, err := o.interpreter.Interpret(ctx, query)
	if err != nil {
		return "", false, err
	}

	// Nothing to avoid means nothing to check.
	if !rec.HasRestrictions() {
		return poseName, false, nil
	}

	pose, err := o.graph.GetPose(ctx, poseName)
	if err != nil {
		return "", false, fmt.Errorf("fetching pose %q: %w", poseName, err)
	}

	checkRun := o.checker.NewRun(rec)
	verdict, err := checkRun.CheckPose(ctx, pose)
	if err != nil {
		return "", false, err
	}
	if verdict != models.VerdictUnsuitable {
		return poseName, false, nil
	}

	substitutes, err := o.graph.PosesInCategory(ctx, pose.Category, pose.Name)
	if err != nil {
		return "", false, fmt.Errorf("listing substitutes for %q: %w", poseName, err)
	}
	for _, cand := range substitutes {
		v, err := checkRun.CheckPose(ctx, cand)
		if err != nil {
			return "", false, err
		}
		if v != models.VerdictUnsuitable {
			return cand.Name, true, nil
		}
	}

	o.logger.Info("pose unsuitable with no replacement", "pose", poseName)
	return "", false, nil
}

func (o *Orchestrator) transition(log *slog.Logger, s State) {
	log.Debug("state transition", "state", s)
}
