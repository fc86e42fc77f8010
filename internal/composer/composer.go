// Package composer repairs sequences with unsuitable poses and composes new
// sequences from category and relation traversal when no existing course
// suffices.
package composer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/asanagraph/asanagraph/internal/embedder"
	"github.com/asanagraph/asanagraph/internal/graph"
	"github.com/asanagraph/asanagraph/internal/metrics"
	"github.com/asanagraph/asanagraph/internal/models"
	"github.com/asanagraph/asanagraph/internal/store"
)

// Replacement records one slot substitution made during repair.
type Replacement struct {
	Order int    `json:"order"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// UsableFunc reports whether a candidate pose may be placed in a sequence.
// The orchestrator supplies a suitability-backed probe; tests supply fixed
// answers.
type UsableFunc func(ctx context.Context, pose models.Pose) (bool, error)

// Options holds composition knobs.
type Options struct {
	CategoryTopK       int
	SlotSeconds        int
	DefaultMinSeconds  int
	DefaultMaxSeconds  int
	ChallengeTolerance int
}

// Composer builds and repairs pose sequences.
type Composer struct {
	graph    graph.Store
	index    store.Index
	embedder embedder.Embedder
	opts     Options
	logger   *slog.Logger
}

// NewComposer creates a Composer.
func NewComposer(g graph.Store, idx store.Index, emb embedder.Embedder, opts Options, logger *slog.Logger) *Composer {
	if opts.CategoryTopK < 1 {
		opts.CategoryTopK = 2
	}
	if opts.SlotSeconds < 1 {
		opts.SlotSeconds = 60
	}
	if opts.ChallengeTolerance < 1 {
		opts.ChallengeTolerance = 2
	}
	return &Composer{
		graph:    g,
		index:    idx,
		embedder: emb,
		opts:     opts,
		logger:   logger,
	}
}

// Repair removes each pose marked unsuitable, substituting a same-category
// pose when one passes the usable probe. Substitution preserves the slot's
// order, duration, and repeat count; a slot with no substitute is dropped
// and the remaining orders are renumbered contiguously. Returns the repaired
// slots, the substitutions made, and the count of dropped slots.
func (c *Composer) Repair(ctx context.Context, slots []models.PoseSlot, verdicts []models.Verdict, usable UsableFunc) ([]models.PoseSlot, []Replacement, int, error) {
	if len(slots) != len(verdicts) {
		return nil, nil, 0, fmt.Errorf("repair: %d slots but %d verdicts", len(slots), len(verdicts))
	}

	repaired := make([]models.PoseSlot, 0, len(slots))
	var replacements []Replacement
	removed := 0

	for i, slot := range slots {
		if verdicts[i] != models.VerdictUnsuitable {
			repaired = append(repaired, slot)
			continue
		}

		substitute, err := c.findSubstitute(ctx, slot.PoseName, usable)
		if err != nil {
			return nil, nil, 0, err
		}
		if substitute == "" {
			c.logger.Info("no substitute for unsuitable pose, dropping slot", "pose", slot.PoseName, "order", slot.Order)
			removed++
			continue
		}

		replacements = append(replacements, Replacement{Order: slot.Order, From: slot.PoseName, To: substitute})
		metrics.Inc(metrics.PosesRepairedTotal)
		slot.PoseName = substitute
		repaired = append(repaired, slot)
	}

	if removed > 0 {
		for i := range repaired {
			repaired[i].Order = i + 1
		}
	}

	return repaired, replacements, removed, nil
}

// findSubstitute scans the pose's category for a usable replacement.
// Returns "" when none exists.
func (c *Composer) findSubstitute(ctx context.Context, poseName string, usable UsableFunc) (string, error) {
	pose, err := c.graph.GetPose(ctx, poseName)
	if err != nil {
		if errors.Is(err, graph.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("repair: %w", err)
	}

	candidates, err := c.graph.PosesInCategory(ctx, pose.Category, pose.Name)
	if err != nil {
		return "", fmt.Errorf("repair: %w", err)
	}

	for _, cand := range candidates {
		ok, err := usable(ctx, cand)
		if err != nil {
			return "", err
		}
		if ok {
			return cand.Name, nil
		}
	}

	return "", nil
}

// Compose builds a sequence from scratch. Categories matching the objective
// are selected by vector search, then each contributes a block walked from
// the graph: a BUILD_UP preparatory pose, a seed, MOVE_FORWARD progressions
// while challenge tolerance and the duration budget allow, and a mandatory
// BALANCE_OUT or UNWIND closer. Blocks accumulate greedily until the total
// duration reaches the requested bounds, preferring to undershoot rather
// than exceed the maximum. An empty result means composition found nothing
// to build from.
func (c *Composer) Compose(ctx context.Context, rec models.IntentRecord) ([]models.PoseSlot, error) {
	if len(rec.Objectives) == 0 {
		c.logger.Warn("compose: no objectives in intent, nothing to select categories by")
		return nil, nil
	}

	minSec, maxSec := c.durationBounds(rec)

	vec, err := c.embedder.Embed(ctx, strings.Join(rec.Objectives, ", "))
	if err != nil {
		return nil, fmt.Errorf("compose: embedding objectives: %w", err)
	}
	categories, err := c.index.SearchCategories(ctx, vec, uint64(c.opts.CategoryTopK))
	if err != nil {
		return nil, fmt.Errorf("compose: searching categories: %w", err)
	}
	if len(categories) == 0 {
		c.logger.Warn("compose: no categories matched objectives", "objectives", rec.Objectives)
		return nil, nil
	}

	slotSec := c.opts.SlotSeconds
	seen := make(map[string]bool)
	var names []string
	total := 0

	for _, category := range categories {
		if total >= minSec {
			break
		}
		// A block needs at least a seed and a closer.
		if total+2*slotSec > maxSec {
			break
		}
		block, err := c.buildBlock(ctx, category, seen, maxSec-total)
		if err != nil {
			return nil, err
		}
		if len(block) == 0 {
			continue
		}
		names = append(names, block...)
		total += len(block) * slotSec
	}

	if len(names) == 0 {
		return nil, nil
	}

	slots := make([]models.PoseSlot, len(names))
	for i, name := range names {
		slots[i] = models.PoseSlot{
			PoseName:        name,
			Order:           i + 1,
			DurationSeconds: slotSec,
			RepeatTimes:     1,
		}
	}

	c.logger.Info("composed sequence", "poses", len(slots), "total_seconds", total,
		"min_seconds", minSec, "max_seconds", maxSec, "categories", categories)
	return slots, nil
}

// durationBounds resolves the soft duration window, falling back to config
// defaults when the request carries no bounds.
func (c *Composer) durationBounds(rec models.IntentRecord) (int, int) {
	minSec, maxSec := rec.MinDurationSeconds, rec.MaxDurationSeconds
	if !rec.HasDuration() {
		return c.opts.DefaultMinSeconds, c.opts.DefaultMaxSeconds
	}
	if maxSec == 0 {
		maxSec = c.opts.DefaultMaxSeconds
	}
	if maxSec < minSec {
		maxSec = minSec
	}
	return minSec, maxSec
}

// buildBlock walks one category into a closer-terminated run of pose names.
// Poses already placed in the sequence are skipped; every pose appended is
// marked seen. Returns nil when the category yields no valid block.
func (c *Composer) buildBlock(ctx context.Context, category string, seen map[string]bool, budgetSec int) ([]string, error) {
	members, err := c.graph.PosesInCategory(ctx, category, "")
	if err != nil {
		return nil, fmt.Errorf("compose: listing category %q: %w", category, err)
	}

	seed, ok := c.pickSeed(members, seen)
	if !ok {
		return nil, nil
	}

	seedPose, err := c.graph.GetPose(ctx, seed)
	if err != nil {
		if errors.Is(err, graph.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("compose: %w", err)
	}

	slotSec := c.opts.SlotSeconds
	var block []string

	// Preparatory pose first, when the graph names one.
	for _, prep := range seedPose.Related(models.RelationBuildUp) {
		if seen[prep] {
			continue
		}
		if _, err := c.graph.GetPose(ctx, prep); err != nil {
			continue
		}
		block = append(block, prep)
		break
	}

	block = append(block, seedPose.Name)

	// Progress while tolerance and the budget (with one closer slot held in
	// reserve) allow.
	current := seedPose
	for {
		if (len(block)+2)*slotSec > budgetSec {
			break
		}
		next, nextPose, err := c.pickProgression(ctx, current, seen, block)
		if err != nil {
			return nil, err
		}
		if next == "" {
			break
		}
		block = append(block, next)
		current = nextPose
	}

	// Close the block, trimming from the tail until some pose offers a
	// BALANCE_OUT or UNWIND exit. A block that cannot close is discarded.
	for len(block) > 0 {
		last := block[len(block)-1]
		lastPose, err := c.graph.GetPose(ctx, last)
		if err != nil {
			if errors.Is(err, graph.ErrNotFound) {
				block = block[:len(block)-1]
				continue
			}
			return nil, fmt.Errorf("compose: %w", err)
		}

		closer := c.pickCloser(ctx, lastPose, seen)
		if closer == "" {
			block = block[:len(block)-1]
			continue
		}

		block = append(block, closer)
		for _, name := range block {
			seen[name] = true
		}
		return block, nil
	}

	return nil, nil
}

// pickSeed selects the first unseen member within challenge tolerance,
// falling back to any unseen member. Members arrive sorted by name, keeping
// the walk replayable.
func (c *Composer) pickSeed(members []models.Pose, seen map[string]bool) (string, bool) {
	for _, m := range members {
		if !seen[m.Name] && m.Challenge <= c.opts.ChallengeTolerance {
			return m.Name, true
		}
	}
	for _, m := range members {
		if !seen[m.Name] {
			return m.Name, true
		}
	}
	return "", false
}

// pickProgression selects the first MOVE_FORWARD target within tolerance
// that is neither seen nor already in the block.
func (c *Composer) pickProgression(ctx context.Context, current models.Pose, seen map[string]bool, block []string) (string, models.Pose, error) {
	inBlock := make(map[string]bool, len(block))
	for _, name := range block {
		inBlock[name] = true
	}

	for _, target := range current.Related(models.RelationMoveForward) {
		if seen[target] || inBlock[target] {
			continue
		}
		pose, err := c.graph.GetPose(ctx, target)
		if err != nil {
			if errors.Is(err, graph.ErrNotFound) {
				continue
			}
			return "", models.Pose{}, fmt.Errorf("compose: %w", err)
		}
		if pose.Challenge > c.opts.ChallengeTolerance {
			continue
		}
		return target, pose, nil
	}

	return "", models.Pose{}, nil
}

// pickCloser selects a BALANCE_OUT or UNWIND target, preferring one not yet
// in the sequence but accepting a repeat over leaving the block open.
func (c *Composer) pickCloser(ctx context.Context, last models.Pose, seen map[string]bool) string {
	candidates := append(append([]string{}, last.Related(models.RelationBalanceOut)...),
		last.Related(models.RelationUnwind)...)

	fallback := ""
	for _, target := range candidates {
		if _, err := c.graph.GetPose(ctx, target); err != nil {
			continue
		}
		if !seen[target] {
			return target
		}
		if fallback == "" {
			fallback = target
		}
	}
	return fallback
}
