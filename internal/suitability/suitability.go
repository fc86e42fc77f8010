// Package suitability classifies each pose of a sequence as suitable,
// unsuitable, or unknown for a given intent using three independent LLM
// judgments with an explicit precedence rule.
package suitability

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/asanagraph/asanagraph/internal/judge"
	"github.com/asanagraph/asanagraph/internal/metrics"
	"github.com/asanagraph/asanagraph/internal/models"
)

// avoidPromptTemplate checks the introduction against the avoid list. A yes
// is terminal for the pose.
const avoidPromptTemplate = `Here is a yoga pose named '%s' and its introduction:

<introduction>%s</introduction>

Check if this pose is the same as, or similar to, any pose in this list of poses to avoid: %s.

Answer only yes or no`

// cautionPromptTemplate checks the caution field against the user's health
// conditions. Skipped entirely when the caution field is empty.
const cautionPromptTemplate = `Here is a yoga pose named '%s' and its practice caution:

<caution>%s</caution>

Check if practicing this pose conflicts with any of these health conditions: %s.

Answer only yes or no`

// targetPromptTemplate checks introduction and steps against the body parts
// the user wants to train.
const targetPromptTemplate = `Here is a yoga pose named '%s', its introduction and its practice steps:

<introduction>%s</introduction>
<steps>%s</steps>

Check if this pose trains or engages any of these body parts: %s.

Answer only yes or no`

// Checker evaluates pose suitability. It is stateless; create a Run per
// orchestration to get judgment caching scoped to that run.
type Checker struct {
	judge       judge.Judge
	maxInFlight int
	logger      *slog.Logger
}

// NewChecker creates a Checker. maxInFlight bounds concurrent judge calls
// across poses.
func NewChecker(j judge.Judge, maxInFlight int, logger *slog.Logger) *Checker {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	return &Checker{
		judge:       j,
		maxInFlight: maxInFlight,
		logger:      logger,
	}
}

// Run carries one orchestration's intent and its judgment cache. Repeated
// checks of the same (pose, field, intent subset) reuse the cached answer.
type Run struct {
	c      *Checker
	intent models.IntentRecord

	mu    sync.Mutex
	cache map[string]bool
}

// NewRun starts a checking run for the given intent.
func (c *Checker) NewRun(rec models.IntentRecord) *Run {
	return &Run{
		c:      c,
		intent: rec,
		cache:  make(map[string]bool),
	}
}

// Check returns one verdict per pose, preserving input order. Poses are
// checked concurrently; within a pose the avoid-check runs first and
// short-circuits, then the contraindication and target checks run
// concurrently with each other. Judgment failures degrade to "no evidence"
// rather than failing the sequence.
func (r *Run) Check(ctx context.Context, poses []models.Pose) ([]models.Verdict, error) {
	verdicts := make([]models.Verdict, len(poses))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.c.maxInFlight)
	for i, pose := range poses {
		g.Go(func() error {
			v, err := r.CheckPose(gctx, pose)
			if err != nil {
				return err
			}
			verdicts[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return verdicts, nil
}

// CheckPose classifies a single pose. Precedence: unsuitable > suitable >
// unknown; absence of evidence yields unknown.
func (r *Run) CheckPose(ctx context.Context, pose models.Pose) (models.Verdict, error) {
	// Avoid-check is a hard prerequisite for the other two.
	if len(r.intent.PosesToAvoid) > 0 {
		avoided, err := r.classify(ctx, "avoid", pose.Name, fmt.Sprintf(avoidPromptTemplate,
			judge.Escape(pose.Name), judge.Escape(pose.Introduction), termList(r.intent.PosesToAvoid)))
		if err != nil {
			return "", err
		}
		if avoided {
			return models.VerdictUnsuitable, nil
		}
	}

	var (
		contraindicated bool
		targeted        bool
	)

	g, gctx := errgroup.WithContext(ctx)
	if pose.Caution != "" && len(r.intent.Contraindications) > 0 {
		g.Go(func() error {
			hit, err := r.classify(gctx, "caution", pose.Name, fmt.Sprintf(cautionPromptTemplate,
				judge.Escape(pose.Name), judge.Escape(pose.Caution), termList(r.intent.Contraindications)))
			if err != nil {
				return err
			}
			contraindicated = hit
			return nil
		})
	}
	if len(r.intent.BodyParts) > 0 {
		g.Go(func() error {
			hit, err := r.classify(gctx, "target", pose.Name, fmt.Sprintf(targetPromptTemplate,
				judge.Escape(pose.Name), judge.Escape(pose.Introduction), judge.Escape(pose.Steps), termList(r.intent.BodyParts)))
			if err != nil {
				return err
			}
			targeted = hit
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	if contraindicated {
		return models.VerdictUnsuitable, nil
	}
	if targeted {
		return models.VerdictSuitable, nil
	}
	return models.VerdictUnknown, nil
}

// classify runs one yes/no judgment with caching. The cache key includes the
// check kind, the pose, and the relevant intent subset so different fields
// or restrictions never collide. Failures and off-format answers degrade to
// false (no evidence): the conservative reading for each check.
func (r *Run) classify(ctx context.Context, kind, poseName, prompt string) (bool, error) {
	key := kind + "\x00" + poseName + "\x00" + r.subsetFor(kind)

	r.mu.Lock()
	if hit, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return hit, nil
	}
	r.mu.Unlock()

	answer, err := r.c.judge.Classify(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		r.c.logger.Warn("pose check failed, treating as no evidence", "check", kind, "pose", poseName, "error", err)
		return false, nil
	}

	token, err := judge.ParseToken(answer, "yes", "no")
	if err != nil {
		metrics.Inc(metrics.JudgeFormatErrors)
		r.c.logger.Warn("pose check answer off-format, treating as no evidence",
			"check", kind, "pose", poseName, "answer", answer)
		return false, nil
	}

	hit := token == "yes"
	r.mu.Lock()
	r.cache[key] = hit
	r.mu.Unlock()
	return hit, nil
}

func (r *Run) subsetFor(kind string) string {
	switch kind {
	case "avoid":
		return strings.Join(r.intent.PosesToAvoid, ",")
	case "caution":
		return strings.Join(r.intent.Contraindications, ",")
	default:
		return strings.Join(r.intent.BodyParts, ",")
	}
}

// termList formats intent terms for prompt embedding.
func termList(terms []string) string {
	escaped := make([]string, len(terms))
	for i, t := range terms {
		escaped[i] = "'" + judge.Escape(t) + "'"
	}
	return strings.Join(escaped, ", ")
}
