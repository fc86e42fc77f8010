// Package validate confirms candidate courses against the user's request
// with a three-way LLM judgment and an asymmetric keep policy.
package validate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/asanagraph/asanagraph/internal/graph"
	"github.com/asanagraph/asanagraph/internal/judge"
	"github.com/asanagraph/asanagraph/internal/metrics"
	"github.com/asanagraph/asanagraph/internal/models"
)

// Decision is the judge's answer for one candidate course.
type Decision string

const (
	DecisionYes Decision = "yes"
	DecisionNo  Decision = "no"
	DecisionNA  Decision = "n/a"
)

// matchPromptTemplate asks whether a course description satisfies the
// request. The answer set is closed; anything else is a format error.
const matchPromptTemplate = `Please answer if the yoga course matches the user's request for a training.

<course_description>%s</course_description>
<user_request>%s</user_request>

Answer only one of the three words: yes, no, or n/a`

// Validator filters a candidate set down to the courses worth checking
// pose by pose.
type Validator struct {
	judge       judge.Judge
	graph       graph.Store
	maxInFlight int
	logger      *slog.Logger
}

// NewValidator creates a Validator. maxInFlight bounds concurrent judge calls.
func NewValidator(j judge.Judge, g graph.Store, maxInFlight int, logger *slog.Logger) *Validator {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	return &Validator{
		judge:       j,
		graph:       g,
		maxInFlight: maxInFlight,
		logger:      logger,
	}
}

// Validate judges every candidate and applies the keep policy: when at least
// one candidate is judged yes, exactly the yes set is kept; otherwise the
// n/a set is kept (unknown is not rejection); no candidates or nothing kept
// means no existing course suffices and the caller falls back to
// composition. The returned names are sorted.
//
// Off-format answers and exhausted-retry failures are treated as n/a, the
// conservative reading for an imperfect judge. Candidates missing from the
// graph are dropped with a warning.
func (v *Validator) Validate(ctx context.Context, candidates models.CandidateSet, rawQuery string) ([]string, error) {
	names := candidates.Names()
	if len(names) == 0 {
		return nil, nil
	}

	decisions := make(map[string]Decision, len(names))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.maxInFlight)
	for _, name := range names {
		g.Go(func() error {
			d, err := v.judgeCandidate(gctx, name, rawQuery)
			if err != nil {
				return err
			}
			mu.Lock()
			decisions[name] = d
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var yes, na []string
	for name, d := range decisions {
		switch d {
		case DecisionYes:
			yes = append(yes, name)
		case DecisionNA:
			na = append(na, name)
		}
	}

	kept := yes
	if len(kept) == 0 {
		kept = na
	}
	sort.Strings(kept)

	v.logger.Info("validated candidate courses",
		"candidates", len(names), "yes", len(yes), "na", len(na), "kept", len(kept))
	return kept, nil
}

// judgeCandidate returns the decision for one course. Only context
// cancellation propagates as an error; everything else degrades.
func (v *Validator) judgeCandidate(ctx context.Context, name, rawQuery string) (Decision, error) {
	course, _, err := v.graph.GetCourse(ctx, name)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if errors.Is(err, graph.ErrNotFound) {
			v.logger.Warn("candidate course not in graph, dropping", "course", name)
			return DecisionNo, nil
		}
		return "", fmt.Errorf("fetching course %q: %w", name, err)
	}

	prompt := fmt.Sprintf(matchPromptTemplate, judge.Escape(course.Description), judge.Escape(rawQuery))
	answer, err := v.judge.Classify(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		v.logger.Warn("course match judgment failed, treating as n/a", "course", name, "error", err)
		return DecisionNA, nil
	}

	token, err := judge.ParseToken(answer, "yes", "no", "n/a")
	if err != nil {
		metrics.Inc(metrics.JudgeFormatErrors)
		v.logger.Warn("course match answer off-format, treating as n/a", "course", name, "answer", answer)
		return DecisionNA, nil
	}

	return Decision(token), nil
}
