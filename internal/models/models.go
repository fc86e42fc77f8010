// Package models defines the read-only domain records shared across the
// recommendation pipeline: intent, poses, courses, categories, and verdicts.
package models

import (
	"fmt"
	"sort"
)

// RelationKind is a directed pose-to-pose relation in the knowledge graph.
type RelationKind string

const (
	// RelationBuildUp links a pose to its preparatory poses.
	RelationBuildUp RelationKind = "BUILD_UP"
	// RelationMoveForward links a pose to a more demanding progression.
	RelationMoveForward RelationKind = "MOVE_FORWARD"
	// RelationBalanceOut links a pose to its counterpose.
	RelationBalanceOut RelationKind = "BALANCE_OUT"
	// RelationUnwind links a pose to a relaxation pose.
	RelationUnwind RelationKind = "UNWIND"
)

// ValidRelationKinds is the set of all recognized relation kinds.
var ValidRelationKinds = []RelationKind{
	RelationBuildUp,
	RelationMoveForward,
	RelationBalanceOut,
	RelationUnwind,
}

// IsValid returns true if the relation kind is recognized.
func (rk RelationKind) IsValid() bool {
	for _, v := range ValidRelationKinds {
		if rk == v {
			return true
		}
	}
	return false
}

// Closes reports whether the relation kind may legally end a sequence block.
func (rk RelationKind) Closes() bool {
	return rk == RelationBalanceOut || rk == RelationUnwind
}

// IntentRecord is the structured interpretation of a free-text practice
// request. Fields default to empty/zero when the request (or the judge's
// extraction) gives no information. Immutable once produced.
type IntentRecord struct {
	Objectives         []string `json:"objective"`
	BodyParts          []string `json:"body_parts"`
	Contraindications  []string `json:"contraindications"`
	PosesToAvoid       []string `json:"poses_to_avoid"`
	MinDurationSeconds int      `json:"min_duration_seconds"`
	MaxDurationSeconds int      `json:"max_duration_seconds"`
}

// HasDuration returns true when the request carried any duration bound.
func (r IntentRecord) HasDuration() bool {
	return r.MinDurationSeconds > 0 || r.MaxDurationSeconds > 0
}

// HasRestrictions returns true when the request named anything to avoid.
func (r IntentRecord) HasRestrictions() bool {
	return len(r.PosesToAvoid) > 0 || len(r.Contraindications) > 0
}

// Pose is a single yoga pose with its instructional text fields and its
// outgoing graph relations, keyed by unique name.
type Pose struct {
	Name         string                    `json:"name"`
	Introduction string                    `json:"introduction"`
	Steps        string                    `json:"steps"`
	Modification string                    `json:"modification,omitempty"`
	Caution      string                    `json:"caution,omitempty"`
	Effects      string                    `json:"effects,omitempty"`
	PracticeNote string                    `json:"practice_note,omitempty"`
	HowToComeOut string                    `json:"how_to_come_out,omitempty"`
	Attributes   []string                  `json:"attributes,omitempty"`
	Challenge    int                       `json:"challenge"`
	Category     string                    `json:"category"`
	Relations    map[RelationKind][]string `json:"relations,omitempty"`
}

// Related returns the ordered relation targets of the given kind.
func (p Pose) Related(kind RelationKind) []string {
	if p.Relations == nil {
		return nil
	}
	return p.Relations[kind]
}

// PoseSlot is one ordered step of a course sequence.
type PoseSlot struct {
	PoseName        string `json:"pose_name"`
	Order           int    `json:"order"`
	DurationSeconds int    `json:"duration_seconds"`
	RepeatTimes     int    `json:"repeat_times"`
}

// TotalSeconds is the slot's contribution to the sequence duration.
// A repeat count below 1 counts as a single execution.
func (s PoseSlot) TotalSeconds() int {
	repeats := s.RepeatTimes
	if repeats < 1 {
		repeats = 1
	}
	return s.DurationSeconds * repeats
}

// SequenceSeconds sums the contribution of every slot.
func SequenceSeconds(slots []PoseSlot) int {
	total := 0
	for _, s := range slots {
		total += s.TotalSeconds()
	}
	return total
}

// ValidateSlots checks that slot orders are contiguous from 1 with no gaps
// or duplicates.
func ValidateSlots(slots []PoseSlot) error {
	seen := make(map[int]bool, len(slots))
	for _, s := range slots {
		if s.Order < 1 || s.Order > len(slots) {
			return fmt.Errorf("slot order %d out of range 1..%d", s.Order, len(slots))
		}
		if seen[s.Order] {
			return fmt.Errorf("duplicate slot order %d", s.Order)
		}
		seen[s.Order] = true
	}
	return nil
}

// Course is a pre-built pose sequence, keyed by unique name.
type Course struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	Challenge     int    `json:"challenge"`
	TotalDuration string `json:"total_duration"`
}

// Category is a family of broadly similar, mutually substitutable poses.
type Category struct {
	Name         string `json:"name"`
	Introduction string `json:"introduction"`
}

// Verdict is the suitability classification of a single pose for an intent.
type Verdict string

const (
	VerdictSuitable   Verdict = "suitable"
	VerdictUnsuitable Verdict = "unsuitable"
	VerdictUnknown    Verdict = "unknown"
)

// MergeVerdicts combines two independent check outcomes under the precedence
// unsuitable > suitable > unknown.
func MergeVerdicts(a, b Verdict) Verdict {
	if a == VerdictUnsuitable || b == VerdictUnsuitable {
		return VerdictUnsuitable
	}
	if a == VerdictSuitable || b == VerdictSuitable {
		return VerdictSuitable
	}
	return VerdictUnknown
}

// CandidateSet accumulates course names across retrieval signals.
// Membership is unique and order-irrelevant.
type CandidateSet map[string]struct{}

// Add inserts a course name, ignoring duplicates and empty names.
func (cs CandidateSet) Add(name string) {
	if name == "" {
		return
	}
	cs[name] = struct{}{}
}

// Names returns the member names sorted for deterministic iteration.
func (cs CandidateSet) Names() []string {
	names := make([]string, 0, len(cs))
	for n := range cs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CourseHit is a scored course match from the vector index.
type CourseHit struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Challenge   string  `json:"challenge"`
	Duration    string  `json:"duration"`
	Score       float64 `json:"score"`
}
