// Package metrics provides application-level counters using stdlib expvar.
// Counters are automatically exported on the /debug/vars HTTP endpoint
// when net/http/pprof is imported in the main binary.
package metrics

import "expvar"

// Operation counters.
var (
	RecommendTotal       = expvar.NewInt("asanagraph_recommend_total")
	ComposeFallbackTotal = expvar.NewInt("asanagraph_compose_fallback_total")
	CheckPoseTotal       = expvar.NewInt("asanagraph_check_pose_total")
	PosesRepairedTotal   = expvar.NewInt("asanagraph_poses_repaired_total")
	JudgeCallTotal       = expvar.NewInt("asanagraph_judge_call_total")
	JudgeRetryTotal      = expvar.NewInt("asanagraph_judge_retry_total")
	JudgeFormatErrors    = expvar.NewInt("asanagraph_judge_format_errors_total")
)

// Inc increments the given counter by 1.
func Inc(counter *expvar.Int) { counter.Add(1) }
