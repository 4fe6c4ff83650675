// Package skill implements the Skill Estimator: ELO-style rating and
// uncertainty decay, the probability/target-difficulty pair that links
// rating to item difficulty, and mastery/calibration derived from recent
// accuracy. Every function here is pure — no persistence, no I/O — the
// caller (internal/store, internal/policy) supplies and stores state.
//
// Grounded on internal/goal/priority.go's Calculator: a config-holding
// struct with small, independently testable scoring methods, each a
// direct transcription of one formula.
package skill

import (
	"math"

	"tutorcore/internal/config"
	"tutorcore/internal/store"
)

// Estimator computes and updates SkillState under a fixed TutorConfig.
type Estimator struct {
	cfg config.TutorConfig
}

func NewEstimator(cfg config.TutorConfig) *Estimator {
	return &Estimator{cfg: cfg}
}

// probabilityEpsilon keeps p away from {0,1} before any log is taken.
const probabilityEpsilon = 1e-6

// Probability returns the learner's chance of answering an item of
// difficulty D correctly given current skill S, on the ELO logistic curve.
func (e *Estimator) Probability(skillRating, difficulty float64) float64 {
	p := 1.0 / (1.0 + math.Pow(10, (difficulty-skillRating)/e.cfg.EloScaleFactor))
	if p < probabilityEpsilon {
		p = probabilityEpsilon
	}
	if p > 1-probabilityEpsilon {
		p = 1 - probabilityEpsilon
	}
	return p
}

// TargetDifficulty returns the difficulty at which the learner's
// probability of success is targetP (default 0.80).
func (e *Estimator) TargetDifficulty(skillRating, targetP float64) float64 {
	if targetP <= 0 {
		targetP = probabilityEpsilon
	}
	if targetP >= 1 {
		targetP = 1 - probabilityEpsilon
	}
	return skillRating + e.cfg.EloScaleFactor*math.Log10(1/targetP-1)
}

// KFactor scales update magnitude by remaining uncertainty, doubled while
// the learner is on an active correct streak of 2 or more.
func (e *Estimator) KFactor(uncertainty float64, activeStreak int) float64 {
	k := e.cfg.BaseKFactor * (uncertainty / e.cfg.InitialUncertainty)
	if activeStreak >= 2 {
		k *= 2.0
	}
	return k
}

// Update applies one attempt outcome (1 = correct, 0 = incorrect) at the
// given item difficulty to state, returning the new rating, uncertainty,
// and incremented counters. It does not mutate state; callers persist the
// returned values themselves (internal/store.RecordAttempt).
func (e *Estimator) Update(state store.SkillState, outcome int, difficulty float64, activeStreak int) store.SkillState {
	expected := e.Probability(state.Rating, difficulty)
	k := e.KFactor(state.Uncertainty, activeStreak)

	next := state
	next.Rating = state.Rating + k*(float64(outcome)-expected)
	next.Uncertainty = math.Max(e.cfg.UncertaintyFloor, state.Uncertainty*e.cfg.UncertaintyDecay)
	next.TotalAttempts = state.TotalAttempts + 1
	if outcome == 1 {
		next.CorrectAttempts = state.CorrectAttempts + 1
	}
	return next
}

// Mastery blends long-run rating with short-run recent accuracy into a
// single [0,1] score. A concept counts as mastered once this value
// reaches the concept's configured mastery_threshold.
func (e *Estimator) Mastery(rating, recentAccuracy float64) float64 {
	ratingComponent := clamp((rating-400)/1200, 0, 1)
	return 0.6*ratingComponent + 0.4*recentAccuracy
}

// Calibrate nudges targetDifficulty toward the learner's recent accuracy
// once enough attempts on the concept exist to trust that signal; early
// on it returns targetDifficulty unchanged.
func (e *Estimator) Calibrate(targetDifficulty, recentAccuracy float64, attemptsOnConcept int) float64 {
	if attemptsOnConcept < 3 {
		return targetDifficulty
	}
	return targetDifficulty + e.cfg.CalibrationGain*(recentAccuracy-e.cfg.TargetSuccessRate)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
