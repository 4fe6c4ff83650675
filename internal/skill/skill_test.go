package skill

import (
	"math"
	"testing"

	"tutorcore/internal/config"
	"tutorcore/internal/store"
)

func testEstimator() *Estimator {
	return NewEstimator(config.DefaultTutorConfig())
}

func TestProbability_CalibratedAtEqualSkillAndDifficulty(t *testing.T) {
	e := testEstimator()
	p := e.Probability(800, 800)
	if math.Abs(p-0.5) > 1e-9 {
		t.Errorf("expected p=0.5 at S=D, got %v", p)
	}
}

func TestTargetDifficulty_RoundTripsThroughProbability(t *testing.T) {
	e := testEstimator()
	for _, target := range []float64{0.5, 0.6, 0.80, 0.95} {
		d := e.TargetDifficulty(800, target)
		p := e.Probability(800, d)
		if math.Abs(p-target) > 1e-6 {
			t.Errorf("target_p=%v: round-trip got p=%v at D=%v", target, p, d)
		}
	}
}

func TestTargetDifficulty_DefaultTargetIsBelowSkill(t *testing.T) {
	e := testEstimator()
	d := e.TargetDifficulty(800, 0.80)
	if d >= 800 {
		t.Errorf("expected target difficulty below skill at p=0.80, got %v", d)
	}
	if math.Abs(d-(800-241)) > 1 {
		t.Errorf("expected D ~= S-241, got %v", d)
	}
}

func TestKFactor_DoublesOnActiveStreak(t *testing.T) {
	e := testEstimator()
	base := e.KFactor(350, 0)
	streak := e.KFactor(350, 2)
	if streak != base*2 {
		t.Errorf("expected streak k-factor to double base, got base=%v streak=%v", base, streak)
	}
}

func TestUpdate_CorrectAnswerRaisesRating(t *testing.T) {
	e := testEstimator()
	state := store.SkillState{Rating: 800, Uncertainty: 350}
	next := e.Update(state, 1, 800, 0)
	if next.Rating <= state.Rating {
		t.Errorf("expected rating to rise on a correct answer at S=D, got %v -> %v", state.Rating, next.Rating)
	}
	if next.TotalAttempts != 1 || next.CorrectAttempts != 1 {
		t.Errorf("unexpected counters: %+v", next)
	}
}

func TestUpdate_IncorrectAnswerLowersRating(t *testing.T) {
	e := testEstimator()
	state := store.SkillState{Rating: 800, Uncertainty: 350}
	next := e.Update(state, 0, 800, 0)
	if next.Rating >= state.Rating {
		t.Errorf("expected rating to fall on an incorrect answer at S=D, got %v -> %v", state.Rating, next.Rating)
	}
	if next.CorrectAttempts != 0 || next.TotalAttempts != 1 {
		t.Errorf("unexpected counters: %+v", next)
	}
}

func TestUpdate_UncertaintyDecaysTowardFloor(t *testing.T) {
	e := testEstimator()
	state := store.SkillState{Rating: 800, Uncertainty: 350}
	for i := 0; i < 200; i++ {
		state = e.Update(state, 1, 800, 0)
		if state.Uncertainty < 50 {
			t.Fatalf("uncertainty dropped below floor: %v", state.Uncertainty)
		}
	}
	if math.Abs(state.Uncertainty-50) > 1e-6 {
		t.Errorf("expected uncertainty to converge to floor 50, got %v", state.Uncertainty)
	}
}

func TestUpdate_UncertaintyMonotoneNonIncreasing(t *testing.T) {
	e := testEstimator()
	state := store.SkillState{Rating: 800, Uncertainty: 350}
	prev := state.Uncertainty
	for i := 0; i < 10; i++ {
		state = e.Update(state, i%2, 800, 0)
		if state.Uncertainty > prev {
			t.Fatalf("uncertainty increased: %v -> %v", prev, state.Uncertainty)
		}
		prev = state.Uncertainty
	}
}

func TestMastery_ClampsRatingComponent(t *testing.T) {
	e := testEstimator()
	low := e.Mastery(-1000, 0)
	if low != 0 {
		t.Errorf("expected 0 mastery for very low rating and zero accuracy, got %v", low)
	}
	high := e.Mastery(1600, 1)
	if math.Abs(high-1.0) > 1e-9 {
		t.Errorf("expected mastery 1.0 for high rating and perfect accuracy, got %v", high)
	}
}

func TestMastery_MatchesWorkedExample(t *testing.T) {
	e := testEstimator()
	m := e.Mastery(1300, 0.95)
	if m < 0.75 {
		t.Errorf("expected rating=1300, recent_accuracy=0.95 to clear the 0.75 mastery threshold, got %v", m)
	}
}

func TestCalibrate_ReturnsTargetUnchangedBelowThreeAttempts(t *testing.T) {
	e := testEstimator()
	d := e.Calibrate(700, 0.95, 2)
	if d != 700 {
		t.Errorf("expected uncalibrated target_difficulty below 3 attempts, got %v", d)
	}
}

func TestCalibrate_NudgesTowardRecentAccuracy(t *testing.T) {
	e := testEstimator()
	above := e.Calibrate(700, 0.95, 5)
	if above <= 700 {
		t.Errorf("expected calibration to raise difficulty when recent accuracy exceeds target, got %v", above)
	}
	below := e.Calibrate(700, 0.5, 5)
	if below >= 700 {
		t.Errorf("expected calibration to lower difficulty when recent accuracy is below target, got %v", below)
	}
}
