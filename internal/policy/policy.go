// Package policy selects the next curriculum concept to practice: the
// focus-node engine of spec.md §4.2. It reads recent attempt history,
// ranks candidate concepts by mastery gap, and applies prerequisite
// fallback and a variety constraint against immediate repetition.
//
// Grounded on internal/goal/selector.go's GoalSelector (rank-then-pick
// over a Calculator's scores) composed with internal/goal/priority.go's
// additive Calculator pattern, adapted from goal-queue ranking to
// concept-mastery ranking.
package policy

import (
	"context"
	"sort"

	"tutorcore/internal/store"
)

const (
	recencyPenalty = 0.15
	virginBonus    = 0.10
)

// Trend summarizes accuracy movement across the first/second halves of
// the analyzed window.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

// ConceptStats is the per-concept slice of the recent-attempt analysis.
type ConceptStats struct {
	Accuracy      float64
	Outcomes      []int // most recent first
	Attempts      int
	HasAnyAttempt bool
}

// Analysis is the output of analyzing the learner's recent attempt window.
type Analysis struct {
	OverallAccuracy float64
	PerConcept      map[uint]ConceptStats
	Trend           Trend
}

// Engine selects the focus concept for a learner's next turn.
type Engine struct {
	repo store.Repository
}

func New(repo store.Repository) *Engine {
	return &Engine{repo: repo}
}

// Analyze inspects the learner's most recent attempts (recentWindow, e.g.
// 30) and produces overall/per-concept accuracy and a trend signal.
// Fewer than recentWindow attempts are allowed; all available are used.
func (e *Engine) Analyze(ctx context.Context, learnerID uint, recentWindow int) (Analysis, error) {
	attempts, err := e.repo.AttemptRecentEnriched(ctx, learnerID, recentWindow)
	if err != nil {
		return Analysis{}, err
	}

	perConcept := make(map[uint]ConceptStats)
	totalCorrect, total := 0, 0
	for _, a := range attempts {
		stats := perConcept[a.ConceptID]
		stats.Attempts++
		stats.HasAnyAttempt = true
		outcome := 0
		if a.IsCorrect {
			outcome = 1
			totalCorrect++
		}
		stats.Outcomes = append(stats.Outcomes, outcome)
		total++
		perConcept[a.ConceptID] = stats
	}
	for id, stats := range perConcept {
		correct := 0
		for _, o := range stats.Outcomes {
			correct += o
		}
		stats.Accuracy = safeRatio(correct, stats.Attempts)
		perConcept[id] = stats
	}

	overall := safeRatio(totalCorrect, total)
	trend := computeTrend(attempts)

	return Analysis{OverallAccuracy: overall, PerConcept: perConcept, Trend: trend}, nil
}

// computeTrend requires >=6 attempts (3 per half) to produce anything but
// "stable"; attempts is ordered most-recent-first, so the first half is
// the more recent one.
func computeTrend(attempts []store.AttemptEnriched) Trend {
	if len(attempts) < 6 {
		return TrendStable
	}
	half := len(attempts) / 2
	recentHalf := attempts[:half]
	olderHalf := attempts[half : half*2]
	if len(recentHalf) < 3 || len(olderHalf) < 3 {
		return TrendStable
	}

	recentAcc := accuracyOf(recentHalf)
	olderAcc := accuracyOf(olderHalf)
	delta := recentAcc - olderAcc
	switch {
	case delta > 0.10:
		return TrendImproving
	case delta < -0.10:
		return TrendDeclining
	default:
		return TrendStable
	}
}

func accuracyOf(attempts []store.AttemptEnriched) float64 {
	correct := 0
	for _, a := range attempts {
		if a.IsCorrect {
			correct++
		}
	}
	return safeRatio(correct, len(attempts))
}

func safeRatio(num, denom int) float64 {
	if denom == 0 {
		return 0
	}
	return float64(num) / float64(denom)
}

// SelectFocus applies spec §4.2's priority-ordered rules, first match
// wins, then the variety constraint against immediate repetition.
// currentConceptID is the concept practiced this session so far (nil if
// none yet); lastConceptID is the concept returned by the previous call.
func (e *Engine) SelectFocus(ctx context.Context, learnerID uint, topicID uint, currentConceptID, lastConceptID *uint, analysis Analysis) (*store.Concept, error) {
	concepts, err := e.repo.ListConceptsByTopic(ctx, topicID)
	if err != nil {
		return nil, err
	}
	candidates := excludeVisualRequired(concepts)
	if len(candidates) == 0 {
		return nil, nil
	}

	byID := make(map[uint]*store.Concept, len(candidates))
	for _, c := range candidates {
		byID[c.ID] = c
	}

	skills, err := e.skillsByID(ctx, learnerID, candidates)
	if err != nil {
		return nil, err
	}
	available := availableConcepts(candidates, skills, byID)

	var chosen *store.Concept

	if currentConceptID != nil {
		if cur, ok := byID[*currentConceptID]; ok {
			stats := analysis.PerConcept[cur.ID]
			mastery := skills[cur.ID].Mastery
			mastered := mastery >= cur.MasteryThreshold

			switch {
			case stats.Accuracy >= 0.60 && stats.Accuracy <= 0.90 && !mastered:
				// rule 1: stay
				chosen = cur
			case stats.Accuracy < 0.60:
				// rule 2: first unmastered prerequisite, by concept id order
				chosen = firstUnmasteredPrerequisite(cur, skills)
			case mastered || stats.Accuracy > 0.90:
				// rule 3: advance to next unmastered concept by order_index
				chosen = nextUnmasteredByOrder(available, skills, cur.OrderIndex)
			}
		}
	}

	if chosen == nil {
		// rule 4: weakest among unmastered concepts with recent attempts
		chosen = weakestWithAttempts(available, skills, analysis)
	}
	if chosen == nil {
		// rule 5: next untouched concept by order_index
		chosen = firstUntouched(available, analysis)
	}
	if chosen == nil {
		// rule 6: lowest mastery over all concepts in the topic
		chosen = lowestMastery(candidates, skills)
	}
	if chosen == nil {
		return nil, nil
	}

	return applyVariety(chosen, available, skills, analysis, lastConceptID), nil
}

func (e *Engine) skillsByID(ctx context.Context, learnerID uint, concepts []*store.Concept) (map[uint]*store.SkillState, error) {
	skills := make(map[uint]*store.SkillState, len(concepts))
	for _, c := range concepts {
		s, err := e.repo.SkillGet(ctx, learnerID, c.ID)
		if err != nil {
			return nil, err
		}
		skills[c.ID] = s
	}
	return skills, nil
}

func excludeVisualRequired(concepts []*store.Concept) []*store.Concept {
	out := make([]*store.Concept, 0, len(concepts))
	for _, c := range concepts {
		if !c.VisualRequired {
			out = append(out, c)
		}
	}
	return out
}

// availableConcepts applies the soft-prereq rule: a concept is available
// once the learner has >=2 attempts on each of its prerequisites,
// independent of mastery. Concepts with no prerequisites are always available.
func availableConcepts(concepts []*store.Concept, skills map[uint]*store.SkillState, byID map[uint]*store.Concept) []*store.Concept {
	out := make([]*store.Concept, 0, len(concepts))
	for _, c := range concepts {
		ok := true
		for _, prereq := range c.Prerequisites {
			if _, exists := byID[prereq.ID]; !exists {
				continue
			}
			if skills[prereq.ID].TotalAttempts < 2 {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, c)
		}
	}
	return out
}

func firstUnmasteredPrerequisite(cur *store.Concept, skills map[uint]*store.SkillState) *store.Concept {
	prereqs := make([]*store.Concept, len(cur.Prerequisites))
	copy(prereqs, cur.Prerequisites)
	sort.Slice(prereqs, func(i, j int) bool { return prereqs[i].ID < prereqs[j].ID })
	for _, p := range prereqs {
		if s, ok := skills[p.ID]; ok && s.Mastery < p.MasteryThreshold {
			return p
		}
	}
	return nil
}

func nextUnmasteredByOrder(concepts []*store.Concept, skills map[uint]*store.SkillState, afterOrderIndex int) *store.Concept {
	sorted := make([]*store.Concept, len(concepts))
	copy(sorted, concepts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].OrderIndex < sorted[j].OrderIndex })

	for _, c := range sorted {
		if c.OrderIndex <= afterOrderIndex {
			continue
		}
		if s, ok := skills[c.ID]; ok && s.Mastery < c.MasteryThreshold {
			return c
		}
	}
	return nil
}

func weakestWithAttempts(concepts []*store.Concept, skills map[uint]*store.SkillState, analysis Analysis) *store.Concept {
	var best *store.Concept
	bestAccuracy := 2.0 // above any real accuracy
	for _, c := range concepts {
		stats, hasAttempts := analysis.PerConcept[c.ID]
		if !hasAttempts || !stats.HasAnyAttempt {
			continue
		}
		if s, ok := skills[c.ID]; !ok || s.Mastery >= c.MasteryThreshold {
			continue
		}
		if stats.Accuracy < bestAccuracy {
			bestAccuracy = stats.Accuracy
			best = c
		}
	}
	return best
}

func firstUntouched(concepts []*store.Concept, analysis Analysis) *store.Concept {
	sorted := make([]*store.Concept, len(concepts))
	copy(sorted, concepts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].OrderIndex < sorted[j].OrderIndex })
	for _, c := range sorted {
		if stats, ok := analysis.PerConcept[c.ID]; !ok || !stats.HasAnyAttempt {
			return c
		}
	}
	return nil
}

func lowestMastery(concepts []*store.Concept, skills map[uint]*store.SkillState) *store.Concept {
	var best *store.Concept
	bestMastery := 2.0
	for _, c := range concepts {
		s, ok := skills[c.ID]
		if !ok {
			continue
		}
		if s.Mastery < bestMastery {
			bestMastery = s.Mastery
			best = c
		}
	}
	return best
}

// applyVariety enforces: never return the same concept as lastConceptID
// unless it is the sole qualifying candidate. If chosen matches
// lastConceptID and other candidates exist, the highest-scoring
// alternative (need + virgin bonus − recency penalty) is substituted.
func applyVariety(chosen *store.Concept, pool []*store.Concept, skills map[uint]*store.SkillState, analysis Analysis, lastConceptID *uint) *store.Concept {
	if lastConceptID == nil || chosen.ID != *lastConceptID {
		return chosen
	}

	type scored struct {
		concept *store.Concept
		score   float64
	}
	var alternatives []scored
	for _, c := range pool {
		if c.ID == *lastConceptID {
			continue
		}
		alternatives = append(alternatives, scored{c, varietyScore(c, skills, analysis, lastConceptID)})
	}
	if len(alternatives) == 0 {
		return chosen // sole candidate
	}
	sort.Slice(alternatives, func(i, j int) bool { return alternatives[i].score > alternatives[j].score })
	return alternatives[0].concept
}

func varietyScore(c *store.Concept, skills map[uint]*store.SkillState, analysis Analysis, lastConceptID *uint) float64 {
	mastery := 0.0
	if s, ok := skills[c.ID]; ok {
		mastery = s.Mastery
	}
	need := 1 - mastery

	score := need
	if lastConceptID != nil && c.ID == *lastConceptID {
		score -= recencyPenalty
	}
	if stats, ok := analysis.PerConcept[c.ID]; !ok || !stats.HasAnyAttempt {
		score += virginBonus
	}
	return score
}
