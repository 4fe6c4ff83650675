// Package precache speculatively generates the learner's next item under
// both possible outcomes of the item currently in front of them, so the
// foreground turn after they answer can return instantly on a hit.
//
// Grounded on internal/llm/manager.go's goroutine + channel dispatch and
// context.WithTimeout cancellation idiom: two fire-and-forget tasks per
// accepted answer, each independently cancellable and silent on failure.
package precache

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"tutorcore/internal/cache"
	"tutorcore/internal/generation"
	"tutorcore/internal/store"
)

// precacheTimeout bounds a single speculative branch's LLM round trip;
// losing this race just means no pre-cache entry, never a blocked turn.
const precacheTimeout = 90 * time.Second

// Payload is what gets serialized into the Redis pre-cache entry: enough
// to reconstruct an Item row without re-running generation.
type Payload struct {
	ConceptID         uint              `json:"concept_id"`
	Content           string            `json:"content"`
	Type              store.ItemType    `json:"type"`
	Options           []string          `json:"options"`
	CorrectAnswer     string            `json:"correct_answer"`
	Explanation       string            `json:"explanation"`
	Difficulty        float64           `json:"difficulty"`
	EstimatedPCorrect float64           `json:"estimated_p_correct"`
	PromptUsed        string            `json:"prompt_used"`
	ModelUsed         string            `json:"model_used"`
}

// Engine runs the dual pre-cache: one goroutine per branch, writing to
// internal/cache on success and logging (never erroring to the caller)
// on failure.
type Engine struct {
	pipeline *generation.Pipeline
	cache    *cache.Client
}

func New(pipeline *generation.Pipeline, c *cache.Client) *Engine {
	return &Engine{pipeline: pipeline, cache: c}
}

// TriggerAfterAttempt fires the two speculative branches for the item the
// learner just attempted (itemDifficulty is that item's ELO difficulty,
// needed to simulate the skill update correctly), fanning out in
// goroutines that outlive the call — this method returns immediately.
func (e *Engine) TriggerAfterAttempt(ctx context.Context, learnerID, topicID uint, sessionID string, conceptID uint, itemDifficulty float64) {
	go e.runBranch(context.Background(), cache.BranchCorrect, learnerID, topicID, sessionID, conceptID, itemDifficulty, true)
	go e.runBranch(context.Background(), cache.BranchWrong, learnerID, topicID, sessionID, conceptID, itemDifficulty, false)
}

// runBranch simulates the skill update for outcome, re-derives focus and
// difficulty under the simulated state, generates one accepted candidate,
// and writes it to the cache keyed by (learner, session, branch, concept).
func (e *Engine) runBranch(ctx context.Context, branch cache.Branch, learnerID, topicID uint, sessionID string, conceptID uint, itemDifficulty float64, correct bool) {
	ctx, cancel := context.WithTimeout(ctx, precacheTimeout)
	defer cancel()

	repo := e.pipeline.Repository()
	skillEst := e.pipeline.SkillEstimator()
	policyEng := e.pipeline.PolicyEngine()
	cfg := e.pipeline.Config()

	currentSkill, err := repo.SkillGet(ctx, learnerID, conceptID)
	if err != nil {
		log.Printf("[Precache] %s branch: skill lookup failed: %v", branch, err)
		return
	}

	outcome := 0
	if correct {
		outcome = 1
	}
	simulated := skillEst.Update(*currentSkill, outcome, itemDifficulty, 0)

	analysis, err := policyEng.Analyze(ctx, learnerID, cfg.RecentWindow)
	if err != nil {
		log.Printf("[Precache] %s branch: analyze failed: %v", branch, err)
		return
	}
	simulated.Mastery = skillEst.Mastery(simulated.Rating, analysis.PerConcept[conceptID].Accuracy)

	focus, err := policyEng.SelectFocus(ctx, learnerID, topicID, &conceptID, &conceptID, analysis)
	if err != nil || focus == nil {
		log.Printf("[Precache] %s branch: no focus concept: %v", branch, err)
		return
	}

	targetDiff := skillEst.TargetDifficulty(simulated.Rating, cfg.TargetSuccessRate)
	stats := analysis.PerConcept[focus.ID]
	calibrated := skillEst.Calibrate(targetDiff, stats.Accuracy, stats.Attempts)
	itemType := generation.QuestionTypeForMastery(simulated.Mastery)

	hints, err := e.pipeline.DedupRegistry().PromptHints(ctx, learnerID, sessionID)
	if err != nil {
		log.Printf("[Precache] %s branch: prompt hints failed: %v", branch, err)
		return
	}

	candidate, promptUsed, modelUsed, err := e.pipeline.AcceptCandidateForConcept(ctx, learnerID, sessionID, focus, calibrated, itemType, hints)
	if err != nil {
		log.Printf("[Precache] %s branch: no accepted candidate: %v", branch, err)
		return
	}

	payload := Payload{
		ConceptID:         focus.ID,
		Content:           candidate.Content,
		Type:              candidate.Type,
		Options:           candidate.Options,
		CorrectAnswer:     candidate.CorrectAnswer,
		Explanation:       candidate.Explanation,
		Difficulty:        calibrated,
		EstimatedPCorrect: skillEst.Probability(simulated.Rating, calibrated),
		PromptUsed:        promptUsed,
		ModelUsed:         modelUsed,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[Precache] %s branch: marshal failed: %v", branch, err)
		return
	}

	if err := e.cache.PutPrecache(ctx, learnerID, sessionID, branch, conceptID, string(raw)); err != nil {
		log.Printf("[Precache] %s branch: cache write failed: %v", branch, err)
		return
	}
	log.Printf("[Precache] %s branch ready: concept=%d next_focus=%d", branch, conceptID, focus.ID)
}

// Consume reads and clears both branch entries for conceptID, returning
// the payload matching the actual outcome if present. A miss (including
// any concept mismatch the caller detects against its own current focus)
// means the foreground turn must fall through to synchronous generation.
func (e *Engine) Consume(ctx context.Context, learnerID uint, sessionID string, conceptID uint, correct bool) (*Payload, bool, error) {
	branch := cache.BranchWrong
	if correct {
		branch = cache.BranchCorrect
	}
	raw, ok, err := e.cache.GetPrecache(ctx, learnerID, sessionID, branch, conceptID)
	if err != nil {
		return nil, false, err
	}
	if err := e.cache.ClearPrecache(ctx, learnerID, sessionID, conceptID); err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	var payload Payload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, false, nil
	}
	return &payload, true, nil
}
