// Package generation drives one turn's item production: pick a focus
// concept and calibrated difficulty, try a local generator, otherwise
// prompt the LLM, validate and dedup the candidate, retry on rejection,
// then persist the accepted item.
//
// Grounded on internal/goal/orchestrator.go's Orchestrator: a small
// collaborator struct plus one numbered-step entry point
// (ExecuteCycle there, RunTurn here) narrated with
// log.Printf("[Generation] ...") lines in the same voice.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"

	"tutorcore/internal/config"
	"tutorcore/internal/dedup"
	"tutorcore/internal/generation/localgen"
	"tutorcore/internal/llm"
	"tutorcore/internal/policy"
	"tutorcore/internal/skill"
	"tutorcore/internal/store"
	"tutorcore/internal/validator"
)

// ErrNoItem is returned when every generation attempt for a turn was
// rejected by the validator or dedup registry.
var ErrNoItem = errors.New("generation: exhausted attempts without an accepted item")

// ErrNoFocusConcept is returned when the policy engine has nothing left
// to practice in the requested topic.
var ErrNoFocusConcept = errors.New("generation: no focus concept available")

// TurnResult is the outcome of one successful RunTurn.
type TurnResult struct {
	Item            *store.Item
	Concept         *store.Concept
	AttemptsUsed    int
	CalibratedLevel float64
}

// Pipeline is the generation collaborator set: storage, content, scoring,
// validation, and dedup, composed the way Orchestrator composes Factory,
// Validator, Selector, and Calculator.
type Pipeline struct {
	repo      store.Repository
	adapter   *llm.Adapter
	skillEst  *skill.Estimator
	policyEng *policy.Engine
	validate  *validator.Validator
	dedupReg  *dedup.Registry
	localGen  *localgen.Registry
	cfg       config.TutorConfig
}

func NewPipeline(
	repo store.Repository,
	adapter *llm.Adapter,
	skillEst *skill.Estimator,
	policyEng *policy.Engine,
	v *validator.Validator,
	dedupReg *dedup.Registry,
	localGen *localgen.Registry,
	cfg config.TutorConfig,
) *Pipeline {
	return &Pipeline{
		repo:      repo,
		adapter:   adapter,
		skillEst:  skillEst,
		policyEng: policyEng,
		validate:  v,
		dedupReg:  dedupReg,
		localGen:  localGen,
		cfg:       cfg,
	}
}

// RunTurn executes spec.md §4.6's numbered steps for one foreground turn.
// currentConceptID is the concept the session is already working on (nil
// if this is the session's first turn); lastConceptID is whatever focus
// concept the previous turn resolved to, for the variety constraint.
func (p *Pipeline) RunTurn(ctx context.Context, learnerID, topicID uint, sessionID string, currentConceptID, lastConceptID *uint) (*TurnResult, error) {
	log.Printf("[Generation] turn start: learner=%d topic=%d session=%s", learnerID, topicID, sessionID)

	analysis, err := p.policyEng.Analyze(ctx, learnerID, p.cfg.RecentWindow)
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}

	concept, err := p.policyEng.SelectFocus(ctx, learnerID, topicID, currentConceptID, lastConceptID, analysis)
	if err != nil {
		return nil, fmt.Errorf("select focus: %w", err)
	}
	if concept == nil {
		return nil, ErrNoFocusConcept
	}

	skillState, err := p.repo.SkillGet(ctx, learnerID, concept.ID)
	if err != nil {
		return nil, fmt.Errorf("skill get: %w", err)
	}

	targetDiff := p.skillEst.TargetDifficulty(skillState.Rating, p.cfg.TargetSuccessRate)
	stats := analysis.PerConcept[concept.ID]
	calibrated := p.skillEst.Calibrate(targetDiff, stats.Accuracy, stats.Attempts)
	itemType := questionTypeForMastery(skillState.Mastery)

	log.Printf("[Generation] focus=%s(%d) difficulty=%.1f type=%s", concept.Name, concept.ID, calibrated, itemType)

	hints, err := p.dedupReg.PromptHints(ctx, learnerID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("prompt hints: %w", err)
	}

	accepted, attemptsUsed, err := p.acceptCandidate(ctx, learnerID, sessionID, concept, calibrated, itemType, hints)
	if err != nil {
		return nil, err
	}

	item := &store.Item{
		ConceptID:         concept.ID,
		Content:           accepted.candidate.Content,
		Type:              accepted.candidate.Type,
		Options:           store.NewStringList(accepted.candidate.Options),
		CorrectAnswer:     accepted.candidate.CorrectAnswer,
		Explanation:       accepted.candidate.Explanation,
		Difficulty:        calibrated,
		EstimatedPCorrect: p.skillEst.Probability(skillState.Rating, calibrated),
		PromptUsed:        accepted.promptUsed,
		ModelUsed:         accepted.modelUsed,
	}
	id, err := p.repo.ItemInsert(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("item insert: %w", err)
	}
	item.ID = id

	if err := p.dedupReg.RecordSeen(ctx, sessionID, accepted.candidate.Content); err != nil {
		return nil, fmt.Errorf("record seen: %w", err)
	}

	log.Printf("[Generation] accepted item %d on attempt %d", item.ID, attemptsUsed)
	return &TurnResult{Item: item, Concept: concept, AttemptsUsed: attemptsUsed, CalibratedLevel: calibrated}, nil
}

// acceptedCandidate is a validated, non-excluded candidate plus the
// provenance fields an Item row needs.
type acceptedCandidate struct {
	candidate  validator.Candidate
	promptUsed string
	modelUsed  string
}

// acceptCandidate runs spec.md §4.6 steps 2-8 (generate, distract, validate,
// dedup, retry) without touching the repository. Used by RunTurn for the
// foreground item and by internal/precache for speculative branches.
func (p *Pipeline) acceptCandidate(ctx context.Context, learnerID uint, sessionID string, concept *store.Concept, calibrated float64, itemType store.ItemType, hints []string) (acceptedCandidate, int, error) {
	for attemptNum := 0; attemptNum < p.cfg.MaxGenerationAttempts; attemptNum++ {
		candidate, promptUsed, modelUsed, err := p.generateCandidate(ctx, concept, calibrated, itemType, hints, attemptNum)
		if err != nil {
			log.Printf("[Generation] attempt %d: generation failed: %v", attemptNum, err)
			continue
		}

		candidate = replacePlaceholderDistractors(candidate)

		res := p.validate.Validate(candidate)
		if !res.IsValid {
			log.Printf("[Generation] attempt %d: rejected by validator rule %d (%s)", attemptNum, res.Rule, res.Reason)
			continue
		}

		excluded, err := p.dedupReg.IsExcluded(ctx, learnerID, sessionID, candidate.Content)
		if err != nil {
			return acceptedCandidate{}, 0, fmt.Errorf("dedup check: %w", err)
		}
		if excluded {
			log.Printf("[Generation] attempt %d: rejected by dedup", attemptNum)
			continue
		}

		return acceptedCandidate{candidate: candidate, promptUsed: promptUsed, modelUsed: modelUsed}, attemptNum + 1, nil
	}

	log.Printf("[Generation] exhausted %d attempts, no item", p.cfg.MaxGenerationAttempts)
	return acceptedCandidate{}, 0, ErrNoItem
}

// PolicyEngine exposes the focus-selection collaborator for callers (the
// dual pre-cache) that need to simulate focus selection under a
// hypothetical skill state rather than run a full foreground turn.
func (p *Pipeline) PolicyEngine() *policy.Engine {
	return p.policyEng
}

// SkillEstimator exposes the scoring collaborator for the same reason.
func (p *Pipeline) SkillEstimator() *skill.Estimator {
	return p.skillEst
}

// Repository exposes the storage collaborator for read-only lookups.
func (p *Pipeline) Repository() store.Repository {
	return p.repo
}

// Config exposes the tuning table for callers computing target difficulty
// outside of RunTurn.
func (p *Pipeline) Config() config.TutorConfig {
	return p.cfg
}

// DedupRegistry exposes the dedup collaborator for prompt-hint lookups
// outside of RunTurn.
func (p *Pipeline) DedupRegistry() *dedup.Registry {
	return p.dedupReg
}

// AcceptCandidateForConcept runs the generate/validate/dedup/retry loop
// (spec.md §4.6 steps 2-8) for an already-chosen concept/difficulty/type,
// without persisting anything. Used by internal/precache to build a
// speculative item under a simulated skill state.
func (p *Pipeline) AcceptCandidateForConcept(ctx context.Context, learnerID uint, sessionID string, concept *store.Concept, calibrated float64, itemType store.ItemType, hints []string) (validator.Candidate, string, string, error) {
	accepted, _, err := p.acceptCandidate(ctx, learnerID, sessionID, concept, calibrated, itemType, hints)
	if err != nil {
		return validator.Candidate{}, "", "", err
	}
	return accepted.candidate, accepted.promptUsed, accepted.modelUsed, nil
}

// QuestionTypeForMastery maps a learner's mastery for a concept to the
// item type band spec.md §4.6 step 1 names, exported for internal/precache
// to reuse when choosing a type under a simulated skill state.
func QuestionTypeForMastery(mastery float64) store.ItemType {
	return questionTypeForMastery(mastery)
}

func questionTypeForMastery(mastery float64) store.ItemType {
	switch {
	case mastery < 0.3:
		return store.ItemMCQ
	case mastery < 0.6:
		return store.ItemShortAnswer
	default:
		return store.ItemProblem
	}
}

// normalizeDifficulty maps an ELO rating into the [0,1] band the prompt
// describes difficulty in, per spec.md §4.6 step 3.
func normalizeDifficulty(eloDifficulty float64) float64 {
	n := (eloDifficulty - 400) / 800
	if n < 0 {
		return 0
	}
	if n > 1 {
		return 1
	}
	return n
}

// generateCandidate tries the concept's local generator first; on a miss
// it builds and sends the LLM prompt and defensively parses the reply.
func (p *Pipeline) generateCandidate(ctx context.Context, concept *store.Concept, difficulty float64, itemType store.ItemType, hints []string, attemptNum int) (validator.Candidate, string, string, error) {
	key := strings.ToLower(strings.TrimSpace(concept.Name))
	if gen, ok := p.localGen.Lookup(key); ok {
		if c, ok := gen(normalizeDifficulty(difficulty), itemType); ok {
			return c, "local:" + key, "local", nil
		}
	}

	prompt := buildPrompt(concept, difficulty, itemType, hints)
	text, modelName, fullPrompt, err := p.adapter.Chat(ctx, prompt, 0.7, false)
	if err != nil {
		return validator.Candidate{}, "", "", fmt.Errorf("llm chat: %w", err)
	}

	obj, err := llm.ParseObject(text)
	if err != nil {
		return validator.Candidate{}, "", "", fmt.Errorf("parse candidate json: %w", err)
	}

	candidate, err := candidateFromObject(obj, itemType, attemptNum)
	if err != nil {
		return validator.Candidate{}, "", "", err
	}
	return candidate, fullPrompt, modelName, nil
}

func candidateFromObject(obj map[string]interface{}, fallbackType store.ItemType, attemptNum int) (validator.Candidate, error) {
	content, _ := obj["content"].(string)
	if content == "" {
		content, _ = obj["question"].(string)
	}
	if content == "" {
		return validator.Candidate{}, errors.New("candidate missing content")
	}

	itemType := fallbackType
	if rawType, ok := obj["type"].(string); ok && rawType != "" {
		itemType = store.ItemType(rawType)
	}

	correctAnswer, _ := obj["correct_answer"].(string)
	explanation, _ := obj["explanation"].(string)

	var options []string
	if rawOpts, ok := obj["options"].([]interface{}); ok {
		for _, o := range rawOpts {
			if s, ok := o.(string); ok {
				options = append(options, s)
			}
		}
	}

	if itemType == store.ItemMCQ && len(options) == 0 && correctAnswer != "" {
		options = buildPlaceholderOptions(correctAnswer, attemptNum)
		correctAnswer = "A"
	}

	return validator.Candidate{
		Content:       content,
		Type:          itemType,
		Options:       options,
		CorrectAnswer: correctAnswer,
		Explanation:   explanation,
	}, nil
}

const maxSanitizedAnswerLen = 120

// htmlTagRe and eventHandlerRe catch the markup an LLM-generated answer
// should never contain: actual tags, and bare on*= event-handler
// attributes that survive even with angle brackets stripped out.
var (
	htmlTagRe      = regexp.MustCompile(`(?i)<[a-z!/][^>]*>?`)
	eventHandlerRe = regexp.MustCompile(`(?i)\bon\w+\s*=`)
)

// sanitizeAnswer strips control characters, HTML tags, and event-handler
// patterns, then caps length, before the correct answer is interpolated
// into a placeholder option string.
func sanitizeAnswer(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r < 0x20 {
			continue
		}
		b.WriteRune(r)
	}
	out := htmlTagRe.ReplaceAllString(b.String(), "")
	out = eventHandlerRe.ReplaceAllString(out, "")
	if len([]rune(out)) > maxSanitizedAnswerLen {
		out = string([]rune(out)[:maxSanitizedAnswerLen])
	}
	return out
}

// buildPlaceholderOptions constructs spec.md §4.6 step 5's temporary
// options so rules 3-4 and 9-10 have real data to check before the
// distractor generator replaces the alt{n}* slots.
func buildPlaceholderOptions(correctAnswer string, attemptNum int) []string {
	sanitized := sanitizeAnswer(correctAnswer)
	n := strconv.Itoa(attemptNum)
	return []string{
		"A) " + sanitized,
		"B) alt" + n + "a",
		"C) alt" + n + "b",
		"D) alt" + n + "c",
	}
}

func buildPrompt(concept *store.Concept, difficulty float64, itemType store.ItemType, hints []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate one %s practice item for the concept %q (topic id %d).\n", itemType, concept.Name, concept.TopicID)
	if concept.Description != "" {
		fmt.Fprintf(&b, "Concept description: %s\n", concept.Description)
	}
	fmt.Fprintf(&b, "Target difficulty (normalized 0=easiest, 1=hardest): %.2f\n", normalizeDifficulty(difficulty))

	if len(hints) > 0 {
		b.WriteString("Do not repeat any of these previously used questions:\n")
		for _, h := range hints {
			fmt.Fprintf(&b, "- %s\n", h)
		}
	}

	b.WriteString("\nRules:\n")
	rules := []string{
		"Output a single JSON object and nothing else.",
		"Fields: content, type, options (array, mcq only), correct_answer, explanation.",
		"content must be a complete, self-contained question; never reference an external image or diagram.",
		"For mcq items, supply exactly 4 options, each prefixed \"A) \", \"B) \", \"C) \", \"D) \".",
		"correct_answer must be concise: a bare letter for mcq, or the bare value otherwise.",
		"Never include placeholder text such as [insert], TBD, or ellipses.",
		"Never give the answer away inside the question text.",
		"explanation must show the actual arithmetic or reasoning used, consistent with correct_answer.",
		"Keep content under 300 characters and explanation under 500 characters.",
		"Do not use HTML tags or code blocks.",
		"End the question with a question mark, or an imperative like \"Find x.\" for problem-type items.",
		"Never describe a picture, graph, or diagram to look at.",
		"Never instruct the learner to draw or graph anything.",
	}
	for i, r := range rules {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r)
	}
	return b.String()
}
