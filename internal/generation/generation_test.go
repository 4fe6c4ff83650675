package generation

import (
	"context"
	"strings"
	"testing"

	"github.com/redis/go-redis/v9"

	"tutorcore/internal/arithmetic"
	"tutorcore/internal/cache"
	"tutorcore/internal/config"
	"tutorcore/internal/dedup"
	"tutorcore/internal/generation/localgen"
	"tutorcore/internal/policy"
	"tutorcore/internal/skill"
	"tutorcore/internal/store"
	"tutorcore/internal/validator"
)

func TestQuestionTypeForMastery(t *testing.T) {
	cases := []struct {
		mastery float64
		want    store.ItemType
	}{
		{0.0, store.ItemMCQ},
		{0.29, store.ItemMCQ},
		{0.3, store.ItemShortAnswer},
		{0.59, store.ItemShortAnswer},
		{0.6, store.ItemProblem},
		{0.99, store.ItemProblem},
	}
	for _, c := range cases {
		if got := questionTypeForMastery(c.mastery); got != c.want {
			t.Errorf("questionTypeForMastery(%v) = %v, want %v", c.mastery, got, c.want)
		}
	}
}

func TestNormalizeDifficulty_Clamps(t *testing.T) {
	if got := normalizeDifficulty(0); got != 0 {
		t.Errorf("expected floor clamp to 0, got %v", got)
	}
	if got := normalizeDifficulty(2000); got != 1 {
		t.Errorf("expected ceiling clamp to 1, got %v", got)
	}
	if got := normalizeDifficulty(800); got != 0.5 {
		t.Errorf("expected (800-400)/800 = 0.5, got %v", got)
	}
}

func TestBuildPlaceholderOptions_SanitizesAndLabels(t *testing.T) {
	opts := buildPlaceholderOptions("42\x07", 2)
	if len(opts) != 4 {
		t.Fatalf("expected 4 placeholder options, got %d", len(opts))
	}
	if opts[0] != "A) 42" {
		t.Errorf("expected sanitized correct answer in slot A, got %q", opts[0])
	}
	if opts[1] != "B) alt2a" || opts[2] != "C) alt2b" || opts[3] != "D) alt2c" {
		t.Errorf("expected attempt-numbered alt placeholders, got %v", opts[1:])
	}
}

func TestCandidateFromObject_BuildsPlaceholdersForBareMCQAnswer(t *testing.T) {
	obj := map[string]interface{}{
		"content":        "What is 6 + 7?",
		"correct_answer": "13",
		"explanation":    "6 + 7 = 13",
	}
	c, err := candidateFromObject(obj, store.ItemMCQ, 0)
	if err != nil {
		t.Fatalf("candidateFromObject: %v", err)
	}
	if len(c.Options) != 4 {
		t.Fatalf("expected 4 constructed options, got %d", len(c.Options))
	}
	if c.CorrectAnswer != "A" {
		t.Errorf("expected correct_answer rewritten to letter A, got %q", c.CorrectAnswer)
	}
}

func TestCandidateFromObject_MissingContentErrors(t *testing.T) {
	_, err := candidateFromObject(map[string]interface{}{"correct_answer": "5"}, store.ItemShortAnswer, 0)
	if err == nil {
		t.Errorf("expected error for missing content")
	}
}

func TestReplacePlaceholderDistractors_NumericVariants(t *testing.T) {
	c := validator.Candidate{
		Type:          store.ItemMCQ,
		Options:       []string{"A) 13", "B) alt0a", "C) alt0b", "D) alt0c"},
		CorrectAnswer: "A",
	}
	out := replacePlaceholderDistractors(c)
	for i, opt := range out.Options {
		if i == 0 {
			continue
		}
		if opt == "B) alt0a" || opt == "C) alt0b" || opt == "D) alt0c" {
			t.Errorf("expected placeholder %q to be replaced", opt)
		}
	}
}

func TestReplacePlaceholderDistractors_NonMCQUntouched(t *testing.T) {
	c := validator.Candidate{Type: store.ItemShortAnswer, CorrectAnswer: "13"}
	out := replacePlaceholderDistractors(c)
	if out.CorrectAnswer != "13" {
		t.Errorf("expected short_answer candidate to pass through unchanged")
	}
}

type fakeRepo struct {
	store.Repository
	concepts []*store.Concept
	skills   map[uint]*store.SkillState
}

func (f *fakeRepo) ListConceptsByTopic(ctx context.Context, topicID uint) ([]*store.Concept, error) {
	return f.concepts, nil
}

func (f *fakeRepo) SkillGet(ctx context.Context, learnerID, conceptID uint) (*store.SkillState, error) {
	if s, ok := f.skills[conceptID]; ok {
		return s, nil
	}
	return &store.SkillState{Rating: 800, Uncertainty: 350}, nil
}

func (f *fakeRepo) AttemptRecentEnriched(ctx context.Context, learnerID uint, limit int) ([]store.AttemptEnriched, error) {
	return nil, nil
}

func (f *fakeRepo) AttemptCorrectTexts(ctx context.Context, learnerID uint) (map[string]struct{}, error) {
	return map[string]struct{}{}, nil
}

func (f *fakeRepo) ItemInsert(ctx context.Context, item *store.Item) (uint, error) {
	item.ID = 99
	return 99, nil
}

func TestRunTurn_UsesLocalGeneratorAndPersistsItem(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("no local redis available: %v", err)
	}
	defer func() {
		rdb.FlushDB(context.Background())
		rdb.Close()
	}()

	concept := &store.Concept{ID: 1, Name: "clock reading", TopicID: 1, MasteryThreshold: 0.75}
	repo := &fakeRepo{
		concepts: []*store.Concept{concept},
		skills:   map[uint]*store.SkillState{1: {Mastery: 0.1, Rating: 800}},
	}
	cfg := config.DefaultTutorConfig()

	pipeline := NewPipeline(
		repo,
		nil,
		skill.NewEstimator(cfg),
		policy.New(repo),
		validator.New(arithmetic.New()),
		dedup.New(cache.New(rdb), repo),
		localgen.NewRegistry(),
		cfg,
	)

	result, err := pipeline.RunTurn(context.Background(), 1, 1, "sess-gen-1", nil, nil)
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if result.Item == nil || result.Item.ID != 99 {
		t.Fatalf("expected persisted item with id 99, got %+v", result.Item)
	}
	if result.Concept.ID != 1 {
		t.Errorf("expected concept 1 as focus, got %d", result.Concept.ID)
	}
}

func TestSanitizeAnswer_StripsHTMLAndEventHandlers(t *testing.T) {
	out := sanitizeAnswer(`x" onerror=alert(1)//<script>evil()</script>`)
	if strings.Contains(out, "<script") || strings.Contains(out, "</script>") {
		t.Errorf("expected html tags stripped, got %q", out)
	}
	if strings.Contains(out, "onerror=") {
		t.Errorf("expected event-handler pattern stripped, got %q", out)
	}
}

func TestSanitizeAnswer_StripsControlCharactersAndCapsLength(t *testing.T) {
	out := sanitizeAnswer("13\x07")
	if out != "13" {
		t.Errorf("expected control characters stripped, got %q", out)
	}
	long := strings.Repeat("a", maxSanitizedAnswerLen+50)
	out = sanitizeAnswer(long)
	if len([]rune(out)) != maxSanitizedAnswerLen {
		t.Errorf("expected length capped at %d, got %d", maxSanitizedAnswerLen, len([]rune(out)))
	}
}
