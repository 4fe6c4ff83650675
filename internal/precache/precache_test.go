package precache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"tutorcore/internal/arithmetic"
	"tutorcore/internal/cache"
	"tutorcore/internal/config"
	"tutorcore/internal/dedup"
	"tutorcore/internal/generation"
	"tutorcore/internal/generation/localgen"
	"tutorcore/internal/policy"
	"tutorcore/internal/skill"
	"tutorcore/internal/store"
	"tutorcore/internal/validator"
)

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
	item.ID = 1
	return 1, nil
}

func TestTriggerAfterAttempt_WritesBothBranches(t *testing.T) {
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
		skills:   map[uint]*store.SkillState{1: {Mastery: 0.2, Rating: 800, Uncertainty: 350}},
	}
	cfg := config.DefaultTutorConfig()
	cacheClient := cache.New(rdb)

	pipeline := generation.NewPipeline(
		repo,
		nil,
		skill.NewEstimator(cfg),
		policy.New(repo),
		validator.New(arithmetic.New()),
		dedup.New(cacheClient, repo),
		localgen.NewRegistry(),
		cfg,
	)
	engine := New(pipeline, cacheClient)

	engine.TriggerAfterAttempt(context.Background(), 1, 1, "sess-pre-1", 1, 800)

	deadline := time.Now().Add(5 * time.Second)
	var correctOK, wrongOK bool
	for time.Now().Before(deadline) {
		_, correctOK, _ = cacheClient.GetPrecache(context.Background(), 1, "sess-pre-1", cache.BranchCorrect, 1)
		_, wrongOK, _ = cacheClient.GetPrecache(context.Background(), 1, "sess-pre-1", cache.BranchWrong, 1)
		if correctOK && wrongOK {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if !correctOK {
		t.Errorf("expected correct-branch precache entry to be written")
	}
	if !wrongOK {
		t.Errorf("expected wrong-branch precache entry to be written")
	}
}

func TestConsume_MissReturnsFalse(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("no local redis available: %v", err)
	}
	defer func() {
		rdb.FlushDB(context.Background())
		rdb.Close()
	}()

	cacheClient := cache.New(rdb)
	engine := &Engine{cache: cacheClient}

	payload, ok, err := engine.Consume(context.Background(), 1, "sess-pre-miss", 1, true)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if ok || payload != nil {
		t.Errorf("expected miss on empty cache, got ok=%v payload=%+v", ok, payload)
	}
}
