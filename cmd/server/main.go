package main

import (
	"fmt"
	"os"
	"time"

	"tutorcore/internal/api"
	"tutorcore/internal/arithmetic"
	"tutorcore/internal/cache"
	"tutorcore/internal/config"
	"tutorcore/internal/db"
	"tutorcore/internal/dedup"
	"tutorcore/internal/generation"
	"tutorcore/internal/generation/localgen"
	"tutorcore/internal/grader"
	"tutorcore/internal/llm"
	"tutorcore/internal/policy"
	"tutorcore/internal/precache"
	redisdb "tutorcore/internal/redis"
	"tutorcore/internal/skill"
	"tutorcore/internal/store"
	"tutorcore/internal/tools"
	"tutorcore/internal/validator"
)

func main() {
	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	if err := db.Init(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "DB init error: %v\n", err)
		os.Exit(1)
	}

	rdb := redisdb.NewClient(cfg)
	cacheClient := cache.New(rdb)
	repo := store.NewGormRepository(db.DB, cfg.Tutor)

	circuitBreaker := tools.NewCircuitBreaker(3, 5*time.Minute)
	llmManager := llm.NewManager(llm.DefaultConfig(), circuitBreaker)
	defer llmManager.Stop()

	llmCfg := llm.DefaultConfig()
	foregroundClient := llm.NewClient(llmManager, llm.PriorityForeground, llmCfg.ForegroundTimeout)
	foregroundAdapter := llm.NewAdapter(foregroundClient, cfg.LLM.URL, cfg.LLM.Name)

	precacheClient := llm.NewClient(llmManager, llm.PriorityPrecache, llmCfg.PrecacheTimeout)
	precacheAdapter := llm.NewAdapter(precacheClient, cfg.LLM.URL, cfg.LLM.Name)

	skillEst := skill.NewEstimator(cfg.Tutor)
	policyEng := policy.New(repo)
	itemValidator := validator.New(arithmetic.New())
	dedupReg := dedup.New(cacheClient, repo)
	localGenerators := localgen.NewRegistry()

	// Two pipeline instances sharing every collaborator except the LLM
	// adapter, so the foreground turn always submits through the
	// PriorityForeground lane and the dual pre-cache always submits
	// through PriorityPrecache (spec.md §5's two-tier priority design).
	foregroundPipeline := generation.NewPipeline(
		repo, foregroundAdapter, skillEst, policyEng, itemValidator, dedupReg, localGenerators, cfg.Tutor,
	)
	precachePipeline := generation.NewPipeline(
		repo, precacheAdapter, skillEst, policyEng, itemValidator, dedupReg, localGenerators, cfg.Tutor,
	)
	precacheEngine := precache.New(precachePipeline, cacheClient)

	localGrader := grader.NewLocal()
	llmGrader := grader.NewLLM(foregroundAdapter, localGrader)

	srv := api.NewServer(cfg, rdb, repo, foregroundPipeline, precacheEngine, localGrader, llmGrader, skillEst)
	r := srv.SetupRouter()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("Starting server on %s\n", addr)
	if err := r.Run(addr); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
