// Package dedup implements the three exclusion sets a generation
// candidate's question text is checked against: session (every question
// shown this session, including the current unanswered one), lifetime-
// correct (every question the learner has ever answered correctly), and
// prompt hint (the union of the two, advisory-only, handed to the LLM as
// "avoid repeating these").
package dedup

import (
	"context"

	"tutorcore/internal/cache"
	"tutorcore/internal/store"
)

// Registry checks candidate question text against the session and
// lifetime-correct exclusion sets, and builds the prompt-hint list.
type Registry struct {
	cache *cache.Client
	repo  store.Repository
}

func New(cache *cache.Client, repo store.Repository) *Registry {
	return &Registry{cache: cache, repo: repo}
}

// RecordSeen adds questionText to the current session's exclusion set.
// Callers must record the currently displayed item (even before it is
// answered) to avoid it being regenerated as "next".
func (r *Registry) RecordSeen(ctx context.Context, sessionID, questionText string) error {
	return r.cache.AddSeen(ctx, sessionID, store.NormalizeText(questionText))
}

// IsExcluded is the hard post-generation rejection check: true if
// questionText matches something already shown this session or something
// the learner has previously answered correctly, in any session.
func (r *Registry) IsExcluded(ctx context.Context, learnerID uint, sessionID, questionText string) (bool, error) {
	normalized := store.NormalizeText(questionText)

	seen, err := r.cache.HasSeen(ctx, sessionID, normalized)
	if err != nil {
		return false, err
	}
	if seen {
		return true, nil
	}

	correct, err := r.repo.AttemptCorrectTexts(ctx, learnerID)
	if err != nil {
		return false, err
	}
	_, isCorrect := correct[normalized]
	return isCorrect, nil
}

// PromptHints returns the union of the session and lifetime-correct sets,
// for advisory inclusion in the LLM prompt ("avoid repeating these").
// Unlike IsExcluded, this is never used to reject a candidate.
func (r *Registry) PromptHints(ctx context.Context, learnerID uint, sessionID string) ([]string, error) {
	seen, err := r.cache.SeenTexts(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	correct, err := r.repo.AttemptCorrectTexts(ctx, learnerID)
	if err != nil {
		return nil, err
	}

	union := make(map[string]struct{}, len(seen)+len(correct))
	for _, s := range seen {
		union[s] = struct{}{}
	}
	for c := range correct {
		union[c] = struct{}{}
	}

	hints := make([]string, 0, len(union))
	for h := range union {
		hints = append(hints, h)
	}
	return hints, nil
}
