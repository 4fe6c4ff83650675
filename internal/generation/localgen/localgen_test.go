package localgen

import (
	"testing"

	"tutorcore/internal/store"
)

func TestRegistry_LookupKnownAndUnknown(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Lookup("clock reading"); !ok {
		t.Errorf("expected clock reading to be registered")
	}
	if _, ok := r.Lookup("number line inequality"); !ok {
		t.Errorf("expected number line inequality to be registered")
	}
	if _, ok := r.Lookup("long division"); ok {
		t.Errorf("expected no generator for an unregistered concept")
	}
}

func TestClockReading_MCQHasFourDistinctOptionsAndLetterAnswer(t *testing.T) {
	c, ok := clockReading(0.5, store.ItemMCQ)
	if !ok {
		t.Fatalf("expected clockReading to produce an mcq candidate")
	}
	if len(c.Options) != 4 {
		t.Fatalf("expected 4 options, got %d", len(c.Options))
	}
	seen := map[string]bool{}
	for _, opt := range c.Options {
		if seen[opt] {
			t.Errorf("expected pairwise-distinct options, got duplicate %q", opt)
		}
		seen[opt] = true
	}
	if c.CorrectAnswer != "A" {
		t.Errorf("expected correct answer letter A, got %q", c.CorrectAnswer)
	}
}

func TestClockReading_ShortAnswerHasNoOptions(t *testing.T) {
	c, ok := clockReading(0.2, store.ItemShortAnswer)
	if !ok {
		t.Fatalf("expected clockReading to produce a short_answer candidate")
	}
	if len(c.Options) != 0 {
		t.Errorf("expected no options for a short_answer candidate, got %v", c.Options)
	}
	if c.CorrectAnswer == "" {
		t.Errorf("expected a non-empty correct answer")
	}
}

func TestNumberLineInequality_RejectsMCQ(t *testing.T) {
	if _, ok := numberLineInequality(0.5, store.ItemMCQ); ok {
		t.Errorf("expected numberLineInequality to decline mcq item type")
	}
}

func TestNumberLineInequality_ProducesSymbolicAnswer(t *testing.T) {
	c, ok := numberLineInequality(0.3, store.ItemShortAnswer)
	if !ok {
		t.Fatalf("expected numberLineInequality to produce a candidate")
	}
	if c.CorrectAnswer == "" || c.Content == "" {
		t.Errorf("expected non-empty content and answer, got %+v", c)
	}
}
