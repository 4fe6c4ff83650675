// Package localgen holds small deterministic item generators that skip
// the LLM entirely for a handful of concepts where a template produces a
// perfectly valid item every time.
//
// Grounded on internal/tools/registry.go's name-keyed Registry
// (Register/Get over a map[string]Tool), adapted from dispatching tool
// calls to dispatching concept-keyed item generators.
package localgen

import (
	"fmt"
	"sync"

	"tutorcore/internal/store"
	"tutorcore/internal/validator"
)

// Generator deterministically builds one candidate item for a concept at
// roughly the given difficulty. ok is false if this generator has nothing
// sensible to produce for the requested item type.
type Generator func(difficulty float64, itemType store.ItemType) (validator.Candidate, bool)

// Registry dispatches by concept name.
type Registry struct {
	mu         sync.RWMutex
	generators map[string]Generator
}

func NewRegistry() *Registry {
	r := &Registry{generators: make(map[string]Generator)}
	r.Register("clock reading", clockReading)
	r.Register("number line inequality", numberLineInequality)
	return r
}

func (r *Registry) Register(conceptName string, g Generator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generators[conceptName] = g
}

// Lookup returns the generator registered for conceptName, if any.
func (r *Registry) Lookup(conceptName string) (Generator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.generators[conceptName]
	return g, ok
}

// clockReading generates an "what time does the clock show" item. Higher
// difficulty biases toward five-minute increments rather than the hour.
func clockReading(difficulty float64, itemType store.ItemType) (validator.Candidate, bool) {
	hour := 1 + int(difficulty*11)%12
	if hour == 0 {
		hour = 12
	}
	minute := 0
	if difficulty > 0.4 {
		minute = (int(difficulty*100) % 12) * 5
	}
	content := fmt.Sprintf("A clock's hour hand points just past %d and its minute hand points to the mark for %d minutes. What time does the clock show?", hour, minute)
	answer := fmt.Sprintf("%d:%02d", hour, minute)

	if itemType != store.ItemMCQ {
		return validator.Candidate{
			Content:       content,
			Type:          store.ItemShortAnswer,
			CorrectAnswer: answer,
			Explanation:   fmt.Sprintf("The hour hand near %d and minute hand at %d minutes reads %s.", hour, minute, answer),
		}, true
	}

	altHour := hour%12 + 1
	options := []string{
		"A) " + answer,
		fmt.Sprintf("B) %d:%02d", altHour, minute),
		fmt.Sprintf("C) %d:%02d", hour, (minute+15)%60),
		fmt.Sprintf("D) %d:%02d", altHour, (minute+15)%60),
	}
	return validator.Candidate{
		Content:       content,
		Type:          store.ItemMCQ,
		Options:       options,
		CorrectAnswer: "A",
		Explanation:   fmt.Sprintf("The hour hand near %d and minute hand at %d minutes reads %s.", hour, minute, answer),
	}, true
}

// numberLineInequality generates a "which number line shows x <op> n"
// style short-answer item describing the open/closed endpoint verbally,
// since this generator never draws anything.
func numberLineInequality(difficulty float64, itemType store.ItemType) (validator.Candidate, bool) {
	if itemType == store.ItemMCQ {
		return validator.Candidate{}, false
	}
	n := 1 + int(difficulty*20)
	op := "greater than"
	symbol := ">"
	if int(difficulty*10)%2 == 0 {
		op = "less than"
		symbol = "<"
	}
	content := fmt.Sprintf("Write the inequality in symbols: x is %s %d.", op, n)
	answer := fmt.Sprintf("x %s %d", symbol, n)
	return validator.Candidate{
		Content:       content,
		Type:          store.ItemShortAnswer,
		CorrectAnswer: answer,
		Explanation:   fmt.Sprintf("\"%s %d\" translates directly to x %s %d.", op, n, symbol, n),
	}, true
}
