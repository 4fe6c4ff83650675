package grader

import (
	"testing"

	"tutorcore/internal/store"
)

func TestLocal_GradeMCQ_LetterAnswer(t *testing.T) {
	l := NewLocal()
	item := &store.Item{
		Type:          store.ItemMCQ,
		Options:       store.NewStringList([]string{"A) 6", "B) 7", "C) 8", "D) 9"}),
		CorrectAnswer: "B",
	}
	v := l.Grade(item, "7")
	if !v.IsCorrect {
		t.Errorf("expected learner answer '7' to resolve to option B and match")
	}
}

func TestLocal_GradeMCQ_WrongLetter(t *testing.T) {
	l := NewLocal()
	item := &store.Item{
		Type:          store.ItemMCQ,
		Options:       store.NewStringList([]string{"A) 6", "B) 7", "C) 8", "D) 9"}),
		CorrectAnswer: "B",
	}
	v := l.Grade(item, "C")
	if v.IsCorrect {
		t.Errorf("expected C to not match correct answer B")
	}
}

func TestLocal_GradeMCQ_BothGivenAsLetters(t *testing.T) {
	l := NewLocal()
	item := &store.Item{
		Type:          store.ItemMCQ,
		Options:       store.NewStringList([]string{"A) Paris", "B) Madrid", "C) Rome", "D) Berlin"}),
		CorrectAnswer: "b",
	}
	v := l.Grade(item, "B")
	if !v.IsCorrect {
		t.Errorf("expected case-insensitive letter match")
	}
}

func TestLocal_GradeShortAnswer_ExactMatch(t *testing.T) {
	l := NewLocal()
	item := &store.Item{Type: store.ItemShortAnswer, CorrectAnswer: "42"}
	v := l.Grade(item, "42")
	if !v.IsCorrect {
		t.Errorf("expected exact match to be correct")
	}
}

func TestLocal_GradeShortAnswer_NumericTolerance(t *testing.T) {
	l := NewLocal()
	item := &store.Item{Type: store.ItemShortAnswer, CorrectAnswer: "3.5"}
	v := l.Grade(item, "3.50")
	if !v.IsCorrect {
		t.Errorf("expected numeric comparison to treat 3.5 and 3.50 as equal")
	}
}

func TestLocal_GradeShortAnswer_CaseInsensitiveMatch(t *testing.T) {
	l := NewLocal()
	item := &store.Item{Type: store.ItemShortAnswer, CorrectAnswer: "Paris"}
	v := l.Grade(item, "paris")
	if !v.IsCorrect {
		t.Errorf("expected normalized case-insensitive match")
	}
}

func TestLocal_GradeShortAnswer_CloseButWrong(t *testing.T) {
	l := NewLocal()
	item := &store.Item{Type: store.ItemShortAnswer, CorrectAnswer: "nine"}
	v := l.Grade(item, "mine")
	if v.IsCorrect {
		t.Errorf("expected 'mine' to not be graded correct against 'nine'")
	}
	if !v.IsClose {
		t.Errorf("expected high character overlap to mark the answer as close")
	}
}

func TestLocal_GradeShortAnswer_CompletelyWrong(t *testing.T) {
	l := NewLocal()
	item := &store.Item{Type: store.ItemShortAnswer, CorrectAnswer: "photosynthesis"}
	v := l.Grade(item, "xyz")
	if v.IsCorrect || v.IsClose {
		t.Errorf("expected unrelated answer to be neither correct nor close, got %+v", v)
	}
}

func TestCharacterOverlapRatio_Symmetric(t *testing.T) {
	a, b := "kitten", "sitting"
	if characterOverlapRatio(a, b) <= 0 {
		t.Errorf("expected nonzero overlap for similar strings")
	}
	if characterOverlapRatio(a, b) != characterOverlapRatio(b, a) {
		t.Errorf("expected overlap ratio to be symmetric in its arguments")
	}
	if characterOverlapRatio("", b) != 0 {
		t.Errorf("expected zero overlap when one side is empty")
	}
}
