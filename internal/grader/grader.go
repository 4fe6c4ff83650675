// Package grader scores a learner's answer against an item's correct
// answer: a local normalize-and-compare grader for mcq/short_answer, and
// an LLM-fallback grader for problem-type items with partial credit.
//
// Grounded on the teacher's normalization-table style (strip/lowercase
// passes ahead of comparison, as in internal/api/query_cleaner.go) for
// the local grader, and internal/goal/llm_adapter.go's GenerateJSON for
// the LLM grader's structured-verdict request.
package grader

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"tutorcore/internal/llm"
	"tutorcore/internal/store"
)

const numericTolerance = 1e-9

// Verdict is the result of grading one submitted answer.
type Verdict struct {
	IsCorrect    bool
	IsClose      bool
	PartialScore *float64
	Feedback     string
}

// Local grades mcq and short_answer items without calling the LLM.
type Local struct{}

func NewLocal() *Local {
	return &Local{}
}

var keepCharsRe = regexp.MustCompile(`[^a-z0-9/%$.\-]`)

// normalize lowercases, trims, and strips everything but alphanumerics
// and /, %, $, ., -.
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return keepCharsRe.ReplaceAllString(s, "")
}

// Grade scores a learner's answer to an mcq or short_answer item.
func (l *Local) Grade(item *store.Item, answerGiven string) Verdict {
	if item.Type == store.ItemMCQ {
		return l.gradeMCQ(item, answerGiven)
	}
	return l.gradeShortAnswer(item, answerGiven)
}

func (l *Local) gradeMCQ(item *store.Item, answerGiven string) Verdict {
	options := item.Options.Data
	correctLetter := resolveToLetter(item.CorrectAnswer, options)
	givenLetter := resolveToLetter(answerGiven, options)

	if correctLetter != "" && givenLetter != "" {
		return Verdict{IsCorrect: correctLetter == givenLetter}
	}
	// Either side never resolved to a letter: fall back to normalized text
	// comparison against whichever options they each map to.
	correctText := normalize(resolveText(item.CorrectAnswer, options))
	givenText := normalize(resolveText(answerGiven, options))
	return Verdict{IsCorrect: correctText != "" && correctText == givenText}
}

func (l *Local) gradeShortAnswer(item *store.Item, answerGiven string) Verdict {
	correct := normalize(item.CorrectAnswer)
	given := normalize(answerGiven)

	if correct == given {
		return Verdict{IsCorrect: true}
	}

	if cn, cok := parseNumeric(correct); cok {
		if gn, gok := parseNumeric(given); gok {
			return Verdict{IsCorrect: floatsEqual(cn, gn)}
		}
	}

	if correct != "" && given != "" {
		shorter, longer := correct, given
		if len(longer) < len(shorter) {
			shorter, longer = longer, shorter
		}
		if strings.Contains(longer, shorter) {
			ratio := float64(len(shorter)) / float64(len(longer))
			if ratio > 0.8 {
				return Verdict{IsCorrect: true}
			}
		}
	}

	overlap := characterOverlapRatio(correct, given)
	return Verdict{IsCorrect: false, IsClose: overlap > 0.70}
}

var optionLetterPrefixRe = regexp.MustCompile(`^[a-dA-D][).:]?\s*`)

func stripLetterPrefix(opt string) string {
	return strings.ToLower(strings.TrimSpace(optionLetterPrefixRe.ReplaceAllString(opt, "")))
}

// resolveToLetter maps answer to an option letter A-D, by direct letter
// match or by text match against the option list. Returns "" if it
// cannot be resolved.
func resolveToLetter(answer string, options []string) string {
	trimmed := strings.TrimSpace(answer)
	if len(trimmed) == 1 {
		letter := strings.ToUpper(trimmed)
		if letter[0] >= 'A' && letter[0] <= 'D' && int(letter[0]-'A') < len(options) {
			return letter
		}
	}
	target := strings.ToLower(trimmed)
	for i, opt := range options {
		if stripLetterPrefix(opt) == target {
			return string(rune('A' + i))
		}
	}
	return ""
}

// resolveText maps answer (letter or text) to its option text.
func resolveText(answer string, options []string) string {
	trimmed := strings.TrimSpace(answer)
	if len(trimmed) == 1 {
		letter := strings.ToUpper(trimmed)[0]
		if letter >= 'A' && letter <= 'D' && int(letter-'A') < len(options) {
			return stripLetterPrefix(options[int(letter-'A')])
		}
	}
	return trimmed
}

func parseNumeric(s string) (float64, bool) {
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func floatsEqual(a, b float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < numericTolerance
}

// characterOverlapRatio is a crude similarity signal: the fraction of the
// shorter string's characters (by multiset) also present in the longer one.
func characterOverlapRatio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	shorter, longer := a, b
	if len(longer) < len(shorter) {
		shorter, longer = longer, shorter
	}
	longerCounts := make(map[rune]int)
	for _, r := range longer {
		longerCounts[r]++
	}
	matched := 0
	for _, r := range shorter {
		if longerCounts[r] > 0 {
			longerCounts[r]--
			matched++
		}
	}
	return float64(matched) / float64(len(shorter))
}

// LLM grades problem-type items, which need partial credit and written
// feedback rather than a binary local comparison.
type LLM struct {
	adapter *llm.Adapter
	local   *Local
}

func NewLLM(adapter *llm.Adapter, local *Local) *LLM {
	return &LLM{adapter: adapter, local: local}
}

const gradingTemperature = 0.3

// Grade requests a JSON verdict from the LLM; on any failure it degrades
// to the local exact-match grader rather than surfacing an error.
func (g *LLM) Grade(ctx context.Context, item *store.Item, answerGiven string) Verdict {
	exactMatch := Verdict{IsCorrect: normalize(item.CorrectAnswer) == normalize(answerGiven)}
	prompt := buildGradingPrompt(item, answerGiven)
	text, _, _, err := g.adapter.Chat(ctx, prompt, gradingTemperature, false)
	if err != nil {
		return exactMatch
	}

	obj, err := llm.ParseObject(text)
	if err != nil {
		return exactMatch
	}

	isCorrect, _ := obj["is_correct"].(bool)
	feedback, _ := obj["feedback"].(string)
	verdict := Verdict{IsCorrect: isCorrect, Feedback: feedback}

	if raw, ok := obj["partial_score"]; ok {
		if score, ok := raw.(float64); ok {
			clamped := clamp(score, 0, 1)
			verdict.PartialScore = &clamped
		}
	}
	if verdict.Feedback == "" {
		verdict.Feedback = "Keep going!"
	}
	return verdict
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func buildGradingPrompt(item *store.Item, answerGiven string) string {
	var b strings.Builder
	b.WriteString("Grade the learner's answer to this problem.\n\n")
	b.WriteString("Question: ")
	b.WriteString(item.Content)
	b.WriteString("\nExpected answer: ")
	b.WriteString(item.CorrectAnswer)
	b.WriteString("\nLearner answer: ")
	b.WriteString(answerGiven)
	b.WriteString("\n\nRespond with a single JSON object: ")
	b.WriteString(`{"is_correct": bool, "partial_score": number between 0 and 1, "feedback": short string}.`)
	return b.String()
}
