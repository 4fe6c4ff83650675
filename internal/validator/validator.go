// Package validator applies the full item acceptance pipeline to a
// generation candidate before it is persisted or shown to a learner.
//
// Grounded on internal/goal/validation.go's ValidationEngine.Validate: a
// struct wrapping a small set of collaborators, an ordered chain of
// numbered rule checks, each returning a ValidationResult, first failure
// wins.
package validator

import (
	"regexp"
	"strconv"
	"strings"

	"tutorcore/internal/arithmetic"
	"tutorcore/internal/store"
)

// Result reports the outcome of one Validate call. Rule is the 1-indexed
// rule number that rejected the candidate, 0 if it passed every rule.
type Result struct {
	IsValid bool
	Rule    int
	Reason  string
}

func pass() Result { return Result{IsValid: true} }

func fail(rule int, reason string) Result {
	return Result{IsValid: false, Rule: rule, Reason: reason}
}

// Candidate is the shape a generation step hands to the validator — the
// fields of store.Item that exist before a row has been persisted.
type Candidate struct {
	Content       string
	Type          store.ItemType
	Options       []string
	CorrectAnswer string
	Explanation   string
}

// Validator runs the 17-rule item acceptance pipeline.
type Validator struct {
	arith *arithmetic.Verifier
}

func New(arith *arithmetic.Verifier) *Validator {
	return &Validator{arith: arith}
}

// Validate runs every rule in order, returning the first failure.
func (v *Validator) Validate(c Candidate) Result {
	checks := []func(Candidate) Result{
		v.checkQuestionLength,
		v.checkAnswerNonEmpty,
		v.checkMCQChoicesUnique,
		v.checkMCQAnswerResolves,
		v.checkAnswerNotGivenAway,
		v.checkNoPlaceholderMarkers,
		v.checkNoVisualContextPhrases,
		v.checkAnswerLength,
		v.checkNoHTMLOrCode,
		v.checkMinimumOptionCount,
		v.checkLengthBias,
		v.checkNoBannedChoices,
		v.checkQuestionEnding,
		v.checkArithmeticVerification,
		v.checkExplanationAnswerCrossCheck,
		v.checkExplanationArithmeticSanity,
		v.checkNoVisualDiagramDescriptions,
		v.checkNoDrawGraphImperatives,
	}
	for _, check := range checks {
		if res := check(c); !res.IsValid {
			return res
		}
	}
	return pass()
}

// --- rule 1 ---

func (v *Validator) checkQuestionLength(c Candidate) Result {
	if len(strings.TrimSpace(c.Content)) < 10 {
		return fail(1, "question text shorter than 10 characters")
	}
	return pass()
}

// --- rule 2 ---

var emptyAnswerValues = map[string]bool{
	"": true, "?": true, "...": true, "n/a": true, "none": true, "null": true,
}

func (v *Validator) checkAnswerNonEmpty(c Candidate) Result {
	if emptyAnswerValues[strings.ToLower(strings.TrimSpace(c.CorrectAnswer))] {
		return fail(2, "answer is empty or a placeholder value")
	}
	return pass()
}

// --- rule 3 ---

var optionLetterPrefixRe = regexp.MustCompile(`^[a-dA-D][).:]?\s*`)

func stripLetterPrefix(opt string) string {
	return strings.ToLower(strings.TrimSpace(optionLetterPrefixRe.ReplaceAllString(opt, "")))
}

func (v *Validator) checkMCQChoicesUnique(c Candidate) Result {
	if c.Type != store.ItemMCQ || len(c.Options) == 0 {
		return pass()
	}
	seen := make(map[string]bool, len(c.Options))
	for _, opt := range c.Options {
		normalized := stripLetterPrefix(opt)
		if seen[normalized] {
			return fail(3, "duplicate mcq choice after letter-prefix strip")
		}
		seen[normalized] = true
	}
	return pass()
}

// --- rule 4 ---

// resolveMCQAnswer returns whether correctAnswer resolves to an option, by
// letter match (A-D) or by text match after letter-prefix stripping. A
// numeric index is not accepted as a way to name an option.
func resolveMCQAnswer(correctAnswer string, options []string) bool {
	trimmed := strings.TrimSpace(correctAnswer)
	if len(trimmed) == 1 {
		letter := strings.ToUpper(trimmed)[0]
		if letter >= 'A' && letter <= 'D' {
			idx := int(letter - 'A')
			return idx < len(options)
		}
	}
	target := strings.ToLower(trimmed)
	for _, opt := range options {
		if stripLetterPrefix(opt) == target {
			return true
		}
	}
	return false
}

func (v *Validator) checkMCQAnswerResolves(c Candidate) Result {
	if c.Type != store.ItemMCQ {
		return pass()
	}
	if !resolveMCQAnswer(c.CorrectAnswer, c.Options) {
		return fail(4, "mcq correct_answer does not resolve into options")
	}
	return pass()
}

// --- rule 5 ---

var (
	comparisonWordsRe    = regexp.MustCompile(`\b(more|less|greater|fewer|longer|shorter|taller|heavier|lighter)\b`)
	classificationWordsRe = regexp.MustCompile(`\b(classify|category|type of|kind of|is a|is an)\b`)
	whichWhatIdentifyRe  = regexp.MustCompile(`^(what|which)\b`)
	mathExprRe           = regexp.MustCompile(`\d\s*[+\-*/×÷]\s*\d`)
)

func (v *Validator) checkAnswerNotGivenAway(c Candidate) Result {
	answer := strings.ToLower(strings.TrimSpace(c.CorrectAnswer))
	if c.Type == store.ItemMCQ {
		answer = resolveForComparison(answer, c.Options)
	}
	if answer == "" {
		return pass()
	}
	question := strings.ToLower(c.Content)
	if !strings.Contains(question, answer) {
		return pass()
	}
	if mathExprRe.MatchString(question) ||
		comparisonWordsRe.MatchString(question) ||
		classificationWordsRe.MatchString(question) ||
		whichWhatIdentifyRe.MatchString(strings.TrimSpace(question)) {
		return pass()
	}
	return fail(5, "answer is given away in the question text")
}

// --- rule 6 ---

var placeholderMarkerRe = regexp.MustCompile(`(?i)\[shows|\[image|\[picture|\[display|\[insert`)

func (v *Validator) checkNoPlaceholderMarkers(c Candidate) Result {
	if placeholderMarkerRe.MatchString(c.Content) {
		return fail(6, "question contains an unrenderable placeholder marker")
	}
	return pass()
}

// --- rule 6b (visual-context phrases) ---

var visualContextPhraseRe = regexp.MustCompile(`(?i)which is longer|look at the picture|use the graph|the figure shows|look at the image|in the diagram below`)

func (v *Validator) checkNoVisualContextPhrases(c Candidate) Result {
	if visualContextPhraseRe.MatchString(c.Content) {
		return fail(6, "question depends on a visual the system cannot render")
	}
	return pass()
}

// --- rule 7 ---

func (v *Validator) checkAnswerLength(c Candidate) Result {
	if len(c.CorrectAnswer) > 200 {
		return fail(7, "answer longer than 200 characters")
	}
	return pass()
}

// --- rule 8 ---

var (
	htmlTagRe      = regexp.MustCompile(`(?i)<[a-z!/][^>]*>?`)
	eventHandlerRe = regexp.MustCompile(`(?i)\bon\w+\s*=`)
)

func (v *Validator) checkNoHTMLOrCode(c Candidate) Result {
	fields := make([]string, 0, len(c.Options)+3)
	fields = append(fields, c.Content, c.CorrectAnswer, c.Explanation)
	fields = append(fields, c.Options...)
	for _, f := range fields {
		if strings.Contains(f, "</") || strings.Contains(f, "```") ||
			htmlTagRe.MatchString(f) || eventHandlerRe.MatchString(f) {
			return fail(8, "content contains HTML, event-handler, or fenced-code artifacts")
		}
	}
	return pass()
}

// --- rule 9 ---

func (v *Validator) checkMinimumOptionCount(c Candidate) Result {
	if c.Type == store.ItemMCQ && len(c.Options) > 0 && len(c.Options) < 3 {
		return fail(9, "mcq has fewer than 3 options")
	}
	return pass()
}

// --- rule 10: length bias ---

func (v *Validator) checkLengthBias(c Candidate) Result {
	if c.Type != store.ItemMCQ || len(c.Options) < 2 {
		return pass()
	}
	correctIdx := -1
	trimmed := strings.TrimSpace(c.CorrectAnswer)
	if len(trimmed) == 1 {
		letter := strings.ToUpper(trimmed)[0]
		if letter >= 'A' && letter <= 'D' && int(letter-'A') < len(c.Options) {
			correctIdx = int(letter - 'A')
		}
	}
	if correctIdx == -1 {
		target := strings.ToLower(trimmed)
		for i, opt := range c.Options {
			if stripLetterPrefix(opt) == target {
				correctIdx = i
				break
			}
		}
	}
	if correctIdx == -1 {
		return pass()
	}

	correctLen := len(stripLetterPrefix(c.Options[correctIdx]))
	var distractorTotal, longestDistractor int
	count := 0
	for i, opt := range c.Options {
		if i == correctIdx {
			continue
		}
		l := len(stripLetterPrefix(opt))
		distractorTotal += l
		if l > longestDistractor {
			longestDistractor = l
		}
		count++
	}
	if count == 0 {
		return pass()
	}
	avgDistractor := float64(distractorTotal) / float64(count)
	if float64(correctLen) >= 3*avgDistractor && correctLen >= longestDistractor+15 {
		return fail(10, "correct mcq choice is disproportionately long relative to distractors")
	}
	return pass()
}

// --- rule 11 ---

var bannedChoices = map[string]bool{
	"all of the above": true, "none of the above": true, "none of these": true,
	"all of these": true,
}

func (v *Validator) checkNoBannedChoices(c Candidate) Result {
	if c.Type != store.ItemMCQ {
		return pass()
	}
	for _, opt := range c.Options {
		if bannedChoices[stripLetterPrefix(opt)] {
			return fail(11, "mcq option is a banned catch-all choice")
		}
	}
	return pass()
}

// --- rule 12 ---

var (
	fillBlankMarkerRe   = regexp.MustCompile(`__`)
	imperativeVerbRe    = regexp.MustCompile(`(?i)^(solve|calculate|find|compute|simplify|evaluate|write)\b`)
)

func (v *Validator) checkQuestionEnding(c Candidate) Result {
	trimmed := strings.TrimSpace(c.Content)
	if strings.HasSuffix(trimmed, "?") || strings.HasSuffix(trimmed, ":") || strings.HasSuffix(trimmed, ".") {
		return pass()
	}
	if fillBlankMarkerRe.MatchString(trimmed) {
		return pass()
	}
	if imperativeVerbRe.MatchString(trimmed) {
		return pass()
	}
	return fail(12, "question has no terminal punctuation, blank marker, or imperative opener")
}

// --- rule 13: arithmetic verification ---

func (v *Validator) checkArithmeticVerification(c Candidate) Result {
	if v.arith == nil {
		return pass()
	}
	outcome := v.arith.Verify(c.Content, c.CorrectAnswer, c.Options)
	if !outcome.Applicable {
		return pass()
	}
	if !outcome.Matches {
		return fail(13, "independently computed answer disagrees with the claimed correct answer")
	}
	return pass()
}

// --- rule 14: explanation vs answer cross-check ---

var explanationResultRe = regexp.MustCompile(`(?i)=\s*(-?\d+(?:\.\d+)?)|to get\s+(-?\d+(?:\.\d+)?)|which is\s+(-?\d+(?:\.\d+)?)`)

func (v *Validator) checkExplanationAnswerCrossCheck(c Candidate) Result {
	if c.Explanation == "" {
		return pass()
	}
	matches := explanationResultRe.FindAllStringSubmatch(c.Explanation, -1)
	if len(matches) == 0 {
		return pass()
	}
	last := matches[len(matches)-1]
	var resultStr string
	for _, g := range last[1:] {
		if g != "" {
			resultStr = g
			break
		}
	}
	claimed := c.CorrectAnswer
	if c.Type == store.ItemMCQ {
		claimed = resolveForComparison(claimed, c.Options)
	}
	if !numericStringsEqual(resultStr, claimed) {
		return fail(14, "explanation's final numeric result disagrees with the claimed answer")
	}
	return pass()
}

func resolveForComparison(correctAnswer string, options []string) string {
	trimmed := strings.TrimSpace(correctAnswer)
	if len(trimmed) == 1 {
		letter := strings.ToUpper(trimmed)[0]
		if letter >= 'A' && letter <= 'D' && int(letter-'A') < len(options) {
			return stripLetterPrefix(options[int(letter-'A')])
		}
	}
	return correctAnswer
}

var bareNumberRe = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

func numericStringsEqual(a, b string) bool {
	an := bareNumberRe.FindString(a)
	bn := bareNumberRe.FindString(b)
	if an == "" || bn == "" {
		return true // not both numeric: cross-check is a no-op
	}
	return an == bn
}

// --- rule 15: explanation arithmetic sanity ---

var arithExprRe = regexp.MustCompile(`(-?\d+(?:\.\d+)?)\s*([+\-*/])\s*(-?\d+(?:\.\d+)?)\s*=\s*(-?\d+(?:\.\d+)?)`)

func (v *Validator) checkExplanationArithmeticSanity(c Candidate) Result {
	if c.Explanation == "" {
		return pass()
	}
	for _, m := range arithExprRe.FindAllStringSubmatch(c.Explanation, -1) {
		a, op, b, claimed := mustFloat(m[1]), m[2], mustFloat(m[3]), mustFloat(m[4])
		var computed float64
		switch op {
		case "+":
			computed = a + b
		case "-":
			computed = a - b
		case "*":
			computed = a * b
		case "/":
			if b == 0 {
				continue
			}
			computed = a / b
		}
		if !floatsClose(computed, claimed) {
			return fail(15, "explanation contains an arithmetically incorrect step")
		}
	}
	return pass()
}

func mustFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

// --- rule 16 ---

var visualDiagramDescriptionRe = regexp.MustCompile(`(?i)open circle at|shading to the right|shading to the left|closed circle at|number line showing`)

func (v *Validator) checkNoVisualDiagramDescriptions(c Candidate) Result {
	if visualDiagramDescriptionRe.MatchString(c.Content) {
		return fail(16, "question is a text description of a visual diagram")
	}
	return pass()
}

// --- rule 17 ---

var drawGraphImperativeRe = regexp.MustCompile(`(?i)^(draw|graph|sketch|plot)\b`)

func (v *Validator) checkNoDrawGraphImperatives(c Candidate) Result {
	if drawGraphImperativeRe.MatchString(strings.TrimSpace(c.Content)) {
		return fail(17, "question demands a learner-generated visual")
	}
	return pass()
}

func floatsClose(a, b float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < 1e-9
}
