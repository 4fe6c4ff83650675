// Package arithmetic independently recomputes the answer to a
// natural-language math question so the validator can reject items whose
// declared correct_answer disagrees with the text. It never trusts the
// LLM's own arithmetic.
//
// Grounded on internal/utils/sexpr.go's recovery style: normalize input
// first, then walk an ordered list of pattern recognizers, each a
// regexp-driven extractor with a lenient fallback, first match wins.
package arithmetic

import (
	"regexp"
	"strconv"
	"strings"
)

const floatTolerance = 1e-9

// Verifier recomputes answers to recognized arithmetic questions.
type Verifier struct{}

func New() *Verifier {
	return &Verifier{}
}

// Outcome reports whether a question was recognized as arithmetic and, if
// so, whether the independently computed value agrees with the claimed one.
type Outcome struct {
	Applicable bool
	Matches    bool
	Computed   float64
	Claimed    float64
}

// Verify recomputes questionText's answer and compares it against
// correctAnswer. If correctAnswer is a single letter A-D, options resolves
// it to text first (mcq letter grading). Outcome.Applicable is false when
// no recognized pattern matches the question — callers must treat that as
// inconclusive, not as a rejection.
func (v *Verifier) Verify(questionText, correctAnswer string, options []string) Outcome {
	computed, ok := v.Evaluate(questionText)
	if !ok {
		return Outcome{Applicable: false}
	}

	resolved := resolveLetterAnswer(correctAnswer, options)
	claimed, ok := parseNumber(resolved)
	if !ok {
		return Outcome{Applicable: false}
	}

	return Outcome{
		Applicable: true,
		Matches:    numbersEqual(computed, claimed),
		Computed:   computed,
		Claimed:    claimed,
	}
}

// Evaluate independently computes the numeric answer to questionText, or
// reports not-applicable if no recognized pattern matches.
func (v *Verifier) Evaluate(questionText string) (float64, bool) {
	text := normalize(questionText)
	for _, recognize := range recognizers {
		if val, ok := recognize(text); ok {
			return val, true
		}
	}
	return 0, false
}

type recognizer func(text string) (float64, bool)

// recognizers is tried in order, first match wins, mirroring spec §4.4's
// recognized-pattern ordering: direct expression, missing-number equation,
// phrased operation, reversed phrasing, multi-step chain, word problem.
var recognizers = []recognizer{
	recognizeDirectExpression,
	recognizeMissingNumberEquation,
	recognizePhrasedOperation,
	recognizeReversedPhrasing,
	recognizeMultiStepChain,
	recognizeWordProblem,
}

// --- normalization ---

var (
	unicodeDashRe = regexp.MustCompile(`[\x{2012}-\x{2015}\x{2212}]`)
)

func normalize(text string) string {
	text = strings.ToLower(text)
	text = strings.ReplaceAll(text, "×", "*")
	text = strings.ReplaceAll(text, "÷", "/")
	text = unicodeDashRe.ReplaceAllString(text, "-")
	return text
}

// --- direct expression: "a op b (op c ...)" with standard precedence ---

var directExprRe = regexp.MustCompile(`-?\d+(?:\.\d+)?\s*[+\-*/]\s*-?\d+(?:\.\d+)?(?:\s*[+\-*/]\s*-?\d+(?:\.\d+)?)*`)

func recognizeDirectExpression(text string) (float64, bool) {
	expr := directExprRe.FindString(text)
	if expr == "" {
		return 0, false
	}
	return evalExpression(expr)
}

var exprTokenRe = regexp.MustCompile(`(-?\d+(?:\.\d+)?)|([+\-*/])`)

// evalExpression evaluates a flat chain of numbers and +-*/ operators with
// standard precedence (no parentheses in recognized text): a first pass
// folds * and / left to right, a second pass folds the remaining + and -.
func evalExpression(expr string) (float64, bool) {
	matches := exprTokenRe.FindAllStringSubmatch(expr, -1)
	if len(matches) == 0 {
		return 0, false
	}

	var nums []float64
	var ops []string
	expectNumber := true
	for _, m := range matches {
		if m[1] != "" {
			n, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				return 0, false
			}
			nums = append(nums, n)
			expectNumber = false
		} else {
			if expectNumber {
				return 0, false
			}
			ops = append(ops, m[2])
			expectNumber = true
		}
	}
	if expectNumber || len(nums) != len(ops)+1 {
		return 0, false
	}

	// pass 1: fold * and /
	foldedNums := []float64{nums[0]}
	var foldedOps []string
	for i, op := range ops {
		rhs := nums[i+1]
		switch op {
		case "*":
			foldedNums[len(foldedNums)-1] *= rhs
		case "/":
			if rhs == 0 {
				return 0, false
			}
			foldedNums[len(foldedNums)-1] /= rhs
		default:
			foldedNums = append(foldedNums, rhs)
			foldedOps = append(foldedOps, op)
		}
	}

	// pass 2: fold + and -
	result := foldedNums[0]
	for i, op := range foldedOps {
		rhs := foldedNums[i+1]
		if op == "+" {
			result += rhs
		} else {
			result -= rhs
		}
	}
	return result, true
}

// --- missing-number equations: "a + __ = c", "__ + b = c", symmetric ---

var (
	blankAfterRe  = regexp.MustCompile(`(-?\d+(?:\.\d+)?)\s*([+\-*/])\s*(?:_+|\?)\s*=\s*(-?\d+(?:\.\d+)?)`)
	blankBeforeRe = regexp.MustCompile(`(?:_+|\?)\s*([+\-*/])\s*(-?\d+(?:\.\d+)?)\s*=\s*(-?\d+(?:\.\d+)?)`)
)

func recognizeMissingNumberEquation(text string) (float64, bool) {
	if m := blankAfterRe.FindStringSubmatch(text); m != nil {
		a, op, c := mustFloat(m[1]), m[2], mustFloat(m[3])
		switch op {
		case "+":
			return c - a, true
		case "-":
			return a - c, true
		case "*":
			if a == 0 {
				return 0, false
			}
			return c / a, true
		case "/":
			if c == 0 {
				return 0, false
			}
			return a / c, true
		}
	}
	if m := blankBeforeRe.FindStringSubmatch(text); m != nil {
		op, b, c := m[1], mustFloat(m[2]), mustFloat(m[3])
		switch op {
		case "+":
			return c - b, true
		case "-":
			return c + b, true
		case "*":
			if b == 0 {
				return 0, false
			}
			return c / b, true
		case "/":
			return b * c, true
		}
	}
	return 0, false
}

// --- phrased operations ---

var (
	phrasedBinaryRe = regexp.MustCompile(`(-?\d+(?:\.\d+)?)\s+(plus|minus|times|divided by)\s+(-?\d+(?:\.\d+)?)`)
	sumOfRe         = regexp.MustCompile(`sum of (-?\d+(?:\.\d+)?(?:\s*,\s*-?\d+(?:\.\d+)?)*(?:\s*,?\s*and\s+-?\d+(?:\.\d+)?)?)`)
	productOfRe     = regexp.MustCompile(`product of (-?\d+(?:\.\d+)?)\s*(?:,|and)\s*(-?\d+(?:\.\d+)?)`)
	numberListRe    = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
)

func recognizePhrasedOperation(text string) (float64, bool) {
	if m := phrasedBinaryRe.FindStringSubmatch(text); m != nil {
		a, b := mustFloat(m[1]), mustFloat(m[3])
		switch m[2] {
		case "plus":
			return a + b, true
		case "minus":
			return a - b, true
		case "times":
			return a * b, true
		case "divided by":
			if b == 0 {
				return 0, false
			}
			return a / b, true
		}
	}
	if m := productOfRe.FindStringSubmatch(text); m != nil {
		return mustFloat(m[1]) * mustFloat(m[2]), true
	}
	if m := sumOfRe.FindStringSubmatch(text); m != nil {
		nums := numberListRe.FindAllString(m[1], -1)
		if len(nums) < 2 {
			return 0, false
		}
		sum := 0.0
		for _, n := range nums {
			sum += mustFloat(n)
		}
		return sum, true
	}
	return 0, false
}

// --- reversed phrasings: "N less than M", "subtract N from M", "N more than M" ---

var (
	lessThanRe   = regexp.MustCompile(`(-?\d+(?:\.\d+)?)\s+less than\s+(-?\d+(?:\.\d+)?)`)
	subtractFromRe = regexp.MustCompile(`subtract\s+(-?\d+(?:\.\d+)?)\s+from\s+(-?\d+(?:\.\d+)?)`)
	moreThanRe   = regexp.MustCompile(`(-?\d+(?:\.\d+)?)\s+more than\s+(-?\d+(?:\.\d+)?)`)
	nTimesMRe    = regexp.MustCompile(`(-?\d+(?:\.\d+)?)\s+times\s+(-?\d+(?:\.\d+)?)`)
)

func recognizeReversedPhrasing(text string) (float64, bool) {
	if m := lessThanRe.FindStringSubmatch(text); m != nil {
		return mustFloat(m[2]) - mustFloat(m[1]), true
	}
	if m := subtractFromRe.FindStringSubmatch(text); m != nil {
		return mustFloat(m[2]) - mustFloat(m[1]), true
	}
	if m := moreThanRe.FindStringSubmatch(text); m != nil {
		return mustFloat(m[1]) + mustFloat(m[2]), true
	}
	if m := nTimesMRe.FindStringSubmatch(text); m != nil {
		return mustFloat(m[1]) * mustFloat(m[2]), true
	}
	return 0, false
}

// --- multi-step chains: "multiplying a by b then dividing by c" ---

var multiplyThenDivideRe = regexp.MustCompile(`multiply(?:ing)?\s+(-?\d+(?:\.\d+)?)\s+by\s+(-?\d+(?:\.\d+)?)\s+then\s+divid(?:e|ing)\s+by\s+(-?\d+(?:\.\d+)?)`)

func recognizeMultiStepChain(text string) (float64, bool) {
	if m := multiplyThenDivideRe.FindStringSubmatch(text); m != nil {
		c := mustFloat(m[3])
		if c == 0 {
			return 0, false
		}
		return (mustFloat(m[1]) * mustFloat(m[2])) / c, true
	}
	return 0, false
}

// --- word problems: "has N ... verb M" ---

var (
	subtractVerbs = []string{"eats", "gives", "loses", "spends", "uses", "breaks", "drops",
		"sells", "throws away", "gives away", "donates", "discards", "removes"}
	addVerbs = []string{"gets", "finds", "bought", "buys", "received", "receives", "adds"}

	hasNRe = regexp.MustCompile(`has\s+(-?\d+(?:\.\d+)?)`)
	thereAreRe = regexp.MustCompile(`there (?:are|were)\s+(-?\d+(?:\.\d+)?)`)
	flyAwayVerbs = []string{"fly away", "flew away", "left", "went home", "walk away", "walked away"}
)

func recognizeWordProblem(text string) (float64, bool) {
	if m := hasNRe.FindStringSubmatch(text); m != nil {
		n := mustFloat(m[1])
		rest := text[strings.Index(text, m[0])+len(m[0]):]
		if verbNum, ok := findVerbFollowedByNumber(rest, subtractVerbs); ok {
			return n - verbNum, true
		}
		if verbNum, ok := findVerbFollowedByNumber(rest, addVerbs); ok {
			return n + verbNum, true
		}
	}
	if m := thereAreRe.FindStringSubmatch(text); m != nil {
		n := mustFloat(m[1])
		rest := text[strings.Index(text, m[0])+len(m[0]):]
		if verbNum, ok := findVerbFollowedByNumber(rest, flyAwayVerbs); ok {
			return n - verbNum, true
		}
	}
	return 0, false
}

func findVerbFollowedByNumber(text string, verbs []string) (float64, bool) {
	for _, verb := range verbs {
		re := regexp.MustCompile(`(-?\d+(?:\.\d+)?)\s+` + regexp.QuoteMeta(verb) + `|` + regexp.QuoteMeta(verb) + `\s+(-?\d+(?:\.\d+)?)`)
		if m := re.FindStringSubmatch(text); m != nil {
			if m[1] != "" {
				return mustFloat(m[1]), true
			}
			if m[2] != "" {
				return mustFloat(m[2]), true
			}
		}
	}
	return 0, false
}

// --- answer parsing & comparison ---

var letterAnswerRe = regexp.MustCompile(`^[a-dA-D]$`)
var optionLetterPrefixRe = regexp.MustCompile(`^[a-dA-D][).:]?\s*`)

// resolveLetterAnswer maps a single-letter mcq answer through options to
// its text, stripping the option's own letter prefix.
func resolveLetterAnswer(correctAnswer string, options []string) string {
	trimmed := strings.TrimSpace(correctAnswer)
	if !letterAnswerRe.MatchString(trimmed) || len(options) == 0 {
		return correctAnswer
	}
	idx := int(strings.ToUpper(trimmed)[0] - 'A')
	if idx < 0 || idx >= len(options) {
		return correctAnswer
	}
	return optionLetterPrefixRe.ReplaceAllString(options[idx], "")
}

var numberRe = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

func parseNumber(s string) (float64, bool) {
	m := numberRe.FindString(strings.ReplaceAll(s, ",", ""))
	if m == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func mustFloat(s string) float64 {
	n, _ := strconv.ParseFloat(s, 64)
	return n
}

// numbersEqual applies spec §4.4's tolerance rule: exact when both values
// are integral, else within 1e-9.
func numbersEqual(a, b float64) bool {
	if a == float64(int64(a)) && b == float64(int64(b)) {
		return a == b
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < floatTolerance
}
