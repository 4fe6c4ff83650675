package generation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"tutorcore/internal/store"
	"tutorcore/internal/validator"
)

// placeholderOptionRe matches the temporary mcq options spec §4.6 step 5
// constructs when the LLM supplies only a correct_answer: "B) alt{n}a" etc.
var placeholderOptionRe = regexp.MustCompile(`(?i)^([A-D]\)\s*)alt\d*[abc]$`)

// replacePlaceholderDistractors swaps any placeholder mcq option for a
// plausible wrong answer derived from the correct answer: numeric answers
// get off-by-one (both directions) and doubled variants, text answers get a
// short paraphrase marker so the slot is never left templated verbatim.
func replacePlaceholderDistractors(c validator.Candidate) validator.Candidate {
	if c.Type != store.ItemMCQ || len(c.Options) == 0 {
		return c
	}

	correctValue := correctOptionText(c)
	numeric, isNumeric := parseLeadingNumber(correctValue)
	variants := numericDistractors(numeric, isNumeric)

	replaced := make([]string, len(c.Options))
	variantIdx := 0
	for i, opt := range c.Options {
		m := placeholderOptionRe.FindStringSubmatch(opt)
		if m == nil {
			replaced[i] = opt
			continue
		}
		prefix := m[1]
		var value string
		if isNumeric && variantIdx < len(variants) {
			value = variants[variantIdx]
			variantIdx++
		} else {
			value = textDistractor(correctValue, variantIdx)
			variantIdx++
		}
		replaced[i] = prefix + value
	}
	c.Options = replaced
	return c
}

func correctOptionText(c validator.Candidate) string {
	letter := strings.ToUpper(strings.TrimSpace(c.CorrectAnswer))
	if len(letter) == 1 && letter[0] >= 'A' && letter[0] <= 'D' {
		idx := int(letter[0] - 'A')
		if idx < len(c.Options) {
			return stripOptionPrefix(c.Options[idx])
		}
	}
	return c.CorrectAnswer
}

var optionPrefixRe = regexp.MustCompile(`^[A-Da-d]\)\s*`)

func stripOptionPrefix(opt string) string {
	return optionPrefixRe.ReplaceAllString(opt, "")
}

func parseLeadingNumber(s string) (float64, bool) {
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// numericDistractors produces value+1, value-1, and value*2 variants of a
// numeric correct answer, each guaranteed distinct from it.
func numericDistractors(value float64, ok bool) []string {
	if !ok {
		return nil
	}
	candidates := []float64{value + 1, value - 1, value * 2}
	out := make([]string, 0, len(candidates))
	seen := map[string]bool{formatNumber(value): true}
	for _, cand := range candidates {
		s := formatNumber(cand)
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// textDistractor builds a generic but non-templated wrong answer for a
// non-numeric correct answer.
func textDistractor(correct string, n int) string {
	words := strings.Fields(correct)
	if len(words) == 0 {
		return fmt.Sprintf("not %s", correct)
	}
	switch n % 3 {
	case 0:
		return strings.Join(reverseWords(words), " ")
	case 1:
		return "not " + correct
	default:
		return correct + " (incorrect)"
	}
}

func reverseWords(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[len(words)-1-i] = w
	}
	return out
}
