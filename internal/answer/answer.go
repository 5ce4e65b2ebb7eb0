// Package answer extracts multiple-choice answer letters from free-form chat replies.
package answer

import (
	"regexp"
	"strconv"
	"strings"
)

// Letters is the answer alphabet.
const Letters = "ABCD"

var (
	// A number, an optional separator, then one letter. The trailing group
	// captures a following letter so words like "2 cats" can be rejected.
	numberedRegex = regexp.MustCompile(`(?i)(\d+)\s*[-.):]?\s*([a-d])([a-z]?)`)

	bareRegex   = regexp.MustCompile(`(?i)^[a-d](?:[\s,]+[a-d]){1,4}$`)
	letterRegex = regexp.MustCompile(`(?i)[a-d]`)

	singleRegex = regexp.MustCompile(`(?i)^\(?([a-d])\)?$`)

	// The whole message is numbered answers and separators.
	submissionRegex = regexp.MustCompile(`(?i)^(?:\d+\s*[-.):]?\s*[a-d][\s,;]*)+$`)

	prefixRegex = regexp.MustCompile(`(?i)^(?:my\s+)?answers?\s*[:\-]?\s*`)
)

// Parse returns the answer letters in text, uppercased and in order of
// appearance. Numbered answers ("1A 2C", "1-A, 2-C") take priority over bare
// letters ("A C B", "a, c, b"). Bare letters need between two and five
// entries. An empty result means text is not an answer submission.
func Parse(text string) []string {
	if letters := parseNumbered(text); len(letters) > 0 {
		return letters
	}
	return parseBare(text)
}

// ParseSingle returns the single answer letter in text, for replies like "b" or "(C)".
func ParseSingle(text string) (string, bool) {
	m := singleRegex.FindStringSubmatch(clean(text))
	if m == nil {
		return "", false
	}
	return strings.ToUpper(m[1]), true
}

// LooksLikeAnswers reports whether the whole of text is an answer
// submission. It is stricter than Parse: "class 7B" yields a letter from
// Parse but is not a submission.
func LooksLikeAnswers(text string) bool {
	s := clean(text)
	return submissionRegex.MatchString(s) || bareRegex.MatchString(s)
}

// Numbered is an answer letter together with the question number it was given for.
type Numbered struct {
	Number int
	Letter string
}

// ParseNumbered returns the numbered answers in text ("1A", "2-c", "3) B")
// in order of appearance, ignoring any surrounding words.
func ParseNumbered(text string) []Numbered {
	var answers []Numbered
	for _, m := range numberedRegex.FindAllStringSubmatch(text, -1) {
		if m[3] != "" {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		answers = append(answers, Numbered{Number: n, Letter: strings.ToUpper(m[2])})
	}
	return answers
}

func parseNumbered(text string) []string {
	var letters []string
	for _, a := range ParseNumbered(text) {
		letters = append(letters, a.Letter)
	}
	return letters
}

func parseBare(text string) []string {
	s := clean(text)
	if !bareRegex.MatchString(s) {
		return []string{}
	}
	found := letterRegex.FindAllString(s, -1)
	letters := make([]string, len(found))
	for i, l := range found {
		letters[i] = strings.ToUpper(l)
	}
	return letters
}

func clean(text string) string {
	s := strings.TrimSpace(text)
	s = prefixRegex.ReplaceAllString(s, "")
	return strings.TrimRight(s, " .!")
}
