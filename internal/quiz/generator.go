// Package quiz builds multiple-choice quizzes and grades answers against them.
package quiz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pavelanni/classbot/internal/model"
)

// DefaultSize is the number of questions in every quiz.
const DefaultSize = 3

// Delimiter separates question blocks in generated quiz text.
const Delimiter = "---"

const maxOptions = 4

// TextGenerator produces raw quiz text for a subject.
type TextGenerator interface {
	GenerateQuizText(ctx context.Context, subject string, count int) (string, error)
}

// ErrUnparseable is returned when generated text does not yield a complete quiz.
var ErrUnparseable = errors.New("unparseable quiz text")

var (
	keyLineRegex     = regexp.MustCompile(`(?i)^[*_\s]*correct\s+answers?`)
	keyPairRegex     = regexp.MustCompile(`(?i)(\d+)\s*[-.:)=]?\s*([a-d])\b`)
	questionPrefix   = regexp.MustCompile(`(?i)^[*_\s]*(?:question\s*)?\d+\s*[.):]\s*`)
	optionLabelRegex = regexp.MustCompile(`(?i)^\(?([a-d])\s*[).:]\s*`)
)

// Generator turns a subject into a quiz, falling back to a fixed quiz when
// the text generator fails or returns something that cannot be parsed.
type Generator struct {
	text    TextGenerator
	timeout time.Duration
}

// NewGenerator creates a Generator. A nil text generator always yields the fallback quiz.
func NewGenerator(text TextGenerator, timeout time.Duration) *Generator {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Generator{text: text, timeout: timeout}
}

// Generate returns a quiz of count questions for subject. It never fails:
// generation problems are logged and answered with Fallback.
func (g *Generator) Generate(ctx context.Context, subject string, count int) model.Quiz {
	if count <= 0 {
		count = DefaultSize
	}
	if g.text == nil {
		return Fallback(subject, count)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	raw, err := g.text.GenerateQuizText(ctx, subject, count)
	if err != nil {
		slog.Warn("quiz generation failed, using fallback", "subject", subject, "error", err)
		return Fallback(subject, count)
	}

	questions, key, err := ParseQuizText(raw, count)
	if err != nil {
		slog.Warn("generated quiz rejected, using fallback", "subject", subject, "error", err)
		slog.Debug("rejected quiz text", "raw", raw)
		return Fallback(subject, count)
	}

	return model.Quiz{
		Subject:   subject,
		Questions: questions,
		AnswerKey: key,
	}
}

// ParseQuizText parses generated quiz text into count questions and their
// answer key. Question blocks are separated by Delimiter; in each block the
// first line is the question and the next lines (up to four) are options.
// Lines starting with "Correct answers" carry "1-A" style key pairs. A
// question without a key pair is an error rather than a guess.
func ParseQuizText(raw string, count int) ([]model.Question, []string, error) {
	keys := make(map[int]string)
	var body []string
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if keyLineRegex.MatchString(trimmed) {
			for _, m := range keyPairRegex.FindAllStringSubmatch(trimmed, -1) {
				n, err := strconv.Atoi(m[1])
				if err != nil {
					continue
				}
				if _, seen := keys[n]; !seen {
					keys[n] = strings.ToUpper(m[2])
				}
			}
			continue
		}
		body = append(body, trimmed)
	}

	var questions []model.Question
	for _, block := range strings.Split(strings.Join(body, "\n"), Delimiter) {
		if len(questions) == count {
			break
		}
		var lines []string
		for _, l := range strings.Split(block, "\n") {
			if l = strings.TrimSpace(l); l != "" {
				lines = append(lines, l)
			}
		}
		if len(lines) == 0 {
			continue
		}

		q := model.Question{
			Index: len(questions) + 1,
			Text:  questionPrefix.ReplaceAllString(lines[0], ""),
		}
		for _, opt := range lines[1:] {
			if len(q.Options) == maxOptions {
				break
			}
			q.Options = append(q.Options, optionLabelRegex.ReplaceAllString(opt, ""))
		}
		if len(q.Options) < 2 {
			return nil, nil, fmt.Errorf("%w: question %d has %d options", ErrUnparseable, q.Index, len(q.Options))
		}
		questions = append(questions, q)
	}

	if len(questions) < count {
		return nil, nil, fmt.Errorf("%w: got %d questions, want %d", ErrUnparseable, len(questions), count)
	}

	key := make([]string, count)
	for i, q := range questions {
		letter, ok := keys[q.Index]
		if !ok {
			return nil, nil, fmt.Errorf("%w: no correct answer for question %d", ErrUnparseable, q.Index)
		}
		if int(letter[0]-'A') >= len(q.Options) {
			return nil, nil, fmt.Errorf("%w: answer %s out of range for question %d", ErrUnparseable, letter, q.Index)
		}
		key[i] = letter
	}

	return questions, key, nil
}

var fallbackQuestions = []model.Question{
	{Text: "Which of these numbers is prime?", Options: []string{"4", "7", "9", "12"}},
	{Text: "At sea level, water boils at which temperature?", Options: []string{"50°C", "90°C", "100°C", "120°C"}},
	{Text: "Which planet is known as the Red Planet?", Options: []string{"Mars", "Venus", "Jupiter", "Saturn"}},
}

var fallbackKey = []string{"B", "C", "A"}

// Fallback returns the fixed quiz used when generation is unavailable.
// It has at most len(fallbackQuestions) questions.
func Fallback(subject string, count int) model.Quiz {
	if count <= 0 || count > len(fallbackQuestions) {
		count = len(fallbackQuestions)
	}
	questions := make([]model.Question, count)
	for i := range count {
		q := fallbackQuestions[i]
		questions[i] = model.Question{
			Index:   i + 1,
			Text:    q.Text,
			Options: append([]string(nil), q.Options...),
		}
	}
	return model.Quiz{
		Subject:   subject,
		Questions: questions,
		AnswerKey: append([]string(nil), fallbackKey[:count]...),
		Fallback:  true,
	}
}
