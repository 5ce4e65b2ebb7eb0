package quiz

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pavelanni/classbot/internal/model"
)

// ErrQuizComplete is returned by GradeNext when every question already has an answer.
var ErrQuizComplete = errors.New("quiz already complete")

// FormatError reports an answer submission that does not match the quiz.
type FormatError struct {
	Expected int
	Got      int
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("expected %d answers, got %d", e.Expected, e.Got)
}

// GradeAll scores a complete answer set. The number of answers must equal the
// number of questions; otherwise nothing is graded and a *FormatError is returned.
func GradeAll(sess *model.QuizSession, answers []string) (model.GradingResult, error) {
	total := len(sess.AnswerKey)
	if len(answers) != total {
		return model.GradingResult{}, &FormatError{Expected: total, Got: len(answers)}
	}

	checks := make([]model.AnswerCheck, total)
	for i, expected := range sess.AnswerKey {
		checks[i] = check(i, answers[i], expected)
	}
	return score(sess.Subject, checks), nil
}

// GradeNext records one answer for the next unanswered question and returns
// its check. Once the last question is answered the aggregate result is
// returned as well.
func GradeNext(sess *model.QuizSession, given string) (model.AnswerCheck, *model.GradingResult, error) {
	if sess.Complete() {
		return model.AnswerCheck{}, nil, ErrQuizComplete
	}

	i := len(sess.AnswersGiven)
	sess.AnswersGiven = append(sess.AnswersGiven, strings.ToUpper(given))
	c := check(i, given, sess.AnswerKey[i])

	if !sess.Complete() {
		return c, nil, nil
	}

	checks := make([]model.AnswerCheck, len(sess.AnswerKey))
	for j, expected := range sess.AnswerKey {
		checks[j] = check(j, sess.AnswersGiven[j], expected)
	}
	result := score(sess.Subject, checks)
	return c, &result, nil
}

func check(i int, given, expected string) model.AnswerCheck {
	given = strings.ToUpper(strings.TrimSpace(given))
	expected = strings.ToUpper(strings.TrimSpace(expected))
	return model.AnswerCheck{
		Index:    i + 1,
		Given:    given,
		Expected: expected,
		Correct:  given == expected,
	}
}

func score(subject string, checks []model.AnswerCheck) model.GradingResult {
	correct := 0
	for _, c := range checks {
		if c.Correct {
			correct++
		}
	}
	return model.GradingResult{
		Subject:    subject,
		Checks:     checks,
		Correct:    correct,
		Total:      len(checks),
		Percentage: model.Percentage(correct, len(checks)),
	}
}
