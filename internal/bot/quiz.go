package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/pavelanni/classbot/internal/answer"
	appI18n "github.com/pavelanni/classbot/internal/i18n"
	"github.com/pavelanni/classbot/internal/model"
	"github.com/pavelanni/classbot/internal/quiz"
	"github.com/pavelanni/classbot/internal/session"
)

var subjectRegex = regexp.MustCompile(`(?i)\b(?:quiz|test|practice|questions?)\b(?:\s+me)?(?:\s+(?:on|about|in|for))?\s+(.+)$`)

// quizSubject returns the subject of a quiz request, or "" if none is given.
func quizSubject(text string) string {
	m := subjectRegex.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.Trim(m[1], " .!?\"'")
}

func (b *Bot) handleQuizRequest(ctx context.Context, owner, text string) string {
	subject := quizSubject(text)
	if subject == "" {
		return appI18n.T(ctx, "QuizSubjectMissing")
	}

	q := b.quizzes.Generate(ctx, subject, b.config.QuizSize)
	replaced := b.sessions.Active(owner)
	sess := b.sessions.Create(owner, q)

	var sb strings.Builder
	if replaced {
		sb.WriteString(appI18n.T(ctx, "QuizReplaced") + "\n")
	}
	introID := "QuizIntro"
	if b.config.GradingMode == model.GradingIncremental {
		introID = "QuizIntroIncremental"
	}
	sb.WriteString(appI18n.Tpd(ctx, introID, len(sess.Questions), map[string]any{"Subject": sess.Subject}))
	if q.Fallback {
		sb.WriteString("\n" + appI18n.T(ctx, "QuizFallbackNote"))
	}

	if b.config.GradingMode == model.GradingIncremental {
		sb.WriteString("\n\n" + formatQuestion(sess.Questions[0]))
		return sb.String()
	}
	for _, question := range sess.Questions {
		sb.WriteString("\n\n" + formatQuestion(question))
	}
	return sb.String()
}

func (b *Bot) handleQuizAnswer(ctx context.Context, owner, text string) string {
	if b.config.GradingMode == model.GradingIncremental {
		return b.handleIncrementalAnswer(ctx, owner, text)
	}

	letters := answer.Parse(text)
	if len(letters) == 0 {
		if _, err := b.sessions.Lookup(owner); err != nil {
			return b.sessionError(ctx, err)
		}
		return appI18n.T(ctx, "AnswerUnrecognized")
	}

	var result model.GradingResult
	err := b.sessions.Update(owner, func(s *model.QuizSession) (bool, error) {
		r, err := quiz.GradeAll(s, letters)
		if err != nil {
			return false, err
		}
		result = r
		return true, nil
	})
	if err != nil {
		var fe *quiz.FormatError
		if errors.As(err, &fe) {
			return appI18n.Tpd(ctx, "AnswerCount", fe.Expected, map[string]any{"Got": fe.Got})
		}
		return b.sessionError(ctx, err)
	}

	slog.Info("quiz graded", "owner", owner, "subject", result.Subject,
		"correct", result.Correct, "total", result.Total, "percentage", result.Percentage)
	return b.formatResult(ctx, result) + b.saveQuizGrade(ctx, owner, result)
}

// errOutOfOrder is returned when a numbered reply skips the current question.
var errOutOfOrder = errors.New("answer out of order")

func (b *Bot) handleIncrementalAnswer(ctx context.Context, owner, text string) string {
	numbered := answer.ParseNumbered(text)
	var letters []string
	for _, n := range numbered {
		letters = append(letters, n.Letter)
	}
	if len(letters) == 0 {
		letters = answer.Parse(text)
	}
	if len(letters) == 0 {
		if l, ok := answer.ParseSingle(text); ok {
			letters = []string{l}
		}
	}
	if len(letters) == 0 {
		if _, err := b.sessions.Lookup(owner); err != nil {
			return b.sessionError(ctx, err)
		}
		return appI18n.T(ctx, "SingleAnswerFormat")
	}

	var (
		checks []model.AnswerCheck
		result *model.GradingResult
		next   *model.Question
	)
	var current int
	err := b.sessions.Update(owner, func(s *model.QuizSession) (bool, error) {
		current = len(s.AnswersGiven) + 1
		for i, n := range numbered {
			if n.Number != current+i {
				return false, errOutOfOrder
			}
		}
		for _, l := range letters {
			c, r, err := quiz.GradeNext(s, l)
			if err != nil {
				return false, err
			}
			checks = append(checks, c)
			if r != nil {
				result = r
				return true, nil
			}
		}
		q := s.Questions[len(s.AnswersGiven)]
		next = &q
		return false, nil
	})
	if errors.Is(err, errOutOfOrder) {
		return appI18n.Td(ctx, "AnswerOutOfOrder", map[string]any{"Next": current})
	}
	if err != nil {
		return b.sessionError(ctx, err)
	}

	var sb strings.Builder
	for _, c := range checks {
		sb.WriteString(formatFeedback(ctx, c) + "\n")
	}
	if result == nil {
		sb.WriteString("\n" + formatQuestion(*next))
		return sb.String()
	}

	slog.Info("quiz graded", "owner", owner, "subject", result.Subject,
		"correct", result.Correct, "total", result.Total, "percentage", result.Percentage)
	sb.WriteString("\n" + b.formatResult(ctx, *result) + b.saveQuizGrade(ctx, owner, *result))
	return sb.String()
}

// saveQuizGrade records a completed quiz for a registered student and
// returns the note to append to the reply.
func (b *Bot) saveQuizGrade(ctx context.Context, owner string, result model.GradingResult) string {
	m, err := b.members.FindByPhone(owner)
	if err != nil {
		slog.Error("member lookup failed", "owner", owner, "error", err)
		return ""
	}
	if m == nil || m.Role != model.MemberStudent {
		return ""
	}
	if err := b.members.RecordGrade(m.Name, result.Subject, result.Correct, result.Total); err != nil {
		slog.Error("failed to record quiz grade", "owner", owner, "name", m.Name, "error", err)
		return ""
	}
	return "\n" + appI18n.T(ctx, "GradeSaved")
}

func (b *Bot) sessionError(ctx context.Context, err error) string {
	switch {
	case errors.Is(err, session.ErrNoActiveSession):
		return appI18n.T(ctx, "NoActiveSession")
	case errors.Is(err, session.ErrSessionExpired):
		return appI18n.T(ctx, "SessionExpired")
	default:
		return b.internalError(ctx, "quiz session update failed", err)
	}
}

func formatQuestion(q model.Question) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d. %s", q.Index, q.Text)
	for i, opt := range q.Options {
		fmt.Fprintf(&sb, "\n%c) %s", answer.Letters[i], opt)
	}
	return sb.String()
}

func formatFeedback(ctx context.Context, c model.AnswerCheck) string {
	if c.Correct {
		return appI18n.Td(ctx, "AnswerCorrect", map[string]any{"Index": c.Index})
	}
	return appI18n.Td(ctx, "AnswerWrong", map[string]any{"Index": c.Index, "Expected": c.Expected})
}

func (b *Bot) formatResult(ctx context.Context, r model.GradingResult) string {
	var sb strings.Builder
	sb.WriteString(appI18n.Td(ctx, "ResultHeader", map[string]any{
		"Subject":    r.Subject,
		"Correct":    r.Correct,
		"Total":      r.Total,
		"Percentage": r.Percentage,
	}))
	for _, c := range r.Checks {
		data := map[string]any{"Index": c.Index, "Given": c.Given, "Expected": c.Expected}
		if c.Correct {
			sb.WriteString("\n" + appI18n.Td(ctx, "ResultLineCorrect", data))
		} else {
			sb.WriteString("\n" + appI18n.Td(ctx, "ResultLineWrong", data))
		}
	}

	feedback := "FeedbackNeedsWork"
	switch {
	case r.Percentage >= 80:
		feedback = "FeedbackExcellent"
	case r.Percentage >= 50:
		feedback = "FeedbackGood"
	}
	sb.WriteString("\n" + appI18n.Td(ctx, feedback, map[string]any{"Subject": r.Subject}))
	return sb.String()
}
