// Package bot turns one inbound chat message into one reply.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/pavelanni/classbot/internal/answer"
	appI18n "github.com/pavelanni/classbot/internal/i18n"
	"github.com/pavelanni/classbot/internal/model"
	"github.com/pavelanni/classbot/internal/quiz"
	"github.com/pavelanni/classbot/internal/session"
)

// QuizGenerator builds a quiz for a subject.
type QuizGenerator interface {
	Generate(ctx context.Context, subject string, count int) model.Quiz
}

// IntentClassifier labels a message with an intent.
type IntentClassifier interface {
	Classify(ctx context.Context, text string) model.Intent
}

// MemberStore is the registration and grade record store.
type MemberStore interface {
	RegisterMember(m model.Member) (int64, error)
	FindByName(name string) (*model.Member, error)
	FindByPhone(phone string) (*model.Member, error)
	RecordGrade(name, subject string, score, total int) error
	ListGrades(name string) ([]model.GradeRecord, error)
	ClassStats(className string) ([]model.SubjectStat, error)
}

// Bot holds shared dependencies for message handling.
type Bot struct {
	sessions *session.Registry
	quizzes  QuizGenerator
	intents  IntentClassifier
	members  MemberStore
	config   model.BotConfig
}

// New creates a new Bot.
func New(sessions *session.Registry, quizzes QuizGenerator, intents IntentClassifier, members MemberStore, cfg model.BotConfig) *Bot {
	if cfg.QuizSize <= 0 {
		cfg.QuizSize = quiz.DefaultSize
	}
	if cfg.GradingMode == "" {
		cfg.GradingMode = model.GradingAtomic
	}
	return &Bot{
		sessions: sessions,
		quizzes:  quizzes,
		intents:  intents,
		members:  members,
		config:   cfg,
	}
}

// HandleInboundMessage returns the reply to rawText sent by senderID.
// Messages from the same sender are handled one at a time. It never fails:
// every problem becomes reply text.
func (b *Bot) HandleInboundMessage(ctx context.Context, senderID, rawText string) string {
	owner := NormalizeOwner(senderID)
	text := strings.TrimSpace(rawText)

	unlock := b.sessions.Lock(owner)
	defer unlock()

	// A live quiz claims answer-shaped messages before classification.
	if b.answerShaped(text) {
		_, err := b.sessions.Lookup(owner)
		switch {
		case err == nil:
			slog.Info("inbound message", "owner", owner, "intent", model.IntentQuizAnswer, "routed", "session")
			return b.handleQuizAnswer(ctx, owner, text)
		case errors.Is(err, session.ErrSessionExpired):
			return appI18n.T(ctx, "SessionExpired")
		}
	}

	intent := b.intents.Classify(ctx, text)
	slog.Info("inbound message", "owner", owner, "intent", intent)

	switch intent {
	case model.IntentQuizRequest:
		return b.handleQuizRequest(ctx, owner, text)
	case model.IntentQuizAnswer:
		return b.handleQuizAnswer(ctx, owner, text)
	case model.IntentRegisterStudent:
		return b.handleRegister(ctx, owner, text, model.MemberStudent)
	case model.IntentRegisterTeacher:
		return b.handleRegister(ctx, owner, text, model.MemberTeacher)
	case model.IntentRegisterParent:
		return b.handleRegister(ctx, owner, text, model.MemberParent)
	case model.IntentCheckPerformance:
		return b.handlePerformance(ctx, owner, text)
	case model.IntentRecordGrades:
		return b.handleRecordGrade(ctx, text)
	case model.IntentClassStats:
		return b.handleClassStats(ctx, owner, text)
	default:
		return appI18n.T(ctx, "Help")
	}
}

// answerShaped reports whether text should go to a live quiz before
// classification: a whole-message submission, two or more numbered answers
// inside a sentence ("my answers are 1B, 2C and 3A"), or in incremental mode
// a single letter.
func (b *Bot) answerShaped(text string) bool {
	if answer.LooksLikeAnswers(text) || len(answer.ParseNumbered(text)) >= 2 {
		return true
	}
	if b.config.GradingMode == model.GradingIncremental {
		_, ok := answer.ParseSingle(text)
		return ok
	}
	return false
}

func (b *Bot) internalError(ctx context.Context, msg string, err error, args ...any) string {
	slog.Error(msg, append(args, "error", err)...)
	return appI18n.T(ctx, "InternalError")
}
