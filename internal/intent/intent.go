// Package intent decides what an inbound chat message is asking for.
package intent

import (
	"context"
	"log/slog"
	"regexp"
	"time"

	"github.com/pavelanni/classbot/internal/answer"
	"github.com/pavelanni/classbot/internal/model"
)

// LabelClassifier labels text with an intent, typically by calling a language model.
type LabelClassifier interface {
	ClassifyIntent(ctx context.Context, text string) (model.Intent, error)
}

// Classifier tries the remote classifier first and falls back to patterns.
type Classifier struct {
	remote  LabelClassifier
	timeout time.Duration
}

// New creates a Classifier. A nil remote uses patterns only.
func New(remote LabelClassifier, timeout time.Duration) *Classifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Classifier{remote: remote, timeout: timeout}
}

// Classify returns the intent of text. It never fails.
func (c *Classifier) Classify(ctx context.Context, text string) model.Intent {
	if c.remote != nil {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		in, err := c.remote.ClassifyIntent(ctx, text)
		if err == nil {
			return in
		}
		slog.Warn("intent classification failed, using patterns", "error", err)
	}
	return Fallback(text)
}

type rule struct {
	intent model.Intent
	re     *regexp.Regexp
}

// Order matters: registration rules must beat the looser quiz and stats words.
var rules = []rule{
	{model.IntentRegisterParent, regexp.MustCompile(`(?i)\bregister\b.*\bparent\b|\bparent\b.*\bregist`)},
	{model.IntentRegisterTeacher, regexp.MustCompile(`(?i)\bregister\b.*\bteacher\b|\bteacher\b.*\bregist`)},
	{model.IntentRegisterStudent, regexp.MustCompile(`(?i)\bregister\b|\bsign\s*up\b|\benrol`)},
	{model.IntentRecordGrades, regexp.MustCompile(`(?i)\brecord\b.*\b(grade|score|mark)s?\b|\b(grade|score|mark)\b.*\d+\s*/\s*\d+`)},
	{model.IntentClassStats, regexp.MustCompile(`(?i)\b(stats|statistics|average|class\s+report)\b`)},
	{model.IntentCheckPerformance, regexp.MustCompile(`(?i)\b(performance|progress|my\s+grades|results?|report\s+card|how\s+am\s+i\s+doing)\b`)},
	{model.IntentQuizRequest, regexp.MustCompile(`(?i)\b(quiz|test\s+me|practice|questions?\s+(on|about))\b`)},
}

// Fallback classifies text with fixed patterns. Answer-shaped messages
// ("1A 2B 3C", "A C B") are recognized before anything else.
func Fallback(text string) model.Intent {
	if answer.LooksLikeAnswers(text) {
		return model.IntentQuizAnswer
	}
	for _, r := range rules {
		if r.re.MatchString(text) {
			return r.intent
		}
	}
	return model.IntentHelp
}
