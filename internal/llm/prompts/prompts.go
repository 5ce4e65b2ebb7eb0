package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/classbot/internal/model"
)

//go:embed templates/*.txt
var templateFS embed.FS

var (
	messageTagRegex = regexp.MustCompile(`(?i)</?\s*message\b[^>]*>`)
	controlRegex    = regexp.MustCompile(`[\x00-\x08\x0b-\x1f\x7f]`)
)

// Level represents quiz difficulty.
type Level string

const (
	// LevelEasy asks about core facts.
	LevelEasy Level = "easy"
	// LevelStandard is the default level.
	LevelStandard Level = "standard"
	// LevelHard asks reasoning questions.
	LevelHard Level = "hard"
)

var validLevels = map[Level]bool{
	LevelEasy:     true,
	LevelStandard: true,
	LevelHard:     true,
}

const (
	maxSubjectRunes = 200
	maxMessageRunes = 2000
)

var (
	loadOnce       sync.Once
	loadErr        error
	quizTemplate   *template.Template
	intentTemplate *template.Template
)

// IsValidLevel checks if a level name is valid.
func IsValidLevel(l string) bool {
	return validLevels[Level(l)]
}

// QuizData holds template data for quiz generation prompts.
type QuizData struct {
	Subject   string
	Level     Level
	Count     int
	Delimiter string
}

// IntentData holds template data for intent classification prompts.
type IntentData struct {
	Labels  []model.Intent
	Message string
}

// Load parses the embedded prompt templates once.
func Load() error {
	loadOnce.Do(func() {
		quizTemplate, loadErr = parse("templates/quiz.txt")
		if loadErr != nil {
			return
		}
		intentTemplate, loadErr = parse("templates/intent.txt")
	})
	return loadErr
}

func parse(name string) (*template.Template, error) {
	content, err := templateFS.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read prompt file %s: %w", name, err)
	}
	tmpl, err := template.New(name).Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parse prompt template %s: %w", name, err)
	}
	return tmpl, nil
}

// BuildQuizPrompt builds the quiz generation prompt.
func BuildQuizPrompt(level Level, subject string, count int, delimiter string) (string, error) {
	if err := Load(); err != nil {
		return "", err
	}
	if !validLevels[level] {
		return "", errors.New("invalid quiz level: " + string(level))
	}
	var buf bytes.Buffer
	err := quizTemplate.Execute(&buf, QuizData{
		Subject:   sanitize(subject, maxSubjectRunes),
		Level:     level,
		Count:     count,
		Delimiter: delimiter,
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// BuildIntentPrompt builds the intent classification prompt for a message.
func BuildIntentPrompt(message string) (string, error) {
	if err := Load(); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	err := intentTemplate.Execute(&buf, IntentData{
		Labels:  model.Intents,
		Message: sanitize(message, maxMessageRunes),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

func sanitize(s string, limit int) string {
	s = messageTagRegex.ReplaceAllString(s, "")
	s = controlRegex.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	if utf8.RuneCountInString(s) > limit {
		s = string([]rune(s)[:limit])
	}
	return s
}
