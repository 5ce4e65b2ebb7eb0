package model

import (
	"time"
)

// MemberRole represents the kind of school member registered with the bot.
type MemberRole string

const (
	// MemberStudent is a registered student.
	MemberStudent MemberRole = "student"
	// MemberTeacher is a registered teacher.
	MemberTeacher MemberRole = "teacher"
	// MemberParent is a registered parent.
	MemberParent MemberRole = "parent"
)

// Member is a registered sender.
type Member struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Phone     string     `json:"phone"`
	Role      MemberRole `json:"role"`
	ClassName string     `json:"class_name,omitempty"`
	ChildName string     `json:"child_name,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// GradeRecord is a single recorded score for a student.
type GradeRecord struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Subject    string    `json:"subject"`
	Score      int       `json:"score"`
	Total      int       `json:"total"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Percent returns the record's score as a whole percentage.
func (g GradeRecord) Percent() int {
	return Percentage(g.Score, g.Total)
}

// SubjectStat aggregates grades for one subject within a class.
type SubjectStat struct {
	Subject    string  `json:"subject"`
	Count      int     `json:"count"`
	AvgPercent float64 `json:"avg_percent"`
}

// Intent is the classified purpose of an inbound message.
type Intent string

const (
	IntentRegisterStudent  Intent = "REGISTER_STUDENT"
	IntentRegisterTeacher  Intent = "REGISTER_TEACHER"
	IntentRegisterParent   Intent = "REGISTER_PARENT"
	IntentCheckPerformance Intent = "CHECK_PERFORMANCE"
	IntentQuizRequest      Intent = "QUIZ_REQUEST"
	IntentQuizAnswer       Intent = "QUIZ_ANSWER"
	IntentRecordGrades     Intent = "RECORD_GRADES"
	IntentClassStats       Intent = "CLASS_STATS"
	IntentHelp             Intent = "HELP"
)

// Intents lists every valid intent label.
var Intents = []Intent{
	IntentRegisterStudent,
	IntentRegisterTeacher,
	IntentRegisterParent,
	IntentCheckPerformance,
	IntentQuizRequest,
	IntentQuizAnswer,
	IntentRecordGrades,
	IntentClassStats,
	IntentHelp,
}

// ParseIntent maps a label to an Intent. The second result is false for unknown labels.
func ParseIntent(label string) (Intent, bool) {
	for _, in := range Intents {
		if string(in) == label {
			return in, true
		}
	}
	return "", false
}

// Question is one multiple-choice quiz question.
type Question struct {
	Index   int      `json:"index"`
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

// Quiz is a generated set of questions with a parallel answer key.
type Quiz struct {
	Subject   string     `json:"subject"`
	Questions []Question `json:"questions"`
	AnswerKey []string   `json:"answer_key"`
	Fallback  bool       `json:"fallback"`
}

// QuizSession is one in-progress quiz for one owner.
type QuizSession struct {
	ID           string
	Owner        string
	Subject      string
	Questions    []Question
	AnswerKey    []string
	AnswersGiven []string // incremental mode only
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// Complete reports whether every question has an answer (incremental mode).
func (s *QuizSession) Complete() bool {
	return len(s.AnswersGiven) >= len(s.Questions)
}

// GradingMode selects between all-at-once and question-by-question grading.
type GradingMode string

const (
	GradingAtomic      GradingMode = "atomic"
	GradingIncremental GradingMode = "incremental"
)

// AnswerCheck is the outcome for a single question.
type AnswerCheck struct {
	Index    int    `json:"index"`
	Given    string `json:"given"`
	Expected string `json:"expected"`
	Correct  bool   `json:"correct"`
}

// GradingResult is the scored breakdown of a completed quiz. It is never stored.
type GradingResult struct {
	Subject    string        `json:"subject"`
	Checks     []AnswerCheck `json:"checks"`
	Correct    int           `json:"correct"`
	Total      int           `json:"total"`
	Percentage int           `json:"percentage"`
}

// BotConfig holds runtime bot parameters set via CLI flags.
type BotConfig struct {
	GradingMode       GradingMode
	QuizSize          int
	GenerationTimeout time.Duration
	Lang              string
}
