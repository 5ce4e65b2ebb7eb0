package bot

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	appI18n "github.com/pavelanni/classbot/internal/i18n"
	"github.com/pavelanni/classbot/internal/intent"
	"github.com/pavelanni/classbot/internal/model"
	"github.com/pavelanni/classbot/internal/quiz"
	"github.com/pavelanni/classbot/internal/session"
	"github.com/pavelanni/classbot/internal/store"
)

func TestMain(m *testing.M) {
	if err := appI18n.Init("en"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

// fixedQuizzes serves the built-in quiz (key B, C, A) for every subject.
type fixedQuizzes struct {
	fallback bool
}

func (f *fixedQuizzes) Generate(_ context.Context, subject string, count int) model.Quiz {
	q := quiz.Fallback(subject, count)
	q.Fallback = f.fallback
	return q
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	bot     *Bot
	store   *store.Store
	clock   *testClock
	quizzes *fixedQuizzes
}

func newTestEnv(t *testing.T, mode model.GradingMode) *testEnv {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	clock := &testClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	quizzes := &fixedQuizzes{}
	b := New(
		session.NewRegistry(session.WithClock(clock.Now)),
		quizzes,
		intent.New(nil, 0),
		st,
		model.BotConfig{GradingMode: mode},
	)
	return &testEnv{bot: b, store: st, clock: clock, quizzes: quizzes}
}

func (e *testEnv) send(t *testing.T, from, text string) string {
	t.Helper()
	return e.bot.HandleInboundMessage(context.Background(), from, text)
}

func assertContains(t *testing.T, reply string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(reply, w) {
			t.Errorf("reply missing %q:\n%s", w, reply)
		}
	}
}

func assertNotContains(t *testing.T, reply string, unwanted ...string) {
	t.Helper()
	for _, w := range unwanted {
		if strings.Contains(reply, w) {
			t.Errorf("reply unexpectedly contains %q:\n%s", w, reply)
		}
	}
}

const student = "+15550100001"

func TestQuizRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		answers string
		want    []string
	}{
		{"numbered all correct", "1B 2C 3A", []string{"3/3 (100%)", "Excellent work on fractions"}},
		{"bare letters", "b, c, a", []string{"3/3 (100%)"}},
		{"two of three", "1B 2C 3B", []string{"2/3 (67%)", "3. B ❌ (correct: A)", "Good effort"}},
		{"one of three", "1-A 2-B 3-A", []string{"1/3 (33%)", "Keep practicing"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, model.GradingAtomic)

			intro := env.send(t, student, "quiz fractions")
			assertContains(t, intro,
				"fractions quiz: 3 questions",
				"1. Which of these numbers is prime?",
				"B) 7",
				"3. Which planet is known as the Red Planet?",
			)
			assertNotContains(t, intro, "general practice quiz")

			assertContains(t, env.send(t, student, tt.answers), tt.want...)

			// The session is consumed by grading.
			assertContains(t, env.send(t, student, tt.answers), "don't have a quiz in progress")
		})
	}
}

func TestQuizFallbackNote(t *testing.T) {
	env := newTestEnv(t, model.GradingAtomic)
	env.quizzes.fallback = true
	assertContains(t, env.send(t, student, "test me on algebra"), "algebra quiz", "general practice quiz")
}

func TestQuizSubjectMissing(t *testing.T) {
	env := newTestEnv(t, model.GradingAtomic)
	assertContains(t, env.send(t, student, "quiz"), "Which subject?")
}

func TestAnswerCountMismatchKeepsSession(t *testing.T) {
	env := newTestEnv(t, model.GradingAtomic)
	env.send(t, student, "quiz fractions")

	assertContains(t, env.send(t, student, "1B 2C"), "exactly 3 answers", "You sent 2.")
	assertContains(t, env.send(t, student, "1B 2C 3A 4D"), "You sent 4.")
	assertContains(t, env.send(t, student, "1B 2C 3A"), "3/3 (100%)")
}

func TestAnswersWithoutQuiz(t *testing.T) {
	env := newTestEnv(t, model.GradingAtomic)
	assertContains(t, env.send(t, student, "1A 2B 3C"), "don't have a quiz in progress")
}

func TestQuizExpiry(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		expired bool
	}{
		{"just before", session.TTL - time.Second, false},
		{"exactly at ttl", session.TTL, true},
		{"after", session.TTL + time.Minute, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, model.GradingAtomic)
			env.send(t, student, "quiz fractions")
			env.clock.Advance(tt.elapsed)

			reply := env.send(t, student, "1B 2C 3A")
			if !tt.expired {
				assertContains(t, reply, "3/3 (100%)")
				return
			}
			assertContains(t, reply, "Your quiz expired")
			assertContains(t, env.send(t, student, "1B 2C 3A"), "don't have a quiz in progress")
		})
	}
}

func TestNewQuizReplacesOld(t *testing.T) {
	env := newTestEnv(t, model.GradingAtomic)
	env.send(t, student, "quiz fractions")

	reply := env.send(t, student, "quiz history")
	assertContains(t, reply, "previous quiz was discarded", "history quiz")

	assertContains(t, env.send(t, student, "1B 2C 3A"), "history quiz results: 3/3")
}

func TestOwnerNormalizationSharesSession(t *testing.T) {
	env := newTestEnv(t, model.GradingAtomic)
	env.send(t, "whatsapp:+1 (555) 010-0001", "quiz fractions")
	assertContains(t, env.send(t, student, "1B 2C 3A"), "3/3 (100%)")
}

func TestSessionsAreIsolatedPerOwner(t *testing.T) {
	env := newTestEnv(t, model.GradingAtomic)
	env.send(t, student, "quiz fractions")
	assertContains(t, env.send(t, "+15550100002", "1B 2C 3A"), "don't have a quiz in progress")
	assertContains(t, env.send(t, student, "1B 2C 3A"), "3/3 (100%)")
}

func TestConcurrentAnswersGradeOnce(t *testing.T) {
	env := newTestEnv(t, model.GradingAtomic)
	env.send(t, student, "quiz fractions")

	const n = 10
	replies := make([]string, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			replies[i] = env.bot.HandleInboundMessage(context.Background(), student, "1B 2C 3A")
		}()
	}
	wg.Wait()

	graded := 0
	for _, r := range replies {
		if strings.Contains(r, "3/3 (100%)") {
			graded++
		}
	}
	if graded != 1 {
		t.Errorf("graded %d times, want 1", graded)
	}
}

func TestIncrementalQuiz(t *testing.T) {
	env := newTestEnv(t, model.GradingIncremental)

	intro := env.send(t, student, "quiz fractions")
	assertContains(t, intro, "one question at a time", "1. Which of these numbers is prime?")
	assertNotContains(t, intro, "2. ")

	reply := env.send(t, student, "b")
	assertContains(t, reply, "Question 1: correct!", "2. At sea level")

	reply = env.send(t, student, "A")
	assertContains(t, reply, "Question 2: not quite", "(correct: C)", "3. Which planet")

	reply = env.send(t, student, "a")
	assertContains(t, reply, "Question 3: correct!", "2/3 (67%)")

	assertContains(t, env.send(t, student, "1B 2C 3A"), "don't have a quiz in progress")
}

func TestIncrementalAcceptsBatch(t *testing.T) {
	env := newTestEnv(t, model.GradingIncremental)
	env.send(t, student, "quiz fractions")

	reply := env.send(t, student, "1B 2C")
	assertContains(t, reply, "Question 1: correct!", "Question 2: correct!", "3. Which planet")
	assertContains(t, env.send(t, student, "c"), "2/3 (67%)")
}

func TestIncrementalRejectsOutOfOrder(t *testing.T) {
	env := newTestEnv(t, model.GradingIncremental)
	env.send(t, student, "quiz fractions")

	reply := env.send(t, student, "3A")
	assertContains(t, reply, "answer question 1 next")
	assertNotContains(t, reply, "not quite")

	assertContains(t, env.send(t, student, "1B"), "Question 1: correct!")
	assertContains(t, env.send(t, student, "1B 2C"), "answer question 2 next")
	assertContains(t, env.send(t, student, "2C 3A"), "Question 2: correct!", "Question 3: correct!", "3/3 (100%)")
}

func TestFreeFormAnswersWithLiveQuiz(t *testing.T) {
	tests := []struct {
		name string
		mode model.GradingMode
		text string
	}{
		{"sentence", model.GradingAtomic, "My answers are 1B, 2C and 3A"},
		{"trailing words", model.GradingAtomic, "1B 2C 3A thanks"},
		{"incremental sentence", model.GradingIncremental, "my answers: 1b, 2c and 3a please"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.mode)
			env.send(t, student, "quiz fractions")
			reply := env.send(t, student, tt.text)
			assertContains(t, reply, "3/3 (100%)")
			assertNotContains(t, reply, "I'm the class assistant")
		})
	}
}

func TestLiveQuizDoesNotCaptureCommands(t *testing.T) {
	env := newTestEnv(t, model.GradingAtomic)
	env.send(t, student, "quiz fractions")

	assertContains(t, env.send(t, student, "register student Ann class 7B"), "Welcome, Ann!")
	assertContains(t, env.send(t, student, "1B 2C 3A"), "3/3 (100%)")
}

func TestQuizGradeSavedForStudent(t *testing.T) {
	env := newTestEnv(t, model.GradingAtomic)
	assertContains(t, env.send(t, student, "register student Ann class 7B"),
		"Welcome, Ann! You are registered as a student in class 7B.")

	env.send(t, student, "quiz fractions")
	assertContains(t, env.send(t, student, "1B 2C 3B"), "2/3 (67%)", "saved to your record")

	grades, err := env.store.ListGrades("Ann")
	if err != nil {
		t.Fatalf("ListGrades: %v", err)
	}
	if len(grades) != 1 || grades[0].Subject != "fractions" || grades[0].Score != 2 || grades[0].Total != 3 {
		t.Errorf("grades = %+v, want one fractions 2/3", grades)
	}
}

func TestQuizGradeNotSavedForUnregistered(t *testing.T) {
	env := newTestEnv(t, model.GradingAtomic)
	env.send(t, student, "quiz fractions")
	assertNotContains(t, env.send(t, student, "1B 2C 3A"), "saved to your record")
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t, model.GradingAtomic)

	tests := []struct {
		name string
		from string
		text string
		want string
	}{
		{"student without class", "+15550100010", "register student Bob", "registered as a student."},
		{"student in class", "+15550100011", "register me as a student: Ann, class 7B", "Welcome, Ann! You are registered as a student in class 7B."},
		{"teacher", "+15550100012", "register teacher Mr Smith class 7B", "Welcome, Mr Smith! You are registered as a teacher for class 7B."},
		{"parent of missing child", "+15550100013", "register parent Maria for Zed", "couldn't find a student named Zed"},
		{"parent", "+15550100013", "register parent Maria for ann", "registered as a parent of Ann."},
		{"missing name", "+15550100014", "register student", "To register, send"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertContains(t, env.send(t, tt.from, tt.text), tt.want)
		})
	}

	m, err := env.store.FindByPhone("+15550100013")
	if err != nil {
		t.Fatalf("FindByPhone: %v", err)
	}
	if m == nil || m.Role != model.MemberParent || m.ChildName != "Ann" {
		t.Errorf("parent = %+v, want parent of Ann", m)
	}
}

func TestReregisterUpdatesMember(t *testing.T) {
	env := newTestEnv(t, model.GradingAtomic)
	env.send(t, student, "register student Ann class 7A")
	env.send(t, student, "register student Ann class 7B")

	m, err := env.store.FindByPhone(student)
	if err != nil {
		t.Fatalf("FindByPhone: %v", err)
	}
	if m == nil || m.ClassName != "7B" {
		t.Errorf("member = %+v, want class 7B", m)
	}
	count, err := env.store.MemberCount()
	if err != nil {
		t.Fatalf("MemberCount: %v", err)
	}
	if count != 1 {
		t.Errorf("MemberCount = %d, want 1", count)
	}
}

func TestRecordGradeAndPerformance(t *testing.T) {
	env := newTestEnv(t, model.GradingAtomic)
	const teacher, parent = "+15550100020", "+15550100021"
	env.send(t, student, "register student Ann class 7B")
	env.send(t, teacher, "register teacher Mr Smith class 7B")
	env.send(t, parent, "register parent Maria for Ann")

	tests := []struct {
		name string
		from string
		text string
		want string
	}{
		{"record", teacher, "record grade Ann math 8/10", "Recorded 8/10 in math for Ann."},
		{"record second", teacher, "record grade ann science 3/6", "Recorded 3/6 in science for Ann."},
		{"score above total", teacher, "record grade Ann math 11/10", "score must be between 0 and the total"},
		{"unknown student", teacher, "record grade Bob math 5/10", "couldn't find a student named Bob"},
		{"teacher is not a student", teacher, "record grade Mr Smith math 5/10", "couldn't find a student named Mr Smith"},
		{"usage", teacher, "record grade Ann", "To record a grade"},
		{"own performance", student, "performance", "Grades for Ann (average 65%):"},
		{"named performance", teacher, "performance Ann", "• math: 8/10 (80%)"},
		{"parent sees child", parent, "how am i doing", "• science: 3/6 (50%)"},
		{"unknown name", teacher, "performance of Zed", "couldn't find a student named Zed"},
		{"unregistered self", "+15550100099", "performance", "register first"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertContains(t, env.send(t, tt.from, tt.text), tt.want)
		})
	}
}

func TestPerformanceNoGrades(t *testing.T) {
	env := newTestEnv(t, model.GradingAtomic)
	env.send(t, student, "register student Ann")
	assertContains(t, env.send(t, student, "performance"), "Ann has no recorded grades yet.")
}

func TestClassStats(t *testing.T) {
	env := newTestEnv(t, model.GradingAtomic)
	const teacher = "+15550100030"
	env.send(t, student, "register student Ann class 7B")
	env.send(t, "+15550100031", "register student Bob class 7B")
	env.send(t, "+15550100032", "register student Cid class 9C")
	env.send(t, teacher, "register teacher Mr Smith class 7B")
	env.send(t, teacher, "record grade Ann math 8/10")
	env.send(t, teacher, "record grade Bob math 5/10")
	env.send(t, teacher, "record grade Bob science 1/3")
	env.send(t, teacher, "record grade Cid math 10/10")

	tests := []struct {
		name string
		from string
		text string
		want []string
	}{
		{"own class", teacher, "stats", []string{"Class 7B averages:", "• math: 65% (2 grades)", "• science: 33% (1 grade)"}},
		{"named class", teacher, "stats 9C", []string{"Class 9C averages:", "• math: 100% (1 grade)"}},
		{"class without grades", teacher, "stats for class 5A", []string{"No grades recorded for class 5A yet."}},
		{"no class known", "+15550100099", "stats", []string{"Send \"stats <class>\""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertContains(t, env.send(t, tt.from, tt.text), tt.want...)
		})
	}
}

func TestHelp(t *testing.T) {
	env := newTestEnv(t, model.GradingAtomic)
	assertContains(t, env.send(t, student, "hello there"), "I'm the class assistant")
}

func TestLocalizedReply(t *testing.T) {
	env := newTestEnv(t, model.GradingAtomic)
	ctx := appI18n.WithLanguage(context.Background(), "ru")
	reply := env.bot.HandleInboundMessage(ctx, student, "1A 2B 3C")
	if reply == appI18n.T(context.Background(), "NoActiveSession") {
		t.Errorf("reply was not localized: %q", reply)
	}
}

func TestNormalizeOwner(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+15550100001", "+15550100001"},
		{"whatsapp:+1 (555) 010-0001", "+15550100001"},
		{" 15550100001 ", "15550100001"},
		{"tg:12345", "tg:12345"},
		{"Alice", "alice"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeOwner(tt.in); got != tt.want {
				t.Errorf("NormalizeOwner(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestQuizSubject(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"quiz fractions", "fractions"},
		{"test me on World History", "World History"},
		{"give me a quiz about photosynthesis.", "photosynthesis"},
		{"practice algebra!", "algebra"},
		{"quiz", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := quizSubject(tt.in); got != tt.want {
				t.Errorf("quizSubject(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
