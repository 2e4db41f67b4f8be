package app_test

import (
	"math"
	"testing"
	"time"

	"quizlive/internal/app"
	"quizlive/internal/domain"
)

// manualTimer lets tests drive countdown and advance expiry deterministically.
type manualTimer struct {
	f       func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

type timerBank struct {
	timers []*manualTimer
}

func (b *timerBank) NewTimer(_ time.Duration, f func()) app.Timer {
	t := &manualTimer{f: f}
	b.timers = append(b.timers, t)
	return t
}

// fireLast expires the most recently armed timer, respecting Stop.
func (b *timerBank) fireLast(t *testing.T) {
	t.Helper()
	if len(b.timers) == 0 {
		t.Fatalf("no timers armed")
	}
	last := b.timers[len(b.timers)-1]
	if last.stopped {
		t.Fatalf("last timer already stopped")
	}
	last.stopped = true
	last.f()
}

// forceFire invokes a timer callback even after Stop, emulating an expiry that
// was already in flight when the timer was cancelled.
func (b *timerBank) forceFire(i int) {
	b.timers[i].f()
}

type runRecorder struct {
	questions []int
	reveals   []int
	corrects  []bool
	finished  chan domain.QuizResult
}

func newRunRecorder() *runRecorder {
	return &runRecorder{finished: make(chan domain.QuizResult, 1)}
}

func (rec *runRecorder) config(bank *timerBank, clock func() time.Time) app.RunConfig {
	return app.RunConfig{
		QuestionDuration: 50 * time.Second,
		RevealDelay:      1200 * time.Millisecond,
		NewTimer:         bank.NewTimer,
		Clock:            clock,
		OnQuestion:       func(index int, _ domain.Question) { rec.questions = append(rec.questions, index) },
		OnReveal: func(index int, correct bool, _ string) {
			rec.reveals = append(rec.reveals, index)
			rec.corrects = append(rec.corrects, correct)
		},
		OnFinished: func(result domain.QuizResult) { rec.finished <- result },
	}
}

func sampleQuestions(n int) []domain.Question {
	questions := make([]domain.Question, 0, n)
	for i := 0; i < n; i++ {
		questions = append(questions, domain.Question{
			ID:       "q" + string(rune('1'+i)),
			Question: "What is 3 × 4?",
			Options:  []string{"7", "12", "15", "13"},
			Correct:  1,
			Answer:   "12",
			Type:     domain.MultipleChoice,
		})
	}
	return questions
}

func TestRunRecordsOneResultPerQuestion(t *testing.T) {
	cur := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	bank := &timerBank{}
	rec := newRunRecorder()

	run := app.NewRun("s1", "Ana", sampleQuestions(4), rec.config(bank, func() time.Time { return cur }))
	run.Start()

	// q0: correct after 2s.
	cur = cur.Add(2 * time.Second)
	if err := run.Commit(app.Answer{Option: 1}); err != nil {
		t.Fatalf("commit q0: %v", err)
	}
	bank.fireLast(t) // advance to q1

	// q1: wrong after 3s.
	cur = cur.Add(3 * time.Second)
	if err := run.Commit(app.Answer{Option: 0}); err != nil {
		t.Fatalf("commit q1: %v", err)
	}
	bank.fireLast(t) // advance to q2

	// q2 and q3: countdown expires with no commit.
	cur = cur.Add(50 * time.Second)
	bank.fireLast(t) // q2 timeout
	bank.fireLast(t) // advance to q3
	cur = cur.Add(50 * time.Second)
	bank.fireLast(t) // q3 timeout
	bank.fireLast(t) // advance -> finished

	var result domain.QuizResult
	select {
	case result = <-rec.finished:
	case <-time.After(time.Second):
		t.Fatalf("run did not finish")
	}

	if len(result.QuestionResults) != 4 {
		t.Fatalf("expected 4 question results, got %d", len(result.QuestionResults))
	}
	if result.Score != 1 || result.CorrectAnswers != 1 || result.IncorrectAnswers != 3 {
		t.Fatalf("unexpected totals %+v", result)
	}
	if math.Abs(result.Accuracy-25) > 0.001 {
		t.Fatalf("expected accuracy 25, got %v", result.Accuracy)
	}
	if result.QuestionResults[0].TimeTaken != 2000 {
		t.Fatalf("expected q0 timeTaken 2000ms, got %d", result.QuestionResults[0].TimeTaken)
	}
	if !result.QuestionResults[0].IsCorrect || result.QuestionResults[1].IsCorrect {
		t.Fatalf("unexpected correctness %+v", result.QuestionResults)
	}
	if result.TotalTime != (2+3+50+50)*1000 {
		t.Fatalf("expected total time 105000ms, got %d", result.TotalTime)
	}
	if result.AverageTimePerQuestion != result.TotalTime/4 {
		t.Fatalf("unexpected average time %d", result.AverageTimePerQuestion)
	}
	if got := rec.questions; len(got) != 4 {
		t.Fatalf("expected 4 question notifications, got %v", got)
	}
}

func TestLateTimeoutAfterCommitIsDropped(t *testing.T) {
	cur := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	bank := &timerBank{}
	rec := newRunRecorder()

	run := app.NewRun("s1", "Ana", sampleQuestions(2), rec.config(bank, func() time.Time { return cur }))
	run.Start()

	countdown0 := len(bank.timers) - 1
	if err := run.Commit(app.Answer{Option: 1}); err != nil {
		t.Fatalf("commit q0: %v", err)
	}

	// The countdown for q0 expires in flight after the commit already landed;
	// the stale generation must be dropped, not recorded a second time.
	bank.forceFire(countdown0)

	if got := len(rec.reveals); got != 1 {
		t.Fatalf("expected exactly 1 reveal for q0, got %d", got)
	}

	bank.fireLast(t) // advance to q1
	if err := run.Commit(app.Answer{Option: 1}); err != nil {
		t.Fatalf("commit q1: %v", err)
	}
	bank.fireLast(t) // advance -> finished

	result := <-rec.finished
	if len(result.QuestionResults) != 2 {
		t.Fatalf("expected 2 question results, got %d", len(result.QuestionResults))
	}
	if result.Score != 2 {
		t.Fatalf("expected score 2, got %d", result.Score)
	}
}

func TestLateCommitAfterTimeoutIsRejected(t *testing.T) {
	cur := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	bank := &timerBank{}
	rec := newRunRecorder()

	run := app.NewRun("s1", "Ana", sampleQuestions(1), rec.config(bank, func() time.Time { return cur }))
	run.Start()

	cur = cur.Add(50 * time.Second)
	bank.fireLast(t) // q0 timeout

	if err := run.Commit(app.Answer{Option: 1}); err != domain.ErrNoActiveQuestion {
		t.Fatalf("expected ErrNoActiveQuestion, got %v", err)
	}

	bank.fireLast(t) // advance -> finished
	result := <-rec.finished
	if len(result.QuestionResults) != 1 || result.QuestionResults[0].IsCorrect {
		t.Fatalf("expected single incorrect timeout result, got %+v", result.QuestionResults)
	}
	if result.Score != 0 {
		t.Fatalf("expected score 0, got %d", result.Score)
	}

	if err := run.Commit(app.Answer{Option: 1}); err != domain.ErrQuizAlreadyFinished {
		t.Fatalf("expected ErrQuizAlreadyFinished, got %v", err)
	}
}

func TestSingleAnswerMatchesTrimmedText(t *testing.T) {
	cur := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	bank := &timerBank{}
	rec := newRunRecorder()

	questions := []domain.Question{{
		ID:       "q1",
		Question: "Type the answer: 6 × 7",
		Options:  []string{"42"},
		Correct:  0,
		Answer:   "42",
		Type:     domain.SingleAnswer,
	}}
	run := app.NewRun("s1", "Ana", questions, rec.config(bank, func() time.Time { return cur }))
	run.Start()

	if err := run.Commit(app.Answer{Option: -1, Text: "  42 "}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	bank.fireLast(t) // advance -> finished

	result := <-rec.finished
	if result.Score != 1 {
		t.Fatalf("expected trimmed text to match, got %+v", result)
	}
}

func TestStopCancelsOutstandingTimers(t *testing.T) {
	bank := &timerBank{}
	rec := newRunRecorder()

	run := app.NewRun("s1", "Ana", sampleQuestions(3), rec.config(bank, time.Now))
	run.Start()
	run.Stop()

	// A countdown expiring after teardown must not resurrect the run.
	bank.forceFire(0)
	if len(rec.reveals) != 0 {
		t.Fatalf("expected no reveals after stop, got %v", rec.reveals)
	}
	if _, finished := run.Result(); finished {
		t.Fatalf("stopped run must not report a result")
	}
}
