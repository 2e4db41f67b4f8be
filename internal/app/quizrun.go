package app

import (
	"strings"
	"sync"
	"time"

	"quizlive/internal/domain"
)

const (
	// DefaultQuestionDuration is the per-question countdown.
	DefaultQuestionDuration = 50 * time.Second
	// DefaultRevealDelay is how long the correctness indicator is shown
	// before advancing to the next question.
	DefaultRevealDelay = 1200 * time.Millisecond
)

// Timer is an owned, cancellable timer handle.
type Timer interface {
	Stop() bool
}

// TimerFunc schedules f after d and returns its handle. The default wraps
// time.AfterFunc; tests inject a manual implementation to drive expiry.
type TimerFunc func(d time.Duration, f func()) Timer

func afterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Answer is a single-answer commit: the picked option index for multiple
// choice (zero-based), or the free-entry text.
type Answer struct {
	Option int
	Text   string
}

// RunConfig carries the tunables and callbacks for one quiz run.
// Callbacks are invoked outside the run's lock, in transition order.
type RunConfig struct {
	QuestionDuration time.Duration
	RevealDelay      time.Duration
	NewTimer         TimerFunc
	Clock            func() time.Time

	// OnQuestion fires on entering Showing(index).
	OnQuestion func(index int, q domain.Question)
	// OnReveal fires once per question after commit or timeout.
	OnReveal func(index int, isCorrect bool, correctAnswer string)
	// OnFinished fires once with the aggregate result.
	OnFinished func(result domain.QuizResult)
}

type runState int

const (
	runIdle runState = iota
	runShowing
	runRevealing
	runFinished
)

// Run is one student's sequential pass through a fixed question list:
// Idle -> Showing(i) -> Revealing -> (Showing(i+1) | Finished). At most one
// countdown and one advance timer are alive at any moment; every transition
// bumps a generation counter, and timer callbacks carrying a stale generation
// are dropped. That makes a late timeout racing a manual commit record exactly
// one result per question index.
type Run struct {
	studentID string
	name      string
	questions []domain.Question
	cfg       RunConfig

	mu           sync.Mutex
	state        runState
	gen          uint64
	index        int
	startedAt    time.Time
	shownAt      time.Time
	lastAnswered time.Time
	score        int
	results      []domain.QuestionResult
	countdown    Timer
	advance      Timer
	final        domain.QuizResult
}

// NewRun builds a run in the Idle state. Zero-valued config fields fall back
// to defaults.
func NewRun(studentID, name string, questions []domain.Question, cfg RunConfig) *Run {
	if cfg.QuestionDuration <= 0 {
		cfg.QuestionDuration = DefaultQuestionDuration
	}
	if cfg.RevealDelay <= 0 {
		cfg.RevealDelay = DefaultRevealDelay
	}
	if cfg.NewTimer == nil {
		cfg.NewTimer = afterFunc
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Run{
		studentID: studentID,
		name:      name,
		questions: questions,
		cfg:       cfg,
		results:   make([]domain.QuestionResult, 0, len(questions)),
	}
}

// Start shows the first question. Calling Start twice is a no-op.
func (r *Run) Start() {
	r.mu.Lock()
	if r.state != runIdle || len(r.questions) == 0 {
		r.mu.Unlock()
		return
	}
	r.startedAt = r.cfg.Clock()
	notify := r.showLocked(0)
	r.mu.Unlock()
	notify()
}

// Commit records the student's answer for the current question. A commit
// landing after the countdown already expired returns ErrNoActiveQuestion and
// records nothing.
func (r *Run) Commit(a Answer) error {
	r.mu.Lock()
	if r.state == runFinished {
		r.mu.Unlock()
		return domain.ErrQuizAlreadyFinished
	}
	if r.state != runShowing {
		r.mu.Unlock()
		return domain.ErrNoActiveQuestion
	}
	notify := r.commitLocked(a, true)
	r.mu.Unlock()
	notify()
	return nil
}

// Stop cancels outstanding timers and freezes the run. Used on teardown;
// no further callbacks fire.
func (r *Run) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	r.stopTimersLocked()
	if r.state != runFinished {
		r.state = runIdle
	}
}

// Result returns the aggregate once the run has finished.
func (r *Run) Result() (domain.QuizResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != runFinished {
		return domain.QuizResult{}, false
	}
	return r.final, true
}

func (r *Run) showLocked(index int) func() {
	r.state = runShowing
	r.index = index
	r.shownAt = r.cfg.Clock()
	r.gen++
	r.stopTimersLocked()

	gen := r.gen
	r.countdown = r.cfg.NewTimer(r.cfg.QuestionDuration, func() { r.expire(gen) })

	q := r.questions[index]
	onQuestion := r.cfg.OnQuestion
	return func() {
		if onQuestion != nil {
			onQuestion(index, q)
		}
	}
}

// expire is the countdown callback: a timeout is recorded as incorrect with no
// selected answer, exactly as if answered wrong.
func (r *Run) expire(gen uint64) {
	r.mu.Lock()
	if gen != r.gen || r.state != runShowing {
		r.mu.Unlock()
		return
	}
	notify := r.commitLocked(Answer{Option: -1}, false)
	r.mu.Unlock()
	notify()
}

func (r *Run) commitLocked(a Answer, answered bool) func() {
	q := r.questions[r.index]
	correct := answered && isCorrect(q, a)

	now := r.cfg.Clock()
	r.results = append(r.results, domain.QuestionResult{
		QuestionID: q.ID,
		Question:   q.Question,
		IsCorrect:  correct,
		TimeTaken:  now.Sub(r.shownAt).Milliseconds(),
		AnsweredAt: now,
	})
	if correct {
		r.score++
	}
	r.lastAnswered = now

	r.state = runRevealing
	r.gen++
	r.stopTimersLocked()

	gen := r.gen
	r.advance = r.cfg.NewTimer(r.cfg.RevealDelay, func() { r.advanceNext(gen) })

	index := r.index
	onReveal := r.cfg.OnReveal
	answer := correctAnswer(q)
	return func() {
		if onReveal != nil {
			onReveal(index, correct, answer)
		}
	}
}

func (r *Run) advanceNext(gen uint64) {
	r.mu.Lock()
	if gen != r.gen || r.state != runRevealing {
		r.mu.Unlock()
		return
	}

	var notify func()
	if r.index+1 < len(r.questions) {
		notify = r.showLocked(r.index + 1)
	} else {
		notify = r.finishLocked()
	}
	r.mu.Unlock()
	notify()
}

func (r *Run) finishLocked() func() {
	r.state = runFinished
	r.gen++
	r.stopTimersLocked()

	total := len(r.questions)
	incorrect := total - r.score
	totalTime := r.lastAnswered.Sub(r.startedAt).Milliseconds()
	r.final = domain.QuizResult{
		StudentID:              r.studentID,
		Name:                   r.name,
		Score:                  r.score,
		TotalQuestions:         total,
		CorrectAnswers:         r.score,
		IncorrectAnswers:       incorrect,
		Accuracy:               float64(r.score) / float64(total) * 100,
		TotalTime:              totalTime,
		AverageTimePerQuestion: totalTime / int64(total),
		FinishedAt:             r.lastAnswered,
		QuestionResults:        append([]domain.QuestionResult(nil), r.results...),
	}

	result := r.final
	onFinished := r.cfg.OnFinished
	return func() {
		if onFinished != nil {
			onFinished(result)
		}
	}
}

func (r *Run) stopTimersLocked() {
	if r.countdown != nil {
		r.countdown.Stop()
		r.countdown = nil
	}
	if r.advance != nil {
		r.advance.Stop()
		r.advance = nil
	}
}

func isCorrect(q domain.Question, a Answer) bool {
	switch q.Type {
	case domain.SingleAnswer:
		return strings.TrimSpace(a.Text) == strings.TrimSpace(q.Answer)
	default:
		return a.Option == q.Correct
	}
}

func correctAnswer(q domain.Question) string {
	if q.Answer != "" {
		return q.Answer
	}
	if q.Correct >= 0 && q.Correct < len(q.Options) {
		return q.Options[q.Correct]
	}
	return ""
}
