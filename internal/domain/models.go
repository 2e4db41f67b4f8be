package domain

import "time"

// SessionStatus is the lifecycle state of a live session.
type SessionStatus string

const (
	StatusWaiting SessionStatus = "waiting"
	StatusStarted SessionStatus = "started"
	StatusEnded   SessionStatus = "ended"
)

// WaitingPlayer is a student who completed identification and is ready for the quiz.
type WaitingPlayer struct {
	StudentID string    `json:"studentId"`
	Name      string    `json:"name"`
	PlayerID  string    `json:"playerId"`
	JoinedAt  time.Time `json:"joinedAt"`
}

// Session is one teacher-initiated group-play instance, joined by a 6-digit code.
// Sessions are never deleted; ending a session only flips Status to ended.
type Session struct {
	ID             string          `json:"-"`
	Code           string          `json:"code"`
	Level          string          `json:"level"`
	Status         SessionStatus   `json:"status"`
	Players        []string        `json:"players"`
	WaitingPlayers []WaitingPlayer `json:"waitingPlayers"`
	Scores         []QuizResult    `json:"scores"`
	CreatedAt      time.Time       `json:"createdAt"`
	GameStartedAt  *time.Time      `json:"gameStartedAt,omitempty"`
	EndedAt        *time.Time      `json:"endedAt,omitempty"`
}

// QuestionType selects the input mode for a question.
type QuestionType string

const (
	MultipleChoice QuestionType = "multipleChoice"
	SingleAnswer   QuestionType = "singleAnswer"
)

// Question is immutable during a quiz run. Correct indexes into Options for
// multiple choice; Answer holds the canonical text for single-answer entry.
type Question struct {
	ID       string       `json:"id"`
	Question string       `json:"question"`
	Options  []string     `json:"options"`
	Correct  int          `json:"correct"`
	Answer   string       `json:"answer"`
	Type     QuestionType `json:"type"`
}

// QuestionSet is the fixed list of questions served for one level.
type QuestionSet struct {
	Level     string     `json:"level"`
	Questions []Question `json:"questions"`
}

// QuestionResult records the outcome of a single question within a run.
type QuestionResult struct {
	QuestionID string    `json:"questionId"`
	Question   string    `json:"question"`
	IsCorrect  bool      `json:"isCorrect"`
	TimeTaken  int64     `json:"timeTaken"` // milliseconds
	AnsweredAt time.Time `json:"answeredAt"`
}

// QuizResult is the aggregate outcome of one student's pass through a question set.
// A session holds at most one live entry per StudentID; resubmission replaces.
type QuizResult struct {
	StudentID              string           `json:"studentId"`
	Name                   string           `json:"name"`
	Score                  int              `json:"score"`
	TotalQuestions         int              `json:"totalQuestions"`
	CorrectAnswers         int              `json:"correctAnswers"`
	IncorrectAnswers       int              `json:"incorrectAnswers"`
	Accuracy               float64          `json:"accuracy"`
	TotalTime              int64            `json:"totalTime"` // milliseconds
	AverageTimePerQuestion int64            `json:"averageTimePerQuestion"`
	FinishedAt             time.Time        `json:"finishedAt"`
	QuestionResults        []QuestionResult `json:"questionResults"`
}

// RankingEntry is one row of the derived score-sorted view. Rank starts at 1.
type RankingEntry struct {
	Rank       int       `json:"rank"`
	StudentID  string    `json:"studentId"`
	Name       string    `json:"name"`
	Score      int       `json:"score"`
	Accuracy   float64   `json:"accuracy"`
	FinishedAt time.Time `json:"finishedAt"`
}
