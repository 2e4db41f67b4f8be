package app

import (
	"context"

	"quizlive/internal/domain"
)

// QuestionRepository loads the question set for a level (from cache/backing store).
type QuestionRepository interface {
	GetQuestionSet(ctx context.Context, level string) (domain.QuestionSet, error)
}
