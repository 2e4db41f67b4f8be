package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"quizlive/internal/domain"
	"quizlive/internal/infra/memory"
)

func TestQuestionRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)

	loader := &countingLoader{
		QuestionLoader: memory.NewStaticQuestionLoader(map[string]domain.QuestionSet{
			"LEVEL 1": sampleSet(),
		}),
	}
	repo := NewQuestionRepository(client, loader, time.Minute)

	set, err := repo.GetQuestionSet(context.Background(), "LEVEL 1")
	if err != nil {
		t.Fatalf("get question set: %v", err)
	}
	if len(set.Questions) != 1 {
		t.Fatalf("expected 1 question, got %d", len(set.Questions))
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if !mr.Exists("questions:LEVEL 1") {
		t.Fatalf("expected redis cache key")
	}

	// Second call should hit cache, loader not incremented.
	_, _ = repo.GetQuestionSet(context.Background(), "LEVEL 1")
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
}

type countingLoader struct {
	memory.QuestionLoader
	calls int
}

func (l *countingLoader) LoadQuestionSet(ctx context.Context, level string) (domain.QuestionSet, error) {
	l.calls++
	return l.QuestionLoader.LoadQuestionSet(ctx, level)
}

func sampleSet() domain.QuestionSet {
	return domain.QuestionSet{
		Level: "LEVEL 1",
		Questions: []domain.Question{
			{
				ID:       "q1",
				Question: "What is 2 × 2?",
				Options:  []string{"3", "4", "5", "6"},
				Correct:  1,
				Answer:   "4",
				Type:     domain.MultipleChoice,
			},
		},
	}
}
