package app

import (
	"context"
	"fmt"
	"sort"

	"quizlive/internal/domain"
)

// Aggregator folds finished quiz runs into the session's shared score list and
// derives the score-sorted ranking view.
type Aggregator struct {
	store DocumentStore
}

func NewAggregator(store DocumentStore) *Aggregator {
	return &Aggregator{store: store}
}

// Submit replaces any existing entry for the same student and appends the new
// result. The read-modify-write is not transactional: two students finishing
// at the same instant can race and one update can be lost. Accepted at
// classroom scale; see DESIGN.md.
func (a *Aggregator) Submit(ctx context.Context, sessionID string, result domain.QuizResult) error {
	doc, err := a.store.Get(ctx, CollectionSessions, sessionID)
	if err != nil {
		return fmt.Errorf("load session for submit: %w", err)
	}

	var session domain.Session
	if err := DecodeFields(doc.Fields, &session); err != nil {
		return err
	}

	scores := make([]domain.QuizResult, 0, len(session.Scores)+1)
	for _, s := range session.Scores {
		if s.StudentID == result.StudentID {
			continue
		}
		scores = append(scores, s)
	}
	scores = append(scores, result)

	encoded, err := EncodeValue(scores)
	if err != nil {
		return err
	}
	if err := a.store.UpdateFields(ctx, CollectionSessions, sessionID, map[string]any{"scores": encoded}); err != nil {
		return fmt.Errorf("write scores: %w", err)
	}
	return nil
}

// RankingsFor returns the derived ranking for a session's current score list.
func (a *Aggregator) RankingsFor(ctx context.Context, sessionID string) ([]domain.RankingEntry, error) {
	doc, err := a.store.Get(ctx, CollectionSessions, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session for rankings: %w", err)
	}
	var session domain.Session
	if err := DecodeFields(doc.Fields, &session); err != nil {
		return nil, err
	}
	return Rank(session.Scores), nil
}

// WatchRankings recomputes the ranking on every session change. The caller
// must invoke the returned cancel function to avoid leaks.
func (a *Aggregator) WatchRankings(ctx context.Context, sessionID string, fn func([]domain.RankingEntry)) (func(), error) {
	return a.store.Subscribe(ctx, CollectionSessions, sessionID, func(doc Document) {
		var session domain.Session
		if err := DecodeFields(doc.Fields, &session); err != nil {
			return
		}
		fn(Rank(session.Scores))
	})
}

// Rank sorts results by score descending, ties broken by earlier finish, then
// student id for determinism. Pure projection, recomputed on every change.
func Rank(results []domain.QuizResult) []domain.RankingEntry {
	sorted := append([]domain.QuizResult(nil), results...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		if !sorted[i].FinishedAt.Equal(sorted[j].FinishedAt) {
			return sorted[i].FinishedAt.Before(sorted[j].FinishedAt)
		}
		return sorted[i].StudentID < sorted[j].StudentID
	})

	entries := make([]domain.RankingEntry, 0, len(sorted))
	for i, s := range sorted {
		entries = append(entries, domain.RankingEntry{
			Rank:       i + 1,
			StudentID:  s.StudentID,
			Name:       s.Name,
			Score:      s.Score,
			Accuracy:   s.Accuracy,
			FinishedAt: s.FinishedAt,
		})
	}
	return entries
}
