package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"quizlive/internal/domain"
)

// QuestionLoader fetches a level's question set from a backing store.
type QuestionLoader interface {
	LoadQuestionSet(ctx context.Context, level string) (domain.QuestionSet, error)
}

// QuestionRepository memoizes question sets per level. Every level owns an
// entry with its own lock, so concurrent misses for one level collapse into a
// single loader call without stalling lookups for other levels.
type QuestionRepository struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time

	mu     sync.Mutex
	rnd    *rand.Rand
	levels map[string]*levelEntry
}

type levelEntry struct {
	mu        sync.Mutex
	set       domain.QuestionSet
	expiresAt time.Time
}

func NewQuestionRepository(loader QuestionLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		levels: make(map[string]*levelEntry),
	}
}

func (r *QuestionRepository) GetQuestionSet(ctx context.Context, level string) (domain.QuestionSet, error) {
	entry := r.entry(level)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.expiresAt.After(r.clock()) {
		return entry.set, nil
	}

	set, err := r.loader.LoadQuestionSet(ctx, level)
	if err != nil {
		// Failures are never cached; the next lookup retries the loader.
		return domain.QuestionSet{}, err
	}
	entry.set = set
	entry.expiresAt = r.clock().Add(r.ttlWithJitter())
	return set, nil
}

// Invalidate drops the cached set for a level so the next lookup reloads it.
// Called when question content changes out of band.
func (r *QuestionRepository) Invalidate(level string) {
	r.mu.Lock()
	delete(r.levels, level)
	r.mu.Unlock()
}

func (r *QuestionRepository) entry(level string) *levelEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.levels[level]
	if !ok {
		e = &levelEntry{}
		r.levels[level] = e
	}
	return e
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	// up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticQuestionLoader is a loader backed by an in-memory map (tests/demos).
type StaticQuestionLoader struct {
	sets map[string]domain.QuestionSet
}

func NewStaticQuestionLoader(sets map[string]domain.QuestionSet) *StaticQuestionLoader {
	return &StaticQuestionLoader{sets: sets}
}

func (l *StaticQuestionLoader) LoadQuestionSet(_ context.Context, level string) (domain.QuestionSet, error) {
	if set, ok := l.sets[level]; ok {
		return set, nil
	}
	return domain.QuestionSet{}, domain.ErrQuestionSetNotFound
}
