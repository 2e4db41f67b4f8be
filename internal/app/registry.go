package app

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"quizlive/internal/domain"
)

// Registry creates and looks up sessions by join code and owns status transitions.
type Registry struct {
	store DocumentStore
	clock func() time.Time

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewRegistry(store DocumentStore) *Registry {
	return &Registry{
		store: store,
		clock: time.Now,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewRegistryWithClock is test-only for deterministic timestamps.
func NewRegistryWithClock(store DocumentStore, now func() time.Time) *Registry {
	r := NewRegistry(store)
	r.clock = now
	return r
}

// CreateSession persists a new waiting session with a fresh 6-digit join code.
// Codes are drawn uniformly from [100000, 999999]; an active-code collision is
// possible and deliberately not checked, matching the classroom-scale design.
func (r *Registry) CreateSession(ctx context.Context, level string) (domain.Session, error) {
	session := domain.Session{
		Code:           r.generateCode(),
		Level:          level,
		Status:         domain.StatusWaiting,
		Players:        []string{},
		WaitingPlayers: []domain.WaitingPlayer{},
		Scores:         []domain.QuizResult{},
		CreatedAt:      r.clock(),
	}

	fields, err := EncodeFields(session)
	if err != nil {
		return domain.Session{}, err
	}
	id, err := r.store.Create(ctx, CollectionSessions, fields)
	if err != nil {
		return domain.Session{}, fmt.Errorf("create session: %w", err)
	}
	session.ID = id
	return session, nil
}

// FindByCode returns the first session whose code matches, regardless of status.
// Callers decide joinability from the Status field alone (see Joinable).
func (r *Registry) FindByCode(ctx context.Context, code string) (domain.Session, error) {
	docs, err := r.store.QueryByField(ctx, CollectionSessions, "code", code)
	if err != nil {
		return domain.Session{}, fmt.Errorf("find session by code: %w", err)
	}
	if len(docs) == 0 {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return decodeSession(docs[0])
}

// GetSession loads a session by id.
func (r *Registry) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	doc, err := r.store.Get(ctx, CollectionSessions, sessionID)
	if err == domain.ErrDocumentNotFound {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("get session: %w", err)
	}
	return decodeSession(doc)
}

// SetStatus transitions the session. Moving to started stamps gameStartedAt,
// which is the signal waiting students' quiz runs observe.
func (r *Registry) SetStatus(ctx context.Context, sessionID string, status domain.SessionStatus) error {
	partial := map[string]any{"status": string(status)}
	if status == domain.StatusStarted {
		partial["gameStartedAt"] = r.clock().Format(time.RFC3339Nano)
	}
	if err := r.store.UpdateFields(ctx, CollectionSessions, sessionID, partial); err != nil {
		return fmt.Errorf("set session status: %w", err)
	}
	return nil
}

// EndSession marks the session ended. The record is kept, never deleted.
func (r *Registry) EndSession(ctx context.Context, sessionID string) error {
	partial := map[string]any{
		"status":  string(domain.StatusEnded),
		"endedAt": r.clock().Format(time.RFC3339Nano),
	}
	if err := r.store.UpdateFields(ctx, CollectionSessions, sessionID, partial); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// WatchSession invokes fn with the decoded session on every document change.
// The caller must invoke the returned cancel function to avoid leaks.
func (r *Registry) WatchSession(ctx context.Context, sessionID string, fn func(domain.Session)) (func(), error) {
	return r.store.Subscribe(ctx, CollectionSessions, sessionID, func(doc Document) {
		session, err := decodeSession(doc)
		if err != nil {
			return
		}
		fn(session)
	})
}

// Joinable reports whether students may still enter the session.
func Joinable(s domain.Session) error {
	if s.Status == domain.StatusEnded {
		return domain.ErrSessionEnded
	}
	return nil
}

func (r *Registry) generateCode() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strconv.Itoa(100000 + r.rnd.Intn(900000))
}

func decodeSession(doc Document) (domain.Session, error) {
	var session domain.Session
	if err := DecodeFields(doc.Fields, &session); err != nil {
		return domain.Session{}, err
	}
	session.ID = doc.ID
	return session, nil
}
