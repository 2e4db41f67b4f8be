package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"quizlive/internal/domain"
)

const defaultLeaveTimeout = 3 * time.Second

// Roster manages the set of players joined to a session: connection ids in
// `players`, identified students in `waitingPlayers`. Join and remove use the
// store's array-union/remove primitives, so both are idempotent.
type Roster struct {
	store        DocumentStore
	clock        func() time.Time
	leaveTimeout time.Duration
}

func NewRoster(store DocumentStore) *Roster {
	return &Roster{
		store:        store,
		clock:        time.Now,
		leaveTimeout: defaultLeaveTimeout,
	}
}

// NewRosterWithClock is test-only for deterministic player ids and timestamps.
func NewRosterWithClock(store DocumentStore, now func() time.Time) *Roster {
	r := NewRoster(store)
	r.clock = now
	return r
}

// JoinAsConnection registers an ephemeral connection id with the session.
// Ids are locally unique (timestamp plus random suffix), not globally guaranteed.
func (r *Roster) JoinAsConnection(ctx context.Context, sessionID string) (string, error) {
	playerID := r.newPlayerID()
	if err := r.store.ArrayUnion(ctx, CollectionSessions, sessionID, "players", playerID); err != nil {
		return "", fmt.Errorf("join session: %w", err)
	}
	return playerID, nil
}

// MarkWaiting records a student as identified and ready for the quiz to start.
// Only a successful identification calls this; rejected attempts never do.
func (r *Roster) MarkWaiting(ctx context.Context, sessionID, studentID, name, playerID string) error {
	entry, err := EncodeValue(domain.WaitingPlayer{
		StudentID: studentID,
		Name:      name,
		PlayerID:  playerID,
		JoinedAt:  r.clock(),
	})
	if err != nil {
		return err
	}
	if err := r.store.ArrayUnion(ctx, CollectionSessions, sessionID, "waitingPlayers", entry); err != nil {
		return fmt.Errorf("mark waiting: %w", err)
	}
	return nil
}

// Leave removes the connection from the session roster on a background
// goroutine and reports the outcome on the returned channel. Teardown paths may
// discard the channel: delivery is best-effort, and a failed remove leaves a
// stale entry until the teacher ends the session.
func (r *Roster) Leave(sessionID, playerID string) <-chan error {
	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.leaveTimeout)
		defer cancel()
		done <- r.remove(ctx, sessionID, playerID)
	}()
	return done
}

func (r *Roster) remove(ctx context.Context, sessionID, playerID string) error {
	if err := r.store.ArrayRemove(ctx, CollectionSessions, sessionID, "players", playerID); err != nil {
		return fmt.Errorf("remove player: %w", err)
	}

	// waitingPlayers entries are whole records; look up the one carrying this
	// connection id before removing it.
	doc, err := r.store.Get(ctx, CollectionSessions, sessionID)
	if err != nil {
		return fmt.Errorf("load session for leave: %w", err)
	}
	var session domain.Session
	if err := DecodeFields(doc.Fields, &session); err != nil {
		return err
	}
	for _, wp := range session.WaitingPlayers {
		if wp.PlayerID != playerID {
			continue
		}
		entry, err := EncodeValue(wp)
		if err != nil {
			return err
		}
		if err := r.store.ArrayRemove(ctx, CollectionSessions, sessionID, "waitingPlayers", entry); err != nil {
			return fmt.Errorf("remove waiting player: %w", err)
		}
	}
	return nil
}

func (r *Roster) newPlayerID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("player-%d-%s", r.clock().UnixMilli(), suffix)
}
