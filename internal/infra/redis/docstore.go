package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"quizlive/internal/app"
	"quizlive/internal/domain"
)

const mutateAttempts = 5

// DocStore is a Redis-backed implementation of app.DocumentStore. Each
// document is one JSON blob at collection:id; mutations run under WATCH with
// optimistic retry, and every successful write publishes the new document on
// docs:collection:id so subscribers across instances see the change.
type DocStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDocStore builds the store. A zero ttl keeps documents forever; sessions
// are never deleted by the flow itself, so deployments usually set a ttl.
func NewDocStore(client *redis.Client, ttl time.Duration) *DocStore {
	return &DocStore{client: client, ttl: ttl}
}

func (s *DocStore) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	id := uuid.NewString()
	raw, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}
	if err := s.client.Set(ctx, s.key(collection, id), raw, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("create document: %w", err)
	}
	s.publish(ctx, collection, id, raw)
	return id, nil
}

func (s *DocStore) Get(ctx context.Context, collection, id string) (app.Document, error) {
	raw, err := s.client.Get(ctx, s.key(collection, id)).Bytes()
	if err == redis.Nil {
		return app.Document{}, domain.ErrDocumentNotFound
	}
	if err != nil {
		return app.Document{}, fmt.Errorf("get document: %w", err)
	}
	fields := make(map[string]any)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return app.Document{}, fmt.Errorf("unmarshal document: %w", err)
	}
	return app.Document{ID: id, Fields: fields}, nil
}

func (s *DocStore) QueryByField(ctx context.Context, collection, field string, value any) ([]app.Document, error) {
	var out []app.Document
	iter := s.client.Scan(ctx, 0, collection+":*", 100).Iterator()
	for iter.Next(ctx) {
		id := iter.Val()[len(collection)+1:]
		doc, err := s.Get(ctx, collection, id)
		if err == domain.ErrDocumentNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		if app.JSONEqual(doc.Fields[field], value) {
			out = append(out, doc)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", collection, err)
	}
	return out, nil
}

func (s *DocStore) UpdateFields(ctx context.Context, collection, id string, partial map[string]any) error {
	return s.mutate(ctx, collection, id, func(fields map[string]any) (bool, error) {
		for k, v := range partial {
			fields[k] = v
		}
		return true, nil
	})
}

func (s *DocStore) ArrayUnion(ctx context.Context, collection, id, field string, value any) error {
	return s.mutate(ctx, collection, id, func(fields map[string]any) (bool, error) {
		arr, _ := fields[field].([]any)
		for _, existing := range arr {
			if app.JSONEqual(existing, value) {
				return false, nil
			}
		}
		fields[field] = append(arr, value)
		return true, nil
	})
}

func (s *DocStore) ArrayRemove(ctx context.Context, collection, id, field string, value any) error {
	return s.mutate(ctx, collection, id, func(fields map[string]any) (bool, error) {
		arr, _ := fields[field].([]any)
		kept := make([]any, 0, len(arr))
		removed := false
		for _, existing := range arr {
			if app.JSONEqual(existing, value) {
				removed = true
				continue
			}
			kept = append(kept, existing)
		}
		if !removed {
			return false, nil
		}
		fields[field] = kept
		return true, nil
	})
}

// Subscribe attaches to the document's change channel. Notifications carry the
// full document as published by the writer.
func (s *DocStore) Subscribe(ctx context.Context, collection, id string, onChange func(app.Document)) (func(), error) {
	pubsub := s.client.Subscribe(ctx, s.channel(collection, id))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s/%s: %w", collection, id, err)
	}

	go func() {
		for msg := range pubsub.Channel() {
			fields := make(map[string]any)
			if err := json.Unmarshal([]byte(msg.Payload), &fields); err != nil {
				continue
			}
			onChange(app.Document{ID: id, Fields: fields})
		}
	}()

	cancel := func() { _ = pubsub.Close() }
	return cancel, nil
}

// mutate runs a read-modify-write on one document under WATCH. Concurrent
// writers force a TxFailedErr and the change is retried against fresh state.
func (s *DocStore) mutate(ctx context.Context, collection, id string, apply func(map[string]any) (bool, error)) error {
	key := s.key(collection, id)

	for attempt := 0; attempt < mutateAttempts; attempt++ {
		var published []byte
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if err == redis.Nil {
				return domain.ErrDocumentNotFound
			}
			if err != nil {
				return err
			}
			fields := make(map[string]any)
			if err := json.Unmarshal(raw, &fields); err != nil {
				return fmt.Errorf("unmarshal document: %w", err)
			}

			changed, err := apply(fields)
			if err != nil {
				return err
			}
			if !changed {
				return nil
			}

			updated, err := json.Marshal(fields)
			if err != nil {
				return fmt.Errorf("marshal document: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, s.ttl)
				return nil
			})
			if err == nil {
				published = updated
			}
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return err
		}
		if published != nil {
			s.publish(ctx, collection, id, published)
		}
		return nil
	}
	return fmt.Errorf("mutate %s: too many concurrent writers", key)
}

func (s *DocStore) publish(ctx context.Context, collection, id string, raw []byte) {
	// Change notifications are best-effort; readers re-fetch on demand.
	_ = s.client.Publish(ctx, s.channel(collection, id), raw).Err()
}

func (s *DocStore) key(collection, id string) string {
	return collection + ":" + id
}

func (s *DocStore) channel(collection, id string) string {
	return "docs:" + collection + ":" + id
}
