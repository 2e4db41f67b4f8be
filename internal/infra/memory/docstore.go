package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"quizlive/internal/app"
	"quizlive/internal/domain"
)

// DocStore is an in-memory implementation of app.DocumentStore, used for
// single-node deployments and tests.
type DocStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any
	subscribers map[string]map[chan app.Document]struct{}
}

func NewDocStore() *DocStore {
	return &DocStore{
		collections: make(map[string]map[string]map[string]any),
		subscribers: make(map[string]map[chan app.Document]struct{}),
	}
}

func (s *DocStore) Create(_ context.Context, collection string, fields map[string]any) (string, error) {
	id := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	docs, ok := s.collections[collection]
	if !ok {
		docs = make(map[string]map[string]any)
		s.collections[collection] = docs
	}
	docs[id] = deepCopy(fields)
	s.notifyLocked(collection, id)
	return id, nil
}

func (s *DocStore) Get(_ context.Context, collection, id string) (app.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fields, ok := s.collections[collection][id]
	if !ok {
		return app.Document{}, domain.ErrDocumentNotFound
	}
	return app.Document{ID: id, Fields: deepCopy(fields)}, nil
}

func (s *DocStore) QueryByField(_ context.Context, collection, field string, value any) ([]app.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []app.Document
	for id, fields := range s.collections[collection] {
		if app.JSONEqual(fields[field], value) {
			out = append(out, app.Document{ID: id, Fields: deepCopy(fields)})
		}
	}
	return out, nil
}

func (s *DocStore) UpdateFields(_ context.Context, collection, id string, partial map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fields, ok := s.collections[collection][id]
	if !ok {
		return domain.ErrDocumentNotFound
	}
	for k, v := range deepCopy(partial) {
		fields[k] = v
	}
	s.notifyLocked(collection, id)
	return nil
}

func (s *DocStore) ArrayUnion(_ context.Context, collection, id, field string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fields, ok := s.collections[collection][id]
	if !ok {
		return domain.ErrDocumentNotFound
	}
	arr, _ := fields[field].([]any)
	for _, existing := range arr {
		if app.JSONEqual(existing, value) {
			return nil
		}
	}
	fields[field] = append(arr, copyValue(value))
	s.notifyLocked(collection, id)
	return nil
}

func (s *DocStore) ArrayRemove(_ context.Context, collection, id, field string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fields, ok := s.collections[collection][id]
	if !ok {
		return domain.ErrDocumentNotFound
	}
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
		return nil
	}
	fields[field] = kept
	s.notifyLocked(collection, id)
	return nil
}

// Subscribe delivers document snapshots after every mutation. Slow consumers
// lose intermediate snapshots, never the latest one.
func (s *DocStore) Subscribe(_ context.Context, collection, id string, onChange func(app.Document)) (func(), error) {
	key := collection + "/" + id
	ch := make(chan app.Document, 8)

	s.mu.Lock()
	subs, ok := s.subscribers[key]
	if !ok {
		subs = make(map[chan app.Document]struct{})
		s.subscribers[key] = subs
	}
	subs[ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		for doc := range ch {
			onChange(doc)
		}
	}()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[key][ch]; ok {
			delete(s.subscribers[key], ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return cancel, nil
}

func (s *DocStore) notifyLocked(collection, id string) {
	subs := s.subscribers[collection+"/"+id]
	if len(subs) == 0 {
		return
	}
	doc := app.Document{ID: id, Fields: deepCopy(s.collections[collection][id])}
	for ch := range subs {
		select {
		case ch <- doc:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- doc
		}
	}
}

func deepCopy(fields map[string]any) map[string]any {
	raw, err := json.Marshal(fields)
	if err != nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(fields))
	_ = json.Unmarshal(raw, &out)
	return out
}

func copyValue(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	_ = json.Unmarshal(raw, &out)
	return out
}
