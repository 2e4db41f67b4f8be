package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// CollectionSessions holds one document per live session.
const CollectionSessions = "sessions"

// Document is a stored record: an opaque id plus JSON-shaped fields
// (string, float64, bool, []any, map[string]any after decoding).
type Document struct {
	ID     string
	Fields map[string]any
}

// DocumentStore abstracts the managed document database the session flow runs on.
// Implementations must provide set semantics for ArrayUnion (re-adding an equal
// element is a no-op) and idempotent ArrayRemove. Subscribe delivers change
// notifications at least once, eventually, with no cross-client ordering guarantee.
type DocumentStore interface {
	Create(ctx context.Context, collection string, fields map[string]any) (string, error)
	Get(ctx context.Context, collection, id string) (Document, error)
	QueryByField(ctx context.Context, collection, field string, value any) ([]Document, error)
	UpdateFields(ctx context.Context, collection, id string, partial map[string]any) error
	ArrayUnion(ctx context.Context, collection, id, field string, value any) error
	ArrayRemove(ctx context.Context, collection, id, field string, value any) error
	Subscribe(ctx context.Context, collection, id string, onChange func(Document)) (func(), error)
}

// EncodeFields converts a struct into the JSON-shaped map a DocumentStore holds.
func EncodeFields(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	fields := make(map[string]any)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	return fields, nil
}

// EncodeValue converts a value into its JSON-shaped form, suitable for
// ArrayUnion/ArrayRemove arguments and field comparisons.
func EncodeValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return out, nil
}

// DecodeFields populates a struct from stored document fields.
func DecodeFields(fields map[string]any, v any) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// JSONEqual reports whether two values have identical canonical JSON encodings.
// Array membership in the document stores is decided with this comparison.
func JSONEqual(a, b any) bool {
	ra, err := json.Marshal(a)
	if err != nil {
		return false
	}
	rb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ra, rb)
}
