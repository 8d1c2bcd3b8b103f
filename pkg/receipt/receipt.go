// Package receipt implements the merge-only update model shared by payment
// and agreement receipts. Receipts are the only shared mutable state in the
// protocol layer; both participants write to them, so updates are merged
// field by field and never applied as whole-object replacement.
package receipt

import (
	"context"
	"encoding/json"
	"errors"
)

var ErrNotFound = errors.New("receipt not found")

// Key addresses one receipt.
type Key struct {
	ConversationID string
	ClientID       string
}

// Fields is one receipt's state as a flat field-name-keyed record.
type Fields map[string]any

// statusRank orders every status that can appear in a receipt. Merge keeps
// the higher rank, which makes status handling commutative and forward-only.
var statusRank = map[string]int{
	"requested":   0,
	"pending_b":   0,
	"pending_a":   1,
	"paid":        2,
	"signed_both": 2,
}

// Merge applies patch onto base: commutative on disjoint fields,
// last-write-wins per field name on overlaps, idempotent. The status field
// never moves backwards. Neither input is mutated.
func Merge(base, patch Fields) Fields {
	out := make(Fields, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		if k == "status" {
			if prev, ok := out[k].(string); ok {
				next, _ := v.(string)
				if statusRank[next] < statusRank[prev] {
					continue
				}
			}
		}
		out[k] = v
	}
	return out
}

// ToFields converts a struct with omitempty JSON tags into a patch holding
// only its set fields.
func ToFields(v any) (Fields, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var f Fields
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, err
	}
	return f, nil
}

// FromFields decodes a receipt record into a typed struct.
func FromFields(f Fields, dst any) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

// Store holds receipts keyed by conversation and client id. Apply performs
// a read-merge-write of the patch and returns the merged record.
type Store interface {
	Get(ctx context.Context, key Key) (Fields, error)
	Apply(ctx context.Context, key Key, patch Fields) (Fields, error)
}
