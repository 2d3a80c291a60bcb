// Package store provides the key-value adapter over the single application
// table. Entity-specific key conventions live in the repository layer; this
// package only understands opaque PK/SK pairs.
package store

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Key is a composite partition/sort key into the shared table.
type Key struct {
	PK string
	SK string
}

// Item is a raw table item. Every item carries its PK and SK attributes.
type Item map[string]types.AttributeValue

// ItemKey extracts the composite key from an item. Missing attributes come
// back as empty strings.
func ItemKey(item Item) Key {
	return Key{PK: stringAttr(item, "PK"), SK: stringAttr(item, "SK")}
}

func stringAttr(item Item, name string) string {
	if av, ok := item[name].(*types.AttributeValueMemberS); ok {
		return av.Value
	}
	return ""
}

// Store is the contract the repositories program against.
//
// Operations are single network calls that may fail transiently; the adapter
// does not retry on behalf of its callers. The exception is re-driving
// unprocessed items inside one batch call, which is completing that call, not
// retrying a failed one. Failures are wrapped and propagated, never swallowed.
type Store interface {
	// Get returns the item at key, or nil if absent.
	Get(ctx context.Context, key Key) (Item, error)

	// Put writes the item unconditionally.
	Put(ctx context.Context, item Item) error

	// PutConditional writes the item only if no item exists at its key.
	// Returns true iff the write was applied; a lost race is (false, nil),
	// never an error.
	PutConditional(ctx context.Context, item Item) (bool, error)

	// UpdateFields applies an atomic partial update, setting exactly the
	// given attributes and leaving all others alone.
	UpdateFields(ctx context.Context, key Key, fields map[string]types.AttributeValue) error

	// Query returns all items under pk whose sort key begins with skPrefix,
	// in the table's natural sort-key order. An empty prefix matches the
	// whole partition.
	Query(ctx context.Context, pk, skPrefix string) ([]Item, error)

	// BatchPut writes the items, chunked to the table's batch-size limit.
	// An empty slice is a no-op without a network call.
	BatchPut(ctx context.Context, items []Item) error

	// BatchGet fetches the items at keys, chunked to the batch-read limit.
	// Result order is not guaranteed to match the input; absent keys are
	// simply missing from the result. An empty slice is a no-op.
	BatchGet(ctx context.Context, keys []Key) ([]Item, error)
}
