package bank

import (
	"context"
	"errors"
)

// ErrDuplicateItem is returned by WriteItem when an item with the same
// normalized text already exists in its scope.
var ErrDuplicateItem = errors.New("item with the same normalized text already stored")

// ContentStore is the only persistence contract the engine relies on.
// Implementations must be safe for concurrent use and must make a write
// visible to the same caller's subsequent reads.
type ContentStore interface {
	// ExistingTexts returns the question texts already stored for scope,
	// oldest first.
	ExistingTexts(ctx context.Context, scope HistoryScope) ([]string, error)

	// CountExisting returns the number of stored items in one quota cell.
	CountExisting(ctx context.Context, cell CellKey) (int, error)

	// CountPassages returns how many passages of passageType exist for a
	// section in one test mode.
	CountPassages(ctx context.Context, testType, section string, mode TestMode, passageType string) (int, error)

	// ListPassages returns the passages of passageType for a section in one
	// test mode, oldest first, each with the ids of its bound questions.
	ListPassages(ctx context.Context, testType, section string, mode TestMode, passageType string) ([]Passage, error)

	// WriteItem persists item and returns its id. The id, when empty, and
	// CreatedAt are assigned by the store.
	WriteItem(ctx context.Context, item *Item) (string, error)

	// WritePassage persists p and returns its id.
	WritePassage(ctx context.Context, p *Passage) (string, error)

	// WriteBundle persists a new passage together with its first question
	// in one transaction: either both are stored or neither is. Ids are
	// assigned as in WritePassage and WriteItem and item.PassageID is set.
	WriteBundle(ctx context.Context, p *Passage, item *Item) error
}
