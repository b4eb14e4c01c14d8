package catalog

import (
	"context"

	"storefront-catalog-service/internal/domain"
)

// CategorySource identifies which backing data answered a categories query.
type CategorySource string

const (
	// SourceCollection means the explicit category registry was non-empty
	// and is authoritative.
	SourceCollection CategorySource = "collection"
	// SourceItems means the registry was empty and categories were derived
	// from the distinct values present on items.
	SourceItems CategorySource = "items"
)

// CategoryList is the resolved set of category names with its provenance.
type CategoryList struct {
	Categories []string
	Source     CategorySource
}

// CategoryLister reads the explicit category registry, sorted by name
// ascending (byte order).
type CategoryLister interface {
	ListCategories(ctx context.Context) ([]domain.Category, error)
}

// ItemCategoryLister reads the distinct category values present on items.
// Items without a category are excluded.
type ItemCategoryLister interface {
	DistinctItemCategories(ctx context.Context) ([]string, error)
}

// ResolveCategories returns the authoritative category list. Stores that
// predate the category registry still work: while the registry is empty,
// categories are derived from existing items. As soon as one category is
// registered, the registry wins and item-derived values are no longer
// surfaced unless also registered.
func ResolveCategories(ctx context.Context, categories CategoryLister, items ItemCategoryLister) (CategoryList, error) {
	stored, err := categories.ListCategories(ctx)
	if err != nil {
		return CategoryList{}, err
	}

	if len(stored) > 0 {
		names := make([]string, len(stored))
		for i, c := range stored {
			names[i] = c.Name
		}
		return CategoryList{Categories: names, Source: SourceCollection}, nil
	}

	derived, err := items.DistinctItemCategories(ctx)
	if err != nil {
		return CategoryList{}, err
	}
	if derived == nil {
		derived = []string{}
	}
	return CategoryList{Categories: derived, Source: SourceItems}, nil
}
