package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storefront-catalog-service/internal/domain"
)

// Predefined errors for store operations. Handlers map these onto HTTP
// statuses with errors.Is.
var (
	ErrCategoryNameExists = errors.New("store: category name already exists")
	ErrItemNotFound       = errors.New("store: item not found")
	ErrItemSlugExists     = errors.New("store: item slug already exists")
)

// Item sort fields accepted by ListItems. Anything else falls back to
// SortByLatest rather than failing the listing.
const (
	SortByPrice  = "price"
	SortByLatest = "latest"
	SortByLikes  = "likes"
)

// ListItemsParams holds filtering and sorting parameters for ListItems.
// An empty Category (or the "all" sentinel) disables filtering.
type ListItemsParams struct {
	Category  string
	SortBy    string
	SortOrder string // "asc" or "desc"; anything else means desc
}

// itemOrderClause builds the ORDER BY expression for an item listing.
// Unknown sort fields fall back to latest rather than failing the listing,
// and likes ties always break newest-first so the order stays
// deterministic regardless of the requested direction.
func itemOrderClause(params ListItemsParams) string {
	sortOrder := "DESC"
	if strings.ToLower(params.SortOrder) == "asc" {
		sortOrder = "ASC"
	}
	switch strings.ToLower(params.SortBy) {
	case SortByLikes:
		return fmt.Sprintf("favourite_count %s, i.created_at DESC", sortOrder)
	case SortByPrice:
		return fmt.Sprintf("i.price %s", sortOrder)
	default:
		return fmt.Sprintf("i.created_at %s", sortOrder)
	}
}

// CategoryStorer defines the database operations for categories.
type CategoryStorer interface {
	CreateCategory(ctx context.Context, name string) (*domain.Category, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
}

// ItemStorer defines the database operations for items. Every item
// returned by ListItems carries its derived FavouriteCount.
type ItemStorer interface {
	CreateItem(ctx context.Context, item *domain.Item) (*domain.Item, error)
	ListItems(ctx context.Context, params ListItemsParams) ([]domain.Item, error)
	GetItemBySlug(ctx context.Context, slug string) (*domain.Item, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	DistinctItemCategories(ctx context.Context) ([]string, error)
}

// FavouriteStorer defines the database operations for the favourites
// ledger. ToggleFavourite relies on the store's unique index over
// (anonymous_user_id, item_id) so concurrent toggles on the same pair
// cannot duplicate or corrupt the relation.
type FavouriteStorer interface {
	ListFavourites(ctx context.Context, anonymousUserID string) ([]domain.Favourite, error)
	ToggleFavourite(ctx context.Context, itemID int64, anonymousUserID string) (bool, error)
}
