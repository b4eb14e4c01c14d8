package domain

import "time"

// Media is a single image or video attached to an item.
type Media struct {
	Type string `json:"type"` // "image" or "video"
	URL  string `json:"url"`
}

// Item represents a catalog entry.
// The json tags use the camelCase names the storefront consumes.
type Item struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Slug        string    `json:"slug"`
	Price       float64   `json:"price"`
	Media       []Media   `json:"media"`
	Category    string    `json:"category"`
	CreatedAt   time.Time `json:"createdAt"`

	// FavouriteCount is derived from the favourites collection on every
	// listing; it is never persisted.
	FavouriteCount int64 `json:"favouriteCount"`
}

// Category is an explicitly registered catalog grouping. Names are stored
// trimmed and are unique under case-insensitive comparison.
type Category struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ItemRef carries just enough of a referenced item for a favourites
// listing caller to identify and display it.
type ItemRef struct {
	ID    int64   `json:"id"`
	Slug  string  `json:"slug"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// Favourite is the saved relation between one anonymous user and one item.
// The entity is binary: existing means favourited.
type Favourite struct {
	ID              int64     `json:"id"`
	AnonymousUserID string    `json:"anonymousUserId"`
	ItemID          int64     `json:"itemId"`
	CreatedAt       time.Time `json:"createdAt"`
	Item            *ItemRef  `json:"item,omitempty"`
}

// CategoryAll is the sentinel category value meaning "no filter". Items
// created without an explicit category also default to it.
const CategoryAll = "all"
