package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"storefront-catalog-service/internal/domain"
)

// sqliteSchema mirrors the Postgres layout for the embedded store. The
// COLLATE NOCASE on the category name makes the unique index
// case-insensitive, matching categories_name_lower_key.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS categories (
    id         INTEGER PRIMARY KEY,
    name       TEXT NOT NULL COLLATE NOCASE,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_categories_name ON categories(name);

CREATE TABLE IF NOT EXISTS items (
    id          INTEGER PRIMARY KEY,
    name        TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT 'all',
    slug        TEXT NOT NULL,
    price       REAL NOT NULL CHECK (price >= 0),
    media       TEXT NOT NULL DEFAULT '[]',
    category    TEXT NOT NULL DEFAULT 'all',
    created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_items_slug ON items(slug);

CREATE TABLE IF NOT EXISTS favourites (
    id                INTEGER PRIMARY KEY,
    anonymous_user_id TEXT NOT NULL,
    item_id           INTEGER NOT NULL REFERENCES items(id),
    created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_favourites_user_item
    ON favourites(anonymous_user_id, item_id);
CREATE INDEX IF NOT EXISTS idx_favourites_item ON favourites(item_id);
`

// OpenSQLite opens a SQLite database connection and configures pragmas.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: opening sqlite database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: setting pragma %q: %w", p, err)
		}
	}

	return db, nil
}

// SQLiteStore implements the CategoryStorer, ItemStorer and
// FavouriteStorer interfaces using an embedded SQLite database. It is
// used for local development and integration tests.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore instance.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// EnsureSchema creates all tables and indexes if they don't already exist.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("store: creating schema: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a SQLite unique-constraint
// failure on the given table.column.
func isUniqueViolation(err error, column string) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: "+column)
}

// --- CategoryStorer Implementation ---

func (s *SQLiteStore) CreateCategory(ctx context.Context, name string) (*domain.Category, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (name, created_at, updated_at) VALUES (?, ?, ?)`,
		name, now, now,
	)
	if err != nil {
		if isUniqueViolation(err, "categories.name") {
			return nil, ErrCategoryNameExists
		}
		return nil, fmt.Errorf("store: CreateCategory: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("store: CreateCategory failed to get id: %w", err)
	}
	return &domain.Category{ID: id, Name: name, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *SQLiteStore) ListCategories(ctx context.Context) ([]domain.Category, error) {
	// The name column is COLLATE NOCASE for its unique index, so ordering
	// is pinned back to byte order to match the Postgres store.
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_at, updated_at FROM categories ORDER BY name COLLATE BINARY ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("store: ListCategories: %w", err)
	}
	defer rows.Close()

	categories := []domain.Category{}
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: ListCategories scanning category: %w", err)
		}
		categories = append(categories, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: ListCategories iteration error: %w", err)
	}
	return categories, nil
}

// --- ItemStorer Implementation ---

func (s *SQLiteStore) CreateItem(ctx context.Context, item *domain.Item) (*domain.Item, error) {
	mediaJSON, err := json.Marshal(item.Media)
	if err != nil {
		return nil, fmt.Errorf("store: CreateItem failed to marshal media: %w", err)
	}
	if item.Media == nil {
		mediaJSON = []byte("[]")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO items (name, description, slug, price, media, category, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.Name, item.Description, item.Slug, item.Price, string(mediaJSON), item.Category, time.Now().UTC(),
	)
	if err != nil {
		if isUniqueViolation(err, "items.slug") {
			return nil, ErrItemSlugExists
		}
		return nil, fmt.Errorf("store: CreateItem: %w", err)
	}

	return s.GetItemBySlug(ctx, item.Slug)
}

func (s *SQLiteStore) ListItems(ctx context.Context, params ListItemsParams) ([]domain.Item, error) {
	var queryArgs []interface{}
	whereCondition := ""
	if params.Category != "" && params.Category != domain.CategoryAll {
		whereCondition = " WHERE i.category = ?"
		queryArgs = append(queryArgs, params.Category)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM items i
		LEFT JOIN favourites f ON f.item_id = i.id
		%s
		GROUP BY i.id
		ORDER BY %s;
	`, itemColumns, whereCondition, itemOrderClause(params))

	rows, err := s.db.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("store: ListItems: %w", err)
	}
	defer rows.Close()

	items := []domain.Item{}
	for rows.Next() {
		item, err := scanItem(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("store: ListItems scanning item: %w", err)
		}
		items = append(items, *item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: ListItems iteration error: %w", err)
	}
	return items, nil
}

func (s *SQLiteStore) GetItemBySlug(ctx context.Context, slug string) (*domain.Item, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM items i
		LEFT JOIN favourites f ON f.item_id = i.id
		WHERE i.slug = ?
		GROUP BY i.id;
	`, itemColumns)

	item, err := scanItem(s.db.QueryRowContext(ctx, query, slug).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("store: GetItemBySlug: %w", err)
	}
	return item, nil
}

func (s *SQLiteStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM items WHERE slug = ?)`, slug,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("store: SlugExists: %w", err)
	}
	return exists, nil
}

func (s *SQLiteStore) DistinctItemCategories(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT category FROM items WHERE category <> ''`,
	)
	if err != nil {
		return nil, fmt.Errorf("store: DistinctItemCategories: %w", err)
	}
	defer rows.Close()

	categories := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("store: DistinctItemCategories scanning row: %w", err)
		}
		categories = append(categories, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: DistinctItemCategories iteration error: %w", err)
	}
	return categories, nil
}

// --- FavouriteStorer Implementation ---

func (s *SQLiteStore) ListFavourites(ctx context.Context, anonymousUserID string) ([]domain.Favourite, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.anonymous_user_id, f.item_id, f.created_at,
			i.id, i.slug, i.name, i.price
		FROM favourites f
		JOIN items i ON i.id = f.item_id
		WHERE f.anonymous_user_id = ?
		ORDER BY f.created_at DESC`,
		anonymousUserID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: ListFavourites: %w", err)
	}
	defer rows.Close()

	favourites := []domain.Favourite{}
	for rows.Next() {
		var f domain.Favourite
		var ref domain.ItemRef
		if err := rows.Scan(
			&f.ID, &f.AnonymousUserID, &f.ItemID, &f.CreatedAt,
			&ref.ID, &ref.Slug, &ref.Name, &ref.Price,
		); err != nil {
			return nil, fmt.Errorf("store: ListFavourites scanning favourite: %w", err)
		}
		f.Item = &ref
		favourites = append(favourites, f)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: ListFavourites iteration error: %w", err)
	}
	return favourites, nil
}

// ToggleFavourite flips the favourite relation for the (user, item) pair.
// As with the Postgres store, the unique index over the pair is the
// arbiter under concurrent toggles: INSERT OR IGNORE turns the losing
// insert into a no-op.
func (s *SQLiteStore) ToggleFavourite(ctx context.Context, itemID int64, anonymousUserID string) (bool, error) {
	var itemExists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM items WHERE id = ?)`, itemID,
	).Scan(&itemExists)
	if err != nil {
		return false, fmt.Errorf("store: ToggleFavourite failed to check item: %w", err)
	}
	if !itemExists {
		return false, ErrItemNotFound
	}

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM favourites WHERE anonymous_user_id = ? AND item_id = ?`,
		anonymousUserID, itemID,
	)
	if err != nil {
		return false, fmt.Errorf("store: ToggleFavourite failed to delete favourite: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: ToggleFavourite failed to get rows affected: %w", err)
	}
	if deleted > 0 {
		return false, nil
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO favourites (anonymous_user_id, item_id, created_at)
		 VALUES (?, ?, ?)`,
		anonymousUserID, itemID, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("store: ToggleFavourite failed to insert favourite: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
