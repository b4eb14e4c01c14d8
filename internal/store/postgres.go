package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/lib/pq"

	"storefront-catalog-service/internal/domain"
)

// postgresSchema creates the three collections and the unique indexes that
// act as the concurrency-control boundary: item slug, case-insensitive
// category name and the (anonymous_user_id, item_id) favourite pair.
const postgresSchema = `
CREATE SCHEMA IF NOT EXISTS catalog;

CREATE TABLE IF NOT EXISTS catalog.categories (
    id         BIGSERIAL PRIMARY KEY,
    name       TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE UNIQUE INDEX IF NOT EXISTS categories_name_lower_key
    ON catalog.categories (LOWER(name));

CREATE TABLE IF NOT EXISTS catalog.items (
    id          BIGSERIAL PRIMARY KEY,
    name        TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT 'all',
    slug        TEXT NOT NULL,
    price       DOUBLE PRECISION NOT NULL CHECK (price >= 0),
    media       JSONB NOT NULL DEFAULT '[]',
    category    TEXT NOT NULL DEFAULT 'all',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE UNIQUE INDEX IF NOT EXISTS items_slug_key ON catalog.items (slug);

CREATE TABLE IF NOT EXISTS catalog.favourites (
    id                BIGSERIAL PRIMARY KEY,
    anonymous_user_id TEXT NOT NULL,
    item_id           BIGINT NOT NULL REFERENCES catalog.items(id),
    created_at        TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE UNIQUE INDEX IF NOT EXISTS favourites_user_item_key
    ON catalog.favourites (anonymous_user_id, item_id);
CREATE INDEX IF NOT EXISTS favourites_item_id_idx
    ON catalog.favourites (item_id);
`

// PostgresStore implements the CategoryStorer, ItemStorer and
// FavouriteStorer interfaces using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore instance.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the catalog schema, tables and indexes if they
// don't already exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("store: creating schema: %w", err)
	}
	return nil
}

// --- CategoryStorer Implementation ---

func (s *PostgresStore) CreateCategory(ctx context.Context, name string) (*domain.Category, error) {
	query := `
		INSERT INTO catalog.categories (name)
		VALUES ($1)
		RETURNING id, name, created_at, updated_at;
	`
	var created domain.Category
	err := s.db.QueryRowContext(ctx, query, name).Scan(
		&created.ID,
		&created.Name,
		&created.CreatedAt,
		&created.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" { // Unique violation
			if strings.Contains(pqErr.Constraint, "categories_name_lower_key") || strings.Contains(pqErr.Detail, "Key (lower(name))") {
				return nil, ErrCategoryNameExists
			}
		}
		return nil, fmt.Errorf("store: CreateCategory failed to scan row: %w", err)
	}
	return &created, nil
}

// ListCategories returns all registered categories sorted by name
// ascending. The "C" collation pins byte ordering so results do not shift
// with the database locale.
func (s *PostgresStore) ListCategories(ctx context.Context) ([]domain.Category, error) {
	query := `
		SELECT id, name, created_at, updated_at
		FROM catalog.categories
		ORDER BY name COLLATE "C" ASC;
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: ListCategories failed to query categories: %w", err)
	}
	defer rows.Close()

	categories := []domain.Category{}
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: ListCategories failed to scan category row: %w", err)
		}
		categories = append(categories, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: ListCategories iteration error: %w", err)
	}
	return categories, nil
}

// --- ItemStorer Implementation ---

func (s *PostgresStore) CreateItem(ctx context.Context, item *domain.Item) (*domain.Item, error) {
	query := `
		INSERT INTO catalog.items (name, description, slug, price, media, category)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, name, description, slug, price, media, category, created_at;
	`
	mediaJSON, err := json.Marshal(item.Media)
	if err != nil {
		return nil, fmt.Errorf("store: CreateItem failed to marshal media: %w", err)
	}
	if item.Media == nil {
		mediaJSON = []byte("[]")
	}

	row := s.db.QueryRowContext(ctx, query,
		item.Name, item.Description, item.Slug, item.Price, mediaJSON, item.Category,
	)

	created, err := scanItem(row.Scan)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			if strings.Contains(pqErr.Constraint, "items_slug_key") || strings.Contains(pqErr.Detail, "Key (slug)") {
				return nil, ErrItemSlugExists
			}
		}
		return nil, fmt.Errorf("store: CreateItem failed to scan row: %w", err)
	}
	return created, nil
}

// itemColumns is the select list shared by the item queries. The count is
// a read-side projection over the favourites collection, recomputed on
// every query.
const itemColumns = `
		i.id, i.name, i.description, i.slug, i.price, i.media, i.category, i.created_at,
		COUNT(f.id) AS favourite_count
`

// scanItem scans one item row (including favourite_count) using the given
// scan function, decoding the media JSON column.
func scanItem(scan func(dest ...interface{}) error) (*domain.Item, error) {
	var item domain.Item
	var mediaJSON []byte
	if err := scan(
		&item.ID, &item.Name, &item.Description, &item.Slug, &item.Price,
		&mediaJSON, &item.Category, &item.CreatedAt, &item.FavouriteCount,
	); err != nil {
		return nil, err
	}
	item.Media = []domain.Media{}
	if len(mediaJSON) > 0 {
		if err := json.Unmarshal(mediaJSON, &item.Media); err != nil {
			return nil, fmt.Errorf("decoding media: %w", err)
		}
	}
	return &item, nil
}

func (s *PostgresStore) ListItems(ctx context.Context, params ListItemsParams) ([]domain.Item, error) {
	var queryArgs []interface{}
	whereCondition := ""
	if params.Category != "" && params.Category != domain.CategoryAll {
		whereCondition = " WHERE i.category = $1"
		queryArgs = append(queryArgs, params.Category)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM catalog.items i
		LEFT JOIN catalog.favourites f ON f.item_id = i.id
		%s
		GROUP BY i.id
		ORDER BY %s;
	`, itemColumns, whereCondition, itemOrderClause(params))

	rows, err := s.db.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("store: ListItems failed to query items: %w", err)
	}
	defer rows.Close()

	items := []domain.Item{}
	for rows.Next() {
		item, err := scanItem(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("store: ListItems failed to scan item row: %w", err)
		}
		items = append(items, *item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: ListItems iteration error: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetItemBySlug(ctx context.Context, slug string) (*domain.Item, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM catalog.items i
		LEFT JOIN catalog.favourites f ON f.item_id = i.id
		WHERE i.slug = $1
		GROUP BY i.id;
	`, itemColumns)

	item, err := scanItem(s.db.QueryRowContext(ctx, query, slug).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("store: GetItemBySlug failed to scan row: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM catalog.items WHERE slug = $1);`
	if err := s.db.QueryRowContext(ctx, query, slug).Scan(&exists); err != nil {
		return false, fmt.Errorf("store: SlugExists failed to scan row: %w", err)
	}
	return exists, nil
}

// DistinctItemCategories returns the distinct category values present on
// items, excluding items without one. Used as the fallback source for the
// category resolver; no ordering is guaranteed.
func (s *PostgresStore) DistinctItemCategories(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT category FROM catalog.items WHERE category <> '';`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: DistinctItemCategories failed to query items: %w", err)
	}
	defer rows.Close()

	categories := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("store: DistinctItemCategories failed to scan row: %w", err)
		}
		categories = append(categories, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: DistinctItemCategories iteration error: %w", err)
	}
	return categories, nil
}

// --- FavouriteStorer Implementation ---

func (s *PostgresStore) ListFavourites(ctx context.Context, anonymousUserID string) ([]domain.Favourite, error) {
	query := `
		SELECT f.id, f.anonymous_user_id, f.item_id, f.created_at,
			i.id, i.slug, i.name, i.price
		FROM catalog.favourites f
		JOIN catalog.items i ON i.id = f.item_id
		WHERE f.anonymous_user_id = $1
		ORDER BY f.created_at DESC;
	`
	rows, err := s.db.QueryContext(ctx, query, anonymousUserID)
	if err != nil {
		return nil, fmt.Errorf("store: ListFavourites failed to query favourites: %w", err)
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
			return nil, fmt.Errorf("store: ListFavourites failed to scan favourite row: %w", err)
		}
		f.Item = &ref
		favourites = append(favourites, f)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: ListFavourites iteration error: %w", err)
	}
	return favourites, nil
}

// ToggleFavourite flips the favourite relation for the (user, item) pair
// and reports the resulting state. The delete-then-insert sequence leans
// on the favourites_user_item_key unique index rather than read-then-act
// logic: a concurrent toggle racing on the same pair loses on the index
// and its insert degrades to a no-op.
func (s *PostgresStore) ToggleFavourite(ctx context.Context, itemID int64, anonymousUserID string) (bool, error) {
	var itemExists bool
	existsQuery := `SELECT EXISTS(SELECT 1 FROM catalog.items WHERE id = $1);`
	if err := s.db.QueryRowContext(ctx, existsQuery, itemID).Scan(&itemExists); err != nil {
		return false, fmt.Errorf("store: ToggleFavourite failed to check item: %w", err)
	}
	if !itemExists {
		return false, ErrItemNotFound
	}

	deleteQuery := `DELETE FROM catalog.favourites WHERE anonymous_user_id = $1 AND item_id = $2;`
	result, err := s.db.ExecContext(ctx, deleteQuery, anonymousUserID, itemID)
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

	// Nothing to delete, so favourite the item. If a concurrent toggle
	// wins the insert the pair ends up favourited either way.
	insertQuery := `
		INSERT INTO catalog.favourites (anonymous_user_id, item_id)
		VALUES ($1, $2)
		ON CONFLICT (anonymous_user_id, item_id) DO NOTHING;
	`
	if _, err := s.db.ExecContext(ctx, insertQuery, anonymousUserID, itemID); err != nil {
		return false, fmt.Errorf("store: ToggleFavourite failed to insert favourite: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) Close() error {
	if s.db != nil {
		log.Println("INFO: Closing database connection pool...")
		if err := s.db.Close(); err != nil {
			log.Printf("ERROR: Failed to close database connection pool: %v", err)
			return err
		}
	}
	return nil
}
