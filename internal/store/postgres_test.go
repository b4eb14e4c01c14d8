package store

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-catalog-service/internal/domain"
)

// Helper function to create a mock DB and PostgresStore for testing
func newMockDBAndStore(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresStore) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err, "Failed to create sqlmock")

	store := NewPostgresStore(db)
	require.NotNil(t, store, "Store should not be nil")

	return db, mock, store
}

var itemRowColumns = []string{
	"id", "name", "description", "slug", "price", "media", "category", "created_at", "favourite_count",
}

func TestPostgresStore_CreateCategory(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	now := time.Now().Truncate(time.Millisecond)
	query := regexp.QuoteMeta(`
		INSERT INTO catalog.categories (name)
		VALUES ($1)
		RETURNING id, name, created_at, updated_at;
	`)

	rows := sqlmock.NewRows([]string{"id", "name", "created_at", "updated_at"}).
		AddRow(int64(1), "Bags", now, now)

	mock.ExpectQuery(query).WithArgs("Bags").WillReturnRows(rows)

	created, err := store.CreateCategory(context.Background(), "Bags")

	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, "Bags", created.Name)
	assert.WithinDuration(t, now, created.CreatedAt, time.Second)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateCategory_NameExists(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	query := regexp.QuoteMeta(`
		INSERT INTO catalog.categories (name)
		VALUES ($1)
		RETURNING id, name, created_at, updated_at;
	`)

	// The case-insensitive unique index rejects the duplicate.
	pqErr := &pq.Error{Code: "23505", Constraint: "categories_name_lower_key"}
	mock.ExpectQuery(query).WithArgs("bags").WillReturnError(pqErr)

	created, err := store.CreateCategory(context.Background(), "bags")

	require.ErrorIs(t, err, ErrCategoryNameExists)
	assert.Nil(t, created)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListCategories(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	now := time.Now().Truncate(time.Millisecond)
	query := regexp.QuoteMeta(`
		SELECT id, name, created_at, updated_at
		FROM catalog.categories
		ORDER BY name COLLATE "C" ASC;
	`)

	rows := sqlmock.NewRows([]string{"id", "name", "created_at", "updated_at"}).
		AddRow(int64(1), "Bags", now, now).
		AddRow(int64(2), "Shoes", now, now)

	mock.ExpectQuery(query).WillReturnRows(rows)

	categories, err := store.ListCategories(context.Background())

	require.NoError(t, err)
	require.Len(t, categories, 2)
	assert.Equal(t, "Bags", categories[0].Name)
	assert.Equal(t, "Shoes", categories[1].Name)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateItem_SlugExists(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	query := regexp.QuoteMeta(`
		INSERT INTO catalog.items (name, description, slug, price, media, category)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, name, description, slug, price, media, category, created_at;
	`)

	pqErr := &pq.Error{Code: "23505", Constraint: "items_slug_key"}
	mock.ExpectQuery(query).
		WithArgs("Tote", "all", "tote-abc12345", 10.0, []byte("[]"), "bags").
		WillReturnError(pqErr)

	created, err := store.CreateItem(context.Background(), &domain.Item{
		Name: "Tote", Description: "all", Slug: "tote-abc12345", Price: 10, Category: "bags",
	})

	require.ErrorIs(t, err, ErrItemSlugExists)
	assert.Nil(t, created)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListItems_FilteredLikesQuery(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	now := time.Now().Truncate(time.Millisecond)

	// Pin the generated SQL: category filter bound as $1, likes sort with
	// the fixed created_at DESC tie-break.
	queryPattern := `(?s)SELECT.+COUNT\(f\.id\) AS favourite_count.+` +
		`FROM catalog\.items i\s+LEFT JOIN catalog\.favourites f ON f\.item_id = i\.id\s+` +
		`WHERE i\.category = \$1\s+GROUP BY i\.id\s+` +
		`ORDER BY favourite_count DESC, i\.created_at DESC`

	rows := sqlmock.NewRows(itemRowColumns).
		AddRow(int64(1), "Tote", "all", "tote-1", 10.0, []byte(`[{"type":"image","url":"https://cdn.example.com/t.jpg"}]`), "bags", now, int64(3)).
		AddRow(int64(2), "Clutch", "all", "clutch-1", 15.0, []byte("[]"), "bags", now, int64(1))

	mock.ExpectQuery(queryPattern).WithArgs("bags").WillReturnRows(rows)

	items, err := store.ListItems(context.Background(), ListItemsParams{
		Category: "bags", SortBy: SortByLikes, SortOrder: "desc",
	})

	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, int64(3), items[0].FavouriteCount)
	assert.Equal(t, []domain.Media{{Type: "image", URL: "https://cdn.example.com/t.jpg"}}, items[0].Media)
	assert.Equal(t, []domain.Media{}, items[1].Media)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListItems_AllSentinelSkipsFilter(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	now := time.Now().Truncate(time.Millisecond)

	queryPattern := `(?s)FROM catalog\.items i\s+LEFT JOIN catalog\.favourites f ON f\.item_id = i\.id\s+` +
		`\s*GROUP BY i\.id\s+ORDER BY i\.created_at DESC`

	rows := sqlmock.NewRows(itemRowColumns).
		AddRow(int64(1), "Tote", "all", "tote-1", 10.0, []byte("[]"), "bags", now, int64(0))

	mock.ExpectQuery(queryPattern).WillReturnRows(rows)

	items, err := store.ListItems(context.Background(), ListItemsParams{Category: domain.CategoryAll})

	require.NoError(t, err)
	require.Len(t, items, 1)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SlugExists(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	query := regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM catalog.items WHERE slug = $1);`)
	mock.ExpectQuery(query).WithArgs("tote-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := store.SlugExists(context.Background(), "tote-1")

	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ToggleFavourite_DeletesExisting(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	existsQuery := regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM catalog.items WHERE id = $1);`)
	deleteQuery := regexp.QuoteMeta(`DELETE FROM catalog.favourites WHERE anonymous_user_id = $1 AND item_id = $2;`)

	mock.ExpectQuery(existsQuery).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec(deleteQuery).WithArgs("user_42", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	favourited, err := store.ToggleFavourite(context.Background(), 7, "user_42")

	require.NoError(t, err)
	assert.False(t, favourited)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ToggleFavourite_InsertsWhenAbsent(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	existsQuery := regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM catalog.items WHERE id = $1);`)
	deleteQuery := regexp.QuoteMeta(`DELETE FROM catalog.favourites WHERE anonymous_user_id = $1 AND item_id = $2;`)
	insertQuery := regexp.QuoteMeta(`
		INSERT INTO catalog.favourites (anonymous_user_id, item_id)
		VALUES ($1, $2)
		ON CONFLICT (anonymous_user_id, item_id) DO NOTHING;
	`)

	mock.ExpectQuery(existsQuery).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec(deleteQuery).WithArgs("user_42", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(insertQuery).WithArgs("user_42", int64(7)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	favourited, err := store.ToggleFavourite(context.Background(), 7, "user_42")

	require.NoError(t, err)
	assert.True(t, favourited)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ToggleFavourite_LosingInsertIsNoOp(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	existsQuery := regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM catalog.items WHERE id = $1);`)
	deleteQuery := regexp.QuoteMeta(`DELETE FROM catalog.favourites WHERE anonymous_user_id = $1 AND item_id = $2;`)
	insertQuery := regexp.QuoteMeta(`
		INSERT INTO catalog.favourites (anonymous_user_id, item_id)
		VALUES ($1, $2)
		ON CONFLICT (anonymous_user_id, item_id) DO NOTHING;
	`)

	mock.ExpectQuery(existsQuery).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec(deleteQuery).WithArgs("user_42", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	// A concurrent toggle won the insert; ON CONFLICT swallows ours.
	mock.ExpectExec(insertQuery).WithArgs("user_42", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	favourited, err := store.ToggleFavourite(context.Background(), 7, "user_42")

	require.NoError(t, err)
	assert.True(t, favourited, "pair is favourited either way; losing the race is not an error")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ToggleFavourite_ItemMissing(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	existsQuery := regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM catalog.items WHERE id = $1);`)
	mock.ExpectQuery(existsQuery).WithArgs(int64(9999)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	_, err := store.ToggleFavourite(context.Background(), 9999, "user_42")

	require.ErrorIs(t, err, ErrItemNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListFavourites(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	now := time.Now().Truncate(time.Millisecond)
	queryPattern := `(?s)FROM catalog\.favourites f\s+JOIN catalog\.items i ON i\.id = f\.item_id\s+` +
		`WHERE f\.anonymous_user_id = \$1\s+ORDER BY f\.created_at DESC`

	rows := sqlmock.NewRows([]string{
		"id", "anonymous_user_id", "item_id", "created_at", "id", "slug", "name", "price",
	}).AddRow(int64(1), "user_42", int64(7), now, int64(7), "tote-1", "Tote", 10.0)

	mock.ExpectQuery(queryPattern).WithArgs("user_42").WillReturnRows(rows)

	favourites, err := store.ListFavourites(context.Background(), "user_42")

	require.NoError(t, err)
	require.Len(t, favourites, 1)
	assert.Equal(t, int64(7), favourites[0].ItemID)
	require.NotNil(t, favourites[0].Item)
	assert.Equal(t, "tote-1", favourites[0].Item.Slug)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetItemBySlug_NotFound(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	queryPattern := `(?s)FROM catalog\.items i\s+LEFT JOIN catalog\.favourites f ON f\.item_id = i\.id\s+` +
		`WHERE i\.slug = \$1\s+GROUP BY i\.id`

	mock.ExpectQuery(queryPattern).WithArgs("missing").WillReturnError(sql.ErrNoRows)

	item, err := store.GetItemBySlug(context.Background(), "missing")

	require.ErrorIs(t, err, ErrItemNotFound)
	assert.Nil(t, item)

	require.NoError(t, mock.ExpectationsWereMet())
}
