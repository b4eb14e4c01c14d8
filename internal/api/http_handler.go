package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"storefront-catalog-service/internal/catalog"
	"storefront-catalog-service/internal/domain"
	"storefront-catalog-service/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// HTTPHandler holds dependencies for HTTP handlers.
type HTTPHandler struct {
	categoryStore  store.CategoryStorer
	itemStore      store.ItemStorer
	favouriteStore store.FavouriteStorer
	validate       *validator.Validate
}

// NewHTTPHandler creates a new HTTPHandler with dependencies.
func NewHTTPHandler(cs store.CategoryStorer, is store.ItemStorer, fs store.FavouriteStorer) *HTTPHandler {
	return &HTTPHandler{
		categoryStore:  cs,
		itemStore:      is,
		favouriteStore: fs,
		validate:       validator.New(),
	}
}

// --- Helpers ---

// ErrorResponse defines the structure for JSON error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			log.Printf("ERROR: Failed to encode JSON response: %v", err)
			http.Error(w, `{"error": "Internal server error during JSON encoding"}`, http.StatusInternalServerError)
		}
	}
}

// --- Category Handlers ---

// CategoriesResponse is the dual-source category listing. Exactly one of
// FromCollection/FromItems is set so callers can tell which branch of the
// resolver answered.
type CategoriesResponse struct {
	Categories     []string `json:"categories"`
	FromCollection bool     `json:"fromCollection,omitempty"`
	FromItems      bool     `json:"fromItems,omitempty"`
}

func (h *HTTPHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	resolved, err := catalog.ResolveCategories(r.Context(), h.categoryStore, h.itemStore)
	if err != nil {
		// Category reads are non-fatal to page rendering: degrade to an
		// empty listing, but never silently.
		log.Printf("ERROR: ListCategories store operation failed: %v", err)
		respondWithJSON(w, http.StatusOK, CategoriesResponse{Categories: []string{}})
		return
	}

	respondWithJSON(w, http.StatusOK, CategoriesResponse{
		Categories:     resolved.Categories,
		FromCollection: resolved.Source == catalog.SourceCollection,
		FromItems:      resolved.Source == catalog.SourceItems,
	})
}

// CategoryCreateInput defines the expected input for creating a category.
type CategoryCreateInput struct {
	Name string `json:"name" validate:"max=255"`
}

func (h *HTTPHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var input CategoryCreateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	// Whitespace-only names are as invalid as missing ones; the trimmed
	// name is what gets persisted.
	name := strings.TrimSpace(input.Name)
	if name == "" {
		respondWithError(w, http.StatusBadRequest, "Category name is required")
		return
	}

	created, err := h.categoryStore.CreateCategory(r.Context(), name)
	if err != nil {
		log.Printf("ERROR: CreateCategory store operation failed: %v", err)
		if errors.Is(err, store.ErrCategoryNameExists) {
			respondWithError(w, http.StatusConflict, store.ErrCategoryNameExists.Error())
		} else {
			respondWithError(w, http.StatusInternalServerError, "Failed to create category")
		}
		return
	}

	respondWithJSON(w, http.StatusCreated, struct {
		Category *domain.Category `json:"category"`
	}{Category: created})
}

// --- Item Handlers ---

// ItemsResponse wraps an item listing.
type ItemsResponse struct {
	Items []domain.Item `json:"items"`
}

func (h *HTTPHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	qParams := r.URL.Query()
	params := store.ListItemsParams{
		Category:  qParams.Get("category"),
		SortBy:    qParams.Get("sort"),
		SortOrder: qParams.Get("order"),
	}

	items, err := h.itemStore.ListItems(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: ListItems store operation failed: %v", err)
		respondWithJSON(w, http.StatusOK, ItemsResponse{Items: []domain.Item{}})
		return
	}

	respondWithJSON(w, http.StatusOK, ItemsResponse{Items: items})
}

// MediaInput is one media entry on an item-creation request.
type MediaInput struct {
	Type string `json:"type" validate:"required,oneof=image video"`
	URL  string `json:"url" validate:"required,url"`
}

// ItemCreateInput defines the expected input for creating an item.
// Price is a pointer so a zero price still counts as provided.
type ItemCreateInput struct {
	Name        string       `json:"name" validate:"required,max=255"`
	Description *string      `json:"description" validate:"omitempty"`
	Price       *float64     `json:"price" validate:"required,gte=0"`
	Media       []MediaInput `json:"media" validate:"omitempty,dive"`
	Category    string       `json:"category" validate:"required,max=255"`
}

func (h *HTTPHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var input ItemCreateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	slug, err := catalog.UniqueSlug(r.Context(), h.itemStore, input.Name)
	if err != nil {
		log.Printf("ERROR: CreateItem slug generation failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to create item")
		return
	}

	description := domain.CategoryAll
	if input.Description != nil {
		description = *input.Description
	}
	media := make([]domain.Media, 0, len(input.Media))
	for _, m := range input.Media {
		media = append(media, domain.Media{Type: m.Type, URL: m.URL})
	}

	item := &domain.Item{
		Name:        input.Name,
		Description: description,
		Slug:        slug,
		Price:       *input.Price,
		Media:       media,
		Category:    input.Category,
	}

	created, err := h.itemStore.CreateItem(r.Context(), item)
	if err != nil {
		log.Printf("ERROR: CreateItem store operation failed: %v", err)
		if errors.Is(err, store.ErrItemSlugExists) {
			// Someone claimed the slug between the uniqueness check and
			// the write; the unique index is the final arbiter.
			respondWithError(w, http.StatusConflict, store.ErrItemSlugExists.Error())
		} else {
			respondWithError(w, http.StatusInternalServerError, "Failed to create item")
		}
		return
	}

	respondWithJSON(w, http.StatusCreated, struct {
		Item *domain.Item `json:"item"`
	}{Item: created})
}

func (h *HTTPHandler) GetItemBySlug(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	item, err := h.itemStore.GetItemBySlug(r.Context(), slug)
	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			respondWithError(w, http.StatusNotFound, store.ErrItemNotFound.Error())
		} else {
			log.Printf("ERROR: GetItemBySlug store operation for slug %q failed: %v", slug, err)
			respondWithError(w, http.StatusInternalServerError, "Failed to retrieve item")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, struct {
		Item *domain.Item `json:"item"`
	}{Item: item})
}

// --- Favourite Handlers ---

// FavouritesResponse wraps a per-user favourites listing.
type FavouritesResponse struct {
	Favourites []domain.Favourite `json:"favourites"`
}

func (h *HTTPHandler) ListFavourites(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" {
		respondWithError(w, http.StatusBadRequest, "userId is required")
		return
	}

	// Identifiers are self-issued by callers, so an unknown one yields an
	// empty listing rather than an error.
	favourites, err := h.favouriteStore.ListFavourites(r.Context(), userID)
	if err != nil {
		log.Printf("ERROR: ListFavourites store operation failed: %v", err)
		respondWithJSON(w, http.StatusOK, FavouritesResponse{Favourites: []domain.Favourite{}})
		return
	}

	respondWithJSON(w, http.StatusOK, FavouritesResponse{Favourites: favourites})
}

// FavouriteToggleInput defines the expected input for toggling a favourite.
type FavouriteToggleInput struct {
	ItemID          int64  `json:"itemId" validate:"required,gt=0"`
	AnonymousUserID string `json:"anonymousUserId" validate:"required"`
}

func (h *HTTPHandler) ToggleFavourite(w http.ResponseWriter, r *http.Request) {
	var input FavouriteToggleInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	favourited, err := h.favouriteStore.ToggleFavourite(r.Context(), input.ItemID, input.AnonymousUserID)
	if err != nil {
		log.Printf("ERROR: ToggleFavourite store operation for item %d failed: %v", input.ItemID, err)
		if errors.Is(err, store.ErrItemNotFound) {
			respondWithError(w, http.StatusNotFound, store.ErrItemNotFound.Error())
		} else {
			respondWithError(w, http.StatusInternalServerError, "Failed to toggle favourite")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, struct {
		Favourited bool `json:"favourited"`
	}{Favourited: favourited})
}

// --- Route Registration ---

// RegisterRoutes sets up the HTTP routes for the service.
func (h *HTTPHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/categories", func(r chi.Router) {
		r.Get("/", h.ListCategories)  // GET /api/v1/categories
		r.Post("/", h.CreateCategory) // POST /api/v1/categories
	})

	r.Route("/api/v1/items", func(r chi.Router) {
		r.Get("/", h.ListItems)           // GET /api/v1/items
		r.Post("/", h.CreateItem)         // POST /api/v1/items
		r.Get("/{slug}", h.GetItemBySlug) // GET /api/v1/items/{slug}
	})

	r.Route("/api/v1/favourites", func(r chi.Router) {
		r.Get("/", h.ListFavourites)   // GET /api/v1/favourites?userId=...
		r.Post("/", h.ToggleFavourite) // POST /api/v1/favourites
	})
}
