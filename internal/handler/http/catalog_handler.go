package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/storefront/internal/apperr"
	"github.com/vasiliy-maslov/storefront/internal/catalog"
)

type ProductRequest struct {
	Name        string       `json:"name" validate:"required,max=200"`
	Description string       `json:"description" validate:"max=5000"`
	Image       string       `json:"image" validate:"omitempty,url"`
	Price       json.Number  `json:"price" validate:"required"`
	SalePrice   *json.Number `json:"salePrice"`
	Stock       int          `json:"stock" validate:"min=0"`
	Rating      *json.Number `json:"rating"`
	ReviewCount int          `json:"reviewCount" validate:"min=0"`
	Featured    bool         `json:"featured"`
	CategoryID  *uuid.UUID   `json:"categoryId"`
}

func (req *ProductRequest) toProduct() (*catalog.Product, error) {
	price, err := parseAmount("price", req.Price)
	if err != nil {
		return nil, err
	}
	salePrice, err := parseOptionalAmount("salePrice", req.SalePrice)
	if err != nil {
		return nil, err
	}
	rating := decimal.Zero
	if r, err := parseOptionalAmount("rating", req.Rating); err != nil {
		return nil, err
	} else if r != nil {
		rating = *r
	}

	p := &catalog.Product{
		Name:        req.Name,
		Description: req.Description,
		Image:       req.Image,
		Price:       price,
		SalePrice:   salePrice,
		Stock:       req.Stock,
		Rating:      rating,
		ReviewCount: req.ReviewCount,
		Featured:    req.Featured,
	}
	if req.CategoryID != nil {
		p.CategoryID = uuid.NullUUID{UUID: *req.CategoryID, Valid: true}
	}
	return p, nil
}

type CategoryRequest struct {
	Name string `json:"name" validate:"required,max=100"`
	Slug string `json:"slug" validate:"required,max=100"`
}

type CatalogHandler struct {
	service  catalog.Service
	validate *validator.Validate
}

func NewCatalogHandler(service catalog.Service) *CatalogHandler {
	return &CatalogHandler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *CatalogHandler) RegisterRoutes(router chi.Router) {
	router.Get("/categories", h.handleListCategories)
	router.Post("/categories", h.handleCreateCategory)

	router.Get("/products", h.handleListProducts)
	router.Post("/products", h.handleCreateProduct)
	router.Get("/products/{id}", h.handleGetProduct)
	router.Put("/products/{id}", h.handleUpdateProduct)
	router.Delete("/products/{id}", h.handleDeleteProduct)
}

func (h *CatalogHandler) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		respondWithServiceError(w, err, "Failed to list categories")
		return
	}

	resp := make([]CategoryResponse, 0, len(categories))
	for _, c := range categories {
		resp = append(resp, newCategoryResponse(c))
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *CatalogHandler) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var requestPayload CategoryRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	created, err := h.service.CreateCategory(r.Context(), &catalog.Category{
		Name: requestPayload.Name,
		Slug: requestPayload.Slug,
	})
	if err != nil {
		respondWithServiceError(w, err, "Failed to create category")
		return
	}
	respondWithJSON(w, http.StatusCreated, newCategoryResponse(*created))
}

// parseProductFilter reads the list query string. Unknown keys are ignored.
func parseProductFilter(r *http.Request) (catalog.ProductFilter, catalog.SortKey, error) {
	q := r.URL.Query()
	var filter catalog.ProductFilter

	if v := q.Get("categoryId"); v != "" {
		id, err := uuid.FromString(v)
		if err != nil {
			return filter, "", apperr.Validation("categoryId must be a UUID")
		}
		filter.CategoryID = &id
	}
	for _, bound := range []struct {
		key string
		dst **decimal.Decimal
	}{
		{"minPrice", &filter.MinPrice},
		{"maxPrice", &filter.MaxPrice},
	} {
		if v := q.Get(bound.key); v != "" {
			d, err := parseAmount(bound.key, json.Number(v))
			if err != nil {
				return filter, "", err
			}
			*bound.dst = &d
		}
	}
	filter.Search = q.Get("search")
	if v := q.Get("featured"); v != "" {
		featured, err := strconv.ParseBool(v)
		if err != nil {
			return filter, "", apperr.Validation("featured must be true or false")
		}
		filter.Featured = &featured
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return filter, "", apperr.Validation("limit must be a non-negative integer")
		}
		filter.Limit = limit
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			return filter, "", apperr.Validation("offset must be a non-negative integer")
		}
		filter.Offset = offset
	}

	key, err := catalog.ParseSortKey(q.Get("sort"))
	if err != nil {
		return filter, "", err
	}
	return filter, key, nil
}

func (h *CatalogHandler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	filter, sortKey, err := parseProductFilter(r)
	if err != nil {
		respondWithServiceError(w, err, "Invalid product query")
		return
	}

	products, err := h.service.ListProducts(r.Context(), filter)
	if err != nil {
		respondWithServiceError(w, err, "Failed to list products")
		return
	}

	if r.URL.Query().Get("sort") != "" {
		products = catalog.SortProducts(products, sortKey)
	}
	respondWithJSON(w, http.StatusOK, newProductListResponse(products))
}

func (h *CatalogHandler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, err, "Failed to get product")
		return
	}
	respondWithJSON(w, http.StatusOK, newProductResponse(product))
}

func (h *CatalogHandler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var requestPayload ProductRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	product, err := requestPayload.toProduct()
	if err != nil {
		respondWithServiceError(w, err, "Invalid product data")
		return
	}

	created, err := h.service.CreateProduct(r.Context(), product)
	if err != nil {
		respondWithServiceError(w, err, "Failed to create product")
		return
	}
	respondWithJSON(w, http.StatusCreated, newProductResponse(created))
}

func (h *CatalogHandler) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	var requestPayload ProductRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	product, err := requestPayload.toProduct()
	if err != nil {
		respondWithServiceError(w, err, "Invalid product data")
		return
	}
	product.ID = id

	updated, err := h.service.UpdateProduct(r.Context(), product)
	if err != nil {
		respondWithServiceError(w, err, "Failed to update product")
		return
	}
	respondWithJSON(w, http.StatusOK, newProductResponse(updated))
}

func (h *CatalogHandler) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteProduct(r.Context(), id); err != nil {
		respondWithServiceError(w, err, "Failed to delete product")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Product deleted"})
}
