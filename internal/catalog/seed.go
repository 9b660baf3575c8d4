package catalog

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

type seedProduct struct {
	name, description, image string
	price, salePrice, rating string
	stock, reviewCount       int
	featured                 bool
	categorySlug             string
}

var seedCategories = []Category{
	{Name: "Electronics", Slug: "electronics"},
	{Name: "Clothing", Slug: "clothing"},
	{Name: "Books", Slug: "books"},
	{Name: "Home & Garden", Slug: "home-garden"},
}

var seedProducts = []seedProduct{
	{
		name: "Smartphone", description: "Latest smartphone with advanced features",
		image: "https://images.unsplash.com/photo-1511707171634-5f897ff02aa9?w=300",
		price: "699.99", salePrice: "599.99", rating: "4.5",
		stock: 50, reviewCount: 128, featured: true, categorySlug: "electronics",
	},
	{
		name: "Laptop", description: "High-performance laptop for work and gaming",
		image: "https://images.unsplash.com/photo-1496181133206-80ce9b88a853?w=300",
		price: "1299.99", rating: "4.7",
		stock: 25, reviewCount: 89, featured: true, categorySlug: "electronics",
	},
	{
		name: "T-Shirt", description: "Comfortable cotton t-shirt",
		image: "https://images.unsplash.com/photo-1521572163474-6864f9cf17ab?w=300",
		price: "29.99", salePrice: "24.99", rating: "4.2",
		stock: 100, reviewCount: 45, categorySlug: "clothing",
	},
	{
		name: "Programming Book", description: "Learn modern web development",
		image: "https://images.unsplash.com/photo-1544716278-ca5e3f4abd8c?w=300",
		price: "49.99", rating: "4.8",
		stock: 200, reviewCount: 267, featured: true, categorySlug: "books",
	},
}

// Seed fills an empty catalog with the demo categories and products.
// It does nothing when at least one category exists.
func Seed(ctx context.Context, svc Service) error {
	existing, err := svc.ListCategories(ctx)
	if err != nil {
		return fmt.Errorf("seed: failed to check existing categories: %w", err)
	}
	if len(existing) > 0 {
		log.Debug().Int("categories", len(existing)).Msg("seed: catalog already populated, skipping")
		return nil
	}

	bySlug := make(map[string]uuid.UUID, len(seedCategories))
	for _, c := range seedCategories {
		category := c
		created, err := svc.CreateCategory(ctx, &category)
		if err != nil {
			return fmt.Errorf("seed: failed to create category %s: %w", c.Slug, err)
		}
		bySlug[created.Slug] = created.ID
	}

	for _, sp := range seedProducts {
		p := &Product{
			Name:        sp.name,
			Description: sp.description,
			Image:       sp.image,
			Price:       decimal.RequireFromString(sp.price),
			Rating:      decimal.RequireFromString(sp.rating),
			Stock:       sp.stock,
			ReviewCount: sp.reviewCount,
			Featured:    sp.featured,
			CategoryID:  uuid.NullUUID{UUID: bySlug[sp.categorySlug], Valid: true},
		}
		if sp.salePrice != "" {
			sale := decimal.RequireFromString(sp.salePrice)
			p.SalePrice = &sale
		}
		if _, err := svc.CreateProduct(ctx, p); err != nil {
			return fmt.Errorf("seed: failed to create product %s: %w", sp.name, err)
		}
	}

	log.Info().Int("categories", len(seedCategories)).Int("products", len(seedProducts)).Msg("seed: catalog seeded")
	return nil
}
