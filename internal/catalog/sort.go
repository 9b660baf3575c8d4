package catalog

import (
	"slices"

	"github.com/vasiliy-maslov/storefront/internal/apperr"
)

type SortKey string

const (
	SortFeatured  SortKey = "featured"
	SortPriceLow  SortKey = "price-low"
	SortPriceHigh SortKey = "price-high"
	SortRating    SortKey = "rating"
	SortNewest    SortKey = "newest"
)

func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(s); k {
	case SortFeatured, SortPriceLow, SortPriceHigh, SortRating, SortNewest:
		return k, nil
	case "":
		return SortFeatured, nil
	default:
		return "", apperr.Validation("unknown sort key %q", s)
	}
}

// SortProducts returns a stably sorted copy of products; the input is untouched.
// SortFeatured moves featured products first and keeps the original order otherwise.
func SortProducts(products []Product, key SortKey) []Product {
	sorted := slices.Clone(products)

	var cmp func(a, b Product) int
	switch key {
	case SortPriceLow:
		cmp = func(a, b Product) int { return a.EffectivePrice().Cmp(b.EffectivePrice()) }
	case SortPriceHigh:
		cmp = func(a, b Product) int { return b.EffectivePrice().Cmp(a.EffectivePrice()) }
	case SortRating:
		cmp = func(a, b Product) int { return b.Rating.Cmp(a.Rating) }
	case SortNewest:
		cmp = func(a, b Product) int { return b.CreatedAt.Compare(a.CreatedAt) }
	default:
		cmp = func(a, b Product) int {
			switch {
			case a.Featured && !b.Featured:
				return -1
			case !a.Featured && b.Featured:
				return 1
			default:
				return 0
			}
		}
	}

	slices.SortStableFunc(sorted, cmp)
	return sorted
}
