// Package pricing derives final sale prices from base prices and the global
// percentage settings.
package pricing

import (
	"math"

	"warungpos/backend/internal/domain"
)

// FinalPrice applies the global percentages to a base selling price in a
// fixed order: discount first, then tax, then service charge, then rounds to
// the nearest rupiah. Percentages are taken as-is; a discount above 100
// simply yields a negative price.
func FinalPrice(hargaJual int64, s domain.Settings) int64 {
	price := float64(hargaJual)
	price = price * (1 - s.DiscountPct/100)
	price = price * (1 + s.TaxPct/100)
	price = price * (1 + s.ServiceChargePct/100)
	return int64(math.Round(price))
}

// Reprice recomputes HargaFinal for every product against the given
// settings and returns the updated slice. Callers persist the results.
func Reprice(products []domain.Product, s domain.Settings) []domain.Product {
	out := make([]domain.Product, len(products))
	for i, p := range products {
		p.HargaFinal = FinalPrice(p.HargaJual, s)
		out[i] = p
	}
	return out
}
