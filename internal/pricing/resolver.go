// Package pricing turns cart lines into priced checkout lines using the
// active price records of the catalog.
package pricing

import (
	"context"
	"fmt"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

const ReasonNoActivePrice = "no active price for sku"

type Result struct {
	Lines    []domain.CheckoutLine
	Subtotal decimal.Decimal
	// Warnings lists the cart lines left out because they could not be priced.
	Warnings []domain.PricingWarning
}

type Resolver struct {
	catalog repository.CatalogRepository
}

func NewResolver(catalog repository.CatalogRepository) *Resolver {
	return &Resolver{catalog: catalog}
}

// Resolve prices lines with one catalog lookup. It has no side effects.
func (r *Resolver) Resolve(ctx context.Context, lines []domain.CartLine) (*Result, error) {
	keys := lo.Map(lines, func(l domain.CartLine, _ int) domain.SKUKey {
		return domain.SKUKey{ProductID: l.ProductID, SKU: l.SKU}
	})

	records, err := r.catalog.FindActivePrices(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load prices: %w", err)
	}
	bySKU := lo.KeyBy(records, func(p domain.PriceRecord) domain.SKUKey {
		return domain.SKUKey{ProductID: p.ProductID, SKU: p.SKU}
	})

	res := &Result{Lines: make([]domain.CheckoutLine, 0, len(lines)), Subtotal: decimal.Zero}
	for _, l := range lines {
		rec, ok := bySKU[domain.SKUKey{ProductID: l.ProductID, SKU: l.SKU}]
		if !ok {
			res.Warnings = append(res.Warnings, domain.PricingWarning{
				ProductID: l.ProductID,
				SKU:       l.SKU,
				Reason:    ReasonNoActivePrice,
			})
			continue
		}

		unit := rec.UnitPrice()
		total := domain.RoundMoney(unit.Mul(decimal.NewFromInt(int64(l.Quantity))))
		res.Lines = append(res.Lines, domain.CheckoutLine{
			ProductID:         l.ProductID,
			SKU:               l.SKU,
			Quantity:          l.Quantity,
			OriginalUnitPrice: domain.RoundMoney(rec.OriginalPrice),
			UnitPrice:         unit,
			LineTotal:         total,
		})
		res.Subtotal = res.Subtotal.Add(total)
	}

	return res, nil
}
