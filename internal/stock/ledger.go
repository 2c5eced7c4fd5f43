// Package stock guards per-SKU quantities. Every write is a conditional
// update, so quantity never drops below zero.
package stock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/samber/lo"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
)

type Line struct {
	ProductID string
	SKU       string
	Quantity  int
}

// Shortage describes one line that cannot be served. Available is -1 when
// there is no stock record at all.
type Shortage struct {
	ProductID string `json:"product_id"`
	SKU       string `json:"sku"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// ShortageError wraps ErrInsufficientStock with the lines that fell short.
type ShortageError struct {
	Shortages []Shortage
}

func (e *ShortageError) Error() string {
	parts := lo.Map(e.Shortages, func(s Shortage, _ int) string {
		return fmt.Sprintf("%s/%s requested %d available %d", s.ProductID, s.SKU, s.Requested, s.Available)
	})
	return "insufficient stock: " + strings.Join(parts, ", ")
}

func (e *ShortageError) Unwrap() error {
	return ErrInsufficientStock
}

type Ledger struct {
	repo repository.StockRepository
}

func NewLedger(repo repository.StockRepository) *Ledger {
	return &Ledger{repo: repo}
}

func (l *Ledger) CheckAvailability(ctx context.Context, productID, sku string, qty int) (bool, error) {
	rec, err := l.repo.Get(ctx, productID, sku)
	if errors.Is(err, repository.ErrStockNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rec.Quantity >= qty, nil
}

// CheckLines returns every line whose stock is missing or short. Lines for
// the same SKU are summed first.
func (l *Ledger) CheckLines(ctx context.Context, lines []Line) ([]Shortage, error) {
	merged := mergeLines(lines)
	keys := lo.Map(merged, func(ln Line, _ int) domain.SKUKey {
		return domain.SKUKey{ProductID: ln.ProductID, SKU: ln.SKU}
	})

	records, err := l.repo.GetMany(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load stock: %w", err)
	}

	var out []Shortage
	for _, ln := range merged {
		rec, ok := records[domain.SKUKey{ProductID: ln.ProductID, SKU: ln.SKU}]
		switch {
		case !ok:
			out = append(out, Shortage{ProductID: ln.ProductID, SKU: ln.SKU, Requested: ln.Quantity, Available: -1})
		case rec.Quantity < ln.Quantity:
			out = append(out, Shortage{ProductID: ln.ProductID, SKU: ln.SKU, Requested: ln.Quantity, Available: rec.Quantity})
		}
	}
	return out, nil
}

func (l *Ledger) Decrement(ctx context.Context, productID, sku string, qty int) (*domain.StockRecord, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	rec, err := l.repo.Decrement(ctx, productID, sku, qty)
	if errors.Is(err, repository.ErrInsufficientStock) || errors.Is(err, repository.ErrStockNotFound) {
		return nil, fmt.Errorf("%s/%s: %w", productID, sku, ErrInsufficientStock)
	}
	return rec, err
}

func (l *Ledger) Increment(ctx context.Context, productID, sku string, qty int) (*domain.StockRecord, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	return l.repo.Increment(ctx, productID, sku, qty)
}

// DecrementLines decrements every line or none of them: when one decrement
// loses, the lines already taken are given back.
func (l *Ledger) DecrementLines(ctx context.Context, lines []Line) error {
	merged := mergeLines(lines)
	applied := make([]Line, 0, len(merged))

	for _, ln := range merged {
		_, err := l.Decrement(ctx, ln.ProductID, ln.SKU, ln.Quantity)
		if err == nil {
			applied = append(applied, ln)
			continue
		}

		l.compensate(ctx, applied)
		if errors.Is(err, ErrInsufficientStock) {
			available := -1
			if rec, getErr := l.repo.Get(ctx, ln.ProductID, ln.SKU); getErr == nil {
				available = rec.Quantity
			}
			return &ShortageError{Shortages: []Shortage{{
				ProductID: ln.ProductID, SKU: ln.SKU, Requested: ln.Quantity, Available: available,
			}}}
		}
		return err
	}
	return nil
}

func (l *Ledger) compensate(ctx context.Context, applied []Line) {
	ctx = context.WithoutCancel(ctx)
	for _, ln := range applied {
		if _, err := l.repo.Increment(ctx, ln.ProductID, ln.SKU, ln.Quantity); err != nil {
			logger.FromContext(ctx).Error("stock compensation failed",
				"product_id", ln.ProductID, "sku", ln.SKU, "quantity", ln.Quantity, "error", err)
		}
	}
}

// mergeLines sums quantities per SKU and orders the result so concurrent
// callers touch records in the same sequence.
func mergeLines(lines []Line) []Line {
	sums := make(map[domain.SKUKey]int, len(lines))
	for _, ln := range lines {
		sums[domain.SKUKey{ProductID: ln.ProductID, SKU: ln.SKU}] += ln.Quantity
	}
	out := make([]Line, 0, len(sums))
	for k, q := range sums {
		out = append(out, Line{ProductID: k.ProductID, SKU: k.SKU, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].SKU < out[j].SKU
	})
	return out
}

// LinesOf converts order lines to ledger lines.
func LinesOf(lines []domain.OrderLine) []Line {
	return lo.Map(lines, func(l domain.OrderLine, _ int) Line {
		return Line{ProductID: l.ProductID, SKU: l.SKU, Quantity: l.Quantity}
	})
}
