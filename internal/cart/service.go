package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/pkg/logger"
	"golang.org/x/sync/singleflight"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrInvalidLine     = errors.New("product id and sku are required")
)

type Service struct {
	repo    repository.CartRepository
	catalog repository.CatalogRepository
	cache   cache.CartCache
	sfg     singleflight.Group // Prevents cache stampede
}

func NewService(repo repository.CartRepository, catalog repository.CatalogRepository, c cache.CartCache) *Service {
	return &Service{
		repo:    repo,
		catalog: catalog,
		cache:   c,
	}
}

func (s *Service) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	// Use singleflight to prevent multiple concurrent cache misses for same key
	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		log := logger.FromContext(ctx)

		cart, err := s.cache.Get(ctx, userID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Warn("cart cache get failed", "user_id", userID, "error", err)
		}

		cart, err = s.repo.GetCart(ctx, userID)
		if errors.Is(err, repository.ErrCartNotFound) {
			now := time.Now().UTC()
			return &domain.Cart{UserID: userID, Items: []domain.CartLine{}, CreatedAt: now, UpdatedAt: now}, nil
		}
		if err != nil {
			return nil, err
		}

		go func() {
			setCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := s.cache.Set(setCtx, userID, cart); err != nil {
				log.Warn("cart cache set failed", "user_id", userID, "error", err)
			}
		}()

		return cart, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*domain.Cart), nil
}

func (s *Service) AddItem(ctx context.Context, userID string, line domain.CartLine) error {
	if line.ProductID == "" || line.SKU == "" {
		return ErrInvalidLine
	}
	if line.Quantity < 1 {
		return ErrInvalidQuantity
	}

	products, err := s.catalog.FindProducts(ctx, []string{line.ProductID})
	if err != nil {
		return fmt.Errorf("check product: %w", err)
	}
	if p, ok := products[line.ProductID]; !ok || !p.Active {
		return ErrProductNotFound
	}

	if err := s.repo.AddItem(ctx, userID, line); err != nil {
		logger.FromContext(ctx).Error("cart add item failed", "user_id", userID, "error", err)
		return err
	}

	s.invalidate(ctx, userID)
	return nil
}

func (s *Service) Increase(ctx context.Context, userID, productID, sku string) error {
	return s.change(ctx, userID, productID, sku, 1)
}

// Decrease lowers the line quantity by one, removing the line at zero.
func (s *Service) Decrease(ctx context.Context, userID, productID, sku string) error {
	return s.change(ctx, userID, productID, sku, -1)
}

func (s *Service) change(ctx context.Context, userID, productID, sku string, delta int) error {
	if err := s.repo.ChangeQuantity(ctx, userID, productID, sku, delta); err != nil {
		if !errors.Is(err, repository.ErrItemNotFound) {
			logger.FromContext(ctx).Error("cart change quantity failed", "user_id", userID, "error", err)
		}
		return err
	}

	s.invalidate(ctx, userID)
	return nil
}

func (s *Service) RemoveItem(ctx context.Context, userID, productID, sku string) error {
	if err := s.repo.RemoveItem(ctx, userID, productID, sku); err != nil {
		if !errors.Is(err, repository.ErrItemNotFound) {
			logger.FromContext(ctx).Error("cart remove item failed", "user_id", userID, "error", err)
		}
		return err
	}

	s.invalidate(ctx, userID)
	return nil
}

func (s *Service) ClearCart(ctx context.Context, userID string) error {
	if err := s.repo.ClearCart(ctx, userID); err != nil {
		logger.FromContext(ctx).Error("cart clear failed", "user_id", userID, "error", err)
		return err
	}

	s.invalidate(ctx, userID)
	return nil
}

// Invalidate drops the cached copy of userID's cart.
func (s *Service) Invalidate(ctx context.Context, userID string) {
	s.invalidate(ctx, userID)
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := s.cache.Delete(delCtx, userID); err != nil {
		logger.FromContext(ctx).Warn("cart cache invalidate failed", "user_id", userID, "error", err)
	}
}
