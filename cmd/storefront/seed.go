package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository/memory"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/shopspring/decimal"
)

const (
	demoProducts = 12
	demoUserID   = "demo-user"
	demoPhone    = "9000000000"
)

var demoSizes = []string{"S", "M", "L"}

// seedDemoData fills an empty in-memory store with a small catalog, stock, a
// public coupon and one address for demo-user, so the flow can be tried
// without MongoDB. The fixed seed keeps ids stable across restarts.
func seedDemoData(ctx context.Context, db *memory.DB) {
	faker := gofakeit.New(42)
	store := db.Store()
	now := time.Now().UTC()

	for i := 1; i <= demoProducts; i++ {
		productID := fmt.Sprintf("p%d", i)
		db.PutProduct(domain.Product{
			ID:       productID,
			Name:     faker.ProductName(),
			ImageURL: faker.URL(),
			Active:   true,
		})

		for _, size := range demoSizes {
			price := decimal.NewFromFloat(faker.Price(199, 2999)).Round(0)
			db.PutPrice(domain.PriceRecord{
				ID:              productID + "-" + size,
				ProductID:       productID,
				SKU:             size,
				OriginalPrice:   price,
				DiscountPercent: decimal.NewFromInt(int64(faker.IntRange(0, 3) * 10)),
				Active:          true,
				UpdatedAt:       now,
			})
			if err := store.Stock.Upsert(ctx, domain.StockRecord{
				ProductID: productID,
				SKU:       size,
				Quantity:  faker.IntRange(0, 25),
				UpdatedAt: now,
			}); err != nil {
				logger.FromContext(ctx).Warn("demo stock seed failed", "product_id", productID, "sku", size, "error", err)
			}
		}
	}

	db.PutPublicCoupon(domain.PublicCoupon{
		ID:            "welcome10",
		Code:          "WELCOME10",
		Type:          domain.CouponTypePercentage,
		Value:         decimal.NewFromInt(10),
		MinCartAmount: decimal.NewFromInt(500),
		Status:        domain.CouponStatusActive,
		PerUserLimit:  1,
	})
	db.PutUserCoupon(domain.UserCoupon{
		ID:     "demo-flat150",
		Code:   "FLAT150",
		Phone:  demoPhone,
		Type:   domain.CouponTypeFlat,
		Value:  decimal.NewFromInt(150),
		Status: domain.CouponStatusActive,
	})
	db.PutAddress(domain.Address{
		ID:         "demo-address",
		UserID:     demoUserID,
		Name:       faker.Name(),
		Phone:      demoPhone,
		Line1:      faker.Street(),
		City:       faker.City(),
		State:      faker.State(),
		PostalCode: faker.Zip(),
		Country:    "IN",
		UpdatedAt:  now,
	})

	logger.FromContext(ctx).Info("seeded demo catalog", "products", demoProducts, "user_id", demoUserID)
}
