package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func ConnectMongoDB(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetRegistry(NewRegistry()).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(100).
		SetMinPoolSize(10)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(database), nil
}

type indexer interface {
	CreateIndexes(ctx context.Context) error
}

// Store bundles the MongoDB repositories over one database.
type Store struct {
	Carts     CartRepository
	Checkouts CheckoutRepository
	Orders    OrderRepository
	Payments  PaymentRepository
	Stock     StockRepository
	Coupons   CouponRepository
	Addresses AddressRepository
	Catalog   CatalogRepository
	Outbox    OutboxRepository
}

func NewStore(db *mongo.Database) *Store {
	return &Store{
		Carts:     NewCartRepository(db),
		Checkouts: NewCheckoutRepository(db),
		Orders:    NewOrderRepository(db),
		Payments:  NewPaymentRepository(db),
		Stock:     NewStockRepository(db),
		Coupons:   NewCouponRepository(db),
		Addresses: NewAddressRepository(db),
		Catalog:   NewCatalogRepository(db),
		Outbox:    NewOutboxRepository(db),
	}
}

// CreateIndexes creates the indexes of every repository that declares some.
func (s *Store) CreateIndexes(ctx context.Context) error {
	for _, r := range []any{s.Carts, s.Checkouts, s.Orders, s.Payments, s.Stock, s.Coupons, s.Addresses, s.Catalog, s.Outbox} {
		ix, ok := r.(indexer)
		if !ok {
			continue
		}
		if err := ix.CreateIndexes(ctx); err != nil {
			return err
		}
	}
	return nil
}
