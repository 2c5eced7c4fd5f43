package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/storefront/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoAddressRepository struct {
	collection *mongo.Collection
}

func NewAddressRepository(db *mongo.Database) AddressRepository {
	return &mongoAddressRepository{
		collection: db.Collection("addresses"),
	}
}

func (m *mongoAddressRepository) FindDefault(ctx context.Context, userID string) (*domain.Address, error) {
	var a domain.Address
	opts := options.FindOne().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	if err := m.collection.FindOne(ctx, bson.M{"user_id": userID}, opts).Decode(&a); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrAddressNotFound
		}
		return nil, fmt.Errorf("failed to get default address: %w", err)
	}
	return &a, nil
}

func (m *mongoAddressRepository) FindByID(ctx context.Context, id, userID string) (*domain.Address, error) {
	var a domain.Address
	if err := m.collection.FindOne(ctx, bson.M{"_id": id, "user_id": userID}).Decode(&a); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrAddressNotFound
		}
		return nil, fmt.Errorf("failed to get address: %w", err)
	}
	return &a, nil
}

func (m *mongoAddressRepository) ListByUser(ctx context.Context, userID string) ([]domain.Address, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cur, err := m.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list addresses: %w", err)
	}

	addresses := []domain.Address{}
	if err := cur.All(ctx, &addresses); err != nil {
		return nil, fmt.Errorf("failed to decode addresses: %w", err)
	}
	return addresses, nil
}

func (m *mongoAddressRepository) CreateIndexes(ctx context.Context) error {
	_, err := m.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "updated_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create address indexes: %w", err)
	}
	return nil
}
