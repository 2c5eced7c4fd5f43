package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoPaymentRepository struct {
	collection *mongo.Collection
}

func NewPaymentRepository(db *mongo.Database) PaymentRepository {
	return &mongoPaymentRepository{
		collection: db.Collection("payments"),
	}
}

func (m *mongoPaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	if _, err := m.collection.InsertOne(ctx, p); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicatePayment
		}
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

func (m *mongoPaymentRepository) findOne(ctx context.Context, filter bson.M) (*domain.Payment, error) {
	var p domain.Payment
	if err := m.collection.FindOne(ctx, filter).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &p, nil
}

func (m *mongoPaymentRepository) Get(ctx context.Context, id string) (*domain.Payment, error) {
	return m.findOne(ctx, bson.M{"_id": id})
}

func (m *mongoPaymentRepository) GetByMerchantRef(ctx context.Context, merchantRef string) (*domain.Payment, error) {
	return m.findOne(ctx, bson.M{"merchant_ref": merchantRef})
}

func (m *mongoPaymentRepository) ApplyUpdate(ctx context.Context, merchantRef string, u domain.PaymentUpdate) (*domain.Payment, error) {
	set := bson.M{
		"status":     u.Status,
		"updated_at": u.Transition.ChangedAt,
	}
	if u.ProviderTxnID != "" {
		set["provider_txn_id"] = u.ProviderTxnID
	}
	if u.PaymentMode != "" {
		set["payment_mode"] = u.PaymentMode
	}
	if u.FailureReason != "" {
		set["failure_reason"] = u.FailureReason
	}
	if u.Raw != nil {
		set["raw_response"] = u.Raw
	}

	filter := bson.M{
		"merchant_ref": merchantRef,
		"status":       bson.M{"$nin": domain.TerminalPaymentStatuses},
	}
	update := bson.M{"$set": set, "$push": bson.M{"history": u.Transition}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var p domain.Payment
	if err := m.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrPaymentTerminal
		}
		return nil, fmt.Errorf("failed to update payment: %w", err)
	}
	return &p, nil
}

func (m *mongoPaymentRepository) SetRedirect(ctx context.Context, id, redirectURL, callbackURL string) error {
	res, err := m.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"redirect_url": redirectURL,
		"callback_url": callbackURL,
		"updated_at":   time.Now().UTC(),
	}})
	if err != nil {
		return fmt.Errorf("failed to set payment redirect: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (m *mongoPaymentRepository) AddRefund(ctx context.Context, id string, expectedRefunded decimal.Decimal, r domain.Refund) (*domain.Payment, error) {
	filter := bson.M{"_id": id, "refunded_amount": expectedRefunded}
	update := bson.M{
		"$push": bson.M{"refunds": r},
		"$set": bson.M{
			"refunded_amount": expectedRefunded.Add(r.Amount),
			"updated_at":      r.CreatedAt,
		},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var p domain.Payment
	if err := m.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrRefundConflict
		}
		return nil, fmt.Errorf("failed to record refund: %w", err)
	}
	return &p, nil
}

func (m *mongoPaymentRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "merchant_ref", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "order_id", Value: 1}}},
	}

	if _, err := m.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create payment indexes: %w", err)
	}
	return nil
}
