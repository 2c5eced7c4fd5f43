package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoCouponRepository struct {
	userCoupons   *mongo.Collection
	publicCoupons *mongo.Collection
}

func NewCouponRepository(db *mongo.Database) CouponRepository {
	return &mongoCouponRepository{
		userCoupons:   db.Collection("user_coupons"),
		publicCoupons: db.Collection("public_coupons"),
	}
}

func (m *mongoCouponRepository) FindUserCoupon(ctx context.Context, code, phone string) (*domain.UserCoupon, error) {
	var c domain.UserCoupon
	filter := bson.M{"code": code, "phone": phone, "status": domain.CouponStatusActive}
	if err := m.userCoupons.FindOne(ctx, filter).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCouponNotFound
		}
		return nil, fmt.Errorf("failed to get user coupon: %w", err)
	}
	return &c, nil
}

func (m *mongoCouponRepository) FindPublicCoupon(ctx context.Context, code string) (*domain.PublicCoupon, error) {
	var c domain.PublicCoupon
	filter := bson.M{"code": code, "status": domain.CouponStatusActive}
	if err := m.publicCoupons.FindOne(ctx, filter).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCouponNotFound
		}
		return nil, fmt.Errorf("failed to get public coupon: %w", err)
	}
	return &c, nil
}

func (m *mongoCouponRepository) RedeemUserCoupon(ctx context.Context, couponID, userID, orderID string, at time.Time) error {
	filter := bson.M{"_id": couponID, "status": domain.CouponStatusActive}
	update := bson.M{"$set": bson.M{
		"status":          domain.CouponStatusUsed,
		"used_at":         at,
		"used_by_user_id": userID,
		"used_order_id":   orderID,
	}}

	res, err := m.userCoupons.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to redeem user coupon: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	n, err := m.userCoupons.CountDocuments(ctx, bson.M{"_id": couponID, "used_order_id": orderID})
	if err != nil {
		return fmt.Errorf("failed to check user coupon redemption: %w", err)
	}
	if n == 1 {
		return nil
	}
	return ErrCouponUnavailable
}

func (m *mongoCouponRepository) RedeemPublicCoupon(ctx context.Context, couponID string, r domain.CouponRedemption) error {
	usesByUser := bson.M{"$size": bson.M{"$filter": bson.M{
		"input": bson.M{"$ifNull": bson.A{"$used_by", bson.A{}}},
		"as":    "u",
		"cond":  bson.M{"$eq": bson.A{"$$u.user_id", r.UserID}},
	}}}
	filter := bson.M{
		"_id":              couponID,
		"used_by.order_id": bson.M{"$ne": r.OrderID},
		// a limit of zero means unlimited
		"$expr": bson.M{"$and": bson.A{
			bson.M{"$or": bson.A{
				bson.M{"$lte": bson.A{"$usage_limit", 0}},
				bson.M{"$lt": bson.A{"$usage_count", "$usage_limit"}},
			}},
			bson.M{"$or": bson.A{
				bson.M{"$lte": bson.A{"$per_user_limit", 0}},
				bson.M{"$lt": bson.A{usesByUser, "$per_user_limit"}},
			}},
		}},
	}
	update := bson.M{
		"$inc":  bson.M{"usage_count": 1},
		"$push": bson.M{"used_by": r},
	}

	res, err := m.publicCoupons.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to redeem public coupon: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	n, err := m.publicCoupons.CountDocuments(ctx, bson.M{"_id": couponID})
	if err != nil {
		return fmt.Errorf("failed to check public coupon: %w", err)
	}
	if n == 0 {
		return ErrCouponNotFound
	}
	n, err = m.publicCoupons.CountDocuments(ctx, bson.M{"_id": couponID, "used_by.order_id": r.OrderID})
	if err != nil {
		return fmt.Errorf("failed to check public coupon redemption: %w", err)
	}
	if n == 1 {
		return nil
	}
	return ErrCouponUnavailable
}

func (m *mongoCouponRepository) CreateIndexes(ctx context.Context) error {
	if _, err := m.userCoupons.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "code", Value: 1}, {Key: "phone", Value: 1}},
	}); err != nil {
		return fmt.Errorf("failed to create user coupon indexes: %w", err)
	}
	if _, err := m.publicCoupons.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "code", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("failed to create public coupon indexes: %w", err)
	}
	return nil
}
