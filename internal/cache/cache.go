package cache

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/storefront/internal/domain"
)

type CartCache interface {
	Get(ctx context.Context, userID string) (*domain.Cart, error)
	Set(ctx context.Context, userID string, cart *domain.Cart) error
	Delete(ctx context.Context, userID string) error
}

// Locker hands out short-lived exclusive locks keyed by name.
type Locker interface {
	// TryLock returns ErrLockHeld when another owner holds key.
	TryLock(ctx context.Context, key string, ttl time.Duration) (Unlock, error)
}

// Unlock releases a lock only if it is still owned by the caller.
type Unlock func(ctx context.Context) error

var (
	ErrCacheMiss = errors.New("cache miss")
	ErrLockHeld  = errors.New("lock held by another owner")
)

// Nop is a CartCache that never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, string) (*domain.Cart, error) { return nil, ErrCacheMiss }
func (Nop) Set(context.Context, string, *domain.Cart) error { return nil }
func (Nop) Delete(context.Context, string) error { return nil }
