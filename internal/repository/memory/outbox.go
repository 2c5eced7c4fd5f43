package memory

import (
	"context"
	"time"

	"github.com/fjod/storefront/internal/domain"
)

type outboxRepository struct{ db *DB }

func (r *outboxRepository) Insert(_ context.Context, e *domain.OutboxEvent) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	cp := *e
	r.db.outbox = append(r.db.outbox, &cp)
	return nil
}

func (r *outboxRepository) GetUnprocessed(_ context.Context, limit int64) ([]domain.OutboxEvent, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	out := []domain.OutboxEvent{}
	for _, e := range r.db.outbox {
		if e.ProcessedAt != nil {
			continue
		}
		out = append(out, *e)
		if limit > 0 && int64(len(out)) == limit {
			break
		}
	}
	return out, nil
}

func (r *outboxRepository) MarkProcessed(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, e := range r.db.outbox {
		if e.ID == id {
			now := time.Now().UTC()
			e.ProcessedAt = &now
		}
	}
	return nil
}
