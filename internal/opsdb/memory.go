package opsdb

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/samber/lo"
)

// Memory is a process-local Store for running without Postgres.
type Memory struct {
	mu        sync.Mutex
	sequences map[string]int64
	incidents []domain.Incident
	nextID    int64
}

func NewMemory() *Memory {
	return &Memory{sequences: make(map[string]int64)}
}

func (m *Memory) NextOrderNumber(_ context.Context, at time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	day := at.UTC().Format("20060102")
	m.sequences[day]++
	return fmt.Sprintf("ORD-%s-%06d", day, m.sequences[day]), nil
}

func (m *Memory) RecordIncident(_ context.Context, in domain.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	in.ID = m.nextID
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	m.incidents = append(m.incidents, in)
	return nil
}

func (m *Memory) ListIncidents(_ context.Context, f IncidentFilter) ([]domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	out := lo.Filter(m.incidents, func(in domain.Incident, _ int) bool {
		if f.UnresolvedOnly && in.ResolvedAt != nil {
			return false
		}
		return len(f.Kinds) == 0 || lo.Contains(f.Kinds, in.Kind)
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *Memory) ResolveIncident(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.incidents {
		if m.incidents[i].ID == id && m.incidents[i].ResolvedAt == nil {
			now := time.Now().UTC()
			m.incidents[i].ResolvedAt = &now
			return nil
		}
	}
	return ErrIncidentNotFound
}
