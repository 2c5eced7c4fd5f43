// Package opsdb is the relational side of the service: the daily order
// number sequence and the finalization incident log operators work from.
package opsdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/lib/pq"
)

var ErrIncidentNotFound = errors.New("incident not found")

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	SSLMode           string
	MigrationsDirPath string
}

type Store struct {
	db *sql.DB
}

func Open(cred *Credentials) (*Store, error) {
	sslMode := cred.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName,
		sslMode)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	return &Store{db: db}, nil
}

func (s *Store) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(s.db, &postgres.Config{
		MigrationsTable: "storefront_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// NextOrderNumber returns ORD-YYYYMMDD-NNNNNN using a per-day counter row.
// The upsert makes concurrent callers get distinct values.
func (s *Store) NextOrderNumber(ctx context.Context, at time.Time) (string, error) {
	day := at.UTC().Format("2006-01-02")
	query := `INSERT INTO order_sequences (day, last_value, updated_at)
	          VALUES ($1, 1, NOW())
	          ON CONFLICT (day) DO UPDATE
	          SET last_value = order_sequences.last_value + 1, updated_at = NOW()
	          RETURNING last_value`

	var n int64
	if err := s.db.QueryRowContext(ctx, query, day).Scan(&n); err != nil {
		return "", fmt.Errorf("next order sequence: %w", err)
	}
	return fmt.Sprintf("ORD-%s-%06d", at.UTC().Format("20060102"), n), nil
}

func (s *Store) RecordIncident(ctx context.Context, in domain.Incident) error {
	detail, err := json.Marshal(in.Detail)
	if err != nil {
		return fmt.Errorf("failed to marshal incident detail: %w", err)
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO finalization_incidents (order_id, order_number, payment_ref, kind, detail, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6)`

	if _, err := s.db.ExecContext(ctx, query,
		in.OrderID,
		in.OrderNumber,
		in.PaymentRef,
		string(in.Kind),
		detail,
		in.CreatedAt); err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}
	return nil
}

type IncidentFilter struct {
	Kinds          []domain.IncidentKind
	UnresolvedOnly bool
	Limit          int
}

func (s *Store) ListIncidents(ctx context.Context, f IncidentFilter) ([]domain.Incident, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	kinds := []string{}
	for _, k := range f.Kinds {
		kinds = append(kinds, string(k))
	}

	query := `SELECT id, order_id, order_number, payment_ref, kind, detail, created_at, resolved_at
	          FROM finalization_incidents
	          WHERE (cardinality($1::text[]) = 0 OR kind = ANY($1))
	            AND (NOT $2::boolean OR resolved_at IS NULL)
	          ORDER BY created_at DESC, id DESC
	          LIMIT $3`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(kinds), f.UnresolvedOnly, f.Limit)
	if err != nil {
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	defer rows.Close()

	out := []domain.Incident{}
	for rows.Next() {
		var (
			in       domain.Incident
			kind     string
			detail   []byte
			resolved sql.NullTime
		)
		if err := rows.Scan(&in.ID, &in.OrderID, &in.OrderNumber, &in.PaymentRef, &kind, &detail, &in.CreatedAt, &resolved); err != nil {
			return nil, fmt.Errorf("scan incident row: %w", err)
		}
		in.Kind = domain.IncidentKind(kind)
		if err := json.Unmarshal(detail, &in.Detail); err != nil {
			return nil, fmt.Errorf("unmarshal incident detail: %w", err)
		}
		if resolved.Valid {
			t := resolved.Time
			in.ResolvedAt = &t
		}
		out = append(out, in)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}

func (s *Store) ResolveIncident(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE finalization_incidents SET resolved_at = NOW() WHERE id = $1 AND resolved_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("resolve incident: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve incident: %w", err)
	}
	if n == 0 {
		return ErrIncidentNotFound
	}
	return nil
}
