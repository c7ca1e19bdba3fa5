package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrOrderExists = errors.New("order already exists")

// OrderStore keeps each order as a JSONB document. Status, owner and version
// are mirrored into columns for filtering and the optimistic version check.
type OrderStore struct{ DB *pgxpool.Pool }

func (s *OrderStore) Insert(ctx context.Context, o *orders.Order) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO orders(id, user_id, status, payment_status, version, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, o.ID, o.UserID, string(o.Status), string(o.PaymentStatus), o.Version, o, o.CreatedAt, o.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrOrderExists
	}
	return err
}

func (s *OrderStore) Get(ctx context.Context, id string) (*orders.Order, error) {
	var o orders.Order
	err := s.DB.QueryRow(ctx, `SELECT document FROM orders WHERE id=$1`, id).Scan(&o)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, orders.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *OrderStore) List(ctx context.Context, userID string, limit int) ([]orders.Order, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT document FROM orders
		WHERE $1 = '' OR user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []orders.Order{}
	for rows.Next() {
		var o orders.Order
		if err := rows.Scan(&o); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *OrderStore) Update(ctx context.Context, o *orders.Order, expectedVersion int) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE orders
		SET status=$2, payment_status=$3, version=$4, document=$5, updated_at=$6
		WHERE id=$1 AND version=$7
	`, o.ID, string(o.Status), string(o.PaymentStatus), o.Version, o, o.UpdatedAt, expectedVersion)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := s.DB.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id=$1)`, o.ID).Scan(&exists); err != nil {
		return fmt.Errorf("check order %s: %w", o.ID, err)
	}
	if !exists {
		return orders.ErrOrderNotFound
	}
	return orders.ErrVersionConflict
}
