package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/ariefcatur/go-storefront-orders/internal/stock"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// applyDelta adds $2 to the product total and, when $3 is not empty, to the
// option named $3. Variant groups and options keep their order.
const applyDelta = `
UPDATE products SET
	stock = stock + $2,
	variants = CASE WHEN $3::text = '' THEN variants ELSE (
		SELECT COALESCE(jsonb_agg(
			jsonb_set(g, '{options}', COALESCE((
				SELECT jsonb_agg(
					CASE WHEN o->>'name' = $3::text
						THEN jsonb_set(o, '{stock}', to_jsonb((o->>'stock')::int + $2::int))
						ELSE o END
					ORDER BY oi)
				FROM jsonb_array_elements(g->'options') WITH ORDINALITY AS opts(o, oi)
			), '[]'::jsonb))
			ORDER BY gi), '[]'::jsonb)
		FROM jsonb_array_elements(variants) WITH ORDINALITY AS groups(g, gi)
	) END,
	updated_at = now()
`

// Precondition and decrement are one statement, so the row lock taken by the
// UPDATE is the only critical section.
const reserveSQL = applyDelta + `
WHERE id = $1
	AND stock + $2::int >= 0
	AND ($3::text = '' OR jsonb_path_exists(variants,
		'$[*].options[*] ? (@.name == $name && @.stock + $delta >= 0)',
		jsonb_build_object('name', $3::text, 'delta', $2::int)))
RETURNING id, name, stock, variants, updated_at`

const releaseSQL = applyDelta + `
WHERE id = $1
	AND ($3::text = '' OR jsonb_path_exists(variants,
		'$[*].options[*] ? (@.name == $name)',
		jsonb_build_object('name', $3::text)))`

const deadlockDetected = "40P01"

// maxBatchAttempts bounds how often ReserveBatch reruns a transaction the
// server aborted as a deadlock victim.
const maxBatchAttempts = 3

// Ledger keeps product stock in the products table.
type Ledger struct{ DB *pgxpool.Pool }

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func reserveOn(ctx context.Context, q queryer, r stock.Reservation) (*stock.Product, error) {
	if r.Quantity <= 0 {
		return nil, stock.ErrNoMatch
	}
	var p stock.Product
	err := q.QueryRow(ctx, reserveSQL, r.ProductID, -r.Quantity, r.Variant).
		Scan(&p.ID, &p.Name, &p.Stock, &p.Variants, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, stock.ErrNoMatch
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (l *Ledger) Reserve(ctx context.Context, r stock.Reservation) (*stock.Product, error) {
	return reserveOn(ctx, l.DB, r)
}

func (l *Ledger) Release(ctx context.Context, r stock.Reservation) error {
	ct, err := l.DB.Exec(ctx, releaseSQL, r.ProductID, r.Quantity, r.Variant)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := l.DB.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM products WHERE id=$1)`, r.ProductID).Scan(&exists); err != nil {
		return fmt.Errorf("check product %s: %w", r.ProductID, err)
	}
	if !exists {
		return stock.ErrNotFound
	}
	return stock.ErrOptionNotFound
}

// ReserveBatch applies every reservation inside one transaction. If any of
// them does not match, the transaction is rolled back and the index of the
// first unsatisfiable reservation, in list order, is returned with
// stock.ErrNoMatch.
//
// Rows are locked in product id order whatever the order of rs, so two
// batches over the same products cannot deadlock each other.
func (l *Ledger) ReserveBatch(ctx context.Context, rs []stock.Reservation) (int, error) {
	var (
		idx int
		err error
	)
	for attempt := 1; attempt <= maxBatchAttempts; attempt++ {
		idx, err = l.reserveBatch(ctx, rs)
		var pgErr *pgconn.PgError
		if !errors.As(err, &pgErr) || pgErr.Code != deadlockDetected {
			return idx, err
		}
	}
	return idx, err
}

func (l *Ledger) reserveBatch(ctx context.Context, rs []stock.Reservation) (int, error) {
	order := make([]int, len(rs))
	for i := range order {
		order[i] = i
	}
	// Stable, so reservations of one product keep their list order and see
	// the same counters they would see applied one by one.
	slices.SortStableFunc(order, func(a, b int) int {
		return strings.Compare(rs[a].ProductID, rs[b].ProductID)
	})

	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return -1, err
	}
	defer tx.Rollback(ctx)

	failed := -1
	for _, i := range order {
		_, err := reserveOn(ctx, tx, rs[i])
		switch {
		case err == nil:
		case errors.Is(err, stock.ErrNoMatch):
			if failed < 0 || i < failed {
				failed = i
			}
		default:
			return -1, fmt.Errorf("reserve %s: %w", rs[i].ProductID, err)
		}
	}
	if failed >= 0 {
		return failed, stock.ErrNoMatch // rollback via defer
	}
	if err := tx.Commit(ctx); err != nil {
		return -1, err
	}
	return -1, nil
}

func (l *Ledger) Get(ctx context.Context, productID string) (*stock.Product, error) {
	var p stock.Product
	err := l.DB.QueryRow(ctx, `SELECT id, name, stock, variants, updated_at FROM products WHERE id=$1`, productID).
		Scan(&p.ID, &p.Name, &p.Stock, &p.Variants, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, stock.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (l *Ledger) Put(ctx context.Context, p stock.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	variants := p.Variants
	if variants == nil {
		variants = []stock.VariantGroup{}
	}
	_, err := l.DB.Exec(ctx, `
		INSERT INTO products(id, name, stock, variants, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, stock = EXCLUDED.stock, variants = EXCLUDED.variants, updated_at = now()
	`, p.ID, p.Name, p.Stock, variants)
	return err
}
