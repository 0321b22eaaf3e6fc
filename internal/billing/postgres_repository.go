package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores payments in the payments table.
type PostgresRepository struct {
	pool pgxQuerier
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("billing: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

func newPostgresRepositoryWithExec(exec pgxQuerier) *PostgresRepository {
	return &PostgresRepository{pool: exec}
}

const paymentColumns = `id, customer_id, package_id, amount_cents, currency, status, provider_ref, checkout_url, created_at, updated_at`

func scanPayment(row pgx.Row, extra ...any) (*Payment, error) {
	var p Payment
	var id, customerID uuid.UUID
	dest := append(extra,
		&id,
		&customerID,
		&p.PackageID,
		&p.AmountCents,
		&p.Currency,
		&p.Status,
		&p.ProviderRef,
		&p.CheckoutURL,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	p.ID = id.String()
	p.CustomerID = customerID.String()
	return &p, nil
}

func (r *PostgresRepository) Create(ctx context.Context, p *Payment) (*Payment, error) {
	customerID, err := uuid.Parse(p.CustomerID)
	if err != nil {
		return nil, ErrMissingCustomer
	}
	status := p.Status
	if status == "" {
		status = StatusPending
	}
	query := `
		INSERT INTO payments (id, customer_id, package_id, amount_cents, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + paymentColumns
	created, err := scanPayment(r.pool.QueryRow(ctx, query,
		uuid.New(), customerID, p.PackageID, p.AmountCents, p.Currency, status))
	if err != nil {
		return nil, fmt.Errorf("billing: insert payment: %w", err)
	}
	return created, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Payment, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrPaymentNotFound
	}
	p, err := scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, uid))
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("billing: load payment: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) SetCheckout(ctx context.Context, id, checkoutURL, providerRef string) (*Payment, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrPaymentNotFound
	}
	query := `
		UPDATE payments SET checkout_url = $2, provider_ref = $3, updated_at = now()
		WHERE id = $1
		RETURNING ` + paymentColumns
	p, err := scanPayment(r.pool.QueryRow(ctx, query, uid, checkoutURL, providerRef))
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("billing: set checkout: %w", err)
	}
	return p, nil
}

// UpdateStatus locks the row so concurrent webhook deliveries see a
// consistent previous status. A succeeded payment never changes; the call
// then returns the row as stored.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status Status, providerRef string) (Status, *Payment, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return "", nil, ErrPaymentNotFound
	}
	query := `
		WITH prev AS (SELECT status FROM payments WHERE id = $1 FOR UPDATE)
		UPDATE payments p
		SET status = CASE WHEN prev.status = 'succeeded' THEN prev.status ELSE $2 END,
		    provider_ref = CASE WHEN prev.status = 'succeeded' THEN p.provider_ref
		                        ELSE COALESCE(NULLIF($3, ''), p.provider_ref) END,
		    updated_at = CASE WHEN prev.status = 'succeeded' THEN p.updated_at ELSE now() END
		FROM prev
		WHERE p.id = $1
		RETURNING prev.status, p.id, p.customer_id, p.package_id, p.amount_cents, p.currency,
		          p.status, p.provider_ref, p.checkout_url, p.created_at, p.updated_at`
	var prev Status
	p, err := scanPayment(r.pool.QueryRow(ctx, query, uid, status, providerRef), &prev)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			return "", nil, err
		}
		return "", nil, fmt.Errorf("billing: update status: %w", err)
	}
	return prev, p, nil
}

func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]*Payment, int, error) {
	var where []string
	var args []any
	if filter.CustomerID != "" {
		uid, err := uuid.Parse(filter.CustomerID)
		if err != nil {
			return []*Payment{}, 0, nil
		}
		args = append(args, uid)
		where = append(where, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM payments`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("billing: count payments: %w", err)
	}

	query := `SELECT ` + paymentColumns + ` FROM payments` + clause + ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("billing: list payments: %w", err)
	}
	defer rows.Close()

	payments := make([]*Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("billing: scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("billing: list payments: %w", err)
	}
	return payments, total, nil
}
