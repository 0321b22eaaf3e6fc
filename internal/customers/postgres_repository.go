package customers

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

const uniqueViolation = "23505"

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores customers in the relational database.
type PostgresRepository struct {
	pool pgxQuerier
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("customers: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

func newPostgresRepositoryWithExec(exec pgxQuerier) *PostgresRepository {
	return &PostgresRepository{pool: exec}
}

const customerColumns = `id, name, email, phone, company, status, source, notes, created_at, updated_at`

func scanCustomer(row pgx.Row) (*Customer, error) {
	var c Customer
	var id uuid.UUID
	if err := row.Scan(
		&id,
		&c.Name,
		&c.Email,
		&c.Phone,
		&c.Company,
		&c.Status,
		&c.Source,
		&c.Notes,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	c.ID = id.String()
	return &c, nil
}

// Create inserts a new row.
func (r *PostgresRepository) Create(ctx context.Context, req *CreateCustomerRequest) (*Customer, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO customers (id, name, email, phone, company, status, source, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + customerColumns
	customer, err := scanCustomer(r.pool.QueryRow(ctx, query,
		uuid.New(),
		req.Name,
		req.Email,
		req.Phone,
		req.Company,
		req.Status,
		req.Source,
		req.Notes,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("customers: insert failed: %w", err)
	}
	return customer, nil
}

// Get fetches a customer by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Customer, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrCustomerNotFound
	}
	query := `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`
	customer, err := scanCustomer(r.pool.QueryRow(ctx, query, parsed))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("customers: select failed: %w", err)
	}
	return customer, nil
}

// FindByEmail matches on the lowercased email.
func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*Customer, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, ErrCustomerNotFound
	}
	query := `SELECT ` + customerColumns + ` FROM customers WHERE email = $1`
	customer, err := scanCustomer(r.pool.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("customers: select by email failed: %w", err)
	}
	return customer, nil
}

// List returns a page of customers, newest first.
func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) (*ListResult, error) {
	var where []string
	var args []any
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR email ILIKE $%d OR company ILIKE $%d)", len(args), len(args), len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM customers`+clause, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("customers: count failed: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	pageArgs := append(append([]any(nil), args...), limit, filter.Offset)
	query := `SELECT ` + customerColumns + ` FROM customers` + clause +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)

	rows, err := r.pool.Query(ctx, query, pageArgs...)
	if err != nil {
		return nil, fmt.Errorf("customers: list failed: %w", err)
	}
	defer rows.Close()

	result := &ListResult{Total: total, Limit: limit, Offset: filter.Offset, Customers: []*Customer{}}
	for rows.Next() {
		customer, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("customers: scan failed: %w", err)
		}
		result.Customers = append(result.Customers, customer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("customers: list rows: %w", err)
	}
	return result, nil
}

// Update applies a partial update.
func (r *PostgresRepository) Update(ctx context.Context, id string, req *UpdateCustomerRequest) (*Customer, error) {
	existing, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := req.Apply(existing); err != nil {
		return nil, err
	}

	query := `
		UPDATE customers
		SET name = $2, email = $3, phone = $4, company = $5, status = $6, notes = $7, updated_at = now()
		WHERE id = $1
		RETURNING ` + customerColumns
	customer, err := scanCustomer(r.pool.QueryRow(ctx, query,
		uuid.MustParse(existing.ID),
		existing.Name,
		existing.Email,
		existing.Phone,
		existing.Company,
		existing.Status,
		existing.Notes,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("customers: update failed: %w", err)
	}
	return customer, nil
}

// Delete removes a customer.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return ErrCustomerNotFound
	}
	ct, err := r.pool.Exec(ctx, `DELETE FROM customers WHERE id = $1`, parsed)
	if err != nil {
		return fmt.Errorf("customers: delete failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
