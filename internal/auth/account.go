package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountExists      = errors.New("an account with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", minPasswordLength)
)

// Account is a login for an admin or a portal customer.
type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CustomerID   string    `json:"customer_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Principal converts the account into a request principal.
func (a *Account) Principal() Principal {
	return Principal{AccountID: a.ID, Email: a.Email, Role: a.Role, CustomerID: a.CustomerID}
}

// HashPassword returns a bcrypt hash.
func HashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares a bcrypt hash against a candidate password.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// AccountRepository stores accounts.
type AccountRepository interface {
	Create(ctx context.Context, account *Account) error
	FindByEmail(ctx context.Context, email string) (*Account, error)
	Get(ctx context.Context, id string) (*Account, error)
	UpdatePassword(ctx context.Context, id, hash string) error
}

// InMemoryAccountRepository keeps accounts in memory.
type InMemoryAccountRepository struct {
	mu       sync.RWMutex
	accounts map[string]*Account
}

func NewInMemoryAccountRepository() *InMemoryAccountRepository {
	return &InMemoryAccountRepository{accounts: make(map[string]*Account)}
}

func (r *InMemoryAccountRepository) Create(_ context.Context, account *Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account.Email = normalizeEmail(account.Email)
	for _, existing := range r.accounts {
		if existing.Email == account.Email {
			return ErrAccountExists
		}
	}
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	account.CreatedAt = time.Now().UTC()
	stored := *account
	r.accounts[account.ID] = &stored
	return nil
}

func (r *InMemoryAccountRepository) FindByEmail(_ context.Context, email string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	email = normalizeEmail(email)
	for _, a := range r.accounts {
		if a.Email == email {
			out := *a
			return &out, nil
		}
	}
	return nil, ErrAccountNotFound
}

func (r *InMemoryAccountRepository) Get(_ context.Context, id string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	out := *a
	return &out, nil
}

func (r *InMemoryAccountRepository) UpdatePassword(_ context.Context, id, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	a.PasswordHash = hash
	return nil
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresAccountRepository stores accounts in the accounts table.
type PostgresAccountRepository struct {
	pool pgxQuerier
}

func NewPostgresAccountRepository(pool *pgxpool.Pool) *PostgresAccountRepository {
	if pool == nil {
		panic("auth: pgx pool required")
	}
	return &PostgresAccountRepository{pool: pool}
}

func newPostgresAccountRepositoryWithExec(exec pgxQuerier) *PostgresAccountRepository {
	return &PostgresAccountRepository{pool: exec}
}

func (r *PostgresAccountRepository) Create(ctx context.Context, account *Account) error {
	account.Email = normalizeEmail(account.Email)
	id := uuid.New()
	if account.ID != "" {
		parsed, err := uuid.Parse(account.ID)
		if err != nil {
			return fmt.Errorf("auth: invalid account id: %w", err)
		}
		id = parsed
	}
	var customerID *uuid.UUID
	if account.CustomerID != "" {
		parsed, err := uuid.Parse(account.CustomerID)
		if err != nil {
			return fmt.Errorf("auth: invalid customer id: %w", err)
		}
		customerID = &parsed
	}

	query := `
		INSERT INTO accounts (id, email, password_hash, role, customer_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	if err := r.pool.QueryRow(ctx, query, id, account.Email, account.PasswordHash, account.Role, customerID).Scan(&account.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAccountExists
		}
		return fmt.Errorf("auth: insert account: %w", err)
	}
	account.ID = id.String()
	return nil
}

const accountColumns = `id, email, password_hash, role, customer_id, created_at`

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	var id uuid.UUID
	var customerID *uuid.UUID
	if err := row.Scan(&id, &a.Email, &a.PasswordHash, &a.Role, &customerID, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("auth: select account: %w", err)
	}
	a.ID = id.String()
	if customerID != nil {
		a.CustomerID = customerID.String()
	}
	return &a, nil
}

func (r *PostgresAccountRepository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, normalizeEmail(email)))
}

func (r *PostgresAccountRepository) Get(ctx context.Context, id string) (*Account, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrAccountNotFound
	}
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, parsed))
}

func (r *PostgresAccountRepository) UpdatePassword(ctx context.Context, id, hash string) error {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return ErrAccountNotFound
	}
	ct, err := r.pool.Exec(ctx, `UPDATE accounts SET password_hash = $2 WHERE id = $1`, parsed, hash)
	if err != nil {
		return fmt.Errorf("auth: update password: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// EnsureAdmin creates the admin account on first boot and resets its password
// when the configured one no longer matches.
func EnsureAdmin(ctx context.Context, repo AccountRepository, email, password string) (*Account, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, nil
	}
	existing, err := repo.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.Role != RoleAdmin {
			return nil, fmt.Errorf("auth: %s exists with role %s", email, existing.Role)
		}
		if CheckPassword(existing.PasswordHash, password) {
			return existing, nil
		}
		hash, err := HashPassword(password)
		if err != nil {
			return nil, err
		}
		if err := repo.UpdatePassword(ctx, existing.ID, hash); err != nil {
			return nil, err
		}
		existing.PasswordHash = hash
		return existing, nil
	case errors.Is(err, ErrAccountNotFound):
		hash, err := HashPassword(password)
		if err != nil {
			return nil, err
		}
		account := &Account{Email: email, PasswordHash: hash, Role: RoleAdmin}
		if err := repo.Create(ctx, account); err != nil {
			return nil, err
		}
		return account, nil
	default:
		return nil, err
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
