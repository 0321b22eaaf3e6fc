package customers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

var customerCols = []string{"id", "name", "email", "phone", "company", "status", "source", "notes", "created_at", "updated_at"}

func TestPostgresRepositoryCreate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := newPostgresRepositoryWithExec(mock)
	id := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO customers").
		WithArgs(pgxmock.AnyArg(), "Ada", "ada@example.com", "", "", StatusLead, SourceManual, "").
		WillReturnRows(pgxmock.NewRows(customerCols).
			AddRow(id, "Ada", "ada@example.com", "", "", StatusLead, SourceManual, "", now, now))

	customer, err := repo.Create(context.Background(), &CreateCustomerRequest{Name: " Ada ", Email: "ADA@example.com"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if customer.ID != id.String() {
		t.Fatalf("unexpected id %s", customer.ID)
	}

	mock.ExpectQuery("INSERT INTO customers").
		WillReturnError(&pgconn.PgError{Code: "23505"})
	if _, err := repo.Create(context.Background(), &CreateCustomerRequest{Name: "Ada", Email: "ada@example.com"}); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected duplicate email, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresRepositoryGetNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := newPostgresRepositoryWithExec(mock)
	id := uuid.New()
	mock.ExpectQuery("SELECT id, name").WithArgs(id).WillReturnError(pgx.ErrNoRows)

	if _, err := repo.Get(context.Background(), id.String()); !errors.Is(err, ErrCustomerNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := repo.Get(context.Background(), "not-a-uuid"); !errors.Is(err, ErrCustomerNotFound) {
		t.Fatalf("expected not found for malformed id, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresRepositoryListFilters(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := newPostgresRepositoryWithExec(mock)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM customers WHERE status = \$1 AND \(name ILIKE \$2`).
		WithArgs(StatusActive, "%acme%").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(`ORDER BY created_at DESC LIMIT \$3 OFFSET \$4`).
		WithArgs(StatusActive, "%acme%", 2, 0).
		WillReturnRows(pgxmock.NewRows(customerCols).
			AddRow(uuid.New(), "Acme", "a@acme.io", "", "Acme", StatusActive, SourceManual, "", now, now).
			AddRow(uuid.New(), "Acme 2", "b@acme.io", "", "Acme", StatusActive, SourcePortal, "", now, now))

	result, err := repo.List(context.Background(), ListFilter{Status: StatusActive, Search: "acme", Limit: 2})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if result.Total != 3 || len(result.Customers) != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresRepositoryDelete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := newPostgresRepositoryWithExec(mock)
	id := uuid.New()
	mock.ExpectExec("DELETE FROM customers").WithArgs(id).WillReturnResult(pgxmock.NewResult("DELETE", 0))

	if err := repo.Delete(context.Background(), id.String()); !errors.Is(err, ErrCustomerNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
