package bootstrap

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/autoflowlabs/consultancy-crm/internal/appointments"
	"github.com/autoflowlabs/consultancy-crm/internal/auth"
	"github.com/autoflowlabs/consultancy-crm/internal/billing"
	"github.com/autoflowlabs/consultancy-crm/internal/chat"
	"github.com/autoflowlabs/consultancy-crm/internal/customers"
	"github.com/autoflowlabs/consultancy-crm/internal/dashboard"
	"github.com/autoflowlabs/consultancy-crm/internal/events"
	"github.com/autoflowlabs/consultancy-crm/internal/scheduling"
)

// ProcessedTracker dedupes provider webhooks.
type ProcessedTracker interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

// Stores is the persistence layer chosen at startup.
type Stores struct {
	Customers    customers.Repository
	Appointments appointments.Repository
	Payments     billing.Repository
	Accounts     auth.AccountRepository
	Processed    ProcessedTracker
	Settings     scheduling.SettingsStore
	Chat         chat.Store
	Dashboard    dashboard.Source

	// Outbox is nil without Postgres; events then go straight to the bus.
	Outbox *events.OutboxStore
}

// BuildStores uses Postgres and Redis when they are available and in-memory
// implementations otherwise. sqlDB backs the dashboard queries and may be nil.
func BuildStores(pool *pgxpool.Pool, sqlDB *sql.DB, redisClient *redis.Client, defaults scheduling.Settings) *Stores {
	s := &Stores{}
	if pool != nil {
		s.Customers = customers.NewPostgresRepository(pool)
		s.Appointments = appointments.NewPostgresRepository(pool)
		s.Payments = billing.NewPostgresRepository(pool)
		s.Accounts = auth.NewPostgresAccountRepository(pool)
		s.Processed = events.NewProcessedStore(pool)
		s.Outbox = events.NewOutboxStore(pool)
	} else {
		s.Customers = customers.NewInMemoryRepository()
		s.Appointments = appointments.NewInMemoryRepository()
		s.Payments = billing.NewInMemoryRepository()
		s.Accounts = auth.NewInMemoryAccountRepository()
		s.Processed = events.NewMemoryProcessedStore()
	}

	if sqlDB != nil {
		s.Dashboard = dashboard.NewSQLSource(sqlDB)
	} else {
		s.Dashboard = dashboard.NewRepositorySource(s.Customers, s.Appointments, s.Payments)
	}

	if redisClient != nil {
		s.Settings = scheduling.NewRedisSettingsStore(redisClient, defaults)
		s.Chat = chat.NewRedisStore(redisClient)
	} else {
		s.Settings = scheduling.NewMemorySettingsStore(defaults)
		s.Chat = chat.NewMemoryStore()
	}
	return s
}

// Publisher returns the outbox publisher when Postgres is configured, else the
// bus itself so handlers run inline.
func (s *Stores) Publisher(bus *events.Bus) events.Publisher {
	if s.Outbox != nil {
		return events.NewOutboxPublisher(s.Outbox)
	}
	return bus
}
