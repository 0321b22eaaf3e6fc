package dashboard

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// SQLSource reads dashboard figures straight from Postgres through database/sql.
type SQLSource struct {
	db *sql.DB
}

func NewSQLSource(db *sql.DB) *SQLSource {
	if db == nil {
		panic("dashboard: sql db required")
	}
	return &SQLSource{db: db}
}

func (s *SQLSource) Collect(ctx context.Context, w Window) (*Overview, error) {
	o := &Overview{Customers: CustomerMetrics{ByStatus: map[string]int{}}}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM customers GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("dashboard: customers by status: %w", err)
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("dashboard: scan customer status: %w", err)
		}
		o.Customers.ByStatus[status] = n
		o.Customers.Total += n
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("dashboard: customers by status: %w", err)
	}
	rows.Close()

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM customers WHERE status = 'lead' AND created_at >= $1`, w.WeekStart,
	).Scan(&o.Customers.NewLeadsThisWeek); err != nil {
		return nil, fmt.Errorf("dashboard: new leads: %w", err)
	}

	active := pq.Array(activeStatuses)
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM appointments
		 WHERE status = ANY($1) AND (scheduled_date > $2 OR (scheduled_date = $2 AND start_time >= $3))`,
		active, w.Today, w.Clock,
	).Scan(&o.Appointments.Upcoming); err != nil {
		return nil, fmt.Errorf("dashboard: upcoming appointments: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM appointments WHERE status <> 'cancelled' AND scheduled_date BETWEEN $1 AND $2`,
		w.WeekFrom, w.WeekTo,
	).Scan(&o.Appointments.ThisWeek); err != nil {
		return nil, fmt.Errorf("dashboard: appointments this week: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM appointments WHERE status = 'cancelled'`,
	).Scan(&o.Appointments.CancelledCount); err != nil {
		return nil, fmt.Errorf("dashboard: cancelled appointments: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0),
		        COALESCE(SUM(amount_cents) FILTER (WHERE updated_at >= $1), 0),
		        COUNT(*)
		 FROM payments WHERE status = 'succeeded'`, w.WeekStart,
	).Scan(&o.Revenue.TotalCents, &o.Revenue.ThisWeekCents, &o.Revenue.PaidCount); err != nil {
		return nil, fmt.Errorf("dashboard: revenue: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM payments WHERE status = 'pending'`,
	).Scan(&o.Revenue.PendingPayments); err != nil {
		return nil, fmt.Errorf("dashboard: pending payments: %w", err)
	}
	return o, nil
}
