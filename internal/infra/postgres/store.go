package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/boddenberg/ccb-backoffice-go/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("infra/postgres")

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

const (
	customerColumns = `id, name, cpf, email, phone, interest_rate, credit_score,
		monthly_income, risk_category, created_at, updated_at`
	simulationColumns = `id, customer_id, created_by_id, requested_amount, interest_rate,
		installments, installment_value, total_amount, total_interest, status, created_at, updated_at`
	userColumns = `id, email, name, role, password_hash, failed_attempts, locked_until,
		last_login_at, created_at, updated_at`
)

// Store implements port.Store on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an open pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: health check: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// ============================================================
// Customers
// ============================================================

func scanCustomer(row pgx.Row) (*domain.Customer, error) {
	var c domain.Customer
	var phone *string
	var risk string
	err := row.Scan(&c.ID, &c.Name, &c.CPF, &c.Email, &phone, &c.InterestRate, &c.CreditScore,
		&c.MonthlyIncome, &risk, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if phone != nil {
		c.Phone = *phone
	}
	c.RiskCategory = domain.RiskCategory(risk)
	return &c, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *Store) CreateCustomer(ctx context.Context, c *domain.Customer) (*domain.Customer, error) {
	ctx, span := tracer.Start(ctx, "postgres.CreateCustomer")
	defer span.End()

	row := s.pool.QueryRow(ctx, `
		INSERT INTO customers (name, cpf, email, phone, interest_rate, credit_score,
			monthly_income, risk_category, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+customerColumns,
		c.Name, c.CPF, c.Email, nullable(c.Phone), c.InterestRate, c.CreditScore,
		c.MonthlyIncome, string(c.RiskCategory), c.CreatedAt, c.UpdatedAt)

	out, err := scanCustomer(row)
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return nil, &domain.ErrConflict{Message: "CPF already registered"}
		}
		return nil, fmt.Errorf("postgres: insert customer: %w", err)
	}
	return out, nil
}

func (s *Store) getCustomerBy(ctx context.Context, column, value string) (*domain.Customer, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE `+column+` = $1`, value)
	c, err := scanCustomer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get customer by %s: %w", column, err)
	}
	return c, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	ctx, span := tracer.Start(ctx, "postgres.GetCustomer")
	defer span.End()
	return s.getCustomerBy(ctx, "id::text", id)
}

func (s *Store) GetCustomerByCPF(ctx context.Context, cpf string) (*domain.Customer, error) {
	ctx, span := tracer.Start(ctx, "postgres.GetCustomerByCPF")
	defer span.End()
	return s.getCustomerBy(ctx, "cpf", cpf)
}

func (s *Store) GetCustomersByIDs(ctx context.Context, ids []string) (map[string]*domain.Customer, error) {
	out := make(map[string]*domain.Customer, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx, `SELECT `+customerColumns+` FROM customers WHERE id::text = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("postgres: get customers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan customer: %w", err)
		}
		out[c.ID] = c
	}
	return out, rows.Err()
}

func (s *Store) ListCustomers(ctx context.Context, f domain.CustomerFilter) ([]domain.Customer, error) {
	ctx, span := tracer.Start(ctx, "postgres.ListCustomers")
	defer span.End()

	w := customerWhere(f)
	sql := `SELECT ` + customerColumns + ` FROM customers` + w.String() +
		orderBy(domain.CustomerSortColumns, f.SortBy, f.SortOrder) +
		limitOffset(w, f.Limit, f.Offset())

	rows, err := s.pool.Query(ctx, sql, w.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list customers: %w", err)
	}
	defer rows.Close()

	out := []domain.Customer{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan customer: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *Store) CountCustomers(ctx context.Context, f domain.CustomerFilter) (int, error) {
	w := customerWhere(f)
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM customers`+w.String(), w.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count customers: %w", err)
	}
	return n, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, c *domain.Customer) (*domain.Customer, error) {
	ctx, span := tracer.Start(ctx, "postgres.UpdateCustomer")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", c.ID))

	row := s.pool.QueryRow(ctx, `
		UPDATE customers SET name = $2, cpf = $3, email = $4, phone = $5, interest_rate = $6,
			credit_score = $7, monthly_income = $8, risk_category = $9, updated_at = $10
		WHERE id::text = $1
		RETURNING `+customerColumns,
		c.ID, c.Name, c.CPF, c.Email, nullable(c.Phone), c.InterestRate, c.CreditScore,
		c.MonthlyIncome, string(c.RiskCategory), c.UpdatedAt)

	out, err := scanCustomer(row)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, &domain.ErrNotFound{Resource: "customer", ID: c.ID}
	case pgCode(err) == pgUniqueViolation:
		return nil, &domain.ErrConflict{Message: "CPF already registered"}
	case err != nil:
		return nil, fmt.Errorf("postgres: update customer: %w", err)
	}
	return out, nil
}

func (s *Store) DeleteCustomer(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.DeleteCustomer")
	defer span.End()

	tag, err := s.pool.Exec(ctx, `DELETE FROM customers WHERE id::text = $1`, id)
	if err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			return &domain.ErrConflict{Message: "customer has simulations"}
		}
		return fmt.Errorf("postgres: delete customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.ErrNotFound{Resource: "customer", ID: id}
	}
	return nil
}

// ============================================================
// Simulations
// ============================================================

func scanSimulation(row pgx.Row) (*domain.Simulation, error) {
	var sim domain.Simulation
	var status string
	err := row.Scan(&sim.ID, &sim.CustomerID, &sim.CreatedByID, &sim.RequestedAmount, &sim.InterestRate,
		&sim.Installments, &sim.InstallmentValue, &sim.TotalAmount, &sim.TotalInterest, &status,
		&sim.CreatedAt, &sim.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sim.Status = domain.SimulationStatus(status)
	return &sim, nil
}

// CreateSimulation inserts the simulation and queues every schedule line in
// one batch, all inside a single transaction.
func (s *Store) CreateSimulation(ctx context.Context, sim *domain.Simulation, schedule []domain.ScheduleEntry) (*domain.Simulation, error) {
	ctx, span := tracer.Start(ctx, "postgres.CreateSimulation")
	defer span.End()
	span.SetAttributes(attribute.Int("schedule.lines", len(schedule)))

	var created *domain.Simulation
	err := WithTransaction(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO simulations (customer_id, created_by_id, requested_amount, interest_rate,
				installments, installment_value, total_amount, total_interest, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING `+simulationColumns,
			sim.CustomerID, sim.CreatedByID, sim.RequestedAmount, sim.InterestRate, sim.Installments,
			sim.InstallmentValue, sim.TotalAmount, sim.TotalInterest, string(sim.Status), sim.CreatedAt, sim.UpdatedAt)

		var err error
		created, err = scanSimulation(row)
		if err != nil {
			if pgCode(err) == pgForeignKeyViolation {
				return &domain.ErrNotFound{Resource: "customer", ID: sim.CustomerID}
			}
			return fmt.Errorf("postgres: insert simulation: %w", err)
		}

		batch := &pgx.Batch{}
		for _, line := range schedule {
			batch.Queue(`
				INSERT INTO amortization_schedules (simulation_id, installment_number, due_date,
					principal, interest, total, balance)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				created.ID, line.Index, line.DueDate, line.PrincipalPortion, line.InterestPortion,
				line.TotalPayment, line.RemainingBalance)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("postgres: insert schedule: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Store) GetSimulation(ctx context.Context, id string) (*domain.Simulation, error) {
	ctx, span := tracer.Start(ctx, "postgres.GetSimulation")
	defer span.End()

	row := s.pool.QueryRow(ctx, `SELECT `+simulationColumns+` FROM simulations WHERE id::text = $1`, id)
	sim, err := scanSimulation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get simulation: %w", err)
	}
	return sim, nil
}

func (s *Store) GetSchedule(ctx context.Context, simulationID string) ([]domain.ScheduleEntry, error) {
	ctx, span := tracer.Start(ctx, "postgres.GetSchedule")
	defer span.End()

	rows, err := s.pool.Query(ctx, `
		SELECT simulation_id, installment_number, due_date, principal, interest, total, balance
		FROM amortization_schedules
		WHERE simulation_id::text = $1
		ORDER BY installment_number`, simulationID)
	if err != nil {
		return nil, fmt.Errorf("postgres: get schedule: %w", err)
	}
	defer rows.Close()

	out := []domain.ScheduleEntry{}
	for rows.Next() {
		var e domain.ScheduleEntry
		if err := rows.Scan(&e.SimulationID, &e.Index, &e.DueDate, &e.PrincipalPortion,
			&e.InterestPortion, &e.TotalPayment, &e.RemainingBalance); err != nil {
			return nil, fmt.Errorf("postgres: scan schedule line: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) querySimulations(ctx context.Context, sql string, args ...any) ([]domain.Simulation, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list simulations: %w", err)
	}
	defer rows.Close()

	out := []domain.Simulation{}
	for rows.Next() {
		sim, err := scanSimulation(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan simulation: %w", err)
		}
		out = append(out, *sim)
	}
	return out, rows.Err()
}

func (s *Store) ListSimulations(ctx context.Context, f domain.SimulationFilter) ([]domain.Simulation, error) {
	ctx, span := tracer.Start(ctx, "postgres.ListSimulations")
	defer span.End()

	w := simulationWhere(f)
	sql := `SELECT ` + simulationColumns + ` FROM simulations` + w.String() +
		orderBy(domain.SimulationSortColumns, f.SortBy, f.SortOrder) +
		limitOffset(w, f.Limit, f.Offset())
	return s.querySimulations(ctx, sql, w.args...)
}

func (s *Store) CountSimulations(ctx context.Context, f domain.SimulationFilter) (int, error) {
	w := simulationWhere(f)
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM simulations`+w.String(), w.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count simulations: %w", err)
	}
	return n, nil
}

func (s *Store) ListSimulationsByCustomer(ctx context.Context, customerID string) ([]domain.Simulation, error) {
	return s.querySimulations(ctx, `SELECT `+simulationColumns+` FROM simulations
		WHERE customer_id::text = $1 ORDER BY created_at DESC`, customerID)
}

func (s *Store) UpdateSimulationStatus(ctx context.Context, id string, status domain.SimulationStatus, updatedAt time.Time) (*domain.Simulation, error) {
	ctx, span := tracer.Start(ctx, "postgres.UpdateSimulationStatus")
	defer span.End()

	row := s.pool.QueryRow(ctx, `UPDATE simulations SET status = $2, updated_at = $3
		WHERE id::text = $1 RETURNING `+simulationColumns, id, string(status), updatedAt)
	sim, err := scanSimulation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "simulation", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: update simulation status: %w", err)
	}
	return sim, nil
}

// DeleteSimulation removes the simulation; its schedule goes with it through
// ON DELETE CASCADE.
func (s *Store) DeleteSimulation(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.DeleteSimulation")
	defer span.End()

	tag, err := s.pool.Exec(ctx, `DELETE FROM simulations WHERE id::text = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete simulation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.ErrNotFound{Resource: "simulation", ID: id}
	}
	return nil
}

// ============================================================
// Users / refresh tokens
// ============================================================

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	var role string
	err := row.Scan(&u.ID, &u.Email, &u.Name, &role, &u.PasswordHash, &u.FailedAttempts,
		&u.LockedUntil, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Role = domain.Role(role)
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, u *domain.User) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "postgres.CreateUser")
	defer span.End()

	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (email, name, role, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+userColumns,
		u.Email, u.Name, string(u.Role), u.PasswordHash, u.CreatedAt, u.UpdatedAt)

	out, err := scanUser(row)
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return nil, &domain.ErrConflict{Message: "email already registered"}
		}
		return nil, fmt.Errorf("postgres: insert user: %w", err)
	}
	return out, nil
}

func (s *Store) getUser(ctx context.Context, cond, value string) (*domain.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+cond, value))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get user: %w", err)
	}
	return u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return s.getUser(ctx, "id::text = $1", id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.getUser(ctx, "lower(email) = lower($1)", email)
}

func (s *Store) GetUsersByIDs(ctx context.Context, ids []string) (map[string]*domain.User, error) {
	out := make(map[string]*domain.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id::text = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("postgres: get users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan user: %w", err)
		}
		out[u.ID] = u
	}
	return out, rows.Err()
}

func (s *Store) UpdateCredentials(ctx context.Context, userID string, upd domain.CredentialUpdate) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET failed_attempts = $2, locked_until = $3,
			last_login_at = COALESCE($4, last_login_at),
			password_hash = COALESCE(NULLIF($5, ''), password_hash),
			updated_at = now()
		WHERE id::text = $1`,
		userID, upd.FailedAttempts, upd.LockedUntil, upd.LastLoginAt, upd.PasswordHash)
	if err != nil {
		return fmt.Errorf("postgres: update credentials: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.ErrNotFound{Resource: "user", ID: userID}
	}
	return nil
}

func (s *Store) StoreRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO refresh_tokens (user_id, token_hash, expires_at)
		VALUES ($1, $2, $3)`, userID, tokenHash, expiresAt)
	if err != nil {
		return fmt.Errorf("postgres: store refresh token: %w", err)
	}
	return nil
}

func (s *Store) GetRefreshToken(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	var t domain.RefreshToken
	err := s.pool.QueryRow(ctx, `SELECT id, user_id, token_hash, expires_at, revoked
		FROM refresh_tokens WHERE token_hash = $1 AND NOT revoked`, tokenHash).
		Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.Revoked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get refresh token: %w", err)
	}
	return &t, nil
}

func (s *Store) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	if _, err := s.pool.Exec(ctx, `UPDATE refresh_tokens SET revoked = true WHERE token_hash = $1`, tokenHash); err != nil {
		return fmt.Errorf("postgres: revoke refresh token: %w", err)
	}
	return nil
}

func (s *Store) RevokeAllRefreshTokens(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, `UPDATE refresh_tokens SET revoked = true
		WHERE user_id::text = $1 AND NOT revoked`, userID); err != nil {
		return fmt.Errorf("postgres: revoke refresh tokens: %w", err)
	}
	return nil
}
