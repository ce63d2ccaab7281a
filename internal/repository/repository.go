// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tamweel-digital/falcon/internal/domain"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrVersionConflict = errors.New("version conflict")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas(r.driver) {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveCustomer inserts or updates a customer profile.
func (r *SQLRepository) SaveCustomer(ctx context.Context, c *domain.Customer) error {
	if c.NationalID == "" {
		return fmt.Errorf("%w: national ID is required", ErrInvalidInput)
	}

	consent := 0
	if c.Consent {
		consent = 1
	}

	query := `
		INSERT INTO customers (
			national_id, first_name_en, family_name_en, first_name_ar, family_name_ar,
			email, phone, salary, employment_status, employer_name, language, consent, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(national_id) DO UPDATE SET
			first_name_en = excluded.first_name_en,
			family_name_en = excluded.family_name_en,
			first_name_ar = excluded.first_name_ar,
			family_name_ar = excluded.family_name_ar,
			email = excluded.email,
			phone = excluded.phone,
			salary = excluded.salary,
			employment_status = excluded.employment_status,
			employer_name = excluded.employer_name,
			language = excluded.language,
			consent = excluded.consent
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		c.NationalID, c.FirstNameEn, c.FamilyNameEn, c.FirstNameAr, c.FamilyNameAr,
		c.Email, c.Phone, c.Salary, c.EmploymentStatus, c.EmployerName,
		c.Language, consent, c.CreatedAt,
	)
	return err
}

// GetCustomer retrieves a customer by national ID.
func (r *SQLRepository) GetCustomer(ctx context.Context, nationalID string) (*domain.Customer, error) {
	if nationalID == "" {
		return nil, fmt.Errorf("%w: national ID is required", ErrInvalidInput)
	}

	query := `
		SELECT national_id, first_name_en, family_name_en, first_name_ar, family_name_ar,
			   email, phone, salary, employment_status, employer_name, language, consent, created_at
		FROM customers
		WHERE national_id = ?
	`

	var c domain.Customer
	var consent int

	err := r.db.QueryRowContext(ctx, r.rebind(query), nationalID).Scan(
		&c.NationalID, &c.FirstNameEn, &c.FamilyNameEn, &c.FirstNameAr, &c.FamilyNameAr,
		&c.Email, &c.Phone, &c.Salary, &c.EmploymentStatus, &c.EmployerName,
		&c.Language, &consent, &c.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	c.Consent = consent == 1
	return &c, nil
}

// CustomerExists reports whether a customer row exists for the national ID.
func (r *SQLRepository) CustomerExists(ctx context.Context, nationalID string) (bool, error) {
	if nationalID == "" {
		return false, fmt.Errorf("%w: national ID is required", ErrInvalidInput)
	}

	query := `SELECT 1 FROM customers WHERE national_id = ?`

	var one int
	err := r.db.QueryRowContext(ctx, r.rebind(query), nationalID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// QueryCustomerIDs executes a compiled filter predicate over the customer
// table. The predicate carries parameterized fragments only; values bind
// through placeholders, never through string concatenation.
func (r *SQLRepository) QueryCustomerIDs(ctx context.Context, pred domain.CompiledPredicate) ([]string, error) {
	query := `SELECT national_id FROM customers`
	if where := pred.WhereClause(); where != "" {
		query += " WHERE " + where
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), pred.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func applicationTable(product domain.Product) (string, error) {
	switch product {
	case domain.ProductLoan:
		return "loan_application_details", nil
	case domain.ProductCard:
		return "card_application_details", nil
	default:
		return "", fmt.Errorf("%w: unknown product %q", ErrInvalidInput, product)
	}
}

// ActiveApplication returns the customer's most recent application that is
// neither rejected nor declined and whose status date falls inside the
// window. Returns ErrNotFound when no such application exists.
func (r *SQLRepository) ActiveApplication(ctx context.Context, product domain.Product, nationalID string, window time.Duration) (*domain.ActiveApplication, error) {
	table, err := applicationTable(product)
	if err != nil {
		return nil, err
	}
	if nationalID == "" {
		return nil, fmt.Errorf("%w: national ID is required", ErrInvalidInput)
	}

	cutoff := time.Now().UTC().Add(-window)

	query := `
		SELECT application_no, status, status_date
		FROM ` + table + `
		WHERE national_id = ?
		  AND status NOT IN ('Rejected', 'Declined')
		  AND status_date >= ?
		ORDER BY id DESC
		LIMIT 1
	`

	var app domain.ActiveApplication
	err = r.db.QueryRowContext(ctx, r.rebind(query), nationalID, cutoff).Scan(
		&app.ApplicationNo, &app.Status, &app.StatusDate,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &app, nil
}

// SaveLoanApplication inserts a new loan application row.
func (r *SQLRepository) SaveLoanApplication(ctx context.Context, app *domain.LoanApplication) error {
	if app.NationalID == "" {
		return fmt.Errorf("%w: national ID is required", ErrInvalidInput)
	}

	consent := 0
	if app.Consent {
		consent = 1
	}

	query := `
		INSERT INTO loan_application_details (
			application_no, national_id, status, status_date,
			finance_amount, tenure, emi, total_repayment, interest,
			consent_status, nafath_status, remarks
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		app.ApplicationNo, app.NationalID, app.Status, app.StatusDate,
		app.FinanceAmount, app.Tenure, app.EMI, app.TotalRepayment, app.Interest,
		consent, app.NafathStatus, app.Remarks,
	)
	return err
}

// SaveCardApplication inserts a new card application row.
func (r *SQLRepository) SaveCardApplication(ctx context.Context, app *domain.CardApplication) error {
	if app.NationalID == "" {
		return fmt.Errorf("%w: national ID is required", ErrInvalidInput)
	}

	consent := 0
	if app.Consent {
		consent = 1
	}

	query := `
		INSERT INTO card_application_details (
			application_no, national_id, status, status_date,
			card_type, card_limit, consent_status, nafath_status, remarks
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		app.ApplicationNo, app.NationalID, app.Status, app.StatusDate,
		app.CardType, app.CardLimit, consent, app.NafathStatus, app.Remarks,
	)
	return err
}

// LatestLoanApplication returns the newest loan application for a customer.
func (r *SQLRepository) LatestLoanApplication(ctx context.Context, nationalID string) (*domain.LoanApplication, error) {
	if nationalID == "" {
		return nil, fmt.Errorf("%w: national ID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, application_no, national_id, status, status_date,
			   finance_amount, tenure, emi, total_repayment, interest,
			   consent_status, nafath_status, remarks
		FROM loan_application_details
		WHERE national_id = ?
		ORDER BY id DESC
		LIMIT 1
	`

	var app domain.LoanApplication
	var consent int
	var nafath, remarks sql.NullString

	err := r.db.QueryRowContext(ctx, r.rebind(query), nationalID).Scan(
		&app.ID, &app.ApplicationNo, &app.NationalID, &app.Status, &app.StatusDate,
		&app.FinanceAmount, &app.Tenure, &app.EMI, &app.TotalRepayment, &app.Interest,
		&consent, &nafath, &remarks,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	app.Consent = consent == 1
	app.NafathStatus = nafath.String
	app.Remarks = remarks.String
	return &app, nil
}

// LatestCardApplication returns the newest card application for a customer.
func (r *SQLRepository) LatestCardApplication(ctx context.Context, nationalID string) (*domain.CardApplication, error) {
	if nationalID == "" {
		return nil, fmt.Errorf("%w: national ID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, application_no, national_id, status, status_date,
			   card_type, card_limit, consent_status, nafath_status, remarks
		FROM card_application_details
		WHERE national_id = ?
		ORDER BY id DESC
		LIMIT 1
	`

	var app domain.CardApplication
	var consent int
	var cardType, nafath, remarks sql.NullString

	err := r.db.QueryRowContext(ctx, r.rebind(query), nationalID).Scan(
		&app.ID, &app.ApplicationNo, &app.NationalID, &app.Status, &app.StatusDate,
		&cardType, &app.CardLimit, &consent, &nafath, &remarks,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	app.Consent = consent == 1
	app.CardType = cardType.String
	app.NafathStatus = nafath.String
	app.Remarks = remarks.String
	return &app, nil
}

// ApplicationNoExists reports whether an application number is already taken.
func (r *SQLRepository) ApplicationNoExists(ctx context.Context, product domain.Product, applicationNo int64) (bool, error) {
	table, err := applicationTable(product)
	if err != nil {
		return false, err
	}

	query := `SELECT 1 FROM ` + table + ` WHERE application_no = ?`

	var one int
	err = r.db.QueryRowContext(ctx, r.rebind(query), applicationNo).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SaveTemplate stores a notification template.
func (r *SQLRepository) SaveTemplate(ctx context.Context, tmpl *domain.NotificationTemplate) error {
	if tmpl.ID == "" {
		return fmt.Errorf("%w: template ID is required", ErrInvalidInput)
	}

	additional, _ := json.Marshal(tmpl.AdditionalData)

	var expires any
	if tmpl.ExpiresAt != nil {
		expires = *tmpl.ExpiresAt
	}

	query := `
		INSERT INTO notification_templates (
			id, title, body, title_en, body_en, title_ar, body_ar,
			route, additional_data, created_at, expires_at, target_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tmpl.ID, tmpl.Title, tmpl.Body, tmpl.TitleEn, tmpl.BodyEn, tmpl.TitleAr, tmpl.BodyAr,
		tmpl.Route, string(additional), tmpl.CreatedAt, expires, tmpl.TargetCount,
	)
	return err
}

// GetTemplate retrieves a notification template by ID.
func (r *SQLRepository) GetTemplate(ctx context.Context, id string) (*domain.NotificationTemplate, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: template ID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, title, body, title_en, body_en, title_ar, body_ar,
			   route, additional_data, created_at, expires_at, target_count
		FROM notification_templates
		WHERE id = ?
	`

	var tmpl domain.NotificationTemplate
	var title, body, titleEn, bodyEn, titleAr, bodyAr, route, additional sql.NullString
	var expires sql.NullTime

	err := r.db.QueryRowContext(ctx, r.rebind(query), id).Scan(
		&tmpl.ID, &title, &body, &titleEn, &bodyEn, &titleAr, &bodyAr,
		&route, &additional, &tmpl.CreatedAt, &expires, &tmpl.TargetCount,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	tmpl.Title = title.String
	tmpl.Body = body.String
	tmpl.TitleEn = titleEn.String
	tmpl.BodyEn = bodyEn.String
	tmpl.TitleAr = titleAr.String
	tmpl.BodyAr = bodyAr.String
	tmpl.Route = route.String
	if additional.String != "" && additional.String != "null" {
		json.Unmarshal([]byte(additional.String), &tmpl.AdditionalData)
	}
	if expires.Valid {
		t := expires.Time
		tmpl.ExpiresAt = &t
	}

	return &tmpl, nil
}

// GetInbox retrieves a user's notification document. A user with no row
// yet gets an empty inbox at version zero.
func (r *SQLRepository) GetInbox(ctx context.Context, nationalID string) (*domain.Inbox, error) {
	if nationalID == "" {
		return nil, fmt.Errorf("%w: national ID is required", ErrInvalidInput)
	}

	query := `SELECT notifications, version FROM user_notifications WHERE national_id = ?`

	var raw string
	var version int64

	err := r.db.QueryRowContext(ctx, r.rebind(query), nationalID).Scan(&raw, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.Inbox{NationalID: nationalID, Version: 0}, nil
	}
	if err != nil {
		return nil, err
	}

	inbox := &domain.Inbox{NationalID: nationalID, Version: version}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &inbox.Notifications); err != nil {
			return nil, fmt.Errorf("failed to parse inbox for %s: %w", nationalID, err)
		}
	}

	return inbox, nil
}

// UpsertInbox writes an inbox document guarded by its version. A version of
// zero inserts a fresh row; otherwise the row updates only if the stored
// version still matches. Either path losing the race returns
// ErrVersionConflict so the caller can re-read and retry.
func (r *SQLRepository) UpsertInbox(ctx context.Context, inbox *domain.Inbox) error {
	if inbox.NationalID == "" {
		return fmt.Errorf("%w: national ID is required", ErrInvalidInput)
	}

	raw, err := json.Marshal(inbox.Notifications)
	if err != nil {
		return fmt.Errorf("failed to encode inbox: %w", err)
	}

	now := time.Now().UTC()

	if inbox.Version == 0 {
		query := `
			INSERT INTO user_notifications (national_id, notifications, version, updated_at)
			VALUES (?, ?, 1, ?)
			ON CONFLICT(national_id) DO NOTHING
		`
		result, err := r.db.ExecContext(ctx, r.rebind(query), inbox.NationalID, string(raw), now)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrVersionConflict
		}
		inbox.Version = 1
		return nil
	}

	query := `
		UPDATE user_notifications
		SET notifications = ?, version = version + 1, updated_at = ?
		WHERE national_id = ? AND version = ?
	`
	result, err := r.db.ExecContext(ctx, r.rebind(query), string(raw), now, inbox.NationalID, inbox.Version)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrVersionConflict
	}
	inbox.Version++
	return nil
}

// SaveAuditLog inserts an audit trail entry.
func (r *SQLRepository) SaveAuditLog(ctx context.Context, entry *domain.AuditLog) error {
	if entry.Action == "" {
		return fmt.Errorf("%w: action is required", ErrInvalidInput)
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO audit_logs (national_id, action, details, created_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		entry.NationalID, entry.Action, entry.Details, createdAt,
	)
	return err
}

// ValidateAPIKey reports whether the key exists and is active.
func (r *SQLRepository) ValidateAPIKey(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}

	query := `SELECT 1 FROM api_keys WHERE api_key = ? AND active = 1`

	var one int
	err := r.db.QueryRowContext(ctx, r.rebind(query), key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SaveAPIKey inserts or reactivates an API key.
func (r *SQLRepository) SaveAPIKey(ctx context.Context, key, description string) error {
	if key == "" {
		return fmt.Errorf("%w: key is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO api_keys (api_key, description, active, created_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(api_key) DO UPDATE SET
			description = excluded.description,
			active = 1
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query), key, description, time.Now().UTC())
	return err
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
