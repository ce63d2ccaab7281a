package repository

import "strings"

// Schema definitions for the Falcon database.
// Compatible with both SQLite and PostgreSQL; the {{AUTO_ID}} token is
// swapped for the driver's auto-increment primary key form.

const schemaCustomers = `
CREATE TABLE IF NOT EXISTS customers (
    national_id TEXT PRIMARY KEY,
    first_name_en TEXT,
    family_name_en TEXT,
    first_name_ar TEXT,
    family_name_ar TEXT,
    email TEXT,
    phone TEXT,
    salary REAL NOT NULL DEFAULT 0,
    employment_status TEXT,
    employer_name TEXT,
    language TEXT NOT NULL DEFAULT 'en',
    consent INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_customers_employment ON customers(employment_status);
CREATE INDEX IF NOT EXISTS idx_customers_employer ON customers(employer_name);
`

const schemaLoanApplications = `
CREATE TABLE IF NOT EXISTS loan_application_details (
    id {{AUTO_ID}},
    application_no BIGINT NOT NULL,
    national_id TEXT NOT NULL,
    status TEXT NOT NULL,
    status_date TIMESTAMP NOT NULL,
    finance_amount REAL NOT NULL DEFAULT 0,
    tenure INTEGER NOT NULL DEFAULT 0,
    emi REAL NOT NULL DEFAULT 0,
    total_repayment REAL NOT NULL DEFAULT 0,
    interest REAL NOT NULL DEFAULT 0,
    consent_status INTEGER NOT NULL DEFAULT 0,
    nafath_status TEXT,
    remarks TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_loan_app_no ON loan_application_details(application_no);
CREATE INDEX IF NOT EXISTS idx_loan_national_id ON loan_application_details(national_id);
CREATE INDEX IF NOT EXISTS idx_loan_status_date ON loan_application_details(national_id, status_date);
`

const schemaCardApplications = `
CREATE TABLE IF NOT EXISTS card_application_details (
    id {{AUTO_ID}},
    application_no BIGINT NOT NULL,
    national_id TEXT NOT NULL,
    status TEXT NOT NULL,
    status_date TIMESTAMP NOT NULL,
    card_type TEXT,
    card_limit REAL NOT NULL DEFAULT 0,
    consent_status INTEGER NOT NULL DEFAULT 0,
    nafath_status TEXT,
    remarks TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_card_app_no ON card_application_details(application_no);
CREATE INDEX IF NOT EXISTS idx_card_national_id ON card_application_details(national_id);
CREATE INDEX IF NOT EXISTS idx_card_status_date ON card_application_details(national_id, status_date);
`

const schemaNotificationTemplates = `
CREATE TABLE IF NOT EXISTS notification_templates (
    id TEXT PRIMARY KEY,
    title TEXT,
    body TEXT,
    title_en TEXT,
    body_en TEXT,
    title_ar TEXT,
    body_ar TEXT,
    route TEXT,
    additional_data TEXT,
    created_at TIMESTAMP NOT NULL,
    expires_at TIMESTAMP,
    target_count INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_templates_expires ON notification_templates(expires_at);
`

// One JSON document per user; version supports optimistic concurrency.
const schemaUserNotifications = `
CREATE TABLE IF NOT EXISTS user_notifications (
    national_id TEXT PRIMARY KEY,
    notifications TEXT NOT NULL,
    version BIGINT NOT NULL DEFAULT 0,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaAuditLogs = `
CREATE TABLE IF NOT EXISTS audit_logs (
    id {{AUTO_ID}},
    national_id TEXT,
    action TEXT NOT NULL,
    details TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_national_id ON audit_logs(national_id);
CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_logs(action);
CREATE INDEX IF NOT EXISTS idx_audit_created_at ON audit_logs(created_at);
`

const schemaAPIKeys = `
CREATE TABLE IF NOT EXISTS api_keys (
    api_key TEXT PRIMARY KEY,
    description TEXT,
    active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL
);
`

// AllSchemas returns all schema statements in order for the given driver.
func AllSchemas(driver string) []string {
	autoID := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if driver == "postgres" {
		autoID = "BIGSERIAL PRIMARY KEY"
	}

	schemas := []string{
		schemaCustomers,
		schemaLoanApplications,
		schemaCardApplications,
		schemaNotificationTemplates,
		schemaUserNotifications,
		schemaAuditLogs,
		schemaAPIKeys,
	}

	out := make([]string, len(schemas))
	for i, s := range schemas {
		out[i] = strings.ReplaceAll(s, "{{AUTO_ID}}", autoID)
	}
	return out
}
