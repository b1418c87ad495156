package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Open connects to MySQL and verifies the connection.
func Open(user, pass, host, port, name string) (*sql.DB, error) {
	auth := user
	if pass != "" {
		auth = fmt.Sprintf("%s:%s", user, pass)
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, host, port, name)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// EnsureSchema creates the tables this service needs when they do not exist
// yet. There is no external migration tool; the schema is small enough to
// bootstrap idempotently at startup.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id                CHAR(36) PRIMARY KEY,
			username          VARCHAR(191) NOT NULL,
			password          TEXT NOT NULL,
			role              VARCHAR(32) NOT NULL,
			employee_id       VARCHAR(64) NOT NULL DEFAULT '',
			first_name        VARCHAR(191) NOT NULL DEFAULT '',
			last_name         VARCHAR(191) NOT NULL DEFAULT '',
			phone_number      VARCHAR(64) NOT NULL DEFAULT '',
			profile_image_url TEXT,
			created_at        DATETIME(6) NOT NULL,
			UNIQUE KEY uq_users_username (username)
		)`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id                             CHAR(36) PRIMARY KEY,
			service_type                   VARCHAR(191) NOT NULL,
			title                          VARCHAR(255) NOT NULL,
			description                    TEXT NOT NULL,
			location                       TEXT NOT NULL,
			preferred_date                 VARCHAR(32) NOT NULL,
			preferred_time                 VARCHAR(32) NOT NULL,
			status                         VARCHAR(32) NOT NULL,
			customer_id                    CHAR(36) NOT NULL DEFAULT '',
			provider_id                    CHAR(36) NOT NULL DEFAULT '',
			created_at                     DATETIME(6) NOT NULL,
			version                        INT NOT NULL DEFAULT 1,
			estimated_price                INT NULL,
			contract_terms                 TEXT,
			customer_signature             TEXT,
			provider_signature             TEXT,
			signed_at                      DATETIME(6) NULL,
			payment_status                 VARCHAR(32) NOT NULL DEFAULT 'pending',
			checkout_session_id            VARCHAR(191) NOT NULL DEFAULT '',
			payment_link_token             VARCHAR(191) NOT NULL DEFAULT '',
			payment_link_session_id        VARCHAR(191) NOT NULL DEFAULT '',
			is_urgent                      BOOLEAN NOT NULL DEFAULT FALSE,
			response_deadline              DATETIME(6) NULL,
			customer_email                 VARCHAR(191) NOT NULL,
			customer_access_token          VARCHAR(191) NOT NULL DEFAULT '',
			deposit_amount                 INT NOT NULL DEFAULT 100,
			deposit_status                 VARCHAR(32) NOT NULL DEFAULT 'pending',
			deposit_checkout_session_id    VARCHAR(191) NOT NULL DEFAULT '',
			deposit_paid_at                DATETIME(6) NULL,
			appointment_date_time          DATETIME(6) NULL,
			previous_appointment_date_time DATETIME(6) NULL,
			reschedule_count               INT NOT NULL DEFAULT 0,
			rescheduled_at                 DATETIME(6) NULL,
			cancellation_fee               INT NOT NULL DEFAULT 0,
			cancellation_fee_status        VARCHAR(32) NOT NULL DEFAULT 'none',
			cancelled_at                   DATETIME(6) NULL,
			checked_in_at                  DATETIME(6) NULL,
			checked_out_at                 DATETIME(6) NULL,
			actual_start_time              DATETIME(6) NULL,
			actual_end_time                DATETIME(6) NULL,
			job_notes                      TEXT,
			KEY idx_jobs_customer_email (customer_email),
			KEY idx_jobs_payment_link_token (payment_link_token),
			KEY idx_jobs_customer_access_token (customer_access_token)
		)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id          CHAR(36) PRIMARY KEY,
			job_id      CHAR(36) NOT NULL,
			customer_id CHAR(36) NOT NULL,
			provider_id CHAR(36) NOT NULL,
			created_at  DATETIME(6) NOT NULL,
			KEY idx_conversations_job (job_id)
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id              CHAR(36) PRIMARY KEY,
			conversation_id CHAR(36) NOT NULL,
			sender_id       CHAR(36) NOT NULL,
			content         TEXT NOT NULL,
			created_at      DATETIME(6) NOT NULL,
			KEY idx_messages_conversation (conversation_id, created_at)
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id           CHAR(36) PRIMARY KEY,
			kind         VARCHAR(16) NOT NULL,
			principal_id CHAR(36) NOT NULL DEFAULT '',
			token        VARCHAR(191) NOT NULL,
			created_at   DATETIME(6) NOT NULL,
			expires_at   DATETIME(6) NOT NULL,
			UNIQUE KEY uq_sessions_kind_token (kind, token)
		)`,
		`CREATE TABLE IF NOT EXISTS verification_codes (
			id         CHAR(36) PRIMARY KEY,
			email      VARCHAR(191) NOT NULL,
			code       VARCHAR(16) NOT NULL,
			expires_at DATETIME(6) NOT NULL,
			created_at DATETIME(6) NOT NULL,
			KEY idx_verification_codes_email (email, created_at)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
