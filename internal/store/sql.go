package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openwrench/openwrench/internal/model"
)

// SQLStore is the MySQL-backed Store. Queries follow the raw database/sql
// style: explicit column lists, ? placeholders, sql.Null* scanning for
// nullable columns.
type SQLStore struct{ DB *sql.DB }

// NewSQLStore wraps an open database handle.
func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{DB: db} }

var _ Store = (*SQLStore)(nil)

const userCols = "id, username, password, role, employee_id, first_name, last_name, phone_number, profile_image_url, created_at"

func (s *SQLStore) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	u.ID = uuid.NewString()
	u.CreatedAt = time.Now().UTC()
	_, err := s.DB.ExecContext(ctx,
		"INSERT INTO users (id, username, password, role, employee_id, first_name, last_name, phone_number, profile_image_url, created_at) VALUES (?,?,?,?,?,?,?,?,?,?)",
		u.ID, u.Username, u.Password, u.Role, u.EmployeeID, u.FirstName, u.LastName, u.PhoneNumber, u.ProfileImageURL, u.CreatedAt)
	if err != nil {
		// 1062 = duplicate entry on the unique username index
		if strings.Contains(err.Error(), "1062") {
			return model.User{}, ErrUsernameExists
		}
		return model.User{}, err
	}
	return u, nil
}

func (s *SQLStore) GetUser(ctx context.Context, id string) (model.User, error) {
	return s.scanUser(s.DB.QueryRowContext(ctx,
		"SELECT "+userCols+" FROM users WHERE id=? LIMIT 1", id))
}

func (s *SQLStore) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	return s.scanUser(s.DB.QueryRowContext(ctx,
		"SELECT "+userCols+" FROM users WHERE username=? LIMIT 1", username))
}

func (s *SQLStore) UpdateUserPassword(ctx context.Context, id, hash string) error {
	res, err := s.DB.ExecContext(ctx, "UPDATE users SET password=? WHERE id=?", hash, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetUser(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.Password, &u.Role, &u.EmployeeID,
		&u.FirstName, &u.LastName, &u.PhoneNumber, &u.ProfileImageURL, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	return u, err
}

const jobCols = "id, service_type, title, description, location, preferred_date, preferred_time, status, " +
	"customer_id, provider_id, created_at, version, estimated_price, " +
	"contract_terms, customer_signature, provider_signature, signed_at, " +
	"payment_status, checkout_session_id, payment_link_token, payment_link_session_id, " +
	"is_urgent, response_deadline, customer_email, customer_access_token, " +
	"deposit_amount, deposit_status, deposit_checkout_session_id, deposit_paid_at, " +
	"appointment_date_time, previous_appointment_date_time, reschedule_count, rescheduled_at, " +
	"cancellation_fee, cancellation_fee_status, cancelled_at, " +
	"checked_in_at, checked_out_at, actual_start_time, actual_end_time, job_notes"

func (s *SQLStore) CreateJob(ctx context.Context, j model.Job) (model.Job, error) {
	j = normalizeJobDefaults(j)
	j.ID = uuid.NewString()
	j.CreatedAt = time.Now().UTC()
	j.Version = 1
	_, err := s.DB.ExecContext(ctx,
		"INSERT INTO jobs ("+jobCols+") VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)",
		j.ID, j.ServiceType, j.Title, j.Description, j.Location, j.PreferredDate, j.PreferredTime, string(j.Status),
		j.CustomerID, j.ProviderID, j.CreatedAt, j.Version, nullInt(j.EstimatedPrice),
		j.ContractTerms, j.CustomerSignature, j.ProviderSignature, nullTime(j.SignedAt),
		j.PaymentStatus, j.CheckoutSessionID, j.PaymentLinkToken, j.PaymentLinkSessionID,
		j.IsUrgent, nullTime(j.ResponseDeadline), j.CustomerEmail, j.CustomerAccessToken,
		j.DepositAmount, j.DepositStatus, j.DepositCheckoutSessionID, nullTime(j.DepositPaidAt),
		nullTime(j.AppointmentDateTime), nullTime(j.PreviousAppointmentDateTime), j.RescheduleCount, nullTime(j.RescheduledAt),
		j.CancellationFee, j.CancellationFeeStatus, nullTime(j.CancelledAt),
		nullTime(j.CheckedInAt), nullTime(j.CheckedOutAt), nullTime(j.ActualStartTime), nullTime(j.ActualEndTime), j.JobNotes)
	if err != nil {
		return model.Job{}, err
	}
	return j, nil
}

func (s *SQLStore) GetJob(ctx context.Context, id string) (model.Job, error) {
	return s.scanJob(s.DB.QueryRowContext(ctx,
		"SELECT "+jobCols+" FROM jobs WHERE id=? LIMIT 1", id))
}

func (s *SQLStore) GetJobByPaymentLinkToken(ctx context.Context, token string) (model.Job, error) {
	if token == "" {
		return model.Job{}, ErrNotFound
	}
	return s.scanJob(s.DB.QueryRowContext(ctx,
		"SELECT "+jobCols+" FROM jobs WHERE payment_link_token=? LIMIT 1", token))
}

func (s *SQLStore) GetJobByCustomerAccessToken(ctx context.Context, token string) (model.Job, error) {
	if token == "" {
		return model.Job{}, ErrNotFound
	}
	return s.scanJob(s.DB.QueryRowContext(ctx,
		"SELECT "+jobCols+" FROM jobs WHERE customer_access_token=? LIMIT 1", token))
}

func (s *SQLStore) ListJobs(ctx context.Context) ([]model.Job, error) {
	return s.queryJobs(ctx, "SELECT "+jobCols+" FROM jobs ORDER BY created_at DESC, id")
}

func (s *SQLStore) ListJobsByCustomerEmail(ctx context.Context, email string) ([]model.Job, error) {
	return s.queryJobs(ctx,
		"SELECT "+jobCols+" FROM jobs WHERE LOWER(customer_email)=LOWER(?) ORDER BY created_at DESC, id", email)
}

func (s *SQLStore) UpdateJob(ctx context.Context, id string, upd JobUpdate) (model.Job, error) {
	return s.updateJob(ctx, id, -1, upd)
}

func (s *SQLStore) UpdateJobVersioned(ctx context.Context, id string, version int, upd JobUpdate) (model.Job, error) {
	return s.updateJob(ctx, id, version, upd)
}

// updateJob builds a SET clause from the non-nil fields of upd. The stored
// version is bumped on every update so concurrent versioned callers always
// observe intervening writes; version < 0 skips the optimistic compare.
func (s *SQLStore) updateJob(ctx context.Context, id string, version int, upd JobUpdate) (model.Job, error) {
	sets, args := upd.assignments()
	sets = append(sets, "version = version + 1")

	q := "UPDATE jobs SET " + strings.Join(sets, ", ") + " WHERE id=?"
	args = append(args, id)
	if version >= 0 {
		q += " AND version=?"
		args = append(args, version)
	}

	res, err := s.DB.ExecContext(ctx, q, args...)
	if err != nil {
		return model.Job{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Missing row and stale version both affect zero rows; a follow-up
		// read tells them apart.
		if _, err := s.GetJob(ctx, id); err != nil {
			return model.Job{}, err
		}
		if version >= 0 {
			return model.Job{}, ErrVersionConflict
		}
	}
	return s.GetJob(ctx, id)
}

// assignments converts the non-nil fields into SET fragments and args.
func (u JobUpdate) assignments() ([]string, []any) {
	var sets []string
	var args []any
	add := func(col string, v any) {
		sets = append(sets, col+"=?")
		args = append(args, v)
	}
	if u.Status != nil {
		add("status", string(*u.Status))
	}
	if u.CustomerID != nil {
		add("customer_id", *u.CustomerID)
	}
	if u.ProviderID != nil {
		add("provider_id", *u.ProviderID)
	}
	if u.EstimatedPrice != nil {
		add("estimated_price", *u.EstimatedPrice)
	}
	if u.ContractTerms != nil {
		add("contract_terms", *u.ContractTerms)
	}
	if u.CustomerSignature != nil {
		add("customer_signature", *u.CustomerSignature)
	}
	if u.ProviderSignature != nil {
		add("provider_signature", *u.ProviderSignature)
	}
	if u.SignedAt != nil {
		add("signed_at", *u.SignedAt)
	}
	if u.PaymentStatus != nil {
		add("payment_status", *u.PaymentStatus)
	}
	if u.CheckoutSessionID != nil {
		add("checkout_session_id", *u.CheckoutSessionID)
	}
	if u.PaymentLinkToken != nil {
		add("payment_link_token", *u.PaymentLinkToken)
	}
	if u.PaymentLinkSessionID != nil {
		add("payment_link_session_id", *u.PaymentLinkSessionID)
	}
	if u.IsUrgent != nil {
		add("is_urgent", *u.IsUrgent)
	}
	if u.ResponseDeadline != nil {
		add("response_deadline", *u.ResponseDeadline)
	}
	if u.CustomerEmail != nil {
		add("customer_email", *u.CustomerEmail)
	}
	if u.CustomerAccessToken != nil {
		add("customer_access_token", *u.CustomerAccessToken)
	}
	if u.DepositAmount != nil {
		add("deposit_amount", *u.DepositAmount)
	}
	if u.DepositStatus != nil {
		add("deposit_status", *u.DepositStatus)
	}
	if u.DepositCheckoutSessionID != nil {
		add("deposit_checkout_session_id", *u.DepositCheckoutSessionID)
	}
	if u.DepositPaidAt != nil {
		add("deposit_paid_at", *u.DepositPaidAt)
	}
	if u.AppointmentDateTime != nil {
		add("appointment_date_time", *u.AppointmentDateTime)
	}
	if u.PreviousAppointmentDateTime != nil {
		add("previous_appointment_date_time", *u.PreviousAppointmentDateTime)
	}
	if u.RescheduleCount != nil {
		add("reschedule_count", *u.RescheduleCount)
	}
	if u.RescheduledAt != nil {
		add("rescheduled_at", *u.RescheduledAt)
	}
	if u.CancellationFee != nil {
		add("cancellation_fee", *u.CancellationFee)
	}
	if u.CancellationFeeStatus != nil {
		add("cancellation_fee_status", *u.CancellationFeeStatus)
	}
	if u.CancelledAt != nil {
		add("cancelled_at", *u.CancelledAt)
	}
	if u.CheckedInAt != nil {
		add("checked_in_at", *u.CheckedInAt)
	}
	if u.CheckedOutAt != nil {
		add("checked_out_at", *u.CheckedOutAt)
	}
	if u.ActualStartTime != nil {
		add("actual_start_time", *u.ActualStartTime)
	}
	if u.ActualEndTime != nil {
		add("actual_end_time", *u.ActualEndTime)
	}
	if u.JobNotes != nil {
		add("job_notes", *u.JobNotes)
	}
	return sets, args
}

type rowScanner interface{ Scan(dest ...any) error }

func (s *SQLStore) scanJob(row rowScanner) (model.Job, error) {
	var (
		j         model.Job
		status    string
		price     sql.NullInt64
		signedAt  sql.NullTime
		deadline  sql.NullTime
		depPaid   sql.NullTime
		appt      sql.NullTime
		prevAppt  sql.NullTime
		reschedAt sql.NullTime
		cancelAt  sql.NullTime
		inAt      sql.NullTime
		outAt     sql.NullTime
		startAt   sql.NullTime
		endAt     sql.NullTime
	)
	err := row.Scan(&j.ID, &j.ServiceType, &j.Title, &j.Description, &j.Location, &j.PreferredDate, &j.PreferredTime, &status,
		&j.CustomerID, &j.ProviderID, &j.CreatedAt, &j.Version, &price,
		&j.ContractTerms, &j.CustomerSignature, &j.ProviderSignature, &signedAt,
		&j.PaymentStatus, &j.CheckoutSessionID, &j.PaymentLinkToken, &j.PaymentLinkSessionID,
		&j.IsUrgent, &deadline, &j.CustomerEmail, &j.CustomerAccessToken,
		&j.DepositAmount, &j.DepositStatus, &j.DepositCheckoutSessionID, &depPaid,
		&appt, &prevAppt, &j.RescheduleCount, &reschedAt,
		&j.CancellationFee, &j.CancellationFeeStatus, &cancelAt,
		&inAt, &outAt, &startAt, &endAt, &j.JobNotes)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Job{}, ErrNotFound
	}
	if err != nil {
		return model.Job{}, err
	}
	j.Status = model.JobStatus(status)
	if price.Valid {
		v := int(price.Int64)
		j.EstimatedPrice = &v
	}
	j.SignedAt = timePtr(signedAt)
	j.ResponseDeadline = timePtr(deadline)
	j.DepositPaidAt = timePtr(depPaid)
	j.AppointmentDateTime = timePtr(appt)
	j.PreviousAppointmentDateTime = timePtr(prevAppt)
	j.RescheduledAt = timePtr(reschedAt)
	j.CancelledAt = timePtr(cancelAt)
	j.CheckedInAt = timePtr(inAt)
	j.CheckedOutAt = timePtr(outAt)
	j.ActualStartTime = timePtr(startAt)
	j.ActualEndTime = timePtr(endAt)
	return j, nil
}

func (s *SQLStore) queryJobs(ctx context.Context, q string, args ...any) ([]model.Job, error) {
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Job
	for rows.Next() {
		j, err := s.scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *SQLStore) CreateConversation(ctx context.Context, conv model.Conversation) (model.Conversation, error) {
	conv.ID = uuid.NewString()
	conv.CreatedAt = time.Now().UTC()
	_, err := s.DB.ExecContext(ctx,
		"INSERT INTO conversations (id, job_id, customer_id, provider_id, created_at) VALUES (?,?,?,?,?)",
		conv.ID, conv.JobID, conv.CustomerID, conv.ProviderID, conv.CreatedAt)
	if err != nil {
		return model.Conversation{}, err
	}
	return conv, nil
}

func (s *SQLStore) GetConversation(ctx context.Context, id string) (model.Conversation, error) {
	return scanConversation(s.DB.QueryRowContext(ctx,
		"SELECT id, job_id, customer_id, provider_id, created_at FROM conversations WHERE id=? LIMIT 1", id))
}

func (s *SQLStore) GetConversationByJobID(ctx context.Context, jobID string) (model.Conversation, error) {
	return scanConversation(s.DB.QueryRowContext(ctx,
		"SELECT id, job_id, customer_id, provider_id, created_at FROM conversations WHERE job_id=? LIMIT 1", jobID))
}

func (s *SQLStore) ListConversationsByUserID(ctx context.Context, userID string) ([]model.Conversation, error) {
	rows, err := s.DB.QueryContext(ctx,
		"SELECT id, job_id, customer_id, provider_id, created_at FROM conversations WHERE customer_id=? OR provider_id=? ORDER BY created_at",
		userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	return out, rows.Err()
}

func scanConversation(row rowScanner) (model.Conversation, error) {
	var conv model.Conversation
	err := row.Scan(&conv.ID, &conv.JobID, &conv.CustomerID, &conv.ProviderID, &conv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Conversation{}, ErrNotFound
	}
	return conv, err
}

func (s *SQLStore) CreateMessage(ctx context.Context, m model.Message) (model.Message, error) {
	m.ID = uuid.NewString()
	m.CreatedAt = time.Now().UTC()
	_, err := s.DB.ExecContext(ctx,
		"INSERT INTO messages (id, conversation_id, sender_id, content, created_at) VALUES (?,?,?,?,?)",
		m.ID, m.ConversationID, m.SenderID, m.Content, m.CreatedAt)
	if err != nil {
		return model.Message{}, err
	}
	return m, nil
}

func (s *SQLStore) ListMessagesByConversation(ctx context.Context, conversationID string) ([]model.Message, error) {
	rows, err := s.DB.QueryContext(ctx,
		"SELECT id, conversation_id, sender_id, content, created_at FROM messages WHERE conversation_id=? ORDER BY created_at, id",
		conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetLastMessageByConversation(ctx context.Context, conversationID string) (model.Message, error) {
	var m model.Message
	err := s.DB.QueryRowContext(ctx,
		"SELECT id, conversation_id, sender_id, content, created_at FROM messages WHERE conversation_id=? ORDER BY created_at DESC, id DESC LIMIT 1",
		conversationID).Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Message{}, ErrNotFound
	}
	return m, err
}

func (s *SQLStore) CreateSession(ctx context.Context, kind, principalID, token string, expiresAt time.Time) (model.Session, error) {
	sess := model.Session{
		ID:          uuid.NewString(),
		Kind:        kind,
		PrincipalID: principalID,
		Token:       token,
		CreatedAt:   time.Now().UTC(),
		ExpiresAt:   expiresAt,
	}
	_, err := s.DB.ExecContext(ctx,
		"INSERT INTO sessions (id, kind, principal_id, token, created_at, expires_at) VALUES (?,?,?,?,?,?)",
		sess.ID, sess.Kind, sess.PrincipalID, sess.Token, sess.CreatedAt, sess.ExpiresAt)
	if err != nil {
		return model.Session{}, err
	}
	return sess, nil
}

func (s *SQLStore) GetSessionByToken(ctx context.Context, kind, token string) (model.Session, error) {
	var sess model.Session
	err := s.DB.QueryRowContext(ctx,
		"SELECT id, kind, principal_id, token, created_at, expires_at FROM sessions WHERE kind=? AND token=? LIMIT 1",
		kind, token).Scan(&sess.ID, &sess.Kind, &sess.PrincipalID, &sess.Token, &sess.CreatedAt, &sess.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, ErrNotFound
	}
	return sess, err
}

func (s *SQLStore) DeleteSession(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, "DELETE FROM sessions WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) CreateVerificationCode(ctx context.Context, email, code string, expiresAt time.Time) (model.VerificationCode, error) {
	vc := model.VerificationCode{
		ID:        uuid.NewString(),
		Email:     strings.ToLower(email),
		Code:      code,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.DB.ExecContext(ctx,
		"INSERT INTO verification_codes (id, email, code, expires_at, created_at) VALUES (?,?,?,?,?)",
		vc.ID, vc.Email, vc.Code, vc.ExpiresAt, vc.CreatedAt)
	if err != nil {
		return model.VerificationCode{}, err
	}
	return vc, nil
}

func (s *SQLStore) GetLatestVerificationCode(ctx context.Context, email string) (model.VerificationCode, error) {
	var vc model.VerificationCode
	err := s.DB.QueryRowContext(ctx,
		"SELECT id, email, code, expires_at, created_at FROM verification_codes WHERE email=LOWER(?) ORDER BY created_at DESC, id DESC LIMIT 1",
		email).Scan(&vc.ID, &vc.Email, &vc.Code, &vc.ExpiresAt, &vc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.VerificationCode{}, ErrNotFound
	}
	return vc, err
}

func (s *SQLStore) DeleteVerificationCode(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, "DELETE FROM verification_codes WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func nullTime(p *time.Time) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *p, Valid: true}
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}
