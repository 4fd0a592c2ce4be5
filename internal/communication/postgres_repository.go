package communication

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/wolfman30/appointment-notify/internal/tenancy"
)

// PgxPool is the subset of pgxpool.Pool the repository uses.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository persists messages and calls in Postgres.
type PostgresRepository struct {
	pool          PgxPool
	messagesTable string
	callsTable    string
}

var (
	_ MessageRepository = (*PostgresRepository)(nil)
	_ CallRepository    = (*PostgresRepository)(nil)
)

// NewPostgresRepository routes to the tables named by cfg. A zero config uses the
// default "messages" and "calls" tables.
func NewPostgresRepository(pool PgxPool, cfg tenancy.SubaccountConfig) *PostgresRepository {
	if pool == nil {
		panic("communication: pgx pool required")
	}
	return &PostgresRepository{
		pool:          pool,
		messagesTable: quoteTable(cfg.TableFor(tenancy.TableMessages)),
		callsTable:    quoteTable(cfg.TableFor(tenancy.TableCalls)),
	}
}

func quoteTable(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}

const messageColumns = `id, tenant_key, appointment_id, patient_id, phone_number, content, channel_type, status,
	COALESCE(external_message_id, ''), provider_response, error_code, response_text, responded_at,
	sent_at, delivered_at, read_at, failed_at, created_at, updated_at, version`

const callColumns = `id, tenant_key, appointment_id, patient_id, phone_number, status, call_type,
	COALESCE(external_call_id, ''), flow_id, resume_key, start_time, end_time, duration_seconds,
	response_data, created_at, updated_at, version`

func (r *PostgresRepository) CreateMessage(ctx context.Context, msg *Message) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (
			id, tenant_key, appointment_id, patient_id, phone_number, content, channel_type, status,
			external_message_id, provider_response, error_code, created_at, updated_at, version
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NULLIF($9, ''),$10,$11,$12,$13,$14)
	`, r.messagesTable)
	_, err := r.pool.Exec(ctx, query, msg.ID, msg.TenantKey, msg.AppointmentID, msg.PatientID, msg.PhoneNumber,
		msg.Content, string(msg.ChannelType), string(msg.Status), msg.ExternalMessageID, nullableJSON(msg.ProviderResponse),
		msg.ErrorCode, msg.CreatedAt, msg.UpdatedAt, msg.Version)
	if err != nil {
		return fmt.Errorf("communication: insert message: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetMessage(ctx context.Context, id string) (*Message, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, messageColumns, r.messagesTable)
	return r.queryMessage(ctx, "message", id, query, id)
}

func (r *PostgresRepository) GetMessageByExternalID(ctx context.Context, externalID string) (*Message, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE external_message_id = $1`, messageColumns, r.messagesTable)
	return r.queryMessage(ctx, "message", externalID, query, externalID)
}

func (r *PostgresRepository) LatestMessageForPhone(ctx context.Context, tenantKey, phoneNumber string) (*Message, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE phone_number = $1 AND ($2 = '' OR tenant_key = $2)
		ORDER BY created_at DESC
		LIMIT 1
	`, messageColumns, r.messagesTable)
	return r.queryMessage(ctx, "message", phoneNumber, query, phoneNumber, tenantKey)
}

func (r *PostgresRepository) ListMessagesByAppointment(ctx context.Context, appointmentID string) ([]*Message, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE appointment_id = $1 ORDER BY created_at`, messageColumns, r.messagesTable)
	return r.queryMessages(ctx, query, appointmentID)
}

func (r *PostgresRepository) ListMessagesByPatient(ctx context.Context, patientID string) ([]*Message, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE patient_id = $1 ORDER BY created_at`, messageColumns, r.messagesTable)
	return r.queryMessages(ctx, query, patientID)
}

func (r *PostgresRepository) UpdateMessage(ctx context.Context, msg *Message, expectedVersion int64) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $2,
			external_message_id = COALESCE(external_message_id, NULLIF($3, '')),
			provider_response = COALESCE($4, provider_response),
			error_code = $5,
			response_text = $6,
			responded_at = $7,
			sent_at = $8,
			delivered_at = $9,
			read_at = $10,
			failed_at = $11,
			updated_at = $12,
			version = $13
		WHERE id = $1 AND version = $14
	`, r.messagesTable)
	ct, err := r.pool.Exec(ctx, query, msg.ID, string(msg.Status), msg.ExternalMessageID, nullableJSON(msg.ProviderResponse),
		msg.ErrorCode, msg.ResponseText, msg.RespondedAt, msg.SentAt, msg.DeliveredAt, msg.ReadAt, msg.FailedAt,
		msg.UpdatedAt, msg.Version, expectedVersion)
	if err != nil {
		return fmt.Errorf("communication: update message: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return r.missOrConflict(ctx, r.messagesTable, "message", msg.ID)
	}
	return nil
}

func (r *PostgresRepository) CreateCall(ctx context.Context, call *Call) error {
	responseData, err := marshalResponseData(call.ResponseData)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (
			id, tenant_key, appointment_id, patient_id, phone_number, status, call_type,
			external_call_id, flow_id, resume_key, response_data, created_at, updated_at, version
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8, ''),$9,$10,$11,$12,$13,$14)
	`, r.callsTable)
	_, err = r.pool.Exec(ctx, query, call.ID, call.TenantKey, call.AppointmentID, call.PatientID, call.PhoneNumber,
		string(call.Status), string(call.CallType), call.ExternalCallID, call.FlowID, call.ResumeKey, responseData,
		call.CreatedAt, call.UpdatedAt, call.Version)
	if err != nil {
		return fmt.Errorf("communication: insert call: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetCall(ctx context.Context, id string) (*Call, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, callColumns, r.callsTable)
	return r.queryCall(ctx, id, query, id)
}

func (r *PostgresRepository) GetCallByExternalID(ctx context.Context, externalID string) (*Call, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE external_call_id = $1`, callColumns, r.callsTable)
	return r.queryCall(ctx, externalID, query, externalID)
}

func (r *PostgresRepository) ListCallsByAppointment(ctx context.Context, appointmentID string) ([]*Call, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE appointment_id = $1 ORDER BY created_at`, callColumns, r.callsTable)
	return r.queryCalls(ctx, query, appointmentID)
}

func (r *PostgresRepository) ListStaleCalls(ctx context.Context, updatedBefore time.Time, limit int) ([]*Call, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE status IN ('initiated', 'in_progress')
			AND external_call_id IS NOT NULL
			AND updated_at < $1
		ORDER BY updated_at
		LIMIT $2
	`, callColumns, r.callsTable)
	return r.queryCalls(ctx, query, updatedBefore, limit)
}

func (r *PostgresRepository) UpdateCall(ctx context.Context, call *Call, expectedVersion int64) error {
	responseData, err := marshalResponseData(call.ResponseData)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $2,
			external_call_id = COALESCE(external_call_id, NULLIF($3, '')),
			start_time = $4,
			end_time = $5,
			duration_seconds = $6,
			response_data = $7,
			updated_at = $8,
			version = $9
		WHERE id = $1 AND version = $10
	`, r.callsTable)
	ct, err := r.pool.Exec(ctx, query, call.ID, string(call.Status), call.ExternalCallID, call.StartTime, call.EndTime,
		call.DurationSeconds, responseData, call.UpdatedAt, call.Version, expectedVersion)
	if err != nil {
		return fmt.Errorf("communication: update call: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return r.missOrConflict(ctx, r.callsTable, "call", call.ID)
	}
	return nil
}

// missOrConflict distinguishes a lost compare-and-swap from a missing row.
func (r *PostgresRepository) missOrConflict(ctx context.Context, table, kind, id string) error {
	var exists int
	err := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT 1 FROM %s WHERE id = $1`, table), id).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return &NotFoundError{Kind: kind, Key: id}
	}
	if err != nil {
		return fmt.Errorf("communication: check %s: %w", kind, err)
	}
	return ErrConflict
}

func (r *PostgresRepository) queryMessage(ctx context.Context, kind, key, query string, args ...any) (*Message, error) {
	msg, err := scanMessage(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Kind: kind, Key: key}
	}
	if err != nil {
		return nil, fmt.Errorf("communication: get message: %w", err)
	}
	return msg, nil
}

func (r *PostgresRepository) queryMessages(ctx context.Context, query string, args ...any) ([]*Message, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("communication: list messages: %w", err)
	}
	defer rows.Close()
	var out []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("communication: scan message: %w", err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) queryCall(ctx context.Context, key, query string, args ...any) (*Call, error) {
	call, err := scanCall(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Kind: "call", Key: key}
	}
	if err != nil {
		return nil, fmt.Errorf("communication: get call: %w", err)
	}
	return call, nil
}

func (r *PostgresRepository) queryCalls(ctx context.Context, query string, args ...any) ([]*Call, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("communication: list calls: %w", err)
	}
	defer rows.Close()
	var out []*Call
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("communication: scan call: %w", err)
		}
		out = append(out, call)
	}
	return out, rows.Err()
}

func scanMessage(row pgx.Row) (*Message, error) {
	var (
		msg      Message
		channel  string
		status   string
		response []byte
	)
	if err := row.Scan(&msg.ID, &msg.TenantKey, &msg.AppointmentID, &msg.PatientID, &msg.PhoneNumber, &msg.Content,
		&channel, &status, &msg.ExternalMessageID, &response, &msg.ErrorCode, &msg.ResponseText, &msg.RespondedAt,
		&msg.SentAt, &msg.DeliveredAt, &msg.ReadAt, &msg.FailedAt, &msg.CreatedAt, &msg.UpdatedAt, &msg.Version); err != nil {
		return nil, err
	}
	msg.ChannelType = ChannelType(channel)
	msg.Status = MessageStatus(status)
	if len(response) > 0 {
		msg.ProviderResponse = json.RawMessage(response)
	}
	return &msg, nil
}

func scanCall(row pgx.Row) (*Call, error) {
	var (
		call     Call
		status   string
		callType string
		data     []byte
	)
	if err := row.Scan(&call.ID, &call.TenantKey, &call.AppointmentID, &call.PatientID, &call.PhoneNumber, &status,
		&callType, &call.ExternalCallID, &call.FlowID, &call.ResumeKey, &call.StartTime, &call.EndTime,
		&call.DurationSeconds, &data, &call.CreatedAt, &call.UpdatedAt, &call.Version); err != nil {
		return nil, err
	}
	call.Status = CallStatus(status)
	call.CallType = CallType(callType)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &call.ResponseData); err != nil {
			return nil, fmt.Errorf("decode response data: %w", err)
		}
	}
	return &call, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func marshalResponseData(data map[string]string) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("communication: marshal response data: %w", err)
	}
	return encoded, nil
}
