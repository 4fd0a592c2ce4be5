package communication

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/wolfman30/appointment-notify/internal/tenancy"
)

var messageRowColumns = []string{
	"id", "tenant_key", "appointment_id", "patient_id", "phone_number", "content", "channel_type", "status",
	"external_message_id", "provider_response", "error_code", "response_text", "responded_at",
	"sent_at", "delivered_at", "read_at", "failed_at", "created_at", "updated_at", "version",
}

var callRowColumns = []string{
	"id", "tenant_key", "appointment_id", "patient_id", "phone_number", "status", "call_type",
	"external_call_id", "flow_id", "resume_key", "start_time", "end_time", "duration_seconds",
	"response_data", "created_at", "updated_at", "version",
}

func newMockRepo(t *testing.T, cfg tenancy.SubaccountConfig) (*PostgresRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	return NewPostgresRepository(mock, cfg), mock
}

func TestPostgresRepositoryCreateMessage(t *testing.T) {
	repo, mock := newMockRepo(t, tenancy.SubaccountConfig{})
	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "messages"`)).
		WithArgs("m1", "center-1", "apt_1", "pat_1", "+34600111222", "hola", "whatsapp", "pending", "",
			pgxmock.AnyArg(), "", now, now, int64(1)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.CreateMessage(context.Background(), &Message{
		ID: "m1", TenantKey: "center-1", AppointmentID: "apt_1", PatientID: "pat_1", PhoneNumber: "+34600111222",
		Content: "hola", ChannelType: ChannelWhatsApp, Status: MessageStatusPending, Version: 1, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("create message: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRepositoryUsesTenantTables(t *testing.T) {
	repo, mock := newMockRepo(t, tenancy.SubaccountConfig{
		Key:        "center-2",
		DataSource: tenancy.DataSource{Schema: "center_two"},
		Tables:     map[string]string{tenancy.TableCalls: "voice_calls"},
	})
	now := time.Now().UTC()
	sentAt := now.Add(-time.Minute)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM "center_two"."messages" WHERE external_message_id = $1`)).
		WithArgs("ext_42").
		WillReturnRows(pgxmock.NewRows(messageRowColumns).AddRow(
			"m1", "center-2", "apt_1", "pat_1", "+34600111222", "hola", "sms", "sent",
			"ext_42", []byte(`{"id":"ext_42"}`), "", "", (*time.Time)(nil),
			&sentAt, (*time.Time)(nil), (*time.Time)(nil), (*time.Time)(nil), now, now, int64(2),
		))

	msg, err := repo.GetMessageByExternalID(context.Background(), "ext_42")
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if msg.Status != MessageStatusSent || msg.ChannelType != ChannelSMS || msg.Version != 2 {
		t.Fatalf("unexpected message %+v", msg)
	}
	if msg.SentAt == nil || !msg.SentAt.Equal(sentAt) || msg.DeliveredAt != nil {
		t.Fatalf("timestamps not scanned: %+v", msg)
	}
	if string(msg.ProviderResponse) != `{"id":"ext_42"}` {
		t.Fatalf("provider response: %s", msg.ProviderResponse)
	}

	mock.ExpectQuery(regexp.QuoteMeta(`FROM "center_two"."voice_calls" WHERE id = $1`)).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)
	if _, err := repo.GetCall(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRepositoryUpdateMessageCAS(t *testing.T) {
	repo, mock := newMockRepo(t, tenancy.SubaccountConfig{})
	now := time.Now().UTC()
	msg := &Message{ID: "m1", Status: MessageStatusDelivered, ExternalMessageID: "ext_42", DeliveredAt: &now, UpdatedAt: now, Version: 3}

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "messages"`)).
		WithArgs("m1", "delivered", "ext_42", pgxmock.AnyArg(), "", "", pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), now, int64(3), int64(2)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	if err := repo.UpdateMessage(context.Background(), msg, 2); err != nil {
		t.Fatalf("update: %v", err)
	}

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "messages"`)).
		WithArgs("m1", "delivered", "ext_42", pgxmock.AnyArg(), "", "", pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), now, int64(3), int64(2)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 FROM "messages" WHERE id = $1`)).
		WithArgs("m1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(1))
	if err := repo.UpdateMessage(context.Background(), msg, 2); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "messages"`)).
		WithArgs("m1", "delivered", "ext_42", pgxmock.AnyArg(), "", "", pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), now, int64(3), int64(2)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 FROM "messages" WHERE id = $1`)).
		WithArgs("m1").
		WillReturnError(pgx.ErrNoRows)
	if err := repo.UpdateMessage(context.Background(), msg, 2); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRepositoryCallRoundTrip(t *testing.T) {
	repo, mock := newMockRepo(t, tenancy.SubaccountConfig{})
	now := time.Now().UTC()
	start := now.Add(-time.Minute)
	duration := int64(60)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "calls"`)).
		WithArgs("c1", "", "apt_1", "pat_1", "+34600111222", "pending", "confirmation", "", "voice_confirmation",
			"resume-1", pgxmock.AnyArg(), now, now, int64(1)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	if err := repo.CreateCall(context.Background(), &Call{
		ID: "c1", AppointmentID: "apt_1", PatientID: "pat_1", PhoneNumber: "+34600111222", Status: CallStatusPending,
		CallType: CallTypeConfirmation, FlowID: "voice_confirmation", ResumeKey: "resume-1", Version: 1, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("create call: %v", err)
	}

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "calls"`)).
		WithArgs("c1", "confirmed", "call_1", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			[]byte(`{"dtmf_key":"1"}`), now, int64(4), int64(3)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	if err := repo.UpdateCall(context.Background(), &Call{
		ID: "c1", Status: CallStatusConfirmed, ExternalCallID: "call_1", StartTime: &start, EndTime: &now,
		DurationSeconds: &duration, ResponseData: map[string]string{"dtmf_key": "1"}, UpdatedAt: now, Version: 4,
	}, 3); err != nil {
		t.Fatalf("update call: %v", err)
	}

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE status IN ('initiated', 'in_progress')`)).
		WithArgs(pgxmock.AnyArg(), 25).
		WillReturnRows(pgxmock.NewRows(callRowColumns).AddRow(
			"c2", "", "apt_2", "pat_2", "+34600111333", "initiated", "reminder",
			"call_2", "", "", (*time.Time)(nil), (*time.Time)(nil), (*int64)(nil),
			[]byte(nil), start, start, int64(2),
		).AddRow(
			"c3", "", "apt_3", "pat_3", "+34600111444", "in_progress", "reminder",
			"call_3", "", "", &start, (*time.Time)(nil), (*int64)(nil),
			[]byte(`{"dtmf_key":"2"}`), start, start, int64(3),
		))
	stale, err := repo.ListStaleCalls(context.Background(), now, 25)
	if err != nil {
		t.Fatalf("list stale: %v", err)
	}
	if len(stale) != 2 || stale[1].StartTime == nil || stale[1].ResponseData["dtmf_key"] != "2" {
		t.Fatalf("unexpected stale calls: %+v", stale)
	}
	if stale[0].ResponseData != nil {
		t.Fatalf("empty response data should stay nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRepositoryLatestMessageForPhoneFiltersTenant(t *testing.T) {
	repo, mock := newMockRepo(t, tenancy.SubaccountConfig{})
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE phone_number = $1 AND ($2 = '' OR tenant_key = $2)`)).
		WithArgs("+34600111222", "center-2").
		WillReturnError(pgx.ErrNoRows)
	if _, err := repo.LatestMessageForPhone(context.Background(), "center-2", "+34600111222"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
