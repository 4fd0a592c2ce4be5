package communication

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryRepositoryMessageCAS(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	now := time.Now().UTC()
	msg := &Message{ID: "m1", AppointmentID: "a1", PatientID: "p1", PhoneNumber: "+34600111222", Status: MessageStatusPending, Version: 1, CreatedAt: now}
	if err := repo.CreateMessage(ctx, msg); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.CreateMessage(ctx, msg); !errors.Is(err, ErrValidation) {
		t.Fatalf("duplicate id should be rejected, got %v", err)
	}

	msg.Status = MessageStatusSent
	msg.ExternalMessageID = "ext_1"
	msg.Version = 2
	if err := repo.UpdateMessage(ctx, msg, 1); err != nil {
		t.Fatalf("update: %v", err)
	}
	msg.Status = MessageStatusDelivered
	msg.Version = 2
	if err := repo.UpdateMessage(ctx, msg, 1); !errors.Is(err, ErrConflict) {
		t.Fatalf("stale expected version should conflict, got %v", err)
	}
	if err := repo.UpdateMessage(ctx, &Message{ID: "missing"}, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	got, err := repo.GetMessageByExternalID(ctx, "ext_1")
	if err != nil {
		t.Fatalf("get by external id: %v", err)
	}
	if got.Status != MessageStatusSent {
		t.Fatalf("expected sent, got %s", got.Status)
	}
	got.Status = MessageStatusRead
	again, _ := repo.GetMessage(ctx, "m1")
	if again.Status != MessageStatusSent {
		t.Fatalf("returned values must be copies")
	}
}

func TestMemoryRepositoryListsAndLatest(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	for i, id := range []string{"m3", "m1", "m2"} {
		_ = repo.CreateMessage(ctx, &Message{
			ID:            id,
			AppointmentID: "apt",
			PatientID:     "pat",
			PhoneNumber:   "+34600111222",
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		})
	}
	_ = repo.CreateMessage(ctx, &Message{ID: "other", AppointmentID: "apt2", PatientID: "pat", PhoneNumber: "+34600999999", CreatedAt: base})

	list, _ := repo.ListMessagesByAppointment(ctx, "apt")
	if len(list) != 3 || list[0].ID != "m3" || list[2].ID != "m2" {
		t.Fatalf("unexpected order: %v", ids(list))
	}
	byPatient, _ := repo.ListMessagesByPatient(ctx, "pat")
	if len(byPatient) != 4 {
		t.Fatalf("expected 4 messages for patient, got %d", len(byPatient))
	}
	latest, err := repo.LatestMessageForPhone(ctx, "", "+34600111222")
	if err != nil || latest.ID != "m2" {
		t.Fatalf("latest: %v %v", latest, err)
	}
	if _, err := repo.LatestMessageForPhone(ctx, "", "+10000000000"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	_ = repo.CreateMessage(ctx, &Message{ID: "m9", TenantKey: "center_two", PhoneNumber: "+34600111222", CreatedAt: base.Add(time.Hour)})
	scoped, err := repo.LatestMessageForPhone(ctx, "", "+34600111222")
	if err != nil || scoped.ID != "m9" {
		t.Fatalf("unscoped latest: %v %v", scoped, err)
	}
	if _, err := repo.LatestMessageForPhone(ctx, "center_one", "+34600111222"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("other tenant's message must not match, got %v", err)
	}
}

func TestMemoryRepositoryStaleCalls(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	old := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	calls := []*Call{
		{ID: "c1", ExternalCallID: "x1", Status: CallStatusInitiated, UpdatedAt: old, CreatedAt: old},
		{ID: "c2", ExternalCallID: "x2", Status: CallStatusInProgress, UpdatedAt: old, CreatedAt: old.Add(time.Second)},
		{ID: "c3", ExternalCallID: "x3", Status: CallStatusCompleted, UpdatedAt: old, CreatedAt: old},
		{ID: "c4", Status: CallStatusPending, UpdatedAt: old, CreatedAt: old},
		{ID: "c5", ExternalCallID: "x5", Status: CallStatusInitiated, UpdatedAt: old.Add(time.Hour), CreatedAt: old},
	}
	for _, c := range calls {
		if err := repo.CreateCall(ctx, c); err != nil {
			t.Fatalf("create call: %v", err)
		}
	}
	stale, _ := repo.ListStaleCalls(ctx, old.Add(time.Minute), 10)
	if len(stale) != 2 || stale[0].ID != "c1" || stale[1].ID != "c2" {
		t.Fatalf("unexpected stale calls: %+v", stale)
	}
	limited, _ := repo.ListStaleCalls(ctx, old.Add(time.Minute), 1)
	if len(limited) != 1 {
		t.Fatalf("limit not applied")
	}

	c1 := calls[0].clone()
	c1.Status = CallStatusInProgress
	c1.Version = 1
	if err := repo.UpdateCall(ctx, c1, 3); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := repo.UpdateCall(ctx, c1, 0); err != nil {
		t.Fatalf("update call: %v", err)
	}
	byExt, err := repo.GetCallByExternalID(ctx, "x1")
	if err != nil || byExt.Status != CallStatusInProgress {
		t.Fatalf("get by external: %+v %v", byExt, err)
	}
	if _, err := repo.GetCall(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found")
	}
}

func ids(msgs []*Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}
