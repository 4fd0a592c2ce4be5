package communication

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepository keeps messages and calls in process memory. It backs local
// development (USE_MEMORY_STORE) and tests.
type MemoryRepository struct {
	mu       sync.RWMutex
	messages map[string]*Message
	calls    map[string]*Call
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		messages: make(map[string]*Message),
		calls:    make(map[string]*Call),
	}
}

var (
	_ MessageRepository = (*MemoryRepository)(nil)
	_ CallRepository    = (*MemoryRepository)(nil)
)

func (r *MemoryRepository) CreateMessage(_ context.Context, msg *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.messages[msg.ID]; exists {
		return &ValidationError{Field: "id", Reason: "duplicate message id " + msg.ID}
	}
	r.messages[msg.ID] = msg.clone()
	return nil
}

func (r *MemoryRepository) GetMessage(_ context.Context, id string) (*Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	msg, ok := r.messages[id]
	if !ok {
		return nil, &NotFoundError{Kind: "message", Key: id}
	}
	return msg.clone(), nil
}

func (r *MemoryRepository) GetMessageByExternalID(_ context.Context, externalID string) (*Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, msg := range r.messages {
		if msg.ExternalMessageID == externalID {
			return msg.clone(), nil
		}
	}
	return nil, &NotFoundError{Kind: "message", Key: externalID}
}

func (r *MemoryRepository) ListMessagesByAppointment(_ context.Context, appointmentID string) ([]*Message, error) {
	return r.filterMessages(func(m *Message) bool { return m.AppointmentID == appointmentID }), nil
}

func (r *MemoryRepository) ListMessagesByPatient(_ context.Context, patientID string) ([]*Message, error) {
	return r.filterMessages(func(m *Message) bool { return m.PatientID == patientID }), nil
}

func (r *MemoryRepository) LatestMessageForPhone(_ context.Context, tenantKey, phoneNumber string) (*Message, error) {
	matches := r.filterMessages(func(m *Message) bool {
		return m.PhoneNumber == phoneNumber && (tenantKey == "" || m.TenantKey == tenantKey)
	})
	if len(matches) == 0 {
		return nil, &NotFoundError{Kind: "message", Key: phoneNumber}
	}
	return matches[len(matches)-1], nil
}

func (r *MemoryRepository) UpdateMessage(_ context.Context, msg *Message, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.messages[msg.ID]
	if !ok {
		return &NotFoundError{Kind: "message", Key: msg.ID}
	}
	if current.Version != expectedVersion {
		return ErrConflict
	}
	r.messages[msg.ID] = msg.clone()
	return nil
}

func (r *MemoryRepository) CreateCall(_ context.Context, call *Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.calls[call.ID]; exists {
		return &ValidationError{Field: "id", Reason: "duplicate call id " + call.ID}
	}
	r.calls[call.ID] = call.clone()
	return nil
}

func (r *MemoryRepository) GetCall(_ context.Context, id string) (*Call, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	call, ok := r.calls[id]
	if !ok {
		return nil, &NotFoundError{Kind: "call", Key: id}
	}
	return call.clone(), nil
}

func (r *MemoryRepository) GetCallByExternalID(_ context.Context, externalID string) (*Call, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, call := range r.calls {
		if call.ExternalCallID == externalID {
			return call.clone(), nil
		}
	}
	return nil, &NotFoundError{Kind: "call", Key: externalID}
}

func (r *MemoryRepository) ListCallsByAppointment(_ context.Context, appointmentID string) ([]*Call, error) {
	return r.filterCalls(func(c *Call) bool { return c.AppointmentID == appointmentID }, 0), nil
}

func (r *MemoryRepository) ListStaleCalls(_ context.Context, updatedBefore time.Time, limit int) ([]*Call, error) {
	return r.filterCalls(func(c *Call) bool {
		if c.ExternalCallID == "" || !c.UpdatedAt.Before(updatedBefore) {
			return false
		}
		return c.Status == CallStatusInitiated || c.Status == CallStatusInProgress
	}, limit), nil
}

func (r *MemoryRepository) UpdateCall(_ context.Context, call *Call, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.calls[call.ID]
	if !ok {
		return &NotFoundError{Kind: "call", Key: call.ID}
	}
	if current.Version != expectedVersion {
		return ErrConflict
	}
	r.calls[call.ID] = call.clone()
	return nil
}

// filterMessages returns matching messages ordered by creation time.
func (r *MemoryRepository) filterMessages(match func(*Message) bool) []*Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Message
	for _, msg := range r.messages {
		if match(msg) {
			out = append(out, msg.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *MemoryRepository) filterCalls(match func(*Call) bool, limit int) []*Call {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Call
	for _, call := range r.calls {
		if match(call) {
			out = append(out, call.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
