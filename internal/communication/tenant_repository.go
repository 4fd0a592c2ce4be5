package communication

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wolfman30/appointment-notify/internal/tenancy"
)

// Store serves both messages and calls from one data source.
type Store interface {
	MessageRepository
	CallRepository
}

// StoreFactory opens the store for a center's data source. A zero config
// describes the default tables.
type StoreFactory func(cfg tenancy.SubaccountConfig) Store

// TenantRepository routes each operation to the store of the center that owns
// the record. Writes follow the record's TenantKey, reads follow the tenant key
// in ctx, and records without a tenant use the default store. Stores are cached
// per data source, so centers sharing tables share a store.
type TenantRepository struct {
	tenants  TenantResolver
	build    StoreFactory
	fallback Store

	mu     sync.RWMutex
	stores map[string]Store
}

var (
	_ MessageRepository = (*TenantRepository)(nil)
	_ CallRepository    = (*TenantRepository)(nil)
)

func NewTenantRepository(tenants TenantResolver, build StoreFactory) *TenantRepository {
	if tenants == nil || build == nil {
		panic("communication: tenant resolver and store factory required")
	}
	fallback := build(tenancy.SubaccountConfig{})
	return &TenantRepository{
		tenants:  tenants,
		build:    build,
		fallback: fallback,
		stores:   map[string]Store{storeKey(tenancy.SubaccountConfig{}): fallback},
	}
}

func storeKey(cfg tenancy.SubaccountConfig) string {
	return cfg.DataSource.ConnectionName + "|" + cfg.TableFor(tenancy.TableMessages) + "|" + cfg.TableFor(tenancy.TableCalls)
}

// storeFor resolves tenantKey and returns the cached store for its data source.
func (r *TenantRepository) storeFor(ctx context.Context, tenantKey string) (Store, error) {
	if tenantKey == "" {
		return r.fallback, nil
	}
	cfg, err := r.tenants.Resolve(ctx, tenantKey)
	if err != nil {
		if errors.Is(err, tenancy.ErrTenantNotFound) {
			return nil, &NotFoundError{Kind: "tenant", Key: tenantKey, Err: err}
		}
		return nil, fmt.Errorf("communication: resolve tenant store: %w", err)
	}
	key := storeKey(cfg)
	r.mu.RLock()
	store, ok := r.stores[key]
	r.mu.RUnlock()
	if ok {
		return store, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if store, ok := r.stores[key]; ok {
		return store, nil
	}
	store = r.build(cfg)
	r.stores[key] = store
	return store, nil
}

func (r *TenantRepository) scoped(ctx context.Context) (Store, error) {
	return r.storeFor(ctx, scopeTenant(ctx))
}

func (r *TenantRepository) CreateMessage(ctx context.Context, msg *Message) error {
	store, err := r.storeFor(ctx, msg.TenantKey)
	if err != nil {
		return err
	}
	return store.CreateMessage(ctx, msg)
}

func (r *TenantRepository) GetMessage(ctx context.Context, id string) (*Message, error) {
	store, err := r.scoped(ctx)
	if err != nil {
		return nil, err
	}
	return store.GetMessage(ctx, id)
}

func (r *TenantRepository) GetMessageByExternalID(ctx context.Context, externalID string) (*Message, error) {
	store, err := r.scoped(ctx)
	if err != nil {
		return nil, err
	}
	return store.GetMessageByExternalID(ctx, externalID)
}

func (r *TenantRepository) ListMessagesByAppointment(ctx context.Context, appointmentID string) ([]*Message, error) {
	store, err := r.scoped(ctx)
	if err != nil {
		return nil, err
	}
	return store.ListMessagesByAppointment(ctx, appointmentID)
}

func (r *TenantRepository) ListMessagesByPatient(ctx context.Context, patientID string) ([]*Message, error) {
	store, err := r.scoped(ctx)
	if err != nil {
		return nil, err
	}
	return store.ListMessagesByPatient(ctx, patientID)
}

func (r *TenantRepository) LatestMessageForPhone(ctx context.Context, tenantKey, phoneNumber string) (*Message, error) {
	store, err := r.storeFor(ctx, tenantKey)
	if err != nil {
		return nil, err
	}
	return store.LatestMessageForPhone(ctx, tenantKey, phoneNumber)
}

func (r *TenantRepository) UpdateMessage(ctx context.Context, msg *Message, expectedVersion int64) error {
	store, err := r.storeFor(ctx, msg.TenantKey)
	if err != nil {
		return err
	}
	return store.UpdateMessage(ctx, msg, expectedVersion)
}

func (r *TenantRepository) CreateCall(ctx context.Context, call *Call) error {
	store, err := r.storeFor(ctx, call.TenantKey)
	if err != nil {
		return err
	}
	return store.CreateCall(ctx, call)
}

func (r *TenantRepository) GetCall(ctx context.Context, id string) (*Call, error) {
	store, err := r.scoped(ctx)
	if err != nil {
		return nil, err
	}
	return store.GetCall(ctx, id)
}

func (r *TenantRepository) GetCallByExternalID(ctx context.Context, externalID string) (*Call, error) {
	store, err := r.scoped(ctx)
	if err != nil {
		return nil, err
	}
	return store.GetCallByExternalID(ctx, externalID)
}

func (r *TenantRepository) ListCallsByAppointment(ctx context.Context, appointmentID string) ([]*Call, error) {
	store, err := r.scoped(ctx)
	if err != nil {
		return nil, err
	}
	return store.ListCallsByAppointment(ctx, appointmentID)
}

// ListStaleCalls scans every known store and returns the oldest matches first.
// Centers the resolver can enumerate are opened up front; others are scanned
// once they have been used.
func (r *TenantRepository) ListStaleCalls(ctx context.Context, updatedBefore time.Time, limit int) ([]*Call, error) {
	if lister, ok := r.tenants.(interface{ Keys() []string }); ok {
		for _, key := range lister.Keys() {
			if _, err := r.storeFor(ctx, key); err != nil {
				return nil, err
			}
		}
	}
	r.mu.RLock()
	stores := make([]Store, 0, len(r.stores))
	for _, store := range r.stores {
		stores = append(stores, store)
	}
	r.mu.RUnlock()

	var out []*Call
	for _, store := range stores {
		calls, err := store.ListStaleCalls(ctx, updatedBefore, limit)
		if err != nil {
			return nil, err
		}
		out = append(out, calls...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *TenantRepository) UpdateCall(ctx context.Context, call *Call, expectedVersion int64) error {
	store, err := r.storeFor(ctx, call.TenantKey)
	if err != nil {
		return err
	}
	return store.UpdateCall(ctx, call, expectedVersion)
}
