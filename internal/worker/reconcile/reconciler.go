package reconcileworker

import (
	"context"
	"errors"
	"time"

	"github.com/wolfman30/appointment-notify/internal/communication"
	"github.com/wolfman30/appointment-notify/internal/tenancy"
	"github.com/wolfman30/appointment-notify/pkg/logging"
)

type callService interface {
	StaleCalls(ctx context.Context, olderThan time.Duration, limit int) ([]*communication.Call, error)
	ApplyCallStatus(ctx context.Context, externalID string, next communication.CallStatus, data communication.StatusData) (*communication.Call, error)
}

// Reconciler polls the voice provider for calls whose webhooks never arrived
// and applies the provider's view through the communication service.
type Reconciler struct {
	calls      callService
	gateway    communication.CallGateway
	logger     *logging.Logger
	interval   time.Duration
	staleAfter time.Duration
	batchSize  int
}

func NewReconciler(calls callService, gateway communication.CallGateway, logger *logging.Logger) *Reconciler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Reconciler{
		calls:      calls,
		gateway:    gateway,
		logger:     logger,
		interval:   time.Minute,
		staleAfter: 10 * time.Minute,
		batchSize:  50,
	}
}

func (r *Reconciler) WithInterval(d time.Duration) *Reconciler {
	if d > 0 {
		r.interval = d
	}
	return r
}

func (r *Reconciler) WithStaleAfter(d time.Duration) *Reconciler {
	if d > 0 {
		r.staleAfter = d
	}
	return r
}

func (r *Reconciler) WithBatchSize(n int) *Reconciler {
	if n > 0 {
		r.batchSize = n
	}
	return r
}

func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	r.Drain(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Drain(ctx)
		}
	}
}

// Drain reconciles one batch of stale calls and returns how many changed.
func (r *Reconciler) Drain(ctx context.Context) int {
	if r.calls == nil || r.gateway == nil {
		return 0
	}
	stale, err := r.calls.StaleCalls(ctx, r.staleAfter, r.batchSize)
	if err != nil {
		r.logger.Error("stale call fetch failed", "error", err)
		return 0
	}
	changed := 0
	for _, call := range stale {
		if ctx.Err() != nil {
			return changed
		}
		status, err := r.gateway.GetCallStatus(ctx, call.ExternalCallID)
		if err != nil {
			r.logger.Warn("call status lookup failed", "call_id", call.ID, "external_call_id", call.ExternalCallID, "error", err)
			continue
		}
		if status == call.Status {
			continue
		}
		callCtx := ctx
		if call.TenantKey != "" {
			callCtx = tenancy.WithTenantKey(ctx, call.TenantKey)
		}
		updated, err := r.calls.ApplyCallStatus(callCtx, call.ExternalCallID, status, communication.StatusData{})
		if err != nil {
			if errors.Is(err, communication.ErrValidation) {
				r.logger.Debug("reconciled status not applicable", "call_id", call.ID, "status", status, "error", err)
			} else {
				r.logger.Error("apply reconciled status failed", "call_id", call.ID, "status", status, "error", err)
			}
			continue
		}
		if updated.Status != call.Status {
			changed++
			r.logger.Info("call reconciled", "call_id", call.ID, "from", call.Status, "status", updated.Status)
		}
	}
	return changed
}
