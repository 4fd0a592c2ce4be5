package messaging

import (
	"context"
	"errors"

	"github.com/wolfman30/appointment-notify/internal/communication"
	"github.com/wolfman30/appointment-notify/pkg/logging"
)

// FailoverGateway attempts a primary send, then falls back to a secondary
// provider when the primary fails.
type FailoverGateway struct {
	primary       communication.MessageGateway
	secondary     communication.MessageGateway
	primaryName   string
	secondaryName string
	logger        *logging.Logger
}

// NewFailoverGateway builds a failover gateway with named providers.
func NewFailoverGateway(primary communication.MessageGateway, primaryName string, secondary communication.MessageGateway, secondaryName string, logger *logging.Logger) *FailoverGateway {
	if logger == nil {
		logger = logging.Default()
	}
	return &FailoverGateway{
		primary:       primary,
		secondary:     secondary,
		primaryName:   primaryName,
		secondaryName: secondaryName,
		logger:        logger,
	}
}

var _ communication.MessageGateway = (*FailoverGateway)(nil)

func (f *FailoverGateway) SendText(ctx context.Context, msg communication.OutboundText) (communication.Receipt, error) {
	return f.do(ctx, msg.To, func(gw communication.MessageGateway) (communication.Receipt, error) {
		return gw.SendText(ctx, msg)
	})
}

func (f *FailoverGateway) SendTemplate(ctx context.Context, msg communication.OutboundTemplate) (communication.Receipt, error) {
	return f.do(ctx, msg.To, func(gw communication.MessageGateway) (communication.Receipt, error) {
		return gw.SendTemplate(ctx, msg)
	})
}

func (f *FailoverGateway) do(ctx context.Context, to string, send func(communication.MessageGateway) (communication.Receipt, error)) (communication.Receipt, error) {
	if f == nil || f.primary == nil {
		return communication.Receipt{}, errors.New("messaging: failover primary gateway not configured")
	}
	receipt, err := send(f.primary)
	if err == nil {
		return receipt, nil
	}
	if f.secondary == nil || ctx.Err() != nil {
		return communication.Receipt{}, err
	}
	f.logger.Warn("primary send failed; attempting fallback",
		"provider", f.primaryName,
		"fallback", f.secondaryName,
		"error", err,
		"to", to,
	)
	receipt, fallbackErr := send(f.secondary)
	if fallbackErr != nil {
		f.logger.Error("fallback send failed",
			"provider", f.secondaryName,
			"error", fallbackErr,
			"to", to,
		)
		return communication.Receipt{}, fallbackErr
	}
	return receipt, nil
}
