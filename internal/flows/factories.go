package flows

import (
	"github.com/wolfman30/appointment-notify/internal/communication"
	"github.com/wolfman30/appointment-notify/pkg/logging"
)

// Deps carries what the built-in handlers need at construction time.
type Deps struct {
	Replier Replier
	Logger  *logging.Logger
}

// Factory builds the handler for one (flowId, channel) entry.
type Factory func(flowID string, channel communication.ChannelType, deps Deps) Handler

// FactoryEntry is one row of the startup registration table.
type FactoryEntry struct {
	FlowID  string
	Channel communication.ChannelType
	New     Factory
}

// DefaultFactories is the static registration table for the built-in flows.
var DefaultFactories = []FactoryEntry{
	{FlowID: FlowConfirm, Channel: communication.ChannelWhatsApp, New: newConfirmHandler},
	{FlowID: FlowCancel, Channel: communication.ChannelWhatsApp, New: newCancelHandler},
	{FlowID: FlowReschedule, Channel: communication.ChannelWhatsApp, New: newRescheduleHandler},
	{FlowID: FlowHelp, Channel: communication.ChannelWhatsApp, New: newHelpHandler},
	{FlowID: FlowDefaultConversation, Channel: communication.ChannelWhatsApp, New: newDefaultHandler},
	{FlowID: FlowConfirm, Channel: communication.ChannelSMS, New: newConfirmHandler},
	{FlowID: FlowCancel, Channel: communication.ChannelSMS, New: newCancelHandler},
	{FlowID: FlowReschedule, Channel: communication.ChannelSMS, New: newRescheduleHandler},
	{FlowID: FlowHelp, Channel: communication.ChannelSMS, New: newHelpHandler},
	{FlowID: FlowDefaultConversation, Channel: communication.ChannelSMS, New: newDefaultHandler},
}

// RegisterAll constructs every entry and registers it. It returns the number of
// handlers registered.
func RegisterAll(reg *Registry, entries []FactoryEntry, deps Deps) int {
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	n := 0
	for _, entry := range entries {
		if entry.New == nil {
			continue
		}
		h := entry.New(entry.FlowID, entry.Channel, deps)
		if h == nil {
			continue
		}
		reg.Register(h)
		n++
	}
	deps.Logger.Debug("flow handlers registered", "count", n)
	return n
}
