package flows

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/wolfman30/appointment-notify/internal/communication"
)

// Handler executes one flow on one channel.
type Handler interface {
	FlowID() string
	ChannelType() communication.ChannelType
	Process(ctx context.Context, phoneNumber string, parameters map[string]string) (Result, error)
}

// Result is what a handler reports back to the caller that triggered it.
type Result struct {
	FlowID    string                    `json:"flow_id"`
	Channel   communication.ChannelType `json:"channel"`
	Intent    string                    `json:"intent,omitempty"`
	Reply     string                    `json:"reply,omitempty"`
	MessageID string                    `json:"message_id,omitempty"`
	Data      map[string]string         `json:"data,omitempty"`
}

// Step is one descriptor in a flow's ordered script.
type Step struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// FlowDefinition describes a flow for operators. It is never interpreted here.
type FlowDefinition struct {
	ID      string                    `json:"id"`
	Name    string                    `json:"name"`
	Channel communication.ChannelType `json:"channel_type"`
	Steps   []Step                    `json:"steps,omitempty"`
	Active  bool                      `json:"active"`
}

// Describer is implemented by handlers that can publish their definition.
type Describer interface {
	Definition() FlowDefinition
}

// FlowNotFoundError is returned when no handler is registered for a key.
type FlowNotFoundError struct {
	FlowID  string
	Channel communication.ChannelType
}

func (e *FlowNotFoundError) Error() string {
	return fmt.Sprintf("flows: no handler for flow %q on channel %q", e.FlowID, e.Channel)
}

// Is lets callers treat a missing flow like any other missing entity.
func (e *FlowNotFoundError) Is(target error) bool { return target == communication.ErrNotFound }

type key struct {
	flowID  string
	channel communication.ChannelType
}

// Registry maps (flowId, channel) to a handler. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[key]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[key]Handler)}
}

// Register indexes h by its flow id and channel, replacing any previous handler.
func (r *Registry) Register(h Handler) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.handlers[key{h.FlowID(), h.ChannelType()}] = h
	r.mu.Unlock()
}

// Unregister removes the handler for the key if present.
func (r *Registry) Unregister(flowID string, channel communication.ChannelType) {
	r.mu.Lock()
	delete(r.handlers, key{flowID, channel})
	r.mu.Unlock()
}

func (r *Registry) Lookup(flowID string, channel communication.ChannelType) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[key{flowID, channel}]
	return h, ok
}

// All returns every handler ordered by channel then flow id.
func (r *Registry) All() []Handler {
	return r.collect(func(key) bool { return true })
}

func (r *Registry) ForChannel(channel communication.ChannelType) []Handler {
	return r.collect(func(k key) bool { return k.channel == channel })
}

// Definitions lists the definitions of handlers that describe themselves.
func (r *Registry) Definitions() []FlowDefinition {
	var out []FlowDefinition
	for _, h := range r.All() {
		if d, ok := h.(Describer); ok {
			out = append(out, d.Definition())
		}
	}
	return out
}

func (r *Registry) collect(match func(key) bool) []Handler {
	r.mu.RLock()
	keys := make([]key, 0, len(r.handlers))
	for k := range r.handlers {
		if match(k) {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].channel == keys[j].channel {
			return keys[i].flowID < keys[j].flowID
		}
		return keys[i].channel < keys[j].channel
	})
	out := make([]Handler, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.handlers[k])
	}
	r.mu.RUnlock()
	return out
}
