package templates

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// Built-in template names shared with the WhatsApp template registry.
const (
	AppointmentReminder     = "appointment_reminder"
	AppointmentConfirmation = "appointment_confirmation"
	AppointmentCancellation = "appointment_cancellation"
)

// ErrUnknownTemplate is returned when a name has no registered text.
var ErrUnknownTemplate = errors.New("templates: unknown template")

// Catalog holds the plain-text renditions of provider templates for channels
// that have no template concept (SMS).
type Catalog struct {
	mu    sync.RWMutex
	texts map[string]*smsText
}

func NewCatalog() *Catalog {
	return &Catalog{texts: make(map[string]*smsText)}
}

// DefaultCatalog returns a catalog preloaded with the appointment templates.
func DefaultCatalog() *Catalog {
	c := NewCatalog()
	c.MustRegister(AppointmentReminder, "Recordatorio: tiene una cita el {{.date}} a las {{.time}}. Responda CONFIRMAR, CANCELAR o REPROGRAMAR.")
	c.MustRegister(AppointmentConfirmation, "Su cita del {{.date}} a las {{.time}} ha quedado confirmada.")
	c.MustRegister(AppointmentCancellation, "Su cita del {{.date}} ha sido cancelada. Responda REPROGRAMAR para buscar otra fecha.")
	return c
}

// Register parses text and adds or replaces it under name. A text that does
// not parse leaves any earlier registration in place.
func (c *Catalog) Register(name, text string) error {
	parsed, err := parseSMSText(name, text)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.texts[name] = parsed
	c.mu.Unlock()
	return nil
}

// MustRegister is Register for built-in texts.
func (c *Catalog) MustRegister(name, text string) {
	if err := c.Register(name, text); err != nil {
		panic(err)
	}
}

// Params reports the placeholders the named template requires.
func (c *Catalog) Params(name string) ([]string, error) {
	c.mu.RLock()
	text, ok := c.texts[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownTemplate, name)
	}
	return append([]string(nil), text.params...), nil
}

// Render fills the named template with params. Missing or blank params are
// reported together as a *MissingParamsError.
func (c *Catalog) Render(name string, params map[string]string) (string, error) {
	c.mu.RLock()
	text, ok := c.texts[name]
	c.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownTemplate, name)
	}
	return text.render(params)
}

// OrderedParams flattens params into positional values. Numeric keys sort
// numerically ("1","2","10"); anything else sorts after them alphabetically.
func OrderedParams(params map[string]string) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, aErr := strconv.Atoi(keys[i])
		b, bErr := strconv.Atoi(keys[j])
		switch {
		case aErr == nil && bErr == nil:
			return a < b
		case aErr == nil:
			return true
		case bErr == nil:
			return false
		}
		return keys[i] < keys[j]
	})
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, params[k])
	}
	return out
}
