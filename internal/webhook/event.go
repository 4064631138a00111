// Package webhook routes inbound provider webhooks and bus events to the
// reconciliation flows.
package webhook

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/atlet99/requisition-sync/internal/errors"
)

// InvalidPayloadMessage is returned for any webhook body that fails decoding
const InvalidPayloadMessage = "Invalid webhook payload"

// Event is the provider webhook body
type Event struct {
	Type     string         `json:"type"`
	EntityID string         `json:"entityId"`
	Action   string         `json:"action"`
	Data     map[string]any `json:"data"`
}

// DecodeEvent decodes body strictly: unknown fields, an empty type, entityId
// or action, and a missing data object are all rejected.
func DecodeEvent(body []byte) (*Event, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()

	var event Event
	if err := dec.Decode(&event); err != nil {
		return nil, errors.NewValidationError(InvalidPayloadMessage, err.Error())
	}

	var missing []string
	if event.Type == "" {
		missing = append(missing, "type")
	}
	if event.EntityID == "" {
		missing = append(missing, "entityId")
	}
	if event.Action == "" {
		missing = append(missing, "action")
	}
	if event.Data == nil {
		missing = append(missing, "data")
	}
	if len(missing) > 0 {
		return nil, errors.NewValidationError(InvalidPayloadMessage, "missing "+strings.Join(missing, ", "))
	}

	return &event, nil
}

// DataString returns data[key] when it is a string
func (e *Event) DataString(key string) string {
	if s, ok := e.Data[key].(string); ok {
		return s
	}
	return ""
}
