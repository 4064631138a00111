// Package events publishes requisition status notifications to the event bus
// and consumes inbound bus events.
package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// DetailTypeStatusUpdated is the detail type of status-change notifications
const DetailTypeStatusUpdated = "requisition.status_updated"

// Entry is one event as written to the bus
type Entry struct {
	EventBusName string `json:"eventBusName"`
	Source       string `json:"source"`
	DetailType   string `json:"detailType"`
	Detail       string `json:"detail"`
}

// StatusDetail is the detail of a status-change notification
type StatusDetail struct {
	EntityID string `json:"entityId"`
	Status   string `json:"status"`
}

// NewEntry JSON-encodes detail into an Entry
func NewEntry(busName, source, detailType string, detail any) (Entry, error) {
	data, err := json.Marshal(detail)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to encode event detail: %w", err)
	}
	return Entry{
		EventBusName: busName,
		Source:       source,
		DetailType:   detailType,
		Detail:       string(data),
	}, nil
}

// Publisher emits events under its configured bus name and source
type Publisher interface {
	// PublishStatusUpdate emits a requisition.status_updated notification
	PublishStatusUpdate(ctx context.Context, entityID, status string) error
	// Publish emits an arbitrary detail under detailType
	Publish(ctx context.Context, detailType string, detail any) error
}

// NoopPublisher stands in when no event bus is configured
type NoopPublisher struct {
	logger *slog.Logger
}

// NewNoopPublisher creates a publisher that only logs
func NewNoopPublisher(logger *slog.Logger) *NoopPublisher {
	return &NoopPublisher{logger: logger}
}

// PublishStatusUpdate logs and returns nil
func (p *NoopPublisher) PublishStatusUpdate(_ context.Context, entityID, status string) error {
	p.logger.Info("EVENT_BUS_NAME not set, skipping event",
		"detail_type", DetailTypeStatusUpdated,
		"entity_id", entityID,
		"status", status)
	return nil
}

// Publish logs and returns nil
func (p *NoopPublisher) Publish(_ context.Context, detailType string, _ any) error {
	p.logger.Info("EVENT_BUS_NAME not set, skipping event", "detail_type", detailType)
	return nil
}

// PublishRecorder counts publish attempts by outcome
type PublishRecorder interface {
	RecordEventPublished(outcome string)
}

type instrumentedPublisher struct {
	next     Publisher
	recorder PublishRecorder
}

// Instrument wraps p so every publish attempt is counted as "success" or
// "error". A nil recorder returns p unchanged.
func Instrument(p Publisher, recorder PublishRecorder) Publisher {
	if recorder == nil {
		return p
	}
	return &instrumentedPublisher{next: p, recorder: recorder}
}

func (p *instrumentedPublisher) PublishStatusUpdate(ctx context.Context, entityID, status string) error {
	return p.record(p.next.PublishStatusUpdate(ctx, entityID, status))
}

func (p *instrumentedPublisher) Publish(ctx context.Context, detailType string, detail any) error {
	return p.record(p.next.Publish(ctx, detailType, detail))
}

func (p *instrumentedPublisher) record(err error) error {
	if err != nil {
		p.recorder.RecordEventPublished("error")
	} else {
		p.recorder.RecordEventPublished("success")
	}
	return err
}

// Ack statuses
const (
	AckProcessed = "processed"
	AckIgnored   = "ignored"
	AckFailed    = "failed"
)

// Ack is the outcome of handling one bus event. It is never an error.
type Ack struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// BusEvent is the inbound bus event shape
type BusEvent struct {
	Source     string    `json:"source"`
	DetailType string    `json:"detail-type"`
	Detail     BusDetail `json:"detail"`
}

// BusDetail identifies the requisition by entityId or requisitionId
type BusDetail struct {
	EntityID      string `json:"entityId,omitempty"`
	RequisitionID string `json:"requisitionId,omitempty"`
	Status        string `json:"status,omitempty"`
}

// UnmarshalJSON accepts the detail either as an object or as a JSON-encoded string
func (d *BusDetail) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var encoded string
		if err := json.Unmarshal(trimmed, &encoded); err != nil {
			return err
		}
		trimmed = []byte(encoded)
	}
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*d = BusDetail{}
		return nil
	}

	type plain BusDetail
	var p plain
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return err
	}
	*d = BusDetail(p)
	return nil
}

// RequisitionID prefers entityId and falls back to requisitionId
func (e BusEvent) RequisitionID() string {
	if e.Detail.EntityID != "" {
		return e.Detail.EntityID
	}
	return e.Detail.RequisitionID
}
