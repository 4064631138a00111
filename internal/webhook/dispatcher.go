package webhook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/atlet99/requisition-sync/internal/events"
	reqsync "github.com/atlet99/requisition-sync/internal/sync"
)

// Route identifies the webhook endpoint a payload arrived on
type Route string

// Webhook routes
const (
	RouteRequisitionStatus Route = "requisition-status"
	RouteCandidateStatus   Route = "candidate-status"
)

// Payload discriminators
const (
	TypeRequisition     = "requisition"
	TypeCandidate       = "candidate"
	ActionStatusUpdated = "status_updated"
	CandidateHired      = "hired"
)

// Effects reported for webhooks
const (
	EffectIgnored = "ignored"
	EffectNotHire = "not_hired"
)

// Reconciler is the part of the sync manager the dispatcher drives
type Reconciler interface {
	SyncRequisitionStatus(ctx context.Context, requisitionID, status string) (reqsync.Outcome, error)
	MarkFilledFromHire(ctx context.Context, requisitionID string) (reqsync.Outcome, error)
}

// Recorder counts dispatched events
type Recorder interface {
	RecordWebhookEvent(route, eventType, action, effect string)
	RecordBusEvent(outcome string)
}

type noopRecorder struct{}

func (noopRecorder) RecordWebhookEvent(string, string, string, string) {}
func (noopRecorder) RecordBusEvent(string) {}

// Result describes what a webhook did. Every Result is a success.
type Result struct {
	Effect string `json:"effect"`
}

// Dispatcher maps (route, type, action) onto reconciliation effects. The
// discriminators match exactly. Unknown combinations succeed without side
// effects.
type Dispatcher struct {
	reconciler Reconciler
	atsSource  string
	metrics    Recorder
	logger     *slog.Logger
}

// NewDispatcher creates a dispatcher. Bus events are acted on only when their
// source equals atsSource. metrics may be nil.
func NewDispatcher(reconciler Reconciler, atsSource string, metrics Recorder, logger *slog.Logger) *Dispatcher {
	if metrics == nil {
		metrics = noopRecorder{}
	}
	return &Dispatcher{
		reconciler: reconciler,
		atsSource:  atsSource,
		metrics:    metrics,
		logger:     logger,
	}
}

// HandleWebhook applies the effect for event on route
func (d *Dispatcher) HandleWebhook(ctx context.Context, route Route, event *Event) (Result, error) {
	d.logger.Info("Processing webhook",
		"route", route,
		"type", event.Type,
		"entity_id", event.EntityID,
		"action", event.Action)

	result, err := d.dispatch(ctx, route, event)
	if err != nil {
		d.metrics.RecordWebhookEvent(string(route), event.Type, event.Action, "error")
		return Result{}, err
	}

	d.metrics.RecordWebhookEvent(string(route), event.Type, event.Action, result.Effect)
	return result, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, route Route, event *Event) (Result, error) {
	if event.Action != ActionStatusUpdated {
		return Result{Effect: EffectIgnored}, nil
	}

	switch {
	case route == RouteRequisitionStatus && event.Type == TypeRequisition:
		outcome, err := d.reconciler.SyncRequisitionStatus(ctx, event.EntityID, event.DataString("status"))
		if err != nil {
			return Result{}, err
		}
		return Result{Effect: string(outcome)}, nil

	case route == RouteCandidateStatus && event.Type == TypeCandidate:
		if event.DataString("status") != CandidateHired {
			return Result{Effect: EffectNotHire}, nil
		}
		requisitionID := event.DataString("requisitionId")
		if requisitionID == "" {
			d.logger.Info("Hire names no requisition, ignoring", "entity_id", event.EntityID)
			return Result{Effect: string(reqsync.OutcomeRequisitionNotFound)}, nil
		}
		outcome, err := d.reconciler.MarkFilledFromHire(ctx, requisitionID)
		if err != nil {
			return Result{}, err
		}
		return Result{Effect: string(outcome)}, nil

	default:
		d.logger.Debug("No handler for webhook, ignoring", "route", route, "type", event.Type, "action", event.Action)
		return Result{Effect: EffectIgnored}, nil
	}
}

// HandleBusEvent applies a requisition.status_updated bus event from the ATS.
// It never returns an error and never panics outward.
func (d *Dispatcher) HandleBusEvent(ctx context.Context, event events.BusEvent) (ack events.Ack) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("Panic while handling bus event", "panic", fmt.Sprint(rec), "source", event.Source)
			ack = events.Ack{Status: events.AckFailed, Message: "Failed to process event"}
		}
		d.metrics.RecordBusEvent(ack.Status)
	}()

	if event.Source != d.atsSource || event.DetailType != events.DetailTypeStatusUpdated {
		d.logger.Debug("Ignoring bus event", "source", event.Source, "detail_type", event.DetailType)
		return events.Ack{Status: events.AckIgnored, Message: "Event ignored"}
	}

	requisitionID := event.RequisitionID()
	outcome, err := d.reconciler.SyncRequisitionStatus(ctx, requisitionID, event.Detail.Status)
	if err != nil {
		d.logger.Error("Failed to process bus event",
			"requisition_id", requisitionID,
			"status", event.Detail.Status,
			"error", err)
		return events.Ack{Status: events.AckFailed, Message: "Failed to process event"}
	}

	d.logger.Info("Processed bus event", "requisition_id", requisitionID, "outcome", outcome)
	if outcome == reqsync.OutcomeIgnored {
		return events.Ack{Status: events.AckIgnored, Message: string(outcome)}
	}
	return events.Ack{Status: events.AckProcessed, Message: string(outcome)}
}
