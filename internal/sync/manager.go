// Package sync orchestrates the requisition workflows: create, update and
// status reconciliation across the ATS, the headcount planning system, the
// local store and the event bus.
package sync

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/atlet99/requisition-sync/internal/config"
	"github.com/atlet99/requisition-sync/internal/errors"
	"github.com/atlet99/requisition-sync/internal/events"
	"github.com/atlet99/requisition-sync/internal/requisition"
	"github.com/atlet99/requisition-sync/internal/store"
	"github.com/atlet99/requisition-sync/internal/timeutil"
)

const tracerName = "github.com/atlet99/requisition-sync/internal/sync"

// Metric outcomes for operations that do not report an Outcome
const (
	outcomeSuccess = "success"
	outcomeError   = "error"
)

// RequisitionAPI is the ATS surface the workflow needs. GetRequisition
// returns nil, nil when the requisition does not exist.
type RequisitionAPI interface {
	CreateRequisition(ctx context.Context, req *requisition.Requisition) (*requisition.Requisition, error)
	GetRequisition(ctx context.Context, id string) (*requisition.Requisition, error)
	UpdateRequisition(ctx context.Context, id string, patch *requisition.Patch) (*requisition.Requisition, error)
}

// HeadcountPlanAPI is the headcount planning surface the workflow needs.
// GetHeadcountPlanByRequisitionID returns nil, nil when no plan is linked.
type HeadcountPlanAPI interface {
	CreateHeadcountPlan(ctx context.Context, plan *requisition.HeadcountPlan) (*requisition.HeadcountPlan, error)
	GetHeadcountPlanByRequisitionID(ctx context.Context, requisitionID string) (*requisition.HeadcountPlan, error)
	UpdateHeadcountPlan(ctx context.Context, id string, update requisition.PlanUpdate) (*requisition.HeadcountPlan, error)
}

// PolicyProvider returns the sync policy in effect
type PolicyProvider interface {
	Current() config.SyncPolicy
}

// Recorder counts workflow runs
type Recorder interface {
	RecordSyncOperation(operation, outcome string)
}

type noopRecorder struct{}

func (noopRecorder) RecordSyncOperation(string, string) {}

// Outcome describes what a reconciliation did. None of them is an error.
type Outcome string

const (
	// OutcomePlanUpdated means the linked headcount plan was updated
	OutcomePlanUpdated Outcome = "plan_updated"
	// OutcomeNoPlan means no headcount plan is linked to the requisition
	OutcomeNoPlan Outcome = "no_plan"
	// OutcomeRequisitionNotFound means the ATS has no such requisition, or
	// none was named
	OutcomeRequisitionNotFound Outcome = "requisition_not_found"
	// OutcomeIgnored means the event carried no status to reconcile
	OutcomeIgnored Outcome = "ignored"
)

// Dependencies are the collaborators of a Manager. ATS, Plans, Store and
// Publisher are required; the rest default when nil.
type Dependencies struct {
	ATS       RequisitionAPI
	Plans     HeadcountPlanAPI
	Store     store.Store
	Publisher events.Publisher
	Policy    PolicyProvider
	Metrics   Recorder
	Audit     *AuditTrail
	Clock     timeutil.Clock
	NewID     func() string
}

// Manager runs the synchronization workflows. It holds no per-requisition
// state; concurrent updates to one id are last-write-wins.
type Manager struct {
	ats          RequisitionAPI
	plans        HeadcountPlanAPI
	store        store.Store
	publisher    events.Publisher
	policy       PolicyProvider
	metrics      Recorder
	auditTrail   *AuditTrail
	clock        timeutil.Clock
	newID        func() string
	tracer       trace.Tracer
	shortCircuit bool
	dryRun       bool
	logger       *slog.Logger
}

// NewManager creates a sync manager
func NewManager(cfg *config.Config, deps Dependencies, logger *slog.Logger) *Manager {
	m := &Manager{
		ats:          deps.ATS,
		plans:        deps.Plans,
		store:        deps.Store,
		publisher:    deps.Publisher,
		policy:       deps.Policy,
		metrics:      deps.Metrics,
		auditTrail:   deps.Audit,
		clock:        deps.Clock,
		newID:        deps.NewID,
		tracer:       otel.Tracer(tracerName),
		shortCircuit: cfg.ShortCircuitCreate(),
		dryRun:       cfg.DryRun,
		logger:       logger,
	}

	if m.policy == nil {
		m.policy = config.NewPolicySource(cfg.Policy)
	}
	if m.metrics == nil {
		m.metrics = noopRecorder{}
	}
	if m.auditTrail == nil {
		m.auditTrail = NewAuditTrail(logger, cfg.AuditMaxEvents)
	}
	if m.clock == nil {
		m.clock = timeutil.SystemClock
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}

	return m
}

// GetAuditTrail returns the audit trail for external access
func (m *Manager) GetAuditTrail() *AuditTrail {
	return m.auditTrail
}

// Create creates the requisition in the ATS, persists it, announces its
// status and creates the linked headcount plan. The stored record, the event
// and the plan come from the input merged with the ATS reply; the ATS reply
// is what Create returns. A plan failure is returned but the requisition
// stays created.
func (m *Manager) Create(ctx context.Context, input *requisition.Requisition) (*requisition.Requisition, error) {
	ctx, span := m.tracer.Start(ctx, "sync."+OperationCreate)
	defer span.End()

	start := time.Now()
	localID := m.newID()
	audit := &AuditEvent{Operation: OperationCreate, RequisitionID: localID}
	span.SetAttributes(attribute.String("requisition.local_id", localID))

	if m.shortCircuit {
		record, err := m.createLocally(ctx, input, localID)
		audit.Details = map[string]any{"short_circuit": true, "dry_run": m.dryRun}
		audit.AfterState = record
		m.finish(span, audit, start, outcomeSuccess, err)
		return record, err
	}

	m.logger.Info("Creating requisition in ClearCompany", "title", input.Title, "department", input.Department)
	created, err := m.ats.CreateRequisition(ctx, input)
	if err != nil {
		m.finish(span, audit, start, outcomeSuccess, err)
		return nil, err
	}
	if created == nil {
		created = input.Clone()
	}
	if created.ID == "" {
		m.logger.Debug("ClearCompany returned no id, using local id", "requisition_id", localID)
		created.ID = localID
	}
	audit.RequisitionID = created.ID
	span.SetAttributes(attribute.String("requisition.id", created.ID))

	now := m.clock.Now()
	record := mergeReply(input, created)
	record.CreatedAt = now
	record.UpdatedAt = now
	if err := m.store.Put(ctx, record); err != nil {
		err = fmt.Errorf("failed to persist requisition %s: %w", record.ID, err)
		m.finish(span, audit, start, outcomeSuccess, err)
		return nil, err
	}
	audit.AfterState = record

	m.publishStatus(ctx, record.ID, record.Status)

	if err := m.createPlan(ctx, record); err != nil {
		m.finish(span, audit, start, outcomeSuccess, err)
		return nil, err
	}

	m.linkPlan(ctx, record.ID)

	m.finish(span, audit, start, outcomeSuccess, nil)
	return created, nil
}

// mergeReply lays the fields the ATS echoed back over the validated input.
// Fields the reply leaves empty keep the input's value; custom fields merge
// key by key.
func mergeReply(input, reply *requisition.Requisition) *requisition.Requisition {
	record := input.Clone()
	keep := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}

	record.ID = reply.ID
	keep(&record.Title, reply.Title)
	keep(&record.Description, reply.Description)
	keep(&record.Department, reply.Department)
	keep(&record.Location, reply.Location)
	keep(&record.EmploymentType, reply.EmploymentType)
	keep(&record.Status, reply.Status)
	keep(&record.HeadcountPlanID, reply.HeadcountPlanID)
	if reply.Salary != nil {
		s := *reply.Salary
		record.Salary = &s
	}
	if len(reply.Requirements) > 0 {
		record.Requirements = append([]string(nil), reply.Requirements...)
	}
	if len(reply.Benefits) > 0 {
		record.Benefits = append([]string(nil), reply.Benefits...)
	}
	if len(reply.CustomFields) > 0 {
		if record.CustomFields == nil {
			record.CustomFields = make(map[string]any, len(reply.CustomFields))
		}
		maps.Copy(record.CustomFields, reply.CustomFields)
	}
	return record
}

// createLocally is the local-invocation and dry-run path: no adapter calls.
func (m *Manager) createLocally(ctx context.Context, input *requisition.Requisition, id string) (*requisition.Requisition, error) {
	m.logger.Info("Creating requisition without provider calls",
		"requisition_id", id,
		"dry_run", m.dryRun)

	now := m.clock.Now()
	record := input.Clone()
	record.ID = id
	record.CreatedAt = now
	record.UpdatedAt = now

	if err := m.store.Put(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to persist requisition %s: %w", id, err)
	}

	m.publishStatus(ctx, record.ID, record.Status)
	return record, nil
}

func (m *Manager) createPlan(ctx context.Context, record *requisition.Requisition) error {
	policy := m.policy.Current()
	defaults := policy.PlanDefaultsFor(record.Department)

	m.logger.Info("Creating headcount plan in Paylocity", "requisition_id", record.ID)
	_, err := m.plans.CreateHeadcountPlan(ctx, &requisition.HeadcountPlan{
		RequisitionID: record.ID,
		Department:    record.Department,
		Position:      record.Title,
		StartDate:     m.clock.Now(),
		Status:        policy.PlanStatus(record.Status),
		Headcount:     defaults.Headcount,
		Budget:        defaults.Budget,
	})
	return err
}

// linkPlan stores the new plan's id on the requisition. Failures only cost a
// later lookup and are not reported.
func (m *Manager) linkPlan(ctx context.Context, requisitionID string) {
	plan, err := m.plans.GetHeadcountPlanByRequisitionID(ctx, requisitionID)
	if err != nil || plan == nil || plan.ID == "" {
		m.logger.Debug("Headcount plan id not linked", "requisition_id", requisitionID, "error", err)
		return
	}
	if err := m.store.SetHeadcountPlanID(ctx, requisitionID, plan.ID, m.clock.Now()); err != nil {
		m.logger.Debug("Failed to store headcount plan id", "requisition_id", requisitionID, "error", err)
	}
}

func (m *Manager) publishStatus(ctx context.Context, id, status string) {
	if err := m.publisher.PublishStatusUpdate(ctx, id, status); err != nil {
		m.logger.Error("Failed to publish status update", "requisition_id", id, "error", err)
	}
}

// Update applies patch to the ATS and the local store, then pushes the plan
// fields to the linked headcount plan when the patch touches them.
func (m *Manager) Update(ctx context.Context, id string, patch *requisition.Patch) (*requisition.Requisition, error) {
	ctx, span := m.tracer.Start(ctx, "sync."+OperationUpdate, trace.WithAttributes(attribute.String("requisition.id", id)))
	defer span.End()

	start := time.Now()
	audit := &AuditEvent{Operation: OperationUpdate, RequisitionID: id}

	updated, err := m.update(ctx, id, patch, audit)
	m.finish(span, audit, start, outcomeSuccess, err)
	return updated, err
}

func (m *Manager) update(ctx context.Context, id string, patch *requisition.Patch, audit *AuditEvent) (*requisition.Requisition, error) {
	if id == "" {
		return nil, errors.NewValidationError("Requisition ID is required")
	}
	if patch == nil || patch.IsEmpty() {
		return nil, errors.NewValidationError(requisition.InvalidBodyMessage, "at least one field must be supplied")
	}

	current, fromStore, err := m.resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	audit.BeforeState = current
	audit.Details = map[string]any{"resolved_from_store": fromStore}

	m.logger.Info("Updating requisition in ClearCompany", "requisition_id", id)
	updated, err := m.ats.UpdateRequisition(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()
	merged := current.Clone()
	patch.Apply(merged)
	merged.UpdatedAt = now

	if fromStore {
		fields := patch.Fields()
		fields[requisition.FieldUpdatedAt] = now
		err = m.store.UpdateFields(ctx, id, fields)
	} else {
		if merged.CreatedAt == "" {
			merged.CreatedAt = now
		}
		err = m.store.Put(ctx, merged)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to persist update for requisition %s: %w", id, err)
	}
	audit.AfterState = merged

	if patch.TouchesPlan() {
		if err := m.pushPlanUpdate(ctx, id, patch.PlanUpdate(m.policy.Current().PlanStatus)); err != nil {
			return nil, err
		}
	}

	if updated == nil {
		return merged, nil
	}
	return updated, nil
}

func (m *Manager) pushPlanUpdate(ctx context.Context, requisitionID string, update requisition.PlanUpdate) error {
	plan, err := m.plans.GetHeadcountPlanByRequisitionID(ctx, requisitionID)
	if err != nil {
		return err
	}
	if plan == nil || plan.ID == "" {
		m.logger.Info("No headcount plan linked to requisition, skipping plan update", "requisition_id", requisitionID)
		return nil
	}

	m.logger.Info("Updating headcount plan in Paylocity", "requisition_id", requisitionID, "plan_id", plan.ID)
	_, err = m.plans.UpdateHeadcountPlan(ctx, plan.ID, update)
	return err
}

// resolve reads the store first and falls back to the ATS. fromStore reports
// which one answered.
func (m *Manager) resolve(ctx context.Context, id string) (req *requisition.Requisition, fromStore bool, err error) {
	req, err = m.store.Get(ctx, id)
	if err == nil {
		return req, true, nil
	}
	if !stderrors.Is(err, store.ErrNotFound) {
		return nil, false, fmt.Errorf("failed to read requisition %s: %w", id, err)
	}

	req, err = m.ats.GetRequisition(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if req == nil {
		return nil, false, errors.NewNotFoundError("Requisition not found")
	}
	return req, false, nil
}

// Get returns the local record, or the ATS copy when the store has none.
func (m *Manager) Get(ctx context.Context, id string) (*requisition.Requisition, error) {
	ctx, span := m.tracer.Start(ctx, "sync.get", trace.WithAttributes(attribute.String("requisition.id", id)))
	defer span.End()

	if id == "" {
		return nil, errors.NewValidationError("Requisition ID is required")
	}
	req, _, err := m.resolve(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return req, err
}

// SyncRequisitionStatus pushes a requisition status to its headcount plan and
// mirrors it into the local record. Repeating it is harmless. A missing
// requisition id or status is a no-op, not an error.
func (m *Manager) SyncRequisitionStatus(ctx context.Context, requisitionID, status string) (Outcome, error) {
	ctx, span := m.tracer.Start(ctx, "sync."+OperationStatusSync, trace.WithAttributes(
		attribute.String("requisition.id", requisitionID),
		attribute.String("requisition.status", status)))
	defer span.End()

	start := time.Now()
	audit := &AuditEvent{
		Operation:     OperationStatusSync,
		RequisitionID: requisitionID,
		Details:       map[string]any{"status": status},
	}

	outcome, err := m.syncStatus(ctx, requisitionID, status, audit)
	m.finish(span, audit, start, string(outcome), err)
	return outcome, err
}

func (m *Manager) syncStatus(ctx context.Context, requisitionID, status string, audit *AuditEvent) (Outcome, error) {
	if requisitionID == "" {
		m.logger.Info("Status update names no requisition, ignoring")
		return OutcomeRequisitionNotFound, nil
	}
	if status == "" {
		m.logger.Info("Status update carries no status, ignoring", "requisition_id", requisitionID)
		return OutcomeIgnored, nil
	}

	plan, err := m.plans.GetHeadcountPlanByRequisitionID(ctx, requisitionID)
	if err != nil {
		return "", err
	}

	outcome := OutcomeNoPlan
	if plan == nil || plan.ID == "" {
		m.logger.Info("No headcount plan found for requisition", "requisition_id", requisitionID)
	} else {
		planStatus := m.policy.Current().PlanStatus(status)
		update := requisition.PlanUpdate{Status: &planStatus}
		audit.BeforeState = plan

		updated, err := m.plans.UpdateHeadcountPlan(ctx, plan.ID, update)
		if err != nil {
			return "", err
		}
		if updated == nil {
			after := *plan
			update.ApplyTo(&after)
			updated = &after
		}
		audit.AfterState = updated
		outcome = OutcomePlanUpdated

		m.logger.Info("Updated headcount plan status",
			"requisition_id", requisitionID,
			"plan_id", plan.ID,
			"status", planStatus)
	}

	m.mirrorStatus(ctx, requisitionID, status)
	return outcome, nil
}

// MarkFilledFromHire sets the requisition, its local record and its plan to
// filled. The plan also gets endDate = now.
func (m *Manager) MarkFilledFromHire(ctx context.Context, requisitionID string) (Outcome, error) {
	ctx, span := m.tracer.Start(ctx, "sync."+OperationHireBackfill, trace.WithAttributes(attribute.String("requisition.id", requisitionID)))
	defer span.End()

	start := time.Now()
	audit := &AuditEvent{Operation: OperationHireBackfill, RequisitionID: requisitionID}

	outcome, err := m.markFilled(ctx, requisitionID, audit)
	m.finish(span, audit, start, string(outcome), err)
	return outcome, err
}

func (m *Manager) markFilled(ctx context.Context, requisitionID string, audit *AuditEvent) (Outcome, error) {
	if requisitionID == "" {
		m.logger.Info("Hired candidate references no requisition")
		return OutcomeRequisitionNotFound, nil
	}

	current, err := m.ats.GetRequisition(ctx, requisitionID)
	if err != nil {
		return "", err
	}
	if current == nil {
		m.logger.Info("Hired candidate references unknown requisition", "requisition_id", requisitionID)
		return OutcomeRequisitionNotFound, nil
	}
	audit.BeforeState = current

	filled := config.StatusFilled
	if _, err := m.ats.UpdateRequisition(ctx, requisitionID, &requisition.Patch{Status: &filled}); err != nil {
		return "", err
	}
	after := current.Clone()
	after.Status = filled
	audit.AfterState = after

	m.mirrorStatus(ctx, requisitionID, filled)

	plan, err := m.plans.GetHeadcountPlanByRequisitionID(ctx, requisitionID)
	if err != nil {
		return "", err
	}
	if plan == nil || plan.ID == "" {
		m.logger.Info("No headcount plan found for requisition", "requisition_id", requisitionID)
		return OutcomeNoPlan, nil
	}

	endDate := m.clock.Now()
	if _, err := m.plans.UpdateHeadcountPlan(ctx, plan.ID, requisition.PlanUpdate{Status: &filled, EndDate: &endDate}); err != nil {
		return "", err
	}

	m.logger.Info("Marked requisition and headcount plan filled",
		"requisition_id", requisitionID,
		"plan_id", plan.ID)
	return OutcomePlanUpdated, nil
}

// mirrorStatus copies a status into the local record if there is one.
func (m *Manager) mirrorStatus(ctx context.Context, requisitionID, status string) {
	err := m.store.UpdateStatus(ctx, requisitionID, status, m.clock.Now())
	switch {
	case err == nil:
	case stderrors.Is(err, store.ErrNotFound):
		m.logger.Debug("Requisition not in local store, status not mirrored", "requisition_id", requisitionID)
	default:
		m.logger.Warn("Failed to mirror status into local store", "requisition_id", requisitionID, "error", err)
	}
}

func (m *Manager) finish(span trace.Span, audit *AuditEvent, start time.Time, outcome string, err error) {
	audit.Duration = time.Since(start)
	audit.Success = err == nil
	if err != nil {
		audit.Error = err.Error()
		outcome = outcomeError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	m.auditTrail.RecordEvent(audit)
	m.metrics.RecordSyncOperation(audit.Operation, outcome)
}
