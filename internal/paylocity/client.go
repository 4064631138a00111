// Package paylocity is the headcount-planning adapter. Plans are linked to
// requisitions by requisitionId.
package paylocity

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/atlet99/requisition-sync/internal/apiclient"
	"github.com/atlet99/requisition-sync/internal/errors"
	"github.com/atlet99/requisition-sync/internal/requisition"
)

// ProviderName identifies Paylocity in errors, logs and metrics
const ProviderName = "Paylocity"

const (
	plansPath          = "/v1/headcount-plans"
	plansByRequisition = plansPath + "/requisition/"
	dryRunPlanIDPrefix = "plan-"
)

// Client talks to the Paylocity headcount plan API
type Client struct {
	api    *apiclient.Client
	dryRun bool
	logger *slog.Logger
}

// NewClient wraps an API transport. In dry-run mode no request is sent.
func NewClient(api *apiclient.Client, dryRun bool, logger *slog.Logger) *Client {
	return &Client{
		api:    api,
		dryRun: dryRun,
		logger: logger.With("provider", ProviderName),
	}
}

// DryRunPlanID is the plan id dry-run stubs report for a requisition
func DryRunPlanID(requisitionID string) string {
	return dryRunPlanIDPrefix + requisitionID
}

// CreateHeadcountPlan creates plan and returns Paylocity's copy
func (c *Client) CreateHeadcountPlan(ctx context.Context, plan *requisition.HeadcountPlan) (*requisition.HeadcountPlan, error) {
	if c.dryRun {
		c.logger.Info("DRY_RUN enabled: returning stub for CreateHeadcountPlan")
		stub := *plan
		stub.ID = DryRunPlanID(plan.RequisitionID)
		return &stub, nil
	}

	var created requisition.HeadcountPlan
	if err := c.api.Do(ctx, http.MethodPost, plansPath, "create headcount plan", plan, &created); err != nil {
		c.logger.Error("Failed to create headcount plan in Paylocity", "error", err, "requisition_id", plan.RequisitionID)
		return nil, errors.NewIntegrationError("Failed to create headcount plan in Paylocity", err)
	}

	c.logger.Info("Created headcount plan in Paylocity",
		"plan_id", created.ID,
		"requisition_id", plan.RequisitionID)
	return &created, nil
}

// GetHeadcountPlan returns nil, nil when the plan does not exist
func (c *Client) GetHeadcountPlan(ctx context.Context, id string) (*requisition.HeadcountPlan, error) {
	if c.dryRun {
		c.logger.Info("DRY_RUN enabled: returning stub for GetHeadcountPlan", "plan_id", id)
		return &requisition.HeadcountPlan{ID: id}, nil
	}

	return c.get(ctx, plansPath+"/"+url.PathEscape(id), "get headcount plan", "plan_id", id)
}

// GetHeadcountPlanByRequisitionID returns nil, nil when no plan is linked to the requisition
func (c *Client) GetHeadcountPlanByRequisitionID(ctx context.Context, requisitionID string) (*requisition.HeadcountPlan, error) {
	if c.dryRun {
		c.logger.Info("DRY_RUN enabled: returning stub for GetHeadcountPlanByRequisitionID", "requisition_id", requisitionID)
		return &requisition.HeadcountPlan{ID: DryRunPlanID(requisitionID), RequisitionID: requisitionID}, nil
	}

	return c.get(ctx, plansByRequisition+url.PathEscape(requisitionID),
		"get headcount plan by requisition", "requisition_id", requisitionID)
}

func (c *Client) get(ctx context.Context, path, operation, key, id string) (*requisition.HeadcountPlan, error) {
	var plan requisition.HeadcountPlan
	err := c.api.Do(ctx, http.MethodGet, path, operation, nil, &plan)
	if stderrors.Is(err, apiclient.ErrNotFound) {
		c.logger.Debug("Headcount plan not found in Paylocity", key, id)
		return nil, nil
	}
	if err != nil {
		c.logger.Error("Failed to get headcount plan from Paylocity", "error", err, key, id)
		return nil, errors.NewIntegrationError("Failed to get headcount plan from Paylocity", err)
	}
	return &plan, nil
}

// UpdateHeadcountPlan sends the non-nil fields of update
func (c *Client) UpdateHeadcountPlan(ctx context.Context, id string, update requisition.PlanUpdate) (*requisition.HeadcountPlan, error) {
	if c.dryRun {
		c.logger.Info("DRY_RUN enabled: returning stub for UpdateHeadcountPlan", "plan_id", id)
		stub := &requisition.HeadcountPlan{ID: id}
		update.ApplyTo(stub)
		return stub, nil
	}

	var updated requisition.HeadcountPlan
	if err := c.api.Do(ctx, http.MethodPut, plansPath+"/"+url.PathEscape(id), "update headcount plan", update, &updated); err != nil {
		c.logger.Error("Failed to update headcount plan in Paylocity", "error", err, "plan_id", id)
		return nil, errors.NewIntegrationError("Failed to update headcount plan in Paylocity", err)
	}

	if updated.ID == "" {
		updated.ID = id
	}
	c.logger.Info("Updated headcount plan in Paylocity", "plan_id", id)
	return &updated, nil
}
