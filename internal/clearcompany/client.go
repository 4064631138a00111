// Package clearcompany is the applicant-tracking adapter. It creates, reads
// and updates requisitions in ClearCompany.
package clearcompany

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

// ProviderName identifies ClearCompany in errors, logs and metrics
const ProviderName = "ClearCompany"

const (
	requisitionsPath = "/v1/requisitions"
	stubTitle        = "Stubbed Requisition"
	stubStatus       = "open"
)

// Client talks to the ClearCompany requisitions API
type Client struct {
	api    *apiclient.Client
	dryRun bool
	logger *slog.Logger
}

// NewClient wraps an API transport. In dry-run mode no request is sent and
// every call returns a stub.
func NewClient(api *apiclient.Client, dryRun bool, logger *slog.Logger) *Client {
	return &Client{
		api:    api,
		dryRun: dryRun,
		logger: logger.With("provider", ProviderName),
	}
}

// CreateRequisition creates r and returns ClearCompany's canonical copy.
// The returned ID may be empty when the provider omits it.
func (c *Client) CreateRequisition(ctx context.Context, r *requisition.Requisition) (*requisition.Requisition, error) {
	if c.dryRun {
		c.logger.Info("DRY_RUN enabled: returning stub for CreateRequisition")
		return r.Clone(), nil
	}

	var created requisition.Requisition
	if err := c.api.Do(ctx, http.MethodPost, requisitionsPath, "create requisition", r, &created); err != nil {
		c.logger.Error("Failed to create requisition in ClearCompany", "error", err, "title", r.Title)
		return nil, errors.NewIntegrationError("Failed to create requisition in ClearCompany", err)
	}

	c.logger.Info("Created requisition in ClearCompany", "requisition_id", created.ID)
	return &created, nil
}

// GetRequisition returns nil, nil when ClearCompany has no such requisition.
func (c *Client) GetRequisition(ctx context.Context, id string) (*requisition.Requisition, error) {
	if c.dryRun {
		c.logger.Info("DRY_RUN enabled: returning stub for GetRequisition", "requisition_id", id)
		return &requisition.Requisition{ID: id, Title: stubTitle, Status: stubStatus}, nil
	}

	var found requisition.Requisition
	err := c.api.Do(ctx, http.MethodGet, requisitionsPath+"/"+url.PathEscape(id), "get requisition", nil, &found)
	if stderrors.Is(err, apiclient.ErrNotFound) {
		c.logger.Debug("Requisition not found in ClearCompany", "requisition_id", id)
		return nil, nil
	}
	if err != nil {
		c.logger.Error("Failed to get requisition from ClearCompany", "error", err, "requisition_id", id)
		return nil, errors.NewIntegrationError("Failed to get requisition from ClearCompany", err)
	}

	if found.ID == "" {
		found.ID = id
	}
	return &found, nil
}

// UpdateRequisition sends only the supplied patch fields
func (c *Client) UpdateRequisition(ctx context.Context, id string, patch *requisition.Patch) (*requisition.Requisition, error) {
	if c.dryRun {
		c.logger.Info("DRY_RUN enabled: returning stub for UpdateRequisition", "requisition_id", id)
		stub := &requisition.Requisition{ID: id}
		patch.Apply(stub)
		return stub, nil
	}

	var updated requisition.Requisition
	path := requisitionsPath + "/" + url.PathEscape(id)
	if err := c.api.Do(ctx, http.MethodPut, path, "update requisition", patch.Fields(), &updated); err != nil {
		c.logger.Error("Failed to update requisition in ClearCompany", "error", err, "requisition_id", id)
		return nil, errors.NewIntegrationError("Failed to update requisition in ClearCompany", err)
	}

	if updated.ID == "" {
		updated.ID = id
	}
	c.logger.Info("Updated requisition in ClearCompany", "requisition_id", id)
	return &updated, nil
}
