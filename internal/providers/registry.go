// Package providers constructs the ClearCompany and Paylocity adapters once
// per process and hands them to the sync workflow.
package providers

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/atlet99/requisition-sync/internal/apiclient"
	"github.com/atlet99/requisition-sync/internal/clearcompany"
	"github.com/atlet99/requisition-sync/internal/config"
	"github.com/atlet99/requisition-sync/internal/errors"
	"github.com/atlet99/requisition-sync/internal/paylocity"
	"github.com/atlet99/requisition-sync/internal/requisition"
)

// MockAPIKey is used when no real credential is needed
const MockAPIKey = "mock-key"

// Registry lazily builds each adapter on first use and reuses it for the
// life of the process. A failed build is not cached, so the next call retries.
type Registry struct {
	cfg      *config.Config
	creds    config.CredentialSource
	observer apiclient.Observer
	logger   *slog.Logger

	ccMu sync.Mutex
	cc   *clearcompany.Client

	plMu sync.Mutex
	pl   *paylocity.Client
}

// NewRegistry creates a registry. observer may be nil.
func NewRegistry(cfg *config.Config, creds config.CredentialSource, observer apiclient.Observer, logger *slog.Logger) *Registry {
	return &Registry{
		cfg:      cfg,
		creds:    creds,
		observer: observer,
		logger:   logger,
	}
}

// Init builds both adapters concurrently
func (r *Registry) Init(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := r.ClearCompany(ctx)
		return err
	})
	g.Go(func() error {
		_, err := r.Paylocity(ctx)
		return err
	})
	return g.Wait()
}

// ClearCompany returns the shared ATS adapter
func (r *Registry) ClearCompany(ctx context.Context) (*clearcompany.Client, error) {
	r.ccMu.Lock()
	defer r.ccMu.Unlock()

	if r.cc != nil {
		return r.cc, nil
	}

	key, err := r.apiKey(ctx, clearcompany.ProviderName, func(c config.Credentials) string { return c.ClearCompanyAPIKey })
	if err != nil {
		return nil, err
	}

	api := apiclient.New(r.clientConfig(clearcompany.ProviderName, r.cfg.ClearCompanyURL(), key), r.logger, r.options()...)
	r.cc = clearcompany.NewClient(api, r.cfg.DryRun, r.logger)
	return r.cc, nil
}

// Paylocity returns the shared headcount planning adapter
func (r *Registry) Paylocity(ctx context.Context) (*paylocity.Client, error) {
	r.plMu.Lock()
	defer r.plMu.Unlock()

	if r.pl != nil {
		return r.pl, nil
	}

	key, err := r.apiKey(ctx, paylocity.ProviderName, func(c config.Credentials) string { return c.PaylocityAPIKey })
	if err != nil {
		return nil, err
	}

	api := apiclient.New(r.clientConfig(paylocity.ProviderName, r.cfg.PaylocityURL(), key), r.logger, r.options()...)
	r.pl = paylocity.NewClient(api, r.cfg.DryRun, r.logger)
	return r.pl, nil
}

func (r *Registry) apiKey(ctx context.Context, provider string, pick func(config.Credentials) string) (string, error) {
	if r.cfg.DryRun {
		return MockAPIKey, nil
	}

	creds, err := r.creds.Credentials(ctx)
	if err != nil {
		r.logger.Error("Failed to load provider credentials", "provider", provider, "error", err)
		return "", errors.NewIntegrationError("Failed to initialize "+provider+" client", err)
	}

	key := pick(creds)
	if key == "" && r.cfg.UseMockProviders {
		key = MockAPIKey
	}
	if key == "" {
		return "", errors.NewIntegrationError(provider+" API key not found", nil)
	}
	return key, nil
}

func (r *Registry) clientConfig(provider, baseURL, key string) apiclient.Config {
	return apiclient.Config{
		Provider:         provider,
		BaseURL:          baseURL,
		APIKey:           key,
		Timeout:          r.cfg.ProviderTimeout,
		RateLimit:        r.cfg.ProviderRateLimit,
		RetryMaxAttempts: r.cfg.ProviderRetryMaxAttempts,
		RetryBaseDelay:   r.cfg.ProviderRetryBaseDelay(),
	}
}

func (r *Registry) options() []apiclient.Option {
	if r.observer == nil {
		return nil
	}
	return []apiclient.Option{apiclient.WithObserver(r.observer)}
}

// ATS returns a RequisitionAPI view that resolves the adapter on each call
func (r *Registry) ATS() *LazyATS {
	return &LazyATS{registry: r}
}

// Plans returns a HeadcountPlanAPI view that resolves the adapter on each call
func (r *Registry) Plans() *LazyPlans {
	return &LazyPlans{registry: r}
}

// LazyATS defers ClearCompany construction to the first call
type LazyATS struct {
	registry *Registry
}

// CreateRequisition delegates to the ClearCompany adapter
func (l *LazyATS) CreateRequisition(ctx context.Context, req *requisition.Requisition) (*requisition.Requisition, error) {
	c, err := l.registry.ClearCompany(ctx)
	if err != nil {
		return nil, err
	}
	return c.CreateRequisition(ctx, req)
}

// GetRequisition delegates to the ClearCompany adapter
func (l *LazyATS) GetRequisition(ctx context.Context, id string) (*requisition.Requisition, error) {
	c, err := l.registry.ClearCompany(ctx)
	if err != nil {
		return nil, err
	}
	return c.GetRequisition(ctx, id)
}

// UpdateRequisition delegates to the ClearCompany adapter
func (l *LazyATS) UpdateRequisition(ctx context.Context, id string, patch *requisition.Patch) (*requisition.Requisition, error) {
	c, err := l.registry.ClearCompany(ctx)
	if err != nil {
		return nil, err
	}
	return c.UpdateRequisition(ctx, id, patch)
}

// LazyPlans defers Paylocity construction to the first call
type LazyPlans struct {
	registry *Registry
}

// CreateHeadcountPlan delegates to the Paylocity adapter
func (l *LazyPlans) CreateHeadcountPlan(ctx context.Context, plan *requisition.HeadcountPlan) (*requisition.HeadcountPlan, error) {
	c, err := l.registry.Paylocity(ctx)
	if err != nil {
		return nil, err
	}
	return c.CreateHeadcountPlan(ctx, plan)
}

// GetHeadcountPlanByRequisitionID delegates to the Paylocity adapter
func (l *LazyPlans) GetHeadcountPlanByRequisitionID(ctx context.Context, requisitionID string) (*requisition.HeadcountPlan, error) {
	c, err := l.registry.Paylocity(ctx)
	if err != nil {
		return nil, err
	}
	return c.GetHeadcountPlanByRequisitionID(ctx, requisitionID)
}

// UpdateHeadcountPlan delegates to the Paylocity adapter
func (l *LazyPlans) UpdateHeadcountPlan(ctx context.Context, id string, update requisition.PlanUpdate) (*requisition.HeadcountPlan, error) {
	c, err := l.registry.Paylocity(ctx)
	if err != nil {
		return nil, err
	}
	return c.UpdateHeadcountPlan(ctx, id, update)
}
