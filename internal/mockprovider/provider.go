// Package mockprovider emulates the ClearCompany and Paylocity REST APIs in
// memory so the service can run end to end without live credentials.
package mockprovider

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/atlet99/requisition-sync/internal/errors"
	"github.com/atlet99/requisition-sync/internal/events"
	"github.com/atlet99/requisition-sync/internal/timeutil"
)

const (
	maxBodyBytes = 1 << 20

	actionCreated       = "created"
	actionStatusUpdated = "status_updated"

	allowMethods = "GET, POST, PUT, DELETE"
)

// Resource describes one emulated collection
type Resource struct {
	// Collection is the path segment under /v1
	Collection string
	// NotFound is the 404 message
	NotFound string
	// EventType is the "type" of emitted mock events
	EventType string
	// Source and DetailType label emitted mock events
	Source     string
	DetailType string
	// LookupField, when set, enables GET /v1/{collection}/requisition/{value}
	LookupField string
}

// ClearCompanyResource is the requisition collection of the ATS emulator
var ClearCompanyResource = Resource{
	Collection: "requisitions",
	NotFound:   "Requisition not found",
	EventType:  "requisition",
	Source:     "mock.clearcompany",
	DetailType: "MockClearCompanyEvent",
}

// PaylocityResource is the headcount plan collection of the payroll emulator
var PaylocityResource = Resource{
	Collection:  "headcount-plans",
	NotFound:    "Headcount plan not found",
	EventType:   "headcount_plan",
	Source:      "mock.paylocity",
	DetailType:  "MockPaylocityEvent",
	LookupField: "requisitionId",
}

// EventDetail is the body of a mock provider event
type EventDetail struct {
	Type     string `json:"type"`
	EntityID string `json:"entityId"`
	Action   string `json:"action"`
	Data     any    `json:"data"`
}

// Option configures a Provider
type Option func(*Provider)

// WithStatusPublisher makes status changes also emit
// requisition.status_updated through p, as the real ATS does.
func WithStatusPublisher(p events.Publisher) Option {
	return func(prov *Provider) {
		prov.statusPublisher = p
	}
}

// WithClock overrides the timestamp source
func WithClock(clock timeutil.Clock) Option {
	return func(prov *Provider) {
		prov.clock = clock
	}
}

// WithIDGenerator overrides id minting
func WithIDGenerator(newID func() string) Option {
	return func(prov *Provider) {
		prov.newID = newID
	}
}

// Provider is an in-memory CRUD emulator for one Resource. Records are kept
// as raw JSON so unknown fields round-trip untouched.
type Provider struct {
	resource        Resource
	publisher       events.Publisher
	statusPublisher events.Publisher
	clock           timeutil.Clock
	newID           func() string
	logger          *slog.Logger

	mu      sync.RWMutex
	records map[string][]byte
	order   []string
}

// New creates an emulator for resource. publisher receives the mock events.
func New(resource Resource, publisher events.Publisher, logger *slog.Logger, opts ...Option) *Provider {
	p := &Provider{
		resource:  resource,
		publisher: publisher,
		clock:     timeutil.SystemClock,
		newID:     uuid.NewString,
		logger:    logger.With("mock_provider", resource.Source),
		records:   make(map[string][]byte),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Register adds the provider routes to r, which is expected to be mounted at
// the provider base path.
func (p *Provider) Register(r *mux.Router) {
	base := "/v1/" + p.resource.Collection
	if p.resource.LookupField != "" {
		r.HandleFunc(base+"/requisition/{value}", p.handleLookup).Methods(http.MethodGet)
	}
	r.HandleFunc(base, p.handleCreate).Methods(http.MethodPost)
	r.HandleFunc(base+"/{id}", p.handleGet).Methods(http.MethodGet)
	r.HandleFunc(base+"/{id}", p.handleUpdate).Methods(http.MethodPut)
	r.HandleFunc(base+"/{id}", p.handleDelete).Methods(http.MethodDelete)
}

// Len returns the number of stored records
func (p *Provider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.records)
}

func (p *Provider) handleCreate(w http.ResponseWriter, r *http.Request) {
	fields, ok := p.readObject(w, r)
	if !ok {
		return
	}

	id, _ := fields["id"].(string)
	if id == "" {
		id = p.newID()
	}
	now := p.clock.Now()
	fields["id"] = id
	fields["createdAt"] = now
	fields["updatedAt"] = now

	doc, err := json.Marshal(fields)
	if err != nil {
		p.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	p.mu.Lock()
	if _, exists := p.records[id]; !exists {
		p.order = append(p.order, id)
	}
	p.records[id] = doc
	p.mu.Unlock()

	p.logger.Debug("Created mock record", "id", id)
	p.emit(r.Context(), EventDetail{
		Type:     p.resource.EventType,
		EntityID: id,
		Action:   actionCreated,
		Data:     json.RawMessage(doc),
	})

	p.writeRaw(w, http.StatusCreated, doc)
}

func (p *Provider) handleGet(w http.ResponseWriter, r *http.Request) {
	p.mu.RLock()
	doc, ok := p.records[mux.Vars(r)["id"]]
	p.mu.RUnlock()

	if !ok {
		p.writeError(w, http.StatusNotFound, p.resource.NotFound)
		return
	}
	p.writeRaw(w, http.StatusOK, doc)
}

// handleLookup returns the first record, in creation order, whose lookup
// field equals the path value.
func (p *Provider) handleLookup(w http.ResponseWriter, r *http.Request) {
	value := mux.Vars(r)["value"]

	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, id := range p.order {
		doc, ok := p.records[id]
		if !ok {
			continue
		}
		var fields map[string]any
		if err := json.Unmarshal(doc, &fields); err != nil {
			continue
		}
		if fields[p.resource.LookupField] == value {
			p.writeRaw(w, http.StatusOK, doc)
			return
		}
	}
	p.writeError(w, http.StatusNotFound, p.resource.NotFound)
}

// handleUpdate applies the body as an RFC 7386 merge patch
func (p *Provider) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	patch, ok := p.readObject(w, r)
	if !ok {
		return
	}
	delete(patch, "id")
	delete(patch, "createdAt")
	patch["updatedAt"] = p.clock.Now()

	patchDoc, err := json.Marshal(patch)
	if err != nil {
		p.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	p.mu.Lock()
	existing, found := p.records[id]
	if !found {
		p.mu.Unlock()
		p.writeError(w, http.StatusNotFound, p.resource.NotFound)
		return
	}
	merged, err := jsonpatch.MergePatch(existing, patchDoc)
	if err != nil {
		p.mu.Unlock()
		p.writeError(w, http.StatusBadRequest, "Invalid merge patch")
		return
	}
	p.records[id] = merged
	p.mu.Unlock()

	if status, ok := patch["status"].(string); ok {
		p.emit(r.Context(), EventDetail{
			Type:     p.resource.EventType,
			EntityID: id,
			Action:   actionStatusUpdated,
			Data:     map[string]string{"status": status},
		})
		if p.statusPublisher != nil && status != statusOf(existing) {
			if err := p.statusPublisher.PublishStatusUpdate(r.Context(), id, status); err != nil {
				p.logger.Warn("Failed to publish status update", "id", id, "error", err)
			}
		}
	}

	p.writeRaw(w, http.StatusOK, merged)
}

func (p *Provider) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	p.mu.Lock()
	if _, ok := p.records[id]; ok {
		delete(p.records, id)
		for i, existing := range p.order {
			if existing == id {
				p.order = append(p.order[:i], p.order[i+1:]...)
				break
			}
		}
	}
	p.mu.Unlock()

	w.Header().Set("Access-Control-Allow-Methods", allowMethods)
	w.WriteHeader(http.StatusNoContent)
}

// readObject decodes a JSON object body; an empty body is an empty object
func (p *Provider) readObject(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		p.writeError(w, http.StatusBadRequest, "Invalid request body")
		return nil, false
	}

	fields := make(map[string]any)
	if len(data) == 0 {
		return fields, true
	}
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		p.writeError(w, http.StatusBadRequest, "Invalid request body")
		return nil, false
	}
	return fields, true
}

func (p *Provider) emit(ctx context.Context, detail EventDetail) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, p.resource.DetailType, detail); err != nil {
		p.logger.Warn("Failed to publish mock event",
			"detail_type", p.resource.DetailType,
			"entity_id", detail.EntityID,
			"error", err)
	}
}

func (p *Provider) writeRaw(w http.ResponseWriter, status int, doc []byte) {
	if err := errors.WriteJSON(withAllowMethods(w), status, json.RawMessage(doc)); err != nil {
		p.logger.Error("Failed to encode mock response", "error", err)
	}
}

func (p *Provider) writeError(w http.ResponseWriter, status int, message string) {
	if err := errors.WriteJSON(withAllowMethods(w), status, map[string]string{"error": message}); err != nil {
		p.logger.Error("Failed to encode mock response", "error", err)
	}
}

func withAllowMethods(w http.ResponseWriter) http.ResponseWriter {
	w.Header().Set("Access-Control-Allow-Methods", allowMethods)
	return w
}

func statusOf(doc []byte) string {
	var fields struct {
		Status string `json:"status"`
	}
	_ = json.Unmarshal(doc, &fields)
	return fields.Status
}

// Mount serves clearCompany under /mock/clearcompany and paylocity under
// /mock/paylocity, the base paths the provider registry targets in mock mode.
func Mount(r *mux.Router, clearCompany, paylocity *Provider) {
	clearCompany.Register(r.PathPrefix("/mock/clearcompany").Subrouter())
	paylocity.Register(r.PathPrefix("/mock/paylocity").Subrouter())
}
