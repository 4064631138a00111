package mockprovider

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlet99/requisition-sync/internal/events"
	"github.com/atlet99/requisition-sync/internal/timeutil"
)

type published struct {
	detailType string
	detail     any
}

type recordingPublisher struct {
	events []published
}

func (p *recordingPublisher) PublishStatusUpdate(_ context.Context, entityID, status string) error {
	p.events = append(p.events, published{
		detailType: events.DetailTypeStatusUpdated,
		detail:     events.StatusDetail{EntityID: entityID, Status: status},
	})
	return nil
}

func (p *recordingPublisher) Publish(_ context.Context, detailType string, detail any) error {
	p.events = append(p.events, published{detailType: detailType, detail: detail})
	return nil
}

type fixture struct {
	router       *mux.Router
	clearCompany *Provider
	paylocity    *Provider
	mockEvents   *recordingPublisher
	atsEvents    *recordingPublisher
}

func newFixture() *fixture {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := timeutil.Fixed(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	ids := 0
	newID := func() string {
		ids++
		return "mock-" + string(rune('0'+ids))
	}

	f := &fixture{
		router:     mux.NewRouter(),
		mockEvents: &recordingPublisher{},
		atsEvents:  &recordingPublisher{},
	}
	f.clearCompany = New(ClearCompanyResource, f.mockEvents, logger,
		WithStatusPublisher(f.atsEvents), WithClock(clock), WithIDGenerator(newID))
	f.paylocity = New(PaylocityResource, f.mockEvents, logger, WithClock(clock), WithIDGenerator(newID))
	Mount(f.router, f.clearCompany, f.paylocity)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestProvider_CreateAndGet(t *testing.T) {
	f := newFixture()

	rec, created := f.do(t, http.MethodPost, "/mock/clearcompany/v1/requisitions", `{"title":"Engineer","status":"open"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "mock-1", created["id"])
	assert.Equal(t, "2026-05-01T09:00:00.000Z", created["createdAt"])
	assert.Equal(t, "Engineer", created["title"])
	assert.Equal(t, "GET, POST, PUT, DELETE", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec, fetched := f.do(t, http.MethodGet, "/mock/clearcompany/v1/requisitions/mock-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created, fetched)

	require.Len(t, f.mockEvents.events, 1)
	assert.Equal(t, "MockClearCompanyEvent", f.mockEvents.events[0].detailType)
	detail := f.mockEvents.events[0].detail.(EventDetail)
	assert.Equal(t, "requisition", detail.Type)
	assert.Equal(t, "created", detail.Action)
}

func TestProvider_CreateKeepsSuppliedID(t *testing.T) {
	f := newFixture()

	rec, created := f.do(t, http.MethodPost, "/mock/clearcompany/v1/requisitions", `{"id":"req-42","title":"Engineer"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "req-42", created["id"])
}

func TestProvider_NotFound(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		path    string
		body    string
		message string
	}{
		{name: "get requisition", method: http.MethodGet, path: "/mock/clearcompany/v1/requisitions/missing", message: "Requisition not found"},
		{name: "put requisition", method: http.MethodPut, path: "/mock/clearcompany/v1/requisitions/missing", body: `{"status":"closed"}`, message: "Requisition not found"},
		{name: "get plan", method: http.MethodGet, path: "/mock/paylocity/v1/headcount-plans/missing", message: "Headcount plan not found"},
		{name: "lookup plan", method: http.MethodGet, path: "/mock/paylocity/v1/headcount-plans/requisition/missing", message: "Headcount plan not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			rec, body := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusNotFound, rec.Code)
			assert.Equal(t, tt.message, body["error"])
		})
	}
}

func TestProvider_UpdateMergesAndEmitsStatus(t *testing.T) {
	f := newFixture()
	f.do(t, http.MethodPost, "/mock/clearcompany/v1/requisitions",
		`{"title":"Engineer","status":"open","customFields":{"team":"core","level":"L3"}}`)

	rec, updated := f.do(t, http.MethodPut, "/mock/clearcompany/v1/requisitions/mock-1",
		`{"status":"closed","customFields":{"level":null},"id":"other"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mock-1", updated["id"])
	assert.Equal(t, "closed", updated["status"])
	assert.Equal(t, "Engineer", updated["title"])
	assert.Equal(t, map[string]any{"team": "core"}, updated["customFields"])

	require.Len(t, f.mockEvents.events, 2)
	detail := f.mockEvents.events[1].detail.(EventDetail)
	assert.Equal(t, "status_updated", detail.Action)

	require.Len(t, f.atsEvents.events, 1)
	assert.Equal(t, events.StatusDetail{EntityID: "mock-1", Status: "closed"}, f.atsEvents.events[0].detail)
}

func TestProvider_UpdateSameStatusSkipsATSEvent(t *testing.T) {
	f := newFixture()
	f.do(t, http.MethodPost, "/mock/clearcompany/v1/requisitions", `{"status":"open"}`)

	rec, _ := f.do(t, http.MethodPut, "/mock/clearcompany/v1/requisitions/mock-1", `{"status":"open"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.atsEvents.events)
}

func TestProvider_PlanLookupAndDelete(t *testing.T) {
	f := newFixture()
	f.do(t, http.MethodPost, "/mock/paylocity/v1/headcount-plans", `{"requisitionId":"req-1","status":"open","headcount":1}`)
	f.do(t, http.MethodPost, "/mock/paylocity/v1/headcount-plans", `{"requisitionId":"req-1","status":"draft"}`)

	rec, plan := f.do(t, http.MethodGet, "/mock/paylocity/v1/headcount-plans/requisition/req-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mock-1", plan["id"])
	assert.Equal(t, "headcount_plan", f.mockEvents.events[0].detail.(EventDetail).Type)

	rec, _ = f.do(t, http.MethodDelete, "/mock/paylocity/v1/headcount-plans/mock-1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, f.paylocity.Len())

	_, plan = f.do(t, http.MethodGet, "/mock/paylocity/v1/headcount-plans/requisition/req-1", "")
	assert.Equal(t, "mock-2", plan["id"])
}

func TestProvider_InvalidBody(t *testing.T) {
	f := newFixture()

	rec, body := f.do(t, http.MethodPost, "/mock/clearcompany/v1/requisitions", `[1,2]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request body", body["error"])
	assert.Equal(t, 0, f.clearCompany.Len())
}
