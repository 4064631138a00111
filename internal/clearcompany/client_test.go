package clearcompany

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlet99/requisition-sync/internal/apiclient"
	"github.com/atlet99/requisition-sync/internal/errors"
	"github.com/atlet99/requisition-sync/internal/requisition"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	api := apiclient.New(apiclient.Config{
		Provider:         ProviderName,
		BaseURL:          srv.URL,
		APIKey:           "cc-key",
		RateLimit:        100,
		RetryMaxAttempts: 1,
		RetryBaseDelay:   time.Millisecond,
	}, testLogger())
	return NewClient(api, false, testLogger())
}

func TestClient_CreateRequisition(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/requisitions", r.URL.Path)

		var in requisition.Requisition
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		in.ID = "cc-123"
		_ = json.NewEncoder(w).Encode(in)
	})

	created, err := client.CreateRequisition(context.Background(), &requisition.Requisition{Title: "Engineer", Status: "open"})
	require.NoError(t, err)
	assert.Equal(t, "cc-123", created.ID)
	assert.Equal(t, "Engineer", created.Title)
}

func TestClient_CreateRequisition_Failure(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := client.CreateRequisition(context.Background(), &requisition.Requisition{Title: "Engineer"})
	require.Error(t, err)
	se, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeIntegration, se.Code)
	assert.Equal(t, "Failed to create requisition in ClearCompany", se.Message)
}

func TestClient_GetRequisition(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/requisitions/known":
			_, _ = w.Write([]byte(`{"title":"Engineer","status":"open"}`))
		default:
			http.Error(w, `{"error":"Requisition not found"}`, http.StatusNotFound)
		}
	})

	found, err := client.GetRequisition(context.Background(), "known")
	require.NoError(t, err)
	assert.Equal(t, "known", found.ID)
	assert.Equal(t, "Engineer", found.Title)

	missing, err := client.GetRequisition(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestClient_UpdateRequisition_SendsOnlySuppliedFields(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/v1/requisitions/req-1", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"status": "closed"}, body)

		_, _ = w.Write([]byte(`{"id":"req-1","title":"Engineer","status":"closed"}`))
	})

	status := "closed"
	updated, err := client.UpdateRequisition(context.Background(), "req-1", &requisition.Patch{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, "closed", updated.Status)
	assert.Equal(t, "Engineer", updated.Title)
}

func TestClient_DryRun(t *testing.T) {
	client := NewClient(nil, true, testLogger())
	ctx := context.Background()

	created, err := client.CreateRequisition(ctx, &requisition.Requisition{ID: "local-1", Title: "Engineer"})
	require.NoError(t, err)
	assert.Equal(t, "local-1", created.ID)

	got, err := client.GetRequisition(ctx, "local-1")
	require.NoError(t, err)
	assert.Equal(t, &requisition.Requisition{ID: "local-1", Title: "Stubbed Requisition", Status: "open"}, got)

	status := "filled"
	updated, err := client.UpdateRequisition(ctx, "local-1", &requisition.Patch{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, &requisition.Requisition{ID: "local-1", Status: "filled"}, updated)
}
