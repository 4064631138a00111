package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/atlet99/requisition-sync/internal/errors"
	"github.com/atlet99/requisition-sync/internal/events"
	"github.com/atlet99/requisition-sync/internal/requisition"
	reqsync "github.com/atlet99/requisition-sync/internal/sync"
	"github.com/atlet99/requisition-sync/internal/timeutil"
	"github.com/atlet99/requisition-sync/internal/webhook"
)

const (
	webhookSuccessMessage = "Webhook processed successfully"
	invalidEventMessage   = "Invalid event payload"

	defaultAuditLimit = 50
	maxAuditLimit     = 1000
)

// dataEnvelope wraps every successful response body
type dataEnvelope struct {
	Data any `json:"data"`
}

type messageBody struct {
	Message string `json:"message"`
}

type healthBody struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) writeData(w http.ResponseWriter, status int, data any) {
	if err := errors.WriteJSON(w, status, dataEnvelope{Data: data}); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}

// readBody reads the capped request body. An oversized body is a validation
// failure with message.
func readBody(r *http.Request, message string) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, errors.NewValidationError(message, err.Error())
	}
	return body, nil
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r, requisition.InvalidBodyMessage)
	if err != nil {
		s.errHandler.HandleError(w, r, err)
		return
	}

	input, err := requisition.ParseCreate(body)
	if err != nil {
		s.errHandler.HandleError(w, r, err)
		return
	}

	created, err := s.deps.Requisitions.Create(r.Context(), input)
	if err != nil {
		s.errHandler.HandleError(w, r, err)
		return
	}

	s.writeData(w, http.StatusCreated, created)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r, requisition.InvalidBodyMessage)
	if err != nil {
		s.errHandler.HandleError(w, r, err)
		return
	}

	patch, err := requisition.ParsePatch(body)
	if err != nil {
		s.errHandler.HandleError(w, r, err)
		return
	}

	updated, err := s.deps.Requisitions.Update(r.Context(), mux.Vars(r)["id"], patch)
	if err != nil {
		s.errHandler.HandleError(w, r, err)
		return
	}

	s.writeData(w, http.StatusOK, updated)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	found, err := s.deps.Requisitions.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.errHandler.HandleError(w, r, err)
		return
	}
	s.writeData(w, http.StatusOK, found)
}

func (s *Server) webhookHandler(route webhook.Route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := readBody(r, webhook.InvalidPayloadMessage)
		if err != nil {
			s.errHandler.HandleError(w, r, err)
			return
		}

		event, err := webhook.DecodeEvent(body)
		if err != nil {
			s.errHandler.HandleError(w, r, err)
			return
		}

		if _, err := s.deps.Events.HandleWebhook(r.Context(), route, event); err != nil {
			s.errHandler.HandleError(w, r, err)
			return
		}

		s.writeData(w, http.StatusOK, messageBody{Message: webhookSuccessMessage})
	}
}

// handleBusEvent is the HTTP entry point for bus deliveries. Only an
// undecodable body fails; every decoded event is acknowledged with 200.
func (s *Server) handleBusEvent(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r, invalidEventMessage)
	if err != nil {
		s.errHandler.HandleError(w, r, err)
		return
	}

	var event events.BusEvent
	if err := json.Unmarshal(body, &event); err != nil {
		s.errHandler.HandleError(w, r, errors.NewValidationError(invalidEventMessage, err.Error()))
		return
	}

	s.writeData(w, http.StatusOK, s.deps.Events.HandleBusEvent(r.Context(), event))
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	query := &reqsync.AuditQuery{
		Operation:     r.URL.Query().Get("operation"),
		RequisitionID: r.URL.Query().Get("requisitionId"),
		Limit:         defaultAuditLimit,
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxAuditLimit {
			s.errHandler.HandleError(w, r, errors.NewValidationError("Invalid limit",
				"limit must be an integer between 1 and "+strconv.Itoa(maxAuditLimit)))
			return
		}
		query.Limit = limit
	}

	found := s.deps.Audit.QueryEvents(query)
	if found == nil {
		found = []*reqsync.AuditEvent{}
	}
	s.writeData(w, http.StatusOK, found)
}

func (s *Server) handleAuditStats(w http.ResponseWriter, _ *http.Request) {
	s.writeData(w, http.StatusOK, s.deps.Audit.GetStats())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := healthBody{Status: "ok", Timestamp: timeutil.Format(time.Now())}
	if err := errors.WriteJSON(w, http.StatusOK, body); err != nil {
		s.logger.Error("Failed to encode health response", "error", err)
	}
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.errHandler.HandleError(w, r, errors.NewNotFoundError("Route not found"))
}
