package sync

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wI2L/jsondiff"
)

const (
	// percentage constants for calculations
	percentageMultiplier = 100

	defaultMaxAuditEvents = 1000
)

// Audited operations
const (
	OperationCreate       = "create"
	OperationUpdate       = "update"
	OperationStatusSync   = "requisition_status"
	OperationHireBackfill = "candidate_hired"
)

// AuditEvent represents a single audit trail event
type AuditEvent struct {
	ID            string         `json:"id"`
	Timestamp     time.Time      `json:"timestamp"`
	Operation     string         `json:"operation"`
	RequisitionID string         `json:"requisition_id,omitempty"`
	Success       bool           `json:"success"`
	Error         string         `json:"error,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
	BeforeState   any            `json:"before_state,omitempty"`
	AfterState    any            `json:"after_state,omitempty"`
	Changes       jsondiff.Patch `json:"changes,omitempty"`
	Duration      time.Duration  `json:"duration,omitempty"`
}

// AuditTrail keeps the most recent sync events in memory
type AuditTrail struct {
	events     []*AuditEvent
	eventIndex map[string]*AuditEvent // ID -> Event for fast lookups
	mutex      sync.RWMutex
	logger     *slog.Logger
	maxEvents  int
}

// AuditQuery represents query parameters for searching audit events
type AuditQuery struct {
	Operation     string     `json:"operation,omitempty"`
	RequisitionID string     `json:"requisition_id,omitempty"`
	Success       *bool      `json:"success,omitempty"`
	StartTime     *time.Time `json:"start_time,omitempty"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	Limit         int        `json:"limit,omitempty"`
	Offset        int        `json:"offset,omitempty"`
}

// AuditStats provides statistics about audit events
type AuditStats struct {
	TotalEvents       int            `json:"total_events"`
	EventsByOperation map[string]int `json:"events_by_operation"`
	SuccessRate       float64        `json:"success_rate"`
	ErrorRate         float64        `json:"error_rate"`
	AverageDuration   string         `json:"average_duration"`
	OldestEvent       *time.Time     `json:"oldest_event,omitempty"`
	NewestEvent       *time.Time     `json:"newest_event,omitempty"`
}

// NewAuditTrail creates a new audit trail
func NewAuditTrail(logger *slog.Logger, maxEvents int) *AuditTrail {
	if maxEvents <= 0 {
		maxEvents = defaultMaxAuditEvents
	}

	return &AuditTrail{
		events:     make([]*AuditEvent, 0),
		eventIndex: make(map[string]*AuditEvent),
		logger:     logger,
		maxEvents:  maxEvents,
	}
}

// RecordEvent records a new audit event. When both states are set the
// RFC 6902 difference between them is stored in Changes.
func (at *AuditTrail) RecordEvent(event *AuditEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Changes == nil && event.BeforeState != nil && event.AfterState != nil {
		changes, err := jsondiff.Compare(event.BeforeState, event.AfterState)
		if err != nil {
			at.logger.Warn("Failed to diff audit states", "event_id", event.ID, "error", err)
		} else {
			event.Changes = changes
		}
	}

	at.mutex.Lock()
	defer at.mutex.Unlock()

	at.events = append(at.events, event)
	at.eventIndex[event.ID] = event

	// Enforce maximum events limit
	if len(at.events) > at.maxEvents {
		oldestEvent := at.events[0]
		at.events = at.events[1:]
		delete(at.eventIndex, oldestEvent.ID)
	}

	at.logger.Debug("Recorded audit event",
		"event_id", event.ID,
		"operation", event.Operation,
		"requisition_id", event.RequisitionID,
		"success", event.Success)
}

// GetEvent retrieves a specific audit event by ID
func (at *AuditTrail) GetEvent(eventID string) (*AuditEvent, error) {
	at.mutex.RLock()
	defer at.mutex.RUnlock()

	event, exists := at.eventIndex[eventID]
	if !exists {
		return nil, fmt.Errorf("audit event with ID %s not found", eventID)
	}

	eventCopy := *event
	return &eventCopy, nil
}

// QueryEvents searches for audit events, newest first
func (at *AuditTrail) QueryEvents(query *AuditQuery) []*AuditEvent {
	at.mutex.RLock()
	defer at.mutex.RUnlock()

	var matches []*AuditEvent

	for _, event := range at.events {
		if eventMatchesQuery(event, query) {
			eventCopy := *event
			matches = append(matches, &eventCopy)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Timestamp.After(matches[j].Timestamp)
	})

	if query.Offset > 0 {
		if query.Offset >= len(matches) {
			return nil
		}
		matches = matches[query.Offset:]
	}

	if query.Limit > 0 && query.Limit < len(matches) {
		matches = matches[:query.Limit]
	}

	return matches
}

func eventMatchesQuery(event *AuditEvent, query *AuditQuery) bool {
	if query.Operation != "" && event.Operation != query.Operation {
		return false
	}
	if query.RequisitionID != "" && event.RequisitionID != query.RequisitionID {
		return false
	}
	if query.Success != nil && event.Success != *query.Success {
		return false
	}
	if query.StartTime != nil && event.Timestamp.Before(*query.StartTime) {
		return false
	}
	if query.EndTime != nil && event.Timestamp.After(*query.EndTime) {
		return false
	}
	return true
}

// GetStats returns statistics about the audit trail
func (at *AuditTrail) GetStats() *AuditStats {
	at.mutex.RLock()
	defer at.mutex.RUnlock()

	stats := &AuditStats{
		TotalEvents:       len(at.events),
		EventsByOperation: make(map[string]int),
	}

	if stats.TotalEvents == 0 {
		return stats
	}

	var (
		successCount  int
		totalDuration time.Duration
		durationCount int
	)

	for _, event := range at.events {
		stats.EventsByOperation[event.Operation]++

		if event.Success {
			successCount++
		}
		if event.Duration > 0 {
			totalDuration += event.Duration
			durationCount++
		}

		ts := event.Timestamp
		if stats.OldestEvent == nil || ts.Before(*stats.OldestEvent) {
			stats.OldestEvent = &ts
		}
		if stats.NewestEvent == nil || ts.After(*stats.NewestEvent) {
			stats.NewestEvent = &ts
		}
	}

	stats.SuccessRate = float64(successCount) / float64(stats.TotalEvents) * percentageMultiplier
	stats.ErrorRate = percentageMultiplier - stats.SuccessRate

	if durationCount > 0 {
		avgDuration := totalDuration / time.Duration(durationCount)
		stats.AverageDuration = avgDuration.Round(time.Millisecond).String()
	}

	return stats
}

// PurgeOldEvents removes events older than the specified duration
func (at *AuditTrail) PurgeOldEvents(olderThan time.Duration) int {
	at.mutex.Lock()
	defer at.mutex.Unlock()

	cutoff := time.Now().Add(-olderThan)
	var newEvents []*AuditEvent
	purged := 0

	for _, event := range at.events {
		if event.Timestamp.After(cutoff) {
			newEvents = append(newEvents, event)
		} else {
			delete(at.eventIndex, event.ID)
			purged++
		}
	}

	at.events = newEvents

	if purged > 0 {
		at.logger.Info("Purged old audit events",
			"purged_count", purged,
			"older_than", olderThan)
	}

	return purged
}
