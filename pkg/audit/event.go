// Package audit sequences tenant reconciliation against a device and keeps
// the change event log. The orchestrator owns the lease, the two-pass
// Common-partition convention and partial-failure aggregation; the event
// logger records what was done, by whom, and whether it stuck.
package audit

import (
	"fmt"
	"time"
)

// Event is one auditable reconciliation event, one per tenant per request.
type Event struct {
	ID          string        `json:"id"`
	Timestamp   time.Time     `json:"timestamp"`
	User        string        `json:"user"`
	Device      string        `json:"device"`
	RequestID   string        `json:"request_id,omitempty"`
	Tenant      string        `json:"tenant,omitempty"`
	Operation   string        `json:"operation"`
	Commands    int           `json:"commands"`
	Success     bool          `json:"success"`
	Error       string        `json:"error,omitempty"`
	ExecuteMode bool          `json:"execute_mode"` // true if -x was used
	DryRun      bool          `json:"dry_run"`
	Duration    time.Duration `json:"duration"`
	ClientIP    string        `json:"client_ip,omitempty"`
}

// Filter defines criteria for querying audit events
type Filter struct {
	Device      string
	User        string
	Tenant      string
	Operation   string
	StartTime   time.Time
	EndTime     time.Time
	SuccessOnly bool
	FailureOnly bool
	Limit       int
	Offset      int
}

// NewEvent creates a new audit event
func NewEvent(user, device, operation string) *Event {
	return &Event{
		ID:        generateID(),
		Timestamp: time.Now(),
		User:      user,
		Device:    device,
		Operation: operation,
	}
}

// WithTenant sets the tenant name
func (e *Event) WithTenant(tenant string) *Event {
	e.Tenant = tenant
	return e
}

// WithRequest sets the request id
func (e *Event) WithRequest(requestID string) *Event {
	e.RequestID = requestID
	return e
}

// WithCommands records how many device commands the script carried
func (e *Event) WithCommands(n int) *Event {
	e.Commands = n
	return e
}

// WithSuccess marks the event as successful
func (e *Event) WithSuccess() *Event {
	e.Success = true
	return e
}

// WithError marks the event as failed
func (e *Event) WithError(err error) *Event {
	e.Success = false
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// WithDuration sets the operation duration
func (e *Event) WithDuration(d time.Duration) *Event {
	e.Duration = d
	return e
}

// WithExecuteMode marks if execute mode was used
func (e *Event) WithExecuteMode(execute bool) *Event {
	e.ExecuteMode = execute
	e.DryRun = !execute
	return e
}

func generateID() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}
