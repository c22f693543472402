// Package scheduler implements the Tool Scheduler: a per-call state
// machine with a confirmation gate, trusted-tool fingerprinting, and
// strict cross-batch ordering.
package scheduler

import (
	"encoding/json"
	"time"

	"github.com/riverton-labs/sqlpilot/internal/tool"
)

// Status is one state in the ToolCall lifecycle (§3).
type Status string

const (
	StatusValidating       Status = "validating"
	StatusScheduled        Status = "scheduled"
	StatusAwaitingApproval Status = "awaiting_approval"
	StatusExecuting        Status = "executing"
	StatusSuccess          Status = "success"
	StatusError            Status = "error"
	StatusCancelled        Status = "cancelled"
)

// legalTransitions enumerates the transition table; any move not present
// here is rejected at runtime, per §9 "forbid unspecified transitions".
var legalTransitions = map[Status][]Status{
	StatusValidating:       {StatusScheduled, StatusAwaitingApproval, StatusError},
	StatusScheduled:        {StatusExecuting},
	StatusAwaitingApproval: {StatusScheduled, StatusCancelled},
	StatusExecuting:        {StatusSuccess, StatusError, StatusCancelled},
}

func isLegalTransition(from, to Status) bool {
	for _, allowed := range legalTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s is one of success/error/cancelled.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusError || s == StatusCancelled
}

// ToolCall is the lifecycle record for one requested tool invocation.
type ToolCall struct {
	RequestID string // turn-unique: shared by every call in a batch
	CallID    string // stable across retries
	Name      string
	Args      json.RawMessage

	Status Status

	StartedAt  time.Time
	FinishedAt time.Time

	Result       *tool.Result
	Err          error
	Confirmation *tool.ConfirmationDetails
}

// transition moves c to next, returning false (and leaving c unchanged) if
// the move is not in legalTransitions.
func (c *ToolCall) transition(next Status) bool {
	if !isLegalTransition(c.Status, next) {
		return false
	}
	c.Status = next
	return true
}

// snapshot returns a value copy safe to hand to observers (§5 "observers
// receive immutable snapshots").
func (c *ToolCall) snapshot() ToolCall {
	return *c
}
