// Package turn implements one model round-trip (§4.6): open a provider
// stream over the curated history, yield events lazily, and flush the
// accumulated model output back into Chat as a single message.
package turn

import (
	"context"
	"fmt"

	"github.com/riverton-labs/sqlpilot/internal/abort"
	"github.com/riverton-labs/sqlpilot/internal/chat"
	"github.com/riverton-labs/sqlpilot/internal/providers"
	"github.com/riverton-labs/sqlpilot/internal/scheduler"
	"github.com/riverton-labs/sqlpilot/internal/tool"
)

// MaxResponseTextSize bounds accumulated response text per turn (1MB),
// carried over unchanged from the teacher as a DOS guard.
const MaxResponseTextSize = 1 << 20

// MaxToolCallsPerIteration bounds function calls registered in one turn.
const MaxToolCallsPerIteration = 100

// EventKind discriminates one chunk of a Turn's output stream.
type EventKind string

const (
	EventTextDelta       EventKind = "text_delta"
	EventToolCallRequest EventKind = "tool_call_request"
	EventUsage           EventKind = "usage"
	EventError           EventKind = "error"
	EventDone            EventKind = "done"
)

// Event is one chunk yielded by Run.
type Event struct {
	Kind EventKind

	TextDelta   string
	ToolRequest scheduler.Request
	Usage       providers.Usage

	ErrKind providers.ErrKind
	Err     error
}

// Result is what Run returns once the stream ends: the flushed model
// Content (already appended to history) and the tool calls it registered,
// in stream order, sharing one request_id (§4.6 step 4).
type Result struct {
	RequestID string
	ToolCalls []scheduler.Request
	HadText   bool
}

// Run executes one round-trip: it does not append the user's input (the
// Client does that before calling Run, per step 1) and it does not wait
// for tool execution (the Client's job, per the closing line of §4.6).
func Run(ctx context.Context, provider providers.Provider, registry *tool.Registry, h *chat.History, sig *abort.Signal, requestID, systemInstruction, model string) (<-chan Event, <-chan Result) {
	events := make(chan Event)
	results := make(chan Result, 1)

	go func() {
		defer close(events)
		defer close(results)

		runCtx, cancel := sig.Context(ctx)
		defer cancel()

		req := providers.TurnRequest{
			History:           h.Curated(),
			Tools:             registry.Schemas(),
			SystemInstruction: systemInstruction,
			Model:             model,
		}

		stream, err := providers.RetryStreamStart(runCtx, func(int) (<-chan providers.Event, error) {
			return provider.StreamTurn(runCtx, req)
		})
		if err != nil {
			errKind := providers.ErrFatal
			if providers.IsRetryable(err) {
				errKind = providers.ErrTransient
			}
			events <- Event{Kind: EventError, ErrKind: errKind, Err: err}
			return
		}

		var parts []chat.Part
		var calls []scheduler.Request
		textLen := 0

		for ev := range stream {
			select {
			case <-runCtx.Done():
				events <- Event{Kind: EventError, ErrKind: providers.ErrFatal, Err: runCtx.Err()}
				return
			default:
			}

			switch ev.Kind {
			case providers.EventTextDelta:
				textLen += len(ev.TextDelta)
				if textLen > MaxResponseTextSize {
					err := fmt.Errorf("turn: response text exceeds maximum size of %d bytes", MaxResponseTextSize)
					events <- Event{Kind: EventError, ErrKind: providers.ErrFatal, Err: err}
					return
				}
				parts = append(parts, chat.TextPart(ev.TextDelta))
				events <- Event{Kind: EventTextDelta, TextDelta: ev.TextDelta}

			case providers.EventFunctionCalls:
				for _, fc := range ev.FunctionCalls {
					if len(calls) >= MaxToolCallsPerIteration {
						err := fmt.Errorf("turn: tool calls exceed maximum of %d per iteration", MaxToolCallsPerIteration)
						events <- Event{Kind: EventError, ErrKind: providers.ErrFatal, Err: err}
						return
					}
					parts = append(parts, chat.FunctionCallPart(fc.ID, fc.Name, fc.Args))
					reqCall := scheduler.Request{RequestID: requestID, CallID: fc.ID, Name: fc.Name, Args: fc.Args}
					calls = append(calls, reqCall)
					events <- Event{Kind: EventToolCallRequest, ToolRequest: reqCall}
				}

			case providers.EventUsage:
				events <- Event{Kind: EventUsage, Usage: ev.Usage}

			case providers.EventErr:
				events <- Event{Kind: EventError, ErrKind: ev.ErrKind, Err: ev.Err}
				if ev.ErrKind == providers.ErrFatal {
					return
				}

			case providers.EventDone:
				// handled after the range loop ends (channel close)
			}
		}

		hadText := false
		for _, p := range parts {
			if p.Kind == chat.PartText && p.Text != "" {
				hadText = true
			}
		}
		if len(parts) > 0 {
			h.Add(chat.NewContent(chat.RoleModel, parts...))
		}

		events <- Event{Kind: EventDone}
		results <- Result{RequestID: requestID, ToolCalls: calls, HadText: hadText}
	}()

	return events, results
}
