// Package client implements the top-level session orchestrator (§4.8):
// the Turn/tool-batch/arbiter loop behind send_message_stream.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/riverton-labs/sqlpilot/internal/abort"
	"github.com/riverton-labs/sqlpilot/internal/arbiter"
	"github.com/riverton-labs/sqlpilot/internal/chat"
	"github.com/riverton-labs/sqlpilot/internal/providers"
	"github.com/riverton-labs/sqlpilot/internal/scheduler"
	"github.com/riverton-labs/sqlpilot/internal/tool"
	"github.com/riverton-labs/sqlpilot/internal/turn"
	"github.com/riverton-labs/sqlpilot/internal/usage"
)

// DefaultMaxSessionTurns bounds the number of Turn restarts within one
// send_message_stream call (§4.8 step 3).
const DefaultMaxSessionTurns = 25

// bridgePrompt restarts a Turn after a tool batch completes, standing in
// for the user in history without being one.
const bridgePrompt = "Here are the results of the requested tool calls."

// EventKind discriminates one chunk of the public TurnEvent stream.
type EventKind string

const (
	EventTextDelta        EventKind = "text_delta"
	EventToolCallRequest  EventKind = "tool_call_request"
	EventAwaitingApproval EventKind = "awaiting_approval"
	EventToolCallUpdate   EventKind = "tool_call_update"
	EventChatCompressed   EventKind = "chat_compressed"
	EventUsage            EventKind = "usage"
	EventMaxTurnsReached  EventKind = "max_turns_reached"
	EventError            EventKind = "error"
	EventDone             EventKind = "done"
)

// TurnEvent is one chunk of the stream send_message_stream returns.
type TurnEvent struct {
	Kind EventKind

	TextDelta   string
	ToolRequest scheduler.Request
	ToolCalls   []scheduler.ToolCall
	Confirm     *tool.ConfirmationDetails
	Compress    chat.CompressResult
	Usage       providers.Usage

	Err error
}

// Sink receives every TurnEvent alongside the caller's own channel — the
// same fan-out shape as a logging/metrics/plugin tap bolted onto a
// request path. Nil Sinks are dropped by NewMultiSink.
type Sink interface {
	Emit(ctx context.Context, e TurnEvent)
}

// MultiSink fans a TurnEvent out to every non-nil Sink.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink builds a MultiSink, discarding nil entries.
func NewMultiSink(sinks ...Sink) *MultiSink {
	filtered := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	return &MultiSink{sinks: filtered}
}

// Emit dispatches e to every sink.
func (m *MultiSink) Emit(ctx context.Context, e TurnEvent) {
	for _, s := range m.sinks {
		s.Emit(ctx, e)
	}
}

// Config bounds a Client's behavior.
type Config struct {
	MaxSessionTurns   int
	Model             string
	SystemInstruction string
}

func (c Config) normalized() Config {
	if c.MaxSessionTurns <= 0 {
		c.MaxSessionTurns = DefaultMaxSessionTurns
	}
	return c
}

// Client holds the session's Chat, Scheduler, Provider, and Compressor,
// and drives the Turn/tool-batch/arbiter loop on every user message.
type Client struct {
	config     Config
	provider   providers.Provider
	registry   *tool.Registry
	scheduler  *scheduler.Scheduler
	history    *chat.History
	compressor *chat.Compressor
	arbiter    *arbiter.Arbiter
	tracker    *usage.Tracker
	sink       Sink
}

// New builds a Client. sink may be nil.
func New(cfg Config, provider providers.Provider, registry *tool.Registry, sched *scheduler.Scheduler, history *chat.History, compressor *chat.Compressor, trk *usage.Tracker, sink Sink) *Client {
	if sink == nil {
		sink = NewMultiSink()
	}
	return &Client{
		config:     cfg.normalized(),
		provider:   provider,
		registry:   registry,
		scheduler:  sched,
		history:    history,
		compressor: compressor,
		arbiter:    arbiter.New(provider, cfg.Model),
		tracker:    trk,
		sink:       sink,
	}
}

// SendMessageStream runs one user turn to completion, restarting the Turn
// loop across tool batches and arbiter continuations, and returns a
// channel of TurnEvent that closes once the loop breaks (§4.8).
func (c *Client) SendMessageStream(ctx context.Context, userInput, sessionID string, sig *abort.Signal) <-chan TurnEvent {
	out := make(chan TurnEvent)

	go func() {
		defer close(out)

		sig.Reset()
		c.history.ReconcilePending()
		c.history.Add(chat.NewContent(chat.RoleUser, chat.TextPart(userInput)))

		restarts := 0
		bridged := false

		for {
			if restarts >= c.config.MaxSessionTurns {
				c.emit(ctx, out, TurnEvent{Kind: EventMaxTurnsReached})
				return
			}
			restarts++

			if should, _ := c.compressor.ShouldCompress(c.history); should {
				result, err := c.compressor.Compress(ctx, c.history)
				if err != nil {
					c.emit(ctx, out, TurnEvent{Kind: EventError, Err: fmt.Errorf("client: compress history: %w", err)})
					return
				}
				c.emit(ctx, out, TurnEvent{Kind: EventChatCompressed, Compress: result})
			}

			requestID := fmt.Sprintf("%s-%d-%d", sessionID, time.Now().UnixNano(), restarts)
			sysInstr := c.config.SystemInstruction
			if bridged {
				// The bridge prompt is synthetic context, not user text; it is
				// never appended to history (history already carries the tool
				// function_response parts that explain what happened).
				sysInstr = sysInstr + "\n\n" + bridgePrompt
				bridged = false
			}

			events, results := turn.Run(ctx, c.provider, c.registry, c.history, sig, requestID, sysInstr, c.config.Model)

			for ev := range events {
				if sig.Aborted() {
					continue
				}
				switch ev.Kind {
				case turn.EventTextDelta:
					c.emit(ctx, out, TurnEvent{Kind: EventTextDelta, TextDelta: ev.TextDelta})
				case turn.EventToolCallRequest:
					c.emit(ctx, out, TurnEvent{Kind: EventToolCallRequest, ToolRequest: ev.ToolRequest})
				case turn.EventUsage:
					c.recordUsage(sessionID, ev.Usage)
					c.emit(ctx, out, TurnEvent{Kind: EventUsage, Usage: ev.Usage})
				case turn.EventError:
					c.emit(ctx, out, TurnEvent{Kind: EventError, Err: ev.Err})
					if ev.ErrKind == providers.ErrFatal {
						return
					}
				}
			}

			result := <-results

			if sig.Aborted() {
				c.emit(ctx, out, TurnEvent{Kind: EventError, Err: context.Canceled})
				return
			}

			if len(result.ToolCalls) == 0 {
				decision, err := c.arbiter.Decide(ctx, c.history.Curated())
				if err != nil {
					c.emit(ctx, out, TurnEvent{Kind: EventError, Err: fmt.Errorf("client: arbiter: %w", err)})
					return
				}
				if decision.NextSpeaker == arbiter.SpeakerUser {
					break
				}
				continue
			}

			c.scheduler.SetCallbacks(
				func(all []scheduler.ToolCall) {
					c.emit(ctx, out, TurnEvent{Kind: EventToolCallUpdate, ToolCalls: all})
				},
				nil,
				func(call scheduler.ToolCall, details tool.ConfirmationDetails) {
					c.emit(ctx, out, TurnEvent{Kind: EventAwaitingApproval, ToolCalls: []scheduler.ToolCall{call}, Confirm: &details})
				},
			)

			batch, err := c.scheduler.Schedule(ctx, result.ToolCalls, sig)
			if err != nil {
				c.emit(ctx, out, TurnEvent{Kind: EventError, Err: fmt.Errorf("client: schedule tool batch: %w", err)})
				return
			}

			userRejected := false
			for _, call := range batch {
				if call.Status == scheduler.StatusCancelled {
					userRejected = true
				}
			}

			c.appendToolResults(batch)

			if userRejected {
				break
			}
			bridged = true
		}

		c.emit(ctx, out, TurnEvent{Kind: EventDone})
	}()

	return out
}

// appendToolResults folds a completed batch's outcomes back into history
// as function_response parts, preserving the request order (§4.8 step 2b
// "append ... with strict ordering").
func (c *Client) appendToolResults(batch []scheduler.ToolCall) {
	parts := make([]chat.Part, 0, len(batch))
	for _, call := range batch {
		var text string
		switch call.Status {
		case scheduler.StatusSuccess:
			if call.Result != nil {
				text = call.Result.LLMContent
			}
		case scheduler.StatusCancelled:
			text = "Tool call was cancelled by the user"
		default:
			text = "Tool call failed"
			if call.Err != nil {
				text = call.Err.Error()
			} else if call.Result != nil && call.Result.LLMContent != "" {
				text = call.Result.LLMContent
			}
		}
		content, err := json.Marshal(text)
		if err != nil {
			content = []byte(`"tool response could not be encoded"`)
		}
		parts = append(parts, chat.FunctionResponsePart(call.CallID, call.Name, content))
	}
	if len(parts) > 0 {
		c.history.Add(chat.NewContent(chat.RoleTool, parts...))
	}
}

func (c *Client) recordUsage(sessionID string, u providers.Usage) {
	if c.tracker == nil {
		return
	}
	c.tracker.Record(usage.Record{
		Provider:  c.provider.Name(),
		Model:     u.Model,
		ChannelID: sessionID,
		Usage: usage.Usage{
			InputTokens:  int64(u.PromptTokens),
			OutputTokens: int64(u.CompletionTokens),
		},
		Timestamp: time.Now(),
	})
}

func (c *Client) emit(ctx context.Context, out chan<- TurnEvent, e TurnEvent) {
	c.sink.Emit(ctx, e)
	select {
	case out <- e:
	case <-ctx.Done():
	}
}
