package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/riverton-labs/sqlpilot/internal/abort"
	"github.com/riverton-labs/sqlpilot/internal/client"
	"github.com/riverton-labs/sqlpilot/internal/scheduler"
	"github.com/riverton-labs/sqlpilot/internal/tool"
	"github.com/riverton-labs/sqlpilot/internal/tools"
)

// runREPL reads user turns from in and prints the Client's streamed
// response to out, asking on stdin for any tool call that needs
// confirmation, until in is exhausted or the user types exit/quit.
func runREPL(ctx context.Context, sess *session, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	sessionID := uuid.NewString()
	sig := abort.New()

	fmt.Fprintln(out, "sqlpilot ready. Type a message, or 'exit' to quit.")

	for {
		fmt.Fprint(out, "\n> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		events := sess.client.SendMessageStream(ctx, line, sessionID, sig)
		if err := drain(sess, events, scanner, out); err != nil {
			fmt.Fprintf(out, "\nerror: %v\n", err)
		}
	}
}

// drain consumes one turn's event stream, printing text deltas as they
// arrive and pausing on awaiting_approval to ask the user for a decision.
func drain(sess *session, events <-chan client.TurnEvent, scanner *bufio.Scanner, out io.Writer) error {
	for ev := range events {
		switch ev.Kind {
		case client.EventTextDelta:
			fmt.Fprint(out, ev.TextDelta)
		case client.EventToolCallRequest:
			fmt.Fprintln(out, "\n"+summarizeToolRequest(ev.ToolRequest))
		case client.EventAwaitingApproval:
			if len(ev.ToolCalls) == 0 || ev.Confirm == nil {
				continue
			}
			call := ev.ToolCalls[0]
			decision := askConfirmation(out, scanner, call, *ev.Confirm)
			sess.scheduler.HandleConfirmation(call.CallID, decision)
		case client.EventChatCompressed:
			if ev.Compress.Compressed {
				fmt.Fprintf(out, "\n[history compressed: %d -> %d estimated tokens]\n", ev.Compress.TokensBefore, ev.Compress.TokensAfter)
			}
		case client.EventMaxTurnsReached:
			fmt.Fprintln(out, "\n[session hit its turn limit before yielding back to you]")
		case client.EventError:
			return ev.Err
		case client.EventDone:
			fmt.Fprintln(out)
		}
	}
	return nil
}

// summarizeToolRequest formats a tool call for the REPL's transcript using
// the shared display config (emoji, label, and a trimmed argument detail)
// rather than printing the raw tool name and JSON args.
func summarizeToolRequest(req scheduler.Request) string {
	var args map[string]interface{}
	_ = json.Unmarshal(req.Args, &args)
	display := tools.ResolveToolDisplay(req.Name, args, "")
	return tools.FormatToolSummary(display)
}

// askConfirmation prints a tool call's ConfirmationDetails and blocks on
// stdin for y/n/always.
func askConfirmation(out io.Writer, scanner *bufio.Scanner, call scheduler.ToolCall, details tool.ConfirmationDetails) scheduler.Confirmation {
	fmt.Fprintf(out, "\n[%s] %s\n%s\n", details.RiskLevel, details.Title, details.Message)
	if len(details.Details) > 0 {
		if b, err := json.MarshalIndent(details.Details, "", "  "); err == nil {
			fmt.Fprintln(out, string(b))
		}
	}
	fmt.Fprintf(out, "Proceed with %s? [y/N/always]: ", summarizeToolRequest(scheduler.Request{Name: call.Name, Args: call.Args}))

	if !scanner.Scan() {
		return scheduler.Confirmation{Outcome: scheduler.OutcomeCancel}
	}
	switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
	case "y", "yes":
		return scheduler.Confirmation{Outcome: scheduler.OutcomeProceedOnce}
	case "always", "a":
		return scheduler.Confirmation{Outcome: scheduler.OutcomeProceedAlways}
	default:
		return scheduler.Confirmation{Outcome: scheduler.OutcomeCancel}
	}
}
