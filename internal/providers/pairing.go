package providers

import "github.com/riverton-labs/sqlpilot/internal/chat"

// StrictPair reorders history for providers that reject an assistant
// message carrying tool calls unless each call is immediately followed by
// its matching tool-result message (OpenAI, Anthropic; §4.1 step 1-3).
//
// Every function_call-bearing model Content is immediately followed, in
// the returned slice, by a single role=tool Content carrying one
// function_response part per call, in call order — using the real
// response if one exists anywhere in history, or a synthesized
// placeholder otherwise. The original tool-result Content further down
// history (which would otherwise desynchronize the pair once calls are
// reordered next to their model turn) is dropped once its responses have
// been re-emitted. Any intervening bridge prompt naturally ends up after
// the reordered pair, which is the only placement a strict-pair provider
// accepts.
func StrictPair(history []chat.Content) []chat.Content {
	responses := make(map[string]chat.Part)
	for _, c := range history {
		for _, p := range c.FunctionResponses() {
			responses[p.ResponseID] = p
		}
	}

	handled := make(map[string]bool)
	out := make([]chat.Content, 0, len(history))

	for _, c := range history {
		if c.Role == chat.RoleModel {
			out = append(out, c)
			calls := c.FunctionCalls()
			if len(calls) == 0 {
				continue
			}
			parts := make([]chat.Part, 0, len(calls))
			for _, call := range calls {
				if resp, ok := responses[call.CallID]; ok {
					parts = append(parts, resp)
				} else {
					parts = append(parts, chat.PlaceholderResponsePart(call.CallID, call.CallName))
				}
				handled[call.CallID] = true
			}
			out = append(out, chat.Content{Role: chat.RoleTool, Parts: parts})
			continue
		}

		if c.Role == chat.RoleTool && len(c.FunctionResponses()) > 0 {
			allHandled := true
			for _, p := range c.FunctionResponses() {
				if !handled[p.ResponseID] {
					allHandled = false
					break
				}
			}
			if allHandled {
				continue
			}
		}

		out = append(out, c)
	}
	return out
}

// GeminiPassthrough normalizes history for the tolerant Gemini wire
// protocol: field-name mapping happens in the provider adapter itself,
// here we only drop entries with no parts (§4.1 "removal of empty
// parts").
func GeminiPassthrough(history []chat.Content) []chat.Content {
	out := make([]chat.Content, 0, len(history))
	for _, c := range history {
		if len(c.Parts) == 0 {
			continue
		}
		out = append(out, c)
	}
	return out
}
