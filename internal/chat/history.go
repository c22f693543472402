package chat

import "sync"

// History is an append-only ordered sequence of Content. It derives two
// views: Comprehensive (everything ever appended) and Curated (invalid
// model turns filtered out). Mutated only by the Client on a single
// logical thread of control; reads obtain a snapshot copy.
type History struct {
	mu      sync.RWMutex
	entries []Content
}

// NewHistory returns an empty History.
func NewHistory() *History {
	return &History{}
}

// Add appends a Content entry.
func (h *History) Add(c Content) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, c)
}

// Clear removes all entries.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = nil
}

// Replace swaps the entire comprehensive history for new content, used
// by compression to splice in a summary prefix.
func (h *History) Replace(newHistory []Content) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append([]Content(nil), newHistory...)
}

// Comprehensive returns a snapshot of every entry ever appended.
func (h *History) Comprehensive() []Content {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Content, len(h.entries))
	copy(out, h.entries)
	return out
}

// GetHistory returns either the curated or comprehensive view.
func (h *History) GetHistory(curated bool) []Content {
	if curated {
		return h.Curated()
	}
	return h.Comprehensive()
}

// Curated returns the comprehensive history minus invalid model turns:
// a model turn is invalid if it is empty, or if every function_call it
// carries was answered only with a synthesized placeholder response
// (cancelled/pending, no useful output) and it carries no text. Curation
// never reorders; it only removes, and is idempotent.
func (h *History) Curated() []Content {
	all := h.Comprehensive()

	placeholderIDs := make(map[string]bool)
	answeredIDs := make(map[string]bool)
	for _, c := range all {
		for _, p := range c.FunctionResponses() {
			if p.ResponseIsPlaceholder {
				placeholderIDs[p.ResponseID] = true
			} else {
				answeredIDs[p.ResponseID] = true
			}
		}
	}

	out := make([]Content, 0, len(all))
	for _, c := range all {
		if c.Role == RoleModel && isInvalidModelTurn(c, placeholderIDs, answeredIDs) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func isInvalidModelTurn(c Content, placeholderIDs, answeredIDs map[string]bool) bool {
	if c.IsEmpty() {
		return true
	}
	if !c.IsOnlyUnresolvedCall() {
		return false
	}
	for _, call := range c.FunctionCalls() {
		if answeredIDs[call.CallID] {
			return false
		}
		if !placeholderIDs[call.CallID] {
			// No response observed at all yet (still in flight): not
			// invalid, the turn may still resolve.
			return false
		}
	}
	return true
}

// PendingCallIDs returns the call IDs in history that have no matching
// function_response yet, in the order their function_call parts appear.
// Used to synthesize placeholders before an append that would otherwise
// desynchronize strict-pair providers.
func (h *History) PendingCallIDs() []string {
	all := h.Comprehensive()
	answered := make(map[string]bool)
	for _, c := range all {
		for _, p := range c.FunctionResponses() {
			answered[p.ResponseID] = true
		}
	}
	var pending []string
	for _, c := range all {
		for _, p := range c.FunctionCalls() {
			if !answered[p.CallID] {
				pending = append(pending, p.CallID)
			}
		}
	}
	return pending
}

// ReconcilePending appends a synthesized placeholder function_response for
// every call still missing one, as a single role=tool Content. Called
// before any new append that would otherwise violate the pairing
// invariant (e.g. on abort, or before a bridge prompt with a stale batch).
func (h *History) ReconcilePending() {
	h.mu.Lock()
	defer h.mu.Unlock()

	answered := make(map[string]bool)
	type pendingCall struct{ id, name string }
	var pending []pendingCall
	for _, c := range h.entries {
		for _, p := range c.FunctionResponses() {
			answered[p.ResponseID] = true
		}
	}
	for _, c := range h.entries {
		for _, p := range c.FunctionCalls() {
			if !answered[p.CallID] {
				pending = append(pending, pendingCall{p.CallID, p.CallName})
			}
		}
	}
	if len(pending) == 0 {
		return
	}
	parts := make([]Part, 0, len(pending))
	for _, pc := range pending {
		parts = append(parts, PlaceholderResponsePart(pc.id, pc.name))
	}
	h.entries = append(h.entries, NewContent(RoleTool, parts...))
}
