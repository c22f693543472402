// Package chat implements the conversation record: ordered Content/Part
// history, curation, and threshold-triggered compression.
package chat

import "time"

// Role identifies the speaker of a Content entry.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
	RoleTool  Role = "tool"
)

// PartKind discriminates the variants of Part.
type PartKind string

const (
	PartText             PartKind = "text"
	PartFunctionCall     PartKind = "function_call"
	PartFunctionResponse PartKind = "function_response"
)

// Part is exactly one of text, function_call, or function_response.
// Kind determines which fields are populated; the zero value of the
// other fields is never meaningful.
type Part struct {
	Kind PartKind

	// Text is set when Kind == PartText.
	Text string

	// FunctionCall fields, set when Kind == PartFunctionCall.
	CallID   string
	CallName string
	CallArgs []byte // raw JSON

	// FunctionResponse fields, set when Kind == PartFunctionResponse.
	ResponseID       string
	ResponseName     string
	ResponseContent  []byte // raw JSON
	ResponseIsPlaceholder bool
}

// TextPart builds a text Part.
func TextPart(text string) Part {
	return Part{Kind: PartText, Text: text}
}

// FunctionCallPart builds a function_call Part.
func FunctionCallPart(id, name string, args []byte) Part {
	return Part{Kind: PartFunctionCall, CallID: id, CallName: name, CallArgs: args}
}

// FunctionResponsePart builds a function_response Part.
func FunctionResponsePart(id, name string, content []byte) Part {
	return Part{Kind: PartFunctionResponse, ResponseID: id, ResponseName: name, ResponseContent: content}
}

// PlaceholderResponsePart synthesizes a function_response for an orphaned
// function_call, per spec: "pending or cancelled".
func PlaceholderResponsePart(id, name string) Part {
	return Part{
		Kind:                  PartFunctionResponse,
		ResponseID:            id,
		ResponseName:          name,
		ResponseContent:       []byte(`"Tool execution pending or awaiting confirmation"`),
		ResponseIsPlaceholder: true,
	}
}

// Content is one entry in History: a role and its ordered parts.
type Content struct {
	Role      Role
	Parts     []Part
	CreatedAt time.Time

	// IsSummary marks a synthetic content produced by compression; it is
	// exempt from re-summarization for one turn (§4.5).
	IsSummary bool
}

// NewContent builds a Content with the given role and parts, stamped now.
func NewContent(role Role, parts ...Part) Content {
	return Content{Role: role, Parts: parts, CreatedAt: time.Now()}
}

// IsEmpty reports whether c carries no parts, or only a blank text part.
func (c Content) IsEmpty() bool {
	if len(c.Parts) == 0 {
		return true
	}
	for _, p := range c.Parts {
		if p.Kind == PartText && p.Text != "" {
			return false
		}
		if p.Kind != PartText {
			return false
		}
	}
	return true
}

// FunctionCalls returns the function_call parts in c, in order.
func (c Content) FunctionCalls() []Part {
	var calls []Part
	for _, p := range c.Parts {
		if p.Kind == PartFunctionCall {
			calls = append(calls, p)
		}
	}
	return calls
}

// FunctionResponses returns the function_response parts in c, in order.
func (c Content) FunctionResponses() []Part {
	var resp []Part
	for _, p := range c.Parts {
		if p.Kind == PartFunctionResponse {
			resp = append(resp, p)
		}
	}
	return resp
}

// Text concatenates the text parts of c.
func (c Content) Text() string {
	var out string
	for _, p := range c.Parts {
		if p.Kind == PartText {
			out += p.Text
		}
	}
	return out
}

// IsOnlyUnresolvedCall reports whether c is a model turn consisting solely
// of function_call parts with no accompanying text — used by curation to
// decide validity alongside the paired-response check.
func (c Content) IsOnlyUnresolvedCall() bool {
	if c.Role != RoleModel {
		return false
	}
	hasCall := false
	for _, p := range c.Parts {
		if p.Kind == PartText && p.Text != "" {
			return false
		}
		if p.Kind == PartFunctionCall {
			hasCall = true
		}
	}
	return hasCall
}
