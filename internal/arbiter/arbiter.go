// Package arbiter implements the Next-Speaker Arbiter (§4.7): a single
// structured call, at the end of every turn with no pending tool calls,
// deciding whether the model should continue unprompted or yield back to
// the user.
package arbiter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/riverton-labs/sqlpilot/internal/chat"
	"github.com/riverton-labs/sqlpilot/internal/providers"
)

// Speaker is who should act next.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerModel Speaker = "model"
)

// Decision is the arbiter's structured verdict.
type Decision struct {
	NextSpeaker Speaker `json:"next_speaker"`
	Reasoning   string  `json:"reasoning"`
}

const resultSchemaJSON = `{
	"type": "object",
	"properties": {
		"next_speaker": {"type": "string", "enum": ["user", "model"]},
		"reasoning": {"type": "string"}
	},
	"required": ["next_speaker", "reasoning"],
	"additionalProperties": false
}`

// instruction is the arbiter's entire decision procedure: the rules live
// here, not in Go control flow, per §4.7.
const instruction = `You are the next-speaker arbiter for a conversational agent. ` +
	`Given the conversation so far, decide who should act next.

Choose "model" when the last model message states an unfinished plan or ` +
	`intention it has not yet carried out (e.g. "Next I will run the query").
Choose "user" when the last model message asks the user a question, or ` +
	`reports that the requested task is complete.

Respond by calling emit_result with your decision and a one-sentence reasoning.`

var resultSchema = json.RawMessage(resultSchemaJSON)

var compiledSchema *jsonschema.Schema

func compiled() (*jsonschema.Schema, error) {
	if compiledSchema != nil {
		return compiledSchema, nil
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("mem://arbiter_decision.json", bytes.NewReader(resultSchema)); err != nil {
		return nil, fmt.Errorf("arbiter: compile result schema: %w", err)
	}
	schema, err := compiler.Compile("mem://arbiter_decision.json")
	if err != nil {
		return nil, fmt.Errorf("arbiter: compile result schema: %w", err)
	}
	compiledSchema = schema
	return schema, nil
}

// Arbiter decides the next speaker via a provider's GenerateJSON call.
type Arbiter struct {
	provider providers.Provider
	model    string
}

// New builds an Arbiter bound to a provider and (optionally empty, meaning
// provider-default) model.
func New(provider providers.Provider, model string) *Arbiter {
	return &Arbiter{provider: provider, model: model}
}

// Decide inspects the curated history and returns who should speak next.
func (a *Arbiter) Decide(ctx context.Context, history []chat.Content) (Decision, error) {
	schema, err := compiled()
	if err != nil {
		return Decision{}, err
	}

	req := providers.TurnRequest{
		History:           history,
		SystemInstruction: instruction,
		Model:             a.model,
	}

	raw, err := a.provider.GenerateJSON(ctx, req, resultSchema)
	if err != nil {
		return Decision{}, fmt.Errorf("arbiter: generate_json: %w", err)
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return Decision{}, fmt.Errorf("arbiter: result is not valid JSON: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return Decision{}, fmt.Errorf("arbiter: result failed schema validation: %w", err)
	}

	var decision Decision
	if err := json.Unmarshal(raw, &decision); err != nil {
		return Decision{}, fmt.Errorf("arbiter: decode result: %w", err)
	}
	return decision, nil
}
