package llm

import (
	"encoding/json"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ananthlk/Mobius-OS-sub002/internal/casestate"
)

// suggestionSchemaJSON pins the interpreter contract: up to three object
// buckets and nothing else at the top level.
const suggestionSchemaJSON = `{
  "type": "object",
  "properties": {
    "patient_updates": {"type": "object"},
    "health_plan_updates": {"type": "object"},
    "timing_updates": {"type": "object"}
  },
  "additionalProperties": false
}`

var suggestionSchema = mustCompileSuggestionSchema()

func mustCompileSuggestionSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	const url = "https://mobius.schemas.local/interpreter/suggested_updates.schema.json"
	if err := c.AddResource(url, strings.NewReader(suggestionSchemaJSON)); err != nil {
		panic(err)
	}
	return c.MustCompile(url)
}

// GuardSuggestions validates raw interpreter output against the suggestion
// schema. Anything that fails to parse or validate collapses to empty
// suggestions so the turn keeps going.
func GuardSuggestions(raw []byte) casestate.SuggestedUpdates {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		log.Warn().Err(err).Msg("Interpreter output is not JSON, dropping suggestions")
		return casestate.SuggestedUpdates{}
	}
	if err := suggestionSchema.Validate(value); err != nil {
		log.Warn().Err(err).Msg("Interpreter output failed schema validation, dropping suggestions")
		return casestate.SuggestedUpdates{}
	}
	var sug casestate.SuggestedUpdates
	if err := json.Unmarshal(raw, &sug); err != nil {
		log.Warn().Err(err).Msg("Interpreter output did not decode into suggestions, dropping")
		return casestate.SuggestedUpdates{}
	}
	return sug
}
