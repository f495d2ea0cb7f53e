package checker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const verdictSchemaURL = "grader://checker/verdict.schema.json"

const verdictSchemaSource = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["passed"],
  "properties": {
    "passed": {"type": "boolean"},
    "detail": {"type": ["string", "null"]}
  }
}`

var (
	verdictSchemaOnce sync.Once
	verdictSchema     *jsonschema.Schema
	verdictSchemaErr  error
)

func compiledVerdictSchema() (*jsonschema.Schema, error) {
	verdictSchemaOnce.Do(func() {
		verdictSchema, verdictSchemaErr = jsonschema.CompileString(verdictSchemaURL, verdictSchemaSource)
	})
	return verdictSchema, verdictSchemaErr
}

// DecodeVerdict validates a checker payload against the verdict schema and decodes it.
func DecodeVerdict(driver string, payload []byte) (Verdict, error) {
	schema, err := compiledVerdictSchema()
	if err != nil {
		return Verdict{}, gatewayError(driver, fmt.Errorf("compile verdict schema: %w", err))
	}

	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()
	var document interface{}
	if err := decoder.Decode(&document); err != nil {
		return Verdict{}, gatewayError(driver, fmt.Errorf("decode verdict: %w", err))
	}
	if err := schema.Validate(document); err != nil {
		return Verdict{}, gatewayError(driver, fmt.Errorf("invalid verdict: %w", err))
	}

	var verdict Verdict
	if err := json.Unmarshal(payload, &verdict); err != nil {
		return Verdict{}, gatewayError(driver, fmt.Errorf("decode verdict: %w", err))
	}
	return verdict, nil
}
