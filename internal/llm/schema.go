package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// recordsSchema accepts an array of flat-or-nested objects; the field set
// is left to the prompt.
var recordsSchema = map[string]any{
	"type":  "array",
	"items": map[string]any{"type": "object"},
}

func compileRecordsSchema() (*jsonschema.Schema, error) {
	b, err := json.Marshal(recordsSchema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("records.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("records.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// stripFences removes a surrounding ```json or ``` code fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	for _, marker := range []string{"```json", "```"} {
		if strings.HasPrefix(s, marker) {
			s = strings.TrimSpace(s[len(marker):])
		}
		if strings.HasSuffix(s, "```") {
			s = strings.TrimSpace(s[:len(s)-3])
		}
	}
	return s
}

// parseRecords decodes the model output into records. Output that is not
// a JSON array of objects is reported as an error for the caller to log.
func parseRecords(schema *jsonschema.Schema, content string) ([]json.RawMessage, error) {
	content = stripFences(content)

	var v any
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		return nil, fmt.Errorf("response is not valid json: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return nil, fmt.Errorf("response is not an array of objects: %w", err)
	}

	var records []json.RawMessage
	if err := json.Unmarshal([]byte(content), &records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return records, nil
}
