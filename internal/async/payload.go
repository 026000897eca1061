package async

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const taskSchemaURL = "task.schema.json"

const taskSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["task_id", "document_id", "path"],
  "properties": {
    "task_id": {"type": "string", "pattern": "^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$"},
    "document_id": {"type": "integer", "minimum": 1},
    "path": {"type": "string", "minLength": 1, "maxLength": 1024},
    "submitted_at": {"type": "string"}
  },
  "additionalProperties": false
}`

var compiledTaskSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(taskSchemaURL, strings.NewReader(taskSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile(taskSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
})

// DecodeTask validates data against the task schema and decodes it.
func DecodeTask(data []byte) (Task, error) {
	schema, err := compiledTaskSchema()
	if err != nil {
		return Task{}, err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return Task{}, fmt.Errorf("unmarshal task: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return Task{}, fmt.Errorf("task does not match schema: %w", err)
	}
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return Task{}, fmt.Errorf("decode task: %w", err)
	}
	return task, nil
}
