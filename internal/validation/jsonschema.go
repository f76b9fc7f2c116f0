package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rendis/ruleflow/pkg/schema"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

const workflowSchemaURL = "https://ruleflow.dev/schemas/workflow.json"

// workflowSchemaJSON is the JSON Schema of a persisted graph document.
// Node and edge objects may carry editor fields (position, style), so only
// the data blocks of known node kinds are closed.
const workflowSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://ruleflow.dev/schemas/workflow.json",
  "type": "object",
  "required": ["nodes"],
  "properties": {
    "id": { "type": "string" },
    "name": { "type": "string" },
    "nodes": {
      "type": "array",
      "items": { "$ref": "#/$defs/node" }
    },
    "edges": {
      "type": ["array", "null"],
      "items": { "$ref": "#/$defs/edge" }
    }
  },
  "$defs": {
    "node": {
      "type": "object",
      "required": ["id", "type"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "type": { "type": "string", "minLength": 1 },
        "data": { "type": ["object", "null"] }
      },
      "allOf": [
        {
          "if": { "properties": { "type": { "const": "trigger" } } },
          "then": { "properties": { "data": { "$ref": "#/$defs/triggerData" } } }
        },
        {
          "if": { "properties": { "type": { "const": "condition" } } },
          "then": { "properties": { "data": { "$ref": "#/$defs/conditionData" } } }
        },
        {
          "if": { "properties": { "type": { "const": "action" } } },
          "then": { "properties": { "data": { "$ref": "#/$defs/actionData" } } }
        }
      ]
    },
    "edge": {
      "type": "object",
      "required": ["source", "target"],
      "properties": {
        "source": { "type": "string", "minLength": 1 },
        "target": { "type": "string", "minLength": 1 }
      }
    },
    "scalar": {
      "type": ["string", "number", "boolean", "null", "array"],
      "items": { "$ref": "#/$defs/scalar" }
    },
    "filterRule": {
      "type": "object",
      "required": ["field", "operator"],
      "properties": {
        "field": { "type": "string" },
        "operator": { "type": "string" },
        "value": { "$ref": "#/$defs/scalar" },
        "chain": { "type": "string" }
      },
      "additionalProperties": false
    },
    "triggerData": {
      "type": ["object", "null"],
      "properties": {
        "label": { "type": "string" },
        "event": { "type": "string" },
        "schedule": { "type": "string" },
        "filters": {
          "type": ["array", "null"],
          "items": { "$ref": "#/$defs/filterRule" }
        },
        "defaultLogic": { "type": "string" },
        "enabled": { "type": "boolean" }
      },
      "additionalProperties": false
    },
    "conditionData": {
      "type": ["object", "null"],
      "properties": {
        "label": { "type": "string" },
        "field": { "type": "string" },
        "operator": { "type": "string" },
        "value": { "$ref": "#/$defs/scalar" },
        "language": { "type": "string" },
        "expression": { "type": "string" }
      },
      "additionalProperties": false
    },
    "actionData": {
      "type": ["object", "null"],
      "properties": {
        "label": { "type": "string" },
        "actionType": { "type": "string" },
        "config": { "type": ["object", "null"] }
      },
      "additionalProperties": false
    }
  }
}`

// structureChecker validates raw documents against the workflow schema, and
// event payloads against schemas derived from a field type catalog.
// It is safe for concurrent use.
type structureChecker struct {
	workflowSchema *jsonschema.Schema

	// mu guards the cache of event schemas.
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

func newStructureChecker() (*structureChecker, error) {
	c := newCompiler()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(workflowSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal workflow schema: %w", err)
	}
	if err := c.AddResource(workflowSchemaURL, schemaDoc); err != nil {
		return nil, fmt.Errorf("add workflow schema resource: %w", err)
	}

	wfSchema, err := c.Compile(workflowSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile workflow schema: %w", err)
	}

	return &structureChecker{
		workflowSchema: wfSchema,
		cache:          make(map[string]*jsonschema.Schema),
	}, nil
}

// checkDocument validates raw against the workflow schema. Violations below
// a node are attributed to that node's id.
func (s *structureChecker) checkDocument(raw []byte) schema.Diagnostics {
	var diags schema.Diagnostics

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		diags.AddError("", "", schema.KindStructure, fmt.Sprintf("document is not valid JSON: %s", err))
		return diags
	}

	if err := s.workflowSchema.Validate(doc); err != nil {
		nodeIDs := documentNodeIDs(doc)
		for _, v := range violations(err) {
			nodeID, field := attribute(v.location, nodeIDs)
			diags.AddError(nodeID, field, schema.KindStructure, v.message)
		}
	}
	return diags
}

// checkEvent validates an event payload against the schema derived from
// fields. Type mismatches are warnings: the filter evaluator coerces.
func (s *structureChecker) checkEvent(event map[string]any, fields schema.FieldTypes) schema.Diagnostics {
	var diags schema.Diagnostics
	if len(fields) == 0 {
		return diags
	}

	schemaBytes, err := EventSchema(fields)
	if err != nil {
		diags.AddWarning("", "", schema.KindStructure, err.Error())
		return diags
	}
	compiled, err := s.getOrCompile(schemaBytes)
	if err != nil {
		diags.AddWarning("", "", schema.KindStructure, fmt.Sprintf("invalid event schema: %s", err))
		return diags
	}

	doc, err := toJSONValue(event)
	if err != nil {
		diags.AddWarning("", "", schema.KindStructure, fmt.Sprintf("event cannot be encoded: %s", err))
		return diags
	}

	if err := compiled.Validate(doc); err != nil {
		for _, v := range violations(err) {
			diags.AddWarning("", pointerToField(v.location), schema.KindStructure, v.message)
		}
	}
	return diags
}

// EventSchema returns a JSON Schema accepting events whose catalog fields
// have their declared types. Fields outside the catalog are allowed.
func EventSchema(fields schema.FieldTypes) ([]byte, error) {
	props := make(map[string]any, len(fields))
	for name, ft := range fields {
		switch ft {
		case schema.FieldNumber:
			props[name] = map[string]any{"type": []string{"number", "null"}}
		case schema.FieldBoolean:
			props[name] = map[string]any{"type": []string{"boolean", "null"}}
		case schema.FieldString, schema.FieldSelect:
			props[name] = map[string]any{"type": []string{"string", "null"}}
		case schema.FieldMultiselect:
			props[name] = map[string]any{
				"type":  []string{"array", "string", "null"},
				"items": map[string]any{"type": "string"},
			}
		}
	}
	b, err := json.Marshal(map[string]any{
		"$schema":    "https://json-schema.org/draft/2020-12/schema",
		"type":       "object",
		"properties": props,
	})
	if err != nil {
		return nil, fmt.Errorf("encode event schema: %w", err)
	}
	return b, nil
}

// getOrCompile returns a cached compiled schema or compiles and caches a new one.
func (s *structureChecker) getOrCompile(schemaBytes []byte) (*jsonschema.Schema, error) {
	key := string(schemaBytes)

	s.mu.RLock()
	if cached, ok := s.cache[key]; ok {
		s.mu.RUnlock()
		return cached, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock.
	if cached, ok := s.cache[key]; ok {
		return cached, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(key))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	url := fmt.Sprintf("ruleflow://event-schema/%d", len(s.cache))

	// Use a fresh compiler per schema to avoid resource collision.
	c := newCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	s.cache[key] = compiled
	return compiled, nil
}

func newCompiler() *jsonschema.Compiler {
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	return c
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(b))
}

type violation struct {
	location []string
	message  string
}

// violations walks a ValidationError tree and collects the leaf errors.
func violations(err error) []violation {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []violation{{message: err.Error()}}
	}
	return collectViolations(verr)
}

func collectViolations(verr *jsonschema.ValidationError) []violation {
	if len(verr.Causes) == 0 {
		return []violation{{location: verr.InstanceLocation, message: verr.Error()}}
	}

	var out []violation
	for _, cause := range verr.Causes {
		out = append(out, collectViolations(cause)...)
	}
	return out
}

// documentNodeIDs returns the id of each node of a decoded document by
// position. Entries are empty when the node has no string id.
func documentNodeIDs(doc any) []string {
	root, ok := doc.(map[string]any)
	if !ok {
		return nil
	}
	list, ok := root["nodes"].([]any)
	if !ok {
		return nil
	}
	ids := make([]string, len(list))
	for i, n := range list {
		if m, ok := n.(map[string]any); ok {
			ids[i], _ = m["id"].(string)
		}
	}
	return ids
}

// attribute maps an instance location to the node id and the field below
// it: ["nodes","2","data","filters","0","operator"] becomes the id of the
// third node and "data.filters[0].operator".
func attribute(location []string, nodeIDs []string) (string, string) {
	if len(location) >= 2 && location[0] == "nodes" {
		if i, err := strconv.Atoi(location[1]); err == nil && i < len(nodeIDs) && nodeIDs[i] != "" {
			return nodeIDs[i], pointerToField(location[2:])
		}
	}
	return "", pointerToField(location)
}

// pointerToField renders instance location tokens in the dotted/bracket
// form used by diagnostics.
func pointerToField(location []string) string {
	var b strings.Builder
	for _, tok := range location {
		if _, err := strconv.Atoi(tok); err == nil {
			b.WriteString("[" + tok + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(tok)
	}
	return b.String()
}
