package ws

import (
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const commandSchemaURL = "crowd://schemas/command.json"

// commandSchema describes every message a websocket debugger may send.
const commandSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["type"],
  "additionalProperties": false,
  "properties": {
    "type": {"enum": ["hello", "stats", "select", "region", "radius", "tag", "dump", "path",
                      "overhead", "categories", "toggle_category", "subscribe_render", "unsubscribe_render"]},
    "id": {"type": "string", "maxLength": 64},
    "password": {"type": "string", "maxLength": 256},
    "handle": {"type": "string", "pattern": "^[0-9]+(:[0-9]+)?$"},
    "min": {"$ref": "#/definitions/point"},
    "max": {"$ref": "#/definitions/point"},
    "center": {"$ref": "#/definitions/point"},
    "radius": {"type": "number", "minimum": 0},
    "tag": {"type": "string", "minLength": 1, "maxLength": 64},
    "category": {"enum": ["movement", "navigation", "lod", "life"]},
    "on": {"type": "boolean"}
  },
  "allOf": [
    {"if": {"properties": {"type": {"const": "select"}}}, "then": {"required": ["handle"]}},
    {"if": {"properties": {"type": {"const": "path"}}}, "then": {"required": ["handle"]}},
    {"if": {"properties": {"type": {"const": "region"}}}, "then": {"required": ["min", "max"]}},
    {"if": {"properties": {"type": {"const": "radius"}}}, "then": {"required": ["center", "radius"]}},
    {"if": {"properties": {"type": {"const": "tag"}}}, "then": {"required": ["tag"]}},
    {"if": {"properties": {"type": {"const": "toggle_category"}}}, "then": {"required": ["category", "on"]}}
  ],
  "definitions": {
    "point": {"type": "array", "items": {"type": "number"}, "minItems": 2, "maxItems": 2}
  }
}`

func compileCommandSchema() (*jsonschema.Schema, error) {
	s, err := jsonschema.CompileString(commandSchemaURL, commandSchema)
	if err != nil {
		return nil, fmt.Errorf("compile command schema: %w", err)
	}
	return s, nil
}
