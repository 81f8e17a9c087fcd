// Package schema validates set-value payloads against a JSON Schema
// generated from a device's declared module list, so malformed writes
// are rejected before they reach a technology manager.
package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/urmzd/homai-gateway/internal/beeeon"
)

// Validator compiles and caches JSON Schema documents keyed by their raw
// bytes.
type Validator struct {
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

func NewValidator() *Validator {
	return &Validator{cache: make(map[string]*jsonschema.Schema)}
}

// ForModules builds the schema describing a valid state-write payload
// for the given module list: an object whose keys are the ordinals of
// controllable modules and whose values are numbers.
func ForModules(modules []beeeon.Module) json.RawMessage {
	properties := make(map[string]any)
	for i, m := range modules {
		if !controllable(m) {
			continue
		}
		properties[strconv.Itoa(i)] = map[string]any{"type": "number"}
	}

	doc := map[string]any{
		"type":                 "object",
		"minProperties":        1,
		"additionalProperties": false,
		"properties":           properties,
	}
	data, _ := json.Marshal(doc)
	return data
}

func controllable(m beeeon.Module) bool {
	for _, a := range m.Attributes {
		if a == beeeon.AttrControllable {
			return true
		}
	}
	// on_off modules without explicit attributes are writable actuators
	// in the Jablotron table (AC-88), so treat them as controllable too.
	return m.Type == beeeon.TypeOnOff && len(m.Attributes) == 0
}

// Validate checks payload against schemaDoc. An empty or null document
// means no validation.
func (v *Validator) Validate(schemaDoc json.RawMessage, payload map[string]any) error {
	if len(schemaDoc) == 0 || string(schemaDoc) == "{}" || string(schemaDoc) == "null" {
		return nil
	}

	compiled, err := v.compile(schemaDoc)
	if err != nil {
		return fmt.Errorf("schema: compile: %w", err)
	}
	return compiled.Validate(payload)
}

func (v *Validator) compile(schemaDoc json.RawMessage) (*jsonschema.Schema, error) {
	key := string(schemaDoc)

	v.mu.RLock()
	if s, ok := v.cache[key]; ok {
		v.mu.RUnlock()
		return s, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	if s, ok := v.cache[key]; ok {
		return s, nil
	}

	var schemaMap any
	if err := json.Unmarshal(schemaDoc, &schemaMap); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", schemaMap); err != nil {
		return nil, fmt.Errorf("add resource: %w", err)
	}
	compiled, err := c.Compile("schema.json")
	if err != nil {
		return nil, err
	}

	v.cache[key] = compiled
	return compiled, nil
}
