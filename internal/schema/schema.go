// Package schema implements SchemaRegistry (spec §4.3): a directory of
// plaintext Draft-07 JSON Schema documents addressed by schema_id, with
// compiled validators cached keyed by the same id.
package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/deltadb/deltadb/internal/dberr"
	"github.com/deltadb/deltadb/internal/filestore"
)

// Registry owns the templates/ directory and the compiled-validator
// cache.
type Registry struct {
	dir string

	mu         sync.RWMutex
	validators map[string]*jsonschema.Schema
}

// New constructs a Registry rooted at dir, creating it if necessary.
func New(dir string) (*Registry, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create templates dir: %w", err)
	}
	return &Registry{dir: dir, validators: make(map[string]*jsonschema.Schema)}, nil
}

func (r *Registry) path(schemaID string) string {
	return filepath.Join(r.dir, schemaID+".json")
}

// Put validates that body is a JSON object, writes it under schemaID, and
// invalidates any cached validator for that id.
func (r *Registry) Put(schemaID string, body []byte) error {
	if err := filestore.ValidateName("schema_id", schemaID); err != nil {
		return err
	}
	var probe map[string]interface{}
	if err := json.Unmarshal(body, &probe); err != nil {
		return dberr.Wrap(dberr.BadInput, "schema must be a JSON object", err)
	}
	if probe == nil {
		return dberr.New(dberr.BadInput, "schema must be a JSON object")
	}

	if err := os.WriteFile(r.path(schemaID), body, 0o640); err != nil {
		return dberr.Wrap(dberr.Internal, "write schema", err)
	}

	r.mu.Lock()
	delete(r.validators, schemaID)
	r.mu.Unlock()
	return nil
}

// Get returns the raw schema JSON for schemaID.
func (r *Registry) Get(schemaID string) ([]byte, error) {
	if err := filestore.ValidateName("schema_id", schemaID); err != nil {
		return nil, err
	}
	body, err := os.ReadFile(r.path(schemaID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, dberr.New(dberr.NotFound, "schema not found")
		}
		return nil, dberr.Wrap(dberr.Internal, "read schema", err)
	}
	return body, nil
}

// List returns all registered schema ids, derived from the directory
// listing.
func (r *Registry) List() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, dberr.Wrap(dberr.Internal, "list schemas", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".json") {
			ids = append(ids, strings.TrimSuffix(name, ".json"))
		}
	}
	return ids, nil
}

// Validate compiles (and caches) the validator for schemaID and checks
// document against it. An empty schemaID is unconditionally valid (spec
// §4.3).
func (r *Registry) Validate(schemaID string, document []byte) error {
	if schemaID == "" {
		return nil
	}

	v, err := r.compiled(schemaID)
	if err != nil {
		return err
	}

	var doc interface{}
	if err := json.Unmarshal(document, &doc); err != nil {
		return dberr.Wrap(dberr.BadInput, "payload is not valid JSON", err)
	}
	if err := v.Validate(doc); err != nil {
		return dberr.Wrap(dberr.BadInput, firstValidationError(err), err)
	}
	return nil
}

// firstValidationError extracts a short, single-line message from a
// jsonschema validation error for use as the BadInput response message.
func firstValidationError(err error) string {
	if ve, ok := err.(*jsonschema.ValidationError); ok {
		for cur := ve; cur != nil; {
			if len(cur.Causes) == 0 {
				return fmt.Sprintf("%s: %s", cur.InstanceLocation, cur.Message)
			}
			cur = cur.Causes[0]
		}
	}
	return "schema validation failed"
}

func (r *Registry) compiled(schemaID string) (*jsonschema.Schema, error) {
	r.mu.RLock()
	v, ok := r.validators[schemaID]
	r.mu.RUnlock()
	if ok {
		return v, nil
	}

	body, err := r.Get(schemaID)
	if err != nil {
		return nil, dberr.New(dberr.BadInput, "unknown schema_id")
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	resource := schemaID + ".json"
	if err := compiler.AddResource(resource, strings.NewReader(string(body))); err != nil {
		return nil, dberr.Wrap(dberr.Internal, "invalid schema on disk", err)
	}
	compiled, err := compiler.Compile(resource)
	if err != nil {
		return nil, dberr.Wrap(dberr.Internal, "compile schema", err)
	}

	r.mu.Lock()
	r.validators[schemaID] = compiled
	r.mu.Unlock()
	return compiled, nil
}
