// Package contracts implements the Contract Validator (C2): a cross-schema
// reference-resolving validator gating every inter-agent payload, backed by
// santhosh-tekuri/jsonschema/v5 (see DESIGN.md for why this dependency
// was chosen).
package contracts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	pipelineerrors "github.com/R3E-Network/assoc-pipeline/internal/errors"
)

// Mode is the enforcement mode of the: Soft logs and continues; Strict
// raises to the Executor as a terminal agent error.
type Mode int

const (
	Soft Mode = iota
	Strict
)

// Diagnostic is one path-tagged validation failure message.
type Diagnostic struct {
	Path string `json:"path"`
	Message string `json:"message"`
}

// Validator holds the compiled schema registry built at startup by
// scanning a schema root directory for every document's $id, then
// resolving cross-references against that registry (two-phase build:
// scan+register, then compile).
type Validator struct {
	mu sync.RWMutex
	compiler *jsonschema.Compiler
	compiled map[string]*jsonschema.Schema
}

// NewFromDir scans root for JSON Schema documents, registers each by its
// $id, then compiles every one so that cross-references resolve against
// the in-memory registry rather than the network — the registry is
// self-contained per the ("no network fetching of schemas").
func NewFromDir(root string) (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	ids := make([]string, 0)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".schema.json") {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read schema %s: %w", path, err)
		}
		var doc map[string]interface{}
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("parse schema %s: %w", path, err)
		}
		id, _ := doc["$id"].(string)
		if id == "" {
			return fmt.Errorf("schema %s has no $id", path)
		}
		if err := compiler.AddResource(id, bytes.NewReader(raw)); err != nil {
			return fmt.Errorf("register schema %s (%s): %w", path, id, err)
		}
		ids = append(ids, id)
		return nil
	})
	if err != nil {
		return nil, pipelineerrors.ConfigErr("scan schema root", err)
	}
	if len(ids) == 0 {
		return nil, pipelineerrors.ConfigErr("no schemas found under "+root, nil)
	}

	v := &Validator{compiler: compiler, compiled: make(map[string]*jsonschema.Schema, len(ids))}
	for _, id := range ids {
		schema, err := compiler.Compile(id)
		if err != nil {
			return nil, pipelineerrors.ConfigErr("compile schema "+id, err)
		}
		v.compiled[id] = schema
	}
	return v, nil
}

// Validate checks doc (any JSON-marshalable value) against the named
// schema, returning path-tagged diagnostics on failure.
func (v *Validator) Validate(schemaID string, doc interface{}) (bool, []Diagnostic) {
	v.mu.RLock()
	schema, ok := v.compiled[schemaID]
	v.mu.RUnlock()
	if !ok {
		return false, []Diagnostic{{Path: "$", Message: fmt.Sprintf("unknown schema id %q", schemaID)}}
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return false, []Diagnostic{{Path: "$", Message: "document not JSON-marshalable: " + err.Error()}}
	}
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return false, []Diagnostic{{Path: "$", Message: "document not JSON-decodable: " + err.Error()}}
	}

	if err := schema.Validate(decoded); err != nil {
		return false, toDiagnostics(err)
	}
	return true, nil
}

// ValidateOrError validates doc against schemaID and, depending on mode,
// either logs-and-continues (Soft, caller's responsibility) or returns a
// SchemaViolation error (Strict), per its gate-point contract.
func (v *Validator) ValidateOrError(schemaID string, doc interface{}, mode Mode) ([]Diagnostic, error) {
	ok, diags := v.Validate(schemaID, doc)
	if ok {
		return nil, nil
	}
	if mode == Strict {
		msgs := make([]string, 0, len(diags))
		for _, d := range diags {
			msgs = append(msgs, fmt.Sprintf("%s: %s", d.Path, d.Message))
		}
		return diags, pipelineerrors.SchemaViolationErr(schemaID, fmt.Errorf(strings.Join(msgs, "; ")))
	}
	return diags, nil
}

func toDiagnostics(err error) []Diagnostic {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []Diagnostic{{Path: "$", Message: err.Error()}}
	}
	var out []Diagnostic
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			out = append(out, Diagnostic{Path: e.InstanceLocation, Message: e.Message})
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return out
}
