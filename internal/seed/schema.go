// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Phobos Auth Contributors

package seed

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	"github.com/phobos/authd/internal/auth"
)

// SchemaID is the $id of the seed file schema.
const SchemaID = "https://phobos.dev/schemas/seed.schema.json"

var (
	compileOnce sync.Once
	compiled    *jschema.Schema
	compileErr  error
)

// GenerateSchema generates the JSON Schema for seed files.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference: true,
	}
	schema := r.Reflect(&File{})
	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "authd Seed File"
	schema.Description = "Accounts registered by authd seed"

	// Patterns containing commas cannot be expressed in struct tags.
	if accounts, ok := schema.Properties.Get("accounts"); ok && accounts.Items != nil {
		if email, ok := accounts.Items.Properties.Get("email"); ok {
			email.Pattern = auth.EmailPattern
		}
		if digest, ok := accounts.Items.Properties.Get("passwordDigest"); ok {
			digest.Pattern = "^[0-9a-fA-F]{64}$"
		}
	}

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Code("SEED_SCHEMA_FAILED").With("operation", "marshal schema").Wrap(err)
	}
	return data, nil
}

func compiledSchema() (*jschema.Schema, error) {
	compileOnce.Do(func() {
		raw, err := GenerateSchema()
		if err != nil {
			compileErr = err
			return
		}
		doc, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			compileErr = oops.Code("SEED_SCHEMA_FAILED").With("operation", "parse schema").Wrap(err)
			return
		}
		c := jschema.NewCompiler()
		if err := c.AddResource("seed.schema.json", doc); err != nil {
			compileErr = oops.Code("SEED_SCHEMA_FAILED").With("operation", "add schema resource").Wrap(err)
			return
		}
		compiled, err = c.Compile("seed.schema.json")
		if err != nil {
			compileErr = oops.Code("SEED_SCHEMA_FAILED").With("operation", "compile schema").Wrap(err)
		}
	})
	return compiled, compileErr
}

// ValidateSchema validates YAML seed data against the seed schema.
func ValidateSchema(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return oops.Code("SEED_INVALID").Errorf("seed file is empty")
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return oops.Code("SEED_INVALID").With("operation", "parse yaml").Wrap(err)
	}

	// Round-trip through JSON so numbers and maps have the types the
	// validator expects.
	raw, err := json.Marshal(doc)
	if err != nil {
		return oops.Code("SEED_INVALID").With("operation", "convert yaml").Wrap(err)
	}
	inst, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return oops.Code("SEED_INVALID").With("operation", "convert yaml").Wrap(err)
	}

	sch, err := compiledSchema()
	if err != nil {
		return err
	}
	if err := sch.Validate(inst); err != nil {
		return oops.Code("SEED_INVALID").With("operation", "validate schema").Wrap(err)
	}
	return nil
}
