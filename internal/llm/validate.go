package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const invoiceSchemaURL = "mem://invoice-fields.json"

var (
	invoiceSchemaOnce sync.Once
	invoiceSchema     *jsonschema.Schema
	invoiceSchemaErr  error
)

// compiledInvoiceSchema compiles BuildInvoiceJSONSchema once per process.
func compiledInvoiceSchema() (*jsonschema.Schema, error) {
	invoiceSchemaOnce.Do(func() {
		invoiceSchema, invoiceSchemaErr = compileSchema(invoiceSchemaURL, BuildInvoiceJSONSchema())
	})
	return invoiceSchema, invoiceSchemaErr
}

func compileSchema(url string, schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(url, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	return compiler.Compile(url)
}

// ValidateInvoiceJSON checks a model answer against the invoice field
// contract. The bytes must be a single JSON object.
func ValidateInvoiceJSON(data []byte) error {
	schema, err := compiledInvoiceSchema()
	if err != nil {
		return fmt.Errorf("compile invoice schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("model answer is not json: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("model answer does not match invoice schema: %w", err)
	}
	return nil
}
