package schema

import (
	_ "embed"
	"encoding/json"
	"errors"

	"github.com/xeipuuv/gojsonschema"
)

var ErrSchemaNotFound = errors.New("schema not found")

type SchemaType int

const (
	SchemaTypeRunRequest SchemaType = iota
	SchemaTypeRunResponse
)

type Schema struct {
	schemas map[SchemaType]*gojsonschema.Schema
}

func (s *Schema) Get(schemaType SchemaType) (*gojsonschema.Schema, error) {
	schema, ok := s.schemas[schemaType]
	if !ok {
		return nil, ErrSchemaNotFound
	}

	return schema, nil
}

// Validate validates the raw json document against the schema.
func (s *Schema) Validate(schemaType SchemaType, data []byte) (*gojsonschema.Result, error) {
	schema, err := s.Get(schemaType)
	if err != nil {
		return nil, err
	}

	return schema.Validate(gojsonschema.NewBytesLoader(data))
}

//go:embed run-request.json
var runRequest json.RawMessage

//go:embed run-response.json
var runResponse json.RawMessage

// NewRunSchema compiles the schemas of run requests and responses.
func NewRunSchema() (*Schema, error) {
	requestSchema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(runRequest))
	if err != nil {
		return nil, err
	}

	responseSchema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(runResponse))
	if err != nil {
		return nil, err
	}

	return &Schema{
		schemas: map[SchemaType]*gojsonschema.Schema{
			SchemaTypeRunRequest:  requestSchema,
			SchemaTypeRunResponse: responseSchema,
		},
	}, nil
}
