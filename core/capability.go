package core

import "net/http"

// Capability describes one operation a tool exposes over HTTP.
type Capability struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Endpoint    string   `json:"endpoint"`
	InputTypes  []string `json:"input_types,omitempty"`
	OutputTypes []string `json:"output_types,omitempty"`

	// InputSummary gives callers compact field hints. When set, a JSON
	// Schema is served at Endpoint + SchemaEndpointSuffix.
	InputSummary   *SchemaSummary `json:"input_summary,omitempty"`
	SchemaEndpoint string         `json:"schema_endpoint,omitempty"`

	// Methods lists the accepted HTTP methods. Empty accepts any method.
	Methods []string `json:"methods,omitempty"`

	Handler http.HandlerFunc `json:"-"`
}

// SchemaSummary lists the required and optional request fields of a capability.
type SchemaSummary struct {
	RequiredFields []FieldHint `json:"required,omitempty"`
	OptionalFields []FieldHint `json:"optional,omitempty"`
}

// FieldHint describes a single request field.
type FieldHint struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Example     string `json:"example,omitempty"`
	Description string `json:"description,omitempty"`
}
