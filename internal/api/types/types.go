// Package types provides API request and response types.
package types

import "github.com/kafkasr/schema-registry/internal/storage"

// RegisterSchemaRequest is the request body for registering a schema.
type RegisterSchemaRequest struct {
	Schema     string              `json:"schema"`
	SchemaType string              `json:"schemaType,omitempty"`
	References []storage.Reference `json:"references,omitempty"`

	// ID and Version are honored only in IMPORT mode.
	ID       int64             `json:"id,omitempty"`
	Version  int               `json:"version,omitempty"`
	Metadata *storage.Metadata `json:"metadata,omitempty"`
	RuleSet  *storage.RuleSet  `json:"ruleSet,omitempty"`
}

// RegisterSchemaResponse is the response for registering a schema.
type RegisterSchemaResponse struct {
	ID int64 `json:"id"`
}

// SchemaResponse is the response for getting a schema.
type SchemaResponse struct {
	Schema     string              `json:"schema"`
	SchemaType string              `json:"schemaType,omitempty"`
	References []storage.Reference `json:"references,omitempty"`
}

// SchemaByIDResponse is the response for getting a schema by ID.
type SchemaByIDResponse struct {
	Schema     string              `json:"schema"`
	SchemaType string              `json:"schemaType,omitempty"`
	References []storage.Reference `json:"references,omitempty"`
	MaxId      *int64              `json:"maxId,omitempty"`
	Metadata   *storage.Metadata   `json:"metadata,omitempty"`
	RuleSet    *storage.RuleSet    `json:"ruleSet,omitempty"`
}

// SubjectVersionResponse is the response for getting a subject version.
type SubjectVersionResponse struct {
	Subject    string              `json:"subject"`
	ID         int64               `json:"id"`
	Version    int                 `json:"version"`
	SchemaType string              `json:"schemaType,omitempty"`
	Schema     string              `json:"schema"`
	References []storage.Reference `json:"references,omitempty"`
	Metadata   *storage.Metadata   `json:"metadata,omitempty"`
	RuleSet    *storage.RuleSet    `json:"ruleSet,omitempty"`
}

// LookupSchemaRequest is the request body for looking up a schema.
type LookupSchemaRequest struct {
	Schema     string              `json:"schema"`
	SchemaType string              `json:"schemaType,omitempty"`
	References []storage.Reference `json:"references,omitempty"`
}

// LookupSchemaResponse is the response for looking up a schema.
type LookupSchemaResponse struct {
	Subject    string              `json:"subject"`
	ID         int64               `json:"id"`
	Version    int                 `json:"version"`
	SchemaType string              `json:"schemaType,omitempty"`
	Schema     string              `json:"schema"`
	References []storage.Reference `json:"references,omitempty"`
	Metadata   *storage.Metadata   `json:"metadata,omitempty"`
	RuleSet    *storage.RuleSet    `json:"ruleSet,omitempty"`
}

// ConfigResponse is the response for getting configuration.
type ConfigResponse struct {
	CompatibilityLevel string            `json:"compatibilityLevel"`
	Normalize          *bool             `json:"normalize,omitempty"`
	ValidateFields     *bool             `json:"validateFields,omitempty"`
	Alias              string            `json:"alias,omitempty"`
	CompatibilityGroup string            `json:"compatibilityGroup,omitempty"`
	DefaultMetadata    *storage.Metadata `json:"defaultMetadata,omitempty"`
	OverrideMetadata   *storage.Metadata `json:"overrideMetadata,omitempty"`
	DefaultRuleSet     *storage.RuleSet  `json:"defaultRuleSet,omitempty"`
	OverrideRuleSet    *storage.RuleSet  `json:"overrideRuleSet,omitempty"`
}

// ConfigRequest is the request body for setting configuration.
type ConfigRequest struct {
	Compatibility      string            `json:"compatibility"`
	Normalize          *bool             `json:"normalize,omitempty"`
	ValidateFields     *bool             `json:"validateFields,omitempty"`
	Alias              string            `json:"alias,omitempty"`
	CompatibilityGroup string            `json:"compatibilityGroup,omitempty"`
	DefaultMetadata    *storage.Metadata `json:"defaultMetadata,omitempty"`
	OverrideMetadata   *storage.Metadata `json:"overrideMetadata,omitempty"`
	DefaultRuleSet     *storage.RuleSet  `json:"defaultRuleSet,omitempty"`
	OverrideRuleSet    *storage.RuleSet  `json:"overrideRuleSet,omitempty"`
}

// ModeResponse is the response for getting mode.
type ModeResponse struct {
	Mode string `json:"mode"`
}

// ModeRequest is the request body for setting mode.
type ModeRequest struct {
	Mode string `json:"mode"`
}

// CompatibilityCheckRequest is the request for checking compatibility.
type CompatibilityCheckRequest struct {
	Schema     string              `json:"schema"`
	SchemaType string              `json:"schemaType,omitempty"`
	References []storage.Reference `json:"references,omitempty"`
}

// CompatibilityCheckResponse is the response for checking compatibility.
type CompatibilityCheckResponse struct {
	IsCompatible bool     `json:"is_compatible"`
	Messages     []string `json:"messages,omitempty"`
}

// ErrorResponse is the error response format.
type ErrorResponse struct {
	ErrorCode int    `json:"error_code"`
	Message   string `json:"message"`
}

// SubjectVersionPair is a subject-version tuple returned by various endpoints.
type SubjectVersionPair struct {
	Subject string `json:"subject"`
	Version int    `json:"version"`
}

// SchemaListItem is a schema in the list response.
type SchemaListItem struct {
	Subject    string              `json:"subject"`
	Version    int                 `json:"version"`
	ID         int64               `json:"id"`
	SchemaType string              `json:"schemaType,omitempty"`
	Schema     string              `json:"schema"`
	References []storage.Reference `json:"references,omitempty"`
}

// ServerClusterIDResponse is the response for getting cluster ID.
type ServerClusterIDResponse struct {
	ID string `json:"id"`
}

// ServerVersionResponse is the response for getting server version.
type ServerVersionResponse struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
}

// Error codes matching Confluent Schema Registry
const (
	ErrorCodeSubjectNotFound           = 40401
	ErrorCodeVersionNotFound           = 40402
	ErrorCodeSchemaNotFound            = 40403
	ErrorCodeSubjectSoftDeleted        = 40404
	ErrorCodeSubjectNotSoftDeleted     = 40405
	ErrorCodeSchemaVersionSoftDeleted  = 40406
	ErrorCodeVersionNotSoftDeleted     = 40407
	ErrorCodeSubjectCompatNotFound     = 40408
	ErrorCodeIncompatibleSchema        = 409
	ErrorCodeInvalidSchema             = 42201
	ErrorCodeInvalidSchemaType         = 42202
	ErrorCodeInvalidVersion            = 42202 // Confluent uses 42202 for both invalid schema type and invalid version
	ErrorCodeInvalidCompatibilityLevel = 42203
	ErrorCodeInvalidMode               = 42204
	ErrorCodeOperationNotPermitted     = 42205
	ErrorCodeReferenceExists           = 42206
	ErrorCodeInternalServerError       = 50001
	ErrorCodeStorageError              = 50002
	ErrorCodeOperationTimeout          = 50002 // Confluent uses 50002 for store timeouts
	ErrorCodeForwardingFailed          = 50003
	ErrorCodeUnknownLeader             = 50004
	ErrorCodeSubjectModeNotFound       = 40409
)

// ImportSchemaRequest is the request for importing a single schema with a specific ID.
type ImportSchemaRequest struct {
	ID         int64               `json:"id"`
	Subject    string              `json:"subject"`
	Version    int                 `json:"version"`
	SchemaType string              `json:"schemaType,omitempty"`
	Schema     string              `json:"schema"`
	References []storage.Reference `json:"references,omitempty"`
}

// ImportSchemasRequest is the request for importing multiple schemas.
type ImportSchemasRequest struct {
	Schemas []ImportSchemaRequest `json:"schemas"`
}

// ImportSchemaResult is the result for a single schema import.
type ImportSchemaResult struct {
	ID      int64  `json:"id"`
	Subject string `json:"subject"`
	Version int    `json:"version"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ImportSchemasResponse is the response for importing schemas.
type ImportSchemasResponse struct {
	Imported int                  `json:"imported"`
	Errors   int                  `json:"errors"`
	Results  []ImportSchemaResult `json:"results"`
}
