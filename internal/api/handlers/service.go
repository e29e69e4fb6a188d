package handlers

import (
	"context"

	"github.com/kafkasr/schema-registry/internal/compatibility"
	"github.com/kafkasr/schema-registry/internal/registry"
	"github.com/kafkasr/schema-registry/internal/storage"
)

// Service is the registry surface the HTTP layer drives. *registry.Registry
// satisfies it directly in standalone mode; *registry.Dispatcher satisfies
// it in clustered mode, where every mutation either runs locally on the
// leader or is forwarded to it.
type Service interface {
	// Reads, served from the local materialized state on every node.
	CheckCompatibility(ctx context.Context, registryCtx string, subject string, schemaStr string, schemaType storage.SchemaType, refs []storage.Reference, version string, normalize ...bool) (*compatibility.Result, error)
	FormatSchema(ctx context.Context, registryCtx string, record *storage.SchemaRecord, format string) string
	GetConfig(ctx context.Context, registryCtx string, subject string) (string, error)
	GetConfigFull(ctx context.Context, registryCtx string, subject string) (*storage.ConfigRecord, error)
	GetMaxSchemaID(ctx context.Context, registryCtx string) (int64, error)
	GetMode(ctx context.Context, registryCtx string, subject string) (string, error)
	GetReferencedBy(ctx context.Context, registryCtx string, subject string, version int) ([]storage.SubjectVersion, error)
	GetSchemaByID(ctx context.Context, registryCtx string, id int64) (*storage.SchemaRecord, error)
	GetSchemaBySubjectVersion(ctx context.Context, registryCtx string, subject string, version int) (*storage.SchemaRecord, error)
	GetSchemaTypes() []string
	GetSchemasBySubject(ctx context.Context, registryCtx string, subject string, includeDeleted bool) ([]*storage.SchemaRecord, error)
	GetSubjectConfigFull(ctx context.Context, registryCtx string, subject string) (*storage.ConfigRecord, error)
	GetSubjectMode(ctx context.Context, registryCtx string, subject string) (string, error)
	GetSubjectsBySchemaID(ctx context.Context, registryCtx string, id int64, includeDeleted bool) ([]string, error)
	GetVersions(ctx context.Context, registryCtx string, subject string, deleted bool) ([]int, error)
	GetVersionsBySchemaID(ctx context.Context, registryCtx string, id int64, includeDeleted bool) ([]storage.SubjectVersion, error)
	IsHealthy(ctx context.Context) bool
	ListContexts(ctx context.Context) ([]string, error)
	ListSchemas(ctx context.Context, registryCtx string, params *storage.ListSchemasParams) ([]*storage.SchemaRecord, error)
	ListSubjects(ctx context.Context, registryCtx string, deleted bool) ([]string, error)
	LookupSchema(ctx context.Context, registryCtx string, subject string, schemaStr string, schemaType storage.SchemaType, refs []storage.Reference, deleted bool, normalize ...bool) (*storage.SchemaRecord, error)

	// Mutations, executed on the leader or forwarded to it.
	DeleteConfig(ctx context.Context, registryCtx string, subject string) (string, error)
	DeleteGlobalConfig(ctx context.Context, registryCtx string) (string, error)
	DeleteMode(ctx context.Context, registryCtx string, subject string) (string, error)
	DeleteSubject(ctx context.Context, registryCtx string, subject string, permanent bool) ([]int, error)
	DeleteVersion(ctx context.Context, registryCtx string, subject string, version int, permanent bool) (int, error)
	ImportSchemas(ctx context.Context, registryCtx string, schemas []registry.ImportSchemaRequest) (*registry.ImportResult, error)
	RegisterSchema(ctx context.Context, registryCtx string, subject string, schemaStr string, schemaType storage.SchemaType, refs []storage.Reference, opts ...registry.RegisterOpts) (*storage.SchemaRecord, error)
	RegisterSchemaWithID(ctx context.Context, registryCtx string, subject string, schemaStr string, schemaType storage.SchemaType, refs []storage.Reference, id int64, version int) (*storage.SchemaRecord, error)
	SetConfig(ctx context.Context, registryCtx string, subject string, level string, normalize *bool, opts ...registry.SetConfigOpts) error
	SetMode(ctx context.Context, registryCtx string, subject string, mode string, force bool) error
}
