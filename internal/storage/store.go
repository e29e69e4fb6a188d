package storage

import "context"

// Store is the persistence seam the registry core's business logic depends
// on. The production implementation reads from the lookup cache and writes
// through the Kafka-backed log store; memory.Store serves the standalone
// single-node mode and the test harnesses.
type Store interface {
	CreateSchema(ctx context.Context, registryCtx string, record *SchemaRecord) error
	ImportSchema(ctx context.Context, registryCtx string, record *SchemaRecord) error
	DeleteSchema(ctx context.Context, registryCtx string, subject string, version int, permanent bool) error
	DeleteSubject(ctx context.Context, registryCtx string, subject string, permanent bool) ([]int, error)

	GetSchemaByID(ctx context.Context, registryCtx string, id int64) (*SchemaRecord, error)
	GetSchemaByFingerprint(ctx context.Context, registryCtx string, subject string, fingerprint string, includeDeleted bool) (*SchemaRecord, error)
	GetSchemaBySubjectVersion(ctx context.Context, registryCtx string, subject string, version int) (*SchemaRecord, error)
	GetSchemasBySubject(ctx context.Context, registryCtx string, subject string, includeDeleted bool) ([]*SchemaRecord, error)
	GetLatestSchema(ctx context.Context, registryCtx string, subject string) (*SchemaRecord, error)
	GetMaxSchemaID(ctx context.Context, registryCtx string) (int64, error)
	GetReferencedBy(ctx context.Context, registryCtx string, subject string, version int) ([]SubjectVersion, error)
	GetSubjectsBySchemaID(ctx context.Context, registryCtx string, id int64, includeDeleted bool) ([]string, error)
	GetVersionsBySchemaID(ctx context.Context, registryCtx string, id int64, includeDeleted bool) ([]SubjectVersion, error)
	ListSchemas(ctx context.Context, registryCtx string, params *ListSchemasParams) ([]*SchemaRecord, error)
	ListSubjects(ctx context.Context, registryCtx string, deleted bool) ([]string, error)
	ListContexts(ctx context.Context) ([]string, error)
	SubjectExists(ctx context.Context, registryCtx string, subject string) (bool, error)
	SetNextID(ctx context.Context, registryCtx string, nextID int64) error

	GetConfig(ctx context.Context, registryCtx string, subject string) (*ConfigRecord, error)
	GetGlobalConfig(ctx context.Context, registryCtx string) (*ConfigRecord, error)
	SetConfig(ctx context.Context, registryCtx string, subject string, config *ConfigRecord) error
	SetGlobalConfig(ctx context.Context, registryCtx string, config *ConfigRecord) error
	DeleteConfig(ctx context.Context, registryCtx string, subject string) error
	DeleteGlobalConfig(ctx context.Context, registryCtx string) error

	GetMode(ctx context.Context, registryCtx string, subject string) (*ModeRecord, error)
	GetGlobalMode(ctx context.Context, registryCtx string) (*ModeRecord, error)
	SetMode(ctx context.Context, registryCtx string, subject string, mode *ModeRecord) error
	SetGlobalMode(ctx context.Context, registryCtx string, mode *ModeRecord) error
	DeleteMode(ctx context.Context, registryCtx string, subject string) error
	DeleteGlobalMode(ctx context.Context, registryCtx string) error

	IsHealthy(ctx context.Context) bool
}
