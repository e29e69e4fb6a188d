package registry

import (
	"context"
	"fmt"
	"sort"

	registrycontext "github.com/kafkasr/schema-registry/internal/context"
	"github.com/kafkasr/schema-registry/internal/idgen"
	"github.com/kafkasr/schema-registry/internal/kafka"
	"github.com/kafkasr/schema-registry/internal/lookupcache"
	"github.com/kafkasr/schema-registry/internal/storage"
)

// kafkaStoreMaxRetries bounds the id-assignment retry loop in CreateSchema.
// Under the single-active-leader invariant a collision should never actually
// occur — idgen.Generator only runs on the leader and hands out each id
// once — so this loop is defense against a leader transition landing
// mid-registration, not a steady-state retry path.
const kafkaStoreMaxRetries = 3

// kafkaStore is the production Store implementation: reads go straight to
// LookupCache, writes go through LogStore so every node (leader included)
// only ever observes state that has round-tripped the log.
type kafkaStore struct {
	log   *kafka.LogStore
	cache *lookupcache.Cache
	idgen *idgen.Generator
}

// NewKafkaStore constructs a Store backed by the Kafka log.
func NewKafkaStore(log *kafka.LogStore, cache *lookupcache.Cache, gen *idgen.Generator) storage.Store {
	return &kafkaStore{log: log, cache: cache, idgen: gen}
}

func schemaKey(registryCtx, subject string, version int) kafka.Key {
	return kafka.Key{KeyType: kafka.KindSchema, Context: registryCtx, Subject: subject, Version: version}
}

func toSchemaRecord(sv *kafka.SchemaValue) *storage.SchemaRecord {
	if sv == nil {
		return nil
	}
	return &storage.SchemaRecord{
		ID:          sv.ID,
		Subject:     sv.Subject,
		Version:     sv.Version,
		SchemaType:  sv.SchemaType,
		Schema:      sv.Schema,
		References:  sv.References,
		Metadata:    sv.Metadata,
		RuleSet:     sv.RuleSet,
		Fingerprint: sv.Fingerprint,
		Deleted:     sv.Deleted,
	}
}

func toSchemaValue(r *storage.SchemaRecord) *kafka.SchemaValue {
	return &kafka.SchemaValue{
		ID:          r.ID,
		Subject:     r.Subject,
		Version:     r.Version,
		SchemaType:  r.SchemaType,
		Schema:      r.Schema,
		References:  r.References,
		Metadata:    r.Metadata,
		RuleSet:     r.RuleSet,
		Deleted:     r.Deleted,
		Fingerprint: r.Fingerprint,
	}
}

func (s *kafkaStore) barrier(ctx context.Context, subject string) error {
	if err := s.log.WaitUntilReaderReachesLastOffset(ctx, subject); err != nil {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return nil
}

// ensureContextMarker records the first use of a non-default context so
// cross-context lookups can discover it without scanning every record.
func (s *kafkaStore) ensureContextMarker(ctx context.Context, registryCtx string) error {
	if registryCtx == "" || registryCtx == registrycontext.DefaultContext {
		return nil
	}
	if s.cache.HasContextMarker(registryCtx) {
		return nil
	}
	key := kafka.Key{KeyType: kafka.KindContext, Context: registryCtx}
	value := &kafka.ContextValue{Context: registryCtx}
	if err := s.log.Put(ctx, key, value); err != nil {
		return wrapStoreErr(err)
	}
	return nil
}

// CreateSchema assigns a fresh version (and, unless a fingerprint match
// already reserved one, a fresh id) and writes the schema record.
func (s *kafkaStore) CreateSchema(ctx context.Context, registryCtx string, record *storage.SchemaRecord) error {
	lock := s.log.LockFor(record.Subject)
	lock.Lock()
	defer lock.Unlock()

	if err := s.barrier(ctx, record.Subject); err != nil {
		return err
	}

	if err := s.ensureContextMarker(ctx, registryCtx); err != nil {
		return err
	}

	if existingID, subjects, ok := s.cache.SchemaIDAndSubjects(registryCtx, record.Fingerprint); ok {
		if ver, taken := subjects[record.Subject]; taken {
			// Only an undeleted occurrence counts as a duplicate; identical
			// content behind a soft delete gets resurrected under the same id
			// at a fresh version.
			if v, found := s.cache.Get(schemaKey(registryCtx, record.Subject, ver)); found {
				if sv := v.(*kafka.SchemaValue); !sv.Deleted {
					record.ID = existingID
					record.Version = ver
					return storage.ErrSchemaExists
				}
			}
		}
		record.ID = existingID
	}

	versions := s.cache.SubjectVersions(registryCtx, record.Subject, true)
	newVersion := 1
	for _, v := range versions {
		if v.Version >= newVersion {
			newVersion = v.Version + 1
		}
	}
	record.Version = newVersion

	if record.ID == 0 {
		// idgen.Generator only ever runs on the leader and hands out each id
		// exactly once, so this is a single assignment in steady state; the
		// loop draws another id only while the cache already holds the drawn
		// one in this context.
		var err error
		for attempt := 0; ; attempt++ {
			if attempt == kafkaStoreMaxRetries {
				return fmt.Errorf("%w: no free id after %d attempts", ErrIDGeneration, kafkaStoreMaxRetries)
			}
			record.ID, err = s.idgen.Next()
			if err != nil {
				return fmt.Errorf("%w: %v", ErrIDGeneration, err)
			}
			if _, _, taken := s.cache.SchemaKeyByID(registryCtx, record.ID, record.Subject); !taken {
				break
			}
		}
	}

	if err := s.log.Put(ctx, schemaKey(registryCtx, record.Subject, record.Version), toSchemaValue(record)); err != nil {
		return wrapStoreErr(err)
	}

	// Re-registering content that previously lived in this subject as a
	// soft-deleted lower version tombstones that stale record: the id now
	// resolves through the new version only.
	for _, v := range versions {
		if v.Deleted && v.ID == record.ID && v.Version < record.Version {
			if err := s.log.Delete(ctx, schemaKey(registryCtx, record.Subject, v.Version)); err != nil {
				return wrapStoreErr(err)
			}
		}
	}
	return nil
}

// ImportSchema writes a schema record at a caller-supplied id/version,
// rejecting a conflicting id already bound to different content.
func (s *kafkaStore) ImportSchema(ctx context.Context, registryCtx string, record *storage.SchemaRecord) error {
	lock := s.log.LockFor(record.Subject)
	lock.Lock()
	defer lock.Unlock()

	if err := s.barrier(ctx, record.Subject); err != nil {
		return err
	}

	if err := s.ensureContextMarker(ctx, registryCtx); err != nil {
		return err
	}

	if existingSubject, existingVersion, ok := s.cache.SchemaKeyByID(registryCtx, record.ID, record.Subject); ok {
		if sv, found := s.cache.Get(schemaKey(registryCtx, existingSubject, existingVersion)); found {
			if cur := sv.(*kafka.SchemaValue); cur.Fingerprint != record.Fingerprint {
				return storage.ErrSchemaIDConflict
			}
		}
	}

	if _, found := s.cache.Get(schemaKey(registryCtx, record.Subject, record.Version)); found {
		return storage.ErrSchemaExists
	}

	if err := s.log.Put(ctx, schemaKey(registryCtx, record.Subject, record.Version), toSchemaValue(record)); err != nil {
		return wrapStoreErr(err)
	}
	s.idgen.Reserve(record.ID)
	return nil
}

func (s *kafkaStore) DeleteSchema(ctx context.Context, registryCtx string, subject string, version int, permanent bool) error {
	lock := s.log.LockFor(subject)
	lock.Lock()
	defer lock.Unlock()

	if err := s.barrier(ctx, subject); err != nil {
		return err
	}

	v, found := s.cache.Get(schemaKey(registryCtx, subject, version))
	if !found {
		return storage.ErrVersionNotFound
	}
	sv := v.(*kafka.SchemaValue)

	if permanent {
		if !sv.Deleted {
			return storage.ErrVersionNotSoftDeleted
		}
		if err := s.log.Delete(ctx, schemaKey(registryCtx, subject, version)); err != nil {
			return wrapStoreErr(err)
		}
		return nil
	}

	updated := *sv
	updated.Deleted = true
	if err := s.log.Put(ctx, schemaKey(registryCtx, subject, version), &updated); err != nil {
		return wrapStoreErr(err)
	}
	return nil
}

func (s *kafkaStore) DeleteSubject(ctx context.Context, registryCtx string, subject string, permanent bool) ([]int, error) {
	lock := s.log.LockFor(subject)
	lock.Lock()
	defer lock.Unlock()

	if err := s.barrier(ctx, subject); err != nil {
		return nil, err
	}

	versions := s.cache.SubjectVersions(registryCtx, subject, true)
	if len(versions) == 0 {
		return nil, storage.ErrSubjectNotFound
	}

	nums := make([]int, 0, len(versions))
	for _, v := range versions {
		nums = append(nums, v.Version)
	}
	sort.Ints(nums)

	if permanent {
		for _, v := range versions {
			if err := s.log.Delete(ctx, schemaKey(registryCtx, subject, v.Version)); err != nil {
				return nil, wrapStoreErr(err)
			}
		}
		return nums, nil
	}

	watermark := nums[len(nums)-1]
	key := kafka.Key{KeyType: kafka.KindDeleteSubject, Context: registryCtx, Subject: subject}
	value := &kafka.DeleteSubjectValue{Subject: subject, WatermarkVersion: watermark}
	if err := s.log.Put(ctx, key, value); err != nil {
		return nil, wrapStoreErr(err)
	}
	return nums, nil
}

func (s *kafkaStore) GetSchemaByID(ctx context.Context, registryCtx string, id int64) (*storage.SchemaRecord, error) {
	subject, version, ok := s.cache.SchemaKeyByID(registryCtx, id, "")
	if !ok {
		return nil, storage.ErrSchemaNotFound
	}
	return s.GetSchemaBySubjectVersion(ctx, registryCtx, subject, version)
}

func (s *kafkaStore) GetSchemaByFingerprint(_ context.Context, registryCtx string, subject string, fingerprint string, includeDeleted bool) (*storage.SchemaRecord, error) {
	_, subjects, ok := s.cache.SchemaIDAndSubjects(registryCtx, fingerprint)
	if !ok {
		return nil, storage.ErrSchemaNotFound
	}
	version, ok := subjects[subject]
	if !ok {
		return nil, storage.ErrSchemaNotFound
	}
	v, ok := s.cache.Get(schemaKey(registryCtx, subject, version))
	if !ok {
		return nil, storage.ErrSchemaNotFound
	}
	sv := v.(*kafka.SchemaValue)
	if sv.Deleted && !includeDeleted {
		return nil, storage.ErrSchemaNotFound
	}
	return toSchemaRecord(sv), nil
}

func (s *kafkaStore) GetSchemaBySubjectVersion(_ context.Context, registryCtx string, subject string, version int) (*storage.SchemaRecord, error) {
	v, ok := s.cache.Get(schemaKey(registryCtx, subject, version))
	if !ok {
		return nil, storage.ErrVersionNotFound
	}
	sv := v.(*kafka.SchemaValue)
	if sv.Deleted {
		return nil, storage.ErrVersionNotFound
	}
	return toSchemaRecord(sv), nil
}

func (s *kafkaStore) GetSchemasBySubject(_ context.Context, registryCtx string, subject string, includeDeleted bool) ([]*storage.SchemaRecord, error) {
	versions := s.cache.SubjectVersions(registryCtx, subject, includeDeleted)
	if len(versions) == 0 {
		return nil, storage.ErrSubjectNotFound
	}
	out := make([]*storage.SchemaRecord, 0, len(versions))
	for _, v := range versions {
		out = append(out, toSchemaRecord(v))
	}
	return out, nil
}

func (s *kafkaStore) GetLatestSchema(_ context.Context, registryCtx string, subject string) (*storage.SchemaRecord, error) {
	versions := s.cache.SubjectVersions(registryCtx, subject, false)
	if len(versions) == 0 {
		return nil, storage.ErrSubjectNotFound
	}
	return toSchemaRecord(versions[len(versions)-1]), nil
}

func (s *kafkaStore) GetMaxSchemaID(_ context.Context, registryCtx string) (int64, error) {
	return s.cache.MaxSchemaID(registryCtx), nil
}

func (s *kafkaStore) GetReferencedBy(_ context.Context, registryCtx string, subject string, version int) ([]storage.SubjectVersion, error) {
	ids := s.cache.ReferencesSchema(registryCtx, subject, version)
	out := make([]storage.SubjectVersion, 0, len(ids))
	for id := range ids {
		if subj, ver, ok := s.cache.SchemaKeyByID(registryCtx, id, ""); ok {
			out = append(out, storage.SubjectVersion{Subject: subj, Version: ver})
		}
	}
	return out, nil
}

func (s *kafkaStore) GetSubjectsBySchemaID(_ context.Context, registryCtx string, id int64, includeDeleted bool) ([]string, error) {
	var out []string
	for _, subject := range s.cache.Subjects(registryCtx, "", includeDeleted) {
		for _, v := range s.cache.SubjectVersions(registryCtx, subject, includeDeleted) {
			if v.ID == id {
				out = append(out, subject)
				break
			}
		}
	}
	if len(out) == 0 {
		return nil, storage.ErrSchemaNotFound
	}
	return out, nil
}

func (s *kafkaStore) GetVersionsBySchemaID(_ context.Context, registryCtx string, id int64, includeDeleted bool) ([]storage.SubjectVersion, error) {
	var out []storage.SubjectVersion
	for _, subject := range s.cache.Subjects(registryCtx, "", includeDeleted) {
		for _, v := range s.cache.SubjectVersions(registryCtx, subject, includeDeleted) {
			if v.ID == id {
				out = append(out, storage.SubjectVersion{Subject: subject, Version: v.Version})
			}
		}
	}
	if len(out) == 0 {
		return nil, storage.ErrSchemaNotFound
	}
	return out, nil
}

func (s *kafkaStore) ListSchemas(_ context.Context, registryCtx string, params *storage.ListSchemasParams) ([]*storage.SchemaRecord, error) {
	var out []*storage.SchemaRecord
	for _, subject := range s.cache.Subjects(registryCtx, params.SubjectPrefix, params.Deleted) {
		versions := s.cache.SubjectVersions(registryCtx, subject, params.Deleted)
		if params.LatestOnly && len(versions) > 0 {
			versions = versions[len(versions)-1:]
		}
		for _, v := range versions {
			out = append(out, toSchemaRecord(v))
		}
	}
	if params.Offset > 0 {
		if params.Offset >= len(out) {
			return nil, nil
		}
		out = out[params.Offset:]
	}
	if params.Limit > 0 && params.Limit < len(out) {
		out = out[:params.Limit]
	}
	return out, nil
}

func (s *kafkaStore) ListSubjects(_ context.Context, registryCtx string, deleted bool) ([]string, error) {
	return s.cache.Subjects(registryCtx, "", deleted), nil
}

func (s *kafkaStore) ListContexts(_ context.Context) ([]string, error) {
	return s.cache.Contexts(), nil
}

func (s *kafkaStore) SubjectExists(_ context.Context, registryCtx string, subject string) (bool, error) {
	return len(s.cache.SubjectVersions(registryCtx, subject, false)) > 0, nil
}

func (s *kafkaStore) SetNextID(_ context.Context, _ string, nextID int64) error {
	s.idgen.Reserve(nextID - 1)
	return nil
}

func (s *kafkaStore) GetConfig(_ context.Context, registryCtx string, subject string) (*storage.ConfigRecord, error) {
	cv := s.cache.Config(registryCtx, subject, false, nil)
	if cv == nil {
		return nil, storage.ErrNotFound
	}
	return toConfigRecord(subject, cv), nil
}

func (s *kafkaStore) GetGlobalConfig(_ context.Context, registryCtx string) (*storage.ConfigRecord, error) {
	cv := s.cache.Config(registryCtx, "", true, nil)
	if cv == nil {
		return nil, storage.ErrNotFound
	}
	return toConfigRecord("", cv), nil
}

func (s *kafkaStore) SetConfig(ctx context.Context, registryCtx string, subject string, config *storage.ConfigRecord) error {
	key := kafka.Key{KeyType: kafka.KindConfig, Context: registryCtx, Subject: subject}
	return wrapStoreErr(s.log.Put(ctx, key, toConfigValue(config)))
}

func (s *kafkaStore) SetGlobalConfig(ctx context.Context, registryCtx string, config *storage.ConfigRecord) error {
	key := kafka.Key{KeyType: kafka.KindConfig, Context: registryCtx}
	return wrapStoreErr(s.log.Put(ctx, key, toConfigValue(config)))
}

func (s *kafkaStore) DeleteConfig(ctx context.Context, registryCtx string, subject string) error {
	key := kafka.Key{KeyType: kafka.KindConfig, Context: registryCtx, Subject: subject}
	return wrapStoreErr(s.log.Delete(ctx, key))
}

func (s *kafkaStore) DeleteGlobalConfig(ctx context.Context, registryCtx string) error {
	key := kafka.Key{KeyType: kafka.KindConfig, Context: registryCtx}
	return wrapStoreErr(s.log.Delete(ctx, key))
}

func (s *kafkaStore) GetMode(_ context.Context, registryCtx string, subject string) (*storage.ModeRecord, error) {
	mode := s.cache.Mode(registryCtx, subject, false, "")
	if mode == "" {
		return nil, storage.ErrNotFound
	}
	return &storage.ModeRecord{Subject: subject, Mode: mode}, nil
}

func (s *kafkaStore) GetGlobalMode(_ context.Context, registryCtx string) (*storage.ModeRecord, error) {
	mode := s.cache.Mode(registryCtx, "", true, "")
	if mode == "" {
		return nil, storage.ErrNotFound
	}
	return &storage.ModeRecord{Mode: mode}, nil
}

func (s *kafkaStore) SetMode(ctx context.Context, registryCtx string, subject string, mode *storage.ModeRecord) error {
	key := kafka.Key{KeyType: kafka.KindMode, Context: registryCtx, Subject: subject}
	if err := s.log.Put(ctx, key, &kafka.ModeValue{Mode: mode.Mode}); err != nil {
		return wrapStoreErr(err)
	}
	if mode.Mode == "IMPORT" {
		clearKey := kafka.Key{KeyType: kafka.KindClearSubject, Context: registryCtx, Subject: subject}
		if err := s.log.Put(ctx, clearKey, &kafka.ClearSubjectValue{Subject: subject}); err != nil {
			return wrapStoreErr(err)
		}
	}
	return nil
}

func (s *kafkaStore) SetGlobalMode(ctx context.Context, registryCtx string, mode *storage.ModeRecord) error {
	key := kafka.Key{KeyType: kafka.KindMode, Context: registryCtx}
	return wrapStoreErr(s.log.Put(ctx, key, &kafka.ModeValue{Mode: mode.Mode}))
}

func (s *kafkaStore) DeleteMode(ctx context.Context, registryCtx string, subject string) error {
	key := kafka.Key{KeyType: kafka.KindMode, Context: registryCtx, Subject: subject}
	return wrapStoreErr(s.log.Delete(ctx, key))
}

func (s *kafkaStore) DeleteGlobalMode(ctx context.Context, registryCtx string) error {
	key := kafka.Key{KeyType: kafka.KindMode, Context: registryCtx}
	return wrapStoreErr(s.log.Delete(ctx, key))
}

// IsHealthy reports liveness only; readiness (how far behind the consumer
// is) is a separate check surfaced by internal/node.Health.
func (s *kafkaStore) IsHealthy(_ context.Context) bool {
	return true
}

func toConfigRecord(subject string, cv *kafka.ConfigValue) *storage.ConfigRecord {
	return &storage.ConfigRecord{
		Subject:            subject,
		CompatibilityLevel: cv.CompatibilityLevel,
		Normalize:          cv.Normalize,
		ValidateFields:     cv.ValidateFields,
		Alias:              cv.Alias,
		CompatibilityGroup: cv.CompatibilityGroup,
		DefaultMetadata:    cv.DefaultMetadata,
		OverrideMetadata:   cv.OverrideMetadata,
		DefaultRuleSet:     cv.DefaultRuleSet,
		OverrideRuleSet:    cv.OverrideRuleSet,
	}
}

func toConfigValue(cr *storage.ConfigRecord) *kafka.ConfigValue {
	return &kafka.ConfigValue{
		CompatibilityLevel: cr.CompatibilityLevel,
		Normalize:          cr.Normalize,
		ValidateFields:     cr.ValidateFields,
		Alias:              cr.Alias,
		CompatibilityGroup: cr.CompatibilityGroup,
		DefaultMetadata:    cr.DefaultMetadata,
		OverrideMetadata:   cr.OverrideMetadata,
		DefaultRuleSet:     cr.DefaultRuleSet,
		OverrideRuleSet:    cr.OverrideRuleSet,
	}
}

func wrapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	switch err {
	case kafka.ErrNotLeader:
		return ErrNotLeader
	case kafka.ErrTimeout:
		return ErrTimeout
	case kafka.ErrTooLarge:
		return ErrSchemaTooLarge
	default:
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
}
