// Package memory provides a plain in-memory storage.Store. It backs the
// standalone single-node mode and the test harnesses, where replication
// through the log would add nothing.
package memory

import (
	"context"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/kafkasr/schema-registry/internal/storage"
)

// Store keeps every record in per-context maps guarded by one RWMutex.
// Registration, lookup, and delete semantics match the log-backed store so
// the registry core behaves identically against either.
type Store struct {
	mu       sync.RWMutex
	contexts map[string]*contextStore
}

type subjectVersion struct {
	schemaID  int64
	version   int
	deleted   bool
	createdAt time.Time
	metadata  *storage.Metadata
	ruleSet   *storage.RuleSet
}

type contextStore struct {
	schemas            map[int64]*storage.SchemaRecord
	subjectVersions    map[string]map[int]*subjectVersion
	nextSubjectVersion map[string]int
	fingerprints       map[string]int64
	idToSubjectVersion map[int64][]storage.SubjectVersion
	configs            map[string]*storage.ConfigRecord
	modes              map[string]*storage.ModeRecord
	globalConfig       *storage.ConfigRecord
	globalMode         *storage.ModeRecord
	nextID             int64
}

func newContextStore() *contextStore {
	return &contextStore{
		schemas:             make(map[int64]*storage.SchemaRecord),
		subjectVersions:     make(map[string]map[int]*subjectVersion),
		nextSubjectVersion:  make(map[string]int),
		fingerprints:        make(map[string]int64),
		idToSubjectVersion:  make(map[int64][]storage.SubjectVersion),
		configs:             make(map[string]*storage.ConfigRecord),
		modes:               make(map[string]*storage.ModeRecord),
		nextID:              1,
	}
}

func NewStore() *Store {
	return &Store{contexts: map[string]*contextStore{".": newContextStore()}}
}

func (s *Store) getOrCreate(registryCtx string) *contextStore {
	cs, ok := s.contexts[registryCtx]
	if !ok {
		cs = newContextStore()
		s.contexts[registryCtx] = cs
	}
	return cs
}

func (s *Store) get(registryCtx string) *contextStore {
	return s.contexts[registryCtx]
}

func (s *Store) CreateSchema(ctx context.Context, registryCtx string, record *storage.SchemaRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs := s.getOrCreate(registryCtx)
	if cs.subjectVersions[record.Subject] == nil {
		cs.subjectVersions[record.Subject] = make(map[int]*subjectVersion)
	}

	for _, info := range cs.subjectVersions[record.Subject] {
		if info.deleted {
			continue
		}
		existing := cs.schemas[info.schemaID]
		if existing != nil && existing.Fingerprint == record.Fingerprint &&
			reflect.DeepEqual(info.metadata, record.Metadata) &&
			reflect.DeepEqual(info.ruleSet, record.RuleSet) {
			record.ID = info.schemaID
			record.Version = info.version
			return storage.ErrSchemaExists
		}
	}

	var schemaID int64
	if existingID, ok := cs.fingerprints[record.Fingerprint]; ok {
		schemaID = existingID
	} else {
		schemaID = cs.nextID
		cs.nextID++
		cs.fingerprints[record.Fingerprint] = schemaID
		cs.schemas[schemaID] = &storage.SchemaRecord{
			ID:          schemaID,
			SchemaType:  record.SchemaType,
			Schema:      record.Schema,
			References:  record.References,
			Fingerprint: record.Fingerprint,
		}
	}

	cs.nextSubjectVersion[record.Subject]++
	version := cs.nextSubjectVersion[record.Subject]
	cs.subjectVersions[record.Subject][version] = &subjectVersion{
		schemaID:  schemaID,
		version:   version,
		createdAt: record.CreatedAt,
		metadata:  record.Metadata,
		ruleSet:   record.RuleSet,
	}
	cs.idToSubjectVersion[schemaID] = append(cs.idToSubjectVersion[schemaID], storage.SubjectVersion{Subject: record.Subject, Version: version})

	record.ID = schemaID
	record.Version = version
	return nil
}

func (s *Store) ImportSchema(ctx context.Context, registryCtx string, record *storage.SchemaRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs := s.getOrCreate(registryCtx)

	if existing, ok := cs.schemas[record.ID]; ok && existing.Fingerprint != record.Fingerprint {
		return storage.ErrSchemaIDConflict
	}
	if cs.subjectVersions[record.Subject] == nil {
		cs.subjectVersions[record.Subject] = make(map[int]*subjectVersion)
	}
	if _, ok := cs.subjectVersions[record.Subject][record.Version]; ok {
		return storage.ErrSchemaExists
	}

	if _, ok := cs.schemas[record.ID]; !ok {
		cs.schemas[record.ID] = &storage.SchemaRecord{
			ID:          record.ID,
			SchemaType:  record.SchemaType,
			Schema:      record.Schema,
			References:  record.References,
			Fingerprint: record.Fingerprint,
		}
	}
	cs.fingerprints[record.Fingerprint] = record.ID
	cs.subjectVersions[record.Subject][record.Version] = &subjectVersion{
		schemaID: record.ID,
		version:  record.Version,
		metadata: record.Metadata,
		ruleSet:  record.RuleSet,
	}
	if record.Version >= cs.nextSubjectVersion[record.Subject] {
		cs.nextSubjectVersion[record.Subject] = record.Version
	}
	cs.idToSubjectVersion[record.ID] = append(cs.idToSubjectVersion[record.ID], storage.SubjectVersion{Subject: record.Subject, Version: record.Version})
	return nil
}

func (s *Store) DeleteSchema(ctx context.Context, registryCtx string, subject string, version int, permanent bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs := s.get(registryCtx)
	if cs == nil {
		return storage.ErrSubjectNotFound
	}
	vm := cs.subjectVersions[subject]
	if len(vm) == 0 {
		return storage.ErrSubjectNotFound
	}
	info, ok := vm[version]
	if !ok {
		return storage.ErrVersionNotFound
	}
	if permanent && !info.deleted {
		return storage.ErrVersionNotSoftDeleted
	}
	if !permanent {
		info.deleted = true
		return nil
	}
	delete(vm, version)
	cs.idToSubjectVersion[info.schemaID] = removeSubjectVersion(cs.idToSubjectVersion[info.schemaID], subject, version)
	if len(cs.idToSubjectVersion[info.schemaID]) == 0 {
		if schema := cs.schemas[info.schemaID]; schema != nil {
			delete(cs.fingerprints, schema.Fingerprint)
		}
		delete(cs.schemas, info.schemaID)
		delete(cs.idToSubjectVersion, info.schemaID)
	}
	return nil
}

func removeSubjectVersion(svs []storage.SubjectVersion, subject string, version int) []storage.SubjectVersion {
	out := make([]storage.SubjectVersion, 0, len(svs))
	for _, sv := range svs {
		if sv.Subject != subject || sv.Version != version {
			out = append(out, sv)
		}
	}
	return out
}

func (s *Store) DeleteSubject(ctx context.Context, registryCtx string, subject string, permanent bool) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs := s.get(registryCtx)
	if cs == nil {
		return nil, storage.ErrSubjectNotFound
	}
	vm := cs.subjectVersions[subject]
	if len(vm) == 0 {
		return nil, storage.ErrSubjectNotFound
	}

	allDeleted := true
	for _, info := range vm {
		if !info.deleted {
			allDeleted = false
			break
		}
	}
	if permanent && !allDeleted {
		return nil, storage.ErrSubjectNotSoftDeleted
	}
	if !permanent && allDeleted {
		return nil, storage.ErrSubjectDeleted
	}

	var deleted []int
	for version, info := range vm {
		if info.deleted && !permanent {
			continue
		}
		deleted = append(deleted, version)
		if permanent {
			cs.idToSubjectVersion[info.schemaID] = removeSubjectVersion(cs.idToSubjectVersion[info.schemaID], subject, version)
			if len(cs.idToSubjectVersion[info.schemaID]) == 0 {
				if schema := cs.schemas[info.schemaID]; schema != nil {
					delete(cs.fingerprints, schema.Fingerprint)
				}
				delete(cs.schemas, info.schemaID)
				delete(cs.idToSubjectVersion, info.schemaID)
			}
		} else {
			info.deleted = true
		}
	}
	sort.Ints(deleted)
	if permanent {
		delete(cs.subjectVersions, subject)
		delete(cs.nextSubjectVersion, subject)
		delete(cs.configs, subject)
		delete(cs.modes, subject)
	}
	return deleted, nil
}

func (s *Store) GetSchemaByID(ctx context.Context, registryCtx string, id int64) (*storage.SchemaRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cs := s.get(registryCtx)
	if cs == nil {
		return nil, storage.ErrSchemaNotFound
	}
	schema, ok := cs.schemas[id]
	if !ok {
		return nil, storage.ErrSchemaNotFound
	}
	return schema, nil
}

func (s *Store) GetSchemaByFingerprint(ctx context.Context, registryCtx string, subject string, fingerprint string, includeDeleted bool) (*storage.SchemaRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cs := s.get(registryCtx)
	if cs == nil {
		return nil, storage.ErrSubjectNotFound
	}
	vm, ok := cs.subjectVersions[subject]
	if !ok || len(vm) == 0 {
		return nil, storage.ErrSubjectNotFound
	}
	for version, info := range vm {
		if info.deleted && !includeDeleted {
			continue
		}
		schema := cs.schemas[info.schemaID]
		if schema != nil && schema.Fingerprint == fingerprint {
			return snapshotRecord(schema, subject, version, info), nil
		}
	}
	return nil, storage.ErrSchemaNotFound
}

func (s *Store) GetSchemaBySubjectVersion(ctx context.Context, registryCtx string, subject string, version int) (*storage.SchemaRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cs := s.get(registryCtx)
	if cs == nil {
		return nil, storage.ErrSubjectNotFound
	}
	vm := cs.subjectVersions[subject]
	if len(vm) == 0 {
		return nil, storage.ErrSubjectNotFound
	}
	if version == -1 {
		latest := 0
		for v, info := range vm {
			if !info.deleted && v > latest {
				latest = v
			}
		}
		if latest == 0 {
			return nil, storage.ErrSubjectNotFound
		}
		version = latest
	}
	info, ok := vm[version]
	if !ok || info.deleted {
		return nil, storage.ErrVersionNotFound
	}
	schema := cs.schemas[info.schemaID]
	if schema == nil {
		return nil, storage.ErrSchemaNotFound
	}
	return snapshotRecord(schema, subject, version, info), nil
}

func (s *Store) GetSchemasBySubject(ctx context.Context, registryCtx string, subject string, includeDeleted bool) ([]*storage.SchemaRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cs := s.get(registryCtx)
	if cs == nil {
		return nil, storage.ErrSubjectNotFound
	}
	vm := cs.subjectVersions[subject]
	if len(vm) == 0 {
		return nil, storage.ErrSubjectNotFound
	}
	var out []*storage.SchemaRecord
	for version, info := range vm {
		if !includeDeleted && info.deleted {
			continue
		}
		if schema := cs.schemas[info.schemaID]; schema != nil {
			out = append(out, snapshotRecord(schema, subject, version, info))
		}
	}
	if len(out) == 0 {
		return nil, storage.ErrSubjectNotFound
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (s *Store) GetLatestSchema(ctx context.Context, registryCtx string, subject string) (*storage.SchemaRecord, error) {
	return s.GetSchemaBySubjectVersion(ctx, registryCtx, subject, -1)
}

func (s *Store) GetMaxSchemaID(ctx context.Context, registryCtx string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cs := s.get(registryCtx)
	if cs == nil {
		return 0, nil
	}
	return cs.nextID - 1, nil
}

func (s *Store) GetReferencedBy(ctx context.Context, registryCtx string, subject string, version int) ([]storage.SubjectVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cs := s.get(registryCtx)
	if cs == nil {
		return nil, nil
	}
	var refs []storage.SubjectVersion
	for subj, vm := range cs.subjectVersions {
		for ver, info := range vm {
			if info.deleted {
				continue
			}
			schema := cs.schemas[info.schemaID]
			if schema == nil {
				continue
			}
			for _, ref := range schema.References {
				if ref.Subject == subject && ref.Version == version {
					refs = append(refs, storage.SubjectVersion{Subject: subj, Version: ver})
					break
				}
			}
		}
	}
	return refs, nil
}

func (s *Store) GetSubjectsBySchemaID(ctx context.Context, registryCtx string, id int64, includeDeleted bool) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cs := s.get(registryCtx)
	if cs == nil {
		return nil, storage.ErrSchemaNotFound
	}
	if _, ok := cs.schemas[id]; !ok {
		return nil, storage.ErrSchemaNotFound
	}
	set := make(map[string]bool)
	for _, sv := range cs.idToSubjectVersion[id] {
		if vm, ok := cs.subjectVersions[sv.Subject]; ok {
			if info, ok := vm[sv.Version]; ok && (includeDeleted || !info.deleted) {
				set[sv.Subject] = true
			}
		}
	}
	out := make([]string, 0, len(set))
	for subj := range set {
		out = append(out, subj)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) GetVersionsBySchemaID(ctx context.Context, registryCtx string, id int64, includeDeleted bool) ([]storage.SubjectVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cs := s.get(registryCtx)
	if cs == nil {
		return nil, storage.ErrSchemaNotFound
	}
	if _, ok := cs.schemas[id]; !ok {
		return nil, storage.ErrSchemaNotFound
	}
	var out []storage.SubjectVersion
	for _, sv := range cs.idToSubjectVersion[id] {
		if vm, ok := cs.subjectVersions[sv.Subject]; ok {
			if info, ok := vm[sv.Version]; ok && (includeDeleted || !info.deleted) {
				out = append(out, sv)
			}
		}
	}
	return out, nil
}

func (s *Store) ListSchemas(ctx context.Context, registryCtx string, params *storage.ListSchemasParams) ([]*storage.SchemaRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cs := s.get(registryCtx)
	if cs == nil {
		return nil, nil
	}
	latest := make(map[string]int)
	if params.LatestOnly {
		for subject, vm := range cs.subjectVersions {
			best := 0
			for v, info := range vm {
				if (params.Deleted || !info.deleted) && v > best {
					best = v
				}
			}
			if best > 0 {
				latest[subject] = best
			}
		}
	}
	var out []*storage.SchemaRecord
	for subject, vm := range cs.subjectVersions {
		if params.SubjectPrefix != "" && (len(subject) < len(params.SubjectPrefix) || subject[:len(params.SubjectPrefix)] != params.SubjectPrefix) {
			continue
		}
		for version, info := range vm {
			if !params.Deleted && info.deleted {
				continue
			}
			if params.LatestOnly && latest[subject] != version {
				continue
			}
			if schema := cs.schemas[info.schemaID]; schema != nil {
				out = append(out, snapshotRecord(schema, subject, version, info))
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
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

func (s *Store) ListSubjects(ctx context.Context, registryCtx string, deleted bool) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cs := s.get(registryCtx)
	if cs == nil {
		return nil, nil
	}
	var out []string
	for subject, vm := range cs.subjectVersions {
		if deleted {
			out = append(out, subject)
			continue
		}
		for _, info := range vm {
			if !info.deleted {
				out = append(out, subject)
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) ListContexts(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.contexts))
	for name := range s.contexts {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) SubjectExists(ctx context.Context, registryCtx string, subject string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cs := s.get(registryCtx)
	if cs == nil {
		return false, nil
	}
	for _, info := range cs.subjectVersions[subject] {
		if !info.deleted {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) SetNextID(ctx context.Context, registryCtx string, nextID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.getOrCreate(registryCtx).nextID = nextID
	return nil
}

func (s *Store) GetConfig(ctx context.Context, registryCtx string, subject string) (*storage.ConfigRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cs := s.get(registryCtx)
	if cs == nil {
		return nil, storage.ErrNotFound
	}
	cfg, ok := cs.configs[subject]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cfg, nil
}

func (s *Store) GetGlobalConfig(ctx context.Context, registryCtx string) (*storage.ConfigRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cs := s.get(registryCtx)
	if cs == nil || cs.globalConfig == nil {
		return nil, storage.ErrNotFound
	}
	return cs.globalConfig, nil
}

func (s *Store) SetConfig(ctx context.Context, registryCtx string, subject string, config *storage.ConfigRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs := s.getOrCreate(registryCtx)
	config.Subject = subject
	cs.configs[subject] = config
	return nil
}

func (s *Store) SetGlobalConfig(ctx context.Context, registryCtx string, config *storage.ConfigRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs := s.getOrCreate(registryCtx)
	config.Subject = ""
	cs.globalConfig = config
	return nil
}

func (s *Store) DeleteConfig(ctx context.Context, registryCtx string, subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs := s.get(registryCtx)
	if cs == nil {
		return storage.ErrNotFound
	}
	if _, ok := cs.configs[subject]; !ok {
		return storage.ErrNotFound
	}
	delete(cs.configs, subject)
	return nil
}

func (s *Store) DeleteGlobalConfig(ctx context.Context, registryCtx string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cs := s.get(registryCtx); cs != nil {
		cs.globalConfig = nil
	}
	return nil
}

func (s *Store) GetMode(ctx context.Context, registryCtx string, subject string) (*storage.ModeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cs := s.get(registryCtx)
	if cs == nil {
		return nil, storage.ErrNotFound
	}
	mode, ok := cs.modes[subject]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return mode, nil
}

func (s *Store) GetGlobalMode(ctx context.Context, registryCtx string) (*storage.ModeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cs := s.get(registryCtx)
	if cs == nil || cs.globalMode == nil {
		return nil, storage.ErrNotFound
	}
	return cs.globalMode, nil
}

func (s *Store) SetMode(ctx context.Context, registryCtx string, subject string, mode *storage.ModeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs := s.getOrCreate(registryCtx)
	mode.Subject = subject
	cs.modes[subject] = mode
	return nil
}

func (s *Store) SetGlobalMode(ctx context.Context, registryCtx string, mode *storage.ModeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs := s.getOrCreate(registryCtx)
	mode.Subject = ""
	cs.globalMode = mode
	return nil
}

func (s *Store) DeleteMode(ctx context.Context, registryCtx string, subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs := s.get(registryCtx)
	if cs == nil {
		return storage.ErrNotFound
	}
	if _, ok := cs.modes[subject]; !ok {
		return storage.ErrNotFound
	}
	delete(cs.modes, subject)
	return nil
}

func (s *Store) DeleteGlobalMode(ctx context.Context, registryCtx string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cs := s.get(registryCtx); cs != nil {
		cs.globalMode = nil
	}
	return nil
}

func (s *Store) IsHealthy(ctx context.Context) bool {
	return true
}

func snapshotRecord(schema *storage.SchemaRecord, subject string, version int, info *subjectVersion) *storage.SchemaRecord {
	return &storage.SchemaRecord{
		ID:          schema.ID,
		Subject:     subject,
		Version:     version,
		SchemaType:  schema.SchemaType,
		Schema:      schema.Schema,
		References:  schema.References,
		Metadata:    info.metadata,
		RuleSet:     info.ruleSet,
		Fingerprint: schema.Fingerprint,
		Deleted:     info.deleted,
		CreatedAt:   info.createdAt,
	}
}
