// Package lookupcache is the in-memory, ordered materialization of the log:
// everything the registry core reads comes from here, fed exclusively by the
// LogStore consumer goroutine calling Apply.
//
// Indexing is one store per context, each holding maps keyed by
// subject+version, by fingerprint, and by id, populated by replaying the
// log.
package lookupcache

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/kafkasr/schema-registry/internal/kafka"
)

type fingerprintEntry struct {
	id       int64
	subjects map[string]int // subject -> version
}

type contextStore struct {
	schemas         map[string]map[int]*kafka.SchemaValue // subject -> version -> value
	fingerprints    map[string]*fingerprintEntry          // fingerprint -> entry
	ids             map[int64]map[string]int              // id -> subject -> version
	referencedBy    map[string]map[int64]bool             // "subject|version" -> set of referencing ids
	configs         map[string]*kafka.ConfigValue         // subject -> config
	modes           map[string]*kafka.ModeValue           // subject -> mode
	globalConfig    *kafka.ConfigValue
	globalMode      *kafka.ModeValue
	deletedSubjects map[string]int // subject -> watermark version, soft-deleted via DeleteSubject
}

func newContextStore() *contextStore {
	return &contextStore{
		schemas:         make(map[string]map[int]*kafka.SchemaValue),
		fingerprints:    make(map[string]*fingerprintEntry),
		ids:             make(map[int64]map[string]int),
		referencedBy:    make(map[string]map[int64]bool),
		configs:         make(map[string]*kafka.ConfigValue),
		modes:           make(map[string]*kafka.ModeValue),
		deletedSubjects: make(map[string]int),
	}
}

// Cache is the LookupCache: a single RWMutex-guarded structure, written
// exclusively by the LogStore consumer and read by every request-handling
// goroutine.
type Cache struct {
	mu       sync.RWMutex
	contexts map[string]*contextStore
	// knownContexts records every (tenant, context) marker ever observed, for
	// the cross-context id/subject lookup fallback.
	knownContexts map[string]bool
}

// NewCache constructs an empty cache, seeded with the default context so
// lookups against "." never need a nil check.
func NewCache() *Cache {
	return &Cache{
		contexts:      map[string]*contextStore{kafkaDefaultContext: newContextStore()},
		knownContexts: make(map[string]bool),
	}
}

// kafkaDefaultContext mirrors internal/context.DefaultContext without
// importing that package, avoiding a needless cross-package coupling for a
// single constant.
const kafkaDefaultContext = "."

func (c *Cache) contextStoreLocked(name string) *contextStore {
	if name == "" {
		name = kafkaDefaultContext
	}
	cs, ok := c.contexts[name]
	if !ok {
		cs = newContextStore()
		c.contexts[name] = cs
	}
	return cs
}

// Apply is the LogStore consumer's single entry point: deterministic and
// idempotent with respect to replay: the same log always rebuilds the
// same cache.
func (c *Cache) Apply(_ int64, key kafka.Key, value kafka.Value) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cs := c.contextStoreLocked(key.Context)

	switch key.KeyType {
	case kafka.KindSchema:
		if value == nil {
			c.applySchemaTombstone(cs, key)
			return
		}
		c.applySchemaPut(cs, key, value.(*kafka.SchemaValue))

	case kafka.KindConfig:
		c.applyConfig(cs, key, value)

	case kafka.KindMode:
		c.applyMode(cs, key, value)

	case kafka.KindContext:
		if value != nil {
			cv := value.(*kafka.ContextValue)
			c.knownContexts[cv.Tenant+"|"+cv.Context] = true
		}

	case kafka.KindDeleteSubject:
		if value == nil {
			delete(cs.deletedSubjects, key.Subject)
			return
		}
		dv := value.(*kafka.DeleteSubjectValue)
		cs.deletedSubjects[dv.Subject] = dv.WatermarkVersion

	case kafka.KindClearSubject:
		if value == nil {
			return
		}
		cv := value.(*kafka.ClearSubjectValue)
		c.clearDeletedVersionsLocked(cs, cv.Subject)

	case kafka.KindNoop:
		// advances the offset only; no state to apply.
	}
}

func (c *Cache) applySchemaPut(cs *contextStore, key kafka.Key, sv *kafka.SchemaValue) {
	versions, ok := cs.schemas[key.Subject]
	if !ok {
		versions = make(map[int]*kafka.SchemaValue)
		cs.schemas[key.Subject] = versions
	}
	if old, existed := versions[key.Version]; existed {
		c.unindexSchema(cs, key.Subject, key.Version, old)
	}
	versions[key.Version] = sv
	c.indexSchema(cs, key.Subject, key.Version, sv)
}

func (c *Cache) applySchemaTombstone(cs *contextStore, key kafka.Key) {
	versions, ok := cs.schemas[key.Subject]
	if !ok {
		return
	}
	old, ok := versions[key.Version]
	if !ok {
		return
	}
	c.unindexSchema(cs, key.Subject, key.Version, old)
	delete(versions, key.Version)
	if len(versions) == 0 {
		delete(cs.schemas, key.Subject)
	}
}

func (c *Cache) indexSchema(cs *contextStore, subject string, version int, sv *kafka.SchemaValue) {
	if sv.Fingerprint != "" {
		entry, ok := cs.fingerprints[sv.Fingerprint]
		if !ok {
			entry = &fingerprintEntry{id: sv.ID, subjects: make(map[string]int)}
			cs.fingerprints[sv.Fingerprint] = entry
		}
		entry.subjects[subject] = version
	}

	idEntry, ok := cs.ids[sv.ID]
	if !ok {
		idEntry = make(map[string]int)
		cs.ids[sv.ID] = idEntry
	}
	idEntry[subject] = version

	for _, ref := range sv.References {
		refKey := ref.Subject + "|" + strconv.Itoa(ref.Version)
		refs, ok := cs.referencedBy[refKey]
		if !ok {
			refs = make(map[int64]bool)
			cs.referencedBy[refKey] = refs
		}
		refs[sv.ID] = true
	}
}

func (c *Cache) unindexSchema(cs *contextStore, subject string, version int, sv *kafka.SchemaValue) {
	if sv.Fingerprint != "" {
		if entry, ok := cs.fingerprints[sv.Fingerprint]; ok {
			if v, ok := entry.subjects[subject]; ok && v == version {
				delete(entry.subjects, subject)
			}
			if len(entry.subjects) == 0 {
				delete(cs.fingerprints, sv.Fingerprint)
			}
		}
	}

	if idEntry, ok := cs.ids[sv.ID]; ok {
		if v, ok := idEntry[subject]; ok && v == version {
			delete(idEntry, subject)
		}
		if len(idEntry) == 0 {
			delete(cs.ids, sv.ID)
		}
	}

	for _, ref := range sv.References {
		refKey := ref.Subject + "|" + strconv.Itoa(ref.Version)
		if refs, ok := cs.referencedBy[refKey]; ok {
			delete(refs, sv.ID)
			if len(refs) == 0 {
				delete(cs.referencedBy, refKey)
			}
		}
	}
}

func (c *Cache) applyConfig(cs *contextStore, key kafka.Key, value kafka.Value) {
	if key.Subject == "" {
		if value == nil {
			cs.globalConfig = nil
			return
		}
		cv := value.(*kafka.ConfigValue)
		cs.globalConfig = cv
		return
	}
	if value == nil {
		delete(cs.configs, key.Subject)
		return
	}
	cs.configs[key.Subject] = value.(*kafka.ConfigValue)
}

func (c *Cache) applyMode(cs *contextStore, key kafka.Key, value kafka.Value) {
	if key.Subject == "" {
		if value == nil {
			cs.globalMode = nil
			return
		}
		cs.globalMode = value.(*kafka.ModeValue)
		return
	}
	if value == nil {
		delete(cs.modes, key.Subject)
		return
	}
	cs.modes[key.Subject] = value.(*kafka.ModeValue)
}

// clearDeletedVersionsLocked evicts every soft-deleted version of subject,
// used on IMPORT-mode transitions.
func (c *Cache) clearDeletedVersionsLocked(cs *contextStore, subject string) {
	versions, ok := cs.schemas[subject]
	if !ok {
		return
	}
	for v, sv := range versions {
		if sv.Deleted {
			c.unindexSchema(cs, subject, v, sv)
			delete(versions, v)
		}
	}
	if len(versions) == 0 {
		delete(cs.schemas, subject)
	}
}

// Get implements kafka.CacheReader.
func (c *Cache) Get(key kafka.Key) (kafka.Value, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cs, ok := c.contexts[orDefault(key.Context)]
	if !ok {
		return nil, false
	}

	switch key.KeyType {
	case kafka.KindSchema:
		versions, ok := cs.schemas[key.Subject]
		if !ok {
			return nil, false
		}
		sv, ok := versions[key.Version]
		return sv, ok
	case kafka.KindConfig:
		if key.Subject == "" {
			return cs.globalConfig, cs.globalConfig != nil
		}
		cv, ok := cs.configs[key.Subject]
		return cv, ok
	case kafka.KindMode:
		if key.Subject == "" {
			return cs.globalMode, cs.globalMode != nil
		}
		mv, ok := cs.modes[key.Subject]
		return mv, ok
	default:
		return nil, false
	}
}

// GetAll implements kafka.CacheReader: a range scan over schema records in
// (subject, version) order, inclusive of both endpoints. An empty
// startKey.Subject scans from the beginning; an empty endKey.Subject scans to
// the end.
func (c *Cache) GetAll(startKey, endKey kafka.Key) []kafka.Record {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cs, ok := c.contexts[orDefault(startKey.Context)]
	if !ok {
		return nil
	}

	var out []kafka.Record
	subjects := make([]string, 0, len(cs.schemas))
	for s := range cs.schemas {
		subjects = append(subjects, s)
	}
	sort.Strings(subjects)

	for _, subject := range subjects {
		if startKey.Subject != "" && subject < startKey.Subject {
			continue
		}
		if endKey.Subject != "" && subject > endKey.Subject {
			continue
		}
		versions := make([]int, 0, len(cs.schemas[subject]))
		for v := range cs.schemas[subject] {
			versions = append(versions, v)
		}
		sort.Ints(versions)
		for _, v := range versions {
			out = append(out, kafka.Record{
				Key:   kafka.Key{KeyType: kafka.KindSchema, Context: startKey.Context, Subject: subject, Version: v},
				Value: cs.schemas[subject][v],
			})
		}
	}
	return out
}

func orDefault(context string) string {
	if context == "" {
		return kafkaDefaultContext
	}
	return context
}

// SubjectVersions returns every version of subject known in contextName, in
// ascending version order.
func (c *Cache) SubjectVersions(contextName, subject string, includeDeleted bool) []*kafka.SchemaValue {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cs, ok := c.contexts[orDefault(contextName)]
	if !ok {
		return nil
	}
	versions, ok := cs.schemas[subject]
	if !ok {
		return nil
	}
	nums := make([]int, 0, len(versions))
	for v := range versions {
		nums = append(nums, v)
	}
	sort.Ints(nums)

	out := make([]*kafka.SchemaValue, 0, len(nums))
	for _, v := range nums {
		sv := versions[v]
		if !includeDeleted && sv.Deleted {
			continue
		}
		out = append(out, sv)
	}
	return out
}

// SchemaKeyByID returns any schema with the given id whose subject lives in
// contextName, preferring subjectHint if it holds that id. ok is false if no
// match exists in this context.
func (c *Cache) SchemaKeyByID(contextName string, id int64, subjectHint string) (subject string, version int, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cs, exists := c.contexts[orDefault(contextName)]
	if !exists {
		return "", 0, false
	}
	idEntry, ok := cs.ids[id]
	if !ok || len(idEntry) == 0 {
		return "", 0, false
	}
	if v, ok := idEntry[subjectHint]; ok {
		return subjectHint, v, true
	}
	// Deterministic fallback: smallest subject name.
	subjects := make([]string, 0, len(idEntry))
	for s := range idEntry {
		subjects = append(subjects, s)
	}
	sort.Strings(subjects)
	return subjects[0], idEntry[subjects[0]], true
}

// SchemaIDAndSubjects is the content-addressed dedup lookup: given a
// fingerprint, returns the shared id and the set of subjects (and, for each,
// the version) currently registered with that exact content.
func (c *Cache) SchemaIDAndSubjects(contextName, fingerprint string) (id int64, subjects map[string]int, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cs, exists := c.contexts[orDefault(contextName)]
	if !exists {
		return 0, nil, false
	}
	entry, ok := cs.fingerprints[fingerprint]
	if !ok || len(entry.subjects) == 0 {
		return 0, nil, false
	}
	out := make(map[string]int, len(entry.subjects))
	for s, v := range entry.subjects {
		out[s] = v
	}
	return entry.id, out, true
}

// ReferencesSchema returns the set of ids that reference (subject, version)
// in contextName.
func (c *Cache) ReferencesSchema(contextName, subject string, version int) map[int64]bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cs, ok := c.contexts[orDefault(contextName)]
	if !ok {
		return nil
	}
	refs, ok := cs.referencedBy[subject+"|"+strconv.Itoa(version)]
	if !ok {
		return nil
	}
	out := make(map[int64]bool, len(refs))
	for id := range refs {
		out[id] = true
	}
	return out
}

// Subjects returns every subject in contextName whose name has prefix,
// optionally including subjects soft-deleted via a DeleteSubject watermark.
func (c *Cache) Subjects(contextName, prefix string, includeDeleted bool) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cs, ok := c.contexts[orDefault(contextName)]
	if !ok {
		return nil
	}
	var out []string
	for subject := range cs.schemas {
		if prefix != "" && !strings.HasPrefix(subject, prefix) {
			continue
		}
		if !includeDeleted {
			if _, softDeleted := cs.deletedSubjects[subject]; softDeleted {
				continue
			}
			if !subjectHasUndeleted(cs, subject) {
				continue
			}
		}
		out = append(out, subject)
	}
	sort.Strings(out)
	return out
}

func subjectHasUndeleted(cs *contextStore, subject string) bool {
	for _, sv := range cs.schemas[subject] {
		if !sv.Deleted {
			return true
		}
	}
	return false
}

// Config resolves the effective config for subject. When inScope is true and
// no subject-specific config exists, it falls back to the context's global
// config, then to def.
func (c *Cache) Config(contextName, subject string, inScope bool, def *kafka.ConfigValue) *kafka.ConfigValue {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cs, ok := c.contexts[orDefault(contextName)]
	if !ok {
		return def
	}
	if subject != "" {
		if cv, ok := cs.configs[subject]; ok {
			return cv
		}
	}
	if inScope {
		if cs.globalConfig != nil {
			return cs.globalConfig
		}
	}
	return def
}

// Mode resolves the effective mode for subject the same way Config does.
func (c *Cache) Mode(contextName, subject string, inScope bool, def string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cs, ok := c.contexts[orDefault(contextName)]
	if !ok {
		return def
	}
	if subject != "" {
		if mv, ok := cs.modes[subject]; ok {
			return mv.Mode
		}
	}
	if inScope {
		if cs.globalMode != nil {
			return cs.globalMode.Mode
		}
	}
	return def
}

// IsSubjectSoftDeleted reports whether subject carries a DeleteSubject
// watermark in contextName.
func (c *Cache) IsSubjectSoftDeleted(contextName, subject string) (watermark int, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cs, exists := c.contexts[orDefault(contextName)]
	if !exists {
		return 0, false
	}
	v, ok := cs.deletedSubjects[subject]
	return v, ok
}

// MaxSchemaID returns the largest schema id observed in contextName, used by
// IdGenerator.Init to seed the next id after catching up to the log tail.
func (c *Cache) MaxSchemaID(contextName string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cs, ok := c.contexts[orDefault(contextName)]
	if !ok {
		return 0
	}
	var max int64
	for id := range cs.ids {
		if id > max {
			max = id
		}
	}
	return max
}

// HasContextMarker reports whether a Context marker record for name has been
// observed, under any tenant.
func (c *Cache) HasContextMarker(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for marker := range c.knownContexts {
		parts := strings.SplitN(marker, "|", 2)
		if len(parts) == 2 && parts[1] == name {
			return true
		}
	}
	return false
}

// Contexts returns every context name with at least one schema, config, or
// mode record, plus every context ever marked via a Context record.
func (c *Cache) Contexts() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[string]bool)
	for name := range c.contexts {
		seen[name] = true
	}
	for marker := range c.knownContexts {
		parts := strings.SplitN(marker, "|", 2)
		if len(parts) == 2 {
			seen[parts[1]] = true
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
