package kafka

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/kafkasr/schema-registry/internal/storage"
)

// RecordKind discriminates the key/value records written to the log.
type RecordKind string

const (
	KindSchema        RecordKind = "SCHEMA"
	KindConfig        RecordKind = "CONFIG"
	KindMode          RecordKind = "MODE"
	KindContext       RecordKind = "CONTEXT"
	KindDeleteSubject RecordKind = "DELETE_SUBJECT"
	KindClearSubject  RecordKind = "CLEAR_SUBJECT"
	KindNoop          RecordKind = "NOOP"
)

// Key is the common shape of every log record key: a keytype discriminator
// plus the fields needed to address the record, scoped to a registry context.
type Key struct {
	KeyType RecordKind `json:"keytype"`
	Tenant  string     `json:"tenant,omitempty"`
	Context string     `json:"context"`
	Subject string     `json:"subject,omitempty"`
	Version int        `json:"version,omitempty"`
}

// String renders the key as a stable string for use as the Kafka record key
// and as a map key inside the lookup cache.
func (k Key) String() string {
	switch k.KeyType {
	case KindSchema:
		return fmt.Sprintf("%s|%s|%s|%d", k.KeyType, k.Context, k.Subject, k.Version)
	case KindConfig, KindMode, KindDeleteSubject, KindClearSubject:
		return fmt.Sprintf("%s|%s|%s", k.KeyType, k.Context, k.Subject)
	case KindContext:
		return fmt.Sprintf("%s|%s|%s", k.KeyType, k.Tenant, k.Context)
	default:
		return string(k.KeyType)
	}
}

// SchemaValue is the value half of a Schema record.
type SchemaValue struct {
	ID          int64               `json:"id"`
	Subject     string              `json:"subject"`
	Version     int                 `json:"version"`
	SchemaType  storage.SchemaType  `json:"schemaType"`
	Schema      string              `json:"schema"`
	References  []storage.Reference `json:"references,omitempty"`
	Metadata    *storage.Metadata   `json:"metadata,omitempty"`
	RuleSet     *storage.RuleSet    `json:"ruleSet,omitempty"`
	Deleted     bool                `json:"deleted,omitempty"`
	Fingerprint string              `json:"fingerprint,omitempty"`
}

// ConfigValue is the value half of a Config record.
type ConfigValue struct {
	CompatibilityLevel string             `json:"compatibilityLevel,omitempty"`
	CompatibilityGroup string             `json:"compatibilityGroup,omitempty"`
	Normalize          *bool              `json:"normalize,omitempty"`
	ValidateFields     *bool              `json:"validateFields,omitempty"`
	Alias              string             `json:"alias,omitempty"`
	DefaultMetadata    *storage.Metadata  `json:"defaultMetadata,omitempty"`
	OverrideMetadata   *storage.Metadata  `json:"overrideMetadata,omitempty"`
	DefaultRuleSet     *storage.RuleSet   `json:"defaultRuleSet,omitempty"`
	OverrideRuleSet    *storage.RuleSet   `json:"overrideRuleSet,omitempty"`
}

// ModeValue is the value half of a Mode record.
type ModeValue struct {
	Mode string `json:"mode"`
}

// ContextValue marks that a non-default context exists.
type ContextValue struct {
	Tenant  string `json:"tenant"`
	Context string `json:"context"`
}

// DeleteSubjectValue is a soft-delete watermark for an entire subject.
type DeleteSubjectValue struct {
	Subject          string `json:"subject"`
	WatermarkVersion int    `json:"version"`
}

// ClearSubjectValue requests caches evict any deleted-schema state for a subject.
type ClearSubjectValue struct {
	Subject string `json:"subject"`
}

// Value is the decoded payload attached to a Key. A tombstone decodes to a
// nil Value with no error.
type Value interface{}

// EncodeKey serializes a Key to its canonical JSON wire form.
func EncodeKey(key Key) ([]byte, error) {
	return json.Marshal(key)
}

// DecodeKey parses a Key from its wire form.
func DecodeKey(b []byte) (Key, error) {
	var k Key
	if err := json.Unmarshal(b, &k); err != nil {
		return Key{}, fmt.Errorf("decode key: %w", err)
	}
	if k.KeyType == "" {
		return Key{}, fmt.Errorf("decode key: missing keytype")
	}
	return k, nil
}

// EncodeValue serializes a Value to its canonical JSON wire form. A nil value
// (or one typed as a nil pointer) encodes to a nil byte slice, signaling a
// tombstone to the log.
func EncodeValue(value Value) ([]byte, error) {
	if value == nil {
		return nil, nil
	}
	if rv := reflect.ValueOf(value); rv.Kind() == reflect.Ptr && rv.IsNil() {
		return nil, nil
	}
	return json.Marshal(value)
}

// DecodeValue parses the value half of a record given its key's kind. A
// nil/empty byte slice decodes to a nil Value, i.e. a tombstone.
func DecodeValue(kind RecordKind, b []byte) (Value, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var (
		v   Value
		err error
	)
	switch kind {
	case KindSchema:
		var sv SchemaValue
		err = json.Unmarshal(b, &sv)
		v = &sv
	case KindConfig:
		var cv ConfigValue
		err = json.Unmarshal(b, &cv)
		v = &cv
	case KindMode:
		var mv ModeValue
		err = json.Unmarshal(b, &mv)
		v = &mv
	case KindContext:
		var ctxv ContextValue
		err = json.Unmarshal(b, &ctxv)
		v = &ctxv
	case KindDeleteSubject:
		var dv DeleteSubjectValue
		err = json.Unmarshal(b, &dv)
		v = &dv
	case KindClearSubject:
		var cv ClearSubjectValue
		err = json.Unmarshal(b, &cv)
		v = &cv
	case KindNoop:
		v = nil
	default:
		return nil, fmt.Errorf("decode value: unknown keytype %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return v, nil
}
