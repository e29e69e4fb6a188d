package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/sync/singleflight"

	registrycontext "github.com/kafkasr/schema-registry/internal/context"
	"github.com/kafkasr/schema-registry/internal/forwarder"
	"github.com/kafkasr/schema-registry/internal/kafka"
	"github.com/kafkasr/schema-registry/internal/leader"
	"github.com/kafkasr/schema-registry/internal/storage"
)

// Dispatcher adds leader-or-forward routing on top of Registry: every write
// either runs locally (this node is leader) or is forwarded to whichever
// node is (this node is a follower), and fails ErrUnknownLeader if no leader
// has been observed yet.
type Dispatcher struct {
	*Registry
	log     *kafka.LogStore
	elector leader.Elector
	forward *forwarder.Client
	dedup   singleflight.Group
}

// NewDispatcher wraps reg with leader-or-forward dispatch.
func NewDispatcher(reg *Registry, log *kafka.LogStore, elector leader.Elector, forward *forwarder.Client) *Dispatcher {
	return &Dispatcher{Registry: reg, log: log, elector: elector, forward: forward}
}

func (d *Dispatcher) leaderURL() (string, error) {
	info, ok := d.elector.Leader()
	if !ok {
		return "", ErrUnknownLeader
	}
	return info.URL, nil
}

// forwardName renders the subject as it must appear in the forwarded URL: a
// non-default context travels inside the subject name itself, since the
// leader resolves context from the qualified form. An empty subject (a
// context-global config or mode operation) stays empty.
func (d *Dispatcher) forwardName(registryCtx, subject string) string {
	if subject == "" {
		return ""
	}
	return registrycontext.QualifySubject(registryCtx, subject)
}

// RegisterOrForward runs a read-only dedup probe, then either a local
// register (leader) or a forwarded call (follower).
// Concurrent identical probes for the same subject collapse through
// singleflight so a burst of identical concurrent registrations pays for one
// barrier+lock cycle instead of N.
func (d *Dispatcher) RegisterOrForward(ctx context.Context, registryCtx, subject, schemaStr string, schemaType storage.SchemaType, refs []storage.Reference, normalize bool, headers http.Header, opts ...RegisterOpts) (*storage.SchemaRecord, error) {
	probeKey := registryCtx + "|" + subject + "|" + schemaStr
	v, err, _ := d.dedup.Do(probeKey, func() (interface{}, error) {
		return d.Registry.LookupSchema(ctx, registryCtx, subject, schemaStr, schemaType, refs, false, normalize)
	})
	if err == nil {
		if rec, ok := v.(*storage.SchemaRecord); ok && rec != nil {
			return rec, nil
		}
	}

	lock := d.log.LockFor(subject)
	lock.Lock()
	defer lock.Unlock()

	if d.log.IsLeader() {
		return d.Registry.RegisterSchema(ctx, registryCtx, subject, schemaStr, schemaType, refs, opts...)
	}

	leaderURL, lerr := d.leaderURL()
	if lerr != nil {
		return nil, lerr
	}

	var opt RegisterOpts
	if len(opts) > 0 {
		opt = opts[0]
	}
	body, merr := json.Marshal(forwardRegisterBody{
		Schema:     schemaStr,
		SchemaType: schemaType,
		References: refs,
		Metadata:   opt.Metadata,
		RuleSet:    opt.RuleSet,
	})
	if merr != nil {
		return nil, fmt.Errorf("registry: encode forwarded body: %w", merr)
	}
	respBody, ferr := d.forward.RegisterSchema(ctx, leaderURL, headers, d.forwardName(registryCtx, subject), normalize, body)
	if ferr != nil {
		return nil, translateForwardErr(ferr)
	}
	var resp struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("%w: decoding leader response: %v", ErrRequestForwarding, err)
	}
	return &storage.SchemaRecord{ID: resp.ID, Subject: subject, Schema: schemaStr, SchemaType: schemaType}, nil
}

type forwardRegisterBody struct {
	Schema     string              `json:"schema"`
	SchemaType storage.SchemaType  `json:"schemaType,omitempty"`
	References []storage.Reference `json:"references,omitempty"`
	Metadata   *storage.Metadata   `json:"metadata,omitempty"`
	RuleSet    *storage.RuleSet    `json:"ruleSet,omitempty"`
}

// DeleteSchemaVersionOrForward dispatches a single-version delete per the
// same leader-or-forward rule as RegisterOrForward.
func (d *Dispatcher) DeleteSchemaVersionOrForward(ctx context.Context, registryCtx, subject string, version int, permanent bool, headers http.Header) (int, error) {
	lock := d.log.LockFor(subject)
	lock.Lock()
	defer lock.Unlock()

	if d.log.IsLeader() {
		return d.Registry.DeleteVersion(ctx, registryCtx, subject, version, permanent)
	}
	leaderURL, err := d.leaderURL()
	if err != nil {
		return 0, err
	}
	if _, err := d.forward.DeleteSchemaVersion(ctx, leaderURL, headers, d.forwardName(registryCtx, subject), version, permanent); err != nil {
		return 0, translateForwardErr(err)
	}
	return version, nil
}

// DeleteSubjectOrForward dispatches a whole-subject delete.
func (d *Dispatcher) DeleteSubjectOrForward(ctx context.Context, registryCtx, subject string, permanent bool, headers http.Header) ([]int, error) {
	lock := d.log.LockFor(subject)
	lock.Lock()
	defer lock.Unlock()

	if d.log.IsLeader() {
		return d.Registry.DeleteSubject(ctx, registryCtx, subject, permanent)
	}
	leaderURL, err := d.leaderURL()
	if err != nil {
		return nil, err
	}
	respBody, ferr := d.forward.DeleteSubject(ctx, leaderURL, headers, d.forwardName(registryCtx, subject), permanent)
	if ferr != nil {
		return nil, translateForwardErr(ferr)
	}
	var versions []int
	if err := json.Unmarshal(respBody, &versions); err != nil {
		return nil, fmt.Errorf("%w: decoding leader response: %v", ErrRequestForwarding, err)
	}
	return versions, nil
}

// SetConfigOrForward dispatches a config update.
func (d *Dispatcher) SetConfigOrForward(ctx context.Context, registryCtx, subject, level string, normalize *bool, headers http.Header, opts ...SetConfigOpts) error {
	lock := d.log.LockFor(subject)
	lock.Lock()
	defer lock.Unlock()

	if d.log.IsLeader() {
		return d.Registry.SetConfig(ctx, registryCtx, subject, level, normalize, opts...)
	}
	leaderURL, err := d.leaderURL()
	if err != nil {
		return err
	}
	var opt SetConfigOpts
	if len(opts) > 0 {
		opt = opts[0]
	}
	body, merr := json.Marshal(forwardConfigBody{
		Compatibility:      level,
		Normalize:          normalize,
		Alias:              opt.Alias,
		CompatibilityGroup: opt.CompatibilityGroup,
		ValidateFields:     opt.ValidateFields,
		DefaultMetadata:    opt.DefaultMetadata,
		OverrideMetadata:   opt.OverrideMetadata,
		DefaultRuleSet:     opt.DefaultRuleSet,
		OverrideRuleSet:    opt.OverrideRuleSet,
	})
	if merr != nil {
		return fmt.Errorf("registry: encode forwarded body: %w", merr)
	}
	_, ferr := d.forward.UpdateConfig(ctx, leaderURL, headers, d.forwardName(registryCtx, subject), body)
	return translateForwardErr(ferr)
}

type forwardConfigBody struct {
	Compatibility      string            `json:"compatibility,omitempty"`
	Normalize          *bool             `json:"normalize,omitempty"`
	Alias              string            `json:"alias,omitempty"`
	CompatibilityGroup string            `json:"compatibilityGroup,omitempty"`
	ValidateFields     *bool             `json:"validateFields,omitempty"`
	DefaultMetadata    *storage.Metadata `json:"defaultMetadata,omitempty"`
	OverrideMetadata   *storage.Metadata `json:"overrideMetadata,omitempty"`
	DefaultRuleSet     *storage.RuleSet  `json:"defaultRuleSet,omitempty"`
	OverrideRuleSet    *storage.RuleSet  `json:"overrideRuleSet,omitempty"`
}

// DeleteConfigOrForward dispatches a subject-level config deletion (revert to
// the context-level global config).
func (d *Dispatcher) DeleteConfigOrForward(ctx context.Context, registryCtx, subject string, headers http.Header) (string, error) {
	lock := d.log.LockFor(subject)
	lock.Lock()
	defer lock.Unlock()

	if d.log.IsLeader() {
		return d.Registry.DeleteConfig(ctx, registryCtx, subject)
	}
	leaderURL, err := d.leaderURL()
	if err != nil {
		return "", err
	}
	respBody, ferr := d.forward.DeleteConfig(ctx, leaderURL, headers, d.forwardName(registryCtx, subject))
	if ferr != nil {
		return "", translateForwardErr(ferr)
	}
	var resp struct {
		Compatibility string `json:"compatibility"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("%w: decoding leader response: %v", ErrRequestForwarding, err)
	}
	return resp.Compatibility, nil
}

// SetModeOrForward dispatches a mode change.
func (d *Dispatcher) SetModeOrForward(ctx context.Context, registryCtx, subject, mode string, force bool, headers http.Header) error {
	lock := d.log.LockFor(subject)
	lock.Lock()
	defer lock.Unlock()

	if d.log.IsLeader() {
		return d.Registry.SetMode(ctx, registryCtx, subject, mode, force)
	}
	leaderURL, err := d.leaderURL()
	if err != nil {
		return err
	}
	body, _ := json.Marshal(struct {
		Mode string `json:"mode"`
	}{Mode: mode})
	_, ferr := d.forward.SetMode(ctx, leaderURL, headers, d.forwardName(registryCtx, subject), force, body)
	return translateForwardErr(ferr)
}

// DeleteSubjectModeOrForward dispatches deletion of a subject's mode
// override, reverting it to the context-level global mode.
func (d *Dispatcher) DeleteSubjectModeOrForward(ctx context.Context, registryCtx, subject string, headers http.Header) (string, error) {
	lock := d.log.LockFor(subject)
	lock.Lock()
	defer lock.Unlock()

	if d.log.IsLeader() {
		return d.Registry.DeleteMode(ctx, registryCtx, subject)
	}
	leaderURL, err := d.leaderURL()
	if err != nil {
		return "", err
	}
	respBody, ferr := d.forward.DeleteSubjectMode(ctx, leaderURL, headers, d.forwardName(registryCtx, subject))
	if ferr != nil {
		return "", translateForwardErr(ferr)
	}
	var resp struct {
		Mode string `json:"mode"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("%w: decoding leader response: %v", ErrRequestForwarding, err)
	}
	return resp.Mode, nil
}

// translateForwardErr maps a forwarder-layer error onto the registry's own
// error taxonomy, preserving a RemoteError's structured code where present.
func translateForwardErr(err error) error {
	if err == nil {
		return nil
	}
	if remote, ok := err.(*forwarder.RemoteError); ok {
		return remote
	}
	return fmt.Errorf("%w: %v", ErrRequestForwarding, err)
}
