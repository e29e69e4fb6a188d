package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kafkasr/schema-registry/internal/forwarder"
	"github.com/kafkasr/schema-registry/internal/storage"
)

// The methods below give Dispatcher the same mutation surface as Registry,
// so the HTTP layer can be handed either one. On the leader they run the
// local operation under the subject lock; on a follower they forward to the
// leader, carrying whatever headers forwarder.WithHeaders stashed on the
// request context.

// RegisterSchema registers a schema on the leader, locally or by forwarding.
func (d *Dispatcher) RegisterSchema(ctx context.Context, registryCtx string, subject string, schemaStr string, schemaType storage.SchemaType, refs []storage.Reference, opts ...RegisterOpts) (*storage.SchemaRecord, error) {
	var normalize bool
	if len(opts) > 0 {
		normalize = opts[0].Normalize
	}
	return d.RegisterOrForward(ctx, registryCtx, subject, schemaStr, schemaType, refs, normalize, forwarder.HeadersFromContext(ctx), opts...)
}

// RegisterSchemaWithID registers a schema with a caller-chosen id and
// version (IMPORT mode), locally on the leader or by forwarding them along
// in the body.
func (d *Dispatcher) RegisterSchemaWithID(ctx context.Context, registryCtx string, subject string, schemaStr string, schemaType storage.SchemaType, refs []storage.Reference, id int64, version int) (*storage.SchemaRecord, error) {
	lock := d.log.LockFor(subject)
	lock.Lock()
	defer lock.Unlock()

	if d.log.IsLeader() {
		return d.Registry.RegisterSchemaWithID(ctx, registryCtx, subject, schemaStr, schemaType, refs, id, version)
	}
	leaderURL, err := d.leaderURL()
	if err != nil {
		return nil, err
	}
	body, merr := json.Marshal(struct {
		forwardRegisterBody
		ID      int64 `json:"id"`
		Version int   `json:"version,omitempty"`
	}{
		forwardRegisterBody: forwardRegisterBody{Schema: schemaStr, SchemaType: schemaType, References: refs},
		ID:                  id,
		Version:             version,
	})
	if merr != nil {
		return nil, fmt.Errorf("registry: encode forwarded body: %w", merr)
	}
	headers := forwarder.HeadersFromContext(ctx)
	respBody, ferr := d.forward.RegisterSchema(ctx, leaderURL, headers, d.forwardName(registryCtx, subject), false, body)
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

// DeleteSubject deletes every version of a subject, locally or by forwarding.
func (d *Dispatcher) DeleteSubject(ctx context.Context, registryCtx string, subject string, permanent bool) ([]int, error) {
	return d.DeleteSubjectOrForward(ctx, registryCtx, subject, permanent, forwarder.HeadersFromContext(ctx))
}

// DeleteVersion deletes a single subject version, locally or by forwarding.
func (d *Dispatcher) DeleteVersion(ctx context.Context, registryCtx string, subject string, version int, permanent bool) (int, error) {
	return d.DeleteSchemaVersionOrForward(ctx, registryCtx, subject, version, permanent, forwarder.HeadersFromContext(ctx))
}

// SetConfig updates subject or global config, locally or by forwarding.
func (d *Dispatcher) SetConfig(ctx context.Context, registryCtx string, subject string, level string, normalize *bool, opts ...SetConfigOpts) error {
	return d.SetConfigOrForward(ctx, registryCtx, subject, level, normalize, forwarder.HeadersFromContext(ctx), opts...)
}

// DeleteConfig reverts a subject to the global config, locally or by
// forwarding.
func (d *Dispatcher) DeleteConfig(ctx context.Context, registryCtx string, subject string) (string, error) {
	return d.DeleteConfigOrForward(ctx, registryCtx, subject, forwarder.HeadersFromContext(ctx))
}

// DeleteGlobalConfig resets the context-wide config to the instance default,
// locally or by forwarding.
func (d *Dispatcher) DeleteGlobalConfig(ctx context.Context, registryCtx string) (string, error) {
	lock := d.log.LockFor("")
	lock.Lock()
	defer lock.Unlock()

	if d.log.IsLeader() {
		return d.Registry.DeleteGlobalConfig(ctx, registryCtx)
	}
	leaderURL, err := d.leaderURL()
	if err != nil {
		return "", err
	}
	respBody, ferr := d.forward.DeleteConfig(ctx, leaderURL, forwarder.HeadersFromContext(ctx), "")
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

// SetMode changes subject or global mode, locally or by forwarding.
func (d *Dispatcher) SetMode(ctx context.Context, registryCtx string, subject string, mode string, force bool) error {
	return d.SetModeOrForward(ctx, registryCtx, subject, mode, force, forwarder.HeadersFromContext(ctx))
}

// DeleteMode removes a subject's mode override, locally or by forwarding.
func (d *Dispatcher) DeleteMode(ctx context.Context, registryCtx string, subject string) (string, error) {
	return d.DeleteSubjectModeOrForward(ctx, registryCtx, subject, forwarder.HeadersFromContext(ctx))
}

// ImportSchemas bulk-imports schemas with preserved ids. On a follower each
// schema is forwarded as an individual id-carrying registration, since the
// leader surface has no bulk endpoint.
func (d *Dispatcher) ImportSchemas(ctx context.Context, registryCtx string, schemas []ImportSchemaRequest) (*ImportResult, error) {
	if d.log.IsLeader() {
		return d.Registry.ImportSchemas(ctx, registryCtx, schemas)
	}
	if _, err := d.leaderURL(); err != nil {
		return nil, err
	}
	result := &ImportResult{}
	for _, req := range schemas {
		rec, err := d.RegisterSchemaWithID(ctx, registryCtx, req.Subject, req.Schema, req.SchemaType, req.References, req.ID, req.Version)
		res := ImportSchemaResult{Subject: req.Subject, Version: req.Version}
		if err != nil {
			res.Error = err.Error()
			result.Errors++
		} else {
			res.ID = rec.ID
			res.Success = true
			result.Imported++
		}
		result.Results = append(result.Results, res)
	}
	return result, nil
}
