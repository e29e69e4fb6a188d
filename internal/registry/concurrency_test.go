package registry

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kafkasr/schema-registry/internal/compatibility"
	avrocompat "github.com/kafkasr/schema-registry/internal/compatibility/avro"
	"github.com/kafkasr/schema-registry/internal/schema"
	"github.com/kafkasr/schema-registry/internal/schema/avro"
	"github.com/kafkasr/schema-registry/internal/storage"
	"github.com/kafkasr/schema-registry/internal/storage/memory"
)

func newConcurrencyRegistry(t *testing.T) *Registry {
	t.Helper()
	parsers := schema.NewRegistry()
	parsers.Register(avro.NewParser())
	checker := compatibility.NewChecker()
	checker.Register(storage.SchemaTypeAvro, avrocompat.NewChecker())
	return New(memory.NewStore(), parsers, checker, "NONE")
}

func recordSchema(name string) string {
	return fmt.Sprintf(`{"type":"record","name":"%s","fields":[{"name":"id","type":"long"}]}`, name)
}

// Identical registrations racing on one subject must converge on a single
// (id, version), however they interleave.
func TestConcurrentIdenticalRegistrations(t *testing.T) {
	reg := newConcurrencyRegistry(t)
	ctx := context.Background()
	schemaStr := recordSchema("Order")

	const goroutines = 16
	results := make([]*storage.SchemaRecord, goroutines)
	errs := make([]error, goroutines)
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = reg.RegisterSchema(ctx, ".", "orders-value", schemaStr, storage.SchemaTypeAvro, nil)
		}(i)
	}
	wg.Wait()

	for i := 0; i < goroutines; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].ID, results[i].ID)
		assert.Equal(t, results[0].Version, results[i].Version)
	}

	versions, err := reg.GetVersions(ctx, ".", "orders-value", false)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, versions)
}

// Concurrent registrations across many subjects must not interfere: each
// subject ends with exactly its own dense version sequence, and every id maps
// back to the schema that produced it.
func TestConcurrentDistinctSubjects(t *testing.T) {
	reg := newConcurrencyRegistry(t)
	ctx := context.Background()

	const subjects = 8
	const versionsPerSubject = 5

	var wg sync.WaitGroup
	errCh := make(chan error, subjects*versionsPerSubject)
	for s := 0; s < subjects; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			subject := fmt.Sprintf("subject-%d", s)
			for v := 0; v < versionsPerSubject; v++ {
				schemaStr := recordSchema(fmt.Sprintf("S%dV%d", s, v))
				if _, err := reg.RegisterSchema(ctx, ".", subject, schemaStr, storage.SchemaTypeAvro, nil); err != nil {
					errCh <- fmt.Errorf("subject %d version %d: %w", s, v, err)
				}
			}
		}(s)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Error(err)
	}

	seenIDs := make(map[int64]string)
	for s := 0; s < subjects; s++ {
		subject := fmt.Sprintf("subject-%d", s)
		versions, err := reg.GetVersions(ctx, ".", subject, false)
		require.NoError(t, err)
		require.Len(t, versions, versionsPerSubject)
		for i, v := range versions {
			assert.Equal(t, i+1, v, "versions must be dense from 1")
			rec, err := reg.GetSchemaBySubjectVersion(ctx, ".", subject, v)
			require.NoError(t, err)

			if prior, dup := seenIDs[rec.ID]; dup {
				assert.Equal(t, prior, rec.Schema, "one id must always map to one canonical schema")
			} else {
				seenIDs[rec.ID] = rec.Schema
			}

			byID, err := reg.GetSchemaByID(ctx, ".", rec.ID)
			require.NoError(t, err)
			assert.Equal(t, rec.Schema, byID.Schema)
		}
	}
}

// Readers racing a writer must only ever observe fully registered schemas.
func TestConcurrentReadsDuringWrites(t *testing.T) {
	reg := newConcurrencyRegistry(t)
	ctx := context.Background()

	_, err := reg.RegisterSchema(ctx, ".", "stream-value", recordSchema("V0"), storage.SchemaTypeAvro, nil)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for v := 1; v <= 20; v++ {
			_, err := reg.RegisterSchema(ctx, ".", "stream-value", recordSchema(fmt.Sprintf("V%d", v)), storage.SchemaTypeAvro, nil)
			if err != nil {
				t.Error(err)
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			versions, err := reg.GetVersions(ctx, ".", "stream-value", false)
			require.NoError(t, err)
			assert.Len(t, versions, 21)
			return
		default:
			rec, err := latestStreamSchema(ctx, reg)
			if err == nil && rec != nil {
				assert.NotZero(t, rec.ID)
				assert.NotEmpty(t, rec.Schema)
			}
		}
	}
}

func latestStreamSchema(ctx context.Context, r *Registry) (*storage.SchemaRecord, error) {
	versions, err := r.GetVersions(ctx, ".", "stream-value", false)
	if err != nil || len(versions) == 0 {
		return nil, err
	}
	return r.GetSchemaBySubjectVersion(ctx, ".", "stream-value", versions[len(versions)-1])
}
