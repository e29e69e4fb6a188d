package schemacache

import (
	"testing"
	"time"

	"github.com/kafkasr/schema-registry/internal/schema"
	"github.com/kafkasr/schema-registry/internal/storage"
)

type fakeParsed struct{ raw string }

func (f fakeParsed) Type() storage.SchemaType         { return storage.SchemaTypeAvro }
func (f fakeParsed) CanonicalString() string          { return f.raw }
func (f fakeParsed) Fingerprint() string              { return f.raw }
func (f fakeParsed) RawSchema() interface{}           { return f.raw }
func (f fakeParsed) FormattedString(_ string) string  { return f.raw }
func (f fakeParsed) Normalize() schema.ParsedSchema   { return f }
func (f fakeParsed) HasTopLevelField(_ string) bool   { return false }

func TestCache_PutGet(t *testing.T) {
	c, err := New(10, time.Minute)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	key := Key{SchemaType: storage.SchemaTypeAvro, RawSchema: `{"type":"string"}`}
	c.Put(key, fakeParsed{raw: "x"})

	got, ok := c.Get(key)
	if !ok {
		t.Fatal("expected hit")
	}
	if got.CanonicalString() != "x" {
		t.Fatalf("got %q", got.CanonicalString())
	}
}

func TestCache_MissOnDifferentKey(t *testing.T) {
	c, _ := New(10, time.Minute)
	c.Put(Key{RawSchema: "a"}, fakeParsed{raw: "a"})
	if _, ok := c.Get(Key{RawSchema: "b"}); ok {
		t.Fatal("expected miss for different raw schema")
	}
}

func TestCache_IsNewAndNormalizeDistinguishKeys(t *testing.T) {
	c, _ := New(10, time.Minute)
	base := Key{RawSchema: "same"}
	isNew := Key{RawSchema: "same", IsNew: true}
	c.Put(base, fakeParsed{raw: "base"})

	if _, ok := c.Get(isNew); ok {
		t.Fatal("expected IsNew to be part of the cache key")
	}
	if _, ok := c.Get(Key{RawSchema: "same", Normalize: true}); ok {
		t.Fatal("expected Normalize to be part of the cache key")
	}
}

func TestCache_ExpiryEvictsStaleEntry(t *testing.T) {
	c, _ := New(10, time.Nanosecond)
	key := Key{RawSchema: "x"}
	c.Put(key, fakeParsed{raw: "x"})
	time.Sleep(time.Millisecond)

	if _, ok := c.Get(key); ok {
		t.Fatal("expected expired entry to miss")
	}
}

func TestCache_NoExpiryWhenZero(t *testing.T) {
	c, _ := New(10, 0)
	key := Key{RawSchema: "x"}
	c.Put(key, fakeParsed{raw: "x"})
	time.Sleep(time.Millisecond)

	if _, ok := c.Get(key); !ok {
		t.Fatal("expected no expiry with expiry<=0")
	}
}

func TestCache_Purge(t *testing.T) {
	c, _ := New(10, time.Minute)
	c.Put(Key{RawSchema: "x"}, fakeParsed{raw: "x"})
	c.Purge()
	if c.Len() != 0 {
		t.Fatalf("expected empty cache after purge, got %d", c.Len())
	}
}
