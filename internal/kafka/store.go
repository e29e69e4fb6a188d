// Package kafka implements the LogStore: the durable, Kafka-backed log that
// is the schema registry's single source of truth, plus the Serializer that
// maps typed records to and from its wire form.
package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// maxRecordBytes mirrors the default Kafka broker message.max.bytes; records
// above this are rejected before they ever reach the producer.
const maxRecordBytes = 1 << 20

// CacheReader is the subset of LookupCache the LogStore depends on: the
// consumer applies every fetched record to it, and Get/GetAll read through it
// to serve LogStore.get/getAll without the orchestration layer needing to
// know the cache exists.
type CacheReader interface {
	Apply(offset int64, key Key, value Value)
	Get(key Key) (Value, bool)
	GetAll(startKey, endKey Key) []Record
}

// Record pairs a decoded key and value, used by GetAll range scans.
type Record struct {
	Key   Key
	Value Value
}

// UpdateHandler observes every record the consumer applies, after the cache
// has absorbed it. Handlers run on the consumer goroutine and must not
// block.
type UpdateHandler interface {
	HandleUpdate(offset int64, key Key, value Value)
}

// Config configures the LogStore's connection to its backing topic.
type Config struct {
	Brokers        []string
	Topic          string
	Timeout        time.Duration // produce and read-barrier deadline
	InitTimeout    time.Duration // catch-up deadline on startup
	ClientIDPrefix string

	// UpdateHandlers receive every applied record, in log order, after the
	// cache.
	UpdateHandlers []UpdateHandler
}

func (c Config) withDefaults() Config {
	if c.Topic == "" {
		c.Topic = "_schemas"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.InitTimeout <= 0 {
		c.InitTimeout = 60 * time.Second
	}
	if c.ClientIDPrefix == "" {
		c.ClientIDPrefix = "schema-registry"
	}
	return c
}

// LogStore is the durable append-only log backing all registry state:
// a single-writer producer, used only while this node is leader, and a
// background consumer that is always running and feeds a CacheReader.
type LogStore struct {
	cfg    Config
	logger *slog.Logger
	cache  CacheReader

	subjectLocks
	leaderMu sync.Mutex

	consumeClient *kgo.Client
	produceClient atomic.Pointer[kgo.Client]

	lastConsumedOffset    atomic.Int64
	lastWrittenOffsetSeen atomic.Bool

	closed   atomic.Bool
	consumed chan struct{}
}

// New constructs a LogStore. Call Init before any Put/Get traffic.
func New(cfg Config, cache CacheReader, logger *slog.Logger) *LogStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogStore{
		cfg:      cfg.withDefaults(),
		logger:   logger,
		cache:    cache,
		consumed: make(chan struct{}),
	}
}

// Init connects the long-lived consumer and blocks until it has caught up
// to the current end of the log; idgen.Generator.Init must not run before
// this returns. The consumer never stops for the lifetime of the process.
func (s *LogStore) Init(ctx context.Context) error {
	cl, err := kgo.NewClient(
		kgo.SeedBrokers(s.cfg.Brokers...),
		kgo.ConsumeTopics(s.cfg.Topic),
		kgo.ConsumePartitions(map[string]map[int32]kgo.Offset{
			s.cfg.Topic: {0: kgo.NewOffset().AtStart()},
		}),
		kgo.ClientID(s.cfg.ClientIDPrefix+"-consumer"),
	)
	if err != nil {
		return fmt.Errorf("kafkastore: connect consumer: %w", err)
	}
	s.consumeClient = cl

	go s.runConsumer()

	initCtx, cancel := context.WithTimeout(ctx, s.cfg.InitTimeout)
	defer cancel()
	return s.waitForLogEnd(initCtx)
}

// runConsumer is the single-threaded apply loop: it fetches records in log
// order and applies them to the cache one at a time, never interleaving with
// another goroutine.
func (s *LogStore) runConsumer() {
	ctx := context.Background()
	for {
		if s.closed.Load() {
			return
		}
		fetches := s.consumeClient.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return
		}
		fetches.EachError(func(_ string, _ int32, err error) {
			s.logger.Error("kafkastore: fetch error", "error", err)
		})
		fetches.EachRecord(func(rec *kgo.Record) {
			s.applyRecord(rec)
		})
	}
}

func (s *LogStore) applyRecord(rec *kgo.Record) {
	key, err := DecodeKey(rec.Key)
	if err != nil {
		s.logger.Error("kafkastore: dropping record with undecodable key", "offset", rec.Offset, "error", err)
		return
	}
	value, err := DecodeValue(key.KeyType, rec.Value)
	if err != nil {
		s.logger.Error("kafkastore: dropping record with undecodable value", "offset", rec.Offset, "key", key.String(), "error", err)
		return
	}
	s.cache.Apply(rec.Offset, key, value)
	s.lastConsumedOffset.Store(rec.Offset)
	for _, h := range s.cfg.UpdateHandlers {
		h.HandleUpdate(rec.Offset, key, value)
	}
}

// BecomeLeader opens the producer used only while this node holds leadership.
// A fresh client is opened per leadership term. The producer is idempotent
// but not transactional, so the broker does not fence it: a producer from a
// stale term that writes after losing leadership is not rejected by the
// broker.
func (s *LogStore) BecomeLeader(ctx context.Context) error {
	cl, err := kgo.NewClient(
		kgo.SeedBrokers(s.cfg.Brokers...),
		kgo.ClientID(s.cfg.ClientIDPrefix+"-producer"),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return fmt.Errorf("kafkastore: connect producer: %w", err)
	}
	s.produceClient.Store(cl)
	s.MarkLastWrittenOffsetInvalid()
	return nil
}

// ResignLeadership tears down the producer. Any Put already blocked on
// ProduceSync fails; subsequent Puts fail with ErrNotLeader.
func (s *LogStore) ResignLeadership() {
	if cl := s.produceClient.Swap(nil); cl != nil {
		cl.Close()
	}
}

// IsLeader reports whether this node currently holds a live producer.
func (s *LogStore) IsLeader() bool {
	return s.produceClient.Load() != nil
}

// Put writes key/value and blocks until the local consumer has observed the
// write (readback), or fails with ErrTimeout after the configured deadline.
// A nil value is a tombstone (equivalent to Delete).
func (s *LogStore) Put(ctx context.Context, key Key, value Value) error {
	pc := s.produceClient.Load()
	if pc == nil {
		return ErrNotLeader
	}

	kb, err := EncodeKey(key)
	if err != nil {
		return fmt.Errorf("kafkastore: encode key: %w", err)
	}
	vb, err := EncodeValue(value)
	if err != nil {
		return fmt.Errorf("kafkastore: encode value: %w", err)
	}
	if len(kb)+len(vb) > maxRecordBytes {
		return ErrTooLarge
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	rec := &kgo.Record{Topic: s.cfg.Topic, Key: kb, Value: vb}
	results := pc.ProduceSync(ctx, rec)
	if err := results.FirstErr(); err != nil {
		if ctx.Err() != nil {
			return ErrTimeout
		}
		return fmt.Errorf("kafkastore: produce: %w", err)
	}

	return s.waitForOffset(ctx, rec.Offset)
}

// Delete writes a tombstone for key, equivalent to Put(ctx, key, nil).
func (s *LogStore) Delete(ctx context.Context, key Key) error {
	return s.Put(ctx, key, nil)
}

// Get reads the latest materialized value for key from the cache.
func (s *LogStore) Get(key Key) (Value, bool) {
	return s.cache.Get(key)
}

// GetAll returns every record whose key falls in [startKey, endKey], in key
// order, read from the cache.
func (s *LogStore) GetAll(startKey, endKey Key) []Record {
	return s.cache.GetAll(startKey, endKey)
}

// WaitUntilReaderReachesLastOffset writes a Noop record keyed by subject (or
// the store-wide sentinel when subject is empty) and blocks until the
// consumer has applied it, providing a read barrier before any read-then-write
// sequence. Followers without a live producer still need a barrier before
// serving reads after a leader transition; they wait on lastConsumedOffset
// catching up to the log's current end instead of writing a record.
func (s *LogStore) WaitUntilReaderReachesLastOffset(ctx context.Context, subject string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	pc := s.produceClient.Load()
	if pc == nil {
		return s.waitForLogEnd(ctx)
	}

	key := Key{KeyType: KindNoop, Context: subject}
	kb, _ := EncodeKey(key)
	rec := &kgo.Record{Topic: s.cfg.Topic, Key: kb}
	results := pc.ProduceSync(ctx, rec)
	if err := results.FirstErr(); err != nil {
		if ctx.Err() != nil {
			return ErrTimeout
		}
		return fmt.Errorf("kafkastore: barrier produce: %w", err)
	}
	return s.waitForOffset(ctx, rec.Offset)
}

// waitForOffset blocks until the consumer's lastConsumedOffset has reached
// target, or ctx is done.
func (s *LogStore) waitForOffset(ctx context.Context, target int64) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		if s.lastConsumedOffset.Load() >= target {
			return nil
		}
		select {
		case <-ctx.Done():
			return ErrTimeout
		case <-ticker.C:
		}
	}
}

// waitForLogEnd queries the current high watermark and blocks until the
// consumer has caught up to it. Used on startup and by followers that have
// no producer to write a barrier record with.
func (s *LogStore) waitForLogEnd(ctx context.Context) error {
	listed, err := kadm.NewClient(s.consumeClient).ListEndOffsets(ctx, s.cfg.Topic)
	if err != nil {
		return fmt.Errorf("kafkastore: list end offsets: %w", err)
	}
	var target int64
	listed.Each(func(o kadm.ListedOffset) {
		if o.Offset-1 > target {
			target = o.Offset - 1
		}
	})
	if target <= 0 {
		return nil
	}
	return s.waitForOffset(ctx, target)
}

// MarkLastWrittenOffsetInvalid clears the lastWrittenOffsetSeen flag. Called
// on every leader transition. No barrier reads the flag: every
// WaitUntilReaderReachesLastOffset call writes a barrier record or queries
// the log end afresh.
func (s *LogStore) MarkLastWrittenOffsetInvalid() {
	s.lastWrittenOffsetSeen.Store(false)
}

// LeaderLock returns the coarse lock guarding leader-identity reads/writes.
// It nests inside whichever subject lock the caller already holds; never
// acquire it first and a subject lock second.
func (s *LogStore) LeaderLock() *sync.Mutex {
	return &s.leaderMu
}

// Close stops the consumer and producer. Not safe to call concurrently with
// Init.
func (s *LogStore) Close() error {
	s.closed.Store(true)
	s.ResignLeadership()
	if s.consumeClient != nil {
		s.consumeClient.Close()
	}
	return nil
}
