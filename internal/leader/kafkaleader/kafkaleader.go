// Package kafkaleader implements LeaderElector on top of a dedicated
// single-partition Kafka topic, avoiding a second coordination dependency
// (no ZooKeeper or etcd client appears anywhere in the example corpus).
//
// Each candidate periodically produces a "claim" record carrying its node
// identity and a monotonically increasing epoch. Every node — leader and
// followers alike — consumes the topic from the start and tracks the latest
// claim. A claim is only trusted while it keeps renewing within the lease
// window; once a leader's renewals stop arriving, its claim expires and any
// candidate may win the next epoch. A claim carrying a lower epoch than the
// latest one seen is ignored. The claim producer is not transactional, so
// the broker itself does not reject claims from a stale leader; only the
// epoch ordering supersedes them.
package kafkaleader

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/kafkasr/schema-registry/internal/leader"
)

type claimRecord struct {
	NodeID string `json:"nodeId"`
	URL    string `json:"url"`
	Epoch  int64  `json:"epoch"`
}

// Config configures the election topic and timing.
type Config struct {
	Brokers           []string
	Topic             string        // leader.election.topic, default "_schemas_leader"
	LeaseDuration     time.Duration // how long a claim is trusted without renewal
	HeartbeatInterval time.Duration // how often the leader renews its claim
	ElectionDelay     time.Duration // leader.election.delay: jitter before a fresh candidacy
	ClientIDPrefix    string

	// Observer disables campaigning: the node only watches the election log
	// to learn who leads. Set when leader eligibility is turned off.
	Observer bool
}

func (c Config) withDefaults() Config {
	if c.Topic == "" {
		c.Topic = "_schemas_leader"
	}
	if c.LeaseDuration <= 0 {
		c.LeaseDuration = 15 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = c.LeaseDuration / 3
	}
	if c.ElectionDelay <= 0 {
		c.ElectionDelay = 2 * time.Second
	}
	if c.ClientIDPrefix == "" {
		c.ClientIDPrefix = "schema-registry-leader"
	}
	return c
}

// Elector is the production LeaderElector.
type Elector struct {
	cfg    Config
	self   leader.NodeInfo
	logger *slog.Logger

	onChange leader.OnLeadershipChange

	consumeClient *kgo.Client
	produceClient *kgo.Client

	mu            sync.Mutex
	currentLeader leader.NodeInfo
	currentEpoch  int64
	lastSeen      time.Time

	isLeader atomic.Bool
	closed   atomic.Bool
	ready    chan struct{}
	readyOne sync.Once
}

// New constructs an Elector. Call Init before using IsLeader/Leader.
func New(cfg Config, self leader.NodeInfo, onChange leader.OnLeadershipChange, logger *slog.Logger) *Elector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Elector{
		cfg:      cfg.withDefaults(),
		self:     self,
		logger:   logger,
		onChange: onChange,
		ready:    make(chan struct{}),
	}
}

// Init connects the consumer, replays the election log to establish the
// current leader (if any), then starts the campaign loop.
func (e *Elector) Init(ctx context.Context) error {
	consumeClient, err := kgo.NewClient(
		kgo.SeedBrokers(e.cfg.Brokers...),
		kgo.ConsumeTopics(e.cfg.Topic),
		kgo.ConsumePartitions(map[string]map[int32]kgo.Offset{
			e.cfg.Topic: {0: kgo.NewOffset().AtStart()},
		}),
		kgo.ClientID(e.cfg.ClientIDPrefix+"-consumer"),
	)
	if err != nil {
		return fmt.Errorf("kafkaleader: connect consumer: %w", err)
	}
	e.consumeClient = consumeClient

	produceClient, err := kgo.NewClient(
		kgo.SeedBrokers(e.cfg.Brokers...),
		kgo.ClientID(e.cfg.ClientIDPrefix+"-producer"),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		consumeClient.Close()
		return fmt.Errorf("kafkaleader: connect producer: %w", err)
	}
	e.produceClient = produceClient

	go e.consumeLoop()
	if !e.cfg.Observer {
		go e.campaignLoop()
	}

	select {
	case <-e.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Elector) consumeLoop() {
	ctx := context.Background()
	for {
		if e.closed.Load() {
			return
		}
		fetches := e.consumeClient.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return
		}
		fetches.EachError(func(_ string, _ int32, err error) {
			e.logger.Error("kafkaleader: fetch error", "error", err)
		})
		fetches.EachRecord(func(rec *kgo.Record) {
			e.applyClaim(rec)
		})
		e.readyOne.Do(func() { close(e.ready) })
	}
}

func (e *Elector) applyClaim(rec *kgo.Record) {
	var claim claimRecord
	if err := json.Unmarshal(rec.Value, &claim); err != nil {
		e.logger.Error("kafkaleader: dropping undecodable claim", "error", err)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if claim.Epoch < e.currentEpoch {
		return
	}
	e.currentEpoch = claim.Epoch
	e.currentLeader = leader.NodeInfo{ID: claim.NodeID, URL: claim.URL}
	e.lastSeen = time.Now()

	wasLeader := e.isLeader.Load()
	nowLeader := claim.NodeID == e.self.ID
	e.isLeader.Store(nowLeader)
	if wasLeader != nowLeader && e.onChange != nil {
		e.onChange(nowLeader)
	}
}

// campaignLoop periodically checks whether the current claim has expired and,
// if so, contests leadership with a fresh epoch.
func (e *Elector) campaignLoop() {
	jitter := time.Duration(rand.Int63n(int64(e.cfg.ElectionDelay)))
	time.Sleep(jitter)

	ticker := time.NewTicker(e.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		if e.closed.Load() {
			return
		}
		<-ticker.C
		e.tick()
	}
}

func (e *Elector) tick() {
	e.mu.Lock()
	amLeader := e.isLeader.Load()
	expired := time.Since(e.lastSeen) > e.cfg.LeaseDuration
	nextEpoch := e.currentEpoch + 1
	e.mu.Unlock()

	if amLeader {
		e.produceClaim(e.currentEpochSnapshot())
		return
	}
	if expired {
		e.produceClaim(nextEpoch)
	}
}

func (e *Elector) currentEpochSnapshot() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentEpoch
}

func (e *Elector) produceClaim(epoch int64) {
	claim := claimRecord{NodeID: e.self.ID, URL: e.self.URL, Epoch: epoch}
	value, err := json.Marshal(claim)
	if err != nil {
		e.logger.Error("kafkaleader: encode claim", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.HeartbeatInterval)
	defer cancel()
	rec := &kgo.Record{Topic: e.cfg.Topic, Value: value}
	results := e.produceClient.ProduceSync(ctx, rec)
	if err := results.FirstErr(); err != nil {
		e.logger.Warn("kafkaleader: claim produce failed", "epoch", epoch, "error", err)
	}
}

// IsLeader reports whether this node currently holds leadership.
func (e *Elector) IsLeader() bool { return e.isLeader.Load() }

// Leader returns the most recently observed claim, or ok=false before any
// claim has ever been seen.
func (e *Elector) Leader() (leader.NodeInfo, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.currentLeader.ID == "" {
		return leader.NodeInfo{}, false
	}
	return e.currentLeader, true
}

// Resign lets the lease expire by no longer renewing; it does not produce a
// resignation record, since any node observing the lease lapse will contest
// leadership on its own.
func (e *Elector) Resign(_ context.Context) error {
	e.isLeader.Store(false)
	if e.onChange != nil {
		e.onChange(false)
	}
	return nil
}

func (e *Elector) Close() error {
	e.closed.Store(true)
	if e.consumeClient != nil {
		e.consumeClient.Close()
	}
	if e.produceClient != nil {
		e.produceClient.Close()
	}
	return nil
}
