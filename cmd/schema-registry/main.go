// Package main is the entry point for the schema registry node.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kafkasr/schema-registry/internal/api"
	"github.com/kafkasr/schema-registry/internal/api/handlers"
	"github.com/kafkasr/schema-registry/internal/compatibility"
	avrocompat "github.com/kafkasr/schema-registry/internal/compatibility/avro"
	jsoncompat "github.com/kafkasr/schema-registry/internal/compatibility/jsonschema"
	protocompat "github.com/kafkasr/schema-registry/internal/compatibility/protobuf"
	"github.com/kafkasr/schema-registry/internal/config"
	"github.com/kafkasr/schema-registry/internal/forwarder"
	"github.com/kafkasr/schema-registry/internal/idgen"
	"github.com/kafkasr/schema-registry/internal/kafka"
	"github.com/kafkasr/schema-registry/internal/leader"
	"github.com/kafkasr/schema-registry/internal/leader/kafkaleader"
	"github.com/kafkasr/schema-registry/internal/lookupcache"
	"github.com/kafkasr/schema-registry/internal/metrics"
	"github.com/kafkasr/schema-registry/internal/node"
	"github.com/kafkasr/schema-registry/internal/registry"
	"github.com/kafkasr/schema-registry/internal/schema"
	"github.com/kafkasr/schema-registry/internal/schema/avro"
	"github.com/kafkasr/schema-registry/internal/schema/jsonschema"
	"github.com/kafkasr/schema-registry/internal/schema/protobuf"
	"github.com/kafkasr/schema-registry/internal/storage"
	"github.com/kafkasr/schema-registry/internal/storage/memory"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("schema-registry %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting schema registry",
		slog.String("version", version),
		slog.String("storage", cfg.Storage.Type),
		slog.String("address", cfg.Address()),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var sink io.Writer = os.Stdout
	if cfg.File != "" {
		sink = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
	}
	return slog.New(slog.NewJSONHandler(sink, &slog.HandlerOptions{Level: level}))
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	schemaRegistry := schema.NewRegistry()
	compatChecker := compatibility.NewChecker()
	for _, name := range cfg.Providers.Enabled {
		switch storage.SchemaType(name) {
		case storage.SchemaTypeAvro:
			schemaRegistry.Register(avro.NewParser())
			compatChecker.Register(storage.SchemaTypeAvro, avrocompat.NewChecker())
		case storage.SchemaTypeProtobuf:
			schemaRegistry.Register(protobuf.NewParser())
			compatChecker.Register(storage.SchemaTypeProtobuf, protocompat.NewChecker())
		case storage.SchemaTypeJSON:
			schemaRegistry.Register(jsonschema.NewParser())
			compatChecker.Register(storage.SchemaTypeJSON, jsoncompat.NewChecker())
		default:
			logger.Warn("ignoring unknown schema provider", slog.String("name", name))
		}
	}

	mets := metrics.New()

	var svc handlers.Service
	var closers []func()

	switch cfg.Storage.Type {
	case "memory":
		// Standalone mode: one node, always leader, nothing to replicate.
		reg := registry.New(memory.NewStore(), schemaRegistry, compatChecker, cfg.Compatibility.DefaultLevel)
		reg.ConfigureParseCache(cfg.SchemaCache.Size, time.Duration(cfg.SchemaCache.ExpirySecs)*time.Second)
		reg.SetModeMutability(cfg.Mode.Mutability)
		svc = reg

	case "kafka":
		cache := lookupcache.NewCache()
		var updateHandlers []kafka.UpdateHandler
		for _, name := range cfg.Kafka.UpdateHandlers {
			if name == "metrics" {
				updateHandlers = append(updateHandlers, applyMetrics{mets})
			} else {
				logger.Warn("ignoring unknown update handler", slog.String("name", name))
			}
		}
		log := kafka.New(kafka.Config{
			Brokers:        cfg.Kafka.Brokers,
			Topic:          cfg.Kafka.Topic,
			Timeout:        time.Duration(cfg.Kafka.TimeoutMs) * time.Millisecond,
			InitTimeout:    time.Duration(cfg.Kafka.InitTimeoutMs) * time.Millisecond,
			ClientIDPrefix: cfg.Kafka.ClientIDPrefix,
			UpdateHandlers: updateHandlers,
		}, cache, logger)

		logger.Info("catching up to log tail", slog.String("topic", cfg.Kafka.Topic))
		if err := log.Init(ctx); err != nil {
			return fmt.Errorf("%w: log store: %v", registry.ErrInitialization, err)
		}
		closers = append(closers, func() { log.Close() })

		gen := idgen.New(cache)

		identity := node.New(cfg.Server.Host, cfg.AdvertisedURL(), cfg.Server.Port, cfg.Kafka.Topic, node.Build{
			Version:   version,
			GitCommit: commit,
			BuildTime: buildDate,
		})
		self := leader.NodeInfo{ID: identity.ID, URL: identity.URL()}
		onChange := func(isLeader bool) {
			mets.RecordLeadershipChange(isLeader)
			if isLeader {
				if err := log.BecomeLeader(context.Background()); err != nil {
					logger.Error("failed to open producer on leader transition", slog.String("error", err.Error()))
					return
				}
				gen.Init()
				logger.Info("became leader", slog.String("url", self.URL))
			} else {
				log.ResignLeadership()
				logger.Info("resigned leadership")
			}
		}

		elector := kafkaleader.New(kafkaleader.Config{
			Brokers:       cfg.Kafka.Brokers,
			Topic:         cfg.Kafka.LeaderTopic,
			ElectionDelay: electionDelay(cfg),
			Observer:      !cfg.Leader.Eligibility,
		}, self, onChange, logger)
		if err := elector.Init(ctx); err != nil {
			return fmt.Errorf("%w: leader elector: %v", registry.ErrInitialization, err)
		}
		closers = append(closers, func() { elector.Close() })

		store := registry.NewKafkaStore(log, cache, gen)
		reg := registry.New(store, schemaRegistry, compatChecker, cfg.Compatibility.DefaultLevel)
		reg.ConfigureParseCache(cfg.SchemaCache.Size, time.Duration(cfg.SchemaCache.ExpirySecs)*time.Second)
		reg.SetModeMutability(cfg.Mode.Mutability)
		fwd := forwarder.New(time.Duration(cfg.Kafka.TimeoutMs) * time.Millisecond)
		svc = registry.NewDispatcher(reg, log, elector, fwd)

	default:
		return fmt.Errorf("unknown storage type: %q", cfg.Storage.Type)
	}

	server := api.NewServer(cfg, svc, logger,
		api.WithMetrics(mets),
		api.WithHandlerConfig(handlers.Config{
			ClusterID: cfg.Kafka.Topic,
			Version:   version,
			Commit:    commit,
			BuildTime: buildDate,
		}))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", slog.String("error", err.Error()))
	}
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
	return nil
}

// applyMetrics counts applied log records on the metrics registry.
type applyMetrics struct {
	m *metrics.Metrics
}

func (a applyMetrics) HandleUpdate(_ int64, key kafka.Key, _ kafka.Value) {
	a.m.LogRecordsApplied.WithLabelValues(string(key.KeyType)).Inc()
}

func electionDelay(cfg *config.Config) time.Duration {
	if cfg.Leader.ElectionDelay {
		return 5 * time.Second
	}
	return 0
}
