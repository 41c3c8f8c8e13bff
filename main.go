package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pcaview/api"
	"pcaview/common"
	"pcaview/config"
	"pcaview/deduplication"
	"pcaview/enrich"
	"pcaview/events"
	"pcaview/ingestion"
	"pcaview/logging"
	"pcaview/ratelimit"
	"pcaview/scheduler"
	"pcaview/search"
	"pcaview/shared/kafka"
	"pcaview/sources"
	"pcaview/store"
	"pcaview/tagsync"
	"pcaview/types"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Listener names; a job carries the name of the one listener it runs.
const (
	listenerSearch  = "news-search"
	listenerAugment = "ai-augment"
	listenerTagSync = "tag-sync"
)

func main() {
	once := flag.String("run", "", "Run a single scope once and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore := initializeStore(ctx, cfg, logger)
	defer closeStore()

	limiterStore, prefilter := initializeRedis(ctx, cfg, logger)
	limiters := newLimiters(cfg, limiterStore, logger)
	blob := initializeBlob(ctx, cfg, logger)

	fetcher := sources.NewFetcher(&http.Client{Timeout: config.FetchTimeout}, config.UserAgent)
	registry := sources.NewDefaultRegistry(sources.Options{
		Fetcher:  fetcher,
		Location: cfg.Location(),
		Videos:   initializeYouTube(ctx, cfg, limiters, logger),
		Logger:   logger,
	})

	queue, closeQueue := initializeQueue(cfg, logger)
	defer closeQueue()

	guard := deduplication.NewGuard(prefilter, logger)
	orchestrator := ingestion.New(registry, st, guard, queue.dispatcher, logger)

	queue.dispatcher.Subscribe(types.TrendFetched, listenerSearch,
		newSearchListener(cfg, st, orchestrator, fetcher, limiters, logger).Handle)
	queue.dispatcher.Subscribe(types.ContentIngested, listenerAugment,
		newAugmenter(cfg, st, blob, limiters, logger).Handle)
	tagLimiter, _ := limiters.Get(config.ProviderTagAPI)
	queue.dispatcher.Subscribe(types.TagSyncRequested, listenerTagSync,
		tagsync.NewJob(st, tagsync.NewClient(fetcher, cfg.TagAPI.URL, cfg.TagAPI.APIKey, tagLimiter), logger).Handle)

	if err := queue.start(ctx); err != nil {
		logger.Fatal("failed to start job queue", zap.Error(err))
	}

	sched := scheduler.New(orchestrator, cfg.Sources, scheduler.Options{
		Location: cfg.Location(),
		Logger:   logger,
	})

	if *once != "" {
		res, err := sched.RunScope(ctx, *once)
		if err != nil {
			logger.Fatal("scope run failed", zap.String("scope", *once), zap.Error(err))
		}
		fmt.Printf("%s: %d created, %d updated, %d skipped, %d failed\n",
			res.ScopeID, res.Created, res.Updated, res.Skipped, res.Failed)
		queue.drain()
		return
	}

	if err := sched.Start(ctx, cfg.Cron); err != nil {
		logger.Fatal("failed to start cron", zap.Error(err))
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: api.NewRouter(api.Deps{
			Scheduler: sched,
			Events:    queue.dispatcher,
			Limiters:  limiters,
			Logger:    logger,
		}),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()
	logger.Info("pcaview started",
		zap.String("addr", srv.Addr),
		zap.String("cron", cfg.Cron),
		zap.Int("scopes", len(cfg.Sources)),
		zap.Bool("kafka", queue.consumer != nil))

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sched.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", zap.Error(err))
	}
}

// initializeStore opens Postgres when DATABASE_URL is set and falls back to
// the in-memory store otherwise.
func initializeStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, func()) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		return store.NewMemory(), func() {}
	}
	pg, err := store.NewPostgres(ctx, cfg.DatabaseURL, int32(cfg.Workers*2+4))
	if err != nil {
		logger.Fatal("failed to open postgres", zap.Error(err))
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		logger.Fatal("failed to create schema", zap.Error(err))
	}
	return pg, pg.Close
}

// initializeRedis returns the shared limiter store and the bloom prefilter.
// Without REDIS_ADDR limiters keep state in process and no prefilter is used.
func initializeRedis(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ratelimit.Store, deduplication.Prefilter) {
	if cfg.Redis.Addr == "" {
		logger.Warn("REDIS_ADDR not set, limiter state is per process")
		return nil, nil
	}
	client, err := ratelimit.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("redis unavailable", zap.Error(err))
	}
	bloom := deduplication.NewRedisBloom(ctx, client, deduplication.BloomConfig{Key: cfg.Redis.BloomKey})
	return ratelimit.NewRedisStore(client, "pcaview:ratelimit"), bloom
}

func newLimiters(cfg *config.Config, st ratelimit.Store, logger *zap.Logger) *ratelimit.Set {
	set := ratelimit.NewSet()
	for provider, lc := range cfg.Limits {
		set.Add(ratelimit.New(provider, ratelimit.Options{
			Max:      lc.Max,
			Window:   lc.Window,
			Store:    st,
			Location: cfg.Location(),
			Logger:   logging.Component(logger, "ratelimit").With(zap.String("provider", provider)),
		}))
	}
	return set
}

// initializeBlob creates the S3 uploader, or an in-memory blob store when no
// bucket is configured.
func initializeBlob(ctx context.Context, cfg *config.Config, logger *zap.Logger) common.Blob {
	if cfg.S3.Bucket == "" {
		logger.Warn("S3_BUCKET not set, generated images stay in memory")
		return common.NewMemoryBlob(cfg.S3.PublicBaseURL)
	}
	s3c, err := common.NewS3(ctx, common.S3Config{
		Bucket:        cfg.S3.Bucket,
		Prefix:        cfg.S3.Prefix,
		PublicBaseURL: cfg.S3.PublicBaseURL,
		Region:        cfg.S3.Region,
		Profile:       cfg.S3.Profile,
		UsePathStyle:  cfg.S3.UsePathStyle,
	})
	if err != nil {
		logger.Fatal("failed to init s3", zap.Error(err))
	}
	return s3c
}

func initializeYouTube(ctx context.Context, cfg *config.Config, limiters *ratelimit.Set, logger *zap.Logger) sources.VideoSearcher {
	if cfg.YouTube.APIKey == "" && cfg.YouTube.ServiceAccountFile == "" {
		return nil
	}
	limiter, _ := limiters.Get(config.ProviderYouTube)
	yt, err := sources.NewYouTubeAPI(ctx, cfg.YouTube.APIKey, cfg.YouTube.ServiceAccountFile, limiter)
	if err != nil {
		logger.Warn("youtube api disabled, falling back to page scraping", zap.Error(err))
		return nil
	}
	return yt
}

// jobQueue bundles the dispatcher with whichever transport carries its jobs.
type jobQueue struct {
	dispatcher *events.Dispatcher
	runner     *events.Runner
	memory     *events.MemoryQueue
	producer   *kafka.Producer
	consumer   *kafka.Consumer
}

// initializeQueue uses Kafka when KAFKA_BOOTSTRAP_SERVERS is set and the
// in-process worker pool otherwise.
func initializeQueue(cfg *config.Config, logger *zap.Logger) (*jobQueue, func()) {
	q := &jobQueue{}
	var transport events.Queue
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(kafka.ProducerConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			Logger:  logger,
		})
		if err != nil {
			logger.Fatal("failed to create kafka producer", zap.Error(err))
		}
		q.producer = producer
		transport = events.NewKafkaQueue(producer)
	} else {
		q.memory = events.NewMemoryQueue(1024, cfg.Workers, logger)
		transport = q.memory
	}

	q.dispatcher = events.NewDispatcher(transport, logger)
	q.runner = events.NewRunner(q.dispatcher, transport, events.RunnerOptions{}, logger)

	if q.producer != nil {
		consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:           cfg.Kafka.Brokers,
			Topic:             cfg.Kafka.Topic,
			GroupID:           cfg.Kafka.GroupID,
			Handler:           events.JobHandler(q.runner, logger),
			MaxProcessingTime: config.JobTimeout + time.Minute,
			Logger:            logger,
		})
		if err != nil {
			logger.Fatal("failed to create kafka consumer", zap.Error(err))
		}
		q.consumer = consumer
	}

	return q, func() {
		if q.consumer != nil {
			if err := q.consumer.Close(); err != nil {
				logger.Warn("kafka consumer close error", zap.Error(err))
			}
		}
		if q.producer != nil {
			if err := q.producer.Close(); err != nil {
				logger.Warn("kafka producer close error", zap.Error(err))
			}
		}
		if q.memory != nil {
			q.memory.Close()
		}
	}
}

func (q *jobQueue) start(ctx context.Context) error {
	if q.consumer != nil {
		return q.consumer.Start(ctx)
	}
	q.memory.Start(ctx, q.runner.Handle)
	return nil
}

// drain waits for in-process jobs; Kafka jobs outlive the process.
func (q *jobQueue) drain() {
	if q.memory != nil {
		q.memory.Drain()
	}
}

func newSearchListener(cfg *config.Config, st store.Store, ing search.Ingester, f *sources.Fetcher, limiters *ratelimit.Set, logger *zap.Logger) *search.Listener {
	scrapeLimiter, _ := limiters.Get(config.ProviderNewsScrape)
	srcs := []search.Source{{
		Provider: search.NewScrapeProvider(config.ProviderNewsScrape, f, cfg.Search.ScrapeURL, config.ScrapeResultLimit),
		Limiter:  scrapeLimiter,
	}}
	if cfg.Search.ClientID != "" {
		p, err := search.NewAPIProvider(config.ProviderNewsAPI, f, cfg.Search.APIURL,
			cfg.Search.ClientID, cfg.Search.ClientSecret, config.APIResultLimit, cfg.Search.AllowPattern)
		if err != nil {
			logger.Fatal("invalid news api config", zap.Error(err))
		}
		apiLimiter, _ := limiters.Get(config.ProviderNewsAPI)
		srcs = append(srcs, search.Source{Provider: p, Limiter: apiLimiter})
	} else {
		logger.Warn("NEWS_API_CLIENT_ID not set, news api provider disabled")
	}
	return search.NewListener(st, ing, srcs, config.MaxSearchSeeds, logging.Component(logger, "search"))
}

func newAugmenter(cfg *config.Config, st store.Store, blob common.Blob, limiters *ratelimit.Set, logger *zap.Logger) *enrich.Augmenter {
	var (
		text   enrich.TextGenerator
		images enrich.ImageGenerator
	)
	if cfg.Text.APIKey != "" {
		text = enrich.NewCohereText(cfg.Text.APIKey, cfg.Text.Model)
	} else {
		logger.Warn("COHERE_API_KEY not set, rewrite and comments disabled")
	}
	if cfg.Image.APIKey != "" {
		images = enrich.NewHTTPImages(cfg.Image.APIKey, cfg.Image.Endpoint, cfg.Image.Model, nil)
	}
	textLimiter, _ := limiters.Get(config.ProviderText)
	imageLimiter, _ := limiters.Get(config.ProviderImage)
	return enrich.NewAugmenter(enrich.Options{
		Store:          st,
		Text:           text,
		TextLimiter:    textLimiter,
		Images:         images,
		ImageLimiter:   imageLimiter,
		Blob:           blob,
		ImageThreshold: cfg.ImageThreshold(),
		Logger:         logging.Component(logger, "enrich"),
	})
}
