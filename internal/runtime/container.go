// Package runtime is the composition root: it wires every collaborator
// built across the rest of the module into one Runtime, selecting the
// storage backend, embedder provider, and identity providers once at
// startup per §9's "do not switch at runtime" redesign note. Grounded on
// the teacher's go.mod inclusion of go.uber.org/dig for constructor-based
// wiring.
package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/hibiken/asynq"
	"github.com/neo4j/neo4j-go-driver/v6/neo4j"
	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tencentyun-labs/cognigate/internal/analytics"
	"github.com/tencentyun-labs/cognigate/internal/apperr"
	"github.com/tencentyun-labs/cognigate/internal/config"
	"github.com/tencentyun-labs/cognigate/internal/embedding"
	"github.com/tencentyun-labs/cognigate/internal/gateway"
	"github.com/tencentyun-labs/cognigate/internal/heuristics"
	"github.com/tencentyun-labs/cognigate/internal/identity"
	"github.com/tencentyun-labs/cognigate/internal/llm"
	"github.com/tencentyun-labs/cognigate/internal/logger"
	"github.com/tencentyun-labs/cognigate/internal/memorypipeline"
	"github.com/tencentyun-labs/cognigate/internal/pipeline"
	"github.com/tencentyun-labs/cognigate/internal/ratelimit"
	"github.com/tencentyun-labs/cognigate/internal/retrieval"
	"github.com/tencentyun-labs/cognigate/internal/storage"
	"github.com/tencentyun-labs/cognigate/internal/storage/filestore"
	"github.com/tencentyun-labs/cognigate/internal/storage/sqlstore"
	"github.com/tencentyun-labs/cognigate/internal/tenant"
	"github.com/tencentyun-labs/cognigate/internal/types"
)

// Runtime is every long-lived collaborator the entrypoint needs a handle
// on, beyond the Gateway itself: things that must be started or stopped
// explicitly.
type Runtime struct {
	Config         *config.Config
	Gateway        *gateway.Gateway
	Tenants        *tenant.Loader
	Backend        storage.Backend
	Recorder       *analytics.Recorder
	Worker         *analytics.Worker
	MemoryPipeline *memorypipeline.Pipeline
	TrendScheduler *analytics.TrendScheduler

	closers []func() error
}

// Close releases every closer registered during Build, in reverse
// construction order, collecting (not short-circuiting on) failures.
func (r *Runtime) Close() error {
	var firstErr error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Build constructs the full dependency graph via a dig.Container and
// returns the assembled Runtime. Some constructors start their own
// background goroutines (the Memory Pipeline's flush loop, the Analytics
// Recorder's event drainer); cron registration happens only in the final
// Invoke.
func Build(cfg *config.Config) (*Runtime, error) {
	c := dig.New()
	rt := &Runtime{Config: cfg}

	providers := []interface{}{
		func() *config.Config { return cfg },
		newTenantLoader,
		newStorageBackend,
		newEmbedderClient,
		newRateLimitRedis,
		newUserLimiter,
		newIPLimiter,
		newAggregator,
		newRecorder,
		newWorker,
		newTrendScheduler,
		newPrerequisiteGraph,
		newRetriever,
		newTokenizer,
		newPatternDetector,
		newMemoryPipeline,
		newLLMClient,
		newDispatcher,
		newCognitive,
		newUserCache,
		newEnterpriseIdP,
		newConsumerIdP,
		newSession,
		newAttachmentResolver,
		newGateway,
	}
	for _, p := range providers {
		if err := c.Provide(p); err != nil {
			return nil, fmt.Errorf("runtime: provide: %w", err)
		}
	}

	err := c.Invoke(func(
		gw *gateway.Gateway,
		loader *tenant.Loader,
		backend storage.Backend,
		recorder *analytics.Recorder,
		worker *analytics.Worker,
		memPipe *memorypipeline.Pipeline,
		trend *analytics.TrendScheduler,
		tokenizer *heuristics.Tokenizer,
	) {
		rt.Gateway = gw
		rt.Tenants = loader
		rt.Backend = backend
		rt.Recorder = recorder
		rt.Worker = worker
		rt.MemoryPipeline = memPipe
		rt.TrendScheduler = trend

		rt.closers = append(rt.closers, func() error { memPipe.Close(); return nil })
		rt.closers = append(rt.closers, recorder.Close)
		rt.closers = append(rt.closers, func() error { tokenizer.Close(); return nil })

		for _, slug := range loader.Slugs() {
			if _, err := trend.ScheduleTenant(slug, cfg.Analytics.TrendWindowH); err != nil {
				logger.Warn(context.Background(), "runtime: failed to schedule trend detection",
					map[string]interface{}{"tenant": slug, "error": err.Error()})
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("runtime: invoke: %w", err)
	}
	return rt, nil
}

func newTenantLoader(cfg *config.Config) (*tenant.Loader, error) {
	return tenant.NewLoader(cfg.TenantCatalogPath)
}

// newStorageBackend selects the file-backed or SQL+vector implementation
// once, per §9: the Config value is immutable for the process lifetime, so
// nothing downstream ever re-checks cfg.Storage.Backend again.
func newStorageBackend(cfg *config.Config) (storage.Backend, error) {
	switch cfg.Storage.Backend {
	case "file":
		b, err := filestore.New(cfg.Storage.FileRoot)
		if err != nil {
			return nil, apperr.New(apperr.BackendMisconfig, err)
		}
		return b, nil
	case "sql", "":
		db, err := gorm.Open(postgres.Open(cfg.Storage.DSN), &gorm.Config{})
		if err != nil {
			return nil, apperr.New(apperr.BackendMisconfig, err)
		}
		var opts []sqlstore.Option
		if len(cfg.Storage.ESAddrs) > 0 {
			es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: cfg.Storage.ESAddrs})
			if err != nil {
				return nil, apperr.New(apperr.BackendMisconfig, err)
			}
			opts = append(opts, sqlstore.WithElasticsearch(es, "document_chunks"))
		}
		return sqlstore.New(db, opts...), nil
	default:
		return nil, apperr.Newf(apperr.BackendMisconfig, "runtime: unknown storage.backend %q", cfg.Storage.Backend)
	}
}

func newEmbedderClient(cfg *config.Config) (*embedding.Client, error) {
	provider := embedding.NewOpenAIProvider(cfg.Embedder.APIKey, cfg.Embedder.BaseURL, cfg.Embedder.Model, cfg.Embedder.Dim)
	var opts []embedding.Option
	if cfg.Embedder.CacheRedisAddr != "" {
		opts = append(opts, embedding.WithCache(redis.NewClient(&redis.Options{Addr: cfg.Embedder.CacheRedisAddr})))
	}
	return embedding.New(provider, cfg.Embedder.PoolSize, opts...)
}

// rateLimitRedisHandle exists only so dig can provide an optional
// *redis.Client for the cross-replica rate limiter counter, distinct from
// any other *redis.Client a future provider might add.
type rateLimitRedisHandle struct{ *redis.Client }

func newRateLimitRedis(cfg *config.Config) *rateLimitRedisHandle {
	if cfg.RateLimit.RedisAddr == "" {
		return &rateLimitRedisHandle{}
	}
	return &rateLimitRedisHandle{redis.NewClient(&redis.Options{Addr: cfg.RateLimit.RedisAddr})}
}

// userLimiter and ipLimiter wrap *ratelimit.Limiter so dig can provide two
// distinct token buckets (per-user, per-IP) without an ambiguous-type error.
type userLimiter struct{ *ratelimit.Limiter }
type ipLimiter struct{ *ratelimit.Limiter }

func newUserLimiter(cfg *config.Config, rdb *rateLimitRedisHandle) *userLimiter {
	var opts []ratelimit.Option
	if rdb.Client != nil {
		opts = append(opts, ratelimit.WithRedis(rdb.Client))
	}
	return &userLimiter{ratelimit.New(float64(cfg.RateLimit.PerUserRPM)/60.0, cfg.RateLimit.PerUserRPM, opts...)}
}

func newIPLimiter(cfg *config.Config, rdb *rateLimitRedisHandle) *ipLimiter {
	var opts []ratelimit.Option
	if rdb.Client != nil {
		opts = append(opts, ratelimit.WithRedis(rdb.Client))
	}
	return &ipLimiter{ratelimit.New(float64(cfg.RateLimit.PerIPRPM)/60.0, cfg.RateLimit.PerIPRPM, opts...)}
}

func newAggregator(cfg *config.Config) (*analytics.Aggregator, error) {
	return analytics.NewAggregator(cfg.Storage.DSN)
}

func newRecorder(cfg *config.Config, backend storage.Backend) *analytics.Recorder {
	opt := asynq.RedisClientOpt{Addr: cfg.Analytics.RedisAddr}
	return analytics.NewRecorder(opt, backend)
}

func newWorker(backend storage.Backend) *analytics.Worker {
	return analytics.NewWorker(backend)
}

func newTrendScheduler(agg *analytics.Aggregator) *analytics.TrendScheduler {
	return analytics.NewTrendScheduler(
		func(ctx context.Context, tenantID string, windowHours int) (recent, historical []types.QueryRecord, err error) {
			now := time.Now().UTC()
			d := time.Duration(windowHours) * time.Hour
			recent, err = agg.QueryRecordsInWindow(ctx, tenantID, now.Add(-d), now)
			if err != nil {
				return nil, nil, err
			}
			historical, err = agg.QueryRecordsInWindow(ctx, tenantID, now.Add(-2*d), now.Add(-d))
			if err != nil {
				return nil, nil, err
			}
			return recent, historical, nil
		},
		func(tenantID string, report types.TrendReport) {
			logger.Info(context.Background(), "runtime: trend report computed",
				map[string]interface{}{"tenant": tenantID, "anomalies": len(report.Anomalies)})
		},
	)
}

func newPrerequisiteGraph(cfg *config.Config) (*retrieval.PrerequisiteGraph, error) {
	if cfg.Retrieval.Neo4jURI == "" {
		return nil, nil
	}
	driver, err := neo4j.NewDriverWithContext(cfg.Retrieval.Neo4jURI,
		neo4j.BasicAuth(cfg.Retrieval.Neo4jUser, cfg.Retrieval.Neo4jPassword, ""))
	if err != nil {
		return nil, apperr.New(apperr.BackendMisconfig, err)
	}
	return retrieval.NewPrerequisiteGraph(driver), nil
}

func newRetriever(
	cfg *config.Config, backend storage.Backend, embedder *embedding.Client, graph *retrieval.PrerequisiteGraph,
) *retrieval.Retriever {
	opts := []retrieval.Option{
		retrieval.WithWeights(retrieval.Weights{
			Content: cfg.Retrieval.Weights.Content, Questions: cfg.Retrieval.Weights.Questions,
			TypeBonus: cfg.Retrieval.Weights.TypeBonus, Entity: cfg.Retrieval.Weights.EntityBonus,
		}),
		retrieval.WithMinScore(cfg.Retrieval.MinScore),
		retrieval.WithTopK(cfg.Retrieval.TopK),
	}
	if graph != nil {
		opts = append(opts, retrieval.WithPrerequisiteGraph(graph))
	}
	return retrieval.New(backend, embedder, opts...)
}

func newTokenizer() *heuristics.Tokenizer { return heuristics.NewTokenizer() }

func newPatternDetector(recorder *analytics.Recorder) *heuristics.PatternDetector {
	return heuristics.NewPatternDetector(recorder)
}

func newMemoryPipeline(cfg *config.Config, backend storage.Backend, embedder *embedding.Client) *memorypipeline.Pipeline {
	return memorypipeline.New(backend, embedder,
		memorypipeline.WithFlushInterval(cfg.Memory.BatchInterval()),
		memorypipeline.WithMaxBatchSize(cfg.Memory.MaxBatchSize))
}

func newLLMClient(cfg *config.Config) llm.Provider {
	return llm.New(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model)
}

func newDispatcher(backend storage.Backend, embedder *embedding.Client) *pipeline.Dispatcher {
	return pipeline.NewDispatcher(backend, embedder)
}

func newCognitive(
	cfg *config.Config,
	retriever *retrieval.Retriever,
	patternDetect *heuristics.PatternDetector,
	tokenizer *heuristics.Tokenizer,
	memPipe *memorypipeline.Pipeline,
	recorder *analytics.Recorder,
	dispatcher *pipeline.Dispatcher,
	llmProvider llm.Provider,
) *pipeline.Cognitive {
	return pipeline.New(
		retriever, patternDetect, heuristics.DepartmentSignals, tokenizer, memPipe, recorder, dispatcher, llmProvider,
		pipeline.WithTimeouts(cfg.Pipeline.RetrieveTimeout(), cfg.LLM.FirstTokenTimeout(), cfg.LLM.IdleTimeout()),
	)
}

func newUserCache() *identity.UserCache { return identity.NewUserCache(10 * time.Minute) }

// enterpriseIdP and consumerIdP wrap identity.IdentityProvider so dig can
// provide the two distinct implementations the Gateway needs (enterprise
// JWT, consumer opaque session) without an ambiguous-interface error.
type enterpriseIdP struct{ identity.IdentityProvider }
type consumerIdP struct{ identity.IdentityProvider }

func newEnterpriseIdP(cfg *config.Config) *enterpriseIdP {
	return &enterpriseIdP{&identity.EnterpriseJWTProvider{KeyFunc: identity.NewJWKSKeyFunc(cfg.Auth.JWKSURL).Keyfunc}}
}

// newConsumerIdP is the consumer-mode IdP; session lookup itself is an
// out-of-scope external OAuth provider, so Lookup always reports a failed
// lookup rather than fabricating a session store.
func newConsumerIdP() *consumerIdP {
	return &consumerIdP{&identity.ConsumerOpaqueProvider{
		Lookup: func(ctx context.Context, token string) (identity.IdentityClaims, bool, error) {
			return identity.IdentityClaims{}, false, nil
		},
	}}
}

func newSession(backend storage.Backend, cache *identity.UserCache) (*identity.Session, error) {
	users, ok := backend.(identity.UserStore)
	if !ok {
		return nil, apperr.New(apperr.BackendMisconfig, fmt.Errorf("runtime: storage backend does not implement identity.UserStore"))
	}
	return identity.NewSession(users, cache), nil
}

// newAttachmentResolver resolves §6 inbound attachment ids against object
// storage; an empty cfg.Attachments.Endpoint yields a disabled resolver that
// reports every id unresolved rather than failing gateway startup.
func newAttachmentResolver(cfg *config.Config) *gateway.AttachmentResolver {
	return gateway.NewAttachmentResolver(cfg.Attachments)
}

func newGateway(
	cfg *config.Config,
	loader *tenant.Loader,
	session *identity.Session,
	enterprise *enterpriseIdP,
	consumer *consumerIdP,
	cache *identity.UserCache,
	backend storage.Backend,
	agg *analytics.Aggregator,
	cognitive *pipeline.Cognitive,
	embedder *embedding.Client,
	attachments *gateway.AttachmentResolver,
	perUser *userLimiter,
	perIP *ipLimiter,
) (*gateway.Gateway, error) {
	users, ok := backend.(gateway.UserAdmin)
	if !ok {
		return nil, apperr.New(apperr.BackendMisconfig, fmt.Errorf("runtime: storage backend does not implement gateway.UserAdmin"))
	}
	audit, ok := backend.(gateway.AuditReader)
	if !ok {
		return nil, apperr.New(apperr.BackendMisconfig, fmt.Errorf("runtime: storage backend does not implement gateway.AuditReader"))
	}
	return gateway.New(gateway.Deps{
		Config: cfg, Tenants: loader, Session: session,
		IdPEnterprise: enterprise.IdentityProvider, IdPConsumer: consumer.IdentityProvider, UserCache: cache,
		Users: users, Audit: audit, Backend: backend, Analytics: agg, Cognitive: cognitive,
		Embedder: embedder, Attachments: attachments, UserLimiter: perUser.Limiter, IPLimiter: perIP.Limiter,
	}), nil
}
