package core

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/memoryglass/memoryglass-go/pkg/cache"
	"github.com/memoryglass/memoryglass-go/pkg/gateway"
	"github.com/memoryglass/memoryglass-go/pkg/llm"
	openaiLLM "github.com/memoryglass/memoryglass-go/pkg/llm/openai"
	"github.com/memoryglass/memoryglass-go/pkg/ratelimit"
	"github.com/memoryglass/memoryglass-go/pkg/session"
	"github.com/memoryglass/memoryglass-go/pkg/storage"
	mysqlStore "github.com/memoryglass/memoryglass-go/pkg/storage/mysql"
	postgresStore "github.com/memoryglass/memoryglass-go/pkg/storage/postgres"
	sqliteStore "github.com/memoryglass/memoryglass-go/pkg/storage/sqlite"
	"github.com/memoryglass/memoryglass-go/pkg/voice"
	"github.com/memoryglass/memoryglass-go/pkg/voice/elevenlabs"
)

// Client is the live-session memory and query-resolution engine.
//
// It owns the mutable shared state (sessions, rate windows, answer caches)
// and orchestrates the tiered resolution pipeline: rate check, cache check,
// classification, deterministic keyword match, and finally the throttled
// external model call with memory-only fallback.
//
// The client is safe for concurrent use. State for a given user is
// serialized per key, never behind a single global lock.
type Client struct {
	cfg    *Config
	logger *slog.Logger

	sessions *session.Store
	limiter  *ratelimit.Limiter
	caches   *cache.TwoTier
	short    *cache.RistrettoTier
	gw       *gateway.Gateway
	durable  storage.DurableStore
	voice    voice.Synthesizer
	node     *snowflake.Node
	now      func() time.Time

	ingest *ingester

	cacheHits   atomic.Int64
	keywordHits atomic.Int64
	modelCalls  atomic.Int64
	fallbacks   atomic.Int64
}

// Option overrides a collaborator or injection point, mainly for tests.
type Option func(*options)

type options struct {
	provider llm.Provider
	durable  storage.DurableStore
	synth    voice.Synthesizer
	clock    func() time.Time
	sleep    func(context.Context, time.Duration) error
	logger   *slog.Logger
}

// WithModelProvider substitutes the external reasoning model provider.
func WithModelProvider(p llm.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithDurableStore substitutes the durable store.
func WithDurableStore(s storage.DurableStore) Option {
	return func(o *options) { o.durable = s }
}

// WithSynthesizer substitutes the voice synthesizer.
func WithSynthesizer(s voice.Synthesizer) Option {
	return func(o *options) { o.synth = s }
}

// WithClock substitutes the wall clock, enabling deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// WithSleep substitutes the gateway's backoff sleep.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(o *options) { o.sleep = sleep }
}

// WithLogger substitutes the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// NewClient creates a memoryglass Client from the configuration.
//
// Collaborators are initialized per the provider switches in cfg unless
// overridden by options: the durable store (sqlite, postgres, mysql, or
// none), the reasoning model (openai), and the voice synthesizer
// (elevenlabs, when an API key is configured).
func NewClient(cfg *Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = time.Now
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	durable := o.durable
	if durable == nil {
		var err error
		durable, err = initDurable(cfg.Durable)
		if err != nil {
			return nil, err
		}
	}

	provider := o.provider
	if provider == nil {
		var err error
		provider, err = initModel(cfg.Model)
		if err != nil {
			return nil, err
		}
	}

	synth := o.synth
	if synth == nil && cfg.Voice.APIKey != "" {
		var err error
		synth, err = elevenlabs.NewClient(&elevenlabs.Config{
			APIKey:  cfg.Voice.APIKey,
			VoiceID: cfg.Voice.VoiceID,
		})
		if err != nil {
			return nil, NewPipelineError("NewClient", err)
		}
	}

	short, err := cache.NewRistrettoTier(cfg.Cache.ShortTTL)
	if err != nil {
		return nil, NewPipelineError("NewClient", err)
	}

	var long cache.Tier
	if durable != nil {
		long = cache.NewDurableTier(durable, cfg.Cache.LongTTL, o.logger)
	} else {
		mem, err := cache.NewRistrettoTier(cfg.Cache.LongTTL)
		if err != nil {
			return nil, NewPipelineError("NewClient", err)
		}
		long = mem
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, NewPipelineError("NewClient", err)
	}

	c := &Client{
		cfg:    cfg,
		logger: o.logger,
		sessions: session.NewStore(session.Config{
			RetentionHorizon: cfg.Session.RetentionHorizon,
			IdleThreshold:    cfg.Session.IdleThreshold,
			MaxObjects:       cfg.Session.MaxObjects,
			MaxActivities:    cfg.Session.MaxActivities,
			MaxChunks:        cfg.Session.MaxChunks,
			SummaryCap:       cfg.Session.SummaryCap,
		}, o.logger),
		limiter: ratelimit.New(cfg.Rate.Window, cfg.Rate.MaxPerWindow),
		caches:  &cache.TwoTier{Short: short, Long: long},
		short:   short,
		gw: gateway.New(provider, gateway.Config{
			MinInterval:    cfg.Gateway.MinInterval,
			MaxRetries:     cfg.Gateway.MaxRetries,
			InitialBackoff: cfg.Gateway.InitialBackoff,
			CallTimeout:    cfg.Gateway.CallTimeout,
			Clock:          o.clock,
			Sleep:          o.sleep,
		}, o.logger),
		durable: durable,
		voice:   synth,
		node:    node,
		now:     o.clock,
	}
	c.ingest = newIngester(c, cfg.Session.IngestQueueSize)
	return c, nil
}

// StartSession creates (or touches) the live session for userID.
func (c *Client) StartSession(userID string) (*StartResponse, error) {
	if userID == "" {
		return nil, NewPipelineError("StartSession", ErrBadInput)
	}
	sess := c.sessions.GetOrCreate(userID, c.now())
	return &StartResponse{
		SessionID: sess.ID(),
		StartedAt: toMillis(sess.StartedAt()),
	}, nil
}

// EndSession ends the live session for userID, flushing a capped summary to
// the durable store when one is configured. Ending twice is idempotent: the
// second call is a no-op success.
func (c *Client) EndSession(ctx context.Context, userID string) (*EndResponse, error) {
	if userID == "" {
		return nil, NewPipelineError("EndSession", ErrBadInput)
	}

	now := c.now()
	summary := c.sessions.End(userID, now)
	c.ingest.stop(userID)
	c.limiter.Forget(userID)

	if summary == nil {
		return &EndResponse{Success: true, Active: false}, nil
	}

	if c.durable != nil {
		if err := c.durable.SaveSessionSummary(ctx, summary); err != nil {
			// Best-effort flush: the summary is still returned.
			c.logger.Error("summary flush failed", "user_id", userID, "err", err)
		}
	}

	return &EndResponse{
		Success:            true,
		Active:             true,
		Duration:           summary.Duration().Milliseconds(),
		ObjectsDetected:    summary.ObjectsDetected,
		ActivitiesDetected: summary.ActivitiesDetected,
	}, nil
}

// Run owns the background sweep task and blocks until ctx is cancelled.
func (c *Client) Run(ctx context.Context) {
	c.sessions.RunSweeper(ctx, c.cfg.Session.SweepPeriod)
}

// Health reports which collaborators are configured.
func (c *Client) Health() *Health {
	return &Health{
		Status: "ok",
		Services: map[string]bool{
			"model":   true,
			"durable": c.durable != nil,
			"voice":   c.voice != nil,
		},
	}
}

// Stats returns a snapshot of the usage counters.
func (c *Client) Stats() Stats {
	return Stats{
		CacheHits:   c.cacheHits.Load(),
		KeywordHits: c.keywordHits.Load(),
		ModelCalls:  c.modelCalls.Load(),
		Fallbacks:   c.fallbacks.Load(),
	}
}

// Close releases all resources: ingest workers, the model gateway, the
// durable store, and the voice synthesizer.
func (c *Client) Close() error {
	c.ingest.close()
	c.short.Close()

	var first error
	if err := c.gw.Close(); err != nil && first == nil {
		first = err
	}
	if c.durable != nil {
		if err := c.durable.Close(); err != nil && first == nil {
			first = err
		}
	}
	if c.voice != nil {
		if err := c.voice.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// initDurable initializes the durable store backend.
func initDurable(cfg DurableConfig) (storage.DurableStore, error) {
	switch cfg.Provider {
	case "none", "":
		return nil, nil
	case "sqlite":
		return sqliteStore.NewClient(&sqliteStore.Config{
			DBPath: stringValue(cfg.Config, "db_path"),
		})
	case "postgres":
		return postgresStore.NewClient(&postgresStore.Config{
			Host:     stringValue(cfg.Config, "host"),
			Port:     intValue(cfg.Config, "port"),
			User:     stringValue(cfg.Config, "user"),
			Password: stringValue(cfg.Config, "password"),
			DBName:   stringValue(cfg.Config, "db_name"),
			SSLMode:  stringValue(cfg.Config, "ssl_mode"),
		})
	case "mysql":
		return mysqlStore.NewClient(&mysqlStore.Config{
			Host:     stringValue(cfg.Config, "host"),
			Port:     intValue(cfg.Config, "port"),
			User:     stringValue(cfg.Config, "user"),
			Password: stringValue(cfg.Config, "password"),
			DBName:   stringValue(cfg.Config, "db_name"),
		})
	default:
		return nil, NewPipelineError("initDurable", ErrInvalidConfig)
	}
}

// initModel initializes the reasoning model provider.
func initModel(cfg ModelConfig) (llm.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return openaiLLM.NewClient(&openaiLLM.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	default:
		return nil, NewPipelineError("initModel", ErrInvalidConfig)
	}
}

func stringValue(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func intValue(m map[string]interface{}, key string) int {
	if m == nil {
		return 0
	}
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}
