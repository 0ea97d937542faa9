package colpali

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kefio/ColPali-Workbench/internal/db"
	"github.com/kefio/ColPali-Workbench/internal/db/vespa"
	"github.com/kefio/ColPali-Workbench/internal/domain"
	"github.com/kefio/ColPali-Workbench/internal/domain/page"
	"github.com/kefio/ColPali-Workbench/internal/domain/search/request"
	"github.com/kefio/ColPali-Workbench/internal/imaging"
	pagerepo "github.com/kefio/ColPali-Workbench/internal/repository/page"
	searchrepo "github.com/kefio/ColPali-Workbench/internal/repository/search"
	feeduc "github.com/kefio/ColPali-Workbench/internal/usecase/feed"
	searchuc "github.com/kefio/ColPali-Workbench/internal/usecase/search"
)

const defaultReadinessTimeout = 10 * time.Second

var errNoEmbedder = fmt.Errorf("no query embedder configured: %w", domain.ErrInvalidQueryEmbedding)

// Client is the SDK entry point. It owns the index handle; Close releases it.
type Client struct {
	index     *vespa.Client
	builder   *page.Builder
	feed      *feeduc.Service
	search    *searchuc.Service
	schemaDef *db.SchemaDefinition
	obs       *observer
}

// New creates a Client. The provided context bounds the readiness check and,
// when WithDeploy is set, the schema deployment.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		schema:       domain.DefaultSchemaConfig(),
		feedSession:  domain.DefaultFeedSession(),
		querySession: domain.DefaultQuerySession(),
	}
	for _, o := range opts {
		o.apply(cfg)
	}
	if cfg.endpoint == "" {
		return nil, errors.New("colpali: vespa endpoint is required (use WithVespa)")
	}
	cfg.feedSession = cfg.feedSession.Normalize(domain.DefaultFeedSession())
	cfg.querySession = cfg.querySession.Normalize(domain.DefaultQuerySession())
	if cfg.schema.Namespace == "" {
		cfg.schema.Namespace = cfg.schema.Schema
	}

	schemaDef, err := pagerepo.Schema(cfg.schema)
	if err != nil {
		return nil, fmt.Errorf("colpali: build schema: %w", err)
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	index, err := vespa.NewClient(vespa.Config{
		Endpoint:     cfg.endpoint,
		Token:        cfg.token,
		Namespace:    cfg.schema.Namespace,
		ConfigServer: cfg.configServer,
		AppName:      cfg.appName,
	}, zap.NewNop())
	if err != nil {
		return nil, fmt.Errorf("colpali: create index client: %w", err)
	}

	if cfg.deploy {
		if err := index.Deploy(ctx, schemaDef); err != nil {
			index.Close()
			return nil, fmt.Errorf("colpali: deploy schema: %w", err)
		}
	}

	if !cfg.skipPing {
		pingCtx, cancel := context.WithTimeout(ctx, defaultReadinessTimeout)
		err := index.Ping(pingCtx)
		cancel()
		if err != nil {
			index.Close()
			return nil, fmt.Errorf("colpali: index not ready: %w", err)
		}
	}

	var embedder searchuc.Embedder = noopEmbedder{}
	if cfg.embedder != nil {
		embedder = &embedderAdapter{inner: cfg.embedder}
	}

	bounds := imaging.Bounds{MaxWidth: cfg.schema.ImageMaxWidth, MaxHeight: cfg.schema.ImageMaxHeight}
	return &Client{
		index:   index,
		builder: page.NewBuilder(bounds, nil),
		feed:    feeduc.New(pagerepo.New(index, cfg.schema), nil).WithSession(cfg.feedSession),
		search: searchuc.New(embedder, searchrepo.NewExecutor(index, cfg.querySession.Connections), cfg.schema, nil).
			WithTimeout(cfg.querySession.Timeout),
		schemaDef: schemaDef,
		obs:       obs,
	}, nil
}

// IndexDocument builds one record per page and feeds them in a single session.
// Per-page failures are reported, not returned; the error is set when records
// cannot be built or the session fails as a whole.
func (c *Client) IndexDocument(ctx context.Context, doc Document) (Report, error) {
	start := time.Now()

	records, err := c.builder.Build(doc)
	if err != nil {
		c.obs.observe("index_document", start, err, "url", doc.URL)
		return Report{}, fmt.Errorf("build records: %w", err)
	}

	rep, err := c.feed.Feed(ctx, records)
	c.obs.observe("index_document", start, err, "url", doc.URL, "pages", len(records))
	out := reportFromDomain(len(records), rep)
	if err != nil {
		return out, fmt.Errorf("feed: %w", err)
	}
	return out, nil
}

// Search ranks pages. A non-empty embedding is used as the query tensor;
// otherwise text is embedded with the configured QueryEmbedder.
func (c *Client) Search(ctx context.Context, text string, embedding [][]float32, opts SearchOptions) ([]Hit, error) {
	start := time.Now()

	req, err := request.New(text, opts.Mode, opts.Hits, opts.TargetHitsPerVector, false)
	if err != nil {
		c.obs.observe("search", start, err)
		return nil, err
	}
	if len(embedding) > 0 {
		req = req.WithEmbedding(embedding)
	}

	resp, err := c.search.Search(ctx, &req)
	c.obs.observe("search", start, err, "mode", string(req.Mode()), "hits", len(resp.Hits))
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, len(resp.Hits))
	for i := range resp.Hits {
		hits[i] = hitFromDomain(&resp.Hits[i])
	}
	return hits, nil
}

// Schema renders the page schema definition (.sd) this client feeds and queries.
func (c *Client) Schema() (string, error) {
	sd, err := vespa.RenderSchema(c.schemaDef)
	if err != nil {
		return "", fmt.Errorf("render schema: %w", err)
	}
	return sd, nil
}

// Health checks that the index is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.index.Ping(ctx)
}

// Close releases the index handle and any open sessions.
func (c *Client) Close() {
	c.index.Close()
}
