package colpali

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kefio/ColPali-Workbench/internal/domain"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	endpoint     string
	token        string
	configServer string
	appName      string
	deploy       bool
	skipPing     bool

	schema       domain.SchemaConfig
	feedSession  domain.SessionConfig
	querySession domain.SessionConfig

	embedder QueryEmbedder

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithVespa sets the container endpoint serving document and search traffic.
// token may be empty for unauthenticated deployments.
func WithVespa(endpoint, token string) Option {
	return optionFunc(func(c *clientConfig) {
		c.endpoint = endpoint
		c.token = token
	})
}

// WithDeploy deploys the page schema to the config server during New.
func WithDeploy(configServer, appName string) Option {
	return optionFunc(func(c *clientConfig) {
		c.configServer = configServer
		c.appName = appName
		c.deploy = true
	})
}

// WithoutReadinessCheck skips the health probe New runs against the index.
func WithoutReadinessCheck() Option {
	return optionFunc(func(c *clientConfig) {
		c.skipPing = true
	})
}

// WithSchema overrides the index layout. Defaults to 128-dim patches in the
// pdf_page schema.
func WithSchema(s domain.SchemaConfig) Option {
	return optionFunc(func(c *clientConfig) {
		c.schema = s
	})
}

// WithFeedSession bounds concurrent record submissions and the feed deadline.
// Defaults: 1 connection, 180s.
func WithFeedSession(connections int, timeout time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.feedSession = domain.SessionConfig{Connections: connections, Timeout: timeout}
	})
}

// WithQuerySession bounds query sessions. Defaults: 1 connection, 120s.
func WithQuerySession(connections int, timeout time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.querySession = domain.SessionConfig{Connections: connections, Timeout: timeout}
	})
}

// WithQueryEmbedder sets the provider used when Search receives text only.
func WithQueryEmbedder(e QueryEmbedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
