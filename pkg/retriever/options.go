package retriever

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	indexDir string

	embedder     Embedder
	openAIKey    string
	openAIModel  string
	openAIURL    string
	hashingDim   int
	useHashing   bool
	dimensions   int
	batchSize    int
	batchDelay   time.Duration
	maxRetries   int
	backoffUnit  time.Duration
	encoding     string
	maxTokens    int
	overlap      int
	synonyms     map[string][]string
	fetchTimeout time.Duration

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithIndexDir sets the directory holding index generations. Required.
func WithIndexDir(dir string) Option {
	return optionFunc(func(c *clientConfig) {
		c.indexDir = dir
	})
}

// WithEmbedder sets a custom text embedding provider.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
	})
}

// WithOpenAI uses an OpenAI embedding model.
func WithOpenAI(apiKey, model string) Option {
	return optionFunc(func(c *clientConfig) {
		c.openAIKey = apiKey
		c.openAIModel = model
	})
}

// WithOpenAIBaseURL points the OpenAI provider at a compatible endpoint.
func WithOpenAIBaseURL(url string) Option {
	return optionFunc(func(c *clientConfig) {
		c.openAIURL = url
	})
}

// WithEmbeddingDimensions requests shortened OpenAI embeddings.
func WithEmbeddingDimensions(dim int) Option {
	return optionFunc(func(c *clientConfig) {
		c.dimensions = dim
	})
}

// WithHashingEmbedder uses the offline feature-hashing embedder. Useful for
// tests and development without network access.
func WithHashingEmbedder(dim int) Option {
	return optionFunc(func(c *clientConfig) {
		c.useHashing = true
		c.hashingDim = dim
	})
}

// WithBatching sets the embedding batch size and the pause between batches.
// A negative delay disables pacing.
func WithBatching(size int, delay time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.batchSize = size
		c.batchDelay = delay
	})
}

// WithRetries sets how often a transient embedding failure is retried and
// the backoff unit. A negative count disables retries.
func WithRetries(n int, unit time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.maxRetries = n
		c.backoffUnit = unit
	})
}

// WithChunking sets the tokenizer encoding and chunk token budget.
// Encoding "words" selects a whitespace tokenizer. Defaults: cl100k_base, 500, 50.
func WithChunking(encoding string, maxTokens, overlapTokens int) Option {
	return optionFunc(func(c *clientConfig) {
		c.encoding = encoding
		c.maxTokens = maxTokens
		c.overlap = overlapTokens
	})
}

// WithSynonyms replaces the query expansion table (canonical -> variants).
func WithSynonyms(table map[string][]string) Option {
	return optionFunc(func(c *clientConfig) {
		c.synonyms = table
	})
}

// WithFetchTimeout bounds downloads of remote sources. Default: 30s.
func WithFetchTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.fetchTimeout = d
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
