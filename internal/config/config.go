package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL"`

	// Query-embedding cache. When RedisAddr is empty an in-process TTL map
	// is used instead.
	RedisAddr        string        `envconfig:"REDIS_ADDR"`
	RedisPassword    string        `envconfig:"REDIS_PASSWORD"`
	EmbedCacheTTL    time.Duration `envconfig:"EMBED_CACHE_TTL" default:"5m"`

	// Provider credentials. A provider without a key is left out of the
	// routing tiers at startup.
	OpenAIAPIKey    string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL   string `envconfig:"OPENAI_BASE_URL"`
	AnthropicAPIKey string `envconfig:"ANTHROPIC_API_KEY"`
	GeminiAPIKey    string `envconfig:"GEMINI_API_KEY"`
	// Self-hosted OpenAI-compatible endpoint (vLLM, Ollama, etc).
	SelfHostedBaseURL string `envconfig:"SELFHOSTED_BASE_URL"`
	SelfHostedAPIKey  string `envconfig:"SELFHOSTED_API_KEY"`
	SelfHostedModel   string `envconfig:"SELFHOSTED_MODEL"`

	EmbeddingModel      string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`

	// Routing tiers as "provider:model" lists, cheapest-capable-first.
	CheapModels  []string `envconfig:"CHEAP_MODELS" default:"openai:gpt-4o-mini,anthropic:claude-3-5-haiku-latest,gemini:gemini-2.0-flash"`
	StrongModels []string `envconfig:"STRONG_MODELS" default:"openai:gpt-4o,anthropic:claude-sonnet-4-20250514,gemini:gemini-2.5-pro"`

	// Complexity classification for the model router.
	ComplexTokenThreshold int      `envconfig:"COMPLEX_TOKEN_THRESHOLD" default:"12"`
	ComplexKeywords       []string `envconfig:"COMPLEX_KEYWORDS" default:"compare,integrate,configure,difference,versus,migrate,troubleshoot"`

	// Fallback chain behavior.
	ProviderTimeout  time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"30s"`
	MaxRetries       int           `envconfig:"MAX_RETRIES" default:"2"`
	CooldownWindow   time.Duration `envconfig:"COOLDOWN_WINDOW" default:"5m"`
	MinAnswerLength  int           `envconfig:"MIN_ANSWER_LENGTH" default:"20"`

	// Hybrid search score combination.
	SemanticWeight float64 `envconfig:"SEMANTIC_WEIGHT" default:"0.7"`
	LexicalWeight  float64 `envconfig:"LEXICAL_WEIGHT" default:"0.3"`
	SearchTopK     int     `envconfig:"SEARCH_TOP_K" default:"10"`

	// Optional cross-encoder rerank endpoint (BGE/cohere-style JSON API).
	RerankEndpoint string        `envconfig:"RERANK_ENDPOINT"`
	RerankModel    string        `envconfig:"RERANK_MODEL" default:"bge-reranker-v2-m3"`
	RerankAPIKey   string        `envconfig:"RERANK_API_KEY"`
	RerankTimeout  time.Duration `envconfig:"RERANK_TIMEOUT" default:"5s"`

	// Context assembly.
	TokenBudget    int `envconfig:"TOKEN_BUDGET" default:"3000"`
	PromptOverhead int `envconfig:"PROMPT_OVERHEAD" default:"200"`
	MaxChunkTokens int `envconfig:"MAX_CHUNK_TOKENS" default:"512"`

	// Generation output cap passed to providers.
	MaxAnswerTokens int `envconfig:"MAX_ANSWER_TOKENS" default:"1024"`

	// Overall per-query deadline; stage sub-deadlines are derived from what
	// remains of it.
	QueryTimeout time.Duration `envconfig:"QUERY_TIMEOUT" default:"60s"`

	// Background embedding backfill.
	IndexPollInterval time.Duration `envconfig:"INDEX_POLL_INTERVAL" default:"10s"`
	IndexBatchSize    int           `envconfig:"INDEX_BATCH_SIZE" default:"32"`
	IndexConcurrency  int           `envconfig:"INDEX_CONCURRENCY" default:"4"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("GROUNDLINE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}

func (c *Config) HasRedis() bool {
	return c.RedisAddr != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasAnthropic() bool {
	return c.AnthropicAPIKey != ""
}

func (c *Config) HasGemini() bool {
	return c.GeminiAPIKey != ""
}

func (c *Config) HasSelfHosted() bool {
	return c.SelfHostedBaseURL != ""
}

func (c *Config) HasRerank() bool {
	return c.RerankEndpoint != ""
}
