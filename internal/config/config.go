package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	DefaultTopK         = 3

	DefaultEmbeddingModel  = "sentence-transformers/all-MiniLM-L6-v2"
	DefaultGenerationURL   = "https://api-inference.huggingface.co/models/Qwen/Qwen2.5-3B-Instruct"
	DefaultGenerationModel = "Qwen/Qwen2.5-3B-Instruct"

	// DefaultChatCompletionsURL is the OpenAI-compatible router used by the "openai" provider
	DefaultChatCompletionsURL = "https://router.huggingface.co/v1"

	// DefaultPromptTemplate carries exactly one {context} and one {question} placeholder.
	DefaultPromptTemplate = `Base your answer strictly on the provided context to answer the question.
If the answer is not in the context, say that you do not have enough information.

IMPORTANT INSTRUCTIONS:
- Give a COMPLETE and DETAILED answer
- DO NOT stop the answer midway
- If needed, use additional paragraphs to explain fully
- Make sure the explanation is clear and comprehensive

Context: {context}
Question: {question}

Complete and detailed answer:`
)

// ErrInvalidConfig is wrapped by every validation failure returned from Validate
var ErrInvalidConfig = errors.New("invalid configuration")

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Addr           string `yaml:"addr"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	LogMode        string `yaml:"log_mode"` // "development" or "production"
}

// ChunkerConfig configures how page text is split into windows
type ChunkerConfig struct {
	ChunkSize       int  `yaml:"chunk_size"`
	ChunkOverlap    int  `yaml:"chunk_overlap"`
	ExtractKeywords bool `yaml:"extract_keywords"`
	NumKeywords     int  `yaml:"num_keywords"` // per chunk
	// DocumentKeywords is how many keywords are reported for an uploaded document
	DocumentKeywords int `yaml:"document_keywords"`
}

// EmbedderConfig configures the hosted feature-extraction endpoint
type EmbedderConfig struct {
	BaseURL           string  `yaml:"base_url"`
	Model             string  `yaml:"model"`
	BatchSize         int     `yaml:"batch_size"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// GeneratorConfig selects and configures the generation provider
type GeneratorConfig struct {
	Provider          string  `yaml:"provider"` // "huggingface" or "openai"
	EndpointURL       string  `yaml:"endpoint_url"`
	Model             string  `yaml:"model"` // only used by the openai-compatible provider
	MaxNewTokens      int     `yaml:"max_new_tokens"`
	Temperature       float64 `yaml:"temperature"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	PromptTemplate    string  `yaml:"prompt_template"`
}

// RetrievalConfig configures the retriever
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// VectorStoreConfig selects and configures the vector store implementation
type VectorStoreConfig struct {
	Type             string        `yaml:"type"` // "chroma" or "memory"
	CollectionPrefix string        `yaml:"collection_prefix"`
	Chroma           *ChromaConfig `yaml:"chroma,omitempty"`
}

// ChromaConfig contains connection details for ChromaDB
type ChromaConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Tenant      string `yaml:"tenant"`
	Database    string `yaml:"database"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// SessionStoreConfig selects where transcripts and active collections are kept
type SessionStoreConfig struct {
	Type        string       `yaml:"type"` // "memory" or "redis"
	TTLMinutes  int          `yaml:"ttl_minutes"`
	DropOnClose bool         `yaml:"drop_collection_on_close"`
	Redis       *RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig contains connection details for Redis
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// AppConfig is the root application configuration structure
type AppConfig struct {
	Server       ServerConfig       `yaml:"server"`
	Chunker      ChunkerConfig      `yaml:"chunker"`
	Embedder     EmbedderConfig     `yaml:"embedder"`
	Generator    GeneratorConfig    `yaml:"generator"`
	Retrieval    RetrievalConfig    `yaml:"retrieval"`
	VectorStore  VectorStoreConfig  `yaml:"vector_store"`
	SessionStore SessionStoreConfig `yaml:"session_store"`

	// HFToken is never read from or written to YAML; it is supplied through the environment.
	HFToken string `yaml:"-"`
}

// Load reads .env (if present), the optional YAML file at path, and environment overrides.
// An empty path or a missing file yields defaults.
func Load(path string) (*AppConfig, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

// Default returns the configuration used when no file is supplied
func Default() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Addr:           ":8080",
			MaxUploadBytes: 50 << 20,
			LogMode:        "development",
		},
		Chunker: ChunkerConfig{
			ChunkSize:        DefaultChunkSize,
			ChunkOverlap:     DefaultChunkOverlap,
			ExtractKeywords:  true,
			NumKeywords:      5,
			DocumentKeywords: 10,
		},
		Embedder: EmbedderConfig{
			BaseURL:           "https://api-inference.huggingface.co/pipeline/feature-extraction",
			Model:             DefaultEmbeddingModel,
			BatchSize:         32,
			TimeoutSecs:       60,
			RequestsPerSecond: 5,
		},
		Generator: GeneratorConfig{
			Provider:          "huggingface",
			EndpointURL:       DefaultGenerationURL,
			MaxNewTokens:      1024,
			Temperature:       0.7,
			TimeoutSecs:       120,
			RequestsPerSecond: 1,
			PromptTemplate:    DefaultPromptTemplate,
		},
		Retrieval: RetrievalConfig{TopK: DefaultTopK},
		VectorStore: VectorStoreConfig{
			Type:             "chroma",
			CollectionPrefix: "simplebot",
			Chroma: &ChromaConfig{
				Host:        "localhost",
				Port:        8000,
				Tenant:      "default_tenant",
				Database:    "default_database",
				TimeoutSecs: 30,
			},
		},
		SessionStore: SessionStoreConfig{
			Type:       "memory",
			TTLMinutes: 24 * 60,
		},
	}
}

// applyEnv reads environment overrides the same way the deployment scripts set them
func applyEnv(cfg *AppConfig) {
	cfg.HFToken = strings.TrimSpace(os.Getenv("HF_TOKEN"))

	if addr := os.Getenv("SERVER_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}
	if mode := os.Getenv("LOG_MODE"); mode != "" {
		cfg.Server.LogMode = mode
	}
	if url := os.Getenv("HF_ENDPOINT_URL"); url != "" {
		cfg.Generator.EndpointURL = url
	}
	if provider := os.Getenv("GENERATION_PROVIDER"); provider != "" {
		cfg.Generator.Provider = provider
	}
	if storeType := os.Getenv("VECTOR_STORE"); storeType != "" {
		cfg.VectorStore.Type = storeType
	}

	if cfg.VectorStore.Chroma == nil {
		cfg.VectorStore.Chroma = &ChromaConfig{}
	}
	if host := os.Getenv("CHROMA_HOST"); host != "" {
		cfg.VectorStore.Chroma.Host = host
	}
	if portStr := os.Getenv("CHROMA_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			cfg.VectorStore.Chroma.Port = port
		}
	}
	if tenant := os.Getenv("CHROMA_TENANT"); tenant != "" {
		cfg.VectorStore.Chroma.Tenant = tenant
	}
	if database := os.Getenv("CHROMA_DATABASE"); database != "" {
		cfg.VectorStore.Chroma.Database = database
	}

	if storeType := os.Getenv("SESSION_STORE"); storeType != "" {
		cfg.SessionStore.Type = storeType
	}
	if cfg.SessionStore.Redis == nil {
		cfg.SessionStore.Redis = &RedisConfig{}
	}
	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.SessionStore.Redis.Host = host
	}
	if portStr := os.Getenv("REDIS_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			cfg.SessionStore.Redis.Port = port
		}
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.SessionStore.Redis.Password = password
	}
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		if dbNum, err := strconv.Atoi(dbStr); err == nil {
			cfg.SessionStore.Redis.DB = dbNum
		}
	}
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.MaxUploadBytes <= 0 {
		cfg.Server.MaxUploadBytes = 50 << 20
	}
	if cfg.Chunker.NumKeywords == 0 {
		cfg.Chunker.NumKeywords = 5
	}
	if cfg.Chunker.DocumentKeywords == 0 {
		cfg.Chunker.DocumentKeywords = 10
	}
	if cfg.Embedder.Model == "" {
		cfg.Embedder.Model = DefaultEmbeddingModel
	}
	if cfg.Embedder.BatchSize <= 0 {
		cfg.Embedder.BatchSize = 32
	}
	if cfg.Embedder.TimeoutSecs == 0 {
		cfg.Embedder.TimeoutSecs = 60
	}
	if cfg.Generator.Provider == "" {
		cfg.Generator.Provider = "huggingface"
	}
	if cfg.Generator.Provider == "openai" {
		if cfg.Generator.EndpointURL == "" || cfg.Generator.EndpointURL == DefaultGenerationURL {
			cfg.Generator.EndpointURL = DefaultChatCompletionsURL
		}
		if cfg.Generator.Model == "" {
			cfg.Generator.Model = DefaultGenerationModel
		}
	}
	if cfg.Generator.MaxNewTokens == 0 {
		cfg.Generator.MaxNewTokens = 1024
	}
	if cfg.Generator.TimeoutSecs == 0 {
		cfg.Generator.TimeoutSecs = 120
	}
	if cfg.Generator.PromptTemplate == "" {
		cfg.Generator.PromptTemplate = DefaultPromptTemplate
	}
	if cfg.Retrieval.TopK <= 0 {
		cfg.Retrieval.TopK = DefaultTopK
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "chroma"
	}
	if cfg.VectorStore.CollectionPrefix == "" {
		cfg.VectorStore.CollectionPrefix = "simplebot"
	}
	if c := cfg.VectorStore.Chroma; c != nil {
		if c.Host == "" {
			c.Host = "localhost"
		}
		if c.Port == 0 {
			c.Port = 8000
		}
		if c.TimeoutSecs == 0 {
			c.TimeoutSecs = 30
		}
	}
	if cfg.SessionStore.Type == "" {
		cfg.SessionStore.Type = "memory"
	}
	if r := cfg.SessionStore.Redis; r != nil {
		if r.Host == "" {
			r.Host = "localhost"
		}
		if r.Port == 0 {
			r.Port = 6379
		}
		if r.PoolSize == 0 {
			r.PoolSize = 10
		}
	}
}

// Validate rejects configurations that must not reach the pipeline:
// invalid chunk sizes, unknown providers, and a missing HF_TOKEN.
func (c *AppConfig) Validate() error {
	if err := ValidateChunking(c.Chunker.ChunkSize, c.Chunker.ChunkOverlap); err != nil {
		return err
	}
	switch c.Generator.Provider {
	case "huggingface", "openai":
	default:
		return fmt.Errorf("%w: unknown generation provider %q", ErrInvalidConfig, c.Generator.Provider)
	}
	// Embeddings are served by Hugging Face whichever generation provider is selected.
	if c.HFToken == "" {
		return fmt.Errorf("%w: HF_TOKEN is not set", ErrInvalidConfig)
	}
	switch c.VectorStore.Type {
	case "chroma", "memory":
	default:
		return fmt.Errorf("%w: unknown vector store %q", ErrInvalidConfig, c.VectorStore.Type)
	}
	switch c.SessionStore.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("%w: unknown session store %q", ErrInvalidConfig, c.SessionStore.Type)
	}
	return nil
}

// ValidateChunking enforces 0 <= overlap < size
func ValidateChunking(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return fmt.Errorf("%w: chunk_overlap must satisfy 0 <= overlap < chunk_size, got overlap=%d size=%d", ErrInvalidConfig, overlap, size)
	}
	return nil
}

// EmbedderTimeout returns the embedder HTTP timeout
func (c *AppConfig) EmbedderTimeout() time.Duration {
	return time.Duration(c.Embedder.TimeoutSecs) * time.Second
}

// GeneratorTimeout returns the generation HTTP timeout
func (c *AppConfig) GeneratorTimeout() time.Duration {
	return time.Duration(c.Generator.TimeoutSecs) * time.Second
}

// SessionTTL returns how long idle transcripts are kept by the session store
func (c *AppConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionStore.TTLMinutes) * time.Minute
}
