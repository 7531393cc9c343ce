package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	t.Setenv("HF_TOKEN", "hf_test")
	t.Setenv("CHROMA_HOST", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultChunkSize, cfg.Chunker.ChunkSize)
	assert.Equal(t, DefaultChunkOverlap, cfg.Chunker.ChunkOverlap)
	assert.Equal(t, DefaultTopK, cfg.Retrieval.TopK)
	assert.True(t, cfg.Chunker.ExtractKeywords)
	assert.Equal(t, 10, cfg.Chunker.DocumentKeywords)
	assert.Equal(t, DefaultEmbeddingModel, cfg.Embedder.Model)
	assert.Equal(t, "chroma", cfg.VectorStore.Type)
	assert.Equal(t, "memory", cfg.SessionStore.Type)
	assert.Equal(t, "hf_test", cfg.HFToken)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_YAMLAndEnvOverrides(t *testing.T) {
	t.Setenv("HF_TOKEN", "hf_test")
	t.Setenv("CHROMA_HOST", "chroma.internal")
	t.Setenv("CHROMA_PORT", "9000")
	t.Setenv("REDIS_HOST", "redis.internal")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
chunker:
  chunk_size: 500
  chunk_overlap: 50
retrieval:
  top_k: 5
vector_store:
  type: memory
session_store:
  type: redis
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.Chunker.ChunkSize)
	assert.Equal(t, 50, cfg.Chunker.ChunkOverlap)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, "memory", cfg.VectorStore.Type)
	assert.Equal(t, "chroma.internal", cfg.VectorStore.Chroma.Host)
	assert.Equal(t, 9000, cfg.VectorStore.Chroma.Port)
	assert.Equal(t, "redis", cfg.SessionStore.Type)
	require.NotNil(t, cfg.SessionStore.Redis)
	assert.Equal(t, "redis.internal", cfg.SessionStore.Redis.Host)
	assert.Equal(t, 6379, cfg.SessionStore.Redis.Port)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunker: [not, a, map"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate_MissingToken(t *testing.T) {
	cfg := Default()
	cfg.HFToken = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "HF_TOKEN")
}

func TestValidate_UnknownProviders(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *AppConfig)
	}{
		{"generation provider", func(cfg *AppConfig) { cfg.Generator.Provider = "bard" }},
		{"vector store", func(cfg *AppConfig) { cfg.VectorStore.Type = "faiss" }},
		{"session store", func(cfg *AppConfig) { cfg.SessionStore.Type = "etcd" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.HFToken = "hf_test"
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestValidateChunking(t *testing.T) {
	tests := []struct {
		name      string
		size      int
		overlap   int
		expectErr bool
	}{
		{"defaults", 1000, 200, false},
		{"zero overlap", 100, 0, false},
		{"overlap one below size", 100, 99, false},
		{"overlap equals size", 100, 100, true},
		{"overlap above size", 100, 150, true},
		{"negative overlap", 100, -1, true},
		{"zero size", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChunking(tt.size, tt.overlap)
			if tt.expectErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
