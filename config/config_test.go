package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, BackendLocal, cfg.VectorBackend)
	assert.Equal(t, ProviderOpenAI, cfg.AI.Provider)
	assert.Equal(t, 768, cfg.AI.Dimension)
	assert.Equal(t, 0.75, cfg.Ingestion.SecondaryThreshold)
	assert.Equal(t, 2*time.Minute, cfg.Ingestion.StaleAfter)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, "mentorit.yaml", `
db_path: /var/lib/mentorit
vector_backend: Pinecone
pinecone:
  index_name: mentors
  timeout: 10s
ai:
  generator_model: gpt-4o
  dimension: 1536
ingestion:
  known_namespaces: [Engineering, leadership, engineering, " "]
  stale_after: 5m
  pool_size: 4
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/mentorit", cfg.DBPath)
	assert.Equal(t, BackendPinecone, cfg.VectorBackend)
	assert.Equal(t, "mentors", cfg.Pinecone.IndexName)
	assert.Equal(t, 10*time.Second, cfg.Pinecone.Timeout)
	assert.Equal(t, "PINECONE_API_KEY", cfg.Pinecone.APIKeyEnv, "unset keys keep defaults")
	assert.Equal(t, "gpt-4o", cfg.AI.GeneratorModel)
	assert.Equal(t, "qwen2.5:3b", cfg.AI.ClassifierModel)
	assert.Equal(t, 1536, cfg.AI.Dimension)
	assert.Equal(t, []string{"engineering", "leadership"}, cfg.Ingestion.KnownNamespaces)
	assert.Equal(t, 5*time.Minute, cfg.Ingestion.StaleAfter)
	assert.Equal(t, 4, cfg.Ingestion.PoolSize)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Load(writeFile(t, "bad.yaml", "db_path: [unclosed"))
		assert.ErrorContains(t, err, "parsing config")
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := Load(writeFile(t, "c.yaml", "vector_backend: qdrant\n"))
		assert.ErrorIs(t, err, ErrInvalidBackend)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := Load(writeFile(t, "c.yaml", "ai:\n  provider: bedrock\n"))
		assert.ErrorIs(t, err, ErrInvalidProvider)
	})

	t.Run("threshold out of range", func(t *testing.T) {
		_, err := Load(writeFile(t, "c.yaml", "ingestion:\n  secondary_threshold: 1.5\n"))
		assert.ErrorContains(t, err, "secondary_threshold")
	})
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"MENTORIT_DB":                  "/tmp/db",
		"MENTORIT_VECTOR_BACKEND":      "pinecone",
		"MENTORIT_EMBEDDING_DIMENSION": "1024",
		"MENTORIT_NAMESPACES":          "sales,Support",
		"MENTORIT_GENERATOR_MODEL":     "",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.applyEnv(lookup))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/tmp/db", cfg.DBPath)
	assert.Equal(t, BackendPinecone, cfg.VectorBackend)
	assert.Equal(t, 1024, cfg.AI.Dimension)
	assert.Equal(t, []string{"sales", "support"}, cfg.Ingestion.KnownNamespaces)
	assert.Equal(t, "qwen2.5:7b", cfg.AI.GeneratorModel, "empty values are ignored")

	env["MENTORIT_EMBEDDING_DIMENSION"] = "wide"
	assert.Error(t, Default().applyEnv(lookup))
}

func TestSecretsFromEnv(t *testing.T) {
	t.Setenv("TEST_MENTORIT_OPENAI", "sk-test")
	t.Setenv("TEST_MENTORIT_PINECONE", "pc-test")

	cfg := Default()
	cfg.AI.APIKeyEnv = "TEST_MENTORIT_OPENAI"
	cfg.Pinecone.APIKeyEnv = "TEST_MENTORIT_PINECONE"
	cfg.Pinecone.IndexHost = "mentors-abc.svc.pinecone.io"

	aiCfg := cfg.AIConfig()
	assert.Equal(t, "sk-test", aiCfg.APIKey)
	assert.Equal(t, cfg.AI.GeneratorModel, aiCfg.GeneratorModel)
	require.NoError(t, aiCfg.Validate())

	pc := cfg.PineconeConfig()
	assert.Equal(t, "pc-test", pc.APIKey)
	assert.Equal(t, "mentors-abc.svc.pinecone.io", pc.IndexHost)

	cfg.AI.APIKeyEnv = ""
	assert.Empty(t, cfg.AIConfig().APIKey)
}

func TestLoadDotEnv(t *testing.T) {
	assert.NoError(t, loadDotEnv(filepath.Join(t.TempDir(), ".env")))

	path := writeFile(t, ".env", "TEST_MENTORIT_DOTENV=from-file\n")
	t.Setenv("TEST_MENTORIT_DOTENV", "")
	os.Unsetenv("TEST_MENTORIT_DOTENV")
	require.NoError(t, loadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("TEST_MENTORIT_DOTENV"))
}
