// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/poiesic/mentorit/ai"
	"github.com/poiesic/mentorit/classify"
	"github.com/poiesic/mentorit/core"
	"github.com/poiesic/mentorit/storage/pinecone"
)

// Vector store backends.
const (
	BackendLocal    = "local"
	BackendPinecone = "pinecone"
)

// AI providers.
const (
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

var (
	// ErrInvalidBackend is returned for an unknown vector backend.
	ErrInvalidBackend = errors.New("invalid vector backend")

	// ErrInvalidProvider is returned for an unknown AI provider.
	ErrInvalidProvider = errors.New("invalid AI provider")
)

// Config is the complete application configuration.
type Config struct {
	DBPath        string    `yaml:"db_path"`
	VectorBackend string    `yaml:"vector_backend"`
	Pinecone      Pinecone  `yaml:"pinecone"`
	AI            AI        `yaml:"ai"`
	Ingestion     Ingestion `yaml:"ingestion"`
	Logging       Logging   `yaml:"logging"`
}

type Pinecone struct {
	APIKeyEnv  string        `yaml:"api_key_env"`
	IndexHost  string        `yaml:"index_host"`
	IndexName  string        `yaml:"index_name"`
	APIVersion string        `yaml:"api_version"`
	Timeout    time.Duration `yaml:"timeout"`
}

type AI struct {
	Provider        string `yaml:"provider"`
	EmbeddingHost   string `yaml:"embedding_host"`
	GeneratorHost   string `yaml:"generator_host"`
	ClassifierHost  string `yaml:"classifier_host"`
	EmbeddingModel  string `yaml:"embedding_model"`
	GeneratorModel  string `yaml:"generator_model"`
	ClassifierModel string `yaml:"classifier_model"`
	APIKeyEnv       string `yaml:"api_key_env"`
	Dimension       int    `yaml:"dimension"`
}

type Ingestion struct {
	KnownNamespaces    []string      `yaml:"known_namespaces"`
	SecondaryThreshold float64       `yaml:"secondary_threshold"`
	PoolSize           int           `yaml:"pool_size"`
	MaxTokens          int           `yaml:"max_tokens"`
	GroupSize          int           `yaml:"group_size"`
	MicroBatch         int           `yaml:"micro_batch"`
	StaleAfter         time.Duration `yaml:"stale_after"`
	RecoveryInterval   time.Duration `yaml:"recovery_interval"`
}

type Logging struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the built-in configuration: a local badger database and
// vector index with models served by a local OpenAI-compatible server.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	return &Config{
		DBPath:        "mentorit.db",
		VectorBackend: BackendLocal,
		Pinecone: Pinecone{
			APIKeyEnv: "PINECONE_API_KEY",
			Timeout:   30 * time.Second,
		},
		AI: AI{
			Provider:        ProviderOpenAI,
			EmbeddingHost:   aiDefaults.EmbeddingHost,
			GeneratorHost:   aiDefaults.GeneratorHost,
			ClassifierHost:  aiDefaults.ClassifierHost,
			EmbeddingModel:  aiDefaults.EmbeddingModel,
			GeneratorModel:  aiDefaults.GeneratorModel,
			ClassifierModel: aiDefaults.ClassifierModel,
			APIKeyEnv:       "OPENAI_API_KEY",
			Dimension:       aiDefaults.Dimension,
		},
		Ingestion: Ingestion{
			SecondaryThreshold: classify.DefaultSecondaryThreshold,
			PoolSize:           2,
			MaxTokens:          8000,
			GroupSize:          50,
			MicroBatch:         15,
			StaleAfter:         2 * time.Minute,
			RecoveryInterval:   time.Minute,
		},
		Logging: Logging{Level: "info"},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the environment.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv loads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading %s: %w", path, err)
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("MENTORIT_DB", &c.DBPath)
	str("MENTORIT_VECTOR_BACKEND", &c.VectorBackend)
	str("MENTORIT_PINECONE_INDEX_HOST", &c.Pinecone.IndexHost)
	str("MENTORIT_PINECONE_INDEX_NAME", &c.Pinecone.IndexName)
	str("MENTORIT_AI_PROVIDER", &c.AI.Provider)
	str("MENTORIT_EMBEDDING_HOST", &c.AI.EmbeddingHost)
	str("MENTORIT_GENERATOR_HOST", &c.AI.GeneratorHost)
	str("MENTORIT_CLASSIFIER_HOST", &c.AI.ClassifierHost)
	str("MENTORIT_EMBEDDING_MODEL", &c.AI.EmbeddingModel)
	str("MENTORIT_GENERATOR_MODEL", &c.AI.GeneratorModel)
	str("MENTORIT_CLASSIFIER_MODEL", &c.AI.ClassifierModel)
	str("MENTORIT_LOG_LEVEL", &c.Logging.Level)
	str("MENTORIT_LOG_FILE", &c.Logging.File)

	if v, ok := lookup("MENTORIT_EMBEDDING_DIMENSION"); ok && v != "" {
		dim, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MENTORIT_EMBEDDING_DIMENSION: %w", err)
		}
		c.AI.Dimension = dim
	}
	if v, ok := lookup("MENTORIT_NAMESPACES"); ok && v != "" {
		c.Ingestion.KnownNamespaces = strings.Split(v, ",")
	}
	return nil
}

// Validate normalizes the config and checks its values.
func (c *Config) Validate() error {
	c.VectorBackend = strings.ToLower(strings.TrimSpace(c.VectorBackend))
	switch c.VectorBackend {
	case BackendLocal, BackendPinecone:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidBackend, c.VectorBackend)
	}

	c.AI.Provider = strings.ToLower(strings.TrimSpace(c.AI.Provider))
	switch c.AI.Provider {
	case ProviderOpenAI, ProviderMock:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidProvider, c.AI.Provider)
	}

	if c.DBPath == "" {
		return errors.New("config: db_path is required")
	}
	if c.Ingestion.SecondaryThreshold < 0 || c.Ingestion.SecondaryThreshold > 1 {
		return errors.New("config: secondary_threshold must be between 0 and 1")
	}
	if c.Ingestion.PoolSize <= 0 {
		return errors.New("config: pool_size must be greater than 0")
	}
	if c.Ingestion.StaleAfter <= 0 {
		return errors.New("config: stale_after must be positive")
	}

	namespaces := make([]string, 0, len(c.Ingestion.KnownNamespaces))
	seen := make(map[string]bool)
	for _, raw := range c.Ingestion.KnownNamespaces {
		ns, err := core.NormalizeNamespace(raw)
		if err != nil {
			continue
		}
		if !seen[ns] {
			seen[ns] = true
			namespaces = append(namespaces, ns)
		}
	}
	c.Ingestion.KnownNamespaces = namespaces
	return nil
}

// AIConfig returns the model settings. The API key is read from the
// environment variable named by APIKeyEnv.
func (c *Config) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.AI.EmbeddingHost),
		ai.WithGeneratorHost(c.AI.GeneratorHost),
		ai.WithClassifierHost(c.AI.ClassifierHost),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithGeneratorModel(c.AI.GeneratorModel),
		ai.WithClassifierModel(c.AI.ClassifierModel),
		ai.WithDimension(c.AI.Dimension),
		ai.WithAPIKey(envValue(c.AI.APIKeyEnv)),
	)
}

// PineconeConfig returns the vector index settings with the API key resolved
// from the environment.
func (c *Config) PineconeConfig() pinecone.Config {
	return pinecone.Config{
		APIKey:     envValue(c.Pinecone.APIKeyEnv),
		APIVersion: c.Pinecone.APIVersion,
		IndexHost:  c.Pinecone.IndexHost,
		IndexName:  c.Pinecone.IndexName,
		Timeout:    c.Pinecone.Timeout,
	}
}

func envValue(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}
