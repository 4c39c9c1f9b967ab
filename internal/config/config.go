// Package config handles configuration loading and validation for docrag.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/nickcecere/docrag/internal/rag"
)

// Config represents the complete docrag configuration.
type Config struct {
	Embeddings EmbeddingsConfig `mapstructure:"embeddings"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Chunking   ChunkingConfig   `mapstructure:"chunking"`
	Documents  DocumentsConfig  `mapstructure:"documents"`
	Store      StoreConfig      `mapstructure:"store"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval"`
	Ignore     []string         `mapstructure:"ignore"`
}

// EmbeddingsConfig configures the embedding service.
type EmbeddingsConfig struct {
	Provider  string            `mapstructure:"provider"`
	BatchSize int               `mapstructure:"batch_size"`
	Workers   int               `mapstructure:"workers"`
	Ollama    OllamaEmbedConfig `mapstructure:"ollama"`
	OpenAI    OpenAIEmbedConfig `mapstructure:"openai"`
}

// OllamaEmbedConfig configures Ollama embeddings.
type OllamaEmbedConfig struct {
	URL   string `mapstructure:"url"`
	Model string `mapstructure:"model"`
}

// OpenAIEmbedConfig configures OpenAI (or OpenAI-compatible) embeddings.
type OpenAIEmbedConfig struct {
	Model      string `mapstructure:"model"`
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	Dimensions int    `mapstructure:"dimensions"`
}

// LLMConfig configures the language model used to answer questions.
type LLMConfig struct {
	Provider    string          `mapstructure:"provider"`
	Temperature float64         `mapstructure:"temperature"`
	MaxTokens   int             `mapstructure:"max_tokens"`
	Ollama      OllamaLLMConfig `mapstructure:"ollama"`
	OpenAI      OpenAILLMConfig `mapstructure:"openai"`
	Anthropic   AnthropicConfig `mapstructure:"anthropic"`
}

// OllamaLLMConfig configures Ollama LLM.
type OllamaLLMConfig struct {
	URL   string `mapstructure:"url"`
	Model string `mapstructure:"model"`
}

// OpenAILLMConfig configures OpenAI LLM.
type OpenAILLMConfig struct {
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// AnthropicConfig configures Anthropic LLM.
type AnthropicConfig struct {
	Model  string `mapstructure:"model"`
	APIKey string `mapstructure:"api_key"`
}

// ChunkingConfig configures how documents are split into fragments.
type ChunkingConfig struct {
	Mode       string   `mapstructure:"mode"`
	Size       int      `mapstructure:"size"`
	Overlap    int      `mapstructure:"overlap"`
	Separators []string `mapstructure:"separators"`
}

// DocumentsConfig configures the corpus that gets ingested.
type DocumentsConfig struct {
	Path         string `mapstructure:"path"`
	MaxFileSize  int    `mapstructure:"max_file_size"`
	MaxFileCount int    `mapstructure:"max_file_count"`
}

// StoreConfig configures where the vector store is persisted.
type StoreConfig struct {
	Dir            string `mapstructure:"dir"`
	Name           string `mapstructure:"name"`
	RebuildCorrupt bool   `mapstructure:"rebuild_corrupt"`
}

// Path returns the file the named store is persisted to.
func (s StoreConfig) Path() string {
	name := s.Name
	if name == "" {
		name = DefaultStoreName
	}
	return filepath.Join(s.Dir, name+StoreFileExt)
}

// RetrievalConfig configures query-time retrieval.
type RetrievalConfig struct {
	TopK int `mapstructure:"top_k"`
}

// Global configuration instance
var cfg *Config

// Get returns the current configuration.
func Get() *Config {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return cfg
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Embeddings: EmbeddingsConfig{
			Provider:  DefaultEmbeddingProvider,
			BatchSize: DefaultEmbedBatchSize,
			Workers:   DefaultEmbedWorkers,
			Ollama: OllamaEmbedConfig{
				URL:   DefaultOllamaURL,
				Model: DefaultOllamaEmbedModel,
			},
			OpenAI: OpenAIEmbedConfig{
				Model: DefaultOpenAIEmbedModel,
			},
		},
		LLM: LLMConfig{
			Provider:    DefaultLLMProvider,
			Temperature: DefaultTemperature,
			MaxTokens:   DefaultMaxTokens,
			Ollama: OllamaLLMConfig{
				URL:   DefaultOllamaURL,
				Model: DefaultOllamaLLMModel,
			},
			OpenAI: OpenAILLMConfig{
				Model: DefaultOpenAILLMModel,
			},
			Anthropic: AnthropicConfig{
				Model: DefaultAnthropicModel,
			},
		},
		Chunking: ChunkingConfig{
			Mode:    DefaultChunkMode,
			Size:    DefaultChunkSize,
			Overlap: DefaultChunkOverlap,
		},
		Documents: DocumentsConfig{
			Path:         DefaultDocumentsPath,
			MaxFileSize:  DefaultMaxFileSize,
			MaxFileCount: DefaultMaxFileCount,
		},
		Store: StoreConfig{
			Dir:  DefaultStoreDir(),
			Name: DefaultStoreName,
		},
		Retrieval: RetrievalConfig{
			TopK: DefaultTopK,
		},
		Ignore: DefaultIgnorePatterns(),
	}
}

// Load reads configuration from file and environment variables.
func Load(configFile string) error {
	// .env in the working directory feeds the environment; real env vars win
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("Failed to load .env file", "error", err)
	}

	setDefaults()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(DefaultConfigDir())
		viper.AddConfigPath(".")

		if rcPath := findRCFile(); rcPath != "" {
			viper.SetConfigFile(rcPath)
		}
	}

	viper.SetEnvPrefix("DOCRAG")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug("No config file found, using defaults")
	} else {
		log.Debug("Loaded config from", "file", viper.ConfigFileUsed())
	}

	loaded := &Config{}
	if err := viper.Unmarshal(loaded); err != nil {
		return fmt.Errorf("error parsing config: %w", err)
	}

	loadAPIKeysFromEnv(loaded)

	if err := loaded.Validate(); err != nil {
		return err
	}

	cfg = loaded
	return nil
}

// Validate checks values that would otherwise fail deep inside a pipeline.
func (c *Config) Validate() error {
	if c.Chunking.Size <= 0 {
		return &rag.ConfigError{Field: "chunking.size", Reason: "must be greater than 0"}
	}
	if c.Chunking.Overlap < 0 {
		return &rag.ConfigError{Field: "chunking.overlap", Reason: "must not be negative"}
	}
	if c.Chunking.Overlap >= c.Chunking.Size {
		return &rag.ConfigError{
			Field:  "chunking.overlap",
			Reason: fmt.Sprintf("%d must be less than chunking.size %d", c.Chunking.Overlap, c.Chunking.Size),
		}
	}
	switch c.Chunking.Mode {
	case "fixed", "recursive":
	default:
		return &rag.ConfigError{Field: "chunking.mode", Reason: fmt.Sprintf("unknown mode %q", c.Chunking.Mode)}
	}
	if c.Embeddings.BatchSize <= 0 {
		return &rag.ConfigError{Field: "embeddings.batch_size", Reason: "must be greater than 0"}
	}
	if c.Embeddings.Workers <= 0 {
		return &rag.ConfigError{Field: "embeddings.workers", Reason: "must be greater than 0"}
	}
	if c.Retrieval.TopK < 1 {
		return &rag.ConfigError{Field: "retrieval.top_k", Reason: "must be at least 1"}
	}
	return nil
}

// setDefaults sets default values in viper.
func setDefaults() {
	// Embeddings
	viper.SetDefault("embeddings.provider", DefaultEmbeddingProvider)
	viper.SetDefault("embeddings.batch_size", DefaultEmbedBatchSize)
	viper.SetDefault("embeddings.workers", DefaultEmbedWorkers)
	viper.SetDefault("embeddings.ollama.url", DefaultOllamaURL)
	viper.SetDefault("embeddings.ollama.model", DefaultOllamaEmbedModel)
	viper.SetDefault("embeddings.openai.model", DefaultOpenAIEmbedModel)

	// LLM
	viper.SetDefault("llm.provider", DefaultLLMProvider)
	viper.SetDefault("llm.temperature", DefaultTemperature)
	viper.SetDefault("llm.max_tokens", DefaultMaxTokens)
	viper.SetDefault("llm.ollama.url", DefaultOllamaURL)
	viper.SetDefault("llm.ollama.model", DefaultOllamaLLMModel)
	viper.SetDefault("llm.openai.model", DefaultOpenAILLMModel)
	viper.SetDefault("llm.anthropic.model", DefaultAnthropicModel)

	// Chunking
	viper.SetDefault("chunking.mode", DefaultChunkMode)
	viper.SetDefault("chunking.size", DefaultChunkSize)
	viper.SetDefault("chunking.overlap", DefaultChunkOverlap)

	// Documents
	viper.SetDefault("documents.path", DefaultDocumentsPath)
	viper.SetDefault("documents.max_file_size", DefaultMaxFileSize)
	viper.SetDefault("documents.max_file_count", DefaultMaxFileCount)

	// Store
	viper.SetDefault("store.dir", DefaultStoreDir())
	viper.SetDefault("store.name", DefaultStoreName)
	viper.SetDefault("store.rebuild_corrupt", false)

	// Retrieval
	viper.SetDefault("retrieval.top_k", DefaultTopK)

	viper.SetDefault("ignore", DefaultIgnorePatterns())
}

// findRCFile searches for .docragrc.yaml starting from current directory.
func findRCFile() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		rcPath := filepath.Join(dir, ".docragrc.yaml")
		if _, err := os.Stat(rcPath); err == nil {
			return rcPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// loadAPIKeysFromEnv fills API keys from well-known environment variables if not already set.
func loadAPIKeysFromEnv(c *Config) {
	openAIKey := firstEnv("OPENAI_API_KEY", "DASHSCOPE_API_KEY", "QWEN_API_KEY")
	if c.Embeddings.OpenAI.APIKey == "" {
		c.Embeddings.OpenAI.APIKey = openAIKey
	}
	if c.LLM.OpenAI.APIKey == "" {
		c.LLM.OpenAI.APIKey = openAIKey
	}

	if c.LLM.Anthropic.APIKey == "" {
		c.LLM.Anthropic.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// ConfigFilePath returns the path of the loaded config file, or empty string if none.
func ConfigFilePath() string {
	return viper.ConfigFileUsed()
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}
