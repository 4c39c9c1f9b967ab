package config

import (
	"os"
	"path/filepath"
)

// Default configuration values
const (
	// Embedding defaults
	DefaultEmbeddingProvider = "ollama"
	DefaultOllamaURL         = "http://localhost:11434"
	DefaultOllamaEmbedModel  = "nomic-embed-text"
	DefaultOpenAIEmbedModel  = "text-embedding-3-small"
	DefaultEmbedBatchSize    = 10
	DefaultEmbedWorkers      = 1

	// LLM defaults
	DefaultLLMProvider    = "ollama"
	DefaultOllamaLLMModel = "llama3"
	DefaultOpenAILLMModel = "gpt-4o-mini"
	DefaultAnthropicModel = "claude-3-haiku-20240307"
	DefaultTemperature    = 0.1
	DefaultMaxTokens      = 512

	// Chunking defaults
	DefaultChunkMode    = "recursive"
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50

	// Corpus defaults
	DefaultDocumentsPath = "data"
	DefaultMaxFileSize   = 50 << 20 // 50MB, PDFs and spreadsheets run large
	DefaultMaxFileCount  = 10000

	// Store defaults
	DefaultStoreName = "default"
	StoreFileExt     = ".db"

	// Retrieval defaults
	DefaultTopK = 3
)

// DefaultIgnorePatterns returns the default list of file patterns to ignore.
func DefaultIgnorePatterns() []string {
	return []string{
		// Office lock and temp files
		"~\\$*", // the $ is a regexp anchor unless escaped
		"*.tmp",
		".~lock.*",

		// Build outputs and dependencies
		"dist/",
		"build/",
		"node_modules/",
		"vendor/",
		".venv/",
		"venv/",
		"__pycache__/",

		// IDE/Editor
		".idea/",
		".vscode/",
		"*.swp",
		"*~",

		// Version control
		".git/",
		".svn/",
		".hg/",

		// Archives
		"*.zip",
		"*.tar",
		"*.tar.gz",
		"*.tgz",
		"*.rar",
		"*.7z",

		// Misc
		".DS_Store",
		"Thumbs.db",
		".env",
		".env.*",
		"*.log",
	}
}

// DefaultConfigDir returns the default configuration directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/docrag"
	}
	return filepath.Join(home, ".config", "docrag")
}

// DefaultDataDir returns the default data directory path.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".local/share/docrag"
	}
	return filepath.Join(home, ".local", "share", "docrag")
}

// DefaultStoreDir returns the directory persisted stores live in.
func DefaultStoreDir() string {
	return filepath.Join(DefaultDataDir(), "stores")
}
