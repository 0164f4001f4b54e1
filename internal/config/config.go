// Package config loads and holds the application configuration.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Conf is the global configuration, populated by Init.
var Conf Config

// Config mirrors the structure of config.yaml.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Log           LogConfig           `mapstructure:"log"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	Ingest        IngestConfig        `mapstructure:"ingest"`
	Search        SearchConfig        `mapstructure:"search"`
	Store         StoreConfig         `mapstructure:"store"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// DatabaseConfig holds all database connections.
type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds the settings for the vector-capable primary store.
// An empty DSN disables the backend.
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// ElasticsearchConfig holds the settings for the optional Elasticsearch
// backend. Empty Addresses disables it.
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// EmbeddingConfig holds the settings for the embedding model provider.
type EmbeddingConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

// IngestConfig holds the chunking and validation parameters of the
// ingestion pipeline. The defaults are empirical, not tuned optima;
// treat them as inputs.
type IngestConfig struct {
	ChunkSize         int `mapstructure:"chunk_size"`
	ChunkOverlap      int `mapstructure:"chunk_overlap"`
	MinDocumentChars  int `mapstructure:"min_document_chars"`
	MinChunkChars     int `mapstructure:"min_chunk_chars"`
	MinParagraphChars int `mapstructure:"min_paragraph_chars"`
}

// SearchConfig holds the query-side parameters.
type SearchConfig struct {
	TopK     int     `mapstructure:"top_k"`
	MinScore float64 `mapstructure:"min_score"`
}

// StoreConfig holds settings for the flat-file fallback store.
type StoreConfig struct {
	FlatFilePath string `mapstructure:"flatfile_path"`
}

// Init reads the YAML file at configPath and unmarshals it into Conf,
// then fills unset values with defaults.
func Init(configPath string) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("failed to read config file: %w", err))
	}

	if err := viper.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("failed to unmarshal config: %w", err))
	}

	applyDefaults(&Conf)
}

func applyDefaults(c *Config) {
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1536
	}
	if c.Ingest.ChunkSize <= 0 {
		c.Ingest.ChunkSize = 800
	}
	if c.Ingest.ChunkOverlap <= 0 {
		c.Ingest.ChunkOverlap = 150
	}
	if c.Ingest.MinDocumentChars <= 0 {
		c.Ingest.MinDocumentChars = 50
	}
	if c.Ingest.MinChunkChars <= 0 {
		c.Ingest.MinChunkChars = 50
	}
	if c.Ingest.MinParagraphChars <= 0 {
		c.Ingest.MinParagraphChars = 20
	}
	if c.Search.TopK <= 0 {
		c.Search.TopK = 5
	}
	if c.Search.MinScore <= 0 {
		c.Search.MinScore = 0.3
	}
	if c.Store.FlatFilePath == "" {
		c.Store.FlatFilePath = "data/fragments.json"
	}
	if c.Elasticsearch.IndexName == "" {
		c.Elasticsearch.IndexName = "fragments"
	}
}
