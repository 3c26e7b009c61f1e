package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// RetrievalConfig groups every knob that shapes chunks, vectors and search.
// It is the single place these values live; components receive them from here.
type RetrievalConfig struct {
	ChunkStrategy   string  `yaml:"chunk_strategy"`
	ChunkSize       int     `yaml:"chunk_size"`
	ChunkOverlap    int     `yaml:"chunk_overlap"`
	MinChunkLength  int     `yaml:"min_chunk_length"`
	VectorDimension int     `yaml:"vector_dimension"`
	DistanceMetric  string  `yaml:"distance_metric"`
	ScoreThreshold  float32 `yaml:"score_threshold"`
	SearchLimit     int     `yaml:"search_limit"`
}

// Config holds all configuration for the application.
type Config struct {
	APIPort   string
	LogLevel  slog.Level
	LogFormat string
	DBPath    string

	VectorStore  string // "qdrant" or "memory"
	QdrantURL    string
	QdrantAPIKey string
	Collection   string

	EmbeddingBackend   string // "remote" or "local"
	EmbeddingBaseURL   string
	EmbeddingModelName string
	EmbeddingAPIKey    string
	EmbeddingAPIStyle  string  // "openai" or "ollama"
	EmbeddingRateLimit float64 // requests per second, 0 disables
	LocalModelPath     string

	Retrieval RetrievalConfig

	EmbedTimeout   time.Duration
	StoreTimeout   time.Duration
	IngestDegraded bool
	MaxUploadBytes int64
}

// DefaultRetrieval returns the retrieval defaults used when neither the YAML file nor the
// environment overrides them. VectorDimension has no default.
func DefaultRetrieval() RetrievalConfig {
	return RetrievalConfig{
		ChunkStrategy:  "paragraph",
		ChunkSize:      800,
		ChunkOverlap:   100,
		MinChunkLength: 50,
		DistanceMetric: "Cosine",
		ScoreThreshold: DefaultScoreThreshold("Cosine"),
		SearchLimit:    5,
	}
}

// DefaultScoreThreshold returns the search threshold used when neither the YAML file nor
// SCORE_THRESHOLD sets one. Euclid scores are negated distances, so its default keeps
// points within distance 1.
func DefaultScoreThreshold(metric string) float32 {
	if strings.EqualFold(metric, "euclid") {
		return -1
	}
	return 0.7
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates required fields.
// If a .env file exists in the current directory or a parent, it will be loaded automatically.
// Environment variables already set take precedence over .env file values.
// When RETRIEVAL_CONFIG names a YAML file, its values replace the retrieval defaults
// and are in turn overridden by individual environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	wd, err := os.Getwd()
	if err == nil {
		dir := wd
		for i := 0; i < 5; i++ {
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	cfg := &Config{
		APIPort:            getEnv("API_PORT", "9000"),
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "text")),
		DBPath:             getEnv("DB_PATH", "./data/docrag.db"),
		VectorStore:        strings.ToLower(getEnv("VECTOR_STORE", "qdrant")),
		QdrantURL:          getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantAPIKey:       getEnv("QDRANT_API_KEY", ""),
		Collection:         getEnv("COLLECTION_NAME", "documents"),
		EmbeddingBackend:   strings.ToLower(getEnv("EMBEDDING_BACKEND", "remote")),
		EmbeddingBaseURL:   getEnv("EMBEDDING_BASE_URL", "http://localhost:11434"),
		EmbeddingModelName: getEnv("EMBEDDING_MODEL_NAME", "nomic-embed-text"),
		EmbeddingAPIKey:    getEnv("EMBEDDING_API_KEY", ""),
		EmbeddingAPIStyle:  strings.ToLower(getEnv("EMBEDDING_API_STYLE", "ollama")),
		LocalModelPath:     getEnv("LOCAL_MODEL_PATH", ""),
	}

	if cfg.LogLevel, err = parseLevel(getEnv("LOG_LEVEL", "info")); err != nil {
		return nil, err
	}

	cfg.Retrieval = DefaultRetrieval()
	thresholdSet := getEnv("SCORE_THRESHOLD", "") != ""
	if path := getEnv("RETRIEVAL_CONFIG", ""); path != "" {
		fileSet, err := loadRetrievalFile(path, &cfg.Retrieval)
		if err != nil {
			return nil, err
		}
		thresholdSet = thresholdSet || fileSet
	}
	if err := applyRetrievalEnv(&cfg.Retrieval); err != nil {
		return nil, err
	}
	if !thresholdSet {
		cfg.Retrieval.ScoreThreshold = DefaultScoreThreshold(cfg.Retrieval.DistanceMetric)
	}

	if cfg.EmbeddingRateLimit, err = getFloat("EMBEDDING_RATE_LIMIT", 0); err != nil {
		return nil, err
	}
	if cfg.EmbedTimeout, err = getDuration("EMBED_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.StoreTimeout, err = getDuration("STORE_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.IngestDegraded, err = getBool("INGEST_DEGRADED", false); err != nil {
		return nil, err
	}
	maxUpload, err := getInt("MAX_UPLOAD_BYTES", 32<<20)
	if err != nil {
		return nil, err
	}
	cfg.MaxUploadBytes = int64(maxUpload)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dataDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

// Validate checks cross-field constraints. Load calls it; tests and the CLI may call it
// after adjusting fields by hand.
func (c *Config) Validate() error {
	r := c.Retrieval
	if r.VectorDimension <= 0 {
		return fmt.Errorf("VECTOR_DIMENSION is required and must be greater than 0")
	}
	switch r.ChunkStrategy {
	case "paragraph", "window":
	default:
		return fmt.Errorf("CHUNK_STRATEGY must be paragraph or window, got %q", r.ChunkStrategy)
	}
	if r.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be greater than 0")
	}
	if r.ChunkOverlap < 0 || r.ChunkOverlap >= r.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", r.ChunkOverlap)
	}
	if r.MinChunkLength < 0 {
		return fmt.Errorf("MIN_CHUNK_LENGTH must not be negative")
	}
	switch strings.ToLower(r.DistanceMetric) {
	case "cosine", "euclid", "dot":
	default:
		return fmt.Errorf("DISTANCE_METRIC must be Cosine, Euclid or Dot, got %q", r.DistanceMetric)
	}
	if strings.EqualFold(r.DistanceMetric, "euclid") && r.ScoreThreshold > 0 {
		return fmt.Errorf("SCORE_THRESHOLD must not be positive for Euclid, scores are negated distances; got %v", r.ScoreThreshold)
	}
	if r.SearchLimit <= 0 {
		return fmt.Errorf("SEARCH_LIMIT must be greater than 0")
	}
	switch c.VectorStore {
	case "qdrant", "memory":
	default:
		return fmt.Errorf("VECTOR_STORE must be qdrant or memory, got %q", c.VectorStore)
	}
	switch c.EmbeddingBackend {
	case "remote", "local":
	default:
		return fmt.Errorf("EMBEDDING_BACKEND must be remote or local, got %q", c.EmbeddingBackend)
	}
	switch c.EmbeddingAPIStyle {
	case "openai", "ollama":
	default:
		return fmt.Errorf("EMBEDDING_API_STYLE must be openai or ollama, got %q", c.EmbeddingAPIStyle)
	}
	if c.Collection == "" {
		return fmt.Errorf("COLLECTION_NAME must not be empty")
	}
	return nil
}

// loadRetrievalFile overlays the YAML file onto r and reports whether it set
// score_threshold.
func loadRetrievalFile(path string, r *RetrievalConfig) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, fmt.Errorf("RETRIEVAL_CONFIG file %s does not exist", path)
		}
		return false, fmt.Errorf("failed to read retrieval config: %w", err)
	}
	if err := yaml.Unmarshal(data, r); err != nil {
		return false, fmt.Errorf("failed to parse retrieval config %s: %w", path, err)
	}

	var present struct {
		ScoreThreshold *float32 `yaml:"score_threshold"`
	}
	if err := yaml.Unmarshal(data, &present); err != nil {
		return false, fmt.Errorf("failed to parse retrieval config %s: %w", path, err)
	}
	return present.ScoreThreshold != nil, nil
}

func applyRetrievalEnv(r *RetrievalConfig) error {
	var err error
	r.ChunkStrategy = strings.ToLower(getEnv("CHUNK_STRATEGY", r.ChunkStrategy))
	r.DistanceMetric = getEnv("DISTANCE_METRIC", r.DistanceMetric)
	if r.ChunkSize, err = getInt("CHUNK_SIZE", r.ChunkSize); err != nil {
		return err
	}
	if r.ChunkOverlap, err = getInt("CHUNK_OVERLAP", r.ChunkOverlap); err != nil {
		return err
	}
	if r.MinChunkLength, err = getInt("MIN_CHUNK_LENGTH", r.MinChunkLength); err != nil {
		return err
	}
	if r.VectorDimension, err = getInt("VECTOR_DIMENSION", r.VectorDimension); err != nil {
		return err
	}
	if r.SearchLimit, err = getInt("SEARCH_LIMIT", r.SearchLimit); err != nil {
		return err
	}
	threshold, err := getFloat("SCORE_THRESHOLD", float64(r.ScoreThreshold))
	if err != nil {
		return err
	}
	r.ScoreThreshold = float32(threshold)
	return nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return v, nil
}

func getFloat(key string, defaultValue float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid number: %w", key, err)
	}
	return v, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 10s: %w", key, err)
	}
	return v, nil
}

func parseLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL must be debug, info, warn or error: %w", err)
	}
	return level, nil
}
