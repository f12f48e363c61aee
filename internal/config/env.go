package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// SchemaEmbedDim is the width of the document_chunks.embedding column created
// by the database bootstrap script. EMBED_DIM has to equal it.
const SchemaEmbedDim = 768

type Config struct {
	DatabaseURL    string
	DBMaxOpenConns int

	AwsAccessKey          string
	AwsSecretKey          string
	AwsRegion             string
	BucketName            string
	S3Endpoint            string
	DeleteStagedDocuments bool

	AIAPIKey   string
	EmbedModel string
	EmbedDim   int
	GenModel   string

	PIIEnabled       bool
	PIICategories    []string
	PIIMinConfidence float64

	SupportedImageFileTypes []string

	MaxSectionLength    int
	SentenceSearchLimit int
	SectionOverlap      int

	IngestWorkers   int
	EmbedBatchSize  int
	BlobEventsTopic string

	Port           string
	CORSOrigins    []string
	JWTSecret      string
	MaxUploadBytes int64

	LogLevel slog.Level
}

// LoadConfig loads the environment variables and return config
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		DBMaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 20),

		AwsAccessKey:          getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey:          getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:             getEnv("AWS_REGION", "us-east-2"),
		BucketName:            getEnv("BUCKET_NAME", "contexta-docs"),
		S3Endpoint:            getEnv("S3_ENDPOINT", ""),
		DeleteStagedDocuments: getEnvBool("DELETE_STAGED_DOCUMENTS", true),

		AIAPIKey:   getEnv("GEMINI_API_KEY", ""),
		EmbedModel: getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:   getEnvInt("EMBED_DIM", SchemaEmbedDim),
		GenModel:   getEnv("GEN_MODEL", "gemini-1.5-flash"),

		PIIEnabled:       getEnvBool("PII_ENABLED", true),
		PIICategories:    getEnvList("PII_CATEGORIES", nil),
		PIIMinConfidence: getEnvFloat("PII_MIN_CONFIDENCE", 0.8),

		SupportedImageFileTypes: getEnvList("SUPPORTED_IMAGE_FILE_TYPES", []string{"png", "jpg", "jpeg"}),

		MaxSectionLength:    getEnvInt("MAX_SECTION_LENGTH", 1000),
		SentenceSearchLimit: getEnvInt("SENTENCE_SEARCH_LIMIT", 100),
		SectionOverlap:      getEnvInt("SECTION_OVERLAP", 100),

		IngestWorkers:   getEnvInt("INGEST_WORKERS", 4),
		EmbedBatchSize:  getEnvInt("EMBED_BATCH_SIZE", 16),
		BlobEventsTopic: getEnv("BLOB_EVENTS_TOPIC", "blob.created"),

		Port:        getEnv("PORT", "8080"),
		CORSOrigins: getEnvList("CORS_ORIGINS", []string{"http://localhost:5173"}),
		JWTSecret:   getEnv("JWT_SECRET", ""),

		MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_MB", 50)) << 20,

		LogLevel: parseLevel(getEnv("LOG_LEVEL", "info")),
	}

	return cfg
}

// Validate reports every missing or inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL not set"))
	}
	if c.BucketName == "" {
		errs = append(errs, errors.New("BUCKET_NAME not set"))
	}
	if c.AIAPIKey == "" {
		errs = append(errs, errors.New("GEMINI_API_KEY not set"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET not set"))
	}
	if c.EmbedDim != SchemaEmbedDim {
		errs = append(errs, fmt.Errorf("EMBED_DIM must be %d to match the embedding column, got %d", SchemaEmbedDim, c.EmbedDim))
	}
	if c.PIIMinConfidence < 0 || c.PIIMinConfidence > 1 {
		errs = append(errs, fmt.Errorf("PII_MIN_CONFIDENCE must be within [0,1], got %v", c.PIIMinConfidence))
	}
	if c.MaxSectionLength <= 2*c.SectionOverlap || c.SectionOverlap < 0 {
		errs = append(errs, fmt.Errorf("MAX_SECTION_LENGTH (%d) must exceed twice SECTION_OVERLAP (%d)",
			c.MaxSectionLength, c.SectionOverlap))
	}
	if c.SentenceSearchLimit < 0 {
		errs = append(errs, fmt.Errorf("SENTENCE_SEARCH_LIMIT must not be negative, got %d", c.SentenceSearchLimit))
	}
	if c.IngestWorkers <= 0 {
		errs = append(errs, fmt.Errorf("INGEST_WORKERS must be positive, got %d", c.IngestWorkers))
	}
	if c.EmbedBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("EMBED_BATCH_SIZE must be positive, got %d", c.EmbedBatchSize))
	}
	return errors.Join(errs...)
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config value is not an int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("config value is not a number, using default", "key", key, "value", v, "default", def)
		return def
	}
	return f
}

func getEnvBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("config value is not a bool, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}

// getEnvList reads a comma separated list, dropping blank entries.
func getEnvList(key string, def []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
