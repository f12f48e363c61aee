package config

import (
	"log/slog"
	"strings"
	"testing"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, k := range []string{
		"PII_MIN_CONFIDENCE", "SUPPORTED_IMAGE_FILE_TYPES", "MAX_SECTION_LENGTH",
		"SENTENCE_SEARCH_LIMIT", "SECTION_OVERLAP", "DELETE_STAGED_DOCUMENTS", "LOG_LEVEL", "MAX_UPLOAD_MB",
	} {
		t.Setenv(k, "")
	}

	cfg := LoadConfig()
	if cfg.PIIMinConfidence != 0.8 {
		t.Errorf("PIIMinConfidence: got %v, want 0.8", cfg.PIIMinConfidence)
	}
	if strings.Join(cfg.SupportedImageFileTypes, ",") != "png,jpg,jpeg" {
		t.Errorf("SupportedImageFileTypes: got %v", cfg.SupportedImageFileTypes)
	}
	if cfg.MaxSectionLength != 1000 || cfg.SentenceSearchLimit != 100 || cfg.SectionOverlap != 100 {
		t.Errorf("splitter defaults: got %d/%d/%d", cfg.MaxSectionLength, cfg.SentenceSearchLimit, cfg.SectionOverlap)
	}
	if !cfg.DeleteStagedDocuments {
		t.Errorf("DeleteStagedDocuments should default to true")
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel: got %v", cfg.LogLevel)
	}
	if cfg.MaxUploadBytes != 50<<20 {
		t.Errorf("MaxUploadBytes: got %d", cfg.MaxUploadBytes)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("PII_MIN_CONFIDENCE", "0.5")
	t.Setenv("PII_CATEGORIES", " Email , PhoneNumber,,")
	t.Setenv("DELETE_STAGED_DOCUMENTS", "false")
	t.Setenv("SECTION_OVERLAP", "not-a-number")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := LoadConfig()
	if cfg.PIIMinConfidence != 0.5 {
		t.Errorf("PIIMinConfidence: got %v", cfg.PIIMinConfidence)
	}
	if got := strings.Join(cfg.PIICategories, "|"); got != "Email|PhoneNumber" {
		t.Errorf("PIICategories: got %q", got)
	}
	if cfg.DeleteStagedDocuments {
		t.Errorf("DeleteStagedDocuments should be false")
	}
	if cfg.SectionOverlap != 100 {
		t.Errorf("invalid int should fall back to default, got %d", cfg.SectionOverlap)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel: got %v", cfg.LogLevel)
	}
}

func validConfig() *Config {
	return &Config{
		DatabaseURL:         "postgres://localhost/contexta",
		BucketName:          "docs",
		AIAPIKey:            "key",
		JWTSecret:           "secret",
		EmbedDim:            768,
		PIIMinConfidence:    0.8,
		MaxSectionLength:    1000,
		SentenceSearchLimit: 100,
		SectionOverlap:      100,
		IngestWorkers:       2,
		EmbedBatchSize:      16,
	}
}

func TestValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing database", func(c *Config) { c.DatabaseURL = "" }, "DATABASE_URL"},
		{"missing jwt secret", func(c *Config) { c.JWTSecret = "" }, "JWT_SECRET"},
		{"overlap too large", func(c *Config) { c.SectionOverlap = 500 }, "SECTION_OVERLAP"},
		{"negative search limit", func(c *Config) { c.SentenceSearchLimit = -1 }, "SENTENCE_SEARCH_LIMIT"},
		{"confidence out of range", func(c *Config) { c.PIIMinConfidence = 1.5 }, "PII_MIN_CONFIDENCE"},
		{"no workers", func(c *Config) { c.IngestWorkers = 0 }, "INGEST_WORKERS"},
		{"embedding width differs from schema", func(c *Config) { c.EmbedDim = 1536 }, "EMBED_DIM"},
		{"zero embedding width", func(c *Config) { c.EmbedDim = 0 }, "EMBED_DIM"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %s, got %v", tc.want, err)
			}
		})
	}
}
