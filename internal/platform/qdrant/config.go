package qdrant

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	URL        string
	Collection string
	VectorDim  int
}

type ConfigErrorCode string

const (
	ConfigErrorMissingURL        ConfigErrorCode = "missing_url"
	ConfigErrorMissingCollection ConfigErrorCode = "missing_collection"
	ConfigErrorInvalidVectorDim  ConfigErrorCode = "invalid_vector_dim"
)

type ConfigError struct {
	Code    ConfigErrorCode
	Message string
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "qdrant config error"
	}
	return fmt.Sprintf("qdrant config error (%s): %s", e.Code, e.Message)
}

// ResolveConfigFromEnv reads QDRANT_URL, QDRANT_COLLECTION and
// QDRANT_VECTOR_DIM. URL defaults to the local single-node endpoint.
func ResolveConfigFromEnv() (Config, error) {
	cfg := Config{
		URL:        strings.TrimSpace(os.Getenv("QDRANT_URL")),
		Collection: strings.TrimSpace(os.Getenv("QDRANT_COLLECTION")),
		VectorDim:  1536,
	}
	if cfg.URL == "" {
		cfg.URL = "http://localhost:6333"
	}
	if cfg.Collection == "" {
		cfg.Collection = "thread_documents"
	}
	if v := strings.TrimSpace(os.Getenv("QDRANT_VECTOR_DIM")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return Config{}, &ConfigError{
				Code:    ConfigErrorInvalidVectorDim,
				Message: fmt.Sprintf("QDRANT_VECTOR_DIM must be a positive integer, got %q", v),
			}
		}
		cfg.VectorDim = parsed
	}
	return cfg, ValidateConfig(cfg)
}

func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.URL) == "" {
		return &ConfigError{Code: ConfigErrorMissingURL, Message: "url is required"}
	}
	if strings.TrimSpace(cfg.Collection) == "" {
		return &ConfigError{Code: ConfigErrorMissingCollection, Message: "collection is required"}
	}
	if cfg.VectorDim <= 0 {
		return &ConfigError{Code: ConfigErrorInvalidVectorDim, Message: "vector dim must be positive"}
	}
	return nil
}
