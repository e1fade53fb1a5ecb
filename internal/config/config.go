// Package config loads the service configuration: a YAML file read at
// startup, then overridden field-by-field from environment variables.
// Unrecognized YAML keys are ignored.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the full recognized configuration surface.
type Config struct {
	StorePath          string `yaml:"storePath"`
	VectorBackend       string `yaml:"vectorBackend"` // "persistent" | "memory"
	VectorPath          string `yaml:"vectorPath"`
	CompletionEndpoint   string `yaml:"completionEndpoint"`
	VisionModel          string `yaml:"visionModel"`
	TextModel            string `yaml:"textModel"`
	EmbeddingDim         int    `yaml:"embeddingDim"`
	Currency             string `yaml:"currency"`
	ListenHost           string `yaml:"listenHost"`
	ListenPort           int    `yaml:"listenPort"`

	// AIProvider selects the completion.Provider implementation: "openai"
	// (OpenAI-compatible local server, the default) or "gemini".
	AIProvider string `yaml:"aiProvider"`

	// OpenAIAPIKey/GeminiAPIKey authenticate the selected provider; left
	// empty for local OpenAI-compatible servers (e.g. Ollama) that don't
	// check the key. Never read from the YAML file, only the environment.
	OpenAIAPIKey string `yaml:"-"`
	GeminiAPIKey string `yaml:"-"`

	// MaxInFlightCompletions caps concurrent calls into the completion
	// service (default 4).
	MaxInFlightCompletions int `yaml:"maxInFlightCompletions"`

	// MinIO object storage for receipt images; optional, falls back to
	// local disk under ./data/images when Endpoint is empty.
	MinIOEndpoint  string `yaml:"minioEndpoint"`
	MinIOAccessKey string `yaml:"minioAccessKey"`
	MinIOSecretKey string `yaml:"minioSecretKey"`
	MinIOBucket    string `yaml:"minioBucket"`
	MinIOUseSSL    bool   `yaml:"minioUseSSL"`
}

// Default returns the configuration defaults used when a key is absent from
// both the YAML file and the environment.
func Default() Config {
	return Config{
		StorePath:              "./data/receipts.db",
		VectorBackend:          "memory",
		VectorPath:             "./data/vectors",
		CompletionEndpoint:     "http://localhost:11434/v1",
		VisionModel:            "llava",
		TextModel:              "llama3",
		EmbeddingDim:           384,
		Currency:               "EUR",
		ListenHost:             "0.0.0.0",
		ListenPort:             8080,
		AIProvider:             "openai",
		MaxInFlightCompletions: 4,
		MinIOBucket:            "receipts",
	}
}

// Load reads path (if it exists) over the defaults, then applies
// environment-variable overrides on top.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("STORE_PATH"); v != "" {
		cfg.StorePath = v
	}
	if v := os.Getenv("VECTOR_BACKEND"); v != "" {
		cfg.VectorBackend = v
	}
	if v := os.Getenv("VECTOR_PATH"); v != "" {
		cfg.VectorPath = v
	}
	if v := os.Getenv("COMPLETION_ENDPOINT"); v != "" {
		cfg.CompletionEndpoint = v
	}
	if v := os.Getenv("VISION_MODEL"); v != "" {
		cfg.VisionModel = v
	}
	if v := os.Getenv("TEXT_MODEL"); v != "" {
		cfg.TextModel = v
	}
	if v := os.Getenv("CURRENCY"); v != "" {
		cfg.Currency = v
	}
	if v := os.Getenv("LISTEN_HOST"); v != "" {
		cfg.ListenHost = v
	}
	if v := os.Getenv("LISTEN_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.ListenPort = p
		}
	}
	if v := os.Getenv("AI_PROVIDER"); v != "" {
		cfg.AIProvider = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAIAPIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.GeminiAPIKey = v
	}
	if v := os.Getenv("MAX_IN_FLIGHT_COMPLETIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxInFlightCompletions = n
		}
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinIOEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIOAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinIOSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinIOBucket = v
	}
}
