package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var (
	envOnce sync.Once

	configOnce sync.Once
	appConfig  *Config
	configErr  error
)

// Config is the service configuration. Environment variables win over the
// optional YAML overlay, which wins over defaults.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Ingest IngestConfig `yaml:"ingest"`
	OCR    OCRConfig    `yaml:"ocr"`
	Queue  QueueConfig  `yaml:"queue"`
	Log    LogConfig    `yaml:"log"`
}

type ServerConfig struct {
	Port           string   `yaml:"port"`
	CORSOrigins    []string `yaml:"corsOrigins"`
	MaxRequestSize int64    `yaml:"maxRequestSize"`
}

type IngestConfig struct {
	MaxFileSize       int64         `yaml:"maxFileSize"`
	AllowedExtensions []string      `yaml:"allowedExtensions"`
	ExtractionTimeout time.Duration `yaml:"extractionTimeout"`
	MaxConcurrent     int           `yaml:"maxConcurrent"`
	PageMarkerMode    string        `yaml:"pageMarkerMode"`
}

type OCRConfig struct {
	Engine          string `yaml:"engine"`
	Languages       string `yaml:"languages"`
	TessdataDir     string `yaml:"tessdataDir"`
	TessdataStorage string `yaml:"tessdataStorage"`
	TessdataPrefix  string `yaml:"tessdataPrefix"`
	OllamaEndpoint  string `yaml:"ollamaEndpoint"`
	OllamaModel     string `yaml:"ollamaModel"`
}

type QueueConfig struct {
	RedisAddr   string `yaml:"redisAddr"`
	RedisDB     int    `yaml:"redisDB"`
	Concurrency int    `yaml:"concurrency"`
}

type LogConfig struct {
	Level       string   `yaml:"level"`
	Encoding    string   `yaml:"encoding"`
	OutputPaths []string `yaml:"outputPaths"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8080",
			CORSOrigins:    []string{"*"},
			MaxRequestSize: 64 * 1024 * 1024,
		},
		Ingest: IngestConfig{
			MaxFileSize:       10 * 1024 * 1024,
			ExtractionTimeout: 60 * time.Second,
			MaxConcurrent:     4,
			PageMarkerMode:    "plain",
		},
		OCR: OCRConfig{
			Engine:         "tesseract",
			Languages:      "spa+eng",
			TessdataPrefix: "tessdata/",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "llama3.2-vision",
		},
		Queue: QueueConfig{
			Concurrency: 5,
		},
		Log: LogConfig{
			Level:       "info",
			Encoding:    "json",
			OutputPaths: []string{"stdout"},
		},
	}
}

// GetConfig loads the configuration once per process.
func GetConfig() (*Config, error) {
	configOnce.Do(func() {
		loadDotEnv()
		appConfig, configErr = Load(os.Getenv("INGEST_CONFIG_FILE"))
	})
	return appConfig, configErr
}

// Load builds a Config from defaults, the YAML file at path (if any) and the
// environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.Server.Port = envOr("SERVER_PORT", cfg.Server.Port)
	cfg.Server.CORSOrigins = envList("CORS_ALLOW_ORIGINS", cfg.Server.CORSOrigins)
	cfg.Server.MaxRequestSize = envInt64("MAX_REQUEST_SIZE", cfg.Server.MaxRequestSize)

	cfg.Ingest.MaxFileSize = envInt64("MAX_FILE_SIZE", cfg.Ingest.MaxFileSize)
	cfg.Ingest.AllowedExtensions = envList("ALLOWED_EXTENSIONS", cfg.Ingest.AllowedExtensions)
	cfg.Ingest.ExtractionTimeout = envDuration("EXTRACTION_TIMEOUT", cfg.Ingest.ExtractionTimeout)
	cfg.Ingest.MaxConcurrent = envInt("MAX_CONCURRENT_EXTRACTIONS", cfg.Ingest.MaxConcurrent)
	cfg.Ingest.PageMarkerMode = envOr("PAGE_MARKER_MODE", cfg.Ingest.PageMarkerMode)

	cfg.OCR.Engine = envOr("OCR_ENGINE", cfg.OCR.Engine)
	cfg.OCR.Languages = envOr("OCR_LANGUAGES", cfg.OCR.Languages)
	cfg.OCR.TessdataDir = envOr("TESSDATA_DIR", cfg.OCR.TessdataDir)
	cfg.OCR.TessdataStorage = envOr("TESSDATA_STORAGE", cfg.OCR.TessdataStorage)
	cfg.OCR.TessdataPrefix = envOr("TESSDATA_PREFIX_KEY", cfg.OCR.TessdataPrefix)
	cfg.OCR.OllamaEndpoint = envOr("OLLAMA_ENDPOINT", cfg.OCR.OllamaEndpoint)
	cfg.OCR.OllamaModel = envOr("OLLAMA_MODEL", cfg.OCR.OllamaModel)

	cfg.Queue.RedisAddr = envOr("REDIS_ADDR", cfg.Queue.RedisAddr)
	cfg.Queue.RedisDB = envInt("REDIS_DB", cfg.Queue.RedisDB)
	cfg.Queue.Concurrency = envInt("WORKER_CONCURRENCY", cfg.Queue.Concurrency)

	cfg.Log.Level = envOr("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Encoding = envOr("LOG_ENCODING", cfg.Log.Encoding)
	cfg.Log.OutputPaths = envList("LOG_OUTPUT_PATHS", cfg.Log.OutputPaths)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if c.Ingest.MaxFileSize <= 0 {
		errs = append(errs, fmt.Errorf("MAX_FILE_SIZE must be positive, got %d", c.Ingest.MaxFileSize))
	}
	if c.Ingest.ExtractionTimeout <= 0 {
		errs = append(errs, fmt.Errorf("EXTRACTION_TIMEOUT must be positive, got %s", c.Ingest.ExtractionTimeout))
	}
	if c.Ingest.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("MAX_CONCURRENT_EXTRACTIONS must be at least 1, got %d", c.Ingest.MaxConcurrent))
	}
	switch c.Ingest.PageMarkerMode {
	case "plain", "structured":
	default:
		errs = append(errs, fmt.Errorf("PAGE_MARKER_MODE must be plain or structured, got %q", c.Ingest.PageMarkerMode))
	}
	switch c.OCR.Engine {
	case "tesseract", "textract", "ollama":
	default:
		errs = append(errs, fmt.Errorf("OCR_ENGINE must be tesseract, textract or ollama, got %q", c.OCR.Engine))
	}
	switch c.OCR.TessdataStorage {
	case "", "s3", "minio":
	default:
		errs = append(errs, fmt.Errorf("TESSDATA_STORAGE must be empty, s3 or minio, got %q", c.OCR.TessdataStorage))
	}
	return errors.Join(errs...)
}

// loadDotEnv loads the .env file next to the module root and in the working
// directory. Missing files are not an error.
func loadDotEnv() {
	envOnce.Do(func() {
		_, filename, _, _ := runtime.Caller(0)
		rootDir := filepath.Dir(filepath.Dir(filename))
		for _, path := range []string{filepath.Join(rootDir, ".env"), ".env"} {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
		log.Printf("Warning: no .env file found, falling back to environment variables")
	})
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := envOr(key, ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Printf("Warning: ignoring invalid %s=%q", key, v)
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := envOr(key, ""); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
		log.Printf("Warning: ignoring invalid %s=%q", key, v)
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := envOr(key, ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Printf("Warning: ignoring invalid %s=%q", key, v)
	}
	return fallback
}

// envList splits a comma separated value. An explicitly empty variable does
// not clear the fallback.
func envList(key string, fallback []string) []string {
	v := envOr(key, "")
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
