// Package config handles loading and parsing of blobgate configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/blobgate/blobgate/internal/objerr"
)

// Config is the top-level configuration for blobgate.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Backend BackendConfig `yaml:"backend"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `yaml:"level"`
	// Format is the log output format: "text" or "json".
	Format string `yaml:"format"`
}

// BackendConfig is a tagged union selecting exactly one backend kind. Kind
// names one of "local", "s3", "gcs", "azure"; only the matching sub-struct
// is consulted.
type BackendConfig struct {
	Kind  string      `yaml:"kind"`
	Local LocalConfig `yaml:"local"`
	S3    S3Config    `yaml:"s3"`
	GCS   GCSConfig   `yaml:"gcs"`
	Azure AzureConfig `yaml:"azure"`
}

// LocalConfig holds local filesystem backend settings.
type LocalConfig struct {
	RootPath       string `yaml:"root_path"`
	PhysicalBucket string `yaml:"physical_bucket"`
}

// S3Config holds AWS S3 backend settings.
type S3Config struct {
	Region         string `yaml:"region"`
	PhysicalBucket string `yaml:"physical_bucket"`
	// Endpoint overrides the default AWS endpoint, for S3-compatible
	// services such as MinIO or LocalStack.
	Endpoint string `yaml:"endpoint"`
	// AccessKey and SecretKey, when both set, are used as static
	// credentials instead of the default AWS credential chain. Typical
	// for MinIO/LocalStack deployments that don't run in an AWS
	// environment with IAM roles or shared config files.
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// GCSConfig holds Google Cloud Storage backend settings.
type GCSConfig struct {
	PhysicalBucket string `yaml:"physical_bucket"`
}

// AzureConfig holds Azure Blob Storage backend settings.
type AzureConfig struct {
	Account        string `yaml:"account"`
	AccessKey      string `yaml:"access_key"`
	PhysicalBucket string `yaml:"physical_bucket"`
}

// Load reads the YAML configuration file named by the CONFIG_PATH
// environment variable (defaulting to "blobgate.yaml"), applies defaults,
// then applies any OBJECT_STORE_-prefixed environment variable overrides.
// A missing config file is not an error: the defaults plus env overrides
// are used as-is.
func Load() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "blobgate.yaml"
	}

	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, objerr.Configuration(fmt.Sprintf("parsing config file %s", path), err)
		}
	case !os.IsNotExist(err):
		return nil, objerr.Configuration(fmt.Sprintf("reading config file %s", path), err)
	}

	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Backend: BackendConfig{
			Kind: "local",
			Local: LocalConfig{
				RootPath:       "./data",
				PhysicalBucket: "blobgate",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

const envPrefix = "OBJECT_STORE_"

// applyEnvOverrides reads OBJECT_STORE_-prefixed environment variables and
// overlays them onto cfg.
func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv(envPrefix + "HOST"); ok {
		cfg.Server.Host = v
	}
	if v, ok := os.LookupEnv(envPrefix + "PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v, ok := os.LookupEnv(envPrefix + "LOG_LEVEL"); ok {
		cfg.Logging.Level = v
	}
	if v, ok := os.LookupEnv(envPrefix + "LOG_FORMAT"); ok {
		cfg.Logging.Format = v
	}
	if v, ok := os.LookupEnv(envPrefix + "BACKEND_KIND"); ok {
		cfg.Backend.Kind = strings.ToLower(v)
	}

	if v, ok := os.LookupEnv(envPrefix + "LOCAL_ROOT_PATH"); ok {
		cfg.Backend.Local.RootPath = v
	}
	if v, ok := os.LookupEnv(envPrefix + "LOCAL_PHYSICAL_BUCKET"); ok {
		cfg.Backend.Local.PhysicalBucket = v
	}

	if v, ok := os.LookupEnv(envPrefix + "S3_REGION"); ok {
		cfg.Backend.S3.Region = v
	}
	if v, ok := os.LookupEnv(envPrefix + "S3_PHYSICAL_BUCKET"); ok {
		cfg.Backend.S3.PhysicalBucket = v
	}
	if v, ok := os.LookupEnv(envPrefix + "S3_ENDPOINT"); ok {
		cfg.Backend.S3.Endpoint = v
	}
	if v, ok := os.LookupEnv(envPrefix + "S3_ACCESS_KEY"); ok {
		cfg.Backend.S3.AccessKey = v
	}
	if v, ok := os.LookupEnv(envPrefix + "S3_SECRET_KEY"); ok {
		cfg.Backend.S3.SecretKey = v
	}

	if v, ok := os.LookupEnv(envPrefix + "GCS_PHYSICAL_BUCKET"); ok {
		cfg.Backend.GCS.PhysicalBucket = v
	}

	if v, ok := os.LookupEnv(envPrefix + "AZURE_ACCOUNT"); ok {
		cfg.Backend.Azure.Account = v
	}
	if v, ok := os.LookupEnv(envPrefix + "AZURE_ACCESS_KEY"); ok {
		cfg.Backend.Azure.AccessKey = v
	}
	if v, ok := os.LookupEnv(envPrefix + "AZURE_PHYSICAL_BUCKET"); ok {
		cfg.Backend.Azure.PhysicalBucket = v
	}
}

func validate(cfg *Config) error {
	switch cfg.Backend.Kind {
	case "local":
		if cfg.Backend.Local.PhysicalBucket == "" {
			return objerr.Configuration("backend.local.physical_bucket is required", nil)
		}
	case "s3":
		if cfg.Backend.S3.Region == "" || cfg.Backend.S3.PhysicalBucket == "" {
			return objerr.Configuration("backend.s3.region and backend.s3.physical_bucket are required", nil)
		}
	case "gcs":
		if cfg.Backend.GCS.PhysicalBucket == "" {
			return objerr.Configuration("backend.gcs.physical_bucket is required", nil)
		}
	case "azure":
		if cfg.Backend.Azure.Account == "" || cfg.Backend.Azure.PhysicalBucket == "" {
			return objerr.Configuration("backend.azure.account and backend.azure.physical_bucket are required", nil)
		}
	default:
		return objerr.Configuration(fmt.Sprintf("unknown backend kind %q", cfg.Backend.Kind), nil)
	}
	return nil
}
