package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	SecretBackendGCP   = "gcp"
	SecretBackendLocal = "local"

	WarehouseBigQuery = "bigquery"
	WarehouseDuckDB   = "duckdb"
)

// Application settings
type Config struct {
	Server    ServerConfig
	Logging   LoggingConfig
	ETL       ETLConfig
	Facebook  FacebookConfig
	Secrets   SecretsConfig
	Warehouse WarehouseConfig
}

// Server settings
type ServerConfig struct {
	Port       string
	RunTimeout time.Duration
}

type ETLConfig struct {
	RequestTimeout       time.Duration
	TokenTimeout         time.Duration
	MaxRetries           int
	RateLimitPerSecond   int
	RefreshThresholdDays int
	DryRun               bool
	CSVDir               string
}

type FacebookConfig struct {
	GraphAPIURL   string
	AccountIDs    []string
	TokenOverride string
}

type SecretsConfig struct {
	Backend          string
	GCPProject       string
	LocalPath        string
	TokenKey         string
	TokenMetadataKey string
	AppIDKey         string
	AppSecretKey     string
}

type WarehouseConfig struct {
	Backend    string
	Table      string
	GCPProject string
	DuckDBPath string
}

// Logging settings
type LoggingConfig struct {
	Level string
}

// fileConfig is the optional YAML overlay named by CONFIG_FILE.
// Environment variables take precedence over it.
type fileConfig struct {
	Accounts   []string `yaml:"accounts"`
	GCPProject string   `yaml:"gcpProject"`
	CSVDir     string   `yaml:"csvDir"`

	Warehouse struct {
		Backend    string `yaml:"backend"`
		Table      string `yaml:"table"`
		DuckDBPath string `yaml:"duckdbPath"`
	} `yaml:"warehouse"`

	Secrets struct {
		Backend   string `yaml:"backend"`
		LocalPath string `yaml:"localPath"`
	} `yaml:"secrets"`
}

func Load() (*Config, error) {
	var file fileConfig
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		loaded, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		file = *loaded
	}

	project := getEnv("GCP_PROJECT", file.GCPProject)

	config := &Config{
		Server: ServerConfig{
			Port:       getEnv("PORT", "8080"),
			RunTimeout: getDurationEnv("RUN_TIMEOUT", "15m"),
		},
		ETL: ETLConfig{
			RequestTimeout:       getDurationEnv("REQUEST_TIMEOUT", "30s"),
			TokenTimeout:         getDurationEnv("TOKEN_TIMEOUT", "10s"),
			MaxRetries:           getIntEnv("MAX_RETRIES", 3),
			RateLimitPerSecond:   getIntEnv("RATE_LIMIT_PER_SECOND", 10),
			RefreshThresholdDays: getIntEnv("REFRESH_THRESHOLD_DAYS", 7),
			DryRun:               getBoolEnv("DRY_RUN", false),
			CSVDir:               getEnv("CSV_DIR", file.CSVDir),
		},
		Facebook: FacebookConfig{
			GraphAPIURL:   strings.TrimRight(getEnv("GRAPH_API_URL", "https://graph.facebook.com/v22.0"), "/"),
			AccountIDs:    getListEnv("ACCOUNT_IDS", file.Accounts),
			TokenOverride: getEnv("FB_TOKEN", ""),
		},
		Secrets: SecretsConfig{
			Backend:          getEnv("SECRET_BACKEND", orDefault(file.Secrets.Backend, SecretBackendGCP)),
			GCPProject:       project,
			LocalPath:        getEnv("SECRET_LOCAL_PATH", orDefault(file.Secrets.LocalPath, ".secrets")),
			TokenKey:         getEnv("TOKEN_SECRET_NAME", "fb-marketing-token"),
			TokenMetadataKey: getEnv("TOKEN_METADATA_SECRET_NAME", "fb-marketing-token-metadata"),
			AppIDKey:         getEnv("FB_APP_ID_SECRET", "fb-app-id"),
			AppSecretKey:     getEnv("FB_APP_SECRET_SECRET", "fb-app-secret"),
		},
		Warehouse: WarehouseConfig{
			Backend:    getEnv("WAREHOUSE_BACKEND", orDefault(file.Warehouse.Backend, WarehouseBigQuery)),
			Table:      getEnv("BQ_TABLE", file.Warehouse.Table),
			GCPProject: project,
			DuckDBPath: getEnv("DUCKDB_PATH", orDefault(file.Warehouse.DuckDBPath, "ads.duckdb")),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	return config, nil
}

// Validate rejects configurations a run cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Facebook.AccountIDs) == 0 {
		errs = append(errs, errors.New("ACCOUNT_IDS must list at least one ad account"))
	}
	if c.ETL.MaxRetries < 1 {
		errs = append(errs, errors.New("MAX_RETRIES must be at least 1"))
	}

	switch c.Secrets.Backend {
	case SecretBackendGCP:
		if c.Facebook.TokenOverride == "" && c.Secrets.GCPProject == "" {
			errs = append(errs, errors.New("GCP_PROJECT is required for the gcp secret backend"))
		}
	case SecretBackendLocal:
	default:
		errs = append(errs, fmt.Errorf("unknown SECRET_BACKEND %q", c.Secrets.Backend))
	}

	switch c.Warehouse.Backend {
	case WarehouseBigQuery, WarehouseDuckDB:
	default:
		errs = append(errs, fmt.Errorf("unknown WAREHOUSE_BACKEND %q", c.Warehouse.Backend))
	}
	if !c.ETL.DryRun && c.Warehouse.Table == "" {
		errs = append(errs, errors.New("BQ_TABLE is required unless DRY_RUN is set"))
	}

	return errors.Join(errs...)
}

func loadFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &file, nil
}

func orDefault(value, defaultValue string) string {
	if value != "" {
		return value
	}
	return defaultValue
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// comma separated, blanks dropped
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getDurationEnv(key, defaultValue string) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
