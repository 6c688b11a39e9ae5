package main

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Roles a single process can serve.
const (
	BooksRole = "books"
	LoansRole = "loans"
)

// Supported storage drivers.
const (
	MemoryDriver = "memory"
	BoltDriver   = "bolt"
	RedisDriver  = "redis"
)

// Config defines the structure of the configuration file.
type Config struct {
	GitCommit               string           `yaml:"git_commit" envconfig:"GIT_COMMIT"`
	GitTag                  string           `yaml:"git_tag" envconfig:"GIT_TAG"`
	BuildTime               string           `yaml:"build_time" envconfig:"BUILD_TIME"`
	IsProduction            bool             `yaml:"is_production" envconfig:"IS_PRODUCTION"`
	LogLevel                zapcore.Level    `yaml:"log_level" envconfig:"LOG_LEVEL"`
	LogFolder               string           `yaml:"log_folder" envconfig:"LOG_FOLDER"`
	LogMaxSize              int              `yaml:"log_max_size" envconfig:"LOG_MAX_SIZE"` // in megabytes
	OpsEndpointsEnable      bool             `yaml:"ops_endpoints_enable" envconfig:"OPS_ENDPOINTS_ENABLE"`
	ProfilerEndpointsEnable bool             `yaml:"profiler_endpoints_enable" envconfig:"PROFILER_ENDPOINTS_ENABLE"`
	Services                []string         `yaml:"services" envconfig:"SERVICES"`
	Server                  ServerConfig     `yaml:"server" envconfig:"SERVER"`
	Storage                 StorageConfig    `yaml:"storage" envconfig:"STORAGE"`
	Redis                   RedisConfig      `yaml:"redis" envconfig:"REDIS"`
	BoltDB                  BoltDBConfig     `yaml:"boltdb" envconfig:"BOLTDB"`
	Journal                 JournalConfig    `yaml:"journal" envconfig:"JOURNAL"`
	Catalog                 CatalogConfig    `yaml:"catalog" envconfig:"CATALOG"`
	Enrichment              EnrichmentConfig `yaml:"enrichment" envconfig:"ENRICHMENT"`
}

type ServerConfig struct {
	Host                    string        `yaml:"host" envconfig:"HOST"`
	Port                    string        `yaml:"port" envconfig:"PORT"`
	ReadTimeout             time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout            time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	LongRequestWriteTimeout time.Duration `yaml:"long_request_write_timeout" envconfig:"LONG_REQUEST_WRITE_TIMEOUT"`
	RequestTimeout          time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"` // Time to wait for a request to finish
	ShutdownTimeout         time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

// StorageConfig selects the backend holding books, ratings and loans.
type StorageConfig struct {
	Driver    string `yaml:"driver" envconfig:"DRIVER"`
	Namespace string `yaml:"namespace" envconfig:"NAMESPACE"` // prefix of redis keys
}

type RedisConfig struct {
	Host          string        `yaml:"host" envconfig:"HOST"`
	Port          string        `yaml:"port" envconfig:"PORT"`
	DialTimeout   time.Duration `yaml:"dial_timeout" envconfig:"DIAL_TIMEOUT"`
	ReadTimeout   time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout  time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	PoolSize      int           `yaml:"pool_size" envconfig:"POOL_SIZE"`
	PoolTimeout   time.Duration `yaml:"pool_timeout" envconfig:"POOL_TIMEOUT"`
	Username      string        `yaml:"username" envconfig:"USERNAME"`
	Password      string        `yaml:"password" envconfig:"PASSWORD"`
	DatabaseIndex int           `yaml:"db_index" envconfig:"DATABASE_INDEX"`
	TxMaxRetries  uint64        `yaml:"tx_max_retries" envconfig:"TX_MAX_RETRIES"`
}

type BoltDBConfig struct {
	FilePath string        `yaml:"filepath" envconfig:"FILE_PATH"`
	Timeout  time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
}

// JournalConfig controls the change events journal.
type JournalConfig struct {
	Enable   bool          `yaml:"enable" envconfig:"ENABLE"`
	FilePath string        `yaml:"filepath" envconfig:"FILE_PATH"`
	Timeout  time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
}

// CatalogConfig tells the loans role where the books role is reachable.
type CatalogConfig struct {
	URL     string        `yaml:"url" envconfig:"URL"`
	Timeout time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
}

type EnrichmentConfig struct {
	GoogleBooksURL    string        `yaml:"google_books_url" envconfig:"GOOGLE_BOOKS_URL"`
	OpenLibraryURL    string        `yaml:"open_library_url" envconfig:"OPEN_LIBRARY_URL"`
	GeminiURL         string        `yaml:"gemini_url" envconfig:"GEMINI_URL"`
	GeminiModel       string        `yaml:"gemini_model" envconfig:"GEMINI_MODEL"`
	GeminiAPIKey      string        `yaml:"-" json:"-" envconfig:"GEMINI_API_KEY"`
	Timeout           time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	RequestsPerSecond int           `yaml:"requests_per_second" envconfig:"REQUESTS_PER_SECOND"`
	CacheFile         string        `yaml:"cache_file" envconfig:"CACHE_FILE"`
	CacheTTL          time.Duration `yaml:"cache_ttl" envconfig:"CACHE_TTL"`
}

// LoadConfigFile provides an instance of config structure for the all application.
func LoadConfigFile(configFile string) (*Config, error) {
	file, err := os.Open(configFile)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	cfg := &Config{}
	yd := yaml.NewDecoder(file)
	err = yd.Decode(cfg)

	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigEnvs reads the environments variables and provides an instance of the App config.
func LoadConfigEnvs(prefix string, config *Config) error {
	return envconfig.Process(prefix, config)
}

// HasRole tells whether the process is configured to serve the given role.
func (c *Config) HasRole(role string) bool {
	for _, s := range c.Services {
		if strings.EqualFold(strings.TrimSpace(s), role) {
			return true
		}
	}
	return false
}

// InitConfig setup defaults values for non provided parameters
// and configures build tags values to be used if provided.
func InitConfig(config *Config, gitCommit, gitTag, buildTime string) error {
	if len(gitCommit) != 0 {
		config.GitCommit = gitCommit
	}

	if len(gitTag) != 0 {
		config.GitTag = gitTag
	}

	if len(buildTime) != 0 {
		config.BuildTime = buildTime
	}

	if len(config.Server.Host) == 0 || len(config.Server.Port) == 0 {
		return errors.New("make sure to set valid server address and port in configuration file")
	}

	if len(config.Services) == 0 {
		config.Services = []string{BooksRole, LoansRole}
	}
	for _, s := range config.Services {
		if s != BooksRole && s != LoansRole {
			return fmt.Errorf("unknown service %q: expected %q or %q", s, BooksRole, LoansRole)
		}
	}

	if config.LogFolder == "" {
		config.LogFolder = "./logs"
	}
	if config.LogMaxSize <= 0 {
		config.LogMaxSize = 100
	}
	if config.Server.RequestTimeout == 0 {
		config.Server.RequestTimeout = 30 * time.Second
	}
	if config.Server.LongRequestWriteTimeout == 0 {
		config.Server.LongRequestWriteTimeout = config.Server.WriteTimeout
	}
	if config.Server.ShutdownTimeout == 0 {
		config.Server.ShutdownTimeout = 10 * time.Second
	}

	if config.Storage.Namespace == "" {
		config.Storage.Namespace = "bookclub"
	}
	switch config.Storage.Driver {
	case "":
		config.Storage.Driver = MemoryDriver
	case MemoryDriver:
	case RedisDriver:
		if len(config.Redis.Host) == 0 || len(config.Redis.Port) == 0 {
			return errors.New("make sure to set valid redis address and port in configuration file")
		}
	case BoltDriver:
		if len(config.BoltDB.FilePath) == 0 {
			return errors.New("make sure to set a valid boltdb file path in configuration file")
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", config.Storage.Driver)
	}
	if config.Redis.TxMaxRetries == 0 {
		config.Redis.TxMaxRetries = 10
	}

	if config.Journal.Enable {
		if len(config.Journal.FilePath) == 0 {
			return errors.New("make sure to set a valid journal file path in configuration file")
		}
		// bolt holds an exclusive lock on its file.
		if config.Storage.Driver == BoltDriver && config.Journal.FilePath == config.BoltDB.FilePath {
			return errors.New("journal and boltdb storage must use distinct files")
		}
		if config.Journal.Timeout == 0 {
			config.Journal.Timeout = time.Second
		}
	}

	if config.HasRole(LoansRole) {
		if config.Catalog.URL == "" && config.HasRole(BooksRole) {
			config.Catalog.URL = "http://" + config.Server.Host + ":" + config.Server.Port
		}
		if _, err := url.ParseRequestURI(config.Catalog.URL); err != nil {
			return fmt.Errorf("make sure to set a valid books service url for the loans service: %w", err)
		}
		if config.Catalog.Timeout == 0 {
			config.Catalog.Timeout = 5 * time.Second
		}
	}

	setEnrichmentDefaults(&config.Enrichment)
	return nil
}

func setEnrichmentDefaults(ec *EnrichmentConfig) {
	if ec.GoogleBooksURL == "" {
		ec.GoogleBooksURL = "https://www.googleapis.com/books/v1/volumes"
	}
	if ec.OpenLibraryURL == "" {
		ec.OpenLibraryURL = "https://openlibrary.org/search.json"
	}
	if ec.GeminiURL == "" {
		ec.GeminiURL = "https://generativelanguage.googleapis.com/v1beta/models"
	}
	if ec.GeminiModel == "" {
		ec.GeminiModel = "gemini-pro"
	}
	if ec.Timeout == 0 {
		ec.Timeout = 10 * time.Second
	}
	if ec.RequestsPerSecond <= 0 {
		ec.RequestsPerSecond = 5
	}
	if ec.CacheTTL == 0 {
		ec.CacheTTL = 720 * time.Hour
	}
}

// LoadAndInitConfigs loads in order the configs from various predefined sources
// then build the App configuration data.
func LoadAndInitConfigs(gitCommit, gitTag, buildTime string) (*Config, error) {
	// Setup the yaml configuration from file.
	config, err := LoadConfigFile("./config.yml")
	if err != nil {
		return config, fmt.Errorf("failed to load configurations from file: %s", err)
	}

	// Set the environment configuration. The file is optional.
	err = godotenv.Load("./config.env")
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return config, fmt.Errorf("failed to set environment configurations: %s", err)
	}

	// Use environment variables with prefix `BKC`.
	err = LoadConfigEnvs("BKC", config)
	if err != nil {
		return config, fmt.Errorf("failed to load configurations from environment: %s", err)
	}

	err = InitConfig(config, gitCommit, gitTag, buildTime)
	if err != nil {
		return config, fmt.Errorf("failed to initialize configurations: %s", err)
	}
	return config, nil
}
