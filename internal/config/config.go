package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config represents the application configuration structure. It contains
// settings for the environment, HTTP server, database connection, pipeline
// inputs and background worker behavior. Pipeline settings are explicit
// configuration handed to each stage at construction; there is no
// process-global mutable state, so concurrent runs with different
// configurations cannot interfere.
type Config struct {
	// Environment specifies the current running environment (development, production, etc.)
	Environment string `env:"ENVIRONMENT" env-default:"development" yaml:"environment"`

	// HTTP contains all HTTP server related configurations
	HTTP struct {
		// Addr is the address and port the HTTP server will listen on
		Addr string `env:"HTTP_ADDR" env-default:":8080" yaml:"addr"`
		// ReadTimeout is the maximum duration for reading the entire request, including the body
		ReadTimeout time.Duration `env:"HTTP_READ_TIMEOUT" env-default:"1m" yaml:"readTimeout"`
		// ReadHeaderTimeout is the amount of time allowed to read request headers
		ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" env-default:"10s" yaml:"readHeaderTimeout"`
		// WriteTimeout is the maximum duration before timing out writes of the response
		WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" env-default:"2m" yaml:"writeTimeout"`
		// IdleTimeout is the maximum amount of time to wait for the next request when keep-alives are enabled
		IdleTimeout time.Duration `env:"HTTP_IDLE_TIMEOUT" env-default:"2m" yaml:"idleTimeout"`
		// RequestTimeout is the maximum time allowed for processing a single request
		RequestTimeout time.Duration `env:"HTTP_REQUEST_TIMEOUT" env-default:"10s" yaml:"requestTimeout"`
		// MaxHeaderBytes controls the maximum number of bytes the server will read parsing the request header
		MaxHeaderBytes int `env:"HTTP_MAX_HEADER_BYTES" env-default:"0" yaml:"maxHeaderBytes"`
		// MetricsPath defines the URL path where metrics are exposed
		MetricsPath string `env:"HTTP_METRICS_PATH" env-default:"/metrics" yaml:"metricsPath"`
	} `yaml:"http"`

	// Database contains all database connection related configurations
	Database struct {
		// Username for database authentication
		Username string `env:"DATABASE_USERNAME" env-default:"myuser" yaml:"username"`
		// Password for database authentication
		Password string `env:"DATABASE_PASSWORD" env-default:"mypassword" yaml:"password"`
		// Host is the database server hostname or IP address
		Host string `env:"DATABASE_HOST" env-default:"localhost" yaml:"host"`
		// Port is the database server port number
		Port int `env:"DATABASE_PORT" env-default:"5432" yaml:"port"`
		// SslMode defines the SSL mode for the database connection
		SslMode string `env:"DATABASE_SSL_MODE" env-default:"disable" yaml:"sslMode"`
		// DatabaseName is the name of the database to connect to
		DatabaseName string `env:"DATABASE_NAME" env-default:"popgrid" yaml:"name"`
		// MaxOpenConnections limits the number of open connections to the database
		MaxOpenConnections int `env:"DATABASE_MAX_OPEN_CONNECTIONS" env-default:"10" yaml:"maxOpenConnections"`
		// MaxIdleConnections limits the number of connections in the idle connection pool
		MaxIdleConnections int `env:"DATABASE_MAX_IDLE_CONNECTIONS" env-default:"8" yaml:"maxIdleConnections"`
		// ConnMaxLifetime is the maximum amount of time a connection may be reused
		ConnMaxLifetime time.Duration `env:"DATABASE_CONNECTION_MAX_LIFETIME" env-default:"3m" yaml:"connMaxLifetime"`
		// ConnMaxIdleTime is the maximum amount of time a connection may be idle
		ConnMaxIdleTime time.Duration `env:"DATABASE_CONNECTION_MAX_IDLE_TIME" env-default:"3m" yaml:"connMaxIdleTime"`
	} `yaml:"database"`

	// Pipeline contains the inputs and behavior of the aggregation pipeline.
	Pipeline struct {
		// Countries is the default set of ISO3 country codes to process.
		Countries []string `env:"PIPELINE_COUNTRIES" env-default:"KEN,UGA" yaml:"countries"`
		// AgeGroups is the full set of WorldPop age-group labels.
		AgeGroups []string `env:"PIPELINE_AGE_GROUPS" env-default:"0_4,5_9,10_14,15_19,20_24,25_29,30_34,35_39,40_44,45_49,50_54,55_59,60_64,65_69,70_74,75_79,80_plus" yaml:"ageGroups"` //nolint: lll
		// Sexes is the set of sex labels to process.
		Sexes []string `env:"PIPELINE_SEXES" env-default:"M,F" yaml:"sexes"`

		// ChildAgeGroups, WorkingAgeGroups and ElderlyAgeGroups define the age
		// bins used by the indicator calculator.
		ChildAgeGroups   []string `env:"PIPELINE_CHILD_AGE_GROUPS" env-default:"0_4,5_9,10_14" yaml:"childAgeGroups"`
		WorkingAgeGroups []string `env:"PIPELINE_WORKING_AGE_GROUPS" env-default:"15_19,20_24,25_29,30_34,35_39,40_44,45_49,50_54,55_59,60_64" yaml:"workingAgeGroups"` //nolint: lll
		ElderlyAgeGroups []string `env:"PIPELINE_ELDERLY_AGE_GROUPS" env-default:"65_69,70_74,75_79,80_plus" yaml:"elderlyAgeGroups"`

		// WorldPopBaseURL is the base URL of the WorldPop age/sex raster tree.
		WorldPopBaseURL string `env:"PIPELINE_WORLDPOP_BASE_URL" env-default:"https://data.worldpop.org/GIS/AgeSex_structures/Global_2015_2030_2025/1km_ua/constrained" yaml:"worldPopBaseURL"` //nolint: lll
		// DownloadTimeout bounds a single raster download.
		DownloadTimeout time.Duration `env:"PIPELINE_DOWNLOAD_TIMEOUT" env-default:"5m" yaml:"downloadTimeout"`

		// BoundaryDir is the directory holding GADM boundary GeoJSON files.
		BoundaryDir string `env:"PIPELINE_BOUNDARY_DIR" env-default:"assets/gadm" yaml:"boundaryDir"`
		// OutputDir is where summary and metadata files are written.
		OutputDir string `env:"PIPELINE_OUTPUT_DIR" env-default:"outputs" yaml:"outputDir"`

		// CacheDir is the directory of the raster download cache.
		CacheDir string `env:"PIPELINE_CACHE_DIR" env-default:"cache" yaml:"cacheDir"`
		// CacheTTL is how long a cached raster stays valid. Zero disables expiry.
		CacheTTL time.Duration `env:"PIPELINE_CACHE_TTL" env-default:"24h" yaml:"cacheTTL"`

		// Parallelism is the number of units aggregated concurrently.
		Parallelism int `env:"PIPELINE_PARALLELISM" env-default:"4" yaml:"parallelism"`

		// ResultCacheTTL is the duration during which a completed run makes new
		// run requests with the same parameters reuse that result instead of
		// enqueueing a duplicate job.
		ResultCacheTTL time.Duration `env:"PIPELINE_RESULT_CACHE_TTL" env-default:"24h" yaml:"resultCacheTTL"`
		// MaxAttempts is the maximum number of attempts the background worker
		// should make when processing a run job before marking it failed.
		MaxAttempts int `env:"PIPELINE_MAX_ATTEMPTS" env-default:"3" yaml:"maxAttempts"`
	} `yaml:"pipeline"`

	// Worker contains background worker configurations.
	Worker struct {
		// MaxWorkers limits how many run jobs execute concurrently.
		MaxWorkers int `env:"WORKER_MAX_WORKERS" env-default:"2" yaml:"maxWorkers"`
	} `yaml:"worker"`

	// JWT contains the RS256 key material for API authentication.
	JWT struct {
		// PrivateKey is the PEM-encoded RSA private key used to sign tokens.
		PrivateKey string `env:"JWT_PRIVATE_KEY" yaml:"privateKey"`
		// PublicKey is the PEM-encoded RSA public key used to verify tokens.
		PublicKey string `env:"JWT_PUBLIC_KEY" yaml:"publicKey"`
	} `yaml:"jwt"`

	// GracefulShutdownTimeout is the maximum duration to wait for ongoing requests to complete during shutdown
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_TIMEOUT" env-default:"10s" yaml:"gracefulShutdownTimeout"` //nolint: lll
}

// Load receives the path for yaml config file and returns a filled Config struct.
// A .env file in the working directory, if present, is loaded into the
// environment first so its values take part in env overrides.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	err := cleanenv.ReadConfig(configPath, &cfg)
	if err != nil {
		return nil, fmt.Errorf("could not read config: %w", err)
	}

	return &cfg, nil
}
