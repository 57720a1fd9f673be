package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Registry   RegistryConfig
	BoundingBox BoundingBoxConfig
	Resilience ResilienceConfig
	Timeout    TimeoutConfig
	Supervisor SupervisorConfig
	Training   TrainingConfig
}

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Port         string
	Environment  string
	ServiceName  string
	ReadTimeout  int
	WriteTimeout int
	CORSOrigins  string // Comma-separated list of allowed origins
}

// DatabaseConfig holds database configuration for the read-only prediction
// history store. Not on the prediction hot path.
type DatabaseConfig struct {
	Host        string
	Port        string
	User        string
	Password    string
	DBName      string
	SSLMode     string
	MaxConns    int
	MinConns    int
	ServiceName string
	Breaker     CircuitBreakerConfig
}

// RedisConfig holds Redis configuration, used for historical-duration
// caching.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// RegistryConfig configures the on-disk model registry (§6 Configuration surface).
type RegistryConfig struct {
	Root         string
	ExperimentID string
	ModelName    string
}

// BoundingBoxConfig bounds valid pickup/dropoff coordinates (§3 PredictionRequest).
type BoundingBoxConfig struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

// ResilienceConfig groups runtime resilience controls.
type ResilienceConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// CircuitBreakerConfig captures breaker tuning for the predictor invocation.
type CircuitBreakerConfig struct {
	Enabled          bool
	FailureThreshold int
	SuccessThreshold int
	TimeoutSeconds   int
	IntervalSeconds  int
}

const (
	DefaultDatabaseQueryTimeout  = 10
	DefaultRedisOperationTimeout = 5
	DefaultPredictionTimeoutMs   = 2000
	DefaultHealthTimeoutMs       = 1000

	MaxDatabaseQueryTimeout  = 60
	MaxRedisOperationTimeout = 30
	MaxRequestTimeoutMs      = 300000
)

// TimeoutConfig holds timeout configuration for various operations.
type TimeoutConfig struct {
	DatabaseQueryTimeout  int
	RedisOperationTimeout int
	// DefaultRequestTimeout is the fallback, in seconds, for routes with no override.
	DefaultRequestTimeout int
	// RouteOverrides maps "METHOD:/path" to a timeout in seconds.
	RouteOverrides map[string]int
}

func (t TimeoutConfig) DatabaseQueryTimeoutDuration() time.Duration {
	return time.Duration(t.DatabaseQueryTimeout) * time.Second
}

func (t TimeoutConfig) RedisOperationTimeoutDuration() time.Duration {
	return time.Duration(t.RedisOperationTimeout) * time.Second
}

func (t TimeoutConfig) DefaultRequestTimeoutDuration() time.Duration {
	return time.Duration(t.DefaultRequestTimeout) * time.Second
}

// TimeoutForRoute returns the timeout duration for a specific route.
// Route format: "METHOD:/path" (e.g., "POST:/api/v1/predict").
func (t TimeoutConfig) TimeoutForRoute(method, path string) time.Duration {
	if t.RouteOverrides == nil {
		return t.DefaultRequestTimeoutDuration()
	}

	routeKey := fmt.Sprintf("%s:%s", method, path)
	if timeoutSeconds, ok := t.RouteOverrides[routeKey]; ok && timeoutSeconds > 0 {
		return time.Duration(timeoutSeconds) * time.Second
	}

	return t.DefaultRequestTimeoutDuration()
}

// SupervisorConfig configures C5's subprocess orchestration (§4.5, §6).
type SupervisorConfig struct {
	DashboardPort       string
	TrackingUIPort      string
	DisableSubprocesses bool
	DashboardCommand    string
	TrackingUICommand   string
	ShutdownGraceSeconds int
	RestartBackoffCapSeconds int
}

// TrainingConfig configures the bootstrap training collaborator (§4.5 step 2).
type TrainingConfig struct {
	SeedSamples int
}

// Load loads configuration from environment variables.
func Load(serviceName string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("API_PORT", "8000"),
			Environment:  getEnv("ENVIRONMENT", "development"),
			ServiceName:  serviceName,
			ReadTimeout:  getEnvAsInt("READ_TIMEOUT", 10),
			WriteTimeout: getEnvAsInt("WRITE_TIMEOUT", 10),
			CORSOrigins:  getEnv("CORS_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			Host:        getEnv("DB_HOST", "localhost"),
			Port:        getEnv("DB_PORT", "5432"),
			User:        getEnv("DB_USER", "postgres"),
			Password:    getEnv("DB_PASSWORD", "postgres"),
			DBName:      getEnv("DB_NAME", "taxi_eta"),
			SSLMode:     getEnv("DB_SSLMODE", "disable"),
			MaxConns:    getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:    getEnvAsInt("DB_MIN_CONNS", 2),
			ServiceName: serviceName,
			Breaker: CircuitBreakerConfig{
				Enabled:          getEnvAsBool("DB_CB_ENABLED", false),
				FailureThreshold: getEnvAsInt("DB_CB_FAILURE_THRESHOLD", 5),
				SuccessThreshold: getEnvAsInt("DB_CB_SUCCESS_THRESHOLD", 1),
				TimeoutSeconds:   getEnvAsInt("DB_CB_TIMEOUT_SECONDS", 30),
				IntervalSeconds:  getEnvAsInt("DB_CB_INTERVAL_SECONDS", 60),
			},
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Registry: RegistryConfig{
			Root:         getEnv("MODEL_REGISTRY_ROOT", "./data/mlruns"),
			ExperimentID: getEnv("EXPERIMENT_ID", "1"),
			ModelName:    getEnv("MODEL_NAME", "models"),
		},
		Resilience: ResilienceConfig{
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          getEnvAsBool("CB_ENABLED", true),
				FailureThreshold: getEnvAsInt("CB_FAILURE_THRESHOLD", 5),
				SuccessThreshold: getEnvAsInt("CB_SUCCESS_THRESHOLD", 1),
				TimeoutSeconds:   getEnvAsInt("CB_TIMEOUT_SECONDS", 30),
				IntervalSeconds:  getEnvAsInt("CB_INTERVAL_SECONDS", 60),
			},
		},
		Timeout: TimeoutConfig{
			DatabaseQueryTimeout:  getEnvAsInt("DB_QUERY_TIMEOUT", DefaultDatabaseQueryTimeout),
			RedisOperationTimeout: getEnvAsInt("REDIS_OPERATION_TIMEOUT", DefaultRedisOperationTimeout),
			DefaultRequestTimeout: getEnvAsIntFromMs("PREDICTION_TIMEOUT_MS", DefaultPredictionTimeoutMs),
			RouteOverrides: map[string]int{
				"GET:/api/v1/health":       getEnvAsIntFromMs("HEALTH_TIMEOUT_MS", DefaultHealthTimeoutMs),
				"GET:/api/v1/health/model": getEnvAsIntFromMs("HEALTH_TIMEOUT_MS", DefaultHealthTimeoutMs),
			},
		},
		Supervisor: SupervisorConfig{
			DashboardPort:            getEnv("DASHBOARD_PORT", "8506"),
			TrackingUIPort:           getEnv("TRACKING_UI_PORT", "5000"),
			DisableSubprocesses:      getEnvAsBool("DISABLE_SUBPROCESSES", false),
			DashboardCommand:         getEnv("DASHBOARD_COMMAND", ""),
			TrackingUICommand:        getEnv("TRACKING_UI_COMMAND", ""),
			ShutdownGraceSeconds:     getEnvAsInt("SHUTDOWN_GRACE_SECONDS", 10),
			RestartBackoffCapSeconds: getEnvAsInt("RESTART_BACKOFF_CAP_SECONDS", 30),
		},
		Training: TrainingConfig{
			SeedSamples: getEnvAsInt("BOOTSTRAP_SEED_SAMPLES", 500),
		},
	}

	box, err := parseBoundingBox(getEnv("BOUNDING_BOX", "40.5,-74.3,40.9,-73.7"))
	if err != nil {
		return nil, fmt.Errorf("invalid BOUNDING_BOX: %w", err)
	}
	cfg.BoundingBox = box

	if timeoutOverrides := getEnv("ROUTE_TIMEOUT_OVERRIDES", ""); timeoutOverrides != "" {
		var routeTimeouts map[string]int
		if err := json.Unmarshal([]byte(timeoutOverrides), &routeTimeouts); err != nil {
			return nil, fmt.Errorf("invalid ROUTE_TIMEOUT_OVERRIDES value: %w", err)
		}
		for route, timeout := range routeTimeouts {
			if timeout <= 0 {
				continue
			}
			cfg.Timeout.RouteOverrides[route] = timeout
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// A relative MODEL_REGISTRY_ROOT is resolved against the directory of
	// the running executable, not the current working directory.
	if !filepath.IsAbs(cfg.Registry.Root) {
		exePath, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable path for MODEL_REGISTRY_ROOT: %w", err)
		}
		if resolved, err := filepath.EvalSymlinks(exePath); err == nil {
			exePath = resolved
		}
		cfg.Registry.Root = filepath.Join(filepath.Dir(exePath), cfg.Registry.Root)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Timeout.DatabaseQueryTimeout <= 0 {
		c.Timeout.DatabaseQueryTimeout = DefaultDatabaseQueryTimeout
	} else if c.Timeout.DatabaseQueryTimeout > MaxDatabaseQueryTimeout {
		return fmt.Errorf("DB_QUERY_TIMEOUT (%d seconds) exceeds maximum allowed value of %d seconds", c.Timeout.DatabaseQueryTimeout, MaxDatabaseQueryTimeout)
	}

	if c.Timeout.RedisOperationTimeout <= 0 {
		c.Timeout.RedisOperationTimeout = DefaultRedisOperationTimeout
	} else if c.Timeout.RedisOperationTimeout > MaxRedisOperationTimeout {
		return fmt.Errorf("REDIS_OPERATION_TIMEOUT (%d seconds) exceeds maximum allowed value of %d seconds", c.Timeout.RedisOperationTimeout, MaxRedisOperationTimeout)
	}

	if c.Timeout.DefaultRequestTimeout <= 0 {
		return fmt.Errorf("PREDICTION_TIMEOUT_MS must be positive")
	}

	if c.Registry.Root == "" {
		return fmt.Errorf("MODEL_REGISTRY_ROOT must not be empty")
	}

	if c.BoundingBox.MinLat >= c.BoundingBox.MaxLat || c.BoundingBox.MinLon >= c.BoundingBox.MaxLon {
		return fmt.Errorf("BOUNDING_BOX must describe a non-empty region (min < max on both axes)")
	}

	if c.Supervisor.ShutdownGraceSeconds <= 0 {
		c.Supervisor.ShutdownGraceSeconds = 10
	}

	if c.Supervisor.RestartBackoffCapSeconds <= 0 {
		c.Supervisor.RestartBackoffCapSeconds = 30
	}

	return nil
}

func parseBoundingBox(raw string) (BoundingBoxConfig, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return BoundingBoxConfig{}, fmt.Errorf("expected 4 comma-separated values (min_lat,min_lon,max_lat,max_lon), got %q", raw)
	}

	values := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BoundingBoxConfig{}, fmt.Errorf("value %q is not a valid number: %w", p, err)
		}
		values[i] = v
	}

	return BoundingBoxConfig{
		MinLat: values[0],
		MinLon: values[1],
		MaxLat: values[2],
		MaxLon: values[3],
	}, nil
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// RedisAddr returns the Redis address.
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsIntFromMs reads a millisecond-denominated env var and converts it to
// whole seconds (rounding up), matching the §6 *_TIMEOUT_MS configuration surface.
func getEnvAsIntFromMs(key string, defaultMs int) int {
	ms := getEnvAsInt(key, defaultMs)
	if ms <= 0 {
		ms = defaultMs
	}
	seconds := ms / 1000
	if ms%1000 != 0 {
		seconds++
	}
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
