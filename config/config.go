package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreSQL      = "sql"
	StoreDocument = "document"
	StoreMemory   = "memory"
)

// Database drivers for the sql store backend.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Object storage backends.
const (
	StorageLocal    = "local"
	StorageMinio    = "minio"
	StorageSupabase = "supabase"
)

// Config stores the application configuration.
// Values are layered: defaults, then an optional TOML file, then .env and the environment.
type Config struct {
	ServerAddr     string        `toml:"server_addr"`
	RequestTimeout time.Duration `toml:"request_timeout"`
	ReadTimeout    time.Duration `toml:"read_timeout"`
	WriteTimeout   time.Duration `toml:"write_timeout"`
	IdleTimeout    time.Duration `toml:"idle_timeout"`

	// 只有部署在反向代理之后才开启，否则客户端可以伪造 X-Forwarded-For
	TrustProxyHeaders bool `toml:"trust_proxy_headers"`

	StoreBackend string `toml:"store_backend"` // sql, document, memory

	DBDriver   string `toml:"db_driver"` // mysql, postgres, sqlite
	DBHost     string `toml:"db_host"`
	DBPort     string `toml:"db_port"`
	DBUser     string `toml:"db_user"`
	DBPassword string `toml:"db_password"`
	DBName     string `toml:"db_name"`
	DBPath     string `toml:"db_path"` // SQLite file
	DBDSN      string `toml:"database_url"`

	DocumentPath  string `toml:"document_path"`
	DocumentWatch bool   `toml:"document_watch"`

	JWTSecret string        `toml:"jwt_secret_key"`
	TokenTTL  time.Duration `toml:"token_ttl"`

	UploadDir         string   `toml:"upload_dir"`
	MaxContentLength  int64    `toml:"max_content_length"`
	UploadAllowedExts []string `toml:"upload_allowed_exts"`

	StorageBackend string `toml:"storage_backend"`
	MinioEndpoint  string `toml:"minio_endpoint"`
	MinioAccessKey string `toml:"minio_access_key"`
	MinioSecretKey string `toml:"minio_secret_key"`
	MinioBucket    string `toml:"minio_bucket"`
	MinioRegion    string `toml:"minio_region"`
	MinioUseSSL    bool   `toml:"minio_use_ssl"`
	SupabaseURL    string `toml:"supabase_url"`
	SupabaseKey    string `toml:"supabase_key"`
	SupabaseBucket string `toml:"supabase_bucket"`

	// Redis配置
	CacheEnabled  bool          `toml:"cache_enabled"`
	RedisHost     string        `toml:"redis_host"`
	RedisPort     string        `toml:"redis_port"`
	RedisPassword string        `toml:"redis_password"`
	RedisDB       int           `toml:"redis_db"`
	CacheTTL      time.Duration `toml:"cache_ttl"`

	LoginRateLimit float64 `toml:"login_rate_limit"` // requests per second per client
	LoginRateBurst int     `toml:"login_rate_burst"`

	SeedSampleData bool   `toml:"seed_sample_data"`
	AdminUsername  string `toml:"admin_username"`
	AdminEmail     string `toml:"admin_email"`
	AdminPassword  string `toml:"admin_password"`

	LogLevel      string `toml:"log_level"`
	LogFile       string `toml:"log_file"`
	LogMaxSizeMB  int    `toml:"log_max_size_mb"`
	LogMaxBackups int    `toml:"log_max_backups"`
	LogMaxAgeDays int    `toml:"log_max_age_days"`
	LogCompress   bool   `toml:"log_compress"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ServerAddr:     ":8080",
		RequestTimeout: 30 * time.Second,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		IdleTimeout:    120 * time.Second,

		StoreBackend: StoreSQL,

		DBDriver: DriverSQLite,
		DBHost:   "127.0.0.1",
		DBPort:   "3306",
		DBUser:   "root",
		DBName:   "media",
		DBPath:   "media.db",

		DocumentPath: "content.json",

		JWTSecret: "jwt-secret-key",
		TokenTTL:  24 * time.Hour,

		UploadDir:        "uploads",
		MaxContentLength: 50 << 20,

		StorageBackend: StorageLocal,
		MinioBucket:    "bt1qmedia",
		SupabaseBucket: "uploads",

		RedisHost: "127.0.0.1",
		RedisPort: "6379",
		CacheTTL:  5 * time.Minute,

		LoginRateLimit: 5,
		LoginRateBurst: 10,

		SeedSampleData: true,
		AdminUsername:  "admin",
		AdminEmail:     "admin@example.com",
		AdminPassword:  "admin123",

		LogLevel:      "info",
		LogMaxSizeMB:  100,
		LogMaxBackups: 3,
		LogMaxAgeDays: 28,
	}
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Load builds the configuration. path may point at a TOML file; an empty path skips it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.ServerAddr = getEnv("SERVER_ADDR", c.ServerAddr)
	c.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", c.RequestTimeout)
	c.TrustProxyHeaders = getEnvBool("TRUST_PROXY_HEADERS", c.TrustProxyHeaders)

	c.StoreBackend = getEnv("STORE_BACKEND", c.StoreBackend)

	c.DBDriver = getEnv("DB_DRIVER", c.DBDriver)
	c.DBHost = getEnv("DB_HOST", c.DBHost)
	c.DBPort = getEnv("DB_PORT", c.DBPort)
	c.DBUser = getEnv("DB_USER", c.DBUser)
	c.DBPassword = getEnv("DB_PASSWORD", c.DBPassword)
	c.DBName = getEnv("DB_NAME", c.DBName)
	c.DBPath = getEnv("DB_PATH", c.DBPath)
	c.DBDSN = getEnv("DATABASE_URL", c.DBDSN)

	c.DocumentPath = getEnv("DOCUMENT_PATH", c.DocumentPath)
	c.DocumentWatch = getEnvBool("DOCUMENT_WATCH", c.DocumentWatch)

	c.JWTSecret = getEnv("JWT_SECRET_KEY", c.JWTSecret)
	c.TokenTTL = getEnvDuration("TOKEN_TTL", c.TokenTTL)

	c.UploadDir = getEnv("UPLOAD_DIR", c.UploadDir)
	c.MaxContentLength = getEnvInt64("MAX_CONTENT_LENGTH", c.MaxContentLength)
	c.UploadAllowedExts = getEnvList("UPLOAD_ALLOWED_EXTS", c.UploadAllowedExts)

	c.StorageBackend = getEnv("STORAGE_BACKEND", c.StorageBackend)
	c.MinioEndpoint = getEnv("MINIO_ENDPOINT", c.MinioEndpoint)
	c.MinioAccessKey = getEnv("MINIO_ACCESS_KEY", c.MinioAccessKey)
	c.MinioSecretKey = getEnv("MINIO_SECRET_KEY", c.MinioSecretKey)
	c.MinioBucket = getEnv("MINIO_BUCKET", c.MinioBucket)
	c.MinioRegion = getEnv("MINIO_REGION", c.MinioRegion)
	c.MinioUseSSL = getEnvBool("MINIO_USE_SSL", c.MinioUseSSL)
	c.SupabaseURL = getEnv("SUPABASE_URL", c.SupabaseURL)
	c.SupabaseKey = getEnv("SUPABASE_KEY", c.SupabaseKey)
	c.SupabaseBucket = getEnv("SUPABASE_BUCKET", c.SupabaseBucket)

	c.CacheEnabled = getEnvBool("CACHE_ENABLED", c.CacheEnabled)
	c.RedisHost = getEnv("REDIS_HOST", c.RedisHost)
	c.RedisPort = getEnv("REDIS_PORT", c.RedisPort)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = getEnvInt("REDIS_DB", c.RedisDB)
	c.CacheTTL = getEnvDuration("CACHE_TTL", c.CacheTTL)

	c.LoginRateLimit = getEnvFloat("LOGIN_RATE_LIMIT", c.LoginRateLimit)
	c.LoginRateBurst = getEnvInt("LOGIN_RATE_BURST", c.LoginRateBurst)

	c.SeedSampleData = getEnvBool("SEED_SAMPLE_DATA", c.SeedSampleData)
	c.AdminUsername = getEnv("ADMIN_USERNAME", c.AdminUsername)
	c.AdminEmail = getEnv("ADMIN_EMAIL", c.AdminEmail)
	c.AdminPassword = getEnv("ADMIN_PASSWORD", c.AdminPassword)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFile = getEnv("LOG_FILE", c.LogFile)
	c.LogMaxSizeMB = getEnvInt("LOG_MAX_SIZE_MB", c.LogMaxSizeMB)
	c.LogMaxBackups = getEnvInt("LOG_MAX_BACKUPS", c.LogMaxBackups)
	c.LogMaxAgeDays = getEnvInt("LOG_MAX_AGE_DAYS", c.LogMaxAgeDays)
	c.LogCompress = getEnvBool("LOG_COMPRESS", c.LogCompress)
}

// Validate rejects unknown backends and values the server cannot start with.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreSQL, StoreDocument, StoreMemory:
	default:
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}
	if c.StoreBackend == StoreSQL {
		switch c.DBDriver {
		case DriverMySQL, DriverPostgres, DriverSQLite:
		default:
			return fmt.Errorf("unknown database driver %q", c.DBDriver)
		}
	}
	switch c.StorageBackend {
	case StorageLocal, StorageMinio, StorageSupabase:
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET_KEY must not be empty")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}
	if c.MaxContentLength <= 0 {
		return fmt.Errorf("MAX_CONTENT_LENGTH must be positive")
	}
	return nil
}

// RedisAddr returns host:port of the Redis server.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// DSN builds the driver specific data source name unless DATABASE_URL was given.
func (c *Config) DSN() string {
	if c.DBDSN != "" {
		return c.DBDSN
	}
	switch c.DBDriver {
	case DriverMySQL:
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
	case DriverPostgres:
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName)
	default:
		return filepath.Clean(c.DBPath)
	}
}
