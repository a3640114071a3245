package config

import (
	"errors"
	"io/fs"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// AppConfig holds environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided via env files or the environment.
type AppConfig struct {
	AppPort            string
	JWTSecret          string
	TokenTTLHours      int
	Timezone           string
	RateLimitPerMinute int
	AllowedOrigins     []string
	GinMode            string
	PageSize           int
	// Database
	DBDriver    string
	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	// Redis for caching and token revocation
	RedisHost             string
	RedisPort             int
	RedisDB               int
	RedisPassword         string
	CacheEnabled          bool
	PublicListCacheTTLSec int
	// Logging configuration
	LogLevel      string
	LogPath       string
	AccessLogPath string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
}

// TokenTTL returns the lifetime of issued access tokens.
func (c AppConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLHours) * time.Hour
}

// PublicListCacheTTL returns how long a public listing page may be served from cache.
func (c AppConfig) PublicListCacheTTL() time.Duration {
	return time.Duration(c.PublicListCacheTTLSec) * time.Second
}

// Location resolves Timezone, falling back to the process local zone.
func (c AppConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

var (
	cfg    AppConfig
	loaded bool
	mu     sync.RWMutex
)

// keys maps every viper key to the environment variable that overrides it.
var keys = map[string]string{
	"app.port":                    "APP_PORT",
	"app.jwt_secret":              "JWT_SECRET",
	"app.token_ttl_hours":         "TOKEN_TTL_HOURS",
	"app.timezone":                "APP_TIMEZONE",
	"app.rate_limit_per_minute":   "RATE_LIMIT_PER_MINUTE",
	"app.allowed_origins":         "ALLOWED_ORIGINS",
	"app.gin_mode":                "GIN_MODE",
	"posts.page_size":             "POSTS_PAGE_SIZE",
	"posts.cache_enabled":         "CACHE_ENABLED",
	"posts.public_list_cache_ttl": "PUBLIC_LIST_CACHE_TTL_SEC",
	"database.driver":             "DB_DRIVER",
	"database.uri":                "DATABASE_URI",
	"database.host":               "DB_HOST",
	"database.port":               "DB_PORT",
	"database.user":               "DB_USER",
	"database.password":           "DB_PASSWORD",
	"database.name":               "DB_NAME",
	"redis.host":                  "REDIS_HOST",
	"redis.port":                  "REDIS_PORT",
	"redis.db":                    "REDIS_DB",
	"redis.password":              "REDIS_PASSWORD",
	"log.level":                   "LOG_LEVEL",
	"log.path":                    "LOG_PATH",
	"log.access_path":             "ACCESS_LOG_PATH",
	"log.max_size_mb":             "LOG_MAX_SIZE_MB",
	"log.max_backups":             "LOG_MAX_BACKUPS",
	"log.max_age_days":            "LOG_MAX_AGE_DAYS",
	"log.compress":                "LOG_COMPRESS",
}

// Load loads the application configuration. It should be called once during boot.
// Precedence: defaults -> config/config.json -> .env -> environment variables.
func Load() AppConfig {
	mu.RLock()
	if loaded {
		defer mu.RUnlock()
		return cfg
	}
	mu.RUnlock()

	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	c, err := LoadFile("")
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if c.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in environment variables")
	}

	Set(c)
	return c
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	mu.RLock()
	ok := loaded
	c := cfg
	mu.RUnlock()
	if !ok {
		return Load()
	}
	return c
}

// Set installs c as the process configuration.
func Set(c AppConfig) {
	mu.Lock()
	cfg = c
	loaded = true
	mu.Unlock()
}

// LoadFile reads configuration from path, or from config/config.json and
// ./config.json when path is empty, then applies environment overrides.
// A missing file is not an error.
func LoadFile(path string) (AppConfig, error) {
	v := viper.New()
	v.SetConfigType("json")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("config")
		v.AddConfigPath(".")
	}

	setDefaults(v)
	for key, env := range keys {
		if err := v.BindEnv(key, env); err != nil {
			return AppConfig{}, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(path != "" && isMissingFile(err)) {
			return AppConfig{}, err
		}
	}

	return fromViper(v), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.token_ttl_hours", 72)
	v.SetDefault("app.rate_limit_per_minute", 60)
	v.SetDefault("app.allowed_origins", []string{"*"})
	v.SetDefault("app.gin_mode", "release")
	v.SetDefault("posts.page_size", 10)
	v.SetDefault("posts.cache_enabled", true)
	v.SetDefault("posts.public_list_cache_ttl", 60)
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", "3306")
	v.SetDefault("database.name", "aiblog")
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.path", "logs/app.log")
	v.SetDefault("log.access_path", "logs/access.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 7)
}

func fromViper(v *viper.Viper) AppConfig {
	return AppConfig{
		AppPort:               v.GetString("app.port"),
		JWTSecret:             v.GetString("app.jwt_secret"),
		TokenTTLHours:         v.GetInt("app.token_ttl_hours"),
		Timezone:              v.GetString("app.timezone"),
		RateLimitPerMinute:    v.GetInt("app.rate_limit_per_minute"),
		AllowedOrigins:        splitList(v.GetStringSlice("app.allowed_origins")),
		GinMode:               v.GetString("app.gin_mode"),
		PageSize:              v.GetInt("posts.page_size"),
		CacheEnabled:          v.GetBool("posts.cache_enabled"),
		PublicListCacheTTLSec: v.GetInt("posts.public_list_cache_ttl"),
		DBDriver:              strings.ToLower(v.GetString("database.driver")),
		DatabaseURI:           v.GetString("database.uri"),
		DBHost:                v.GetString("database.host"),
		DBPort:                v.GetString("database.port"),
		DBUser:                v.GetString("database.user"),
		DBPassword:            v.GetString("database.password"),
		DBName:                v.GetString("database.name"),
		RedisHost:             v.GetString("redis.host"),
		RedisPort:             v.GetInt("redis.port"),
		RedisDB:               v.GetInt("redis.db"),
		RedisPassword:         v.GetString("redis.password"),
		LogLevel:              strings.ToLower(v.GetString("log.level")),
		LogPath:               v.GetString("log.path"),
		AccessLogPath:         v.GetString("log.access_path"),
		LogMaxSizeMB:          v.GetInt("log.max_size_mb"),
		LogMaxBackups:         v.GetInt("log.max_backups"),
		LogMaxAgeDays:         v.GetInt("log.max_age_days"),
		LogCompress:           v.GetBool("log.compress"),
	}
}

// splitList accepts both JSON arrays and comma separated env values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
