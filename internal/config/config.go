package config

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"github.com/osmbc/articles/pkg/logger"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	MongoDB   MongoDBConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Meili     MeiliConfig
	Keycloak  KeycloakConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Articles  ArticlesConfig
	LogLevel  string
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// StorageConfig selects the persistence driver: memory, mongo or postgres.
type StorageConfig struct {
	Driver string
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type PostgresConfig struct {
	URL string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	// Channel receives article events for mail and chat workers.
	Channel string
}

type MeiliConfig struct {
	URL    string
	APIKey string
}

type KeycloakConfig struct {
	URL      string
	Realm    string
	ClientID string
}

type JWTConfig struct {
	Secret string
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

type ArticlesConfig struct {
	// Languages always contains EN.
	Languages      []string
	CatalogFile    string
	ShortenerHosts []string
	ExpandRPS      float64
	ExpandTimeout  time.Duration
	NotifyTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "5003")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("STORAGE_DRIVER", "memory")
	viper.SetDefault("MONGODB_DATABASE", "osmbc")
	viper.SetDefault("MONGODB_TIMEOUT", 10)
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_CHANNEL", "osmbc:article-events")
	viper.SetDefault("RATE_LIMIT_RPS", 10)
	viper.SetDefault("RATE_LIMIT_BURST", 20)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)
	viper.SetDefault("ARTICLE_LANGUAGES", "DE,EN")
	viper.SetDefault("ARTICLE_SHORTENER_HOSTS", "t.co,bit.ly,goo.gl,tinyurl.com,ow.ly")
	viper.SetDefault("ARTICLE_EXPAND_RPS", 2)
	viper.SetDefault("ARTICLE_EXPAND_TIMEOUT", 10)
	viper.SetDefault("ARTICLE_NOTIFY_TIMEOUT", 10)
	viper.SetDefault("LOG_LEVEL", "info")

	cfg := &Config{
		Server: ServerConfig{
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			Environment:  viper.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Driver: strings.ToLower(viper.GetString("STORAGE_DRIVER")),
		},
		MongoDB: MongoDBConfig{
			URI:      viper.GetString("MONGODB_URI"),
			Database: viper.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(viper.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Postgres: PostgresConfig{
			URL: viper.GetString("POSTGRES_URL"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
			Channel:  viper.GetString("REDIS_CHANNEL"),
		},
		Meili: MeiliConfig{
			URL:    viper.GetString("MEILI_URL"),
			APIKey: viper.GetString("MEILI_API_KEY"),
		},
		Keycloak: KeycloakConfig{
			URL:      viper.GetString("KEYCLOAK_URL"),
			Realm:    viper.GetString("KEYCLOAK_REALM"),
			ClientID: viper.GetString("KEYCLOAK_CLIENT_ID"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("JWT_SECRET"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       viper.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      viper.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         viper.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: viper.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Articles: ArticlesConfig{
			Languages:      languages(viper.GetString("ARTICLE_LANGUAGES")),
			CatalogFile:    viper.GetString("ARTICLE_CATALOG_FILE"),
			ShortenerHosts: splitList(viper.GetString("ARTICLE_SHORTENER_HOSTS")),
			ExpandRPS:      viper.GetFloat64("ARTICLE_EXPAND_RPS"),
			ExpandTimeout:  time.Duration(viper.GetInt("ARTICLE_EXPAND_TIMEOUT")) * time.Second,
			NotifyTimeout:  time.Duration(viper.GetInt("ARTICLE_NOTIFY_TIMEOUT")) * time.Second,
		},
		LogLevel: viper.GetString("LOG_LEVEL"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Keycloak.URL == "" && cfg.JWT.Secret == "" {
		logger.Warnf("neither KEYCLOAK_URL nor JWT_SECRET is set; the acting user is taken from the X-OSM-User header")
	}
	return cfg, nil
}

// Validate checks that the selected drivers have what they need.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(&c.Storage,
		validation.Field(&c.Storage.Driver, validation.Required, validation.In("memory", "mongo", "postgres")),
	); err != nil {
		return err
	}
	if err := validation.ValidateStruct(&c.MongoDB,
		validation.Field(&c.MongoDB.URI, validation.When(c.Storage.Driver == "mongo", validation.Required)),
		validation.Field(&c.MongoDB.Database, validation.When(c.Storage.Driver == "mongo", validation.Required)),
	); err != nil {
		return err
	}
	if err := validation.ValidateStruct(&c.Postgres,
		validation.Field(&c.Postgres.URL, validation.When(c.Storage.Driver == "postgres", validation.Required)),
	); err != nil {
		return err
	}
	if err := validation.ValidateStruct(&c.RateLimit,
		validation.Field(&c.RateLimit.RPS, validation.When(c.RateLimit.Enabled, validation.Required, validation.Min(0.1))),
		validation.Field(&c.RateLimit.Burst, validation.When(c.RateLimit.Enabled, validation.Required, validation.Min(1))),
	); err != nil {
		return err
	}
	return validation.ValidateStruct(&c.Articles,
		validation.Field(&c.Articles.Languages, validation.Required),
	)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// languages parses a comma separated language list, upper-cases it and
// makes sure EN is present.
func languages(s string) []string {
	var out []string
	hasEN := false
	for _, l := range splitList(s) {
		l = strings.ToUpper(l)
		if l == "EN" {
			hasEN = true
		}
		out = append(out, l)
	}
	if !hasEN {
		out = append(out, "EN")
	}
	return out
}
