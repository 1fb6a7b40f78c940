package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	AWS         AWSConfig         `mapstructure:"aws"`
	Tables      TablesConfig      `mapstructure:"tables"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Log         LogConfig         `mapstructure:"log"`
	Worker      WorkerConfig      `mapstructure:"worker"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
}

type ServerConfig struct {
	RunLocal       bool     `mapstructure:"run_local"`
	Addr           string   `mapstructure:"addr"`
	RateLimitRPS   float64  `mapstructure:"rate_limit_rps"`
	RateLimitBurst int      `mapstructure:"rate_limit_burst"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type AWSConfig struct {
	Region           string `mapstructure:"region"`
	EndpointOverride string `mapstructure:"endpoint_override"`
	OrdersQueueURL   string `mapstructure:"orders_queue_url"`
}

type TablesConfig struct {
	Accounts    string `mapstructure:"accounts"`
	AccountKeys string `mapstructure:"account_keys"`
	MenuItems   string `mapstructure:"menu_items"`
	Orders      string `mapstructure:"orders"`
	OrderCodes  string `mapstructure:"order_codes"`
	Idempotency string `mapstructure:"idempotency"`
}

type AuthConfig struct {
	JWTSecret          string        `mapstructure:"jwt_secret"`
	JWTTTL             time.Duration `mapstructure:"jwt_ttl"`
	StudentEmailDomain string        `mapstructure:"student_email_domain"`
	BcryptCost         int           `mapstructure:"bcrypt_cost"`
}

type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MenuCacheTTL time.Duration `mapstructure:"menu_cache_ttl"`
}

type LogConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

type WorkerConfig struct {
	MetricsNamespace string `mapstructure:"metrics_namespace"`
}

type IdempotencyConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// envBindings maps config keys to the environment variables deployments set.
var envBindings = map[string]string{
	"server.run_local":          "RUN_LOCAL",
	"server.addr":               "HTTP_ADDR",
	"server.rate_limit_rps":     "RATE_LIMIT_RPS",
	"server.rate_limit_burst":   "RATE_LIMIT_BURST",
	"server.allowed_origins":    "CORS_ALLOWED_ORIGINS",
	"aws.region":                "AWS_REGION",
	"aws.endpoint_override":     "AWS_ENDPOINT_OVERRIDE",
	"aws.orders_queue_url":      "ORDERS_QUEUE_URL",
	"tables.accounts":           "ACCOUNTS_TABLE",
	"tables.account_keys":       "ACCOUNT_KEYS_TABLE",
	"tables.menu_items":         "MENU_ITEMS_TABLE",
	"tables.orders":             "ORDERS_TABLE",
	"tables.order_codes":        "ORDER_CODES_TABLE",
	"tables.idempotency":        "IDEMPOTENCY_TABLE",
	"auth.jwt_secret":           "JWT_SECRET",
	"auth.jwt_ttl":              "JWT_TTL",
	"auth.student_email_domain": "STUDENT_EMAIL_DOMAIN",
	"auth.bcrypt_cost":          "BCRYPT_COST",
	"redis.addr":                "REDIS_ADDR",
	"redis.password":            "REDIS_PASSWORD",
	"redis.db":                  "REDIS_DB",
	"redis.menu_cache_ttl":      "MENU_CACHE_TTL",
	"log.level":                 "LOG_LEVEL",
	"log.encoding":              "LOG_ENCODING",
	"worker.metrics_namespace":  "METRICS_NAMESPACE",
	"idempotency.ttl":           "IDEMPOTENCY_TTL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.run_local", false)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.rate_limit_rps", 10.0)
	v.SetDefault("server.rate_limit_burst", 20)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("tables.accounts", "accounts")
	v.SetDefault("tables.account_keys", "account_keys")
	v.SetDefault("tables.menu_items", "menu_items")
	v.SetDefault("tables.orders", "orders")
	v.SetDefault("tables.order_codes", "order_codes")
	v.SetDefault("tables.idempotency", "idempotency")
	v.SetDefault("auth.jwt_ttl", 7*24*time.Hour)
	v.SetDefault("auth.student_email_domain", "cuet.ac.bd")
	v.SetDefault("auth.bcrypt_cost", 12)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.menu_cache_ttl", 5*time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
	v.SetDefault("worker.metrics_namespace", "CampusOrderflow")
	v.SetDefault("idempotency.ttl", 24*time.Hour)
}

// Load reads defaults, then the YAML file at configPath when non-empty,
// then the environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.Server.AllowedOrigins = splitOrigins(config.Server.AllowedOrigins)
	return &config, nil
}

// ValidateAPI checks the settings only the HTTP API needs.
func (c *Config) ValidateAPI() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Auth.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive")
	}
	return nil
}

// splitOrigins accepts both a YAML list and a comma separated env value.
func splitOrigins(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
