package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/tilebank/backend/internal/models"
)

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type JWTConfig struct {
	SecretKey string `mapstructure:"secret_key"`
}

// AdminConfig carries the bcrypt hash of the operator API key.
type AdminConfig struct {
	KeyHash string `mapstructure:"key_hash"`
}

type WalletConfig struct {
	InitialBalance int64 `mapstructure:"initial_balance"`
}

type BiddingConfig struct {
	MinimumBid int64 `mapstructure:"minimum_bid"`
	// GuaranteedOccupancy is how long a published tile is shielded from
	// re-auction, counted from its publication time.
	GuaranteedOccupancy time.Duration `mapstructure:"guaranteed_occupancy"`
	BlockedCoords       []string      `mapstructure:"blocked_coords"`
}

// ParsedBlockedCoords converts the configured "x:y" strings.
func (c BiddingConfig) ParsedBlockedCoords() ([]models.Coords, error) {
	coords := make([]models.Coords, 0, len(c.BlockedCoords))
	for _, raw := range c.BlockedCoords {
		parsed, err := models.ParseCoords(raw)
		if err != nil {
			return nil, fmt.Errorf("blocked coords %q: %w", raw, err)
		}
		coords = append(coords, parsed)
	}
	return coords, nil
}

type PublisherConfig struct {
	Addr    string        `mapstructure:"addr"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type UploadsConfig struct {
	Addr    string        `mapstructure:"addr"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type HTTPConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	Bidding   BiddingConfig   `mapstructure:"bidding"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Uploads   UploadsConfig   `mapstructure:"uploads"`
	HTTP      HTTPConfig      `mapstructure:"http"`
}

// Load reads config.yaml (if present) and lets environment variables
// override every key.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/tilebank")
	v.AutomaticEnv()

	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.port", "DATABASE_PORT")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.name", "DATABASE_NAME")
	v.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")

	v.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	v.BindEnv("admin.key_hash", "ADMIN_KEY_HASH")

	v.BindEnv("wallet.initial_balance", "WALLET_INITIAL_BALANCE")
	v.BindEnv("bidding.minimum_bid", "BIDDING_MINIMUM_BID")
	v.BindEnv("bidding.guaranteed_occupancy", "BIDDING_GUARANTEED_OCCUPANCY")

	v.BindEnv("publisher.addr", "PUBLISHER_ADDR")
	v.BindEnv("publisher.api_key", "PUBLISHER_API_KEY")
	v.BindEnv("uploads.addr", "UPLOADS_ADDR")
	v.BindEnv("uploads.api_key", "UPLOADS_API_KEY")

	v.BindEnv("http.port", "PORT")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "tilebank")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("wallet.initial_balance", 10)
	v.SetDefault("bidding.minimum_bid", 1)
	v.SetDefault("bidding.guaranteed_occupancy", 7*24*time.Hour)
	v.SetDefault("publisher.timeout", 30*time.Second)
	v.SetDefault("uploads.timeout", 30*time.Second)
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.allowed_origins", []string{"https://*", "http://*"})

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
