package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"

	"github.com/wrale/cbl-authd/internal/config"
	"github.com/wrale/cbl-authd/internal/credstore"
	"github.com/wrale/cbl-authd/internal/deviceflow"
)

const envPrefix = "CBL"

// Store backends
const (
	storeMemory = "memory"
	storeFile   = "file"
	storeRedis  = "redis"
)

// Config holds agent configuration loaded from CBL_* environment variables
type Config struct {
	ClientID           string        `envconfig:"CLIENT_ID" required:"true"`
	ProductID          string        `envconfig:"PRODUCT_ID" required:"true"`
	DeviceSerialNumber string        `envconfig:"DEVICE_SERIAL_NUMBER" required:"true"`
	BaseURL            string        `envconfig:"BASE_URL"`
	CodePairTimeout    time.Duration `envconfig:"CODE_PAIR_TIMEOUT" default:"15m"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"60s"`
	RefreshHeadStart   time.Duration `envconfig:"REFRESH_HEAD_START" default:"10m"`
	Locale             string        `envconfig:"LOCALE"`
	UserProfile        bool          `envconfig:"USER_PROFILE" default:"false"`
	ProfileURL         string        `envconfig:"PROFILE_URL" default:"https://api.amazon.com/user/profile"`
	Store              string        `envconfig:"STORE" default:"file"`
	StoreFile          string        `envconfig:"STORE_FILE" default:"/var/lib/cbl-authd/refresh_token.json"`
	RedisURL           string        `envconfig:"REDIS_URL"`
	StatusAddr         string        `envconfig:"STATUS_ADDR" default:":8080"`
	LogLevel           string        `envconfig:"LOG_LEVEL" default:"info"`
}

func loadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Store {
	case storeMemory:
	case storeFile:
		if c.StoreFile == "" {
			return fmt.Errorf("%s_STORE_FILE is required for the file store", envPrefix)
		}
	case storeRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("%s_REDIS_URL is required for the redis store", envPrefix)
		}
	default:
		return fmt.Errorf("unknown store %q (want %s, %s or %s)", c.Store, storeMemory, storeFile, storeRedis)
	}
	if _, err := c.level(); err != nil {
		return err
	}
	return nil
}

func (c Config) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// authorizationConfig builds the state machine configuration.
func (c Config) authorizationConfig() (*config.AuthorizationConfig, error) {
	opts := []config.Option{
		config.WithRequestTimeout(c.RequestTimeout),
		config.WithRefreshHeadStart(c.RefreshHeadStart),
		config.WithLocale(c.Locale),
	}
	if c.UserProfile {
		opts = append(opts, config.WithUserProfileScope())
	}

	return config.New(config.DeviceInfo{
		ClientID:           c.ClientID,
		ProductID:          c.ProductID,
		DeviceSerialNumber: c.DeviceSerialNumber,
	}, c.CodePairTimeout, c.BaseURL, opts...)
}

// openStore opens the configured credential store. The returned function
// releases it.
func (c Config) openStore(ctx context.Context) (deviceflow.CredentialStore, func() error, error) {
	switch c.Store {
	case storeFile:
		store, err := credstore.OpenFileStore(c.StoreFile)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil

	case storeRedis:
		opts, err := redis.ParseURL(c.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing redis URL: %w", err)
		}
		client := redis.NewClient(opts)
		store := credstore.NewRedisStore(client, c.ClientID+":"+c.DeviceSerialNumber)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := store.CheckHealth(pingCtx); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store, client.Close, nil

	default:
		return credstore.NewMemoryStore(""), func() error { return nil }, nil
	}
}
