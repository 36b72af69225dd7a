package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"wtfGram/database"
	"wtfGram/jobs"
	"wtfGram/pubsub"
)

type Config struct {
	Port              int            `json:"port"`
	Env               string         `json:"env"`
	Pepper            string         `json:"pepper"`
	JWTSecret         string         `json:"jwt_secret"`
	ClientURL         string         `json:"client_url"`
	ReconcileSchedule string         `json:"reconcile_schedule"`
	Database          DatabaseConfig `json:"database"`
	Redis             RedisConfig    `json:"redis"`
}

// IsProd reports whether the app runs in production.
func (c Config) IsProd() bool {
	return c.Env == "prod"
}

type DatabaseConfig struct {
	Dialect  string `json:"dialect"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Name     string `json:"name"`
	// DSN, if set, is used as is instead of the fields above.
	DSN string `json:"dsn"`
}

// ConnectionInfo returns the connection string for the configured dialect.
func (dc DatabaseConfig) ConnectionInfo() string {
	if dc.DSN != "" {
		return dc.DSN
	}
	switch dc.Dialect {
	case database.MySQL:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC", dc.User, dc.Password, dc.Host, dc.Port, dc.Name)
	case database.SQLite:
		return dc.Name
	}
	if dc.Password == "" {
		return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=disable", dc.Host, dc.Port, dc.User, dc.Name)
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable", dc.Host, dc.Port, dc.User, dc.Password, dc.Name)
}

// RedisConfig configures the relay between instances. An empty Addr runs a single instance.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	Channel  string `json:"channel"`
}

func DefaultConfig() Config {
	return Config{
		Port:              1111,
		Env:               "dev",
		Pepper:            "secret-random-string",
		JWTSecret:         "secret-jwt-key",
		ClientURL:         "http://localhost:3000",
		ReconcileSchedule: jobs.DefaultReconcileSchedule,
		Database:          DefaultDatabaseConfig(),
		Redis:             RedisConfig{Channel: pubsub.DefaultRedisChannel},
	}
}

func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Dialect:  database.Postgres,
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "",
		Name:     "wtf_gram",
	}
}

// LoadConfig loads the configuration from a .config.json file if present, otherwise
// the default dev setup is used. If configReq is true the file is required and
// LoadConfig panics without it. Variables from a .env file and the environment are
// applied on top.
func LoadConfig(configReq bool) Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(err)
	}

	c, err := readConfigFile(".config.json")
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if configReq {
			panic("a .config.json file must be provided in production")
		}
		c = DefaultConfig()
	case err != nil:
		panic(err)
	default:
		fmt.Println("Successfully loaded .config.json")
	}

	if err := applyEnv(&c); err != nil {
		panic(err)
	}
	return c
}

func readConfigFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	c := DefaultConfig()
	if err := json.NewDecoder(f).Decode(&c); err != nil {
		return Config{}, fmt.Errorf("decoding %s: %w", path, err)
	}
	return c, nil
}

// applyEnv overrides c with whatever is set in the environment.
func applyEnv(c *Config) error {
	strs := map[string]*string{
		"APP_ENV":            &c.Env,
		"PEPPER":             &c.Pepper,
		"JWT_SECRET":         &c.JWTSecret,
		"CLIENT_URL":         &c.ClientURL,
		"RECONCILE_SCHEDULE": &c.ReconcileSchedule,
		"DATABASE_DIALECT":   &c.Database.Dialect,
		"DATABASE_DSN":       &c.Database.DSN,
		"REDIS_ADDR":         &c.Redis.Addr,
		"REDIS_PASSWORD":     &c.Redis.Password,
		"REDIS_CHANNEL":      &c.Redis.Channel,
	}
	for key, field := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*field = v
		}
	}
	if v, ok := os.LookupEnv("PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Port = port
	}
	return nil
}
