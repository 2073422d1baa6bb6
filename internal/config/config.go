package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultConfigFile      = "appsettings.json"
	DefaultJWTIssuer       = "notes-backend"
	DefaultJWTAudience     = "notes-clients"
	DefaultJWTSecret       = "CHANGE_ME_DEV_SECRET_32CHARS_MINIMUM"
	DefaultLifetimeMinutes = 120
)

const (
	StorageMemory  = "memory"
	StorageCouchDB = "couchdb"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	JWT       JWTConfig
	WebSocket WebSocketConfig
	CORS      CORSConfig
	Logging   LoggingConfig

	// Warnings collects values that were present but unusable and were
	// replaced by a fallback.
	Warnings []string
}

type ServerConfig struct {
	Port string
	Host string
	Env  string
}

type StorageConfig struct {
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

type JWTConfig struct {
	Issuer    string
	Audience  string
	Secret    string
	Lifetime  time.Duration
	ClockSkew time.Duration
}

type WebSocketConfig struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxConnPerUser int
}

type CORSConfig struct {
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
}

type LoggingConfig struct {
	Level string
	File  string
}

// FileConfig mirrors the optional JSON settings file. Only the keys that can
// be overridden by the environment are read from it.
type FileConfig struct {
	Jwt struct {
		Issuer          string          `json:"Issuer"`
		Audience        string          `json:"Audience"`
		Secret          string          `json:"Secret"`
		LifetimeMinutes json.RawMessage `json:"LifetimeMinutes"`
	} `json:"Jwt"`
	Storage struct {
		Driver string `json:"Driver"`
		Name   string `json:"Name"`
	} `json:"Storage"`
}

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Resolve returns the first non-empty value of, in order, the environment
// variable envKey, the configuration file value and fallback.
func Resolve(lookup LookupFunc, envKey, fileValue, fallback string) string {
	if lookup != nil {
		if value, ok := lookup(envKey); ok && strings.TrimSpace(value) != "" {
			return value
		}
	}
	if strings.TrimSpace(fileValue) != "" {
		return fileValue
	}
	return fallback
}

func Load() (*Config, error) {
	godotenv.Load()

	path := getEnv("CONFIG_FILE", DefaultConfigFile)
	file, err := ReadFile(path)
	if err != nil {
		return nil, err
	}

	return Build(os.LookupEnv, file), nil
}

// ReadFile parses the JSON settings file at path. A missing file is not an
// error and yields an empty FileConfig.
func ReadFile(path string) (*FileConfig, error) {
	fc := &FileConfig{}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := json.Unmarshal(data, fc); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return fc, nil
}

// Build assembles the configuration from lookup and file without touching
// the process environment.
func Build(lookup LookupFunc, file *FileConfig) *Config {
	if file == nil {
		file = &FileConfig{}
	}

	cfg := &Config{}

	get := func(key, fallback string) string {
		return Resolve(lookup, key, "", fallback)
	}

	rawLifetime := Resolve(lookup, "JWT_LIFETIME_MINUTES", rawString(file.Jwt.LifetimeMinutes), strconv.Itoa(DefaultLifetimeMinutes))
	lifetime, ok := ParseLifetime(rawLifetime)
	if !ok {
		lifetime = DefaultLifetimeMinutes * time.Minute
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("invalid JWT_LIFETIME_MINUTES %q, defaulting to %d", rawLifetime, DefaultLifetimeMinutes))
	}

	cfg.Server = ServerConfig{
		Port: get("PORT", "8080"),
		Host: get("HOST", "0.0.0.0"),
		Env:  get("ENV", "development"),
	}
	cfg.Storage = StorageConfig{
		Driver:   strings.ToLower(Resolve(lookup, "STORAGE_DRIVER", file.Storage.Driver, StorageMemory)),
		Host:     get("DB_HOST", "localhost"),
		Port:     get("DB_PORT", "5984"),
		User:     get("DB_USER", "admin"),
		Password: get("DB_PASSWORD", "password"),
		Name:     Resolve(lookup, "DB_NAME", file.Storage.Name, "notes"),
	}
	cfg.JWT = JWTConfig{
		Issuer:    Resolve(lookup, "JWT_ISSUER", file.Jwt.Issuer, DefaultJWTIssuer),
		Audience:  Resolve(lookup, "JWT_AUDIENCE", file.Jwt.Audience, DefaultJWTAudience),
		Secret:    Resolve(lookup, "JWT_SECRET", file.Jwt.Secret, DefaultJWTSecret),
		Lifetime:  lifetime,
		ClockSkew: 30 * time.Second,
	}
	cfg.WebSocket = WebSocketConfig{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
		MaxConnPerUser: getAsInt(lookup, "WS_MAX_CONN_PER_USER", 5),
	}
	cfg.CORS = CORSConfig{
		AllowedOrigins: get("CORS_ALLOWED_ORIGINS", "*"),
		AllowedMethods: get("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS"),
		AllowedHeaders: get("CORS_ALLOWED_HEADERS", "Content-Type,Authorization"),
	}
	cfg.Logging = LoggingConfig{
		Level: get("LOG_LEVEL", "info"),
		File:  get("LOG_FILE", ""),
	}

	if cfg.Storage.Driver != StorageMemory && cfg.Storage.Driver != StorageCouchDB {
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("unknown STORAGE_DRIVER %q, using %s", cfg.Storage.Driver, StorageMemory))
		cfg.Storage.Driver = StorageMemory
	}

	return cfg
}

// ParseLifetime accepts whole minutes ("120") or a Go duration ("90m").
// Non-positive values are rejected.
func ParseLifetime(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)

	if minutes, err := strconv.Atoi(value); err == nil {
		if minutes <= 0 {
			return 0, false
		}
		return time.Duration(minutes) * time.Minute, true
	}

	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}

// rawString accepts both "LifetimeMinutes": 120 and "LifetimeMinutes": "120".
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getAsInt(lookup LookupFunc, key string, defaultValue int) int {
	valueStr := Resolve(lookup, key, "", "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
