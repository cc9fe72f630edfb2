// Package config loads thicket.yaml, the settings shared by every command.
package config

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no --config flag is given.
const DefaultPath = "thicket.yaml"

// Store backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendLoam     = "loam"
)

// Config is the root of thicket.yaml.
type Config struct {
	Log   LogConfig   `yaml:"log" json:"log"`
	Undo  UndoConfig  `yaml:"undo" json:"undo"`
	Focus FocusConfig `yaml:"focus" json:"focus"`
	Store StoreConfig `yaml:"store" json:"store"`
	HTTP  HTTPConfig  `yaml:"http" json:"http"`
	MQTT  MQTTConfig  `yaml:"mqtt" json:"mqtt"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" json:"format" validate:"oneof=text json"`
}

type UndoConfig struct {
	// HistoryLimit caps the undo stack. Zero uses the default of 100.
	HistoryLimit int `yaml:"history_limit" json:"history_limit" validate:"gte=0"`
}

type FocusConfig struct {
	Threshold float64 `yaml:"threshold" json:"threshold" validate:"gt=0"`
	// Complexity gates which subtrees focus descends into. Zero disables the gate.
	Complexity int `yaml:"complexity" json:"complexity" validate:"gte=0"`
}

type StoreConfig struct {
	Backend  string         `yaml:"backend" json:"backend" validate:"oneof=memory file redis postgres loam"`
	Dir      string         `yaml:"dir" json:"dir"`
	Format   string         `yaml:"format" json:"format" validate:"oneof=yaml json"`
	Redis    RedisConfig    `yaml:"redis" json:"redis"`
	Postgres PostgresConfig `yaml:"postgres" json:"postgres"`
	Loam     LoamConfig     `yaml:"loam" json:"loam"`

	// EncryptionKey is a base64 AES-256 key sealing stored node data.
	// Overridden by THICKET_ENCRYPTION_KEY.
	EncryptionKey string `yaml:"encryption_key" json:"encryption_key" validate:"omitempty,base64"`
	// Redact lists patterns of data fields masked before saving.
	Redact []string `yaml:"redact" json:"redact"`
}

type RedisConfig struct {
	Address  string        `yaml:"address" json:"address" validate:"omitempty,hostname_port"`
	Password string        `yaml:"password" json:"password"`
	DB       int           `yaml:"db" json:"db" validate:"gte=0"`
	Prefix   string        `yaml:"prefix" json:"prefix"`
	TTL      time.Duration `yaml:"ttl" json:"ttl" validate:"gte=0"`
}

type PostgresConfig struct {
	DSN   string `yaml:"dsn" json:"dsn"`
	Table string `yaml:"table" json:"table" validate:"omitempty,max=63"`
}

type LoamConfig struct {
	Path string `yaml:"path" json:"path"`
}

type HTTPConfig struct {
	Port           int      `yaml:"port" json:"port" validate:"gte=1,lte=65535"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
}

type MQTTConfig struct {
	// Broker enables patch fan-out over MQTT when set, e.g. tcp://localhost:1883.
	Broker   string `yaml:"broker" json:"broker" validate:"omitempty,uri"`
	ClientID string `yaml:"client_id" json:"client_id"`
	Prefix   string `yaml:"prefix" json:"prefix"`
}

// Default returns the settings used when no file exists.
func Default() Config {
	return Config{
		Log:   LogConfig{Level: "info", Format: "text"},
		Undo:  UndoConfig{HistoryLimit: 100},
		Focus: FocusConfig{Threshold: 1.0},
		Store: StoreConfig{
			Backend: BackendFile,
			Dir:     filepath.Join(".thicket", "trees"),
			Format:  "yaml",
		},
		HTTP: HTTPConfig{Port: 8080, AllowedOrigins: []string{"*"}},
	}
}

// Load reads path over the defaults. A missing file is not an error.
// JSON is accepted for files ending in .json; anything else is YAML.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, cfg.apply()
		}
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, cfg.apply()
}

func (c *Config) apply() error {
	if key := os.Getenv("THICKET_ENCRYPTION_KEY"); key != "" {
		c.Store.EncryptionKey = key
	}
	return c.Validate()
}

// Validate checks every field.
func (c *Config) Validate() error {
	v := validator.New()
	v.RegisterStructValidation(validateStore, StoreConfig{})
	if err := v.Struct(c); err != nil {
		return describeValidation(err)
	}
	return nil
}

// EncryptionKeyBytes decodes the encryption key, or returns nil when unset.
func (s StoreConfig) EncryptionKeyBytes() ([]byte, error) {
	if s.EncryptionKey == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(s.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	return key, nil
}

// validateStore requires the settings of the selected backend.
func validateStore(sl validator.StructLevel) {
	s := sl.Current().Interface().(StoreConfig)
	switch s.Backend {
	case BackendFile:
		if s.Dir == "" {
			sl.ReportError(s.Dir, "dir", "Dir", "required_for", s.Backend)
		}
	case BackendRedis:
		if s.Redis.Address == "" {
			sl.ReportError(s.Redis.Address, "redis.address", "Address", "required_for", s.Backend)
		}
	case BackendPostgres:
		if s.Postgres.DSN == "" {
			sl.ReportError(s.Postgres.DSN, "postgres.dsn", "DSN", "required_for", s.Backend)
		}
	case BackendLoam:
		if s.Loam.Path == "" {
			sl.ReportError(s.Loam.Path, "loam.path", "Path", "required_for", s.Backend)
		}
	}
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		switch e.Tag() {
		case "required_for":
			msgs = append(msgs, fmt.Sprintf("%s is required for the %s backend", e.Namespace(), e.Param()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", e.Namespace(), e.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s fails %s (got %v)", e.Namespace(), e.Tag(), e.Value()))
		}
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
