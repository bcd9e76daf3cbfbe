// Package config loads securekey settings from securekey.yaml, SECUREKEY_*
// environment variables, and command flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/panchalshubham0608/securekey/internal/logging"
)

const (
	StoreMemory = "memory"
	StoreMongo  = "mongo"
)

type MongoConfig struct {
	URI                string `mapstructure:"uri" yaml:"uri"`
	Database           string `mapstructure:"database" yaml:"database"`
	MetadataCollection string `mapstructure:"metadata_collection" yaml:"metadata_collection"`
	ItemsCollection    string `mapstructure:"items_collection" yaml:"items_collection"`
	LegacyCollection   string `mapstructure:"legacy_collection" yaml:"legacy_collection"`
	UsersCollection    string `mapstructure:"users_collection" yaml:"users_collection"`
}

type DeviceConfig struct {
	// Path of the bbolt file holding device-local secrets.
	Path string `mapstructure:"path" yaml:"path"`
}

type QuickUnlockConfig struct {
	Mode    string        `mapstructure:"mode" yaml:"mode"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RPID    string        `mapstructure:"rp_id" yaml:"rp_id"`
	RPName  string        `mapstructure:"rp_name" yaml:"rp_name"`
}

type KDFConfig struct {
	Iterations int `mapstructure:"iterations" yaml:"iterations"`
}

type ServerConfig struct {
	Addr      string        `mapstructure:"addr" yaml:"addr"`
	JWTIssuer string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
}

type VaultConfig struct {
	LockTimeout time.Duration `mapstructure:"lock_timeout" yaml:"lock_timeout"`
}

type ClipboardConfig struct {
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

type Config struct {
	Store       string            `mapstructure:"store" yaml:"store"`
	Mongo       MongoConfig       `mapstructure:"mongo" yaml:"mongo"`
	Device      DeviceConfig      `mapstructure:"device" yaml:"device"`
	QuickUnlock QuickUnlockConfig `mapstructure:"quick_unlock" yaml:"quick_unlock"`
	KDF         KDFConfig         `mapstructure:"kdf" yaml:"kdf"`
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	Vault       VaultConfig       `mapstructure:"vault" yaml:"vault"`
	Log         logging.Config    `mapstructure:"log" yaml:"log"`
	Clipboard   ClipboardConfig   `mapstructure:"clipboard" yaml:"clipboard"`
}

// Defaults returns the built-in value of every key.
func Defaults() map[string]any {
	device := "securekey-device.db"
	if dir, err := os.UserConfigDir(); err == nil {
		device = filepath.Join(dir, "securekey", "device.db")
	}
	return map[string]any{
		"store":                     StoreMemory,
		"mongo.uri":                 "mongodb://localhost:27017",
		"mongo.database":            "securekey",
		"mongo.metadata_collection": "crypto_meta",
		"mongo.items_collection":    "vault_items",
		"mongo.legacy_collection":   "keys",
		"mongo.users_collection":    "users",
		"device.path":               device,
		"quick_unlock.mode":         "bound",
		"quick_unlock.timeout":      60 * time.Second,
		"quick_unlock.rp_id":        "securekey",
		"quick_unlock.rp_name":      "SecureKey",
		"kdf.iterations":            310000,
		"server.addr":               ":8080",
		"server.jwt_issuer":         "securekey",
		"server.token_ttl":          15 * time.Minute,
		"vault.lock_timeout":        5 * time.Minute,
		"log.level":                 "info",
		"log.format":                "text",
		"clipboard.ttl":             25 * time.Second,
	}
}

// Default returns the built-in configuration without reading any file,
// environment variable, or flag.
func Default() Config {
	v := viper.New()
	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}
	var c Config
	_ = v.Unmarshal(&c)
	return c
}

// Path returns the location of securekey.yaml for the user or, when
// system is set, for the whole machine.
func Path(system bool) (string, error) {
	var dir string
	if system {
		switch runtime.GOOS {
		case "windows":
			dir = filepath.Join(os.Getenv("ProgramData"), "SecureKey")
		default:
			dir = "/etc/securekey"
		}
	} else {
		d, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("could not get user config directory: %w", err)
		}
		dir = filepath.Join(d, "securekey")
	}
	return filepath.Join(dir, "securekey.yaml"), nil
}

// Load reads the configuration. explicit, when non-empty, names a config
// file that must exist. cmd may be nil.
func Load(cmd *cobra.Command, explicit string) (Config, error) {
	var c Config
	v := viper.New()
	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}

	v.SetConfigName("securekey")
	v.SetConfigType("yaml")
	if explicit != "" {
		v.SetConfigFile(explicit)
	}
	if p, err := Path(false); err == nil {
		v.AddConfigPath(filepath.Dir(p))
	}
	if p, err := Path(true); err == nil {
		v.AddConfigPath(filepath.Dir(p))
	}
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit != "" || !errors.As(err, &notFound) {
			return c, err
		}
	}

	v.SetEnvPrefix("securekey")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cmd != nil {
		if err := v.BindPFlags(cmd.Flags()); err != nil {
			return c, err
		}
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreMongo:
	default:
		return fmt.Errorf("config: unknown store %q", c.Store)
	}
	if c.Store == StoreMongo && c.Mongo.URI == "" {
		return errors.New("config: mongo.uri is required for the mongo store")
	}
	switch c.QuickUnlock.Mode {
	case "bound", "raw":
	default:
		return fmt.Errorf("config: unknown quick_unlock.mode %q", c.QuickUnlock.Mode)
	}
	if c.KDF.Iterations <= 0 {
		return errors.New("config: kdf.iterations must be positive")
	}
	return nil
}

// WriteFile renders c as YAML at path, creating the directory.
func WriteFile(c *Config, path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("could not create config directory %s: %w", dir, err)
	}
	return os.WriteFile(path, data, 0o600)
}
