// Package config loads tool configuration from file, environment and
// defaults.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/jkolo/go-scp03/pkg/scp03"
)

var (
	configData Config
	v          *viper.Viper
)

// Config holds all configuration settings.
type Config struct {
	// Static key set shared with the card, hex encoded.
	Keys struct {
		Enc string
		Mac string
		Dek string
	}
	// PC/SC reader selection
	Reader struct {
		Index int
	}
	// Emulator / TCP transport configuration
	Emulator struct {
		Address string
	}
	// Logging configuration
	Log struct {
		Level  string
		Format string
	}
}

// Initialize sets up the configuration system.
func Initialize() error {
	v = viper.New()

	// Set config name and paths
	v.SetConfigName("config")       // name of config file (without extension)
	v.SetConfigType("yaml")         // config file type
	v.AddConfigPath(".")            // optionally look for config in working directory
	v.AddConfigPath("$HOME/.scp03") // look for config in .scp03 directory in home
	v.AddConfigPath("/etc/scp03/")  // path to look for the config file in

	// Set default values
	setDefaults()

	// Environment variables
	v.SetEnvPrefix("SCP03") // prefix for env vars
	v.AutomaticEnv()        // read in environment variables that match
	v.SetEnvKeyReplacer(    // replace dots with underscores in env vars
		strings.NewReplacer(".", "_"),
	)

	// Create config file if it doesn't exist
	if err := ensureConfig(); err != nil {
		return fmt.Errorf("error creating config file: %w", err)
	}

	// Read in config file
	if err := v.ReadInConfig(); err != nil {
		// It's okay if we can't find a config file, we'll use defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Unmarshal config into struct
	if err := v.Unmarshal(&configData); err != nil {
		return fmt.Errorf("unable to decode into config struct: %w", err)
	}

	return nil
}

// setDefaults sets default values for all configuration options.
func setDefaults() {
	// GlobalPlatform default test key set.
	const defaultKey = "404142434445464748494A4B4C4D4E4F"

	v.SetDefault("keys.enc", defaultKey)
	v.SetDefault("keys.mac", defaultKey)
	v.SetDefault("keys.dek", defaultKey)

	v.SetDefault("reader.index", 0)

	v.SetDefault("emulator.address", "localhost:1500")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "human")
}

// ensureConfig creates a default config file if none exists.
func ensureConfig() error {
	// Check if config file exists
	if _, err := os.Stat(filepath.Join(os.Getenv("HOME"), ".scp03")); os.IsNotExist(err) {
		// Create directory
		if err := os.MkdirAll(filepath.Join(os.Getenv("HOME"), ".scp03"), 0o755); err != nil {
			return err
		}
	}

	configFile := filepath.Join(os.Getenv("HOME"), ".scp03", "config.yaml")
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		// Create default config file
		defaultConfig := `# SCP03 Tool Configuration File
keys:
  enc: 404142434445464748494A4B4C4D4E4F
  mac: 404142434445464748494A4B4C4D4E4F
  dek: 404142434445464748494A4B4C4D4E4F

reader:
  index: 0

emulator:
  address: localhost:1500

log:
  level: info
  format: human
`
		if err := os.WriteFile(configFile, []byte(defaultConfig), 0o644); err != nil {
			return err
		}
	}

	return nil
}

// Get returns the current configuration.
func Get() *Config {
	return &configData
}

// GetViper returns the viper instance.
func GetViper() *viper.Viper {
	return v
}

// StaticKeys decodes and validates the configured static key set.
func (c *Config) StaticKeys() (scp03.StaticKeys, error) {
	enc, err := hex.DecodeString(c.Keys.Enc)
	if err != nil {
		return scp03.StaticKeys{}, fmt.Errorf("invalid ENC key hex: %w", err)
	}

	mac, err := hex.DecodeString(c.Keys.Mac)
	if err != nil {
		return scp03.StaticKeys{}, fmt.Errorf("invalid MAC key hex: %w", err)
	}

	dek, err := hex.DecodeString(c.Keys.Dek)
	if err != nil {
		return scp03.StaticKeys{}, fmt.Errorf("invalid DEK key hex: %w", err)
	}

	return scp03.NewStaticKeys(enc, mac, dek)
}
