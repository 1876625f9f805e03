package config

import (
	"errors"
	"reflect"
	"strings"

	"content-history/core/database"
	"content-history/core/git"
	"content-history/core/logger"
	"content-history/core/replacer"
	"content-history/core/schema"
	"content-history/core/server"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// It is divided into partial configurations for better modularity.
type Config struct {
	// Server holds configuration for the HTTP server.
	Server server.Config `mapstructure:"server"`
	// Log holds configuration for the logger.
	Log logger.Config `mapstructure:"log"`
	// Database holds configuration for the database connection.
	Database database.Config `mapstructure:"database"`
	// Repository holds configuration for the git working tree.
	Repository git.Config `mapstructure:"repository"`
	// Site holds the live site URL.
	Site replacer.Config `mapstructure:"site"`
	// Schema selects the entity schema.
	Schema schema.Config `mapstructure:"schema"`
	// History holds undo and rollback policy.
	History History `mapstructure:"history"`
}

// History holds undo and rollback policy.
type History struct {
	// IgnoredActions lists comma-separated action tags (type/action) whose
	// deletions are not checked for remaining references on undo.
	IgnoredActions string `mapstructure:"ignored_actions" default:""`
}

// IgnoredActionTags returns the configured tags, trimmed and without blanks.
func (h History) IgnoredActionTags() []string {
	var tags []string
	for _, t := range strings.Split(h.IgnoredActions, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// LoadConfig loads configuration from an optional config.yaml in path,
// a .env file and environment variables, in increasing precedence.
func LoadConfig(path string) (*Config, error) {
	// 1. Load .env file if it exists
	envPath := path + "/.env"
	if path == "." {
		envPath = ".env"
	}

	// Ignore error if file doesn't exist (e.g. production)
	_ = godotenv.Overload(envPath)

	v := viper.New()

	// Recursively parse struct tags to set default values
	bindValues(v, Config{}, "")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	// Map environment variables to nested keys (e.g. DATABASE_HOST -> database.host)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// bindValues uses reflection to iterate over the struct and set default values in Viper
// based on the 'default' and 'mapstructure' tags.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)

	// If it's a pointer, get the element
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")

		// Skip if no tag
		if tag == "" {
			continue
		}

		// Build the key
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		// If it's a nested struct, recurse
		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}

		defaultValue := field.Tag.Get("default")
		// Always set default (even if empty) to register the key for AutomaticEnv
		v.SetDefault(key, defaultValue)
	}
}
