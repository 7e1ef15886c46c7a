// Package config loads server settings from an optional YAML file and the
// environment. Environment variables win over the file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds the server settings.
type Config struct {
	Port          string `yaml:"port"`
	DBPath        string `yaml:"db_path"`
	TemplateDir   string `yaml:"template_dir"`
	StaticDir     string `yaml:"static_dir"`
	SecureCookie  bool   `yaml:"secure_cookie"`
	AdminUser     string `yaml:"admin_user"`
	AdminPassword string `yaml:"admin_password"`
	LogLevel      string `yaml:"log_level"`
	LogDev        bool   `yaml:"log_dev"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Port:        "8080",
		DBPath:      "expenses.db",
		TemplateDir: "web/templates",
		StaticDir:   "web/static",
		LogLevel:    "info",
	}
}

// Load reads the file named by CONFIG_FILE, if set, then applies
// environment overrides.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	stringEnv(&cfg.Port, "PORT")
	stringEnv(&cfg.DBPath, "DB_PATH")
	stringEnv(&cfg.TemplateDir, "TEMPLATE_DIR")
	stringEnv(&cfg.StaticDir, "STATIC_DIR")
	stringEnv(&cfg.AdminUser, "ADMIN_USER")
	stringEnv(&cfg.AdminPassword, "ADMIN_PASSWORD")
	stringEnv(&cfg.LogLevel, "LOG_LEVEL")
	if err := boolEnv(&cfg.SecureCookie, "SECURE_COOKIE"); err != nil {
		return cfg, err
	}
	if err := boolEnv(&cfg.LogDev, "LOG_DEV"); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func stringEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func boolEnv(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}
