package identify

import (
	"os"

	"github.com/rfiorani/echomatch/pkg/logger"
)

type Config struct {
	IndexPath string
	MetaPath  string
	Logger    *logger.Logger
}

type Option func(*Config)

func WithIndexPath(path string) Option {
	return func(c *Config) {
		c.IndexPath = path
	}
}

func WithMetaPath(path string) Option {
	return func(c *Config) {
		c.MetaPath = path
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

func defaultConfig() *Config {
	return &Config{
		IndexPath: envOrDefault("AUDIO_DB", "audio_index.sqlite3"),
		MetaPath:  envOrDefault("META_DB", "meta.sqlite3"),
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
