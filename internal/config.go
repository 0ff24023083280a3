package internal

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/hbomb79/Marquee/internal/api"
	"github.com/hbomb79/Marquee/internal/http/tmdb"
	"github.com/hbomb79/Marquee/internal/storage"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// MarqueeConfig is the struct used to contain the
// various user config supplied by file, environment,
// or manually inside the code.
type MarqueeConfig struct {
	Tmdb    tmdb.Config    `yaml:"tmdb"`
	Storage storage.Config `yaml:"storage"`
	Api     api.RestConfig `yaml:"api"`
	Logging LoggingConfig  `yaml:"logging"`
}

// LoggingConfig controls the minimum level of log lines
// which are written. Lines below this level are dropped.
type LoggingConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

// LoadConfig populates the config using the YAML file at the path provided
// (if any), overlaid with the process environment. A '.env' file in the
// working directory is loaded in to the environment first, if present.
func LoadConfig(configPath string) (*MarqueeConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	config := &MarqueeConfig{}
	if configPath == "" {
		if err := cleanenv.ReadEnv(config); err != nil {
			return nil, fmt.Errorf("failed to load configuration from environment: %w", err)
		}

		return config, nil
	}

	if err := cleanenv.ReadConfig(configPath, config); err != nil {
		return nil, fmt.Errorf("failed to load configuration from %s: %w", configPath, err)
	}

	return config, nil
}
