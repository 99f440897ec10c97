package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config is the full server configuration. Every key can be overridden from
// the environment with underscores for dots (e.g. HTTP_PORT, GAME_ROUNDS).
type Config struct {
	HTTP struct {
		Bind string
		Port int
	}

	Game struct {
		Rounds       int
		Choices      int
		Pixelation   int
		ReadyTimeout time.Duration
		RunTimeout   time.Duration
	}

	IDs struct {
		Charset  string
		Length   int
		Attempts int
	}

	Content struct {
		SpriteBase string
	}
}

func Default() Config {
	var c Config
	c.HTTP.Bind = "0.0.0.0"
	c.HTTP.Port = 8080
	c.Game.Rounds = 5
	c.Game.Choices = 4
	c.Game.Pixelation = 8
	c.Game.ReadyTimeout = 30 * time.Second
	c.Game.RunTimeout = 20 * time.Second
	c.IDs.Charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	c.IDs.Length = 6
	c.IDs.Attempts = 100
	return c
}

// Load merges the defaults already present in config with the given file
// (optional) and the environment; config must be a pointer.
func Load(file string, config any) error {
	v := viper.New()
	m := make(map[string]any)

	if err := mapstructure.Decode(config, &m); err != nil {
		return fmt.Errorf("mapstructure: %v", err)
	}

	if err := v.MergeConfigMap(m); err != nil {
		return fmt.Errorf("merge config map: %v", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config from file %s: %v", file, err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("unmarshal config: %v", err)
	}

	return nil
}
