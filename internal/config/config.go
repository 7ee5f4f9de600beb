package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env       string          `yaml:"env" env-default:"local"`
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Discord   DiscordConfig   `yaml:"discord"`
	Lifecycle LifecycleConfig `yaml:"lifecycle"`
}

type HTTPConfig struct {
	Address string `yaml:"address" env-default:""`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn" env:"DATABASE_DSN" env-default:""`
}

type DiscordConfig struct {
	Token         string `yaml:"token" env:"DISCORD_TOKEN"`
	CommandPrefix string `yaml:"command_prefix" env-default:"&vc"`
}

type LifecycleConfig struct {
	GracePeriod     time.Duration `yaml:"grace_period" env-default:"30s"`
	JoinMuteDefault time.Duration `yaml:"join_mute_default" env-default:"30s"`
	JoinMuteMax     time.Duration `yaml:"join_mute_max" env-default:"10m"`
	RetryAttempts   int           `yaml:"retry_attempts" env-default:"3"`
	RetryBackoff    time.Duration `yaml:"retry_backoff" env-default:"5s"`
	APITimeout      time.Duration `yaml:"api_timeout" env-default:"10s"`
	MaxRoomSize     int           `yaml:"max_room_size" env-default:"99"`
	MaxBitrateKbps  int           `yaml:"max_bitrate_kbps" env-default:"384"`
}

func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		panic("config path is empty")
	}

	return MustLoadPath(configPath)
}

func MustLoadPath(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("cannot read config: " + err.Error())
	}

	cfg.setDefaults()

	return &cfg
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	if res == "" {
		res = "config/local.yaml"
	}

	return res
}

func (c *Config) setDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.Discord.CommandPrefix == "" {
		c.Discord.CommandPrefix = "&vc"
	}
	if c.Lifecycle.GracePeriod <= 0 {
		c.Lifecycle.GracePeriod = 30 * time.Second
	}
	if c.Lifecycle.RetryAttempts <= 0 {
		c.Lifecycle.RetryAttempts = 3
	}
}
