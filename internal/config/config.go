package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"

	DefaultSQLitePath = "./db_files/main.db"
	envPrefix         = "HOUSEKEEPER"
)

// Config keeps runtime settings for the bot.
type Config struct {
	Env      string         `mapstructure:"env"`
	Log      LogConfig      `mapstructure:"log"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Database DatabaseConfig `mapstructure:"database"`
	Flavor   FlavorConfig   `mapstructure:"flavor"`
	Digest   DigestConfig   `mapstructure:"digest"`
	HTTP     HTTPConfig     `mapstructure:"http"`
}

type LogConfig struct {
	// Level overrides the level derived from Env when set.
	Level string `mapstructure:"level"`
}

type TelegramConfig struct {
	Token string `mapstructure:"token"`
	// PollTimeout is the long-polling timeout in seconds.
	PollTimeout int `mapstructure:"poll_timeout"`
	// Workers bounds how many updates are handled at once.
	Workers              int  `mapstructure:"workers"`
	DeleteSourceMessages bool `mapstructure:"delete_source_messages"`
}

type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// FlavorConfig controls generated task notes and celebration animations.
type FlavorConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	TextURL     string        `mapstructure:"text_url"`
	GiphyURL    string        `mapstructure:"giphy_url"`
	GiphyAPIKey string        `mapstructure:"giphy_api_key"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// DigestConfig schedules the open task digest. DailyAt (HH:MM) wins over
// Interval; both empty disables the digest.
type DigestConfig struct {
	DailyAt  string        `mapstructure:"daily_at"`
	Interval time.Duration `mapstructure:"interval"`
}

type HTTPConfig struct {
	// Addr enables the status API when non-empty.
	Addr string `mapstructure:"addr"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Env: EnvLocal,
		Telegram: TelegramConfig{
			PollTimeout:          60,
			Workers:              4,
			DeleteSourceMessages: true,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    DefaultSQLitePath,
		},
		Flavor: FlavorConfig{
			Enabled:  true,
			TextURL:  "https://pelevin.gpt.dobro.ai/generate/",
			GiphyURL: "https://api.giphy.com/v1/gifs/trending",
			Timeout:  5 * time.Second,
		},
	}
}

// SetDefaults registers defaults and environment bindings on v.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("env", d.Env)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("telegram.token", d.Telegram.Token)
	v.SetDefault("telegram.poll_timeout", d.Telegram.PollTimeout)
	v.SetDefault("telegram.workers", d.Telegram.Workers)
	v.SetDefault("telegram.delete_source_messages", d.Telegram.DeleteSourceMessages)
	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("flavor.enabled", d.Flavor.Enabled)
	v.SetDefault("flavor.text_url", d.Flavor.TextURL)
	v.SetDefault("flavor.giphy_url", d.Flavor.GiphyURL)
	v.SetDefault("flavor.giphy_api_key", d.Flavor.GiphyAPIKey)
	v.SetDefault("flavor.timeout", d.Flavor.Timeout)
	v.SetDefault("digest.daily_at", d.Digest.DailyAt)
	v.SetDefault("digest.interval", d.Digest.Interval)
	v.SetDefault("http.addr", d.HTTP.Addr)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Names used by earlier deployments of the bot.
	_ = v.BindEnv("telegram.token", envPrefix+"_TELEGRAM_TOKEN", "TELEGRAM_BOT_API_TOKEN")
	_ = v.BindEnv("flavor.giphy_api_key", envPrefix+"_FLAVOR_GIPHY_API_KEY", "GIPHY_API_KEY")
}

// Load reads an optional config file, applies environment overrides and
// validates the result.
func Load(v *viper.Viper, configFile string) (Config, error) {
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %q: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.Telegram.Token = strings.TrimSpace(cfg.Telegram.Token)
	if cfg.Telegram.Token == "" {
		return cfg, fmt.Errorf("telegram token is required (HOUSEKEEPER_TELEGRAM_TOKEN or TELEGRAM_BOT_API_TOKEN)")
	}
	if cfg.Telegram.Workers <= 0 {
		cfg.Telegram.Workers = 1
	}
	if cfg.Telegram.PollTimeout <= 0 {
		cfg.Telegram.PollTimeout = Default().Telegram.PollTimeout
	}

	return cfg, nil
}
