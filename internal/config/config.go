package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode       string `mapstructure:"mode"`
	Port       int    `mapstructure:"port"`
	StaticPath string `mapstructure:"static_path"`
	Secret     string `mapstructure:"secret"`

	VideoAPIBase string `mapstructure:"video_api_base"`
	Quality      string `mapstructure:"quality"`
	Duration     int    `mapstructure:"duration"`

	FrameRate   int `mapstructure:"frame_rate"`
	FrameWidth  int `mapstructure:"frame_width"`
	FrameHeight int `mapstructure:"frame_height"`

	GenerationTimeout time.Duration `mapstructure:"generation_timeout"`
	CycleInterval     time.Duration `mapstructure:"cycle_interval"`
	StaleThreshold    time.Duration `mapstructure:"stale_threshold"`
	WaitingInterval   time.Duration `mapstructure:"waiting_interval"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("video_api_base", "http://127.0.0.1:8000")
	v.SetDefault("quality", "medium")
	v.SetDefault("duration", 30)
	v.SetDefault("frame_rate", 10)
	v.SetDefault("frame_width", 512)
	v.SetDefault("frame_height", 512)
	v.SetDefault("generation_timeout", "10s")
	v.SetDefault("cycle_interval", "7s")
	v.SetDefault("stale_threshold", "5s")
	v.SetDefault("waiting_interval", "1s")

	// Every option is independently overridable from the environment,
	// e.g. MIRAGE_VIDEO_API_BASE, MIRAGE_GENERATION_TIMEOUT.
	v.SetEnvPrefix("MIRAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Video API: %s\n", cfg.Mode, cfg.Port, cfg.VideoAPIBase)
	return &cfg, nil
}
