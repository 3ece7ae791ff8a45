package config

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	APIBaseURL     string        `mapstructure:"API_BASE_URL"`
	APITimeout     time.Duration `mapstructure:"API_TIMEOUT"`
	StateDir       string        `mapstructure:"STATE_DIR"`
	OTPTTL         time.Duration `mapstructure:"OTP_TTL"`
	ResendCooldown time.Duration `mapstructure:"OTP_RESEND_COOLDOWN"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`
	ListenAddr     string        `mapstructure:"LISTEN_ADDR"`
}

func LoadConfig() Config {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	viper.SetDefault("API_BASE_URL", "http://localhost:8080")
	viper.SetDefault("API_TIMEOUT", 10*time.Second)
	viper.SetDefault("STATE_DIR", defaultStateDir())
	viper.SetDefault("OTP_TTL", 5*time.Minute)
	viper.SetDefault("OTP_RESEND_COOLDOWN", 2*time.Minute)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LISTEN_ADDR", ":8080")

	if err := viper.ReadInConfig(); err != nil {
		log.Println("No .env file found, using env variables only")
	}

	var c Config
	if err := viper.Unmarshal(&c); err != nil {
		log.Fatal("config unmarshal error:", err)
	}

	return c
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".payflow"
	}
	return filepath.Join(home, ".payflow")
}
