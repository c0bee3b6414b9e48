package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerAddr     string
	SnapshotPath   string
	TelegramToken  string
	TelegramChatId string
	AllowedOrigins []string
}

// LoadEnv loads a .env file if one exists so environment overrides work
// the same in development and deployment. A missing file is not an
// error.
func LoadEnv() {
	_ = godotenv.Load()
}

func EnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func NewConfig(serverAddr, snapshotPath, telegramToken, telegramChatId string, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if snapshotPath == "" {
		return nil, fmt.Errorf("snapshot path cannot be empty")
	}

	// both credentials or neither: a half-configured remote channel
	// would silently disable backup while looking enabled
	if (telegramToken == "") != (telegramChatId == "") {
		return nil, fmt.Errorf("telegram token and chat id must be set together")
	}

	return &Config{
		ServerAddr:     serverAddr,
		SnapshotPath:   snapshotPath,
		TelegramToken:  telegramToken,
		TelegramChatId: telegramChatId,
		AllowedOrigins: allowedOrigins,
	}, nil
}

// RemoteBackupEnabled reports whether the remote backup channel is
// configured; absence disables remote backup and recovery entirely.
func (c *Config) RemoteBackupEnabled() bool {
	return c.TelegramToken != ""
}
