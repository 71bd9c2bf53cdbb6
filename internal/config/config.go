package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds harness configuration values.
type Config struct {
	Env   string `validate:"required,oneof=dev prod"`
	Retry struct {
		Attempts            int           `validate:"min=1"`
		Delay               time.Duration `validate:"min=0"`
		ReinitResources     bool
		ResetDataBetweenTry bool
	}
	Browser struct {
		Engine   string `validate:"required,oneof=playwright none"`
		Headless bool
	}
	Reset struct {
		URL      string `validate:"omitempty,url"`
		PGDSN    string
		PGTables []string
	}
	History struct {
		Path      string
		Retention time.Duration `validate:"min=0"`
		PruneSpec string
	}
	Notify struct {
		TelegramToken string
		TelegramChat  int64
	}
	Runner struct {
		Workers int `validate:"min=1"`
	}
	Log struct {
		ConsoleLevel string `validate:"required,oneof=debug info warn error"`
		FileLevel    string `validate:"required,oneof=debug info warn error"`
		File         string
	}
}

var validate = validator.New()

// Load reads configuration from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	var c Config
	c.Env = getenv("ENV", "prod")
	c.Retry.Attempts = getenvInt("RETRY_ATTEMPTS", 3)
	c.Retry.Delay = time.Duration(getenvInt("RETRY_DELAY_MS", 1000)) * time.Millisecond
	c.Retry.ReinitResources = getenvBool("RETRY_REINIT_RESOURCES", true)
	c.Retry.ResetDataBetweenTry = getenvBool("RETRY_RESET_DATA", true)
	c.Browser.Engine = getenv("BROWSER_ENGINE", "playwright")
	c.Browser.Headless = getenvBool("BROWSER_HEADLESS", true)
	c.Reset.URL = os.Getenv("RESET_URL")
	c.Reset.PGDSN = os.Getenv("RESET_PG_DSN")
	if v := os.Getenv("RESET_PG_TABLES"); v != "" {
		for _, tbl := range strings.Split(v, ",") {
			if tbl = strings.TrimSpace(tbl); tbl != "" {
				c.Reset.PGTables = append(c.Reset.PGTables, tbl)
			}
		}
	}
	c.History.Path = getenv("HISTORY_DB", "data/history.sqlite")
	c.History.Retention = time.Duration(getenvInt("HISTORY_RETENTION_DAYS", 30)) * 24 * time.Hour
	c.History.PruneSpec = getenv("HISTORY_PRUNE_SPEC", "0 3 * * *")
	c.Notify.TelegramToken = os.Getenv("NOTIFY_TELEGRAM_TOKEN")
	c.Notify.TelegramChat = getenvInt64("NOTIFY_TELEGRAM_CHAT", 0)
	c.Runner.Workers = getenvInt("RUNNER_WORKERS", 1)
	c.Log.ConsoleLevel = strings.ToLower(getenv("LOG_CONSOLE_LEVEL", "info"))
	c.Log.FileLevel = strings.ToLower(getenv("LOG_FILE_LEVEL", "debug"))
	c.Log.File = getenv("LOG_FILE", "data/logs/flakeguard.log")

	if err := validate.Struct(c); err != nil {
		return Config{}, err
	}
	if c.Reset.PGDSN != "" && len(c.Reset.PGTables) == 0 {
		return Config{}, errors.New("RESET_PG_TABLES required when RESET_PG_DSN is set")
	}
	if c.Notify.TelegramToken != "" && c.Notify.TelegramChat == 0 {
		return Config{}, errors.New("NOTIFY_TELEGRAM_CHAT required when NOTIFY_TELEGRAM_TOKEN is set")
	}
	return c, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvInt64(k string, def int64) int64 {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getenvBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
